package compositor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/fablepress/backend/internal/artifact"
	"github.com/fablepress/backend/internal/book"
)

// Compositor renders a page's text layers over its background. Fonts come
// out of the artifact store before rendering and are cached per key; the
// rasterized document itself touches nothing outside its data URIs.
type Compositor struct {
	artifacts artifact.Store
	raster    Rasterizer
	native    *NativeEngine
	logger    *slog.Logger

	fontMu    sync.Mutex
	fontCache map[string][]byte
}

// New creates a compositor.
func New(artifacts artifact.Store, raster Rasterizer, logger *slog.Logger) *Compositor {
	return &Compositor{
		artifacts: artifacts,
		raster:    raster,
		native:    NewNativeEngine(),
		logger:    logger,
		fontCache: make(map[string][]byte),
	}
}

// RenderPage applies layers in order over bg and returns the final page at
// the manifest's output size. A page with no layers is returned normalized
// but otherwise untouched.
func (c *Compositor) RenderPage(ctx context.Context, bg image.Image, layers []book.TextLayer, vars map[string]string, output book.Output) (image.Image, error) {
	size := output.PageSizePx
	cur := normalizeSize(bg, size)

	for i := range layers {
		layer := &layers[i]

		// Stored text is fetched and substituted in place of the key so the
		// template engine only ever sees inline text.
		resolved := *layer
		if resolved.TextKey != "" && resolved.TextTemplate == "" {
			data, err := c.artifacts.Get(ctx, resolved.TextKey)
			if err != nil {
				return nil, fmt.Errorf("layer %d: failed to load text %s: %w", i, resolved.TextKey, err)
			}
			resolved.TextTemplate = string(data)
			resolved.TextKey = ""
		}

		text, err := RenderTemplate(&resolved, vars)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}

		style := DefaultTextStyle().Merge(layer.Style)

		fontData, err := c.loadFont(ctx, layer.FontKey)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}

		switch layer.Engine {
		case "", "html":
			if c.raster == nil {
				// No browser available; the native engine loses the HTML
				// styling but keeps text on the page.
				cur, err = c.native.Draw(cur, stripTitleMarkup(text), style, fontData, size)
				break
			}
			cur, err = c.renderHTMLLayer(ctx, cur, text, style, fontData, layer.FontKey, size, layer.AllowTitleHTML)
		case "native":
			cur, err = c.native.Draw(cur, text, style, fontData, size)
		default:
			err = fmt.Errorf("unknown render engine %q", layer.Engine)
		}
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}

	return cur, nil
}

func (c *Compositor) renderHTMLLayer(ctx context.Context, bg image.Image, text string, style TextStyle, fontData []byte, fontKey string, size int, allowTitleHTML bool) (image.Image, error) {
	var bgBuf bytes.Buffer
	if err := png.Encode(&bgBuf, bg); err != nil {
		return nil, fmt.Errorf("failed to encode background: %w", err)
	}
	bgDataURI := BytesToDataURI(bgBuf.Bytes(), "image/png")

	fontDataURI := ""
	if fontData != nil {
		fontDataURI = BytesToDataURI(fontData, fontMIME(fontKey))
	}

	doc := BuildHTMLDocument(bgDataURI, fontDataURI, text, style, size, allowTitleHTML)

	pngBytes, err := c.raster.Rasterize(ctx, doc, size)
	if err != nil {
		return nil, err
	}

	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode rasterized page: %w", err)
	}
	return img, nil
}

// loadFont fetches a font from the artifact store, caching by key. An
// empty key means the layer uses the engine's fallback font.
func (c *Compositor) loadFont(ctx context.Context, fontKey string) ([]byte, error) {
	if fontKey == "" {
		return nil, nil
	}

	c.fontMu.Lock()
	cached, ok := c.fontCache[fontKey]
	c.fontMu.Unlock()
	if ok {
		return cached, nil
	}

	data, err := c.artifacts.Get(ctx, fontKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load font %s: %w", fontKey, err)
	}

	c.fontMu.Lock()
	c.fontCache[fontKey] = data
	c.fontMu.Unlock()

	c.logger.Debug("Loaded font into cache",
		slog.String("font_key", fontKey),
		slog.Int("bytes", len(data)),
	)
	return data, nil
}

func fontMIME(fontKey string) string {
	switch strings.ToLower(path.Ext(fontKey)) {
	case ".ttf":
		return "font/ttf"
	case ".otf":
		return "font/otf"
	case ".woff":
		return "font/woff"
	case ".woff2":
		return "font/woff2"
	default:
		return "application/octet-stream"
	}
}

// normalizeSize scales an image to the square output size. Base
// illustrations may arrive at preview resolution; final pages may not.
func normalizeSize(img image.Image, size int) image.Image {
	b := img.Bounds()
	if b.Dx() == size && b.Dy() == size {
		return img
	}
	return imaging.Resize(img, size, size, imaging.Lanczos)
}
