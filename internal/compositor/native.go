package compositor

import (
	"fmt"
	"image"
	"regexp"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	nativeBrRE   = regexp.MustCompile(`(?i)<\s*br\s*/?\s*>`)
	nativeSpanRE = regexp.MustCompile(`(?i)</?\s*span[^>]*>`)
)

// stripTitleMarkup flattens the title markup vocabulary to plain text for
// the native engine, which has no nested sizing.
func stripTitleMarkup(text string) string {
	text = nativeBrRE.ReplaceAllString(text, "\n")
	return nativeSpanRE.ReplaceAllString(text, "")
}

// NativeEngine draws text layers directly with freetype, for hosts without
// a browser. Shadow blur collapses to hard offsets; stroke and title spans
// are approximated. Good enough for previews, not print.
type NativeEngine struct{}

// NewNativeEngine creates the browserless text engine.
func NewNativeEngine() *NativeEngine {
	return &NativeEngine{}
}

// Draw renders text over bg and returns the composited image. fontData may
// be nil, falling back to the bundled Go font.
func (e *NativeEngine) Draw(bg image.Image, text string, style TextStyle, fontData []byte, sizePx int) (image.Image, error) {
	if fontData == nil {
		fontData = goregular.TTF
	}
	parsed, err := truetype.Parse(fontData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	face := truetype.NewFace(parsed, &truetype.Options{
		Size:    float64(style.FontSize),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	defer face.Close()

	dc := gg.NewContext(sizePx, sizePx)
	dc.DrawImage(bg, 0, 0)
	dc.SetFontFace(face)

	plain := stripTitleMarkup(text)

	boxX := float64(sizePx-style.BoxW)/2 + float64(style.MarginLeft)
	boxY := float64(style.Top)
	align := gg.AlignLeft
	switch style.TextAlign {
	case "center":
		align = gg.AlignCenter
	case "right":
		align = gg.AlignRight
	}

	// Shadow first, then the fill on top.
	offset := float64(style.ShadowOffset)
	if offset != 0 {
		dc.SetRGBA(0, 0, 0, style.ShadowOpacity)
		dc.DrawStringWrapped(plain, boxX+offset, boxY+offset, 0, 0,
			float64(style.BoxW), style.LineHeight, align)
	}
	dc.SetHexColor(style.Color)
	dc.DrawStringWrapped(plain, boxX, boxY, 0, 0,
		float64(style.BoxW), style.LineHeight, align)

	return dc.Image(), nil
}
