package compositor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Rasterizer turns an HTML document into a PNG at a square pixel size.
type Rasterizer interface {
	Rasterize(ctx context.Context, html string, sizePx int) ([]byte, error)
}

// ChromeRasterizer renders through headless Chrome. Every request that is
// not a data: or about: URL is failed at the fetch layer, so a document
// can never pull anything from the network or the filesystem.
type ChromeRasterizer struct {
	logger *slog.Logger
}

// NewChromeRasterizer creates the headless-Chrome rasterizer.
func NewChromeRasterizer(logger *slog.Logger) *ChromeRasterizer {
	return &ChromeRasterizer{logger: logger}
}

func allowedDocumentURL(url string) bool {
	return strings.HasPrefix(url, "data:") || strings.HasPrefix(url, "about:")
}

// Rasterize renders html at sizePx x sizePx and returns PNG bytes.
func (r *ChromeRasterizer) Rasterize(ctx context.Context, html string, sizePx int) ([]byte, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(browserCtx)
			execCtx := cdp.WithExecutor(browserCtx, c.Target)
			if allowedDocumentURL(paused.Request.URL) {
				_ = fetch.ContinueRequest(paused.RequestID).Do(execCtx)
				return
			}
			r.logger.Warn("Blocked request during page rasterization",
				slog.String("url", paused.Request.URL),
			)
			_ = fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
		}()
	})

	var buf []byte
	err := chromedp.Run(browserCtx,
		fetch.Enable(),
		chromedp.EmulateViewport(int64(sizePx), int64(sizePx)),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		chromedp.CaptureScreenshot(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("rasterization failed: %w", err)
	}
	return buf, nil
}
