package pages

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"iter"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/geometry"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/logger"
	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/model"
)

// MarkupRenderer renders an HTML document at a fixed pixel width. The result
// is as tall as the content.
type MarkupRenderer interface {
	Render(ctx context.Context, html string, width int) (image.Image, error)
}

const (
	initialViewportHeight = 600
	renderSettle          = 300 * time.Millisecond
)

// ChromeRenderer renders markup with a headless Chrome, started on first use
// and shared by later renders until Close.
type ChromeRenderer struct {
	execPath string

	mu            sync.Mutex
	browser       context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
}

// NewChromeRenderer returns a renderer using the Chrome binary at execPath,
// or the one chromedp finds when execPath is empty.
func NewChromeRenderer(execPath string) *ChromeRenderer {
	return &ChromeRenderer{execPath: execPath}
}

func (r *ChromeRenderer) browserContext() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if r.execPath != "" {
		opts = append(opts, chromedp.ExecPath(r.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browser, cancelBrowser := chromedp.NewContext(allocCtx)
	r.browser, r.cancelAlloc, r.cancelBrowser = browser, cancelAlloc, cancelBrowser
	return browser
}

func (r *ChromeRenderer) Render(ctx context.Context, html string, width int) (image.Image, error) {
	tab, cancel := chromedp.NewContext(r.browserContext())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var pngBytes []byte
	err := chromedp.Run(tab,
		emulation.SetDeviceMetricsOverride(int64(width), initialViewportHeight, 1, false),
		// Load HTML directly using data URL
		chromedp.Navigate("data:text/html,"+urlEncode(html)),
		chromedp.Sleep(renderSettle),
		chromedp.FullScreenshot(&pngBytes, 100),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed rendering markup: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return img, nil
}

// Close stops the browser, if one was started.
func (r *ChromeRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return
	}
	r.cancelBrowser()
	r.cancelAlloc()
	r.browser = nil
}

// Helper for encoding HTML into a data URL
func urlEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// FromMarkup renders each HTML page at the printer's full pixel width and fits
// it to the printable area with ScaleBitmap. Pages that render to nothing are
// skipped.
func FromMarkup(ctx context.Context, renderer MarkupRenderer, html []string, profile model.PrinterProfile) iter.Seq2[image.Image, error] {
	width := geometry.CmToPixels(profile.Width, profile.DPI)

	return func(yield func(image.Image, error) bool) {
		for i, doc := range html {
			img, err := renderer.Render(ctx, doc, width)
			if err != nil {
				yield(nil, fmt.Errorf("failed to render page %d: %w", i+1, err))
				return
			}
			if img == nil || img.Bounds().Empty() {
				logger.Warn("Skipping empty markup page", zap.String("printer", profile.Name), zap.Int("page", i+1))
				continue
			}
			page := geometry.ScaleBitmap(geometry.FlattenTransparency(img), profile)
			if !yield(page, nil) {
				return
			}
		}
	}
}
