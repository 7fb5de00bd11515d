// Package capture renders a page in headless Chromium and stores it as a
// PNG. It is used to snapshot the markdown preview of an entry.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/natefinch/atomic"
)

// Default capture parameters.
const (
	DefaultWidth         = 800
	DefaultHeight        = 600
	DefaultTimeout       = 30 * time.Second
	DefaultReadySelector = `[data-ready="true"]`
)

// Options defines parameters for a Chromium-based screenshot capture.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/entries/<id>/markdown".
	URL string

	// OutputPath is where the PNG is written. The write is atomic.
	OutputPath string

	// Width and Height are the viewport size in pixels. Zero means the
	// defaults.
	Width  int
	Height int

	// Timeout bounds the whole capture.
	Timeout time.Duration

	// ReadySelector must be visible before the screenshot is taken.
	ReadySelector string
}

func (o *Options) normalize() {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.ReadySelector == "" {
		o.ReadySelector = DefaultReadySelector
	}
}

// Func is the signature of CapturePNG, so callers can swap in a fake.
type Func func(ctx context.Context, opts Options) error

// CapturePNG launches a headless Chromium via chromedp, navigates to
// opts.URL, waits for opts.ReadySelector and writes a full-page PNG to
// opts.OutputPath.
func CapturePNG(parentCtx context.Context, opts Options) error {
	if opts.URL == "" {
		return fmt.Errorf("capture: URL is required")
	}
	if opts.OutputPath == "" {
		return fmt.Errorf("capture: OutputPath is required")
	}
	opts.normalize()

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(opts.ReadySelector, chromedp.ByQuery),
		// Let fonts and icons settle.
		chromedp.Sleep(300 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := atomic.WriteFile(opts.OutputPath, bytes.NewReader(png)); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	return nil
}
