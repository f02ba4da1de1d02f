package report

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// PDFOptions configures headless Chromium.
type PDFOptions struct {
	ChromiumPath string
	Timeout      time.Duration
}

// PDFRenderer prints the HTML report through headless Chromium.
type PDFRenderer struct {
	opts PDFOptions
}

func NewPDFRenderer(opts PDFOptions) PDFRenderer {
	return PDFRenderer{opts: opts}
}

// Render returns the report as PDF bytes. When Chromium cannot be started it
// returns an error and the caller falls back to another format.
func (p PDFRenderer) Render(ctx context.Context, r Report) ([]byte, error) {
	html, err := HTML(r)
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if p.opts.ChromiumPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(p.opts.ChromiumPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	timeout := p.opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	runCtx, cancelRun := chromedp.NewContext(allocCtx)
	defer cancelRun()
	runCtx, cancelTimeout := context.WithTimeout(runCtx, timeout)
	defer cancelTimeout()

	var pdf []byte
	err = chromedp.Run(runCtx,
		chromedp.Navigate("data:text/html,"+url.PathEscape(html)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, perr := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if perr == nil {
				pdf = buf
			}
			return perr
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp run failed: %w", err)
	}
	return pdf, nil
}
