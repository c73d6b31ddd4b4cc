package source

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserOptions configures the rendering fallback.
type BrowserOptions struct {
	PageURL     string
	Container   string        // CSS selector of the content container
	WaitTimeout time.Duration // bound on the container becoming non-empty
	SettleDelay time.Duration // extra time for client-side rendering
	ExecPath    string        // optional browser binary
}

// BrowserStrategy renders the page in headless Chrome and reads the container.
type BrowserStrategy struct {
	opts BrowserOptions
}

// NewBrowserStrategy creates the fallback strategy.
func NewBrowserStrategy(opts BrowserOptions) *BrowserStrategy {
	if opts.Container == "" {
		opts.Container = "#content"
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 20 * time.Second
	}
	return &BrowserStrategy{opts: opts}
}

// Name implements Strategy.
func (s *BrowserStrategy) Name() string { return "browser" }

func (s *BrowserStrategy) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if s.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.opts.ExecPath))
	}
	return opts
}

// nonEmptyExpr is truthy once the container exists and has visible text.
func (s *BrowserStrategy) nonEmptyExpr() string {
	return fmt.Sprintf(`(function(){var el=document.querySelector(%q);return !!el && el.innerText.trim().length > 0;})()`, s.opts.Container)
}

// Fetch implements Strategy.
func (s *BrowserStrategy) Fetch(ctx context.Context) (*Document, error) {
	// Navigation, presence polling and settle delay share one deadline.
	deadline := s.opts.WaitTimeout + s.opts.SettleDelay + 10*time.Second
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, s.allocatorOptions()...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var ready bool
	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(s.opts.PageURL),
		chromedp.Poll(s.nonEmptyExpr(), &ready,
			chromedp.WithPollingTimeout(s.opts.WaitTimeout),
			chromedp.WithPollingInterval(250*time.Millisecond),
		),
		chromedp.Sleep(s.opts.SettleDelay),
		chromedp.OuterHTML(s.opts.Container, &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("render failed: %w", err)
	}

	if err := Validate(html); err != nil {
		return nil, err
	}
	return &Document{HTML: html, Strategy: s.Name(), FetchedAt: time.Now()}, nil
}
