package fetch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// renderWithBrowser loads the page in headless Chrome and returns the
// rendered HTML after JavaScript has run. Each call gets its own browser;
// URL intake is rare enough that a pooled browser is not worth keeping warm.
func (s *Service) renderWithBrowser(ctx context.Context, rawURL string) (string, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(s.config.UserAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocatorCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	defer browserCancel()

	browserCtx, timeoutCancel := context.WithTimeout(browserCtx, s.browserTimeout)
	defer timeoutCancel()

	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		return "", fmt.Errorf("failed to enable network domain: %w", err)
	}

	// Count page subresource traffic for the fetch log line
	var requests, failures int64
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt64(&requests, 1)
		case *network.EventLoadingFailed:
			atomic.AddInt64(&failures, 1)
		}
	})

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(rawURL),
		chromedp.Sleep(2*time.Second), // Wait for JavaScript to render
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("browser render failed for %s: %w", rawURL, err)
	}
	if html == "" {
		return "", fmt.Errorf("browser returned empty HTML for %s", rawURL)
	}

	s.logger.Debug().
		Str("url", rawURL).
		Int64("network_requests", atomic.LoadInt64(&requests)).
		Int64("network_failures", atomic.LoadInt64(&failures)).
		Msg("Page rendered")

	return html, nil
}
