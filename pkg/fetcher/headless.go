package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/lopezcrawl/lopez/internal/logger"
)

// HeadlessFetcher is the second §4.J implementation: it renders a page in a
// headless browser and yields the post-JavaScript DOM. It exists for
// directives that need a rendered page (set via the engine's fetcher
// selection, not an LCD-level concern) — most crawls use HTTPFetcher.
type HeadlessFetcher struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewHeadless prepares a headless-browser allocator. No browser is started
// here: every Fetch call launches its own browser through the allocator and
// closes it when the call returns.
func NewHeadless() *HeadlessFetcher {
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), chromedp.DefaultExecAllocatorOptions[:]...)
	return &HeadlessFetcher{allocCtx: allocCtx, allocCancel: cancel}
}

func (f *HeadlessFetcher) Close() error {
	f.allocCancel()
	return nil
}

func (f *HeadlessFetcher) Fetch(ctx context.Context, targetURL string, req Request) (Outcome, error) {
	logger.Debug("headless fetch starting", "url", targetURL)

	tabCtx, cancelTab := chromedp.NewContext(f.allocCtx)
	defer cancelTab()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	defer cancelTimeout()

	var redirects []Redirect
	var statusCode int
	var contentType string
	lastURL := targetURL
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventResponseReceived); ok {
			if e.Type == network.ResourceTypeDocument {
				// A document response in the 3xx range is one hop of the
				// chain; the browser follows it transparently, so this is
				// the only place a hop's own status is ever observed
				// (§4.I.3, §8 worked example: the origin page closes with
				// its own redirect status, not the chain's terminal one).
				if statusCode >= 300 && statusCode < 400 {
					redirects = append(redirects, Redirect{From: lastURL, To: e.Response.URL, StatusCode: statusCode})
				}
				statusCode = int(e.Response.Status)
				if ct, ok := e.Response.Headers["content-type"].(string); ok {
					contentType = ct
				}
				lastURL = e.Response.URL
			}
		}
	})

	var html, finalURL string
	err := chromedp.Run(tabCtx,
		network.SetUserAgentOverride(req.UserAgent).WithAcceptLanguage("en-US,en;q=0.9"),
		chromedp.Navigate(targetURL),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return Outcome{}, classifyHeadlessError(err)
	}

	body := []byte(html)
	if req.MaxBodySize > 0 && int64(len(body)) > req.MaxBodySize {
		return Outcome{}, ErrOversizedBody
	}

	if len(redirects) > maxRedirects {
		return Outcome{}, ErrTooManyRedirects
	}

	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}

	outcome := Outcome{
		FinalURL:    finalURL,
		StatusCode:  statusCode,
		ContentType: contentType,
		Body:        body,
		Redirects:   redirects,
		FetchedAt:   time.Now(),
	}
	logger.Debug("headless fetch complete", "url", targetURL, "final_url", finalURL, "status", statusCode)
	return outcome, nil
}

func classifyHeadlessError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "context canceled") {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}
