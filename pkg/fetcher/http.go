package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/lopezcrawl/lopez/internal/logger"
)

// HTTPFetcher is the plain HTTP(S) Fetcher implementation (§4.J, first
// variant). It builds a fresh colly.Collector per Fetch so that per-request
// options (timeout, user agent, body cap) never leak across concurrent
// fetches sharing the same *HTTPFetcher.
type HTTPFetcher struct{}

// NewHTTP returns the static HTTP(S) fetcher.
func NewHTTP() *HTTPFetcher {
	return &HTTPFetcher{}
}

func (f *HTTPFetcher) Close() error { return nil }

func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL string, req Request) (Outcome, error) {
	logger.Debug("http fetch starting", "url", targetURL)

	var redirects []Redirect
	visited := map[string]bool{targetURL: true}
	var redirectErr error

	client := &http.Client{
		Timeout:   req.Timeout,
		Transport: &redirectRecordingTransport{base: http.DefaultTransport, redirects: &redirects},
		CheckRedirect: func(r *http.Request, via []*http.Request) error {
			to := r.URL.String()
			if len(via) > maxRedirects {
				redirectErr = ErrTooManyRedirects
				return http.ErrUseLastResponse
			}
			if visited[to] {
				redirectErr = ErrRedirectCycle
				return http.ErrUseLastResponse
			}
			visited[to] = true
			return nil
		},
	}

	c := colly.NewCollector(
		colly.UserAgent(req.UserAgent),
		colly.MaxBodySize(int(req.MaxBodySize)),
	)
	c.SetClient(client)
	c.SetRequestTimeout(req.Timeout)

	outcome := Outcome{FetchedAt: time.Now()}
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		if req.MaxBodySize > 0 && int64(len(r.Body)) > req.MaxBodySize {
			fetchErr = ErrOversizedBody
			logger.Debug("http fetch oversized body", "url", targetURL, "size", len(r.Body), "max", req.MaxBodySize)
			return
		}
		outcome.FinalURL = r.Request.URL.String()
		outcome.StatusCode = r.StatusCode
		outcome.ContentType = r.Headers.Get("Content-Type")
		outcome.Body = r.Body
		outcome.Redirects = redirects
		logger.Debug("http fetch response", "url", targetURL, "status", r.StatusCode, "final_url", outcome.FinalURL)
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			outcome.StatusCode = r.StatusCode
			outcome.FinalURL = r.Request.URL.String()
		}
		fetchErr = classifyError(err)
		logger.Debug("http fetch error", "url", targetURL, "error", err)
	})

	if ctx.Err() != nil {
		return outcome, ctx.Err()
	}

	if err := c.Visit(targetURL); err != nil {
		if redirectErr != nil {
			return outcome, redirectErr
		}
		return outcome, classifyError(err)
	}
	if redirectErr != nil {
		return outcome, redirectErr
	}
	if fetchErr != nil {
		return outcome, fetchErr
	}

	logger.Debug("http fetch complete", "url", targetURL, "final_url", outcome.FinalURL, "redirects", len(outcome.Redirects))
	return outcome, nil
}

// redirectRecordingTransport wraps a base http.RoundTripper to capture each
// hop's own status code (301/302/...), which CheckRedirect never sees —
// net/http only hands it the next request, not the response that produced
// it (§4.I.3, §8 worked example: the origin page closes with its own
// redirect status, not the chain's terminal status).
type redirectRecordingTransport struct {
	base      http.RoundTripper
	redirects *[]Redirect
}

func (t *redirectRecordingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(r)
	if err != nil || resp == nil {
		return resp, err
	}
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		if loc, err := resp.Location(); err == nil {
			*t.redirects = append(*t.redirects, Redirect{
				From:       r.URL.String(),
				To:         loc.String(),
				StatusCode: resp.StatusCode,
			})
		}
	}
	return resp, nil
}

// classifyError maps a raw colly/net error onto one of §7's Fetcher error
// kinds so the engine's retry policy can branch on errors.Is rather than
// string-matching.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}
