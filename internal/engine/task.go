package engine

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/lopezcrawl/lopez/internal/analyzer"
	"github.com/lopezcrawl/lopez/internal/boundary"
	"github.com/lopezcrawl/lopez/internal/logger"
	"github.com/lopezcrawl/lopez/pkg/backend"
	"github.com/lopezcrawl/lopez/pkg/fetcher"
)

// processPage runs the full one-page pipeline of §4.I: rate-limit +
// robots check, fetch with retry, redirect/canonical linkage, boundary
// classification of discovered anchors, analyzer evaluation, and a
// best-effort commit to the backend.
//
// Note on atomicity: §4.I step 5 describes ensuring new-link status rows
// and committing the current page's linkage/analyses/status as "one
// transaction". Backend.Close only covers the latter; ensuring new rows is
// a separate EnsureStatus call issued first. A crash between the two
// leaves discovered links un-enqueued but never double-commits a page, so
// the worst case is a missed link, recoverable by re-crawling the source
// page — not a correctness violation of §3's invariants.
func (e *Engine) processPage(ctx context.Context, waveID uint64, item backend.BatchItem) {
	pageURL := item.URL
	origin := boundary.Origin(pageURL)

	if !e.directives.Policy.RobotsAllowed(ctx, pageURL) {
		logger.Debug("robots disallowed own page, marking error", "url", pageURL)
		_ = e.backend.Error(ctx, waveID, item.PageID, nil)
		return
	}

	if err := e.limiter.Wait(ctx, origin); err != nil {
		_ = e.backend.Error(ctx, waveID, item.PageID, nil)
		return
	}

	req := fetcher.Request{
		Timeout:     e.directives.Config.RequestTimeout,
		MaxBodySize: e.directives.Config.MaxBodySize,
		UserAgent:   e.directives.Config.UserAgent,
	}
	outcome, err := e.fetchWithRetry(ctx, pageURL, req)
	if err != nil {
		logger.Info("fetch failed", "url", pageURL, "error", err)
		_ = e.backend.Error(ctx, waveID, item.PageID, statusCodePtr(outcome.StatusCode))
		return
	}

	var linkage []backend.LinkageEdge
	linkage = append(linkage, e.redirectLinkage(ctx, waveID, item, outcome)...)

	if len(outcome.Redirects) > 0 {
		// The fetched body/status belong to the chain's final page, already
		// enqueued as its own `open` row above — item.PageID is the
		// redirecting page itself and closes with its own hop status and no
		// analyses (§4.I.3, §8 worked example).
		if err := e.backend.Close(ctx, waveID, item.PageID, outcome.Redirects[0].StatusCode, linkage, nil); err != nil {
			logger.Warn("commit failed for redirecting page", "url", pageURL, "error", err)
		}
		return
	}

	if !isSuccess(outcome.StatusCode) {
		if isHTML(outcome.ContentType) && len(outcome.Body) > 0 {
			linkage = append(linkage, e.canonicalEdgeFromBytes(ctx, item.PageID, outcome)...)
		}
		if err := e.backend.Close(ctx, waveID, item.PageID, outcome.StatusCode, linkage, nil); err != nil {
			logger.Warn("commit failed for non-success page", "url", pageURL, "error", err)
		}
		return
	}

	root, err := html.Parse(bytes.NewReader(outcome.Body))
	if err != nil {
		// MalformedHTML is not fatal (§7): continue with an empty document.
		root, _ = html.Parse(strings.NewReader(""))
	}
	doc := goquery.NewDocumentFromNode(root)

	if canon, ok := fetcher.CanonicalLinkIn(doc, outcome.FinalURL); ok && e.directives.Policy.InBoundary(canon) {
		toID, err := e.ensurePage(ctx, canon)
		if err == nil {
			linkage = append(linkage, backend.LinkageEdge{From: item.PageID, To: toID, Reason: backend.ReasonCanonical})
		}
	}

	anchorLinkage, newOpen := e.classifyAnchors(ctx, doc, item, outcome.FinalURL)
	linkage = append(linkage, anchorLinkage...)

	analyses := analyzer.Evaluate(e.directives.Analyzer, outcome.FinalURL, root)

	if len(newOpen) > 0 {
		if err := e.backend.EnsureStatus(ctx, waveID, newOpen); err != nil {
			logger.Warn("ensure status for discovered links failed", "url", pageURL, "error", err)
		}
	}

	if err := e.backend.Close(ctx, waveID, item.PageID, outcome.StatusCode, linkage, analyses); err != nil {
		logger.Warn("commit failed", "url", pageURL, "error", err)
	}
}

func isSuccess(code int) bool { return code >= 200 && code < 300 }

func isHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "html")
}

func statusCodePtr(code int) *int {
	if code == 0 {
		return nil
	}
	return &code
}

// ensurePage normalizes nothing further (the URL is expected already
// resolved/absolute) and registers it in the global page table, returning
// its page_id.
func (e *Engine) ensurePage(ctx context.Context, u string) (uint64, error) {
	ids, err := e.backend.EnsurePages(ctx, []string{u})
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	return ids[0], nil
}

func (e *Engine) canonicalEdgeFromBytes(ctx context.Context, fromID uint64, outcome fetcher.Outcome) []backend.LinkageEdge {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(outcome.Body))
	if err != nil {
		return nil
	}
	canon, ok := fetcher.CanonicalLinkIn(doc, outcome.FinalURL)
	if !ok || !e.directives.Policy.InBoundary(canon) {
		return nil
	}
	toID, err := e.ensurePage(ctx, canon)
	if err != nil {
		return nil
	}
	return []backend.LinkageEdge{{From: fromID, To: toID, Reason: backend.ReasonCanonical}}
}

// redirectLinkage records one `redirect` edge per hop and enqueues each
// target at the source page's depth (§4.I step 3).
func (e *Engine) redirectLinkage(ctx context.Context, waveID uint64, item backend.BatchItem, outcome fetcher.Outcome) []backend.LinkageEdge {
	if len(outcome.Redirects) == 0 {
		return nil
	}
	var edges []backend.LinkageEdge
	var newOpen []backend.StatusSeed
	fromID := item.PageID
	for _, hop := range outcome.Redirects {
		normalized, err := boundary.Normalize(hop.To, "", e.directives.Policy.Params)
		if err != nil {
			normalized = hop.To
		}
		toID, err := e.ensurePage(ctx, normalized)
		if err != nil {
			continue
		}
		edges = append(edges, backend.LinkageEdge{From: fromID, To: toID, Reason: backend.ReasonRedirect})
		newOpen = append(newOpen, backend.StatusSeed{PageID: toID, Depth: item.Depth})
		fromID = toID
	}
	if len(newOpen) > 0 {
		if err := e.backend.EnsureStatus(ctx, waveID, newOpen); err != nil {
			logger.Warn("ensure status for redirect targets failed", "url", item.URL, "error", err)
		}
	}
	return edges
}

// classifyAnchors runs every `<a href>` on the page through the boundary
// engine (§4.G) and returns both the linkage edges to commit and the new
// `open` rows to enqueue for in-boundary, robots-allowed targets.
func (e *Engine) classifyAnchors(ctx context.Context, doc *goquery.Document, item backend.BatchItem, pageURL string) ([]backend.LinkageEdge, []backend.StatusSeed) {
	var edges []backend.LinkageEdge
	var newOpen []backend.StatusSeed
	var toEnsure []string
	var reasons []boundary.Classification

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || strings.TrimSpace(href) == "" || strings.HasPrefix(href, "#") {
			return
		}
		rel, _ := sel.Attr("rel")
		nofollow := strings.Contains(strings.ToLower(rel), "nofollow")
		normalized, class := e.directives.Policy.Classify(ctx, href, pageURL, nofollow)
		if normalized == "" || class == boundary.ReasonSelf {
			return
		}
		toEnsure = append(toEnsure, normalized)
		reasons = append(reasons, class)
	})

	if len(toEnsure) == 0 {
		return nil, nil
	}
	ids, err := e.backend.EnsurePages(ctx, toEnsure)
	if err != nil {
		logger.Warn("ensure pages for discovered anchors failed", "url", pageURL, "error", err)
		return nil, nil
	}

	for i, toID := range ids {
		switch reasons[i] {
		case boundary.ReasonAhref:
			edges = append(edges, backend.LinkageEdge{From: item.PageID, To: toID, Reason: backend.ReasonAHref})
			newOpen = append(newOpen, backend.StatusSeed{PageID: toID, Depth: item.Depth + 1})
		case boundary.ReasonExtAhref:
			edges = append(edges, backend.LinkageEdge{From: item.PageID, To: toID, Reason: backend.ReasonExtAHref})
		case boundary.ReasonExtAhrefNoFollow:
			edges = append(edges, backend.LinkageEdge{From: item.PageID, To: toID, Reason: backend.ReasonExtAHrefNoFollow})
		case boundary.ReasonRobots:
			// In-boundary but robots-disallowed falls through to the
			// catch-all §4.G.4 case: record ext_ahref, don't enqueue.
			edges = append(edges, backend.LinkageEdge{From: item.PageID, To: toID, Reason: backend.ReasonExtAHref})
		}
	}
	return edges, newOpen
}

// fetchWithRetry applies §7's Fetcher retry policy: transport errors retry
// up to 3 attempts total with jittered exponential backoff (base 500ms,
// factor 2, ±20% jitter); a timeout retries once; an oversized body or a
// redirect-chain failure never retries.
func (e *Engine) fetchWithRetry(ctx context.Context, url string, req fetcher.Request) (fetcher.Outcome, error) {
	var outcome fetcher.Outcome
	var err error
	for attempt := 1; ; attempt++ {
		outcome, err = e.fetcher.Fetch(ctx, url, req)
		if err == nil {
			return outcome, nil
		}

		switch {
		case errors.Is(err, fetcher.ErrOversizedBody),
			errors.Is(err, fetcher.ErrRedirectCycle),
			errors.Is(err, fetcher.ErrTooManyRedirects):
			return outcome, err
		case errors.Is(err, fetcher.ErrTimeout):
			if attempt >= 2 {
				return outcome, err
			}
		default:
			if attempt >= 3 {
				return outcome, err
			}
		}

		select {
		case <-ctx.Done():
			return outcome, ctx.Err()
		case <-time.After(jitteredBackoff(attempt)):
		}
	}
}

func jitteredBackoff(attempt int) time.Duration {
	base := 500 * time.Millisecond
	d := base * time.Duration(1<<uint(attempt-1))
	jitter := float64(d) * 0.2
	offset := (rand.Float64()*2 - 1) * jitter
	return d + time.Duration(offset)
}
