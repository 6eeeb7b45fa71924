package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lopezcrawl/lopez/internal/directives"
	"github.com/lopezcrawl/lopez/internal/lcd"
	"github.com/lopezcrawl/lopez/internal/stdlib"
	"github.com/lopezcrawl/lopez/internal/value"
	"github.com/lopezcrawl/lopez/pkg/backend"
	"github.com/lopezcrawl/lopez/pkg/backend/memstore"
	"github.com/lopezcrawl/lopez/pkg/fetcher"
)

func mustCompile(t *testing.T, src string) *directives.Directives {
	t.Helper()
	prog, err := lcd.Parse(src)
	if err != nil {
		t.Fatalf("lcd.Parse: %v", err)
	}
	d, err := directives.Compile(prog, stdlib.Empty())
	if err != nil {
		t.Fatalf("directives.Compile: %v", err)
	}
	return d
}

func TestRunCrawlsLinkedPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/child">child</a></body></html>`)
	})
	mux.HandleFunc("/child", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>leaf</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src := fmt.Sprintf(`
		allow "^%s/";
		seed "%s/";
		set quota = 10;
		set batch_size = 4;
		set max_hits_per_sec = 50;
		set request_timeout = 5;
	`, srv.URL, srv.URL)
	d := mustCompile(t, src)

	be := memstore.New()
	f := fetcher.NewHTTP()
	e := New(d, be, f, WithWorkers(2))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Run(ctx, "test-wave"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	waveID, err := be.EnsureWave(ctx, "test-wave")
	if err != nil {
		t.Fatalf("EnsureWave: %v", err)
	}
	crawled, err := be.CountCrawled(ctx, waveID)
	if err != nil {
		t.Fatalf("CountCrawled: %v", err)
	}
	if crawled != 2 {
		t.Errorf("CountCrawled = %d, want 2", crawled)
	}

	var edges int
	err = be.IterateLinkage(ctx, waveID, func(from, to uint64) error {
		edges++
		return nil
	})
	if err != nil {
		t.Fatalf("IterateLinkage: %v", err)
	}
	if edges != 1 {
		t.Errorf("ahref edges = %d, want 1", edges)
	}

	taken, err := be.ExistsTaken(ctx, waveID)
	if err != nil {
		t.Fatalf("ExistsTaken: %v", err)
	}
	if taken {
		t.Error("expected no taken rows after Run returns")
	}
}

func TestRunRespectsQuota(t *testing.T) {
	var hits int
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><a href="/page%d">next</a></body></html>`, hits)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>leaf</body></html>`)
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			mux.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>leaf</body></html>`)
	}))
	defer srv.Close()

	src := fmt.Sprintf(`
		allow "^%s/";
		seed "%s/";
		set quota = 1;
		set batch_size = 4;
		set max_hits_per_sec = 50;
		set request_timeout = 5;
	`, srv.URL, srv.URL)
	d := mustCompile(t, src)

	be := memstore.New()
	f := fetcher.NewHTTP()
	e := New(d, be, f, WithWorkers(2))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Run(ctx, "quota-wave"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	waveID, err := be.EnsureWave(ctx, "quota-wave")
	if err != nil {
		t.Fatalf("EnsureWave: %v", err)
	}
	crawled, err := be.CountCrawled(ctx, waveID)
	if err != nil {
		t.Fatalf("CountCrawled: %v", err)
	}
	if crawled != 1 {
		t.Errorf("CountCrawled = %d, want 1 (quota = 1)", crawled)
	}
}

var _ backend.Backend = (*memstore.Store)(nil)

// recordingBackend wraps a real Store and records every Close call's
// arguments, so tests can assert on the exact statusCode/analyses a page
// was closed with without needing a Backend.Get-style read API.
type recordingBackend struct {
	*memstore.Store
	mu     sync.Mutex
	closes map[uint64]closeCall
}

type closeCall struct {
	statusCode int
	analyses   map[string]value.Value
	linkage    []backend.LinkageEdge
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{Store: memstore.New(), closes: make(map[uint64]closeCall)}
}

func (r *recordingBackend) Close(ctx context.Context, waveID uint64, pageID uint64, statusCode int, linkage []backend.LinkageEdge, analyses map[string]value.Value) error {
	r.mu.Lock()
	r.closes[pageID] = closeCall{statusCode: statusCode, analyses: analyses, linkage: linkage}
	r.mu.Unlock()
	return r.Store.Close(ctx, waveID, pageID, statusCode, linkage, analyses)
}

// TestRunClosesRedirectOriginWithOwnStatus reproduces §8's worked example:
// a seed that 301-redirects to a second page which returns 200 must close
// with its own 301 and no analyses, while the target page is separately
// crawled and closes 200 with its own analyses.
func TestRunClosesRedirectOriginWithOwnStatus(t *testing.T) {
	var targetURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, targetURL, http.StatusMovedPermanently)
	})
	mux.HandleFunc("/y", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>landed</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	targetURL = srv.URL + "/y"

	src := fmt.Sprintf(`
		allow "^%s/";
		seed "%s/x";
		set quota = 10;
		set batch_size = 4;
		set max_hits_per_sec = 50;
		set request_timeout = 5;
	`, srv.URL, srv.URL)
	d := mustCompile(t, src)

	be := newRecordingBackend()
	f := fetcher.NewHTTP()
	e := New(d, be, f, WithWorkers(2))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Run(ctx, "redirect-wave"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	waveID, err := be.EnsureWave(ctx, "redirect-wave")
	if err != nil {
		t.Fatalf("EnsureWave: %v", err)
	}
	crawled, err := be.CountCrawled(ctx, waveID)
	if err != nil {
		t.Fatalf("CountCrawled: %v", err)
	}
	if crawled != 2 {
		t.Fatalf("CountCrawled = %d, want 2", crawled)
	}

	ids, err := be.EnsurePages(ctx, []string{srv.URL + "/x", targetURL})
	if err != nil {
		t.Fatalf("EnsurePages: %v", err)
	}
	originID, targetID := ids[0], ids[1]

	be.mu.Lock()
	originClose, ok := be.closes[originID]
	be.mu.Unlock()
	if !ok {
		t.Fatalf("origin page %d never closed", originID)
	}
	if originClose.statusCode != http.StatusMovedPermanently {
		t.Errorf("origin status = %d, want 301", originClose.statusCode)
	}
	if len(originClose.analyses) != 0 {
		t.Errorf("origin analyses = %+v, want none", originClose.analyses)
	}

	be.mu.Lock()
	targetClose, ok := be.closes[targetID]
	be.mu.Unlock()
	if !ok {
		t.Fatalf("target page %d never closed", targetID)
	}
	if targetClose.statusCode != http.StatusOK {
		t.Errorf("target status = %d, want 200", targetClose.statusCode)
	}
}

// TestRunRobotsDisallowedLinkRecordsExtAhref reproduces §4.G's rule order
// step 4: an in-boundary link disallowed by robots.txt must still produce
// an ext_ahref linkage edge, not be silently dropped, and must not be
// enqueued.
func TestRunRobotsDisallowedLinkRecordsExtAhref(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/private/x">no</a><a href="/public/x">yes</a></body></html>`)
	})
	mux.HandleFunc("/private/x", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>private</body></html>`)
	})
	mux.HandleFunc("/public/x", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>public</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src := fmt.Sprintf(`
		allow "^%s/";
		seed "%s/";
		set quota = 10;
		set batch_size = 4;
		set max_hits_per_sec = 50;
		set request_timeout = 5;
	`, srv.URL, srv.URL)
	d := mustCompile(t, src)

	be := newRecordingBackend()
	f := fetcher.NewHTTP()
	e := New(d, be, f, WithWorkers(2))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Run(ctx, "robots-wave"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	waveID, err := be.EnsureWave(ctx, "robots-wave")
	if err != nil {
		t.Fatalf("EnsureWave: %v", err)
	}

	// The private page must never be fetched: it was disallowed and so
	// never enqueued. Only the seed and /public/x are crawled.
	crawled, err := be.CountCrawled(ctx, waveID)
	if err != nil {
		t.Fatalf("CountCrawled: %v", err)
	}
	if crawled != 2 {
		t.Errorf("CountCrawled = %d, want 2 (seed + public page only)", crawled)
	}

	ids, err := be.EnsurePages(ctx, []string{srv.URL + "/", srv.URL + "/private/x"})
	if err != nil {
		t.Fatalf("EnsurePages: %v", err)
	}
	seedID, privateID := ids[0], ids[1]

	be.mu.Lock()
	seedClose, ok := be.closes[seedID]
	be.mu.Unlock()
	if !ok {
		t.Fatalf("seed page %d never closed", seedID)
	}

	var sawExtAhrefToPrivate bool
	for _, edge := range seedClose.linkage {
		if edge.To == privateID {
			if edge.Reason != backend.ReasonExtAHref {
				t.Errorf("private link reason = %v, want ReasonExtAHref", edge.Reason)
			}
			sawExtAhrefToPrivate = true
		}
	}
	if !sawExtAhrefToPrivate {
		t.Error("expected an ext_ahref linkage edge to the robots-disallowed page")
	}

	be.mu.Lock()
	_, privateClosed := be.closes[privateID]
	be.mu.Unlock()
	if privateClosed {
		t.Error("robots-disallowed page should never have been fetched/closed")
	}
}
