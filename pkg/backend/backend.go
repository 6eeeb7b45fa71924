// Package backend defines the Backend interface (§4.K): the transactional
// persistence surface the crawl engine consumes for pages, waves, status,
// linkage, and per-rule analysis results. Two reference implementations are
// provided: boltstore (embedded, durable) and memstore (in-process, for
// tests and small ad-hoc crawls).
package backend

import (
	"context"
	"time"

	"github.com/lopezcrawl/lopez/internal/siphash"
	"github.com/lopezcrawl/lopez/internal/value"
)

// SearchStatus is a page's position in the §4.I state machine.
type SearchStatus int

const (
	StatusOpen SearchStatus = iota
	StatusTaken
	StatusClosed
	StatusError
)

func (s SearchStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusTaken:
		return "taken"
	case StatusClosed:
		return "closed"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// LinkageReason is §3's `reason` enum for a linkage edge.
type LinkageReason int

const (
	ReasonAHref LinkageReason = iota
	ReasonRedirect
	ReasonCanonical
	ReasonExtAHref
	ReasonExtAHrefNoFollow
)

func (r LinkageReason) String() string {
	switch r {
	case ReasonAHref:
		return "ahref"
	case ReasonRedirect:
		return "redirect"
	case ReasonCanonical:
		return "canonical"
	case ReasonExtAHref:
		return "ext_ahref"
	case ReasonExtAHrefNoFollow:
		return "ext_ahref_no_follow"
	default:
		return "unknown"
	}
}

// PageID derives a page's stable 64-bit identity from its normalized URL
// via SipHash-2-4 under the crawler-wide fixed key (§3), so every Backend
// implementation computes the same id for the same URL without coordination.
func PageID(normalizedURL string) uint64 {
	return siphash.Sum64(siphash.DefaultKey, []byte(normalizedURL))
}

// StatusSeed is one (page_id, depth) pair passed to EnsureStatus.
type StatusSeed struct {
	PageID uint64
	Depth  uint16
}

// BatchItem is one row selected by FetchBatch: the URL to fetch and its
// smallest known depth from a seed.
type BatchItem struct {
	PageID uint64
	URL    string
	Depth  uint16
}

// LinkageEdge is one (from_page, to_page, reason) row committed by Close.
type LinkageEdge struct {
	From   uint64
	To     uint64
	Reason LinkageReason
}

// Backend is the persistence surface the engine consumes (§4.K). All
// operations are scoped to a wave except EnsurePages and PageID, since
// pages are shared globally across waves (§3 "Ownership").
type Backend interface {
	// EnsureWave idempotently creates or fetches a wave by name.
	EnsureWave(ctx context.Context, name string) (waveID uint64, err error)

	// EnsurePages idempotently registers urls in the global page table,
	// returning each url's page_id in the same order.
	EnsurePages(ctx context.Context, urls []string) (pageIDs []uint64, err error)

	// EnsureStatus inserts `open` rows for seeds not already known to the
	// wave. On conflict with an existing row, the insert is a no-op —
	// depth is never lowered in the current design (§9, see DESIGN.md).
	EnsureStatus(ctx context.Context, waveID uint64, seeds []StatusSeed) error

	// FetchBatch atomically flips up to limit `open` rows with depth ≤
	// maxDepth to `taken`, selected by the diversity-aware policy of
	// §4.I "Batch selection" over a candidate pool of poolFactor*limit
	// open rows, and returns their URLs and depths. poolFactor <= 0 falls
	// back to a fixed factor of 10.
	FetchBatch(ctx context.Context, waveID uint64, limit int, maxDepth int, poolFactor int) ([]BatchItem, error)

	// Close commits one page's full pipeline result in a single
	// transaction: upsert linkage, upsert analysis results, transition
	// status to `closed` with statusCode (§4.I step 5).
	Close(ctx context.Context, waveID uint64, pageID uint64, statusCode int, linkage []LinkageEdge, analyses map[string]value.Value) error

	// Error transitions a page to `error`, with a best-known status code
	// or nil when none is available (§4.I step 6).
	Error(ctx context.Context, waveID uint64, pageID uint64, statusCode *int) error

	// CountCrawled returns closed+error for quota enforcement (§4.I
	// "Quota", §9 Open Question decision on `count_crawled`).
	CountCrawled(ctx context.Context, waveID uint64) (int, error)

	// ExistsTaken reports whether any row is still `taken`, used by the
	// engine's termination check (§4.I "Termination").
	ExistsTaken(ctx context.Context, waveID uint64) (bool, error)

	// ReapStaleTaken flips `taken` rows older than age back to `open`,
	// the crash-restart safety pass (§4.I "Termination").
	ReapStaleTaken(ctx context.Context, waveID uint64, age time.Duration) (n int, err error)

	// DeleteWave cascades-deletes a wave's status/linkage/analyses/
	// results and returns the number of status rows the wave held. Rows
	// of the global page table are not removed, even when no wave
	// references them any more.
	DeleteWave(ctx context.Context, name string) (waveID uint64, nPages int, err error)

	// IterateLinkage streams every (from_page, to_page) ahref-reason edge
	// for wave to fn, for the post-crawl page-rank batch job (§12
	// supplemented feature).
	IterateLinkage(ctx context.Context, waveID uint64, fn func(from, to uint64) error) error

	// CommitPageRank writes the page_rank table for wave in one
	// transaction (§12 supplemented feature).
	CommitPageRank(ctx context.Context, waveID uint64, ranks map[uint64]float64) error

	// IterateResults streams every page's committed analysis results for
	// wave to fn, in ascending page_id order, for the `export` CLI
	// command's result-dump (§6, §12 supplemented feature).
	IterateResults(ctx context.Context, waveID uint64, fn func(pageID uint64, url string, analyses map[string]value.Value) error) error

	// CloseBackend releases any held resources (file handles, connections).
	CloseBackend() error
}
