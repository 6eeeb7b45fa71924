// Package engine implements the crawl state machine and scheduler (§4.I,
// §5): the open→taken→closed/error lifecycle, diversity-aware batching,
// quota enforcement, and the per-page fetch/analyze/commit pipeline. The
// worker pool uses channel-bounded concurrency with a WaitGroup draining
// in-flight work on shutdown, generalized to Lopez's Backend-owned
// open/taken/closed state rather than a single in-process URL queue.
package engine

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lopezcrawl/lopez/internal/directives"
	"github.com/lopezcrawl/lopez/internal/logger"
	"github.com/lopezcrawl/lopez/internal/ratelimit"
	"github.com/lopezcrawl/lopez/pkg/backend"
	"github.com/lopezcrawl/lopez/pkg/fetcher"
)

// pollInterval paces the scheduler's tick when there is no headroom to
// dispatch more work and no in-flight work to wait on; it is not a suspension
// point in the sense of §5 (no fetch/backend/rate-limit operation is
// blocked), just the loop's own idle cadence.
const pollInterval = 50 * time.Millisecond

// Engine runs one wave to completion.
type Engine struct {
	backend       backend.Backend
	fetcher       fetcher.Fetcher
	directives    *directives.Directives
	limiter       *ratelimit.Limiter
	workers       int
	shutdownGrace time.Duration
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithWorkers overrides the default worker pool size (§5 "Scheduling
// model", default max(8, 2*num_cpus)).
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithShutdownGrace overrides the default 30s grace period in-flight tasks
// are given to finish once the context is canceled (§5 "Cancellation &
// timeouts").
func WithShutdownGrace(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.shutdownGrace = d
		}
	}
}

func defaultWorkers() int {
	n := runtime.NumCPU() * 2
	if n < 8 {
		n = 8
	}
	return n
}

// New builds an Engine for one compiled Directives bundle, backend, and
// fetcher. d, be, and f are shared read-only/concurrency-safe resources
// (§9 "Shared resources"): the Engine never mutates d, and be/f are expected
// to be safe for concurrent use by multiple in-flight tasks.
func New(d *directives.Directives, be backend.Backend, f fetcher.Fetcher, opts ...Option) *Engine {
	e := &Engine{
		backend:       be,
		fetcher:       f,
		directives:    d,
		limiter:       ratelimit.New(d.Config.MaxHitsPerSec),
		workers:       defaultWorkers(),
		shutdownGrace: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one wave to termination (§4.I "Termination"): no `taken`
// rows remain AND no `open` rows with depth ≤ max_depth remain, OR the
// quota is reached and no `taken` rows remain. Run blocks until the wave
// terminates, ctx is canceled and the shutdown grace period elapses, or a
// fatal backend error occurs (§7 "BackendFatal").
func (e *Engine) Run(ctx context.Context, waveName string) error {
	waveID, err := e.backend.EnsureWave(ctx, waveName)
	if err != nil {
		return err
	}

	if err := e.Reap(ctx, waveID); err != nil {
		logger.Warn("startup reap failed", "wave", waveName, "error", err)
	}

	if err := e.seedFrontier(ctx, waveID); err != nil {
		return err
	}

	cfg := e.directives.Config
	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	var inFlight int32

	logger.Info("engine starting", "wave", waveName, "workers", e.workers, "quota", cfg.Quota, "batch_size", cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			logger.Info("engine draining on cancellation", "wave", waveName, "grace", e.shutdownGrace)
			return e.drain(&wg, e.shutdownGrace)
		default:
		}

		// Read in-flight before the crawled count: a task commits before it
		// leaves inFlight, so it is counted at least once, never zero times.
		inF := int(atomic.LoadInt32(&inFlight))
		crawled, err := e.backend.CountCrawled(ctx, waveID)
		if err != nil {
			return err
		}
		quotaReached := cfg.Quota > 0 && crawled+inF >= cfg.Quota

		dispatchedEmpty := false
		if !quotaReached && inF < (cfg.BatchSize+1)/2 {
			want := cfg.BatchSize - inF
			if cfg.Quota > 0 {
				if left := cfg.Quota - crawled - inF; left < want {
					want = left
				}
			}
			if want > 0 {
				batch, err := e.backend.FetchBatch(ctx, waveID, want, cfg.MaxDepth, cfg.DiversityPoolFactor)
				if err != nil {
					return err
				}
				if len(batch) == 0 {
					dispatchedEmpty = true
				}
				for _, item := range batch {
					sem <- struct{}{}
					wg.Add(1)
					atomic.AddInt32(&inFlight, 1)
					go func(it backend.BatchItem) {
						defer wg.Done()
						defer func() { <-sem; atomic.AddInt32(&inFlight, -1) }()
						e.processPage(ctx, waveID, it)
					}(item)
				}
			}
		}

		taken, err := e.backend.ExistsTaken(ctx, waveID)
		if err != nil {
			return err
		}
		if atomic.LoadInt32(&inFlight) == 0 && !taken {
			if quotaReached || dispatchedEmpty {
				wg.Wait()
				logger.Info("engine finished", "wave", waveName)
				return nil
			}
		}

		time.Sleep(pollInterval)
	}
}

// Reap flips stale `taken` rows (older than 3x the request timeout, §4.I
// "Termination") back to `open`, recovering from a prior crash that left
// in-flight pages stuck mid-fetch. Called once at Run startup, but exposed
// so an operator can also run it standalone against a wave left over from
// an ungraceful process kill.
func (e *Engine) Reap(ctx context.Context, waveID uint64) error {
	n, err := e.backend.ReapStaleTaken(ctx, waveID, 3*e.directives.Config.RequestTimeout)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("reaped stale taken rows", "wave_id", waveID, "count", n)
	}
	return nil
}

func (e *Engine) drain(wg *sync.WaitGroup, grace time.Duration) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return context.Canceled
	case <-time.After(grace):
		return context.Canceled
	}
}

// seedFrontier registers the Directives' seeds as page_ids and inserts
// `open` status rows at depth 0.
func (e *Engine) seedFrontier(ctx context.Context, waveID uint64) error {
	if len(e.directives.Seeds) == 0 {
		return nil
	}
	ids, err := e.backend.EnsurePages(ctx, e.directives.Seeds)
	if err != nil {
		return err
	}
	seeds := make([]backend.StatusSeed, len(ids))
	for i, id := range ids {
		seeds[i] = backend.StatusSeed{PageID: id, Depth: 0}
	}
	return e.backend.EnsureStatus(ctx, waveID, seeds)
}
