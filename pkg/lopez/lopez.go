package lopez

import (
	"context"
	"errors"
	"fmt"

	"github.com/lopezcrawl/lopez/internal/directives"
	"github.com/lopezcrawl/lopez/internal/engine"
	"github.com/lopezcrawl/lopez/internal/lcd"
	"github.com/lopezcrawl/lopez/internal/pagerank"
	"github.com/lopezcrawl/lopez/internal/stdlib"
	"github.com/lopezcrawl/lopez/pkg/fetcher"
)

// ErrBackendRequired is returned by New when no Backend was injected via
// WithBackend.
var ErrBackendRequired = errors.New("lopez: a Backend is required (use WithBackend)")

// Lopez is the library entry point: compile a Crawl Directives program,
// then run it as a wave.
type Lopez struct {
	cfg Config
}

// New creates a Lopez instance. A Backend must be supplied via WithBackend;
// Fetcher defaults to an HTTPFetcher if not injected via WithFetcher.
func New(opts ...Option) (*Lopez, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Backend == nil {
		return nil, ErrBackendRequired
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = fetcher.NewHTTP()
	}
	return &Lopez{cfg: cfg}, nil
}

// Compile parses and compiles an LCD program (§4.B, §4.C), resolving any
// `import` declarations against resolver. Pass stdlib.Empty() when the
// program imports nothing. This is also the library surface behind the
// `test-directives` CLI command (§6, §12 supplemented feature): a caller
// that only wants compile diagnostics, with no engine run, calls Compile
// directly.
func Compile(src string, resolver *stdlib.Resolver) (*directives.Directives, error) {
	prog, err := lcd.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("lopez: parsing directives: %w", err)
	}
	if resolver == nil {
		resolver = stdlib.Empty()
	}
	d, err := directives.Compile(prog, resolver)
	if err != nil {
		return nil, fmt.Errorf("lopez: compiling directives: %w", err)
	}
	return d, nil
}

// Run compiles src and runs it as waveName to termination (§4.I
// "Termination"), blocking until the wave completes, ctx is canceled (after
// the shutdown-grace drain), or a fatal backend error occurs.
func (l *Lopez) Run(ctx context.Context, waveName, src string, resolver *stdlib.Resolver) error {
	d, err := Compile(src, resolver)
	if err != nil {
		return err
	}
	return l.RunDirectives(ctx, waveName, d)
}

// RunDirectives runs an already-compiled Directives bundle as waveName.
// Useful when a caller wants to inspect or validate the compiled policy
// before starting the crawl.
func (l *Lopez) RunDirectives(ctx context.Context, waveName string, d *directives.Directives) error {
	var opts []engine.Option
	if l.cfg.Workers > 0 {
		opts = append(opts, engine.WithWorkers(l.cfg.Workers))
	}
	if l.cfg.ShutdownGrace > 0 {
		opts = append(opts, engine.WithShutdownGrace(l.cfg.ShutdownGrace))
	}
	e := engine.New(d, l.cfg.Backend, l.cfg.Fetcher, opts...)
	return e.Run(ctx, waveName)
}

// RemoveWave deletes a wave's status/linkage/analysis rows by name and
// returns the number of status rows it held; the global page table is left
// as it is. Backs the `remove-wave` CLI command (§6).
func (l *Lopez) RemoveWave(ctx context.Context, waveName string) (pagesDeleted int, err error) {
	_, n, err := l.cfg.Backend.DeleteWave(ctx, waveName)
	return n, err
}

// PageRank runs the post-crawl PageRank batch job (§3, §12 supplemented
// feature) against an already-crawled wave and commits the result. Backs
// the `page-rank` CLI command (§6).
func (l *Lopez) PageRank(ctx context.Context, waveName string) (map[uint64]float64, error) {
	waveID, err := l.cfg.Backend.EnsureWave(ctx, waveName)
	if err != nil {
		return nil, err
	}
	return pagerank.Run(ctx, l.cfg.Backend, waveID, pagerank.DefaultOptions())
}

// Close releases the injected Fetcher and Backend's held resources (file
// handles, browser processes, connections).
func (l *Lopez) Close() error {
	var errs []error
	if l.cfg.Fetcher != nil {
		if err := l.cfg.Fetcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if l.cfg.Backend != nil {
		if err := l.cfg.Backend.CloseBackend(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
