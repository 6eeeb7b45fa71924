// Package lopez provides the public, embeddable entry point to the crawler:
// compile a Crawl Directives program, then run it as a wave against an
// injected Backend and Fetcher, via a functional-options facade
// (Config/Option/DefaultConfig/New).
package lopez

import (
	"io"
	"log/slog"
	"time"

	"github.com/lopezcrawl/lopez/internal/logger"
	"github.com/lopezcrawl/lopez/pkg/backend"
	"github.com/lopezcrawl/lopez/pkg/fetcher"
)

// Config holds Lopez's injectable dependencies and scheduler tuning.
type Config struct {
	// Backend is required: the persistence layer a wave runs against.
	Backend backend.Backend
	// Fetcher is optional; defaults to fetcher.NewHTTP().
	Fetcher fetcher.Fetcher

	Workers       int
	ShutdownGrace time.Duration
}

// DefaultConfig returns Lopez's defaults; Workers left at 0 means
// engine.defaultWorkers() picks max(8, 2*NumCPU) (§5).
func DefaultConfig() Config {
	return Config{
		ShutdownGrace: 30 * time.Second,
	}
}

// Option configures a Lopez instance.
type Option func(*Config)

// WithBackend injects the persistence layer. Required.
func WithBackend(be backend.Backend) Option {
	return func(c *Config) { c.Backend = be }
}

// WithFetcher injects a pre-configured Fetcher (e.g. a HeadlessFetcher for
// JS-rendered sites, §4.J). Defaults to an HTTPFetcher.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(c *Config) { c.Fetcher = f }
}

// WithWorkers overrides the engine's worker pool size (§5).
func WithWorkers(n int) Option {
	return func(c *Config) { c.Workers = n }
}

// WithShutdownGrace overrides the grace period given to in-flight pages on
// cancellation (§5 "Cancellation & timeouts").
func WithShutdownGrace(d time.Duration) Option {
	return func(c *Config) { c.ShutdownGrace = d }
}

// SetLogger sets a custom slog.Logger for the Lopez library. This is a
// process-wide setting; call it once at startup.
func SetLogger(l *slog.Logger) {
	logger.SetLogger(l)
}

// SetDebugLogging toggles debug-level logging for the Lopez library.
func SetDebugLogging(enabled bool) {
	level := logger.Options{Debug: enabled}
	logger.Init(level)
}

// SetLogOutput redirects Lopez's logger to a custom writer.
func SetLogOutput(output io.Writer, debug bool, jsonFormat bool) {
	logger.Init(logger.Options{
		Debug:  debug,
		JSON:   jsonFormat,
		Output: output,
	})
}
