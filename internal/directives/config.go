package directives

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lopezcrawl/lopez/internal/version"
)

// Config is the compiled run-level variable environment (§4.C.5): every
// `set name = literal;` in the program, type-checked against this closed
// schema and defaulted where absent. The struct tags are the schema itself,
// enforced by validate at the end of Compile.
type Config struct {
	// Quota is the global page budget; 0 means unlimited (§4.I "Quota").
	Quota int `validate:"gte=0"`
	// MaxDepth bounds frontier expansion; 0 means seeds only.
	MaxDepth int `validate:"gte=0"`
	// BatchSize is B, the number of URLs pulled per engine tick (§4.I).
	BatchSize int `validate:"gte=1"`
	// MaxHitsPerSec is the per-origin token bucket's refill rate (§4.H).
	MaxHitsPerSec float64 `validate:"gt=0"`
	// UserAgent is sent on every outbound fetch and robots.txt lookup.
	UserAgent string `validate:"required"`
	// RequestTimeout bounds a single fetch (§4.I.3, §4.I "Cancellation").
	RequestTimeout time.Duration `validate:"gt=0"`
	// MaxBodySize bounds the decoded response body kept for a fetch.
	MaxBodySize int64 `validate:"gt=0"`
	// DiversityPoolFactor sizes the diversity-aware batch-selection
	// candidate pool as DiversityPoolFactor*BatchSize (§4.I "Batch
	// selection"); defaults to 10 when unset (see DESIGN.md Open Question
	// decisions).
	DiversityPoolFactor int `validate:"gte=1"`
}

// DefaultConfig returns the documented defaults for every variable the
// program doesn't `set` explicitly (§4.C.5 "Missing values take documented
// defaults").
func DefaultConfig() Config {
	return Config{
		Quota:               0,
		MaxDepth:            10,
		BatchSize:           50,
		MaxHitsPerSec:       1.0,
		UserAgent:           version.UserAgent(),
		RequestTimeout:      30 * time.Second,
		MaxBodySize:         10 * 1024 * 1024,
		DiversityPoolFactor: 10,
	}
}

var configValidator = validator.New()

func validateConfig(c Config) error {
	return configValidator.Struct(c)
}
