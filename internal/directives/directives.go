// Package directives compiles a parsed LCD program into an immutable,
// concurrency-safe Directives bundle (§4.C): resolved imports, compiled
// boundary policy, run-level configuration, seeds, and the compiled
// analyzer program. Nothing in a Directives is ever mutated after Compile
// returns, so it is shared by reference across every engine worker with no
// locking (§9 "Directives as an immutable compiled object").
package directives

import (
	"fmt"
	"regexp"
	"time"

	"github.com/lopezcrawl/lopez/internal/analyzer"
	"github.com/lopezcrawl/lopez/internal/boundary"
	"github.com/lopezcrawl/lopez/internal/lcd"
	"github.com/lopezcrawl/lopez/internal/logger"
	"github.com/lopezcrawl/lopez/internal/stdlib"
)

// Directives is the full compiled program (§4.C "Output").
type Directives struct {
	Policy   *boundary.Policy
	Seeds    []string
	Config   Config
	Analyzer *analyzer.Compiled
}

// ImportNotFoundError reports an `import "path"` whose path isn't
// registered in the stdlib.Resolver passed to Compile.
type ImportNotFoundError struct {
	Span lcd.Span
	Path string
}

func (e *ImportNotFoundError) Error() string {
	return fmt.Sprintf("%s: unresolved import %q", e.Span, e.Path)
}
func (e *ImportNotFoundError) ErrSpan() lcd.Span { return e.Span }

// Compile runs the full §4.C pipeline over prog, resolving imports through
// resolver. resolver may be stdlib.Empty() for a program with no imports.
func Compile(prog *lcd.Program, resolver *stdlib.Resolver) (*Directives, error) {
	merged, err := resolveImports(prog, resolver)
	if err != nil {
		return nil, err
	}

	policy, err := compileBoundary(merged)
	if err != nil {
		return nil, err
	}

	if err := checkDuplicateRules(merged); err != nil {
		return nil, err
	}

	compiledAnalyzer, err := analyzer.Compile(merged)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	for _, d := range merged.Decls {
		sd, ok := d.(*lcd.SetDecl)
		if !ok {
			continue
		}
		if err := applySet(&cfg, sd); err != nil {
			return nil, err
		}
	}
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("directives: invalid configuration: %w", err)
	}

	var seeds []string
	for _, d := range merged.Decls {
		if sd, ok := d.(*lcd.SeedDecl); ok {
			seeds = append(seeds, sd.URL)
		}
	}

	logger.Debug("directives compiled",
		"rule_sets", len(compiledAnalyzer.RuleSets),
		"seeds", len(seeds),
		"allow", len(policy.Allow),
		"disallow", len(policy.Disallow),
		"frontier", len(policy.Frontier),
	)

	return &Directives{
		Policy:   policy,
		Seeds:    seeds,
		Config:   cfg,
		Analyzer: compiledAnalyzer,
	}, nil
}

// resolveImports walks prog depth-first, inlining every `import "path"` via
// resolver in place and detecting cycles along the current import chain
// (§4.C.1). A path imported more than once via separate branches (a
// "diamond" import) is inlined only on first encounter.
func resolveImports(prog *lcd.Program, resolver *stdlib.Resolver) (*lcd.Program, error) {
	merged := &lcd.Program{}
	seen := make(map[string]bool)

	var visit func(p *lcd.Program, stack []string) error
	visit = func(p *lcd.Program, stack []string) error {
		for _, d := range p.Decls {
			imp, ok := d.(*lcd.ImportDecl)
			if !ok {
				merged.Decls = append(merged.Decls, d)
				continue
			}
			for _, s := range stack {
				if s == imp.Path {
					return &ImportCycleError{Span: imp.Span, Chain: append(append([]string{}, stack...), imp.Path)}
				}
			}
			if seen[imp.Path] {
				continue
			}
			src, ok := resolver.Resolve(imp.Path)
			if !ok {
				return &ImportNotFoundError{Span: imp.Span, Path: imp.Path}
			}
			seen[imp.Path] = true
			sub, err := lcd.Parse(src)
			if err != nil {
				return fmt.Errorf("directives: parsing import %q: %w", imp.Path, err)
			}
			if err := visit(sub, append(stack, imp.Path)); err != nil {
				return err
			}
		}
		return nil
	}

	if err := visit(prog, nil); err != nil {
		return nil, err
	}
	return merged, nil
}

// compileBoundary compiles every allow/disallow/frontier regex and builds
// the parameter policy (§4.C.2, §4.C.6).
func compileBoundary(prog *lcd.Program) (*boundary.Policy, error) {
	policy := boundary.NewPolicy()
	paramAllow := make(map[string]bool)
	paramIgnore := make(map[string]bool)
	allParams := false

	for _, d := range prog.Decls {
		bd, ok := d.(*lcd.BoundaryDecl)
		if !ok {
			continue
		}
		switch bd.Kind {
		case lcd.BoundaryAllow, lcd.BoundaryDisallow, lcd.BoundaryFrontier:
			re, err := regexp.Compile(bd.Pattern)
			if err != nil {
				return nil, &InvalidPatternError{Span: bd.Span, Msg: fmt.Sprintf("invalid %s pattern %q: %v", bd.Kind, bd.Pattern, err)}
			}
			switch bd.Kind {
			case lcd.BoundaryAllow:
				policy.Allow = append(policy.Allow, re)
			case lcd.BoundaryDisallow:
				policy.Disallow = append(policy.Disallow, re)
			case lcd.BoundaryFrontier:
				policy.Frontier = append(policy.Frontier, re)
			}
		case lcd.BoundaryUseParam:
			if bd.AllParams {
				allParams = true
			} else {
				paramAllow[bd.Pattern] = true
			}
		case lcd.BoundaryIgnoreParam:
			paramIgnore[bd.Pattern] = true
		}
	}

	params := boundary.ParamPolicy{AllParams: allParams, Ignore: paramIgnore}
	if !allParams {
		params.Allow = paramAllow
	}
	policy.Params = params
	return policy, nil
}

// checkDuplicateRules enforces that a rule name appears at most once across
// every RuleSet in the program (§4.C.4).
func checkDuplicateRules(prog *lcd.Program) error {
	seen := make(map[string]bool)
	for _, d := range prog.Decls {
		rs, ok := d.(*lcd.RuleSet)
		if !ok {
			continue
		}
		for _, r := range rs.Rules {
			if seen[r.Name] {
				return &DuplicateRuleError{Span: r.Span, Name: r.Name}
			}
			seen[r.Name] = true
		}
	}
	return nil
}

// applySet type-checks one `set name = literal;` against the closed
// variable schema and assigns it onto cfg (§4.C.5).
func applySet(cfg *Config, d *lcd.SetDecl) error {
	asNumber := func() (float64, error) {
		n, ok := d.Literal.Number()
		if !ok {
			return 0, &InvalidVariableError{Span: d.Span, Name: d.Name, Msg: "expected a number"}
		}
		return n, nil
	}

	switch d.Name {
	case "quota":
		n, err := asNumber()
		if err != nil {
			return err
		}
		cfg.Quota = int(n)
	case "max_depth":
		n, err := asNumber()
		if err != nil {
			return err
		}
		cfg.MaxDepth = int(n)
	case "batch_size":
		n, err := asNumber()
		if err != nil {
			return err
		}
		cfg.BatchSize = int(n)
	case "max_hits_per_sec":
		n, err := asNumber()
		if err != nil {
			return err
		}
		cfg.MaxHitsPerSec = n
	case "user_agent":
		s, ok := d.Literal.String()
		if !ok {
			return &InvalidVariableError{Span: d.Span, Name: d.Name, Msg: "expected a string"}
		}
		cfg.UserAgent = s
	case "request_timeout":
		n, err := asNumber()
		if err != nil {
			return err
		}
		cfg.RequestTimeout = time.Duration(n * float64(time.Second))
	case "max_body_size":
		n, err := asNumber()
		if err != nil {
			return err
		}
		cfg.MaxBodySize = int64(n)
	default:
		return &UnknownVariableError{Span: d.Span, Name: d.Name}
	}
	return nil
}
