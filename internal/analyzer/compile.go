// Package analyzer implements the tree-walking extractor/transformer/
// aggregator evaluator (§4.D-F). Compile turns a parsed lcd.Program's rule
// sets into a Compiled bundle holding pre-parsed CSS selectors and
// pre-compiled regexes, shared by reference across workers with no
// synchronization (§9). Evaluate runs that bundle against one page's DOM;
// it never panics past its own boundary — every transformer error or type
// mismatch collapses to value.Null (§7, §8 analyzer totality).
package analyzer

import (
	"fmt"
	"regexp"

	"github.com/andybalholm/cascadia"

	"github.com/lopezcrawl/lopez/internal/lcd"
)

// CompileError is a directives compile-time failure: an invalid selector or
// regex discovered while compiling a RuleSet. It satisfies lcd.ParseError.
type CompileError struct {
	Span lcd.Span
	Msg  string
}

func (e *CompileError) Error() string    { return fmt.Sprintf("%s: %s", e.Span, e.Msg) }
func (e *CompileError) ErrSpan() lcd.Span { return e.Span }

// RuleSet is one compiled `select ...  { ... }` block.
type RuleSet struct {
	HasIn    bool
	InRegex  *regexp.Regexp
	Selector cascadia.Selector
	Rules    []Rule
}

// Rule is one compiled `name: <aggregator-expression>` member.
type Rule struct {
	Name string
	Body *lcd.Expr
}

// Compiled is the full analyzer program: every RuleSet plus every selector
// and regex referenced anywhere inside them (including nested select-any/
// select-all calls and capture/matches/replace transformers), pre-compiled
// once so no worker ever calls regexp.Compile or cascadia.Compile at
// analysis time.
type Compiled struct {
	RuleSets  []RuleSet
	selectors map[string]cascadia.Selector
	regexes   map[string]*regexp.Regexp
}

// Compile walks every RuleSet decl in prog and compiles it (§4.F).
func Compile(prog *lcd.Program) (*Compiled, error) {
	c := &Compiled{
		selectors: make(map[string]cascadia.Selector),
		regexes:   make(map[string]*regexp.Regexp),
	}
	for _, d := range prog.Decls {
		rs, ok := d.(*lcd.RuleSet)
		if !ok {
			continue
		}
		compiled, err := c.compileRuleSet(rs)
		if err != nil {
			return nil, err
		}
		c.RuleSets = append(c.RuleSets, compiled)
	}
	return c, nil
}

func (c *Compiled) compileRuleSet(rs *lcd.RuleSet) (RuleSet, error) {
	out := RuleSet{HasIn: rs.HasIn}
	if rs.HasIn {
		re, err := regexp.Compile(rs.InRegex)
		if err != nil {
			return out, &CompileError{Span: rs.Span, Msg: fmt.Sprintf("invalid select-in pattern %q: %v", rs.InRegex, err)}
		}
		out.InRegex = re
	}
	sel, err := c.selector(rs.Selector, rs.Span)
	if err != nil {
		return out, err
	}
	out.Selector = sel

	for _, r := range rs.Rules {
		if err := c.walkExpr(r.Body); err != nil {
			return out, err
		}
		out.Rules = append(out.Rules, Rule{Name: r.Name, Body: r.Body})
	}
	return out, nil
}

// walkExpr recursively compiles every selector and regex literal reachable
// from e, regardless of how deeply it is nested in extractor calls,
// transformer chains, or aggregator args.
func (c *Compiled) walkExpr(e *lcd.Expr) error {
	if e == nil {
		return nil
	}
	if e.Selector != "" {
		if _, err := c.selector(unquote(e.Selector), e.Span); err != nil {
			return err
		}
	}
	switch e.Name {
	case "capture", "all-captures", "matches":
		if s, ok := e.Value.String(); ok {
			if _, err := c.regex(s, e.Span); err != nil {
				return err
			}
		}
	case "replace":
		if arr, ok := e.Value.Array(); ok && len(arr) == 2 {
			if s, ok := arr[0].String(); ok {
				if _, err := c.regex(s, e.Span); err != nil {
					return err
				}
			}
		}
	}
	for _, a := range e.Args {
		if err := c.walkExpr(a); err != nil {
			return err
		}
	}
	for _, t := range e.Chain {
		if err := c.walkExpr(t); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiled) selector(raw string, span lcd.Span) (cascadia.Selector, error) {
	text := unquote(raw)
	if sel, ok := c.selectors[text]; ok {
		return sel, nil
	}
	sel, err := cascadia.Compile(text)
	if err != nil {
		return nil, &CompileError{Span: span, Msg: fmt.Sprintf("invalid CSS selector %q: %v", text, err)}
	}
	c.selectors[text] = sel
	return sel, nil
}

func (c *Compiled) regex(pattern string, span lcd.Span) (*regexp.Regexp, error) {
	if re, ok := c.regexes[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &CompileError{Span: span, Msg: fmt.Sprintf("invalid regular expression %q: %v", pattern, err)}
	}
	c.regexes[pattern] = re
	return re, nil
}

// unquote strips a pair of surrounding double quotes that
// parser.captureSelectorUntil preserves verbatim when the "selector" is
// actually a plain string literal (select-any/select-all's second
// argument, lexed as a STRING token).
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
