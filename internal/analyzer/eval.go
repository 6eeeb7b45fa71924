package analyzer

import (
	"golang.org/x/net/html"

	"github.com/lopezcrawl/lopez/internal/value"
)

// Evaluate runs every RuleSet in c against one page's parsed DOM, returning
// the union of every Rule's result keyed by rule name (§4.F). root is the
// document node returned by html.Parse. A RuleSet whose `in "regex"` guard
// doesn't match pageURL is skipped entirely.
//
// Evaluate never panics: a recovered panic from any one rule (a pathological
// selector, an unexpected nil) collapses that rule's result to value.Null
// rather than failing the whole page (§7, §8 analyzer totality).
func Evaluate(c *Compiled, pageURL string, root *html.Node) map[string]value.Value {
	results := make(map[string]value.Value)
	for _, rs := range c.RuleSets {
		if rs.HasIn && !rs.InRegex.MatchString(pageURL) {
			continue
		}
		nodes := matchAllNodes(rs.Selector, root)
		for _, r := range rs.Rules {
			results[r.Name] = evalRuleSafely(nodes, r, c)
		}
	}
	return results
}

func evalRuleSafely(nodes []*html.Node, r Rule, c *Compiled) (result value.Value) {
	defer func() {
		if rec := recover(); rec != nil {
			result = value.Null
		}
	}()
	return evalAggregator(nodes, r.Body, c)
}
