package analyzer

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/lopezcrawl/lopez/internal/lcd"
	"github.com/lopezcrawl/lopez/internal/value"
)

// evalInner evaluates one extractor expression (leaf or call) against n and
// applies its own trailing transformer chain. It does not honor
// e.Explode: that flag only has meaning to the aggregator consuming e
// directly, which reads it itself (see explodeValues in aggregator.go).
func evalInner(n *html.Node, e *lcd.Expr, c *Compiled) value.Value {
	v := evalExtractor(n, e, c)
	return applyChain(v, e.Chain, c)
}

// evalExtractor computes the raw extractor result for n, before e's own
// transformer chain is applied (§4.D).
func evalExtractor(n *html.Node, e *lcd.Expr, c *Compiled) value.Value {
	switch e.Kind {
	case lcd.ExtractorLeaf:
		return evalLeaf(n, e)
	case lcd.ExtractorCall:
		return evalCall(n, e, c)
	default:
		return value.Null
	}
}

func evalLeaf(n *html.Node, e *lcd.Expr) value.Value {
	switch e.Name {
	case "name":
		if n.Type != html.ElementNode {
			return value.Null
		}
		return value.String(strings.ToLower(n.Data))
	case "text":
		return value.String(nodeText(n))
	case "html":
		return value.String(nodeOuterHTML(n))
	case "inner-html":
		return value.String(nodeInnerHTML(n))
	case "attrs":
		if n.Type != html.ElementNode {
			return value.Null
		}
		pairs := make([]value.Pair, 0, len(n.Attr))
		for _, a := range n.Attr {
			pairs = append(pairs, value.Pair{Key: a.Key, Value: value.String(a.Val)})
		}
		return value.Object(pairs...)
	case "classes":
		classes := nodeClasses(n)
		vals := make([]value.Value, len(classes))
		for i, cl := range classes {
			vals[i] = value.String(cl)
		}
		return value.ArrayFrom(vals)
	case "id":
		v, ok := nodeAttr(n, "id")
		if !ok {
			return value.Null
		}
		return value.String(v)
	case "attr":
		key, ok := e.Value.String()
		if !ok {
			return value.Null
		}
		v, ok := nodeAttr(n, key)
		if !ok {
			return value.Null
		}
		return value.String(v)
	default:
		return value.Null
	}
}

func evalCall(n *html.Node, e *lcd.Expr, c *Compiled) value.Value {
	switch e.Name {
	case "parent":
		if n.Parent == nil {
			return value.Null
		}
		return evalInner(n.Parent, e.Args[0], c)

	case "children":
		kids := nodeElementChildren(n)
		vals := make([]value.Value, len(kids))
		for i, k := range kids {
			vals[i] = evalInner(k, e.Args[0], c)
		}
		return value.ArrayFrom(vals)

	case "select-any":
		sel := c.selectors[unquote(e.Selector)]
		if sel == nil {
			return value.Null
		}
		matches := descendantMatches(sel, n)
		if len(matches) == 0 {
			return value.Null
		}
		return evalInner(matches[0], e.Args[0], c)

	case "select-all":
		sel := c.selectors[unquote(e.Selector)]
		if sel == nil {
			return value.ArrayFrom(nil)
		}
		matches := descendantMatches(sel, n)
		vals := make([]value.Value, len(matches))
		for i, m := range matches {
			vals[i] = evalInner(m, e.Args[0], c)
		}
		return value.ArrayFrom(vals)

	default:
		return value.Null
	}
}
