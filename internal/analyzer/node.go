package analyzer

import (
	"bytes"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// matchAllNodes runs sel over root and every descendant, in document order.
// Used for a RuleSet's top-level selector, where root is the document node
// itself and can never match an element selector.
func matchAllNodes(sel cascadia.Selector, root *html.Node) []*html.Node {
	return sel.MatchAll(root)
}

// descendantMatches runs sel over n's descendants only, excluding n itself,
// matching the extractor semantics of select-any/select-all (§4.D).
func descendantMatches(sel cascadia.Selector, n *html.Node) []*html.Node {
	all := sel.MatchAll(n)
	out := make([]*html.Node, 0, len(all))
	for _, m := range all {
		if m != n {
			out = append(out, m)
		}
	}
	return out
}

func nodeElementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func nodeAttr(n *html.Node, key string) (string, bool) {
	if n.Type != html.ElementNode {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func nodeClasses(n *html.Node) []string {
	v, ok := nodeAttr(n, "class")
	if !ok {
		return nil
	}
	return strings.Fields(v)
}

// nodeText concatenates every descendant text node's data and collapses
// whitespace, per the `text` extractor (§4.D).
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// nodeOuterHTML renders n and its subtree, backing the `html` extractor.
func nodeOuterHTML(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

// nodeInnerHTML renders n's children only, backing `inner-html`.
func nodeInnerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}
