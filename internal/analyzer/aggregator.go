package analyzer

import (
	"sort"

	"golang.org/x/net/html"

	"github.com/lopezcrawl/lopez/internal/lcd"
	"github.com/lopezcrawl/lopez/internal/value"
)

// explodeValues evaluates inner against n and, if inner carries the
// `!explode` suffix and the result is an Array, returns its elements;
// otherwise it returns the single result (§4.D "!explode").
func explodeValues(n *html.Node, inner *lcd.Expr, c *Compiled) []value.Value {
	v := evalInner(n, inner, c)
	if inner.Explode {
		if arr, ok := v.Array(); ok {
			return arr
		}
	}
	return []value.Value{v}
}

// evalAggregator folds nodes through agg (§4.F) and applies any trailing
// transformer chain to the aggregate result.
func evalAggregator(nodes []*html.Node, agg *lcd.Expr, c *Compiled) value.Value {
	var result value.Value
	switch agg.Name {
	case "count":
		if len(agg.Args) == 0 {
			result = value.Number(float64(len(nodes)))
			break
		}
		n := 0
		for _, node := range nodes {
			for _, v := range explodeValues(node, agg.Args[0], c) {
				if !v.IsNull() {
					n++
				}
			}
		}
		result = value.Number(float64(n))

	case "first":
		result = value.Null
	outer:
		for _, node := range nodes {
			for _, v := range explodeValues(node, agg.Args[0], c) {
				if !v.IsNull() {
					result = v
					break outer
				}
			}
		}

	case "collect":
		var arr []value.Value
		for _, node := range nodes {
			arr = append(arr, explodeValues(node, agg.Args[0], c)...)
		}
		result = value.ArrayFrom(arr)

	case "distinct":
		var arr []value.Value
		for _, node := range nodes {
			for _, v := range explodeValues(node, agg.Args[0], c) {
				dup := false
				for _, existing := range arr {
					if value.Equal(existing, v) {
						dup = true
						break
					}
				}
				if !dup {
					arr = append(arr, v)
				}
			}
		}
		result = value.ArrayFrom(arr)

	case "sum":
		total := 0.0
		for _, node := range nodes {
			for _, v := range explodeValues(node, agg.Args[0], c) {
				if f, ok := value.CoerceNumber(v); ok {
					total += f
				}
			}
		}
		result = value.Number(total)

	case "group":
		result = evalGroup(nodes, agg, c)

	default:
		result = value.Null
	}
	return applyChain(result, agg.Chain, c)
}

// evalGroup buckets nodes by their key-extractor's stringified result and
// recursively applies the nested aggregator to each bucket's node set
// (§4.F "group"). Buckets are emitted in sorted key order so the resulting
// Object's member order is reproducible across runs.
func evalGroup(nodes []*html.Node, agg *lcd.Expr, c *Compiled) value.Value {
	if len(agg.Args) != 2 {
		return value.Null
	}
	keyExpr, nested := agg.Args[0], agg.Args[1]

	buckets := make(map[string][]*html.Node)
	var order []string
	for _, node := range nodes {
		key := evalInner(node, keyExpr, c)
		if key.IsNull() {
			continue
		}
		k := stringifyKey(key)
		if _, seen := buckets[k]; !seen {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], node)
	}
	sort.Strings(order)

	pairs := make([]value.Pair, 0, len(order))
	for _, k := range order {
		pairs = append(pairs, value.Pair{Key: k, Value: evalAggregator(buckets[k], nested, c)})
	}
	return value.Object(pairs...)
}

func stringifyKey(v value.Value) string {
	if s, ok := value.CoerceString(v); ok {
		return s
	}
	b, err := value.ToJSON(v)
	if err != nil {
		return ""
	}
	return string(b)
}
