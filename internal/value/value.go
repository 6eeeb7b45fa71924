// Package value implements the analyzer's universe of values (§4.A):
// Null | Bool | Number | String | Array | Object | Node. Every extractor,
// transformer, and aggregator in internal/analyzer operates on this single
// tagged type. Any operator whose required operand is Null, or whose
// type-precondition fails, returns Null rather than erroring — the
// analyzer is total (§7, §8 "Analyzer totality").
package value

import (
	"encoding/json"
	"sort"

	"golang.org/x/net/html"
)

// Kind tags the variant a Value currently holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
	KindNode
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindNode:
		return "node"
	default:
		return "unknown"
	}
}

// Pair is one member of an Object, kept in insertion order so that
// `collect`/`group` output is stable and `pretty` output is reproducible.
type Pair struct {
	Key   string
	Value Value
}

// Value is the tagged union the analyzer evaluates over. The zero Value is
// Null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  []Pair
	node *html.Node
}

// Null is the zero Value.
var Null = Value{kind: KindNull}

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

func String(s string) Value { return Value{kind: KindString, s: s} }

func Array(vals ...Value) Value { return Value{kind: KindArray, arr: vals} }

func ArrayFrom(vals []Value) Value { return Value{kind: KindArray, arr: vals} }

func Object(pairs ...Pair) Value { return Value{kind: KindObject, obj: pairs} }

func Node(n *html.Node) Value {
	if n == nil {
		return Null
	}
	return Value{kind: KindNode, node: n}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) Number() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.n, true
}

func (v Value) String() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) Array() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

func (v Value) Object() ([]Pair, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

func (v Value) DOMNode() (*html.Node, bool) {
	if v.kind != KindNode {
		return nil, false
	}
	return v.node, true
}

// Get returns the member of an Object by key, or Null if v is not an Object
// or the key is absent. Backs the `get "k"` transformer.
func (v Value) Get(key string) Value {
	if v.kind != KindObject {
		return Null
	}
	for _, p := range v.obj {
		if p.Key == key {
			return p.Value
		}
	}
	return Null
}

// Index returns the i-th element of an Array, or Null if v is not an Array
// or i is out of range. Backs the `get i` transformer.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Null
	}
	return v.arr[i]
}

// CoerceNumber loosely coerces v to a float64, used by numeric transformers
// and aggregators (`sum`, `between`, comparisons). Strings are parsed as
// JSON numbers; anything else fails.
func CoerceNumber(v Value) (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.n, true
	case KindString:
		var f float64
		if err := json.Unmarshal([]byte(v.s), &f); err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// CoerceString loosely coerces v to a string, used by `as-string`.
func CoerceString(v Value) (string, bool) {
	switch v.kind {
	case KindString:
		return v.s, true
	case KindNumber:
		b, err := json.Marshal(v.n)
		if err != nil {
			return "", false
		}
		return string(b), true
	case KindBool:
		if v.b {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}

// Equal implements the JSON-equality used by `distinct` (dedup) and `in`
// (membership). Numbers compare by strict float equality (§3); objects
// compare by key set regardless of insertion order.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for _, pa := range a.obj {
			found := false
			for _, pb := range b.obj {
				if pa.Key == pb.Key {
					if !Equal(pa.Value, pb.Value) {
						return false
					}
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case KindNode:
		return a.node == b.node
	default:
		return false
	}
}

// Compare orders two same-typed Values for `greater-than`/`sort`/etc. Only
// Number and String are ordered types; any other pairing (including mixed
// types) returns ok=false, which callers must treat as Null propagation.
func Compare(a, b Value) (cmp int, ok bool) {
	if a.kind != b.kind {
		return 0, false
	}
	switch a.kind {
	case KindNumber:
		switch {
		case a.n < b.n:
			return -1, true
		case a.n > b.n:
			return 1, true
		default:
			return 0, true
		}
	case KindString:
		switch {
		case a.s < b.s:
			return -1, true
		case a.s > b.s:
			return 1, true
		default:
			return 0, true
		}
	default:
		return 0, false
	}
}

// Truthy implements the Boolean-fold semantics used by `filter`/`any`/`all`:
// Null and false-Bool are falsy, everything else (including 0 and "") is
// truthy, matching a total predicate rather than a numeric-zero convention.
func Truthy(v Value) bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	default:
		return true
	}
}

// SortValues sorts a slice of Values in place: lexicographic for strings,
// natural (numeric) for numbers, stable. A pair that Compare cannot order
// (any other type, or a number against a string) counts as equal, so such
// elements are not moved to either end and a mixed slice is not fully
// ordered. Backs the `sort` transformer.
func SortValues(vals []Value) {
	sort.SliceStable(vals, func(i, j int) bool {
		cmp, ok := Compare(vals[i], vals[j])
		if !ok {
			return false
		}
		return cmp < 0
	})
}
