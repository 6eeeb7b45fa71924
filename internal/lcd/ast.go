package lcd

import "github.com/lopezcrawl/lopez/internal/value"

// Node is implemented by every AST node, mirroring the span-aware Node
// interface a source-level LCD tool (formatter, language server) would need.
type Node interface {
	NodeSpan() Span
}

// Decl is a top-level program item: import, boundary directive, seed, set,
// or rule set.
type Decl interface {
	Node
	declNode()
}

// Program is the root of a parsed LCD file (§4.B).
type Program struct {
	Decls []Decl
}

func (p *Program) NodeSpan() Span {
	if len(p.Decls) == 0 {
		return Span{}
	}
	return Span{StartLine: p.Decls[0].NodeSpan().StartLine, StartCol: p.Decls[0].NodeSpan().StartCol,
		EndLine: p.Decls[len(p.Decls)-1].NodeSpan().EndLine, EndCol: p.Decls[len(p.Decls)-1].NodeSpan().EndCol}
}

// ImportDecl is `import "path";`.
type ImportDecl struct {
	Path string
	Span Span
}

func (d *ImportDecl) NodeSpan() Span { return d.Span }
func (d *ImportDecl) declNode()      {}

// BoundaryKind distinguishes the five boundary directive forms (§4.G).
type BoundaryKind int

const (
	BoundaryAllow BoundaryKind = iota
	BoundaryDisallow
	BoundaryFrontier
	BoundaryUseParam
	BoundaryIgnoreParam
)

func (k BoundaryKind) String() string {
	switch k {
	case BoundaryAllow:
		return "allow"
	case BoundaryDisallow:
		return "disallow"
	case BoundaryFrontier:
		return "frontier"
	case BoundaryUseParam:
		return "use param"
	case BoundaryIgnoreParam:
		return "ignore param"
	default:
		return "unknown"
	}
}

// BoundaryDecl is `allow|disallow|frontier "regex";` or
// `use param "name"|*;` or `ignore param "name";` (§4.G).
type BoundaryDecl struct {
	Kind BoundaryKind
	// Pattern holds the regex text for Allow/Disallow/Frontier, or the
	// parameter name for UseParam/IgnoreParam.
	Pattern string
	// AllParams is true for `use param *`.
	AllParams bool
	Span      Span
}

func (d *BoundaryDecl) NodeSpan() Span { return d.Span }
func (d *BoundaryDecl) declNode()      {}

// SeedDecl is `seed "url";`.
type SeedDecl struct {
	URL  string
	Span Span
}

func (d *SeedDecl) NodeSpan() Span { return d.Span }
func (d *SeedDecl) declNode()      {}

// SetDecl is `set name = literal;`, used for run-level config (quota,
// batch_size, max_depth, ...).
type SetDecl struct {
	Name    string
	Literal value.Value
	Span    Span
}

func (d *SetDecl) NodeSpan() Span { return d.Span }
func (d *SetDecl) declNode()      {}

// RuleSet is `select [in "url-regex"] <css-selector> { rule (; rule)* }`
// (§4.F).
type RuleSet struct {
	HasIn    bool
	InRegex  string // present only if HasIn
	Selector string // raw selector text, compiled downstream via cascadia
	Rules    []*Rule
	Span     Span
}

func (d *RuleSet) NodeSpan() Span { return d.Span }
func (d *RuleSet) declNode()      {}

// Rule is one `name: <aggregator-expression>;` member of a RuleSet.
type Rule struct {
	Name string
	Body *Expr
	Span Span
}

func (r *Rule) NodeSpan() Span { return r.Span }

// ExprKind tags the role an Expr plays in the extractor/transformer/
// aggregator evaluation stack (§4.D-F).
type ExprKind int

const (
	ExtractorLeaf ExprKind = iota
	ExtractorCall
	TransformerCall
	AggregatorCall
	Literal
)

func (k ExprKind) String() string {
	switch k {
	case ExtractorLeaf:
		return "extractor-leaf"
	case ExtractorCall:
		return "extractor-call"
	case TransformerCall:
		return "transformer"
	case AggregatorCall:
		return "aggregator"
	case Literal:
		return "literal"
	default:
		return "unknown"
	}
}

// Expr is a single node in an extractor/transformer/aggregator expression
// tree. The same type serves all three roles (tagged by Kind) since the
// grammar freely nests them: an AggregatorCall's Args hold ExtractorCall or
// ExtractorLeaf nodes, a TransformerCall's Chain holds further
// TransformerCall nodes, and select-any/select-all/parent/children take a
// nested extractor expression as their first Arg.
type Expr struct {
	Kind ExprKind
	Name string // "text", "select-any", "between", "first", ...

	// Selector is the raw CSS selector text for select-any/select-all,
	// compiled downstream via cascadia.
	Selector string

	// Args are sub-expressions: the inner extractor for select-any/
	// select-all/parent/children, the nested transformer chain for each/
	// filter/any/all, or the key-extractor and nested aggregator for group.
	Args []*Expr

	// Value holds a literal baked into an extractor or transformer at
	// compile time (the right-hand side of a comparison, the `between`
	// bounds, the `in` set, the regex of `capture`/`matches`, the
	// [pattern, replacement] pair of `replace ... with ...`, the `attr`
	// name, the `get` key or index).
	Value value.Value

	// Chain is the transformer sequence applied, left-to-right, to this
	// expression's result.
	Chain []*Expr

	// Explode marks the trailing `!explode` suffix: if this expression's
	// value is an Array, the enclosing aggregator iterates its elements
	// instead of treating it as a singleton.
	Explode bool

	Span Span
}

func (e *Expr) NodeSpan() Span { return e.Span }
