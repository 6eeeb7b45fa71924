package lcd

import (
	"strconv"

	"github.com/lopezcrawl/lopez/internal/value"
)

// Parse compiles LCD source into a Program. It never partially succeeds
// (§4.B): on any error the returned Program is nil.
func Parse(src string) (*Program, error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, src: []rune(src)}
	prog, err := p.parseProgram()
	if err != nil {
		return nil, err
	}
	return prog, nil
}

type parser struct {
	toks []Token
	pos  int
	src  []rune
}

func (p *parser) cur() Token { return p.toks[p.pos] }

func (p *parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(tt TokenType) (Token, error) {
	if p.cur().Type != tt {
		return Token{}, errf(p.cur().Span, "expected %s, found %s %q", tt, p.cur().Type, p.cur().Value)
	}
	return p.advance(), nil
}

func (p *parser) expectIdent(val string) (Token, error) {
	if p.cur().Type != IDENT || p.cur().Value != val {
		return Token{}, errf(p.cur().Span, "expected %q, found %q", val, p.cur().Value)
	}
	return p.advance(), nil
}

func (p *parser) isIdent(val string) bool {
	return p.cur().Type == IDENT && p.cur().Value == val
}

func (p *parser) isPunct(val string) bool {
	return p.cur().Type == PUNCT && p.cur().Value == val
}

// parseProgram parses the top-level sequence of decls until EOF.
func (p *parser) parseProgram() (*Program, error) {
	prog := &Program{}
	for p.cur().Type != EOF {
		decl, err := p.parseDecl()
		if err != nil {
			return nil, err
		}
		prog.Decls = append(prog.Decls, decl)
	}
	return prog, nil
}

func (p *parser) parseDecl() (Decl, error) {
	if p.cur().Type != IDENT {
		return nil, errf(p.cur().Span, "expected a top-level directive, found %q", p.cur().Value)
	}
	switch p.cur().Value {
	case "import":
		return p.parseImport()
	case "allow", "disallow", "frontier":
		return p.parseBoundaryRegex()
	case "use":
		return p.parseUseParam()
	case "ignore":
		return p.parseIgnoreParam()
	case "seed":
		return p.parseSeed()
	case "set":
		return p.parseSet()
	case "select":
		return p.parseRuleSet()
	default:
		return nil, errf(p.cur().Span, "unknown directive %q", p.cur().Value)
	}
}

func (p *parser) parseImport() (Decl, error) {
	start := p.advance() // "import"
	pathTok, err := p.expect(STRING)
	if err != nil {
		return nil, err
	}
	semi, err := p.expect(SEMI)
	if err != nil {
		return nil, err
	}
	return &ImportDecl{Path: pathTok.Value, Span: joinSpan(start.Span, semi.Span)}, nil
}

func (p *parser) parseBoundaryRegex() (Decl, error) {
	kwTok := p.advance()
	var kind BoundaryKind
	switch kwTok.Value {
	case "allow":
		kind = BoundaryAllow
	case "disallow":
		kind = BoundaryDisallow
	case "frontier":
		kind = BoundaryFrontier
	}
	patTok, err := p.expect(STRING)
	if err != nil {
		return nil, err
	}
	semi, err := p.expect(SEMI)
	if err != nil {
		return nil, err
	}
	return &BoundaryDecl{Kind: kind, Pattern: patTok.Value, Span: joinSpan(kwTok.Span, semi.Span)}, nil
}

func (p *parser) parseUseParam() (Decl, error) {
	start := p.advance() // "use"
	if _, err := p.expectIdent("param"); err != nil {
		return nil, err
	}
	decl := &BoundaryDecl{Kind: BoundaryUseParam}
	if p.isPunct("*") {
		p.advance()
		decl.AllParams = true
	} else {
		tok, err := p.expect(STRING)
		if err != nil {
			return nil, err
		}
		decl.Pattern = tok.Value
	}
	semi, err := p.expect(SEMI)
	if err != nil {
		return nil, err
	}
	decl.Span = joinSpan(start.Span, semi.Span)
	return decl, nil
}

func (p *parser) parseIgnoreParam() (Decl, error) {
	start := p.advance() // "ignore"
	if _, err := p.expectIdent("param"); err != nil {
		return nil, err
	}
	tok, err := p.expect(STRING)
	if err != nil {
		return nil, err
	}
	semi, err := p.expect(SEMI)
	if err != nil {
		return nil, err
	}
	return &BoundaryDecl{Kind: BoundaryIgnoreParam, Pattern: tok.Value, Span: joinSpan(start.Span, semi.Span)}, nil
}

func (p *parser) parseSeed() (Decl, error) {
	start := p.advance() // "seed"
	tok, err := p.expect(STRING)
	if err != nil {
		return nil, err
	}
	semi, err := p.expect(SEMI)
	if err != nil {
		return nil, err
	}
	return &SeedDecl{URL: tok.Value, Span: joinSpan(start.Span, semi.Span)}, nil
}

func (p *parser) parseSet() (Decl, error) {
	start := p.advance() // "set"
	nameTok, err := p.expect(IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(EQ); err != nil {
		return nil, err
	}
	lit, _, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	semi, err := p.expect(SEMI)
	if err != nil {
		return nil, err
	}
	return &SetDecl{Name: nameTok.Value, Literal: lit, Span: joinSpan(start.Span, semi.Span)}, nil
}

func (p *parser) parseLiteral() (value.Value, Span, error) {
	tok := p.cur()
	switch tok.Type {
	case STRING:
		p.advance()
		return value.String(tok.Value), tok.Span, nil
	case NUMBER:
		p.advance()
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return value.Null, tok.Span, errf(tok.Span, "invalid number %q", tok.Value)
		}
		return value.Number(f), tok.Span, nil
	case IDENT:
		if tok.Value == "true" || tok.Value == "false" {
			p.advance()
			return value.Bool(tok.Value == "true"), tok.Span, nil
		}
		return value.Null, tok.Span, errf(tok.Span, "expected a literal, found identifier %q", tok.Value)
	case LBRACKET:
		return p.parseArrayLiteral()
	default:
		return value.Null, tok.Span, errf(tok.Span, "expected a literal, found %s", tok.Type)
	}
}

func (p *parser) parseArrayLiteral() (value.Value, Span, error) {
	start := p.advance() // "["
	var elems []value.Value
	for p.cur().Type != RBRACKET {
		lit, _, err := p.parseLiteral()
		if err != nil {
			return value.Null, start.Span, err
		}
		elems = append(elems, lit)
		if p.cur().Type == COMMA {
			p.advance()
			continue
		}
		break
	}
	end, err := p.expect(RBRACKET)
	if err != nil {
		return value.Null, start.Span, err
	}
	return value.ArrayFrom(elems), joinSpan(start.Span, end.Span), nil
}

// --- rule sets -------------------------------------------------------------

func (p *parser) parseRuleSet() (Decl, error) {
	start := p.advance() // "select"

	rs := &RuleSet{}
	if p.isIdent("in") {
		p.advance()
		tok, err := p.expect(STRING)
		if err != nil {
			return nil, err
		}
		rs.HasIn = true
		rs.InRegex = tok.Value
	}

	selector, err := p.captureSelectorUntil(LBRACE)
	if err != nil {
		return nil, err
	}
	rs.Selector = selector

	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	for p.cur().Type != RBRACE {
		rule, err := p.parseRule()
		if err != nil {
			return nil, err
		}
		rs.Rules = append(rs.Rules, rule)
		if p.cur().Type == SEMI {
			p.advance()
		}
	}
	end, err := p.expect(RBRACE)
	if err != nil {
		return nil, err
	}
	rs.Span = joinSpan(start.Span, end.Span)
	return rs, nil
}

// captureSelectorUntil reconstructs the raw CSS selector text running from
// the parser's current position up to (not including) the next token whose
// type is stop, tracking paren/bracket nesting so `a[href]` and `:not(...)`
// survive. The selector is never tokenized semantically — compiling it is
// internal/analyzer's job via a CSS selector library (§4.B).
func (p *parser) captureSelectorUntil(stop TokenType) (string, error) {
	startOffset := p.cur().Offset
	depthParen, depthBracket := 0, 0
	for {
		t := p.cur()
		if t.Type == EOF {
			return "", errf(t.Span, "unexpected end of file while scanning selector")
		}
		if t.Type == stop && depthParen == 0 && depthBracket == 0 {
			endOffset := t.Offset
			return trimRunes(p.src[startOffset:endOffset]), nil
		}
		switch t.Type {
		case LPAREN:
			depthParen++
		case RPAREN:
			depthParen--
		case LBRACKET:
			depthBracket++
		case RBRACKET:
			depthBracket--
		}
		p.advance()
	}
}

func trimRunes(rs []rune) string {
	start, end := 0, len(rs)
	isSpace := func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' }
	for start < end && isSpace(rs[start]) {
		start++
	}
	for end > start && isSpace(rs[end-1]) {
		end--
	}
	return string(rs[start:end])
}

func (p *parser) parseRule() (*Rule, error) {
	nameTok, err := p.expect(IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	body, err := p.parseAggregatorExpr()
	if err != nil {
		return nil, err
	}
	return &Rule{Name: nameTok.Value, Body: body, Span: joinSpan(nameTok.Span, body.Span)}, nil
}

var aggregatorNames = map[string]bool{
	"count": true, "first": true, "collect": true, "distinct": true, "sum": true, "group": true,
}

var extractorCallNames = map[string]bool{
	"select-any": true, "select-all": true, "parent": true, "children": true,
}

var extractorLeafNames = map[string]bool{
	"name": true, "text": true, "html": true, "inner-html": true,
	"attrs": true, "classes": true, "id": true, "attr": true,
}

var transformerNames = map[string]bool{
	"is-null": true, "is-not-null": true, "hash": true, "not": true,
	"as-number": true, "as-string": true,
	"greater-than": true, "lesser-than": true, "greater-or-equal": true, "lesser-or-equal": true, "equals": true,
	"between": true, "in": true, "get": true,
	"capture": true, "all-captures": true, "matches": true, "replace": true,
	"each": true, "filter": true, "any": true, "all": true,
	"flatten": true, "sort": true, "pretty": true,
}

// parseAggregatorExpr parses `agg-name [ "(" InnerExpr ["," InnerExpr] ")" ]`
// followed by a trailing transformer chain applied to the aggregator's
// result (§4.F, "followed by further transformers").
func (p *parser) parseAggregatorExpr() (*Expr, error) {
	nameTok, err := p.expect(IDENT)
	if err != nil {
		return nil, err
	}
	if !aggregatorNames[nameTok.Value] {
		return nil, errf(nameTok.Span, "unknown aggregator %q", nameTok.Value)
	}
	expr := &Expr{Kind: AggregatorCall, Name: nameTok.Value, Span: nameTok.Span}

	if p.cur().Type == LPAREN {
		p.advance()
		first, err := p.parseInnerExpr()
		if err != nil {
			return nil, err
		}
		expr.Args = append(expr.Args, first)
		if nameTok.Value == "group" {
			if _, err := p.expect(COMMA); err != nil {
				return nil, err
			}
			nested, err := p.parseAggregatorExpr()
			if err != nil {
				return nil, err
			}
			expr.Args = append(expr.Args, nested)
		}
		end, err := p.expect(RPAREN)
		if err != nil {
			return nil, err
		}
		expr.Span = joinSpan(nameTok.Span, end.Span)
	} else if nameTok.Value != "count" {
		return nil, errf(p.cur().Span, "aggregator %q requires an argument", nameTok.Value)
	}

	chain, err := p.parseTransformerChain()
	if err != nil {
		return nil, err
	}
	expr.Chain = chain
	if len(chain) > 0 {
		expr.Span = joinSpan(expr.Span, chain[len(chain)-1].Span)
	}
	return expr, nil
}

// parseInnerExpr parses an extractor expression, its trailing transformer
// chain, and the optional `!explode` suffix (§4.D-E).
func (p *parser) parseInnerExpr() (*Expr, error) {
	extractor, err := p.parseExtractorExpr()
	if err != nil {
		return nil, err
	}
	chain, err := p.parseTransformerChain()
	if err != nil {
		return nil, err
	}
	extractor.Chain = chain

	if p.cur().Type == BANG {
		p.advance()
		tok, err := p.expectIdent("explode")
		if err != nil {
			return nil, err
		}
		extractor.Explode = true
		extractor.Span = joinSpan(extractor.Span, tok.Span)
	}
	return extractor, nil
}

func (p *parser) parseExtractorExpr() (*Expr, error) {
	nameTok, err := p.expect(IDENT)
	if err != nil {
		return nil, err
	}

	if extractorCallNames[nameTok.Value] {
		if _, err := p.expect(LPAREN); err != nil {
			return nil, err
		}
		inner, err := p.parseInnerExpr()
		if err != nil {
			return nil, err
		}
		expr := &Expr{Kind: ExtractorCall, Name: nameTok.Value, Args: []*Expr{inner}, Span: nameTok.Span}
		if nameTok.Value == "select-any" || nameTok.Value == "select-all" {
			if _, err := p.expect(COMMA); err != nil {
				return nil, err
			}
			sel, err := p.captureSelectorUntil(RPAREN)
			if err != nil {
				return nil, err
			}
			expr.Selector = sel
		}
		end, err := p.expect(RPAREN)
		if err != nil {
			return nil, err
		}
		expr.Span = joinSpan(nameTok.Span, end.Span)
		return expr, nil
	}

	if !extractorLeafNames[nameTok.Value] {
		return nil, errf(nameTok.Span, "unknown extractor %q", nameTok.Value)
	}
	expr := &Expr{Kind: ExtractorLeaf, Name: nameTok.Value, Span: nameTok.Span}
	if nameTok.Value == "attr" {
		tok, err := p.expect(STRING)
		if err != nil {
			return nil, err
		}
		expr.Value = value.String(tok.Value)
		expr.Span = joinSpan(nameTok.Span, tok.Span)
	}
	return expr, nil
}

// parseTransformerChain parses zero or more transformer applications,
// stopping as soon as the next token isn't a recognized transformer name.
func (p *parser) parseTransformerChain() ([]*Expr, error) {
	var chain []*Expr
	for p.cur().Type == IDENT && transformerNames[p.cur().Value] {
		t, err := p.parseTransformerCall()
		if err != nil {
			return nil, err
		}
		chain = append(chain, t)
	}
	return chain, nil
}

func (p *parser) parseTransformerCall() (*Expr, error) {
	nameTok := p.advance()
	expr := &Expr{Kind: TransformerCall, Name: nameTok.Value, Span: nameTok.Span}

	switch nameTok.Value {
	case "is-null", "is-not-null", "hash", "not", "as-number", "as-string",
		"flatten", "sort", "pretty":
		// no arguments

	case "greater-than", "lesser-than", "greater-or-equal", "lesser-or-equal", "equals":
		lit, span, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		expr.Value = lit
		expr.Span = joinSpan(expr.Span, span)

	case "between":
		lo, _, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectIdent("and"); err != nil {
			return nil, err
		}
		hi, span, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		expr.Value = value.Array(lo, hi)
		expr.Span = joinSpan(expr.Span, span)

	case "in":
		lit, span, err := p.parseArrayLiteral()
		if err != nil {
			return nil, err
		}
		expr.Value = lit
		expr.Span = joinSpan(expr.Span, span)

	case "get":
		lit, span, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		expr.Value = lit
		expr.Span = joinSpan(expr.Span, span)

	case "capture", "all-captures", "matches":
		tok, err := p.expect(STRING)
		if err != nil {
			return nil, err
		}
		expr.Value = value.String(tok.Value)
		expr.Span = joinSpan(expr.Span, tok.Span)

	case "replace":
		patTok, err := p.expect(STRING)
		if err != nil {
			return nil, err
		}
		if _, err := p.expectIdent("with"); err != nil {
			return nil, err
		}
		replTok, err := p.expect(STRING)
		if err != nil {
			return nil, err
		}
		expr.Value = value.Array(value.String(patTok.Value), value.String(replTok.Value))
		expr.Span = joinSpan(expr.Span, replTok.Span)

	case "each", "filter", "any", "all":
		if _, err := p.expect(LPAREN); err != nil {
			return nil, err
		}
		nested, err := p.parseTransformerChain()
		if err != nil {
			return nil, err
		}
		end, err := p.expect(RPAREN)
		if err != nil {
			return nil, err
		}
		expr.Args = []*Expr{{Kind: TransformerCall, Name: "chain", Chain: nested}}
		expr.Span = joinSpan(expr.Span, end.Span)

	default:
		return nil, errf(nameTok.Span, "unknown transformer %q", nameTok.Value)
	}

	return expr, nil
}

func joinSpan(a, b Span) Span {
	return Span{StartLine: a.StartLine, StartCol: a.StartCol, EndLine: b.EndLine, EndCol: b.EndCol}
}
