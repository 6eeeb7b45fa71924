package lcd

import "testing"

func TestParseSeedOnlyProgram(t *testing.T) {
	src := `allow "^https?://example\.com/$"; seed "https://example.com/"; set quota = 1;`
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(prog.Decls) != 3 {
		t.Fatalf("got %d decls, want 3", len(prog.Decls))
	}
	if _, ok := prog.Decls[0].(*BoundaryDecl); !ok {
		t.Errorf("decl 0 = %T, want *BoundaryDecl", prog.Decls[0])
	}
	if _, ok := prog.Decls[1].(*SeedDecl); !ok {
		t.Errorf("decl 1 = %T, want *SeedDecl", prog.Decls[1])
	}
	set, ok := prog.Decls[2].(*SetDecl)
	if !ok {
		t.Fatalf("decl 2 = %T, want *SetDecl", prog.Decls[2])
	}
	if n, _ := set.Literal.Number(); n != 1 {
		t.Errorf("quota = %v, want 1", n)
	}
}

func TestParseUseParamStar(t *testing.T) {
	prog, err := Parse(`use param *;`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b := prog.Decls[0].(*BoundaryDecl)
	if b.Kind != BoundaryUseParam || !b.AllParams {
		t.Errorf("got %+v, want UseParam/AllParams", b)
	}
}

func TestParseSimpleRuleSet(t *testing.T) {
	src := `select h1 { t: first(text); }`
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rs, ok := prog.Decls[0].(*RuleSet)
	if !ok {
		t.Fatalf("decl 0 = %T, want *RuleSet", prog.Decls[0])
	}
	if rs.Selector != "h1" {
		t.Errorf("selector = %q, want %q", rs.Selector, "h1")
	}
	if len(rs.Rules) != 1 || rs.Rules[0].Name != "t" {
		t.Fatalf("unexpected rules: %+v", rs.Rules)
	}
	body := rs.Rules[0].Body
	if body.Kind != AggregatorCall || body.Name != "first" {
		t.Errorf("body = %+v, want aggregator first(...)", body)
	}
	if len(body.Args) != 1 || body.Args[0].Name != "text" {
		t.Errorf("args = %+v, want [text]", body.Args)
	}
}

func TestParseExplodingCollect(t *testing.T) {
	src := `select ul { items: collect(select-all(text, "li")!explode); }`
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rs := prog.Decls[0].(*RuleSet)
	rule := rs.Rules[0]
	if rule.Name != "items" {
		t.Fatalf("rule name = %q", rule.Name)
	}
	agg := rule.Body
	if agg.Name != "collect" {
		t.Fatalf("aggregator = %q, want collect", agg.Name)
	}
	inner := agg.Args[0]
	if inner.Kind != ExtractorCall || inner.Name != "select-all" {
		t.Fatalf("inner = %+v, want select-all(...)", inner)
	}
	if inner.Selector != `"li"` {
		t.Errorf("selector = %q, want %q", inner.Selector, `"li"`)
	}
	if !inner.Explode {
		t.Error("expected Explode=true")
	}
}

func TestParseComplexSelector(t *testing.T) {
	src := `select in "^https://shop\.example\.com/" div.product > a[href]~span:first-child { n: count; }`
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rs := prog.Decls[0].(*RuleSet)
	if !rs.HasIn || rs.InRegex != `^https://shop\.example\.com/` {
		t.Errorf("HasIn/InRegex = %v/%q", rs.HasIn, rs.InRegex)
	}
	want := `div.product > a[href]~span:first-child`
	if rs.Selector != want {
		t.Errorf("selector = %q, want %q", rs.Selector, want)
	}
	if rs.Rules[0].Body.Name != "count" || len(rs.Rules[0].Body.Args) != 0 {
		t.Errorf("expected bare count aggregator, got %+v", rs.Rules[0].Body)
	}
}

func TestParseTransformerChain(t *testing.T) {
	src := `select p { ok: first(text as-number between 1 and 10); }`
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rs := prog.Decls[0].(*RuleSet)
	inner := rs.Rules[0].Body.Args[0]
	if len(inner.Chain) != 2 {
		t.Fatalf("chain length = %d, want 2: %+v", len(inner.Chain), inner.Chain)
	}
	if inner.Chain[0].Name != "as-number" {
		t.Errorf("chain[0] = %q", inner.Chain[0].Name)
	}
	between := inner.Chain[1]
	if between.Name != "between" {
		t.Fatalf("chain[1] = %q, want between", between.Name)
	}
	bounds, _ := between.Value.Array()
	lo, _ := bounds[0].Number()
	hi, _ := bounds[1].Number()
	if lo != 1 || hi != 10 {
		t.Errorf("bounds = %v,%v, want 1,10", lo, hi)
	}
}

func TestParseGroupAggregator(t *testing.T) {
	src := `select li { byClass: group(classes, collect(text)); }`
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rs := prog.Decls[0].(*RuleSet)
	group := rs.Rules[0].Body
	if group.Name != "group" || len(group.Args) != 2 {
		t.Fatalf("group = %+v", group)
	}
	if group.Args[0].Name != "classes" {
		t.Errorf("key extractor = %q", group.Args[0].Name)
	}
	if group.Args[1].Kind != AggregatorCall || group.Args[1].Name != "collect" {
		t.Errorf("nested agg = %+v", group.Args[1])
	}
}

func TestParseFilterEachChains(t *testing.T) {
	src := `select li { longs: collect(text filter(as-string)); }`
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rs := prog.Decls[0].(*RuleSet)
	inner := rs.Rules[0].Body.Args[0]
	if len(inner.Chain) != 1 || inner.Chain[0].Name != "filter" {
		t.Fatalf("chain = %+v", inner.Chain)
	}
	nested := inner.Chain[0].Args[0].Chain
	if len(nested) != 1 || nested[0].Name != "as-string" {
		t.Errorf("nested filter chain = %+v", nested)
	}
}

func TestParseImportAndErrors(t *testing.T) {
	if _, err := Parse(`import "lib/common.lcd";`); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Parse(`seed "x"`); err == nil {
		t.Fatal("missing semicolon should fail to parse")
	}
	if _, err := Parse(`bogus "x";`); err == nil {
		t.Fatal("unknown directive should fail to parse")
	}
	var pe ParseError
	_, err := Parse(`bogus "x";`)
	if err == nil {
		t.Fatal("expected error")
	}
	if asParseError(err, &pe) {
		_ = pe.ErrSpan()
	} else {
		t.Fatal("expected error to satisfy ParseError")
	}
}

func asParseError(err error, target *ParseError) bool {
	if pe, ok := err.(ParseError); ok {
		*target = pe
		return true
	}
	return false
}

func TestPrettyRoundTrip(t *testing.T) {
	srcs := []string{
		`allow "^https?://example\.com/$"; seed "https://example.com/"; set quota = 1;`,
		`select ul { items: collect(select-all(text, "li")!explode); }`,
		`select p { ok: first(text as-number between 1 and 10); }`,
		`select li { byClass: group(classes, collect(text)); }`,
	}
	for _, src := range srcs {
		p1, err := Parse(src)
		if err != nil {
			t.Fatalf("Parse(%q): %v", src, err)
		}
		pretty := Pretty(p1)
		p2, err := Parse(pretty)
		if err != nil {
			t.Fatalf("Parse(Pretty(%q)) = %v; pretty was:\n%s", src, err, pretty)
		}
		if Pretty(p2) != pretty {
			t.Errorf("pretty-print not idempotent for %q:\nfirst:  %s\nsecond: %s", src, pretty, Pretty(p2))
		}
	}
}
