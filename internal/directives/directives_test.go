package directives

import (
	"errors"
	"testing"
	"time"

	"github.com/lopezcrawl/lopez/internal/lcd"
	"github.com/lopezcrawl/lopez/internal/stdlib"
)

func mustParse(t *testing.T, src string) *lcd.Program {
	t.Helper()
	prog, err := lcd.Parse(src)
	if err != nil {
		t.Fatalf("lcd.Parse: %v", err)
	}
	return prog
}

func TestCompileBasicProgram(t *testing.T) {
	prog := mustParse(t, `
		allow "^https://example\.com/";
		disallow "/private/";
		use param "id";
		ignore param "session";
		seed "https://example.com/";
		set quota = 100;
		set batch_size = 10;
		select h1 { title: first(text); }
	`)
	d, err := Compile(prog, stdlib.Empty())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(d.Seeds) != 1 || d.Seeds[0] != "https://example.com/" {
		t.Errorf("seeds = %v", d.Seeds)
	}
	if d.Config.Quota != 100 || d.Config.BatchSize != 10 {
		t.Errorf("config = %+v", d.Config)
	}
	if !d.Policy.InBoundary("https://example.com/x") {
		t.Error("expected in-boundary")
	}
	if d.Policy.InBoundary("https://example.com/private/x") {
		t.Error("expected disallow to apply")
	}
	if len(d.Analyzer.RuleSets) != 1 {
		t.Errorf("rule sets = %d, want 1", len(d.Analyzer.RuleSets))
	}
}

func TestCompileDefaults(t *testing.T) {
	prog := mustParse(t, `seed "https://example.com/";`)
	d, err := Compile(prog, stdlib.Empty())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	want := DefaultConfig()
	if d.Config != want {
		t.Errorf("config = %+v, want defaults %+v", d.Config, want)
	}
}

func TestCompileUnknownVariable(t *testing.T) {
	prog := mustParse(t, `set bogus = 1;`)
	_, err := Compile(prog, stdlib.Empty())
	var uv *UnknownVariableError
	if !errors.As(err, &uv) {
		t.Fatalf("expected UnknownVariableError, got %v", err)
	}
}

func TestCompileInvalidVariableType(t *testing.T) {
	prog := mustParse(t, `set quota = "not-a-number";`)
	_, err := Compile(prog, stdlib.Empty())
	var iv *InvalidVariableError
	if !errors.As(err, &iv) {
		t.Fatalf("expected InvalidVariableError, got %v", err)
	}
}

func TestCompileInvalidPattern(t *testing.T) {
	prog := mustParse(t, `allow "(unclosed";`)
	_, err := Compile(prog, stdlib.Empty())
	var pe *InvalidPatternError
	if !errors.As(err, &pe) {
		t.Fatalf("expected InvalidPatternError, got %v", err)
	}
}

func TestCompileDuplicateRule(t *testing.T) {
	prog := mustParse(t, `
		select h1 { t: first(text); }
		select h2 { t: first(text); }
	`)
	_, err := Compile(prog, stdlib.Empty())
	var dr *DuplicateRuleError
	if !errors.As(err, &dr) {
		t.Fatalf("expected DuplicateRuleError, got %v", err)
	}
}

func TestCompileImportResolution(t *testing.T) {
	manifest := []byte("lib/common: |\n  allow \"^https://example\\.com/\";\n")
	resolver, err := stdlib.NewResolver(manifest)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	prog := mustParse(t, `import "lib/common"; seed "https://example.com/";`)
	d, err := Compile(prog, resolver)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(d.Policy.Allow) != 1 {
		t.Errorf("expected 1 allow pattern pulled in via import, got %d", len(d.Policy.Allow))
	}
}

func TestCompileImportNotFound(t *testing.T) {
	prog := mustParse(t, `import "nope";`)
	_, err := Compile(prog, stdlib.Empty())
	var nf *ImportNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected ImportNotFoundError, got %v", err)
	}
}

func TestCompileImportCycle(t *testing.T) {
	manifest := []byte("a: |\n  import \"b\";\nb: |\n  import \"a\";\n")
	resolver, err := stdlib.NewResolver(manifest)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	prog := mustParse(t, `import "a";`)
	_, err = Compile(prog, resolver)
	var ic *ImportCycleError
	if !errors.As(err, &ic) {
		t.Fatalf("expected ImportCycleError, got %v", err)
	}
}

func TestCompileUseParamAllKeepsEverything(t *testing.T) {
	prog := mustParse(t, `use param *; seed "https://example.com/";`)
	d, err := Compile(prog, stdlib.Empty())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !d.Policy.Params.AllParams {
		t.Error("expected AllParams")
	}
}

func TestCompileRequestTimeoutConvertsSeconds(t *testing.T) {
	prog := mustParse(t, `set request_timeout = 15;`)
	d, err := Compile(prog, stdlib.Empty())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if d.Config.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v, want 15s", d.Config.RequestTimeout)
	}
}
