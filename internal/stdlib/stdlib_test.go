package stdlib

import "testing"

func TestResolveKnownPath(t *testing.T) {
	r, err := NewResolver([]byte("lib/common: |\n  allow \"^https?://example\\.com/\";\n"))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	src, ok := r.Resolve("lib/common")
	if !ok {
		t.Fatal("expected lib/common to resolve")
	}
	if src == "" {
		t.Error("expected non-empty source")
	}
}

func TestResolveUnknownPath(t *testing.T) {
	r := Empty()
	if _, ok := r.Resolve("nope"); ok {
		t.Error("expected unknown path to miss")
	}
}

func TestNilResolverMisses(t *testing.T) {
	var r *Resolver
	if _, ok := r.Resolve("anything"); ok {
		t.Error("expected nil Resolver to always miss")
	}
}
