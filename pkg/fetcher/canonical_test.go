package fetcher

import "testing"

func TestCanonicalLinkResolved(t *testing.T) {
	html := `<html><head><link rel="canonical" href="/en/page"></head><body></body></html>`
	got, ok := CanonicalLink([]byte(html), "https://example.com/page?x=1")
	if !ok {
		t.Fatal("expected a canonical link")
	}
	if got != "https://example.com/en/page" {
		t.Errorf("got %q", got)
	}
}

func TestCanonicalLinkAbsent(t *testing.T) {
	html := `<html><head></head><body></body></html>`
	_, ok := CanonicalLink([]byte(html), "https://example.com/")
	if ok {
		t.Error("expected no canonical link")
	}
}

func TestCanonicalLinkAlreadyAbsolute(t *testing.T) {
	html := `<html><head><link rel="canonical" href="https://other.com/x"></head></html>`
	got, ok := CanonicalLink([]byte(html), "https://example.com/")
	if !ok || got != "https://other.com/x" {
		t.Errorf("got %q, %v", got, ok)
	}
}
