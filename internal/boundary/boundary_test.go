package boundary

import (
	"context"
	"regexp"
	"testing"

	"github.com/temoto/robotstxt"
)

func TestNormalizeLowercasesHostAndStripsPort(t *testing.T) {
	got, err := Normalize("HTTP://Example.COM:80/Foo/", "", ParamPolicy{})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if want := "http://example.com/Foo/"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeRemovesFragmentAndDotSegments(t *testing.T) {
	got, err := Normalize("http://example.com/a/../b/./c#section", "", ParamPolicy{})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if want := "http://example.com/b/c"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeResolvesRelativeAgainstBase(t *testing.T) {
	got, err := Normalize("/a", "https://example.com/dir/page", ParamPolicy{})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if want := "https://example.com/a"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeParamFilteringAndSorting(t *testing.T) {
	params := ParamPolicy{Allow: map[string]bool{"id": true, "page": true}}
	got, err := Normalize("http://example.com/?b=2&page=3&id=1&session=xyz", "", params)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if want := "http://example.com/?id=1&page=3"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeFragmentOnlyDifferenceIdentical(t *testing.T) {
	a, _ := Normalize("http://example.com/x#one", "", ParamPolicy{})
	b, _ := Normalize("http://example.com/x#two", "", ParamPolicy{})
	if a != b {
		t.Errorf("fragment-only URLs should normalize identically: %q != %q", a, b)
	}
}

func TestInBoundaryAllowDisallowFrontier(t *testing.T) {
	p := NewPolicy()
	p.Allow = []*regexp.Regexp{regexp.MustCompile(`^https?://a\.com/`)}
	p.Disallow = []*regexp.Regexp{regexp.MustCompile(`/private/`)}
	p.Frontier = []*regexp.Regexp{regexp.MustCompile(`^https?://docs\.a\.com/`)}

	if !p.InBoundary("https://a.com/page") {
		t.Error("expected in-boundary")
	}
	if p.InBoundary("https://a.com/private/x") {
		t.Error("expected disallow to override allow")
	}
	if !p.InBoundary("https://docs.a.com/x") {
		t.Error("expected frontier to extend allow")
	}
	if !p.IsFrontier("https://docs.a.com/x") {
		t.Error("expected frontier-only URL to be classified as frontier")
	}
	if p.IsFrontier("https://a.com/page") {
		t.Error("allow-matched URL should not be a frontier page")
	}
	if p.InBoundary("https://b.com/") {
		t.Error("b.com should not be in-boundary")
	}
}

func TestOrigin(t *testing.T) {
	if got := Origin("https://example.com:8443/a/b?x=1"); got != "https://example.com:8443" {
		t.Errorf("Origin = %q", got)
	}
}

// TestClassifyInBoundaryRobotsDisallowed covers §4.G's rule order step 4: an
// in-boundary link whose target robots.txt disallows it must classify as
// ext_ahref's robots variant, not be silently dropped.
func TestClassifyInBoundaryRobotsDisallowed(t *testing.T) {
	p := NewPolicy()
	p.Allow = []*regexp.Regexp{regexp.MustCompile(`^https?://a\.com/`)}
	data, err := robotstxt.FromString("User-agent: *\nDisallow: /private/\n")
	if err != nil {
		t.Fatalf("robotstxt.FromString: %v", err)
	}
	p.robots.fetch = func(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
		return data, nil
	}

	normalized, class := p.Classify(context.Background(), "/private/x", "https://a.com/", false)
	if class != ReasonRobots {
		t.Errorf("class = %v, want ReasonRobots", class)
	}
	if normalized != "https://a.com/private/x" {
		t.Errorf("normalized = %q", normalized)
	}

	_, class = p.Classify(context.Background(), "/public/x", "https://a.com/", false)
	if class != ReasonAhref {
		t.Errorf("class = %v, want ReasonAhref for robots-allowed in-boundary link", class)
	}
}
