// Package boundary implements URL normalization and the allow/disallow/
// frontier/robots.txt policy that decides whether a discovered link becomes
// a crawl target (§4.G).
package boundary

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/lopezcrawl/lopez/internal/logger"
	"github.com/lopezcrawl/lopez/internal/version"
)

// ParamPolicy controls which query parameters survive normalization.
type ParamPolicy struct {
	// Allow, when non-nil, is the exhaustive set of parameter names kept;
	// every other parameter is stripped. `use param *` (AllParams) keeps
	// everything and leaves Allow nil.
	Allow map[string]bool
	// AllParams corresponds to `use param *`: every parameter is kept.
	AllParams bool
	// Ignore is subtracted after Allow/AllParams is applied, for
	// `ignore param "name"`.
	Ignore map[string]bool
}

func (p ParamPolicy) keep(name string) bool {
	if p.Ignore[name] {
		return false
	}
	if p.AllParams {
		return true
	}
	if p.Allow == nil {
		return false
	}
	return p.Allow[name]
}

// Policy is the compiled boundary: allow/disallow/frontier regex lists plus
// parameter policy. It is immutable after Compile and safe to share across
// workers without synchronization (§9).
type Policy struct {
	Allow     []*regexp.Regexp
	Disallow  []*regexp.Regexp
	Frontier  []*regexp.Regexp
	Params    ParamPolicy
	robots    *robotsCache
}

// NewPolicy builds an empty Policy with a fresh robots.txt cache. Compilation
// of the regex lists happens in internal/directives, which appends to
// Allow/Disallow/Frontier directly as it walks the parsed decls.
func NewPolicy() *Policy {
	return &Policy{robots: newRobotsCache()}
}

// Classification is the outcome of classifying a discovered link (§4.G).
type Classification int

const (
	// ReasonAhref: in-boundary, allowed by robots — enqueue.
	ReasonAhref Classification = iota
	// ReasonExtAhref: off-boundary or unparseable — record only.
	ReasonExtAhref
	// ReasonExtAhrefNoFollow: off-boundary with rel="nofollow".
	ReasonExtAhrefNoFollow
	// ReasonRobots: in-boundary but robots.txt disallows it.
	ReasonRobots
	// ReasonSelf: normalizes to the same URL as the page it was found on.
	ReasonSelf
)

func (c Classification) String() string {
	switch c {
	case ReasonAhref:
		return "ahref"
	case ReasonExtAhref:
		return "ext_ahref"
	case ReasonExtAhrefNoFollow:
		return "ext_ahref_no_follow"
	case ReasonRobots:
		return "robots"
	case ReasonSelf:
		return "self"
	default:
		return "unknown"
	}
}

// InBoundary reports whether a normalized absolute URL matches at least one
// Allow pattern and zero Disallow patterns. Frontier patterns extend Allow.
func (p *Policy) InBoundary(u string) bool {
	matched := false
	for _, re := range p.Allow {
		if re.MatchString(u) {
			matched = true
			break
		}
	}
	if !matched {
		for _, re := range p.Frontier {
			if re.MatchString(u) {
				matched = true
				break
			}
		}
	}
	if !matched {
		return false
	}
	for _, re := range p.Disallow {
		if re.MatchString(u) {
			return false
		}
	}
	return true
}

// IsFrontier reports whether u is in-boundary only via a frontier pattern
// (fetched, but its outgoing links are not enqueued — §4.G, GLOSSARY).
func (p *Policy) IsFrontier(u string) bool {
	for _, re := range p.Allow {
		if re.MatchString(u) {
			return false
		}
	}
	for _, re := range p.Frontier {
		if re.MatchString(u) {
			return true
		}
	}
	return false
}

// Classify implements the rule order of §4.G for a link u discovered on
// page p via <a href>. ctx is used only for the robots.txt fetch.
func (p *Policy) Classify(ctx context.Context, u, pageURL string, nofollow bool) (normalized string, class Classification) {
	normalized, err := Normalize(u, pageURL, p.Params)
	if err != nil {
		return "", ReasonExtAhref
	}
	if normalized == pageURL {
		return normalized, ReasonSelf
	}

	pageOrigin := Origin(pageURL)
	linkOrigin := Origin(normalized)
	inBoundary := p.InBoundary(normalized)

	if linkOrigin != pageOrigin && !inBoundary {
		if nofollow {
			return normalized, ReasonExtAhrefNoFollow
		}
		return normalized, ReasonExtAhref
	}
	if !inBoundary {
		return normalized, ReasonExtAhref
	}

	allowed, err := p.robots.Allowed(ctx, normalized)
	if err != nil {
		logger.Warn("robots.txt unreachable, degrading to allow-all for origin", "origin", linkOrigin, "error", err)
		allowed = true
	}
	if !allowed {
		return normalized, ReasonRobots
	}
	return normalized, ReasonAhref
}

// RobotsAllowed checks u's own robots.txt before the engine fetches it
// (§4.I step 1), the same cache Classify consults for discovered links. A
// robots.txt fetch failure degrades to "allow all" for that origin (§7
// "RobotsFetch").
func (p *Policy) RobotsAllowed(ctx context.Context, u string) bool {
	allowed, err := p.robots.Allowed(ctx, u)
	if err != nil {
		logger.Warn("robots.txt unreachable, degrading to allow-all for origin", "origin", Origin(u), "error", err)
		return true
	}
	return allowed
}

// Origin returns the scheme+host+port triple used as the rate-limiting and
// robots key (GLOSSARY).
func Origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Normalize resolves candidate against base (if candidate is relative) and
// applies the normalization rules of §4.G: lowercase host, default-port
// stripping, dot-segment removal, fragment removal, parameter filtering and
// sorting.
func Normalize(candidate, base string, params ParamPolicy) (string, error) {
	var u *url.URL
	var err error
	if base != "" {
		var baseURL *url.URL
		baseURL, err = url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("boundary: invalid base URL %q: %w", base, err)
		}
		var rel *url.URL
		rel, err = url.Parse(candidate)
		if err != nil {
			return "", fmt.Errorf("boundary: invalid URL %q: %w", candidate, err)
		}
		u = baseURL.ResolveReference(rel)
	} else {
		u, err = url.Parse(candidate)
		if err != nil {
			return "", fmt.Errorf("boundary: invalid URL %q: %w", candidate, err)
		}
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("boundary: %q did not resolve to an absolute URL", candidate)
	}

	u.Host = strings.ToLower(u.Host)
	u.Host = stripDefaultPort(u.Scheme, u.Host)
	u.Fragment = ""
	u.Path = removeDotSegments(u.Path)
	if u.Path == "" {
		u.Path = "/"
	}

	if u.RawQuery != "" {
		vals := u.Query()
		for name := range vals {
			if !params.keep(name) {
				vals.Del(name)
			}
		}
		keys := make([]string, 0, len(vals))
		for k := range vals {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		for i, k := range keys {
			for j, v := range vals[k] {
				if i > 0 || j > 0 {
					sb.WriteByte('&')
				}
				sb.WriteString(url.QueryEscape(k))
				sb.WriteByte('=')
				sb.WriteString(url.QueryEscape(v))
			}
		}
		u.RawQuery = sb.String()
	}

	return u.String(), nil
}

func stripDefaultPort(scheme, host string) string {
	if scheme == "http" && strings.HasSuffix(host, ":80") {
		return strings.TrimSuffix(host, ":80")
	}
	if scheme == "https" && strings.HasSuffix(host, ":443") {
		return strings.TrimSuffix(host, ":443")
	}
	return host
}

// removeDotSegments implements RFC 3986 §5.2.4.
func removeDotSegments(path string) string {
	if path == "" {
		return path
	}
	var out []string
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case ".":
			// drop
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}
	result := strings.Join(out, "/")
	if strings.HasPrefix(path, "/") && !strings.HasPrefix(result, "/") {
		result = "/" + result
	}
	return result
}

// robotsCache fetches and caches robots.txt per origin for the lifetime of
// an engine instance (§9 "Global state": process-wide, scoped to an engine,
// not persisted across waves).
type robotsCache struct {
	mu      sync.Mutex
	entries map[string]*robotstxt.RobotsData
	fetch   func(ctx context.Context, origin string) (*robotstxt.RobotsData, error)
}

func newRobotsCache() *robotsCache {
	return &robotsCache{
		entries: make(map[string]*robotstxt.RobotsData),
		fetch:   fetchRobots,
	}
}

// Allowed reports whether normalized is permitted by its origin's
// robots.txt, fetching and caching it lazily. A fetch failure degrades to
// "allow all" for that origin (§7 RobotsFetch policy).
func (c *robotsCache) Allowed(ctx context.Context, normalized string) (bool, error) {
	u, err := url.Parse(normalized)
	if err != nil {
		return true, err
	}
	origin := u.Scheme + "://" + u.Host

	c.mu.Lock()
	data, ok := c.entries[origin]
	c.mu.Unlock()
	if !ok {
		data, err = c.fetch(ctx, origin)
		c.mu.Lock()
		c.entries[origin] = data // cache nil on failure too, avoid refetching every link
		c.mu.Unlock()
		if err != nil {
			return true, err
		}
	}
	if data == nil {
		return true, nil
	}
	return data.TestAgent(u.Path, "lopez"), nil
}

func fetchRobots(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := robotsHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("boundary: fetching %s: %w", origin, err)
	}
	defer resp.Body.Close()

	return robotstxt.FromResponse(resp)
}

var robotsHTTPClient = &http.Client{Timeout: 10 * time.Second}
