package fetcher

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CanonicalLink returns the resolved `<link rel="canonical">` href for an
// HTML document, if any (§4.I.5 "detect and store canonical link"). It
// parses body independently; a caller that already holds a *goquery.
// Document for the same page (the engine, which also needs one for anchor
// discovery) should call CanonicalLinkIn instead to avoid a second parse.
func CanonicalLink(body []byte, pageURL string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	return CanonicalLinkIn(doc, pageURL)
}

// CanonicalLinkIn is CanonicalLink's logic over an already-parsed document.
func CanonicalLinkIn(doc *goquery.Document, pageURL string) (string, bool) {
	href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", false
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return href, true
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}
