// Package source fetches release pages and finds the asset and version an
// item points at.
//
// A Source fetches one page and returns a Document; locators are then
// evaluated against the Document. html_scrape items get CSS selectors
// (or XPath expressions prefixed with "xpath:") over HTML, api_json items
// get JSON paths over an API response. Both produce the same ordered list
// of Match values, so matching does not depend on the method.
package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/obentoo/lifter/internal/manifest"
)

// Match is one locator result in document order.
type Match struct {
	// Text is the matched text, whitespace collapsed
	Text string
	// Link is the absolute URL the match points at
	Link string
}

// Document is a fetched page ready for locator evaluation.
type Document interface {
	// Query evaluates a locator and returns its matches in document order.
	Query(locator string) ([]Match, error)
	// URL is the page's final URL, the base for relative links.
	URL() string
}

// Source fetches pages for one method.
type Source interface {
	Fetch(ctx context.Context, pageURL string) (Document, error)
}

// ForMethod returns the Source implementing method.
func ForMethod(method manifest.Method, f *Fetcher) (Source, error) {
	switch method {
	case manifest.MethodHTMLScrape:
		return &htmlSource{fetcher: f}, nil
	case manifest.MethodAPIJSON:
		return &jsonSource{fetcher: f}, nil
	default:
		return nil, fmt.Errorf("%w: unknown method %q", manifest.ErrInvalidConfiguration, method)
	}
}

// resolveLink resolves ref against base. A ref that cannot be parsed is
// returned unchanged.
func resolveLink(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

// collapseSpace trims s and folds inner whitespace runs into one space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
