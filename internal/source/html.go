package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// XPathPrefix marks a locator as an XPath expression instead of a CSS selector
const XPathPrefix = "xpath:"

// htmlSource fetches HTML release pages
type htmlSource struct {
	fetcher *Fetcher
}

func (s *htmlSource) Fetch(ctx context.Context, pageURL string) (Document, error) {
	page, err := s.fetcher.FetchPage(ctx, pageURL, PageHTML)
	if err != nil {
		return nil, err
	}
	return ParseHTML(page.Body, page.URL)
}

// htmlDocument evaluates CSS selectors (goquery) and XPath expressions
// (htmlquery) over one parsed page.
type htmlDocument struct {
	doc  *goquery.Document
	base *url.URL
	url  string
}

// ParseHTML parses an HTML page served from pageURL.
func ParseHTML(content []byte, pageURL string) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse HTML: %v", ErrFetchFailed, err)
	}
	base, _ := url.Parse(pageURL)
	return &htmlDocument{doc: doc, base: base, url: pageURL}, nil
}

func (d *htmlDocument) URL() string {
	return d.url
}

// Query returns one Match per matched element. The Link of an element is
// its href; elements without one link to their own text.
func (d *htmlDocument) Query(locator string) ([]Match, error) {
	if expr, ok := strings.CutPrefix(locator, XPathPrefix); ok {
		return d.queryXPath(strings.TrimSpace(expr))
	}
	return d.queryCSS(locator)
}

func (d *htmlDocument) queryCSS(selector string) ([]Match, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: CSS selector %q: %v", ErrInvalidLocator, selector, err)
	}

	var matches []Match
	d.doc.FindMatcher(sel).Each(func(_ int, s *goquery.Selection) {
		text := collapseSpace(s.Text())
		ref, ok := s.Attr("href")
		if !ok {
			ref = text
		}
		matches = append(matches, Match{Text: text, Link: resolveLink(d.base, ref)})
	})
	return matches, nil
}

func (d *htmlDocument) queryXPath(expr string) ([]Match, error) {
	if len(d.doc.Nodes) == 0 {
		return nil, nil
	}

	nodes, err := htmlquery.QueryAll(d.doc.Nodes[0], expr)
	if err != nil {
		return nil, fmt.Errorf("%w: XPath %q: %v", ErrInvalidLocator, expr, err)
	}

	matches := make([]Match, 0, len(nodes))
	for _, n := range nodes {
		text := collapseSpace(htmlquery.InnerText(n))
		ref := text
		if n.Type == html.ElementNode && htmlquery.ExistsAttr(n, "href") {
			ref = htmlquery.SelectAttr(n, "href")
		}
		matches = append(matches, Match{Text: text, Link: resolveLink(d.base, ref)})
	}
	return matches, nil
}
