package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// jsonSource fetches JSON API documents
type jsonSource struct {
	fetcher *Fetcher
}

func (s *jsonSource) Fetch(ctx context.Context, pageURL string) (Document, error) {
	page, err := s.fetcher.FetchPage(ctx, pageURL, PageJSON)
	if err != nil {
		return nil, err
	}
	return ParseJSON(page.Body, page.URL)
}

// jsonDocument evaluates JSON paths over one decoded document.
type jsonDocument struct {
	data interface{}
	base *url.URL
	url  string
}

// ParseJSON decodes a JSON document served from pageURL.
func ParseJSON(content []byte, pageURL string) (Document, error) {
	var data interface{}
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON: %v", ErrFetchFailed, err)
	}
	base, _ := url.Parse(pageURL)
	return &jsonDocument{data: data, base: base, url: pageURL}, nil
}

func (d *jsonDocument) URL() string {
	return d.url
}

// Query evaluates a JSON path. Each scalar the path reaches is one Match
// whose Link is the value resolved against the document URL. Objects,
// arrays and nulls reached by the path are skipped.
func (d *jsonDocument) Query(locator string) ([]Match, error) {
	segments, err := parseJSONPath(locator)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, v := range evaluateJSONPath(d.data, segments) {
		s, ok := toString(v)
		if !ok {
			continue
		}
		matches = append(matches, Match{Text: s, Link: resolveLink(d.base, s)})
	}
	return matches, nil
}

// evaluateJSONPath walks data along segments and returns every value
// reached, in document order. Missing fields and out-of-range indexes end
// that branch without error so wildcards can cross uneven arrays.
func evaluateJSONPath(data interface{}, segments []pathSegment) []interface{} {
	current := []interface{}{data}
	for _, seg := range segments {
		var next []interface{}
		for _, node := range current {
			switch seg.segType {
			case segmentField:
				if obj, ok := node.(map[string]interface{}); ok {
					if val, exists := obj[seg.value]; exists {
						next = append(next, val)
					}
				}
			case segmentIndex:
				if arr, ok := node.([]interface{}); ok && seg.index < len(arr) {
					next = append(next, arr[seg.index])
				}
			case segmentWildcard:
				if arr, ok := node.([]interface{}); ok {
					next = append(next, arr...)
				}
			}
		}
		current = next
	}
	return current
}

// segmentType represents the type of path segment
type segmentType int

const (
	segmentField segmentType = iota
	segmentIndex
	segmentWildcard
)

// pathSegment represents a single segment in a JSON path
type pathSegment struct {
	segType segmentType
	value   string // field name for segmentField
	index   int    // array index for segmentIndex
}

// parseJSONPath parses a JSON path string into segments.
// Examples: "tag_name", "assets[*].browser_download_url", "$[0].name",
// "data.releases[0].files[*].url"
func parseJSONPath(path string) ([]pathSegment, error) {
	var segments []pathSegment
	remaining := strings.TrimSpace(path)
	remaining = strings.TrimPrefix(remaining, "$")

	for remaining != "" {
		remaining = strings.TrimPrefix(remaining, ".")
		if remaining == "" {
			return nil, fmt.Errorf("%w: JSON path %q ends with '.'", ErrInvalidLocator, path)
		}

		// Field name until dot, bracket, or end
		fieldEnd := len(remaining)
		for i, c := range remaining {
			if c == '.' || c == '[' {
				fieldEnd = i
				break
			}
		}
		if fieldEnd > 0 {
			segments = append(segments, pathSegment{segType: segmentField, value: remaining[:fieldEnd]})
			remaining = remaining[fieldEnd:]
		} else if remaining[0] == '.' {
			return nil, fmt.Errorf("%w: JSON path %q has an empty field name", ErrInvalidLocator, path)
		}

		for strings.HasPrefix(remaining, "[") {
			closeBracket := strings.Index(remaining, "]")
			if closeBracket == -1 {
				return nil, fmt.Errorf("%w: JSON path %q has an unclosed bracket", ErrInvalidLocator, path)
			}

			indexStr := strings.TrimSpace(remaining[1:closeBracket])
			if indexStr == "*" {
				segments = append(segments, pathSegment{segType: segmentWildcard})
			} else {
				index, err := strconv.Atoi(indexStr)
				if err != nil || index < 0 {
					return nil, fmt.Errorf("%w: JSON path %q has invalid array index %q", ErrInvalidLocator, path, indexStr)
				}
				segments = append(segments, pathSegment{segType: segmentIndex, index: index})
			}
			remaining = remaining[closeBracket+1:]
		}

		if remaining != "" && remaining[0] != '.' {
			return nil, fmt.Errorf("%w: JSON path %q: unexpected %q", ErrInvalidLocator, path, remaining)
		}
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: empty JSON path", ErrInvalidLocator)
	}

	return segments, nil
}

// toString converts a JSON scalar to a string
func toString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		// JSON numbers are float64
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10), true
		}
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}
