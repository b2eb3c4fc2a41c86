package manifest

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Method selects how an item's release page is fetched and queried.
type Method string

const (
	// MethodHTMLScrape fetches an HTML page and evaluates CSS or XPath locators
	MethodHTMLScrape Method = "html_scrape"
	// MethodAPIJSON fetches a JSON document and evaluates JSON path locators
	MethodAPIJSON Method = "api_json"
)

// ValidMethods lists the accepted method values
var ValidMethods = []Method{MethodHTMLScrape, MethodAPIJSON}

// placeholderPattern matches {ident} placeholders and their {{ident}} escape.
// Braces around anything that is not an identifier (regex quantifiers such
// as {1,3}) are left alone.
var placeholderPattern = regexp.MustCompile(`\{\{[A-Za-z_][A-Za-z0-9_]*\}\}|\{[A-Za-z_][A-Za-z0-9_]*\}`)

// Resolved is the immutable, fully merged and substituted configuration of
// one item. It is produced before any network access.
type Resolved struct {
	Name   string
	Method Method
	// PageURL is the release page or API endpoint
	PageURL string
	// QuerySelector locates asset candidates (anchor_tag)
	QuerySelector string
	// AnchorPattern filters candidates; nil accepts every candidate.
	// It is anchored so it must match a candidate in full.
	AnchorPattern *regexp.Regexp
	// VersionLocator locates the version text (version_tag)
	VersionLocator string
	// VersionRegex optionally narrows the located version text
	VersionRegex *regexp.Regexp
	// TargetEntryName is the file to take out of a downloaded archive
	TargetEntryName string
	// DesiredFilename is the name the file is installed under
	DesiredFilename string
	// RecordedVersion is the version committed by the last successful run
	RecordedVersion string
	// Fields is the merged field map after substitution
	Fields map[string]string
}

// ResolveMethod returns the method an item will run with, looking through
// its template when the item does not declare one. It never fails; an
// unusable method is reported later by Resolve.
func ResolveMethod(item Item, templates TemplateSource) Method {
	if m, ok := item.Fields[KeyMethod]; ok && m != "" {
		return Method(m)
	}
	if ref := item.TemplateRef(); ref != "" && templates != nil {
		if t, ok := templates.Template(ref); ok && t.Fields[KeyMethod] != "" {
			return Method(t.Fields[KeyMethod])
		}
	}
	return MethodHTMLScrape
}

// Resolve merges the item's template into the item, substitutes
// placeholders and validates the result. Any problem is reported as
// ErrInvalidConfiguration.
func Resolve(item Item, templates TemplateSource) (*Resolved, error) {
	if item.err != nil {
		return nil, item.err
	}

	merged := make(map[string]string)

	// Template fields are the base layer
	if ref := item.TemplateRef(); ref != "" {
		if templates == nil {
			return nil, fmt.Errorf("%w: template %q not found", ErrInvalidConfiguration, ref)
		}
		tmpl, ok := templates.Template(ref)
		if !ok {
			return nil, fmt.Errorf("%w: template %q not found", ErrInvalidConfiguration, ref)
		}
		for k, v := range tmpl.Fields {
			merged[k] = v
		}
	}

	// Item fields replace template fields of the same name
	for k, v := range item.Fields {
		merged[k] = v
	}

	// The recorded version is run state, not configuration: it always comes
	// from the item and is never substituted.
	delete(merged, KeyVersion)

	for k, v := range merged {
		out, err := substitute(v, item.Fields)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrInvalidConfiguration, k, err)
		}
		merged[k] = out
	}

	r := &Resolved{
		Name:            item.Name,
		Method:          MethodHTMLScrape,
		PageURL:         strings.TrimSpace(merged[KeyPageURL]),
		QuerySelector:   strings.TrimSpace(merged[KeyAnchorTag]),
		VersionLocator:  strings.TrimSpace(merged[KeyVersionTag]),
		RecordedVersion: item.RecordedVersion(),
		Fields:          merged,
	}

	if m := merged[KeyMethod]; m != "" {
		r.Method = Method(m)
	}
	if !isValidMethod(r.Method) {
		return nil, fmt.Errorf("%w: unknown method %q (must be one of: %v)", ErrInvalidConfiguration, r.Method, ValidMethods)
	}

	var missing []string
	if r.PageURL == "" {
		missing = append(missing, KeyPageURL)
	}
	if r.QuerySelector == "" {
		missing = append(missing, KeyAnchorTag)
	}
	if r.VersionLocator == "" {
		missing = append(missing, KeyVersionTag)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required fields: %s", ErrInvalidConfiguration, strings.Join(missing, ", "))
	}

	if pat := merged[KeyAnchorText]; pat != "" {
		re, err := regexp.Compile("^(?:" + pat + ")$")
		if err != nil {
			return nil, fmt.Errorf("%w: invalid %s: %v", ErrInvalidConfiguration, KeyAnchorText, err)
		}
		r.AnchorPattern = re
	}

	if pat := merged[KeyVersionRegex]; pat != "" {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid %s: %v", ErrInvalidConfiguration, KeyVersionRegex, err)
		}
		r.VersionRegex = re
	}

	r.TargetEntryName = merged[KeyTargetFilename]
	if r.TargetEntryName == "" {
		r.TargetEntryName = merged[KeyTargetFilenameLong]
	}
	if r.TargetEntryName == "" {
		r.TargetEntryName = item.Name
	}

	r.DesiredFilename = merged[KeyDesiredFilename]
	if r.DesiredFilename == "" {
		r.DesiredFilename = r.TargetEntryName
	}

	if !isBaseName(r.TargetEntryName) {
		return nil, fmt.Errorf("%w: %s must be a file name, got %q", ErrInvalidConfiguration, KeyTargetFilename, r.TargetEntryName)
	}
	if !isBaseName(r.DesiredFilename) {
		return nil, fmt.Errorf("%w: %s must be a file name, got %q", ErrInvalidConfiguration, KeyDesiredFilename, r.DesiredFilename)
	}

	return r, nil
}

// substitute replaces every {ident} in value with the item's own value for
// ident. The pass is single: produced text is never scanned again.
func substitute(value string, source map[string]string) (string, error) {
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(value, func(token string) string {
		if strings.HasPrefix(token, "{{") {
			return token[1 : len(token)-1]
		}
		name := token[1 : len(token)-1]
		v, ok := source[name]
		if !ok {
			missing = append(missing, name)
			return token
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unresolved placeholder {%s}", strings.Join(missing, "}, {"))
	}
	return out, nil
}

func isValidMethod(m Method) bool {
	for _, v := range ValidMethods {
		if m == v {
			return true
		}
	}
	return false
}

func isBaseName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return filepath.Base(name) == name && !strings.ContainsAny(name, `/\`)
}
