package manifest

import (
	"errors"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// mapTemplates is a TemplateSource backed by a map
type mapTemplates map[string]Template

func (m mapTemplates) Template(name string) (Template, bool) {
	t, ok := m[name]
	return t, ok
}

func githubTemplates() mapTemplates {
	return mapTemplates{
		"github": {Name: "github", Fields: map[string]string{
			KeyMethod:     "api_json",
			KeyPageURL:    "https://api.github.com/repos/{project}/releases/latest",
			KeyAnchorTag:  "assets[*].browser_download_url",
			KeyVersionTag: "tag_name",
		}},
	}
}

// =============================================================================
// Resolve Tests
// =============================================================================

func TestResolveTemplateItem(t *testing.T) {
	item := Item{Name: "rg", Fields: map[string]string{
		KeyTemplate:   "github",
		"project":     "BurntSushi/ripgrep",
		KeyAnchorText: "ripgrep-.*-musl.tar.gz",
		KeyVersion:    "14.0.0",
	}}

	r, err := Resolve(item, githubTemplates())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if r.Method != MethodAPIJSON {
		t.Errorf("Method = %q, want api_json", r.Method)
	}
	if r.PageURL != "https://api.github.com/repos/BurntSushi/ripgrep/releases/latest" {
		t.Errorf("PageURL = %q", r.PageURL)
	}
	if r.TargetEntryName != "rg" || r.DesiredFilename != "rg" {
		t.Errorf("TargetEntryName/DesiredFilename = %q/%q, want rg/rg", r.TargetEntryName, r.DesiredFilename)
	}
	if r.RecordedVersion != "14.0.0" {
		t.Errorf("RecordedVersion = %q, want 14.0.0", r.RecordedVersion)
	}
	if !r.AnchorPattern.MatchString("ripgrep-14.1.0-musl.tar.gz") {
		t.Error("AnchorPattern should match the full asset name")
	}
	if r.AnchorPattern.MatchString("ripgrep-14.1.0-musl.tar.gz.sha256") {
		t.Error("AnchorPattern must be anchored at both ends")
	}
}

func TestResolveDefaults(t *testing.T) {
	item := Item{Name: "tool", Fields: map[string]string{
		KeyPageURL:            "https://example.com/releases",
		KeyAnchorTag:          "a",
		KeyVersionTag:         "h1",
		KeyTargetFilenameLong: "tool-linux",
	}}

	r, err := Resolve(item, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if r.Method != MethodHTMLScrape {
		t.Errorf("Method = %q, want html_scrape", r.Method)
	}
	if r.TargetEntryName != "tool-linux" {
		t.Errorf("TargetEntryName = %q, want tool-linux", r.TargetEntryName)
	}
	if r.DesiredFilename != "tool-linux" {
		t.Errorf("DesiredFilename = %q, want tool-linux", r.DesiredFilename)
	}
	if r.AnchorPattern != nil {
		t.Error("AnchorPattern should be nil when anchor_text is absent")
	}
}

func TestResolveErrors(t *testing.T) {
	base := func(extra map[string]string) Item {
		f := map[string]string{
			KeyPageURL:    "https://example.com",
			KeyAnchorTag:  "a",
			KeyVersionTag: "h1",
		}
		for k, v := range extra {
			f[k] = v
		}
		return Item{Name: "x", Fields: f}
	}

	tests := []struct {
		name    string
		item    Item
		wantMsg string
	}{
		{"missing template", base(map[string]string{KeyTemplate: "nope"}), "template"},
		{"unknown method", base(map[string]string{KeyMethod: "ftp"}), "unknown method"},
		{"missing page url", base(map[string]string{KeyPageURL: " "}), KeyPageURL},
		{"unresolved placeholder", base(map[string]string{KeyPageURL: "https://x/{owner}"}), "{owner}"},
		{"bad anchor regex", base(map[string]string{KeyAnchorText: "("}), KeyAnchorText},
		{"bad version regex", base(map[string]string{KeyVersionRegex: "[a-"}), KeyVersionRegex},
		{"path in desired filename", base(map[string]string{KeyDesiredFilename: "../bin/x"}), KeyDesiredFilename},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.item, githubTemplates())
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Fatalf("Resolve() error = %v, want ErrInvalidConfiguration", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q should mention %q", err, tt.wantMsg)
			}
		})
	}
}

// TestResolvePlaceholderUsesItemValuesOnly tests that template values are not substitution sources
func TestResolvePlaceholderUsesItemValuesOnly(t *testing.T) {
	templates := mapTemplates{
		"t": {Name: "t", Fields: map[string]string{
			"owner":       "template-owner",
			KeyPageURL:    "https://example.com/{owner}",
			KeyAnchorTag:  "a",
			KeyVersionTag: "h1",
		}},
	}

	item := Item{Name: "x", Fields: map[string]string{KeyTemplate: "t"}}
	if _, err := Resolve(item, templates); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("Resolve() error = %v, want ErrInvalidConfiguration", err)
	}

	item.Fields["owner"] = "item-owner"
	r, err := Resolve(item, templates)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if r.PageURL != "https://example.com/item-owner" {
		t.Errorf("PageURL = %q, want item-owner substitution", r.PageURL)
	}
}

// TestResolveRegexBracesUntouched tests that regex quantifiers are not placeholders
func TestResolveRegexBracesUntouched(t *testing.T) {
	item := Item{Name: "x", Fields: map[string]string{
		KeyPageURL:      "https://example.com",
		KeyAnchorTag:    "a",
		KeyVersionTag:   "h1",
		KeyAnchorText:   `tool-[0-9]{1,3}\.[0-9]{2}-{{literal}}`,
		KeyVersionRegex: `v([0-9]{1,3})`,
	}}

	r, err := Resolve(item, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !r.AnchorPattern.MatchString("tool-12.34-{literal}") {
		t.Errorf("AnchorPattern %q should match escaped literal braces", r.AnchorPattern)
	}
}

// TestResolveMethod tests method lookup through templates
func TestResolveMethod(t *testing.T) {
	withTemplate := Item{Name: "a", Fields: map[string]string{KeyTemplate: "github"}}
	if got := ResolveMethod(withTemplate, githubTemplates()); got != MethodAPIJSON {
		t.Errorf("ResolveMethod() = %q, want api_json", got)
	}
	plain := Item{Name: "b", Fields: map[string]string{}}
	if got := ResolveMethod(plain, nil); got != MethodHTMLScrape {
		t.Errorf("ResolveMethod() = %q, want html_scrape", got)
	}
}

// =============================================================================
// Property Tests
// =============================================================================

// TestItemFieldsOverrideTemplate tests Property: item-declared fields replace
// template fields entirely, and fields only the template declares are inherited
func TestItemFieldsOverrideTemplate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("item fields win over template fields", prop.ForAll(
		func(templateSel, itemSel string, overrideSel bool) bool {
			templates := mapTemplates{
				"t": {Name: "t", Fields: map[string]string{
					KeyPageURL:    "https://example.com/releases",
					KeyAnchorTag:  templateSel,
					KeyVersionTag: "h1",
				}},
			}
			fields := map[string]string{KeyTemplate: "t"}
			if overrideSel {
				fields[KeyAnchorTag] = itemSel
			}

			r, err := Resolve(Item{Name: "x", Fields: fields}, templates)
			if err != nil {
				t.Logf("Resolve() error = %v", err)
				return false
			}

			want := templateSel
			if overrideSel {
				want = itemSel
			}
			if r.QuerySelector != want {
				t.Logf("QuerySelector = %q, want %q", r.QuerySelector, want)
				return false
			}
			return r.PageURL == "https://example.com/releases"
		},
		gen.RegexMatch(`^[a-z]{1,8}(\.[a-z]{1,8})?$`),
		gen.RegexMatch(`^[a-z]{1,8}#[a-z]{1,8}$`),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestSubstitutionIsSinglePass tests Property: values produced by a
// substitution are never substituted again
func TestSubstitutionIsSinglePass(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("substituted text is inserted verbatim", prop.ForAll(
		func(word string) bool {
			// The value of a contains a placeholder referencing b
			source := map[string]string{"a": word + "{b}", "b": "never"}
			out, err := substitute("x-{a}", source)
			if err != nil {
				t.Logf("substitute() error = %v", err)
				return false
			}
			return out == "x-"+word+"{b}"
		},
		gen.RegexMatch(`^[a-z0-9]{0,10}$`),
	))

	properties.TestingRun(t)
}
