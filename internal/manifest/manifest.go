// Package manifest loads the lifter manifest: the TOML file that declares
// tracked items, the reusable templates they inherit from, and the last
// recorded version of every item.
//
// A manifest looks like this:
//
//	[templates.github]
//	method = "api_json"
//	page_url = "https://api.github.com/repos/{project}/releases/latest"
//	anchor_tag = "assets[*].browser_download_url"
//	version_tag = "tag_name"
//
//	[rg]
//	template = "github"
//	project = "BurntSushi/ripgrep"
//	anchor_text = "ripgrep-.*-x86_64-unknown-linux-musl.tar.gz"
//	version = "14.1.0"
//
// Every top-level table other than "templates" is an item. All item and
// template values are strings.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Field names recognised in items and templates.
const (
	KeyTemplate        = "template"
	KeyMethod          = "method"
	KeyPageURL         = "page_url"
	KeyAnchorTag       = "anchor_tag"
	KeyAnchorText      = "anchor_text"
	KeyVersionTag      = "version_tag"
	KeyVersionRegex    = "version_regex"
	KeyTargetFilename  = "target_filename"
	KeyDesiredFilename = "desired_filename"
	KeyVersion         = "version"

	// KeyTargetFilenameLong is the long spelling of KeyTargetFilename
	// accepted for manifests written for older releases.
	KeyTargetFilenameLong = "target_filename_to_extract_from_archive"
)

// templatesTable is the top-level table holding named templates.
const templatesTable = "templates"

// Error variables for manifest errors
var (
	// ErrManifestNotFound is returned when the manifest file does not exist
	ErrManifestNotFound = errors.New("manifest not found")
	// ErrManifestInvalid is returned when the manifest cannot be parsed as TOML
	ErrManifestInvalid = errors.New("manifest is not valid TOML")
	// ErrInvalidConfiguration is returned when an item cannot be resolved into
	// a runnable configuration
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrItemNotFound is returned when an item is not declared in the manifest
	ErrItemNotFound = errors.New("item not found in manifest")
)

// Template is a named set of default fields shared by several items.
type Template struct {
	Name   string
	Fields map[string]string
}

// Item is one tracked download target as declared in the manifest.
// Fields holds only what the item itself declares; template fields are
// merged in by Resolve.
type Item struct {
	Name   string
	Fields map[string]string
	// err records a declaration problem (for example a nested table where a
	// string was expected). It is reported when the item is resolved so one
	// broken item never prevents the others from loading.
	err error
}

// TemplateRef returns the name of the template the item inherits from, or
// "" for a self-contained item.
func (i Item) TemplateRef() string {
	return i.Fields[KeyTemplate]
}

// RecordedVersion returns the version last committed for the item.
func (i Item) RecordedVersion() string {
	return i.Fields[KeyVersion]
}

// Err returns the declaration error of the item, if any.
func (i Item) Err() error {
	return i.err
}

// TemplateSource looks up templates by name.
type TemplateSource interface {
	Template(name string) (Template, bool)
}

// Manifest is the parsed content of a manifest file.
type Manifest struct {
	// Items in file order
	Items     []Item
	templates map[string]Template
}

// Template returns the named template.
func (m *Manifest) Template(name string) (Template, bool) {
	t, ok := m.templates[name]
	if !ok {
		return Template{}, false
	}
	return t.clone(), true
}

// TemplateNames returns the names of all templates.
func (m *Manifest) TemplateNames() []string {
	names := make([]string, 0, len(m.templates))
	for name := range m.templates {
		names = append(names, name)
	}
	return names
}

// Item returns the named item.
func (m *Manifest) Item(name string) (Item, bool) {
	for _, it := range m.Items {
		if it.Name == name {
			return it.clone(), true
		}
	}
	return Item{}, false
}

// Select returns the named items in manifest order. An empty names list
// selects every item. Unknown names are reported with ErrItemNotFound.
func (m *Manifest) Select(names []string) ([]Item, error) {
	if len(names) == 0 {
		items := make([]Item, 0, len(m.Items))
		for _, it := range m.Items {
			items = append(items, it.clone())
		}
		return items, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := m.Item(n); !ok {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, n)
		}
		wanted[n] = true
	}

	items := make([]Item, 0, len(names))
	for _, it := range m.Items {
		if wanted[it.Name] {
			items = append(items, it.clone())
		}
	}
	return items, nil
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// Parse parses manifest content. Only malformed TOML is an error here;
// problems confined to a single item are attached to that item.
//
// Items must be written as [name] tables. An inline table or top-level
// dotted keys decode to the same data, but their version line cannot be
// committed, so such items are rejected.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]interface{}
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}

	headers := tableHeaders(data)

	m := &Manifest{templates: make(map[string]Template)}

	for _, key := range md.Keys() {
		switch {
		case len(key) == 1 && key[0] != templatesTable:
			name := key[0]
			table, ok := raw[name].(map[string]interface{})
			if !ok {
				// Top-level scalars are not items.
				continue
			}
			fields, ferr := stringFields(table)
			item := Item{Name: name, Fields: fields}
			switch {
			case !headers[name]:
				item.err = fmt.Errorf("%w: item %s must be declared with a [%s] table header", ErrInvalidConfiguration, name, name)
			case ferr != nil:
				item.err = fmt.Errorf("%w: item %s: %v", ErrInvalidConfiguration, name, ferr)
			}
			m.Items = append(m.Items, item)

		case len(key) == 2 && key[0] == templatesTable:
			name := key[1]
			templates, _ := raw[templatesTable].(map[string]interface{})
			table, ok := templates[name].(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: template %s is not a table", ErrManifestInvalid, name)
			}
			fields, ferr := stringFields(table)
			if ferr != nil {
				return nil, fmt.Errorf("%w: template %s: %v", ErrManifestInvalid, name, ferr)
			}
			m.templates[name] = Template{Name: name, Fields: fields}
		}
	}

	return m, nil
}

// tableHeaders returns the names of all single-key [table] headers in data.
func tableHeaders(data []byte) map[string]bool {
	headers := make(map[string]bool)
	for _, line := range strings.Split(string(data), "\n") {
		if name, ok := tableHeader(line); ok {
			headers[name] = true
		}
	}
	return headers
}

// stringFields converts a decoded TOML table into a string map. Scalars are
// stringified; nested tables and arrays are rejected.
func stringFields(table map[string]interface{}) (map[string]string, error) {
	fields := make(map[string]string, len(table))
	var firstErr error
	for k, v := range table {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case int64:
			fields[k] = strconv.FormatInt(val, 10)
		case float64:
			fields[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			fields[k] = strconv.FormatBool(val)
		default:
			if firstErr == nil {
				firstErr = fmt.Errorf("field %q must be a string, got %T", k, v)
			}
		}
	}
	return fields, firstErr
}

func (t Template) clone() Template {
	return Template{Name: t.Name, Fields: cloneFields(t.Fields)}
}

func (i Item) clone() Item {
	return Item{Name: i.Name, Fields: cloneFields(i.Fields), err: i.err}
}

func cloneFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
