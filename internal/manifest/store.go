package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// Error variables for store errors
var (
	// ErrConfigWrite is returned when a version cannot be committed to the manifest
	ErrConfigWrite = errors.New("failed to write manifest")
	// ErrStoreClosed is returned when committing through a closed store
	ErrStoreClosed = errors.New("manifest store is closed")
)

// Store is the durable configuration store. It is opened once per run,
// serves templates and recorded versions, and commits each item's new
// version on its own so an interrupted run keeps what it already did.
type Store struct {
	path     string
	mu       sync.Mutex
	manifest *Manifest
	versions map[string]string
	closed   bool
}

// Open loads the manifest at path into a new store.
func Open(path string) (*Store, error) {
	m, err := Load(path)
	if err != nil {
		return nil, err
	}

	versions := make(map[string]string, len(m.Items))
	for _, it := range m.Items {
		versions[it.Name] = it.RecordedVersion()
	}

	return &Store{
		path:     path,
		manifest: m,
		versions: versions,
	}, nil
}

// Path returns the manifest file path.
func (s *Store) Path() string {
	return s.path
}

// Manifest returns the manifest as it was read when the store was opened.
func (s *Store) Manifest() *Manifest {
	return s.manifest
}

// Template returns the named template.
func (s *Store) Template(name string) (Template, bool) {
	return s.manifest.Template(name)
}

// RecordedVersion returns the current recorded version of an item,
// including versions committed during this run.
func (s *Store) RecordedVersion(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[name]
}

// CommitVersion durably records version as the item's recorded version.
// Only the item's version line changes. The new file is validated before
// it atomically replaces the old one; on any error the manifest on disk is
// left as it was.
func (s *Store) CommitVersion(name, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigWrite, err)
	}

	// Re-read so edits made by others since Open are preserved
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigWrite, err)
	}

	updated, err := SetVersion(data, name, version)
	if err != nil {
		return err
	}

	if err := writeFileAtomic(s.path, updated, info.Mode().Perm()); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigWrite, err)
	}

	s.versions[name] = version
	return nil
}

// Close releases the store. Further commits fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// SetVersion returns data with the named item's version set to version.
// The item's table is edited in place: an existing version line is
// replaced, otherwise one is appended to the table. Everything else,
// comments and formatting included, is kept byte for byte.
func SetVersion(data []byte, name, version string) ([]byte, error) {
	before, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigWrite, err)
	}
	if _, ok := before.Item(name); !ok {
		return nil, fmt.Errorf("%w: %w: %s", ErrConfigWrite, ErrItemNotFound, name)
	}

	rendered, err := renderVersionLine(version)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(data), "\n")

	start := -1
	for i, line := range lines {
		if header, ok := tableHeader(line); ok && header == name {
			start = i
			break
		}
	}
	if start == -1 {
		return nil, fmt.Errorf("%w: no [%s] table header found", ErrConfigWrite, name)
	}

	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if isHeaderLine(lines[i]) {
			end = i
			break
		}
	}

	replaced := false
	for i := start + 1; i < end; i++ {
		if isVersionLine(lines[i]) {
			indent := lines[i][:len(lines[i])-len(strings.TrimLeft(lines[i], " \t"))]
			lines[i] = indent + rendered + lineEnding(lines[i])
			replaced = true
			break
		}
	}

	if !replaced {
		last := start
		for i := start + 1; i < end; i++ {
			if strings.TrimSpace(lines[i]) != "" {
				last = i
			}
		}
		newLine := rendered + lineEnding(lines[last])
		lines = append(lines[:last+1], append([]string{newLine}, lines[last+1:]...)...)
	}

	out := []byte(strings.Join(lines, "\n"))

	// The edit must decode to the same manifest with only this version changed
	after, err := Parse(out)
	if err != nil {
		return nil, fmt.Errorf("%w: edited manifest does not parse: %v", ErrConfigWrite, err)
	}
	if err := sameExceptVersion(before, after, name, version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigWrite, err)
	}

	return out, nil
}

// renderVersionLine encodes `version = "<v>"` with TOML string escaping.
func renderVersionLine(version string) (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(map[string]string{KeyVersion: version}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfigWrite, err)
	}
	return strings.TrimRight(buf.String(), "\r\n"), nil
}

// tableHeader returns the single-key name of a [table] header line.
// Array tables and dotted headers are not item headers.
func tableHeader(line string) (string, bool) {
	s := strings.TrimSpace(line)
	if !strings.HasPrefix(s, "[") || strings.HasPrefix(s, "[[") {
		return "", false
	}
	s = strings.TrimSpace(s[1:])

	var key, rest string
	switch {
	case strings.HasPrefix(s, `"`):
		end := closingQuote(s, '"')
		if end < 0 {
			return "", false
		}
		unq, err := strconv.Unquote(s[:end+1])
		if err != nil {
			return "", false
		}
		key, rest = unq, s[end+1:]
	case strings.HasPrefix(s, "'"):
		end := strings.IndexByte(s[1:], '\'')
		if end < 0 {
			return "", false
		}
		key, rest = s[1:end+1], s[end+2:]
	default:
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return "", false
		}
		key = strings.TrimSpace(s[:end])
		if key == "" || strings.ContainsAny(key, `."' `) {
			return "", false
		}
		rest = s[end:]
	}

	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "]") {
		return "", false
	}
	return key, true
}

// closingQuote returns the index of the quote that closes the basic string
// starting at s[0], honouring backslash escapes.
func closingQuote(s string, q byte) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case q:
			return i
		}
	}
	return -1
}

func isHeaderLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "[")
}

func isVersionLine(line string) bool {
	s := strings.TrimSpace(line)
	for _, key := range []string{KeyVersion, `"` + KeyVersion + `"`, "'" + KeyVersion + "'"} {
		if strings.HasPrefix(s, key) {
			rest := strings.TrimSpace(s[len(key):])
			if strings.HasPrefix(rest, "=") {
				return true
			}
		}
	}
	return false
}

func lineEnding(line string) string {
	if strings.HasSuffix(line, "\r") {
		return "\r"
	}
	return ""
}

// sameExceptVersion checks that after differs from before only in the
// named item's version.
func sameExceptVersion(before, after *Manifest, name, version string) error {
	if len(before.Items) != len(after.Items) {
		return fmt.Errorf("item count changed from %d to %d", len(before.Items), len(after.Items))
	}
	for i, b := range before.Items {
		a := after.Items[i]
		if a.Name != b.Name {
			return fmt.Errorf("item order changed at %s", b.Name)
		}
		want := cloneFields(b.Fields)
		if b.Name == name {
			want[KeyVersion] = version
		}
		if !reflect.DeepEqual(want, a.Fields) {
			return fmt.Errorf("item %s changed unexpectedly", b.Name)
		}
	}
	if !reflect.DeepEqual(before.templates, after.templates) {
		return errors.New("templates changed unexpectedly")
	}
	return nil
}

// writeFileAtomic writes data to a temporary file next to path, syncs it and
// renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	committed = true
	return nil
}
