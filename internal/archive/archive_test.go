package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/ulikunitz/xz"
)

// testEntry is one file placed in a test archive
type testEntry struct {
	name    string
	content string
	dir     bool
}

func buildTar(t *testing.T, entries []testEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0755, Size: int64(len(e.content)), Typeflag: tar.TypeReg}
		if e.dir {
			hdr = &tar.Header{Name: e.name, Mode: 0755, Typeflag: tar.TypeDir}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader() error = %v", err)
		}
		if !e.dir {
			if _, err := tw.Write([]byte(e.content)); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return buf.Bytes()
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write(data)
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip Close() error = %v", err)
	}
	return buf.Bytes()
}

func xzBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz.NewWriter() error = %v", err)
	}
	xw.Write(data)
	if err := xw.Close(); err != nil {
		t.Fatalf("xz Close() error = %v", err)
	}
	return buf.Bytes()
}

func buildZip(t *testing.T, entries []testEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		name := e.name
		if e.dir {
			if _, err := zw.Create(name); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			continue
		}
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		w.Write([]byte(e.content))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close() error = %v", err)
	}
	return buf.Bytes()
}

var nestedEntries = []testEntry{
	{name: "tool-2.0.0/", dir: true},
	{name: "tool-2.0.0/README.md", content: "readme"},
	{name: "tool-2.0.0/bin/tool", content: "#!/bin/sh\necho tool\n"},
	{name: "tool-2.0.0/bin/tool-helper", content: "helper"},
}

// =============================================================================
// DetectFormat Tests
// =============================================================================

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"x.tar.gz", FormatTarGzip, false},
		{"x.tgz", FormatTarGzip, false},
		{"x.zip", FormatZip, false},
		{"x", FormatRaw, false},
		{"X.TAR.GZ", FormatTarGzip, false},
		{"tool-1.0-linux.tar.xz", FormatTarXz, false},
		{"tool.txz", FormatTarXz, false},
		{"tool.tar.bz2", FormatTarBzip2, false},
		{"tool.tar", FormatTar, false},
		{"tool.gz", FormatGzip, false},
		{"tool.xz", FormatXz, false},
		{"tool.exe", FormatRaw, false},
		{"Tool-x86_64.AppImage", FormatRaw, false},
		{"tool-linux-amd64", FormatRaw, false},
		{"tool.deb", 0, true},
		{"tool-v1.2.3", 0, true},
		{"tool.tar.zst", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Errorf("DetectFormat() error = %v, want ErrUnsupportedFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DetectFormat() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestDetectFormatLongestSuffix tests Property: compound tar suffixes always
// beat the single-file compression suffix they end with
func TestDetectFormatLongestSuffix(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("tar suffix wins over compression suffix", prop.ForAll(
		func(stem, suffix string) bool {
			want := map[string]Format{".tar.gz": FormatTarGzip, ".tar.xz": FormatTarXz, ".tar.bz2": FormatTarBzip2}[suffix]
			got, err := DetectFormat(stem + suffix)
			return err == nil && got == want
		},
		gen.RegexMatch(`^[a-zA-Z0-9_-]{1,20}$`),
		gen.OneConstOf(".tar.gz", ".tar.xz", ".tar.bz2"),
	))

	properties.Property("names without a dot are raw executables", prop.ForAll(
		func(name string) bool {
			got, err := DetectFormat(name)
			return err == nil && got == FormatRaw
		},
		gen.RegexMatch(`^[a-zA-Z0-9_-]{1,30}$`),
	))

	properties.TestingRun(t)
}

func TestFormatHasEntries(t *testing.T) {
	tests := []struct {
		format Format
		want   bool
	}{
		{FormatRaw, false},
		{FormatTar, true},
		{FormatTarGzip, true},
		{FormatTarXz, true},
		{FormatTarBzip2, true},
		{FormatZip, true},
		{FormatGzip, false},
		{FormatXz, false},
	}
	for _, tt := range tests {
		if got := tt.format.HasEntries(); got != tt.want {
			t.Errorf("%s.HasEntries() = %v, want %v", tt.format, got, tt.want)
		}
	}
}

// =============================================================================
// Extract Tests
// =============================================================================

func TestExtractFromArchives(t *testing.T) {
	tarData := buildTar(t, nestedEntries)

	tests := []struct {
		name   string
		format Format
		data   []byte
	}{
		{"tar", FormatTar, tarData},
		{"tar.gz", FormatTarGzip, gzipBytes(t, tarData)},
		{"tar.xz", FormatTarXz, xzBytes(t, tarData)},
		{"zip", FormatZip, buildZip(t, nestedEntries)},
	}

	e := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Extract(tt.format, tt.data, "tool")
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if string(got) != "#!/bin/sh\necho tool\n" {
				t.Errorf("Extract() = %q", got)
			}

			names, err := e.ListEntries(tt.format, tt.data)
			if err != nil {
				t.Fatalf("ListEntries() error = %v", err)
			}
			if len(names) != 3 {
				t.Errorf("ListEntries() = %v, want 3 regular files", names)
			}

			if _, err := e.Extract(tt.format, tt.data, "missing"); !errors.Is(err, ErrMissingEntry) {
				t.Errorf("Extract(missing) error = %v, want ErrMissingEntry", err)
			}
		})
	}
}

func TestExtractSingleFileFormats(t *testing.T) {
	payload := []byte("binary-content")
	e := NewExtractor()

	for _, tt := range []struct {
		format Format
		data   []byte
	}{
		{FormatRaw, payload},
		{FormatGzip, gzipBytes(t, payload)},
		{FormatXz, xzBytes(t, payload)},
	} {
		got, err := e.Extract(tt.format, tt.data, "ignored")
		if err != nil {
			t.Fatalf("%v: Extract() error = %v", tt.format, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("%v: Extract() = %q, want %q", tt.format, got, payload)
		}
	}
}

func TestExtractCorruptArchive(t *testing.T) {
	e := NewExtractor()
	for _, format := range []Format{FormatTarGzip, FormatTarXz, FormatTarBzip2, FormatZip, FormatGzip} {
		if _, err := e.Extract(format, []byte("definitely not an archive"), "tool"); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("%v: Extract() error = %v, want ErrUnsupportedFormat", format, err)
		}
	}
}

func TestExtractEntryTooLarge(t *testing.T) {
	data := buildTar(t, []testEntry{{name: "tool", content: "0123456789"}})
	e := NewExtractor(WithMaxEntryBytes(5))
	if _, err := e.Extract(FormatTar, data, "tool"); !errors.Is(err, ErrEntryTooLarge) {
		t.Errorf("Extract() error = %v, want ErrEntryTooLarge", err)
	}
}

// =============================================================================
// Install Tests
// =============================================================================

func TestInstall(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bin")

	path, err := Install(dir, "tool", []byte("v1"))
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if path != filepath.Join(dir, "tool") {
		t.Errorf("path = %q", path)
	}

	// Replacing an existing file
	if _, err := Install(dir, "tool", []byte("v2")); err != nil {
		t.Fatalf("second Install() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "v2" {
		t.Errorf("content = %q, want v2", data)
	}

	if runtime.GOOS != "windows" {
		info, _ := os.Stat(path)
		if info.Mode().Perm()&0111 == 0 {
			t.Errorf("mode = %v, want execute bits", info.Mode().Perm())
		}
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1 (no temp files left)", len(entries))
	}
}

func TestInstallIntoFileFails(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Install(file, "tool", []byte("x")); !errors.Is(err, ErrFileSystem) {
		t.Errorf("Install() error = %v, want ErrFileSystem", err)
	}
}
