// Package archive recognises downloaded asset formats, takes the wanted
// executable out of them and installs it atomically.
package archive

import (
	"errors"
	"fmt"
	"strings"
)

// Error variables for archive errors
var (
	// ErrUnsupportedFormat is returned for asset names with an unknown
	// extension and for archives that cannot be read
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	// ErrMissingEntry is returned when the archive has no regular file with the wanted name
	ErrMissingEntry = errors.New("entry not found in archive")
	// ErrEntryTooLarge is returned when an extracted file exceeds the size limit
	ErrEntryTooLarge = errors.New("archive entry too large")
	// ErrFileSystem is returned when the installed file cannot be written
	ErrFileSystem = errors.New("file system error")
)

// Format is the container format of a downloaded asset.
type Format int

const (
	// FormatRaw is the executable itself
	FormatRaw Format = iota
	// FormatTar is an uncompressed tarball
	FormatTar
	// FormatTarGzip is a gzip-compressed tarball
	FormatTarGzip
	// FormatTarXz is an xz-compressed tarball
	FormatTarXz
	// FormatTarBzip2 is a bzip2-compressed tarball
	FormatTarBzip2
	// FormatZip is a zip archive
	FormatZip
	// FormatGzip is a single gzip-compressed file
	FormatGzip
	// FormatXz is a single xz-compressed file
	FormatXz
)

var formatNames = map[Format]string{
	FormatRaw:      "raw",
	FormatTar:      "tar",
	FormatTarGzip:  "tar+gzip",
	FormatTarXz:    "tar+xz",
	FormatTarBzip2: "tar+bzip2",
	FormatZip:      "zip",
	FormatGzip:     "gzip",
	FormatXz:       "xz",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// HasEntries reports whether the format holds named entries. Raw assets
// and single compressed files do not.
func (f Format) HasEntries() bool {
	switch f {
	case FormatTar, FormatTarGzip, FormatTarXz, FormatTarBzip2, FormatZip:
		return true
	}
	return false
}

// suffixes maps lower-case file name suffixes to formats
var suffixes = map[string]Format{
	".tar.gz":   FormatTarGzip,
	".tgz":      FormatTarGzip,
	".tar.xz":   FormatTarXz,
	".txz":      FormatTarXz,
	".tar.bz2":  FormatTarBzip2,
	".tbz2":     FormatTarBzip2,
	".tbz":      FormatTarBzip2,
	".tar":      FormatTar,
	".zip":      FormatZip,
	".gz":       FormatGzip,
	".xz":       FormatXz,
	".exe":      FormatRaw,
	".com":      FormatRaw,
	".appimage": FormatRaw,
	".bin":      FormatRaw,
}

// extensionWindow is how far from the end of a name a dot still counts as
// the start of an extension.
const extensionWindow = 8

// DetectFormat returns the format of an asset from its file name. The
// longest known suffix wins, so "x.tar.gz" is a gzip tarball and not a
// gzip file. A name with no dot near its end is a bare executable; a name
// with an unknown extension is ErrUnsupportedFormat.
func DetectFormat(name string) (Format, error) {
	lower := strings.ToLower(name)

	best := ""
	var format Format
	for suffix, f := range suffixes {
		if strings.HasSuffix(lower, suffix) && len(suffix) > len(best) {
			best, format = suffix, f
		}
	}
	if best != "" {
		return format, nil
	}

	tail := name
	if len(tail) > extensionWindow {
		tail = tail[len(tail)-extensionWindow:]
	}
	if !strings.Contains(tail, ".") {
		return FormatRaw, nil
	}

	return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}
