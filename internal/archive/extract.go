package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/ulikunitz/xz"
)

// DefaultMaxEntryBytes bounds a single extracted file (512 MiB)
const DefaultMaxEntryBytes int64 = 512 << 20

// Extractor lists and extracts archive entries held in memory.
type Extractor struct {
	maxEntryBytes int64
}

// ExtractorOption is a functional option for configuring Extractor
type ExtractorOption func(*Extractor)

// WithMaxEntryBytes sets the size limit of one extracted file
func WithMaxEntryBytes(n int64) ExtractorOption {
	return func(e *Extractor) {
		e.maxEntryBytes = n
	}
}

// NewExtractor creates a new extractor
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{maxEntryBytes: DefaultMaxEntryBytes}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the bytes to install from an asset. Raw assets are
// returned as is, single compressed files are decompressed, and archives
// yield the regular file whose base name is target.
func (e *Extractor) Extract(format Format, data []byte, target string) ([]byte, error) {
	switch {
	case format.HasEntries():
		return e.ExtractEntry(format, data, target)
	case format == FormatRaw:
		return data, nil
	default:
		r, err := decompressor(format, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return e.readEntry(r, target)
	}
}

// ListEntries returns the names of all regular files in an archive, in
// archive order.
func (e *Extractor) ListEntries(format Format, data []byte) ([]string, error) {
	var names []string
	err := walk(format, data, func(name string, _ func() (io.Reader, error)) (bool, error) {
		names = append(names, name)
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// ExtractEntry returns the content of the first regular file whose base
// name equals name. Directory prefixes inside the archive are ignored.
func (e *Extractor) ExtractEntry(format Format, data []byte, name string) ([]byte, error) {
	var content []byte
	found := false
	err := walk(format, data, func(entry string, open func() (io.Reader, error)) (bool, error) {
		if path.Base(entry) != name {
			return false, nil
		}
		r, err := open()
		if err != nil {
			return true, err
		}
		content, err = e.readEntry(r, entry)
		found = true
		return true, err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrMissingEntry, name)
	}
	return content, nil
}

// readEntry reads r up to the size limit.
func (e *Extractor) readEntry(r io.Reader, name string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, e.maxEntryBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrUnsupportedFormat, name, err)
	}
	if int64(len(data)) > e.maxEntryBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrEntryTooLarge, name, e.maxEntryBytes)
	}
	return data, nil
}

// visitFunc is called for each regular file. open returns the entry's
// content reader. Returning stop ends the walk.
type visitFunc func(name string, open func() (io.Reader, error)) (stop bool, err error)

// walk visits the regular files of an archive in order. Unreadable
// archives are reported as ErrUnsupportedFormat.
func walk(format Format, data []byte, visit visitFunc) error {
	switch format {
	case FormatZip:
		return walkZip(data, visit)
	case FormatTar, FormatTarGzip, FormatTarXz, FormatTarBzip2:
		return walkTar(format, data, visit)
	default:
		return fmt.Errorf("%w: %s has no entries", ErrUnsupportedFormat, format)
	}
}

func walkTar(format Format, data []byte, visit visitFunc) error {
	var r io.Reader = bytes.NewReader(data)
	if format != FormatTar {
		var err error
		if r, err = decompressor(format, r); err != nil {
			return err
		}
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: reading tar entry: %v", ErrUnsupportedFormat, err)
		}

		if !hdr.FileInfo().Mode().IsRegular() {
			continue
		}

		stop, err := visit(hdr.Name, func() (io.Reader, error) { return tr, nil })
		if err != nil || stop {
			return err
		}
	}
}

func walkZip(data []byte, visit visitFunc) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("%w: reading zip: %v", ErrUnsupportedFormat, err)
	}

	for _, f := range zr.File {
		if !f.FileInfo().Mode().IsRegular() {
			continue
		}

		var rc io.ReadCloser
		stop, err := visit(f.Name, func() (io.Reader, error) {
			var openErr error
			rc, openErr = f.Open()
			if openErr != nil {
				return nil, fmt.Errorf("%w: opening %s: %v", ErrUnsupportedFormat, f.Name, openErr)
			}
			return rc, nil
		})
		if rc != nil {
			rc.Close()
		}
		if err != nil || stop {
			return err
		}
	}
	return nil
}

// decompressor wraps r with the stream decoder of a compressed format.
func decompressor(format Format, r io.Reader) (io.Reader, error) {
	switch format {
	case FormatTarGzip, FormatGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: reading gzip: %v", ErrUnsupportedFormat, err)
		}
		return gz, nil
	case FormatTarXz, FormatXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: reading xz: %v", ErrUnsupportedFormat, err)
		}
		return xr, nil
	case FormatTarBzip2:
		return bzip2.NewReader(r), nil
	default:
		return r, nil
	}
}
