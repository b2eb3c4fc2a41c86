package pipeline

import (
	"context"
	"errors"

	"github.com/obentoo/lifter/internal/archive"
	"github.com/obentoo/lifter/internal/manifest"
	"github.com/obentoo/lifter/internal/source"
)

// Failure reasons. Every failed outcome wraps exactly one of them; callers
// match with errors.Is.
var (
	ErrInvalidConfiguration     = manifest.ErrInvalidConfiguration
	ErrFetchFailed              = source.ErrFetchFailed
	ErrRateLimited              = source.ErrRateLimited
	ErrNoMatchFound             = source.ErrNoMatchFound
	ErrAmbiguousMatch           = source.ErrAmbiguousMatch
	ErrUnsupportedArchiveFormat = archive.ErrUnsupportedFormat
	ErrExtractionMissingEntry   = archive.ErrMissingEntry
	ErrFileSystem               = archive.ErrFileSystem
	ErrConfigWrite              = manifest.ErrConfigWrite
)

// reasons lists the failure reasons in match order. Rate limiting comes
// before fetch failure because a RateLimitError is checked by type.
var reasons = []struct {
	err  error
	name string
}{
	{ErrInvalidConfiguration, "InvalidConfiguration"},
	{ErrRateLimited, "RateLimited"},
	{ErrFetchFailed, "FetchFailed"},
	{ErrNoMatchFound, "NoMatchFound"},
	{ErrAmbiguousMatch, "AmbiguousMatch"},
	{ErrUnsupportedArchiveFormat, "UnsupportedArchiveFormat"},
	{ErrExtractionMissingEntry, "ExtractionMissingEntry"},
	{ErrFileSystem, "FileSystemError"},
	{ErrConfigWrite, "ConfigWriteError"},
}

// ReasonName returns the failure reason of err as a stable identifier, or
// an empty string for nil.
func ReasonName(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.name
		}
	}
	return "Unknown"
}

// classify maps errors raised below the pipeline onto a failure reason so
// that every failed outcome matches one of the exported sentinels.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, source.ErrInvalidLocator):
		return wrapReason(ErrInvalidConfiguration, err)
	case errors.Is(err, archive.ErrEntryTooLarge):
		return wrapReason(ErrUnsupportedArchiveFormat, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		if !errors.Is(err, ErrFetchFailed) {
			return wrapReason(ErrFetchFailed, err)
		}
	}
	return err
}

// reasonError attaches a failure reason to an error that lacks one.
type reasonError struct {
	reason error
	err    error
}

func wrapReason(reason, err error) error {
	return &reasonError{reason: reason, err: err}
}

func (e *reasonError) Error() string {
	return e.err.Error()
}

func (e *reasonError) Unwrap() []error {
	return []error{e.reason, e.err}
}
