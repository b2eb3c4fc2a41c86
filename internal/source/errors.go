package source

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Error variables for fetch and match errors
var (
	// ErrFetchFailed is returned when a page or asset cannot be retrieved
	ErrFetchFailed = errors.New("fetch failed")
	// ErrRateLimited is returned when a JSON API refuses a request because of its quota
	ErrRateLimited = errors.New("rate limited")
	// ErrResponseTooLarge is returned when a response exceeds the configured size limit
	ErrResponseTooLarge = errors.New("response too large")
	// ErrInvalidLocator is returned when a CSS, XPath or JSON path locator cannot be compiled
	ErrInvalidLocator = errors.New("invalid locator")
	// ErrNoMatchFound is returned when a locator, after filtering, matches nothing
	ErrNoMatchFound = errors.New("no match found")
	// ErrAmbiguousMatch is returned when more than one asset candidate survives filtering
	ErrAmbiguousMatch = errors.New("ambiguous match")
)

// RateLimitError is returned when a JSON API answers 403 or 429. The quota
// fields are filled from X-RateLimit-* headers when the server sends them.
type RateLimitError struct {
	StatusCode int
	Limit      int
	Remaining  int
	ResetAt    time.Time
}

// Error formats the rate limit details as a human-readable message.
func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("%s: status %d", ErrRateLimited, e.StatusCode)
	if e.Limit > 0 {
		msg += fmt.Sprintf(", %d/%d remaining", e.Remaining, e.Limit)
	}
	if !e.ResetAt.IsZero() {
		msg += ", resets at " + e.ResetAt.UTC().Format("15:04 UTC")
	}
	return msg
}

// Is reports whether target is ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// newRateLimitError builds a RateLimitError from the response headers.
// Malformed or missing headers leave the fields at zero.
func newRateLimitError(resp *http.Response) *RateLimitError {
	e := &RateLimitError{StatusCode: resp.StatusCode}
	e.Limit, _ = strconv.Atoi(resp.Header.Get("X-RateLimit-Limit"))
	e.Remaining, _ = strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining"))
	if reset, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil && reset > 0 {
		e.ResetAt = time.Unix(reset, 0)
	}
	return e
}
