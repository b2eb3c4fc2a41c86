package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Error variables for cache errors
var (
	// ErrCacheCorrupted is returned when the cache file cannot be parsed
	ErrCacheCorrupted = errors.New("cache file is corrupted")
)

// DefaultCacheTTL is the default time-to-live for cached responses (24 hours)
const DefaultCacheTTL = 24 * time.Hour

// cacheFileName is the file the response cache is persisted to
const cacheFileName = "responses.json"

// CachedResponse is a page body stored together with its HTTP validators.
// It lets the next run send a conditional request and reuse the body on 304.
type CachedResponse struct {
	// ETag is the entity tag sent by the server
	ETag string `json:"etag,omitempty"`
	// LastModified is the Last-Modified header sent by the server
	LastModified string `json:"last_modified,omitempty"`
	// FinalURL is the URL the response was served from after redirects
	FinalURL string `json:"final_url"`
	// Body is the response body
	Body []byte `json:"body"`
	// Timestamp is when this entry was stored
	Timestamp time.Time `json:"timestamp"`
}

// hasValidator reports whether the entry can be revalidated.
func (r CachedResponse) hasValidator() bool {
	return r.ETag != "" || r.LastModified != ""
}

// cacheFile represents the JSON structure stored on disk
type cacheFile struct {
	Entries map[string]CachedResponse `json:"entries"`
}

// ResponseCache keeps the last response of every page URL with its
// validators. It persists entries to disk and supports concurrent access.
type ResponseCache struct {
	entries map[string]CachedResponse
	ttl     time.Duration
	path    string
	mu      sync.RWMutex
	nowFunc func() time.Time
}

// CacheOption is a functional option for configuring ResponseCache
type CacheOption func(*ResponseCache)

// WithTTL sets a custom TTL for the cache
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *ResponseCache) {
		c.ttl = ttl
	}
}

// WithNowFunc sets a custom time function for testing
func WithNowFunc(fn func() time.Time) CacheOption {
	return func(c *ResponseCache) {
		c.nowFunc = fn
	}
}

// NewResponseCache creates or loads a cache stored in dir.
// A missing or corrupted cache file yields an empty cache; the file is
// rewritten on the next store. Expired entries are removed on load.
func NewResponseCache(dir string, opts ...CacheOption) (*ResponseCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &ResponseCache{
		entries: make(map[string]CachedResponse),
		ttl:     DefaultCacheTTL,
		path:    filepath.Join(dir, cacheFileName),
		nowFunc: time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.load(); err != nil && !os.IsNotExist(err) {
		c.entries = make(map[string]CachedResponse)
	}

	// Expired bodies are dropped from disk as soon as the cache is opened
	if err := c.Cleanup(); err != nil {
		return nil, err
	}

	return c, nil
}

// load reads the cache from disk
func (c *ResponseCache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}

	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}

	if cf.Entries != nil {
		c.entries = cf.Entries
	}
	return nil
}

// Get returns the cached response for url if it exists and has not expired.
func (c *ResponseCache) Get(url string) (CachedResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[url]
	if !ok || c.isExpired(entry) {
		return CachedResponse{}, false
	}
	return entry, true
}

// Store records a response for url and saves the cache. Responses without
// a validator are not worth keeping and are ignored, as is a response
// identical to the one already stored.
func (c *ResponseCache) Store(url string, entry CachedResponse) error {
	if !entry.hasValidator() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[url]; ok && !c.isExpired(old) &&
		old.ETag == entry.ETag && old.LastModified == entry.LastModified &&
		old.FinalURL == entry.FinalURL && bytes.Equal(old.Body, entry.Body) {
		return nil
	}

	entry.Timestamp = c.nowFunc()
	c.entries[url] = entry
	return c.saveUnsafe()
}

// Len returns the number of entries in the cache.
func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cleanup removes all expired entries and saves the cache.
func (c *ResponseCache) Cleanup() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := false
	for url, entry := range c.entries {
		if c.isExpired(entry) {
			delete(c.entries, url)
			removed = true
		}
	}
	if !removed {
		return nil
	}
	return c.saveUnsafe()
}

// isExpired checks if a cache entry has expired based on TTL
func (c *ResponseCache) isExpired(entry CachedResponse) bool {
	return c.nowFunc().Sub(entry.Timestamp) >= c.ttl
}

// saveUnsafe persists the cache to disk without locking.
// Caller must hold the write lock.
func (c *ResponseCache) saveUnsafe() error {
	data, err := json.Marshal(cacheFile{Entries: c.entries})
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}

	return nil
}
