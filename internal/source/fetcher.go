package source

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/obentoo/lifter/internal/common/logger"
)

// Size limits applied when reading responses
const (
	// DefaultMaxPageBytes bounds release pages and API documents
	DefaultMaxPageBytes int64 = 10 << 20
	// DefaultMaxDownloadBytes bounds downloaded assets
	DefaultMaxDownloadBytes int64 = 512 << 20
)

// PageKind tells the fetcher how a page will be interpreted.
type PageKind int

const (
	// PageHTML is a markup page queried with CSS or XPath
	PageHTML PageKind = iota
	// PageJSON is an API document queried with a JSON path. It is the only
	// kind that carries the bearer token and can be rate limited.
	PageJSON
)

// Page is a fetched release page.
type Page struct {
	// Body is the raw response body
	Body []byte
	// URL is the final URL after redirects, used to resolve relative links
	URL string
	// FromCache is true when the body was reused after a 304 answer
	FromCache bool
}

// ProgressFunc receives download progress. total is -1 when the server did
// not announce a length.
type ProgressFunc func(received, total int64)

// Fetcher retrieves release pages and assets.
type Fetcher struct {
	client      *Client
	cache       *ResponseCache
	token       string
	maxPage     int64
	maxDownload int64
}

// FetcherOption is a functional option for configuring Fetcher
type FetcherOption func(*Fetcher)

// WithClient sets the HTTP client
func WithClient(c *Client) FetcherOption {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithCache enables conditional requests backed by the given cache
func WithCache(c *ResponseCache) FetcherOption {
	return func(f *Fetcher) {
		f.cache = c
	}
}

// WithToken sets the bearer token sent to JSON APIs
func WithToken(token string) FetcherOption {
	return func(f *Fetcher) {
		f.token = token
	}
}

// WithMaxPageBytes sets the page size limit
func WithMaxPageBytes(n int64) FetcherOption {
	return func(f *Fetcher) {
		f.maxPage = n
	}
}

// WithMaxDownloadBytes sets the asset size limit
func WithMaxDownloadBytes(n int64) FetcherOption {
	return func(f *Fetcher) {
		f.maxDownload = n
	}
}

// NewFetcher creates a new Fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		maxPage:     DefaultMaxPageBytes,
		maxDownload: DefaultMaxDownloadBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = NewClient()
	}
	return f
}

// FetchPage retrieves a release page. Transport failures and non-success
// answers are ErrFetchFailed, except that a JSON API answering 403 or 429
// yields a *RateLimitError.
func (f *Fetcher) FetchPage(ctx context.Context, pageURL string, kind PageKind) (*Page, error) {
	header := http.Header{}
	if kind == PageJSON {
		header.Set("Accept", "application/json")
		if f.token != "" {
			header.Set("Authorization", "Bearer "+f.token)
		}
	}

	var cached CachedResponse
	var haveCached bool
	if f.cache != nil {
		cached, haveCached = f.cache.Get(pageURL)
		if haveCached {
			if cached.ETag != "" {
				header.Set("If-None-Match", cached.ETag)
			}
			if cached.LastModified != "" {
				header.Set("If-Modified-Since", cached.LastModified)
			}
		}
	}

	resp, err := f.client.Get(ctx, pageURL, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && haveCached {
		logger.Debug("not modified, reusing cached body of %s", pageURL)
		return &Page{Body: cached.Body, URL: cached.FinalURL, FromCache: true}, nil
	}

	if kind == PageJSON && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests) {
		return nil, newRateLimitError(resp)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s: status %d", ErrFetchFailed, pageURL, resp.StatusCode)
	}

	body, err := readLimited(resp.Body, f.maxPage, nil, resp.ContentLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, pageURL, err)
	}

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if f.cache != nil {
		entry := CachedResponse{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			FinalURL:     finalURL,
			Body:         body,
		}
		if err := f.cache.Store(pageURL, entry); err != nil {
			logger.Warn("failed to store %s in response cache: %v", pageURL, err)
		}
	}

	return &Page{Body: body, URL: finalURL}, nil
}

// Download retrieves an asset. The bearer token is never sent with
// downloads since assets are commonly served from third-party hosts.
func (f *Fetcher) Download(ctx context.Context, assetURL string, progress ProgressFunc) ([]byte, error) {
	header := http.Header{}
	header.Set("Accept", "application/octet-stream")

	resp, err := f.client.Get(ctx, assetURL, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, assetURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s: status %d", ErrFetchFailed, assetURL, resp.StatusCode)
	}

	if resp.ContentLength > f.maxDownload {
		return nil, fmt.Errorf("%w: %s: %w: %d bytes exceeds limit of %d", ErrFetchFailed, assetURL, ErrResponseTooLarge, resp.ContentLength, f.maxDownload)
	}

	data, err := readLimited(resp.Body, f.maxDownload, progress, resp.ContentLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, assetURL, err)
	}
	return data, nil
}

// readLimited reads r fully, failing once more than limit bytes arrive.
func readLimited(r io.Reader, limit int64, progress ProgressFunc, total int64) ([]byte, error) {
	if total < 0 {
		total = -1
	}
	if progress != nil {
		r = &progressReader{r: r, total: total, fn: progress}
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrResponseTooLarge, limit)
	}
	return data, nil
}

// progressReader reports the running byte count after every read.
type progressReader struct {
	r     io.Reader
	n     int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.n += int64(n)
		p.fn(p.n, p.total)
	}
	return n, err
}
