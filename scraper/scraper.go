// Package scraper holds the pieces shared by every store adapter: the
// adapter contract, the per-adapter HTTP client, the sitemap resolver and
// the helpers that normalize upstream JSON into models.ScrapedProduct.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"price-tracker/config"
	"price-tracker/models"
	"price-tracker/utils"
)

var (
	// ErrIncomplete marks a record dropped for a missing name or price.
	ErrIncomplete = errors.New("incomplete product record")
	// ErrUnparseablePrice marks a price text the parser could not read.
	ErrUnparseablePrice = errors.New("unparseable price")
)

// Adapter is implemented by every store-specific scraper.
//
// ScrapeAll yields either a product or a non-nil error describing a record,
// batch or page that was skipped; consumers count errors and keep pulling.
// Both sequences may be abandoned early. Close releases the HTTP client and
// must be called once the adapter is no longer used.
type Adapter interface {
	Name() string
	DiscoverCandidates(ctx context.Context) iter.Seq[string]
	ScrapeAll(ctx context.Context) iter.Seq2[*models.ScrapedProduct, error]
	Close() error
}

// StatusError is returned for a non-2xx upstream response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// BatchError reports a failed call that covered Size products at once.
type BatchError struct {
	Size int
	Err  error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch of %d products failed: %v", e.Size, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// LostRecords returns how many records an error yielded by ScrapeAll stands for.
func LostRecords(err error) int {
	var be *BatchError
	if errors.As(err, &be) && be.Size > 0 {
		return be.Size
	}
	return 1
}

// Options configures the HTTP behaviour and batching of an adapter.
type Options struct {
	Timeout        time.Duration
	UserAgent      string
	RateLimit      time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	BatchSize      int
	PageSize       int
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:        30 * time.Second,
		UserAgent:      config.DefaultUserAgent,
		RateLimit:      250 * time.Millisecond,
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
		BatchSize:      50,
		PageSize:       100,
	}
}

// NewOptions projects the scraper knobs out of the application config.
func NewOptions(cfg *config.Config) Options {
	return Options{
		Timeout:        cfg.RequestTimeout,
		UserAgent:      cfg.UserAgent,
		RateLimit:      time.Duration(cfg.RateLimitMs) * time.Millisecond,
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: cfg.RetryBaseDelay,
		BatchSize:      cfg.BatchSize,
		PageSize:       cfg.PageSize,
	}
}

// Base carries the state common to all adapters: the store being scraped,
// options, logger and the lazily created HTTP client.
type Base struct {
	Store   *models.Store
	Opts    Options
	Logger  *utils.Logger
	headers map[string]string

	mu     sync.Mutex
	client *Client
}

// NewBase returns a Base that will send headers with every request.
func NewBase(store *models.Store, opts Options, logger *utils.Logger, headers map[string]string) *Base {
	return &Base{
		Store:   store,
		Opts:    opts,
		Logger:  logger.WithField("store", store.Name),
		headers: headers,
	}
}

// Name returns the store name.
func (b *Base) Name() string {
	return b.Store.Name
}

// Client returns the adapter's HTTP client, creating it on first use.
func (b *Base) Client() *Client {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client == nil {
		b.client = NewClient(b.Store.Name, b.Opts, b.headers, b.Logger)
		b.Logger.Debug("HTTP client started for %s", b.Store.Name)
	}
	return b.client
}

// Close releases the HTTP client. It is safe to call more than once.
func (b *Base) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		b.client.Close()
		b.client = nil
		b.Logger.Debug("HTTP client closed for %s", b.Store.Name)
	}
	return nil
}

// ExtractProductID returns the last all-digit path segment of rawURL.
func ExtractProductID(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	segments := strings.Split(path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if isDigits(segments[i]) {
			return segments[i]
		}
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ExtractWith returns the first capture group of pattern in rawURL.
func ExtractWith(pattern *regexp.Regexp, rawURL string) string {
	m := pattern.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
