package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"price-tracker/metrics"
	"price-tracker/utils"
)

// maxBodySize caps how much of a single upstream response is read.
const maxBodySize = 64 << 20

// Client is the HTTP client owned by one adapter for the duration of a run.
// It applies the adapter's headers, a request rate limit, a per-request
// timeout and retries on transient failures.
type Client struct {
	store     string
	http      *http.Client
	transport *http.Transport
	headers   map[string]string
	limiter   *rate.Limiter
	retry     *utils.RetryConfig
	logger    *utils.Logger
}

// NewClient creates a Client with its own connection pool.
func NewClient(store string, opts Options, headers map[string]string, logger *utils.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Every(opts.RateLimit)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		store:     store,
		http:      &http.Client{Timeout: timeout, Transport: transport},
		transport: transport,
		headers:   headers,
		limiter:   rate.NewLimiter(limit, 1),
		retry: &utils.RetryConfig{
			MaxAttempts: opts.MaxRetries,
			BaseDelay:   opts.RetryBaseDelay,
			Logger:      logger,
		},
		logger: logger,
	}
}

// Get fetches rawURL and returns the response body.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	err := c.retry.Do(ctx, "GET "+rawURL, func() error {
		var err error
		body, err = c.doRequest(ctx, rawURL)
		return err
	})
	return body, err
}

// GetJSON fetches rawURL and decodes the JSON body into out. Numbers are
// decoded as json.Number so identifiers keep their exact digits.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any) error {
	body, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// Close drops all idle connections of this client.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

func (c *Client) doRequest(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, utils.Permanent(fmt.Errorf("rate limiter: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, utils.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordRequest(c.store, 0, time.Since(start))
		select {
		case <-ctx.Done():
			return nil, utils.Permanent(fmt.Errorf("request was cancelled: %w", ctx.Err()))
		default:
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}
	}
	defer resp.Body.Close()
	metrics.RecordRequest(c.store, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		statusErr := &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, utils.Permanent(statusErr)
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	c.logger.Debug("GET %s -> %d (%d bytes)", rawURL, resp.StatusCode, len(body))
	return body, nil
}
