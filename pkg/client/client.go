// Package client provides the resilient HTTP fetcher used against the rate
// search server: fixed-backoff retries, per-attempt timeouts and an optional
// document cache.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/fx-rate-scraper/pkg/cache"
	"github.com/Sternrassler/fx-rate-scraper/pkg/logging"
)

// Prometheus metrics for fetch operations.
var (
	fxRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fx_requests_total",
		Help: "Total requests to the search server by method and status",
	}, []string{"method", "status"})

	fxRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fx_request_duration_seconds",
		Help:    "Request duration in seconds by method",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"method"})

	fxErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fx_errors_total",
		Help: "Total failed attempts by error class",
	}, []string{"class"})
)

// ErrorClass represents a classification of failed attempts.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassStatus represents any other non-200 response.
	ErrorClassStatus ErrorClass = "status"

	// ErrorClassTimeout represents an attempt that hit the request timeout.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassNetwork represents connection, DNS and TLS failures.
	ErrorClassNetwork ErrorClass = "network"
)

// DocumentCache stores successful responses. *cache.Manager implements it.
type DocumentCache interface {
	Get(ctx context.Context, key cache.CacheKey) (*cache.CacheEntry, error)
	Set(ctx context.Context, key cache.CacheKey, entry *cache.CacheEntry) error
}

// Config holds the client configuration.
type Config struct {
	// UserAgent is sent with every request.
	UserAgent string

	// Timeout bounds a single attempt (default: 60s).
	Timeout time.Duration

	// Retry controls the fixed-backoff loop.
	Retry RetryConfig

	// Cache is optional; nil disables caching.
	Cache DocumentCache

	// CacheTTL is how long a 200 response stays cached (default: 10m).
	CacheTTL time.Duration

	// HTTPClient overrides the transport. Its Timeout is replaced by Timeout.
	HTTPClient *http.Client
}

// DefaultConfig returns the default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent: userAgent,
		Timeout:   60 * time.Second,
		Retry:     DefaultRetryConfig(),
		CacheTTL:  10 * time.Minute,
	}
}

// Request describes one form request.
type Request struct {
	Method string
	URL    string
	Form   url.Values
}

// Get returns a GET request whose form is sent as the query string.
func Get(rawURL string, form url.Values) Request {
	return Request{Method: http.MethodGet, URL: rawURL, Form: form}
}

// Post returns a form-encoded POST request.
func Post(rawURL string, form url.Values) Request {
	return Request{Method: http.MethodPost, URL: rawURL, Form: form}
}

func (r Request) cacheKey() cache.CacheKey {
	return cache.CacheKey{Method: r.Method, URL: r.URL, Form: r.Form}
}

// Page is a fetched response.
type Page struct {
	StatusCode int
	Body       []byte
	Header     http.Header
	FromCache  bool
}

// OK reports whether the page was served with status 200.
func (p *Page) OK() bool {
	return p.StatusCode == http.StatusOK
}

// Client fetches pages from the search server. It is safe for concurrent
// use and applies no concurrency control of its own.
type Client struct {
	httpClient *http.Client
	config     Config
	wait       waitFunc
	logger     zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}
	if cfg.Retry.Backoff < 0 {
		return nil, fmt.Errorf("retry backoff must be >= 0 (got %s)", cfg.Retry.Backoff)
	}
	if cfg.Retry.MaxAttempts < 0 {
		return nil, fmt.Errorf("max attempts must be >= 0 (got %d)", cfg.Retry.MaxAttempts)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}

	httpClient := &http.Client{}
	if cfg.HTTPClient != nil {
		copied := *cfg.HTTPClient
		httpClient = &copied
	}
	httpClient.Timeout = cfg.Timeout

	return &Client{
		httpClient: httpClient,
		config:     cfg,
		wait:       sleepContext,
		logger:     logging.NewLogger("fx-client"),
	}, nil
}

// Fetch performs req until it succeeds or fails hard.
//
// With mustSucceed set, any status other than 200 is retried after the fixed
// backoff. Without it the page is returned whatever its status. Timeouts are
// retried in both cases; other transport errors are returned as *FetchError.
func (c *Client) Fetch(ctx context.Context, req Request, mustSucceed bool) (*Page, error) {
	if page := c.cached(ctx, req); page != nil {
		return page, nil
	}

	var page *Page
	err := retryWithBackoff(ctx, c.config.Retry, c.wait, c.logger, func(attempt int) error {
		p, err := c.attempt(ctx, req, attempt, mustSucceed)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.store(ctx, req, page)
	return page, nil
}

// attempt performs a single request with a freshly built body.
func (c *Client) attempt(ctx context.Context, req Request, attempt int, mustSucceed bool) (*Page, error) {
	c.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL).
		Int("attempt", attempt).
		Msg("Fetching")

	httpReq, err := newHTTPRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.config.UserAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		fxRequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
		fxRequestsTotal.WithLabelValues(req.Method, "error").Inc()
		return nil, c.transportError(ctx, req, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	fxRequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	fxRequestsTotal.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()
	if err != nil {
		return nil, c.transportError(ctx, req, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode != http.StatusOK && mustSucceed {
		errorClass := classifyStatus(resp.StatusCode)
		fxErrorsTotal.WithLabelValues(string(errorClass)).Inc()
		return nil, &FetchError{
			Method:     req.Method,
			URL:        req.URL,
			StatusCode: resp.StatusCode,
			ErrorClass: errorClass,
			Retryable:  shouldRetry(errorClass, mustSucceed),
		}
	}

	return &Page{
		StatusCode: resp.StatusCode,
		Body:       body,
		Header:     resp.Header,
	}, nil
}

// transportError converts a failed round trip. Cancellation of ctx itself is
// never retried.
func (c *Client) transportError(ctx context.Context, req Request, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrContextCancelled, ctxErr)
	}

	errorClass := ErrorClassNetwork
	if isTimeout(err) {
		errorClass = ErrorClassTimeout
	}
	fxErrorsTotal.WithLabelValues(string(errorClass)).Inc()

	return &FetchError{
		Method:     req.Method,
		URL:        req.URL,
		ErrorClass: errorClass,
		Retryable:  shouldRetry(errorClass, false),
		Err:        err,
	}
}

func (c *Client) cached(ctx context.Context, req Request) *Page {
	if c.config.Cache == nil {
		return nil
	}

	entry, err := c.config.Cache.Get(ctx, req.cacheKey())
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("url", req.URL).Msg("Cache lookup failed")
		}
		return nil
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL).
		Dur("ttl", entry.TTL()).
		Msg("Served from cache")

	return &Page{
		StatusCode: entry.StatusCode,
		Body:       entry.Data,
		Header:     http.Header{},
		FromCache:  true,
	}
}

// store caches 200 responses only.
func (c *Client) store(ctx context.Context, req Request, page *Page) {
	if c.config.Cache == nil || !page.OK() {
		return
	}

	entry := cache.NewEntry(page.Body, page.StatusCode, page.Header, c.config.CacheTTL)
	if err := c.config.Cache.Set(ctx, req.cacheKey(), entry); err != nil {
		c.logger.Warn().Err(err).Str("url", req.URL).Msg("Cache store failed")
	}
}

func newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	if method == http.MethodPost {
		httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, strings.NewReader(req.Form.Encode()))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return httpReq, nil
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}
	if len(req.Form) > 0 {
		query := u.Query()
		for key, values := range req.Form {
			for _, v := range values {
				query.Add(key, v)
			}
		}
		u.RawQuery = query.Encode()
	}

	return http.NewRequestWithContext(ctx, method, u.String(), nil)
}

// classifyStatus determines the error class for a non-200 status.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode >= 500:
		return ErrorClassServer
	case statusCode >= 400:
		return ErrorClassClient
	default:
		return ErrorClassStatus
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
