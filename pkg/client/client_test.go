package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/fx-rate-scraper/pkg/cache"
)

// waitCounter replaces the backoff sleep and counts invocations.
type waitCounter struct {
	calls atomic.Int64
}

func (w *waitCounter) wait(ctx context.Context, d time.Duration) error {
	w.calls.Add(1)
	return ctx.Err()
}

func newTestClient(t *testing.T, cfg Config) (*Client, *waitCounter) {
	t.Helper()

	if cfg.UserAgent == "" {
		cfg.UserAgent = "fx-rate-scraper-test/1.0"
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	counter := &waitCounter{}
	c.wait = counter.wait
	return c, counter
}

// statusSequence serves the given statuses in order, repeating the last one.
func statusSequence(statuses ...int) (http.HandlerFunc, *atomic.Int64) {
	var count atomic.Int64
	return func(w http.ResponseWriter, r *http.Request) {
		n := int(count.Add(1))
		status := statuses[len(statuses)-1]
		if n <= len(statuses) {
			status = statuses[n-1]
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, http.StatusText(status))
	}, &count
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "valid defaults",
			cfg:     DefaultConfig("fx/1.0"),
			wantErr: false,
		},
		{
			name:    "missing user agent",
			cfg:     DefaultConfig(""),
			wantErr: true,
		},
		{
			name: "negative backoff",
			cfg: Config{
				UserAgent: "fx/1.0",
				Retry:     RetryConfig{Backoff: -time.Second},
			},
			wantErr: true,
		},
		{
			name: "negative max attempts",
			cfg: Config{
				UserAgent: "fx/1.0",
				Retry:     RetryConfig{MaxAttempts: -1},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_DefaultTimeout(t *testing.T) {
	c, err := New(Config{UserAgent: "fx/1.0"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.httpClient.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v, want 60s", c.httpClient.Timeout)
	}
}

func TestFetch_RetriesUntilOK(t *testing.T) {
	handler, count := statusSequence(http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusOK)
	server := httptest.NewServer(handler)
	defer server.Close()

	c, waits := newTestClient(t, Config{Retry: DefaultRetryConfig()})

	page, err := c.Fetch(context.Background(), Post(server.URL, url.Values{"pjname": {"USD"}}), true)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if page.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", page.StatusCode)
	}
	if waits.calls.Load() != 2 {
		t.Errorf("backoff waits = %d, want 2", waits.calls.Load())
	}
	if count.Load() != 3 {
		t.Errorf("requests = %d, want 3", count.Load())
	}
}

func TestFetch_NoRetryWithoutMustSucceed(t *testing.T) {
	handler, count := statusSequence(http.StatusNotFound)
	server := httptest.NewServer(handler)
	defer server.Close()

	c, waits := newTestClient(t, Config{})

	page, err := c.Fetch(context.Background(), Get(server.URL, nil), false)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if page.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", page.StatusCode)
	}
	if page.OK() {
		t.Error("OK() = true, want false")
	}
	if waits.calls.Load() != 0 {
		t.Errorf("backoff waits = %d, want 0", waits.calls.Load())
	}
	if count.Load() != 1 {
		t.Errorf("requests = %d, want 1", count.Load())
	}
}

func TestFetch_RetryExhausted(t *testing.T) {
	handler, count := statusSequence(http.StatusInternalServerError)
	server := httptest.NewServer(handler)
	defer server.Close()

	c, waits := newTestClient(t, Config{Retry: RetryConfig{MaxAttempts: 3, Backoff: time.Millisecond}})

	_, err := c.Fetch(context.Background(), Post(server.URL, nil), true)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("Fetch() error = %v, want ErrRetryExhausted", err)
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error type = %T, want wrapped *FetchError", err)
	}
	if fetchErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", fetchErr.StatusCode)
	}
	if fetchErr.ErrorClass != ErrorClassServer {
		t.Errorf("ErrorClass = %s, want %s", fetchErr.ErrorClass, ErrorClassServer)
	}
	if count.Load() != 3 {
		t.Errorf("requests = %d, want 3", count.Load())
	}
	if waits.calls.Load() != 2 {
		t.Errorf("backoff waits = %d, want 2", waits.calls.Load())
	}
}

func TestFetch_TimeoutRetriedRegardless(t *testing.T) {
	var count atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if count.Add(1) == 1 {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	}))
	defer server.Close()

	c, waits := newTestClient(t, Config{Timeout: 50 * time.Millisecond})

	page, err := c.Fetch(context.Background(), Get(server.URL, nil), false)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(page.Body) != "ok" {
		t.Errorf("Body = %q, want ok", page.Body)
	}
	if waits.calls.Load() != 1 {
		t.Errorf("backoff waits = %d, want 1", waits.calls.Load())
	}
}

func TestFetch_NetworkErrorIsHardFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	target := server.URL
	server.Close()

	c, waits := newTestClient(t, Config{})

	_, err := c.Fetch(context.Background(), Get(target, nil), true)
	if err == nil {
		t.Fatal("Fetch() error = nil, want network error")
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error type = %T, want *FetchError", err)
	}
	if fetchErr.ErrorClass != ErrorClassNetwork {
		t.Errorf("ErrorClass = %s, want %s", fetchErr.ErrorClass, ErrorClassNetwork)
	}
	if fetchErr.Retryable {
		t.Error("Retryable = true, want false")
	}
	if waits.calls.Load() != 0 {
		t.Errorf("backoff waits = %d, want 0", waits.calls.Load())
	}
}

func TestFetch_ContextCancelledDuringBackoff(t *testing.T) {
	handler, _ := statusSequence(http.StatusServiceUnavailable)
	server := httptest.NewServer(handler)
	defer server.Close()

	c, err := New(Config{UserAgent: "fx/1.0", Retry: RetryConfig{Backoff: time.Hour}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.Fetch(ctx, Post(server.URL, nil), true)
	if !errors.Is(err, ErrContextCancelled) {
		t.Fatalf("Fetch() error = %v, want ErrContextCancelled", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Fetch() error = %v, want context cause kept", err)
	}
}

func TestFetch_FormEncoding(t *testing.T) {
	var mu sync.Mutex
	var gotMethod, gotQuery, gotBody, gotUA, gotContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		gotBody = string(body)
		gotUA = r.Header.Get("User-Agent")
		gotContentType = r.Header.Get("Content-Type")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, _ := newTestClient(t, Config{UserAgent: "fx-test/2.0"})
	form := url.Values{"erectDate": {"2024-01-01"}, "pjname": {"USD"}}

	t.Run("post", func(t *testing.T) {
		if _, err := c.Fetch(context.Background(), Post(server.URL, form), true); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		mu.Lock()
		defer mu.Unlock()
		if gotMethod != http.MethodPost {
			t.Errorf("method = %s, want POST", gotMethod)
		}
		if gotBody != form.Encode() {
			t.Errorf("body = %q, want %q", gotBody, form.Encode())
		}
		if gotContentType != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", gotContentType)
		}
		if gotUA != "fx-test/2.0" {
			t.Errorf("User-Agent = %q, want fx-test/2.0", gotUA)
		}
	})

	t.Run("get", func(t *testing.T) {
		if _, err := c.Fetch(context.Background(), Get(server.URL, form), true); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		mu.Lock()
		defer mu.Unlock()
		if gotMethod != http.MethodGet {
			t.Errorf("method = %s, want GET", gotMethod)
		}
		if gotQuery != form.Encode() {
			t.Errorf("query = %q, want %q", gotQuery, form.Encode())
		}
	})
}

func TestFetch_RebuildsBodyPerAttempt(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	var count atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
		if count.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, _ := newTestClient(t, Config{})
	form := url.Values{"page": {"2"}}

	if _, err := c.Fetch(context.Background(), Post(server.URL, form), true); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, b := range bodies {
		if b != "page=2" {
			t.Errorf("attempt %d body = %q, want page=2", i+1, b)
		}
	}
}

// memoryCache is an in-process DocumentCache.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*cache.CacheEntry
}

func (m *memoryCache) Get(ctx context.Context, key cache.CacheKey) (*cache.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key.String()]
	if !ok || entry.IsExpired() {
		return nil, cache.ErrCacheMiss
	}
	return entry, nil
}

func (m *memoryCache) Set(ctx context.Context, key cache.CacheKey, entry *cache.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key.String()] = entry
	return nil
}

func TestFetch_Cache(t *testing.T) {
	var count atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		if r.URL.Query().Get("missing") != "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "rates")
	}))
	defer server.Close()

	store := &memoryCache{entries: make(map[string]*cache.CacheEntry)}
	c, _ := newTestClient(t, Config{Cache: store, CacheTTL: time.Minute})

	req := Get(server.URL, url.Values{"pjname": {"USD"}})
	first, err := c.Fetch(context.Background(), req, true)
	if err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}
	if first.FromCache {
		t.Error("first Fetch() FromCache = true, want false")
	}

	second, err := c.Fetch(context.Background(), req, true)
	if err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}
	if !second.FromCache {
		t.Error("second Fetch() FromCache = false, want true")
	}
	if string(second.Body) != "rates" {
		t.Errorf("cached Body = %q, want rates", second.Body)
	}
	if count.Load() != 1 {
		t.Errorf("requests = %d, want 1", count.Load())
	}

	// Non-200 pages are never cached.
	notFound := Get(server.URL, url.Values{"missing": {"1"}})
	for i := 0; i < 2; i++ {
		if _, err := c.Fetch(context.Background(), notFound, false); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
	}
	if count.Load() != 3 {
		t.Errorf("requests = %d, want 3", count.Load())
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{http.StatusServiceUnavailable, ErrorClassServer},
		{http.StatusInternalServerError, ErrorClassServer},
		{http.StatusNotFound, ErrorClassClient},
		{http.StatusTooManyRequests, ErrorClassClient},
		{http.StatusFound, ErrorClassStatus},
		{http.StatusNoContent, ErrorClassStatus},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}
