package cache

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis and skips when none is running.
// The integration build runs the same checks against a container.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func testKey(page string) CacheKey {
	return CacheKey{
		Method: http.MethodPost,
		URL:    "https://example.com/search.jsp",
		Form:   url.Values{"pjname": {"USD"}, "page": {page}},
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}

func TestDecodeEntry(t *testing.T) {
	expires := time.Now().Add(time.Minute).Truncate(time.Nanosecond)
	fields := map[string]string{
		fieldBody:     "<html>rates</html>",
		fieldStatus:   "200",
		fieldCachedAt: "not a number",
		fieldExpires:  strconv.FormatInt(expires.UnixNano(), 10),
	}

	entry, err := decodeEntry(fields)
	if err != nil {
		t.Fatalf("decodeEntry() error = %v", err)
	}
	if string(entry.Data) != "<html>rates</html>" || entry.StatusCode != http.StatusOK {
		t.Errorf("entry = %+v", entry)
	}
	if !entry.Expires.Equal(expires) {
		t.Errorf("Expires = %v, want %v", entry.Expires, expires)
	}

	for _, field := range []string{fieldStatus, fieldExpires} {
		broken := map[string]string{}
		for k, v := range fields {
			broken[k] = v
		}
		broken[field] = "x"
		if _, err := decodeEntry(broken); !errors.Is(err, ErrInvalidEntry) {
			t.Errorf("decodeEntry(bad %s) error = %v, want ErrInvalidEntry", field, err)
		}
	}
}

func TestManager_SetAndGet(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	exerciseManager(t, manager)
}

// exerciseManager runs the shared manager checks against any Redis.
func exerciseManager(t *testing.T, manager *Manager) {
	t.Helper()
	ctx := context.Background()

	if err := manager.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	key := testKey("2")
	entry := NewEntry([]byte("<html>page 2</html>"), http.StatusOK, http.Header{}, 5*time.Minute)

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if ttl := manager.redis.PTTL(ctx, key.String()).Val(); ttl <= 0 || ttl > 5*time.Minute {
		t.Errorf("PTTL = %v, want expiry set within 5m", ttl)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got.Data) != string(entry.Data) {
		t.Errorf("Data = %q, want %q", got.Data, entry.Data)
	}
	if got.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", got.StatusCode)
	}

	if _, err := manager.Get(ctx, testKey("3")); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get(missing) error = %v, want ErrCacheMiss", err)
	}

	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get(after delete) error = %v, want ErrCacheMiss", err)
	}

	expired := &CacheEntry{Data: []byte("old"), StatusCode: http.StatusOK, Expires: time.Now().Add(-time.Minute)}
	if err := manager.Set(ctx, testKey("4"), expired); err != nil {
		t.Fatalf("Set(expired) error = %v", err)
	}
	if _, err := manager.Get(ctx, testKey("4")); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expired entry should not be stored, got err = %v", err)
	}

	if err := manager.Set(ctx, key, nil); err == nil {
		t.Error("Set(nil) should fail")
	}
}
