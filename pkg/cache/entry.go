package cache

import (
	"time"
)

// CacheEntry represents a cached search response.
type CacheEntry struct {
	// Data is the response body
	Data []byte

	// StatusCode is the HTTP status code of the cached response
	StatusCode int

	// Expires is when the entry becomes stale
	Expires time.Time

	// CachedAt is when we cached this response
	CachedAt time.Time
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
