package cache

import (
	"net/http"
	"time"
)

// NewEntry builds a cache entry for a response body. The server's Expires
// header shortens the entry when it is earlier than now+ttl; it never
// extends it.
func NewEntry(body []byte, statusCode int, headers http.Header, ttl time.Duration) *CacheEntry {
	now := time.Now()
	return &CacheEntry{
		Data:       body,
		StatusCode: statusCode,
		Expires:    parseExpires(headers, now.Add(ttl)),
		CachedAt:   now,
	}
}

// parseExpires returns the earlier of the Expires header and limit. A
// missing or unreadable header yields limit.
func parseExpires(headers http.Header, limit time.Time) time.Time {
	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return limit
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return limit
	}

	if expires.Before(limit) {
		return expires
	}
	return limit
}
