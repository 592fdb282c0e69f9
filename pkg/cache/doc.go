// Package cache stores successful search responses in Redis so identical
// requests within a TTL are answered without touching the remote server.
//
// Only responses with status 200 are cached. Each page is one Redis hash
// (body, status, cached_at, expires) written in a MULTI block together with
// its expiry, so stale pages disappear on their own.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Method: http.MethodPost,
//		URL:    "https://srh.bankofchina.com/search/whpj/searchen.jsp",
//		Form:   url.Values{"pjname": {"USD"}, "page": {"2"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the server, then:
//		_ = manager.Set(ctx, key, cache.NewEntry(body, http.StatusOK, resp.Header, 5*time.Minute))
//	}
//
// # Metrics
//
//   - fx_cache_hits_total - Cache hits
//   - fx_cache_misses_total - Cache misses
//   - fx_cache_errors_total{operation} - Cache operation errors
//
// The cache holds fetched pages only. Scheduler and pipeline state is never
// persisted, so a restarted run always starts from discovery.
package cache
