package cache

import "context"

// Cache defines the interface for query result caching.
// Live data goes stale fast, so implementations are expected to carry
// a short TTL. This interface allows for different backends
// (in-memory, Redis).
type Cache interface {
	// Get retrieves a cached result by key.
	// Returns the cached data and true if found, nil and false otherwise.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a result in the cache with the given key
	Set(ctx context.Context, key string, value []byte)

	// Close releases any resources held by the cache
	Close()
}
