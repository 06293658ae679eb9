// Package cache provides response caching for site adapters.
//
// It sits between a Session and the site it talks to, letting a site
// polled more often than its listings actually change skip the round
// trip. HTTPSession is the one consumer today; any Session
// implementation can hold a Cache the same way.
//
// # Core Components
//
//   - [Cache]: interface for caching adapter response bodies (Get/Set/Delete)
//   - [MemoryCache]: thread-safe, process-local Cache implementation
//   - [Policy]: TTL defaults and maximums applied per adapter
//
// # Quick Start
//
//	policy := cache.DefaultPolicy() // 5min TTL, 1hr max
//	respCache := cache.NewMemoryCache(policy)
//
//	session := adapter.NewHTTPSession(searchURL, http.MethodGet).
//		WithResponseCache(respCache, 2*time.Minute)
//
// # TTL Policies
//
// The [Policy] type controls caching behavior:
//
//   - DefaultTTL: applied when the caller passes no override
//   - MaxTTL: upper bound for any TTL (prevents an adapter from caching
//     a stale listing indefinitely)
//
// Preset policies:
//
//   - [DefaultPolicy]: 5 minute default, 1 hour max
//   - [NoCachePolicy]: disabled (0 TTL)
//
// # Thread Safety
//
// All exported types are safe for concurrent use:
//
//   - [MemoryCache]: sync.RWMutex protects all operations
//   - [Policy]: immutable struct, concurrent-safe
//
// # Error Handling
//
// Sentinel errors (use errors.Is for checking):
//
//   - [ErrNilCache]: cache is nil
//   - [ErrInvalidKey]: key is empty, whitespace-only, or contains newlines
//   - [ErrKeyTooLong]: key exceeds MaxKeyLength
//
// Note: Cache.Get never returns errors - it returns (nil, false) on miss.
// Key validation is performed via [ValidateKey], which HTTPSession runs
// against the request URL before every cache lookup or store.
package cache
