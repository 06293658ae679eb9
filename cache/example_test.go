package cache_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flightcrawl/core/cache"
)

func ExampleNewMemoryCache() {
	policy := cache.DefaultPolicy()
	c := cache.NewMemoryCache(policy)

	ctx := context.Background()

	// Store a search results page keyed by its request URL.
	url := "https://flytoday.example/search?origin=IKA&destination=DXB"
	_ = c.Set(ctx, url, []byte("<html>...</html>"), 5*time.Minute)

	value, ok := c.Get(ctx, url)
	if ok {
		fmt.Println("Cached bytes:", len(value))
	}
	// Output:
	// Cached bytes: 16
}

func ExampleMemoryCache_Get() {
	policy := cache.DefaultPolicy()
	c := cache.NewMemoryCache(policy)
	ctx := context.Background()

	_, ok := c.Get(ctx, "https://flytoday.example/search?origin=missing")
	fmt.Println("Missing key found:", ok)

	url := "https://flytoday.example/search?origin=IKA&destination=DXB"
	_ = c.Set(ctx, url, []byte("listing"), time.Hour)
	value, ok := c.Get(ctx, url)
	fmt.Println("Existing key found:", ok)
	fmt.Println("Value:", string(value))
	// Output:
	// Missing key found: false
	// Existing key found: true
	// Value: listing
}

func ExampleMemoryCache_Set() {
	policy := cache.DefaultPolicy()
	c := cache.NewMemoryCache(policy)
	ctx := context.Background()

	err := c.Set(ctx, "https://flytoday.example/search?origin=IKA", []byte("listing"), 5*time.Minute)
	fmt.Println("Set error:", err)

	// Zero TTL is a no-op (no caching), the same way HTTPSession treats
	// a WithResponseCache TTL of 0 as "fetch every time."
	err = c.Set(ctx, "https://flytoday.example/search?origin=THR", []byte("listing"), 0)
	fmt.Println("Zero TTL error:", err)

	_, ok := c.Get(ctx, "https://flytoday.example/search?origin=THR")
	fmt.Println("Zero TTL key cached:", ok)
	// Output:
	// Set error: <nil>
	// Zero TTL error: <nil>
	// Zero TTL key cached: false
}

func ExampleMemoryCache_Delete() {
	policy := cache.DefaultPolicy()
	c := cache.NewMemoryCache(policy)
	ctx := context.Background()

	url := "https://flytoday.example/search?origin=IKA&destination=DXB"
	_ = c.Set(ctx, url, []byte("stale listing"), time.Hour)

	_, ok := c.Get(ctx, url)
	fmt.Println("Before delete:", ok)

	err := c.Delete(ctx, url)
	fmt.Println("Delete error:", err)

	_, ok = c.Get(ctx, url)
	fmt.Println("After delete:", ok)

	// Delete is idempotent - no error on a key never cached.
	err = c.Delete(ctx, "https://flytoday.example/search?origin=never-cached")
	fmt.Println("Delete missing:", err)
	// Output:
	// Before delete: true
	// Delete error: <nil>
	// After delete: false
	// Delete missing: <nil>
}

func ExampleDefaultPolicy() {
	policy := cache.DefaultPolicy()

	fmt.Println("Default TTL:", policy.DefaultTTL)
	fmt.Println("Max TTL:", policy.MaxTTL)
	fmt.Println("Should cache:", policy.ShouldCache())
	// Output:
	// Default TTL: 5m0s
	// Max TTL: 1h0m0s
	// Should cache: true
}

func ExampleNoCachePolicy() {
	policy := cache.NoCachePolicy()

	fmt.Println("Should cache:", policy.ShouldCache())
	// Output:
	// Should cache: false
}

func ExamplePolicy_EffectiveTTL() {
	policy := cache.Policy{
		DefaultTTL: 5 * time.Minute,
		MaxTTL:     1 * time.Hour,
	}

	fmt.Println("No override:", policy.EffectiveTTL(0))
	fmt.Println("10min override:", policy.EffectiveTTL(10*time.Minute))
	fmt.Println("2hr override (clamped):", policy.EffectiveTTL(2*time.Hour))
	// Output:
	// No override: 5m0s
	// 10min override: 10m0s
	// 2hr override (clamped): 1h0m0s
}

func ExampleValidateKey() {
	// Valid keys - request URLs an adapter would cache against.
	fmt.Println("search URL:", cache.ValidateKey("https://flytoday.example/search?o=IKA") == nil)

	// Invalid keys
	fmt.Println("empty:", errors.Is(cache.ValidateKey(""), cache.ErrInvalidKey))
	fmt.Println("whitespace:", errors.Is(cache.ValidateKey("   "), cache.ErrInvalidKey))
	fmt.Println("with newline:", errors.Is(cache.ValidateKey("key\nvalue"), cache.ErrInvalidKey))

	// Too long
	longKey := make([]byte, cache.MaxKeyLength+1)
	for i := range longKey {
		longKey[i] = 'x'
	}
	fmt.Println("too long:", errors.Is(cache.ValidateKey(string(longKey)), cache.ErrKeyTooLong))
	// Output:
	// search URL: true
	// empty: true
	// whitespace: true
	// with newline: true
	// too long: true
}
