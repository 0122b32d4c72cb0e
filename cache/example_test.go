package cache_test

import (
	"context"
	"fmt"
	"time"

	"github.com/soundcheck-labs/backline/cache"
)

func ExampleNewMemoryCache() {
	c := cache.NewMemoryCache(cache.Config[string]{
		Policy:     cache.DefaultPolicy(),
		MaxEntries: 500,
	})
	defer c.Close()

	ctx := context.Background()

	// Store a value
	_ = c.Set(ctx, "profile:alice", "premium", 10*time.Minute)

	// Retrieve the value
	value, ok := c.Get(ctx, "profile:alice")
	if ok {
		fmt.Println("Value:", value)
	}
	// Output:
	// Value: premium
}

func ExampleMemoryCache_Stats() {
	c := cache.NewMemoryCache(cache.Config[string]{
		Policy: cache.DefaultPolicy(),
	})
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "track:42", "queued", time.Minute)
	_, _ = c.Get(ctx, "track:42")
	_, _ = c.Get(ctx, "track:404")

	stats := c.Stats()
	fmt.Println("Hits:", stats.Hits)
	fmt.Println("Misses:", stats.Misses)
	fmt.Println("HitRate:", stats.HitRate)
	// Output:
	// Hits: 1
	// Misses: 1
	// HitRate: 0.5
}
