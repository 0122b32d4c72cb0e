package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

// BenchmarkLimiter_Allow_SingleIdentity measures the hot path for one caller.
func BenchmarkLimiter_Allow_SingleIdentity(b *testing.B) {
	l := NewLimiter(Config{
		Capacity:      1 << 30,
		RefillRate:    1 << 30,
		IdentityLimit: 1 << 30,
		GlobalLimit:   1 << 30,
		Window:        time.Minute,
		GCInterval:    -1,
	})
	defer l.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = l.Allow("bench")
	}
}

// BenchmarkLimiter_Allow_ManyIdentities measures bucket-map churn.
func BenchmarkLimiter_Allow_ManyIdentities(b *testing.B) {
	l := NewLimiter(Config{
		Capacity:      1 << 30,
		RefillRate:    1 << 30,
		IdentityLimit: 1 << 30,
		GlobalLimit:   1 << 30,
		Window:        time.Minute,
		GCInterval:    -1,
	})
	defer l.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = l.Allow(fmt.Sprintf("user-%d", i%1024))
	}
}
