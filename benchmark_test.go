package cache_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	cache "github.com/krisalay/memo-cache"
)

func newBenchmarkCache() *cache.InMemoryCache {
	return cache.NewShardedInMemoryCache(8, nil)
}

//
// ================= SINGLE THREAD BENCH =================
//

func BenchmarkCacheGetHit(b *testing.B) {
	ctx := context.Background()
	c := newBenchmarkCache()

	_ = c.Set(ctx, "key", "value", time.Minute)
	castTo := cache.TypeOf[string]()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Get(ctx, "key", castTo)
	}
}

func BenchmarkCacheGetMiss(b *testing.B) {
	ctx := context.Background()
	c := newBenchmarkCache()
	castTo := cache.TypeOf[string]()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Get(ctx, fmt.Sprintf("miss-%d", i), castTo)
	}
}

func BenchmarkCacheSet(b *testing.B) {
	ctx := context.Background()
	c := newBenchmarkCache()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Set(ctx, i%1024, i, time.Minute)
	}
}

//
// ================= PARALLEL BENCH =================
//

func BenchmarkCacheParallelGet(b *testing.B) {
	ctx := context.Background()
	c := newBenchmarkCache()

	for i := 0; i < 1000; i++ {
		_ = c.Set(ctx, fmt.Sprintf("key-%d", i), i, cache.NoExpiration)
	}
	castTo := cache.TypeOf[int]()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = c.Get(ctx, fmt.Sprintf("key-%d", i%1000), castTo)
			i++
		}
	})
}
