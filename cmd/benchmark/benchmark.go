package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	cache "github.com/krisalay/memo-cache"
	"github.com/krisalay/memo-cache/engine"
	"github.com/krisalay/memo-cache/memo"
	"github.com/sirupsen/logrus"
)

// ================= BENCHMARK =================

func main() {
	ctx := context.Background()

	// ---------------- Cache Config ----------------
	const (
		shards      = 8
		preloadKeys = 100000
		goroutines  = 200
		opsPerG     = 5000
		memoKeys    = 1000
	)

	fmt.Println("\n================ CACHE LOAD BENCHMARK =================")
	fmt.Println("CONFIG")
	fmt.Println("---------------------------------")
	fmt.Println("Shards       :", shards)
	fmt.Println("Preload Keys :", preloadKeys)
	fmt.Println("Goroutines   :", goroutines)
	fmt.Println("Ops/Goroutine:", opsPerG)
	fmt.Println("Memo Keys    :", memoKeys)
	fmt.Println("---------------------------------")

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	eng := engine.NewCacheEngine(nil, nil, nil, logger)
	c := cache.NewShardedInMemoryCache(shards, eng)

	// ---------------- Preload Cache ----------------
	fmt.Println("Preloading cache...")
	batch := make(map[cache.Key]any, preloadKeys)
	for i := 0; i < preloadKeys; i++ {
		batch[fmt.Sprintf("key-%d", i)] = i
	}
	if err := c.SetMany(ctx, batch, time.Minute); err != nil {
		logger.WithError(err).Fatal("preload failed")
	}
	fmt.Println("Preload complete.")

	// ---------------- Load Test ----------------
	fmt.Println("Running concurrency benchmark (Get)...")
	getDuration := run(goroutines, func(id int) {
		for j := 0; j < opsPerG; j++ {
			_, _, _ = cache.GetAs[int](ctx, c, fmt.Sprintf("key-%d", (id*opsPerG+j)%preloadKeys))
		}
	})

	// ---------------- Memoized Load Test ----------------
	fmt.Println("Running concurrency benchmark (memoized call)...")
	square, err := memo.Wrap(c, func(_ context.Context, args ...any) (int, error) {
		n := args[0].(int)
		return n * n, nil
	}, memo.WithName("benchmark.square"), memo.WithLogger(logger))
	if err != nil {
		logger.WithError(err).Fatal("memoize failed")
	}
	memoDuration := run(goroutines, func(id int) {
		for j := 0; j < opsPerG; j++ {
			_, _ = square.Call(ctx, (id+j)%memoKeys)
		}
	})

	totalOps := goroutines * opsPerG

	fmt.Println("\n================ RESULTS =================")
	fmt.Printf("Total Operations : %d per run\n", totalOps)
	fmt.Printf("Get Time         : %v\n", getDuration)
	fmt.Printf("Get Throughput   : %.2f ops/sec\n", float64(totalOps)/getDuration.Seconds())
	fmt.Printf("Memo Time        : %v\n", memoDuration)
	fmt.Printf("Memo Throughput  : %.2f ops/sec\n", float64(totalOps)/memoDuration.Seconds())
	fmt.Printf("Entries          : %d\n", c.Len())
	fmt.Println("=========================================")
}

func run(goroutines int, work func(id int)) time.Duration {
	start := time.Now()

	wg := sync.WaitGroup{}
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			work(id)
		}(i)
	}
	wg.Wait()

	return time.Since(start)
}
