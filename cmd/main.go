package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	cache "github.com/krisalay/memo-cache"
	"github.com/krisalay/memo-cache/boltcache"
	"github.com/krisalay/memo-cache/codec"
	"github.com/krisalay/memo-cache/config"
	"github.com/krisalay/memo-cache/engine"
	"github.com/krisalay/memo-cache/keyfunc"
	"github.com/krisalay/memo-cache/logging"
	"github.com/krisalay/memo-cache/memo"
	"github.com/krisalay/memo-cache/metrics"
	"github.com/krisalay/memo-cache/rediscache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// ================= SLOW FUNCTION =================

type Quote struct {
	Symbol string  `json:"symbol" msgpack:"symbol"`
	Price  float64 `json:"price" msgpack:"price"`
}

var prices = map[string]float64{"AAPL": 189.5, "GOOG": 141.2, "MSFT": 402.1}

// quote pretends to call a slow pricing service.
func quote(ctx context.Context, args ...any) (Quote, error) {
	positional, named := keyfunc.Split(args...)
	symbol, _ := positional[0].(string)
	fmt.Println("SERVICE → pricing:", symbol)
	time.Sleep(200 * time.Millisecond)

	q := Quote{Symbol: symbol, Price: prices[symbol]}
	if currency, ok := named["currency"].(string); ok && currency == "EUR" {
		q.Price *= 0.92
	}
	return q, nil
}

// ================= BACKEND =================

// closer is implemented by backends holding a file or connection.
type closer interface{ Close() error }

func open(ctx context.Context, cfg *config.Config, eng *engine.CacheEngine) (cache.Cache, closer, error) {
	cdc, err := codec.ByName(cfg.Cache.Codec)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Cache.Backend {
	case "redis":
		client, err := rediscache.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		c, err := rediscache.New(ctx, rediscache.Options{
			Client:  client,
			Version: cfg.Cache.Version,
			Codec:   cdc,
			Engine:  eng,
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return c, client, nil
	case "bolt":
		s, err := boltcache.Open(cfg.Bolt.Path, boltcache.Options{
			Bucket: cfg.Bolt.Bucket,
			Codec:  cdc,
			Engine: eng,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return cache.NewShardedInMemoryCache(cfg.Cache.Shards, eng), nil, nil
	}
}

// ================= MAIN =================

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logger := logging.New(cfg.Log, os.Stderr)

	fmt.Println("\n==================== SYSTEM BOOT ====================")
	fmt.Println("BACKEND     :", cfg.Cache.Backend)
	fmt.Println("CODEC       :", cfg.Cache.Codec)
	fmt.Println("DEFAULT TTL :", cfg.Cache.DefaultTTL)
	fmt.Println("SHARDS      :", cfg.Cache.Shards)

	// ---------------- Metrics ----------------
	reg := prometheus.NewRegistry()
	m, err := metrics.NewPrometheusMetrics(reg, cfg.Cache.Backend)
	if err != nil {
		logger.WithError(err).Fatal("Failed to register metrics")
	}

	// ---------------- Cache Engine ----------------
	eng := engine.NewCacheEngine(nil, nil, m, logger)

	c, closeBackend, err := open(ctx, cfg, eng)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open cache backend")
	}
	if closeBackend != nil {
		defer closeBackend.Close()
	}

	quotes, err := memo.Wrap(c, quote,
		memo.WithName("demo.quote"),
		memo.WithTTL(cfg.Cache.DefaultTTL),
		memo.WithLogger(logger),
		memo.WithMetrics(m),
	)
	if err != nil {
		logger.WithError(err).Fatal("Failed to memoize quote")
	}

	// ====================================================
	fmt.Println("\n==================== 1) MISS ====================")
	q, err := quotes.Call(ctx, "AAPL")
	fmt.Println("MEMO   → quote AAPL =", q, err)

	// ====================================================
	fmt.Println("\n==================== 2) HIT ====================")
	q, err = quotes.Call(ctx, "AAPL")
	fmt.Println("MEMO   → quote AAPL =", q, err)

	// ====================================================
	fmt.Println("\n==================== 3) NAMED ARGUMENTS ====================")
	q, _ = quotes.Call(ctx, "AAPL", keyfunc.Named{"currency": "EUR"})
	fmt.Println("MEMO   → quote AAPL in EUR =", q)
	key, _ := quotes.Key("AAPL", keyfunc.Named{"currency": "EUR"})
	fmt.Println("MEMO   → key =", key)

	// ====================================================
	fmt.Println("\n==================== 4) SINGLEFLIGHT ====================")
	wg := sync.WaitGroup{}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			q, _ := quotes.Call(ctx, "GOOG")
			fmt.Printf("GOROUTINE-%d → quote GOOG = %v\n", id, q)
		}(i)
	}
	wg.Wait()

	// ====================================================
	fmt.Println("\n==================== 5) REFRESH ====================")
	prices["AAPL"] = 190.0
	q, _, _ = quotes.RefreshIfExists(ctx, "AAPL")
	fmt.Println("MEMO   → refreshed AAPL =", q)
	_, refreshed, _ := quotes.RefreshIfExists(ctx, "MSFT")
	fmt.Println("MEMO   → MSFT refreshed (never cached) =", refreshed)

	// ====================================================
	fmt.Println("\n==================== 6) INVALIDATE ====================")
	_ = quotes.Invalidate(ctx, "AAPL")
	fmt.Println("MEMO   → INVALIDATE AAPL")
	q, _ = quotes.Call(ctx, "AAPL")
	fmt.Println("MEMO   → quote AAPL after invalidate =", q)

	// ====================================================
	fmt.Println("\n==================== 7) DIRECT ACCESS ====================")
	_ = c.SetMany(ctx, map[cache.Key]any{"rate:EUR": 0.92, "rate:GBP": 0.79}, time.Minute)
	rates, _ := c.GetMany(ctx, cache.Types[float64]("rate:EUR", "rate:GBP", "rate:JPY"))
	for k, r := range rates {
		fmt.Printf("CACHE  → GET %v = %v (found=%v)\n", k, r.Value(), r.Found)
	}

	// ====================================================
	fmt.Println("\n==================== METRICS ====================")
	families, _ := reg.Gather()
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			labels := ""
			for _, l := range metric.GetLabel() {
				labels += fmt.Sprintf("%s=%s ", l.GetName(), l.GetValue())
			}
			fmt.Printf("%-45s %v\n", labels, metric.GetCounter().GetValue())
		}
	}

	fmt.Println("\n==================== SHUTDOWN ====================")
	fmt.Println("SYSTEM → done")
}
