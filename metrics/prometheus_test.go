package metrics_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	cache "github.com/krisalay/memo-cache"
	"github.com/krisalay/memo-cache/engine"
	"github.com/krisalay/memo-cache/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCountsCacheEvents(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m, err := metrics.NewPrometheusMetrics(reg, "memory")
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(time.Now())
	c := cache.NewShardedInMemoryCache(2, engine.NewCacheEngine(nil, clock, m, nil))

	require.NoError(t, c.Set(ctx, "a", 1.0, time.Second))
	_, _, err = cache.GetAs[float64](ctx, c, "a")
	require.NoError(t, err)
	_, _, err = cache.GetAs[float64](ctx, c, "b")
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, _, err = cache.GetAs[float64](ctx, c, "a")
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(ctx, "a"))

	expected := `
# HELP memocache_events_total Total number of cache events by backend and event kind
# TYPE memocache_events_total counter
memocache_events_total{backend="memory",event="expire"} 1
memocache_events_total{backend="memory",event="hit"} 1
memocache_events_total{backend="memory",event="invalidate"} 1
memocache_events_total{backend="memory",event="miss"} 2
memocache_events_total{backend="memory",event="refresh"} 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "memocache_events_total"))
}

func TestBackendsShareRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()

	mem, err := metrics.NewPrometheusMetrics(reg, "memory")
	require.NoError(t, err)
	red, err := metrics.NewPrometheusMetrics(reg, "redis")
	require.NoError(t, err)

	mem.Hit()
	red.Hit()
	red.Refresh()

	n, err := testutil.GatherAndCount(reg, "memocache_events_total")
	require.NoError(t, err)
	require.Equal(t, 10, n)

	expected := `
# HELP memocache_events_total Total number of cache events by backend and event kind
# TYPE memocache_events_total counter
memocache_events_total{backend="memory",event="expire"} 0
memocache_events_total{backend="memory",event="hit"} 1
memocache_events_total{backend="memory",event="invalidate"} 0
memocache_events_total{backend="memory",event="miss"} 0
memocache_events_total{backend="memory",event="refresh"} 0
memocache_events_total{backend="redis",event="expire"} 0
memocache_events_total{backend="redis",event="hit"} 1
memocache_events_total{backend="redis",event="invalidate"} 0
memocache_events_total{backend="redis",event="miss"} 0
memocache_events_total{backend="redis",event="refresh"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "memocache_events_total"))
}
