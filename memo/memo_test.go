package memo_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	cache "github.com/krisalay/memo-cache"
	"github.com/krisalay/memo-cache/engine"
	"github.com/krisalay/memo-cache/keyfunc"
	"github.com/krisalay/memo-cache/memo"
	"github.com/krisalay/memo-cache/rediscache"
	"github.com/krisalay/memo-cache/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type missCounter struct {
	types.NoopMetrics
	misses    atomic.Int64
	refreshes atomic.Int64
}

func (m *missCounter) Miss()    { m.misses.Add(1) }
func (m *missCounter) Refresh() { m.refreshes.Add(1) }

type Summary struct {
	Total float64 `json:"total" msgpack:"total"`
	Count int     `json:"count" msgpack:"count"`
}

// counted adds positional float64 arguments and a "scale" named argument.
func counted(calls *atomic.Int64) memo.Func[Summary] {
	return func(_ context.Context, args ...any) (Summary, error) {
		calls.Add(1)
		positional, named := keyfunc.Split(args...)
		s := Summary{Count: len(positional)}
		for _, a := range positional {
			s.Total += a.(float64)
		}
		if scale, ok := named["scale"].(float64); ok {
			s.Total *= scale
		}
		return s, nil
	}
}

// backend builds a fresh cache plus a way to move its time forward.
type backend struct {
	name string
	open func(t *testing.T) (cache.Cache, func(time.Duration))
}

func backends() []backend {
	return []backend{
		{
			name: "memory",
			open: func(t *testing.T) (cache.Cache, func(time.Duration)) {
				clock := clockwork.NewFakeClockAt(time.Now())
				return cache.NewShardedInMemoryCache(4, engine.NewCacheEngine(nil, clock, nil, nil)), clock.Advance
			},
		},
		{
			name: "redis",
			open: func(t *testing.T) (cache.Cache, func(time.Duration)) {
				mr := miniredis.RunT(t)
				client := redis.NewClient(&redis.Options{Addr: mr.Addr(), DisableIdentity: true})
				t.Cleanup(func() { _ = client.Close() })
				c, err := rediscache.New(context.Background(), rediscache.Options{Client: client, Version: "test"})
				require.NoError(t, err)
				return c, mr.FastForward
			},
		},
	}
}

func TestCallCachesResult(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			var calls atomic.Int64
			c, _ := b.open(t)
			m, err := memo.Wrap(c, counted(&calls))
			require.NoError(t, err)

			first, err := m.Call(ctx, 1.0, 2.0)
			require.NoError(t, err)
			require.Equal(t, Summary{Total: 3, Count: 2}, first)

			second, err := m.Call(ctx, 1.0, 2.0)
			require.NoError(t, err)
			require.Equal(t, first, second)
			require.EqualValues(t, 1, calls.Load())

			_, err = m.Call(ctx, 2.0, 1.0)
			require.NoError(t, err)
			require.EqualValues(t, 2, calls.Load())
		})
	}
}

func TestNamedArgumentOrderDoesNotMatter(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			var calls atomic.Int64
			c, _ := b.open(t)
			m, err := memo.Wrap(c, counted(&calls))
			require.NoError(t, err)

			_, err = m.Call(ctx, 1.0, keyfunc.Named{"scale": 2.0, "label": "a"})
			require.NoError(t, err)
			_, err = m.Call(ctx, keyfunc.Named{"label": "a"}, 1.0, keyfunc.Named{"scale": 2.0})
			require.NoError(t, err)

			require.EqualValues(t, 1, calls.Load())
		})
	}
}

func TestCallRecomputesAfterTTL(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			c, advance := b.open(t)
			var calls atomic.Int64
			m, err := memo.Wrap(c, counted(&calls), memo.WithTTL(time.Minute))
			require.NoError(t, err)

			_, err = m.Call(ctx, 5.0)
			require.NoError(t, err)
			advance(59 * time.Second)
			_, err = m.Call(ctx, 5.0)
			require.NoError(t, err)
			require.EqualValues(t, 1, calls.Load())

			advance(2 * time.Second)
			_, err = m.Call(ctx, 5.0)
			require.NoError(t, err)
			require.EqualValues(t, 2, calls.Load())
		})
	}
}

func TestInvalidateAndRefresh(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			var calls atomic.Int64
			metrics := &missCounter{}
			c, _ := b.open(t)
			m, err := memo.Wrap(c, counted(&calls), memo.WithMetrics(metrics))
			require.NoError(t, err)

			_, err = m.Call(ctx, 1.0)
			require.NoError(t, err)

			require.NoError(t, m.Invalidate(ctx, 1.0))
			_, err = m.Call(ctx, 1.0)
			require.NoError(t, err)
			require.EqualValues(t, 2, calls.Load())

			_, err = m.Refresh(ctx, 1.0)
			require.NoError(t, err)
			require.EqualValues(t, 3, calls.Load())
			require.EqualValues(t, 1, metrics.refreshes.Load())

			// Refresh stored the result, so Call is a hit.
			_, err = m.Call(ctx, 1.0)
			require.NoError(t, err)
			require.EqualValues(t, 3, calls.Load())
		})
	}
}

func TestRefreshIfExists(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			var calls atomic.Int64
			c, _ := b.open(t)
			m, err := memo.Wrap(c, counted(&calls))
			require.NoError(t, err)

			_, ok, err := m.RefreshIfExists(ctx, 7.0)
			require.NoError(t, err)
			require.False(t, ok)
			require.Zero(t, calls.Load())

			_, err = m.Call(ctx, 7.0)
			require.NoError(t, err)

			got, ok, err := m.RefreshIfExists(ctx, 7.0)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, Summary{Total: 7, Count: 1}, got)
			require.EqualValues(t, 2, calls.Load())
		})
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	var calls atomic.Int64

	fail := true
	m, err := memo.Wrap(cache.NewInMemoryCache(), func(_ context.Context, _ ...any) (int, error) {
		calls.Add(1)
		if fail {
			return 0, boom
		}
		return 42, nil
	})
	require.NoError(t, err)

	_, err = m.Call(ctx, "x")
	require.ErrorIs(t, err, boom)

	fail = false
	v, err := m.Call(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.EqualValues(t, 2, calls.Load())
}

func TestWithNameSharesEntries(t *testing.T) {
	ctx := context.Background()
	c := cache.NewInMemoryCache()
	var calls atomic.Int64

	a, err := memo.Wrap(c, counted(&calls), memo.WithName("totals"))
	require.NoError(t, err)
	b, err := memo.Wrap(c, counted(&calls), memo.WithName("totals"))
	require.NoError(t, err)
	require.Equal(t, "totals", a.Name())

	_, err = a.Call(ctx, 1.0)
	require.NoError(t, err)
	_, err = b.Call(ctx, 1.0)
	require.NoError(t, err)
	require.EqualValues(t, 1, calls.Load())

	key, err := a.Key(1.0)
	require.NoError(t, err)
	require.Equal(t, keyfunc.FuncKey{Func: "totals", Args: `{"args":[1]}`}, key)
}

func TestDefaultNameIsFunctionIdentity(t *testing.T) {
	var calls atomic.Int64
	m, err := memo.Wrap(cache.NewInMemoryCache(), counted(&calls))
	require.NoError(t, err)
	require.Contains(t, m.Name(), "memo_test.counted")
}

func TestNilPointerResultIsCached(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int64
	m, err := memo.Wrap(cache.NewInMemoryCache(), func(_ context.Context, _ ...any) (*Summary, error) {
		calls.Add(1)
		return nil, nil
	})
	require.NoError(t, err)

	for range 3 {
		v, err := m.Call(ctx, "missing")
		require.NoError(t, err)
		require.Nil(t, v)
	}
	require.EqualValues(t, 1, calls.Load())
}

func TestWrapValidation(t *testing.T) {
	fn := func(_ context.Context, _ ...any) (int, error) { return 0, nil }

	_, err := memo.Wrap[int](nil, fn)
	require.ErrorIs(t, err, types.ErrConfiguration)

	_, err = memo.Wrap[int](cache.NewInMemoryCache(), nil)
	require.ErrorIs(t, err, types.ErrConfiguration)

	_, err = memo.Wrap(cache.NewInMemoryCache(), func(_ context.Context, _ ...any) (any, error) { return 1, nil })
	require.ErrorIs(t, err, types.ErrConfiguration)

	_, err = memo.Wrap(cache.NewInMemoryCache(), fn, memo.WithTTL(-time.Second))
	require.ErrorIs(t, err, types.ErrValidation)
}

func TestConcurrentMissesRunOnce(t *testing.T) {
	ctx := context.Background()
	metrics := &missCounter{}
	c := cache.NewShardedInMemoryCache(4, engine.NewCacheEngine(nil, nil, metrics, nil))

	var calls atomic.Int64
	release := make(chan struct{})
	m, err := memo.Wrap(c, func(_ context.Context, _ ...any) (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	})
	require.NoError(t, err)

	const callers = 10
	var wg sync.WaitGroup
	results := make([]int, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := m.Call(ctx, "same")
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	require.Eventually(t, func() bool { return metrics.misses.Load() == callers }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, calls.Load())
	for _, v := range results {
		require.Equal(t, 7, v)
	}
}

func TestCancelledCallerDoesNotFailSharedCall(t *testing.T) {
	metrics := &missCounter{}
	c := cache.NewShardedInMemoryCache(4, engine.NewCacheEngine(nil, nil, metrics, nil))

	var calls atomic.Int64
	release := make(chan struct{})
	m, err := memo.Wrap(c, func(ctx context.Context, _ ...any) (int, error) {
		calls.Add(1)
		<-release
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 7, nil
	})
	require.NoError(t, err)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := m.Call(first, "same")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	secondVal := make(chan int, 1)
	secondErr := make(chan error, 1)
	go func() {
		v, err := m.Call(context.Background(), "same")
		secondVal <- v
		secondErr <- err
	}()
	require.Eventually(t, func() bool { return metrics.misses.Load() == 2 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	require.NoError(t, <-secondErr)
	require.Equal(t, 7, <-secondVal)
	require.EqualValues(t, 1, calls.Load())

	// The detached call still stored its result.
	v, err := m.Call(context.Background(), "same")
	require.NoError(t, err)
	require.Equal(t, 7, v)
	require.EqualValues(t, 1, calls.Load())
}
