/*
Package memo memoizes functions on top of any cache.Cache.

A memoized call derives its key from the function identity and the call arguments
using the backend's key function, so the same call hits the same entry on every
backend. Named arguments are passed as keyfunc.Named values among args; their order
does not affect the key.
*/
package memo

import (
	"context"
	"fmt"
	"reflect"
	"time"

	cache "github.com/krisalay/memo-cache"
	"github.com/krisalay/memo-cache/engine"
	"github.com/krisalay/memo-cache/keyfunc"
	"github.com/krisalay/memo-cache/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Func is a function that can be memoized.
type Func[R any] func(ctx context.Context, args ...any) (R, error)

type options struct {
	ttl     time.Duration
	name    string
	logger  logrus.FieldLogger
	metrics types.Metrics
}

// Option configures Wrap.
type Option func(*options)

// WithTTL sets the lifetime of memoized results. Zero (the default) never expires.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithName overrides the function identity used in keys. Use it to keep keys stable
// across refactors, or to share entries between two wrappers.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records refreshes. Hits and misses are recorded by the backend.
func WithMetrics(m types.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Memoized is a cached view of a Func. It is safe for concurrent use.
type Memoized[R any] struct {
	cache    cache.Cache
	fn       Func[R]
	identity string
	ttl      time.Duration
	castTo   reflect.Type
	logger   logrus.FieldLogger
	metrics  types.Metrics

	// sf coalesces concurrent misses for the same key into one call of fn.
	sf singleflight.Group
}

/*
Wrap returns the memoized form of fn backed by c.

BEHAVIOR:
  - nil cache or nil fn fails with ErrConfiguration
  - R must be a concrete type: values read back from a byte store are decoded into R,
    so an interface R fails with ErrConfiguration
  - an invalid TTL fails with ErrValidation
*/
func Wrap[R any](c cache.Cache, fn Func[R], opts ...Option) (*Memoized[R], error) {
	if c == nil {
		return nil, fmt.Errorf("%w: memo: nil cache", types.ErrConfiguration)
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: memo: nil function", types.ErrConfiguration)
	}

	castTo := cache.TypeOf[R]()
	if castTo.Kind() == reflect.Interface {
		return nil, fmt.Errorf("%w: memo: return type %s is an interface, a concrete type is required",
			types.ErrConfiguration, castTo)
	}

	o := options{
		logger:  logrus.StandardLogger(),
		metrics: types.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := engine.ValidateTTL(o.ttl); err != nil {
		return nil, err
	}
	if o.name == "" {
		o.name = keyfunc.Identity(fn)
	}

	return &Memoized[R]{
		cache:    c,
		fn:       fn,
		identity: o.name,
		ttl:      o.ttl,
		castTo:   castTo,
		logger:   o.logger.WithField("func", o.name),
		metrics:  o.metrics,
	}, nil
}

// Name returns the identity used in keys.
func (m *Memoized[R]) Name() string {
	return m.identity
}

// Key returns the cache key of a call with args.
func (m *Memoized[R]) Key(args ...any) (cache.Key, error) {
	return m.cache.KeyFunc().Key(m.identity, args...)
}

/*
Call returns the cached result for args, computing and storing it on a miss.

Errors returned by fn are passed through and nothing is cached. Concurrent misses
for the same key run fn once. fn gets a context that keeps the first caller's values
but not its cancellation, so one caller giving up does not fail the others; that
caller alone returns ctx.Err().
*/
func (m *Memoized[R]) Call(ctx context.Context, args ...any) (R, error) {
	var zero R

	key, err := m.Key(args...)
	if err != nil {
		return zero, err
	}

	res, err := m.cache.Get(ctx, key, m.castTo)
	if err != nil {
		return zero, err
	}
	if res.Found {
		m.logger.Debug("memo: hit")
		return m.value(res)
	}

	m.logger.Debug("memo: miss")

	// The flight outlives any single caller: it runs without their cancellation,
	// and each caller stops waiting when its own ctx is done.
	flight := m.sf.DoChan(fmt.Sprintf("%v", key), func() (any, error) {
		return m.compute(context.WithoutCancel(ctx), key, args)
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-flight:
		if r.Err != nil {
			return zero, r.Err
		}
		if r.Shared {
			m.logger.Debug("memo: result shared with a concurrent call")
		}
		return r.Val.(R), nil
	}
}

/*
Invalidate removes the cached result for args. The next Call recomputes it.
*/
func (m *Memoized[R]) Invalidate(ctx context.Context, args ...any) error {
	key, err := m.Key(args...)
	if err != nil {
		return err
	}
	return m.cache.Invalidate(ctx, key)
}

/*
Refresh recomputes the result for args unconditionally and overwrites the cached
entry, with a fresh TTL.
*/
func (m *Memoized[R]) Refresh(ctx context.Context, args ...any) (R, error) {
	var zero R

	key, err := m.Key(args...)
	if err != nil {
		return zero, err
	}
	v, err := m.compute(ctx, key, args)
	if err != nil {
		return zero, err
	}
	m.metrics.Refresh()
	m.logger.Debug("memo: refreshed")
	return v, nil
}

/*
RefreshIfExists refreshes the result for args only when it is currently cached.
ok reports whether a refresh happened. Nothing is computed for absent entries.
*/
func (m *Memoized[R]) RefreshIfExists(ctx context.Context, args ...any) (result R, ok bool, err error) {
	key, err := m.Key(args...)
	if err != nil {
		return result, false, err
	}
	found, err := m.cache.Exists(ctx, key)
	if err != nil || !found {
		return result, false, err
	}
	result, err = m.compute(ctx, key, args)
	if err != nil {
		return result, false, err
	}
	m.metrics.Refresh()
	m.logger.Debug("memo: refreshed existing entry")
	return result, true, nil
}

// compute runs fn and stores its result under key.
func (m *Memoized[R]) compute(ctx context.Context, key cache.Key, args []any) (R, error) {
	v, err := m.fn(ctx, args...)
	if err != nil {
		return v, err
	}
	if err := m.cache.Set(ctx, key, v, m.ttl); err != nil {
		return v, err
	}
	return v, nil
}

func (m *Memoized[R]) value(res cache.Result) (R, error) {
	var zero R
	raw := res.Value()
	if raw == nil {
		return zero, nil
	}
	v, ok := raw.(R)
	if !ok {
		return zero, fmt.Errorf("%w: memo: cached %T is not %s", types.ErrSerialization, raw, m.castTo)
	}
	return v, nil
}
