package engine

import (
	"fmt"
	"reflect"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/krisalay/memo-cache/expiration"
	"github.com/krisalay/memo-cache/types"
	"github.com/sirupsen/logrus"
)

/*
CacheEngine is the "brain" shared by every backend.
It is responsible for the "behavior" of the cache, NOT storage.
This acts as the policy layer.

It decides:
- What "now" is (one clock for write-time expiry and read-time comparison)
- When data is expired
- How envelopes are built (TTL, created timestamp, version tag)
- Which arguments are acceptable (TTL, keys, cast types)
- How events are recorded and logged

It does NOT:
- Store data
- Encode data
- Handle sharding or locking
*/
type CacheEngine struct {

	// Expiration controls when an in-process record is considered expired.
	Expiration expiration.Strategy

	// Clock is the single time source. The real clock carries Go's monotonic
	// reading, so comparisons are immune to wall-clock adjustments.
	Clock clockwork.Clock

	// Metrics is how we keep track of what the cache is doing.
	Metrics types.Metrics

	// Logger receives debug traces and warnings about destructive operations.
	Logger logrus.FieldLogger

	// Version is stamped on every envelope. nil leaves it unset.
	Version *int64
}

/*
NewCacheEngine creates a CacheEngine. Any nil dependency is replaced by its default:
AbsoluteTTL expiration, the real clock, no-op metrics and the logrus standard logger.
*/
func NewCacheEngine(
	exp expiration.Strategy,
	clock clockwork.Clock,
	metrics types.Metrics,
	logger logrus.FieldLogger,
) *CacheEngine {
	if exp == nil {
		exp = expiration.AbsoluteTTL{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	// Ensure metrics is always non-nil
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &CacheEngine{
		Expiration: exp,
		Clock:      clock,
		Metrics:    metrics,
		Logger:     logger,
	}
}

// Default returns an engine with every default applied.
func Default() *CacheEngine {
	return NewCacheEngine(nil, nil, nil, nil)
}

// WithVersion sets the envelope version tag and returns the engine.
func (e *CacheEngine) WithVersion(v int64) *CacheEngine {
	e.Version = &v
	return e
}

// Now returns the engine's notion of the current instant.
func (e *CacheEngine) Now() time.Time {
	return e.Clock.Now()
}

// NewEnvelope wraps a value written now with the given TTL.
func (e *CacheEngine) NewEnvelope(value any, ttl time.Duration) types.Envelope {
	return types.NewEnvelope(value, ttl, e.Now(), e.Version)
}

/*
NewRecord builds an in-process record for key and applies the expiration strategy,
which fixes ExpireAt once.
*/
func (e *CacheEngine) NewRecord(key any, value any, ttl time.Duration) *types.Record {
	now := e.Now()
	rec := &types.Record{
		Key:      key,
		TTL:      ttl,
		Envelope: types.NewEnvelope(value, ttl, now, e.Version),
	}
	e.Expiration.OnWrite(rec, now)
	return rec
}

// IsExpired checks whether a record is expired at the engine's current instant.
func (e *CacheEngine) IsExpired(rec *types.Record) bool {
	return e.Expiration.IsExpired(rec, e.Now())
}

// OnExpire records a lazy eviction.
func (e *CacheEngine) OnExpire(key any) {
	e.Metrics.Expire()
	e.Logger.WithField("key", key).Debug("cache: expired entry evicted on access")
}

// OnLookup records the outcome of a single lookup.
func (e *CacheEngine) OnLookup(found bool) {
	if found {
		e.Metrics.Hit()
		return
	}
	e.Metrics.Miss()
}

/*
ValidateTTL rejects negative TTLs and TTLs with a sub-second fraction.
TTL resolution is whole seconds everywhere (SETEX, envelope wire form).
*/
func ValidateTTL(ttl time.Duration) error {
	if ttl < 0 {
		return fmt.Errorf("%w: ttl must not be negative, got %s", types.ErrValidation, ttl)
	}
	if ttl%time.Second != 0 {
		return fmt.Errorf("%w: ttl must be a whole number of seconds, got %s", types.ErrValidation, ttl)
	}
	return nil
}

/*
ValidateKey rejects nil keys and keys that cannot be used for equality lookups.
Comparability is checked on the dynamic value, so a struct whose interface field
holds a slice is rejected as well.
*/
func ValidateKey(key any) error {
	if key == nil {
		return fmt.Errorf("%w: key must not be nil", types.ErrValidation)
	}
	if !reflect.ValueOf(key).Comparable() {
		return fmt.Errorf("%w: key of type %T is not comparable", types.ErrValidation, key)
	}
	return nil
}

// ValidateCastType rejects a missing cast type.
func ValidateCastType(castTo reflect.Type) error {
	if castTo == nil {
		return fmt.Errorf("%w: cast type must not be nil", types.ErrValidation)
	}
	return nil
}

/*
Cast checks that value can be handed out as castTo. In-process backends store values
as-is, so this is where the "cast_to" contract is enforced for them.
*/
func Cast(value any, castTo reflect.Type) (any, error) {
	if value == nil {
		switch castTo.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(castTo).Interface(), nil
		}
		return nil, fmt.Errorf("%w: stored nil cannot be read as %s", types.ErrSerialization, castTo)
	}
	vt := reflect.TypeOf(value)
	if vt == castTo {
		return value, nil
	}
	if castTo.Kind() == reflect.Interface && vt.Implements(castTo) {
		return value, nil
	}
	if vt.ConvertibleTo(castTo) && sameKindFamily(vt, castTo) {
		return reflect.ValueOf(value).Convert(castTo).Interface(), nil
	}
	return nil, fmt.Errorf("%w: stored %s cannot be read as %s", types.ErrSerialization, vt, castTo)
}

// sameKindFamily limits conversions to named types over the same underlying kind,
// so an int is never silently turned into a string.
func sameKindFamily(a, b reflect.Type) bool {
	return a.Kind() == b.Kind()
}
