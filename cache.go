package cache

import (
	"context"
	"reflect"
	"time"

	"github.com/krisalay/memo-cache/keyfunc"
	"github.com/krisalay/memo-cache/types"
)

// Key is any non-nil comparable value: a string, an integer, a struct of comparable
// fields, a keyfunc.FuncKey.
type Key = any

// NoExpiration stores an entry that never expires by policy.
const NoExpiration time.Duration = 0

/*
Cache defines the PUBLIC contract every backend implements.
All of the details like (storage, sharding, serialization, native expiry, pipelining)
are hidden behind this interface.

TTLs are whole seconds. Negative TTLs fail with ErrValidation.
Failures of the underlying store are returned as ErrBackend, never as a miss,
and are never retried.
*/
type Cache interface {

	/*
		Set stores value under key with an optional TTL (NoExpiration for none).

		BEHAVIOR:
		---------
		- Overwrites any existing entry unconditionally (no compare-and-swap)
		- Builds a fresh envelope: new TTL, new created timestamp
	*/
	Set(ctx context.Context, key Key, value any, ttl time.Duration) error

	/*
		SetMany stores every entry with the same TTL.

		Each entry is written atomically, the batch is NOT: on a backend failure
		some entries may be written and others not.
	*/
	SetMany(ctx context.Context, entries map[Key]any, ttl time.Duration) error

	/*
		Exists reports whether key is present and not expired.
		In-process backends may lazily delete an expired entry here.
	*/
	Exists(ctx context.Context, key Key) (bool, error)

	/*
		Get returns the envelope stored under key, with its value read as castTo.

		RETURN VALUES:
		--------------
		- Found=true  : the entry exists and has not expired
		- Found=false : absent or expired (Envelope is zero)
		- ErrSerialization : the stored value cannot be read as castTo
	*/
	Get(ctx context.Context, key Key, castTo reflect.Type) (Result, error)

	/*
		GetMany looks up every key of keys, each read as its own cast type.

		The result contains ALL requested keys; missing or expired keys map to a
		Result with Found=false. Backends with a batched read use a single call.
	*/
	GetMany(ctx context.Context, keys map[Key]reflect.Type) (map[Key]Result, error)

	/*
		Invalidate removes key. Removing a missing key is not an error.
	*/
	Invalidate(ctx context.Context, key Key) error

	/*
		InvalidateAll clears the whole namespace visible to this instance.

		WARNING:
		--------
		For a shared remote store this drops the ENTIRE connected database,
		not just the keys written through this cache.
	*/
	InvalidateAll(ctx context.Context) error

	// KeyFunc is the key function memoized calls on this backend should use.
	KeyFunc() keyfunc.Func
}

// Result is the outcome of a lookup.
type Result struct {
	Envelope types.Envelope
	Found    bool
}

// Value returns the cached value, or nil on a miss.
func (r Result) Value() any {
	if !r.Found {
		return nil
	}
	return r.Envelope.Value
}

// Miss is the Result of a lookup that found nothing.
var Miss = Result{}

// TypeOf returns the cast type for T.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

// Types builds the key → cast type mapping GetMany expects, with the same type for every key.
func Types[T any](keys ...Key) map[Key]reflect.Type {
	castTo := TypeOf[T]()
	m := make(map[Key]reflect.Type, len(keys))
	for _, k := range keys {
		m[k] = castTo
	}
	return m
}

/*
GetAs is Get with the cast type taken from T.

	price, found, err := cache.GetAs[float64](ctx, c, "price")
*/
func GetAs[T any](ctx context.Context, c Cache, key Key) (T, bool, error) {
	var zero T
	res, err := c.Get(ctx, key, TypeOf[T]())
	if err != nil || !res.Found {
		return zero, false, err
	}
	v, ok := res.Envelope.Value.(T)
	if !ok {
		return zero, true, nil
	}
	return v, true, nil
}
