// Package rediscache implements cache.Cache on top of a Redis server.
//
// Keys and envelopes are encoded with a codec (canonical JSON by default) and stored
// as plain strings. Expiry is Redis' own: entries written with a TTL use SETEX and
// disappear server-side; there is no client-side expiry check.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/hashicorp/go-multierror"
	cache "github.com/krisalay/memo-cache"
	"github.com/krisalay/memo-cache/codec"
	"github.com/krisalay/memo-cache/engine"
	"github.com/krisalay/memo-cache/keyfunc"
	"github.com/krisalay/memo-cache/types"
	"github.com/redis/go-redis/v9"
)

// Options configures a RemoteCache.
type Options struct {
	// Client is the pre-configured connection. It is shared and never mutated.
	Client redis.Cmdable

	// Version salts the default key function, namespacing memoized keys per release.
	Version string

	// Codec defaults to canonical JSON.
	Codec codec.Codec

	// KeyFunc defaults to keyfunc.Blake2b{Salt: Version}.
	KeyFunc keyfunc.Func

	// Engine supplies clock, metrics, logger and envelope version. Defaults to engine.Default().
	Engine *engine.CacheEngine
}

// RemoteCache implements cache.Cache using a Redis client.
type RemoteCache struct {
	r       redis.Cmdable
	codec   codec.Codec
	keyFunc keyfunc.Func
	engine  *engine.CacheEngine
}

var _ cache.Cache = (*RemoteCache)(nil)

/*
New creates a Redis-backed cache.

Construction fails fast with ErrConfiguration when the client is missing or when the
server does not answer PING, instead of deferring the failure to the first lookup.
*/
func New(ctx context.Context, opts Options) (*RemoteCache, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("%w: redis cache: client is required", types.ErrConfiguration)
	}
	if err := opts.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: redis cache: ping: %w", types.ErrConfiguration, err)
	}

	c := &RemoteCache{
		r:       opts.Client,
		codec:   opts.Codec,
		keyFunc: opts.KeyFunc,
		engine:  opts.Engine,
	}
	if c.codec == nil {
		c.codec = codec.Default()
	}
	if c.keyFunc == nil {
		c.keyFunc = keyfunc.Blake2b{Salt: opts.Version}
	}
	if c.engine == nil {
		c.engine = engine.Default()
	}
	return c, nil
}

// KeyFunc implements Cache.KeyFunc.
func (c *RemoteCache) KeyFunc() keyfunc.Func {
	return c.keyFunc
}

func (c *RemoteCache) encodeKey(key cache.Key) (string, error) {
	if err := engine.ValidateKey(key); err != nil {
		return "", err
	}
	b, err := c.codec.EncodeKey(key)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *RemoteCache) encodeValue(value any, ttl time.Duration) ([]byte, error) {
	return c.codec.EncodeEnvelope(c.engine.NewEnvelope(value, ttl))
}

/*
save writes one encoded entry: SETEX when a TTL is given (Redis deletes it after ttl),
plain SET otherwise.
*/
func save(ctx context.Context, r redis.Cmdable, key string, value []byte, ttl time.Duration) error {
	if ttl > 0 {
		return r.SetEx(ctx, key, value, ttl).Err()
	}
	return r.Set(ctx, key, value, 0).Err()
}

// Set implements Cache.Set.
func (c *RemoteCache) Set(ctx context.Context, key cache.Key, value any, ttl time.Duration) error {
	if err := engine.ValidateTTL(ttl); err != nil {
		return err
	}
	k, err := c.encodeKey(key)
	if err != nil {
		return err
	}
	v, err := c.encodeValue(value, ttl)
	if err != nil {
		return err
	}
	if err := save(ctx, c.r, k, v, ttl); err != nil {
		return backendErr("set", err)
	}
	return nil
}

/*
SetMany writes every entry in one pipelined round trip.

The pipeline is for throughput only: it is not a transaction. When some commands
fail, the others are still applied, and the returned error aggregates every failure.
*/
func (c *RemoteCache) SetMany(ctx context.Context, entries map[cache.Key]any, ttl time.Duration) error {
	if err := engine.ValidateTTL(ttl); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	// Encode everything first so a serialization error sends nothing.
	encoded := make(map[string][]byte, len(entries))
	for key, value := range entries {
		k, err := c.encodeKey(key)
		if err != nil {
			return err
		}
		v, err := c.encodeValue(value, ttl)
		if err != nil {
			return err
		}
		encoded[k] = v
	}

	pipe := c.r.Pipeline()
	for k, v := range encoded {
		// Errors are reported per command by Exec.
		_ = save(ctx, pipe, k, v, ttl)
	}

	cmds, err := pipe.Exec(ctx)
	if err == nil {
		return nil
	}

	var merr *multierror.Error
	for _, cmd := range cmds {
		if cmdErr := cmd.Err(); cmdErr != nil {
			merr = multierror.Append(merr, cmdErr)
		}
	}
	if merr == nil {
		merr = multierror.Append(merr, err)
	}
	c.engine.Logger.WithField("failed", merr.Len()).WithField("total", len(encoded)).
		Warn("cache: pipelined set_many partially failed")
	return backendErr("set_many", merr.ErrorOrNil())
}

// Exists implements Cache.Exists. Redis enforces expiry, so EXISTS is enough.
func (c *RemoteCache) Exists(ctx context.Context, key cache.Key) (bool, error) {
	k, err := c.encodeKey(key)
	if err != nil {
		return false, err
	}
	n, err := c.r.Exists(ctx, k).Result()
	if err != nil {
		return false, backendErr("exists", err)
	}
	return n > 0, nil
}

// Get implements Cache.Get.
func (c *RemoteCache) Get(ctx context.Context, key cache.Key, castTo reflect.Type) (cache.Result, error) {
	if err := engine.ValidateCastType(castTo); err != nil {
		return cache.Miss, err
	}
	k, err := c.encodeKey(key)
	if err != nil {
		return cache.Miss, err
	}

	raw, err := c.r.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		c.engine.OnLookup(false)
		return cache.Miss, nil
	}
	if err != nil {
		return cache.Miss, backendErr("get", err)
	}

	env, err := c.codec.DecodeEnvelope(raw, castTo)
	if err != nil {
		return cache.Miss, err
	}
	c.engine.OnLookup(true)
	return cache.Result{Envelope: env, Found: true}, nil
}

/*
GetMany issues a single MGET. Redis answers positionally, so results are zipped back
to keys in the order they were sent.
*/
func (c *RemoteCache) GetMany(ctx context.Context, keys map[cache.Key]reflect.Type) (map[cache.Key]cache.Result, error) {
	out := make(map[cache.Key]cache.Result, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	ordered := make([]cache.Key, 0, len(keys))
	encoded := make([]string, 0, len(keys))
	for key, castTo := range keys {
		if err := engine.ValidateCastType(castTo); err != nil {
			return nil, err
		}
		k, err := c.encodeKey(key)
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, key)
		encoded = append(encoded, k)
	}

	raws, err := c.r.MGet(ctx, encoded...).Result()
	if err != nil {
		return nil, backendErr("mget", err)
	}
	if len(raws) != len(ordered) {
		return nil, backendErr("mget", fmt.Errorf("expected %d values, got %d", len(ordered), len(raws)))
	}

	for i, key := range ordered {
		raw, ok := raws[i].(string)
		if !ok {
			c.engine.OnLookup(false)
			out[key] = cache.Miss
			continue
		}
		env, err := c.codec.DecodeEnvelope([]byte(raw), keys[key])
		if err != nil {
			return nil, err
		}
		c.engine.OnLookup(true)
		out[key] = cache.Result{Envelope: env, Found: true}
	}
	return out, nil
}

// Invalidate implements Cache.Invalidate. DEL ignores missing keys.
func (c *RemoteCache) Invalidate(ctx context.Context, key cache.Key) error {
	k, err := c.encodeKey(key)
	if err != nil {
		return err
	}
	if err := c.r.Del(ctx, k).Err(); err != nil {
		return backendErr("del", err)
	}
	c.engine.Metrics.Invalidate()
	return nil
}

/*
InvalidateAll issues FLUSHDB ASYNC: Redis frees memory in the background and the
caller does not wait for it.

WARNING: this drops EVERY key of the connected database, including keys that were not
written through this cache.
*/
func (c *RemoteCache) InvalidateAll(ctx context.Context) error {
	c.engine.Logger.Warn("cache: flushing the entire redis database")
	if err := c.r.FlushDBAsync(ctx).Err(); err != nil {
		return backendErr("flushdb", err)
	}
	c.engine.Metrics.Invalidate()
	return nil
}

func backendErr(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %w", types.ErrBackend, op, err)
}
