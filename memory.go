package cache

import (
	"context"
	"reflect"
	"time"

	"github.com/krisalay/memo-cache/engine"
	"github.com/krisalay/memo-cache/keyfunc"
	"github.com/krisalay/memo-cache/shard"
	"github.com/krisalay/memo-cache/types"
)

// DefaultShards is the shard count used by NewInMemoryCache.
const DefaultShards = 16

/*
InMemoryCache is the process-local backend.
This struct is the orchestrator that connects:
- shards (storage + write locks)
- the engine (clock, expiration, metrics, logging)
- the key function for memoized calls

It is unbounded and never persists anything. Expired entries are removed lazily when
they are accessed. There is no background sweep.
*/
type InMemoryCache struct {
	// shards are the actual storage units. Each shard is an independent mini-map.
	shards []*shard.Shard

	// engine contains the "rules" of the cache: clock, TTL, metrics, logging.
	engine *engine.CacheEngine

	// selector decides which shard a key should go to.
	selector shard.Selector

	keyFunc keyfunc.Func
}

var _ Cache = (*InMemoryCache)(nil)

// NewInMemoryCache returns an in-memory cache with the default engine and shard count.
func NewInMemoryCache() *InMemoryCache {
	return NewShardedInMemoryCache(DefaultShards, nil)
}

/*
NewShardedInMemoryCache creates an in-memory cache over the given number of shards.
A nil engine gets engine.Default(). shards < 1 is treated as 1.
*/
func NewShardedInMemoryCache(shards int, eng *engine.CacheEngine) *InMemoryCache {
	if shards < 1 {
		shards = 1
	}
	if eng == nil {
		eng = engine.Default()
	}

	s := make([]*shard.Shard, shards)
	for i := range s {
		s[i] = shard.NewShard()
	}

	return &InMemoryCache{
		shards:   s,
		engine:   eng,
		selector: shard.HashSelector{},
		keyFunc:  keyfunc.Structural{},
	}
}

// KeyFunc implements Cache.KeyFunc.
func (c *InMemoryCache) KeyFunc() keyfunc.Func {
	return c.keyFunc
}

/*
Set stores a value. The expiry instant is computed here, once, as now + ttl.
*/
func (c *InMemoryCache) Set(ctx context.Context, key Key, value any, ttl time.Duration) error {
	if err := validateWrite(key, ttl); err != nil {
		return err
	}

	sh := c.selector.Select(key, c.shards)
	rec := c.engine.NewRecord(key, value, ttl)

	// Lock shard for safe writes
	sh.Mu.Lock()
	defer sh.Mu.Unlock()

	sh.Store.Put(key, rec)
	return nil
}

/*
SetMany stores every entry with the same TTL. Records are grouped per shard so each
shard copies its map once.
*/
func (c *InMemoryCache) SetMany(ctx context.Context, entries map[Key]any, ttl time.Duration) error {
	if err := engine.ValidateTTL(ttl); err != nil {
		return err
	}
	for key := range entries {
		if err := engine.ValidateKey(key); err != nil {
			return err
		}
	}

	grouped := make(map[*shard.Shard][]*types.Record)
	for key, value := range entries {
		sh := c.selector.Select(key, c.shards)
		grouped[sh] = append(grouped[sh], c.engine.NewRecord(key, value, ttl))
	}

	for sh, recs := range grouped {
		sh.Mu.Lock()
		sh.Store.PutMany(recs)
		sh.Mu.Unlock()
	}
	return nil
}

// Exists implements Cache.Exists.
func (c *InMemoryCache) Exists(ctx context.Context, key Key) (bool, error) {
	if err := engine.ValidateKey(key); err != nil {
		return false, err
	}
	_, ok := c.lookup(key)
	return ok, nil
}

/*
Get retrieves a value from the cache.

An expired entry is deleted before reporting not-found.
*/
func (c *InMemoryCache) Get(ctx context.Context, key Key, castTo reflect.Type) (Result, error) {
	if err := engine.ValidateKey(key); err != nil {
		return Miss, err
	}
	if err := engine.ValidateCastType(castTo); err != nil {
		return Miss, err
	}

	rec, ok := c.lookup(key)
	c.engine.OnLookup(ok)
	if !ok {
		return Miss, nil
	}

	value, err := engine.Cast(rec.Envelope.Value, castTo)
	if err != nil {
		return Miss, err
	}
	env := rec.Envelope
	env.Value = value
	return Result{Envelope: env, Found: true}, nil
}

// GetMany is repeated Get: the in-memory backend has nothing to batch.
func (c *InMemoryCache) GetMany(ctx context.Context, keys map[Key]reflect.Type) (map[Key]Result, error) {
	out := make(map[Key]Result, len(keys))
	for key, castTo := range keys {
		res, err := c.Get(ctx, key, castTo)
		if err != nil {
			return nil, err
		}
		out[key] = res
	}
	return out, nil
}

/*
Invalidate deletes a key from the cache immediately.
This operation is idempotent.
*/
func (c *InMemoryCache) Invalidate(ctx context.Context, key Key) error {
	if err := engine.ValidateKey(key); err != nil {
		return err
	}
	sh := c.selector.Select(key, c.shards)

	sh.Mu.Lock()
	defer sh.Mu.Unlock()

	sh.Store.Delete(key)
	c.engine.Metrics.Invalidate()
	return nil
}

// InvalidateAll clears every shard. The scope is this instance only.
func (c *InMemoryCache) InvalidateAll(ctx context.Context) error {
	for _, sh := range c.shards {
		sh.Mu.Lock()
		sh.Store.Clear()
		sh.Mu.Unlock()
	}
	c.engine.Metrics.Invalidate()
	return nil
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (c *InMemoryCache) Len() int {
	var n int64
	for _, sh := range c.shards {
		n += sh.Store.Size()
	}
	return int(n)
}

/*
lookup returns the live record for key.

Reads only take the store's read lock. When the record is found expired we take the shard lock,
re-check under it (a concurrent Set may have replaced the record), and delete.
*/
func (c *InMemoryCache) lookup(key Key) (*types.Record, bool) {
	sh := c.selector.Select(key, c.shards)

	rec, ok := sh.Store.Get(key)
	if !ok {
		return nil, false
	}
	if !c.engine.IsExpired(rec) {
		return rec, true
	}

	sh.Mu.Lock()
	defer sh.Mu.Unlock()

	current, ok := sh.Store.Get(key)
	if !ok {
		return nil, false
	}
	if current != rec && !c.engine.IsExpired(current) {
		return current, true
	}
	sh.Store.Delete(key)
	c.engine.OnExpire(key)
	return nil, false
}

func validateWrite(key Key, ttl time.Duration) error {
	if err := engine.ValidateKey(key); err != nil {
		return err
	}
	return engine.ValidateTTL(ttl)
}
