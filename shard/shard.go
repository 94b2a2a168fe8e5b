package shard

import "sync"

/*
This file defines what a "Shard" is. A shard is a small, independent piece of the cache.
Instead of having: One big cache and one big lock
We split the cache into many shards. Each shard:
- Holds some portion of the data
- Has its own lock for writes

Shards are unbounded: there is no capacity and no eviction order. Entries leave a shard
only when explicitly removed or when found expired on access.
*/

type Shard struct {

	// Store holds the actual key → record data for this shard.
	// It synchronizes its own map access.
	Store ShardStore

	// Mu serializes compound operations on this shard: writes, and the
	// read-check-delete of a lazily expired entry. Plain reads do not take it.
	Mu sync.Mutex
}

func NewShard() *Shard {
	return &Shard{
		Store: NewMapStore(),
	}
}
