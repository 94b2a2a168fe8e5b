package shard

import (
	"fmt"
	"hash/fnv"
)

/*
This file decides HOW a cache key is assigned to a shard.
If every request went to the same shard, that shard would become a bottleneck.
*/

/*
Selector is the interface that decides which shard should handle a given key.
The cache does not care HOW this decision is made. Different strategies can be plugged in.
*/
type Selector interface {
	Select(any, []*Shard) *Shard
}

/*
HashSelector routes a key by hashing its printed form (type + value). Equal comparable
keys always print the same way, so they always land on the same shard.
*/
type HashSelector struct{}

// hash converts a key into a number. FNV is a fast, non-cryptographic hash.
func hash(key any) uint32 {
	h := fnv.New32a()
	fmt.Fprintf(h, "%T\x00%v", key, key)
	return h.Sum32()
}

// Select chooses the shard for a given key.
func (HashSelector) Select(key any, shards []*Shard) *Shard {
	idx := hash(key) % uint32(len(shards))
	return shards[idx]
}
