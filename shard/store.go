package shard

import (
	"sync"

	"github.com/krisalay/memo-cache/types"
)

/*
This file defines how data is actually stored inside a shard.

Shards are unbounded, so a write must not cost more as the shard grows. The store is a
plain map guarded by a read/write lock:
- Reads share the lock and never block each other
- Writes are O(1) and hold the lock only for the map operation
*/

// ShardStore is the interface used by a shard to store and retrieve records.
type ShardStore interface {

	// Get retrieves a record by key.
	Get(any) (*types.Record, bool)

	// Put inserts or replaces a record.
	Put(any, *types.Record)

	// PutMany inserts or replaces several records under one lock acquisition.
	PutMany([]*types.Record)

	// Delete removes a record.
	Delete(any)

	// Clear drops every record.
	Clear()

	// Size returns how many records are stored.
	Size() int64
}

/*
mapStore is the default ShardStore.

Records are never mutated after they are stored: replacing a key stores a new
*types.Record, so a reader holding the old pointer keeps a consistent view.
*/
type mapStore struct {
	mu   sync.RWMutex
	data map[any]*types.Record
}

func NewMapStore() *mapStore {
	return &mapStore{data: make(map[any]*types.Record)}
}

// Get retrieves a record.
func (s *mapStore) Get(key any) (*types.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[key]
	return rec, ok
}

// Put inserts or updates a record.
func (s *mapStore) Put(key any, rec *types.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = rec
}

func (s *mapStore) PutMany(recs []*types.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		s.data[rec.Key] = rec
	}
}

// Delete removes a record. Missing keys are ignored.
func (s *mapStore) Delete(key any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Clear drops the map and starts over with an empty one.
func (s *mapStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[any]*types.Record)
}

// Size returns how many records are in the store.
func (s *mapStore) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data))
}
