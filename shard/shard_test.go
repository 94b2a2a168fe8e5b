package shard_test

import (
	"sync"
	"testing"

	"github.com/krisalay/memo-cache/shard"
	"github.com/krisalay/memo-cache/types"
	"github.com/stretchr/testify/require"
)

func TestMapStorePutGetDelete(t *testing.T) {
	s := shard.NewMapStore()

	s.Put("a", &types.Record{Key: "a"})
	s.Put(1, &types.Record{Key: 1})
	require.EqualValues(t, 2, s.Size())

	rec, ok := s.Get("a")
	require.True(t, ok)
	require.Equal(t, "a", rec.Key)

	s.Delete("a")
	s.Delete("missing")
	_, ok = s.Get("a")
	require.False(t, ok)
	require.EqualValues(t, 1, s.Size())
}

func TestMapStoreReplacedRecordIsNewPointer(t *testing.T) {
	s := shard.NewMapStore()
	s.Put("a", &types.Record{Key: "a"})

	first, _ := s.Get("a")
	s.Put("a", &types.Record{Key: "a", Envelope: types.Envelope{Value: 2}})
	second, _ := s.Get("a")

	require.NotSame(t, first, second)
	require.Nil(t, first.Envelope.Value)
}

func TestMapStorePutManyAndClear(t *testing.T) {
	s := shard.NewMapStore()
	s.PutMany([]*types.Record{{Key: "a"}, {Key: "b"}, {Key: "c"}})
	require.EqualValues(t, 3, s.Size())

	s.Clear()
	require.EqualValues(t, 0, s.Size())
	_, ok := s.Get("b")
	require.False(t, ok)
}

func TestMapStoreConcurrentAccess(t *testing.T) {
	s := shard.NewMapStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				key := id*1000 + j
				s.Put(key, &types.Record{Key: key})
				_, _ = s.Get(key)
			}
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 8000, s.Size())
}

func TestHashSelectorIsStable(t *testing.T) {
	shards := []*shard.Shard{shard.NewShard(), shard.NewShard(), shard.NewShard(), shard.NewShard()}
	var sel shard.HashSelector

	type pair struct{ X, Y int }
	for _, key := range []any{"key", 42, pair{1, 2}} {
		require.Same(t, sel.Select(key, shards), sel.Select(key, shards))
	}
}
