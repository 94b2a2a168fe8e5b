// Package cachetest runs the behavior every cache.Cache backend must honor.
package cachetest

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	cache "github.com/krisalay/memo-cache"
	"github.com/krisalay/memo-cache/keyfunc"
	"github.com/stretchr/testify/require"
)

// Harness is one fresh backend plus a way to move its notion of time forward.
type Harness struct {
	Cache   cache.Cache
	Advance func(time.Duration)
}

// Factory builds a fresh, empty Harness for a single test.
type Factory func(t *testing.T) Harness

const year = 365 * 24 * time.Hour

type Point struct {
	X int `json:"x" msgpack:"x"`
	Y int `json:"y" msgpack:"y"`
}

type Profile struct {
	Name   string            `json:"name" msgpack:"name"`
	Scores []float64         `json:"scores" msgpack:"scores"`
	Labels map[string]string `json:"labels" msgpack:"labels"`
}

var floatType = cache.TypeOf[float64]()

func elements(from, to int) map[cache.Key]reflect.Type {
	m := make(map[cache.Key]reflect.Type, to-from)
	for i := from; i < to; i++ {
		m[fmt.Sprintf("test_%d", i)] = floatType
	}
	return m
}

func values(keys map[cache.Key]reflect.Type, v any) map[cache.Key]any {
	m := make(map[cache.Key]any, len(keys))
	for k := range keys {
		m[k] = v
	}
	return m
}

// Run executes the whole suite against backends built by newHarness.
func Run(t *testing.T, newHarness Factory) {
	tests := map[string]func(*testing.T, Harness){
		"GetSetWithoutTTL":     testGetSetWithoutTTL,
		"GetSetWithTTL":        testGetSetWithTTL,
		"GetSetExpired":        testGetSetExpired,
		"NoTTLNeverExpires":    testNoTTLNeverExpires,
		"OverwriteReplacesTTL": testOverwriteReplacesTTL,
		"Exists":               testExists,
		"GetSetManyWithoutTTL": testGetSetManyWithoutTTL,
		"GetSetManyWithTTL":    testGetSetManyWithTTL,
		"GetSetManyExpired":    testGetSetManyExpired,
		"GetSetManyPartial":    testGetSetManyPartial,
		"GetManyMatchesGet":    testGetManyMatchesGet,
		"GetManyEmpty":         testGetManyEmpty,
		"Invalidate":           testInvalidate,
		"InvalidateMissingKey": testInvalidateMissingKey,
		"InvalidateAll":        testInvalidateAll,
		"CompositeKeys":        testCompositeKeys,
		"StructValues":         testStructValues,
		"NilPointerValue":      testNilPointerValue,
		"WrongCastType":        testWrongCastType,
		"InvalidArguments":     testInvalidArguments,
		"KeyFunc":              testKeyFunc,
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			fn(t, newHarness(t))
		})
	}
}

func testGetSetWithoutTTL(t *testing.T, h Harness) {
	ctx := context.Background()

	require.NoError(t, h.Cache.Set(ctx, "test", 10.5, cache.NoExpiration))

	res, err := h.Cache.Get(ctx, "test", floatType)
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Equal(t, 10.5, res.Value())
	require.Nil(t, res.Envelope.TTL)
}

func testGetSetWithTTL(t *testing.T, h Harness) {
	ctx := context.Background()

	require.NoError(t, h.Cache.Set(ctx, "test", -0.1, 60*time.Second))

	res, err := h.Cache.Get(ctx, "test", floatType)
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Equal(t, -0.1, res.Value())
	require.NotNil(t, res.Envelope.TTL)
	require.EqualValues(t, 60, *res.Envelope.TTL)

	h.Advance(59 * time.Second)
	res, err = h.Cache.Get(ctx, "test", floatType)
	require.NoError(t, err)
	require.True(t, res.Found)

	h.Advance(2 * time.Second)
	res, err = h.Cache.Get(ctx, "test", floatType)
	require.NoError(t, err)
	require.False(t, res.Found)
	require.Nil(t, res.Value())
}

func testGetSetExpired(t *testing.T, h Harness) {
	ctx := context.Background()

	require.NoError(t, h.Cache.Set(ctx, "test", 0.1, 10*time.Second))
	h.Advance(year)

	v, found, err := cache.GetAs[float64](ctx, h.Cache, "test")
	require.NoError(t, err)
	require.False(t, found)
	require.Zero(t, v)
}

func testNoTTLNeverExpires(t *testing.T, h Harness) {
	ctx := context.Background()

	require.NoError(t, h.Cache.Set(ctx, "forever", 1.0, cache.NoExpiration))
	h.Advance(10 * year)

	v, found, err := cache.GetAs[float64](ctx, h.Cache, "forever")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1.0, v)
}

func testOverwriteReplacesTTL(t *testing.T, h Harness) {
	ctx := context.Background()

	require.NoError(t, h.Cache.Set(ctx, "k", 1.0, 10*time.Second))
	require.NoError(t, h.Cache.Set(ctx, "k", 2.0, cache.NoExpiration))
	h.Advance(time.Minute)

	res, err := h.Cache.Get(ctx, "k", floatType)
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Equal(t, 2.0, res.Value())
	require.Nil(t, res.Envelope.TTL)
}

func testExists(t *testing.T, h Harness) {
	ctx := context.Background()

	ok, err := h.Cache.Exists(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, h.Cache.Set(ctx, "k", 1.0, 10*time.Second))
	ok, err = h.Cache.Exists(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	h.Advance(11 * time.Second)
	ok, err = h.Cache.Exists(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func testGetSetManyWithoutTTL(t *testing.T, h Harness) {
	ctx := context.Background()
	keys := elements(0, 5)

	require.NoError(t, h.Cache.SetMany(ctx, values(keys, 100.0), cache.NoExpiration))

	result, err := h.Cache.GetMany(ctx, keys)
	require.NoError(t, err)
	require.Len(t, result, len(keys))
	for key := range keys {
		res, ok := result[key]
		require.True(t, ok)
		require.True(t, res.Found)
		require.Equal(t, 100.0, res.Value())
		require.Nil(t, res.Envelope.TTL)
	}
}

func testGetSetManyWithTTL(t *testing.T, h Harness) {
	ctx := context.Background()
	keys := elements(0, 5)

	require.NoError(t, h.Cache.SetMany(ctx, values(keys, 1.0), 60*time.Second))

	result, err := h.Cache.GetMany(ctx, keys)
	require.NoError(t, err)
	require.Len(t, result, len(keys))
	for _, res := range result {
		require.True(t, res.Found)
		require.Equal(t, 1.0, res.Value())
		require.EqualValues(t, 60, *res.Envelope.TTL)
	}
}

func testGetSetManyExpired(t *testing.T, h Harness) {
	ctx := context.Background()
	keys := map[cache.Key]reflect.Type{"a": floatType, "b": floatType}

	require.NoError(t, h.Cache.SetMany(ctx, map[cache.Key]any{"a": 1.1, "b": 2.2}, 50*time.Second))
	h.Advance(51 * time.Second)

	result, err := h.Cache.GetMany(ctx, keys)
	require.NoError(t, err)
	require.Equal(t, map[cache.Key]cache.Result{"a": cache.Miss, "b": cache.Miss}, result)
}

func testGetSetManyPartial(t *testing.T, h Harness) {
	ctx := context.Background()
	expired := elements(1, 55)
	all := elements(0, 55)

	require.NoError(t, h.Cache.Set(ctx, "test_0", -100.0, cache.NoExpiration))
	require.NoError(t, h.Cache.SetMany(ctx, values(expired, -100.0), 50*time.Second))
	h.Advance(year)

	result, err := h.Cache.GetMany(ctx, all)
	require.NoError(t, err)
	require.Len(t, result, len(all))

	var found []cache.Key
	for key, res := range result {
		if res.Found {
			found = append(found, key)
		}
	}
	require.Equal(t, []cache.Key{"test_0"}, found)
}

func testGetManyMatchesGet(t *testing.T, h Harness) {
	ctx := context.Background()
	short := elements(0, 3)
	long := elements(3, 6)
	all := elements(0, 8)

	require.NoError(t, h.Cache.SetMany(ctx, values(short, 1.5), 10*time.Second))
	require.NoError(t, h.Cache.SetMany(ctx, values(long, 2.5), time.Hour))
	h.Advance(time.Minute)

	batch, err := h.Cache.GetMany(ctx, all)
	require.NoError(t, err)

	for key, castTo := range all {
		single, err := h.Cache.Get(ctx, key, castTo)
		require.NoError(t, err)
		require.Equal(t, single.Found, batch[key].Found, key)
		require.Equal(t, single.Value(), batch[key].Value(), key)
	}
	for key := range long {
		require.True(t, batch[key].Found)
	}
}

func testGetManyEmpty(t *testing.T, h Harness) {
	result, err := h.Cache.GetMany(context.Background(), map[cache.Key]reflect.Type{})
	require.NoError(t, err)
	require.Empty(t, result)
}

func testInvalidate(t *testing.T, h Harness) {
	ctx := context.Background()

	require.NoError(t, h.Cache.Set(ctx, "test", 1.0, time.Hour))
	require.NoError(t, h.Cache.Invalidate(ctx, "test"))

	res, err := h.Cache.Get(ctx, "test", floatType)
	require.NoError(t, err)
	require.False(t, res.Found)
}

func testInvalidateMissingKey(t *testing.T, h Harness) {
	require.NoError(t, h.Cache.Invalidate(context.Background(), uuid.NewString()))
}

func testInvalidateAll(t *testing.T, h Harness) {
	ctx := context.Background()
	keys := elements(0, 5)

	require.NoError(t, h.Cache.SetMany(ctx, values(keys, 1.0), 60*time.Second))
	require.NoError(t, h.Cache.Set(ctx, "persistent", 2.0, cache.NoExpiration))
	require.NoError(t, h.Cache.InvalidateAll(ctx))

	keys["persistent"] = floatType
	result, err := h.Cache.GetMany(ctx, keys)
	require.NoError(t, err)
	for key, res := range result {
		require.False(t, res.Found, key)
	}
}

func testCompositeKeys(t *testing.T, h Harness) {
	ctx := context.Background()
	keys := []cache.Key{
		1,
		"str",
		Point{1, 2},
		keyfunc.FuncKey{Func: "pkg.Lookup", Args: `[1,"a"]`},
	}

	for i, key := range keys {
		require.NoError(t, h.Cache.Set(ctx, key, float64(i), cache.NoExpiration))
	}
	for i, key := range keys {
		v, found, err := cache.GetAs[float64](ctx, h.Cache, key)
		require.NoError(t, err)
		require.True(t, found, key)
		require.Equal(t, float64(i), v, key)
	}

	_, found, err := cache.GetAs[float64](ctx, h.Cache, Point{2, 1})
	require.NoError(t, err)
	require.False(t, found)
}

func testStructValues(t *testing.T, h Harness) {
	ctx := context.Background()
	want := Profile{
		Name:   "ada",
		Scores: []float64{1.5, 2},
		Labels: map[string]string{"team": "core"},
	}
	key := uuid.NewString()

	require.NoError(t, h.Cache.Set(ctx, key, want, time.Minute))

	got, found, err := cache.GetAs[Profile](ctx, h.Cache, key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, want, got)
}

func testNilPointerValue(t *testing.T, h Harness) {
	ctx := context.Background()

	require.NoError(t, h.Cache.Set(ctx, "nil", (*Profile)(nil), cache.NoExpiration))

	got, found, err := cache.GetAs[*Profile](ctx, h.Cache, "nil")
	require.NoError(t, err)
	require.True(t, found, "a cached nil must not look like a miss")
	require.Nil(t, got)
}

func testWrongCastType(t *testing.T, h Harness) {
	ctx := context.Background()

	require.NoError(t, h.Cache.Set(ctx, "text", "not a number", cache.NoExpiration))

	_, err := h.Cache.Get(ctx, "text", floatType)
	require.ErrorIs(t, err, cache.ErrSerialization)

	require.NoError(t, h.Cache.Set(ctx, "nil", nil, cache.NoExpiration))
	_, err = h.Cache.Get(ctx, "nil", floatType)
	require.ErrorIs(t, err, cache.ErrSerialization)

	require.NoError(t, h.Cache.Set(ctx, "point", Point{1, 2}, cache.NoExpiration))
	_, err = h.Cache.Get(ctx, "point", cache.TypeOf[Profile]())
	require.ErrorIs(t, err, cache.ErrSerialization)

	batch, err := h.Cache.GetMany(ctx, map[cache.Key]reflect.Type{"point": cache.TypeOf[Profile]()})
	require.ErrorIs(t, err, cache.ErrSerialization)
	require.Nil(t, batch)
}

func testInvalidArguments(t *testing.T, h Harness) {
	ctx := context.Background()

	require.ErrorIs(t, h.Cache.Set(ctx, "k", 1.0, -time.Second), cache.ErrValidation)
	require.ErrorIs(t, h.Cache.SetMany(ctx, map[cache.Key]any{"k": 1.0}, -time.Second), cache.ErrValidation)
	require.ErrorIs(t, h.Cache.Set(ctx, nil, 1.0, 0), cache.ErrValidation)

	_, err := h.Cache.Get(ctx, "k", nil)
	require.ErrorIs(t, err, cache.ErrValidation)
}

func testKeyFunc(t *testing.T, h Harness) {
	kf := h.Cache.KeyFunc()
	require.NotNil(t, kf)

	a, err := kf.Key("f", keyfunc.Named{"a": 1, "b": 2})
	require.NoError(t, err)
	b, err := kf.Key("f", keyfunc.Named{"b": 2, "a": 1})
	require.NoError(t, err)
	require.Equal(t, a, b)
}
