package codec_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/krisalay/memo-cache/codec"
	"github.com/krisalay/memo-cache/keyfunc"
	"github.com/krisalay/memo-cache/types"
	"github.com/stretchr/testify/require"
)

type frozen struct {
	X int `json:"x" msgpack:"x"`
	Y int `json:"y" msgpack:"y"`
}

type profile struct {
	Name string            `json:"name" msgpack:"name"`
	Tags []string          `json:"tags" msgpack:"tags"`
	Meta map[string]string `json:"meta" msgpack:"meta"`
}

func codecs() map[string]codec.Codec {
	return map[string]codec.Codec{"json": codec.JSON{}, "msgpack": codec.Msgpack{}}
}

func TestEncodeKeyAcceptsScalarsAndComposites(t *testing.T) {
	keys := []any{
		1,
		"str",
		time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		frozen{1, 2},
		keyfunc.FuncKey{Func: "f", Args: "[1]"},
	}
	for name, c := range codecs() {
		for _, key := range keys {
			b, err := c.EncodeKey(key)
			require.NoError(t, err, name)
			require.NotEmpty(t, b, name)
		}
	}
}

func TestJSONKeyEncodingIsCanonical(t *testing.T) {
	c := codec.JSON{}

	b, err := c.EncodeKey("test")
	require.NoError(t, err)
	require.Equal(t, `"test"`, string(b))

	b, err = c.EncodeKey(frozen{1, 2})
	require.NoError(t, err)
	require.Equal(t, `{"x":1,"y":2}`, string(b))
}

func TestJSONEnvelopeWireForm(t *testing.T) {
	ttl := int64(60)
	b, err := codec.JSON{}.EncodeEnvelope(types.Envelope{Value: -0.1, TTL: &ttl, Created: 1.5})
	require.NoError(t, err)
	require.JSONEq(t, `{"value":-0.1,"ttl":60,"created":1.5,"version":null}`, string(b))
}

func TestEnvelopeRoundTrip(t *testing.T) {
	ttl := int64(60)
	version := int64(2)
	cases := []struct {
		value  any
		castTo reflect.Type
	}{
		{10.5, reflect.TypeFor[float64]()},
		{"hello", reflect.TypeFor[string]()},
		{int64(7), reflect.TypeFor[int64]()},
		{frozen{3, 4}, reflect.TypeFor[frozen]()},
		{profile{Name: "n", Tags: []string{"a"}, Meta: map[string]string{"k": "v"}}, reflect.TypeFor[profile]()},
	}

	for name, c := range codecs() {
		for _, tc := range cases {
			env := types.Envelope{Value: tc.value, TTL: &ttl, Created: 12.25, Version: &version}

			b, err := c.EncodeEnvelope(env)
			require.NoError(t, err, name)

			got, err := c.DecodeEnvelope(b, tc.castTo)
			require.NoError(t, err, name)
			require.Equal(t, tc.value, got.Value, name)
			require.Equal(t, ttl, *got.TTL, name)
			require.Equal(t, 12.25, got.Created, name)
			require.Equal(t, version, *got.Version, name)
		}
	}
}

func TestNilValueStaysDistinguishable(t *testing.T) {
	for name, c := range codecs() {
		b, err := c.EncodeEnvelope(types.Envelope{Value: nil})
		require.NoError(t, err, name)
		require.NotEmpty(t, b, name)

		got, err := c.DecodeEnvelope(b, reflect.TypeFor[*profile]())
		require.NoError(t, err, name)
		require.Nil(t, got.TTL, name)
		require.Equal(t, (*profile)(nil), got.Value, name)
	}
}

func TestDecodeIntoWrongTypeFails(t *testing.T) {
	for name, c := range codecs() {
		b, err := c.EncodeEnvelope(types.Envelope{Value: "text"})
		require.NoError(t, err, name)

		_, err = c.DecodeEnvelope(b, reflect.TypeFor[float64]())
		require.ErrorIs(t, err, types.ErrSerialization, name)
	}
}

func TestDecodeNilIntoNonNillableFails(t *testing.T) {
	for name, c := range codecs() {
		b, err := c.EncodeEnvelope(types.Envelope{Value: nil})
		require.NoError(t, err, name)

		_, err = c.DecodeEnvelope(b, reflect.TypeFor[float64]())
		require.ErrorIs(t, err, types.ErrSerialization, name)
		_, err = c.DecodeEnvelope(b, reflect.TypeFor[frozen]())
		require.ErrorIs(t, err, types.ErrSerialization, name)

		got, err := c.DecodeEnvelope(b, reflect.TypeFor[map[string]string]())
		require.NoError(t, err, name)
		require.Nil(t, got.Value.(map[string]string), name)
	}
}

func TestDecodeIntoUnrelatedStructFails(t *testing.T) {
	for name, c := range codecs() {
		b, err := c.EncodeEnvelope(types.Envelope{Value: frozen{1, 2}})
		require.NoError(t, err, name)

		_, err = c.DecodeEnvelope(b, reflect.TypeFor[profile]())
		require.ErrorIs(t, err, types.ErrSerialization, name)
	}
}

func TestDecodeGarbageFails(t *testing.T) {
	for name, c := range codecs() {
		_, err := c.DecodeEnvelope([]byte{0xc1, 0xff, 0x00}, reflect.TypeFor[string]())
		require.ErrorIs(t, err, types.ErrSerialization, name)
	}
}

func TestEncodeUnsupportedValueFails(t *testing.T) {
	_, err := codec.JSON{}.EncodeEnvelope(types.Envelope{Value: make(chan int)})
	require.ErrorIs(t, err, types.ErrSerialization)
}

func TestByName(t *testing.T) {
	c, err := codec.ByName("")
	require.NoError(t, err)
	require.Equal(t, "json", c.Name())

	c, err = codec.ByName("msgpack")
	require.NoError(t, err)
	require.Equal(t, "msgpack", c.Name())

	_, err = codec.ByName("xml")
	require.ErrorIs(t, err, types.ErrConfiguration)
}
