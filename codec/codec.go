// Package codec turns keys and envelopes into bytes for stores that only keep bytes.
package codec

import (
	"fmt"
	"reflect"

	"github.com/krisalay/memo-cache/types"
)

/*
Codec is the byte encoding used by the remote and persistent backends.

The wire form does not describe Go types, so decoding is parameterized by the type
the caller expects (castTo). A value that does not fit castTo fails with
types.ErrSerialization.
*/
type Codec interface {

	// Name identifies the codec in configuration ("json", "msgpack").
	Name() string

	// EncodeKey encodes a cache key.
	EncodeKey(key any) ([]byte, error)

	// EncodeEnvelope encodes a full envelope.
	EncodeEnvelope(env types.Envelope) ([]byte, error)

	// DecodeEnvelope decodes an envelope whose value is of type castTo.
	DecodeEnvelope(data []byte, castTo reflect.Type) (types.Envelope, error)
}

// Default returns the canonical JSON codec.
func Default() Codec {
	return JSON{}
}

// ByName resolves a codec from its configured name.
func ByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "msgpack":
		return Msgpack{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown codec %q", types.ErrConfiguration, name)
	}
}

/*
decodeValue decodes a raw value into a new castTo. A nil raw value (absent or null)
is only accepted when castTo can hold nil; strict decodes the rest.
*/
func decodeValue(raw []byte, isNil bool, castTo reflect.Type, strict func([]byte, any) error) (any, error) {
	target := reflect.New(castTo)
	if isNil {
		if !nillable(castTo) {
			return nil, fmt.Errorf("%w: stored nil cannot be read as %s", types.ErrSerialization, castTo)
		}
		return target.Elem().Interface(), nil
	}
	if err := strict(raw, target.Interface()); err != nil {
		return nil, decodeErr(castTo, err)
	}
	return target.Elem().Interface(), nil
}

func nillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return true
	}
	return false
}

func encodeErr(what string, err error) error {
	return fmt.Errorf("%w: encode %s: %w", types.ErrSerialization, what, err)
}

func decodeErr(castTo reflect.Type, err error) error {
	return fmt.Errorf("%w: decode value as %s: %w", types.ErrSerialization, castTo, err)
}
