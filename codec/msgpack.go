package codec

import (
	"bytes"
	"reflect"

	"github.com/krisalay/memo-cache/types"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// Msgpack is a compact binary codec. Stored values are no longer human-readable,
// but they are smaller and faster to encode than JSON.
type Msgpack struct{}

type msgpackEnvelopeOut struct {
	Value   any     `msgpack:"value"`
	TTL     *int64  `msgpack:"ttl"`
	Created float64 `msgpack:"created"`
	Version *int64  `msgpack:"version"`
}

type msgpackEnvelopeIn struct {
	Value   msgpack.RawMessage `msgpack:"value"`
	TTL     *int64             `msgpack:"ttl"`
	Created float64            `msgpack:"created"`
	Version *int64             `msgpack:"version"`
}

func (Msgpack) Name() string { return "msgpack" }

func (Msgpack) EncodeKey(key any) ([]byte, error) {
	b, err := marshalSorted(key)
	if err != nil {
		return nil, encodeErr("key", err)
	}
	return b, nil
}

func (Msgpack) EncodeEnvelope(env types.Envelope) ([]byte, error) {
	b, err := marshalSorted(msgpackEnvelopeOut{
		Value:   env.Value,
		TTL:     env.TTL,
		Created: env.Created,
		Version: env.Version,
	})
	if err != nil {
		return nil, encodeErr("envelope", err)
	}
	return b, nil
}

func (Msgpack) DecodeEnvelope(data []byte, castTo reflect.Type) (types.Envelope, error) {
	var in msgpackEnvelopeIn
	if err := msgpack.Unmarshal(data, &in); err != nil {
		return types.Envelope{}, decodeErr(castTo, err)
	}

	isNil := len(in.Value) == 0 || (len(in.Value) == 1 && in.Value[0] == msgpcode.Nil)
	value, err := decodeValue(in.Value, isNil, castTo, unmarshalStrictMsgpack)
	if err != nil {
		return types.Envelope{}, err
	}

	return types.Envelope{
		Value:   value,
		TTL:     in.TTL,
		Created: in.Created,
		Version: in.Version,
	}, nil
}

// marshalSorted encodes with sorted map keys so equal keys always encode to equal bytes.
func marshalSorted(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// unmarshalStrictMsgpack rejects map fields that castTo does not declare.
func unmarshalStrictMsgpack(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields(true)
	return dec.Decode(v)
}
