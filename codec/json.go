package codec

import (
	"bytes"
	"reflect"

	"github.com/goccy/go-json"
	"github.com/krisalay/memo-cache/types"
)

/*
JSON is the canonical JSON codec: struct fields in declaration order, map keys sorted,
no insignificant whitespace. It is the default for interoperability and debuggability:
stored keys and values can be read with redis-cli.
*/
type JSON struct{}

type jsonEnvelopeOut struct {
	Value   any     `json:"value"`
	TTL     *int64  `json:"ttl"`
	Created float64 `json:"created"`
	Version *int64  `json:"version"`
}

type jsonEnvelopeIn struct {
	Value   json.RawMessage `json:"value"`
	TTL     *int64          `json:"ttl"`
	Created float64         `json:"created"`
	Version *int64          `json:"version"`
}

func (JSON) Name() string { return "json" }

func (JSON) EncodeKey(key any) ([]byte, error) {
	b, err := json.Marshal(key)
	if err != nil {
		return nil, encodeErr("key", err)
	}
	return b, nil
}

func (JSON) EncodeEnvelope(env types.Envelope) ([]byte, error) {
	b, err := json.Marshal(jsonEnvelopeOut{
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

func (JSON) DecodeEnvelope(data []byte, castTo reflect.Type) (types.Envelope, error) {
	var in jsonEnvelopeIn
	if err := json.Unmarshal(data, &in); err != nil {
		return types.Envelope{}, decodeErr(castTo, err)
	}

	raw := bytes.TrimSpace(in.Value)
	isNil := len(raw) == 0 || bytes.Equal(raw, jsonNull)
	value, err := decodeValue(raw, isNil, castTo, unmarshalStrictJSON)
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

var jsonNull = []byte("null")

// unmarshalStrictJSON rejects object fields that castTo does not declare.
func unmarshalStrictJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
