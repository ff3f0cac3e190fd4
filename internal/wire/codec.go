package wire

import "encoding/json"

// Serializer encodes and decodes a single value type across the wire.
// Every Function argument and result has one of these.
type Serializer[T any] interface {
	Encode(T) (json.RawMessage, error)
	Decode(json.RawMessage) (T, error)
}

// JSONSerializer is the default Serializer for any value encoding/json can
// already marshal — structs, primitives, slices, maps.
type JSONSerializer[T any] struct{}

func (JSONSerializer[T]) Encode(v T) (json.RawMessage, error) {
	return json.Marshal(v)
}

func (JSONSerializer[T]) Decode(raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}

// ReferenceSerializer is the Serializer for a pass-by-reference argument
// or result (§4.3): the wire value is just the bound service name, never a
// value encoding of T itself. Bind and Take are supplied by the Endpoint
// layer, which owns the state (service registry, ZiplineScope) needed to
// locate-or-mint a name on encode and build a scoped outbound proxy — or
// resolve back to an already-local instance — on decode.
type ReferenceSerializer[T any] struct {
	Bind func(v T) (name string, err error)
	Take func(name string) (T, error)
}

func (s ReferenceSerializer[T]) Encode(v T) (json.RawMessage, error) {
	name, err := s.Bind(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(name)
}

func (s ReferenceSerializer[T]) Decode(raw json.RawMessage) (T, error) {
	var zero T
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return zero, err
	}
	return s.Take(name)
}

// EncodeArgs encodes a fixed-order argument list, one blob per argument.
// Each blob is independently addressable — a decode failure on argument i
// does not prevent argument j from being read, which matters for
// cancellation paths that never need to touch most arguments.
func EncodeArgs(n int, encode func(i int) (json.RawMessage, error)) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, n)
	for i := 0; i < n; i++ {
		raw, err := encode(i)
		if err != nil {
			return nil, err
		}
		if raw == nil {
			raw = json.RawMessage("null")
		}
		out[i] = raw
	}
	return out, nil
}
