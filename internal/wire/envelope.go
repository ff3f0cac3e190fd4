// Package wire defines the JSON call envelopes exchanged across the
// host/JS boundary and the codec used to encode and decode them.
package wire

import "encoding/json"

// Envelope is the wire shape of an outbound call, §6:
//
//	{ "s":"<serviceName>", "f":<ordinal>, "a":[<encArg>,...], "c":"<suspendCbName>"? }
type Envelope struct {
	Service      string            `json:"s"`
	Function     int               `json:"f"`
	Args         []json.RawMessage `json:"a"`
	SuspendCallback string         `json:"c,omitempty"`
}

// Result is the wire shape of a call's reply, §6. Exactly one of Value or
// Exception is set (Value may itself be JSON null; as a RawMessage that is
// the non-empty bytes `null`, which omitempty keeps, so a present-but-null
// value survives round-tripping distinctly from an absent value).
type Result struct {
	Value     json.RawMessage `json:"v,omitempty"`
	Exception json.RawMessage `json:"e,omitempty"`
}

// CancelReply is the value of Result.Value for a suspending call's
// immediate reply: the name of the peer-side cancel service.
type CancelReply struct {
	CancelCallback string `json:"cancelCallback"`
}

// EncodeEnvelope serializes a call envelope to bytes for the channel.
func EncodeEnvelope(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses a call envelope. A malformed frame is reported as
// an InvalidFrame error by the caller (the codec itself just returns the
// json error; the Endpoint wraps it).
func DecodeEnvelope(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// EncodeResult serializes a result envelope.
func EncodeResult(r Result) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeResult parses a result envelope.
func DecodeResult(b []byte) (Result, error) {
	var r Result
	if err := json.Unmarshal(b, &r); err != nil {
		return Result{}, err
	}
	return r, nil
}

// ValueResult builds a normal-result envelope from an already-encoded value.
func ValueResult(v json.RawMessage) Result {
	if v == nil {
		v = json.RawMessage("null")
	}
	return Result{Value: v}
}

// ExceptionResult builds an error-result envelope from an encoded throwable.
func ExceptionResult(encodedThrowable json.RawMessage) Result {
	return Result{Exception: encodedThrowable}
}

// CancelResult builds the immediate reply to an invokeSuspending call.
func CancelResult(cancelServiceName string) (Result, error) {
	v, err := json.Marshal(CancelReply{CancelCallback: cancelServiceName})
	if err != nil {
		return Result{}, err
	}
	return Result{Value: v}, nil
}
