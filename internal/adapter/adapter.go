// Package adapter defines the per-interface Service Adapter contract that
// the Endpoint depends on. Per design note (a), adapters here
// are user/generator-written: a compiler plugin could emit them, but
// nothing downstream cares how they were produced.
package adapter

import (
	"context"
	"encoding/json"
)

// FunctionSpec describes one function on a service interface. Ordinals are
// a function's stable identity: FunctionSpec values for a given
// Adapter must always appear in the same order.
type FunctionSpec struct {
	// Signature is the canonical signature string, e.g. "fun echo(kotlin.String): kotlin.String".
	// Stable identity for logging and compatibility.
	Signature   string
	IsSuspending bool
}

// CallHandler is what a generated outbound proxy calls into — either the
// Endpoint directly, or (in tests) a stub.
type CallHandler interface {
	// Call performs a normal (non-suspending) outbound call to the given
	// function ordinal with pre-encoded arguments, returning the decoded
	// result or an error (an *zerror.ApplicationError if the peer threw).
	Call(ctx context.Context, ordinal int, args []json.RawMessage) (json.RawMessage, error)

	// CallSuspending performs a suspending outbound call. It blocks until
	// the result arrives, the context is cancelled (which triggers
	// cancellation), or the endpoint closes.
	CallSuspending(ctx context.Context, ordinal int, args []json.RawMessage) (json.RawMessage, error)

	// Closed reports whether close() has already been called on this proxy.
	Closed() bool

	// MarkClosed is invoked by the generated proxy's close() method.
	MarkClosed()

	// ReferenceName reports the service name this handler dispatches
	// against. Every outbound proxy's CallHandler is backed by exactly
	// one service name, so implementations always return (name, true);
	// the bool exists for CallHandler stand-ins with no service name to
	// report.
	ReferenceName() (string, bool)
}

// ReferenceHandle is implemented by a generated outbound proxy (by
// delegating to its CallHandler) so that encoding it as a pass-by-
// reference argument or result can report the proxy's own bound name
// directly, instead of minting a fresh local binding for an instance the
// encoding side never created.
type ReferenceHandle interface {
	ReferenceName() (string, bool)
}

// Adapter is the per-interface descriptor the Endpoint depends on. T is
// the Go interface type the service implements.
type Adapter[T any] interface {
	// Functions returns the ordered function list; ordinals are indices
	// into this slice.
	Functions() []FunctionSpec

	// InvokeOnInstance dispatches ordinal on a concrete instance (inbound
	// dispatch). args are already decoded per-argument by the caller using
	// this adapter's own per-parameter serializers; InvokeOnInstance is
	// responsible for converting them into the instance method's Go
	// argument types and encoding the result.
	InvokeOnInstance(ctx context.Context, instance T, ordinal int, args []json.RawMessage) (json.RawMessage, error)

	// NewOutboundProxy builds a T backed by callHandler (outbound dispatch).
	NewOutboundProxy(callHandler CallHandler) T
}

// CloseSignature is the canonical signature adapter authors must use for a
// service's close method so the Endpoint and outbound proxies recognize it.
const CloseSignature = "fun close(): Unit"

// Closer is implemented by inbound service instances that need explicit
// teardown exactly once.
type Closer interface {
	Close() error
}
