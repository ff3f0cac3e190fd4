// Package channel defines the raw two-sided transport contract
// that an Endpoint drives: invoke, invokeSuspending, disconnect,
// serviceNames. One side's inbound channel is the peer's outbound channel.
package channel

import "context"

// Channel is the four-method transport contract. Implementations must
// make every method total — a transport failure is reported as an error,
// never a panic or a hang.
type Channel interface {
	// ServiceNames returns a snapshot of names registered on the remote side.
	ServiceNames(ctx context.Context) ([]string, error)

	// Invoke is a synchronous round trip: it must not suspend the calling
	// goroutine indefinitely. The peer's inbound dispatcher never yields
	// while handling it.
	Invoke(ctx context.Context, encodedCall []byte) (encodedResult []byte, err error)

	// InvokeSuspending returns immediately, typically with an encoded
	// cancelCallback reference as its result; the eventual result arrives
	// later as a separate Invoke from the peer to suspendCallbackName.
	InvokeSuspending(ctx context.Context, encodedCall []byte, suspendCallbackName string) (immediateResult []byte, err error)

	// Disconnect removes the named service on the remote side and reports
	// whether a service by that name existed.
	Disconnect(ctx context.Context, name string) (existed bool, err error)
}

// InboundHandler is what a Channel implementation calls into on receipt of
// a call from the peer — normally an Endpoint's dispatch entry point.
type InboundHandler interface {
	HandleInvoke(ctx context.Context, encodedCall []byte) (encodedResult []byte, err error)
	HandleInvokeSuspending(ctx context.Context, encodedCall []byte, suspendCallbackName string) (immediateResult []byte, err error)
	HandleDisconnect(ctx context.Context, name string) (existed bool, err error)
	HandleServiceNames(ctx context.Context) ([]string, error)
}
