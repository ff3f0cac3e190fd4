package endpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ziplinerpc/bridge/internal/listener"
	"github.com/ziplinerpc/bridge/internal/wire"
	"github.com/ziplinerpc/bridge/internal/zerror"
)

// HandleInvoke is the inbound entry point for a normal (non-suspending)
// call from the peer. It also routes two
// special cases that are not adapter-bound services: a peer delivering the
// eventual result of one of our outbound suspending calls to its
// suspendCallback name, and a peer requesting cancellation of one of its
// own in-flight suspending calls via its cancelCallback name.
func (e *Endpoint) HandleInvoke(ctx context.Context, encodedCall []byte) ([]byte, error) {
	env, err := wire.DecodeEnvelope(encodedCall)
	if err != nil {
		return nil, zerror.New(zerror.KindProtocol, "handleInvoke", zerror.ErrInvalidFrame)
	}

	if reply, handled, err := e.deliverSuspendResult(env); handled {
		return reply, err
	}
	if reply, handled := e.triggerCancel(env); handled {
		return reply, nil
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, zerror.New(zerror.KindLifecycle, "handleInvoke", zerror.ErrEndpointClosed)
	}
	svc, ok := e.services[env.Service]
	e.mu.Unlock()
	if !ok {
		return encodeException(fmt.Errorf("%w: %s", zerror.ErrUnknownService, env.Service))
	}

	sig, serr := functionSignature(svc, env.Function)
	if serr != nil {
		return encodeException(serr)
	}

	call := listener.Call{ServiceName: env.Service, FunctionName: sig}
	token := e.lst.CallStart(call)

	value, callErr := svc.adapter.InvokeOnInstance(ctx, svc.instance, env.Function, env.Args)
	e.lst.CallEnd(call, listener.CallResult{Success: callErr == nil, Err: callErr}, token)
	if callErr != nil {
		return encodeException(callErr)
	}
	return wire.EncodeResult(wire.ValueResult(value))
}

// HandleInvokeSuspending is the inbound entry point for a suspending call.
// It registers a cancel service, replies immediately with the
// cancel service's name, and runs the handler in the background; on
// completion it delivers the result to the peer's suspendCallbackName.
func (e *Endpoint) HandleInvokeSuspending(ctx context.Context, encodedCall []byte, suspendCallbackName string) ([]byte, error) {
	env, err := wire.DecodeEnvelope(encodedCall)
	if err != nil {
		return nil, zerror.New(zerror.KindProtocol, "handleInvokeSuspending", zerror.ErrInvalidFrame)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, zerror.New(zerror.KindLifecycle, "handleInvokeSuspending", zerror.ErrEndpointClosed)
	}
	svc, ok := e.services[env.Service]
	e.mu.Unlock()
	if !ok {
		return encodeException(fmt.Errorf("%w: %s", zerror.ErrUnknownService, env.Service))
	}
	sig, serr := functionSignature(svc, env.Function)
	if serr != nil {
		return encodeException(serr)
	}

	cancelName := e.GenerateName("cancel")
	callCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	cs := &cancelState{cancel: cancel, done: done}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		return nil, zerror.New(zerror.KindLifecycle, "handleInvokeSuspending", zerror.ErrEndpointClosed)
	}
	e.cancels[cancelName] = cs
	e.mu.Unlock()

	call := listener.Call{ServiceName: env.Service, FunctionName: sig}
	token := e.lst.CallStart(call)

	go e.runSuspendingHandler(callCtx, done, svc, env, cancelName, suspendCallbackName, call, token)

	reply, err := wire.CancelResult(cancelName)
	if err != nil {
		return nil, err
	}
	return wire.EncodeResult(reply)
}

func (e *Endpoint) runSuspendingHandler(
	ctx context.Context,
	done chan struct{},
	svc *boundService,
	env wire.Envelope,
	cancelName, suspendCallbackName string,
	call listener.Call,
	token uuid.UUID,
) {
	defer close(done)

	value, callErr := svc.adapter.InvokeOnInstance(ctx, svc.instance, env.Function, env.Args)

	e.mu.Lock()
	delete(e.cancels, cancelName)
	closedNow := e.closed
	e.mu.Unlock()

	var result wire.Result
	switch {
	case closedNow:
		return // Close already failed any observer; nothing to deliver.
	case callErr != nil && ctx.Err() != nil:
		result = cancellationResult()
	case callErr != nil:
		th := zerror.ToThrowable(callErr)
		encoded, eerr := zerror.EncodeThrowable(th)
		if eerr != nil {
			return
		}
		result = wire.ExceptionResult(encoded)
	default:
		result = wire.ValueResult(value)
	}

	e.lst.CallEnd(call, listener.CallResult{Success: callErr == nil, Err: callErr}, token)

	encodedResult, err := wire.EncodeResult(result)
	if err != nil {
		return
	}
	suspendEnv, err := wire.EncodeEnvelope(wire.Envelope{Service: suspendCallbackName, Args: []json.RawMessage{encodedResult}})
	if err != nil {
		return
	}
	_, _ = e.ch.Invoke(context.Background(), suspendEnv)
}

func cancellationResult() wire.Result {
	encoded, _ := zerror.EncodeThrowable(zerror.ToThrowable(zerror.ErrCancelled))
	return wire.ExceptionResult(encoded)
}

// deliverSuspendResult checks whether env.Service names one of our own
// outbound suspending calls' suspend callbacks, and if so resolves it.
func (e *Endpoint) deliverSuspendResult(env wire.Envelope) ([]byte, bool, error) {
	e.mu.Lock()
	st, ok := e.suspends[env.Service]
	if ok {
		delete(e.suspends, env.Service)
	}
	e.mu.Unlock()
	if !ok {
		return nil, false, nil
	}

	if len(env.Args) != 1 {
		return nil, true, zerror.New(zerror.KindProtocol, "suspendCallback", zerror.ErrInvalidFrame)
	}
	result, err := wire.DecodeResult(env.Args[0])
	if err != nil {
		return nil, true, zerror.New(zerror.KindProtocol, "suspendCallback", zerror.ErrInvalidFrame)
	}
	st.once.Do(func() {
		st.result = result
		close(st.done)
	})
	ack, _ := wire.EncodeResult(wire.ValueResult(nil))
	return ack, true, nil
}

// triggerCancel checks whether env.Service names one of our cancel
// services, and if so requests cancellation at most once.
func (e *Endpoint) triggerCancel(env wire.Envelope) ([]byte, bool) {
	e.mu.Lock()
	cs, ok := e.cancels[env.Service]
	e.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-cs.done:
	default:
		cs.cancel()
	}
	ack, _ := wire.EncodeResult(wire.ValueResult(nil))
	return ack, true
}

// HandleDisconnect removes the named inbound service.
func (e *Endpoint) HandleDisconnect(ctx context.Context, name string) (bool, error) {
	e.mu.Lock()
	svc, ok := e.services[name]
	if ok {
		delete(e.services, name)
	}
	e.mu.Unlock()
	if ok {
		closeInstance(svc.instance)
	}
	return ok, nil
}

// HandleServiceNames snapshots the names currently bound on this side.
func (e *Endpoint) HandleServiceNames(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.services))
	for n := range e.services {
		names = append(names, n)
	}
	return names, nil
}

func encodeException(err error) ([]byte, error) {
	encoded, eerr := zerror.EncodeThrowable(zerror.ToThrowable(err))
	if eerr != nil {
		return nil, eerr
	}
	return wire.EncodeResult(wire.ExceptionResult(encoded))
}
