package endpoint

import (
	"context"
	"encoding/json"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/ziplinerpc/bridge/internal/adapter"
	"github.com/ziplinerpc/bridge/internal/scope"
	"github.com/ziplinerpc/bridge/internal/wire"
	"github.com/ziplinerpc/bridge/internal/zerror"
)

// cancelGrace bounds how long CallSuspending waits for the peer to honor a
// cancellation request (by invoking our suspend callback with a
// cancellation result) before giving up and resolving locally anyway.
const cancelGrace = 2 * time.Second

// outboundCallHandler is what a generated outbound proxy calls into: the
// adapter.CallHandler implementation realized for proxies Take built. One
// instance per proxy. Also a scope.Closeable so ZiplineScope can close it
// in bulk.
type outboundCallHandler struct {
	ep      *Endpoint
	service string
	funcs   []adapter.FunctionSpec
	sc      *scope.Scope

	closed atomic.Bool
}

func (h *outboundCallHandler) Closed() bool { return h.closed.Load() }
func (h *outboundCallHandler) MarkClosed()  { h.closed.Store(true) }

// ReferenceName reports the service name this proxy was taken under, so
// that passing it back across the wire as a reference argument/result
// reuses that name instead of minting a new local binding for it.
func (h *outboundCallHandler) ReferenceName() (string, bool) { return h.service, true }

// handleCloseSignature marks the handler closed and removes it from its
// owning ZiplineScope once the function matching adapter.CloseSignature
// has returned successfully — a proxy's generated close() method is
// otherwise indistinguishable from any other outbound call.
func (h *outboundCallHandler) handleCloseSignature(ordinal int) {
	if ordinal < 0 || ordinal >= len(h.funcs) || h.funcs[ordinal].Signature != adapter.CloseSignature {
		return
	}
	h.closed.Store(true)
	if h.sc != nil {
		h.sc.Remove(h)
	}
	runtime.SetFinalizer(h, nil)
}

// Close implements scope.Closeable. Marks the handler closed so later
// calls fail with ServiceClosed.
func (h *outboundCallHandler) Close() error {
	h.closed.Store(true)
	runtime.SetFinalizer(h, nil)
	return nil
}

// Call performs a normal outbound call.
func (h *outboundCallHandler) Call(ctx context.Context, ordinal int, args []json.RawMessage) (json.RawMessage, error) {
	if h.closed.Load() {
		return nil, zerror.New(zerror.KindLifecycle, "call", zerror.ErrServiceClosed)
	}
	if h.ep.IsClosed() {
		return nil, zerror.New(zerror.KindLifecycle, "call", zerror.ErrEndpointClosed)
	}

	encoded, err := wire.EncodeEnvelope(wire.Envelope{Service: h.service, Function: ordinal, Args: args})
	if err != nil {
		return nil, zerror.New(zerror.KindProtocol, "call", err)
	}

	replyBytes, err := h.ep.ch.Invoke(ctx, encoded)
	if err != nil {
		return nil, zerror.New(zerror.KindTransport, "invoke", err)
	}
	result, err := wire.DecodeResult(replyBytes)
	if err != nil {
		return nil, zerror.New(zerror.KindProtocol, "invoke", zerror.ErrInvalidFrame)
	}
	if result.Exception != nil {
		appErr, derr := zerror.DecodeThrowable(result.Exception)
		if derr != nil {
			return nil, zerror.New(zerror.KindProtocol, "invoke", zerror.ErrInvalidFrame)
		}
		return nil, appErr
	}
	h.handleCloseSignature(ordinal)
	return result.Value, nil
}

// CallSuspending performs a suspending outbound call. Resolves exactly once: via success,
// failure, or cancellation.
func (h *outboundCallHandler) CallSuspending(ctx context.Context, ordinal int, args []json.RawMessage) (json.RawMessage, error) {
	if h.closed.Load() {
		return nil, zerror.New(zerror.KindLifecycle, "callSuspending", zerror.ErrServiceClosed)
	}
	if h.ep.IsClosed() {
		return nil, zerror.New(zerror.KindLifecycle, "callSuspending", zerror.ErrEndpointClosed)
	}

	encoded, err := wire.EncodeEnvelope(wire.Envelope{Service: h.service, Function: ordinal, Args: args})
	if err != nil {
		return nil, zerror.New(zerror.KindProtocol, "callSuspending", err)
	}

	suspendName := h.ep.GenerateName("suspend")
	st := &suspendState{done: make(chan struct{})}
	h.ep.mu.Lock()
	if h.ep.closed {
		h.ep.mu.Unlock()
		return nil, zerror.New(zerror.KindLifecycle, "callSuspending", zerror.ErrEndpointClosed)
	}
	h.ep.suspends[suspendName] = st
	h.ep.mu.Unlock()

	initialBytes, err := h.ep.ch.InvokeSuspending(ctx, encoded, suspendName)
	if err != nil {
		h.ep.mu.Lock()
		delete(h.ep.suspends, suspendName)
		h.ep.mu.Unlock()
		return nil, zerror.New(zerror.KindTransport, "invokeSuspending", err)
	}

	initial, err := wire.DecodeResult(initialBytes)
	if err != nil {
		h.ep.mu.Lock()
		delete(h.ep.suspends, suspendName)
		h.ep.mu.Unlock()
		return nil, zerror.New(zerror.KindProtocol, "invokeSuspending", zerror.ErrInvalidFrame)
	}
	var cancelName string
	if len(initial.Value) > 0 {
		var cr wire.CancelReply
		if jerr := json.Unmarshal(initial.Value, &cr); jerr == nil {
			cancelName = cr.CancelCallback
		}
	}

	select {
	case <-st.done:
		value, err := finishSuspend(st)
		if err == nil {
			h.handleCloseSignature(ordinal)
		}
		return value, err
	case <-ctx.Done():
		h.ep.mu.Lock()
		_, stillPending := h.ep.suspends[suspendName]
		h.ep.mu.Unlock()

		if stillPending && cancelName != "" {
			cancelEnv, cerr := wire.EncodeEnvelope(wire.Envelope{Service: cancelName})
			if cerr == nil {
				_, _ = h.ep.ch.Invoke(context.Background(), cancelEnv)
			}
		}

		select {
		case <-st.done:
		case <-time.After(cancelGrace):
		}
		h.ep.mu.Lock()
		delete(h.ep.suspends, suspendName)
		h.ep.mu.Unlock()
		return nil, zerror.New(zerror.KindCancellation, "callSuspending", zerror.ErrCancelled)
	}
}

func finishSuspend(st *suspendState) (json.RawMessage, error) {
	if st.endpointClosed {
		return nil, zerror.New(zerror.KindLifecycle, "callSuspending", zerror.ErrEndpointClosed)
	}
	if st.result.Exception != nil {
		appErr, derr := zerror.DecodeThrowable(st.result.Exception)
		if derr != nil {
			return nil, zerror.New(zerror.KindProtocol, "callSuspending", zerror.ErrInvalidFrame)
		}
		return nil, appErr
	}
	return st.result.Value, nil
}
