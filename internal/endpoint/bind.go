package endpoint

import (
	"runtime"

	"github.com/ziplinerpc/bridge/internal/adapter"
	"github.com/ziplinerpc/bridge/internal/scope"
	"github.com/ziplinerpc/bridge/internal/zerror"
)

// Bind registers an inbound service under name. Replaces any
// prior registration of name; the prior instance's Close() runs exactly
// once if it implements adapter.Closer.
func Bind[T any](ep *Endpoint, name string, instance T, ad adapter.Adapter[T]) error {
	return ep.bind(name, instance, adapter.Erase[T](ad))
}

// Take returns an outbound proxy to the peer's service under name. Does
// not round-trip. If sc is non-nil, the proxy is registered under that
// ZiplineScope.
func Take[T any](ep *Endpoint, name string, ad adapter.Adapter[T], sc *scope.Scope) (T, error) {
	var zero T
	ep.mu.Lock()
	closed := ep.closed
	ep.mu.Unlock()
	if closed {
		return zero, zerror.New(zerror.KindLifecycle, "take", zerror.ErrEndpointClosed)
	}

	h := &outboundCallHandler{ep: ep, service: name, funcs: ad.Functions(), sc: sc}
	proxy := ad.NewOutboundProxy(h)
	if sc != nil {
		sc.Add(h)
	}
	runtime.SetFinalizer(h, finalizeOutboundCallHandler)
	ep.lst.TakeService(name)
	return proxy, nil
}

// finalizeOutboundCallHandler is the best-effort backstop for a caller that
// drops a taken proxy without ever calling its close() function: if the GC
// collects the handler while it's still marked open, that's a leak by
// definition, reported to the listener as ServiceLeaked. An explicit close()
// clears this finalizer, so a closed proxy is never reported.
// Like any finalizer, this has no deadline — it fires whenever (if ever)
// the GC gets around to collecting h, not the instant the last reference
// is dropped.
func finalizeOutboundCallHandler(h *outboundCallHandler) {
	if !h.closed.Load() {
		h.ep.lst.ServiceLeaked(h.service)
	}
}

// BindForReference locates instance's existing service name (reusing an
// outbound proxy's own name per adapter.ReferenceHandle, or a prior
// reference binding of the same instance) or mints a fresh one and binds
// instance under it. Used by wire.ReferenceSerializer to encode a
// pass-by-reference argument or result.
func BindForReference[T any](ep *Endpoint, instance T, ad adapter.Adapter[T]) (string, error) {
	return ep.bindForReference(instance, adapter.Erase[T](ad))
}

// LocalInstance returns the instance bound under name on this Endpoint,
// if any — used by wire.ReferenceSerializer to resolve a decoded
// reference back to the original Go value when this side is the one that
// bound it, rather than minting a redundant outbound proxy back over the
// wire to itself.
func LocalInstance[T any](ep *Endpoint, name string) (T, bool) {
	var zero T
	inst, ok := ep.localInstance(name)
	if !ok {
		return zero, false
	}
	typed, ok := inst.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
