// Package endpoint implements the Endpoint: the per-side
// router owning the inbound service registry and the outbound continuation
// registry, and the only object through which a bridge operation runs.
// Grounded on internal/mq/manager.go's mutex-guarded registry-plus-pending
// pattern and internal/lua/engine.go's goroutine-per-suspending-call model.
package endpoint

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ziplinerpc/bridge/internal/adapter"
	"github.com/ziplinerpc/bridge/internal/channel"
	"github.com/ziplinerpc/bridge/internal/listener"
	"github.com/ziplinerpc/bridge/internal/scope"
	"github.com/ziplinerpc/bridge/internal/wire"
	"github.com/ziplinerpc/bridge/internal/zerror"
)

type boundService struct {
	name     string
	adapter  adapter.ErasedAdapter
	instance any
}

// suspendState tracks one outbound suspending call awaiting its eventual
// result via the peer invoking our suspend callback.
type suspendState struct {
	done   chan struct{}
	once   sync.Once
	result wire.Result

	endpointClosed bool
}

// cancelState tracks one inbound suspending call's cancel service: a
// fresh name bound to a cancellation closure.
type cancelState struct {
	cancel func()
	done   chan struct{}
}

// Endpoint is one side of the bridge. Create with New over one side of a
// Channel (for example a channel.PipeChannel pair), set the Endpoint as
// that side's handler, then Bind/Take services.
type Endpoint struct {
	self string // "host" or "js", used in generated names/logs only

	ch  channel.Channel
	lst *listener.Safe

	mu            sync.Mutex
	services      map[string]*boundService
	suspends      map[string]*suspendState
	cancels       map[string]*cancelState
	instanceNames map[any]string
	closed        bool

	counter uint64
}

// New creates an Endpoint identified by self (used only for generated-name
// prefixes and logging) talking over ch, reporting to lst. If lst is nil, a
// NopListener is used.
func New(self string, ch channel.Channel, lst listener.EventListener) *Endpoint {
	if lst == nil {
		lst = listener.NopListener{}
	}
	return &Endpoint{
		self:          self,
		ch:            ch,
		lst:           listener.NewSafe(lst),
		services:      make(map[string]*boundService),
		suspends:      make(map[string]*suspendState),
		cancels:       make(map[string]*cancelState),
		instanceNames: make(map[any]string),
	}
}

// GenerateName returns a fresh name of the form "<prefix>/<counter>"; the
// counter is monotonic per Endpoint.
func (e *Endpoint) GenerateName(prefix string) string {
	n := atomic.AddUint64(&e.counter, 1)
	return fmt.Sprintf("%s/%d", prefix, n)
}

// IsClosed reports whether Close has run.
func (e *Endpoint) IsClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// ListenerErrorCount returns how many EventListener hook panics have been
// swallowed so far.
func (e *Endpoint) ListenerErrorCount() int {
	return e.lst.ErrorCount()
}

// ScopeCloseFailed implements scope.ErrorReporter, letting a ZiplineScope
// report aggregated close failures through the Endpoint's own logging
// rather than requiring a dedicated EventListener hook.
func (e *Endpoint) ScopeCloseFailed(scopeName string, err *scope.MultiError) {
	if err == nil {
		return
	}
	fmt.Printf("endpoint(%s): scope %q close failed: %v\n", e.self, scopeName, err)
}

func (e *Endpoint) bind(name string, instance any, ad adapter.ErasedAdapter) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return zerror.New(zerror.KindLifecycle, "bind", zerror.ErrEndpointClosed)
	}
	prior, existed := e.services[name]
	e.services[name] = &boundService{name: name, adapter: ad, instance: instance}
	e.mu.Unlock()

	if existed {
		closeInstance(prior.instance)
	}
	e.lst.BindService(name)
	return nil
}

// bindForReference implements the locate-or-mint half of pass-by-
// reference encoding (§4.3): if instance is itself an already-taken
// outbound proxy, its own bound name is reused; otherwise instance is
// bound under its existing name if this Endpoint has seen it before, or a
// freshly minted name if not.
func (e *Endpoint) bindForReference(instance any, ad adapter.ErasedAdapter) (string, error) {
	if rh, ok := instance.(adapter.ReferenceHandle); ok {
		if name, ok := rh.ReferenceName(); ok {
			return name, nil
		}
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", zerror.New(zerror.KindLifecycle, "bindForReference", zerror.ErrEndpointClosed)
	}
	if name, ok := e.instanceNames[instance]; ok {
		e.mu.Unlock()
		return name, nil
	}
	e.mu.Unlock()

	name := e.GenerateName("ref")
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", zerror.New(zerror.KindLifecycle, "bindForReference", zerror.ErrEndpointClosed)
	}
	if existing, ok := e.instanceNames[instance]; ok {
		e.mu.Unlock()
		return existing, nil
	}
	e.services[name] = &boundService{name: name, adapter: ad, instance: instance}
	e.instanceNames[instance] = name
	e.mu.Unlock()

	e.lst.BindService(name)
	return name, nil
}

// localInstance returns the instance bound under name, if this Endpoint
// is the one holding the binding.
func (e *Endpoint) localInstance(name string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	svc, ok := e.services[name]
	if !ok {
		return nil, false
	}
	return svc.instance, true
}

// Remove removes an inbound service; invokes its Close() exactly once if
// present. Idempotent.
func (e *Endpoint) Remove(name string) {
	e.mu.Lock()
	svc, ok := e.services[name]
	if ok {
		delete(e.services, name)
	}
	e.mu.Unlock()
	if ok {
		closeInstance(svc.instance)
	}
}

func closeInstance(instance any) {
	if c, ok := instance.(adapter.Closer); ok {
		_ = c.Close()
	}
}

// Close marks the Endpoint closed, fails every pending outbound suspending
// continuation with EndpointClosed, cancels every in-flight inbound
// suspending call, and closes every bound inbound service exactly once.
// Idempotent.
func (e *Endpoint) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	suspends := e.suspends
	cancels := e.cancels
	services := e.services
	e.suspends = nil
	e.cancels = nil
	e.services = nil
	e.mu.Unlock()

	for _, st := range suspends {
		st.once.Do(func() {
			st.endpointClosed = true
			close(st.done)
		})
	}
	for _, cs := range cancels {
		cs.cancel()
	}
	for _, svc := range services {
		closeInstance(svc.instance)
	}
}

var (
	_ scope.ErrorReporter  = (*Endpoint)(nil)
	_ channel.InboundHandler = (*Endpoint)(nil)
)

func functionSignature(svc *boundService, ordinal int) (string, error) {
	funcs := svc.adapter.Functions()
	if ordinal < 0 || ordinal >= len(funcs) {
		return "", zerror.New(zerror.KindProtocol, "dispatch", zerror.ErrBadOrdinal)
	}
	return funcs[ordinal].Signature, nil
}
