package luahost

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"

	"github.com/ziplinerpc/bridge/internal/adapter"
)

// LuaService is both directions of a Lua-facing service. Exactly one of the two roles is populated:
//
//   - inbound (bound from a script): engine + dispatch holds the Lua
//     function scripts registered via zipline.bind.
//   - outbound (taken from a peer): ch is the CallHandler a Lua-side
//     zipline.take() proxy calls through.
type LuaService struct {
	engine   *Engine
	dispatch *lua.LFunction
	closeFn  *lua.LFunction
	closed   atomic.Bool

	ch adapter.CallHandler
}

// Close satisfies adapter.Closer for bound instances with a registered
// close function. Safe to call from outside the engine (locks e.mu) or
// from code that already holds e.mu (see closeLocked) — the atomic closed
// flag lets the second caller fast-path out without attempting the lock.
func (s *LuaService) Close() error {
	if s.closed.Load() || s.closeFn == nil || s.engine == nil {
		return nil
	}
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	return s.closeLocked()
}

// ReferenceName reports the service name this outbound LuaService was
// taken under, so zipline.take() can hand a service back across the wire
// as a pass-by-reference argument without minting a duplicate binding.
// Returns false for an inbound (bound) instance, which has no CallHandler.
func (s *LuaService) ReferenceName() (string, bool) {
	if s.ch == nil {
		return "", false
	}
	return s.ch.ReferenceName()
}

// closeLocked runs the registered close function assuming the caller
// already holds engine.mu on the current goroutine (e.g. zipline.remove
// dispatched from inside a PCall). Taking the lock again here would
// deadlock since sync.Mutex is not reentrant.
func (s *LuaService) closeLocked() error {
	if s.closed.Swap(true) || s.closeFn == nil || s.engine == nil || s.engine.L == nil {
		return nil
	}
	L := s.engine.L
	L.Push(s.closeFn)
	return L.PCall(0, 0, nil)
}

// dynamicAdapter implements adapter.Adapter[*LuaService] for one bind/take
// call's function count — adapters are plain values here, not singletons,
// matching design note (a)'s "user-written, not generated at runtime"
// spirit while still being constructed dynamically per service name since
// Lua services aren't known at compile time.
type dynamicAdapter struct {
	specs []adapter.FunctionSpec
}

func newDynamicAdapter(n int) dynamicAdapter {
	specs := make([]adapter.FunctionSpec, n)
	for i := range specs {
		specs[i] = adapter.FunctionSpec{Signature: fmt.Sprintf("lua/%d", i)}
	}
	return dynamicAdapter{specs: specs}
}

func (d dynamicAdapter) Functions() []adapter.FunctionSpec { return d.specs }

// InvokeOnInstance converts the JSON argument list to Lua values, calls the
// service's dispatch function with (ordinal, ...args), and converts the
// single Lua return value back to JSON. A Lua error() raised during the
// call becomes an application error on the wire.
func (d dynamicAdapter) InvokeOnInstance(ctx context.Context, instance *LuaService, ordinal int, args []json.RawMessage) (json.RawMessage, error) {
	return instance.engine.invokeBound(ctx, instance, ordinal, args)
}

// NewOutboundProxy builds a LuaService backed by ch; zipline.take() wraps
// this in a Lua table whose methods call through proxyCallFn.
func (d dynamicAdapter) NewOutboundProxy(ch adapter.CallHandler) *LuaService {
	return &LuaService{ch: ch}
}
