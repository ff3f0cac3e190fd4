// Package luahost is a reference embedded-engine implementation of the
// Channel ABI, built by adapting
// internal/lua (Engine, sandbox.go, memlimit.go, ratelimit.go) so
// the bridge has a real collaborator to talk to in tests and demo
// binaries, without taking on JS execution semantics — gopher-lua stands
// in for "some embedded script engine", not an attempt at QuickJS/ECMAScript.
//
// Unlike internal/lua's per-dispatch throwaway VM (one goroutine-confined
// sandbox per chat command), the modules a Loader installs here need to
// stay live for the engine's lifetime, so one *lua.LState is created in
// NewEngine and kept for the life of the Engine — closer to how a real JS
// engine instance behaves. Because gopher-lua's LState is not safe for
// concurrent use, and an Endpoint may dispatch an inbound call from its own
// goroutine while a suspending handler goroutine is still running, all Lua
// entry points are serialized behind one mutex — the same "confined to one
// thread, never preempted mid-call" property the real JS side is meant to
// have, just enforced with a lock instead of true single-threadedness.
package luahost

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/ziplinerpc/bridge/internal/endpoint"
)

// boundEntry is one zipline.bind()-registered inbound service.
type boundEntry struct {
	numFunctions int
	dispatch     *lua.LFunction
	closeFn      *lua.LFunction
	svc          *LuaService
}

// Engine is a persistent Lua VM exposing the zipline.* control table to
// installed scripts and standing in for the Channel ABI's JS side.
type Engine struct {
	mu sync.Mutex
	L  *lua.LState

	bound map[string]*boundEntry

	// cancelled is polled by zipline.cancelled() during a suspending
	// dispatch; swapped in/out per call under mu since dispatch is
	// serialized.
	cancelled func() bool

	// ep is the Endpoint zipline.bind/zipline.take operate on, set by
	// Bridge. nil until then.
	ep *endpoint.Endpoint
}

// NewEngine creates a sandboxed, persistent Lua VM with the zipline.*
// table installed. Grounded on internal/lua/sandbox.go's
// SkipOpenLibs-plus-selective-library-open pattern.
func NewEngine() *Engine {
	e := &Engine{
		bound:     make(map[string]*boundEntry),
		cancelled: func() bool { return false },
	}
	e.L = newSandboxedState(e)
	return e
}

func newSandboxedState(e *Engine) *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		CallStackSize:       256,
		RegistrySize:        2048,
		RegistryGrowStep:    32,
		MinimizeStackMemory: true,
	})

	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	for _, name := range []string{"dofile", "loadfile", "require"} {
		L.SetGlobal(name, lua.LNil)
	}

	injectZiplineTable(L, e)
	return L
}

// Close releases the underlying VM. Idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.L == nil {
		return nil
	}
	for _, entry := range e.bound {
		e.callClose(entry)
	}
	e.L.Close()
	e.L = nil
	return nil
}

func (e *Engine) callClose(entry *boundEntry) {
	if entry.closeFn == nil {
		return
	}
	L := e.L
	L.Push(entry.closeFn)
	_ = L.PCall(0, 0, nil)
}

func injectZiplineTable(L *lua.LState, e *Engine) {
	z := L.NewTable()
	z.RawSetString("bind", L.NewFunction(bindFn(e)))
	z.RawSetString("remove", L.NewFunction(removeFn(e)))
	z.RawSetString("take", L.NewFunction(takeFn(e)))
	z.RawSetString("cancelled", L.NewFunction(cancelledFn(e)))
	z.RawSetString("log", L.NewFunction(logFn))
	L.SetGlobal("zipline", z)
}

func logFn(L *lua.LState) int {
	msg := L.CheckString(1)
	fmt.Println("luahost:", msg)
	return 0
}

func cancelledFn(e *Engine) lua.LGFunction {
	return func(L *lua.LState) int {
		L.Push(lua.LBool(e.cancelled()))
		return 1
	}
}
