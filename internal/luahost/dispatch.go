package luahost

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"

	"github.com/ziplinerpc/bridge/internal/endpoint"
)

// Bridge attaches the Endpoint that zipline.bind/zipline.take operate on.
// Call once after NewEngine, before installing any module.
func (e *Engine) Bridge(ep *endpoint.Endpoint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ep = ep
}

// invokeBound runs the registered dispatch function for name at ordinal
// with JSON args, serialized behind the engine mutex.
func (e *Engine) invokeBound(ctx context.Context, svc *LuaService, ordinal int, args []json.RawMessage) (json.RawMessage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	L := e.L
	if L == nil {
		return nil, fmt.Errorf("luahost: engine closed")
	}

	prevCancelled := e.cancelled
	done := make(chan struct{})
	var cancelledFlag atomic.Bool
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancelledFlag.Store(true)
			case <-done:
			}
		}()
	}
	e.cancelled = cancelledFlag.Load
	defer func() {
		close(done)
		e.cancelled = prevCancelled
	}()

	luaArgs, err := argsToLua(L, args)
	if err != nil {
		return nil, err
	}

	L.Push(svc.dispatch)
	L.Push(lua.LNumber(ordinal))
	for _, a := range luaArgs {
		L.Push(a)
	}
	if err := L.PCall(1+len(luaArgs), 1, nil); err != nil {
		return nil, fmt.Errorf("%s", err.Error())
	}
	ret := L.Get(-1)
	L.Pop(1)
	return resultToJSON(ret)
}

// bindFn implements zipline.bind(name, numFunctions, dispatchFn [, closeFn]).
// dispatchFn is called as dispatchFn(ordinal, ...args) and its single
// return value becomes the call's result.
//
// bindFn, removeFn, and takeFn all read/write Engine state directly,
// without taking e.mu: they only ever run as an lua.LGFunction invoked
// synchronously from inside a PCall that Receive or invokeBound already
// made under e.mu. Re-locking here from the same goroutine that holds the
// lock would deadlock, since sync.Mutex is not reentrant.
func bindFn(e *Engine) lua.LGFunction {
	return func(L *lua.LState) int {
		name := L.CheckString(1)
		n := L.CheckInt(2)
		dispatch := L.CheckFunction(3)
		var closeFn *lua.LFunction
		if L.GetTop() >= 4 {
			if f, ok := L.Get(4).(*lua.LFunction); ok {
				closeFn = f
			}
		}

		ep := e.ep
		if ep == nil {
			L.RaiseError("zipline.bind: no endpoint bridged")
			return 0
		}

		svc := &LuaService{engine: e, dispatch: dispatch, closeFn: closeFn}
		if err := endpoint.Bind[*LuaService](ep, name, svc, newDynamicAdapter(n)); err != nil {
			L.RaiseError("zipline.bind: %s", err.Error())
			return 0
		}

		e.bound[name] = &boundEntry{numFunctions: n, dispatch: dispatch, closeFn: closeFn, svc: svc}
		return 0
	}
}

// removeFn implements zipline.remove(name). It runs the service's close
// function (if any) itself via closeLocked, under the lock this function is
// already executing inside, then removes it from the endpoint — whose own
// Close() call on the way out is a no-op, since closeLocked already marked
// the service closed.
func removeFn(e *Engine) lua.LGFunction {
	return func(L *lua.LState) int {
		name := L.CheckString(1)
		ep := e.ep
		entry, ok := e.bound[name]
		delete(e.bound, name)
		if ok && entry.svc != nil {
			_ = entry.svc.closeLocked()
		}
		if ep != nil {
			ep.Remove(name)
		}
		return 0
	}
}

// takeFn implements zipline.take(name, numFunctions), returning a Lua table
// with call(ordinal, ...) and callSuspending(ordinal, ...) methods that
// round-trip through the bridged Endpoint's outbound proxy.
func takeFn(e *Engine) lua.LGFunction {
	return func(L *lua.LState) int {
		name := L.CheckString(1)
		n := L.CheckInt(2)

		ep := e.ep
		if ep == nil {
			L.RaiseError("zipline.take: no endpoint bridged")
			return 0
		}

		svc, err := endpoint.Take[*LuaService](ep, name, newDynamicAdapter(n), nil)
		if err != nil {
			L.RaiseError("zipline.take: %s", err.Error())
			return 0
		}

		proxy := L.NewTable()
		proxy.RawSetString("call", L.NewFunction(proxyCallFn(svc, false)))
		proxy.RawSetString("callSuspending", L.NewFunction(proxyCallFn(svc, true)))
		L.Push(proxy)
		return 1
	}
}

func proxyCallFn(svc *LuaService, suspending bool) lua.LGFunction {
	return func(L *lua.LState) int {
		ordinal := L.CheckInt(1)
		top := L.GetTop()
		args := make([]json.RawMessage, 0, top-1)
		for i := 2; i <= top; i++ {
			b, err := json.Marshal(luaToGo(L.Get(i)))
			if err != nil {
				L.RaiseError("encode argument %d: %s", i-1, err.Error())
				return 0
			}
			args = append(args, b)
		}

		ctx := context.Background()
		var (
			result json.RawMessage
			err    error
		)
		if suspending {
			result, err = svc.ch.CallSuspending(ctx, ordinal, args)
		} else {
			result, err = svc.ch.Call(ctx, ordinal, args)
		}
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}

		var v interface{}
		if len(result) > 0 {
			if err := json.Unmarshal(result, &v); err != nil {
				L.RaiseError("decode result: %s", err.Error())
				return 0
			}
		}
		L.Push(goToLua(L, v))
		return 1
	}
}
