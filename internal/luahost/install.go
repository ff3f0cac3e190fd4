package luahost

import (
	"context"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// Receive implements loader.Receiver: compiles a module's Lua source and
// runs its top-level chunk once, synchronously, on the persistent VM.
// Top-level code is expected to call zipline.bind/zipline.take to register
// itself — exactly the role a JS module's top-level side-effects play in a
// running host. Grounded on internal/lua/engine.go's compileScriptAs
// (parse.Parse + lua.Compile), collapsed here to compile-and-run-once
// since a module installs exactly once rather than being re-invoked per
// call.
func (e *Engine) Receive(ctx context.Context, id string, bytecode []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	L := e.L
	if L == nil {
		return fmt.Errorf("luahost: engine closed")
	}

	source := string(bytecode)
	chunk, err := parse.Parse(strings.NewReader(source), id)
	if err != nil {
		return fmt.Errorf("luahost: parse %s: %w", id, err)
	}
	proto, err := lua.Compile(chunk, id)
	if err != nil {
		return fmt.Errorf("luahost: compile %s: %w", id, err)
	}

	lfunc := L.NewFunctionFromProto(proto)
	L.Push(lfunc)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return fmt.Errorf("luahost: run %s: %w", id, err)
	}
	return nil
}
