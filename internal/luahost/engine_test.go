package luahost_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ziplinerpc/bridge/internal/adapter"
	"github.com/ziplinerpc/bridge/internal/channel"
	"github.com/ziplinerpc/bridge/internal/endpoint"
	"github.com/ziplinerpc/bridge/internal/luahost"
)

func pair(t *testing.T) (a, b *channel.PipeChannel) {
	t.Helper()
	a, b = channel.NewPipe(8)
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

// --- a single-function "greet"/"sink" shape reused by both directions of
// these tests: one string argument in, one string result out. ---

type stringFunc interface {
	Call(s string) string
}

type stringFuncAdapter struct {
	impl func(string) string
}

func (stringFuncAdapter) Functions() []adapter.FunctionSpec {
	return []adapter.FunctionSpec{{Signature: "lua/0"}}
}

func (a stringFuncAdapter) InvokeOnInstance(ctx context.Context, instance stringFunc, ordinal int, args []json.RawMessage) (json.RawMessage, error) {
	var s string
	if err := json.Unmarshal(args[0], &s); err != nil {
		return nil, err
	}
	return json.Marshal(instance.Call(s))
}

func (stringFuncAdapter) NewOutboundProxy(ch adapter.CallHandler) stringFunc {
	return &stringFuncProxy{ch: ch}
}

type stringFuncImpl struct{ fn func(string) string }

func (i stringFuncImpl) Call(s string) string { return i.fn(s) }

type stringFuncProxy struct{ ch adapter.CallHandler }

func (p *stringFuncProxy) Call(s string) string {
	arg, _ := json.Marshal(s)
	res, err := p.ch.Call(context.Background(), 0, []json.RawMessage{arg})
	if err != nil {
		return ""
	}
	var out string
	json.Unmarshal(res, &out)
	return out
}

func (p *stringFuncProxy) ReferenceName() (string, bool) { return p.ch.ReferenceName() }

func TestEngineBoundServiceRespondsToInboundCall(t *testing.T) {
	hostCh, jsCh := pair(t)
	hostEP := endpoint.New("host", hostCh, nil)
	jsEP := endpoint.New("js", jsCh, nil)
	hostCh.SetHandler(hostEP)
	jsCh.SetHandler(jsEP)

	e := luahost.NewEngine()
	t.Cleanup(func() { e.Close() })
	e.Bridge(jsEP)

	script := `
zipline.bind("greeter", 1, function(ordinal, name)
  return "hello " .. name
end)
`
	if err := e.Receive(context.Background(), "greeter.module", []byte(script)); err != nil {
		t.Fatalf("install: %v", err)
	}

	proxy, err := endpoint.Take[stringFunc](hostEP, "greeter", stringFuncAdapter{}, nil)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if got := proxy.Call("world"); got != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestEngineTakeCallsHostService(t *testing.T) {
	hostCh, jsCh := pair(t)
	hostEP := endpoint.New("host", hostCh, nil)
	jsEP := endpoint.New("js", jsCh, nil)
	hostCh.SetHandler(hostEP)
	jsCh.SetHandler(jsEP)

	captured := make(chan string, 1)
	if err := endpoint.Bind[stringFunc](hostEP, "echo", stringFuncImpl{fn: func(s string) string { return "go says " + s }}, stringFuncAdapter{}); err != nil {
		t.Fatalf("bind echo: %v", err)
	}
	if err := endpoint.Bind[stringFunc](hostEP, "sink", stringFuncImpl{fn: func(s string) string {
		captured <- s
		return s
	}}, stringFuncAdapter{}); err != nil {
		t.Fatalf("bind sink: %v", err)
	}

	e := luahost.NewEngine()
	t.Cleanup(func() { e.Close() })
	e.Bridge(jsEP)

	script := `
local echo = zipline.take("echo", 1)
local sink = zipline.take("sink", 1)
sink.call(0, echo.call(0, "lua"))
`
	if err := e.Receive(context.Background(), "echo.module", []byte(script)); err != nil {
		t.Fatalf("install: %v", err)
	}

	select {
	case got := <-captured:
		if got != "go says lua" {
			t.Fatalf("got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sink call")
	}
}

func TestEngineRemoveUnbindsService(t *testing.T) {
	hostCh, jsCh := pair(t)
	hostEP := endpoint.New("host", hostCh, nil)
	jsEP := endpoint.New("js", jsCh, nil)
	hostCh.SetHandler(hostEP)
	jsCh.SetHandler(jsEP)

	e := luahost.NewEngine()
	t.Cleanup(func() { e.Close() })
	e.Bridge(jsEP)

	if err := e.Receive(context.Background(), "m", []byte(`
zipline.bind("svc", 1, function(ordinal, s) return s end)
zipline.remove("svc")
`)); err != nil {
		t.Fatalf("install: %v", err)
	}

	if _, err := endpoint.Take[stringFunc](hostEP, "svc", stringFuncAdapter{}, nil); err != nil {
		t.Fatalf("take itself should still succeed (lazy proxy): %v", err)
	}

	names, err := jsEP.HandleServiceNames(context.Background())
	if err != nil {
		t.Fatalf("service names: %v", err)
	}
	for _, n := range names {
		if n == "svc" {
			t.Fatalf("svc still bound after zipline.remove: %v", names)
		}
	}
}
