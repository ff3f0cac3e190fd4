package adapter_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ziplinerpc/bridge/internal/adapter"
)

type greeter interface {
	Greet(name string) string
}

type greeterImpl struct{}

func (greeterImpl) Greet(name string) string { return "hi " + name }

type greeterAdapter struct{}

func (greeterAdapter) Functions() []adapter.FunctionSpec {
	return []adapter.FunctionSpec{{Signature: "fun greet(String): String"}}
}

func (greeterAdapter) InvokeOnInstance(ctx context.Context, instance greeter, ordinal int, args []json.RawMessage) (json.RawMessage, error) {
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return nil, err
	}
	return json.Marshal(instance.Greet(name))
}

func (greeterAdapter) NewOutboundProxy(ch adapter.CallHandler) greeter {
	return &greeterProxy{ch: ch}
}

type greeterProxy struct{ ch adapter.CallHandler }

func (p *greeterProxy) Greet(name string) string {
	arg, _ := json.Marshal(name)
	res, err := p.ch.Call(context.Background(), 0, []json.RawMessage{arg})
	if err != nil {
		return ""
	}
	var out string
	_ = json.Unmarshal(res, &out)
	return out
}

func (p *greeterProxy) ReferenceName() (string, bool) { return p.ch.ReferenceName() }

// stubCallHandler is a bare adapter.CallHandler, standing in for what
// endpoint.Take builds, to exercise Erase/NewOutboundProxy without
// pulling in the endpoint package.
type stubCallHandler struct {
	name   string
	out    json.RawMessage
	closed bool
}

func (s *stubCallHandler) Call(ctx context.Context, ordinal int, args []json.RawMessage) (json.RawMessage, error) {
	return s.out, nil
}
func (s *stubCallHandler) CallSuspending(ctx context.Context, ordinal int, args []json.RawMessage) (json.RawMessage, error) {
	return s.out, nil
}
func (s *stubCallHandler) Closed() bool                  { return s.closed }
func (s *stubCallHandler) MarkClosed()                   { s.closed = true }
func (s *stubCallHandler) ReferenceName() (string, bool) { return s.name, true }

func TestEraseRoundTripsFunctionsAndInvoke(t *testing.T) {
	erased := adapter.Erase[greeter](greeterAdapter{})

	funcs := erased.Functions()
	if len(funcs) != 1 || funcs[0].Signature != "fun greet(String): String" {
		t.Fatalf("got %+v", funcs)
	}

	arg, _ := json.Marshal("world")
	out, err := erased.InvokeOnInstance(context.Background(), greeterImpl{}, 0, []json.RawMessage{arg})
	if err != nil {
		t.Fatalf("InvokeOnInstance: %v", err)
	}
	var got string
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != "hi world" {
		t.Fatalf("got %q, want %q", got, "hi world")
	}
}

func TestEraseInvokeOnInstanceWrongTypeErrors(t *testing.T) {
	erased := adapter.Erase[greeter](greeterAdapter{})
	if _, err := erased.InvokeOnInstance(context.Background(), 42, 0, nil); err == nil {
		t.Fatal("expected an error when the stored instance doesn't satisfy the adapter's type")
	}
}

func TestEraseNewOutboundProxyDelegatesReferenceName(t *testing.T) {
	erased := adapter.Erase[greeter](greeterAdapter{})
	stub := &stubCallHandler{name: "greet/1"}
	proxy := erased.NewOutboundProxy(stub)

	rh, ok := proxy.(adapter.ReferenceHandle)
	if !ok {
		t.Fatal("expected generated proxy to implement adapter.ReferenceHandle")
	}
	name, ok := rh.ReferenceName()
	if !ok || name != "greet/1" {
		t.Fatalf("got (%q, %v), want (%q, true)", name, ok, "greet/1")
	}
}

func TestCallHandlerMarkClosed(t *testing.T) {
	var ch adapter.CallHandler = &stubCallHandler{name: "svc/1"}
	if ch.Closed() {
		t.Fatal("expected not closed initially")
	}
	ch.MarkClosed()
	if !ch.Closed() {
		t.Fatal("expected closed after MarkClosed")
	}
}

func TestCloseSignatureIsStable(t *testing.T) {
	if adapter.CloseSignature != "fun close(): Unit" {
		t.Fatalf("got %q", adapter.CloseSignature)
	}
}
