package endpoint_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ziplinerpc/bridge/internal/adapter"
	"github.com/ziplinerpc/bridge/internal/channel"
	"github.com/ziplinerpc/bridge/internal/endpoint"
	"github.com/ziplinerpc/bridge/internal/zerror"
)

// --- Echo: a minimal normal-function service used to exercise bind/take. ---

type Echo interface {
	Echo(s string) string
}

type echoImpl struct{ prefix string }

func (e echoImpl) Echo(s string) string { return e.prefix + s }

type echoAdapter struct{}

func (echoAdapter) Functions() []adapter.FunctionSpec {
	return []adapter.FunctionSpec{{Signature: "fun echo(String): String"}}
}

func (echoAdapter) InvokeOnInstance(ctx context.Context, instance Echo, ordinal int, args []json.RawMessage) (json.RawMessage, error) {
	var s string
	if err := json.Unmarshal(args[0], &s); err != nil {
		return nil, err
	}
	return json.Marshal(instance.Echo(s))
}

func (echoAdapter) NewOutboundProxy(ch adapter.CallHandler) Echo {
	return &echoProxy{ch: ch}
}

type echoProxy struct{ ch adapter.CallHandler }

func (p *echoProxy) Echo(s string) string {
	arg, _ := json.Marshal(s)
	res, err := p.ch.Call(context.Background(), 0, []json.RawMessage{arg})
	if err != nil {
		return ""
	}
	var out string
	_ = json.Unmarshal(res, &out)
	return out
}

func (p *echoProxy) ReferenceName() (string, bool) { return p.ch.ReferenceName() }

// --- Sleeper: a minimal suspending service used to exercise cancellation. ---

type Sleeper interface {
	Sleep(ctx context.Context, ms int) (string, error)
}

type sleeperImpl struct{}

func (sleeperImpl) Sleep(ctx context.Context, ms int) (string, error) {
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return "done", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type sleeperAdapter struct{}

func (sleeperAdapter) Functions() []adapter.FunctionSpec {
	return []adapter.FunctionSpec{{Signature: "fun sleep(Int): String", IsSuspending: true}}
}

func (sleeperAdapter) InvokeOnInstance(ctx context.Context, instance Sleeper, ordinal int, args []json.RawMessage) (json.RawMessage, error) {
	var ms int
	if err := json.Unmarshal(args[0], &ms); err != nil {
		return nil, err
	}
	out, err := instance.Sleep(ctx, ms)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (sleeperAdapter) NewOutboundProxy(ch adapter.CallHandler) Sleeper {
	return &sleeperProxy{ch: ch}
}

type sleeperProxy struct{ ch adapter.CallHandler }

func (p *sleeperProxy) Sleep(ctx context.Context, ms int) (string, error) {
	arg, _ := json.Marshal(ms)
	res, err := p.ch.CallSuspending(ctx, 0, []json.RawMessage{arg})
	if err != nil {
		return "", err
	}
	var out string
	_ = json.Unmarshal(res, &out)
	return out, nil
}

func (p *sleeperProxy) ReferenceName() (string, bool) { return p.ch.ReferenceName() }

func pair(t *testing.T) (a, b *channel.PipeChannel) {
	t.Helper()
	a, b = channel.NewPipe(4)
	return a, b
}

func TestEndpointEchoRoundTrip(t *testing.T) {
	a, b := pair(t)
	hostEP := endpoint.New("host", a, nil)
	jsEP := endpoint.New("js", b, nil)
	a.SetHandler(hostEP)
	b.SetHandler(jsEP)

	if err := endpoint.Bind[Echo](jsEP, "echo", echoImpl{prefix: "hi "}, echoAdapter{}); err != nil {
		t.Fatalf("bind: %v", err)
	}

	proxy, err := endpoint.Take[Echo](hostEP, "echo", echoAdapter{}, nil)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if got := proxy.Echo("world"); got != "hi world" {
		t.Fatalf("got %q", got)
	}
}

func TestEndpointSuspendingResolves(t *testing.T) {
	a, b := pair(t)
	hostEP := endpoint.New("host", a, nil)
	jsEP := endpoint.New("js", b, nil)
	a.SetHandler(hostEP)
	b.SetHandler(jsEP)

	if err := endpoint.Bind[Sleeper](jsEP, "sleeper", sleeperImpl{}, sleeperAdapter{}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	proxy, err := endpoint.Take[Sleeper](hostEP, "sleeper", sleeperAdapter{}, nil)
	if err != nil {
		t.Fatalf("take: %v", err)
	}

	out, err := proxy.Sleep(context.Background(), 10)
	if err != nil {
		t.Fatalf("sleep: %v", err)
	}
	if out != "done" {
		t.Fatalf("got %q", out)
	}
}

func TestEndpointSuspendingCancellation(t *testing.T) {
	a, b := pair(t)
	hostEP := endpoint.New("host", a, nil)
	jsEP := endpoint.New("js", b, nil)
	a.SetHandler(hostEP)
	b.SetHandler(jsEP)

	if err := endpoint.Bind[Sleeper](jsEP, "sleeper", sleeperImpl{}, sleeperAdapter{}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	proxy, err := endpoint.Take[Sleeper](hostEP, "sleeper", sleeperAdapter{}, nil)
	if err != nil {
		t.Fatalf("take: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = proxy.Sleep(ctx, 5000)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	var zerr *zerror.Error
	if !errors.As(err, &zerr) || zerr.Kind != zerror.KindCancellation {
		t.Fatalf("expected cancellation kind, got %v", err)
	}
}

func TestEndpointCloseFailsPendingAndFutureCalls(t *testing.T) {
	a, b := pair(t)
	hostEP := endpoint.New("host", a, nil)
	jsEP := endpoint.New("js", b, nil)
	a.SetHandler(hostEP)
	b.SetHandler(jsEP)

	if err := endpoint.Bind[Sleeper](jsEP, "sleeper", sleeperImpl{}, sleeperAdapter{}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	proxy, err := endpoint.Take[Sleeper](hostEP, "sleeper", sleeperAdapter{}, nil)
	if err != nil {
		t.Fatalf("take: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := proxy.Sleep(context.Background(), 300)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	hostEP.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error after endpoint close")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pending call to fail after close")
	}

	if _, err := endpoint.Take[Echo](hostEP, "echo", echoAdapter{}, nil); err == nil {
		t.Fatal("expected take on closed endpoint to fail")
	}
}
