package endpoint_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/ziplinerpc/bridge/internal/endpoint"
	"github.com/ziplinerpc/bridge/internal/listener"
)

// leakListener captures ServiceLeaked reports; every other hook is a no-op
// since this test only cares about the leak signal.
type leakListener struct {
	listener.NopListener
	leaked chan string
}

func (l *leakListener) ServiceLeaked(name string) {
	select {
	case l.leaked <- name:
	default:
	}
}

func TestDroppedReferenceWithoutCloseIsEventuallyReportedLeaked(t *testing.T) {
	a, b := pair(t)
	lst := &leakListener{leaked: make(chan string, 1)}
	hostEP := endpoint.New("host", a, lst)
	jsEP := endpoint.New("js", b, nil)
	a.SetHandler(hostEP)
	b.SetHandler(jsEP)

	if err := endpoint.Bind[Echo](jsEP, "echo", echoImpl{prefix: "orig:"}, echoAdapter{}); err != nil {
		t.Fatalf("bind: %v", err)
	}

	func() {
		// Scoped so the only reference to the proxy goes out of scope at
		// the end of this function, making it collectible.
		proxy, err := endpoint.Take[Echo](hostEP, "echo", echoAdapter{}, nil)
		if err != nil {
			t.Fatalf("take: %v", err)
		}
		if got := proxy.Echo("x"); got != "orig:x" {
			t.Fatalf("got %q", got)
		}
		// proxy is never closed — deliberately leaked.
	}()

	deadline := time.After(5 * time.Second)
	for {
		runtime.GC()
		select {
		case name := <-lst.leaked:
			if name != "echo" {
				t.Fatalf("got leaked name %q, want %q", name, "echo")
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for ServiceLeaked after dropping an unclosed reference")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
