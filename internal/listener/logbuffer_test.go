package listener

import (
	"errors"
	"testing"
	"time"
)

func TestLogBufferSnapshotOrderAndOverflow(t *testing.T) {
	lb := NewLogBuffer(3)
	lb.BindService("a")
	lb.BindService("b")
	lb.BindService("c")
	lb.BindService("d") // overflows capacity 3, evicts "a"

	snap := lb.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 retained events, got %d", len(snap))
	}
	if snap[0].Msg != "bind b" || snap[2].Msg != "bind d" {
		t.Fatalf("unexpected snapshot order: %+v", snap)
	}
}

func TestLogBufferSubscribeReceivesLiveEvents(t *testing.T) {
	lb := NewLogBuffer(10)
	ch, cancel := lb.Subscribe()
	defer cancel()

	lb.TakeService("svc")

	select {
	case e := <-ch:
		if e.Kind != "take" {
			t.Fatalf("got kind %q", e.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscribed event")
	}
}

func TestLogBufferCancelClosesChannel(t *testing.T) {
	lb := NewLogBuffer(10)
	ch, cancel := lb.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after cancel")
	}
}

func TestLogBufferLenCapsAtCapacity(t *testing.T) {
	lb := NewLogBuffer(2)
	if lb.Len() != 0 {
		t.Fatalf("expected empty buffer to report 0, got %d", lb.Len())
	}
	lb.BindService("a")
	if lb.Len() != 1 {
		t.Fatalf("expected 1, got %d", lb.Len())
	}
	lb.BindService("b")
	lb.BindService("c") // overflows capacity 2
	if lb.Len() != 2 {
		t.Fatalf("expected Len capped at capacity 2, got %d", lb.Len())
	}
}

func TestLogBufferCallStartEndRecordsFailure(t *testing.T) {
	lb := NewLogBuffer(10)
	call := Call{ServiceName: "Foo", FunctionName: "bar"}
	token := lb.CallStart(call)
	lb.CallEnd(call, CallResult{Success: false, Err: errors.New("boom")}, token)

	snap := lb.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 events, got %d", len(snap))
	}
	if snap[1].Kind != "call-end" {
		t.Fatalf("got kind %q", snap[1].Kind)
	}
}
