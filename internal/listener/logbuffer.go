package listener

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one recorded EventListener notification, flattened for display.
// Adapted from internal/viewer/logbuf.go's LogEntry shape.
type Event struct {
	TS   time.Time `json:"ts"`
	Kind string    `json:"kind"`
	Msg  string    `json:"msg"`
}

// LogBuffer is an EventListener that keeps the last N events in a fixed-
// capacity circular buffer and fans them out to live subscribers, directly
// descended from internal/viewer/logbuf.go's LogBuffer (an io.Writer log
// sink there; an EventListener here, same ring-buffer-plus-subscriber-
// channels shape). The ring is kept inline and Event-specific rather than
// a reusable generic type, since Event is the only thing this package ever
// buffers.
type LogBuffer struct {
	ring sync.Mutex // guards buf/head/count below
	buf  []Event
	head int
	count int

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

// NewLogBuffer creates a listener retaining the last max events (default
// 500 if max <= 0).
func NewLogBuffer(max int) *LogBuffer {
	if max <= 0 {
		max = 500
	}
	return &LogBuffer{
		buf:  make([]Event, max),
		subs: make(map[chan Event]struct{}),
	}
}

func (b *LogBuffer) push(e Event) {
	b.ring.Lock()
	idx := (b.head + b.count) % len(b.buf)
	b.buf[idx] = e
	if b.count == len(b.buf) {
		b.head = (b.head + 1) % len(b.buf)
	} else {
		b.count++
	}
	b.ring.Unlock()
}

func (b *LogBuffer) record(kind, format string, args ...any) {
	e := Event{TS: time.Now(), Kind: kind, Msg: fmt.Sprintf(format, args...)}
	b.push(e)

	b.subMu.Lock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default: // drop on slow subscriber
		}
	}
	b.subMu.Unlock()
}

// Snapshot returns a copy of all retained events, oldest first.
func (b *LogBuffer) Snapshot() []Event {
	b.ring.Lock()
	defer b.ring.Unlock()
	out := make([]Event, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.buf[(b.head+i)%len(b.buf)]
	}
	return out
}

// Len reports how many events are currently retained, capped at the
// buffer's capacity.
func (b *LogBuffer) Len() int {
	b.ring.Lock()
	defer b.ring.Unlock()
	return b.count
}

// Subscribe returns a channel of live events and a cancel function.
func (b *LogBuffer) Subscribe() (ch chan Event, cancel func()) {
	ch = make(chan Event, 64)
	b.subMu.Lock()
	b.subs[ch] = struct{}{}
	b.subMu.Unlock()

	cancel = func() {
		b.subMu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.subMu.Unlock()
	}
	return ch, cancel
}

func (b *LogBuffer) BindService(name string)   { b.record("bind", "bind %s", name) }
func (b *LogBuffer) TakeService(name string)   { b.record("take", "take %s", name) }
func (b *LogBuffer) ServiceLeaked(name string) { b.record("leak", "service leaked: %s", name) }

func (b *LogBuffer) CallStart(call Call) uuid.UUID {
	token := uuid.New()
	b.record("call-start", "%s.%s [%s]", call.ServiceName, call.FunctionName, token)
	return token
}

func (b *LogBuffer) CallEnd(call Call, result CallResult, token uuid.UUID) {
	if result.Success {
		b.record("call-end", "%s.%s ok [%s]", call.ServiceName, call.FunctionName, token)
	} else {
		b.record("call-end", "%s.%s failed: %v [%s]", call.ServiceName, call.FunctionName, result.Err, token)
	}
}

func (b *LogBuffer) DownloadStart(applicationName, url string) {
	b.record("download-start", "%s: %s", applicationName, url)
}
func (b *LogBuffer) DownloadEnd(applicationName, url string) {
	b.record("download-end", "%s: %s", applicationName, url)
}
func (b *LogBuffer) DownloadFailed(applicationName, url string, err error) {
	b.record("download-failed", "%s: %s: %v", applicationName, url, err)
}
func (b *LogBuffer) ManifestParseFailed(applicationName, url string, err error) {
	b.record("manifest-parse-failed", "%s: %s: %v", applicationName, url, err)
}
func (b *LogBuffer) ApplicationLoadStart(applicationName string) {
	b.record("app-load-start", "%s", applicationName)
}
func (b *LogBuffer) ApplicationLoadEnd(applicationName string) {
	b.record("app-load-end", "%s", applicationName)
}
func (b *LogBuffer) ApplicationLoadFailed(applicationName string, err error) {
	b.record("app-load-failed", "%s: %v", applicationName, err)
}

var _ EventListener = (*LogBuffer)(nil)
