package listener

import (
	"sync"

	"github.com/google/uuid"
)

// Fanout forwards every EventListener hook to a fixed set of listeners in
// order, so more than one sink — a LogBuffer kept for Snapshot/tailing and
// a devtools push hub, say — can observe the same bridge/loader activity
// without either one owning the call site.
type Fanout struct {
	listeners []EventListener

	mu     sync.Mutex
	tokens map[uuid.UUID][]uuid.UUID
}

// NewFanout builds a Fanout forwarding to every listener in ls, in order.
func NewFanout(ls ...EventListener) *Fanout {
	return &Fanout{listeners: ls, tokens: make(map[uuid.UUID][]uuid.UUID)}
}

func (f *Fanout) BindService(name string) {
	for _, l := range f.listeners {
		l.BindService(name)
	}
}

func (f *Fanout) TakeService(name string) {
	for _, l := range f.listeners {
		l.TakeService(name)
	}
}

func (f *Fanout) ServiceLeaked(name string) {
	for _, l := range f.listeners {
		l.ServiceLeaked(name)
	}
}

// CallStart starts the call on every listener and returns the first one's
// token as canonical — the value the caller will thread back through
// CallEnd. The rest are stashed under it so CallEnd can replay each
// listener its own token rather than a foreign one.
func (f *Fanout) CallStart(call Call) uuid.UUID {
	if len(f.listeners) == 0 {
		return uuid.New()
	}
	tokens := make([]uuid.UUID, len(f.listeners))
	for i, l := range f.listeners {
		tokens[i] = l.CallStart(call)
	}
	f.mu.Lock()
	f.tokens[tokens[0]] = tokens
	f.mu.Unlock()
	return tokens[0]
}

func (f *Fanout) CallEnd(call Call, result CallResult, token uuid.UUID) {
	f.mu.Lock()
	tokens, ok := f.tokens[token]
	if ok {
		delete(f.tokens, token)
	}
	f.mu.Unlock()

	for i, l := range f.listeners {
		t := token
		if ok {
			t = tokens[i]
		}
		l.CallEnd(call, result, t)
	}
}

func (f *Fanout) DownloadStart(applicationName, url string) {
	for _, l := range f.listeners {
		l.DownloadStart(applicationName, url)
	}
}

func (f *Fanout) DownloadEnd(applicationName, url string) {
	for _, l := range f.listeners {
		l.DownloadEnd(applicationName, url)
	}
}

func (f *Fanout) DownloadFailed(applicationName, url string, err error) {
	for _, l := range f.listeners {
		l.DownloadFailed(applicationName, url, err)
	}
}

func (f *Fanout) ManifestParseFailed(applicationName, url string, err error) {
	for _, l := range f.listeners {
		l.ManifestParseFailed(applicationName, url, err)
	}
}

func (f *Fanout) ApplicationLoadStart(applicationName string) {
	for _, l := range f.listeners {
		l.ApplicationLoadStart(applicationName)
	}
}

func (f *Fanout) ApplicationLoadEnd(applicationName string) {
	for _, l := range f.listeners {
		l.ApplicationLoadEnd(applicationName)
	}
}

func (f *Fanout) ApplicationLoadFailed(applicationName string, err error) {
	for _, l := range f.listeners {
		l.ApplicationLoadFailed(applicationName, err)
	}
}

var _ EventListener = (*Fanout)(nil)
