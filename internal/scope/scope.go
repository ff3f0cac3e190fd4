// Package scope implements ZiplineScope: a lifetime group of
// outbound proxies belonging to one logical task. Grounded on
// internal/call/manager.go's session-lifetime-group pattern — a manager
// that owns a set of live sessions and tears them all down together.
package scope

import (
	"fmt"
	"strings"
	"sync"
)

// Closeable is a scope member's close method. The Endpoint registers each
// taken proxy's call handler here; its Close marks the handler closed
// locally and sends no close() call to the peer.
type Closeable interface {
	Close() error
}

// MultiError aggregates failures from closing multiple proxies: failures
// during close are collected into a single MultiError handed to the
// scope's ErrorReporter, not re-thrown.
type MultiError struct {
	Errs []error
}

func (m *MultiError) Error() string {
	parts := make([]string, len(m.Errs))
	for i, e := range m.Errs {
		parts[i] = e.Error()
	}
	return fmt.Sprintf("%d error(s) closing scope: %s", len(m.Errs), strings.Join(parts, "; "))
}

// ErrorReporter receives a ZiplineScope's aggregated close failures. An
// *endpoint.Endpoint implements this by printing the failure; no
// EventListener hook receives it.
type ErrorReporter interface {
	ScopeCloseFailed(scopeName string, err *MultiError)
}

// Scope is a ZiplineScope.
type Scope struct {
	mu       sync.Mutex
	name     string
	members  map[Closeable]struct{}
	closed   bool
	reporter ErrorReporter
}

// New creates an open scope. reporter may be nil (failures are then
// silently dropped, same as an EventListener that swallows them).
func New(name string, reporter ErrorReporter) *Scope {
	return &Scope{name: name, members: make(map[Closeable]struct{}), reporter: reporter}
}

// Add registers a proxy under this scope. Adding to an already-closed scope
// immediately closes the added proxy instead of registering it.
func (s *Scope) Add(c Closeable) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = c.Close()
		return
	}
	s.members[c] = struct{}{}
	s.mu.Unlock()
}

// Remove unregisters a proxy without closing it — used when a proxy closes
// itself outside of a scope-wide Close.
func (s *Scope) Remove(c Closeable) {
	s.mu.Lock()
	delete(s.members, c)
	s.mu.Unlock()
}

// IsClosed reports whether Close has already run.
func (s *Scope) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close closes every still-open member exactly once. Idempotent: closing an
// already-closed scope is a no-op. Failures are aggregated into
// a single MultiError and reported to the scope's ErrorReporter (if any),
// never re-thrown.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	members := make([]Closeable, 0, len(s.members))
	for c := range s.members {
		members = append(members, c)
	}
	s.members = nil
	s.mu.Unlock()

	var errs []error
	for _, c := range members {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 && s.reporter != nil {
		s.reporter.ScopeCloseFailed(s.name, &MultiError{Errs: errs})
	}
}
