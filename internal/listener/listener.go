// Package listener defines the pure-observer EventListener contract and a
// ring-buffer-backed implementation for tailing recent activity. Grounded
// on internal/viewer/logbuf.go + internal/util/ringbuf.go.
package listener

import (
	"sync"

	"github.com/google/uuid"
)

// Call identifies an in-flight call for CallStart/CallEnd pairing.
type Call struct {
	ServiceName  string
	FunctionName string
}

// CallResult summarizes how a call finished, passed to CallEnd.
type CallResult struct {
	Success bool
	Err     error
}

// EventListener is a pure observer: every hook is purely
// informational, with no control effect on the bridge or loader. Exceptions
// raised by an implementation are caught and swallowed by the caller (the
// Endpoint/Loader), not by the listener itself.
type EventListener interface {
	BindService(name string)
	TakeService(name string)
	ServiceLeaked(name string)

	CallStart(call Call) uuid.UUID
	CallEnd(call Call, result CallResult, token uuid.UUID)

	DownloadStart(applicationName, url string)
	DownloadEnd(applicationName, url string)
	DownloadFailed(applicationName, url string, err error)

	ManifestParseFailed(applicationName, url string, err error)

	ApplicationLoadStart(applicationName string)
	ApplicationLoadEnd(applicationName string)
	ApplicationLoadFailed(applicationName string, err error)
}

// NopListener implements EventListener with no-op hooks, for callers that
// don't care about observability.
type NopListener struct{}

func (NopListener) BindService(string)    {}
func (NopListener) TakeService(string)    {}
func (NopListener) ServiceLeaked(string)  {}
func (NopListener) CallStart(Call) uuid.UUID {
	return uuid.New()
}
func (NopListener) CallEnd(Call, CallResult, uuid.UUID)            {}
func (NopListener) DownloadStart(string, string)                  {}
func (NopListener) DownloadEnd(string, string)                     {}
func (NopListener) DownloadFailed(string, string, error)           {}
func (NopListener) ManifestParseFailed(string, string, error)      {}
func (NopListener) ApplicationLoadStart(string)                    {}
func (NopListener) ApplicationLoadEnd(string)                      {}
func (NopListener) ApplicationLoadFailed(string, error)            {}

// Safe wraps an EventListener so that a panicking hook is recovered and
// counted rather than crashing the bridge/loader.
type Safe struct {
	Inner EventListener

	mu       sync.Mutex
	errCount int
}

func NewSafe(inner EventListener) *Safe {
	return &Safe{Inner: inner}
}

// ErrorCount returns how many hook invocations have panicked so far.
func (s *Safe) ErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errCount
}

func (s *Safe) guard(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			s.errCount++
			s.mu.Unlock()
		}
	}()
	fn()
}

func (s *Safe) BindService(name string)   { s.guard(func() { s.Inner.BindService(name) }) }
func (s *Safe) TakeService(name string)   { s.guard(func() { s.Inner.TakeService(name) }) }
func (s *Safe) ServiceLeaked(name string) { s.guard(func() { s.Inner.ServiceLeaked(name) }) }

func (s *Safe) CallStart(call Call) (token uuid.UUID) {
	s.guard(func() { token = s.Inner.CallStart(call) })
	if token == uuid.Nil {
		token = uuid.New()
	}
	return token
}

func (s *Safe) CallEnd(call Call, result CallResult, token uuid.UUID) {
	s.guard(func() { s.Inner.CallEnd(call, result, token) })
}

func (s *Safe) DownloadStart(applicationName, url string) {
	s.guard(func() { s.Inner.DownloadStart(applicationName, url) })
}
func (s *Safe) DownloadEnd(applicationName, url string) {
	s.guard(func() { s.Inner.DownloadEnd(applicationName, url) })
}
func (s *Safe) DownloadFailed(applicationName, url string, err error) {
	s.guard(func() { s.Inner.DownloadFailed(applicationName, url, err) })
}
func (s *Safe) ManifestParseFailed(applicationName, url string, err error) {
	s.guard(func() { s.Inner.ManifestParseFailed(applicationName, url, err) })
}
func (s *Safe) ApplicationLoadStart(applicationName string) {
	s.guard(func() { s.Inner.ApplicationLoadStart(applicationName) })
}
func (s *Safe) ApplicationLoadEnd(applicationName string) {
	s.guard(func() { s.Inner.ApplicationLoadEnd(applicationName) })
}
func (s *Safe) ApplicationLoadFailed(applicationName string, err error) {
	s.guard(func() { s.Inner.ApplicationLoadFailed(applicationName, err) })
}
