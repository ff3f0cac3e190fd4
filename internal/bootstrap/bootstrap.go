package bootstrap

import (
	"context"
	"sync"
	"time"

	"github.com/ziplinerpc/bridge/internal/endpoint"
	"github.com/ziplinerpc/bridge/internal/zerror"
)

// Logf receives a mapped severity ("info", "warning", "severe") and the
// console text.
type Logf func(severity, text string)

// Host implements HostPlatform: host.setTimeout schedules JSPlatform.RunJob
// on a timer; host.consoleMessage routes to logf at the mapped severity.
// Grounded on internal/lua/engine.go's timeout-via-context/channel
// pattern, adapted here to a plain time.AfterFunc since there is no single
// dispatcher goroutine to hop back onto (see internal/endpoint's design
// note on dispatcher confinement).
type Host struct {
	logf Logf

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool

	js JSPlatform
}

// NewHost creates a Host bootstrap service. logf defaults to a no-op if nil.
func NewHost(logf Logf) *Host {
	if logf == nil {
		logf = func(string, string) {}
	}
	return &Host{logf: logf, timers: make(map[string]*time.Timer)}
}

// SetTimeout implements HostPlatform.
func (h *Host) SetTimeout(ctx context.Context, timeoutID string, delayMs int) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return zerror.New(zerror.KindLifecycle, "setTimeout", zerror.ErrEndpointClosed)
	}
	if existing, ok := h.timers[timeoutID]; ok {
		existing.Stop()
	}
	t := time.AfterFunc(time.Duration(delayMs)*time.Millisecond, func() { h.fire(timeoutID) })
	h.timers[timeoutID] = t
	h.mu.Unlock()
	return nil
}

func (h *Host) fire(timeoutID string) {
	h.mu.Lock()
	delete(h.timers, timeoutID)
	closed := h.closed
	js := h.js
	h.mu.Unlock()
	if closed || js == nil {
		return
	}
	_ = js.RunJob(context.Background(), timeoutID)
}

// ConsoleMessage implements HostPlatform: warn→warning,
// error→severe, else info.
func (h *Host) ConsoleMessage(ctx context.Context, level, text string) error {
	h.logf(mapSeverity(level), text)
	return nil
}

func mapSeverity(level string) string {
	switch level {
	case "warn":
		return "warning"
	case "error":
		return "severe"
	default:
		return "info"
	}
}

// Close cancels every pending timer. Idempotent.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	timers := h.timers
	h.timers = nil
	h.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	return nil
}

// JS implements JSPlatform: runJob delegates to a caller-supplied function
// (normally a luahost/QuickJS-equivalent engine's scheduled-job runner).
type JS struct {
	RunJobFunc func(ctx context.Context, timeoutID string) error
}

func (j *JS) RunJob(ctx context.Context, timeoutID string) error {
	if j.RunJobFunc == nil {
		return nil
	}
	return j.RunJobFunc(ctx, timeoutID)
}

// InstallHost binds the host's zipline/host platform service and takes the
// peer's zipline/js service.
func InstallHost(hostEP *endpoint.Endpoint, logf Logf) (*Host, error) {
	h := NewHost(logf)
	if err := endpoint.Bind[HostPlatform](hostEP, HostServiceName, h, hostPlatformAdapter{}); err != nil {
		return nil, err
	}
	js, err := endpoint.Take[JSPlatform](hostEP, JSServiceName, jsPlatformAdapter{}, nil)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.js = js
	h.mu.Unlock()
	return h, nil
}

// InstallJS binds the JS side's zipline/js platform service (backed by
// runJob) and takes the peer's zipline/host service.
func InstallJS(jsEP *endpoint.Endpoint, runJob func(ctx context.Context, timeoutID string) error) (HostPlatform, error) {
	j := &JS{RunJobFunc: runJob}
	if err := endpoint.Bind[JSPlatform](jsEP, JSServiceName, j, jsPlatformAdapter{}); err != nil {
		return nil, err
	}
	return endpoint.Take[HostPlatform](jsEP, HostServiceName, hostPlatformAdapter{}, nil)
}
