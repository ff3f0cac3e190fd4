// Package bootstrap implements the Host Bootstrap: the two
// platform services — host.setTimeout and host.consoleMessage — that get
// bound on the Endpoint at startup, and the symmetric "zipline/js" /
// "zipline/host" well-known service names both sides fetch each other
// under. Grounded on internal/lua/engine.go's Dispatch/timeout-via-context
// pattern and internal/app/services.go's small log-and-wire bootstrap
// helpers.
package bootstrap

import "context"

// HostServiceName and JSServiceName are the well-known names each side
// binds its platform service under and fetches the peer's under.
const (
	HostServiceName = "zipline/host"
	JSServiceName   = "zipline/js"
)

// HostPlatform is what the JS side calls to ask the host to do something
// on its behalf.
type HostPlatform interface {
	// SetTimeout schedules JSPlatform.RunJob(timeoutID) to fire after
	// delayMs on the dispatcher.
	SetTimeout(ctx context.Context, timeoutID string, delayMs int) error
	// ConsoleMessage routes a console write to the host log at the
	// severity mapped from level ("warn"→warning, "error"→severe, else
	// info).
	ConsoleMessage(ctx context.Context, level, text string) error
}

// JSPlatform is what the host calls to resume a scheduled timer on the JS
// side.
type JSPlatform interface {
	RunJob(ctx context.Context, timeoutID string) error
}
