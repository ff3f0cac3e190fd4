package bootstrap

import (
	"context"
	"encoding/json"

	"github.com/ziplinerpc/bridge/internal/adapter"
	"github.com/ziplinerpc/bridge/internal/zerror"
)

// hostPlatformAdapter is the adapter.Adapter[HostPlatform] for the two
// platform functions exposed on the host's zipline/host service.
type hostPlatformAdapter struct{}

func (hostPlatformAdapter) Functions() []adapter.FunctionSpec {
	return []adapter.FunctionSpec{
		{Signature: "fun setTimeout(String, Int): Unit"},
		{Signature: "fun consoleMessage(String, String): Unit"},
	}
}

func (hostPlatformAdapter) InvokeOnInstance(ctx context.Context, instance HostPlatform, ordinal int, args []json.RawMessage) (json.RawMessage, error) {
	switch ordinal {
	case 0:
		var timeoutID string
		var delayMs int
		if err := json.Unmarshal(args[0], &timeoutID); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(args[1], &delayMs); err != nil {
			return nil, err
		}
		if err := instance.SetTimeout(ctx, timeoutID, delayMs); err != nil {
			return nil, err
		}
		return json.Marshal(nil)
	case 1:
		var level, text string
		if err := json.Unmarshal(args[0], &level); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(args[1], &text); err != nil {
			return nil, err
		}
		if err := instance.ConsoleMessage(ctx, level, text); err != nil {
			return nil, err
		}
		return json.Marshal(nil)
	default:
		return nil, zerror.ErrBadOrdinal
	}
}

func (hostPlatformAdapter) NewOutboundProxy(ch adapter.CallHandler) HostPlatform {
	return &hostPlatformProxy{ch: ch}
}

type hostPlatformProxy struct{ ch adapter.CallHandler }

func (p *hostPlatformProxy) SetTimeout(ctx context.Context, timeoutID string, delayMs int) error {
	idArg, _ := json.Marshal(timeoutID)
	delayArg, _ := json.Marshal(delayMs)
	_, err := p.ch.Call(ctx, 0, []json.RawMessage{idArg, delayArg})
	return err
}

func (p *hostPlatformProxy) ConsoleMessage(ctx context.Context, level, text string) error {
	levelArg, _ := json.Marshal(level)
	textArg, _ := json.Marshal(text)
	_, err := p.ch.Call(ctx, 1, []json.RawMessage{levelArg, textArg})
	return err
}

func (p *hostPlatformProxy) ReferenceName() (string, bool) { return p.ch.ReferenceName() }

// jsPlatformAdapter is the adapter.Adapter[JSPlatform] for the host's
// callback into the JS side to resume a scheduled timer.
type jsPlatformAdapter struct{}

func (jsPlatformAdapter) Functions() []adapter.FunctionSpec {
	return []adapter.FunctionSpec{{Signature: "fun runJob(String): Unit"}}
}

func (jsPlatformAdapter) InvokeOnInstance(ctx context.Context, instance JSPlatform, ordinal int, args []json.RawMessage) (json.RawMessage, error) {
	if ordinal != 0 {
		return nil, zerror.ErrBadOrdinal
	}
	var timeoutID string
	if err := json.Unmarshal(args[0], &timeoutID); err != nil {
		return nil, err
	}
	if err := instance.RunJob(ctx, timeoutID); err != nil {
		return nil, err
	}
	return json.Marshal(nil)
}

func (jsPlatformAdapter) NewOutboundProxy(ch adapter.CallHandler) JSPlatform {
	return &jsPlatformProxy{ch: ch}
}

type jsPlatformProxy struct{ ch adapter.CallHandler }

func (p *jsPlatformProxy) RunJob(ctx context.Context, timeoutID string) error {
	arg, _ := json.Marshal(timeoutID)
	_, err := p.ch.Call(ctx, 0, []json.RawMessage{arg})
	return err
}

func (p *jsPlatformProxy) ReferenceName() (string, bool) { return p.ch.ReferenceName() }

