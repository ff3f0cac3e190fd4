package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// frame is what actually flows across one of the two named FIFOs. A frame is
// either a request travelling toward the peer's InboundHandler, or a
// response travelling back to the caller that issued the request.
type frame struct {
	ID       string
	IsReply  bool
	Method   string // "invoke" | "invokeSuspending" | "disconnect" | "serviceNames"
	Call     []byte
	Name     string // for disconnect; also suspendCallbackName for invokeSuspending
	Result   []byte
	Existed  bool
	Names    []string
	ErrMsg   string
}

// PipeChannel is an in-process Channel: two byte-array FIFOs (Go channels
// of frame) connect it to its peer, mirroring a two-named-FIFO transport
// without needing an actual JS engine underneath. Grounded on
// internal/entangle/manager.go's single read-goroutine / correlate-by-id
// runLoop shape.
type PipeChannel struct {
	outbox chan frame // this side writes here; the peer reads it as its inbox
	inbox  chan frame // this side reads here; the peer writes it as its outbox

	mu      sync.Mutex
	handler InboundHandler
	pending map[string]chan frame

	closeOnce sync.Once
	done      chan struct{}
}

// NewPipe creates a connected pair: a's outbox is b's inbox and vice versa.
// Call SetHandler on each side before traffic starts flowing (typically
// with the peer Endpoint on the other side).
func NewPipe(bufSize int) (a, b *PipeChannel) {
	ab := make(chan frame, bufSize)
	ba := make(chan frame, bufSize)

	a = &PipeChannel{outbox: ab, inbox: ba, pending: make(map[string]chan frame), done: make(chan struct{})}
	b = &PipeChannel{outbox: ba, inbox: ab, pending: make(map[string]chan frame), done: make(chan struct{})}

	go a.dispatchLoop()
	go b.dispatchLoop()
	return a, b
}

// SetHandler wires the InboundHandler (normally an Endpoint) that serves
// requests arriving from the peer.
func (p *PipeChannel) SetHandler(h InboundHandler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

func (p *PipeChannel) dispatchLoop() {
	for {
		select {
		case <-p.done:
			return
		case f, ok := <-p.inbox:
			if !ok {
				return
			}
			if f.IsReply {
				p.mu.Lock()
				ch, found := p.pending[f.ID]
				if found {
					delete(p.pending, f.ID)
				}
				p.mu.Unlock()
				if found {
					ch <- f
				}
				continue
			}
			go p.serve(f)
		}
	}
}

func (p *PipeChannel) serve(f frame) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()

	reply := frame{ID: f.ID, IsReply: true, Method: f.Method}
	if h == nil {
		reply.ErrMsg = "no inbound handler registered"
		p.send(reply)
		return
	}

	ctx := context.Background()
	switch f.Method {
	case "invoke":
		res, err := h.HandleInvoke(ctx, f.Call)
		if err != nil {
			reply.ErrMsg = err.Error()
		} else {
			reply.Result = res
		}
	case "invokeSuspending":
		res, err := h.HandleInvokeSuspending(ctx, f.Call, f.Name)
		if err != nil {
			reply.ErrMsg = err.Error()
		} else {
			reply.Result = res
		}
	case "disconnect":
		existed, err := h.HandleDisconnect(ctx, f.Name)
		if err != nil {
			reply.ErrMsg = err.Error()
		} else {
			reply.Existed = existed
		}
	case "serviceNames":
		names, err := h.HandleServiceNames(ctx)
		if err != nil {
			reply.ErrMsg = err.Error()
		} else {
			reply.Names = names
		}
	default:
		reply.ErrMsg = fmt.Sprintf("unknown method %q", f.Method)
	}
	p.send(reply)
}

func (p *PipeChannel) send(f frame) {
	select {
	case p.outbox <- f:
	case <-p.done:
	}
}

func (p *PipeChannel) roundTrip(req frame) (frame, error) {
	replyCh := make(chan frame, 1)
	p.mu.Lock()
	p.pending[req.ID] = replyCh
	p.mu.Unlock()

	p.send(req)

	select {
	case reply := <-replyCh:
		if reply.ErrMsg != "" {
			return frame{}, fmt.Errorf("%s", reply.ErrMsg)
		}
		return reply, nil
	case <-p.done:
		return frame{}, ErrChannelClosed
	}
}

func (p *PipeChannel) ServiceNames(ctx context.Context) ([]string, error) {
	reply, err := p.roundTrip(frame{ID: uuid.NewString(), Method: "serviceNames"})
	if err != nil {
		return nil, err
	}
	return reply.Names, nil
}

func (p *PipeChannel) Invoke(ctx context.Context, encodedCall []byte) ([]byte, error) {
	reply, err := p.roundTrip(frame{ID: uuid.NewString(), Method: "invoke", Call: encodedCall})
	if err != nil {
		return nil, err
	}
	return reply.Result, nil
}

func (p *PipeChannel) InvokeSuspending(ctx context.Context, encodedCall []byte, suspendCallbackName string) ([]byte, error) {
	reply, err := p.roundTrip(frame{ID: uuid.NewString(), Method: "invokeSuspending", Call: encodedCall, Name: suspendCallbackName})
	if err != nil {
		return nil, err
	}
	return reply.Result, nil
}

func (p *PipeChannel) Disconnect(ctx context.Context, name string) (bool, error) {
	reply, err := p.roundTrip(frame{ID: uuid.NewString(), Method: "disconnect", Name: name})
	if err != nil {
		return false, err
	}
	return reply.Existed, nil
}

// Close tears down this side of the pipe. Pending round trips on this side
// fail with ErrChannelClosed. An Endpoint does not watch for this: its
// suspended continuations stay pending after the channel closes, until the
// Endpoint itself is closed or the caller's context ends.
func (p *PipeChannel) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}

// ErrChannelClosed is returned by in-flight calls when the channel closes
// before a reply arrives.
var ErrChannelClosed = fmt.Errorf("channel: closed")
