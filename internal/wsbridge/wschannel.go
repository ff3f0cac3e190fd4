package wsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ziplinerpc/bridge/internal/channel"
)

const (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
)

// WSChannel is a channel.Channel tunneled over one gorilla/websocket
// connection. Exactly one read goroutine drains the socket,
// correlating replies by ID (internal/mq/manager.go's pending-ACK-map
// pattern) and dispatching requests to the registered InboundHandler;
// writes are serialized through writeMu since *websocket.Conn forbids
// concurrent writers.
type WSChannel struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	handler channel.InboundHandler
	pending map[string]chan frame
	closed  bool

	// onDisconnect fires once, from whichever of the read loop, the
	// keepalive pinger or Close first ends the connection
	// (internal/entangle/manager.go's onDisconnect callback shape).
	onDisconnect func(err error)

	done chan struct{}
}

// New wraps an already-established websocket connection. Call SetHandler
// before traffic is expected, then Run to start the read/keepalive loops.
func New(conn *websocket.Conn, onDisconnect func(err error)) *WSChannel {
	c := &WSChannel{
		conn:         conn,
		pending:      make(map[string]chan frame),
		onDisconnect: onDisconnect,
		done:         make(chan struct{}),
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	return c
}

// SetHandler wires the InboundHandler (normally an endpoint.Endpoint) that
// serves requests arriving from the peer.
func (c *WSChannel) SetHandler(h channel.InboundHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Run starts the read loop and keepalive pinger. Blocks until the
// connection closes or ctx is done; always call in its own goroutine.
func (c *WSChannel) Run(ctx context.Context) {
	stop := make(chan struct{})
	go c.pingLoop(ctx, stop)
	c.readLoop()
	close(stop)
}

func (c *WSChannel) pingLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.fail(err)
				return
			}
		}
	}
}

func (c *WSChannel) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		if f.IsReply {
			c.mu.Lock()
			ch, found := c.pending[f.ID]
			if found {
				delete(c.pending, f.ID)
			}
			c.mu.Unlock()
			if found {
				ch <- f
			}
			continue
		}
		go c.serve(f)
	}
}

func (c *WSChannel) serve(f frame) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()

	reply := frame{ID: f.ID, IsReply: true}
	if h == nil {
		reply.ErrMsg = "no inbound handler registered"
		c.write(reply)
		return
	}

	ctx := context.Background()
	switch f.Method {
	case methodInvoke:
		res, err := h.HandleInvoke(ctx, f.Call)
		if err != nil {
			reply.ErrMsg = err.Error()
		} else {
			reply.Result = res
		}
	case methodInvokeSuspending:
		res, err := h.HandleInvokeSuspending(ctx, f.Call, f.Name)
		if err != nil {
			reply.ErrMsg = err.Error()
		} else {
			reply.Result = res
		}
	case methodDisconnect:
		existed, err := h.HandleDisconnect(ctx, f.Name)
		if err != nil {
			reply.ErrMsg = err.Error()
		} else {
			reply.Existed = existed
		}
	case methodServiceNames:
		names, err := h.HandleServiceNames(ctx)
		if err != nil {
			reply.ErrMsg = err.Error()
		} else {
			reply.Names = names
		}
	default:
		reply.ErrMsg = fmt.Sprintf("unknown method %q", f.Method)
	}
	c.write(reply)
}

func (c *WSChannel) write(f frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *WSChannel) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]chan frame)
	c.mu.Unlock()

	close(c.done)
	for _, ch := range pending {
		close(ch)
	}
	if c.onDisconnect != nil {
		c.onDisconnect(err)
	}
}

func (c *WSChannel) roundTrip(ctx context.Context, req frame) (frame, error) {
	replyCh := make(chan frame, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return frame{}, ErrChannelClosed
	}
	c.pending[req.ID] = replyCh
	c.mu.Unlock()

	if err := c.write(req); err != nil {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return frame{}, err
	}

	select {
	case reply, ok := <-replyCh:
		if !ok {
			return frame{}, ErrChannelClosed
		}
		if reply.ErrMsg != "" {
			return frame{}, fmt.Errorf("%s", reply.ErrMsg)
		}
		return reply, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return frame{}, ctx.Err()
	case <-c.done:
		return frame{}, ErrChannelClosed
	}
}

func (c *WSChannel) ServiceNames(ctx context.Context) ([]string, error) {
	reply, err := c.roundTrip(ctx, frame{ID: uuid.NewString(), Method: methodServiceNames})
	if err != nil {
		return nil, err
	}
	return reply.Names, nil
}

func (c *WSChannel) Invoke(ctx context.Context, encodedCall []byte) ([]byte, error) {
	reply, err := c.roundTrip(ctx, frame{ID: uuid.NewString(), Method: methodInvoke, Call: encodedCall})
	if err != nil {
		return nil, err
	}
	return reply.Result, nil
}

func (c *WSChannel) InvokeSuspending(ctx context.Context, encodedCall []byte, suspendCallbackName string) ([]byte, error) {
	reply, err := c.roundTrip(ctx, frame{ID: uuid.NewString(), Method: methodInvokeSuspending, Call: encodedCall, Name: suspendCallbackName})
	if err != nil {
		return nil, err
	}
	return reply.Result, nil
}

func (c *WSChannel) Disconnect(ctx context.Context, name string) (bool, error) {
	reply, err := c.roundTrip(ctx, frame{ID: uuid.NewString(), Method: methodDisconnect, Name: name})
	if err != nil {
		return false, err
	}
	return reply.Existed, nil
}

// Close tears down the socket. Pending round trips fail with
// ErrChannelClosed.
func (c *WSChannel) Close() error {
	c.fail(nil)
	return c.conn.Close()
}

// ErrChannelClosed is returned by in-flight calls when the socket closes
// before a reply arrives.
var ErrChannelClosed = fmt.Errorf("wsbridge: channel closed")
