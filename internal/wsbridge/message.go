// Package wsbridge tunnels the Channel ABI over a single
// websocket connection so a host process and a JS/engine process can live
// in separate OS processes (or separate machines) instead of sharing
// memory the way channel.PipeChannel does. Grounded on
// internal/mq/manager.go's id-correlated pending-ACK map and
// internal/entangle/manager.go's one-goroutine-per-connection ping/pong
// keepalive, both retargeted from libp2p streams onto a gorilla/websocket
// connection.
package wsbridge

import "encoding/json"

// method names, same vocabulary as channel.PipeChannel's frame.Method.
const (
	methodInvoke           = "invoke"
	methodInvokeSuspending = "invokeSuspending"
	methodDisconnect       = "disconnect"
	methodServiceNames     = "serviceNames"
)

// frame is the wire message exchanged over the websocket connection. Every
// request gets exactly one reply frame carrying the same ID.
type frame struct {
	ID      string          `json:"id"`
	IsReply bool            `json:"isReply,omitempty"`
	Method  string          `json:"method,omitempty"`
	Call    json.RawMessage `json:"call,omitempty"`
	Name    string          `json:"name,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Existed bool            `json:"existed,omitempty"`
	Names   []string        `json:"names,omitempty"`
	ErrMsg  string          `json:"errMsg,omitempty"`
}
