package wsbridge

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ziplinerpc/bridge/internal/listener"
)

// devEvent is one broadcast record sent to every connected DevTools
// websocket subscriber.
type devEvent struct {
	Kind      string          `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

// EventHub implements listener.EventListener by fanning every hook out to
// a set of live DevTools websocket connections — the same
// register-a-channel-per-subscriber-then-broadcast shape as
// internal/mq/manager.go's SSE listener map, retargeted from SSE onto
// websocket push frames.
type EventHub struct {
	mu        sync.RWMutex
	listeners map[chan devEvent]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{listeners: make(map[chan devEvent]struct{})}
}

// Subscribe registers a new listener channel; call the returned func to
// unregister it. Matches internal/mq/manager.go's listener lifecycle.
func (h *EventHub) Subscribe() (<-chan devEvent, func()) {
	ch := make(chan devEvent, 64)
	h.mu.Lock()
	h.listeners[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.listeners, ch)
		h.mu.Unlock()
		close(ch)
	}
}

// ServeWebsocket upgrades conn (already hijacked by the caller's HTTP
// handler) into a DevTools push stream: every broadcast event is written
// as a JSON text frame until the connection closes.
func (h *EventHub) ServeWebsocket(conn *websocket.Conn) {
	events, unsubscribe := h.Subscribe()
	defer unsubscribe()
	defer conn.Close()

	for ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

func (h *EventHub) broadcast(kind string, detail any) {
	b, _ := json.Marshal(detail)
	ev := devEvent{Kind: kind, Timestamp: timeNow(), Detail: b}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.listeners {
		select {
		case ch <- ev:
		default: // slow subscriber; drop rather than block the bridge
		}
	}
}

// timeNow is a seam so tests can construct deterministic devEvents without
// depending on wall-clock time in assertions.
var timeNow = time.Now

func (h *EventHub) BindService(name string) { h.broadcast("bindService", map[string]string{"name": name}) }
func (h *EventHub) TakeService(name string) { h.broadcast("takeService", map[string]string{"name": name}) }
func (h *EventHub) ServiceLeaked(name string) {
	h.broadcast("serviceLeaked", map[string]string{"name": name})
}

func (h *EventHub) CallStart(call listener.Call) uuid.UUID {
	token := uuid.New()
	h.broadcast("callStart", map[string]string{
		"service":  call.ServiceName,
		"function": call.FunctionName,
		"token":    token.String(),
	})
	return token
}

func (h *EventHub) CallEnd(call listener.Call, result listener.CallResult, token uuid.UUID) {
	detail := map[string]any{
		"service":  call.ServiceName,
		"function": call.FunctionName,
		"token":    token.String(),
		"success":  result.Success,
	}
	if result.Err != nil {
		detail["error"] = result.Err.Error()
	}
	h.broadcast("callEnd", detail)
}

func (h *EventHub) DownloadStart(applicationName, url string) {
	h.broadcast("downloadStart", map[string]string{"application": applicationName, "url": url})
}

func (h *EventHub) DownloadEnd(applicationName, url string) {
	h.broadcast("downloadEnd", map[string]string{"application": applicationName, "url": url})
}

func (h *EventHub) DownloadFailed(applicationName, url string, err error) {
	h.broadcast("downloadFailed", map[string]string{"application": applicationName, "url": url, "error": err.Error()})
}

func (h *EventHub) ManifestParseFailed(applicationName, url string, err error) {
	h.broadcast("manifestParseFailed", map[string]string{"application": applicationName, "url": url, "error": err.Error()})
}

func (h *EventHub) ApplicationLoadStart(applicationName string) {
	h.broadcast("applicationLoadStart", map[string]string{"application": applicationName})
}

func (h *EventHub) ApplicationLoadEnd(applicationName string) {
	h.broadcast("applicationLoadEnd", map[string]string{"application": applicationName})
}

func (h *EventHub) ApplicationLoadFailed(applicationName string, err error) {
	h.broadcast("applicationLoadFailed", map[string]string{"application": applicationName, "error": err.Error()})
}

var _ listener.EventListener = (*EventHub)(nil)
