package wsbridge_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ziplinerpc/bridge/internal/channel"
	"github.com/ziplinerpc/bridge/internal/endpoint"
	"github.com/ziplinerpc/bridge/internal/wsbridge"
)

var upgrader = websocket.Upgrader{}

// echoHandler is a minimal channel.InboundHandler that upper-cases the raw
// call bytes it receives, just enough to prove a full websocket round trip
// without pulling in the endpoint package's encoding.
type echoHandler struct{}

func (echoHandler) HandleInvoke(ctx context.Context, encodedCall []byte) ([]byte, error) {
	return []byte(strings.ToUpper(string(encodedCall))), nil
}
func (echoHandler) HandleInvokeSuspending(ctx context.Context, encodedCall []byte, suspendCallbackName string) ([]byte, error) {
	return nil, nil
}
func (echoHandler) HandleDisconnect(ctx context.Context, name string) (bool, error) { return true, nil }
func (echoHandler) HandleServiceNames(ctx context.Context) ([]string, error)        { return []string{"echo"}, nil }

func TestWSChannelInvokeRoundTrip(t *testing.T) {
	var serverCh *wsbridge.WSChannel
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serverCh = wsbridge.New(conn, nil)
		serverCh.SetHandler(echoHandler{})
		go serverCh.Run(context.Background())
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	clientCh := wsbridge.New(conn, nil)
	go clientCh.Run(context.Background())
	defer clientCh.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := clientCh.Invoke(ctx, []byte("hello"))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if string(res) != "HELLO" {
		t.Fatalf("got %q", res)
	}

	names, err := clientCh.ServiceNames(ctx)
	if err != nil {
		t.Fatalf("serviceNames: %v", err)
	}
	if len(names) != 1 || names[0] != "echo" {
		t.Fatalf("got %v", names)
	}
}

func TestWSChannelSatisfiesChannelInterface(t *testing.T) {
	var _ channel.Channel = (*wsbridge.WSChannel)(nil)
	var _ channel.InboundHandler = (*endpoint.Endpoint)(nil)
}
