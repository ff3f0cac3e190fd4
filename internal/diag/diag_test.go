package diag_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ziplinerpc/bridge/internal/diag"
	"github.com/ziplinerpc/bridge/internal/listener"
)

type stubNamer struct{ names []string }

func (s stubNamer) HandleServiceNames(ctx context.Context) ([]string, error) {
	return s.names, nil
}

func TestDiagServicesEndpoint(t *testing.T) {
	s := &diag.Server{Services: stubNamer{names: []string{"zipline/host", "greeter"}}}
	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/diag/services")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Names []string `json:"names"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Names) != 2 {
		t.Fatalf("got %v", body.Names)
	}
}

func TestDiagLoaderStatusRoundTrip(t *testing.T) {
	s := &diag.Server{}
	s.SetLoaderStatus(diag.LoaderStatus{ApplicationName: "app", ModuleCount: 3})

	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/diag/loader")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var got diag.LoaderStatus
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ApplicationName != "app" || got.ModuleCount != 3 {
		t.Fatalf("got %+v", got)
	}
}

func TestDiagEventsEndpointReflectsLogBuffer(t *testing.T) {
	lb := listener.NewLogBuffer(10)
	lb.BindService("greeter")
	s := &diag.Server{Events: lb}

	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/diag/events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var events []listener.Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 || events[0].Kind != "bind" {
		t.Fatalf("got %+v", events)
	}
}

func TestDiagHealthz(t *testing.T) {
	s := &diag.Server{}
	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", resp.StatusCode)
	}
}
