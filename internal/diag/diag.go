// Package diag is a minimal net/http status surface for operators: loaded
// services, recent listener events, and loader state — plain JSON, no GUI.
// Grounded on internal/viewer/viewer.go's http.NewServeMux + route
// registration convention; annotations follow
// internal/viewer/routes/openapi_annotations.go's swaggo style so
// `swag init` can generate docs for this surface the same way.
package diag

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ziplinerpc/bridge/internal/listener"
)

// ServiceNamer is satisfied by an endpoint.Endpoint's HandleServiceNames or
// any stand-in used in tests.
type ServiceNamer interface {
	HandleServiceNames(ctx context.Context) ([]string, error)
}

// LoaderStatus is a point-in-time snapshot of the Module Loader's last
// outcome, set by whatever drives Load/RunContinuous.
type LoaderStatus struct {
	ApplicationName string    `json:"applicationName"`
	LastSuccess     time.Time `json:"lastSuccess,omitempty"`
	LastError       string    `json:"lastError,omitempty"`
	ModuleCount     int       `json:"moduleCount"`
}

// Server serves the diagnostics HTTP surface.
type Server struct {
	Services ServiceNamer
	Events   *listener.LogBuffer

	mu     sync.RWMutex
	loader LoaderStatus
}

// SetLoaderStatus records the latest Loader outcome for GET /api/diag/loader.
func (s *Server) SetLoaderStatus(st LoaderStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loader = st
}

// Mux builds the diagnostics route table.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/diag/services", s.handleServices)
	mux.HandleFunc("/api/diag/events", s.handleEvents)
	mux.HandleFunc("/api/diag/loader", s.handleLoader)
	return mux
}

// handleHealthz reports liveness only.
//
//	@Summary	Liveness check
//	@Tags		diag
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Router		/healthz [get]
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleServices reports the Endpoint's currently bound service names
// (services taken from the peer are not listed).
//
//	@Summary	List registered service names
//	@Tags		diag
//	@Produce	json
//	@Success	200	{object}	diagServicesResponse
//	@Router		/api/diag/services [get]
func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	if s.Services == nil {
		writeJSON(w, http.StatusOK, diagServicesResponse{Names: nil})
		return
	}
	names, err := s.Services.HandleServiceNames(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, diagServicesResponse{Names: names})
}

// handleEvents reports the most recent listener events.
//
//	@Summary	Tail recent bridge/loader events
//	@Tags		diag
//	@Produce	json
//	@Success	200	{array}	listener.Event
//	@Router		/api/diag/events [get]
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		writeJSON(w, http.StatusOK, []listener.Event{})
		return
	}
	writeJSON(w, http.StatusOK, s.Events.Snapshot())
}

// handleLoader reports the last known Module Loader outcome.
//
//	@Summary	Report last loader outcome
//	@Tags		diag
//	@Produce	json
//	@Success	200	{object}	LoaderStatus
//	@Router		/api/diag/loader [get]
func (s *Server) handleLoader(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	writeJSON(w, http.StatusOK, s.loader)
}

type diagServicesResponse struct {
	Names []string `json:"names"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
