package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cuemby/shepherd/pkg/events"
	"github.com/cuemby/shepherd/pkg/health"
	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/metrics"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Backend is what the API needs from a running agent
type Backend interface {
	Report() types.NodeReport
	IsLeader() bool
	Diagnostics(ctx context.Context) health.Report
	Notices() []events.Notice
	Submit(e *events.Event)
}

// Accepted is returned for every queued event
type Accepted struct {
	ID   string      `json:"id"`
	Kind events.Kind `json:"kind"`
}

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the node diagnostics verdict
type HealthResponse struct {
	Verdict   types.HealthVerdict `json:"verdict"`
	Timestamp time.Time           `json:"timestamp"`
	Checks    []health.Result     `json:"checks"`
}

// Server serves the operator HTTP API
type Server struct {
	backend Backend
	router  chi.Router
	logger  zerolog.Logger
}

// NewServer creates the API server for backend
func NewServer(backend Backend) *Server {
	s := &Server{
		backend: backend,
		logger:  log.WithComponent("api"),
	}

	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get("/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	r.Get("/livez", metrics.HealthHandler())
	r.Get("/ready", metrics.ReadyHandler())
	r.Handle("/metrics", metrics.Handler())

	r.Get("/events", s.handleNotices)
	r.Post("/events/{kind}", s.handleEvent)
	r.Post("/actions/rolling-restart", s.handleRollingRestart)

	s.router = r
	return s
}

// Handler returns the HTTP handler for embedding in other servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	server := &http.Server{
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("API listening")
	if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Report())
}

// handleHealth runs the diagnostic battery; 503 when degraded
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.backend.Diagnostics(r.Context())

	code := http.StatusOK
	if report.Verdict != types.HealthHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{
		Verdict:   report.Verdict,
		Timestamp: time.Now(),
		Checks:    report.Results,
	})
}

func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	notices := s.backend.Notices()
	if notices == nil {
		notices = []events.Notice{}
	}
	writeJSON(w, http.StatusOK, notices)
}

// handleEvent accepts lifecycle events from the host runtime
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	kind, err := events.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	var metadata map[string]string
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&metadata); err != nil {
			writeErr(w, http.StatusBadRequest, "metadata must be a JSON object of strings")
			return
		}
	}
	if kind == events.KindRestartRequested && !s.backend.IsLeader() {
		writeErr(w, http.StatusConflict, "rolling restart is only accepted on the leader")
		return
	}

	s.submit(w, events.New(kind, metadata))
}

// handleRollingRestart starts a fleet-wide rolling restart. Leader only.
func (s *Server) handleRollingRestart(w http.ResponseWriter, r *http.Request) {
	if !s.backend.IsLeader() {
		writeErr(w, http.StatusConflict, "rolling restart is only accepted on the leader")
		return
	}
	s.submit(w, events.New(events.KindRestartRequested, map[string]string{"source": "api"}))
}

func (s *Server) submit(w http.ResponseWriter, e *events.Event) {
	s.backend.Submit(e)
	s.logger.Debug().Str("event", string(e.Kind)).Str("event_id", e.ID).Msg("Event accepted")
	writeJSON(w, http.StatusAccepted, Accepted{ID: e.ID, Kind: e.Kind})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}
