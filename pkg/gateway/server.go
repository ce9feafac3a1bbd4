// Package gateway exposes the research service over HTTP: run
// submission and retrieval, a websocket stream of live trace events,
// and the operational endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"finsight/internal/observability"
	"finsight/internal/tracing"
	"finsight/pkg/service"
	"finsight/pkg/team"
	"finsight/pkg/trace"

	"github.com/rs/zerolog"
)

// RunService is the slice of the research service the gateway needs.
// An indirection here lets serve mode swap the assembled service when
// the config file changes.
type RunService interface {
	Submit(ctx context.Context, query string) (service.Handle, error)
	Result(handle service.Handle) (team.Response, error)
	Trace(handle service.Handle) ([]trace.Event, error)
}

// Server is the HTTP gateway in front of the research service.
type Server struct {
	host         string
	port         int
	sharedSecret string
	service      RunService
	broadcaster  *Broadcaster
	logger       zerolog.Logger

	server         *http.Server
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	SharedSecret string
	Service      RunService
	Broadcaster  *Broadcaster
	Logger       zerolog.Logger
}

// NewServer creates a new gateway server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("service is required")
	}

	broadcaster := cfg.Broadcaster
	if broadcaster == nil {
		broadcaster = NewBroadcaster(cfg.Logger)
	}

	return &Server{
		host:         cfg.Host,
		port:         cfg.Port,
		sharedSecret: cfg.SharedSecret,
		service:      cfg.Service,
		broadcaster:  broadcaster,
		logger:       cfg.Logger,
	}, nil
}

// Stream returns the trace broadcaster feeding connected stream
// clients. Wire it into the service as its live sink.
func (s *Server) Stream() *Broadcaster {
	return s.broadcaster
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/runs", s.authenticated(s.handleSubmit))
	mux.HandleFunc("GET /v1/runs/{id}", s.authenticated(s.handleResult))
	mux.HandleFunc("GET /v1/runs/{id}/trace", s.authenticated(s.handleTrace))
	mux.HandleFunc("GET /v1/runs/{id}/stream", s.authenticated(s.handleRunStream))
	mux.HandleFunc("GET /v1/stream", s.authenticated(s.broadcaster.HandleWebSocket))
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start starts the gateway server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: s.Handler(),
	}

	s.logger.Info().Str("host", s.host).Int("port", s.port).Msg("Starting gateway server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop gracefully stops the gateway server
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	s.broadcaster.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

// authenticated wraps a handler with shared-secret bearer auth and
// request accounting.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
			return
		}
		s.shutdownMu.RUnlock()

		if s.sharedSecret != "" {
			auth := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || token != s.sharedSecret {
				s.writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}

		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()

		next(w, r)
	}
}

type submitRequest struct {
	Query string `json:"query"`
}

type submitResponse struct {
	RunID string `json:"run_id"`
}

type runResponse struct {
	RunID    string        `json:"run_id"`
	Status   string        `json:"status"`
	Answer   string        `json:"answer,omitempty"`
	Sections []sectionJSON `json:"sections,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type sectionJSON struct {
	Agent       string `json:"agent"`
	Text        string `json:"text,omitempty"`
	Placeholder bool   `json:"placeholder,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	traceID := r.Header.Get("X-Trace-Id")
	if traceID == "" {
		traceID = tracing.NewTraceID()
	}
	ctx := tracing.WithTraceID(r.Context(), traceID)

	handle, err := s.service.Submit(ctx, req.Query)
	if err != nil {
		if errors.Is(err, service.ErrConfig) {
			s.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().
		Str("run_id", string(handle)).
		Msg("Run submitted via gateway")

	s.writeJSON(w, http.StatusAccepted, submitResponse{RunID: string(handle)})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	handle := service.Handle(r.PathValue("id"))

	response, err := s.service.Result(handle)
	switch {
	case errors.Is(err, service.ErrUnknownHandle):
		s.writeError(w, http.StatusNotFound, "unknown run")
		return
	case errors.Is(err, service.ErrRunActive):
		s.writeJSON(w, http.StatusOK, runResponse{RunID: string(handle), Status: "running"})
		return
	case err != nil:
		s.writeJSON(w, http.StatusOK, runResponse{
			RunID:  string(handle),
			Status: "failed",
			Error:  err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, runResponse{
		RunID:    string(handle),
		Status:   "completed",
		Answer:   response.Answer,
		Sections: toSectionJSON(response.Sections),
	})
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	handle := service.Handle(r.PathValue("id"))

	events, err := s.service.Trace(handle)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "unknown run")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": string(handle),
		"events": events,
	})
}

// handleRunStream streams live events for a single run. The handle is
// checked against the registry so an unknown run fails fast instead of
// holding a silent socket open.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	handle := service.Handle(r.PathValue("id"))

	if _, err := s.service.Trace(handle); err != nil {
		s.writeError(w, http.StatusNotFound, "unknown run")
		return
	}

	s.broadcaster.ServeRun(w, r, string(handle))
}

func toSectionJSON(sections []team.Section) []sectionJSON {
	out := make([]sectionJSON, len(sections))
	for i, sec := range sections {
		out[i] = sectionJSON{
			Agent:       sec.Agent,
			Text:        sec.Text,
			Placeholder: sec.Placeholder,
			Reason:      sec.Reason,
		}
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

var _ trace.Sink = (*Broadcaster)(nil)
