// Package httpapi exposes an agent over HTTP: a JSON turn endpoint, an SSE
// streaming endpoint, and session and route introspection. The server
// serializes turns per session, which the engine itself does not do.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/parleyhq/parley/internal/logging"
	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/session"
)

// Agent is the slice of the engine facade the server needs.
type Agent interface {
	Process(ctx context.Context, sessionID, input string) *domain.TurnResult
	ProcessStream(ctx context.Context, sessionID, input string) <-chan domain.StreamFragment
	Routes() []*domain.Route
	Sessions() (*session.Manager, error)
}

// Server handles HTTP traffic for one agent.
type Server struct {
	agent  Agent
	logger *slog.Logger
	gates  sync.Map // session id -> *sync.Mutex
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the request logger. Defaults to a no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewHandler builds the HTTP handler for an agent.
func NewHandler(agent Agent, opts ...Option) http.Handler {
	s := &Server{agent: agent, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(metricsMiddleware)

	r.Get("/health", s.health)
	r.Get("/routes", s.listRoutes)
	r.Get("/sessions", s.listSessions)
	r.Get("/sessions/{id}", s.getSession)
	r.Delete("/sessions/{id}", s.deleteSession)
	r.Post("/sessions/{id}/turns", s.processTurn)
	r.Post("/sessions/{id}/stream", s.processStream)
	r.Method(http.MethodGet, "/metrics", metricsHandler())

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// gate serializes turns against one session. The engine requires callers
// to submit same-session turns sequentially.
func (s *Server) gate(sessionID string) *sync.Mutex {
	mu, _ := s.gates.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

type turnRequest struct {
	Input string `json:"input"`
}

type turnResponse struct {
	Message       string          `json:"message"`
	Session       *domain.Session `json:"session,omitempty"`
	RouteComplete bool            `json:"route_complete"`
	Usage         domain.Usage    `json:"usage"`
	Error         string          `json:"error,omitempty"`
}

func (s *Server) processTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var body turnRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	mu := s.gate(sessionID)
	mu.Lock()
	result := s.agent.Process(r.Context(), sessionID, body.Input)
	mu.Unlock()

	resp := turnResponse{
		Message:       result.Message,
		Session:       result.Session,
		RouteComplete: result.RouteComplete,
		Usage:         result.Usage,
	}
	status := http.StatusOK
	if result.Err != nil {
		turnErrorsTotal.Inc()
		resp.Error = result.Err.Error()
		var cerr *domain.ConfigError
		if errors.As(result.Err, &cerr) {
			// Misconfiguration is not retryable by the client.
			status = http.StatusInternalServerError
		}
		s.logger.Warn("turn failed", "session_id", sessionID, "err", result.Err)
	}

	writeJSON(w, status, resp)
}

// processStream answers with server-sent events: one "delta" event per
// fragment and a final "done" event carrying the terminal fragment.
func (s *Server) processStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var body turnRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	mu := s.gate(sessionID)
	mu.Lock()
	defer mu.Unlock()

	for fragment := range s.agent.ProcessStream(r.Context(), sessionID, body.Input) {
		event := "delta"
		payload := any(fragment)
		if fragment.Done {
			event = "done"
			resp := turnResponse{
				Message:       fragment.Accumulated,
				Session:       fragment.Session,
				RouteComplete: fragment.RouteComplete,
				Usage:         fragment.Usage,
			}
			if fragment.Err != nil {
				turnErrorsTotal.Inc()
				resp.Error = fragment.Err.Error()
			}
			payload = resp
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			s.logger.Error("failed to encode stream fragment", "err", err)
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, raw)
		flusher.Flush()
	}
}

type routeSummary struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Steps       []string `json:"steps"`
}

func (s *Server) listRoutes(w http.ResponseWriter, r *http.Request) {
	routes := s.agent.Routes()
	out := make([]routeSummary, 0, len(routes))
	for _, route := range routes {
		summary := routeSummary{
			ID:          route.ID,
			Title:       route.Title,
			Description: route.Description,
			Steps:       make([]string, 0, len(route.Steps)),
		}
		for _, step := range route.Steps {
			summary.Steps = append(summary.Steps, step.ID)
		}
		out = append(out, summary)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	manager, err := s.agent.Sessions()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ids, err := manager.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	manager, err := s.agent.Sessions()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sess, err := manager.Load(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrSessionNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	manager, err := s.agent.Sessions()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Hold the gate so an in-flight turn finishes first, then retire it
	// with the session; the map would otherwise grow forever.
	mu := s.gate(sessionID)
	mu.Lock()
	defer mu.Unlock()
	if err := manager.Delete(r.Context(), sessionID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.gates.Delete(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
