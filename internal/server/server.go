// Package server exposes the orchestrator over HTTP: a blocking chat endpoint,
// an SSE streaming variant that relays run progress, and a health probe.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/inquestlabs/inquest/internal/server/metrics"
	"github.com/inquestlabs/inquest/pkg/orchestrator"
)

// Runner is the orchestrator surface the server needs.
type Runner interface {
	RunWithProgress(ctx context.Context, question string, onProgress orchestrator.ProgressFunc) orchestrator.OrchestrationResult
}

// Pinger reports whether the backing workspace is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the configuration for the HTTP server.
type Config struct {
	Logger         *slog.Logger
	Orchestrator   Runner
	Store          Pinger // optional; health degrades to liveness-only when nil
	AllowedOrigins []string

	// HeartbeatInterval paces SSE keepalives. Proxies drop idle streams, so
	// this must stay below their idle timeout.
	HeartbeatInterval time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Orchestrator == nil {
		return fmt.Errorf("orchestrator is required")
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	return nil
}

// Server is the HTTP front end.
type Server struct {
	cfg *Config
	log *slog.Logger
}

// New creates a new Server.
func New(cfg *Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Server{cfg: cfg, log: cfg.Logger}, nil
}

// Router builds the chi router with all routes and middleware attached.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Post("/api/v1/chat", s.handleChat)
	r.Post("/api/v1/chat/stream", s.handleChatStream)

	return r
}

// chatRequest is the incoming request for both chat endpoints.
type chatRequest struct {
	Question string `json:"question"`
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return chatRequest{}, false
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return chatRequest{}, false
	}
	return req, true
}

// handleChat runs a question to completion and returns the full result.
// Orchestration failures still yield 200: the result's isError flag is the
// contract, not the HTTP status.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	result := s.cfg.Orchestrator.RunWithProgress(r.Context(), req.Question, nil)
	metrics.ObserveRun(result.IsError, result.RowCount, time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil && s.log != nil {
		s.log.Error("server: failed to write chat response", "error", err)
	}
}

// handleChatStream runs a question while relaying progress as SSE events:
// "status" per stage transition, "heartbeat" on an interval, and a final
// "done" carrying the same result shape as the blocking endpoint.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
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

	events := make(chan event, 16)
	sendEvent := func(eventType string, data any) {
		payload, err := json.Marshal(data)
		if err != nil {
			if s.log != nil {
				s.log.Error("server: failed to marshal SSE event", "event", eventType, "error", err)
			}
			return
		}
		select {
		case events <- event{name: eventType, data: payload}:
		case <-r.Context().Done():
		}
	}

	go func() {
		defer close(events)
		start := time.Now()
		result := s.cfg.Orchestrator.RunWithProgress(r.Context(), req.Question, func(p orchestrator.Progress) {
			sendEvent("status", map[string]any{
				"stage":   string(p.Stage),
				"message": stageMessage(p.Stage),
			})
		})
		metrics.ObserveRun(result.IsError, result.RowCount, time.Since(start))
		sendEvent("done", result)
	}()

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, "event: heartbeat\ndata: {}\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

type event struct {
	name string
	data []byte
}

func stageMessage(stage orchestrator.Stage) string {
	switch stage {
	case orchestrator.StageGenerating:
		return "Generating a query for your question..."
	case orchestrator.StageValidating:
		return "Checking the generated query..."
	case orchestrator.StageExecuting:
		return "Running the query..."
	case orchestrator.StageAnalyzing:
		return "Analyzing the results..."
	case orchestrator.StageComplete:
		return "Done."
	case orchestrator.StageError:
		return "The run failed."
	default:
		return "Processing..."
	}
}

// handleHealthz reports readiness. With a store attached it proves workspace
// reachability; without one it only proves the process is serving.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK

	if s.cfg.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.cfg.Store.Ping(ctx); err != nil {
			status = map[string]string{"status": "degraded", "error": err.Error()}
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
