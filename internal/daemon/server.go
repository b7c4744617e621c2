// Package daemon exposes the difficulty state manager over a local HTTP API.
// The daemon owns the composition root: backend client, state cache, event
// bus, practice creation, history persistence and the queue bridge.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prepdeck/prepdeck/internal/backend"
	"github.com/prepdeck/prepdeck/internal/config"
	"github.com/prepdeck/prepdeck/internal/difficulty"
	"github.com/prepdeck/prepdeck/internal/events"
	"github.com/prepdeck/prepdeck/internal/inherit"
	"github.com/prepdeck/prepdeck/internal/practice"
	"github.com/prepdeck/prepdeck/internal/queue"
	"github.com/prepdeck/prepdeck/internal/state"
	"github.com/prepdeck/prepdeck/internal/storage/sqlite"
)

// Version is the daemon version reported by the status endpoint.
const Version = "0.1.0"

// Server represents the prepdeck daemon HTTP server
type Server struct {
	cfg    *config.LocalConfig
	server *http.Server
	router *http.ServeMux
	logger *slog.Logger

	// Services
	client          backend.Client
	bus             *events.Bus
	states          *state.Manager
	practiceService *practice.Service

	// Optional infrastructure
	db        *sqlite.DB
	queueConn *queue.Connection
	bridge    *queue.Bridge
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config *config.LocalConfig

	// Client overrides the backend client, used by tests. When nil the
	// server builds a resilient HTTP client from Config.Backend.
	Client backend.Client

	Logger *slog.Logger
}

// NewServer creates a new daemon server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("daemon: config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg.Config,
		router: http.NewServeMux(),
		logger: logger,
	}

	// Backend client: resilient wrapper around the REST client unless a
	// test injected its own.
	client := cfg.Client
	if client == nil {
		httpClient := backend.NewHTTPClient(backend.HTTPConfig{
			BaseURL:  cfg.Config.Backend.URL,
			APIToken: cfg.Config.Backend.APIToken,
			Timeout:  time.Duration(cfg.Config.Backend.TimeoutSeconds) * time.Second,
		})
		client = backend.NewResilientClient(httpClient, backend.ResilientConfig{
			EnableCircuitBreaker: cfg.Config.Backend.CircuitBreaker,
			EnableRetry:          cfg.Config.Backend.Retry,
			EnableRateLimit:      cfg.Config.Backend.RatePerSecond > 0,
			RatePerSecond:        cfg.Config.Backend.RatePerSecond,
			Logger:               logger,
		})
	}
	s.client = client

	s.bus = events.NewBus(logger)

	// Difficulty history persistence
	var history *sqlite.HistoryStore
	if cfg.Config.Storage.Enabled {
		db, err := sqlite.Open(cfg.Config.Storage.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open history db: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate history db: %w", err)
		}
		s.db = db
		history = sqlite.NewHistoryStore(db)
	}

	if history == nil {
		s.states = state.NewManager(client, s.bus, nil, logger)
	} else {
		s.states = state.NewManager(client, s.bus, history, logger)
		s.warmStart(history)
	}
	s.practiceService = practice.NewService(client, s.states, s.bus, logger)

	// Queue bridge is best effort: a missing broker degrades to in-process
	// notifications only.
	if cfg.Config.Queue.Enabled {
		conn, err := queue.NewConnection(cfg.Config.Queue.URL, logger)
		if err != nil {
			logger.Warn("queue unavailable, events stay in-process", "error", err)
		} else {
			s.queueConn = conn
			s.bridge = queue.NewBridge(s.bus, conn, logger)
		}
	}

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Config.Daemon.Bind, cfg.Config.Daemon.Port)
	handler := s.recoveryMiddleware(s.loggingMiddleware(correlationIDMiddleware(s.router)))
	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// warmStart preloads the state cache from persisted history so display data
// survives a daemon restart while the backend is unreachable.
func (s *Server) warmStart(store *sqlite.HistoryStore) {
	ids, err := store.ListSessions()
	if err != nil {
		s.logger.Warn("history warm-start skipped", "error", err)
		return
	}

	restored := 0
	for _, id := range ids {
		st, err := store.GetState(id)
		if err != nil {
			s.logger.Warn("history warm-start skipped session", "session_id", id, "error", err)
			continue
		}
		s.states.Restore(st)
		restored++
	}
	if restored > 0 {
		s.logger.Info("restored difficulty history", "sessions", restored)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)

	// Difficulty state
	s.router.HandleFunc("GET /v1/sessions/{id}/difficulty", s.handleGetDifficulty)
	s.router.HandleFunc("PUT /v1/sessions/{id}/difficulty", s.handleUpdateDifficulty)
	s.router.HandleFunc("POST /v1/sessions/{id}/difficulty/refresh", s.handleRefreshDifficulty)
	s.router.HandleFunc("GET /v1/sessions/{id}/difficulty/summary", s.handleDifficultySummary)
	s.router.HandleFunc("DELETE /v1/difficulty-cache", s.handleClearCache)

	// Push events from the adaptive engine
	s.router.HandleFunc("POST /v1/events/difficulty-change", s.handleRemoteChange)

	// Practice sessions
	s.router.HandleFunc("POST /v1/sessions/{id}/practice", s.handleCreatePractice)
	s.router.HandleFunc("POST /v1/practice/validate", s.handleValidateInheritance)
}

// Handler returns the middleware-wrapped HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting prepdeck daemon",
		"addr", s.server.Addr,
		"storage", s.cfg.Storage.Enabled,
		"queue", s.queueConn != nil,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down daemon...")

	if s.bridge != nil {
		s.bridge.Close()
	}
	if s.queueConn != nil {
		if err := s.queueConn.Close(); err != nil {
			s.logger.Warn("failed to close queue connection", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("failed to close history db", "error", err)
		}
	}
	if closer, ok := s.client.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.logger.Warn("failed to close backend client", "error", err)
		}
	}

	return s.server.Shutdown(ctx)
}

// Handler implementations

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":          "running",
		"version":         Version,
		"cached_sessions": s.states.Size(),
		"storage_enabled": s.cfg.Storage.Enabled,
		"queue_connected": s.queueConn != nil && s.queueConn.IsConnected(),
	})
}

// difficultyStateResponse pairs the raw state with its presentation view so
// UI callers need a single round trip.
type difficultyStateResponse struct {
	State   *state.SessionState `json:"state"`
	Display state.Display       `json:"display"`
}

func (s *Server) handleGetDifficulty(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	st, err := s.states.Get(r.Context(), sessionID, state.GetOptions{
		ForceRefresh: r.URL.Query().Get("refresh") == "true",
	})
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "session id is required", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, difficultyStateResponse{
		State:   st,
		Display: st.Display(),
	})
}

func (s *Server) handleUpdateDifficulty(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req struct {
		Difficulty    any    `json:"difficulty"`
		Reason        string `json:"reason"`
		QuestionIndex *int   `json:"question_index,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	st, err := s.states.Update(r.Context(), sessionID, difficulty.Normalize(req.Difficulty), req.Reason, state.UpdateOptions{
		QuestionIndex: req.QuestionIndex,
	})
	if err != nil {
		s.difficultyError(w, err, "failed to update difficulty")
		return
	}

	s.jsonResponse(w, http.StatusOK, difficultyStateResponse{
		State:   st,
		Display: st.Display(),
	})
}

func (s *Server) handleRefreshDifficulty(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	st, err := s.states.Refresh(r.Context(), sessionID)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "session id is required", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, difficultyStateResponse{
		State:   st,
		Display: st.Display(),
	})
}

func (s *Server) handleDifficultySummary(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	st, err := s.states.Get(r.Context(), sessionID, state.GetOptions{})
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "session id is required", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, st.Summarize())
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	cleared := s.states.Size()
	s.states.Clear()

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"cleared": cleared,
	})
}

func (s *Server) handleRemoteChange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID     string `json:"session_id"`
		Difficulty    any    `json:"difficulty"`
		Reason        string `json:"reason"`
		QuestionIndex *int   `json:"question_index,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.SessionID == "" {
		s.jsonError(w, http.StatusBadRequest, "session_id is required", nil)
		return
	}

	st, err := s.states.ApplyRemoteChange(req.SessionID, difficulty.Normalize(req.Difficulty), req.Reason, req.QuestionIndex)
	if err != nil {
		s.difficultyError(w, err, "failed to apply change")
		return
	}

	s.jsonResponse(w, http.StatusOK, difficultyStateResponse{
		State:   st,
		Display: st.Display(),
	})
}

func (s *Server) handleCreatePractice(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	result, err := s.practiceService.CreatePracticeSession(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, practice.ErrParentSessionRequired):
			s.jsonError(w, http.StatusBadRequest, "parent session id is required", nil)
		case errors.Is(err, practice.ErrCreationInProgress):
			s.jsonError(w, http.StatusConflict, "practice session creation already in progress", nil)
		case errors.Is(err, backend.ErrSessionNotFound):
			s.jsonError(w, http.StatusNotFound, "session not found", nil)
		default:
			s.jsonError(w, http.StatusBadGateway, "failed to create practice session", err)
		}
		return
	}

	s.jsonResponse(w, http.StatusCreated, result)
}

func (s *Server) handleValidateInheritance(w http.ResponseWriter, r *http.Request) {
	var resp backend.PracticeCreationResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, inherit.Validate(&resp))
}

// difficultyError maps state manager failures to HTTP status codes.
func (s *Server) difficultyError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, state.ErrSessionIDRequired):
		s.jsonError(w, http.StatusBadRequest, "session id is required", nil)
	case errors.Is(err, state.ErrSessionFinalized):
		s.jsonError(w, http.StatusConflict, "session difficulty is finalized", nil)
	case errors.Is(err, backend.ErrSessionNotFound):
		s.jsonError(w, http.StatusNotFound, "session not found", nil)
	default:
		s.jsonError(w, http.StatusBadGateway, message, err)
	}
}

// Helper methods

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}
