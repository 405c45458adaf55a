// Package rest is the HTTP surface over the orchestration engine: start,
// monitor, pause, resume, and cancel operations routed to the
// orchestrator's entry points, behind a configurable middleware chain.
package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/infrastructure/monitoring"
	"github.com/procthread/engine/internal/orchestrator"
)

// DefinitionStore is the subset of storage.MemoryDefinitionStore/BunStore
// the REST layer needs to accept a thread definition and resolve it back.
type DefinitionStore interface {
	SaveDefinition(ctx context.Context, def *domain.ThreadDefinition) error
	LoadProcessThread(ctx context.Context, versionID int64) (*domain.ThreadDefinition, error)
}

// ExecutionStore is the subset of storage.MemoryExecutionStore/BunStore the
// REST "monitor" endpoints need.
type ExecutionStore interface {
	GetByProcessExecution(ctx context.Context, threadExecID string) (*domain.ExecutionRecord, error)
	List(ctx context.Context) ([]*domain.ExecutionRecord, error)
}

// ServerConfig toggles the middleware chain.
type ServerConfig struct {
	EnableCORS      bool
	EnableRateLimit bool
	RateLimitMax    int
	RateLimitWindow time.Duration
	APIKeys         []string
}

// Server is the HTTP front door onto an orchestrator.Engine.
type Server struct {
	engine  *orchestrator.Engine
	defs    DefinitionStore
	execs   ExecutionStore
	metrics *monitoring.MetricsCollector
	mux     *http.ServeMux
	handler http.Handler
	logger  *slog.Logger
	cfg     ServerConfig
}

// NewServer wires the handlers registered by routes() behind middleware.go's chain. metrics
// may be nil, in which case GET /api/v1/metrics is not registered.
func NewServer(defs DefinitionStore, execs ExecutionStore, engine *orchestrator.Engine, metrics *monitoring.MetricsCollector, logger *slog.Logger, cfg ServerConfig) *Server {
	s := &Server{
		engine:  engine,
		defs:    defs,
		execs:   execs,
		metrics: metrics,
		mux:     http.NewServeMux(),
		logger:  logger,
		cfg:     cfg,
	}
	s.routes()

	var h http.Handler = s.mux
	h = recoveryMiddleware(logger, h)
	if cfg.EnableRateLimit {
		h = newRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow).middleware(h)
	}
	if len(cfg.APIKeys) > 0 {
		h = newAuthMiddleware(cfg.APIKeys).middleware(h)
	}
	if cfg.EnableCORS {
		h = corsMiddleware(h)
	}
	h = contentTypeMiddleware(h)
	h = loggingMiddleware(logger, h)
	s.handler = h
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)

	s.mux.HandleFunc("POST /api/v1/threads", s.handleCreateThread)
	s.mux.HandleFunc("POST /api/v1/threads/{versionID}/execute", s.handleExecute)
	s.mux.HandleFunc("GET /api/v1/executions", s.handleListExecutions)
	s.mux.HandleFunc("GET /api/v1/executions/{threadExecID}", s.handleGetExecution)
	s.mux.HandleFunc("POST /api/v1/executions/{threadExecID}/pause", s.handlePause)
	s.mux.HandleFunc("POST /api/v1/executions/{threadExecID}/resume", s.handleResume)
	s.mux.HandleFunc("POST /api/v1/executions/{threadExecID}/cancel", s.handleCancel)

	if s.metrics != nil {
		s.mux.HandleFunc("GET /api/v1/metrics", s.handleMetrics)
	}
}

// ServeHTTP implements http.Handler, running every request through the
// configured middleware chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// handleCreateThread accepts a thread definition for later execution.
func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var def domain.ThreadDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "invalid thread definition: "+err.Error())
		return
	}
	if err := s.defs.SaveDefinition(r.Context(), &def); err != nil {
		s.logger.Error("failed to save thread definition", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save thread definition")
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"thread_id": def.ID, "version_id": def.VersionID})
}

// executeRequestBody is the wire shape of a start-execution call.
type executeRequestBody struct {
	ThreadID          int64                  `json:"thread_id"`
	Input             map[string]any         `json:"input"`
	Mode              domain.ExecutionModeID `json:"mode"`
	TriggerElementKey string                 `json:"trigger_element_key"`
}

// handleExecute starts a thread execution via ExecuteProcess.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	versionID, err := parsePathInt64(r.PathValue("versionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid versionID")
		return
	}
	var body executeRequestBody
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	record, err := s.engine.ExecuteProcess(r.Context(), orchestrator.ExecuteRequest{
		ThreadID:          body.ThreadID,
		VersionID:         versionID,
		Input:             body.Input,
		Mode:              body.Mode,
		TriggerElementKey: body.TriggerElementKey,
	})
	if err != nil {
		s.logger.Error("execute failed", "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(record)
}

// handleListExecutions lists every known execution record.
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	list, err := s.execs.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list executions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	_ = json.NewEncoder(w).Encode(list)
}

// handleGetExecution returns a single execution record.
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	record, err := s.execs.GetByProcessExecution(r.Context(), r.PathValue("threadExecID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	_ = json.NewEncoder(w).Encode(record)
}

// handlePause forwards to PauseExecution.
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("threadExecID")
	if err := s.engine.PauseExecution(r.Context(), id); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "pause requested"})
}

// handleResume forwards to ResumeExecution.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("threadExecID")
	record, err := s.engine.ResumeExecution(r.Context(), id)
	if err != nil {
		s.logger.Error("resume failed", "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(record)
}

// handleCancel forwards to CancelExecution.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("threadExecID")
	if err := s.engine.CancelExecution(r.Context(), id); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "cancel requested"})
}

// handleMetrics exposes the in-process MetricsCollector snapshot,
// thread/element execution counts with min/avg/max durations and AI usage
// counters, independent of
// the tracing service's per-execution node traces.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(s.metrics.Snapshot())
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func parsePathInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
