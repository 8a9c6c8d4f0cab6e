// Package server exposes the question-answering pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/korpuslab/zapytaj/internal/detector"
	"github.com/korpuslab/zapytaj/internal/health"
	"github.com/korpuslab/zapytaj/internal/memory"
	"github.com/korpuslab/zapytaj/internal/models"
	"github.com/korpuslab/zapytaj/internal/orchestrator"
)

// Orchestrator is the pipeline surface the handlers call.
type Orchestrator interface {
	Ask(ctx context.Context, query string, strategies []string) (*models.Result, error)
	Retry(ctx context.Context, id uint64) (*models.Result, bool, error)
	RetryAll(ctx context.Context) ([]orchestrator.RetryOutcome, error)
}

// Memory is the unresolved-store surface the handlers read.
type Memory interface {
	Pending() []memory.Entry
	ByID(id uint64) (memory.Entry, error)
	Stats() memory.Stats
}

// Detector reports corpus snapshot statistics.
type Detector interface {
	Stats(ctx context.Context) (detector.Stats, error)
}

// Server wires routes to the pipeline.
type Server struct {
	orch   Orchestrator
	mem    Memory
	det    Detector
	health *health.Manager
	log    *zap.Logger
}

// New builds the server.
func New(orch Orchestrator, mem Memory, det Detector, healthMgr *health.Manager, logger *zap.Logger) *Server {
	return &Server{orch: orch, mem: mem, det: det, health: healthMgr, log: logger}
}

// Handler returns the routed handler with the middleware chain
// applied: recovery, request id, logging and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("GET /pending", s.handlePending)
	mux.HandleFunc("GET /pending/{id}", s.handlePendingByID)
	mux.HandleFunc("POST /retry", s.handleRetry)
	mux.HandleFunc("POST /retry_all", s.handleRetryAll)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	return withRecovery(s.log, withRequestID(withObservability(s.log, mux)))
}

type askRequest struct {
	RetryStrats []string `json:"retry_strats"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter must not be empty")
		return
	}

	var req askRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := s.orch.Ask(r.Context(), query, req.RetryStrats)
	if err != nil {
		s.log.Error("Ask failed", zap.String("query", query), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "pipeline failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"model_answer": result})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	entries := s.mem.Pending()
	if entries == nil {
		entries = []memory.Entry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"pending_queries": entries})
}

func (s *Server) handlePendingByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "id must be an unsigned integer")
		return
	}
	entry, err := s.mem.ByID(id)
	if errors.Is(err, models.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "no such query")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"query": entry})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "id must be an unsigned integer")
		return
	}

	result, resolved, err := s.orch.Retry(r.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "no such query")
		return
	}
	if err != nil {
		s.log.Error("Retry failed", zap.Uint64("id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "retry failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":   result,
		"resolved": resolved,
	})
}

func (s *Server) handleRetryAll(w http.ResponseWriter, r *http.Request) {
	outcomes, err := s.orch.RetryAll(r.Context())
	if err != nil {
		s.log.Error("Retry-all failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "retry-all failed")
		return
	}
	if outcomes == nil {
		outcomes = []orchestrator.RetryOutcome{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": outcomes,
		"count":   len(outcomes),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	detStats, err := s.det.Stats(r.Context())
	if err != nil {
		s.log.Error("Detector stats failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"memory":   s.mem.Stats(),
		"detector": detStats,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	overall := s.health.Check(r.Context())
	status := http.StatusOK
	if overall.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, overall)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn("Response encoding failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
