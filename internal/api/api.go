// Package api provides HTTP handlers for the lead router.
//
// # Endpoints
//
// Lead API:
//   - POST /api/v1/leads - Ingest a lead and distribute it
//   - GET  /api/v1/leads/{id} - Get lead details
//   - POST /api/v1/leads/{id}/assign - Manually assign a lead
//
// Workspace API:
//   - POST /api/v1/workspaces/{id}/distribute - Distribute pending leads
//   - GET  /api/v1/workspaces/{id}/stats - Get distribution statistics
//   - GET  /api/v1/workspaces/{id}/assignments - List recent assignments
//   - GET  /api/v1/workspaces/{id}/loads - Get per-member load snapshots
//   - POST /api/v1/workspaces/{id}/apikey - Rotate the workspace API key
//
// Rule API:
//   - GET    /api/v1/workspaces/{id}/rules - List rules
//   - POST   /api/v1/workspaces/{id}/rules - Create rule
//   - GET    /api/v1/workspaces/{id}/rules/{rule_id} - Get rule
//   - PUT    /api/v1/workspaces/{id}/rules/{rule_id} - Update rule
//   - DELETE /api/v1/workspaces/{id}/rules/{rule_id} - Delete rule
//
// Health:
//   - GET /api/v1/health - Health check
//   - GET /metrics - Prometheus metrics
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vendalink/leadrouter/internal/metrics"
	"github.com/vendalink/leadrouter/internal/service"
)

// Server is the HTTP API server.
type Server struct {
	svc             *service.Service
	healthCollector *metrics.HealthCollector
	logger          *slog.Logger
	mux             *http.ServeMux
	limiter         *ingestLimiter

	// Workspace authentication (disabled by default for grace period)
	ingestAuthEnabled bool
}

// NewServer creates a new API server. promMetrics may be nil; the /metrics
// route is then not registered.
func NewServer(svc *service.Service, healthCollector *metrics.HealthCollector, promMetrics *metrics.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		svc:             svc,
		healthCollector: healthCollector,
		logger:          logger,
		mux:             http.NewServeMux(),
		limiter:         newIngestLimiter(),
	}
	s.registerRoutes(promMetrics)
	return s
}

// Mux returns the underlying ServeMux for registering additional routes.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// EnableIngestAuth enables workspace API key enforcement on write routes.
// By default, auth is in grace period mode (logs but doesn't reject).
func (s *Server) EnableIngestAuth() {
	s.ingestAuthEnabled = true
	s.logger.Info("workspace API key authentication enabled")
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Add CORS headers
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Workspace-ID")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("request",
		"method", r.Method,
		"path", r.URL.Path,
		"duration", time.Since(start))
}

func (s *Server) registerRoutes(promMetrics *metrics.Metrics) {
	workspaceAuth := s.WorkspaceAuthMiddleware(WorkspaceAuthConfig{
		Enabled: func() bool { return s.ingestAuthEnabled },
		Logger:  s.logger,
	})

	// Health
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	if promMetrics != nil {
		s.mux.Handle("GET /metrics", promMetrics.Handler())
	}

	// Lead intake (authenticated, rate limited per workspace)
	s.mux.HandleFunc("POST /api/v1/leads", wrapHandler(s.rateLimited(s.handleIngestLead), workspaceAuth))
	s.mux.HandleFunc("GET /api/v1/leads/{id}", s.handleGetLead)
	s.mux.HandleFunc("POST /api/v1/leads/{id}/assign", wrapHandler(s.handleManualAssign, workspaceAuth))

	// Workspace operations
	s.mux.HandleFunc("POST /api/v1/workspaces/{id}/distribute", wrapHandler(s.handleDistribute, workspaceAuth))
	s.mux.HandleFunc("GET /api/v1/workspaces/{id}/stats", s.handleGetStats)
	s.mux.HandleFunc("GET /api/v1/workspaces/{id}/assignments", s.handleListAssignments)
	s.mux.HandleFunc("GET /api/v1/workspaces/{id}/loads", s.handleGetMemberLoads)
	s.mux.HandleFunc("POST /api/v1/workspaces/{id}/apikey", s.handleRotateAPIKey)

	// Rules
	s.mux.HandleFunc("GET /api/v1/workspaces/{id}/rules", s.handleListRules)
	s.mux.HandleFunc("POST /api/v1/workspaces/{id}/rules", wrapHandler(s.handleCreateRule, workspaceAuth))
	s.mux.HandleFunc("GET /api/v1/workspaces/{id}/rules/{rule_id}", s.handleGetRule)
	s.mux.HandleFunc("PUT /api/v1/workspaces/{id}/rules/{rule_id}", wrapHandler(s.handleUpdateRule, workspaceAuth))
	s.mux.HandleFunc("DELETE /api/v1/workspaces/{id}/rules/{rule_id}", wrapHandler(s.handleDeleteRule, workspaceAuth))
}

// =============================================================================
// HEALTH
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if s.healthCollector != nil {
		resp["process"] = s.healthCollector.Collect()
	}
	if err := s.svc.Store().Ping(r.Context()); err != nil {
		resp["status"] = "degraded"
		resp["database"] = err.Error()
		s.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// LEAD ENDPOINTS
// =============================================================================

func (s *Server) handleIngestLead(w http.ResponseWriter, r *http.Request) {
	var req service.IngestLeadRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lead, outcome, err := s.svc.IngestLead(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err, "failed to ingest lead")
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"lead":    lead,
		"outcome": outcome,
	})
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := s.svc.GetLead(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "failed to get lead")
		return
	}
	s.writeJSON(w, http.StatusOK, lead)
}

func (s *Server) handleManualAssign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lead, err := s.svc.ManualAssign(r.Context(), service.ManualAssignRequest{
		LeadID: r.PathValue("id"),
		UserID: body.UserID,
	})
	if err != nil {
		s.writeServiceError(w, err, "failed to assign lead")
		return
	}
	s.writeJSON(w, http.StatusOK, lead)
}

// =============================================================================
// WORKSPACE ENDPOINTS
// =============================================================================

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.DistributeWorkspace(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "failed to distribute pending leads")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.GetDistributionStats(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "failed to get statistics")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := s.svc.ListRecentAssignments(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.writeServiceError(w, err, "failed to list assignments")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"assignments": records,
		"count":       len(records),
	})
}

func (s *Server) handleGetMemberLoads(w http.ResponseWriter, r *http.Request) {
	loads, err := s.svc.GetMemberLoads(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "failed to get member loads")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"loads": loads,
		"count": len(loads),
	})
}

func (s *Server) handleRotateAPIKey(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")

	plaintext, hash, err := GenerateWorkspaceAPIKey(workspaceID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to generate API key")
		return
	}
	if err := s.svc.Store().SetWorkspaceAPIKeyHash(r.Context(), workspaceID, hash); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to store API key")
		return
	}

	s.logger.Info("workspace API key rotated", "workspace_id", workspaceID)

	// The plaintext key is shown exactly once; only the hash is stored.
	s.writeJSON(w, http.StatusOK, map[string]string{
		"workspace_id": workspaceID,
		"api_key":      plaintext,
	})
}

// =============================================================================
// RULE ENDPOINTS
// =============================================================================

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.svc.ListRules(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "failed to list rules")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req service.SaveRuleRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.WorkspaceID = r.PathValue("id")

	result, err := s.svc.CreateRule(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err, "failed to create rule")
		return
	}
	s.writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.GetRule(r.Context(), r.PathValue("id"), r.PathValue("rule_id"))
	if err != nil {
		s.writeServiceError(w, err, "failed to get rule")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req service.SaveRuleRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.WorkspaceID = r.PathValue("id")

	result, err := s.svc.UpdateRule(r.Context(), r.PathValue("rule_id"), req)
	if err != nil {
		s.writeServiceError(w, err, "failed to update rule")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteRule(r.Context(), r.PathValue("id"), r.PathValue("rule_id")); err != nil {
		s.writeServiceError(w, err, "failed to delete rule")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeServiceError maps service-layer errors to HTTP status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &validationErrs):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(fallback, "error", err)
		s.writeError(w, http.StatusInternalServerError, fallback)
	}
}
