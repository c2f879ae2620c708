// Package service contains the business logic for the lead router.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/vendalink/leadrouter/internal/cache"
	"github.com/vendalink/leadrouter/internal/config"
	"github.com/vendalink/leadrouter/internal/distribution"
	"github.com/vendalink/leadrouter/internal/metrics"
	"github.com/vendalink/leadrouter/internal/store"
	"github.com/vendalink/leadrouter/pkg/types"
)

// Sentinel errors mapped to HTTP status codes by the API layer.
var (
	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means the operation lost to a concurrent writer, e.g.
	// manually assigning a lead that was just auto-assigned.
	ErrConflict = errors.New("conflict")
)

// Service provides business logic operations.
type Service struct {
	store       *store.Store
	distributor *distribution.Distributor
	cache       *cache.Cache // Optional Redis cache for read endpoints
	metrics     *metrics.Metrics
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewService creates a new service. cache and metrics may be nil in tests.
func NewService(store *store.Store, distributor *distribution.Distributor, c *cache.Cache, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:       store,
		distributor: distributor,
		cache:       c,
		metrics:     m,
		validate:    validator.New(),
		logger:      logger.With("component", "service"),
	}
}

// Store returns the underlying store for direct access (used by middleware).
func (s *Service) Store() *store.Store {
	return s.store
}

// =============================================================================
// LEAD OPERATIONS
// =============================================================================

// IngestLeadRequest contains parameters for lead intake.
type IngestLeadRequest struct {
	WorkspaceID string  `json:"workspace_id" validate:"required,uuid4"`
	PipelineID  string  `json:"pipeline_id" validate:"required,uuid4"`
	Name        string  `json:"name" validate:"required,min=1,max=200"`
	Phone       string  `json:"phone" validate:"omitempty,max=32"`
	Email       string  `json:"email" validate:"omitempty,email"`
	Source      string  `json:"source" validate:"required,oneof=meta whatsapp webhook form manual"`
	StageID     *string `json:"stage_id,omitempty" validate:"omitempty,uuid4"`
}

// IngestLead persists a new lead and immediately runs distribution on it.
// The lead is returned with its assignment state; an unassigned lead is not
// an error, the outcome says why it stayed unassigned.
func (s *Service) IngestLead(ctx context.Context, req IngestLeadRequest) (*types.Lead, types.AssignmentOutcome, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, types.AssignmentOutcome{}, fmt.Errorf("validating lead: %w", err)
	}

	workspace, err := s.store.GetWorkspace(ctx, req.WorkspaceID)
	if err != nil {
		return nil, types.AssignmentOutcome{}, err
	}
	if workspace == nil {
		return nil, types.AssignmentOutcome{}, fmt.Errorf("workspace %s: %w", req.WorkspaceID, ErrNotFound)
	}
	pipeline, err := s.store.GetPipeline(ctx, req.PipelineID)
	if err != nil {
		return nil, types.AssignmentOutcome{}, err
	}
	if pipeline == nil || pipeline.WorkspaceID != req.WorkspaceID {
		return nil, types.AssignmentOutcome{}, fmt.Errorf("pipeline %s: %w", req.PipelineID, ErrNotFound)
	}

	now := time.Now()
	lead := &types.Lead{
		ID:          uuid.New().String(),
		WorkspaceID: req.WorkspaceID,
		PipelineID:  req.PipelineID,
		StageID:     req.StageID,
		Name:        req.Name,
		Phone:       req.Phone,
		Email:       req.Email,
		Source:      types.LeadSource(req.Source),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateLead(ctx, lead); err != nil {
		return nil, types.AssignmentOutcome{}, fmt.Errorf("creating lead: %w", err)
	}
	if s.metrics != nil {
		s.metrics.LeadsIngested.WithLabelValues(req.Source).Inc()
	}

	outcome, err := s.distributor.DistributeOne(ctx, lead)
	if err != nil {
		// The lead exists; distribution failures are retried by the
		// pending worker. Surface the lead anyway.
		s.logger.Error("distribution failed at ingest", "lead_id", lead.ID, "error", err)
		return lead, types.AssignmentOutcome{}, nil
	}

	s.invalidateWorkspace(ctx, req.WorkspaceID)
	return lead, outcome, nil
}

// GetLead fetches a lead by ID.
func (s *Service) GetLead(ctx context.Context, id string) (*types.Lead, error) {
	lead, err := s.store.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, fmt.Errorf("lead %s: %w", id, ErrNotFound)
	}
	return lead, nil
}

// DistributeWorkspace runs one pending-distribution pass over a workspace's
// unassigned backlog. The per-workspace lock keeps a manual trigger from
// overlapping a scheduler run.
func (s *Service) DistributeWorkspace(ctx context.Context, workspaceID string) (*types.BatchOutcome, error) {
	workspace, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if workspace == nil {
		return nil, fmt.Errorf("workspace %s: %w", workspaceID, ErrNotFound)
	}

	if s.cache != nil {
		acquired, err := s.cache.AcquireBatchLock(ctx, workspaceID, config.BatchLockTTL)
		if err != nil {
			s.logger.Warn("batch lock unavailable, proceeding unlocked", "workspace_id", workspaceID, "error", err)
		} else if !acquired {
			return nil, fmt.Errorf("distribution already running for workspace %s: %w", workspaceID, ErrConflict)
		} else {
			defer func() {
				if err := s.cache.ReleaseBatchLock(context.WithoutCancel(ctx), workspaceID); err != nil {
					s.logger.Warn("releasing batch lock failed", "workspace_id", workspaceID, "error", err)
				}
			}()
		}
	}

	report, err := s.distributor.DistributePending(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	s.invalidateWorkspace(ctx, workspaceID)
	return report, nil
}

// ManualAssignRequest contains parameters for an operator assignment override.
type ManualAssignRequest struct {
	LeadID string `json:"lead_id" validate:"required,uuid4"`
	UserID string `json:"user_id" validate:"required"`
}

// ManualAssign assigns a lead to a chosen member, bypassing rules. The same
// conditional write as automatic distribution applies, so a concurrent
// auto-assignment wins and the override fails with ErrConflict.
func (s *Service) ManualAssign(ctx context.Context, req ManualAssignRequest) (*types.Lead, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("validating assignment: %w", err)
	}

	lead, err := s.store.GetLead(ctx, req.LeadID)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, fmt.Errorf("lead %s: %w", req.LeadID, ErrNotFound)
	}

	members, err := s.store.ListActiveMembers(ctx, lead.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if !memberExists(members, req.UserID) {
		return nil, fmt.Errorf("user %s is not an active member of workspace %s: %w", req.UserID, lead.WorkspaceID, ErrNotFound)
	}

	won, err := s.store.AssignLeadIfUnassigned(ctx, req.LeadID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("assigning lead: %w", err)
	}
	if !won {
		return nil, fmt.Errorf("lead %s is already assigned: %w", req.LeadID, ErrConflict)
	}

	record := &types.AssignmentRecord{
		ID:          uuid.New().String(),
		WorkspaceID: lead.WorkspaceID,
		LeadID:      lead.ID,
		UserID:      req.UserID,
		Mode:        types.ModeManual,
		AssignedAt:  time.Now(),
	}
	if err := s.store.CreateAssignmentRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("recording assignment: %w", err)
	}

	lead.AssignedTo = &req.UserID
	s.logger.Info("lead manually assigned", "lead_id", lead.ID, "user_id", req.UserID)
	s.invalidateWorkspace(ctx, lead.WorkspaceID)
	return lead, nil
}

func (s *Service) invalidateWorkspace(ctx context.Context, workspaceID string) {
	if s.cache != nil {
		s.cache.InvalidateWorkspace(ctx, workspaceID)
	}
}

func memberExists(members []types.Member, userID string) bool {
	for _, m := range members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}
