package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vendalink/leadrouter/pkg/types"
)

// =============================================================================
// RULE OPERATIONS
// =============================================================================

// RuleMemberInput is one target member in a rule create/update request.
type RuleMemberInput struct {
	UserID          string `json:"user_id" validate:"required"`
	Percentage      int    `json:"percentage" validate:"min=0,max=100"`
	MaxLeadsPerDay  *int   `json:"max_leads_per_day,omitempty" validate:"omitempty,min=0"`
	MaxLeadsPerHour *int   `json:"max_leads_per_hour,omitempty" validate:"omitempty,min=0"`
	MaxOpenLeads    *int   `json:"max_open_leads,omitempty" validate:"omitempty,min=0"`
	IsActive        *bool  `json:"is_active,omitempty"`
}

// SaveRuleRequest contains parameters for creating or replacing a rule.
type SaveRuleRequest struct {
	WorkspaceID      string            `json:"workspace_id" validate:"required,uuid4"`
	Name             string            `json:"name" validate:"required,min=1,max=120"`
	Description      string            `json:"description" validate:"max=500"`
	IsActive         bool              `json:"is_active"`
	Priority         int               `json:"priority"`
	ApplyToPipelines []string          `json:"apply_to_pipelines" validate:"omitempty,dive,uuid4"`
	ApplyToSources   []string          `json:"apply_to_sources" validate:"omitempty,dive,oneof=meta whatsapp webhook form manual"`
	ActiveDays       []int             `json:"active_days" validate:"omitempty,dive,min=0,max=6"`
	ActiveHoursStart *string           `json:"active_hours_start,omitempty"`
	ActiveHoursEnd   *string           `json:"active_hours_end,omitempty"`
	Mode             string            `json:"mode" validate:"required,oneof=round_robin percentage least_loaded fixed weighted_random"`
	FixedUserID      *string           `json:"fixed_user_id,omitempty"`
	Members          []RuleMemberInput `json:"members" validate:"omitempty,dive"`
}

// RuleResult pairs a saved rule with the non-fatal configuration warnings
// the editor should surface.
type RuleResult struct {
	Rule     *types.DistributionRule `json:"rule"`
	Warnings []string                `json:"warnings,omitempty"`
}

// CreateRule validates and persists a new distribution rule.
func (s *Service) CreateRule(ctx context.Context, req SaveRuleRequest) (*RuleResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("validating rule: %w", err)
	}

	rule := ruleFromRequest(req)
	rule.ID = uuid.New().String()
	rule.RoundRobinCursor = -1
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("validating rule: %w", err)
	}
	if err := s.checkRuleMembers(ctx, rule); err != nil {
		return nil, err
	}

	if err := s.store.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("creating rule: %w", err)
	}

	s.logger.Info("rule created",
		"rule_id", rule.ID,
		"workspace_id", rule.WorkspaceID,
		"mode", rule.Mode,
		"priority", rule.Priority,
	)
	s.invalidateWorkspace(ctx, rule.WorkspaceID)
	return &RuleResult{Rule: rule, Warnings: rule.Warnings()}, nil
}

// UpdateRule replaces a rule's configuration. The round-robin cursor resets
// because the member list may have changed under it.
func (s *Service) UpdateRule(ctx context.Context, ruleID string, req SaveRuleRequest) (*RuleResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("validating rule: %w", err)
	}

	existing, err := s.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if existing == nil || existing.WorkspaceID != req.WorkspaceID {
		return nil, fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}

	rule := ruleFromRequest(req)
	rule.ID = ruleID
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()

	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("validating rule: %w", err)
	}
	if err := s.checkRuleMembers(ctx, rule); err != nil {
		return nil, err
	}

	if err := s.store.UpdateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("updating rule: %w", err)
	}

	s.logger.Info("rule updated", "rule_id", rule.ID, "workspace_id", rule.WorkspaceID)
	s.invalidateWorkspace(ctx, rule.WorkspaceID)
	return &RuleResult{Rule: rule, Warnings: rule.Warnings()}, nil
}

// DeleteRule removes a rule and its members. Past assignment records keep
// referencing the rule ID for audit.
func (s *Service) DeleteRule(ctx context.Context, workspaceID, ruleID string) error {
	existing, err := s.store.GetRule(ctx, ruleID)
	if err != nil {
		return err
	}
	if existing == nil || existing.WorkspaceID != workspaceID {
		return fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	if err := s.store.DeleteRule(ctx, ruleID); err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	s.logger.Info("rule deleted", "rule_id", ruleID, "workspace_id", workspaceID)
	s.invalidateWorkspace(ctx, workspaceID)
	return nil
}

// GetRule fetches one rule with its members and current warnings.
func (s *Service) GetRule(ctx context.Context, workspaceID, ruleID string) (*RuleResult, error) {
	rule, err := s.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if rule == nil || rule.WorkspaceID != workspaceID {
		return nil, fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	return &RuleResult{Rule: rule, Warnings: rule.Warnings()}, nil
}

// ListRules returns all of a workspace's rules, active and paused, in
// matching precedence order.
func (s *Service) ListRules(ctx context.Context, workspaceID string) ([]types.DistributionRule, error) {
	return s.store.ListRules(ctx, workspaceID)
}

// checkRuleMembers verifies every referenced user is an active workspace
// member, so a rule cannot be saved pointing at nobody.
func (s *Service) checkRuleMembers(ctx context.Context, rule *types.DistributionRule) error {
	members, err := s.store.ListActiveMembers(ctx, rule.WorkspaceID)
	if err != nil {
		return err
	}
	if rule.FixedUserID != nil && !memberExists(members, *rule.FixedUserID) {
		return fmt.Errorf("fixed user %s is not an active member: %w", *rule.FixedUserID, ErrNotFound)
	}
	for _, m := range rule.Members {
		if !memberExists(members, m.UserID) {
			return fmt.Errorf("user %s is not an active member: %w", m.UserID, ErrNotFound)
		}
	}
	return nil
}

func ruleFromRequest(req SaveRuleRequest) *types.DistributionRule {
	rule := &types.DistributionRule{
		WorkspaceID:      req.WorkspaceID,
		Name:             req.Name,
		Description:      req.Description,
		IsActive:         req.IsActive,
		Priority:         req.Priority,
		ApplyToPipelines: req.ApplyToPipelines,
		ActiveDays:       req.ActiveDays,
		ActiveHoursStart: req.ActiveHoursStart,
		ActiveHoursEnd:   req.ActiveHoursEnd,
		Mode:             types.DistributionMode(req.Mode),
		FixedUserID:      req.FixedUserID,
	}
	for _, src := range req.ApplyToSources {
		rule.ApplyToSources = append(rule.ApplyToSources, types.LeadSource(src))
	}
	for i, m := range req.Members {
		active := true
		if m.IsActive != nil {
			active = *m.IsActive
		}
		rule.Members = append(rule.Members, types.RuleMember{
			UserID:          m.UserID,
			Position:        i,
			Percentage:      m.Percentage,
			MaxLeadsPerDay:  m.MaxLeadsPerDay,
			MaxLeadsPerHour: m.MaxLeadsPerHour,
			MaxOpenLeads:    m.MaxOpenLeads,
			IsActive:        active,
		})
	}
	return rule
}
