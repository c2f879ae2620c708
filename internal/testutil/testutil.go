// Package testutil provides testing utilities and fixtures for the lead router.
//
// Fixtures use functional options for customization:
//
//	rule := testutil.FixtureRule()
//	rule := testutil.FixtureRule(func(r *types.DistributionRule) {
//		r.Mode = types.ModeLeastLoaded
//		r.Priority = 10
//	})
package testutil

import (
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vendalink/leadrouter/pkg/types"
)

// NewTestLogger returns a logger that discards all output.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// IntPtr returns a pointer to v, for optional limit fields.
func IntPtr(v int) *int {
	return &v
}

// StrPtr returns a pointer to s.
func StrPtr(s string) *string {
	return &s
}

// =============================================================================
// WORKSPACE FIXTURES
// =============================================================================

// FixtureWorkspace creates a test workspace with sensible defaults.
func FixtureWorkspace(overrides ...func(*types.Workspace)) *types.Workspace {
	workspace := &types.Workspace{
		ID:        uuid.New().String(),
		Name:      "test-workspace",
		Timezone:  "UTC",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	for _, override := range overrides {
		override(workspace)
	}
	return workspace
}

// FixtureMember creates an active workspace member.
func FixtureMember(workspaceID string, overrides ...func(*types.Member)) *types.Member {
	member := &types.Member{
		UserID:      uuid.New().String(),
		WorkspaceID: workspaceID,
		Name:        "test-member-" + uuid.New().String()[:8],
		Role:        "agent",
		IsActive:    true,
		CreatedAt:   time.Now(),
	}
	for _, override := range overrides {
		override(member)
	}
	return member
}

// =============================================================================
// LEAD FIXTURES
// =============================================================================

// FixtureLead creates an unassigned webhook lead.
func FixtureLead(workspaceID, pipelineID string, overrides ...func(*types.Lead)) *types.Lead {
	lead := &types.Lead{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		PipelineID:  pipelineID,
		Name:        "Test Lead",
		Source:      types.SourceWebhook,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	for _, override := range overrides {
		override(lead)
	}
	return lead
}

// =============================================================================
// RULE FIXTURES
// =============================================================================

// FixtureRule creates an active round-robin rule with no filters and no
// members; add members with FixtureRuleMember.
func FixtureRule(workspaceID string, overrides ...func(*types.DistributionRule)) *types.DistributionRule {
	rule := &types.DistributionRule{
		ID:               uuid.New().String(),
		WorkspaceID:      workspaceID,
		Name:             "test-rule-" + uuid.New().String()[:8],
		IsActive:         true,
		Priority:         0,
		Mode:             types.ModeRoundRobin,
		RoundRobinCursor: -1,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	for _, override := range overrides {
		override(rule)
	}
	return rule
}

// FixtureRuleMember creates an active unlimited rule member.
func FixtureRuleMember(ruleID, userID string, overrides ...func(*types.RuleMember)) types.RuleMember {
	member := types.RuleMember{
		RuleID:   ruleID,
		UserID:   userID,
		IsActive: true,
	}
	for _, override := range overrides {
		override(&member)
	}
	return member
}
