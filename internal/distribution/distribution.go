// Package distribution implements the automatic lead distribution engine:
// rule matching, member allocation, load tracking and orchestration.
//
// # Design
//
// The engine is storage-agnostic: it depends on the narrow Store interface
// below, implemented by internal/store in production and by in-memory mocks
// in tests. All state is derived fresh from the store on each call except
// the round-robin cursor, which is advanced through an atomic
// compare-and-swap exposed by the store.
//
// Expected conditions (no rule matched, everyone at capacity) are typed
// outcomes, not errors; only storage failures and malformed data propagate
// as errors.
package distribution

import (
	"context"
	"errors"
	"time"

	"github.com/vendalink/leadrouter/pkg/types"
)

// Allocation failures. These are expected operational conditions, reported
// as typed outcomes by the distributor rather than surfaced to callers.
var (
	// ErrNoEligibleMember - the rule's configured targets are invalid or
	// inactive.
	ErrNoEligibleMember = errors.New("no eligible member")

	// ErrAllMembersAtCapacity - every eligible member has hit a
	// day/hour/open-lead limit.
	ErrAllMembersAtCapacity = errors.New("all members at capacity")

	// ErrConfiguration - the rule cannot be evaluated at all (e.g. fixed
	// mode without a fixed user).
	ErrConfiguration = errors.New("rule misconfigured")
)

// Store is the persistence surface the engine needs.
type Store interface {
	GetWorkspace(ctx context.Context, id string) (*types.Workspace, error)
	GetPipeline(ctx context.Context, id string) (*types.Pipeline, error)
	ListActiveMembers(ctx context.Context, workspaceID string) ([]types.Member, error)
	ListActiveRules(ctx context.Context, workspaceID string) ([]types.DistributionRule, error)

	GetLead(ctx context.Context, id string) (*types.Lead, error)
	ListUnassignedLeads(ctx context.Context, workspaceID string, limit int) ([]types.Lead, error)

	// AssignLeadIfUnassigned is the conditional write: it must only apply
	// when assigned_to is currently null and report whether it did.
	AssignLeadIfUnassigned(ctx context.Context, leadID, userID string) (bool, error)
	SetLeadDistributionOutcome(ctx context.Context, leadID string, kind types.OutcomeKind) error
	CreateAssignmentRecord(ctx context.Context, a *types.AssignmentRecord) error

	// AdvanceRuleCursor atomically moves a rule's round-robin cursor;
	// losing the race is acceptable and must not be retried.
	AdvanceRuleCursor(ctx context.Context, ruleID string, from, to int) (bool, error)

	OpenLeadCounts(ctx context.Context, workspaceID string, userIDs []string) (map[string]int, error)
	AssignedCounts(ctx context.Context, workspaceID string, userIDs []string, ref time.Time, window time.Duration) (map[string]int, error)
}
