package distribution

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/vendalink/leadrouter/pkg/types"
)

// Allocator picks exactly one member for a matched rule according to the
// rule's distribution mode, respecting per-member limits.
//
// Allocation is side-effect-free except for the round-robin cursor advance,
// which happens only on a successful pick.
type Allocator struct {
	store  Store
	logger *slog.Logger

	// rand returns a value in [0,1); injectable for deterministic tests.
	rand func() float64
}

// NewAllocator creates an allocator.
func NewAllocator(store Store, logger *slog.Logger) *Allocator {
	return &Allocator{
		store:  store,
		logger: logger.With("component", "allocator"),
		rand:   rand.Float64,
	}
}

// Allocate picks a member for the rule. The registry is the workspace's
// authoritative set of active member user IDs; rule members outside it are
// silently dropped as stale references.
func (a *Allocator) Allocate(ctx context.Context, rule *types.DistributionRule, registry map[string]bool, tracker *LoadTracker) (string, error) {
	switch rule.Mode {
	case types.ModeFixed:
		return a.allocateFixed(ctx, rule, registry, tracker)
	case types.ModeRoundRobin:
		return a.allocateRoundRobin(ctx, rule, registry, tracker)
	case types.ModePercentage, types.ModeWeightedRandom:
		return a.allocateWeighted(ctx, rule, registry, tracker)
	case types.ModeLeastLoaded:
		return a.allocateLeastLoaded(ctx, rule, registry, tracker)
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrConfiguration, rule.Mode)
	}
}

// eligibleMembers returns the rule's active members that are still present
// in the workspace registry, in configured order.
func eligibleMembers(rule *types.DistributionRule, registry map[string]bool) []types.RuleMember {
	var eligible []types.RuleMember
	for _, m := range rule.ActiveMembers() {
		if registry[m.UserID] {
			eligible = append(eligible, m)
		}
	}
	return eligible
}

// underCap checks the member's day/hour/open limits against current load.
// A member with no limits set is always eligible on the capacity dimension.
func (a *Allocator) underCap(ctx context.Context, tracker *LoadTracker, m types.RuleMember) (bool, error) {
	if m.MaxOpenLeads != nil {
		open, err := tracker.OpenLeadCount(ctx, m.UserID)
		if err != nil {
			return false, err
		}
		if open >= *m.MaxOpenLeads {
			return false, nil
		}
	}
	if m.MaxLeadsPerDay != nil {
		day, err := tracker.AssignedToday(ctx, m.UserID)
		if err != nil {
			return false, err
		}
		if day >= *m.MaxLeadsPerDay {
			return false, nil
		}
	}
	if m.MaxLeadsPerHour != nil {
		hour, err := tracker.AssignedThisHour(ctx, m.UserID)
		if err != nil {
			return false, err
		}
		if hour >= *m.MaxLeadsPerHour {
			return false, nil
		}
	}
	return true, nil
}

func (a *Allocator) allocateFixed(ctx context.Context, rule *types.DistributionRule, registry map[string]bool, tracker *LoadTracker) (string, error) {
	if rule.FixedUserID == nil || *rule.FixedUserID == "" {
		return "", fmt.Errorf("%w: fixed mode without fixed_user_id", ErrConfiguration)
	}
	userID := *rule.FixedUserID
	if !registry[userID] {
		return "", ErrNoEligibleMember
	}
	// Limits apply only if the fixed user also appears in the member list.
	for _, m := range rule.Members {
		if m.UserID != userID {
			continue
		}
		ok, err := a.underCap(ctx, tracker, m)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ErrNoEligibleMember
		}
		break
	}
	return userID, nil
}

func (a *Allocator) allocateRoundRobin(ctx context.Context, rule *types.DistributionRule, registry map[string]bool, tracker *LoadTracker) (string, error) {
	eligible := eligibleMembers(rule, registry)
	n := len(eligible)
	if n == 0 {
		return "", ErrNoEligibleMember
	}

	cursor := rule.RoundRobinCursor
	start := ((cursor+1)%n + n) % n

	// Scan forward at most one full cycle for a member under its caps.
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		ok, err := a.underCap(ctx, tracker, eligible[idx])
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}

		// Advance the cursor to the position actually chosen. Losing the
		// compare-and-swap to a concurrent allocation is tolerated; the
		// winner's value stands and fairness stays best-effort.
		advanced, err := a.store.AdvanceRuleCursor(ctx, rule.ID, cursor, idx)
		if err != nil {
			return "", fmt.Errorf("advancing round-robin cursor: %w", err)
		}
		if advanced {
			// Keep the in-memory rule current so later picks in the same
			// pass continue the rotation instead of re-reading the store.
			rule.RoundRobinCursor = idx
		} else {
			a.logger.Debug("round-robin cursor race lost",
				"rule_id", rule.ID, "from", cursor, "to", idx)
		}
		return eligible[idx].UserID, nil
	}
	return "", ErrAllMembersAtCapacity
}

func (a *Allocator) allocateWeighted(ctx context.Context, rule *types.DistributionRule, registry map[string]bool, tracker *LoadTracker) (string, error) {
	eligible := eligibleMembers(rule, registry)
	if len(eligible) == 0 {
		if rule.Mode == types.ModePercentage {
			return "", fmt.Errorf("%w: percentage rule has no eligible members", ErrConfiguration)
		}
		return "", ErrNoEligibleMember
	}

	// Restrict to members under capacity, then normalize over the actual
	// weight sum so misconfigured totals degrade instead of erroring.
	var candidates []types.RuleMember
	sum := 0
	for _, m := range eligible {
		ok, err := a.underCap(ctx, tracker, m)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		candidates = append(candidates, m)
		sum += m.Percentage
	}
	if len(candidates) == 0 {
		return "", ErrAllMembersAtCapacity
	}
	if sum <= 0 {
		// All-zero weights degrade to a uniform draw.
		return candidates[int(a.rand()*float64(len(candidates)))].UserID, nil
	}

	r := a.rand() * float64(sum)
	cumulative := 0.0
	for _, m := range candidates {
		cumulative += float64(m.Percentage)
		if r < cumulative {
			return m.UserID, nil
		}
	}
	// Floating-point edge: fall through to the last candidate.
	return candidates[len(candidates)-1].UserID, nil
}

func (a *Allocator) allocateLeastLoaded(ctx context.Context, rule *types.DistributionRule, registry map[string]bool, tracker *LoadTracker) (string, error) {
	eligible := eligibleMembers(rule, registry)
	if len(eligible) == 0 {
		return "", ErrNoEligibleMember
	}

	best := ""
	bestOpen := 0
	for _, m := range eligible {
		ok, err := a.underCap(ctx, tracker, m)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		open, err := tracker.OpenLeadCount(ctx, m.UserID)
		if err != nil {
			return "", err
		}
		// Strict < keeps ties on the first-listed member for determinism.
		if best == "" || open < bestOpen {
			best = m.UserID
			bestOpen = open
		}
	}
	if best == "" {
		return "", ErrAllMembersAtCapacity
	}
	return best, nil
}
