package distribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vendalink/leadrouter/internal/metrics"
	"github.com/vendalink/leadrouter/pkg/types"
)

// Distributor is the distribution entry point: it matches an incoming lead
// against the workspace's rules, allocates a member, persists the
// assignment conditionally, and records statistics.
type Distributor struct {
	store      Store
	matcher    *Matcher
	allocator  *Allocator
	metrics    *metrics.Metrics
	logger     *slog.Logger
	batchLimit int
}

// NewDistributor creates a distributor. The metrics argument may be nil in
// tests; counters are then skipped.
func NewDistributor(store Store, m *metrics.Metrics, batchLimit int, logger *slog.Logger) *Distributor {
	return &Distributor{
		store:      store,
		matcher:    NewMatcher(logger),
		allocator:  NewAllocator(store, logger),
		metrics:    m,
		logger:     logger.With("component", "distributor"),
		batchLimit: batchLimit,
	}
}

// workspaceEnv caches per-workspace reads for one distribution pass so a
// batch does not re-fetch rules and members per lead. The tracker carries
// in-pass assignment effects forward.
type workspaceEnv struct {
	workspace *types.Workspace
	rules     []types.DistributionRule
	registry  map[string]bool
	tracker   *LoadTracker
}

func (d *Distributor) loadEnv(ctx context.Context, workspaceID string) (*workspaceEnv, error) {
	workspace, err := d.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("loading workspace: %w", err)
	}
	if workspace == nil {
		return nil, fmt.Errorf("workspace not found: %s", workspaceID)
	}

	rules, err := d.store.ListActiveRules(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}

	members, err := d.store.ListActiveMembers(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("loading members: %w", err)
	}
	registry := make(map[string]bool, len(members))
	userIDs := make([]string, 0, len(members))
	for _, m := range members {
		registry[m.UserID] = true
		userIDs = append(userIDs, m.UserID)
	}

	// Snapshot load counts before any assignment in this pass, so in-pass
	// notes are never double counted against refreshed aggregates.
	tracker := NewLoadTracker(d.store, workspaceID, time.Now())
	if len(userIDs) > 0 {
		if err := tracker.Prime(ctx, userIDs); err != nil {
			return nil, err
		}
	}

	return &workspaceEnv{
		workspace: workspace,
		rules:     rules,
		registry:  registry,
		tracker:   tracker,
	}, nil
}

// DistributeOne distributes a single lead. Calling it on an already-assigned
// lead is a no-op reported as already_assigned. Expected conditions (no rule
// matched, capacity exhausted) come back as typed outcomes, never errors.
func (d *Distributor) DistributeOne(ctx context.Context, lead *types.Lead) (types.AssignmentOutcome, error) {
	if lead.AssignedTo != nil {
		return types.AssignmentOutcome{LeadID: lead.ID, Kind: types.OutcomeAlreadyAssigned}, nil
	}

	env, err := d.loadEnv(ctx, lead.WorkspaceID)
	if err != nil {
		return types.AssignmentOutcome{}, err
	}
	return d.distributeInEnv(ctx, lead, env)
}

// DistributePending distributes every unassigned lead in the workspace in
// creation order. A failure on one lead does not abort the rest; errors are
// counted in the report and logged.
func (d *Distributor) DistributePending(ctx context.Context, workspaceID string) (*types.BatchOutcome, error) {
	if d.metrics != nil {
		d.metrics.BatchRuns.Inc()
	}

	leads, err := d.store.ListUnassignedLeads(ctx, workspaceID, d.batchLimit)
	if err != nil {
		return nil, fmt.Errorf("listing unassigned leads: %w", err)
	}

	report := types.NewBatchOutcome(workspaceID)
	if len(leads) == 0 {
		return report, nil
	}

	env, err := d.loadEnv(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	for i := range leads {
		outcome, err := d.distributeInEnv(ctx, &leads[i], env)
		if err != nil {
			d.logger.Error("lead distribution failed",
				"workspace_id", workspaceID,
				"lead_id", leads[i].ID,
				"error", err,
			)
			report.RecordError()
			continue
		}
		report.Record(outcome)
	}

	d.logger.Info("pending distribution complete",
		"workspace_id", workspaceID,
		"processed", report.Processed,
		"assigned", report.Assigned,
	)
	return report, nil
}

func (d *Distributor) distributeInEnv(ctx context.Context, lead *types.Lead, env *workspaceEnv) (types.AssignmentOutcome, error) {
	started := time.Now()
	outcome, err := d.decide(ctx, lead, env)
	if err != nil {
		return outcome, err
	}
	if d.metrics != nil {
		d.metrics.ObserveOutcome(string(outcome.Kind), string(outcome.Mode), time.Since(started))
	}
	return outcome, nil
}

func (d *Distributor) decide(ctx context.Context, lead *types.Lead, env *workspaceEnv) (types.AssignmentOutcome, error) {
	rule := d.matcher.Match(lead, env.workspace, env.rules)
	if rule == nil {
		return d.fallback(ctx, lead, env, types.OutcomeNoRuleMatched)
	}

	userID, err := d.allocator.Allocate(ctx, rule, env.registry, env.tracker)
	switch {
	case err == nil:
		return d.finalize(ctx, lead, env, userID, rule.ID, rule.Mode)
	case errors.Is(err, ErrConfiguration):
		// Misconfigured rule: surfaced against the rule, not retried via
		// fallback, so the owner notices and fixes it.
		d.logger.Warn("rule misconfigured",
			"rule_id", rule.ID,
			"workspace_id", lead.WorkspaceID,
			"error", err,
		)
		return d.markUnassigned(ctx, lead, types.OutcomeConfigurationError)
	case errors.Is(err, ErrNoEligibleMember):
		d.logger.Warn("rule has no eligible member",
			"rule_id", rule.ID,
			"workspace_id", lead.WorkspaceID,
		)
		return d.fallback(ctx, lead, env, types.OutcomeNoEligibleMember)
	case errors.Is(err, ErrAllMembersAtCapacity):
		return d.fallback(ctx, lead, env, types.OutcomeAllMembersAtCapacity)
	default:
		return types.AssignmentOutcome{}, fmt.Errorf("allocating lead %s: %w", lead.ID, err)
	}
}

// fallback assigns to the pipeline's default assignee if one is configured;
// otherwise the lead stays unassigned with the triggering kind recorded.
func (d *Distributor) fallback(ctx context.Context, lead *types.Lead, env *workspaceEnv, kind types.OutcomeKind) (types.AssignmentOutcome, error) {
	pipeline, err := d.store.GetPipeline(ctx, lead.PipelineID)
	if err != nil {
		return types.AssignmentOutcome{}, fmt.Errorf("loading pipeline: %w", err)
	}
	if pipeline != nil && pipeline.DefaultAssigneeID != nil && *pipeline.DefaultAssigneeID != "" {
		return d.finalize(ctx, lead, env, *pipeline.DefaultAssigneeID, "", types.ModeFallback)
	}
	return d.markUnassigned(ctx, lead, kind)
}

// finalize performs the conditional write and, when it wins, the audit
// record and in-pass load note. Losing the write means another call
// assigned the lead concurrently; that is success-elsewhere.
func (d *Distributor) finalize(ctx context.Context, lead *types.Lead, env *workspaceEnv, userID, ruleID string, mode types.DistributionMode) (types.AssignmentOutcome, error) {
	won, err := d.store.AssignLeadIfUnassigned(ctx, lead.ID, userID)
	if err != nil {
		return types.AssignmentOutcome{}, fmt.Errorf("assigning lead %s: %w", lead.ID, err)
	}
	if !won {
		return types.AssignmentOutcome{LeadID: lead.ID, Kind: types.OutcomeAlreadyAssigned}, nil
	}

	record := &types.AssignmentRecord{
		ID:          uuid.New().String(),
		WorkspaceID: lead.WorkspaceID,
		LeadID:      lead.ID,
		UserID:      userID,
		RuleID:      ruleID,
		Mode:        mode,
		AssignedAt:  time.Now(),
	}
	if err := d.store.CreateAssignmentRecord(ctx, record); err != nil {
		return types.AssignmentOutcome{}, fmt.Errorf("recording assignment: %w", err)
	}

	env.tracker.Note(userID)
	lead.AssignedTo = &userID

	d.logger.Debug("lead assigned",
		"lead_id", lead.ID,
		"user_id", userID,
		"rule_id", ruleID,
		"mode", mode,
	)

	return types.AssignmentOutcome{
		LeadID: lead.ID,
		Kind:   types.OutcomeAssigned,
		UserID: userID,
		RuleID: ruleID,
		Mode:   mode,
	}, nil
}

func (d *Distributor) markUnassigned(ctx context.Context, lead *types.Lead, kind types.OutcomeKind) (types.AssignmentOutcome, error) {
	if err := d.store.SetLeadDistributionOutcome(ctx, lead.ID, kind); err != nil {
		return types.AssignmentOutcome{}, fmt.Errorf("recording distribution outcome: %w", err)
	}
	return types.AssignmentOutcome{LeadID: lead.ID, Kind: kind}, nil
}
