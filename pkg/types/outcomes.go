package types

// =============================================================================
// DISTRIBUTION OUTCOMES
// =============================================================================

// OutcomeKind classifies the result of a single distribution attempt.
//
// Every kind except OutcomeAssigned leaves the lead unassigned; the kind is
// recorded on the lead so operators can see why (no matching rule vs.
// capacity exhausted) and re-trigger distribution.
type OutcomeKind string

const (
	// OutcomeAssigned - a member was selected and the write won.
	OutcomeAssigned OutcomeKind = "assigned"
	// OutcomeAlreadyAssigned - the lead had an assignee before we decided,
	// or a concurrent call won the conditional write. Not a failure.
	OutcomeAlreadyAssigned OutcomeKind = "already_assigned"
	// OutcomeNoRuleMatched - no active rule applies to the lead and the
	// pipeline has no default assignee. Expected and frequent.
	OutcomeNoRuleMatched OutcomeKind = "no_rule_matched"
	// OutcomeAllMembersAtCapacity - every eligible member is at a
	// throughput limit. Transient; retried by the pending worker.
	OutcomeAllMembersAtCapacity OutcomeKind = "all_members_at_capacity"
	// OutcomeNoEligibleMember - the matched rule's targets are invalid or
	// inactive. Indicates rule misconfiguration.
	OutcomeNoEligibleMember OutcomeKind = "no_eligible_member"
	// OutcomeConfigurationError - the rule itself is unusable (e.g. fixed
	// mode without a fixed user). Surfaced to the rule owner, not retried.
	OutcomeConfigurationError OutcomeKind = "configuration_error"
)

// AssignmentOutcome is the typed result of distributing a single lead.
type AssignmentOutcome struct {
	LeadID string      `json:"lead_id"`
	Kind   OutcomeKind `json:"kind"`

	// Set only when Kind == assigned.
	UserID string           `json:"user_id,omitempty"`
	RuleID string           `json:"rule_id,omitempty"`
	Mode   DistributionMode `json:"mode,omitempty"`
}

// Assigned reports whether the outcome placed the lead with a member.
func (o AssignmentOutcome) Assigned() bool {
	return o.Kind == OutcomeAssigned
}

// BatchOutcome aggregates a distributePending run over a workspace.
type BatchOutcome struct {
	WorkspaceID string `json:"workspace_id"`
	Processed   int    `json:"processed"`
	Assigned    int    `json:"assigned"`

	// ByKind counts every outcome kind seen, including errors isolated
	// per lead (keyed "error" since they carry no outcome kind).
	ByKind map[string]int `json:"by_kind"`
	ByMode map[string]int `json:"by_mode,omitempty"`
	ByUser map[string]int `json:"by_user,omitempty"`
}

// NewBatchOutcome returns an empty report for the workspace.
func NewBatchOutcome(workspaceID string) *BatchOutcome {
	return &BatchOutcome{
		WorkspaceID: workspaceID,
		ByKind:      make(map[string]int),
		ByMode:      make(map[string]int),
		ByUser:      make(map[string]int),
	}
}

// Record accumulates one lead's outcome into the report.
func (b *BatchOutcome) Record(o AssignmentOutcome) {
	b.Processed++
	b.ByKind[string(o.Kind)]++
	if o.Assigned() {
		b.Assigned++
		b.ByMode[string(o.Mode)]++
		b.ByUser[o.UserID]++
	}
}

// RecordError accumulates a per-lead failure that produced no outcome.
func (b *BatchOutcome) RecordError() {
	b.Processed++
	b.ByKind["error"]++
}
