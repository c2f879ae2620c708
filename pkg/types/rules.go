package types

import (
	"fmt"
	"time"
)

// =============================================================================
// DISTRIBUTION RULES
// =============================================================================

// DistributionMode selects how the allocator picks a member for a matched rule.
type DistributionMode string

const (
	// ModeRoundRobin cycles through active members via a persistent cursor.
	ModeRoundRobin DistributionMode = "round_robin"
	// ModePercentage draws a member from percentages that should sum to 100.
	ModePercentage DistributionMode = "percentage"
	// ModeLeastLoaded picks the member with the fewest open leads.
	ModeLeastLoaded DistributionMode = "least_loaded"
	// ModeFixed always targets a single configured user.
	ModeFixed DistributionMode = "fixed"
	// ModeWeightedRandom draws from relative weights (any positive sum).
	ModeWeightedRandom DistributionMode = "weighted_random"

	// ModeFallback marks assignments made via the pipeline default assignee.
	ModeFallback DistributionMode = "fallback"
	// ModeManual marks assignments made by an operator override.
	ModeManual DistributionMode = "manual"
)

// Valid reports whether the mode is one an operator can configure on a rule.
func (m DistributionMode) Valid() bool {
	switch m {
	case ModeRoundRobin, ModePercentage, ModeLeastLoaded, ModeFixed, ModeWeightedRandom:
		return true
	}
	return false
}

// DistributionRule is a configured policy selecting which member(s) receive
// newly unassigned leads, when, and how.
//
// Filter dimensions that are empty act as wildcards. Among active matching
// rules the highest Priority wins; ties prefer the most recently updated rule.
type DistributionRule struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active"`
	Priority    int    `json:"priority"`

	// Applicability filters. Empty slice/nil = matches anything.
	ApplyToPipelines []string     `json:"apply_to_pipelines,omitempty"`
	ApplyToSources   []LeadSource `json:"apply_to_sources,omitempty"`

	// ActiveDays holds weekdays 0 (Sunday) through 6 (Saturday).
	ActiveDays []int `json:"active_days,omitempty"`

	// ActiveHoursStart/End bound the workspace-local time of day, in
	// "HH:MM" form. The window may wrap midnight (e.g. 22:00-06:00).
	// The hour filter applies only when both bounds are set.
	ActiveHoursStart *string `json:"active_hours_start,omitempty"`
	ActiveHoursEnd   *string `json:"active_hours_end,omitempty"`

	Mode DistributionMode `json:"mode"`

	// FixedUserID is required when Mode == fixed and ignored otherwise.
	FixedUserID *string `json:"fixed_user_id,omitempty"`

	// Members is the ordered target list; meaningless when Mode == fixed.
	Members []RuleMember `json:"members,omitempty"`

	// RoundRobinCursor is the index of the last member assigned by this
	// rule. Persisted and advanced via compare-and-swap; only meaningful
	// for round_robin rules.
	RoundRobinCursor int `json:"round_robin_cursor"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RuleMember is one target of a distribution rule, with an optional weight
// and per-member throughput limits. Nil limits mean unlimited.
type RuleMember struct {
	RuleID   string `json:"rule_id"`
	UserID   string `json:"user_id"`
	Position int    `json:"position"`

	// Percentage is read as a percent for percentage mode and as a
	// relative weight for weighted_random mode.
	Percentage int `json:"percentage"`

	MaxLeadsPerDay  *int `json:"max_leads_per_day,omitempty"`
	MaxLeadsPerHour *int `json:"max_leads_per_hour,omitempty"`
	MaxOpenLeads    *int `json:"max_open_leads,omitempty"`

	// IsActive pauses a member without removing them from the rule.
	IsActive bool `json:"is_active"`
}

// ActiveMembers returns the rule's members with IsActive set, in list order.
func (r *DistributionRule) ActiveMembers() []RuleMember {
	var active []RuleMember
	for _, m := range r.Members {
		if m.IsActive {
			active = append(active, m)
		}
	}
	return active
}

// Validate enforces the structural invariants a rule must satisfy before it
// can be saved. Percentage-sum problems are reported separately as warnings
// (see Warnings) because the allocator normalizes at use time.
func (r *DistributionRule) Validate() error {
	if r.WorkspaceID == "" {
		return fmt.Errorf("rule workspace_id is required")
	}
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("invalid distribution mode %q", r.Mode)
	}
	if r.Mode == ModeFixed {
		if r.FixedUserID == nil || *r.FixedUserID == "" {
			return fmt.Errorf("fixed mode requires fixed_user_id")
		}
	} else if len(r.Members) == 0 {
		return fmt.Errorf("%s mode requires at least one member", r.Mode)
	}
	for _, m := range r.Members {
		if m.UserID == "" {
			return fmt.Errorf("rule member user_id is required")
		}
		if m.Percentage < 0 || m.Percentage > 100 {
			return fmt.Errorf("rule member percentage must be 0-100, got %d", m.Percentage)
		}
		for _, limit := range []*int{m.MaxLeadsPerDay, m.MaxLeadsPerHour, m.MaxOpenLeads} {
			if limit != nil && *limit < 0 {
				return fmt.Errorf("rule member limits must be non-negative")
			}
		}
	}
	if err := validateHourBounds(r.ActiveHoursStart, r.ActiveHoursEnd); err != nil {
		return err
	}
	for _, d := range r.ActiveDays {
		if d < 0 || d > 6 {
			return fmt.Errorf("active day must be 0-6, got %d", d)
		}
	}
	return nil
}

// Warnings returns non-fatal configuration concerns the rule editor should
// surface: the allocator degrades gracefully but the operator likely made a
// mistake.
func (r *DistributionRule) Warnings() []string {
	var warnings []string
	if r.Mode == ModePercentage {
		sum := 0
		for _, m := range r.ActiveMembers() {
			sum += m.Percentage
		}
		if sum != 100 {
			warnings = append(warnings,
				fmt.Sprintf("active member percentages sum to %d, expected 100; values are normalized at distribution time", sum))
		}
	}
	if r.Mode != ModeFixed && len(r.ActiveMembers()) == 0 {
		warnings = append(warnings, "rule has no active members and cannot assign leads")
	}
	return warnings
}

func validateHourBounds(start, end *string) error {
	if (start == nil) != (end == nil) {
		return fmt.Errorf("active_hours_start and active_hours_end must be set together")
	}
	for _, v := range []*string{start, end} {
		if v == nil {
			continue
		}
		if _, err := ParseTimeOfDay(*v); err != nil {
			return err
		}
	}
	return nil
}

// ParseTimeOfDay parses "HH:MM" into minutes since midnight.
func ParseTimeOfDay(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return h*60 + m, nil
}
