// Package types defines the core domain types shared across the lead router.
//
// # Design Principles
//
// 1. Simplicity: Types represent the domain model directly, no ORM abstractions
// 2. Serialization: All types are JSON-serializable for API transport
// 3. Immutability: Prefer value types; mutations create new instances
// 4. Validation: Types include Validate() methods for business rule enforcement
package types

import (
	"fmt"
	"time"
)

// =============================================================================
// WORKSPACE
// =============================================================================

// Workspace is a tenant of the CRM. Every rule, member, pipeline and lead
// belongs to exactly one workspace and distribution never crosses the boundary.
type Workspace struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Timezone is an IANA zone name (e.g. "America/Sao_Paulo") used to
	// evaluate day-of-week and hour-of-day rule filters. Empty means UTC.
	Timezone string `json:"timezone,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member is a workspace user eligible to receive leads.
//
// The member registry is authoritative and read-only from the distribution
// core's point of view: rules reference members by ID and stale references
// are dropped at allocation time, never treated as errors.
type Member struct {
	UserID      string    `json:"user_id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	Role        string    `json:"role,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline is an ordered sequence of stages a lead progresses through.
type Pipeline struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`

	// DefaultAssigneeID receives leads when no distribution rule matches
	// (or allocation fails). Nil means leads stay unassigned for retry.
	DefaultAssigneeID *string `json:"default_assignee_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PipelineStage is a named step within a pipeline.
//
// IsTerminal marks won/lost stages explicitly. A lead sitting in a
// non-terminal stage counts as "open" for load tracking; stage names are
// never string-matched to decide this.
type PipelineStage struct {
	ID         string    `json:"id"`
	PipelineID string    `json:"pipeline_id"`
	Name       string    `json:"name"`
	Position   int       `json:"position"`
	IsTerminal bool      `json:"is_terminal"`
	CreatedAt  time.Time `json:"created_at"`
}

// =============================================================================
// LEAD
// =============================================================================

// LeadSource identifies where a lead was ingested from.
type LeadSource string

const (
	SourceMeta     LeadSource = "meta"
	SourceWhatsApp LeadSource = "whatsapp"
	SourceWebhook  LeadSource = "webhook"
	SourceForm     LeadSource = "form"
	SourceManual   LeadSource = "manual"
)

// Lead is a prospective customer record moving through a pipeline.
type Lead struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspace_id"`
	PipelineID  string     `json:"pipeline_id"`
	StageID     *string    `json:"stage_id,omitempty"`
	Name        string     `json:"name"`
	Phone       string     `json:"phone,omitempty"`
	Email       string     `json:"email,omitempty"`
	Source      LeadSource `json:"source"`

	// AssignedTo is nil until distribution (or a manual override) sets it.
	AssignedTo *string `json:"assigned_to,omitempty"`

	// LastDistributionOutcome records why the most recent distribution
	// attempt left the lead unassigned, for operator diagnosability.
	// Cleared on successful assignment.
	LastDistributionOutcome string `json:"last_distribution_outcome,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks required lead fields before ingestion.
func (l *Lead) Validate() error {
	if l.WorkspaceID == "" {
		return fmt.Errorf("lead workspace_id is required")
	}
	if l.PipelineID == "" {
		return fmt.Errorf("lead pipeline_id is required")
	}
	if l.Source == "" {
		return fmt.Errorf("lead source is required")
	}
	return nil
}

// =============================================================================
// ASSIGNMENT RECORDS
// =============================================================================

// AssignmentRecord is the immutable audit row written once per successful
// assignment. All load-tracking and statistics reads aggregate over these.
type AssignmentRecord struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	LeadID      string `json:"lead_id"`
	UserID      string `json:"user_id"`

	// RuleID is empty for fallback and manual assignments.
	RuleID string           `json:"rule_id,omitempty"`
	Mode   DistributionMode `json:"mode"`

	AssignedAt time.Time `json:"assigned_at"`
}

// =============================================================================
// STATISTICS
// =============================================================================

// DistributionStats is the aggregate view the operator UI reads.
type DistributionStats struct {
	WorkspaceID string         `json:"workspace_id"`
	TotalToday  int            `json:"total_today"`
	ByMode      map[string]int `json:"by_mode"`
	ByUser      map[string]int `json:"by_user"`
	Unassigned  int            `json:"unassigned"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// MemberLoad is one member's current load snapshot.
type MemberLoad struct {
	UserID           string `json:"user_id"`
	OpenLeads        int    `json:"open_leads"`
	AssignedToday    int    `json:"assigned_today"`
	AssignedThisHour int    `json:"assigned_this_hour"`
}
