// Package store - Distribution rule persistence.
//
// A rule owns its rule_members rows (cascade delete) and its round-robin
// cursor. Updates rewrite the member list wholesale inside a transaction.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vendalink/leadrouter/pkg/types"
)

const ruleColumns = `
	id, workspace_id, name, description, is_active, priority,
	apply_to_pipelines, apply_to_sources, active_days,
	active_hours_start, active_hours_end, mode, fixed_user_id, rr_cursor,
	created_at, updated_at`

func scanRule(row pgx.Row) (*types.DistributionRule, error) {
	var r types.DistributionRule
	var pipelinesJSON, sourcesJSON, daysJSON []byte
	err := row.Scan(
		&r.ID, &r.WorkspaceID, &r.Name, &r.Description, &r.IsActive, &r.Priority,
		&pipelinesJSON, &sourcesJSON, &daysJSON,
		&r.ActiveHoursStart, &r.ActiveHoursEnd, &r.Mode, &r.FixedUserID,
		&r.RoundRobinCursor, &r.CreatedAt, &r.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	json.Unmarshal(pipelinesJSON, &r.ApplyToPipelines)
	json.Unmarshal(sourcesJSON, &r.ApplyToSources)
	json.Unmarshal(daysJSON, &r.ActiveDays)
	return &r, nil
}

// CreateRule inserts a rule and its members in one transaction.
func (s *Store) CreateRule(ctx context.Context, r *types.DistributionRule) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	pipelinesJSON, _ := json.Marshal(r.ApplyToPipelines)
	sourcesJSON, _ := json.Marshal(r.ApplyToSources)
	daysJSON, _ := json.Marshal(r.ActiveDays)

	now := time.Now()
	_, err = tx.Exec(ctx, `
		INSERT INTO distribution_rules (
			id, workspace_id, name, description, is_active, priority,
			apply_to_pipelines, apply_to_sources, active_days,
			active_hours_start, active_hours_end, mode, fixed_user_id,
			rr_cursor, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, -1, $14, $14)
	`,
		r.ID, r.WorkspaceID, r.Name, r.Description, r.IsActive, r.Priority,
		pipelinesJSON, sourcesJSON, daysJSON,
		r.ActiveHoursStart, r.ActiveHoursEnd, r.Mode, r.FixedUserID, now,
	)
	if err != nil {
		return err
	}

	if err := insertRuleMembers(ctx, tx, r.ID, r.Members); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// UpdateRule rewrites a rule and its member list in one transaction.
// The round-robin cursor is reset because member positions may have changed.
func (s *Store) UpdateRule(ctx context.Context, r *types.DistributionRule) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	pipelinesJSON, _ := json.Marshal(r.ApplyToPipelines)
	sourcesJSON, _ := json.Marshal(r.ApplyToSources)
	daysJSON, _ := json.Marshal(r.ActiveDays)

	result, err := tx.Exec(ctx, `
		UPDATE distribution_rules SET
			name = $2,
			description = $3,
			is_active = $4,
			priority = $5,
			apply_to_pipelines = $6,
			apply_to_sources = $7,
			active_days = $8,
			active_hours_start = $9,
			active_hours_end = $10,
			mode = $11,
			fixed_user_id = $12,
			rr_cursor = -1,
			updated_at = NOW()
		WHERE id = $1
	`,
		r.ID, r.Name, r.Description, r.IsActive, r.Priority,
		pipelinesJSON, sourcesJSON, daysJSON,
		r.ActiveHoursStart, r.ActiveHoursEnd, r.Mode, r.FixedUserID,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("rule not found: %s", r.ID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM rule_members WHERE rule_id = $1`, r.ID); err != nil {
		return err
	}
	if err := insertRuleMembers(ctx, tx, r.ID, r.Members); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func insertRuleMembers(ctx context.Context, tx pgx.Tx, ruleID string, members []types.RuleMember) error {
	for i, m := range members {
		_, err := tx.Exec(ctx, `
			INSERT INTO rule_members (rule_id, user_id, position, percentage, max_leads_per_day, max_leads_per_hour, max_open_leads, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, ruleID, m.UserID, i, m.Percentage, m.MaxLeadsPerDay, m.MaxLeadsPerHour, m.MaxOpenLeads, m.IsActive)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteRule removes a rule; its members and cursor go with it (cascade).
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM distribution_rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("rule not found: %s", id)
	}
	return nil
}

// GetRule retrieves a rule with its members.
func (s *Store) GetRule(ctx context.Context, id string) (*types.DistributionRule, error) {
	r, err := scanRule(s.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+` FROM distribution_rules WHERE id = $1
	`, id))
	if err != nil || r == nil {
		return r, err
	}
	if err := s.loadRuleMembers(ctx, []*types.DistributionRule{r}); err != nil {
		return nil, err
	}
	return r, nil
}

// ListRules returns all rules in a workspace, highest priority first.
func (s *Store) ListRules(ctx context.Context, workspaceID string) ([]types.DistributionRule, error) {
	return s.listRules(ctx, workspaceID, false)
}

// ListActiveRules returns the active rules in a workspace ordered by
// priority DESC then updated_at DESC - the matcher's candidate order.
func (s *Store) ListActiveRules(ctx context.Context, workspaceID string) ([]types.DistributionRule, error) {
	return s.listRules(ctx, workspaceID, true)
}

func (s *Store) listRules(ctx context.Context, workspaceID string, activeOnly bool) ([]types.DistributionRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM distribution_rules WHERE workspace_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY priority DESC, updated_at DESC`

	rows, err := s.pool.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []types.DistributionRule
	var refs []*types.DistributionRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range rules {
		refs = append(refs, &rules[i])
	}
	if err := s.loadRuleMembers(ctx, refs); err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *Store) loadRuleMembers(ctx context.Context, rules []*types.DistributionRule) error {
	if len(rules) == 0 {
		return nil
	}
	byID := make(map[string]*types.DistributionRule, len(rules))
	ids := make([]string, 0, len(rules))
	for _, r := range rules {
		byID[r.ID] = r
		ids = append(ids, r.ID)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT rule_id, user_id, position, percentage, max_leads_per_day, max_leads_per_hour, max_open_leads, is_active
		FROM rule_members
		WHERE rule_id = ANY($1)
		ORDER BY rule_id, position
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var m types.RuleMember
		if err := rows.Scan(&m.RuleID, &m.UserID, &m.Position, &m.Percentage,
			&m.MaxLeadsPerDay, &m.MaxLeadsPerHour, &m.MaxOpenLeads, &m.IsActive); err != nil {
			return err
		}
		if r, ok := byID[m.RuleID]; ok {
			r.Members = append(r.Members, m)
		}
	}
	return rows.Err()
}

// AdvanceRuleCursor moves the round-robin cursor from one value to another
// with a compare-and-swap. Returns false if a concurrent allocation advanced
// it first; the cursor is never corrupted, only occasionally skipped, which
// the design tolerates as best-effort fairness.
func (s *Store) AdvanceRuleCursor(ctx context.Context, ruleID string, from, to int) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE distribution_rules SET rr_cursor = $3
		WHERE id = $1 AND rr_cursor = $2
	`, ruleID, from, to)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}
