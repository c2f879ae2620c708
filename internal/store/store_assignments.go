// Package store - Assignment records and load/statistics aggregation.
package store

import (
	"context"
	"time"

	"github.com/vendalink/leadrouter/pkg/types"
)

// CreateAssignmentRecord appends one immutable audit row.
func (s *Store) CreateAssignmentRecord(ctx context.Context, a *types.AssignmentRecord) error {
	var ruleID *string
	if a.RuleID != "" {
		ruleID = &a.RuleID
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO assignment_records (id, workspace_id, lead_id, user_id, rule_id, mode, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.WorkspaceID, a.LeadID, a.UserID, ruleID, a.Mode, a.AssignedAt)
	return err
}

// AssignedCounts returns, per user, how many assignment records fall inside
// the rolling window ending at ref. Users with zero are absent from the map.
func (s *Store) AssignedCounts(ctx context.Context, workspaceID string, userIDs []string, ref time.Time, window time.Duration) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, COUNT(*)
		FROM assignment_records
		WHERE workspace_id = $1
		  AND user_id = ANY($2)
		  AND assigned_at > $3
		  AND assigned_at <= $4
		GROUP BY user_id
	`, workspaceID, userIDs, ref.Add(-window), ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var userID string
		var count int
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, err
		}
		counts[userID] = count
	}
	return counts, rows.Err()
}

// GetDistributionStats aggregates assignment records over the trailing day
// for the operator stats view.
func (s *Store) GetDistributionStats(ctx context.Context, workspaceID string, window time.Duration) (*types.DistributionStats, error) {
	stats := &types.DistributionStats{
		WorkspaceID: workspaceID,
		ByMode:      make(map[string]int),
		ByUser:      make(map[string]int),
		GeneratedAt: time.Now(),
	}
	since := stats.GeneratedAt.Add(-window)

	rows, err := s.pool.Query(ctx, `
		SELECT mode, user_id, COUNT(*)
		FROM assignment_records
		WHERE workspace_id = $1 AND assigned_at > $2
		GROUP BY mode, user_id
	`, workspaceID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var mode, userID string
		var count int
		if err := rows.Scan(&mode, &userID, &count); err != nil {
			return nil, err
		}
		stats.ByMode[mode] += count
		stats.ByUser[userID] += count
		stats.TotalToday += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	unassigned, err := s.CountUnassignedLeads(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	stats.Unassigned = unassigned
	return stats, nil
}

// ListRecentAssignments returns the newest assignment records for display.
func (s *Store) ListRecentAssignments(ctx context.Context, workspaceID string, limit int) ([]types.AssignmentRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workspace_id, lead_id, user_id, COALESCE(rule_id::text, ''), mode, assigned_at
		FROM assignment_records
		WHERE workspace_id = $1
		ORDER BY assigned_at DESC
		LIMIT $2
	`, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []types.AssignmentRecord
	for rows.Next() {
		var a types.AssignmentRecord
		if err := rows.Scan(&a.ID, &a.WorkspaceID, &a.LeadID, &a.UserID, &a.RuleID, &a.Mode, &a.AssignedAt); err != nil {
			return nil, err
		}
		records = append(records, a)
	}
	return records, rows.Err()
}
