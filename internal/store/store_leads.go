// Package store - Lead persistence and the conditional assignment write.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vendalink/leadrouter/internal/config"
	"github.com/vendalink/leadrouter/pkg/types"
)

const leadColumns = `
	id, workspace_id, pipeline_id, stage_id, name, phone, email, source,
	assigned_to, last_distribution_outcome, created_at, updated_at`

func scanLead(row pgx.Row) (*types.Lead, error) {
	var l types.Lead
	err := row.Scan(
		&l.ID, &l.WorkspaceID, &l.PipelineID, &l.StageID, &l.Name, &l.Phone,
		&l.Email, &l.Source, &l.AssignedTo, &l.LastDistributionOutcome,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateLead inserts a new lead.
func (s *Store) CreateLead(ctx context.Context, l *types.Lead) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO leads (id, workspace_id, pipeline_id, stage_id, name, phone, email, source, assigned_to, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`,
		l.ID, l.WorkspaceID, l.PipelineID, l.StageID, l.Name, l.Phone, l.Email,
		l.Source, l.AssignedTo, time.Now(),
	)
	return err
}

// GetLead retrieves a lead by ID.
func (s *Store) GetLead(ctx context.Context, id string) (*types.Lead, error) {
	return scanLead(s.pool.QueryRow(ctx, `
		SELECT `+leadColumns+` FROM leads WHERE id = $1
	`, id))
}

// ListUnassignedLeads returns the workspace's unassigned leads in creation
// order, capped at limit. This query defines the distributePending input set.
func (s *Store) ListUnassignedLeads(ctx context.Context, workspaceID string, limit int) ([]types.Lead, error) {
	if limit <= 0 {
		limit = config.DefaultBatchLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE workspace_id = $1 AND assigned_to IS NULL
		ORDER BY created_at
		LIMIT $2
	`, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []types.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, rows.Err()
}

// CountUnassignedLeads returns how many leads in the workspace await
// distribution.
func (s *Store) CountUnassignedLeads(ctx context.Context, workspaceID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM leads WHERE workspace_id = $1 AND assigned_to IS NULL
	`, workspaceID).Scan(&count)
	return count, err
}

// AssignLeadIfUnassigned sets assigned_to only if it is currently NULL.
//
// Returns false when the lead was already assigned (a concurrent call won);
// callers treat that as success-elsewhere, never as a failure.
func (s *Store) AssignLeadIfUnassigned(ctx context.Context, leadID, userID string) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE leads
		SET assigned_to = $2, last_distribution_outcome = '', updated_at = NOW()
		WHERE id = $1 AND assigned_to IS NULL
	`, leadID, userID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// SetLeadDistributionOutcome records why a lead is still unassigned, for
// operator diagnosability. Skips leads that gained an assignee in the
// meantime.
func (s *Store) SetLeadDistributionOutcome(ctx context.Context, leadID string, kind types.OutcomeKind) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE leads
		SET last_distribution_outcome = $2, updated_at = NOW()
		WHERE id = $1 AND assigned_to IS NULL
	`, leadID, string(kind))
	return err
}

// OpenLeadCounts returns, per user, how many of their leads are open: the
// lead's stage is missing or non-terminal. Users with no open leads are
// absent from the map.
func (s *Store) OpenLeadCounts(ctx context.Context, workspaceID string, userIDs []string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT l.assigned_to, COUNT(*)
		FROM leads l
		LEFT JOIN pipeline_stages ps ON ps.id = l.stage_id
		WHERE l.workspace_id = $1
		  AND l.assigned_to = ANY($2)
		  AND (ps.id IS NULL OR NOT ps.is_terminal)
		GROUP BY l.assigned_to
	`, workspaceID, userIDs)
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
