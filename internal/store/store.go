// Package store provides database access for the lead router.
//
// # Design
//
// The store uses raw SQL with pgx. Conditional updates (assign-if-unassigned,
// cursor compare-and-swap) are expressed as single UPDATE statements whose
// RowsAffected result tells the caller whether it won the race.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendalink/leadrouter/pkg/types"
)

// Store provides database operations.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new store with the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewStoreFromURL creates a new store by connecting to the given database URL.
func NewStoreFromURL(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping tests database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool returns the underlying connection pool for advanced operations.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// =============================================================================
// WORKSPACES
// =============================================================================

// GetWorkspace retrieves a workspace by ID.
func (s *Store) GetWorkspace(ctx context.Context, id string) (*types.Workspace, error) {
	var w types.Workspace
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, timezone, created_at, updated_at
		FROM workspaces WHERE id = $1
	`, id).Scan(&w.ID, &w.Name, &w.Timezone, &w.CreatedAt, &w.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWorkspaceIDsWithUnassignedLeads returns IDs of workspaces that have at
// least one unassigned lead. Used by the pending retry worker.
func (s *Store) ListWorkspaceIDsWithUnassignedLeads(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT workspace_id FROM leads WHERE assigned_to IS NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// MEMBERS
// =============================================================================

// ListActiveMembers returns the workspace members eligible for assignment.
func (s *Store) ListActiveMembers(ctx context.Context, workspaceID string) ([]types.Member, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, workspace_id, name, role, is_active, created_at
		FROM workspace_members
		WHERE workspace_id = $1 AND is_active
		ORDER BY name
	`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []types.Member
	for rows.Next() {
		var m types.Member
		if err := rows.Scan(&m.UserID, &m.WorkspaceID, &m.Name, &m.Role, &m.IsActive, &m.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// =============================================================================
// PIPELINES
// =============================================================================

// GetPipeline retrieves a pipeline by ID.
func (s *Store) GetPipeline(ctx context.Context, id string) (*types.Pipeline, error) {
	var p types.Pipeline
	err := s.pool.QueryRow(ctx, `
		SELECT id, workspace_id, name, default_assignee_id, created_at, updated_at
		FROM pipelines WHERE id = $1
	`, id).Scan(&p.ID, &p.WorkspaceID, &p.Name, &p.DefaultAssigneeID, &p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// =============================================================================
// WORKSPACE API KEYS
// =============================================================================

// SetWorkspaceAPIKeyHash stores (or rotates) the bcrypt hash of a workspace's
// lead-intake API key.
func (s *Store) SetWorkspaceAPIKeyHash(ctx context.Context, workspaceID, hash string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workspace_api_keys (workspace_id, key_hash)
		VALUES ($1, $2)
		ON CONFLICT (workspace_id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash,
			rotated_at = NOW()
	`, workspaceID, hash)
	return err
}

// GetWorkspaceAPIKeyHash returns the stored key hash, or "" if none is set.
func (s *Store) GetWorkspaceAPIKeyHash(ctx context.Context, workspaceID string) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx, `
		SELECT key_hash FROM workspace_api_keys WHERE workspace_id = $1
	`, workspaceID).Scan(&hash)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}
