package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vendalink/leadrouter/internal/config"
	"github.com/vendalink/leadrouter/internal/distribution"
	"github.com/vendalink/leadrouter/pkg/types"
)

// =============================================================================
// STATISTICS
// =============================================================================

// GetDistributionStats returns the workspace's trailing-24h assignment
// aggregates plus the size of the unassigned backlog. Results are cached
// briefly; the dashboard polls this.
func (s *Service) GetDistributionStats(ctx context.Context, workspaceID string) (*types.DistributionStats, error) {
	cacheKey := "ws:" + workspaceID + ":stats"
	if s.cache != nil {
		var cached types.DistributionStats
		if hit, err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	stats, err := s.store.GetDistributionStats(ctx, workspaceID, config.DayWindow)
	if err != nil {
		return nil, fmt.Errorf("loading stats: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey, stats, config.CacheTTLStats); err != nil {
			s.logger.Warn("caching stats failed", "workspace_id", workspaceID, "error", err)
		}
	}
	return stats, nil
}

// ListRecentAssignments returns the newest assignment records for a
// workspace, capped at limit.
func (s *Service) ListRecentAssignments(ctx context.Context, workspaceID string, limit int) ([]types.AssignmentRecord, error) {
	if limit <= 0 {
		limit = config.DefaultPaginationLimit
	}
	if limit > config.MaxPaginationLimit {
		limit = config.MaxPaginationLimit
	}

	cacheKey := fmt.Sprintf("ws:%s:assignments:%d", workspaceID, limit)
	if s.cache != nil {
		var cached []types.AssignmentRecord
		if hit, err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	records, err := s.store.ListRecentAssignments(ctx, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading assignments: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey, records, config.CacheTTLRecentAssignments); err != nil {
			s.logger.Warn("caching assignments failed", "workspace_id", workspaceID, "error", err)
		}
	}
	return records, nil
}

// GetMemberLoads returns each active member's current load snapshot, the
// same counts the allocator consults when enforcing per-member limits.
func (s *Service) GetMemberLoads(ctx context.Context, workspaceID string) ([]types.MemberLoad, error) {
	tracker := distribution.NewLoadTracker(s.store, workspaceID, time.Now())

	members, err := s.store.ListActiveMembers(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	loads := make([]types.MemberLoad, 0, len(members))
	for _, m := range members {
		open, err := tracker.OpenLeadCount(ctx, m.UserID)
		if err != nil {
			return nil, err
		}
		day, err := tracker.AssignedToday(ctx, m.UserID)
		if err != nil {
			return nil, err
		}
		hour, err := tracker.AssignedThisHour(ctx, m.UserID)
		if err != nil {
			return nil, err
		}
		loads = append(loads, types.MemberLoad{
			UserID:           m.UserID,
			OpenLeads:        open,
			AssignedToday:    day,
			AssignedThisHour: hour,
		})
	}
	return loads, nil
}
