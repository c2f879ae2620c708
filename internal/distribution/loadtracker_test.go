package distribution

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vendalink/leadrouter/internal/testutil"
	"github.com/vendalink/leadrouter/pkg/types"
)

func record(workspaceID, userID string, at time.Time) *types.AssignmentRecord {
	return &types.AssignmentRecord{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		LeadID:      uuid.New().String(),
		UserID:      userID,
		Mode:        types.ModeRoundRobin,
		AssignedAt:  at,
	}
}

func TestLoadTrackerRollingWindows(t *testing.T) {
	workspace := testutil.FixtureWorkspace()
	store := newMockStore(workspace)
	ref := time.Now()

	ctx := context.Background()
	// 30 minutes ago: inside both windows.
	store.CreateAssignmentRecord(ctx, record(workspace.ID, "u1", ref.Add(-30*time.Minute)))
	// 5 hours ago: inside the day window only.
	store.CreateAssignmentRecord(ctx, record(workspace.ID, "u1", ref.Add(-5*time.Hour)))
	// 25 hours ago: outside both. Rolling windows, not calendar days.
	store.CreateAssignmentRecord(ctx, record(workspace.ID, "u1", ref.Add(-25*time.Hour)))

	tracker := NewLoadTracker(store, workspace.ID, ref)

	day, err := tracker.AssignedToday(ctx, "u1")
	if err != nil {
		t.Fatalf("AssignedToday: %v", err)
	}
	if day != 2 {
		t.Errorf("AssignedToday = %d, want 2", day)
	}

	hour, err := tracker.AssignedThisHour(ctx, "u1")
	if err != nil {
		t.Fatalf("AssignedThisHour: %v", err)
	}
	if hour != 1 {
		t.Errorf("AssignedThisHour = %d, want 1", hour)
	}
}

func TestLoadTrackerNoteAffectsAllCounts(t *testing.T) {
	workspace := testutil.FixtureWorkspace()
	store := newMockStore(workspace)
	store.baseOpen["u1"] = 3

	ctx := context.Background()
	tracker := NewLoadTracker(store, workspace.ID, time.Now())
	if err := tracker.Prime(ctx, []string{"u1"}); err != nil {
		t.Fatalf("Prime: %v", err)
	}

	tracker.Note("u1")
	tracker.Note("u1")

	open, _ := tracker.OpenLeadCount(ctx, "u1")
	if open != 5 {
		t.Errorf("OpenLeadCount = %d, want 5", open)
	}
	day, _ := tracker.AssignedToday(ctx, "u1")
	if day != 2 {
		t.Errorf("AssignedToday = %d, want 2", day)
	}
	hour, _ := tracker.AssignedThisHour(ctx, "u1")
	if hour != 2 {
		t.Errorf("AssignedThisHour = %d, want 2", hour)
	}
}

func TestLoadTrackerMemoizesAcrossLookups(t *testing.T) {
	workspace := testutil.FixtureWorkspace()
	store := newMockStore(workspace)
	store.baseOpen["u1"] = 1

	ctx := context.Background()
	tracker := NewLoadTracker(store, workspace.ID, time.Now())

	before, _ := tracker.OpenLeadCount(ctx, "u1")

	// Mutating the store after the first lookup must not change memoized
	// values within the same pass.
	store.baseOpen["u1"] = 99

	after, _ := tracker.OpenLeadCount(ctx, "u1")
	if before != after {
		t.Fatalf("tracker re-read the store mid-pass: %d then %d", before, after)
	}
}
