package distribution

import (
	"context"
	"fmt"
	"time"

	"github.com/vendalink/leadrouter/internal/config"
)

// LoadTracker answers "how loaded is this member right now" questions for
// the allocator: open leads, assignments in the trailing day, assignments
// in the trailing hour. Windows are rolling, measured back from the
// reference instant, never calendar-aligned.
//
// The tracker memoizes store aggregates for the lifetime of one
// distribution pass. Assignments made during the pass are reported through
// Note so that later picks in the same batch see earlier picks' effect.
// A tracker is not safe for concurrent use; each pass builds its own.
type LoadTracker struct {
	store       Store
	workspaceID string
	ref         time.Time

	loaded map[string]bool
	open   map[string]int
	day    map[string]int
	hour   map[string]int
}

// NewLoadTracker creates a tracker for one distribution pass.
func NewLoadTracker(store Store, workspaceID string, ref time.Time) *LoadTracker {
	return &LoadTracker{
		store:       store,
		workspaceID: workspaceID,
		ref:         ref,
		loaded:      make(map[string]bool),
		open:        make(map[string]int),
		day:         make(map[string]int),
		hour:        make(map[string]int),
	}
}

// Prime batch-loads aggregates for the given users in three queries.
// Subsequent lookups for those users hit memory.
func (t *LoadTracker) Prime(ctx context.Context, userIDs []string) error {
	var missing []string
	for _, id := range userIDs {
		if !t.loaded[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	open, err := t.store.OpenLeadCounts(ctx, t.workspaceID, missing)
	if err != nil {
		return fmt.Errorf("loading open lead counts: %w", err)
	}
	day, err := t.store.AssignedCounts(ctx, t.workspaceID, missing, t.ref, config.DayWindow)
	if err != nil {
		return fmt.Errorf("loading daily assignment counts: %w", err)
	}
	hour, err := t.store.AssignedCounts(ctx, t.workspaceID, missing, t.ref, config.HourWindow)
	if err != nil {
		return fmt.Errorf("loading hourly assignment counts: %w", err)
	}

	for _, id := range missing {
		t.loaded[id] = true
		t.open[id] += open[id]
		t.day[id] += day[id]
		t.hour[id] += hour[id]
	}
	return nil
}

// OpenLeadCount returns the member's currently open (non-terminal-stage)
// lead count, including leads assigned earlier in this pass.
func (t *LoadTracker) OpenLeadCount(ctx context.Context, userID string) (int, error) {
	if err := t.Prime(ctx, []string{userID}); err != nil {
		return 0, err
	}
	return t.open[userID], nil
}

// AssignedToday returns assignments to the member in the trailing 24 hours.
func (t *LoadTracker) AssignedToday(ctx context.Context, userID string) (int, error) {
	if err := t.Prime(ctx, []string{userID}); err != nil {
		return 0, err
	}
	return t.day[userID], nil
}

// AssignedThisHour returns assignments to the member in the trailing hour.
func (t *LoadTracker) AssignedThisHour(ctx context.Context, userID string) (int, error) {
	if err := t.Prime(ctx, []string{userID}); err != nil {
		return 0, err
	}
	return t.hour[userID], nil
}

// Note records an assignment made during this pass so later allocations
// see it. A freshly assigned lead counts as open and toward both windows.
func (t *LoadTracker) Note(userID string) {
	t.open[userID]++
	t.day[userID]++
	t.hour[userID]++
}
