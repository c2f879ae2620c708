package distribution

import (
	"log/slog"
	"time"

	"github.com/vendalink/leadrouter/pkg/types"
)

// Matcher selects the applicable distribution rule for a lead.
type Matcher struct {
	logger *slog.Logger
}

// NewMatcher creates a matcher.
func NewMatcher(logger *slog.Logger) *Matcher {
	return &Matcher{logger: logger.With("component", "matcher")}
}

// Match returns the active rule with the highest priority whose every
// non-empty filter dimension contains the lead's corresponding attribute.
// Ties are broken by the most recently updated rule. Returns nil when no
// rule matches; that is an expected outcome, not an error.
//
// Day and hour filters are evaluated against the lead's creation time in
// the workspace's local timezone.
func (m *Matcher) Match(lead *types.Lead, workspace *types.Workspace, rules []types.DistributionRule) *types.DistributionRule {
	localTime := lead.CreatedAt.In(m.location(workspace))

	var best *types.DistributionRule
	for i := range rules {
		rule := &rules[i]
		if !rule.IsActive {
			continue
		}
		if !ruleMatches(rule, lead, localTime) {
			continue
		}
		if best == nil ||
			rule.Priority > best.Priority ||
			(rule.Priority == best.Priority && rule.UpdatedAt.After(best.UpdatedAt)) {
			best = rule
		}
	}
	return best
}

func (m *Matcher) location(workspace *types.Workspace) *time.Location {
	if workspace == nil || workspace.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(workspace.Timezone)
	if err != nil {
		m.logger.Warn("invalid workspace timezone, using UTC",
			"workspace_id", workspace.ID,
			"timezone", workspace.Timezone,
		)
		return time.UTC
	}
	return loc
}

func ruleMatches(rule *types.DistributionRule, lead *types.Lead, localTime time.Time) bool {
	if len(rule.ApplyToPipelines) > 0 && !containsString(rule.ApplyToPipelines, lead.PipelineID) {
		return false
	}
	if len(rule.ApplyToSources) > 0 {
		found := false
		for _, s := range rule.ApplyToSources {
			if s == lead.Source {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(rule.ActiveDays) > 0 {
		weekday := int(localTime.Weekday())
		found := false
		for _, d := range rule.ActiveDays {
			if d == weekday {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	// The hour filter applies only when both bounds are present.
	if rule.ActiveHoursStart != nil && rule.ActiveHoursEnd != nil {
		if !withinHours(*rule.ActiveHoursStart, *rule.ActiveHoursEnd, localTime) {
			return false
		}
	}
	return true
}

// withinHours checks whether t's local time of day falls in [start, end),
// wrapping midnight when start > end. Unparseable bounds fail the match;
// rule validation should have rejected them.
func withinHours(start, end string, t time.Time) bool {
	startMin, err := types.ParseTimeOfDay(start)
	if err != nil {
		return false
	}
	endMin, err := types.ParseTimeOfDay(end)
	if err != nil {
		return false
	}
	nowMin := t.Hour()*60 + t.Minute()

	if startMin < endMin {
		return nowMin >= startMin && nowMin < endMin
	}
	if startMin > endMin {
		// Midnight-wrapping window, e.g. 22:00-06:00.
		return nowMin >= startMin || nowMin < endMin
	}
	// Degenerate zero-length window matches nothing.
	return false
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
