package testutil

import (
	"testing"

	"github.com/vendalink/leadrouter/pkg/types"
)

func TestFixtureRule(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		rule := FixtureRule("ws-1")
		if rule.ID == "" {
			t.Error("expected rule to have ID")
		}
		if rule.WorkspaceID != "ws-1" {
			t.Errorf("expected workspace ws-1, got %s", rule.WorkspaceID)
		}
		if rule.Mode != types.ModeRoundRobin {
			t.Errorf("expected mode %s, got %s", types.ModeRoundRobin, rule.Mode)
		}
		if rule.RoundRobinCursor != -1 {
			t.Errorf("expected fresh cursor -1, got %d", rule.RoundRobinCursor)
		}
		if !rule.IsActive {
			t.Error("expected rule to be active")
		}
	})

	t.Run("with overrides", func(t *testing.T) {
		rule := FixtureRule("ws-1", func(r *types.DistributionRule) {
			r.Mode = types.ModeLeastLoaded
			r.Priority = 10
		})
		if rule.Mode != types.ModeLeastLoaded {
			t.Errorf("expected mode least_loaded, got %s", rule.Mode)
		}
		if rule.Priority != 10 {
			t.Errorf("expected priority 10, got %d", rule.Priority)
		}
	})
}

func TestFixtureLead(t *testing.T) {
	lead := FixtureLead("ws-1", "pipe-1")
	if lead.AssignedTo != nil {
		t.Error("expected fixture lead to be unassigned")
	}
	if lead.Source != types.SourceWebhook {
		t.Errorf("expected webhook source, got %s", lead.Source)
	}
	if err := lead.Validate(); err != nil {
		t.Errorf("fixture lead invalid: %v", err)
	}
}

func TestFixtureMember(t *testing.T) {
	member := FixtureMember("ws-1", func(m *types.Member) {
		m.IsActive = false
	})
	if member.WorkspaceID != "ws-1" {
		t.Errorf("expected workspace ws-1, got %s", member.WorkspaceID)
	}
	if member.IsActive {
		t.Error("override did not apply")
	}
}
