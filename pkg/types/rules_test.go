package types

import (
	"strings"
	"testing"
)

func validRule() *DistributionRule {
	return &DistributionRule{
		ID:          "rule-1",
		WorkspaceID: "ws-1",
		Name:        "inbound",
		IsActive:    true,
		Mode:        ModeRoundRobin,
		Members: []RuleMember{
			{RuleID: "rule-1", UserID: "u1", IsActive: true},
			{RuleID: "rule-1", UserID: "u2", IsActive: true},
		},
	}
}

func TestRuleValidate(t *testing.T) {
	if err := validRule().Validate(); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}

	t.Run("unknown mode", func(t *testing.T) {
		r := validRule()
		r.Mode = "random"
		if err := r.Validate(); err == nil {
			t.Error("unknown mode accepted")
		}
	})

	t.Run("fixed requires fixed_user_id", func(t *testing.T) {
		r := validRule()
		r.Mode = ModeFixed
		r.FixedUserID = nil
		if err := r.Validate(); err == nil {
			t.Error("fixed rule without fixed_user_id accepted")
		}
		userID := "u1"
		r.FixedUserID = &userID
		r.Members = nil
		if err := r.Validate(); err != nil {
			t.Errorf("fixed rule without members rejected: %v", err)
		}
	})

	t.Run("non-fixed requires members", func(t *testing.T) {
		r := validRule()
		r.Members = nil
		if err := r.Validate(); err == nil {
			t.Error("memberless rule accepted")
		}
	})

	t.Run("percentage bounds", func(t *testing.T) {
		r := validRule()
		r.Members[0].Percentage = 101
		if err := r.Validate(); err == nil {
			t.Error("percentage over 100 accepted")
		}
	})

	t.Run("negative limits", func(t *testing.T) {
		r := validRule()
		bad := -1
		r.Members[0].MaxLeadsPerDay = &bad
		if err := r.Validate(); err == nil {
			t.Error("negative limit accepted")
		}
	})

	t.Run("hour bounds set together", func(t *testing.T) {
		r := validRule()
		start := "09:00"
		r.ActiveHoursStart = &start
		if err := r.Validate(); err == nil {
			t.Error("lone hour bound accepted")
		}
		end := "18:00"
		r.ActiveHoursEnd = &end
		if err := r.Validate(); err != nil {
			t.Errorf("valid hour window rejected: %v", err)
		}
	})

	t.Run("malformed hour", func(t *testing.T) {
		r := validRule()
		start, end := "25:00", "18:00"
		r.ActiveHoursStart = &start
		r.ActiveHoursEnd = &end
		if err := r.Validate(); err == nil {
			t.Error("hour 25 accepted")
		}
	})

	t.Run("day out of range", func(t *testing.T) {
		r := validRule()
		r.ActiveDays = []int{7}
		if err := r.Validate(); err == nil {
			t.Error("day 7 accepted")
		}
	})
}

func TestRuleWarnings(t *testing.T) {
	t.Run("percentage sum off", func(t *testing.T) {
		r := validRule()
		r.Mode = ModePercentage
		r.Members[0].Percentage = 50
		r.Members[1].Percentage = 30
		warnings := r.Warnings()
		if len(warnings) != 1 || !strings.Contains(warnings[0], "80") {
			t.Errorf("warnings = %v, want percentage sum warning", warnings)
		}
	})

	t.Run("no active members", func(t *testing.T) {
		r := validRule()
		r.Members[0].IsActive = false
		r.Members[1].IsActive = false
		warnings := r.Warnings()
		if len(warnings) != 1 || !strings.Contains(warnings[0], "no active members") {
			t.Errorf("warnings = %v, want no-active-members warning", warnings)
		}
	})

	t.Run("clean rule", func(t *testing.T) {
		if warnings := validRule().Warnings(); len(warnings) != 0 {
			t.Errorf("unexpected warnings: %v", warnings)
		}
	})
}

func TestActiveMembers(t *testing.T) {
	r := validRule()
	r.Members[0].IsActive = false
	active := r.ActiveMembers()
	if len(active) != 1 || active[0].UserID != "u2" {
		t.Errorf("active members = %+v, want only u2", active)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		minutes int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"noon", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTimeOfDay(%q) accepted", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimeOfDay(%q): %v", tt.in, err)
			continue
		}
		if got != tt.minutes {
			t.Errorf("ParseTimeOfDay(%q) = %d, want %d", tt.in, got, tt.minutes)
		}
	}
}
