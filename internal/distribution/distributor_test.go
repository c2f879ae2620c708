package distribution

import (
	"context"
	"testing"
	"time"

	"github.com/vendalink/leadrouter/internal/testutil"
	"github.com/vendalink/leadrouter/pkg/types"
)

func newTestDistributor(store *mockStore) *Distributor {
	return NewDistributor(store, nil, 100, testutil.NewTestLogger())
}

// setupWorkspace builds a workspace with one pipeline and the given members.
func setupWorkspace(memberIDs ...string) (*mockStore, *types.Workspace, *types.Pipeline) {
	workspace := testutil.FixtureWorkspace()
	store := newMockStore(workspace)

	pipeline := &types.Pipeline{
		ID:          "pipeline-1",
		WorkspaceID: workspace.ID,
		Name:        "Sales",
	}
	store.pipelines[pipeline.ID] = pipeline

	for _, id := range memberIDs {
		store.addMember(testutil.FixtureMember(workspace.ID, func(m *types.Member) {
			m.UserID = id
		}))
	}
	return store, workspace, pipeline
}

func TestDistributeOneLeastLoadedScenario(t *testing.T) {
	// Spec scenario: A has 2 open leads, B has 0, no limits -> B wins.
	store, workspace, pipeline := setupWorkspace("A", "B")
	store.baseOpen["A"] = 2

	rule := testutil.FixtureRule(workspace.ID, func(r *types.DistributionRule) {
		r.Mode = types.ModeLeastLoaded
	})
	rule.Members = []types.RuleMember{
		testutil.FixtureRuleMember(rule.ID, "A"),
		testutil.FixtureRuleMember(rule.ID, "B"),
	}
	store.addRule(rule)

	lead := testutil.FixtureLead(workspace.ID, pipeline.ID)
	store.addLead(lead)

	outcome, err := newTestDistributor(store).DistributeOne(context.Background(), lead)
	if err != nil {
		t.Fatalf("DistributeOne: %v", err)
	}
	if outcome.Kind != types.OutcomeAssigned || outcome.UserID != "B" {
		t.Fatalf("outcome = %+v, want assigned to B", outcome)
	}
	if outcome.RuleID != rule.ID || outcome.Mode != types.ModeLeastLoaded {
		t.Errorf("outcome rule/mode = %s/%s, want %s/least_loaded", outcome.RuleID, outcome.Mode, rule.ID)
	}
	if len(store.records) != 1 || store.records[0].UserID != "B" {
		t.Errorf("expected one assignment record for B, got %+v", store.records)
	}
}

func TestDistributeOneNoRulesNoDefaultLeavesUnassigned(t *testing.T) {
	store, workspace, pipeline := setupWorkspace("A")
	lead := testutil.FixtureLead(workspace.ID, pipeline.ID)
	store.addLead(lead)

	outcome, err := newTestDistributor(store).DistributeOne(context.Background(), lead)
	if err != nil {
		t.Fatalf("DistributeOne: %v", err)
	}
	if outcome.Kind != types.OutcomeNoRuleMatched {
		t.Fatalf("outcome kind = %s, want no_rule_matched", outcome.Kind)
	}
	if store.leads[lead.ID].AssignedTo != nil {
		t.Error("lead must remain unassigned")
	}
	if store.leads[lead.ID].LastDistributionOutcome != string(types.OutcomeNoRuleMatched) {
		t.Errorf("lead outcome = %q, want recorded no_rule_matched",
			store.leads[lead.ID].LastDistributionOutcome)
	}
	if len(store.records) != 0 {
		t.Errorf("no assignment record expected, got %d", len(store.records))
	}
}

func TestDistributeOneFallsBackToPipelineDefault(t *testing.T) {
	store, workspace, pipeline := setupWorkspace("A")
	pipeline.DefaultAssigneeID = testutil.StrPtr("A")

	lead := testutil.FixtureLead(workspace.ID, pipeline.ID)
	store.addLead(lead)

	outcome, err := newTestDistributor(store).DistributeOne(context.Background(), lead)
	if err != nil {
		t.Fatalf("DistributeOne: %v", err)
	}
	if outcome.Kind != types.OutcomeAssigned || outcome.UserID != "A" {
		t.Fatalf("outcome = %+v, want fallback assignment to A", outcome)
	}
	if outcome.Mode != types.ModeFallback || outcome.RuleID != "" {
		t.Errorf("fallback must record mode=fallback rule=\"\", got %s/%q", outcome.Mode, outcome.RuleID)
	}
}

func TestDistributeOneHighestPriorityRuleGoverns(t *testing.T) {
	// Two matching rules; the priority-2 rule is fixed-mode and must govern.
	store, workspace, pipeline := setupWorkspace("rr-member", "vip")

	roundRobin := testutil.FixtureRule(workspace.ID, func(r *types.DistributionRule) {
		r.Priority = 1
	})
	roundRobin.Members = []types.RuleMember{
		testutil.FixtureRuleMember(roundRobin.ID, "rr-member"),
	}
	store.addRule(roundRobin)

	fixed := testutil.FixtureRule(workspace.ID, func(r *types.DistributionRule) {
		r.Priority = 2
		r.Mode = types.ModeFixed
		r.FixedUserID = testutil.StrPtr("vip")
	})
	store.addRule(fixed)

	lead := testutil.FixtureLead(workspace.ID, pipeline.ID)
	store.addLead(lead)

	outcome, err := newTestDistributor(store).DistributeOne(context.Background(), lead)
	if err != nil {
		t.Fatalf("DistributeOne: %v", err)
	}
	if outcome.UserID != "vip" || outcome.Mode != types.ModeFixed {
		t.Fatalf("outcome = %+v, want the priority-2 fixed rule to govern", outcome)
	}
}

func TestDistributeOneIdempotent(t *testing.T) {
	store, workspace, pipeline := setupWorkspace("A")
	rule := testutil.FixtureRule(workspace.ID)
	rule.Members = []types.RuleMember{testutil.FixtureRuleMember(rule.ID, "A")}
	store.addRule(rule)

	lead := testutil.FixtureLead(workspace.ID, pipeline.ID)
	store.addLead(lead)

	d := newTestDistributor(store)
	first, err := d.DistributeOne(context.Background(), lead)
	if err != nil {
		t.Fatalf("first DistributeOne: %v", err)
	}
	if first.Kind != types.OutcomeAssigned {
		t.Fatalf("first outcome = %+v", first)
	}

	second, err := d.DistributeOne(context.Background(), store.leads[lead.ID])
	if err != nil {
		t.Fatalf("second DistributeOne: %v", err)
	}
	if second.Kind != types.OutcomeAlreadyAssigned {
		t.Fatalf("second outcome kind = %s, want already_assigned", second.Kind)
	}
	if len(store.records) != 1 {
		t.Fatalf("expected exactly one assignment record, got %d", len(store.records))
	}
	if *store.leads[lead.ID].AssignedTo != first.UserID {
		t.Error("assignment changed on the second call")
	}
}

func TestDistributeOneLosingConditionalWriteIsSuccessElsewhere(t *testing.T) {
	store, workspace, pipeline := setupWorkspace("A")
	rule := testutil.FixtureRule(workspace.ID)
	rule.Members = []types.RuleMember{testutil.FixtureRuleMember(rule.ID, "A")}
	store.addRule(rule)

	lead := testutil.FixtureLead(workspace.ID, pipeline.ID)
	store.addLead(lead)

	// Simulate a concurrent winner: the store copy is assigned but the
	// caller still holds the unassigned snapshot.
	store.leads[lead.ID].AssignedTo = testutil.StrPtr("other")

	outcome, err := newTestDistributor(store).DistributeOne(context.Background(), lead)
	if err != nil {
		t.Fatalf("DistributeOne: %v", err)
	}
	if outcome.Kind != types.OutcomeAlreadyAssigned {
		t.Fatalf("outcome kind = %s, want already_assigned", outcome.Kind)
	}
	if *store.leads[lead.ID].AssignedTo != "other" {
		t.Error("losing write must not overwrite the winner's assignment")
	}
	if len(store.records) != 0 {
		t.Error("losing write must not create an assignment record")
	}
}

func TestDistributePendingRoundRobinBatch(t *testing.T) {
	store, workspace, pipeline := setupWorkspace("a", "b", "c")
	rule := testutil.FixtureRule(workspace.ID)
	rule.Members = []types.RuleMember{
		testutil.FixtureRuleMember(rule.ID, "a"),
		testutil.FixtureRuleMember(rule.ID, "b"),
		testutil.FixtureRuleMember(rule.ID, "c"),
	}
	store.addRule(rule)

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 6; i++ {
		store.addLead(testutil.FixtureLead(workspace.ID, pipeline.ID, func(l *types.Lead) {
			l.CreatedAt = base.Add(time.Duration(i) * time.Second)
		}))
	}

	report, err := newTestDistributor(store).DistributePending(context.Background(), workspace.ID)
	if err != nil {
		t.Fatalf("DistributePending: %v", err)
	}
	if report.Processed != 6 || report.Assigned != 6 {
		t.Fatalf("report = %+v, want 6 processed and assigned", report)
	}
	for _, id := range []string{"a", "b", "c"} {
		if report.ByUser[id] != 2 {
			t.Errorf("member %s got %d leads, want 2 (report %+v)", id, report.ByUser[id], report)
		}
	}
	if report.ByMode[string(types.ModeRoundRobin)] != 6 {
		t.Errorf("ByMode = %+v, want 6 round_robin", report.ByMode)
	}
}

func TestDistributePendingRespectsCapsAcrossBatch(t *testing.T) {
	store, workspace, pipeline := setupWorkspace("solo")
	rule := testutil.FixtureRule(workspace.ID)
	rule.Members = []types.RuleMember{
		testutil.FixtureRuleMember(rule.ID, "solo", func(m *types.RuleMember) {
			m.MaxLeadsPerDay = testutil.IntPtr(1)
		}),
	}
	store.addRule(rule)

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		store.addLead(testutil.FixtureLead(workspace.ID, pipeline.ID, func(l *types.Lead) {
			l.CreatedAt = base.Add(time.Duration(i) * time.Second)
		}))
	}

	report, err := newTestDistributor(store).DistributePending(context.Background(), workspace.ID)
	if err != nil {
		t.Fatalf("DistributePending: %v", err)
	}
	if report.Assigned != 1 {
		t.Fatalf("assigned = %d, want 1: the second pick must see the first pick's effect", report.Assigned)
	}
	if report.ByKind[string(types.OutcomeAllMembersAtCapacity)] != 2 {
		t.Fatalf("ByKind = %+v, want 2 all_members_at_capacity", report.ByKind)
	}
}

func TestDistributePendingEmptyWorkspace(t *testing.T) {
	store, workspace, _ := setupWorkspace("a")

	report, err := newTestDistributor(store).DistributePending(context.Background(), workspace.ID)
	if err != nil {
		t.Fatalf("DistributePending: %v", err)
	}
	if report.Processed != 0 {
		t.Fatalf("report = %+v, want empty", report)
	}
}

func TestDistributeOneConfigurationErrorNotRetriedViaFallback(t *testing.T) {
	store, workspace, pipeline := setupWorkspace("A")
	pipeline.DefaultAssigneeID = testutil.StrPtr("A")

	// Fixed rule without a fixed user: misconfigured, surfaced to the
	// owner rather than papered over by the fallback assignee.
	broken := testutil.FixtureRule(workspace.ID, func(r *types.DistributionRule) {
		r.Mode = types.ModeFixed
	})
	store.addRule(broken)

	lead := testutil.FixtureLead(workspace.ID, pipeline.ID)
	store.addLead(lead)

	outcome, err := newTestDistributor(store).DistributeOne(context.Background(), lead)
	if err != nil {
		t.Fatalf("DistributeOne: %v", err)
	}
	if outcome.Kind != types.OutcomeConfigurationError {
		t.Fatalf("outcome kind = %s, want configuration_error", outcome.Kind)
	}
	if store.leads[lead.ID].AssignedTo != nil {
		t.Error("misconfigured rule must not fall through to the default assignee")
	}
}
