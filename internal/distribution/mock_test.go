package distribution

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vendalink/leadrouter/pkg/types"
)

// mockStore implements Store in memory for engine tests.
type mockStore struct {
	mu sync.Mutex

	workspace *types.Workspace
	pipelines map[string]*types.Pipeline
	members   []types.Member
	rules     map[string]*types.DistributionRule
	leads     map[string]*types.Lead
	records   []types.AssignmentRecord

	// baseOpen seeds open-lead counts that predate the test's assignments.
	baseOpen map[string]int
}

func newMockStore(workspace *types.Workspace) *mockStore {
	return &mockStore{
		workspace: workspace,
		pipelines: make(map[string]*types.Pipeline),
		rules:     make(map[string]*types.DistributionRule),
		leads:     make(map[string]*types.Lead),
		baseOpen:  make(map[string]int),
	}
}

func (m *mockStore) addRule(r *types.DistributionRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[r.ID] = r
}

func (m *mockStore) addLead(l *types.Lead) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads[l.ID] = l
}

func (m *mockStore) addMember(member *types.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members = append(m.members, *member)
}

func (m *mockStore) GetWorkspace(ctx context.Context, id string) (*types.Workspace, error) {
	if m.workspace != nil && m.workspace.ID == id {
		return m.workspace, nil
	}
	return nil, nil
}

func (m *mockStore) GetPipeline(ctx context.Context, id string) (*types.Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pipelines[id], nil
}

func (m *mockStore) ListActiveMembers(ctx context.Context, workspaceID string) ([]types.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active []types.Member
	for _, member := range m.members {
		if member.WorkspaceID == workspaceID && member.IsActive {
			active = append(active, member)
		}
	}
	return active, nil
}

func (m *mockStore) ListActiveRules(ctx context.Context, workspaceID string) ([]types.DistributionRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rules []types.DistributionRule
	for _, r := range m.rules {
		if r.WorkspaceID == workspaceID && r.IsActive {
			rules = append(rules, *r)
		}
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].UpdatedAt.After(rules[j].UpdatedAt)
	})
	return rules, nil
}

func (m *mockStore) GetLead(ctx context.Context, id string) (*types.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leads[id], nil
}

func (m *mockStore) ListUnassignedLeads(ctx context.Context, workspaceID string, limit int) ([]types.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var leads []types.Lead
	for _, l := range m.leads {
		if l.WorkspaceID == workspaceID && l.AssignedTo == nil {
			leads = append(leads, *l)
		}
	}
	sort.Slice(leads, func(i, j int) bool {
		return leads[i].CreatedAt.Before(leads[j].CreatedAt)
	})
	if limit > 0 && len(leads) > limit {
		leads = leads[:limit]
	}
	return leads, nil
}

func (m *mockStore) AssignLeadIfUnassigned(ctx context.Context, leadID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[leadID]
	if !ok || lead.AssignedTo != nil {
		return false, nil
	}
	lead.AssignedTo = &userID
	lead.LastDistributionOutcome = ""
	return true, nil
}

func (m *mockStore) SetLeadDistributionOutcome(ctx context.Context, leadID string, kind types.OutcomeKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lead, ok := m.leads[leadID]; ok && lead.AssignedTo == nil {
		lead.LastDistributionOutcome = string(kind)
	}
	return nil
}

func (m *mockStore) CreateAssignmentRecord(ctx context.Context, a *types.AssignmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *a)
	return nil
}

func (m *mockStore) AdvanceRuleCursor(ctx context.Context, ruleID string, from, to int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[ruleID]
	if !ok || rule.RoundRobinCursor != from {
		return false, nil
	}
	rule.RoundRobinCursor = to
	return true, nil
}

func (m *mockStore) OpenLeadCounts(ctx context.Context, workspaceID string, userIDs []string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, id := range userIDs {
		counts[id] = m.baseOpen[id]
	}
	for _, l := range m.leads {
		if l.WorkspaceID != workspaceID || l.AssignedTo == nil {
			continue
		}
		if _, wanted := counts[*l.AssignedTo]; wanted {
			counts[*l.AssignedTo]++
		}
	}
	return counts, nil
}

func (m *mockStore) AssignedCounts(ctx context.Context, workspaceID string, userIDs []string, ref time.Time, window time.Duration) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}
	counts := make(map[string]int)
	for _, r := range m.records {
		if r.WorkspaceID != workspaceID || !wanted[r.UserID] {
			continue
		}
		if r.AssignedAt.After(ref.Add(-window)) && !r.AssignedAt.After(ref) {
			counts[r.UserID]++
		}
	}
	return counts, nil
}
