package models

import "testing"

func TestRole_Valid(t *testing.T) {
	tests := []struct {
		name string
		role Role
		want bool
	}{
		{"commander", RoleCommander, true},
		{"orchestrator", RoleOrchestrator, true},
		{"worker", RoleWorker, true},
		{"validator", RoleValidator, true},
		{"reporter", RoleReporter, true},
		{"recorder", RoleRecorder, true},
		{"empty", Role(""), false},
		{"unknown", Role("queen"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.role.Valid(); got != tt.want {
				t.Errorf("Role(%q).Valid() = %v, want %v", tt.role, got, tt.want)
			}
		})
	}
}

func TestRole_DomainScoped(t *testing.T) {
	scoped := map[Role]bool{
		RoleCommander:    false,
		RoleOrchestrator: true,
		RoleWorker:       true,
		RoleValidator:    true,
		RoleReporter:     false,
		RoleRecorder:     false,
	}
	for role, want := range scoped {
		if got := role.DomainScoped(); got != want {
			t.Errorf("Role(%q).DomainScoped() = %v, want %v", role, got, want)
		}
	}
}

func TestStateForCount(t *testing.T) {
	tests := []struct {
		count     int
		threshold int
		want      AgentState
	}{
		{0, 3, AgentStateActive},
		{1, 3, AgentStateWarned},
		{2, 3, AgentStateWarned2},
		{3, 3, AgentStateRevoked},
		{7, 3, AgentStateRevoked},
		{3, 5, AgentStateWarned2},
		{5, 5, AgentStateRevoked},
	}

	for _, tt := range tests {
		if got := StateForCount(tt.count, tt.threshold); got != tt.want {
			t.Errorf("StateForCount(%d, %d) = %s, want %s", tt.count, tt.threshold, got, tt.want)
		}
	}
}

func TestAgentState_RankIsMonotonic(t *testing.T) {
	order := []AgentState{AgentStateActive, AgentStateWarned, AgentStateWarned2, AgentStateRevoked}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("%s.Rank() = %d, want > %s.Rank() = %d", order[i], order[i].Rank(), order[i-1], order[i-1].Rank())
		}
	}
	if AgentState("bogus").Rank() != -1 {
		t.Error("unknown state should rank -1")
	}
}

func TestAgent_IsRevoked(t *testing.T) {
	var nilAgent *Agent
	if nilAgent.IsRevoked() {
		t.Error("nil agent should not be revoked")
	}
	a := &Agent{ID: "worker-1", State: AgentStateRevoked}
	if !a.IsRevoked() {
		t.Error("expected revoked agent to report revoked")
	}
}
