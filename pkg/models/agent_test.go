package models

import "testing"

func TestAgentRole_Valid(t *testing.T) {
	tests := []struct {
		role AgentRole
		want bool
	}{
		{AgentRoleBackend, true},
		{AgentRoleFrontend, true},
		{AgentRoleArchitect, true},
		{AgentRoleAnalyst, true},
		{AgentRoleDevOps, true},
		{AgentRoleQA, true},
		{AgentRole(""), false},
		{AgentRole("designer"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			if got := tt.role.Valid(); got != tt.want {
				t.Errorf("AgentRole(%q).Valid() = %v, want %v", tt.role, got, tt.want)
			}
		})
	}
}

func TestChangeKind_Valid(t *testing.T) {
	for _, k := range []ChangeKind{ChangeCreate, ChangeModify, ChangeDelete} {
		if !k.Valid() {
			t.Errorf("ChangeKind(%q).Valid() = false, want true", k)
		}
	}
	if ChangeKind("rename").Valid() {
		t.Error("ChangeKind(\"rename\").Valid() = true, want false")
	}
}

func TestImpactAnalysis_TotalAffected(t *testing.T) {
	a := ImpactAnalysis{
		DirectlyAffected:   []string{"a.ts", "b.ts"},
		IndirectlyAffected: []string{"c.ts"},
	}
	if got := a.TotalAffected(); got != 3 {
		t.Errorf("TotalAffected() = %d, want 3", got)
	}
	if got := (ImpactAnalysis{}).TotalAffected(); got != 0 {
		t.Errorf("empty TotalAffected() = %d, want 0", got)
	}
}
