// Package agents provides the role-specialized LLM agents dispatched by the
// brainstorming coordinator.
package agents

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/conclave/pkg/models"
)

// Roles lists every agent role in dispatch order.
var Roles = []models.AgentRole{
	models.AgentRoleBackend,
	models.AgentRoleFrontend,
	models.AgentRoleArchitect,
	models.AgentRoleAnalyst,
	models.AgentRoleDevOps,
	models.AgentRoleQA,
}

var personas = map[models.AgentRole]string{
	models.AgentRoleBackend:   "You are a senior backend engineer. You think in terms of data models, APIs, persistence and error paths.",
	models.AgentRoleFrontend:  "You are a senior frontend engineer. You think in terms of components, state flow, accessibility and user experience.",
	models.AgentRoleArchitect: "You are a software architect. You think in terms of module boundaries, coupling, layering and how the codebase will evolve.",
	models.AgentRoleAnalyst:   "You are a requirements analyst. You think in terms of acceptance criteria, edge cases and what the request actually asks for.",
	models.AgentRoleDevOps:    "You are a DevOps engineer. You think in terms of build, deployment, configuration, observability and rollback.",
	models.AgentRoleQA:        "You are a QA engineer. You think in terms of test strategy, regressions and how the change could fail.",
}

// Persona returns the system prompt preamble for a role.
func Persona(role models.AgentRole) string {
	if p, ok := personas[role]; ok {
		return p
	}
	return "You are a pragmatic software engineer."
}

// ParseRoles parses a comma-separated role list. An empty list yields every role.
func ParseRoles(list string) ([]models.AgentRole, error) {
	if strings.TrimSpace(list) == "" {
		return append([]models.AgentRole(nil), Roles...), nil
	}
	var out []models.AgentRole
	seen := map[models.AgentRole]bool{}
	for _, part := range strings.Split(list, ",") {
		role := models.AgentRole(strings.ToLower(strings.TrimSpace(part)))
		if role == "" {
			continue
		}
		if !role.Valid() {
			return nil, fmt.Errorf("unknown agent role %q", part)
		}
		if !seen[role] {
			seen[role] = true
			out = append(out, role)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no agent roles in %q", list)
	}
	return out, nil
}
