package deviation

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShayCichocki/conclave/pkg/models"
)

// roleFocus is the angle each role is asked to take on a shared task.
var roleFocus = map[models.AgentRole]string{
	models.AgentRoleBackend:   "server-side logic, data models and APIs",
	models.AgentRoleFrontend:  "user-facing components, state and accessibility",
	models.AgentRoleArchitect: "module boundaries, layering and long-term structure",
	models.AgentRoleAnalyst:   "requirements coverage, edge cases and acceptance criteria",
	models.AgentRoleDevOps:    "build, deployment, configuration and observability",
	models.AgentRoleQA:        "test strategy, regressions and failure modes",
}

// RoleVariationGenerator appends a role-specific focus to the task. Agent IDs
// are matched to roles by prefix, so "backend-2" gets the backend focus.
type RoleVariationGenerator struct{}

// NewRoleVariationGenerator returns a generator keyed on agent roles.
func NewRoleVariationGenerator() *RoleVariationGenerator {
	return &RoleVariationGenerator{}
}

// GenerateVariations implements VariationGenerator. With count > 1 each agent
// receives count numbered variations.
func (RoleVariationGenerator) GenerateVariations(ctx context.Context, task models.Task, agentIDs []string, count int) ([]models.TaskVariation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if count < 1 {
		count = 1
	}

	variations := make([]models.TaskVariation, 0, len(agentIDs)*count)
	for _, id := range agentIDs {
		focus := FocusFor(id)
		for i := 1; i <= count; i++ {
			v := task
			v.ID = fmt.Sprintf("%s-%s", task.ID, id)
			v.AssignedAgent = id
			v.Description = fmt.Sprintf("%s\n\nFocus on %s.", task.Description, focus)
			if count > 1 {
				v.ID = fmt.Sprintf("%s-%d", v.ID, i)
				v.Description += fmt.Sprintf(" Take angle %d of %d.", i, count)
			}
			variations = append(variations, models.TaskVariation{AgentID: id, Variation: v, Focus: focus})
		}
	}
	return variations, nil
}

// FocusFor returns the focus text for an agent ID, falling back to a generic one.
func FocusFor(agentID string) string {
	id := strings.ToLower(agentID)
	for role, focus := range roleFocus {
		if id == string(role) || strings.HasPrefix(id, string(role)+"-") {
			return focus
		}
	}
	return "the most direct way to satisfy the task"
}
