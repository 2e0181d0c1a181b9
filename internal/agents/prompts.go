package agents

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/conclave/internal/brainstorm"
	"github.com/ShayCichocki/conclave/pkg/models"
)

// replyRules is appended to every persona.
const replyRules = `Stay within the task. Do not expand scope with unrelated refactoring,
fixes or features. Reply with a single JSON object and nothing else.`

const thinkTemplate = `## Task (%s)

%s
%s
List 3 to 6 short thoughts about how to approach this task from your role's
point of view. Use this shape:

{"thoughts": [{"kind": "analysis|idea|concern", "content": "..."}]}
`

const proposeTemplate = `## Task (%s)

%s
%s
## Your earlier thoughts

%s
Propose one concrete solution. Score it honestly, each score in [0,1].
Use this shape:

{
  "title": "...",
  "description": "...",
  "approach": "...",
  "files_to_modify": ["path/relative/to/workspace"],
  "code_changes": [{"file": "...", "kind": "create|modify|delete", "content": "..."}],
  "impact": "low|medium|high",
  "scores": {"quality": 0.0, "performance": 0.0, "security": 0.0, "maintainability": 0.0, "compliance": 0.0},
  "reasoning": "...",
  "confidence": 0.0
}
`

func thinkPrompt(task models.Task, actx brainstorm.AgentContext) string {
	return fmt.Sprintf(thinkTemplate, task.Type, task.Description, contextSection(actx))
}

func proposePrompt(task models.Task, thoughts models.Thoughts, actx brainstorm.AgentContext) string {
	var b strings.Builder
	if len(thoughts) == 0 {
		b.WriteString("(none)\n")
	}
	for _, t := range thoughts {
		fmt.Fprintf(&b, "- [%s] %s\n", t.Kind, t.Content)
	}
	return fmt.Sprintf(proposeTemplate, task.Type, task.Description, contextSection(actx), b.String())
}

func contextSection(actx brainstorm.AgentContext) string {
	var b strings.Builder
	if p := actx.Profile; p != nil {
		b.WriteString("\n## Project\n\n")
		if p.Name != "" {
			fmt.Fprintf(&b, "Name: %s\n", p.Name)
		}
		if len(p.Languages) > 0 {
			fmt.Fprintf(&b, "Languages: %s\n", strings.Join(p.Languages, ", "))
		}
		if len(p.Frameworks) > 0 {
			fmt.Fprintf(&b, "Frameworks: %s\n", strings.Join(p.Frameworks, ", "))
		}
		if p.Architecture != "" {
			fmt.Fprintf(&b, "Architecture: %s\n", p.Architecture)
		}
		if len(p.Patterns) > 0 {
			fmt.Fprintf(&b, "Patterns: %s\n", strings.Join(p.Patterns, ", "))
		}
	}
	if len(actx.RelatedFiles) > 0 {
		b.WriteString("\n## Related files\n\n")
		for _, f := range actx.RelatedFiles {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	if notes := strings.TrimSpace(actx.Notes); notes != "" {
		fmt.Fprintf(&b, "\n## Notes\n\n%s\n", notes)
	}
	return b.String()
}
