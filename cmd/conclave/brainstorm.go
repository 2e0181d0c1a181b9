package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conclave/internal/agents"
	"github.com/ShayCichocki/conclave/internal/brainstorm"
	"github.com/ShayCichocki/conclave/internal/config"
	"github.com/ShayCichocki/conclave/internal/deviation"
	"github.com/ShayCichocki/conclave/internal/llm"
	"github.com/ShayCichocki/conclave/internal/orchestrator"
	"github.com/ShayCichocki/conclave/pkg/models"
)

var (
	brainstormType       string
	brainstormAgents     string
	brainstormRecommend  bool
	brainstormLLMChecker bool
	brainstormTimeout    time.Duration
	brainstormQuiet      bool
)

var brainstormCmd = &cobra.Command{
	Use:   "brainstorm <task>",
	Short: "Run agents on a task and rank their solutions",
	Long: `Dispatch role-specialized agents on a task in parallel.

Each agent thinks, then proposes a solution. Proposals are checked for
deviation from the task, ranked, scored against the dependency graph and
merged. The selection is recorded in the knowledge base.

Requires ANTHROPIC_API_KEY (or anthropic.use_bedrock with AWS credentials).

Examples:
  conclave brainstorm "add rate limiting to the login endpoint" --type feature
  conclave brainstorm "fix the flaky upload test" --agents backend,qa
  conclave brainstorm "speed up search" --recommend`,
	Args: cobra.ExactArgs(1),
	RunE: runBrainstorm,
}

func init() {
	brainstormCmd.Flags().StringVar(&brainstormType, "type", "", "Task type (inferred from the description when empty)")
	brainstormCmd.Flags().StringVar(&brainstormAgents, "agents", "", "Agent roles to dispatch (defaults to every role)")
	brainstormCmd.Flags().BoolVar(&brainstormRecommend, "recommend", false, "Narrow the team to the agents learned for this task type")
	brainstormCmd.Flags().BoolVar(&brainstormLLMChecker, "llm-checker", false, "Check deviation with the model instead of keyword overlap")
	brainstormCmd.Flags().DurationVar(&brainstormTimeout, "timeout", 0, "Session timeout (overrides brainstorm.session_timeout)")
	brainstormCmd.Flags().BoolVarP(&brainstormQuiet, "quiet", "q", false, "Do not stream agent thoughts")
}

// thoughtPrinter serializes streamed thoughts onto stdout.
type thoughtPrinter struct {
	mu sync.Mutex
}

func (p *thoughtPrinter) print(_ string, t models.Thought) {
	p.mu.Lock()
	defer p.mu.Unlock()
	agent := color.New(color.FgCyan).Sprintf("[%s]", t.AgentID)
	kind := color.New(color.Faint).Sprint(t.Kind)
	fmt.Printf("%s %s %s\n", agent, kind, t.Content)
}

func runBrainstorm(cmd *cobra.Command, args []string) error {
	tt, err := parseTaskType(brainstormType)
	if err != nil {
		return err
	}
	roles, err := agents.ParseRoles(brainstormAgents)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if brainstormTimeout > 0 {
		cfg.Brainstorm.SessionTimeout = brainstormTimeout
	}

	client, err := llm.NewClient(ctx, llm.ConfigFrom(cfg.Anthropic))
	if err != nil {
		if errors.Is(err, llm.ErrNoAPIKey) {
			printStatus("✗", "ANTHROPIC_API_KEY not set", colorFail)
		}
		return err
	}
	if !jsonFlag {
		printStatus("✓", fmt.Sprintf("Using %s (key from %s)", client.Model(), keySource(cfg)), colorOK)
	}

	var opts []orchestrator.Option
	if brainstormLLMChecker {
		opts = append(opts, orchestrator.WithDeviationChecker(deviation.NewLLMChecker(client)))
	}
	if !brainstormQuiet && !jsonFlag {
		p := &thoughtPrinter{}
		opts = append(opts, orchestrator.WithThoughtObserver(p.print))
	}
	s, err := openSessionWith(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.orch.AnalyzeProject(ctx); err != nil {
		return err
	}

	task := models.Task{
		ID:          uuid.NewString(),
		Type:        tt,
		Description: args[0],
		Status:      models.TaskStatusInProgress,
		CreatedAt:   time.Now(),
	}
	team := agents.NewTeam(roles, client, agents.WithLogger(s.logger))
	if brainstormRecommend {
		team = s.orch.RecommendAgents(task, team)
	}
	if !jsonFlag {
		ids := make([]string, len(team))
		for i, a := range team {
			ids[i] = a.ID()
		}
		printStatus("●", fmt.Sprintf("Dispatching %s", strings.Join(ids, ", ")), colorInfo)
	}

	out, err := s.orch.Brainstorm(ctx, task, team)
	if err != nil {
		return err
	}

	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), out)
	}
	printOutcome(out)
	in, outTokens := client.Tracker().Total()
	fmt.Printf("tokens: %d in, %d out over %d calls\n", in, outTokens, client.Tracker().Calls())
	return nil
}

func keySource(cfg *config.Config) string {
	if cfg.Anthropic.UseBedrock {
		return "AWS Bedrock"
	}
	return string(config.GetAPIKeySource(cfg))
}

func printOutcome(out *orchestrator.Outcome) {
	res := out.Result
	attr := colorOK
	if res.Status != brainstorm.StatusCompleted {
		attr = colorWarn
	}
	printStatus("●", fmt.Sprintf("Session %s %s: %d/%d agents in %s", res.SessionID, res.Status, res.Completed, res.Total, res.Duration.Round(time.Millisecond)), attr)
	for _, id := range res.FailedAgents() {
		printStatus("✗", fmt.Sprintf("%s: %s", id, res.Failures[id]), colorFail)
	}
	if len(out.Consolidation.Excluded) > 0 {
		printStatus("⚠", fmt.Sprintf("Off task: %s", strings.Join(out.Consolidation.Excluded, ", ")), colorWarn)
	}
	if len(res.Solutions) == 0 {
		printStatus("✗", "No solutions", colorFail)
		return
	}
	printComparison(out.Comparison)
	if out.Merged != nil {
		printMerged(out.Merged)
	}
	if out.Decision != nil {
		printStatus("✓", fmt.Sprintf("Recorded decision %s", out.Decision.ID), colorOK)
	}
}
