package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conclave/internal/agents"
	"github.com/ShayCichocki/conclave/internal/evaluator"
	"github.com/ShayCichocki/conclave/pkg/models"
)

var (
	kbTask     string
	kbTaskID   string
	kbType     string
	kbAgent    string
	kbSolution string
	kbReason   string
	kbSuccess  bool
	kbQuality  float64
	kbDuration time.Duration
	kbFiles    int
	kbIssues   []string
	kbLessons  []string
	kbAgents   string
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Inspect and feed the workspace knowledge base",
}

var kbAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record the outcome of an applied solution",
	Long: `Record a decision and its real outcome, then relearn.

Examples:
  conclave kb add --task "fix login crash" --type bug --agent backend --success --quality 0.9
  conclave kb add --task "add export" --agent frontend --lesson "check security of uploads"`,
	Args: cobra.NoArgs,
	RunE: runKBAdd,
}

var kbMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show decision metrics",
	Args:  cobra.NoArgs,
	RunE:  runKBMetrics,
}

var kbLearnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Relearn agent strategies and criterion weights",
	Args:  cobra.NoArgs,
	RunE:  runKBLearn,
}

var kbRecommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend agents for a task type",
	Args:  cobra.NoArgs,
	RunE:  runKBRecommend,
}

func init() {
	kbAddCmd.Flags().StringVar(&kbTask, "task", "", "Task description")
	kbAddCmd.Flags().StringVar(&kbTaskID, "task-id", "", "Task ID (generated when empty)")
	kbAddCmd.Flags().StringVar(&kbType, "type", "", "Task type (inferred from the description when empty)")
	kbAddCmd.Flags().StringVar(&kbAgent, "agent", "", "Agent whose solution was applied")
	kbAddCmd.Flags().StringVar(&kbSolution, "solution", "", "Applied solution ID")
	kbAddCmd.Flags().StringVar(&kbReason, "reasoning", "", "Why the solution was chosen")
	kbAddCmd.Flags().BoolVar(&kbSuccess, "success", false, "The change worked")
	kbAddCmd.Flags().Float64Var(&kbQuality, "quality", 0, "Quality of the result in [0,1]")
	kbAddCmd.Flags().DurationVar(&kbDuration, "duration", 0, "How long the change took")
	kbAddCmd.Flags().IntVar(&kbFiles, "files", 0, "Number of files changed")
	kbAddCmd.Flags().StringArrayVar(&kbIssues, "issue", nil, "Issue found (repeatable)")
	kbAddCmd.Flags().StringArrayVar(&kbLessons, "lesson", nil, "Lesson learned (repeatable)")
	_ = kbAddCmd.MarkFlagRequired("task")
	_ = kbAddCmd.MarkFlagRequired("agent")

	kbRecommendCmd.Flags().StringVar(&kbType, "type", "", "Task type")
	kbRecommendCmd.Flags().StringVar(&kbTask, "task", "", "Task description, used when --type is empty")
	kbRecommendCmd.Flags().StringVar(&kbAgents, "agents", "", "Available agents (defaults to every role)")

	kbCmd.AddCommand(kbAddCmd)
	kbCmd.AddCommand(kbMetricsCmd)
	kbCmd.AddCommand(kbLearnCmd)
	kbCmd.AddCommand(kbRecommendCmd)
}

// parseTaskType accepts an empty value, which leaves inference to the
// learning engine.
func parseTaskType(s string) (models.TaskType, error) {
	if s == "" {
		return "", nil
	}
	tt := models.TaskType(strings.ToLower(s))
	if !tt.Valid() {
		names := make([]string, len(models.AllTaskTypes))
		for i, t := range models.AllTaskTypes {
			names[i] = string(t)
		}
		return "", fmt.Errorf("unknown task type %q (want one of %s)", s, strings.Join(names, ", "))
	}
	return tt, nil
}

func runKBAdd(cmd *cobra.Command, args []string) error {
	tt, err := parseTaskType(kbType)
	if err != nil {
		return err
	}
	if kbQuality < 0 || kbQuality > 1 {
		return fmt.Errorf("--quality must be in [0,1], got %v", kbQuality)
	}
	if kbTaskID == "" {
		kbTaskID = uuid.NewString()
	}

	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	task := models.Task{ID: kbTaskID, Type: tt, Description: kbTask}
	chosen := &models.AgentSolution{ID: kbSolution, AgentID: kbAgent, TaskID: kbTaskID, Reasoning: kbReason}
	if chosen.Reasoning == "" {
		chosen.Reasoning = kbTask
	}
	outcome := models.DecisionOutcome{
		Success:       kbSuccess,
		ExecutionTime: kbDuration,
		FilesChanged:  kbFiles,
		Quality:       kbQuality,
		Issues:        kbIssues,
	}
	d, err := s.orch.RecordOutcome(ctx, task, chosen, outcome, kbLessons)
	if err != nil {
		return err
	}

	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), d)
	}
	printStatus("✓", fmt.Sprintf("Recorded decision %s (%d in history)", d.ID, s.orch.Knowledge().Len()), colorOK)
	return nil
}

func runKBMetrics(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	m := s.orch.Knowledge().GetMetrics()
	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), m)
	}
	fmt.Printf("decisions: %d\n", m.TotalDecisions)
	fmt.Printf("success_rate: %.2f\n", m.SuccessRate)
	fmt.Printf("average_execution_time: %s\n", m.AverageExecutionTime.Round(time.Millisecond))
	fmt.Printf("average_quality: %.2f\n", m.AverageQuality)
	heading("Top agents")
	if len(m.TopAgents) == 0 {
		fmt.Println("  (none)")
	}
	for _, a := range m.TopAgents {
		fmt.Printf("  %-12s %5.2f  (%d/%d)\n", a.AgentID, a.SuccessRate, a.Successes, a.Decisions)
	}
	heading("Top patterns")
	if len(m.TopPatterns) == 0 {
		fmt.Println("  (none)")
	}
	for _, p := range m.TopPatterns {
		fmt.Printf("  %3d  %s\n", p.Count, p.Pattern)
	}
	return nil
}

func runKBLearn(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	summary := s.orch.Relearn()
	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), summary)
	}
	printStatus("✓", fmt.Sprintf("Learned from %d decisions (%d task types inferred)", summary.Decisions, summary.Inferred), colorOK)

	heading("Strategies")
	types := make([]string, 0, len(summary.Strategies))
	for tt := range summary.Strategies {
		types = append(types, string(tt))
	}
	sort.Strings(types)
	if len(types) == 0 {
		fmt.Println("  (none)")
	}
	for _, tt := range types {
		fmt.Printf("  %-14s %s\n", tt, strings.Join(summary.Strategies[models.TaskType(tt)], ", "))
	}

	heading("Criterion weights")
	fmt.Printf("  %s\n", evaluator.FormatWeights(summary.Weights))
	return nil
}

func runKBRecommend(cmd *cobra.Command, args []string) error {
	tt, err := parseTaskType(kbType)
	if err != nil {
		return err
	}
	available := splitList(kbAgents)
	if len(available) == 0 {
		for _, r := range agents.Roles {
			available = append(available, string(r))
		}
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	task := models.Task{Type: tt, Description: kbTask}
	recommended := s.orch.Learner().RecommendAgents(task, available)
	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), recommended)
	}
	fmt.Println(strings.Join(recommended, ","))
	return nil
}
