package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conclave/internal/evaluator"
	"github.com/ShayCichocki/conclave/pkg/models"
)

var (
	evaluateMerge bool
	evaluateTask  string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <solutions.json>",
	Short: "Score and rank candidate solutions",
	Long: `Evaluate solutions against the project's dependency graph and profile.

The file holds either a JSON array of solutions or an object
{"task": {...}, "solutions": [...]}. With a task, solutions are also
scored for how well they stay on it.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().BoolVar(&evaluateMerge, "merge", false, "Merge the solutions into one")
	evaluateCmd.Flags().StringVar(&evaluateTask, "task", "", "Original task description (overrides the file's task)")
}

type solutionFile struct {
	Task      *models.Task            `json:"task"`
	Solutions []*models.AgentSolution `json:"solutions"`
}

// readSolutions accepts a bare array or a {task, solutions} object.
func readSolutions(path string) (*models.Task, []*models.AgentSolution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read solutions: %w", err)
	}
	data = bytes.TrimSpace(data)

	var f solutionFile
	if len(data) > 0 && data[0] == '[' {
		err = json.Unmarshal(data, &f.Solutions)
	} else {
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}

	out := f.Solutions[:0]
	for _, s := range f.Solutions {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, nil, fmt.Errorf("%s contains no solutions", path)
	}
	return f.Task, out, nil
}

type evaluateOutput struct {
	Comparison evaluator.Comparison      `json:"comparison"`
	Merged     *evaluator.MergedSolution `json:"merged,omitempty"`
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	task, solutions, err := readSolutions(args[0])
	if err != nil {
		return err
	}
	if evaluateTask != "" {
		task = &models.Task{Description: evaluateTask}
	}

	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	if _, err := s.orch.AnalyzeProject(ctx); err != nil {
		return err
	}

	ev := s.orch.Evaluator()
	ectx := evaluator.EvalContext{Profile: s.orch.Profile()}
	out := evaluateOutput{Comparison: ev.CompareSolutions(ctx, solutions, ectx, task)}
	if evaluateMerge {
		merged, err := ev.MergeSolutions(ctx, solutions, ectx, task)
		if err != nil {
			return err
		}
		out.Merged = merged
	}

	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), out)
	}
	printComparison(out.Comparison)
	if out.Merged != nil {
		printMerged(out.Merged)
	}
	return nil
}

func printComparison(cmp evaluator.Comparison) {
	heading("Ranking")
	for i, r := range cmp.Ranked {
		title := r.Solution.Solution.Title
		if title == "" {
			title = r.Solution.ID
		}
		fmt.Printf("  %d. %-12s %.3f  %s\n", i+1, r.Solution.AgentID, r.Score, title)
		if r.Deviation != nil && r.Deviation.OffTask() {
			printStatus("    ⚠", fmt.Sprintf("off task (relevance %.2f)", r.Deviation.Relevance), colorWarn)
		}
		for _, f := range r.Protected {
			printStatus("    ⚠", fmt.Sprintf("protected: %s (%s)", f.File, f.Reason), colorWarn)
		}
		if len(r.Weaknesses) > 0 {
			fmt.Printf("     weaknesses: %s\n", strings.Join(r.Weaknesses, "; "))
		}
	}
	if cmp.Best != nil {
		printStatus("✓", fmt.Sprintf("Best: %s from %s (%.3f)", cmp.Best.Solution.ID, cmp.Best.Solution.AgentID, cmp.Best.Score), colorOK)
		if len(cmp.Best.Recommendations) > 0 {
			heading("Recommendations")
			list(cmp.Best.Recommendations)
		}
	}
}

func printMerged(m *evaluator.MergedSolution) {
	sym, attr := "✓", colorOK
	if m.UsedFallback {
		sym, attr = "⚠", colorWarn
	}
	printStatus(sym, fmt.Sprintf("Merged %d solutions: %s", len(m.SourceSolutions), m.Reasoning), attr)
	heading("Files")
	list(m.Solution.Solution.FilesToModify)
}
