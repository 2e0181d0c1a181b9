package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conclave/internal/depgraph"
	"github.com/ShayCichocki/conclave/pkg/models"
)

var (
	graphForce       bool
	graphDepth       int
	graphMetricsAddr string
	graphDebounce    time.Duration
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Build and query the project dependency graph",
}

var graphBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the dependency graph and save a snapshot",
	Long: `Build the dependency graph for the workspace.

A snapshot younger than graph.stale_after is reused unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runGraphBuild,
}

var graphImpactCmd = &cobra.Command{
	Use:   "impact <file[:create|modify|delete]>...",
	Short: "Show which files a change set affects",
	Long: `Analyze the impact of a change set.

Each argument is a workspace-relative path, optionally suffixed with the
change type. The type defaults to modify.

Examples:
  conclave graph impact src/db.ts
  conclave graph impact src/db.ts:delete src/new.ts:create`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGraphImpact,
}

var graphRelatedCmd = &cobra.Command{
	Use:   "related <file>",
	Short: "List files reachable from a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraphRelated,
}

var graphWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the graph current as files change",
	Long: `Watch the workspace and update the graph incrementally.

With --metrics-addr (or metrics.addr in config) Prometheus metrics are
served on /metrics. The snapshot is saved on exit.`,
	Args: cobra.NoArgs,
	RunE: runGraphWatch,
}

func init() {
	graphBuildCmd.Flags().BoolVar(&graphForce, "force", false, "Rebuild even if the snapshot is fresh")
	graphRelatedCmd.Flags().IntVar(&graphDepth, "depth", 2, "Traversal depth")
	graphWatchCmd.Flags().StringVar(&graphMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	graphWatchCmd.Flags().DurationVar(&graphDebounce, "debounce", 0, "Wait this long for events to settle")

	graphCmd.AddCommand(graphBuildCmd)
	graphCmd.AddCommand(graphImpactCmd)
	graphCmd.AddCommand(graphRelatedCmd)
	graphCmd.AddCommand(graphWatchCmd)
}

func runGraphBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	g := s.orch.Graph()
	start := time.Now()
	if graphForce {
		if err := g.BuildGraph(ctx); err != nil {
			return err
		}
		if err := g.SaveSnapshot(depgraph.DefaultSnapshotPath(g.Root())); err != nil {
			printStatus("⚠", fmt.Sprintf("save snapshot: %v", err), colorWarn)
		}
	}
	rebuilt, err := s.orch.AnalyzeProject(ctx)
	if err != nil {
		return err
	}
	rebuilt = rebuilt || graphForce

	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"files":   len(g.Files()),
			"version": g.Version(),
			"rebuilt": rebuilt,
		})
	}
	verb := "Loaded snapshot"
	if rebuilt {
		verb = "Built graph"
	}
	printStatus("✓", fmt.Sprintf("%s: %d files (version %d, %s)", verb, len(g.Files()), g.Version(), time.Since(start).Round(time.Millisecond)), colorOK)
	return nil
}

// parseChange parses "path[:type]" into a file change.
func parseChange(arg string) (models.FileChange, error) {
	file, kind := arg, models.ChangeModify
	if i := strings.LastIndex(arg, ":"); i > 0 {
		switch k := models.ChangeKind(arg[i+1:]); k {
		case models.ChangeCreate, models.ChangeModify, models.ChangeDelete:
			file, kind = arg[:i], k
		default:
			return models.FileChange{}, fmt.Errorf("unknown change type %q in %q", k, arg)
		}
	}
	if file == "" {
		return models.FileChange{}, fmt.Errorf("empty file in %q", arg)
	}
	return models.FileChange{File: file, Type: kind}, nil
}

func runGraphImpact(cmd *cobra.Command, args []string) error {
	changes := make([]models.FileChange, 0, len(args))
	for _, a := range args {
		c, err := parseChange(a)
		if err != nil {
			return err
		}
		changes = append(changes, c)
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

	impact := s.orch.Graph().GetImpactAnalysis(changes)
	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), impact)
	}
	printStatus("●", fmt.Sprintf("Impact: %s (%d files)", impact.ImpactLevel, impact.TotalAffected()), impactColor(impact.ImpactLevel))
	heading("Directly affected")
	list(impact.DirectlyAffected)
	heading("Indirectly affected")
	list(impact.IndirectlyAffected)
	heading("Risks")
	list(impact.Risks)
	return nil
}

func impactColor(level models.ImpactLevel) color.Attribute {
	switch level {
	case models.ImpactHigh:
		return colorFail
	case models.ImpactMedium:
		return colorWarn
	default:
		return colorOK
	}
}

func runGraphRelated(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	if _, err := s.orch.AnalyzeProject(ctx); err != nil {
		return err
	}

	related := s.orch.Graph().FindRelatedFiles(args[0], graphDepth)
	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), related)
	}
	heading(fmt.Sprintf("Related to %s (depth %d)", args[0], graphDepth))
	list(related)
	return nil
}

func runGraphWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	if _, err := s.orch.AnalyzeProject(ctx); err != nil {
		return err
	}
	g := s.orch.Graph()

	addr := graphMetricsAddr
	if addr == "" {
		addr = s.cfg.Metrics.Addr
	}
	if addr != "" {
		srv := serveMetrics(addr, s)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		printStatus("✓", fmt.Sprintf("Serving metrics on http://%s/metrics", addr), colorOK)
	}

	w, err := depgraph.NewWatcher(g,
		depgraph.WithDebounce(graphDebounce),
		depgraph.WithOnUpdate(func(file string) {
			printStatus("↻", fmt.Sprintf("%s (version %d)", file, g.Version()), colorInfo)
		}),
	)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Close()

	printStatus("●", fmt.Sprintf("Watching %s (%d files), Ctrl-C to stop", g.Root(), len(g.Files())), colorInfo)
	err = w.Run(ctx)

	if serr := g.SaveSnapshot(depgraph.DefaultSnapshotPath(g.Root())); serr != nil {
		printStatus("⚠", fmt.Sprintf("save snapshot: %v", serr), colorWarn)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serveMetrics(addr string, s *session) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			printStatus("✗", fmt.Sprintf("metrics server: %v", err), colorFail)
		}
	}()
	return srv
}
