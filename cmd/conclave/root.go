package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conclave/internal/config"
	"github.com/ShayCichocki/conclave/internal/logging"
	"github.com/ShayCichocki/conclave/internal/metrics"
	"github.com/ShayCichocki/conclave/internal/orchestrator"
)

var (
	workspaceFlag string
	configFlag    string
	debugFlag     bool
	jsonFlag      bool
)

var rootCmd = &cobra.Command{
	Use:   "conclave",
	Short: "Multi-agent brainstorming and learning engine",
	Long: `Conclave dispatches role-specialized agents on a coding task, scores
their proposals against the project's dependency graph, and learns which
agents and criteria work best from recorded outcomes.

Core capabilities:
- Builds and watches a file-level dependency graph
- Runs parallel brainstorming sessions with deviation checks
- Ranks and merges competing solutions
- Keeps a per-workspace knowledge base of decisions`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspaceFlag, "workspace", "w", "", "Project root (defaults to the current directory)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (overrides the XDG and project config)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Write a debug log to .conclave/logs")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print machine-readable JSON")

	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(kbCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(brainstormCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads --config when given, otherwise the layered config.
func loadConfig() (*config.Config, error) {
	if configFlag != "" {
		return config.LoadFromPath(configFlag)
	}
	return config.Load()
}

// resolveWorkspace returns the absolute project root.
func resolveWorkspace() (string, error) {
	ws := workspaceFlag
	if ws == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		ws = wd
	}
	return filepath.Abs(ws)
}

// session bundles what every engine-backed command opens and closes.
type session struct {
	cfg     *config.Config
	logger  *logging.DebugLogger
	metrics *metrics.Metrics
	orch    *orchestrator.Orchestrator
}

// openSession loads config, opens the workspace and wires the orchestrator.
func openSession(ctx context.Context, opts ...orchestrator.Option) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openSessionWith(ctx, cfg, opts...)
}

func openSessionWith(ctx context.Context, cfg *config.Config, opts ...orchestrator.Option) (*session, error) {
	ws, err := resolveWorkspace()
	if err != nil {
		return nil, err
	}

	logger := logging.Nop()
	if debugFlag {
		logger = logging.NewForWorkspace(ws)
	}
	m := metrics.New()

	base := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(m),
	}
	o, err := orchestrator.New(ctx, ws, cfg, append(base, opts...)...)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, metrics: m, orch: o}, nil
}

// Close releases the knowledge store and the debug log.
func (s *session) Close() {
	if err := s.orch.Close(); err != nil {
		printStatus("⚠", fmt.Sprintf("close knowledge store: %v", err), colorWarn)
	}
	_ = s.logger.Close()
}
