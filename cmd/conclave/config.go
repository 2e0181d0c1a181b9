package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conclave/internal/config"
)

// configKeys lists every key shown by config show, in display order.
var configKeys = []string{
	"anthropic.api_key",
	"anthropic.model",
	"anthropic.use_bedrock",
	"anthropic.aws_region",
	"anthropic.aws_profile",
	"brainstorm.session_timeout",
	"brainstorm.variations",
	"brainstorm.event_buffer",
	"graph.max_depth",
	"graph.cache_ttl",
	"graph.cache_size",
	"graph.stale_after",
	"graph.workers",
	"graph.skip_dirs",
	"knowledge.backend",
	"knowledge.max_history",
	"metrics.addr",
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View or modify conclave configuration.

Configuration is stored at ~/.config/conclave/config.yaml
Project-specific overrides can be placed in .conclave.yaml
Environment variables use the CONCLAVE_ prefix (CONCLAVE_GRAPH_MAX_DEPTH).`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		displayAllConfig(cfg)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		value, err := getConfigValue(cfg, args[0])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a value in the user config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := setConfigValue(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		fmt.Printf("Set %s = %s\n", args[0], args[1])
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file locations",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("user: %s\n", config.GetUserConfigPath())
		project := config.GetProjectConfigPath()
		if project == "" {
			project = "(none)"
		}
		fmt.Printf("project: %s\n", project)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	for _, key := range configKeys {
		value, _ := getConfigValue(cfg, key)
		fmt.Printf("%s: %s\n", key, value)
	}
	fmt.Printf("(api key source: %s)\n", config.GetAPIKeySource(cfg))
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		apiKey, err := config.GetAPIKey(cfg)
		if err != nil {
			return "(not set)", nil
		}
		return config.MaskAPIKey(apiKey), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "anthropic.aws_region":
		return cfg.Anthropic.AWSRegion, nil
	case "anthropic.aws_profile":
		return cfg.Anthropic.AWSProfile, nil
	case "brainstorm.session_timeout":
		return cfg.Brainstorm.SessionTimeout.String(), nil
	case "brainstorm.variations":
		return strconv.Itoa(cfg.Brainstorm.Variations), nil
	case "brainstorm.event_buffer":
		return strconv.Itoa(cfg.Brainstorm.EventBuffer), nil
	case "graph.max_depth":
		return strconv.Itoa(cfg.Graph.MaxDepth), nil
	case "graph.cache_ttl":
		return cfg.Graph.CacheTTL.String(), nil
	case "graph.cache_size":
		return strconv.Itoa(cfg.Graph.CacheSize), nil
	case "graph.stale_after":
		return cfg.Graph.StaleAfter.String(), nil
	case "graph.workers":
		return strconv.Itoa(cfg.Graph.Workers), nil
	case "graph.skip_dirs":
		return strings.Join(cfg.Graph.SkipDirs, ","), nil
	case "knowledge.backend":
		return cfg.Knowledge.Backend, nil
	case "knowledge.max_history":
		return strconv.Itoa(cfg.Knowledge.MaxHistory), nil
	case "metrics.addr":
		return cfg.Metrics.Addr, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	var err error
	switch k := strings.ToLower(key); k {
	case "anthropic.api_key":
		return fmt.Errorf("%s is read from ANTHROPIC_API_KEY and is never saved", k)
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_bedrock":
		cfg.Anthropic.UseBedrock, err = parseBool(k, value)
	case "anthropic.aws_region":
		cfg.Anthropic.AWSRegion = value
	case "anthropic.aws_profile":
		cfg.Anthropic.AWSProfile = value
	case "brainstorm.session_timeout":
		cfg.Brainstorm.SessionTimeout, err = parseDuration(k, value)
	case "brainstorm.variations":
		cfg.Brainstorm.Variations, err = parseInt(k, value)
	case "brainstorm.event_buffer":
		cfg.Brainstorm.EventBuffer, err = parseInt(k, value)
	case "graph.max_depth":
		cfg.Graph.MaxDepth, err = parseInt(k, value)
	case "graph.cache_ttl":
		cfg.Graph.CacheTTL, err = parseDuration(k, value)
	case "graph.cache_size":
		cfg.Graph.CacheSize, err = parseInt(k, value)
	case "graph.stale_after":
		cfg.Graph.StaleAfter, err = parseDuration(k, value)
	case "graph.workers":
		cfg.Graph.Workers, err = parseInt(k, value)
	case "graph.skip_dirs":
		cfg.Graph.SkipDirs = splitList(value)
	case "knowledge.backend":
		cfg.Knowledge.Backend = strings.ToLower(value)
	case "knowledge.max_history":
		cfg.Knowledge.MaxHistory, err = parseInt(k, value)
	case "metrics.addr":
		cfg.Metrics.Addr = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return err
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return n, nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid boolean for %s: %w", key, err)
	}
	return b, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}
