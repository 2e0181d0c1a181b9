// Package config handles configuration loading and management for conclave.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProjectConfigName is the per-project override file, searched upward from the cwd.
const ProjectConfigName = ".conclave.yaml"

// Config holds all configuration for conclave.
type Config struct {
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	Brainstorm BrainstormConfig `mapstructure:"brainstorm"`
	Graph      GraphConfig      `mapstructure:"graph"`
	Knowledge  KnowledgeConfig  `mapstructure:"knowledge"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// BrainstormConfig holds brainstorming session settings.
type BrainstormConfig struct {
	// SessionTimeout bounds how long a session waits for its agents.
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	// Variations is how many task variations are requested per agent.
	Variations int `mapstructure:"variations"`
	// EventBuffer is the size of the thought event channel.
	EventBuffer int `mapstructure:"event_buffer"`
}

// GraphConfig holds dependency graph settings.
type GraphConfig struct {
	MaxDepth   int           `mapstructure:"max_depth"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	CacheSize  int           `mapstructure:"cache_size"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
	Workers    int           `mapstructure:"workers"`
	SkipDirs   []string      `mapstructure:"skip_dirs"`
}

// KnowledgeConfig holds knowledge base settings.
type KnowledgeConfig struct {
	// Backend is "json" or "sqlite".
	Backend    string `mapstructure:"backend"`
	MaxHistory int    `mapstructure:"max_history"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables serving.
	Addr string `mapstructure:"addr"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, CONCLAVE_*)
// 2. Project config (.conclave.yaml in current directory or parent)
// 3. User config (~/.config/conclave/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("CONCLAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Knowledge.Backend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("knowledge.backend must be json or sqlite, got %q", c.Knowledge.Backend)
	}
	if c.Brainstorm.SessionTimeout <= 0 {
		return fmt.Errorf("brainstorm.session_timeout must be positive, got %v", c.Brainstorm.SessionTimeout)
	}
	if c.Graph.MaxDepth <= 0 {
		return fmt.Errorf("graph.max_depth must be positive, got %d", c.Graph.MaxDepth)
	}
	if c.Knowledge.MaxHistory <= 0 {
		return fmt.Errorf("knowledge.max_history must be positive, got %d", c.Knowledge.MaxHistory)
	}
	return nil
}

// Save writes the configuration to the user config file.
// The API key is never written; it belongs in the environment.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("brainstorm.session_timeout", cfg.Brainstorm.SessionTimeout.String())
	v.Set("brainstorm.variations", cfg.Brainstorm.Variations)
	v.Set("brainstorm.event_buffer", cfg.Brainstorm.EventBuffer)
	v.Set("graph.max_depth", cfg.Graph.MaxDepth)
	v.Set("graph.cache_ttl", cfg.Graph.CacheTTL.String())
	v.Set("graph.cache_size", cfg.Graph.CacheSize)
	v.Set("graph.stale_after", cfg.Graph.StaleAfter.String())
	v.Set("graph.workers", cfg.Graph.Workers)
	v.Set("graph.skip_dirs", cfg.Graph.SkipDirs)
	v.Set("knowledge.backend", cfg.Knowledge.Backend)
	v.Set("knowledge.max_history", cfg.Knowledge.MaxHistory)
	v.Set("metrics.addr", cfg.Metrics.Addr)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// DefaultSkipDirs are directories never descended into when building the graph.
var DefaultSkipDirs = []string{"node_modules", "vendor", "dist", "build", "out", "coverage", "target", "__pycache__"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("brainstorm.session_timeout", "10m")
	v.SetDefault("brainstorm.variations", 1)
	v.SetDefault("brainstorm.event_buffer", 100)

	v.SetDefault("graph.max_depth", 10)
	v.SetDefault("graph.cache_ttl", "5m")
	v.SetDefault("graph.cache_size", 4096)
	v.SetDefault("graph.stale_after", "24h")
	v.SetDefault("graph.workers", 8)
	v.SetDefault("graph.skip_dirs", DefaultSkipDirs)

	v.SetDefault("knowledge.backend", "json")
	v.SetDefault("knowledge.max_history", 1000)

	v.SetDefault("metrics.addr", "")
}

// getUserConfigDir returns the XDG config directory for conclave.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "conclave")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "conclave")
	}
	return filepath.Join(home, ".config", "conclave")
}

// findProjectConfig searches for .conclave.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		Brainstorm: BrainstormConfig{
			SessionTimeout: 10 * time.Minute,
			Variations:     1,
			EventBuffer:    100,
		},
		Graph: GraphConfig{
			MaxDepth:   10,
			CacheTTL:   5 * time.Minute,
			CacheSize:  4096,
			StaleAfter: 24 * time.Hour,
			Workers:    8,
			SkipDirs:   append([]string(nil), DefaultSkipDirs...),
		},
		Knowledge: KnowledgeConfig{
			Backend:    "json",
			MaxHistory: 1000,
		},
	}
}
