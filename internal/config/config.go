package config

import (
	"encoding/json"
	"fmt"

	"github.com/vaultpilot/vaultpilot/pkg/permission"
	"github.com/vaultpilot/vaultpilot/pkg/tools"
)

// Config is the persistent VaultPilot configuration, stored as JSON under
// the host config directory.
type Config struct {
	// Engine selects the streaming agent backend.
	Engine EngineConfig `json:"engine" mapstructure:"engine"`

	// Permissions holds the durable policy settings.
	Permissions PermissionsConfig `json:"permissions" mapstructure:"permissions"`

	// Limits are the per-turn tool-call ceilings.
	Limits LimitsConfig `json:"limits" mapstructure:"limits"`

	// History configures the turn archive and its retention sweep.
	History HistoryConfig `json:"history" mapstructure:"history"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Bridge configures the websocket UI bridge.
	Bridge BridgeConfig `json:"bridge" mapstructure:"bridge"`

	// Metrics configures the metrics endpoint.
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// VaultDir is the notes vault the agent works inside.
	VaultDir string `json:"vault_dir" mapstructure:"vault_dir"`

	// DataDir holds settings, history, and logs. Defaults to ~/.vaultpilot.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// EngineConfig selects and tunes the agent backend.
type EngineConfig struct {
	Provider     string `json:"provider" mapstructure:"provider"` // anthropic, openai
	Model        string `json:"model" mapstructure:"model"`
	APIKey       string `json:"api_key" mapstructure:"api_key"`
	SystemPrompt string `json:"system_prompt" mapstructure:"system_prompt"`
	MaxRetries   int    `json:"max_retries" mapstructure:"max_retries"`
}

// PermissionsConfig holds the durable policy settings.
type PermissionsConfig struct {
	AutoApproveWrites    bool     `json:"auto_approve_writes" mapstructure:"auto_approve_writes"`
	RequireShellApproval bool     `json:"require_shell_approval" mapstructure:"require_shell_approval"`
	AlwaysAllowedTools   []string `json:"always_allowed_tools" mapstructure:"always_allowed_tools"`
	CommandAllowlist     []string `json:"command_allowlist" mapstructure:"command_allowlist"`
}

// LimitsConfig holds the per-turn tool-call ceilings. Zero values fall back
// to the built-in defaults.
type LimitsConfig struct {
	PerTool   map[string]int `json:"per_tool" mapstructure:"per_tool"`
	Aggregate int            `json:"aggregate" mapstructure:"aggregate"`
}

// HistoryConfig configures the sqlite turn archive.
type HistoryConfig struct {
	Path          string `json:"path" mapstructure:"path"`
	RetentionDays int    `json:"retention_days" mapstructure:"retention_days"`
	PruneSchedule string `json:"prune_schedule" mapstructure:"prune_schedule"` // cron expression
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// BridgeConfig holds the websocket UI bridge listener settings.
type BridgeConfig struct {
	Host          string `json:"host" mapstructure:"host"`
	Port          int    `json:"port" mapstructure:"port"`
	PromptTimeout int    `json:"prompt_timeout" mapstructure:"prompt_timeout"` // seconds
}

// MetricsConfig holds the metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	Port    int  `json:"port" mapstructure:"port"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Provider:   "anthropic",
			Model:      "claude-sonnet-4",
			MaxRetries: 2,
		},
		Permissions: PermissionsConfig{
			RequireShellApproval: true,
			AlwaysAllowedTools:   []string{},
			CommandAllowlist:     []string{},
		},
		History: HistoryConfig{
			RetentionDays: 30,
			PruneSchedule: "0 3 * * *",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
		Bridge: BridgeConfig{
			Host:          "127.0.0.1",
			Port:          8750,
			PromptTimeout: 120,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9750,
		},
	}
}

// String returns a JSON representation of the config with the API key masked.
func (c *Config) String() string {
	masked := *c
	if masked.Engine.APIKey != "" {
		masked.Engine.APIKey = "***"
	}
	data, _ := json.MarshalIndent(&masked, "", "  ")
	return string(data)
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	switch c.Engine.Provider {
	case "anthropic", "openai":
	case "":
		return fmt.Errorf("engine provider is required")
	default:
		return fmt.Errorf("invalid engine provider %q (must be: anthropic, openai)", c.Engine.Provider)
	}

	if c.Engine.Model == "" {
		return fmt.Errorf("engine model is required")
	}
	if c.Engine.APIKey == "" {
		return fmt.Errorf("engine api_key is required")
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine max_retries must not be negative")
	}

	for _, name := range c.Permissions.AlwaysAllowedTools {
		if tools.IsShell(name) {
			return fmt.Errorf("tool %s cannot be always-allowed", name)
		}
	}

	for name, limit := range c.Limits.PerTool {
		if limit <= 0 {
			return fmt.Errorf("per-tool limit for %s must be positive", name)
		}
	}
	if c.Limits.Aggregate < 0 {
		return fmt.Errorf("aggregate limit must not be negative")
	}

	if c.History.RetentionDays < 0 {
		return fmt.Errorf("history retention_days must not be negative")
	}

	if c.Bridge.Port <= 0 || c.Bridge.Port > 65535 {
		return fmt.Errorf("invalid bridge port %d", c.Bridge.Port)
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port %d", c.Metrics.Port)
	}

	return nil
}

// PolicySettings converts the durable permission settings into the snapshot
// form the policy engine evaluates.
func (c *Config) PolicySettings() permission.Settings {
	return permission.Settings{
		AutoApproveWrites:    c.Permissions.AutoApproveWrites,
		RequireShellApproval: c.Permissions.RequireShellApproval,
		AlwaysAllowedTools:   append([]string(nil), c.Permissions.AlwaysAllowedTools...),
		CommandAllowlist:     append([]string(nil), c.Permissions.CommandAllowlist...),
	}
}
