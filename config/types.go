// Package config provides the goosecore runtime's configuration: which
// provider and model to run, the gating Mode, the known extensions to
// install by name, and the GCP/Claude provider-specific knobs spec §6
// describes as the "param" half of the configuration store.
package config

import (
	"fmt"
	"time"
)

// Config is the single entry point for goosecore's YAML/env configuration,
// grounded on the teacher's Config struct shape (a unified top-level
// document rather than one file per concern) but with the teacher's
// multi-agent/workflow/document-store fields replaced by this module's own
// GOOSE_PROVIDER/GOOSE_MODE/GCP_*/CLAUDE_THINKING_* surface.
type Config struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	Mode         string `yaml:"mode"`
	SystemPrompt string `yaml:"system_prompt,omitempty"`
	WorkingDir   string `yaml:"working_dir,omitempty"`
	SessionDir   string `yaml:"session_dir,omitempty"`

	Extensions map[string]ExtensionConfig `yaml:"extensions,omitempty"`

	GCP    GCPConfig    `yaml:"gcp,omitempty"`
	Claude ClaudeConfig `yaml:"claude,omitempty"`
	Plugin PluginConfig `yaml:"plugin,omitempty"`
}

// PluginConfig points at an external provider.Provider plugin executable,
// used when Config.Provider is "plugin" (component: plugins.Load).
type PluginConfig struct {
	Path string   `yaml:"path,omitempty"`
	Args []string `yaml:"args,omitempty"`
}

// ExtensionConfig is the YAML-facing description of one named extension,
// translated into agent.ExtensionConfig by cmd/goosecore before being
// handed to goose.Agent.RegisterKnownExtension.
type ExtensionConfig struct {
	Kind    string            `yaml:"kind"` // stdio, sse, builtin, frontend
	Cmd     string            `yaml:"cmd,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	URI     string            `yaml:"uri,omitempty"`
	Envs    map[string]string `yaml:"envs,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`
}

// GCPConfig configures the Vertex AI credential and retry layer (component
// D), mapped from the GCP_* environment keys spec §6 names.
type GCPConfig struct {
	ProjectID              string  `yaml:"project_id,omitempty"`
	Location               string  `yaml:"location,omitempty"`
	MaxRetries             int     `yaml:"max_retries,omitempty"`
	InitialRetryIntervalMS int     `yaml:"initial_retry_interval_ms,omitempty"`
	BackoffMultiplier      float64 `yaml:"backoff_multiplier,omitempty"`
	MaxRetryIntervalMS     int     `yaml:"max_retry_interval_ms,omitempty"`
}

// ClaudeConfig configures the Anthropic provider's extended-thinking mode,
// mapped from the CLAUDE_THINKING_* environment keys.
type ClaudeConfig struct {
	ThinkingEnabled bool `yaml:"thinking_enabled,omitempty"`
	ThinkingBudget  int  `yaml:"thinking_budget,omitempty"`
}

// Validate implements ConfigInterface.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("config: provider is required")
	}
	if c.Model == "" {
		return fmt.Errorf("config: model is required")
	}
	switch c.Mode {
	case "", "auto", "approve", "smart_approve", "chat":
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.Provider == "plugin" && c.Plugin.Path == "" {
		return fmt.Errorf("config: plugin provider requires plugin.path")
	}
	for name, ext := range c.Extensions {
		if err := ext.Validate(); err != nil {
			return fmt.Errorf("config: extension %q: %w", name, err)
		}
	}
	return nil
}

// SetDefaults implements ConfigInterface.
func (c *Config) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "approve"
	}
	if c.WorkingDir == "" {
		c.WorkingDir = "."
	}
	if c.SessionDir == "" {
		c.SessionDir = "./sessions"
	}
	c.GCP.SetDefaults()
}

// Validate implements ConfigInterface for ExtensionConfig.
func (e *ExtensionConfig) Validate() error {
	switch e.Kind {
	case "stdio":
		if e.Cmd == "" {
			return fmt.Errorf("stdio extension requires cmd")
		}
	case "sse":
		if e.URI == "" {
			return fmt.Errorf("sse extension requires uri")
		}
	case "builtin", "frontend":
	default:
		return fmt.Errorf("unknown extension kind %q", e.Kind)
	}
	return nil
}

// SetDefaults implements ConfigInterface for GCPConfig, matching the
// exponential-backoff constants component D's retry layer documents.
func (g *GCPConfig) SetDefaults() {
	if g.MaxRetries == 0 {
		g.MaxRetries = 6
	}
	if g.InitialRetryIntervalMS == 0 {
		g.InitialRetryIntervalMS = 5000
	}
	if g.BackoffMultiplier == 0 {
		g.BackoffMultiplier = 2.0
	}
	if g.MaxRetryIntervalMS == 0 {
		g.MaxRetryIntervalMS = 320000
	}
}
