package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads path (if it exists), expands ${VAR}/${VAR:-default}/$VAR
// references the teacher's expandEnvVars way, unmarshals the YAML, overlays
// any GOOSE_*/GCP_*/CLAUDE_THINKING_* environment variables on top (env
// always wins), applies defaults, and validates. path may be empty, in
// which case the config is built from environment variables alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else {
			expanded := expandEnvVars(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps the environment keys spec §6 names onto cfg,
// overriding whatever the YAML file set. Unset variables never clobber a
// value the file already provided.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GOOSE_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("GOOSE_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("GOOSE_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("GCP_PROJECT_ID"); v != "" {
		cfg.GCP.ProjectID = v
	}
	if v := os.Getenv("GCP_LOCATION"); v != "" {
		cfg.GCP.Location = v
	}
	if v := os.Getenv("GCP_MAX_RETRIES"); v != "" {
		cfg.GCP.MaxRetries = atoiOr(v, cfg.GCP.MaxRetries)
	}
	if v := os.Getenv("GCP_INITIAL_RETRY_INTERVAL_MS"); v != "" {
		cfg.GCP.InitialRetryIntervalMS = atoiOr(v, cfg.GCP.InitialRetryIntervalMS)
	}
	if v := os.Getenv("GCP_BACKOFF_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.GCP.BackoffMultiplier = f
		}
	}
	if v := os.Getenv("GCP_MAX_RETRY_INTERVAL_MS"); v != "" {
		cfg.GCP.MaxRetryIntervalMS = atoiOr(v, cfg.GCP.MaxRetryIntervalMS)
	}
	if v := os.Getenv("CLAUDE_THINKING_ENABLED"); v != "" {
		cfg.Claude.ThinkingEnabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("CLAUDE_THINKING_BUDGET"); v != "" {
		cfg.Claude.ThinkingBudget = atoiOr(v, cfg.Claude.ThinkingBudget)
	}
}

func atoiOr(s string, fallback int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return fallback
}
