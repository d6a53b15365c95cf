package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, yamlBody string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))
	return path
}

func TestLoad_FromFile_AppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, "provider: anthropic\nmodel: claude-3-5-sonnet-latest\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "approve", cfg.Mode)
	assert.Equal(t, ".", cfg.WorkingDir)
	assert.Equal(t, "./sessions", cfg.SessionDir)
	assert.Equal(t, 6, cfg.GCP.MaxRetries)
	assert.Equal(t, 2.0, cfg.GCP.BackoffMultiplier)
}

func TestLoad_MissingFile_FallsBackToEnv(t *testing.T) {
	t.Setenv("GOOSE_PROVIDER", "anthropic")
	t.Setenv("GOOSE_MODEL", "claude-3-5-haiku-latest")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "claude-3-5-haiku-latest", cfg.Model)
}

func TestLoad_EnvOverridesFileValues(t *testing.T) {
	path := writeConfigFile(t, "provider: anthropic\nmodel: claude-3-5-sonnet-latest\nmode: approve\n")
	t.Setenv("GOOSE_MODE", "chat")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "chat", cfg.Mode)
}

func TestLoad_ExpandsEnvVarsInFile(t *testing.T) {
	t.Setenv("TEST_GOOSE_MODEL", "claude-3-5-sonnet-latest")
	path := writeConfigFile(t, "provider: anthropic\nmodel: ${TEST_GOOSE_MODEL}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-sonnet-latest", cfg.Model)
}

func TestLoad_MissingProviderFailsValidation(t *testing.T) {
	path := writeConfigFile(t, "model: claude-3-5-sonnet-latest\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_UnknownModeFailsValidation(t *testing.T) {
	path := writeConfigFile(t, "provider: anthropic\nmodel: m\nmode: yolo\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestExtensionConfig_ValidateRequiresKindSpecificFields(t *testing.T) {
	cases := []struct {
		name    string
		ext     ExtensionConfig
		wantErr bool
	}{
		{"stdio needs cmd", ExtensionConfig{Kind: "stdio"}, true},
		{"stdio with cmd ok", ExtensionConfig{Kind: "stdio", Cmd: "mytool"}, false},
		{"sse needs uri", ExtensionConfig{Kind: "sse"}, true},
		{"sse with uri ok", ExtensionConfig{Kind: "sse", URI: "https://example.com"}, false},
		{"builtin needs nothing", ExtensionConfig{Kind: "builtin"}, false},
		{"unknown kind", ExtensionConfig{Kind: "nope"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.ext.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGCPConfig_SetDefaultsMatchesRetryConstants(t *testing.T) {
	var g GCPConfig
	g.SetDefaults()
	assert.Equal(t, 6, g.MaxRetries)
	assert.Equal(t, 5000, g.InitialRetryIntervalMS)
	assert.Equal(t, 2.0, g.BackoffMultiplier)
	assert.Equal(t, 320000, g.MaxRetryIntervalMS)
}

func TestConfig_ImplementsConfigInterface(t *testing.T) {
	var _ ConfigInterface = &Config{}
}
