package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/model/provider"
	"github.com/hupe1980/agentloop/retry"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestFindConfig_Explicit(t *testing.T) {
	path := writeConfig(t, "log_level: debug\n")

	got, err := FindConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/agentloop.yaml")
	assert.Error(t, err)
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agentloop.yaml"), []byte("log_level: info\n"), 0o600))
	t.Chdir(dir)

	got, err := FindConfig("")
	require.NoError(t, err)
	assert.Equal(t, "agentloop.yaml", got)
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
model:
  identifier: anthropic/claude-sonnet-4-5
  temperature: 0.2
  max_output_tokens: 2048
  max_retries: 2
retry:
  base_delay: 250ms
  cap_delay: 5s
providers:
  openrouter:
    disable_streaming: true
tools:
  enabled: [calc, clock]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.Listen.Port)
	assert.Equal(t, 10, cfg.MaxIterations)
	assert.Equal(t, "anthropic/claude-sonnet-4-5", cfg.Model.Identifier)
	assert.Equal(t, 0.2, cfg.Model.Temperature)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 5*time.Second, cfg.Retry.CapDelay)
	assert.True(t, cfg.Providers["openrouter"].DisableStreaming)
	assert.Equal(t, []string{"calc", "clock"}, cfg.Tools.Enabled)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("AGENTLOOP_TEST_KEY", "sk-test-123")
	path := writeConfig(t, "credentials:\n  openai_api_key: ${AGENTLOOP_TEST_KEY}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.Credentials["openai_api_key"])
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "model: [unclosed\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "log level", mutate: func(c *Config) { c.LogLevel = "loud" }, want: "unknown log level"},
		{name: "log format", mutate: func(c *Config) { c.LogFormat = "xml" }, want: "log_format"},
		{name: "port", mutate: func(c *Config) { c.Listen.Port = 70000 }, want: "listen.port"},
		{name: "model", mutate: func(c *Config) { c.Model.MaxRetries = 11 }, want: "max_retries"},
		{name: "iterations", mutate: func(c *Config) { c.MaxIterations = 1 }, want: "max_iterations"},
		{name: "negative delay", mutate: func(c *Config) { c.Retry.BaseDelay = -time.Second }, want: "negative"},
		{name: "cap below base", mutate: func(c *Config) { c.Retry.CapDelay = time.Millisecond }, want: "cap_delay"},
	}

	require.NoError(t, Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApplyProviders(t *testing.T) {
	cfg := Default()
	cfg.Providers = map[string]ProviderOverride{
		"ollama": {BaseURL: "http://gpu-box:11434/v1", DisableStreaming: true},
	}

	reg := provider.NewRegistry()
	require.NoError(t, cfg.ApplyProviders(reg))

	spec, ok := reg.Lookup("ollama")
	require.True(t, ok)
	assert.Equal(t, "http://gpu-box:11434/v1", spec.BaseURL)
	assert.True(t, spec.DisableStreaming)

	cfg.Providers = map[string]ProviderOverride{"acme": {}}
	err := cfg.ApplyProviders(reg)
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestRetryOptions(t *testing.T) {
	cfg := Default()
	cfg.Retry = RetryConfig{BaseDelay: 10 * time.Millisecond}

	c := retry.New(3, cfg.RetryOptions()...)
	assert.Equal(t, 10*time.Millisecond, c.BaseDelay)
	assert.Equal(t, retry.DefaultCapDelay, c.CapDelay)
}

func TestLoggerConfig(t *testing.T) {
	cfg := Default()

	lc, err := cfg.LoggerConfig(true)
	require.NoError(t, err)
	assert.Equal(t, "text", lc.Format)

	lc, err = cfg.LoggerConfig(false)
	require.NoError(t, err)
	assert.Equal(t, "json", lc.Format)

	cfg.LogFormat = "text"
	lc, err = cfg.LoggerConfig(false)
	require.NoError(t, err)
	assert.Equal(t, "text", lc.Format)
	assert.Equal(t, "info", lc.Level)
}
