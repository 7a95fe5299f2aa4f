// Package config handles agentloop CLI configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentloop/flow"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/retry"
)

// DefaultSearchPaths returns the config file search order.
// Then: ./agentloop.yaml, ~/.config/agentloop/config.yaml, /etc/agentloop/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"agentloop.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "agentloop", "config.yaml"))
	}

	paths = append(paths, "/etc/agentloop/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all agentloop CLI configuration.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json, text or empty for auto

	Listen ListenConfig `yaml:"listen"`

	Model         model.Config `yaml:"model"`
	SystemPrompt  string       `yaml:"system_prompt"`
	MaxIterations int          `yaml:"max_iterations"`

	Retry     RetryConfig                 `yaml:"retry"`
	Providers map[string]ProviderOverride `yaml:"providers"`
	Tools     ToolsConfig                 `yaml:"tools"`

	// Credentials maps credential types to secrets; use ${ENV} references
	// to keep secrets out of the file.
	Credentials map[string]string `yaml:"credentials"`
}

// ListenConfig defines the websocket server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// Addr returns the host:port listen address.
func (l ListenConfig) Addr() string { return fmt.Sprintf("%s:%d", l.Address, l.Port) }

// RetryConfig tunes the model call backoff.
type RetryConfig struct {
	BaseDelay time.Duration `yaml:"base_delay"`
	CapDelay  time.Duration `yaml:"cap_delay"`
}

// ProviderOverride adjusts a registered model provider.
type ProviderOverride struct {
	BaseURL          string `yaml:"base_url"`
	DisableStreaming bool   `yaml:"disable_streaming"`
}

// ToolsConfig selects the tools offered to every run.
type ToolsConfig struct {
	// Manifest is an optional path to a static tool manifest.
	Manifest string `yaml:"manifest"`
	// Enabled lists the tool names referenced by default.
	Enabled []string `yaml:"enabled"`
}

// Load reads configuration from a YAML file on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		LogLevel:      "info",
		Listen:        ListenConfig{Port: 8080},
		Model:         model.DefaultConfig("openai/gpt-4o-mini"),
		MaxIterations: flow.DefaultMaxIterations,
		Retry: RetryConfig{
			BaseDelay: retry.DefaultBaseDelay,
			CapDelay:  retry.DefaultCapDelay,
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q (want json or text)", c.LogFormat))
	}
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("listen.port %d out of range", c.Listen.Port))
	}
	if err := c.Model.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MaxIterations < flow.MinMaxIterations {
		errs = append(errs, fmt.Errorf("max_iterations must be at least %d, got %d", flow.MinMaxIterations, c.MaxIterations))
	}
	if c.Retry.BaseDelay < 0 || c.Retry.CapDelay < 0 {
		errs = append(errs, errors.New("retry delays must not be negative"))
	} else if c.Retry.CapDelay > 0 && c.Retry.CapDelay < c.Retry.BaseDelay {
		errs = append(errs, errors.New("retry.cap_delay must not be below retry.base_delay"))
	}

	return errors.Join(errs...)
}

// ApplyProviders installs the provider overrides into reg.
func (c *Config) ApplyProviders(reg *model.Registry) error {
	for name, o := range c.Providers {
		err := reg.Configure(name, func(spec *model.ProviderSpec) {
			if o.BaseURL != "" {
				spec.BaseURL = o.BaseURL
			}
			spec.DisableStreaming = o.DisableStreaming
		})
		if err != nil {
			return fmt.Errorf("providers.%s: %w", name, err)
		}
	}
	return nil
}

// RetryOptions returns controller options applying the configured delays.
func (c *Config) RetryOptions() []func(rc *retry.Controller) {
	return []func(rc *retry.Controller){func(rc *retry.Controller) {
		if c.Retry.BaseDelay > 0 {
			rc.BaseDelay = c.Retry.BaseDelay
		}
		if c.Retry.CapDelay > 0 {
			rc.CapDelay = c.Retry.CapDelay
		}
	}}
}

// LoggerConfig builds the logger configuration. An empty LogFormat selects
// text for terminals and JSON otherwise.
func (c *Config) LoggerConfig(terminal bool) (logging.LoggerConfig, error) {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return logging.LoggerConfig{}, err
	}
	format := c.LogFormat
	if format == "" {
		format = "json"
		if terminal {
			format = "text"
		}
	}
	return logging.LoggerConfig{Level: c.LogLevel, Format: format}, nil
}
