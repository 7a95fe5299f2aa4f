package model

import (
	"strings"
)

// Limits enforced by Config.Validate.
const (
	MaxTemperature = 2.0
	MaxRetryLimit  = 10
)

// Default values used by DefaultConfig.
const (
	DefaultTemperature     = 0.7
	DefaultMaxOutputTokens = 4096
	DefaultMaxRetries      = 3
)

// Config selects and parameterizes a model for one run.
type Config struct {
	// Identifier has the form "provider/model-name". The model name may itself
	// contain slashes (e.g. "openrouter/anthropic/claude-3.5-sonnet").
	Identifier      string   `yaml:"identifier" json:"identifier"`
	Temperature     float64  `yaml:"temperature" json:"temperature"`
	MaxOutputTokens int      `yaml:"max_output_tokens" json:"max_output_tokens"`
	MaxRetries      int      `yaml:"max_retries" json:"max_retries"`
	ProviderOrder   []string `yaml:"provider_order,omitempty" json:"provider_order,omitempty"`
	JSONMode        bool     `yaml:"json_mode,omitempty" json:"json_mode,omitempty"`
}

// DefaultConfig returns a Config for identifier with default parameters.
func DefaultConfig(identifier string) Config {
	return Config{
		Identifier:      identifier,
		Temperature:     DefaultTemperature,
		MaxOutputTokens: DefaultMaxOutputTokens,
		MaxRetries:      DefaultMaxRetries,
	}
}

// Validate checks ranges and the identifier form.
func (c Config) Validate() error {
	if _, _, err := ParseIdentifier(c.Identifier); err != nil {
		return err
	}
	if c.Temperature < 0 || c.Temperature > MaxTemperature {
		return &InvalidConfigError{Field: "temperature", Reason: "must be within [0, 2]"}
	}
	if c.MaxOutputTokens < 0 {
		return &InvalidConfigError{Field: "max_output_tokens", Reason: "must not be negative"}
	}
	if c.MaxRetries < 0 || c.MaxRetries > MaxRetryLimit {
		return &InvalidConfigError{Field: "max_retries", Reason: "must be within [0, 10]"}
	}
	return nil
}

// OutputTokens returns MaxOutputTokens, or the default when unset.
func (c Config) OutputTokens() int {
	if c.MaxOutputTokens <= 0 {
		return DefaultMaxOutputTokens
	}
	return c.MaxOutputTokens
}

// ParseIdentifier splits "provider/model-name" at the first slash.
func ParseIdentifier(id string) (provider, name string, err error) {
	provider, name, ok := strings.Cut(strings.TrimSpace(id), "/")
	if !ok || provider == "" || name == "" {
		return "", "", &InvalidConfigError{Field: "identifier", Reason: `must have the form "provider/model-name", got "` + id + `"`}
	}
	return strings.ToLower(provider), name, nil
}
