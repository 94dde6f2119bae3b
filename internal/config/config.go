// Package config provides the configuration schema, loader, provider
// registry, and file watcher for the Parley conversational client.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes human-readable YAML durations such as "2s" or "500ms".
type Duration time.Duration

// Std returns the wrapped [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements [yaml.Unmarshaler]. Values must carry a unit; a
// bare number is rejected.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("config: duration must be a string like \"2s\", got %q", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements [yaml.Marshaler].
func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Parley.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Persona   PersonaConfig   `yaml:"persona"`
	Retry     RetryConfig     `yaml:"retry"`
	Audio     AudioConfig     `yaml:"audio"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds settings for the ops HTTP server (health probes and
// the /metrics endpoint) and logging.
type ServerConfig struct {
	// ListenAddr is the TCP address the ops server listens on (e.g., ":8080").
	// Empty disables the ops server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// PersonaConfig holds the assistant persona.
type PersonaConfig struct {
	// Preamble is the system instruction establishing assistant identity and
	// tone, prepended to every conversation request. Wording is free; an
	// empty preamble sends conversation requests without a system
	// instruction.
	Preamble string `yaml:"preamble"`
}

// RetryConfig tunes the retry policy applied to every capability call.
type RetryConfig struct {
	// MaxAttempts bounds retries per call. Zero means the default of 3.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay seeds the exponential backoff. Zero means the default of 1s.
	BaseDelay Duration `yaml:"base_delay"`
}

// AudioConfig tunes playback.
type AudioConfig struct {
	// TargetSampleRate, when non-zero, resamples synthesized audio to this
	// rate before encoding. Zero keeps each clip's native rate.
	TargetSampleRate int `yaml:"target_sample_rate"`

	// PlayerCommand is the external command WAV buffers are piped to for
	// playback, including arguments (e.g. "aplay -q"). Empty selects the
	// first known playback command found on PATH, or silent operation when
	// none is installed.
	PlayerCommand string `yaml:"player_command"`
}

// ProvidersConfig declares which backend serves each concern. Each entry's
// Name selects a constructor registered in the [Registry].
type ProvidersConfig struct {
	// Capability backs the analyze, generate-image, converse and summarize
	// paths.
	Capability ProviderEntry `yaml:"capability"`

	// Speech backs text-to-speech synthesis.
	Speech ProviderEntry `yaml:"speech"`
}

// ProviderEntry is the common configuration block shared by all provider
// types.
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "gemini", "openai", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gemini-2.5-flash", "gpt-4o").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above (e.g., "voice", "image_model", "backend").
	Options map[string]any `yaml:"options"`

	// Fallbacks lists further providers tried in order when this one is
	// unavailable. Each fallback runs behind its own circuit breaker.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// StringOption returns the named entry from Options as a string, or def
// when absent or not a string.
func (e ProviderEntry) StringOption(key, def string) string {
	if v, ok := e.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}

// IntOption returns the named entry from Options as an int, or def when
// absent or not an integer.
func (e ProviderEntry) IntOption(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}
