package config

import "reflect"

// DiffResult describes what changed between two configs. Only fields that can be
// hot-reloaded without restarting providers are tracked; provider or server
// changes require a restart and are reported via RestartRequired.
type DiffResult struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	PreambleChanged bool
	NewPreamble     string

	RetryChanged bool
	NewRetry     RetryConfig

	// RestartRequired is set when provider, server or audio settings
	// changed; those are wired at startup and cannot be swapped live.
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) DiffResult {
	d := DiffResult{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Persona.Preamble != new.Persona.Preamble {
		d.PreambleChanged = true
		d.NewPreamble = new.Persona.Preamble
	}
	if old.Retry != new.Retry {
		d.RetryChanged = true
		d.NewRetry = new.Retry
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Audio != new.Audio ||
		!providerEntryEqual(old.Providers.Capability, new.Providers.Capability) ||
		!providerEntryEqual(old.Providers.Speech, new.Providers.Speech) {
		d.RestartRequired = true
	}

	return d
}

// HasChanges reports whether any tracked field differs.
func (d DiffResult) HasChanges() bool {
	return d.LogLevelChanged || d.PreambleChanged || d.RetryChanged || d.RestartRequired
}

// providerEntryEqual compares entries including nested Options maps and the
// fallback chain.
func providerEntryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if !reflect.DeepEqual(a.Options, b.Options) {
		return false
	}
	if len(a.Fallbacks) != len(b.Fallbacks) {
		return false
	}
	for i := range a.Fallbacks {
		if !providerEntryEqual(a.Fallbacks[i], b.Fallbacks[i]) {
			return false
		}
	}
	return true
}
