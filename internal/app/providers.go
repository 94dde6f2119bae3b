package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/pkg/provider/capability"
)

// textPair combines a backend's Converser and Summarizer slots into one
// value for the fallback group.
type textPair struct {
	capability.Converser
	capability.Summarizer
}

// BuildProviders instantiates the providers named in cfg using the registry
// and composes fallback chains from each entry's Fallbacks list. Every
// fallback backend runs behind its own circuit breaker; a failing primary is
// bypassed until it recovers.
func BuildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}

	entry := cfg.Providers.Capability
	backend, err := reg.CreateCapability(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("app: create capability provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "capability", "name", entry.Name, "model", entry.Model)

	ps.Capability, err = composeCapability(ctx, entry, backend, reg)
	if err != nil {
		return nil, err
	}

	if name := cfg.Providers.Speech.Name; name != "" {
		synth, err := reg.CreateSpeech(ctx, cfg.Providers.Speech)
		if err != nil {
			return nil, fmt.Errorf("app: create speech provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "speech", "name", name)

		if fallbacks := cfg.Providers.Speech.Fallbacks; len(fallbacks) > 0 {
			group := resilience.NewSynthesizerFallback(synth, name, resilience.FallbackConfig{})
			for _, fb := range fallbacks {
				fbSynth, err := reg.CreateSpeech(ctx, fb)
				if err != nil {
					return nil, fmt.Errorf("app: create speech fallback %q: %w", fb.Name, err)
				}
				group.AddFallback(fb.Name, fbSynth)
				slog.Info("fallback registered", "kind", "speech", "name", fb.Name)
			}
			ps.Synthesizer = group
		} else {
			ps.Synthesizer = synth
		}
	}

	return ps, nil
}

// composeCapability wraps the primary backend's text and image slots in
// fallback groups when the entry declares fallbacks. The analyze path has no
// fallback wrapper; image analysis is only served by the primary.
func composeCapability(ctx context.Context, entry config.ProviderEntry, primary *config.CapabilityBackend, reg *config.Registry) (*config.CapabilityBackend, error) {
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}
	if primary.Converser == nil || primary.Summarizer == nil {
		return nil, fmt.Errorf("app: capability provider %q cannot head a fallback chain without converse support", entry.Name)
	}

	text := resilience.NewConverserFallback(textPair{primary.Converser, primary.Summarizer}, entry.Name, resilience.FallbackConfig{})
	var images *resilience.ImageGeneratorFallback
	if primary.Generator != nil {
		images = resilience.NewImageGeneratorFallback(primary.Generator, entry.Name, resilience.FallbackConfig{})
	}

	for _, fb := range entry.Fallbacks {
		fbBackend, err := reg.CreateCapability(ctx, fb)
		if err != nil {
			return nil, fmt.Errorf("app: create capability fallback %q: %w", fb.Name, err)
		}
		if fbBackend.Converser != nil && fbBackend.Summarizer != nil {
			text.AddFallback(fb.Name, textPair{fbBackend.Converser, fbBackend.Summarizer})
		}
		if images != nil && fbBackend.Generator != nil {
			images.AddFallback(fb.Name, fbBackend.Generator)
		}
		slog.Info("fallback registered", "kind", "capability", "name", fb.Name)
	}

	composed := &config.CapabilityBackend{
		Analyzer:   primary.Analyzer,
		Generator:  primary.Generator,
		Converser:  text,
		Summarizer: text,
	}
	if images != nil {
		composed.Generator = images
	}
	return composed, nil
}
