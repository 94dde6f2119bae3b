package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/parley/pkg/provider/capability"
	"github.com/MrWong99/parley/pkg/provider/speech"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// CapabilityBackend bundles the capability interfaces one backend supports.
// Nil fields mean the backend does not serve that path; the application
// layer decides whether that is acceptable for its wiring.
type CapabilityBackend struct {
	Analyzer   capability.Analyzer
	Generator  capability.ImageGenerator
	Converser  capability.Converser
	Summarizer capability.Summarizer
}

// CapabilityFactory builds a capability backend from its config entry.
type CapabilityFactory func(ctx context.Context, entry ProviderEntry) (*CapabilityBackend, error)

// SpeechFactory builds a speech synthesizer from its config entry.
type SpeechFactory func(ctx context.Context, entry ProviderEntry) (speech.Synthesizer, error)

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	capability map[string]CapabilityFactory
	speech     map[string]SpeechFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		capability: make(map[string]CapabilityFactory),
		speech:     make(map[string]SpeechFactory),
	}
}

// RegisterCapability registers a capability backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterCapability(name string, factory CapabilityFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capability[name] = factory
}

// RegisterSpeech registers a speech synthesizer factory under name.
func (r *Registry) RegisterSpeech(name string, factory SpeechFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speech[name] = factory
}

// CreateCapability instantiates a capability backend using the factory
// registered under entry.Name. Returns [ErrProviderNotRegistered] if no
// factory has been registered for that name.
func (r *Registry) CreateCapability(ctx context.Context, entry ProviderEntry) (*CapabilityBackend, error) {
	r.mu.RLock()
	factory, ok := r.capability[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: capability/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(ctx, entry)
}

// CreateSpeech instantiates a speech synthesizer using the factory
// registered under entry.Name.
func (r *Registry) CreateSpeech(ctx context.Context, entry ProviderEntry) (speech.Synthesizer, error) {
	r.mu.RLock()
	factory, ok := r.speech[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: speech/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(ctx, entry)
}
