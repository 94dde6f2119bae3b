package config

import (
	"context"
	"testing"

	capmock "github.com/MrWong99/parley/pkg/provider/capability/mock"
	"github.com/MrWong99/parley/pkg/provider/speech"
	speechmock "github.com/MrWong99/parley/pkg/provider/speech/mock"
)

func TestRegistry_CreateCapability(t *testing.T) {
	r := NewRegistry()
	var gotEntry ProviderEntry
	r.RegisterCapability("scripted", func(_ context.Context, entry ProviderEntry) (*CapabilityBackend, error) {
		gotEntry = entry
		p := &capmock.Provider{}
		return &CapabilityBackend{Analyzer: p, Generator: p, Converser: p, Summarizer: p}, nil
	})

	entry := ProviderEntry{Name: "scripted", APIKey: "key", Model: "model-1"}
	backend, err := r.CreateCapability(t.Context(), entry)
	if err != nil {
		t.Fatalf("CreateCapability: %v", err)
	}
	if backend.Converser == nil {
		t.Error("backend converser is nil")
	}
	if gotEntry.APIKey != "key" || gotEntry.Model != "model-1" {
		t.Errorf("factory received %+v", gotEntry)
	}
}

func TestRegistry_CreateSpeech(t *testing.T) {
	r := NewRegistry()
	r.RegisterSpeech("scripted", func(context.Context, ProviderEntry) (speech.Synthesizer, error) {
		return &speechmock.Synthesizer{}, nil
	})

	synth, err := r.CreateSpeech(t.Context(), ProviderEntry{Name: "scripted"})
	if err != nil {
		t.Fatalf("CreateSpeech: %v", err)
	}
	if synth == nil {
		t.Fatal("synthesizer is nil")
	}
}

func TestRegistry_OverwriteRegistration(t *testing.T) {
	r := NewRegistry()
	r.RegisterSpeech("dup", func(context.Context, ProviderEntry) (speech.Synthesizer, error) {
		t.Error("first registration should have been overwritten")
		return nil, nil
	})
	r.RegisterSpeech("dup", func(context.Context, ProviderEntry) (speech.Synthesizer, error) {
		return &speechmock.Synthesizer{}, nil
	})

	if _, err := r.CreateSpeech(t.Context(), ProviderEntry{Name: "dup"}); err != nil {
		t.Fatalf("CreateSpeech: %v", err)
	}
}
