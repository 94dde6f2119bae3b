package resilience

import (
	"context"

	"github.com/MrWong99/parley/pkg/provider/speech"
)

// SynthesizerFallback implements [speech.Synthesizer] with automatic
// failover across multiple speech backends. Each backend has its own
// circuit breaker.
//
// Note that failover is the only resilience applied to speech synthesis:
// the pipeline itself never retries a failed clip.
type SynthesizerFallback struct {
	group *FallbackGroup[speech.Synthesizer]
}

// Compile-time interface assertion.
var _ speech.Synthesizer = (*SynthesizerFallback)(nil)

// NewSynthesizerFallback creates a [SynthesizerFallback] with primary as the
// preferred backend.
func NewSynthesizerFallback(primary speech.Synthesizer, primaryName string, cfg FallbackConfig) *SynthesizerFallback {
	return &SynthesizerFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional speech backend.
func (f *SynthesizerFallback) AddFallback(name string, backend speech.Synthesizer) {
	f.group.AddFallback(name, backend)
}

// Synthesize renders text using the first healthy backend.
func (f *SynthesizerFallback) Synthesize(ctx context.Context, text string) (*speech.Clip, error) {
	return ExecuteWithResult(f.group, func(b speech.Synthesizer) (*speech.Clip, error) {
		return b.Synthesize(ctx, text)
	})
}
