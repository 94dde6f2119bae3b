// Package mock provides a test double for the speech.Synthesizer interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/pkg/provider/speech"
)

// Compile-time interface assertion.
var _ speech.Synthesizer = (*Synthesizer)(nil)

// Synthesizer is a scripted mock implementation of speech.Synthesizer.
// Safe for concurrent use.
type Synthesizer struct {
	mu sync.Mutex

	// Clip is returned by every successful Synthesize call.
	Clip *speech.Clip

	// Err, if non-nil, is returned instead of Clip.
	Err error

	// Texts records the text passed to each Synthesize call, in order.
	Texts []string
}

// Synthesize records the call and returns the scripted result.
func (s *Synthesizer) Synthesize(_ context.Context, text string) (*speech.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Texts = append(s.Texts, text)
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Clip != nil {
		c := *s.Clip
		return &c, nil
	}
	return &speech.Clip{Audio: "", MIMEType: "audio/L16;rate=24000"}, nil
}

// CallCount returns how many times Synthesize was called.
func (s *Synthesizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Texts)
}
