// Package mock provides an in-memory mock implementation of [audio.Player]
// for use in unit tests.
//
// The mock records every call so that tests can assert on call counts and the
// exact WAV buffers handed over:
//
//	p := &mock.Player{}
//	pipeline, _ := speech.NewPipeline(synth, p)
//	...
//	if p.CallCountPlay() != 1 { t.Fatal(...) }
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/pkg/audio"
)

// Player is a mock implementation of [audio.Player]. Safe for concurrent use.
type Player struct {
	mu sync.Mutex

	// PlayError, if non-nil, is returned by every Play call.
	PlayError error

	// Played holds a copy of each WAV buffer passed to Play, in order.
	Played [][]byte

	callCountPlay  int
	callCountStop  int
	callCountClose int
}

var _ audio.Player = (*Player)(nil)

// Play records the buffer and returns PlayError.
func (p *Player) Play(_ context.Context, wav []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callCountPlay++
	buf := make([]byte, len(wav))
	copy(buf, wav)
	p.Played = append(p.Played, buf)
	return p.PlayError
}

// Stop records the call.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callCountStop++
}

// Close records the call and returns nil.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callCountClose++
	return nil
}

// CallCountPlay returns how many times Play was called.
func (p *Player) CallCountPlay() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callCountPlay
}

// CallCountStop returns how many times Stop was called.
func (p *Player) CallCountStop() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callCountStop
}

// CallCountClose returns how many times Close was called.
func (p *Player) CallCountClose() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callCountClose
}

// LastPlayed returns the most recent WAV buffer passed to Play, or nil.
func (p *Player) LastPlayed() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Played) == 0 {
		return nil
	}
	return p.Played[len(p.Played)-1]
}
