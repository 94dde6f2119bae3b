package audio

import "context"

// Player is the abstraction over an audio output device. The speech pipeline
// hands it complete WAV buffers produced by [EncodeWAV].
//
// Playback is exclusive: Play must stop any buffer still playing before it
// starts the new one, so no two playbacks ever overlap. Implementations must
// be safe for concurrent use.
type Player interface {
	// Play starts playback of a complete WAV buffer and returns without
	// waiting for playback to finish. If a previous buffer is still playing
	// it is stopped first. ctx governs the start of playback only.
	Play(ctx context.Context, wav []byte) error

	// Stop halts the current playback immediately. It is a no-op when
	// nothing is playing and is safe to call more than once.
	Stop()

	// Close releases the underlying output device. The Player must not be
	// used after Close. Close implies Stop.
	Close() error
}
