// Package speech defines the Synthesizer interface for text-to-speech
// backends.
//
// A synthesizer wraps a remote speech service and returns the service's
// response in wire form: a base64-encoded raw PCM payload plus the MIME
// type string that declares the sample rate as a rate= parameter. Decoding
// and containerisation happen downstream in the speech pipeline, keeping
// providers free of audio processing.
//
// Implementations must be safe for concurrent use.
package speech

import "context"

// Clip is the undecoded result of one synthesis request.
type Clip struct {
	// Audio is the base64-encoded raw little-endian 16-bit PCM payload
	// exactly as received from the service.
	Audio string

	// MIMEType declares the payload format and carries the sample rate as
	// a rate= parameter, e.g. "audio/L16;codec=pcm;rate=24000".
	MIMEType string
}

// Synthesizer is the abstraction over any text-to-speech backend.
type Synthesizer interface {
	// Synthesize renders text as speech and returns the raw clip. A non-nil
	// error covers transport failures and responses without an audio
	// payload alike; callers do not retry.
	Synthesize(ctx context.Context, text string) (*Clip, error)
}
