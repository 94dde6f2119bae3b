// Package capability defines the provider interfaces for the remote
// generative-AI capabilities Parley routes requests to: image analysis,
// image generation, free-form conversation, and transcript summarisation.
//
// A backend package (e.g. capability/gemini) implements whichever of the
// four interfaces its service supports. The session layer composes them —
// optionally through resilience fallback groups — and never talks to a
// vendor SDK directly.
//
// Implementations must be safe for concurrent use.
package capability

import (
	"context"
	"errors"
)

// ErrNoContent is returned by a provider when the backend call succeeded at
// the transport level but the response lacks the expected payload (no text
// candidate, no inline image). Callers treat it like any other failure.
var ErrNoContent = errors.New("capability: response contains no usable content")

// AnalyzeRequest asks a vision-capable model to describe or answer a
// question about an attached image.
type AnalyzeRequest struct {
	// Prompt is the user's question about the image. Never empty — the
	// session substitutes a default prompt when the user sent only an image.
	Prompt string

	// Image is the raw image payload, transmitted inline.
	Image []byte

	// ImageMIMEType is the declared MIME type of Image (e.g. "image/png").
	ImageMIMEType string
}

// GenerateRequest asks an image-output model to render a picture.
type GenerateRequest struct {
	// Prompt is the description of the desired image, with the trigger
	// phrase already stripped by the session.
	Prompt string
}

// ConverseRequest is a general conversational exchange.
type ConverseRequest struct {
	// Preamble is the persona system instruction establishing assistant
	// identity and tone. May be empty.
	Preamble string

	// Text is the user's utterance.
	Text string
}

// SummarizeRequest asks for a condensed summary of a full conversation
// transcript.
type SummarizeRequest struct {
	// Transcript is the rendered conversation, one turn per line.
	Transcript string
}

// Reply is the normalised result of any capability call.
type Reply struct {
	// Text is the assistant's textual answer. Required for analyze,
	// converse and summarize; optional commentary for image generation.
	Text string

	// ImageData holds generated image bytes, if the capability produced any.
	ImageData []byte

	// ImageMIMEType is the MIME type of ImageData (e.g. "image/png").
	ImageMIMEType string
}

// Analyzer answers questions about an inline image.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*Reply, error)
}

// ImageGenerator renders an image from a textual prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req GenerateRequest) (*Reply, error)
}

// Converser produces a conversational reply to a user utterance.
type Converser interface {
	Converse(ctx context.Context, req ConverseRequest) (*Reply, error)
}

// Summarizer condenses a conversation transcript.
type Summarizer interface {
	Summarize(ctx context.Context, req SummarizeRequest) (*Reply, error)
}
