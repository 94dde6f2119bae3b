// Package session implements the conversation orchestrator: it routes each
// user turn to one of the remote capabilities (image analysis, image
// generation, free-form conversation), drives transcript summarisation out
// of band, and owns the conversation store, the speech pipeline handle, and
// the busy gate for its lifetime.
//
// Routing is priority ordered: a pending image attachment wins, then the
// image-generation trigger phrase, then plain conversation. Every networked
// path appends a provisional working turn first and a retained reply turn
// after, and the reply text is always spoken, fallback text included. All
// capability failures surface to the user as one of a small fixed set of
// fallback strings, never as a raw error.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/parley/internal/conversation"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/pkg/provider/capability"
)

// generateTrigger is the case-insensitive prefix that selects the
// image-generation path. The remainder of the text is the prompt.
const generateTrigger = "generate an image of"

// DefaultAnalyzePrompt is substituted when the user attaches an image
// without any accompanying text.
const DefaultAnalyzePrompt = "What is in this image?"

// workingText is the provisional turn appended while a capability call is
// in flight. It is retained alongside the final reply, not replaced by it.
const workingText = "Working on it…"

// Path-specific fallback strings. These are the only failure texts a user
// ever sees; they are appended as the reply turn and spoken like any reply.
const (
	fallbackAnalyze   = "I am currently unable to analyze images. Please try again later."
	fallbackGenerate  = "I am currently unable to generate images. Please try again later."
	fallbackConverse  = "I am currently unable to respond. Please try again later."
	fallbackSummarize = "I am currently unable to summarize our conversation. Please try again later."
)

// generatedImageText is spoken and shown when image generation succeeds
// without any accompanying model commentary.
const generatedImageText = "Here is the image you asked for."

// ErrBusy is returned by Dispatch and Summarize while a previous request,
// including all of its retries, is still outstanding.
var ErrBusy = errors.New("session: a request is already in progress")

// Speaker renders reply text as audio. Implemented by speech.Pipeline.
type Speaker interface {
	// Speak is fire-and-forget; it must never block the dispatch path.
	Speak(text string)

	// Close stops playback and releases the speaker.
	Close()
}

// Config assembles a Session's collaborators.
type Config struct {
	// Analyzer handles the image-analysis path. Required.
	Analyzer capability.Analyzer

	// Generator handles the image-generation path. Required.
	Generator capability.ImageGenerator

	// Converser handles the conversation path. Required.
	Converser capability.Converser

	// Summarizer handles out-of-band transcript summarisation. Required.
	Summarizer capability.Summarizer

	// Speaker voices reply turns. Required.
	Speaker Speaker

	// Preamble is the persona system instruction prepended to every
	// conversation request. Optional.
	Preamble string

	// Store holds the conversation. Defaults to a fresh empty store.
	Store *conversation.Store

	// Retrier wraps every capability call. Defaults to the standard
	// three-attempt policy.
	Retrier *resilience.Retrier

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Session orchestrates one conversation.
type Session struct {
	analyzer   capability.Analyzer
	generator  capability.ImageGenerator
	converser  capability.Converser
	summarizer capability.Summarizer
	speaker    Speaker
	store      *conversation.Store
	metrics    *observe.Metrics

	// mu guards the hot-reloadable tuning below.
	mu       sync.RWMutex
	preamble string
	retrier  *resilience.Retrier

	// busy gates dispatches. Set exactly once on entry and cleared exactly
	// once in a defer, regardless of how many retry attempts run.
	busy atomic.Bool
}

// New creates a Session. All four capability backends and the speaker are
// required.
func New(cfg Config) (*Session, error) {
	if cfg.Analyzer == nil {
		return nil, errors.New("session: analyzer must not be nil")
	}
	if cfg.Generator == nil {
		return nil, errors.New("session: generator must not be nil")
	}
	if cfg.Converser == nil {
		return nil, errors.New("session: converser must not be nil")
	}
	if cfg.Summarizer == nil {
		return nil, errors.New("session: summarizer must not be nil")
	}
	if cfg.Speaker == nil {
		return nil, errors.New("session: speaker must not be nil")
	}
	if cfg.Store == nil {
		cfg.Store = conversation.NewStore()
	}
	if cfg.Retrier == nil {
		cfg.Retrier = resilience.NewRetrier(resilience.DefaultMaxAttempts, resilience.DefaultBaseDelay)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	s := &Session{
		analyzer:   cfg.Analyzer,
		generator:  cfg.Generator,
		converser:  cfg.Converser,
		summarizer: cfg.Summarizer,
		speaker:    cfg.Speaker,
		preamble:   cfg.Preamble,
		store:      cfg.Store,
		retrier:    cfg.Retrier,
		metrics:    cfg.Metrics,
	}
	s.metrics.ActiveSessions.Add(context.Background(), 1)
	return s, nil
}

// Store exposes the session's conversation store for rendering.
func (s *Session) Store() *conversation.Store { return s.store }

// SetPreamble swaps the persona preamble for subsequent conversation turns.
// Turns already in flight keep the preamble they started with.
func (s *Session) SetPreamble(preamble string) {
	s.mu.Lock()
	s.preamble = preamble
	s.mu.Unlock()
}

// SetRetrier swaps the retry policy for subsequent capability calls.
func (s *Session) SetRetrier(r *resilience.Retrier) {
	if r == nil {
		return
	}
	s.mu.Lock()
	s.retrier = r
	s.mu.Unlock()
}

// Busy reports whether a dispatch or summarisation is outstanding. The flag
// is mutated only by the session itself; callers use it to gate input.
func (s *Session) Busy() bool { return s.busy.Load() }

// Attach stages an image for the next Dispatch. It replaces any previously
// staged attachment.
func (s *Session) Attach(img *conversation.ImageRef) {
	s.store.SetAttachment(img)
}

// Clear atomically discards the conversation and any staged attachment.
func (s *Session) Clear() {
	s.store.Clear()
}

// Dispatch routes one user turn. Empty text with no staged attachment is a
// no-op that appends nothing. Returns [ErrBusy] while a previous request is
// outstanding; capability failures never surface as errors, they become
// fallback turns.
func (s *Session) Dispatch(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" && !s.store.HasAttachment() {
		return nil
	}
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.busy.Store(false)

	start := time.Now()
	defer func() {
		s.metrics.DispatchDuration.Record(ctx, time.Since(start).Seconds())
	}()

	// The attachment is consumed up front, whatever the call's outcome.
	img := s.store.TakeAttachment()

	s.store.Append(conversation.Turn{Role: conversation.RoleUser, Text: text, Image: img})
	s.store.Append(conversation.Turn{Role: conversation.RoleAssistant, Text: workingText})

	switch {
	case img != nil:
		s.analyze(ctx, text, img)
	case hasFoldPrefix(text, generateTrigger):
		prompt := strings.TrimSpace(text[len(generateTrigger):])
		s.generate(ctx, prompt)
	default:
		s.converse(ctx, text)
	}
	return nil
}

// Summarize condenses the conversation so far and appends the summary as a
// reply turn. An empty conversation returns immediately without a network
// call or any new turns.
func (s *Session) Summarize(ctx context.Context) error {
	if s.store.Len() == 0 {
		return nil
	}
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.busy.Store(false)

	transcript := s.store.Transcript()
	s.store.Append(conversation.Turn{Role: conversation.RoleAssistant, Text: workingText})

	reply, err := s.call(ctx, "summarize", func(ctx context.Context) (*capability.Reply, error) {
		return s.summarizer.Summarize(ctx, capability.SummarizeRequest{Transcript: transcript})
	})
	if err != nil {
		s.reply(conversation.Turn{Role: conversation.RoleAssistant, Text: fallbackSummarize})
		return nil
	}
	s.reply(conversation.Turn{Role: conversation.RoleAssistant, Text: reply.Text})
	return nil
}

// Close releases the session's speaker and decrements the session gauge.
// The conversation store stays readable after Close.
func (s *Session) Close() {
	s.speaker.Close()
	s.metrics.ActiveSessions.Add(context.Background(), -1)
}

func (s *Session) analyze(ctx context.Context, text string, img *conversation.ImageRef) {
	prompt := text
	if prompt == "" {
		prompt = DefaultAnalyzePrompt
	}
	reply, err := s.call(ctx, "analyze", func(ctx context.Context) (*capability.Reply, error) {
		return s.analyzer.Analyze(ctx, capability.AnalyzeRequest{
			Prompt:        prompt,
			Image:         img.Data,
			ImageMIMEType: img.MIMEType,
		})
	})
	if err != nil {
		s.reply(conversation.Turn{Role: conversation.RoleAssistant, Text: fallbackAnalyze})
		return
	}
	s.reply(conversation.Turn{Role: conversation.RoleAssistant, Text: reply.Text})
}

func (s *Session) generate(ctx context.Context, prompt string) {
	reply, err := s.call(ctx, "generate_image", func(ctx context.Context) (*capability.Reply, error) {
		return s.generator.GenerateImage(ctx, capability.GenerateRequest{Prompt: prompt})
	})
	if err != nil {
		s.reply(conversation.Turn{Role: conversation.RoleAssistant, Text: fallbackGenerate})
		return
	}
	text := reply.Text
	if text == "" {
		text = generatedImageText
	}
	turn := conversation.Turn{Role: conversation.RoleAssistant, Text: text}
	if len(reply.ImageData) > 0 {
		turn.Image = &conversation.ImageRef{Data: reply.ImageData, MIMEType: reply.ImageMIMEType}
	}
	s.reply(turn)
}

func (s *Session) converse(ctx context.Context, text string) {
	s.mu.RLock()
	preamble := s.preamble
	s.mu.RUnlock()

	reply, err := s.call(ctx, "converse", func(ctx context.Context) (*capability.Reply, error) {
		return s.converser.Converse(ctx, capability.ConverseRequest{
			Preamble: preamble,
			Text:     text,
		})
	})
	if err != nil {
		s.reply(conversation.Turn{Role: conversation.RoleAssistant, Text: fallbackConverse})
		return
	}
	s.reply(conversation.Turn{Role: conversation.RoleAssistant, Text: reply.Text})
}

// call wraps one capability invocation in the retry policy and records
// metrics. A response without usable content is a permanent failure: the
// transport worked, repeating the request would just repeat the answer.
func (s *Session) call(ctx context.Context, op string, fn func(context.Context) (*capability.Reply, error)) (*capability.Reply, error) {
	s.mu.RLock()
	retrier := s.retrier
	s.mu.RUnlock()

	start := time.Now()
	defer func() {
		s.metrics.RecordCapabilityDuration(ctx, op, time.Since(start).Seconds())
	}()

	reply, err := resilience.Do(ctx, retrier, op, func(ctx context.Context) (*capability.Reply, error) {
		s.metrics.RecordRetryAttempt(ctx, op)
		r, err := fn(ctx)
		if err != nil {
			if errors.Is(err, capability.ErrNoContent) {
				return nil, resilience.Permanent(err)
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return r, nil
	})
	if err != nil {
		slog.Warn("capability call failed", "op", op, "error", err)
		s.metrics.RecordCapabilityRequest(ctx, op, "error")
		s.metrics.RecordCapabilityError(ctx, op)
		return nil, err
	}
	s.metrics.RecordCapabilityRequest(ctx, op, "ok")
	return reply, nil
}

// reply appends the final reply turn and voices its text. Fallback turns go
// through here too, so failures are spoken like any other reply.
func (s *Session) reply(turn conversation.Turn) {
	s.store.Append(turn)
	s.speaker.Speak(turn.Text)
}

// hasFoldPrefix reports whether text starts with prefix under Unicode case
// folding.
func hasFoldPrefix(text, prefix string) bool {
	return len(text) >= len(prefix) && strings.EqualFold(text[:len(prefix)], prefix)
}
