// Package speech contains the synthesis pipeline that turns reply text into
// playable audio: synthesize remotely, decode the inline base64 PCM payload,
// wrap it in a WAV container, and hand it to the audio player.
//
// Speak is fire-and-forget. Starting a new utterance always interrupts the
// previous playback; at most one playback is ever active. Failures anywhere
// in the pipeline are logged and swallowed. There is no retry and no
// user-visible fallback message on this path, unlike the text capabilities.
package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/provider/speech"
)

// Option is a functional option for configuring the Pipeline.
type Option func(*Pipeline)

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithTargetSampleRate resamples synthesized audio to the given rate before
// encoding. Zero (the default) keeps the synthesizer's native rate.
func WithTargetSampleRate(rate int) Option {
	return func(p *Pipeline) {
		p.targetRate = rate
	}
}

// Pipeline speaks reply text through a [speech.Synthesizer] and an
// [audio.Player].
type Pipeline struct {
	synth      speech.Synthesizer
	player     audio.Player
	metrics    *observe.Metrics
	targetRate int

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewPipeline creates a Pipeline. synth and player must be non-nil.
func NewPipeline(synth speech.Synthesizer, player audio.Player, opts ...Option) (*Pipeline, error) {
	if synth == nil {
		return nil, errors.New("speech: synthesizer must not be nil")
	}
	if player == nil {
		return nil, errors.New("speech: player must not be nil")
	}
	p := &Pipeline{
		synth:  synth,
		player: player,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p, nil
}

// Speak synthesizes and plays text asynchronously. Any utterance still
// playing is stopped first. Speak never blocks on network or playback and
// never reports an error; failures are logged and dropped.
func (p *Pipeline) Speak(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.player.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	go p.run(ctx, text)
}

// run executes one utterance. It owns ctx and exits silently on any failure.
func (p *Pipeline) run(ctx context.Context, text string) {
	defer p.wg.Done()

	start := time.Now()
	clip, err := p.synth.Synthesize(ctx, text)
	if err != nil {
		p.fail(ctx, "synthesize", err)
		return
	}

	rate, err := rateFromMIME(clip.MIMEType)
	if err != nil {
		p.fail(ctx, "parse", err)
		return
	}

	raw, err := base64.StdEncoding.DecodeString(clip.Audio)
	if err != nil {
		p.fail(ctx, "decode", err)
		return
	}

	samples := audio.SamplesFromBytes(raw)
	if p.targetRate > 0 && p.targetRate != rate {
		samples = audio.ResampleMono16(samples, rate, p.targetRate)
		rate = p.targetRate
	}
	wav := audio.EncodeWAV(samples, rate)

	p.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())

	// A newer Speak may have superseded this utterance during synthesis.
	if ctx.Err() != nil {
		return
	}
	if err := p.player.Play(ctx, wav); err != nil {
		p.fail(ctx, "playback", err)
	}
}

// fail logs and counts one swallowed pipeline failure.
func (p *Pipeline) fail(ctx context.Context, stage string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	slog.Warn("speech pipeline failure", "stage", stage, "error", err)
	p.metrics.RecordSynthesisFailure(ctx, stage)
}

// Close stops playback, cancels any in-flight utterance, and waits for the
// pipeline goroutine to exit. The player itself is owned by the caller and
// is not closed here.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	if p.cancel != nil {
		p.cancel()
	}
	p.player.Stop()
	p.mu.Unlock()
	p.wg.Wait()
}

// rateFromMIME extracts the rate=<int> parameter from a MIME type string
// such as "audio/L16;codec=pcm;rate=24000".
func rateFromMIME(mimeType string) (int, error) {
	for _, part := range strings.Split(mimeType, ";") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "rate="); ok {
			rate, err := strconv.Atoi(v)
			if err != nil || rate <= 0 {
				return 0, fmt.Errorf("speech: invalid rate parameter in %q", mimeType)
			}
			return rate, nil
		}
	}
	return 0, fmt.Errorf("speech: no rate parameter in %q", mimeType)
}
