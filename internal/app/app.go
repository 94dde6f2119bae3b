// Package app wires all Parley subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run blocks serving the ops endpoint until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithPlayer,
// WithSpeaker, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/conversation"
	"github.com/MrWong99/parley/internal/health"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/internal/speech"
	"github.com/MrWong99/parley/pkg/audio"
	providerspeech "github.com/MrWong99/parley/pkg/provider/speech"
)

// Providers holds the remote backends the application talks to. Populated by
// main.go via the config registry, typically through [BuildProviders].
type Providers struct {
	// Capability serves the analyze, generate, converse and summarize
	// paths. All four slots must be non-nil.
	Capability *config.CapabilityBackend

	// Synthesizer backs text-to-speech. Nil disables spoken replies; reply
	// text still flows through the conversation store.
	Synthesizer providerspeech.Synthesizer
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics *observe.Metrics
	player  audio.Player
	speaker session.Speaker
	session *session.Session
	store   *conversation.Store
	ops     *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithPlayer injects an audio player instead of building one from config.
func WithPlayer(p audio.Player) Option {
	return func(a *App) { a.player = p }
}

// WithSpeaker injects a speaker instead of constructing the synthesis
// pipeline. The injected speaker is closed by the session on shutdown.
func WithSpeaker(s session.Speaker) Option {
	return func(a *App) { a.speaker = s }
}

// WithStore injects a conversation store instead of starting empty.
func WithStore(st *conversation.Store) Option {
	return func(a *App) { a.store = st }
}

// WithMetrics injects a metrics instance instead of the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers == nil {
		return nil, errors.New("app: providers must not be nil")
	}
	if providers.Capability == nil {
		return nil, errors.New("app: capability backend must not be nil")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initSpeaker(); err != nil {
		return nil, fmt.Errorf("app: init speaker: %w", err)
	}
	if err := a.initSession(); err != nil {
		return nil, fmt.Errorf("app: init session: %w", err)
	}
	a.initOpsServer()

	return a, nil
}

// initSpeaker builds the audio player and the synthesis pipeline, unless a
// speaker was injected.
func (a *App) initSpeaker() error {
	if a.speaker != nil {
		return nil
	}

	if a.player == nil {
		player, err := buildPlayer(a.cfg.Audio)
		if err != nil {
			return err
		}
		a.player = player
	}

	if a.providers.Synthesizer == nil {
		slog.Warn("no speech provider configured, replies will be silent")
		a.speaker = silentSpeaker{player: a.player}
		return nil
	}

	pipelineOpts := []speech.Option{speech.WithMetrics(a.metrics)}
	if a.cfg.Audio.TargetSampleRate > 0 {
		pipelineOpts = append(pipelineOpts, speech.WithTargetSampleRate(a.cfg.Audio.TargetSampleRate))
	}
	pipeline, err := speech.NewPipeline(a.providers.Synthesizer, a.player, pipelineOpts...)
	if err != nil {
		return err
	}
	a.speaker = pipeline
	return nil
}

// buildPlayer resolves the playback command from config, falling back to a
// PATH scan and finally to silent operation.
func buildPlayer(cfg config.AudioConfig) (audio.Player, error) {
	if cfg.PlayerCommand != "" {
		fields := strings.Fields(cfg.PlayerCommand)
		return audio.NewCommandPlayer(fields[0], fields[1:]...)
	}

	name, args, err := audio.DefaultPlaybackCommand()
	if err != nil {
		slog.Warn("no playback command found, audio output disabled", "err", err)
		return audio.NopPlayer{}, nil
	}
	slog.Info("using playback command", "command", name)
	return audio.NewCommandPlayer(name, args...)
}

// initSession wires the conversation session with the retry policy from
// config.
func (a *App) initSession() error {
	sess, err := session.New(session.Config{
		Analyzer:   a.providers.Capability.Analyzer,
		Generator:  a.providers.Capability.Generator,
		Converser:  a.providers.Capability.Converser,
		Summarizer: a.providers.Capability.Summarizer,
		Speaker:    a.speaker,
		Preamble:   a.cfg.Persona.Preamble,
		Store:      a.store,
		Retrier:    resilience.NewRetrier(a.cfg.Retry.MaxAttempts, a.cfg.Retry.BaseDelay.Std()),
		Metrics:    a.metrics,
	})
	if err != nil {
		return err
	}
	a.session = sess
	a.store = sess.Store()

	// The session closes the speaker; the player is released separately.
	a.closers = append(a.closers, func() error {
		a.session.Close()
		return nil
	})
	if a.player != nil {
		a.closers = append(a.closers, a.player.Close)
	}
	return nil
}

// initOpsServer sets up the health and metrics HTTP server when a listen
// address is configured.
func (a *App) initOpsServer() {
	if a.cfg.Server.ListenAddr == "" {
		return
	}

	mux := http.NewServeMux()
	health.New(
		health.Checker{Name: "capability", Check: a.checkCapability},
		health.Checker{Name: "speech", Check: a.checkSpeech},
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.ops = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// checkCapability reports readiness of the capability backend.
func (a *App) checkCapability(context.Context) error {
	b := a.providers.Capability
	if b.Analyzer == nil || b.Generator == nil || b.Converser == nil || b.Summarizer == nil {
		return errors.New("capability backend incomplete")
	}
	return nil
}

// checkSpeech reports whether spoken replies are available.
func (a *App) checkSpeech(context.Context) error {
	if a.providers.Synthesizer == nil {
		return errors.New("no speech provider configured")
	}
	return nil
}

// Session returns the conversation session driven by the UI layer.
func (a *App) Session() *session.Session { return a.session }

// Run serves the ops endpoint (when configured) and blocks until ctx is
// cancelled. It returns the context's error, or the server error if the ops
// listener fails.
func (a *App) Run(ctx context.Context) error {
	if a.ops == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("ops server listening", "addr", a.ops.Addr)
		if err := a.ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: ops server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.ops.Shutdown(shutdownCtx); err != nil {
			slog.Warn("ops server shutdown error", "err", err)
		}
		return ctx.Err()
	})

	return g.Wait()
}

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// silentSpeaker satisfies the session's speaker slot when no speech provider
// is configured. It only releases the player on Close.
type silentSpeaker struct {
	player audio.Player
}

func (silentSpeaker) Speak(string) {}

func (s silentSpeaker) Close() {
	if s.player != nil {
		s.player.Stop()
	}
}
