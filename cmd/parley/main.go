// Command parley is the interactive entry point for the Parley assistant.
// It loads the YAML configuration, wires the configured capability and
// speech providers, and drives a conversation session from a line-oriented
// prompt on stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/parley/internal/app"
	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/conversation"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/internal/session"
	capanyllm "github.com/MrWong99/parley/pkg/provider/capability/anyllm"
	capgemini "github.com/MrWong99/parley/pkg/provider/capability/gemini"
	capopenai "github.com/MrWong99/parley/pkg/provider/capability/openai"
	providerspeech "github.com/MrWong99/parley/pkg/provider/speech"
	speechelevenlabs "github.com/MrWong99/parley/pkg/provider/speech/elevenlabs"
	speechgemini "github.com/MrWong99/parley/pkg/provider/speech/gemini"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "parley: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		}
		return 1
	}

	// The level var lets the config watcher adjust verbosity at runtime.
	levelVar := new(slog.LevelVar)
	levelVar.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("parley starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "parley"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := app.BuildProviders(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// Watch the config file so persona, retry tuning and log level apply
	// without a restart.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyConfigChange(application.Session(), levelVar, old, new)
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	go func() {
		if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("run error", "err", err)
		}
	}()

	if err := repl(ctx, application.Session()); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("input error", "err", err)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the
// appropriate client from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterCapability("gemini", func(ctx context.Context, entry config.ProviderEntry) (*config.CapabilityBackend, error) {
		var opts []capgemini.Option
		if entry.Model != "" {
			opts = append(opts, capgemini.WithTextModel(entry.Model))
		}
		if imageModel := entry.StringOption("image_model", ""); imageModel != "" {
			opts = append(opts, capgemini.WithImageModel(imageModel))
		}
		client, err := capgemini.New(ctx, entry.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		return &config.CapabilityBackend{
			Analyzer:   client,
			Generator:  client,
			Converser:  client,
			Summarizer: client,
		}, nil
	})

	// The OpenAI backend has no vision path; it serves text and image
	// generation, typically as a fallback behind gemini.
	reg.RegisterCapability("openai", func(_ context.Context, entry config.ProviderEntry) (*config.CapabilityBackend, error) {
		var opts []capopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, capopenai.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, capopenai.WithChatModel(entry.Model))
		}
		if imageModel := entry.StringOption("image_model", ""); imageModel != "" {
			opts = append(opts, capopenai.WithImageModel(imageModel))
		}
		client, err := capopenai.New(entry.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		return &config.CapabilityBackend{
			Generator:  client,
			Converser:  client,
			Summarizer: client,
		}, nil
	})

	// anyllm is text-only and multi-backend; the "backend" option names the
	// upstream service.
	reg.RegisterCapability("anyllm", func(_ context.Context, entry config.ProviderEntry) (*config.CapabilityBackend, error) {
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		client, err := capanyllm.New(entry.StringOption("backend", "openai"), entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return &config.CapabilityBackend{
			Converser:  client,
			Summarizer: client,
		}, nil
	})

	reg.RegisterSpeech("gemini", func(_ context.Context, entry config.ProviderEntry) (providerspeech.Synthesizer, error) {
		var opts []speechgemini.Option
		if entry.Model != "" {
			opts = append(opts, speechgemini.WithModel(entry.Model))
		}
		if voice := entry.StringOption("voice", ""); voice != "" {
			opts = append(opts, speechgemini.WithVoice(voice))
		}
		if entry.BaseURL != "" {
			opts = append(opts, speechgemini.WithBaseURL(entry.BaseURL))
		}
		return speechgemini.New(entry.APIKey, opts...)
	})

	reg.RegisterSpeech("elevenlabs", func(_ context.Context, entry config.ProviderEntry) (providerspeech.Synthesizer, error) {
		var opts []speechelevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, speechelevenlabs.WithModel(entry.Model))
		}
		if voiceID := entry.StringOption("voice_id", ""); voiceID != "" {
			opts = append(opts, speechelevenlabs.WithVoiceID(voiceID))
		}
		if format := entry.StringOption("output_format", ""); format != "" {
			opts = append(opts, speechelevenlabs.WithOutputFormat(format))
		}
		if entry.BaseURL != "" {
			opts = append(opts, speechelevenlabs.WithEndpoint(entry.BaseURL))
		}
		return speechelevenlabs.New(entry.APIKey, opts...)
	})
}

// applyConfigChange pushes hot-reloadable settings from a config file change
// into the running process.
func applyConfigChange(sess *session.Session, levelVar *slog.LevelVar, old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.HasChanges() {
		return
	}

	if d.LogLevelChanged {
		levelVar.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level updated", "level", d.NewLogLevel)
	}
	if d.PreambleChanged {
		sess.SetPreamble(d.NewPreamble)
		slog.Info("persona preamble updated")
	}
	if d.RetryChanged {
		sess.SetRetrier(resilience.NewRetrier(d.NewRetry.MaxAttempts, d.NewRetry.BaseDelay.Std()))
		slog.Info("retry policy updated",
			"max_attempts", d.NewRetry.MaxAttempts,
			"base_delay", d.NewRetry.BaseDelay,
		)
	}
	if d.RestartRequired {
		slog.Warn("provider, server or audio settings changed — restart to apply")
	}
}

// ── REPL ──────────────────────────────────────────────────────────────────────

// repl reads user input line by line and drives the session until EOF, a
// quit command, or context cancellation.
func repl(ctx context.Context, sess *session.Session) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Println(`Type a message and press enter. "/help" lists commands.`)

	for {
		if sess.Store().HasAttachment() {
			fmt.Print("[image attached] > ")
		} else {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue

		case line == "/quit", line == "/exit":
			return nil

		case line == "/help":
			printHelp()

		case line == "/clear":
			sess.Clear()
			fmt.Println("conversation cleared")

		case line == "/summarize":
			before := sess.Store().Len()
			if err := sess.Summarize(ctx); err != nil {
				reportDispatchError(err)
				continue
			}
			if sess.Store().Len() == before {
				fmt.Println("nothing to summarize yet")
				continue
			}
			printReplies(sess, before)

		case line == "/attach":
			fmt.Println("usage: /attach <path>")

		case strings.HasPrefix(line, "/attach "):
			attach(sess, strings.TrimSpace(strings.TrimPrefix(line, "/attach ")))

		case line == "/find", strings.HasPrefix(line, "/find "):
			printMatches(sess, strings.TrimSpace(strings.TrimPrefix(line, "/find")))

		case strings.HasPrefix(line, "/"):
			fmt.Printf("unknown command %q — /help lists commands\n", line)

		default:
			before := sess.Store().Len()
			if err := sess.Dispatch(ctx, line); err != nil {
				reportDispatchError(err)
				continue
			}
			printReplies(sess, before)
		}
	}
}

func printHelp() {
	fmt.Print(`Commands:
  /attach <path>   attach an image to the next message
  /clear           wipe the conversation and any pending attachment
  /summarize       summarize the conversation so far
  /find <text>     show turns containing text
  /quit            exit
Anything else is sent to the assistant. Start a message with
"generate an image of" to request a picture.
`)
}

// attach loads an image file and stages it for the next dispatch.
func attach(sess *session.Session, path string) {
	if path == "" {
		fmt.Println("usage: /attach <path>")
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("cannot read %s: %v\n", path, err)
		return
	}
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		fmt.Printf("%s does not look like an image (%s)\n", path, mimeType)
		return
	}
	sess.Attach(&conversation.ImageRef{Data: data, MIMEType: mimeType})
	fmt.Printf("attached %s (%s, %d bytes)\n", path, mimeType, len(data))
}

// printMatches renders the turns whose text contains query.
func printMatches(sess *session.Session, query string) {
	matches := sess.Store().Filter(query)
	if len(matches) == 0 {
		fmt.Println("no matching turns")
		return
	}
	for _, turn := range matches {
		fmt.Printf("%s: %s\n", turn.Role, turn.Text)
	}
}

// printReplies renders the assistant turns appended since index from.
func printReplies(sess *session.Session, from int) {
	turns := sess.Store().All()
	if from > len(turns) {
		return
	}
	for _, turn := range turns[from:] {
		if turn.Role != conversation.RoleAssistant {
			continue
		}
		printTurn(turn)
	}
}

// printTurn renders one assistant turn, setting fenced code apart from
// prose.
func printTurn(turn conversation.Turn) {
	for _, seg := range conversation.SplitCodeFences(turn.Text) {
		if seg.Code {
			label := seg.Lang
			if label == "" {
				label = "code"
			}
			fmt.Printf("--- %s ---\n%s\n---\n", label, strings.TrimRight(seg.Text, "\n"))
		} else {
			fmt.Println(strings.TrimSpace(seg.Text))
		}
	}
	if turn.Image != nil {
		fmt.Printf("[image: %s, %d bytes]\n", turn.Image.MIMEType, len(turn.Image.Data))
	}
}

func reportDispatchError(err error) {
	if errors.Is(err, session.ErrBusy) {
		fmt.Println("still working on the previous request")
		return
	}
	fmt.Printf("error: %v\n", err)
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Parley — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Capability", cfg.Providers.Capability.Name, cfg.Providers.Capability.Model)
	printProvider("Speech", cfg.Providers.Speech.Name, cfg.Providers.Speech.Model)
	fmt.Printf("║  Fallbacks       : %-19d ║\n",
		len(cfg.Providers.Capability.Fallbacks)+len(cfg.Providers.Speech.Fallbacks))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Ops server      : %-19s ║\n", cfg.Server.ListenAddr)
	} else {
		fmt.Printf("║  Ops server      : %-19s ║\n", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", kind, value)
}

// ── Logger ────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
