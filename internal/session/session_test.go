package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/parley/internal/conversation"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/pkg/provider/capability"
	capmock "github.com/MrWong99/parley/pkg/provider/capability/mock"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// speakerMock records spoken texts.
type speakerMock struct {
	mu     sync.Mutex
	texts  []string
	closed int
}

func (s *speakerMock) Speak(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
}

func (s *speakerMock) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
}

func (s *speakerMock) spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

// converserFunc adapts a function to capability.Converser.
type converserFunc func(ctx context.Context, req capability.ConverseRequest) (*capability.Reply, error)

func (f converserFunc) Converse(ctx context.Context, req capability.ConverseRequest) (*capability.Reply, error) {
	return f(ctx, req)
}

type fixture struct {
	session    *Session
	analyzer   *capmock.Provider
	generator  *capmock.Provider
	converser  *capmock.Provider
	summarizer *capmock.Provider
	speaker    *speakerMock
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f := &fixture{
		analyzer:   &capmock.Provider{},
		generator:  &capmock.Provider{},
		converser:  &capmock.Provider{},
		summarizer: &capmock.Provider{},
		speaker:    &speakerMock{},
	}
	cfg := Config{
		Analyzer:   f.analyzer,
		Generator:  f.generator,
		Converser:  f.converser,
		Summarizer: f.summarizer,
		Speaker:    f.speaker,
		Preamble:   "You are a helpful voice assistant.",
		Retrier:    resilience.NewRetrier(3, time.Millisecond),
		Metrics:    metrics,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.session, err = New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(f.session.Close)
	return f
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Fatal("expected error for empty config")
	}
}

func TestDispatch_EmptyInputIsNoop(t *testing.T) {
	f := newFixture(t, nil)

	for _, text := range []string{"", "   ", "\n\t"} {
		if err := f.session.Dispatch(context.Background(), text); err != nil {
			t.Fatalf("Dispatch(%q): %v", text, err)
		}
	}

	if got := f.session.Store().Len(); got != 0 {
		t.Errorf("store length = %d, want 0", got)
	}
	total := f.analyzer.CallCount() + f.generator.CallCount() + f.converser.CallCount()
	if total != 0 {
		t.Errorf("capability calls = %d, want 0", total)
	}
	if got := f.speaker.spoken(); len(got) != 0 {
		t.Errorf("spoken texts = %v, want none", got)
	}
}

func TestDispatch_GenerateTriggerExtractsPrompt(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"plain", "generate an image of a red fox", "a red fox"},
		{"upper case trigger", "Generate An Image Of a castle at dusk", "a castle at dusk"},
		{"surrounding space", "  generate an image of   two moons  ", "two moons"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			if err := f.session.Dispatch(context.Background(), tc.text); err != nil {
				t.Fatalf("Dispatch: %v", err)
			}
			if len(f.generator.GenerateCalls) != 1 {
				t.Fatalf("GenerateImage calls = %d, want 1", len(f.generator.GenerateCalls))
			}
			if got := f.generator.GenerateCalls[0].Prompt; got != tc.want {
				t.Errorf("prompt = %q, want %q", got, tc.want)
			}
			if f.converser.CallCount() != 0 {
				t.Error("converse path should not run for trigger text")
			}
		})
	}
}

func TestDispatch_GenerateAppendsImageTurn(t *testing.T) {
	f := newFixture(t, nil)
	f.generator.Reply = &capability.Reply{ImageData: []byte{1, 2, 3}, ImageMIMEType: "image/png"}

	if err := f.session.Dispatch(context.Background(), "generate an image of a boat"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	turns := f.session.Store().All()
	if len(turns) != 3 {
		t.Fatalf("store length = %d, want 3 (user, working, reply)", len(turns))
	}
	last := turns[2]
	if last.Text != generatedImageText {
		t.Errorf("reply text = %q, want %q", last.Text, generatedImageText)
	}
	if last.Image == nil || last.Image.MIMEType != "image/png" {
		t.Errorf("reply image = %+v, want image/png payload", last.Image)
	}
	if got := f.speaker.spoken(); len(got) != 1 || got[0] != generatedImageText {
		t.Errorf("spoken = %v, want [%q]", got, generatedImageText)
	}
}

func TestDispatch_ConversePassesPreamble(t *testing.T) {
	f := newFixture(t, nil)
	f.converser.Reply = &capability.Reply{Text: "hello to you"}

	if err := f.session.Dispatch(context.Background(), "good morning"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(f.converser.ConverseCalls) != 1 {
		t.Fatalf("Converse calls = %d, want 1", len(f.converser.ConverseCalls))
	}
	req := f.converser.ConverseCalls[0]
	if req.Preamble != "You are a helpful voice assistant." {
		t.Errorf("preamble = %q, want the configured persona", req.Preamble)
	}
	if req.Text != "good morning" {
		t.Errorf("text = %q, want %q", req.Text, "good morning")
	}

	turns := f.session.Store().All()
	if len(turns) != 3 {
		t.Fatalf("store length = %d, want 3", len(turns))
	}
	if turns[0].Role != conversation.RoleUser || turns[0].Text != "good morning" {
		t.Errorf("first turn = %+v, want the user turn", turns[0])
	}
	if turns[1].Text != workingText {
		t.Errorf("second turn text = %q, want working placeholder", turns[1].Text)
	}
	if turns[2].Role != conversation.RoleAssistant || turns[2].Text != "hello to you" {
		t.Errorf("third turn = %+v, want the reply", turns[2])
	}
}

func TestDispatch_AttachmentSelectsAnalyze(t *testing.T) {
	f := newFixture(t, nil)
	f.analyzer.Reply = &capability.Reply{Text: "a sunflower"}
	f.session.Attach(&conversation.ImageRef{Data: []byte{0xFF, 0xD8}, MIMEType: "image/jpeg"})

	if err := f.session.Dispatch(context.Background(), "what flower is this?"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(f.analyzer.AnalyzeCalls) != 1 {
		t.Fatalf("Analyze calls = %d, want 1", len(f.analyzer.AnalyzeCalls))
	}
	req := f.analyzer.AnalyzeCalls[0]
	if req.Prompt != "what flower is this?" {
		t.Errorf("prompt = %q", req.Prompt)
	}
	if req.ImageMIMEType != "image/jpeg" {
		t.Errorf("image MIME = %q, want image/jpeg", req.ImageMIMEType)
	}
	if f.session.Store().HasAttachment() {
		t.Error("attachment should be consumed by dispatch")
	}
	if f.converser.CallCount() != 0 {
		t.Error("attachment must win over the converse path")
	}
}

func TestDispatch_AnalyzeDefaultPrompt(t *testing.T) {
	f := newFixture(t, nil)
	f.session.Attach(&conversation.ImageRef{Data: []byte{1}, MIMEType: "image/png"})

	if err := f.session.Dispatch(context.Background(), ""); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(f.analyzer.AnalyzeCalls) != 1 {
		t.Fatalf("Analyze calls = %d, want 1", len(f.analyzer.AnalyzeCalls))
	}
	if got := f.analyzer.AnalyzeCalls[0].Prompt; got != DefaultAnalyzePrompt {
		t.Errorf("prompt = %q, want %q", got, DefaultAnalyzePrompt)
	}
}

func TestDispatch_AttachmentConsumedOnFailureToo(t *testing.T) {
	f := newFixture(t, nil)
	f.analyzer.Err = errors.New("vision backend down")
	f.session.Attach(&conversation.ImageRef{Data: []byte{1}, MIMEType: "image/png"})

	if err := f.session.Dispatch(context.Background(), "look"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if f.session.Store().HasAttachment() {
		t.Error("attachment should be consumed regardless of outcome")
	}
}

func TestDispatch_RetriesThenSucceeds(t *testing.T) {
	f := newFixture(t, nil)
	f.converser.Errs = []error{errors.New("transient"), errors.New("transient"), nil}
	f.converser.Reply = &capability.Reply{Text: "third time lucky"}

	if err := f.session.Dispatch(context.Background(), "hi"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if got := len(f.converser.ConverseCalls); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	turns := f.session.Store().All()
	if got := turns[len(turns)-1].Text; got != "third time lucky" {
		t.Errorf("reply = %q, want success text", got)
	}
}

func TestDispatch_FallbackAppendedAndSpokenExactlyOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.converser.Err = errors.New("hard down")

	if err := f.session.Dispatch(context.Background(), "hi"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if got := len(f.converser.ConverseCalls); got != 3 {
		t.Errorf("attempts = %d, want exactly 3", got)
	}

	var fallbacks int
	for _, turn := range f.session.Store().All() {
		if turn.Text == fallbackConverse {
			fallbacks++
		}
	}
	if fallbacks != 1 {
		t.Errorf("fallback turns = %d, want exactly 1", fallbacks)
	}
	if got := f.speaker.spoken(); len(got) != 1 || got[0] != fallbackConverse {
		t.Errorf("spoken = %v, want the fallback exactly once", got)
	}
}

func TestDispatch_PathSpecificFallbacks(t *testing.T) {
	t.Run("analyze", func(t *testing.T) {
		f := newFixture(t, nil)
		f.analyzer.Err = errors.New("down")
		f.session.Attach(&conversation.ImageRef{Data: []byte{1}, MIMEType: "image/png"})
		_ = f.session.Dispatch(context.Background(), "look")
		turns := f.session.Store().All()
		if got := turns[len(turns)-1].Text; got != fallbackAnalyze {
			t.Errorf("reply = %q, want %q", got, fallbackAnalyze)
		}
	})
	t.Run("generate", func(t *testing.T) {
		f := newFixture(t, nil)
		f.generator.Err = errors.New("down")
		_ = f.session.Dispatch(context.Background(), "generate an image of rain")
		turns := f.session.Store().All()
		if got := turns[len(turns)-1].Text; got != fallbackGenerate {
			t.Errorf("reply = %q, want %q", got, fallbackGenerate)
		}
	})
}

func TestDispatch_NoContentIsNotRetried(t *testing.T) {
	f := newFixture(t, nil)
	f.converser.Err = capability.ErrNoContent

	if err := f.session.Dispatch(context.Background(), "hi"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if got := len(f.converser.ConverseCalls); got != 1 {
		t.Errorf("attempts = %d, want 1 for a malformed response", got)
	}
	turns := f.session.Store().All()
	if got := turns[len(turns)-1].Text; got != fallbackConverse {
		t.Errorf("reply = %q, want %q", got, fallbackConverse)
	}
}

func TestDispatch_NoContentThroughFallbackChainIsNotRetried(t *testing.T) {
	primary := &capmock.Provider{Err: capability.ErrNoContent}
	secondary := &capmock.Provider{Err: capability.ErrNoContent}

	chain := resilience.NewConverserFallback(primary, "primary", resilience.FallbackConfig{})
	chain.AddFallback("secondary", secondary)

	f := newFixture(t, func(cfg *Config) {
		cfg.Converser = chain
	})

	if err := f.session.Dispatch(context.Background(), "hi"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	// A malformed response keeps its identity through the chain, so the
	// retrier stops after one pass instead of re-running the whole chain
	// with backoff.
	if got := len(primary.ConverseCalls); got != 1 {
		t.Errorf("primary attempts = %d, want 1 for a malformed response", got)
	}
	if got := len(secondary.ConverseCalls); got != 1 {
		t.Errorf("secondary attempts = %d, want 1 for a malformed response", got)
	}
	turns := f.session.Store().All()
	if got := turns[len(turns)-1].Text; got != fallbackConverse {
		t.Errorf("reply = %q, want %q", got, fallbackConverse)
	}
}

func TestDispatch_RecordsCapabilityLatency(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f := newFixture(t, func(cfg *Config) {
		cfg.Metrics = metrics
	})
	if err := f.session.Dispatch(context.Background(), "hi"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "parley.capability.duration" {
				continue
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatal("metric is not a histogram")
			}
			for _, dp := range hist.DataPoints {
				for _, kv := range dp.Attributes.ToSlice() {
					if string(kv.Key) == "capability" && kv.Value.AsString() == "converse" {
						if dp.Count != 1 {
							t.Errorf("sample count = %d, want 1", dp.Count)
						}
						return
					}
				}
			}
		}
	}
	t.Error("capability duration data point with capability=converse not found")
}

func TestDispatch_BusyGatesConcurrentDispatch(t *testing.T) {
	var f *fixture
	var nestedErr error
	f = newFixture(t, func(cfg *Config) {
		cfg.Converser = converserFunc(func(ctx context.Context, req capability.ConverseRequest) (*capability.Reply, error) {
			if !f.session.Busy() {
				t.Error("session should report busy during a capability call")
			}
			nestedErr = f.session.Dispatch(ctx, "second")
			return &capability.Reply{Text: "done"}, nil
		})
	})

	if err := f.session.Dispatch(context.Background(), "first"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !errors.Is(nestedErr, ErrBusy) {
		t.Errorf("nested dispatch error = %v, want ErrBusy", nestedErr)
	}
	if f.session.Busy() {
		t.Error("busy flag must clear after dispatch resolves")
	}
}

func TestSummarize_EmptyConversationIsNoop(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.session.Summarize(context.Background()); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if f.summarizer.CallCount() != 0 {
		t.Error("summarize should not call the backend on an empty conversation")
	}
	if got := f.session.Store().Len(); got != 0 {
		t.Errorf("store length = %d, want 0", got)
	}
}

func TestSummarize_SendsTranscriptAndSpeaksSummary(t *testing.T) {
	f := newFixture(t, nil)
	f.converser.Reply = &capability.Reply{Text: "nice to meet you"}
	f.summarizer.Reply = &capability.Reply{Text: "You introduced yourselves."}

	if err := f.session.Dispatch(context.Background(), "hello, I am Mira"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := f.session.Summarize(context.Background()); err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if len(f.summarizer.SummarizeCalls) != 1 {
		t.Fatalf("Summarize calls = %d, want 1", len(f.summarizer.SummarizeCalls))
	}
	transcript := f.summarizer.SummarizeCalls[0].Transcript
	if !strings.Contains(transcript, "hello, I am Mira") {
		t.Errorf("transcript missing user turn: %q", transcript)
	}

	turns := f.session.Store().All()
	if got := turns[len(turns)-1].Text; got != "You introduced yourselves." {
		t.Errorf("last turn = %q, want the summary", got)
	}
	spoken := f.speaker.spoken()
	if len(spoken) == 0 || spoken[len(spoken)-1] != "You introduced yourselves." {
		t.Errorf("spoken = %v, want the summary last", spoken)
	}
}

func TestSummarize_FallbackOnFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.summarizer.Err = errors.New("down")

	if err := f.session.Dispatch(context.Background(), "hello"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := f.session.Summarize(context.Background()); err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	turns := f.session.Store().All()
	if got := turns[len(turns)-1].Text; got != fallbackSummarize {
		t.Errorf("last turn = %q, want %q", got, fallbackSummarize)
	}
}

func TestClear_DropsConversationAndAttachment(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.session.Dispatch(context.Background(), "hello"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	f.session.Attach(&conversation.ImageRef{Data: []byte{1}, MIMEType: "image/png"})

	f.session.Clear()

	if got := f.session.Store().Len(); got != 0 {
		t.Errorf("store length = %d, want 0", got)
	}
	if f.session.Store().HasAttachment() {
		t.Error("clear must drop the staged attachment")
	}

	// Fresh appends work with no residue.
	if err := f.session.Dispatch(context.Background(), "again"); err != nil {
		t.Fatalf("Dispatch after clear: %v", err)
	}
	turns := f.session.Store().All()
	if turns[0].Text != "again" {
		t.Errorf("first turn after clear = %q, want %q", turns[0].Text, "again")
	}
}

func TestClose_ReleasesSpeaker(t *testing.T) {
	f := newFixture(t, nil)
	f.session.Close()
	if f.speaker.closed == 0 {
		t.Error("Close should release the speaker")
	}
}

func TestSetPreamble_AppliesToSubsequentTurns(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.session.Dispatch(t.Context(), "hello"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	f.session.SetPreamble("You are a pirate.")
	if err := f.session.Dispatch(t.Context(), "hello again"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	calls := f.converser.ConverseCalls
	if len(calls) != 2 {
		t.Fatalf("converse calls = %d, want 2", len(calls))
	}
	if calls[0].Preamble != "You are a helpful voice assistant." {
		t.Errorf("first preamble = %q", calls[0].Preamble)
	}
	if calls[1].Preamble != "You are a pirate." {
		t.Errorf("second preamble = %q", calls[1].Preamble)
	}
}

func TestSetRetrier_SwapsPolicy(t *testing.T) {
	f := newFixture(t, nil)
	f.converser.Err = errors.New("backend down")

	f.session.SetRetrier(resilience.NewRetrier(1, time.Millisecond))
	if err := f.session.Dispatch(t.Context(), "hello"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := len(f.converser.ConverseCalls); got != 1 {
		t.Errorf("converse attempts = %d, want 1 under the swapped policy", got)
	}

	// A nil retrier is ignored.
	f.session.SetRetrier(nil)
	if err := f.session.Dispatch(t.Context(), "hello"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := len(f.converser.ConverseCalls); got != 2 {
		t.Errorf("converse attempts = %d, want 2", got)
	}
}
