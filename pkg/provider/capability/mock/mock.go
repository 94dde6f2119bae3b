// Package mock provides a scripted test double implementing every
// capability interface.
//
// Set the exported Reply/Err fields before use; inspect the recorded calls
// after. Errs, when non-empty, is consumed one entry per call before Err is
// consulted — this lets tests script "fail twice, then succeed" sequences
// for retry coverage.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/pkg/provider/capability"
)

// Compile-time interface assertions.
var (
	_ capability.Analyzer       = (*Provider)(nil)
	_ capability.ImageGenerator = (*Provider)(nil)
	_ capability.Converser      = (*Provider)(nil)
	_ capability.Summarizer     = (*Provider)(nil)
)

// Provider is a scripted mock implementation of all capability interfaces.
// Safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// Reply is returned by every successful call. Defaults to a reply with
	// Text "ok" when nil.
	Reply *capability.Reply

	// Err, if non-nil, is returned by every call once Errs is exhausted.
	Err error

	// Errs is a queue of per-call results consumed front-to-back. A nil
	// entry means that call succeeds. When empty, Err decides.
	Errs []error

	// AnalyzeCalls records the requests passed to Analyze, in order.
	AnalyzeCalls []capability.AnalyzeRequest

	// GenerateCalls records the requests passed to GenerateImage, in order.
	GenerateCalls []capability.GenerateRequest

	// ConverseCalls records the requests passed to Converse, in order.
	ConverseCalls []capability.ConverseRequest

	// SummarizeCalls records the requests passed to Summarize, in order.
	SummarizeCalls []capability.SummarizeRequest
}

// nextErr pops the next scripted error, falling back to Err.
func (p *Provider) nextErr() error {
	if len(p.Errs) > 0 {
		err := p.Errs[0]
		p.Errs = p.Errs[1:]
		return err
	}
	return p.Err
}

// reply returns the configured reply or the default.
func (p *Provider) reply() *capability.Reply {
	if p.Reply != nil {
		r := *p.Reply
		return &r
	}
	return &capability.Reply{Text: "ok"}
}

// Analyze implements capability.Analyzer.
func (p *Provider) Analyze(_ context.Context, req capability.AnalyzeRequest) (*capability.Reply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AnalyzeCalls = append(p.AnalyzeCalls, req)
	if err := p.nextErr(); err != nil {
		return nil, err
	}
	return p.reply(), nil
}

// GenerateImage implements capability.ImageGenerator.
func (p *Provider) GenerateImage(_ context.Context, req capability.GenerateRequest) (*capability.Reply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateCalls = append(p.GenerateCalls, req)
	if err := p.nextErr(); err != nil {
		return nil, err
	}
	return p.reply(), nil
}

// Converse implements capability.Converser.
func (p *Provider) Converse(_ context.Context, req capability.ConverseRequest) (*capability.Reply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConverseCalls = append(p.ConverseCalls, req)
	if err := p.nextErr(); err != nil {
		return nil, err
	}
	return p.reply(), nil
}

// Summarize implements capability.Summarizer.
func (p *Provider) Summarize(_ context.Context, req capability.SummarizeRequest) (*capability.Reply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SummarizeCalls = append(p.SummarizeCalls, req)
	if err := p.nextErr(); err != nil {
		return nil, err
	}
	return p.reply(), nil
}

// CallCount returns the total number of capability calls across all paths.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.AnalyzeCalls) + len(p.GenerateCalls) + len(p.ConverseCalls) + len(p.SummarizeCalls)
}
