// Package anyllm provides text-only conversation and summarisation
// capabilities backed by github.com/mozilla-ai/any-llm-go, a unified
// multi-provider interface supporting OpenAI, Anthropic, Gemini, Ollama,
// DeepSeek, Mistral, Groq, and more.
//
// It implements only [capability.Converser] and [capability.Summarizer];
// use it as a resilience fallback behind a multimodal primary.
//
// Usage:
//
//	p, err := anyllm.New("anthropic", "claude-sonnet-4-5", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/parley/pkg/provider/capability"
)

// Compile-time interface assertions.
var (
	_ capability.Converser  = (*Client)(nil)
	_ capability.Summarizer = (*Client)(nil)
)

// Client implements the text capabilities by wrapping any-llm-go.
type Client struct {
	backend anyllmlib.Provider
	model   string
}

// New creates a Client backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp", "llamafile". model is the
// specific model to use. opts are any-llm-go configuration options; if no
// API key option is provided, the backend falls back to its environment
// variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, …).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Client, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Client{backend: backend, model: model}, nil
}

// createBackend creates the underlying any-llm-go provider for the given name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Converse implements capability.Converser.
func (c *Client) Converse(ctx context.Context, req capability.ConverseRequest) (*capability.Reply, error) {
	var messages []anyllmlib.Message
	if req.Preamble != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: req.Preamble,
		})
	}
	messages = append(messages, anyllmlib.Message{
		Role:    anyllmlib.RoleUser,
		Content: req.Text,
	})
	return c.complete(ctx, messages)
}

// Summarize implements capability.Summarizer.
func (c *Client) Summarize(ctx context.Context, req capability.SummarizeRequest) (*capability.Reply, error) {
	messages := []anyllmlib.Message{{
		Role:    anyllmlib.RoleUser,
		Content: "Provide a concise summary of the following conversation:\n\n" + req.Transcript,
	}}
	return c.complete(ctx, messages)
}

// complete runs one completion against the backend and normalises the reply.
func (c *Client) complete(ctx context.Context, messages []anyllmlib.Message) (*capability.Reply, error) {
	resp, err := c.backend.Completion(ctx, anyllmlib.CompletionParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, capability.ErrNoContent
	}
	content := resp.Choices[0].Message.ContentString()
	if content == "" {
		return nil, capability.ErrNoContent
	}
	return &capability.Reply{Text: content}, nil
}
