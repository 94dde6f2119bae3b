// Package openai implements the conversation, summarisation and image
// generation capabilities on top of the OpenAI API.
//
// Image analysis is deliberately not implemented here; wire a
// vision-capable provider (capability/gemini) for the analyze path.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/parley/pkg/provider/capability"
)

// Compile-time interface assertions.
var (
	_ capability.Converser      = (*Client)(nil)
	_ capability.Summarizer     = (*Client)(nil)
	_ capability.ImageGenerator = (*Client)(nil)
)

const (
	defaultChatModel  = oai.ChatModelGPT4o
	defaultImageModel = oai.ImageModelDallE3
)

// config holds optional configuration for the Client.
type config struct {
	baseURL    string
	chatModel  string
	imageModel string
	timeout    time.Duration
}

// Option is a functional option for Client.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithChatModel sets the chat model used for converse and summarize.
func WithChatModel(model string) Option {
	return func(c *config) { c.chatModel = model }
}

// WithImageModel sets the image generation model.
func WithImageModel(model string) Option {
	return func(c *config) { c.imageModel = model }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// Client implements capability interfaces using the OpenAI API.
type Client struct {
	client     oai.Client
	chatModel  string
	imageModel string
}

// New constructs a new OpenAI capability Client.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{
		chatModel:  defaultChatModel,
		imageModel: defaultImageModel,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Client{
		client:     oai.NewClient(reqOpts...),
		chatModel:  cfg.chatModel,
		imageModel: cfg.imageModel,
	}, nil
}

// Converse implements capability.Converser.
func (c *Client) Converse(ctx context.Context, req capability.ConverseRequest) (*capability.Reply, error) {
	messages := []oai.ChatCompletionMessageParamUnion{}
	if req.Preamble != "" {
		messages = append(messages, oai.SystemMessage(req.Preamble))
	}
	messages = append(messages, oai.UserMessage(req.Text))

	return c.complete(ctx, messages)
}

// Summarize implements capability.Summarizer.
func (c *Client) Summarize(ctx context.Context, req capability.SummarizeRequest) (*capability.Reply, error) {
	messages := []oai.ChatCompletionMessageParamUnion{
		oai.UserMessage("Provide a concise summary of the following conversation:\n\n" + req.Transcript),
	}
	return c.complete(ctx, messages)
}

// complete runs one chat completion and normalises the reply.
func (c *Client) complete(ctx context.Context, messages []oai.ChatCompletionMessageParamUnion) (*capability.Reply, error) {
	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:    c.chatModel,
		Messages: messages,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, capability.ErrNoContent
	}
	return &capability.Reply{Text: resp.Choices[0].Message.Content}, nil
}

// GenerateImage implements capability.ImageGenerator via the Images API,
// requesting an inline base64 payload.
func (c *Client) GenerateImage(ctx context.Context, req capability.GenerateRequest) (*capability.Reply, error) {
	resp, err := c.client.Images.Generate(ctx, oai.ImageGenerateParams{
		Prompt:         req.Prompt,
		Model:          c.imageModel,
		N:              oai.Int(1),
		ResponseFormat: oai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: generate image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, capability.ErrNoContent
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("openai: decode image payload: %w", err)
	}
	return &capability.Reply{
		ImageData:     data,
		ImageMIMEType: "image/png",
	}, nil
}
