// Package gemini implements the capability provider interfaces on top of the
// Google Gemini API via google.golang.org/genai.
//
// One Client serves all four capabilities: text conversation and
// summarisation use the configured text model, image analysis sends the
// image bytes inline to the same model, and image generation targets a
// separate image-output model with the IMAGE response modality enabled.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/MrWong99/parley/pkg/provider/capability"
)

// Compile-time assertions that Client satisfies all capability interfaces.
var (
	_ capability.Analyzer       = (*Client)(nil)
	_ capability.ImageGenerator = (*Client)(nil)
	_ capability.Converser      = (*Client)(nil)
	_ capability.Summarizer     = (*Client)(nil)
)

const (
	defaultTextModel  = "gemini-2.5-flash"
	defaultImageModel = "gemini-2.0-flash-preview-image-generation"
)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithTextModel sets the model used for analyze, converse and summarize.
func WithTextModel(model string) Option {
	return func(c *Client) { c.textModel = model }
}

// WithImageModel sets the model used for image generation.
func WithImageModel(model string) Option {
	return func(c *Client) { c.imageModel = model }
}

// Client implements the capability interfaces backed by the Gemini API.
type Client struct {
	client     *genai.Client
	textModel  string
	imageModel string
}

// New creates a Gemini capability Client. apiKey must be non-empty.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	c := &Client{
		client:     gc,
		textModel:  defaultTextModel,
		imageModel: defaultImageModel,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Analyze sends the prompt and inline image bytes to the text model.
func (c *Client) Analyze(ctx context.Context, req capability.AnalyzeRequest) (*capability.Reply, error) {
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			genai.NewPartFromText(req.Prompt),
			genai.NewPartFromBytes(req.Image, req.ImageMIMEType),
		},
	}}
	resp, err := c.client.Models.GenerateContent(ctx, c.textModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: analyze: %w", err)
	}
	text := joinTextParts(resp)
	if text == "" {
		return nil, capability.ErrNoContent
	}
	return &capability.Reply{Text: text}, nil
}

// GenerateImage renders an image with the image-output model. The reply must
// contain inline image data; any accompanying text is carried along.
func (c *Client) GenerateImage(ctx context.Context, req capability.GenerateRequest) (*capability.Reply, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.imageModel, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate image: %w", err)
	}
	data, mimeType := firstInlineImage(resp)
	if len(data) == 0 {
		return nil, capability.ErrNoContent
	}
	return &capability.Reply{
		Text:          joinTextParts(resp),
		ImageData:     data,
		ImageMIMEType: mimeType,
	}, nil
}

// Converse sends the user text with the persona preamble as the system
// instruction.
func (c *Client) Converse(ctx context.Context, req capability.ConverseRequest) (*capability.Reply, error) {
	var cfg *genai.GenerateContentConfig
	if req.Preamble != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{genai.NewPartFromText(req.Preamble)},
			},
		}
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.textModel, genai.Text(req.Text), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: converse: %w", err)
	}
	text := joinTextParts(resp)
	if text == "" {
		return nil, capability.ErrNoContent
	}
	return &capability.Reply{Text: text}, nil
}

// Summarize condenses the transcript with the text model.
func (c *Client) Summarize(ctx context.Context, req capability.SummarizeRequest) (*capability.Reply, error) {
	prompt := summaryPrompt(req.Transcript)
	resp, err := c.client.Models.GenerateContent(ctx, c.textModel, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: summarize: %w", err)
	}
	text := joinTextParts(resp)
	if text == "" {
		return nil, capability.ErrNoContent
	}
	return &capability.Reply{Text: text}, nil
}

// summaryPrompt wraps a rendered transcript in the summarisation instruction.
func summaryPrompt(transcript string) string {
	return "Provide a concise summary of the following conversation:\n\n" + transcript
}

// joinTextParts concatenates all text parts of the first candidate.
// Returns "" when the response has no candidates or no text.
func joinTextParts(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// firstInlineImage returns the bytes and MIME type of the first inline image
// part of the first candidate, or nil when the response carries none.
func firstInlineImage(resp *genai.GenerateContentResponse) ([]byte, string) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ""
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.InlineData != nil && len(p.InlineData.Data) > 0 {
			return p.InlineData.Data, p.InlineData.MIMEType
		}
	}
	return nil, ""
}
