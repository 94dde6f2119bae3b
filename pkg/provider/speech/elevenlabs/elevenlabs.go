// Package elevenlabs provides an ElevenLabs-backed speech synthesizer using
// the streaming WebSocket API. It implements the speech.Synthesizer
// interface by accumulating the streamed PCM chunks into a single clip.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/parley/pkg/provider/speech"
)

// Compile-time interface assertion.
var _ speech.Synthesizer = (*Client)(nil)

const (
	wsEndpointFmt    = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s&output_format=%s"
	defaultModel     = "eleven_flash_v2_5"
	defaultVoiceID   = "21m00Tcm4TlvDq8ikWAM"
	defaultOutputFmt = "pcm_16000"
)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithVoiceID sets the ElevenLabs voice ID.
func WithVoiceID(id string) Option {
	return func(c *Client) { c.voiceID = id }
}

// WithOutputFormat sets the audio output format. Only raw PCM formats
// ("pcm_16000", "pcm_24000", …) are supported.
func WithOutputFormat(format string) Option {
	return func(c *Client) { c.outputFormat = format }
}

// WithEndpoint overrides the WebSocket endpoint format string. Primarily
// used in tests to point at a local mock server.
func WithEndpoint(format string) Option {
	return func(c *Client) { c.endpointFmt = format }
}

// Client implements speech.Synthesizer backed by the ElevenLabs streaming API.
type Client struct {
	apiKey       string
	model        string
	voiceID      string
	outputFormat string
	endpointFmt  string
}

// New creates a new ElevenLabs Client. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	c := &Client{
		apiKey:       apiKey,
		model:        defaultModel,
		voiceID:      defaultVoiceID,
		outputFormat: defaultOutputFmt,
		endpointFmt:  wsEndpointFmt,
	}
	for _, o := range opts {
		o(c)
	}
	if _, err := rateFromOutputFormat(c.outputFormat); err != nil {
		return nil, err
	}
	return c, nil
}

// ── WebSocket message types ───────────────────────────────────────────────────

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// Synthesize opens a WebSocket, sends the full text in one fragment, and
// drains audio chunks until the stream completes. The accumulated PCM is
// returned as a single base64 clip with a MIME type declaring the configured
// output rate (e.g. "audio/L16;rate=16000").
func (c *Client) Synthesize(ctx context.Context, text string) (*speech.Clip, error) {
	rate, err := rateFromOutputFormat(c.outputFormat)
	if err != nil {
		return nil, err
	}

	wsURL := fmt.Sprintf(c.endpointFmt, c.voiceID, c.model, c.outputFormat)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}

	// BOI handshake: ElevenLabs requires a non-empty first text value.
	for _, msg := range []textMessage{
		{Text: " ", VoiceSettings: vs, XiAPIKey: c.apiKey},
		{Text: text},
		{Text: ""}, // flush
	} {
		b, _ := json.Marshal(msg)
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			return nil, fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	var pcm []byte
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			// A normal closure after audio arrived is a complete stream.
			if len(pcm) > 0 && websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return nil, fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			continue
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode chunk: %w", err)
			}
			pcm = append(pcm, chunk...)
		}
		if resp.IsFinal {
			break
		}
	}

	if len(pcm) == 0 {
		return nil, errors.New("elevenlabs: stream produced no audio")
	}

	return &speech.Clip{
		Audio:    base64.StdEncoding.EncodeToString(pcm),
		MIMEType: fmt.Sprintf("audio/L16;rate=%d", rate),
	}, nil
}

// rateFromOutputFormat extracts the sample rate from a raw PCM output format
// name such as "pcm_16000".
func rateFromOutputFormat(format string) (int, error) {
	suffix, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: unsupported output format %q (raw PCM required)", format)
	}
	rate, err := strconv.Atoi(suffix)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: invalid output format rate in %q", format)
	}
	return rate, nil
}
