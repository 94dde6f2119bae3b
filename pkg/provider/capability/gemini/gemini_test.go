package gemini

import (
	"strings"
	"testing"

	"google.golang.org/genai"
)

func TestJoinTextParts(t *testing.T) {
	t.Run("concatenates text parts in order", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{
					{Text: "The image shows "},
					{Text: "a red fox."},
				}},
			}},
		}
		if got := joinTextParts(resp); got != "The image shows a red fox." {
			t.Errorf("joinTextParts = %q", got)
		}
	})

	t.Run("nil response", func(t *testing.T) {
		if got := joinTextParts(nil); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})

	t.Run("no candidates", func(t *testing.T) {
		if got := joinTextParts(&genai.GenerateContentResponse{}); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})

	t.Run("skips non-text parts", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{
					{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte{1}}},
					{Text: "done"},
				}},
			}},
		}
		if got := joinTextParts(resp); got != "done" {
			t.Errorf("joinTextParts = %q, want %q", got, "done")
		}
	})
}

func TestFirstInlineImage(t *testing.T) {
	t.Run("returns first image part", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{
					{Text: "here you go"},
					{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte{0x89, 0x50}}},
					{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: []byte{0xFF}}},
				}},
			}},
		}
		data, mimeType := firstInlineImage(resp)
		if mimeType != "image/png" {
			t.Errorf("mime type = %q, want image/png", mimeType)
		}
		if len(data) != 2 {
			t.Errorf("data length = %d, want 2", len(data))
		}
	})

	t.Run("no image parts", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{{Text: "text only"}}},
			}},
		}
		if data, _ := firstInlineImage(resp); data != nil {
			t.Errorf("expected nil, got %d bytes", len(data))
		}
	})
}

func TestSummaryPrompt(t *testing.T) {
	got := summaryPrompt("user: hi\nassistant: hello")
	if !strings.Contains(got, "user: hi") {
		t.Error("prompt does not contain the transcript")
	}
	if !strings.HasPrefix(got, "Provide a concise summary") {
		t.Errorf("unexpected prompt prefix: %q", got[:40])
	}
}
