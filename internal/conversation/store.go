// Package conversation holds the per-session conversation state: the
// ordered turn sequence and the pending image attachment.
//
// The store is append-only — turns are never edited or removed — with the
// single exception of Clear, which atomically resets the whole session.
package conversation

import (
	"strings"
	"sync"
)

// Role identifies the author of a [Turn].
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ImageRef is an opaque reference to image bytes carried by a turn or held
// as the pending attachment.
type ImageRef struct {
	// Data is the raw image payload.
	Data []byte

	// MIMEType is the declared MIME type of Data (e.g. "image/png").
	MIMEType string
}

// Turn is one conversational unit. Turns are immutable once appended.
type Turn struct {
	// Role is the author of the turn.
	Role Role

	// Text is the turn's content. May be empty when only an image is
	// attached.
	Text string

	// Image is an optional image carried by the turn (a user attachment or
	// a generated reply image).
	Image *ImageRef
}

// Store is the ordered, append-only sequence of turns owned by a single
// session, plus the attached-but-unsent image. Safe for concurrent use;
// network completion callbacks and UI events may touch it from different
// goroutines.
type Store struct {
	mu         sync.Mutex
	turns      []Turn
	attachment *ImageRef
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Append adds a turn to the end of the conversation.
func (s *Store) Append(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
}

// Clear atomically resets the conversation and discards any pending
// attachment.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.attachment = nil
}

// All returns a snapshot of the conversation in insertion order.
func (s *Store) All() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Filter returns the turns whose text contains query, case-insensitively,
// preserving the original relative order. An empty query returns the full
// conversation.
func (s *Store) Filter(query string) []Turn {
	if query == "" {
		return s.All()
	}
	q := strings.ToLower(query)

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Turn
	for _, t := range s.turns {
		if strings.Contains(strings.ToLower(t.Text), q) {
			out = append(out, t)
		}
	}
	return out
}

// Transcript renders the conversation as plain text, one "role: text" line
// per turn, for the summarization capability.
func (s *Store) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sb strings.Builder
	for i, t := range s.turns {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(string(t.Role))
		sb.WriteString(": ")
		sb.WriteString(t.Text)
	}
	return sb.String()
}

// SetAttachment stages an image to be sent with the next dispatch,
// replacing any previous staged image.
func (s *Store) SetAttachment(img *ImageRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachment = img
}

// TakeAttachment returns the pending attachment and clears it. Returns nil
// when nothing is staged. The attachment is consumed before the capability
// call runs, so it is gone regardless of the call's outcome.
func (s *Store) TakeAttachment() *ImageRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := s.attachment
	s.attachment = nil
	return img
}

// HasAttachment reports whether an image is staged.
func (s *Store) HasAttachment() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachment != nil
}
