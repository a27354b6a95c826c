// Package session holds the in-memory conversation state for one assistant
// session: the ordered transcript, the composing-input buffer, and the busy
// flag guarding turn submission.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Greeting seeds every new session as the first assistant message.
const Greeting = "Hello, how can I assist you?"

// ErrBusy is returned when a turn is submitted while another is in flight.
// Submissions are rejected, never queued.
var ErrBusy = errors.New("a turn is already in flight")

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry. Immutable once appended.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage builds a message with a fresh ID and timestamp.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// Store owns the conversation state for the lifetime of a session.
// The transcript is append-only; entries are never reordered or removed.
// Safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	history   []Message
	composing string
	busy      bool
}

// NewStore creates a session seeded with the assistant greeting.
func NewStore() *Store {
	return &Store{
		history: []Message{NewMessage(RoleAssistant, Greeting)},
	}
}

// Append pushes a message to the end of the transcript.
func (s *Store) Append(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msg)
}

// History returns a copy of the transcript in creation order.
func (s *Store) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of transcript entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// TryAcquire atomically claims the busy flag for a new turn. It returns
// ErrBusy if another turn is already in flight.
func (s *Store) TryAcquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.busy = true
	return nil
}

// Release clears the busy flag at the end of a turn.
func (s *Store) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
}

// Busy reports whether a turn is currently in flight.
func (s *Store) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// SetComposing replaces the composing-input buffer.
func (s *Store) SetComposing(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.composing = text
}

// Composing returns the current composing-input buffer.
func (s *Store) Composing() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.composing
}
