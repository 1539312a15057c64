package engine

import (
	"strings"
	"sync"

	"github.com/smallnest/docrag/rag"
)

// DefaultHistoryTurns is how many recent turns are shown to the model.
const DefaultHistoryTurns = 6

// Session holds one conversation. It is safe for concurrent use.
type Session struct {
	mu    sync.Mutex
	turns []rag.ConversationTurn
}

// NewSession creates an empty session
func NewSession() *Session {
	return &Session{}
}

// Append records a turn.
func (s *Session) Append(role rag.Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, rag.ConversationTurn{Role: role, Content: content})
}

// History formats the last n turns as "ROLE: content" lines. n <= 0 means
// DefaultHistoryTurns.
func (s *Session) History(n int) string {
	if n <= 0 {
		n = DefaultHistoryTurns
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recent := s.turns
	if len(recent) > n {
		recent = recent[len(recent)-n:]
	}
	lines := make([]string, len(recent))
	for i, t := range recent {
		lines[i] = strings.ToUpper(string(t.Role)) + ": " + t.Content
	}
	return strings.Join(lines, "\n")
}

// Turns returns a copy of all recorded turns.
func (s *Session) Turns() []rag.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rag.ConversationTurn(nil), s.turns...)
}

// Reset forgets every turn.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}
