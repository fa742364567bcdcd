// Package session holds the client-side state for the currently open
// conversation: the message cache, the pending reply target and the
// auto-follow scroll flag.
package session

import (
	"strings"
	"sync"

	"taskchat-client/models"
)

// Store is the single source of truth for the active conversation's
// messages. The list is append-only in arrival order; hydrating replaces it
// wholesale so no state bleeds across conversations.
type Store struct {
	mu             sync.RWMutex
	conversationID string
	messages       []models.Message
	seen           map[string]struct{}
	replyTarget    *models.Message
}

// NewStore creates an empty store with no active conversation.
func NewStore() *Store {
	return &Store{seen: make(map[string]struct{})}
}

// Hydrate replaces the entire cache with the snapshot for conversationID.
// Any pending reply target belongs to the previous conversation and is
// dropped.
func (s *Store) Hydrate(conversationID string, msgs []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversationID = conversationID
	s.messages = make([]models.Message, 0, len(msgs))
	s.seen = make(map[string]struct{}, len(msgs))
	s.replyTarget = nil
	for _, m := range msgs {
		if _, dup := s.seen[m.ID]; dup {
			continue
		}
		s.seen[m.ID] = struct{}{}
		s.messages = append(s.messages, m)
	}
}

// ConversationID returns the id of the hydrated conversation, or "" if none.
func (s *Store) ConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversationID
}

// ApplyCreated appends an inbound message. Events for another conversation
// and duplicate deliveries of the same id are ignored; the return value
// reports whether the cache changed.
func (s *Store) ApplyCreated(msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ConversationID != s.conversationID {
		return false
	}
	if _, dup := s.seen[msg.ID]; dup {
		return false
	}
	s.seen[msg.ID] = struct{}{}
	s.messages = append(s.messages, msg)
	return true
}

// ApplyUpdated replaces the cached entry with a matching id in place.
// No-op if the message is unknown or belongs to another conversation.
func (s *Store) ApplyUpdated(msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ConversationID != s.conversationID {
		return false
	}
	for i := range s.messages {
		if s.messages[i].ID == msg.ID {
			s.messages[i] = msg
			return true
		}
	}
	return false
}

// ApplyDeleted removes the entry with the given id. No-op if not found.
func (s *Store) ApplyDeleted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			delete(s.seen, id)
			if s.replyTarget != nil && s.replyTarget.ID == id {
				s.replyTarget = nil
			}
			return true
		}
	}
	return false
}

// Messages returns a copy of the cached list in arrival order.
func (s *Store) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len reports the number of cached messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Find returns the cached message with the given id, if present.
func (s *Store) Find(id string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m, true
		}
	}
	return models.Message{}, false
}

// SetReplyTarget records the message a subsequent send should reference.
func (s *Store) SetReplyTarget(msg *models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replyTarget = msg
}

// ReplyTarget returns the pending reply target, or nil.
func (s *Store) ReplyTarget() *models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.replyTarget
}

// ClearReplyTarget dismisses the pending reply target.
func (s *Store) ClearReplyTarget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replyTarget = nil
}

// Search returns the subsequence of messages whose body or author name
// contains the query, case-insensitive. Relative order is preserved and the
// underlying list is not touched.
func (s *Store) Search(query string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]models.Message, 0)
	for _, m := range s.messages {
		if q == "" ||
			strings.Contains(strings.ToLower(m.Body), q) ||
			strings.Contains(strings.ToLower(m.Author.Name), q) {
			out = append(out, m)
		}
	}
	return out
}
