// Package store holds the console's in-memory view of the user's chats.
package store

import (
	"sync"

	"github.com/capitalize-ai/chat-console/internal/model"
)

// Listener is notified after a message is appended to the active conversation.
type Listener func(conversationID string, msg model.Message)

// ConversationStore owns the active conversation. It is replaced wholesale
// when the user switches chats and grows by append otherwise.
type ConversationStore struct {
	mu        sync.RWMutex
	conv      model.Conversation
	listeners []Listener
}

// NewConversationStore creates an empty store holding an unsaved conversation.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{}
}

// Subscribe registers a listener for appended messages.
func (s *ConversationStore) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Replace swaps in a different conversation.
func (s *ConversationStore) Replace(conv model.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv.Messages = append([]model.Message(nil), conv.Messages...)
	s.conv = conv
}

// Reset starts a new, unsaved conversation for the given user.
func (s *ConversationStore) Reset(userEmail string) {
	s.Replace(model.Conversation{UserEmail: userEmail})
}

// Activate makes id the active conversation. A new conversation adopts the
// id assigned by the backend and keeps its messages; a different id starts
// from an empty history.
func (s *ConversationStore) Activate(id, title, userEmail string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.conv.ID {
	case id:
		return
	case "":
		s.conv.ID = id
		if s.conv.Title == "" {
			s.conv.Title = title
		}
		if s.conv.UserEmail == "" {
			s.conv.UserEmail = userEmail
		}
	default:
		s.conv = model.Conversation{ID: id, Title: title, UserEmail: userEmail}
	}
}

// Append adds a message to the active conversation.
func (s *ConversationStore) Append(msg model.Message) {
	s.mu.Lock()
	s.conv.Messages = append(s.conv.Messages, msg)
	id := s.conv.ID
	listeners := s.listeners
	s.mu.Unlock()

	for _, l := range listeners {
		l(id, msg)
	}
}

// AppendIfActive appends msg only while conversationID is still active.
// It reports whether the message was appended.
func (s *ConversationStore) AppendIfActive(conversationID string, msg model.Message) bool {
	s.mu.Lock()
	if s.conv.ID != conversationID {
		s.mu.Unlock()
		return false
	}
	s.conv.Messages = append(s.conv.Messages, msg)
	listeners := s.listeners
	s.mu.Unlock()

	for _, l := range listeners {
		l(conversationID, msg)
	}
	return true
}

// ActiveID returns the active conversation id ("" when unsaved).
func (s *ConversationStore) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conv.ID
}

// Snapshot returns a copy of the active conversation.
func (s *ConversationStore) Snapshot() model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv := s.conv
	conv.Messages = append([]model.Message(nil), s.conv.Messages...)
	return conv
}
