package store

import (
	"sync"

	"github.com/capitalize-ai/chat-console/internal/model"
)

// ChatList is the user's list of chat titles shown in the sidebar.
type ChatList struct {
	mu    sync.RWMutex
	chats []model.ChatTitle
}

// NewChatList creates an empty chat list.
func NewChatList() *ChatList {
	return &ChatList{}
}

// Set replaces the list.
func (l *ChatList) Set(chats []model.ChatTitle) {
	l.mu.Lock()
	l.chats = append([]model.ChatTitle(nil), chats...)
	l.mu.Unlock()
}

// Add appends a chat unless one with the same id is already listed.
func (l *ChatList) Add(chat model.ChatTitle) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, c := range l.chats {
		if c.ID == chat.ID {
			return
		}
	}
	l.chats = append(l.chats, chat)
}

// Remove drops the chat with the given id and reports whether it was listed.
func (l *ChatList) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, c := range l.chats {
		if c.ID == id {
			l.chats = append(l.chats[:i:i], l.chats[i+1:]...)
			return true
		}
	}
	return false
}

// List returns a copy of the list.
func (l *ChatList) List() []model.ChatTitle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.ChatTitle(nil), l.chats...)
}
