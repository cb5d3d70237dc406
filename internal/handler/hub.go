package handler

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/pkg/logger"
)

const subscriberBuffer = 256

type frame struct {
	event string
	data  interface{}
}

// Hub fans console events out to subscribed pages. Every frame belongs to
// one user and reaches only that user's subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses the frame.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan frame]string
	logger *logger.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		subs:   make(map[chan frame]string),
		logger: log,
	}
}

// Subscribe registers a subscriber for email's frames. The returned func
// unsubscribes it.
func (h *Hub) Subscribe(email string) (<-chan frame, func()) {
	ch := make(chan frame, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = email
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

func (h *Hub) broadcast(email, event string, data interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch, owner := range h.subs {
		if owner != email {
			continue
		}
		select {
		case ch <- frame{event: event, data: data}:
		default:
			h.logger.Debug("subscriber too slow, dropping frame", zap.String("event", event))
		}
	}
}

// For returns the feed publishing to email's pages.
func (h *Hub) For(email string) *Feed {
	return &Feed{hub: h, email: email}
}

// Feed publishes one user's console events. It implements session.Display
// and notify.Notifier; Generating and Appended are meant for the signal
// and store subscriptions.
type Feed struct {
	hub   *Hub
	email string
}

// Show publishes the running partial text.
func (f *Feed) Show(conversationID, text string) {
	f.hub.broadcast(f.email, "display", model.DisplayEvent{ConversationID: conversationID, Text: text})
}

// Clear empties the page's partial text.
func (f *Feed) Clear() {
	f.hub.broadcast(f.email, "display", model.DisplayEvent{})
}

// Notify publishes a notification.
func (f *Feed) Notify(_ context.Context, n model.Notification) {
	f.hub.broadcast(f.email, "notification", n)
}

// Generating publishes a generation-state change.
func (f *Feed) Generating(generating bool) {
	f.hub.broadcast(f.email, "generating", model.GeneratingEvent{Generating: generating})
}

// Appended publishes a message appended to the active conversation.
func (f *Feed) Appended(conversationID string, msg model.Message) {
	f.hub.broadcast(f.email, "message", model.MessageEvent{ConversationID: conversationID, Message: msg})
}
