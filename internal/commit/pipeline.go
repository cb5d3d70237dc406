// Package commit records finished turns with the backend and in the
// conversation store.
package commit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/internal/backend"
	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/internal/notify"
	"github.com/capitalize-ai/chat-console/internal/store"
	"github.com/capitalize-ai/chat-console/pkg/logger"
	"github.com/capitalize-ai/chat-console/pkg/metrics"
)

// ErrEmptyMessage is returned for a blank human message.
var ErrEmptyMessage = errors.New("message is empty")

// Backend is the subset of the backend client the pipeline needs.
type Backend interface {
	AddMessage(ctx context.Context, token string, req *model.AddMessageRequest) (*model.AddMessageResponse, error)
	UpdateChat(ctx context.Context, token, chatID, fullMessage string) error
}

// HumanTurn is a message typed by the user.
type HumanTurn struct {
	Text           string
	ConversationID string // empty for a new conversation
	RecipientEmail string
	// Knowledge-base options are forwarded only when set.
	UseKnowledgeBase *bool
	SelectedDocs     []string
}

// Pipeline commits human and assistant turns.
type Pipeline struct {
	backend       Backend
	conversations *store.ConversationStore
	chats         *store.ChatList
	notifier      notify.Notifier
	logger        *logger.Logger
}

// NewPipeline creates a commit pipeline.
func NewPipeline(
	b Backend,
	conversations *store.ConversationStore,
	chats *store.ChatList,
	notifier notify.Notifier,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		backend:       b,
		conversations: conversations,
		chats:         chats,
		notifier:      notifier,
		logger:        log,
	}
}

// CommitHuman sends the user's message and returns the authoritative
// conversation id. The message is appended to the store right away and is
// not rolled back if the assistant turn later fails. On error nothing is
// appended and a notification is shown.
func (p *Pipeline) CommitHuman(ctx context.Context, token string, turn HumanTurn) (string, error) {
	if strings.TrimSpace(turn.Text) == "" {
		return "", ErrEmptyMessage
	}

	resp, err := p.backend.AddMessage(ctx, token, &model.AddMessageRequest{
		Message:          turn.Text,
		UserEmail:        turn.RecipientEmail,
		ChatID:           turn.ConversationID,
		UseKnowledgeBase: turn.UseKnowledgeBase,
		SelectedDocs:     turn.SelectedDocs,
	})
	if err != nil {
		metrics.RecordCommit(string(model.SenderHuman), "error")
		p.logger.Error("failed to commit human message",
			zap.String("conversation_id", turn.ConversationID),
			zap.Error(err),
		)
		p.notify(ctx, notify.Error(turn.ConversationID, userMessage(err)))
		return "", fmt.Errorf("commit human message: %w", err)
	}
	metrics.RecordCommit(string(model.SenderHuman), "ok")

	chatID := resp.ChatID
	title := model.TitleFromMessage(turn.Text)
	if turn.ConversationID == "" {
		p.chats.Add(model.ChatTitle{ID: chatID, Title: title})
	}

	if active := p.conversations.ActiveID(); active != turn.ConversationID {
		p.logger.Warn("conversation switched while sending, not updating view",
			zap.String("conversation_id", chatID),
			zap.String("active_conversation_id", active),
		)
		return chatID, nil
	}

	p.conversations.Activate(chatID, title, turn.RecipientEmail)
	p.conversations.Append(model.Message{Content: turn.Text, Sender: model.SenderHuman})

	return chatID, nil
}

// CommitAssistant stores the finished assistant text. On success the
// message is appended, but only while conversationID is still the active
// conversation. On failure the store is left untouched.
func (p *Pipeline) CommitAssistant(ctx context.Context, token, text, conversationID string) error {
	if err := p.backend.UpdateChat(ctx, token, conversationID, strings.TrimSpace(text)); err != nil {
		metrics.RecordCommit(string(model.SenderAssistant), "error")
		p.logger.Error("failed to commit assistant message",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		p.notify(ctx, notify.Error(conversationID, userMessage(err)))
		return fmt.Errorf("commit assistant message: %w", err)
	}
	metrics.RecordCommit(string(model.SenderAssistant), "ok")

	msg := model.Message{Content: text, Sender: model.SenderAssistant}
	if !p.conversations.AppendIfActive(conversationID, msg) {
		p.logger.Info("assistant message saved for inactive conversation",
			zap.String("conversation_id", conversationID),
		)
	}
	return nil
}

func (p *Pipeline) notify(ctx context.Context, n model.Notification) {
	if p.notifier != nil {
		p.notifier.Notify(ctx, n)
	}
}

// userMessage prefers the backend's own explanation.
func userMessage(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "An error occurred"
}
