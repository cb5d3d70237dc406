// Package service provides the chat console's composer logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/internal/commit"
	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/internal/notify"
	"github.com/capitalize-ai/chat-console/internal/session"
	"github.com/capitalize-ai/chat-console/internal/store"
	"github.com/capitalize-ai/chat-console/pkg/logger"
)

var (
	// ErrGenerating is returned for operations refused while a response
	// is being generated.
	ErrGenerating = errors.New("a response is being generated")
	// ErrEmptyMessage is returned when the composer text is blank.
	ErrEmptyMessage = commit.ErrEmptyMessage
	// ErrUnknownModel is returned by ChangeModel for a model not offered.
	ErrUnknownModel = errors.New("unknown model")
	// ErrForbidden is returned when the caller does not own the console
	// state the service holds.
	ErrForbidden = errors.New("console state belongs to another user")
)

// Auth is the caller's identity as decoded from the bearer token.
type Auth struct {
	Token string
	Email string
}

// SendInput is a composer submission.
type SendInput struct {
	Text             string
	UseKnowledgeBase *bool
	SelectedDocs     []string
}

// Backend is the subset of the backend client the service needs.
type Backend interface {
	GetChat(ctx context.Context, token, chatID string) (*model.Conversation, error)
	ListChats(ctx context.Context, token string) ([]model.ChatTitle, error)
	DeleteChat(ctx context.Context, token, chatID string) error
	ChangeModel(ctx context.Context, token, modelName string) error
}

// HumanCommitter records the user's message.
type HumanCommitter interface {
	CommitHuman(ctx context.Context, token string, turn commit.HumanTurn) (string, error)
}

// Streamer runs stream sessions. *session.Controller implements it.
type Streamer interface {
	Open(ctx context.Context, req session.Request) error
	Cancel() bool
	Generating() bool
	Partial() (conversationID, text string, ok bool)
}

// ChatService implements the composer: send or stop, conversation
// switching and model selection.
type ChatService struct {
	backend       Backend
	commits       HumanCommitter
	streams       Streamer
	conversations *store.ConversationStore
	chats         *store.ChatList
	notifier      notify.Notifier
	logger        *logger.Logger
	owner         string
	models        []string

	mu    sync.Mutex
	busy  bool
	model string
}

// Config holds chat service settings. A non-empty Owner restricts the
// service to callers with that email.
type Config struct {
	Owner        string
	DefaultModel string
	Models       []string
}

// NewChatService creates a chat service.
func NewChatService(
	cfg Config,
	b Backend,
	commits HumanCommitter,
	streams Streamer,
	conversations *store.ConversationStore,
	chats *store.ChatList,
	notifier notify.Notifier,
	log *logger.Logger,
) *ChatService {
	return &ChatService{
		backend:       b,
		commits:       commits,
		streams:       streams,
		conversations: conversations,
		chats:         chats,
		notifier:      notifier,
		logger:        log,
		owner:         cfg.Owner,
		models:        cfg.Models,
		model:         cfg.DefaultModel,
	}
}

func (s *ChatService) authorize(auth Auth) error {
	if s.owner != "" && auth.Email != s.owner {
		return ErrForbidden
	}
	return nil
}

// begin reserves the composer. It fails while a response is generating or
// another send or switch is in flight.
func (s *ChatService) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy || s.streams.Generating() {
		return false
	}
	s.busy = true
	return true
}

func (s *ChatService) end() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// Send commits the user's message and starts streaming the reply. It
// returns the conversation id the message was stored under.
func (s *ChatService) Send(ctx context.Context, auth Auth, in SendInput) (string, error) {
	if err := s.authorize(auth); err != nil {
		return "", err
	}
	if strings.TrimSpace(in.Text) == "" {
		return "", ErrEmptyMessage
	}
	if !s.begin() {
		return "", ErrGenerating
	}
	defer s.end()

	conversationID, err := s.commits.CommitHuman(ctx, auth.Token, commit.HumanTurn{
		Text:             in.Text,
		ConversationID:   s.conversations.ActiveID(),
		RecipientEmail:   auth.Email,
		UseKnowledgeBase: in.UseKnowledgeBase,
		SelectedDocs:     in.SelectedDocs,
	})
	if err != nil {
		return "", err
	}

	err = s.streams.Open(ctx, session.Request{
		ConversationID: conversationID,
		Token:          auth.Token,
		Model:          s.Model(),
	})
	if err != nil {
		return conversationID, err
	}

	return conversationID, nil
}

// Stop cancels the running generation. It reports whether one was running.
func (s *ChatService) Stop() bool {
	return s.streams.Cancel()
}

// Submit is the composer action button: stop while generating, send
// otherwise.
func (s *ChatService) Submit(ctx context.Context, auth Auth, in SendInput) (model.SendMessageResponse, error) {
	if err := s.authorize(auth); err != nil {
		return model.SendMessageResponse{}, err
	}
	if s.streams.Generating() {
		s.Stop()
		return model.SendMessageResponse{Action: model.ActionStopped}, nil
	}

	conversationID, err := s.Send(ctx, auth, in)
	if err != nil {
		return model.SendMessageResponse{}, err
	}
	return model.SendMessageResponse{Action: model.ActionSent, ConversationID: conversationID}, nil
}

// SwitchConversation loads conversation id from the backend and makes it
// active. An empty id starts a new, unsaved conversation.
func (s *ChatService) SwitchConversation(ctx context.Context, auth Auth, id string) (model.Conversation, error) {
	if err := s.authorize(auth); err != nil {
		return model.Conversation{}, err
	}
	if !s.begin() {
		return model.Conversation{}, ErrGenerating
	}
	defer s.end()

	if id == "" {
		s.conversations.Reset(auth.Email)
		return s.conversations.Snapshot(), nil
	}

	conv, err := s.backend.GetChat(ctx, auth.Token, id)
	if err != nil {
		s.logger.Error("failed to load conversation", zap.String("conversation_id", id), zap.Error(err))
		s.notifier.Notify(ctx, notify.Error(id, "Failed to load the conversation"))
		return model.Conversation{}, fmt.Errorf("switch conversation: %w", err)
	}

	s.conversations.Replace(*conv)
	return s.conversations.Snapshot(), nil
}

// NewConversation starts a new, unsaved conversation.
func (s *ChatService) NewConversation(ctx context.Context, auth Auth) (model.Conversation, error) {
	return s.SwitchConversation(ctx, auth, "")
}

// ListChats refreshes the user's chat titles from the backend.
func (s *ChatService) ListChats(ctx context.Context, auth Auth) ([]model.ChatTitle, error) {
	if err := s.authorize(auth); err != nil {
		return nil, err
	}
	chats, err := s.backend.ListChats(ctx, auth.Token)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	s.chats.Set(chats)
	return s.chats.List(), nil
}

// DeleteChat deletes conversation id. It is refused while that
// conversation is generating or a send or switch is in flight. Deleting
// the active conversation starts a new one.
func (s *ChatService) DeleteChat(ctx context.Context, auth Auth, id string) error {
	if err := s.authorize(auth); err != nil {
		return err
	}

	s.mu.Lock()
	if streaming, _, ok := s.streams.Partial(); s.busy || (ok && streaming == id) {
		s.mu.Unlock()
		return ErrGenerating
	}
	s.busy = true
	s.mu.Unlock()
	defer s.end()

	if err := s.backend.DeleteChat(ctx, auth.Token, id); err != nil {
		s.logger.Error("failed to delete chat", zap.String("conversation_id", id), zap.Error(err))
		s.notifier.Notify(ctx, notify.Error(id, "Failed to delete the chat"))
		return fmt.Errorf("delete chat: %w", err)
	}

	s.chats.Remove(id)
	if s.conversations.ActiveID() == id {
		s.conversations.Reset(auth.Email)
	}
	s.notifier.Notify(ctx, notify.Info(id, "Chat deleted successfully"))
	return nil
}

// Models returns the selectable models.
func (s *ChatService) Models() []string {
	return s.models
}

// Model returns the model used for the next stream.
func (s *ChatService) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// ChangeModel selects the model for the next stream and tells the backend
// in the background. The outcome is reported as a notification.
func (s *ChatService) ChangeModel(ctx context.Context, auth Auth, name string) error {
	if err := s.authorize(auth); err != nil {
		return err
	}
	if len(s.models) > 0 && !slices.Contains(s.models, name) {
		return fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}

	s.mu.Lock()
	s.model = name
	s.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := s.backend.ChangeModel(ctx, auth.Token, name); err != nil {
			s.logger.Error("failed to change model", zap.String("model", name), zap.Error(err))
			s.notifier.Notify(ctx, notify.Error("", "Error changing model"))
			return
		}
		s.notifier.Notify(ctx, notify.Info("", "Model changed to "+name))
	}()

	return nil
}

// Snapshot returns the active conversation with the running partial text.
func (s *ChatService) Snapshot() model.ConversationSnapshot {
	snap := model.ConversationSnapshot{
		Conversation: s.conversations.Snapshot(),
		Generating:   s.streams.Generating(),
		Model:        s.Model(),
	}
	if id, text, ok := s.streams.Partial(); ok && id == snap.Conversation.ID {
		snap.Display = text
	}
	return snap
}
