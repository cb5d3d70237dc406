// Package handler provides HTTP handlers for the console gateway.
package handler

import (
	"context"

	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/internal/service"
)

// ChatService is the composer logic behind the console API.
// *service.ChatService implements it.
type ChatService interface {
	Submit(ctx context.Context, auth service.Auth, in service.SendInput) (model.SendMessageResponse, error)
	Stop() bool
	SwitchConversation(ctx context.Context, auth service.Auth, id string) (model.Conversation, error)
	NewConversation(ctx context.Context, auth service.Auth) (model.Conversation, error)
	ListChats(ctx context.Context, auth service.Auth) ([]model.ChatTitle, error)
	DeleteChat(ctx context.Context, auth service.Auth, id string) error
	ChangeModel(ctx context.Context, auth service.Auth, name string) error
	Models() []string
	Model() string
	Snapshot() model.ConversationSnapshot
}

// Resolver returns the chat service holding email's console state.
type Resolver func(email string) ChatService
