package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/internal/middleware"
	"github.com/capitalize-ai/chat-console/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	chats  Resolver
	logger *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(chats Resolver, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		chats:  chats,
		logger: log,
	}
}

// Get handles GET /api/v1/conversation
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, chatFor(h.chats, r).Snapshot())
}

// Switch handles PUT /api/v1/conversation/{id}
func (h *ConversationHandler) Switch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := chatFor(h.chats, r).SwitchConversation(r.Context(), authFromRequest(r), id)
	if err != nil {
		h.logger.Warn("failed to switch conversation", zap.String("conversation_id", id), zap.Error(err))
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Delete handles DELETE /api/v1/conversation/{id}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := chatFor(h.chats, r).DeleteChat(r.Context(), authFromRequest(r), id); err != nil {
		h.logger.Warn("failed to delete conversation", zap.String("conversation_id", id), zap.Error(err))
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"deleted": id,
	})
}

// New handles POST /api/v1/conversation/new
func (h *ConversationHandler) New(w http.ResponseWriter, r *http.Request) {
	conv, err := chatFor(h.chats, r).NewConversation(r.Context(), authFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Chats handles GET /api/v1/chats
func (h *ConversationHandler) Chats(w http.ResponseWriter, r *http.Request) {
	chats, err := chatFor(h.chats, r).ListChats(r.Context(), authFromRequest(r))
	if err != nil {
		h.logger.Error("failed to list chats", zap.Error(err))
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": chats,
	})
}
