package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/internal/middleware"
	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/internal/service"
	"github.com/capitalize-ai/chat-console/pkg/logger"
)

// MessageHandler handles the composer endpoints.
type MessageHandler struct {
	chats  Resolver
	logger *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(chats Resolver, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		chats:  chats,
		logger: log,
	}
}

// Submit handles POST /api/v1/messages. While a response is generating
// the request stops it instead of sending.
func (h *MessageHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	chat := chatFor(h.chats, r)
	generating := chat.Snapshot().Generating
	if !generating {
		if err := middleware.ValidateMessageContent(req.Message); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	resp, err := chat.Submit(r.Context(), authFromRequest(r), service.SendInput{
		Text:             req.Message,
		UseKnowledgeBase: req.UseKnowledgeBase,
		SelectedDocs:     req.SelectedDocs,
	})
	if err != nil {
		h.logger.Warn("failed to submit message", zap.Error(err))
		writeServiceError(w, err)
		return
	}

	status := http.StatusAccepted
	if resp.Action == model.ActionStopped {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// Cancel handles POST /api/v1/cancel
func (h *MessageHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"cancelled": chatFor(h.chats, r).Stop(),
	})
}

// Models handles GET /api/v1/models
func (h *MessageHandler) Models(w http.ResponseWriter, r *http.Request) {
	chat := chatFor(h.chats, r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models":   chat.Models(),
		"selected": chat.Model(),
	})
}

// ChangeModel handles POST /api/v1/model
func (h *MessageHandler) ChangeModel(w http.ResponseWriter, r *http.Request) {
	var req model.ChangeModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateModelName(req.Model); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := chatFor(h.chats, r).ChangeModel(r.Context(), authFromRequest(r), req.Model); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, req)
}
