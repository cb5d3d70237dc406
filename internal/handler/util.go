package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/capitalize-ai/chat-console/internal/backend"
	"github.com/capitalize-ai/chat-console/internal/middleware"
	"github.com/capitalize-ai/chat-console/internal/service"
	"github.com/capitalize-ai/chat-console/internal/session"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// authFromRequest returns the identity set by the auth middleware.
func authFromRequest(r *http.Request) service.Auth {
	return service.Auth{
		Token: middleware.GetToken(r.Context()),
		Email: middleware.GetEmail(r.Context()),
	}
}

// chatFor returns the chat service of the authenticated caller.
func chatFor(chats Resolver, r *http.Request) ChatService {
	return chats(middleware.GetEmail(r.Context()))
}

// writeServiceError maps chat service errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrGenerating), errors.Is(err, session.ErrSessionOpen):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrEmptyMessage), errors.Is(err, service.ErrUnknownModel):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, session.ErrSessionEnded):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		switch status := backend.StatusCode(err); status {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			writeError(w, status, http.StatusText(status))
		default:
			writeError(w, http.StatusBadGateway, "backend request failed")
		}
	}
}
