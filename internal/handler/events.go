package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/internal/middleware"
	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/pkg/logger"
	"github.com/capitalize-ai/chat-console/pkg/metrics"
)

// EventsHandler serves the page's server-sent event feed.
type EventsHandler struct {
	hub       *Hub
	chats     Resolver
	heartbeat time.Duration
	logger    *logger.Logger
}

// NewEventsHandler creates an events handler.
func NewEventsHandler(hub *Hub, chats Resolver, heartbeat time.Duration, log *logger.Logger) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &EventsHandler{
		hub:       hub,
		chats:     chats,
		heartbeat: heartbeat,
		logger:    log,
	}
}

// Events handles GET /api/v1/events
func (h *EventsHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	email := middleware.GetEmail(ctx)
	frames, unsubscribe := h.hub.Subscribe(email)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	metrics.IncrementSSESubscribers()
	defer metrics.DecrementSSESubscribers()

	log := h.logger.With(
		zap.String("email", email),
		zap.String("correlation_id", middleware.GetCorrelationID(ctx)),
	)
	log.Info("SSE client connected")

	snap := h.chats(email).Snapshot()
	if err := sendSSEEvent(w, flusher, "generating", model.GeneratingEvent{Generating: snap.Generating}); err != nil {
		return
	}
	if snap.Display != "" {
		sendSSEEvent(w, flusher, "display", model.DisplayEvent{
			ConversationID: snap.Conversation.ID,
			Text:           snap.Display,
		})
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("SSE client disconnected")
			return

		case f := <-frames:
			if err := sendSSEEvent(w, flusher, f.event, f.data); err != nil {
				log.Warn("failed to write SSE event", zap.String("event", f.event), zap.Error(err))
				return
			}

		case <-heartbeat.C:
			if err := sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			}); err != nil {
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
