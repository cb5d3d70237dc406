// Package notify delivers transient user-visible notifications.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/pkg/logger"
)

// Notifier shows a notification to the user. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification)
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, n model.Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}

// Log writes notifications to the logger.
type Log struct {
	Logger *logger.Logger
}

// Notify implements Notifier.
func (l Log) Notify(_ context.Context, n model.Notification) {
	fields := []zap.Field{
		zap.String("level", string(n.Level)),
		zap.String("conversation_id", n.ConversationID),
	}
	if n.Level == model.LevelError {
		l.Logger.Warn("notification: "+n.Message, fields...)
		return
	}
	l.Logger.Info("notification: "+n.Message, fields...)
}

// Error builds an error notification.
func Error(conversationID, message string) model.Notification {
	return model.Notification{
		Level:          model.LevelError,
		Message:        message,
		ConversationID: conversationID,
		CreatedAt:      time.Now(),
	}
}

// Info builds an informational notification.
func Info(conversationID, message string) model.Notification {
	return model.Notification{
		Level:          model.LevelInfo,
		Message:        message,
		ConversationID: conversationID,
		CreatedAt:      time.Now(),
	}
}

// Recorder captures notifications in memory. Used by tests.
type Recorder struct {
	ch chan model.Notification
}

// NewRecorder creates a recorder buffering up to size notifications.
func NewRecorder(size int) *Recorder {
	return &Recorder{ch: make(chan model.Notification, size)}
}

// Notify implements Notifier. Notifications beyond the buffer are dropped.
func (r *Recorder) Notify(_ context.Context, n model.Notification) {
	select {
	case r.ch <- n:
	default:
	}
}

// Drain returns everything recorded so far.
func (r *Recorder) Drain() []model.Notification {
	var out []model.Notification
	for {
		select {
		case n := <-r.ch:
			out = append(out, n)
		default:
			return out
		}
	}
}
