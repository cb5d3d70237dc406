package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/pkg/logger"
	"github.com/capitalize-ai/chat-console/pkg/metrics"
)

const (
	// StreamName is the name of the console events stream.
	StreamName = "CHAT_CONSOLE"

	// SubjectPrefix is the prefix for all console subjects.
	SubjectPrefix = "console"

	publishTimeout = 5 * time.Second
)

// EnsureStream ensures the console stream exists.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Chat console notifications and stream session summaries",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// subjectToken makes a conversation id safe to use as one subject token.
func subjectToken(id string) string {
	if id == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(id)
}

// NotificationSubject returns the subject for a notification.
func NotificationSubject(conversationID string) string {
	return fmt.Sprintf("%s.%s.notification", SubjectPrefix, subjectToken(conversationID))
}

// SessionSubject returns the subject for a closed stream session.
func SessionSubject(conversationID string, reason model.CloseReason) string {
	return fmt.Sprintf("%s.%s.session.%s", SubjectPrefix, subjectToken(conversationID), reason)
}

type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher mirrors notifications and session summaries onto JetStream.
// Publishing happens in the background; failures are logged and counted,
// never returned.
type Publisher struct {
	js     streamPublisher
	logger *logger.Logger
	wg     sync.WaitGroup
}

// NewPublisher creates a publisher.
func NewPublisher(js streamPublisher, log *logger.Logger) *Publisher {
	return &Publisher{js: js, logger: log}
}

// Notify publishes a notification.
func (p *Publisher) Notify(ctx context.Context, n model.Notification) {
	p.publish(ctx, "notification", NotificationSubject(n.ConversationID), n)
}

// RecordSession publishes a session summary.
func (p *Publisher) RecordSession(ctx context.Context, summary model.SessionSummary) {
	p.publish(ctx, "session", SessionSubject(summary.ConversationID, summary.Reason), summary)
}

func (p *Publisher) publish(ctx context.Context, kind, subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		metrics.RecordBusPublish(kind, "error")
		p.logger.Error("failed to marshal event", zap.String("subject", subject), zap.Error(err))
		return
	}

	ctx = context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()

		if _, err := p.js.Publish(ctx, subject, data); err != nil {
			metrics.RecordBusPublish(kind, "error")
			p.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
			return
		}
		metrics.RecordBusPublish(kind, "ok")
	}()
}

// Wait blocks until in-flight publishes finish.
func (p *Publisher) Wait() {
	p.wg.Wait()
}
