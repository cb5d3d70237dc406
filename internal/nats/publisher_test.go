package nats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/internal/notify"
	"github.com/capitalize-ai/chat-console/pkg/logger"
)

type published struct {
	subject string
	data    []byte
}

type fakeJetStream struct {
	mu   sync.Mutex
	err  error
	msgs []published
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, published{subject, data})
	return &jetstream.PubAck{Stream: StreamName, Sequence: uint64(len(f.msgs))}, nil
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "console.c1.notification", NotificationSubject("c1"))
	assert.Equal(t, "console._.notification", NotificationSubject(""))
	assert.Equal(t, "console.a_b.session.cancelled", SessionSubject("a.b", model.CloseCancelled))
}

func TestPublishNotification(t *testing.T) {
	js := &fakeJetStream{}
	p := NewPublisher(js, logger.NewNop())

	p.Notify(context.Background(), notify.Error("c1", "An error occurred"))
	p.Wait()

	require.Len(t, js.msgs, 1)
	assert.Equal(t, "console.c1.notification", js.msgs[0].subject)
	var got model.Notification
	require.NoError(t, json.Unmarshal(js.msgs[0].data, &got))
	assert.Equal(t, model.LevelError, got.Level)
	assert.Equal(t, "An error occurred", got.Message)
}

func TestPublishSessionSummary(t *testing.T) {
	js := &fakeJetStream{}
	p := NewPublisher(js, logger.NewNop())
	now := time.Now()

	p.RecordSession(context.Background(), model.SessionSummary{
		SessionID:      "s1",
		ConversationID: "c1",
		Reason:         model.CloseCompleted,
		Chars:          2,
		Events:         3,
		StartedAt:      now,
		EndedAt:        now,
	})
	p.Wait()

	require.Len(t, js.msgs, 1)
	assert.Equal(t, "console.c1.session.completed", js.msgs[0].subject)
	var got model.SessionSummary
	require.NoError(t, json.Unmarshal(js.msgs[0].data, &got))
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, 3, got.Events)
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	js := &fakeJetStream{err: errors.New("no responders")}
	p := NewPublisher(js, logger.NewNop())

	assert.NotPanics(t, func() {
		p.Notify(context.Background(), notify.Info("", "Model changed to llama3.1"))
		p.Wait()
	})
	assert.Empty(t, js.msgs)
}
