package commit

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chat-console/internal/backend"
	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/internal/notify"
	"github.com/capitalize-ai/chat-console/internal/store"
	"github.com/capitalize-ai/chat-console/pkg/logger"
)

type fakeBackend struct {
	addErr    error
	updateErr error
	chatID    string
	added     []model.AddMessageRequest
	updated   []model.UpdateChatRequest
}

func (b *fakeBackend) AddMessage(_ context.Context, _ string, req *model.AddMessageRequest) (*model.AddMessageResponse, error) {
	b.added = append(b.added, *req)
	if b.addErr != nil {
		return nil, b.addErr
	}
	id := req.ChatID
	if id == "" {
		id = b.chatID
	}
	return &model.AddMessageResponse{Success: true, ChatID: id}, nil
}

func (b *fakeBackend) UpdateChat(_ context.Context, _, chatID, full string) error {
	b.updated = append(b.updated, model.UpdateChatRequest{ChatID: chatID, FullMessage: full})
	return b.updateErr
}

type fixture struct {
	backend  *fakeBackend
	convs    *store.ConversationStore
	chats    *store.ChatList
	notifier *notify.Recorder
	pipeline *Pipeline
}

func newFixture() *fixture {
	f := &fixture{
		backend:  &fakeBackend{chatID: "new-id"},
		convs:    store.NewConversationStore(),
		chats:    store.NewChatList(),
		notifier: notify.NewRecorder(8),
	}
	f.pipeline = NewPipeline(f.backend, f.convs, f.chats, f.notifier, logger.NewNop())
	return f
}

func TestCommitHumanNewConversation(t *testing.T) {
	f := newFixture()
	f.convs.Reset("a@example.com")

	id, err := f.pipeline.CommitHuman(context.Background(), "tok", HumanTurn{
		Text:           "What is the weather like?",
		RecipientEmail: "a@example.com",
	})

	require.NoError(t, err)
	assert.Equal(t, "new-id", id)
	assert.Equal(t, []model.ChatTitle{{ID: "new-id", Title: "What is th"}}, f.chats.List())

	conv := f.convs.Snapshot()
	assert.Equal(t, "new-id", conv.ID)
	assert.Equal(t, []model.Message{{Content: "What is the weather like?", Sender: model.SenderHuman}}, conv.Messages)
	assert.Equal(t, "a@example.com", f.backend.added[0].UserEmail)
	assert.Empty(t, f.backend.added[0].ChatID)
}

func TestCommitHumanExistingConversationForwardsOptions(t *testing.T) {
	f := newFixture()
	f.convs.Replace(model.Conversation{ID: "c1"})
	useKB := true

	id, err := f.pipeline.CommitHuman(context.Background(), "tok", HumanTurn{
		Text:             "again",
		ConversationID:   "c1",
		UseKnowledgeBase: &useKB,
		SelectedDocs:     []string{"doc-1"},
	})

	require.NoError(t, err)
	assert.Equal(t, "c1", id)
	assert.Empty(t, f.chats.List())
	assert.Equal(t, "c1", f.backend.added[0].ChatID)
	assert.Equal(t, &useKB, f.backend.added[0].UseKnowledgeBase)
	assert.Equal(t, []string{"doc-1"}, f.backend.added[0].SelectedDocs)
	assert.Len(t, f.convs.Snapshot().Messages, 1)
}

func TestCommitHumanRejectsBlankText(t *testing.T) {
	f := newFixture()

	_, err := f.pipeline.CommitHuman(context.Background(), "tok", HumanTurn{Text: "  \n"})

	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, f.backend.added)
}

func TestCommitHumanFailureNotifiesAndAppendsNothing(t *testing.T) {
	f := newFixture()
	f.backend.addErr = &backend.APIError{StatusCode: http.StatusNotFound, Message: "Chat not found"}
	f.convs.Replace(model.Conversation{ID: "c1"})

	_, err := f.pipeline.CommitHuman(context.Background(), "tok", HumanTurn{Text: "hi", ConversationID: "c1"})

	require.Error(t, err)
	assert.Empty(t, f.convs.Snapshot().Messages)
	notes := f.notifier.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, "Chat not found", notes[0].Message)
}

func TestCommitHumanAfterSwitchLeavesViewAlone(t *testing.T) {
	f := newFixture()
	f.convs.Replace(model.Conversation{ID: "other"})

	id, err := f.pipeline.CommitHuman(context.Background(), "tok", HumanTurn{Text: "hi", ConversationID: "c1"})

	require.NoError(t, err)
	assert.Equal(t, "c1", id)
	conv := f.convs.Snapshot()
	assert.Equal(t, "other", conv.ID)
	assert.Empty(t, conv.Messages)
}

func TestCommitAssistant(t *testing.T) {
	f := newFixture()
	f.convs.Replace(model.Conversation{ID: "c1"})

	require.NoError(t, f.pipeline.CommitAssistant(context.Background(), "tok", " AB\n", "c1"))

	assert.Equal(t, []model.UpdateChatRequest{{ChatID: "c1", FullMessage: "AB"}}, f.backend.updated)
	assert.Equal(t, []model.Message{{Content: " AB\n", Sender: model.SenderAssistant}}, f.convs.Snapshot().Messages)
}

func TestCommitAssistantFailureLeavesStoreUnchanged(t *testing.T) {
	f := newFixture()
	f.convs.Replace(model.Conversation{ID: "c1"})
	f.backend.updateErr = errors.New("connection refused")

	err := f.pipeline.CommitAssistant(context.Background(), "tok", "AB", "c1")

	require.Error(t, err)
	assert.Empty(t, f.convs.Snapshot().Messages)
	notes := f.notifier.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, "An error occurred", notes[0].Message)
}

func TestCommitAssistantForInactiveConversation(t *testing.T) {
	f := newFixture()
	f.convs.Replace(model.Conversation{ID: "c2"})

	require.NoError(t, f.pipeline.CommitAssistant(context.Background(), "tok", "late", "c1"))

	assert.Len(t, f.backend.updated, 1)
	assert.Empty(t, f.convs.Snapshot().Messages)
}
