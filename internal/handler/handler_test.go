package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chat-console/internal/backend"
	"github.com/capitalize-ai/chat-console/internal/middleware"
	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/internal/notify"
	"github.com/capitalize-ai/chat-console/internal/service"
	"github.com/capitalize-ai/chat-console/internal/sse"
	"github.com/capitalize-ai/chat-console/pkg/logger"
)

type fakeChat struct {
	generating bool
	submitErr  error
	switchErr  error
	inputs     []service.SendInput
	auths      []service.Auth
	switched   []string
	deleted    []string
	deleteErr  error
	model      string
	snapshot   model.ConversationSnapshot
}

func (f *fakeChat) Submit(_ context.Context, auth service.Auth, in service.SendInput) (model.SendMessageResponse, error) {
	f.auths = append(f.auths, auth)
	if f.generating {
		f.generating = false
		return model.SendMessageResponse{Action: model.ActionStopped}, nil
	}
	if f.submitErr != nil {
		return model.SendMessageResponse{}, f.submitErr
	}
	f.inputs = append(f.inputs, in)
	return model.SendMessageResponse{Action: model.ActionSent, ConversationID: "c1"}, nil
}

func (f *fakeChat) Stop() bool {
	was := f.generating
	f.generating = false
	return was
}

func (f *fakeChat) SwitchConversation(_ context.Context, _ service.Auth, id string) (model.Conversation, error) {
	f.switched = append(f.switched, id)
	if f.switchErr != nil {
		return model.Conversation{}, f.switchErr
	}
	return model.Conversation{ID: id, Title: "Loaded"}, nil
}

func (f *fakeChat) DeleteChat(_ context.Context, _ service.Auth, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeChat) NewConversation(_ context.Context, auth service.Auth) (model.Conversation, error) {
	return model.Conversation{UserEmail: auth.Email}, nil
}

func (f *fakeChat) ListChats(context.Context, service.Auth) ([]model.ChatTitle, error) {
	return []model.ChatTitle{{ID: "c1", Title: "First"}}, nil
}

func (f *fakeChat) ChangeModel(_ context.Context, _ service.Auth, name string) error {
	if name == "gpt-9" {
		return service.ErrUnknownModel
	}
	f.model = name
	return nil
}

func (f *fakeChat) Models() []string { return []string{"llama3.1", "qwen2.5:14b"} }

func (f *fakeChat) Model() string { return f.model }

func (f *fakeChat) Snapshot() model.ConversationSnapshot {
	s := f.snapshot
	s.Generating = f.generating
	return s
}

const emailHeader = "X-Test-Email"

// withAuth injects the identity the auth middleware would set. The email
// comes from emailHeader and defaults to a@example.com.
func withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := r.Header.Get(emailHeader)
		if email == "" {
			email = "a@example.com"
		}
		ctx := context.WithValue(r.Context(), middleware.TokenKey, "tok")
		ctx = context.WithValue(ctx, middleware.EmailKey, email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func single(chat *fakeChat) Resolver {
	return func(string) ChatService { return chat }
}

func perEmail(chats map[string]*fakeChat) Resolver {
	return func(email string) ChatService { return chats[email] }
}

func newTestRouter(chat *fakeChat) http.Handler {
	return newRouter(single(chat))
}

func newRouter(chats Resolver) http.Handler {
	log := logger.NewNop()
	conversations := NewConversationHandler(chats, log)
	messages := NewMessageHandler(chats, log)

	r := chi.NewRouter()
	r.Use(withAuth)
	r.Get("/conversation", conversations.Get)
	r.Put("/conversation/{id}", conversations.Switch)
	r.Delete("/conversation/{id}", conversations.Delete)
	r.Post("/conversation/new", conversations.New)
	r.Get("/chats", conversations.Chats)
	r.Post("/messages", messages.Submit)
	r.Post("/cancel", messages.Cancel)
	r.Get("/models", messages.Models)
	r.Post("/model", messages.ChangeModel)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return doAs(t, h, "", method, path, body)
}

func doAs(t *testing.T, h http.Handler, email, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if email != "" {
		req.Header.Set(emailHeader, email)
	}
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmitSends(t *testing.T) {
	chat := &fakeChat{}
	r := newTestRouter(chat)

	rec := do(t, r, http.MethodPost, "/messages", `{"message":"hello","selected_docs":["d1"]}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp model.SendMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.SendMessageResponse{Action: model.ActionSent, ConversationID: "c1"}, resp)
	assert.Equal(t, []service.SendInput{{Text: "hello", SelectedDocs: []string{"d1"}}}, chat.inputs)
	assert.Equal(t, service.Auth{Token: "tok", Email: "a@example.com"}, chat.auths[0])
}

func TestSubmitStopsWhileGenerating(t *testing.T) {
	chat := &fakeChat{generating: true}
	r := newTestRouter(chat)

	rec := do(t, r, http.MethodPost, "/messages", `{"message":""}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), model.ActionStopped)
	assert.Empty(t, chat.inputs)
}

func TestSubmitValidation(t *testing.T) {
	r := newTestRouter(&fakeChat{})

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/messages", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/messages", `{"message":"  "}`).Code)
}

func TestSubmitErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrGenerating, http.StatusConflict},
		{&backend.APIError{StatusCode: http.StatusNotFound, Message: "Chat not found"}, http.StatusNotFound},
		{&backend.APIError{StatusCode: http.StatusInternalServerError}, http.StatusBadGateway},
		{errors.New("dial tcp: refused"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		r := newTestRouter(&fakeChat{submitErr: tt.err})
		assert.Equal(t, tt.want, do(t, r, http.MethodPost, "/messages", `{"message":"hi"}`).Code, tt.err.Error())
	}
}

func TestCancel(t *testing.T) {
	chat := &fakeChat{generating: true}
	r := newTestRouter(chat)

	rec := do(t, r, http.MethodPost, "/cancel", "")
	assert.JSONEq(t, `{"cancelled":true}`, rec.Body.String())

	rec = do(t, r, http.MethodPost, "/cancel", "")
	assert.JSONEq(t, `{"cancelled":false}`, rec.Body.String())
}

func TestConversationEndpoints(t *testing.T) {
	chat := &fakeChat{snapshot: model.ConversationSnapshot{Conversation: model.Conversation{ID: "c1"}, Model: "llama3.1"}}
	r := newTestRouter(chat)

	rec := do(t, r, http.MethodGet, "/conversation", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"c1"`)

	rec = do(t, r, http.MethodPut, "/conversation/66b1f0c2e4b0a1d2c3e4f5a6", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"66b1f0c2e4b0a1d2c3e4f5a6"}, chat.switched)

	rec = do(t, r, http.MethodPut, "/conversation/bad.id", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/conversation/new", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a@example.com")

	rec = do(t, r, http.MethodGet, "/chats", "")
	assert.JSONEq(t, `{"data":[{"id":"c1","title":"First"}]}`, rec.Body.String())
}

func TestDeleteConversation(t *testing.T) {
	chat := &fakeChat{}
	r := newTestRouter(chat)

	rec := do(t, r, http.MethodDelete, "/conversation/c1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":"c1"}`, rec.Body.String())
	assert.Equal(t, []string{"c1"}, chat.deleted)

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodDelete, "/conversation/bad.id", "").Code)

	chat.deleteErr = service.ErrGenerating
	assert.Equal(t, http.StatusConflict, do(t, r, http.MethodDelete, "/conversation/c1", "").Code)

	chat.deleteErr = &backend.APIError{StatusCode: http.StatusNotFound, Message: "Chat not found"}
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodDelete, "/conversation/c1", "").Code)
}

func TestIdentitiesGetTheirOwnState(t *testing.T) {
	a := &fakeChat{generating: true, snapshot: model.ConversationSnapshot{Conversation: model.Conversation{ID: "chat-of-a"}}}
	b := &fakeChat{snapshot: model.ConversationSnapshot{Conversation: model.Conversation{ID: "chat-of-b"}}}
	r := newRouter(perEmail(map[string]*fakeChat{"a@example.com": a, "b@example.com": b}))

	rec := doAs(t, r, "b@example.com", http.MethodGet, "/conversation", "")
	assert.Contains(t, rec.Body.String(), `"id":"chat-of-b"`)
	assert.NotContains(t, rec.Body.String(), "chat-of-a")

	rec = doAs(t, r, "b@example.com", http.MethodPost, "/cancel", "")
	assert.JSONEq(t, `{"cancelled":false}`, rec.Body.String())
	assert.True(t, a.generating)

	rec = doAs(t, r, "b@example.com", http.MethodPost, "/messages", `{"message":"hi"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, b.inputs, 1)
	assert.Empty(t, a.inputs)
	assert.Equal(t, "b@example.com", b.auths[0].Email)
}

func TestForbiddenMapsTo403(t *testing.T) {
	r := newTestRouter(&fakeChat{submitErr: service.ErrForbidden})

	assert.Equal(t, http.StatusForbidden, do(t, r, http.MethodPost, "/messages", `{"message":"hi"}`).Code)
}

func TestSwitchWhileGeneratingConflicts(t *testing.T) {
	r := newTestRouter(&fakeChat{switchErr: service.ErrGenerating})

	rec := do(t, r, http.MethodPut, "/conversation/c2", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestModelEndpoints(t *testing.T) {
	chat := &fakeChat{model: "llama3.1"}
	r := newTestRouter(chat)

	rec := do(t, r, http.MethodPost, "/model", `{"model":"qwen2.5:14b"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "qwen2.5:14b", chat.model)

	rec = do(t, r, http.MethodPost, "/model", `{"model":"gpt-9"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodGet, "/models", "")
	assert.JSONEq(t, `{"models":["llama3.1","qwen2.5:14b"],"selected":"qwen2.5:14b"}`, rec.Body.String())
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeConn bool

func (c fakeConn) IsConnected() bool { return bool(c) }

func TestHealthAndReady(t *testing.T) {
	h := NewHealthHandler(fakePinger{}, nil)
	assert.Equal(t, http.StatusOK, do(t, http.HandlerFunc(h.Health), http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, do(t, http.HandlerFunc(h.Ready), http.MethodGet, "/ready", "").Code)

	h = NewHealthHandler(fakePinger{err: backend.ErrUnavailable}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, http.HandlerFunc(h.Ready), http.MethodGet, "/ready", "").Code)

	h = NewHealthHandler(fakePinger{}, fakeConn(false))
	assert.Equal(t, http.StatusServiceUnavailable, do(t, http.HandlerFunc(h.Ready), http.MethodGet, "/ready", "").Code)
}

func connectFeed(t *testing.T, url, email string) <-chan sse.Event {
	t.Helper()
	header := http.Header{}
	header.Set(emailHeader, email)

	received := make(chan sse.Event, 16)
	client := &http.Client{Transport: headerTransport{header}}
	es, err := sse.Connect(context.Background(), client, url, sse.Handlers{
		OnEvent: func(ev sse.Event) { received <- ev },
	})
	require.NoError(t, err)
	t.Cleanup(es.Close)
	return received
}

// headerTransport adds fixed headers to every request.
type headerTransport struct{ header http.Header }

func (h headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	for k, v := range h.header {
		r.Header[k] = v
	}
	return http.DefaultTransport.RoundTrip(r)
}

func nextEvent(t *testing.T, received <-chan sse.Event) sse.Event {
	t.Helper()
	select {
	case ev := <-received:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return sse.Event{}
	}
}

func TestEventsFeed(t *testing.T) {
	hub := NewHub(logger.NewNop())
	chat := &fakeChat{
		generating: true,
		snapshot:   model.ConversationSnapshot{Conversation: model.Conversation{ID: "c1"}, Display: "He"},
	}
	events := NewEventsHandler(hub, single(chat), time.Hour, logger.NewNop())
	srv := httptest.NewServer(withAuth(http.HandlerFunc(events.Events)))
	defer srv.Close()

	received := connectFeed(t, srv.URL, "a@example.com")
	next := func() sse.Event { return nextEvent(t, received) }

	ev := next()
	assert.Equal(t, "generating", ev.Type)
	assert.JSONEq(t, `{"generating":true}`, string(ev.Data))

	ev = next()
	assert.Equal(t, "display", ev.Type)
	assert.JSONEq(t, `{"conversation_id":"c1","text":"He"}`, string(ev.Data))

	// the subscription is registered before the initial frames are written
	feed := hub.For("a@example.com")
	feed.Show("c1", "Hello")
	ev = next()
	assert.Equal(t, "display", ev.Type)
	assert.JSONEq(t, `{"conversation_id":"c1","text":"Hello"}`, string(ev.Data))

	feed.Appended("c1", model.Message{Content: "Hello", Sender: model.SenderAssistant})
	ev = next()
	assert.Equal(t, "message", ev.Type)
	assert.JSONEq(t, `{"conversation_id":"c1","message":{"message":"Hello","sender":"ai"}}`, string(ev.Data))

	feed.Generating(false)
	assert.Equal(t, "generating", next().Type)

	feed.Notify(context.Background(), notify.Error("c1", "An error occurred"))
	ev = next()
	assert.Equal(t, "notification", ev.Type)
	assert.Contains(t, string(ev.Data), "An error occurred")
}

func TestEventsFeedIsPerIdentity(t *testing.T) {
	hub := NewHub(logger.NewNop())
	chats := map[string]*fakeChat{
		"a@example.com": {generating: true, snapshot: model.ConversationSnapshot{Conversation: model.Conversation{ID: "chat-of-a"}, Display: "secret"}},
		"b@example.com": {},
	}
	events := NewEventsHandler(hub, perEmail(chats), time.Hour, logger.NewNop())
	srv := httptest.NewServer(withAuth(http.HandlerFunc(events.Events)))
	defer srv.Close()

	feedB := connectFeed(t, srv.URL, "b@example.com")
	ev := nextEvent(t, feedB)
	assert.Equal(t, "generating", ev.Type)
	assert.JSONEq(t, `{"generating":false}`, string(ev.Data))

	hub.For("a@example.com").Show("chat-of-a", "secret answer")
	hub.For("a@example.com").Notify(context.Background(), notify.Error("chat-of-a", "An error occurred"))
	hub.For("b@example.com").Show("chat-of-b", "mine")

	ev = nextEvent(t, feedB)
	assert.Equal(t, "display", ev.Type)
	assert.JSONEq(t, `{"conversation_id":"chat-of-b","text":"mine"}`, string(ev.Data))
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub(logger.NewNop())
	frames, unsubscribe := hub.Subscribe("a@example.com")
	unsubscribe()

	hub.For("a@example.com").Clear()

	select {
	case f := <-frames:
		t.Fatalf("unexpected frame %v", f)
	default:
	}
}
