package service

import (
	"context"
	"net/http"

	"github.com/capitalize-ai/chat-console/internal/session"
	"github.com/capitalize-ai/chat-console/internal/sse"
)

// StreamURLer builds the generate-response URL.
type StreamURLer interface {
	StreamURL(chatID, token, modelName string) string
}

// StreamOpener opens stream sessions over server-sent events.
type StreamOpener struct {
	urls   StreamURLer
	client *http.Client
}

// NewStreamOpener creates an opener. client must not carry a timeout, as
// a stream stays open for the whole generation.
func NewStreamOpener(urls StreamURLer, client *http.Client) *StreamOpener {
	if client == nil {
		client = &http.Client{}
	}
	return &StreamOpener{urls: urls, client: client}
}

// Open implements session.Opener.
func (o *StreamOpener) Open(ctx context.Context, req session.Request, h session.Handlers) (session.Transport, error) {
	url := o.urls.StreamURL(req.ConversationID, req.Token, req.Model)

	es, err := sse.Connect(ctx, o.client, url, sse.Handlers{
		OnMessage: func(ev sse.Event) { h.OnMessage(ev.Data) },
		OnError:   h.OnError,
		OnClose:   h.OnClose,
	})
	if err != nil {
		return nil, err
	}
	return es, nil
}
