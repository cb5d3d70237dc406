// Package sse is a minimal server-sent events client with the shape of the
// browser EventSource: message, error and close callbacks plus Close.
package sse

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

// Event is one dispatched server-sent event.
type Event struct {
	ID   string
	Type string
	Data []byte
}

// Handlers receive events from the reader goroutine, in delivery order.
// OnMessage gets only events of type "message", like the browser's
// onmessage; OnEvent gets every other named event. Exactly one of OnError
// or OnClose is called when the stream ends, unless the caller closed the
// EventSource first.
type Handlers struct {
	OnMessage func(Event)
	OnEvent   func(Event)
	OnError   func(error)
	OnClose   func()
}

func (h Handlers) dispatch(ev Event) {
	if ev.Type == "message" {
		if h.OnMessage != nil {
			h.OnMessage(ev)
		}
		return
	}
	if h.OnEvent != nil {
		h.OnEvent(ev)
	}
}

// ErrUnexpectedStatus is returned by Connect for a non-200 reply.
var ErrUnexpectedStatus = errors.New("unexpected status")

// EventSource is an open event stream.
type EventSource struct {
	cancel    context.CancelFunc
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// Connect opens url and starts reading events. It returns once the response
// headers arrive.
func Connect(ctx context.Context, client *http.Client, url string, h Handlers) (*EventSource, error) {
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	es := &EventSource{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go es.read(resp.Body, h)

	return es, nil
}

// Close stops the stream. No callback runs after Close returns, except
// one already in progress. Close does not wait for the reader goroutine,
// so it is safe to call from inside a callback.
func (es *EventSource) Close() {
	es.closeOnce.Do(func() {
		es.closed.Store(true)
		es.cancel()
	})
}

// Done is closed when the reader goroutine exits.
func (es *EventSource) Done() <-chan struct{} {
	return es.done
}

func (es *EventSource) read(body io.ReadCloser, h Handlers) {
	defer close(es.done)
	defer body.Close()

	err := parse(body, func(ev Event) bool {
		if es.closed.Load() {
			return false
		}
		h.dispatch(ev)
		return true
	})

	if es.closed.Load() {
		return
	}
	if err != nil {
		if h.OnError != nil {
			h.OnError(err)
		}
		return
	}
	if h.OnClose != nil {
		h.OnClose()
	}
}

// parse reads the event stream format until EOF. dispatch returning false
// stops parsing. A trailing event without its blank line is dropped.
func parse(r io.Reader, dispatch func(Event) bool) error {
	br := bufio.NewReader(r)

	var (
		data    strings.Builder
		hasData bool
		evType  string
		lastID  string
	)

	for {
		line, err := br.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if hasData {
				ev := Event{ID: lastID, Type: evType, Data: []byte(data.String())}
				if ev.Type == "" {
					ev.Type = "message"
				}
				if !dispatch(ev) {
					return nil
				}
			}
			data.Reset()
			hasData = false
			evType = ""
		case strings.HasPrefix(line, ":"):
			// comment
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "data":
				if hasData {
					data.WriteByte('\n')
				}
				data.WriteString(value)
				hasData = true
			case "event":
				evType = value
			case "id":
				lastID = value
			}
		}

		if err != nil {
			// last line had no newline
			return nil
		}
	}
}
