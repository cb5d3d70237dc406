// Package session runs the lifecycle of a streamed assistant response:
// open the subscription, tag and accumulate chunks, and commit the final
// text exactly once when the stream ends, fails, stalls or is cancelled.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/internal/notify"
	"github.com/capitalize-ai/chat-console/internal/tagger"
	"github.com/capitalize-ai/chat-console/pkg/logger"
	"github.com/capitalize-ai/chat-console/pkg/metrics"
)

var (
	// ErrSessionOpen is returned by Open while another session is running.
	ErrSessionOpen = errors.New("a stream session is already open")
	// ErrIdleTimeout closes a session that received nothing for too long.
	ErrIdleTimeout = errors.New("stream idle timeout")
	// ErrMalformedEvent closes a session on an undecodable event.
	ErrMalformedEvent = errors.New("malformed stream event")
	// ErrSessionEnded is returned by Open when the session was cancelled
	// or failed before its transport finished connecting.
	ErrSessionEnded = errors.New("stream session ended before it connected")
)

// Request identifies the stream to open.
type Request struct {
	ConversationID string
	Token          string
	Model          string
}

// Handlers are the transport callbacks. They must be invoked from a single
// goroutine in delivery order.
type Handlers struct {
	OnMessage func(data []byte)
	OnError   func(err error)
	OnClose   func()
}

// Transport is an open subscription. Close must not block on the
// goroutine that delivers callbacks.
type Transport interface {
	Close()
}

// Opener opens the server-push subscription for a conversation.
type Opener interface {
	Open(ctx context.Context, req Request, h Handlers) (Transport, error)
}

// Committer persists the finished assistant turn.
type Committer interface {
	CommitAssistant(ctx context.Context, token, text, conversationID string) error
}

// Display receives the running partial text. Calls are made while the
// controller holds its lock, so implementations must not block or call
// back into the controller.
type Display interface {
	Show(conversationID, text string)
	Clear()
}

// Recorder receives one summary per closed session.
type Recorder interface {
	RecordSession(ctx context.Context, summary model.SessionSummary)
}

// Options configures a Controller. Zero values disable the feature.
type Options struct {
	IdleTimeout time.Duration
	Display     Display
	Notifier    notify.Notifier
	Recorder    Recorder
}

type state int

const (
	stateIdle state = iota
	stateOpen
	stateClosing
)

type session struct {
	id        string
	seq       uint64
	req       Request
	ctx       context.Context
	transport Transport
	tagger    tagger.Tagger
	text      strings.Builder
	events    int
	startedAt time.Time
	idle      *time.Timer
	idleGen   uint64
	reason    model.CloseReason
	logger    *logger.Logger
}

// Controller owns at most one stream session at a time.
type Controller struct {
	opener    Opener
	committer Committer
	signal    *Signal
	opts      Options
	logger    *logger.Logger

	mu    sync.Mutex
	state state
	seq   uint64
	cur   *session
}

// NewController creates an idle controller.
func NewController(opener Opener, committer Committer, log *logger.Logger, opts Options) *Controller {
	return &Controller{
		opener:    opener,
		committer: committer,
		signal:    newSignal(),
		opts:      opts,
		logger:    log,
	}
}

// Signal returns the generation-state flag driven by this controller.
func (c *Controller) Signal() *Signal {
	return c.signal
}

// Generating reports whether a response is being generated.
func (c *Controller) Generating() bool {
	return c.signal.Get()
}

// Partial returns the conversation and text of the running session.
func (c *Controller) Partial() (conversationID, text string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cur == nil {
		return "", "", false
	}
	return c.cur.req.ConversationID, c.cur.text.String(), true
}

// Open starts a session. The session outlives ctx: only Cancel, the
// transport or the idle watchdog end it. If the transport cannot be
// opened the session is closed with reason error and the error returned.
func (c *Controller) Open(ctx context.Context, req Request) error {
	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		return ErrSessionOpen
	}

	c.seq++
	s := &session{
		id:        uuid.New().String(),
		seq:       c.seq,
		req:       req,
		ctx:       context.WithoutCancel(ctx),
		startedAt: time.Now(),
	}
	s.logger = c.logger.WithSession(s.id, req.ConversationID)
	c.cur = s
	c.state = stateOpen
	c.armIdle(s)
	c.signal.set(true)
	c.mu.Unlock()

	metrics.StreamSessionsActive.Inc()
	s.logger.Info("stream session opened", zap.String("model", req.Model))

	seq := s.seq
	transport, err := c.opener.Open(s.ctx, req, Handlers{
		OnMessage: func(data []byte) { c.onMessage(seq, data) },
		OnError:   func(err error) { c.close(seq, model.CloseError, err) },
		OnClose:   func() { c.close(seq, model.CloseCompleted, nil) },
	})
	if err != nil {
		c.close(seq, model.CloseError, err)
		return fmt.Errorf("failed to open stream: %w", err)
	}

	c.mu.Lock()
	if c.cur == s && c.state == stateOpen {
		s.transport = transport
		c.mu.Unlock()
		return nil
	}
	reason := s.reason
	c.mu.Unlock()

	transport.Close()
	if reason == model.CloseCompleted {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrSessionEnded, reason)
}

// Cancel stops the running generation and commits what has accumulated.
// It reports whether there was anything to cancel.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	if c.state != stateOpen || c.cur == nil || !c.signal.Get() {
		c.mu.Unlock()
		return false
	}
	seq := c.cur.seq
	c.mu.Unlock()

	c.close(seq, model.CloseCancelled, nil)
	return true
}

// armIdle starts a fresh watchdog for s, replacing any earlier one. Callers
// hold c.mu.
func (c *Controller) armIdle(s *session) {
	if c.opts.IdleTimeout <= 0 {
		return
	}
	if s.idle != nil {
		s.idle.Stop()
	}
	s.idleGen++
	seq, gen := s.seq, s.idleGen
	s.idle = time.AfterFunc(c.opts.IdleTimeout, func() {
		c.idleExpired(seq, gen)
	})
}

// idleExpired closes session seq unless an event re-armed the watchdog
// after timer gen fired.
func (c *Controller) idleExpired(seq, gen uint64) {
	c.closeIf(seq, model.CloseError, ErrIdleTimeout, func(s *session) bool {
		return s.idleGen == gen
	})
}

// current returns the open session with the given sequence, or nil.
// Callers hold c.mu.
func (c *Controller) current(seq uint64) *session {
	if c.state != stateOpen || c.cur == nil || c.cur.seq != seq {
		return nil
	}
	return c.cur
}

func (c *Controller) onMessage(seq uint64, data []byte) {
	c.mu.Lock()
	s := c.current(seq)
	if s == nil {
		c.mu.Unlock()
		return
	}
	s.events++
	c.armIdle(s)

	var ev model.StreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.mu.Unlock()
		metrics.RecordStreamEvent("malformed")
		c.close(seq, model.CloseError, fmt.Errorf("%w: %v", ErrMalformedEvent, err))
		return
	}

	if ev.Done() {
		c.mu.Unlock()
		metrics.RecordStreamEvent("completed")
		c.close(seq, model.CloseCompleted, nil)
		return
	}

	s.text.WriteString(s.tagger.Push(ev.Chunk()))
	if c.opts.Display != nil {
		c.opts.Display.Show(s.req.ConversationID, s.text.String())
	}
	c.mu.Unlock()

	metrics.RecordStreamEvent("partial")
}

// close ends session seq. Only the first call for a session has any
// effect; later calls, and calls for an older session, are no-ops.
func (c *Controller) close(seq uint64, reason model.CloseReason, cause error) {
	c.closeIf(seq, reason, cause, nil)
}

// closeIf is close with a guard checked under the lock.
func (c *Controller) closeIf(seq uint64, reason model.CloseReason, cause error, ok func(*session) bool) {
	c.mu.Lock()
	s := c.current(seq)
	if s == nil || (ok != nil && !ok(s)) {
		c.mu.Unlock()
		return
	}
	c.state = stateClosing
	s.reason = reason
	if s.idle != nil {
		s.idle.Stop()
	}
	transport := s.transport
	final := s.tagger.Finish(s.text.String())
	c.mu.Unlock()

	if transport != nil {
		transport.Close()
	}

	log := s.logger.With(zap.String("reason", string(reason)), zap.Int("events", s.events))
	if reason == model.CloseError {
		log.Warn("stream session failed", zap.Error(cause))
		if c.opts.Notifier != nil {
			c.opts.Notifier.Notify(s.ctx, notify.Error(s.req.ConversationID, errorMessage(cause)))
		}
	}

	commitErr := c.committer.CommitAssistant(s.ctx, s.req.Token, final, s.req.ConversationID)
	if commitErr != nil {
		log.Error("failed to commit assistant message", zap.Error(commitErr))
	}

	endedAt := time.Now()
	parts := tagger.Split(final)
	log.Info("stream session closed",
		zap.Int("chars", len(final)),
		zap.Int("reasoning_chars", len(parts.Reasoning)),
		zap.Duration("duration", endedAt.Sub(s.startedAt)),
	)

	c.mu.Lock()
	c.cur = nil
	c.state = stateIdle
	if c.opts.Display != nil {
		c.opts.Display.Clear()
	}
	c.signal.set(false)
	c.mu.Unlock()

	metrics.StreamSessionsActive.Dec()
	metrics.RecordSessionClosed(s.req.Model, string(reason), endedAt.Sub(s.startedAt).Seconds())

	if c.opts.Recorder != nil {
		summary := model.SessionSummary{
			SessionID:      s.id,
			ConversationID: s.req.ConversationID,
			Model:          s.req.Model,
			Reason:         reason,
			Chars:          len(final),
			Events:         s.events,
			StartedAt:      s.startedAt,
			EndedAt:        endedAt,
		}
		if cause != nil {
			summary.Error = cause.Error()
		}
		c.opts.Recorder.RecordSession(s.ctx, summary)
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, ErrIdleTimeout):
		return "The response stalled and was stopped"
	case errors.Is(err, ErrMalformedEvent):
		return "Received an unreadable response from the server"
	default:
		return "An error occurred while generating the response"
	}
}
