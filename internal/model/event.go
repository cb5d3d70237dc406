package model

import (
	"time"
)

// StreamEvent is one inbound frame of the generate-response stream.
type StreamEvent struct {
	ChatID          string  `json:"chat_id,omitempty"`
	PartialResponse *string `json:"partial_response,omitempty"`
	Completed       bool    `json:"completed,omitempty"`
	// IsComplete is sent by the agentic backend instead of Completed.
	IsComplete bool `json:"is_complete,omitempty"`
}

// Done reports whether the event terminates the stream.
func (e StreamEvent) Done() bool {
	return e.Completed || e.IsComplete
}

// Chunk returns the partial response text, or "" when absent.
func (e StreamEvent) Chunk() string {
	if e.PartialResponse == nil {
		return ""
	}
	return *e.PartialResponse
}

// CloseReason says why a stream session ended.
type CloseReason string

const (
	CloseCompleted CloseReason = "completed"
	CloseError     CloseReason = "error"
	CloseCancelled CloseReason = "cancelled"
)

// NotificationLevel is the severity of a user-visible notice.
type NotificationLevel string

const (
	LevelInfo  NotificationLevel = "info"
	LevelError NotificationLevel = "error"
)

// Notification is a transient notice shown to the user.
type Notification struct {
	Level          NotificationLevel `json:"level"`
	Message        string            `json:"message"`
	ConversationID string            `json:"conversation_id,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// SessionSummary describes one finished stream session.
type SessionSummary struct {
	SessionID      string      `json:"session_id"`
	ConversationID string      `json:"conversation_id"`
	Model          string      `json:"model,omitempty"`
	Reason         CloseReason `json:"reason"`
	Chars          int         `json:"chars"`
	Events         int         `json:"events"`
	StartedAt      time.Time   `json:"started_at"`
	EndedAt        time.Time   `json:"ended_at"`
	Error          string      `json:"error,omitempty"`
}

// DisplayEvent carries the running partial text to the page.
type DisplayEvent struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// GeneratingEvent carries the generation-state flag to the page.
type GeneratingEvent struct {
	Generating bool `json:"generating"`
}

// MessageEvent announces a message appended to the active conversation.
type MessageEvent struct {
	ConversationID string  `json:"conversation_id"`
	Message        Message `json:"message"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
