// Package backend is the HTTP client for the chatbot backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/pkg/logger"
	"github.com/capitalize-ai/chat-console/pkg/tracing"
)

// APIError is a non-2xx reply from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// Sentinel errors.
var (
	ErrMissingChatID = errors.New("backend did not return a chat id")
	ErrUnavailable   = errors.New("backend unavailable")
)

// StatusCode extracts the HTTP status from an *APIError, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Config holds backend client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the chatbot backend. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
	logger     *logger.Logger
}

// NewClient creates a backend client.
func NewClient(cfg Config, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tracer:     tracing.Tracer("chat-console/backend"),
		logger:     log,
	}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StreamURL builds the generate-response URL. The token travels as a query
// parameter because the browser push API cannot set request headers.
func (c *Client) StreamURL(chatID, token, modelName string) string {
	q := url.Values{}
	q.Set("chat_id", chatID)
	q.Set("token", token)
	if modelName != "" {
		q.Set("model", modelName)
	}
	return c.baseURL + "/generate-response?" + q.Encode()
}

// AddMessage posts a human message; the reply carries the chat id.
func (c *Client) AddMessage(ctx context.Context, token string, req *model.AddMessageRequest) (*model.AddMessageResponse, error) {
	var resp model.AddMessageResponse
	if err := c.do(ctx, "AddMessage", http.MethodPost, "/add-message", token, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}
	if resp.ChatID == "" {
		return nil, ErrMissingChatID
	}
	return &resp, nil
}

// UpdateChat stores the finished assistant turn.
func (c *Client) UpdateChat(ctx context.Context, token, chatID, fullMessage string) error {
	req := &model.UpdateChatRequest{ChatID: chatID, FullMessage: fullMessage}
	if err := c.do(ctx, "UpdateChat", http.MethodPost, "/update-chat", token, req, nil); err != nil {
		return fmt.Errorf("failed to update chat: %w", err)
	}
	return nil
}

// ChangeModel updates the user's model preference.
func (c *Client) ChangeModel(ctx context.Context, token, modelName string) error {
	req := &model.ChangeModelRequest{Model: modelName}
	if err := c.do(ctx, "ChangeModel", http.MethodPost, "/change-model", token, req, nil); err != nil {
		return fmt.Errorf("failed to change model: %w", err)
	}
	return nil
}

type chatDocument struct {
	ID        string          `json:"_id"`
	Title     string          `json:"title"`
	UserEmail string          `json:"user_email"`
	Messages  []model.Message `json:"messages"`
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// GetChat loads one conversation with its messages.
func (c *Client) GetChat(ctx context.Context, token, chatID string) (*model.Conversation, error) {
	var resp envelope[chatDocument]
	path := "/chats/" + url.PathEscape(chatID)
	if err := c.do(ctx, "GetChat", http.MethodGet, path, token, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}

	id := resp.Data.ID
	if id == "" {
		id = chatID
	}
	return &model.Conversation{
		ID:        id,
		Title:     resp.Data.Title,
		UserEmail: resp.Data.UserEmail,
		Messages:  resp.Data.Messages,
	}, nil
}

// ListChats returns the titles of the caller's chats.
func (c *Client) ListChats(ctx context.Context, token string) ([]model.ChatTitle, error) {
	var resp envelope[[]model.ChatTitle]
	if err := c.do(ctx, "ListChats", http.MethodGet, "/chats/ids", token, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return resp.Data, nil
}

// DeleteChat deletes one conversation.
func (c *Client) DeleteChat(ctx context.Context, token, chatID string) error {
	path := "/chats/" + url.PathEscape(chatID)
	if err := c.do(ctx, "DeleteChat", http.MethodDelete, path, token, nil, nil); err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}

// Ping checks the backend health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.do(ctx, "Ping", http.MethodGet, "/health", "", nil, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path, token string, body, out any) error {
	ctx, span := c.tracer.Start(ctx, "backend."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("http.path", path))

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-Correlation-ID", uuid.New().String())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.logger.Debug("backend call",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody struct {
			Message string `json:"message"`
			Detail  any    `json:"detail"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if json.Unmarshal(data, &errBody) == nil {
			apiErr.Message = errBody.Message
			if apiErr.Message == "" && errBody.Detail != nil {
				apiErr.Message = fmt.Sprint(errBody.Detail)
			}
		}
		span.SetStatus(codes.Error, apiErr.Error())
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
