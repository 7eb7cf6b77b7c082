// Package api is the REST client for the chat endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

const tracerName = "chat-client/api"

// Client calls the chat REST API.
type Client struct {
	baseURL string
	http    *http.Client
	router  TokenRouter
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l.With("component", "api")
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, router TokenRouter, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		router:  router,
		logger:  slog.Default().With("component", "api"),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type roomsResponse struct {
	Rooms []models.ChatRoom `json:"rooms"`
}

type messagesResponse struct {
	Messages []models.Message `json:"messages"`
}

type sendRequest struct {
	Content string `json:"content"`
}

// CreateRoomRequest is the body of a room creation call.
type CreateRoomRequest struct {
	Name      string    `json:"name"`
	SubjectID models.ID `json:"subjectId,omitempty"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	Members   []string  `json:"members,omitempty"`
}

// ListRooms returns the rooms visible to the caller.
func (c *Client) ListRooms(ctx context.Context) ([]models.ChatRoom, error) {
	var resp roomsResponse
	if err := c.do(ctx, "list_rooms", http.MethodGet, "/api/chat/rooms", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// History returns the messages of a room.
func (c *Client) History(ctx context.Context, roomID models.ID) ([]models.Message, error) {
	var resp messagesResponse
	path := "/api/chat/rooms/" + url.PathEscape(roomID.String()) + "/messages"
	if err := c.do(ctx, "history", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SendMessage posts content to a room and returns the stored message.
func (c *Client) SendMessage(ctx context.Context, roomID models.ID, content string) (models.Message, error) {
	var msg models.Message
	path := "/api/chat/rooms/" + url.PathEscape(roomID.String()) + "/messages"
	if err := c.do(ctx, "send_message", http.MethodPost, path, sendRequest{Content: content}, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// MarkRead marks one message as read.
func (c *Client) MarkRead(ctx context.Context, messageID models.ID) error {
	path := "/api/chat/messages/" + url.PathEscape(messageID.String()) + "/read"
	return c.do(ctx, "mark_read", http.MethodPatch, path, nil, nil)
}

// CreateRoom opens a new room.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (models.ChatRoom, error) {
	var room models.ChatRoom
	if err := c.do(ctx, "create_room", http.MethodPost, "/api/chat/rooms", req, &room); err != nil {
		return models.ChatRoom{}, err
	}
	return room, nil
}

// CloseRoom marks a room closed.
func (c *Client) CloseRoom(ctx context.Context, roomID models.ID) error {
	path := "/api/chat/rooms/" + url.PathEscape(roomID.String()) + "/close"
	return c.do(ctx, "close_room", http.MethodPatch, path, nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	ctx, span := c.tracer.Start(ctx, "api."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	if token := c.router.TokenFor(path); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.ObserveAPIRequest(op, 0, started)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	observability.ObserveAPIRequest(op, resp.StatusCode, started)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
		span.SetStatus(codes.Error, apiErr.Error())
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			c.logger.Warn("request rejected", "op", op, "status", resp.StatusCode, "path", path)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// readErrorMessage extracts {"error": "..."} or {"message": "..."} from an
// error body, falling back to the raw text.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(data))
}
