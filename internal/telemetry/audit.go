package telemetry

import (
	"context"
	"log/slog"
	"time"

	"chat-client/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// AuditEmitter publishes a record of every state-changing chat action.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	logger      *slog.Logger
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level  string `json:"level"`
	Action string `json:"action"`
	RoomID string `json:"room_id,omitempty"`
	Text   string `json:"text"`
}

// AuditEntry describes one action to record.
type AuditEntry struct {
	Level     string
	Action    string
	RoomID    models.ID
	Text      string
	RequestID string
	UserID    models.ID
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger *slog.Logger) *AuditEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger.With("component", "audit"),
		now:         time.Now,
	}
}

func (e *AuditEmitter) Emit(ctx context.Context, entry AuditEntry) {
	if e == nil || e.publisher == nil {
		return
	}
	if entry.Level == "" {
		entry.Level = "INFO"
	}

	var userID *string
	if !entry.UserID.IsZero() {
		id := entry.UserID.String()
		userID = &id
	}

	e.logger.Debug("audit emit",
		"action", entry.Action, "request_id", entry.RequestID, "user_id", entry.UserID, "room_id", entry.RoomID)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     entry.RequestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:  entry.Level,
			Action: entry.Action,
			RoomID: entry.RoomID.String(),
			Text:   entry.Text,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.logger.Warn("audit publish failed", "action", entry.Action, "error", err)
	}
}
