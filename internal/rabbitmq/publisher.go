package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"chat-client/internal/observability"
	"chat-client/internal/telemetry"
)

// appID identifies the devserver in the AMQP properties of every event.
const appID = "chat-devserver"

// ErrBrokerGone is returned once the broker connection has dropped.
var ErrBrokerGone = errors.New("rabbitmq connection lost")

// Publisher fans devserver events out to a topic exchange: socket
// lifecycle (ws_events.*), stored chat messages (chat_events.*) and audit
// records.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Status describes how events are being delivered.
type Status struct {
	Mode   string
	Reason string
}

// StatusOf reports the delivery status of p for startup logging.
func StatusOf(p Publisher) Status {
	switch p := p.(type) {
	case *amqpPublisher:
		if p.lost.Load() {
			return Status{Mode: "amqp", Reason: ErrBrokerGone.Error()}
		}
		return Status{Mode: "amqp"}
	case noopPublisher:
		return Status{Mode: "noop", Reason: p.reason}
	default:
		return Status{Mode: "unknown"}
	}
}

// NewPublisher connects to amqpURL and declares exchange. Any failure
// degrades to a publisher that only logs, so the devserver runs without a broker.
func NewPublisher(amqpURL, exchange string, logger *slog.Logger) Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "rabbitmq", "exchange", exchange)

	if amqpURL == "" {
		return degrade(logger, errors.New("empty amqp url"))
	}

	conn, err := amqp.DialConfig(amqpURL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Properties: amqp.Table{
			"connection_name": appID,
		},
	})
	if err != nil {
		return degrade(logger, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return degrade(logger, err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return degrade(logger, fmt.Errorf("declare exchange: %w", err))
	}

	p := &amqpPublisher{conn: conn, ch: ch, exchange: exchange, logger: logger}
	go p.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))

	logger.Info("rabbitmq connected")
	return p
}

func degrade(logger *slog.Logger, reason error) Publisher {
	logger.Warn("rabbitmq unavailable, events are logged only", "reason", reason)
	return noopPublisher{reason: reason.Error(), logger: logger}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   *slog.Logger

	lost atomic.Bool
}

// watch marks the publisher lost when the broker closes the connection.
// A nil error means Close was called locally.
func (p *amqpPublisher) watch(closed <-chan *amqp.Error) {
	if err, ok := <-closed; ok && err != nil {
		p.logger.Error("rabbitmq connection closed", "code", err.Code, "reason", err.Reason)
	}
	p.lost.Store(true)
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	if p.lost.Load() {
		return fmt.Errorf("publish %s: %w", routingKey, ErrBrokerGone)
	}
	msg, err := publishing(event, time.Now())
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		p.logger.Warn("rabbitmq publish failed", append(describe(routingKey, event), "error", err)...)
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

func (p *amqpPublisher) Close() error {
	_ = p.ch.Close()
	return p.conn.Close()
}

// publishing wraps event as a persistent JSON message. Envelope metadata is
// lifted into AMQP properties so consumers can route without decoding.
func publishing(event any, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    now.UTC(),
		AppId:        appID,
		Body:         body,
	}
	switch e := event.(type) {
	case observability.EventEnvelope:
		msg.Type = e.EventType + "." + e.EventName
		msg.CorrelationId = e.Headers["x-request-id"]
		if len(e.Headers) > 0 {
			msg.Headers = amqp.Table{}
			for k, v := range e.Headers {
				msg.Headers[k] = v
			}
		}
	case telemetry.AuditEnvelope:
		msg.Type = e.EventType + "." + e.Payload.Action
		msg.CorrelationId = e.RequestID
		// UserId is checked by the broker against the login, so the
		// chat user travels as a header.
		if e.UserID != nil {
			msg.Headers = amqp.Table{"user_id": *e.UserID}
		}
	}
	return msg, nil
}

// describe returns log attributes naming the event without its payload.
func describe(routingKey string, event any) []any {
	attrs := []any{"routing_key", routingKey}
	switch e := event.(type) {
	case observability.EventEnvelope:
		attrs = append(attrs, "event_type", e.EventType, "event_name", e.EventName)
	case telemetry.AuditEnvelope:
		attrs = append(attrs, "event_type", e.EventType, "action", e.Payload.Action, "request_id", e.RequestID)
		if e.Payload.RoomID != "" {
			attrs = append(attrs, "room_id", e.Payload.RoomID)
		}
	}
	return attrs
}

type noopPublisher struct {
	reason string
	logger *slog.Logger
}

func (p noopPublisher) Publish(_ context.Context, routingKey string, event any) error {
	logger := p.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("event not published", describe(routingKey, event)...)
	return nil
}

func (noopPublisher) Close() error { return nil }
