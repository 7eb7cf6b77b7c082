package ws

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

const wsRoutingKey = "ws_events.chats"

const (
	topicPrefix  = "/topic/chat/"
	appPrefix    = "/app/chat/"
	typingSuffix = "/typing"
)

func newConnID() string {
	return uuid.NewString()
}

// roomFromTopic extracts the room id from /topic/chat/{roomId}.
func roomFromTopic(destination string) (models.ID, bool) {
	rest, ok := strings.CutPrefix(destination, topicPrefix)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return models.ID(rest), true
}

// roomFromTypingDestination extracts the room id from /app/chat/{roomId}/typing.
func roomFromTypingDestination(destination string) (models.ID, bool) {
	rest, ok := strings.CutPrefix(destination, appPrefix)
	if !ok {
		return "", false
	}
	rest, ok = strings.CutSuffix(rest, typingSuffix)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return models.ID(rest), true
}

func publishWSEvent(ctx context.Context, info ConnInfo, event, reason string) {
	observability.IncWSEvent(event)
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id": info.UserID,
				"ip":      info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
