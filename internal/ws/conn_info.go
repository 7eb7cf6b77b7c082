package ws

import (
	"time"

	"chat-client/internal/models"
)

type ConnInfo struct {
	ConnID      string
	UserID      models.ID
	UserName    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
