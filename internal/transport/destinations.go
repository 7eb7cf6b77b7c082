package transport

import (
	"fmt"

	"chat-client/internal/models"
)

// RoomTopic is the broker topic carrying a room's events.
func RoomTopic(roomID models.ID) string {
	return fmt.Sprintf("/topic/chat/%s", roomID)
}

// TypingDestination is where typing indicators for a room are published.
func TypingDestination(roomID models.ID) string {
	return fmt.Sprintf("/app/chat/%s/typing", roomID)
}
