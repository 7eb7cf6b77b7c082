package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"chat-client/internal/events"
	"chat-client/internal/middleware"
	"chat-client/internal/models"
	"chat-client/internal/observability"
	"chat-client/internal/repositories"
	"chat-client/internal/telemetry"
)

const messageRoutingKey = "chat_events.messages"

// Broadcaster pushes room events to subscribed sessions. *ws.Hub satisfies it.
type Broadcaster interface {
	Broadcast(roomID models.ID, evt events.Event) error
}

// ChatHandler manages the room and message endpoints.
type ChatHandler struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	hub      Broadcaster
	audit    *telemetry.AuditEmitter
	logger   *slog.Logger
}

// NewChatHandler builds a ChatHandler. audit may be nil.
func NewChatHandler(rooms repositories.RoomRepository, messages repositories.MessageRepository, hub Broadcaster, audit *telemetry.AuditEmitter, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{
		rooms:    rooms,
		messages: messages,
		hub:      hub,
		audit:    audit,
		logger:   logger.With("component", "chat_handler"),
	}
}

// Register mounts the chat routes on r.
func (h *ChatHandler) Register(r gin.IRoutes) {
	r.GET("/api/chat/rooms", h.ListRooms)
	r.POST("/api/chat/rooms", h.CreateRoom)
	r.GET("/api/chat/rooms/:room_id/messages", h.History)
	r.POST("/api/chat/rooms/:room_id/messages", h.PostMessage)
	r.PATCH("/api/chat/rooms/:room_id/close", h.CloseRoom)
	r.PATCH("/api/chat/messages/:message_id/read", h.MarkRead)
}

// ListRooms returns the rooms visible to the authenticated user.
func (h *ChatHandler) ListRooms(c *gin.Context) {
	user := middleware.CurrentUser(c)

	rooms, err := h.rooms.ListRoomsForUser(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("list rooms failed", "user_id", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}
	if rooms == nil {
		rooms = []models.ChatRoom{}
	}

	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// CreateRoom opens a room whose members are the caller plus the listed users.
func (h *ChatHandler) CreateRoom(c *gin.Context) {
	var req struct {
		Name      string    `json:"name" binding:"required"`
		SubjectID models.ID `json:"subjectId"`
		AvatarURL string    `json:"avatarUrl"`
		Members   []string  `json:"members"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := middleware.CurrentUser(c)
	members := []models.ID{user.ID}
	for _, m := range req.Members {
		if id := models.ID(m); !id.IsZero() && id != user.ID {
			members = append(members, id)
		}
	}

	room, err := h.rooms.CreateRoom(c.Request.Context(), repositories.NewRoom{
		Name:      req.Name,
		AvatarURL: req.AvatarURL,
		SubjectID: req.SubjectID,
		Members:   members,
	})
	if err != nil {
		h.logger.Error("create room failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}

	h.audit.Emit(c.Request.Context(), telemetry.AuditEntry{
		Action:    "room_created",
		RoomID:    room.ID,
		Text:      "room " + room.Name + " created",
		RequestID: requestIDFromContext(c),
		UserID:    user.ID,
	})
	c.JSON(http.StatusCreated, room)
}

// History returns the room's messages in creation order.
func (h *ChatHandler) History(c *gin.Context) {
	roomID, ok := parseID(c, "room_id")
	if !ok {
		return
	}
	if !h.requireMember(c, roomID) {
		return
	}

	msgs, err := h.messages.ListMessages(c.Request.Context(), roomID)
	if err != nil {
		h.logger.Error("list messages failed", "room_id", roomID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage stores a message and broadcasts it on the room topic.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	roomID, ok := parseID(c, "room_id")
	if !ok {
		return
	}

	room, err := h.rooms.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "room not found"})
		return
	}
	if !h.requireMember(c, roomID) {
		return
	}
	if !room.Open() {
		c.JSON(http.StatusConflict, gin.H{"error": "room is closed"})
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := middleware.CurrentUser(c)
	msg, err := h.messages.CreateMessage(c.Request.Context(), roomID, models.Sender{ID: user.ID, Name: user.Name}, req.Content)
	if err != nil {
		h.logger.Error("store message failed", "room_id", roomID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	h.broadcast(roomID, events.Message{RoomID: roomID, Message: msg})

	requestID := requestIDFromContext(c)
	traceID := trace.SpanContextFromContext(c.Request.Context()).TraceID().String()
	_ = observability.PublishEvent(c.Request.Context(), messageRoutingKey, observability.EventEnvelope{
		EventType: "chat_events",
		EventName: "message_created",
		Payload: map[string]interface{}{
			"room_id":    roomID,
			"message_id": msg.ID,
			"sender_id":  user.ID,
		},
	}, observability.BuildHeaders(requestID, traceID))
	h.audit.Emit(c.Request.Context(), telemetry.AuditEntry{
		Action:    "message_posted",
		RoomID:    roomID,
		Text:      "message " + msg.ID.String() + " posted",
		RequestID: requestID,
		UserID:    user.ID,
	})

	c.JSON(http.StatusCreated, msg)
}

// MarkRead moves a message to READ and announces the change on its room.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	messageID, ok := parseID(c, "message_id")
	if !ok {
		return
	}

	msg, err := h.messages.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}
	if !h.requireMember(c, msg.RoomID) {
		return
	}

	updated, err := h.messages.MarkRead(c.Request.Context(), messageID)
	if err != nil {
		h.logger.Error("mark read failed", "message_id", messageID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark message as read"})
		return
	}

	h.broadcast(updated.RoomID, events.StatusUpdate{
		RoomID:    updated.RoomID,
		MessageID: updated.ID,
		Status:    models.StatusRead,
	})
	c.Status(http.StatusNoContent)
}

// CloseRoom marks a room closed. Closed rooms reject new messages.
func (h *ChatHandler) CloseRoom(c *gin.Context) {
	roomID, ok := parseID(c, "room_id")
	if !ok {
		return
	}
	if !h.requireMember(c, roomID) {
		return
	}

	if err := h.rooms.CloseRoom(c.Request.Context(), roomID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not close room"})
		return
	}

	h.audit.Emit(c.Request.Context(), telemetry.AuditEntry{
		Action:    "room_closed",
		RoomID:    roomID,
		Text:      "room closed",
		RequestID: requestIDFromContext(c),
		UserID:    userIDFromContext(c),
	})
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) requireMember(c *gin.Context, roomID models.ID) bool {
	user := middleware.CurrentUser(c)
	member, err := h.rooms.IsMember(c.Request.Context(), roomID, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return false
	}
	return true
}

func (h *ChatHandler) broadcast(roomID models.ID, evt events.Event) {
	if h.hub == nil {
		return
	}
	if err := h.hub.Broadcast(roomID, evt); err != nil {
		h.logger.Warn("broadcast failed", "room_id", roomID, "kind", evt.Kind(), "error", err)
	}
}

func parseID(c *gin.Context, param string) (models.ID, bool) {
	raw := c.Param(param)
	if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return "", false
	}
	return models.ID(raw), true
}
