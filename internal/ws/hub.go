package ws

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-client/internal/events"
	"chat-client/internal/models"
	"chat-client/internal/stomp"
)

const writeWait = 10 * time.Second

// client is one STOMP session attached to the hub.
type client struct {
	ws   *websocket.Conn
	info ConnInfo

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn, info ConnInfo) *client {
	return &client{ws: conn, info: info, done: make(chan struct{})}
}

func (c *client) send(f *frame.Frame) error {
	data, err := stomp.Encode(f)
	if err != nil {
		return err
	}
	return c.write(data)
}

func (c *client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.ws == nil {
		return fmt.Errorf("connection %s has no socket", c.info.ConnID)
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			c.ws.Close()
		}
	})
}

// Hub tracks which sessions are subscribed to which room topic.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[models.ID]map[*client]string
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:  make(map[models.ID]map[*client]string),
		logger: logger.With("component", "hub"),
	}
}

// Subscribe attaches c to roomID under the given subscription id.
func (h *Hub) Subscribe(roomID models.ID, c *client, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*client]string)
	}
	h.rooms[roomID][c] = subID
}

// Unsubscribe removes the subscription subID of c and reports the room it covered.
func (h *Hub) Unsubscribe(c *client, subID string) (models.ID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID, subs := range h.rooms {
		if id, ok := subs[c]; ok && id == subID {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.rooms, roomID)
			}
			return roomID, true
		}
	}
	return "", false
}

// RemoveClient drops every subscription held by c.
func (h *Hub) RemoveClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID, subs := range h.rooms {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Subscribed reports whether c currently listens to roomID.
func (h *Hub) Subscribed(roomID models.ID, c *client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[roomID][c]
	return ok
}

// Subscribers returns the number of sessions subscribed to roomID.
func (h *Hub) Subscribers(roomID models.ID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

type target struct {
	client *client
	subID  string
}

// Broadcast sends evt as a MESSAGE frame to every subscriber of roomID.
// Sessions that cannot be written to are closed and dropped.
func (h *Hub) Broadcast(roomID models.ID, evt events.Event) error {
	body, err := events.Encode(evt)
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]target, 0, len(h.rooms[roomID]))
	for c, subID := range h.rooms[roomID] {
		targets = append(targets, target{client: c, subID: subID})
	}
	h.mu.RUnlock()

	destination := topicPrefix + string(roomID)
	for _, t := range targets {
		f := frame.New(frame.MESSAGE,
			stomp.HeaderDestination, destination,
			stomp.HeaderSubscription, t.subID,
			stomp.HeaderMessageID, uuid.NewString(),
			stomp.HeaderContentType, "application/json",
		)
		f.Body = body
		if err := t.client.send(f); err != nil {
			h.logger.Warn("websocket write error",
				"conn_id", t.client.info.ConnID, "room_id", roomID, "error", err)
			t.client.close()
			h.RemoveClient(t.client)
			publishWSEvent(context.Background(), t.client.info, "ws_error", err.Error())
		}
	}
	return nil
}
