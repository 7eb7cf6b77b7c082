package repositories

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"chat-client/internal/models"
)

// Memory implements RoomRepository and MessageRepository without a database.
type Memory struct {
	mu       sync.RWMutex
	now      func() time.Time
	nextRoom int64
	nextMsg  int64
	rooms    map[models.ID]*memoryRoom
	messages map[models.ID]models.Message
	order    []models.ID
}

type memoryRoom struct {
	room    models.ChatRoom
	members map[models.ID]struct{}
	created int64
}

// NewMemory creates an empty repository.
func NewMemory() *Memory {
	return &Memory{
		now:      time.Now,
		rooms:    make(map[models.ID]*memoryRoom),
		messages: make(map[models.ID]models.Message),
	}
}

func (m *Memory) CreateRoom(_ context.Context, room NewRoom) (models.ChatRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRoom++
	r := models.ChatRoom{
		ID:        models.ID(strconv.FormatInt(m.nextRoom, 10)),
		Name:      room.Name,
		AvatarURL: room.AvatarURL,
		SubjectID: room.SubjectID,
		Status:    models.RoomOpen,
	}
	members := make(map[models.ID]struct{}, len(room.Members))
	for _, id := range room.Members {
		members[id] = struct{}{}
	}
	m.rooms[r.ID] = &memoryRoom{room: r, members: members, created: m.nextRoom}
	return r, nil
}

func (m *Memory) GetRoom(_ context.Context, roomID models.ID) (models.ChatRoom, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return models.ChatRoom{}, ErrRoomNotFound
	}
	return r.room, nil
}

func (m *Memory) ListRoomsForUser(_ context.Context, userID models.ID) ([]models.ChatRoom, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var entries []*memoryRoom
	for _, r := range m.rooms {
		if _, ok := r.members[userID]; ok {
			entries = append(entries, r)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].created > entries[j].created })

	rooms := make([]models.ChatRoom, 0, len(entries))
	for _, e := range entries {
		room := e.room
		for _, id := range m.order {
			msg := m.messages[id]
			if msg.RoomID == room.ID && msg.Sender.ID != userID && msg.Status != models.StatusRead {
				room.UnreadCount++
			}
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (m *Memory) IsMember(_ context.Context, roomID models.ID, userID models.ID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return false, nil
	}
	_, member := r.members[userID]
	return member, nil
}

func (m *Memory) CloseRoom(_ context.Context, roomID models.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	r.room.Status = models.RoomClosed
	return nil
}

func (m *Memory) CreateMessage(_ context.Context, roomID models.ID, sender models.Sender, content string) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomID]; !ok {
		return models.Message{}, ErrRoomNotFound
	}
	m.nextMsg++
	msg := models.Message{
		ID:        models.ID(strconv.FormatInt(m.nextMsg, 10)),
		RoomID:    roomID,
		Content:   content,
		Status:    models.StatusSent,
		Sender:    sender,
		CreatedAt: m.now().UTC(),
	}
	m.messages[msg.ID] = msg
	m.order = append(m.order, msg.ID)
	return msg, nil
}

func (m *Memory) ListMessages(_ context.Context, roomID models.ID) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := []models.Message{}
	for _, id := range m.order {
		if msg := m.messages[id]; msg.RoomID == roomID {
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}

func (m *Memory) GetMessage(_ context.Context, messageID models.ID) (models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[messageID]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, nil
}

func (m *Memory) MarkRead(_ context.Context, messageID models.ID) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[messageID]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	msg.Status = models.StatusRead
	m.messages[messageID] = msg
	return msg, nil
}
