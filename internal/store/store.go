// Package store keeps the per-room message logs of a chat session.
package store

import (
	"sort"
	"sync"

	"chat-client/internal/models"
)

type roomLog struct {
	entries []models.Message
}

func (l *roomLog) indexOf(id models.ID) int {
	for i := range l.entries {
		if l.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// Store is the single source of truth for fetched and sent messages.
// It is safe for concurrent use.
type Store struct {
	localUser models.ID

	mu    sync.RWMutex
	rooms map[models.ID]*roomLog
}

// New creates a store for the session user localUser.
func New(localUser models.ID) *Store {
	return &Store{
		localUser: localUser,
		rooms:     make(map[models.ID]*roomLog),
	}
}

func (s *Store) tag(m models.Message, roomID models.ID) models.Message {
	m.RoomID = roomID
	if m.Sender.ID == s.localUser {
		m.Direction = models.Outgoing
	} else {
		m.Direction = models.Incoming
	}
	return m
}

func (s *Store) room(roomID models.ID) *roomLog {
	l, ok := s.rooms[roomID]
	if !ok {
		l = &roomLog{}
		s.rooms[roomID] = l
	}
	return l
}

// LoadHistory replaces the room's log with msgs sorted by creation time and
// returns the incoming messages that are not yet READ.
func (s *Store) LoadHistory(roomID models.ID, msgs []models.Message) []models.Message {
	entries := make([]models.Message, 0, len(msgs))
	seen := make(map[models.ID]int, len(msgs))
	for _, m := range msgs {
		m = s.tag(m, roomID)
		if i, dup := seen[m.ID]; dup {
			entries[i] = m
			continue
		}
		seen[m.ID] = len(entries)
		entries = append(entries, m)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	var unread []models.Message
	for _, m := range entries {
		if m.Direction == models.Incoming && m.Status != models.StatusRead {
			unread = append(unread, m)
		}
	}

	s.mu.Lock()
	s.rooms[roomID] = &roomLog{entries: entries}
	s.mu.Unlock()
	return unread
}

// AppendOptimistic adds a locally sent message under its temporary id.
// It returns false when an entry with that id already exists.
func (s *Store) AppendOptimistic(roomID models.ID, temp models.Message) bool {
	temp = s.tag(temp, roomID)
	temp.Status = models.StatusSent

	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.room(roomID)
	if l.indexOf(temp.ID) >= 0 {
		return false
	}
	l.entries = append(l.entries, temp)
	return true
}

// ConfirmSend swaps the temporary entry for the server's version, keeping its
// position. If the server id is already present because the push arrived
// first, the temporary entry is dropped instead. It returns false when
// neither id is in the log.
func (s *Store) ConfirmSend(roomID models.ID, tempID models.ID, server models.Message) bool {
	server = s.tag(server, roomID)

	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.room(roomID)
	ti := l.indexOf(tempID)
	si := l.indexOf(server.ID)

	switch {
	case ti >= 0 && si >= 0:
		l.entries[si] = merge(l.entries[si], server)
		l.entries = append(l.entries[:ti], l.entries[ti+1:]...)
	case ti >= 0:
		l.entries[ti] = merge(l.entries[ti], server)
	case si >= 0:
		l.entries[si] = merge(l.entries[si], server)
	default:
		return false
	}
	return true
}

// merge applies the authoritative fields of server onto an existing entry.
func merge(existing, server models.Message) models.Message {
	existing.ID = server.ID
	existing.Content = server.Content
	if server.Status != "" {
		existing.Status = server.Status
	}
	if !server.CreatedAt.IsZero() {
		existing.CreatedAt = server.CreatedAt
	}
	if server.Sender.Name != "" {
		existing.Sender.Name = server.Sender.Name
	}
	return existing
}

// Append adds a pushed message in arrival order. A message whose id is
// already logged is updated in place. It returns true when a new entry was added.
func (s *Store) Append(roomID models.ID, msg models.Message) bool {
	msg = s.tag(msg, roomID)

	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.room(roomID)
	if i := l.indexOf(msg.ID); i >= 0 {
		l.entries[i] = merge(l.entries[i], msg)
		return false
	}
	l.entries = append(l.entries, msg)
	return true
}

// MarkStatus updates a message's status. Unknown ids are ignored.
func (s *Store) MarkStatus(roomID, messageID models.ID, status models.MessageStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	i := l.indexOf(messageID)
	if i < 0 {
		return false
	}
	l.entries[i].Status = status
	return true
}

// Clear drops the room's log.
func (s *Store) Clear(roomID models.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

// Messages returns a copy of the room's log.
func (s *Store) Messages(roomID models.ID) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]models.Message, len(l.entries))
	copy(out, l.entries)
	return out
}

// Get returns one message from the room's log.
func (s *Store) Get(roomID, messageID models.ID) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.rooms[roomID]
	if !ok {
		return models.Message{}, false
	}
	if i := l.indexOf(messageID); i >= 0 {
		return l.entries[i], true
	}
	return models.Message{}, false
}
