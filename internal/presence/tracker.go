// Package presence tracks who is typing in each room and broadcasts the local
// user's own typing state.
package presence

import (
	"sort"
	"sync"
	"time"

	"chat-client/internal/models"
)

const (
	// DefaultTTL applies when a TYPING event carries no expiry of its own.
	DefaultTTL = 5 * time.Second

	// MaxTTL caps the expiry a sender may assert.
	MaxTTL = 30 * time.Second
)

type typingEntry struct {
	user      models.TypingUser
	expiresAt time.Time
	seq       uint64
}

// Tracker holds the typing set of every room. Entries expire on their own so
// a sender that vanished without STOP_TYPING cannot linger.
type Tracker struct {
	now func() time.Time

	mu    sync.Mutex
	seq   uint64
	rooms map[models.ID]map[models.ID]typingEntry
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		now:   time.Now,
		rooms: make(map[models.ID]map[models.ID]typingEntry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetTyping adds user to the room's typing set or refreshes its expiry.
// A non-positive ttl selects DefaultTTL.
func (t *Tracker) SetTyping(roomID models.ID, user models.TypingUser, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ttl = min(ttl, MaxTTL)

	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.rooms[roomID]
	if !ok {
		set = make(map[models.ID]typingEntry)
		t.rooms[roomID] = set
	}
	entry, exists := set[user.UserID]
	if !exists {
		t.seq++
		entry.seq = t.seq
	}
	entry.user = user
	entry.expiresAt = t.now().Add(ttl)
	set[user.UserID] = entry
}

// ClearTyping removes userID from the room's typing set.
func (t *Tracker) ClearTyping(roomID, userID models.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.rooms[roomID]
	if !ok {
		return
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(t.rooms, roomID)
	}
}

// ClearRoom forgets every typing entry of the room.
func (t *Tracker) ClearRoom(roomID models.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rooms, roomID)
}

// Typing lists the users currently typing in the room, oldest first.
func (t *Tracker) Typing(roomID models.ID) []models.TypingUser {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.rooms[roomID]
	entries := make([]typingEntry, 0, len(set))
	for id, e := range set {
		if !now.Before(e.expiresAt) {
			delete(set, id)
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	users := make([]models.TypingUser, 0, len(entries))
	for _, e := range entries {
		users = append(users, e.user)
	}
	return users
}

// Prune drops expired entries across all rooms and returns how many were removed.
func (t *Tracker) Prune() int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for roomID, set := range t.rooms {
		for id, e := range set {
			if !now.Before(e.expiresAt) {
				delete(set, id)
				removed++
			}
		}
		if len(set) == 0 {
			delete(t.rooms, roomID)
		}
	}
	return removed
}
