package models

// RoomStatus is the lifecycle state of a chat room.
type RoomStatus string

const (
	RoomOpen   RoomStatus = "OPEN"
	RoomClosed RoomStatus = "CLOSED"
)

// ChatRoom is a conversation visible to the local user.
type ChatRoom struct {
	ID          ID         `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	AvatarURL   string     `db:"avatar_url" json:"avatarUrl,omitempty"`
	SubjectID   ID         `db:"subject_id" json:"subjectId,omitempty"`
	UnreadCount int        `db:"unread_count" json:"unreadCount"`
	Status      RoomStatus `db:"status" json:"status"`
}

// Open reports whether the room still accepts messages.
func (r ChatRoom) Open() bool {
	return r.Status == "" || r.Status == RoomOpen
}
