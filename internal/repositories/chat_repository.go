package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-client/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

// NewRoom describes a room to create.
type NewRoom struct {
	Name      string
	AvatarURL string
	SubjectID models.ID
	Members   []models.ID
}

// RoomRepository abstracts room persistence.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room NewRoom) (models.ChatRoom, error)
	GetRoom(ctx context.Context, roomID models.ID) (models.ChatRoom, error)
	ListRoomsForUser(ctx context.Context, userID models.ID) ([]models.ChatRoom, error)
	IsMember(ctx context.Context, roomID models.ID, userID models.ID) (bool, error)
	CloseRoom(ctx context.Context, roomID models.ID) error
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// CreateRoom inserts the room and its members in one transaction.
func (r *RoomRepo) CreateRoom(ctx context.Context, room NewRoom) (models.ChatRoom, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.ChatRoom{}, err
	}
	defer tx.Rollback()

	var created models.ChatRoom
	err = tx.QueryRowxContext(ctx, `INSERT INTO chat_rooms (name, avatar_url, subject_id) VALUES ($1, $2, $3)
        RETURNING id, name, avatar_url, subject_id, status, 0 AS unread_count`,
		room.Name, room.AvatarURL, room.SubjectID.String()).StructScan(&created)
	if err != nil {
		return models.ChatRoom{}, err
	}
	for _, member := range room.Members {
		if _, err := tx.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)
            ON CONFLICT DO NOTHING`, created.ID, member.String()); err != nil {
			return models.ChatRoom{}, err
		}
	}
	return created, tx.Commit()
}

// GetRoom fetches a room by id.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID models.ID) (models.ChatRoom, error) {
	var room models.ChatRoom
	err := r.db.GetContext(ctx, &room, `SELECT id, name, avatar_url, subject_id, status, 0 AS unread_count
        FROM chat_rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatRoom{}, ErrRoomNotFound
	}
	return room, err
}

// ListRoomsForUser returns the user's rooms with their unread counts, newest first.
func (r *RoomRepo) ListRoomsForUser(ctx context.Context, userID models.ID) ([]models.ChatRoom, error) {
	query := `SELECT r.id, r.name, r.avatar_url, r.subject_id, r.status,
            (SELECT COUNT(*) FROM chat_messages m
                WHERE m.room_id = r.id AND m.sender_id <> $1 AND m.status <> 'READ') AS unread_count
        FROM chat_rooms r
        JOIN room_members rm ON rm.room_id = r.id AND rm.user_id = $1
        ORDER BY r.created_at DESC`
	var rooms []models.ChatRoom
	if err := r.db.SelectContext(ctx, &rooms, query, userID.String()); err != nil {
		return nil, err
	}
	return rooms, nil
}

// IsMember checks whether a user belongs to the room.
func (r *RoomRepo) IsMember(ctx context.Context, roomID models.ID, userID models.ID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id=$1 AND user_id=$2)`,
		roomID, userID.String())
	return exists, err
}

// CloseRoom marks the room closed.
func (r *RoomRepo) CloseRoom(ctx context.Context, roomID models.ID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_rooms SET status='CLOSED' WHERE id=$1`, roomID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRoomNotFound
	}
	return nil
}
