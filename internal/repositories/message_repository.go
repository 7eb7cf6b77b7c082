package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-client/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for room messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, roomID models.ID, sender models.Sender, content string) (models.Message, error)
	ListMessages(ctx context.Context, roomID models.ID) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID models.ID) (models.Message, error)
	MarkRead(ctx context.Context, messageID models.ID) (models.Message, error)
}

type messageRow struct {
	ID         models.ID `db:"id"`
	RoomID     models.ID `db:"room_id"`
	SenderID   models.ID `db:"sender_id"`
	SenderName string    `db:"sender_name"`
	Content    string    `db:"content"`
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r messageRow) model() models.Message {
	return models.Message{
		ID:        r.ID,
		RoomID:    r.RoomID,
		Content:   r.Content,
		Status:    models.MessageStatus(r.Status),
		Sender:    models.Sender{ID: r.SenderID, Name: r.SenderName},
		CreatedAt: r.CreatedAt,
	}
}

const messageColumns = `id, room_id, sender_id, sender_name, content, status, created_at`

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message with status SENT.
func (r *MessageRepo) CreateMessage(ctx context.Context, roomID models.ID, sender models.Sender, content string) (models.Message, error) {
	var row messageRow
	err := r.db.QueryRowxContext(ctx, `INSERT INTO chat_messages (room_id, sender_id, sender_name, content)
        VALUES ($1, $2, $3, $4) RETURNING `+messageColumns,
		roomID, sender.ID.String(), sender.Name, content).StructScan(&row)
	if err != nil {
		return models.Message{}, err
	}
	return row.model(), nil
}

// ListMessages returns the room's messages in creation order.
func (r *MessageRepo) ListMessages(ctx context.Context, roomID models.ID) ([]models.Message, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+messageColumns+` FROM chat_messages
        WHERE room_id=$1 ORDER BY created_at ASC, id ASC`, roomID)
	if err != nil {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.model())
	}
	return msgs, nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID models.ID) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM chat_messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.model(), nil
}

// MarkRead sets the message status to READ and returns the updated row.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID models.ID) (models.Message, error) {
	var row messageRow
	err := r.db.QueryRowxContext(ctx, `UPDATE chat_messages SET status='READ' WHERE id=$1 RETURNING `+messageColumns,
		messageID).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.model(), nil
}
