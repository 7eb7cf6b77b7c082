package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/models"
)

func TestMemoryRooms(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()

	villa, err := repo.CreateRoom(ctx, NewRoom{Name: "Villa", Members: []models.ID{"1", "2"}})
	require.NoError(t, err)
	_, err = repo.CreateRoom(ctx, NewRoom{Name: "Hotel", Members: []models.ID{"1"}})
	require.NoError(t, err)

	rooms, err := repo.ListRoomsForUser(ctx, "1")
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "Hotel", rooms[0].Name)

	rooms, err = repo.ListRoomsForUser(ctx, "2")
	require.NoError(t, err)
	require.Len(t, rooms, 1)

	member, err := repo.IsMember(ctx, villa.ID, "2")
	require.NoError(t, err)
	assert.True(t, member)
	member, err = repo.IsMember(ctx, "404", "2")
	require.NoError(t, err)
	assert.False(t, member)

	require.NoError(t, repo.CloseRoom(ctx, villa.ID))
	got, err := repo.GetRoom(ctx, villa.ID)
	require.NoError(t, err)
	assert.False(t, got.Open())
	assert.ErrorIs(t, repo.CloseRoom(ctx, "404"), ErrRoomNotFound)
}

func TestMemoryMessagesAndUnread(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	room, err := repo.CreateRoom(ctx, NewRoom{Name: "Villa", Members: []models.ID{"1", "2"}})
	require.NoError(t, err)

	first, err := repo.CreateMessage(ctx, room.ID, models.Sender{ID: "2", Name: "Guest"}, "hi")
	require.NoError(t, err)
	_, err = repo.CreateMessage(ctx, room.ID, models.Sender{ID: "2"}, "anyone?")
	require.NoError(t, err)
	_, err = repo.CreateMessage(ctx, room.ID, models.Sender{ID: "1"}, "hello")
	require.NoError(t, err)

	rooms, err := repo.ListRoomsForUser(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 2, rooms[0].UnreadCount)

	read, err := repo.MarkRead(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, read.Status)

	rooms, err = repo.ListRoomsForUser(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 1, rooms[0].UnreadCount)

	msgs, err := repo.ListMessages(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, models.StatusSent, msgs[2].Status)

	_, err = repo.MarkRead(ctx, "999")
	assert.ErrorIs(t, err, ErrMessageNotFound)
	_, err = repo.CreateMessage(ctx, "999", models.Sender{ID: "1"}, "x")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}
