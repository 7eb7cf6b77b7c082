package store

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/models"
)

const me models.ID = "1"

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func msg(id string, sender models.ID, offset time.Duration, status models.MessageStatus) models.Message {
	return models.Message{
		ID:        models.ID(id),
		Content:   "content " + id,
		Status:    status,
		Sender:    models.Sender{ID: sender},
		CreatedAt: base.Add(offset),
	}
}

func ids(msgs []models.Message) []models.ID {
	out := make([]models.ID, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestLoadHistorySortsAndTags(t *testing.T) {
	s := New(me)
	unread := s.LoadHistory("42", []models.Message{
		msg("3", "2", 3*time.Minute, models.StatusDelivered),
		msg("1", me, time.Minute, models.StatusSent),
		msg("2", "2", 2*time.Minute, models.StatusRead),
	})

	log := s.Messages("42")
	assert.Equal(t, []models.ID{"1", "2", "3"}, ids(log))
	assert.Equal(t, models.Outgoing, log[0].Direction)
	assert.Equal(t, models.Incoming, log[1].Direction)
	assert.Equal(t, models.ID("42"), log[2].RoomID)
	assert.Equal(t, []models.ID{"3"}, ids(unread))
}

func TestLoadHistoryKeepsEveryMessageInOrder(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		n := r.Intn(40)
		msgs := make([]models.Message, 0, n)
		for i := 0; i < n; i++ {
			msgs = append(msgs, msg(fmt.Sprint(i), "2", time.Duration(r.Intn(1000))*time.Second, models.StatusSent))
		}

		s := New(me)
		s.LoadHistory("r", msgs)
		log := s.Messages("r")

		require.Len(t, log, n)
		assert.True(t, sort.SliceIsSorted(log, func(i, j int) bool { return log[i].CreatedAt.Before(log[j].CreatedAt) }))
	}
}

func TestLoadHistoryReplacesPreviousLog(t *testing.T) {
	s := New(me)
	s.Append("42", msg("old", "2", 0, models.StatusSent))
	s.LoadHistory("42", []models.Message{msg("new", "2", 0, models.StatusRead)})
	assert.Equal(t, []models.ID{"new"}, ids(s.Messages("42")))
}

func TestOptimisticThenConfirmLeavesOneEntry(t *testing.T) {
	s := New(me)
	s.LoadHistory("42", []models.Message{msg("10", "2", 0, models.StatusRead)})

	temp := msg("temp-1", me, time.Minute, "")
	require.True(t, s.AppendOptimistic("42", temp))
	assert.False(t, s.AppendOptimistic("42", temp), "retrying the same send must not duplicate")

	s.Append("42", msg("11", "2", 2*time.Minute, models.StatusSent))

	server := msg("99", me, 5*time.Minute, models.StatusDelivered)
	server.Content = "hello"
	require.True(t, s.ConfirmSend("42", "temp-1", server))

	log := s.Messages("42")
	assert.Equal(t, []models.ID{"10", "99", "11"}, ids(log), "confirmed entry keeps its slot")
	assert.Equal(t, "hello", log[1].Content)
	assert.Equal(t, models.StatusDelivered, log[1].Status)
	assert.Equal(t, models.Outgoing, log[1].Direction)
}

func TestConfirmAfterPushDoesNotDuplicate(t *testing.T) {
	s := New(me)
	require.True(t, s.AppendOptimistic("42", msg("temp-1", me, 0, "")))
	s.Append("42", msg("99", me, time.Second, models.StatusSent))

	require.True(t, s.ConfirmSend("42", "temp-1", msg("99", me, time.Second, models.StatusSent)))
	assert.Equal(t, []models.ID{"99"}, ids(s.Messages("42")))
}

func TestConfirmUnknownTempID(t *testing.T) {
	s := New(me)
	assert.False(t, s.ConfirmSend("42", "temp-x", msg("5", me, 0, models.StatusSent)))
	assert.Empty(t, s.Messages("42"))
}

func TestAppendDedupesByID(t *testing.T) {
	s := New(me)
	assert.True(t, s.Append("42", msg("5", "2", 0, models.StatusSent)))
	assert.False(t, s.Append("42", msg("5", "2", 0, models.StatusDelivered)))

	log := s.Messages("42")
	require.Len(t, log, 1)
	assert.Equal(t, models.StatusDelivered, log[0].Status)
}

func TestMarkStatus(t *testing.T) {
	s := New(me)
	s.Append("42", msg("5", "2", 0, models.StatusSent))

	assert.True(t, s.MarkStatus("42", "5", models.StatusRead))
	got, ok := s.Get("42", "5")
	require.True(t, ok)
	assert.Equal(t, models.StatusRead, got.Status)

	assert.False(t, s.MarkStatus("42", "404", models.StatusRead))
	assert.False(t, s.MarkStatus("7", "5", models.StatusRead))
	assert.Len(t, s.Messages("42"), 1)
	assert.Nil(t, s.Messages("7"))
}

func TestRoomsAreIsolated(t *testing.T) {
	s := New(me)
	s.Append("A", msg("1", "2", 0, models.StatusSent))
	s.Append("B", msg("2", "2", 0, models.StatusSent))
	s.Clear("A")

	assert.Empty(t, s.Messages("A"))
	assert.Equal(t, []models.ID{"2"}, ids(s.Messages("B")))
}
