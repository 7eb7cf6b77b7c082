package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-client/internal/models"
	"chat-client/internal/notify"
)

type ChatAPIMock struct {
	mock.Mock
}

func (m *ChatAPIMock) ListRooms(ctx context.Context) ([]models.ChatRoom, error) {
	args := m.Called(ctx)
	var rooms []models.ChatRoom
	if val := args.Get(0); val != nil {
		rooms = val.([]models.ChatRoom)
	}
	return rooms, args.Error(1)
}

func (m *ChatAPIMock) History(ctx context.Context, roomID models.ID) ([]models.Message, error) {
	args := m.Called(ctx, roomID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *ChatAPIMock) SendMessage(ctx context.Context, roomID models.ID, content string) (models.Message, error) {
	args := m.Called(ctx, roomID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ChatAPIMock) MarkRead(ctx context.Context, messageID models.ID) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Toast(level notify.Level, text string) {
	m.Called(level, text)
}

func (m *NotifierMock) Incoming(msg models.Message) error {
	args := m.Called(msg)
	return args.Error(0)
}
