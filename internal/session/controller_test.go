package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-client/internal/api"
	"chat-client/internal/events"
	"chat-client/internal/logging"
	"chat-client/internal/mocks"
	"chat-client/internal/models"
	"chat-client/internal/notify"
	"chat-client/internal/storage"
	"chat-client/internal/transport"
)

// fakeTransport records subscription traffic in order and lets tests push
// frames or flip the connection state.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	dialErr   error
	token     string
	listener  transport.Listener
	handlers  map[string]transport.FrameHandler
	ops       []string
	published []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]transport.FrameHandler)}
}

func (f *fakeTransport) Connect(_ context.Context, token string, l transport.Listener) error {
	f.mu.Lock()
	f.token = token
	f.listener = l
	if f.dialErr != nil {
		f.mu.Unlock()
		return f.dialErr
	}
	f.connected = true
	f.mu.Unlock()
	l(transport.StateConnected)
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Subscribe(destination string, h transport.FrameHandler) (*transport.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, transport.ErrNotConnected
	}
	f.handlers[destination] = h
	f.ops = append(f.ops, "subscribe "+destination)
	return &transport.Subscription{Destination: destination}, nil
}

func (f *fakeTransport) Unsubscribe(sub *transport.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, sub.Destination)
	f.ops = append(f.ops, "unsubscribe "+sub.Destination)
	return nil
}

func (f *fakeTransport) Publish(destination string, payload any, _ map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return transport.ErrNotConnected
	}
	evt, err := events.Decode(payload.([]byte))
	if err != nil {
		return err
	}
	f.published = append(f.published, fmt.Sprintf("%s %s", evt.Kind(), destination))
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.setConnected(false, transport.StateDisconnected)
	return nil
}

func (f *fakeTransport) setConnected(up bool, s transport.State) {
	f.mu.Lock()
	f.connected = up
	if !up {
		f.handlers = make(map[string]transport.FrameHandler)
	}
	l := f.listener
	f.mu.Unlock()
	if l != nil {
		l(s)
	}
}

func (f *fakeTransport) push(t *testing.T, destination, body string) {
	t.Helper()
	f.mu.Lock()
	h, ok := f.handlers[destination]
	f.mu.Unlock()
	require.True(t, ok, "nothing subscribed to %s", destination)
	h([]byte(body))
}

func (f *fakeTransport) opLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeTransport) publishes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published...)
}

var (
	localUser = models.User{ID: "1", Name: "Admin"}
	baseTime  = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	twoRooms  = []models.ChatRoom{
		{ID: "42", Name: "Sea View Villa", UnreadCount: 3, Status: models.RoomOpen},
		{ID: "7", Name: "Garden Banquet", UnreadCount: 1, Status: models.RoomOpen},
	}
)

type harness struct {
	tr       *fakeTransport
	api      *mocks.ChatAPIMock
	notifier *mocks.NotifierMock
	prefs    *storage.Memory
	ctrl     *Controller
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		tr:       newFakeTransport(),
		api:      new(mocks.ChatAPIMock),
		notifier: new(mocks.NotifierMock),
		prefs:    storage.NewMemory(),
	}
	base := []Option{
		WithToken("tok"),
		WithStorage(h.prefs),
		WithNotifier(h.notifier),
		WithLogger(logging.Discard()),
		WithClock(func() time.Time { return baseTime }),
		WithIDGenerator(func() string { return "abc" }),
	}
	h.ctrl = New(localUser, h.tr, h.api, append(base, opts...)...)
	t.Cleanup(func() { _ = h.ctrl.Close() })
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	h.api.On("ListRooms", mock.Anything).Return(twoRooms, nil).Once()
	require.NoError(t, h.ctrl.Start(context.Background()))
}

func msg(id, sender string, status models.MessageStatus, offset time.Duration) models.Message {
	return models.Message{
		ID:        models.ID(id),
		Content:   "m" + id,
		Status:    status,
		Sender:    models.Sender{ID: models.ID(sender)},
		CreatedAt: baseTime.Add(offset),
	}
}

func TestSelectRoomSwitchesSubscription(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	require.Len(t, h.ctrl.Rooms(), 2)

	h.api.On("History", mock.Anything, models.ID("42")).Return([]models.Message{}, nil).Once()
	h.api.On("History", mock.Anything, models.ID("7")).Return([]models.Message{}, nil).Once()

	require.NoError(t, h.ctrl.SelectRoom(context.Background(), "42"))
	assert.Equal(t, Active, h.ctrl.State())
	assert.Equal(t, []string{"subscribe /topic/chat/42"}, h.tr.opLog())

	require.NoError(t, h.ctrl.SelectRoom(context.Background(), "7"))
	assert.Equal(t, []string{
		"subscribe /topic/chat/42",
		"unsubscribe /topic/chat/42",
		"subscribe /topic/chat/7",
	}, h.tr.opLog())
	assert.Equal(t, models.ID("7"), h.ctrl.ActiveRoom())

	last, err := h.prefs.Get(context.Background(), storage.KeyLastActiveRoomID)
	require.NoError(t, err)
	assert.Equal(t, "7", last)
	h.api.AssertExpectations(t)
}

func TestSendWhileDisconnected(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.api.On("History", mock.Anything, models.ID("42")).Return([]models.Message{}, nil).Once()
	require.NoError(t, h.ctrl.SelectRoom(context.Background(), "42"))

	h.tr.setConnected(false, transport.StateDisconnected)
	h.notifier.On("Toast", notify.Warning, mock.AnythingOfType("string")).Once()

	_, err := h.ctrl.SendText(context.Background(), "hello")

	assert.ErrorIs(t, err, ErrDisconnected)
	assert.Empty(t, h.ctrl.Messages())
	h.api.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
	h.notifier.AssertExpectations(t)
}

func TestSendReconcilesWithServerAck(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.api.On("History", mock.Anything, models.ID("42")).Return([]models.Message{}, nil).Once()
	require.NoError(t, h.ctrl.SelectRoom(context.Background(), "42"))

	ack := make(chan struct{})
	h.api.On("SendMessage", mock.Anything, models.ID("42"), "hello").
		Run(func(mock.Arguments) {
			log := h.ctrl.Messages()
			if assert.Len(t, log, 1) {
				assert.True(t, log[0].Temporary())
				assert.Equal(t, models.ID("temp-1714557600000-abc"), log[0].ID)
				assert.Equal(t, models.StatusSent, log[0].Status)
				assert.Equal(t, models.Outgoing, log[0].Direction)
			}
			close(ack)
		}).
		Return(models.Message{ID: "99", Content: "hello", Status: models.StatusSent, Sender: models.Sender{ID: "1"}, CreatedAt: baseTime}, nil).Once()

	sent, err := h.ctrl.SendText(context.Background(), "hello")
	require.NoError(t, err)
	<-ack

	assert.Equal(t, models.ID("99"), sent.ID)
	log := h.ctrl.Messages()
	require.Len(t, log, 1)
	assert.Equal(t, models.ID("99"), log[0].ID)
	assert.False(t, log[0].Temporary())
}

func TestSendAckAfterPushKeepsOneEntry(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.api.On("History", mock.Anything, models.ID("42")).Return([]models.Message{}, nil).Once()
	require.NoError(t, h.ctrl.SelectRoom(context.Background(), "42"))

	h.api.On("SendMessage", mock.Anything, models.ID("42"), "hello").
		Run(func(mock.Arguments) {
			h.tr.push(t, "/topic/chat/42",
				`{"type":"MESSAGE","roomId":42,"message":{"id":99,"content":"hello","status":"SENT","sender":{"id":1},"createdAt":"2024-05-01T10:00:00Z"}}`)
		}).
		Return(models.Message{ID: "99", Content: "hello", Status: models.StatusSent, Sender: models.Sender{ID: "1"}, CreatedAt: baseTime}, nil).Once()

	_, err := h.ctrl.SendText(context.Background(), "hello")
	require.NoError(t, err)

	log := h.ctrl.Messages()
	require.Len(t, log, 1)
	assert.Equal(t, models.ID("99"), log[0].ID)
}

func TestSendFailureRefetchesHistory(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.api.On("History", mock.Anything, models.ID("42")).Return([]models.Message{msg("5", "1", models.StatusRead, 0)}, nil).Twice()
	require.NoError(t, h.ctrl.SelectRoom(context.Background(), "42"))

	h.api.On("SendMessage", mock.Anything, models.ID("42"), "hello").Return(nil, &api.Error{StatusCode: 500, Message: "boom"}).Once()
	h.notifier.On("Toast", notify.Error, mock.AnythingOfType("string")).Once()

	_, err := h.ctrl.SendText(context.Background(), "hello")

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	log := h.ctrl.Messages()
	require.Len(t, log, 1)
	assert.Equal(t, models.ID("5"), log[0].ID)
	h.api.AssertExpectations(t)
	h.notifier.AssertExpectations(t)
}

func TestIncomingPushNotifiesOnlyForOthers(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.api.On("History", mock.Anything, models.ID("42")).Return([]models.Message{}, nil).Once()
	require.NoError(t, h.ctrl.SelectRoom(context.Background(), "42"))

	h.notifier.On("Incoming", mock.MatchedBy(func(m models.Message) bool { return m.ID == "10" })).Return(nil).Once()

	h.tr.push(t, "/topic/chat/42",
		`{"type":"MESSAGE","roomId":"42","message":{"id":10,"content":"is it free?","status":"SENT","sender":{"id":2},"createdAt":"2024-05-01T10:05:00Z"}}`)
	h.tr.push(t, "/topic/chat/42",
		`{"type":"MESSAGE","roomId":"42","message":{"id":11,"content":"yes","status":"SENT","sender":{"id":1},"createdAt":"2024-05-01T10:06:00Z"}}`)

	log := h.ctrl.Messages()
	require.Len(t, log, 2)
	assert.Equal(t, models.Incoming, log[0].Direction)
	assert.Equal(t, models.Outgoing, log[1].Direction)
	h.notifier.AssertExpectations(t)
	h.notifier.AssertNumberOfCalls(t, "Incoming", 1)
}

func TestStatusUpdateReadZeroesUnread(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.api.On("History", mock.Anything, models.ID("7")).Return([]models.Message{msg("30", "1", models.StatusDelivered, 0)}, nil).Once()
	require.NoError(t, h.ctrl.SelectRoom(context.Background(), "7"))

	// Selecting a room already zeroes its own badge; put one back to observe the push.
	h.ctrl.mu.Lock()
	h.ctrl.roomList[1].UnreadCount = 4
	h.ctrl.mu.Unlock()

	h.tr.push(t, "/topic/chat/7", `{"type":"STATUS_UPDATE","roomId":"7","messageId":30,"status":"READ"}`)

	log := h.ctrl.Messages()
	require.Len(t, log, 1)
	assert.Equal(t, models.StatusRead, log[0].Status)
	assert.Equal(t, 0, h.ctrl.Rooms()[1].UnreadCount)
	assert.Equal(t, 3, h.ctrl.Rooms()[0].UnreadCount)
}

func TestHistoryMarksUnreadIncomingAsRead(t *testing.T) {
	h := newHarness(t, WithMarkReadLimit(2))
	h.start(t)
	h.api.On("History", mock.Anything, models.ID("42")).Return([]models.Message{
		msg("3", "2", models.StatusSent, 3*time.Minute),
		msg("1", "2", models.StatusRead, time.Minute),
		msg("2", "1", models.StatusSent, 2*time.Minute),
		msg("4", "2", models.StatusDelivered, 4*time.Minute),
	}, nil).Once()
	h.api.On("MarkRead", mock.Anything, models.ID("3")).Return(nil).Once()
	h.api.On("MarkRead", mock.Anything, models.ID("4")).Return(errors.New("timeout")).Once()
	h.notifier.On("Toast", notify.Warning, "1 message(s) could not be marked as read").Once()

	require.NoError(t, h.ctrl.SelectRoom(context.Background(), "42"))
	h.ctrl.Wait()

	log := h.ctrl.Messages()
	require.Len(t, log, 4)
	for i, id := range []models.ID{"1", "2", "3", "4"} {
		assert.Equal(t, id, log[i].ID)
	}
	assert.Equal(t, models.StatusRead, log[2].Status)
	assert.Equal(t, models.StatusDelivered, log[3].Status)
	assert.Equal(t, 0, h.ctrl.Rooms()[0].UnreadCount)
	h.api.AssertExpectations(t)
	h.notifier.AssertExpectations(t)
}

func TestStaleHistoryIsDiscarded(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	release := make(chan time.Time)
	h.api.On("History", mock.Anything, models.ID("42")).
		WaitUntil(release).
		Return([]models.Message{msg("100", "2", models.StatusRead, 0)}, nil).Once()
	h.api.On("History", mock.Anything, models.ID("7")).
		Return([]models.Message{msg("200", "2", models.StatusRead, 0)}, nil).Once()

	slow := make(chan error, 1)
	go func() { slow <- h.ctrl.SelectRoom(context.Background(), "42") }()
	require.Eventually(t, func() bool { return h.ctrl.ActiveRoom() == "42" }, time.Second, time.Millisecond)

	require.NoError(t, h.ctrl.SelectRoom(context.Background(), "7"))
	close(release)

	assert.ErrorIs(t, <-slow, ErrSuperseded)
	log := h.ctrl.Messages()
	require.Len(t, log, 1)
	assert.Equal(t, models.ID("200"), log[0].ID)
}

func TestCloseRoom(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.api.On("History", mock.Anything, models.ID("42")).Return([]models.Message{}, nil).Once()
	require.NoError(t, h.ctrl.SelectRoom(context.Background(), "42"))

	require.NoError(t, h.ctrl.CloseRoom(context.Background()))

	assert.Equal(t, NoRoom, h.ctrl.State())
	assert.True(t, h.ctrl.ActiveRoom().IsZero())
	assert.Nil(t, h.ctrl.Messages())
	assert.Equal(t, "unsubscribe /topic/chat/42", h.tr.opLog()[1])
	_, err := h.prefs.Get(context.Background(), storage.KeyLastActiveRoomID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStartRestoresLastRoom(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.prefs.Set(context.Background(), storage.KeyLastActiveRoomID, "7"))
	h.api.On("History", mock.Anything, models.ID("7")).Return([]models.Message{}, nil).Once()

	h.start(t)

	assert.Equal(t, models.ID("7"), h.ctrl.ActiveRoom())
	assert.Equal(t, []string{"subscribe /topic/chat/7"}, h.tr.opLog())
	assert.Equal(t, "tok", h.tr.token)
}

func TestStartForgetsMissingRoom(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.prefs.Set(context.Background(), storage.KeyLastActiveRoomID, "999"))

	h.start(t)

	assert.Equal(t, NoRoom, h.ctrl.State())
	_, err := h.prefs.Get(context.Background(), storage.KeyLastActiveRoomID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStartUsesStoredToken(t *testing.T) {
	tr := newFakeTransport()
	apiMock := new(mocks.ChatAPIMock)
	prefs := storage.NewMemory()
	require.NoError(t, prefs.Set(context.Background(), storage.KeyToken, "stored"))
	ctrl := New(localUser, tr, apiMock, WithStorage(prefs), WithLogger(logging.Discard()))
	defer ctrl.Close()
	apiMock.On("ListRooms", mock.Anything).Return(twoRooms, nil).Once()

	require.NoError(t, ctrl.Start(context.Background()))

	assert.Equal(t, "stored", tr.token)
}

func TestStartToleratesTransportFailure(t *testing.T) {
	h := newHarness(t)
	h.tr.dialErr = errors.New("dial refused")
	h.notifier.On("Toast", notify.Warning, mock.AnythingOfType("string")).Once()

	h.start(t)

	assert.False(t, h.ctrl.Connected())
	assert.Len(t, h.ctrl.Rooms(), 2)
	h.notifier.AssertExpectations(t)
}

func TestStartFailsWhenRoomsUnavailable(t *testing.T) {
	h := newHarness(t)
	h.api.On("ListRooms", mock.Anything).Return(nil, &api.Error{StatusCode: 401}).Once()
	h.notifier.On("Toast", notify.Error, mock.MatchedBy(func(s string) bool { return len(s) > 0 })).Once()

	err := h.ctrl.Start(context.Background())

	assert.True(t, api.IsUnauthorized(err))
	h.notifier.AssertExpectations(t)
}

func TestReconnectResubscribesActiveRoom(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.api.On("History", mock.Anything, models.ID("42")).Return([]models.Message{}, nil).Once()
	require.NoError(t, h.ctrl.SelectRoom(context.Background(), "42"))

	h.tr.setConnected(false, transport.StateDisconnected)
	h.tr.setConnected(true, transport.StateConnected)

	assert.Equal(t, []string{"subscribe /topic/chat/42", "subscribe /topic/chat/42"}, h.tr.opLog())
	h.tr.push(t, "/topic/chat/42", `{"type":"STOP_TYPING","roomId":"42","userId":"2"}`)
}

// gatedTransport parks the first Connected call made after arm until
// release is closed.
type gatedTransport struct {
	*fakeTransport

	gateMu  sync.Mutex
	gate    chan struct{}
	entered chan struct{}
}

func (g *gatedTransport) arm() (entered, release chan struct{}) {
	g.gateMu.Lock()
	defer g.gateMu.Unlock()
	g.gate = make(chan struct{})
	g.entered = make(chan struct{})
	return g.entered, g.gate
}

func (g *gatedTransport) Connected() bool {
	g.gateMu.Lock()
	gate, entered := g.gate, g.entered
	g.gate, g.entered = nil, nil
	g.gateMu.Unlock()
	if gate != nil {
		close(entered)
		<-gate
	}
	return g.fakeTransport.Connected()
}

func TestReconnectDoesNotOverrideNewerSelection(t *testing.T) {
	tr := &gatedTransport{fakeTransport: newFakeTransport()}
	apiMock := new(mocks.ChatAPIMock)
	ctrl := New(localUser, tr, apiMock, WithToken("tok"), WithLogger(logging.Discard()))
	defer ctrl.Close()

	apiMock.On("ListRooms", mock.Anything).Return(twoRooms, nil).Once()
	apiMock.On("History", mock.Anything, models.ID("42")).Return([]models.Message{}, nil).Once()
	apiMock.On("History", mock.Anything, models.ID("7")).Return([]models.Message{}, nil).Once()
	require.NoError(t, ctrl.Start(context.Background()))
	require.NoError(t, ctrl.SelectRoom(context.Background(), "42"))

	tr.setConnected(false, transport.StateDisconnected)

	entered, release := tr.arm()
	reconnected := make(chan struct{})
	go func() {
		tr.setConnected(true, transport.StateConnected)
		close(reconnected)
	}()
	<-entered

	selected := make(chan error, 1)
	go func() { selected <- ctrl.SelectRoom(context.Background(), "7") }()
	time.Sleep(20 * time.Millisecond)
	close(release)

	<-reconnected
	require.NoError(t, <-selected)

	assert.Equal(t, models.ID("7"), ctrl.ActiveRoom())
	assert.Equal(t, models.ID("7"), ctrl.tracker.ActiveRoom())
	ops := tr.opLog()
	assert.Equal(t, "subscribe /topic/chat/7", ops[len(ops)-1])
}

func TestClosedRoomsAreDropped(t *testing.T) {
	h := newHarness(t)
	h.api.On("ListRooms", mock.Anything).Return([]models.ChatRoom{
		{ID: "42", Name: "open", Status: models.RoomOpen},
		{ID: "9", Name: "closed", Status: models.RoomClosed},
	}, nil).Once()
	require.NoError(t, h.ctrl.Start(context.Background()))

	rooms := h.ctrl.Rooms()
	require.Len(t, rooms, 1)
	assert.Equal(t, models.ID("42"), rooms[0].ID)

	err := h.ctrl.SelectRoom(context.Background(), "9")
	assert.ErrorIs(t, err, ErrRoomClosed)
	assert.Equal(t, NoRoom, h.ctrl.State())
	assert.Empty(t, h.tr.opLog())
}

func TestRefreshLeavesRoomClosedMeanwhile(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.api.On("History", mock.Anything, models.ID("42")).Return([]models.Message{}, nil).Once()
	require.NoError(t, h.ctrl.SelectRoom(context.Background(), "42"))

	h.api.On("ListRooms", mock.Anything).Return([]models.ChatRoom{
		{ID: "42", Name: "Sea View Villa", Status: models.RoomClosed},
		{ID: "7", Name: "Garden Banquet", Status: models.RoomOpen},
	}, nil).Once()
	h.notifier.On("Toast", notify.Info, mock.AnythingOfType("string")).Once()

	list, err := h.ctrl.RefreshRooms(context.Background())
	require.NoError(t, err)

	require.Len(t, list, 1)
	assert.Equal(t, models.ID("7"), list[0].ID)
	assert.True(t, h.ctrl.ActiveRoom().IsZero())
	assert.Equal(t, NoRoom, h.ctrl.State())
	assert.Equal(t, "unsubscribe /topic/chat/42", h.tr.opLog()[1])

	_, err = h.ctrl.SendText(context.Background(), "still there?")
	assert.ErrorIs(t, err, ErrNoActiveRoom)
	h.api.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
	h.notifier.AssertExpectations(t)
}

func TestLostConnectionNotifies(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.notifier.On("Toast", notify.Error, "Lost connection to chat server").Once()

	h.tr.setConnected(false, transport.StateDisconnected)
	h.tr.setConnected(false, transport.StateLost)

	h.notifier.AssertExpectations(t)
}

func TestTypingFlow(t *testing.T) {
	h := newHarness(t, WithTypingDebounce(time.Hour))
	h.start(t)
	h.api.On("History", mock.Anything, models.ID("42")).Return([]models.Message{}, nil).Once()
	require.NoError(t, h.ctrl.SelectRoom(context.Background(), "42"))

	require.NoError(t, h.ctrl.Keystroke())
	h.tr.push(t, "/topic/chat/42", `{"type":"TYPING","roomId":"42","userId":"2","userName":"Guest","ttlMs":4000}`)

	typing := h.ctrl.Typing()
	require.Len(t, typing, 1)
	assert.Equal(t, "Guest", typing[0].UserName)

	require.NoError(t, h.ctrl.CloseRoom(context.Background()))
	assert.Equal(t, []string{
		"TYPING /app/chat/42/typing",
		"STOP_TYPING /app/chat/42/typing",
	}, h.tr.publishes())
}

func TestKeystrokeWithoutRoom(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	assert.ErrorIs(t, h.ctrl.Keystroke(), ErrNoActiveRoom)
}

func TestMarkRead(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.api.On("History", mock.Anything, models.ID("42")).Return([]models.Message{msg("8", "1", models.StatusDelivered, 0)}, nil).Once()
	require.NoError(t, h.ctrl.SelectRoom(context.Background(), "42"))
	h.api.On("MarkRead", mock.Anything, models.ID("8")).Return(nil).Once()

	require.NoError(t, h.ctrl.MarkRead(context.Background(), "8"))

	assert.Equal(t, models.StatusRead, h.ctrl.Messages()[0].Status)
}
