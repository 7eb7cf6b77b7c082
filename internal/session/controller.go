// Package session drives one operator's chat session: connection, room
// selection, history, sending and typing.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	nanoid "github.com/jaevor/go-nanoid"
	"golang.org/x/sync/errgroup"

	"chat-client/internal/api"
	"chat-client/internal/models"
	"chat-client/internal/notify"
	"chat-client/internal/presence"
	"chat-client/internal/rooms"
	"chat-client/internal/storage"
	"chat-client/internal/store"
	"chat-client/internal/transport"
)

var (
	// ErrDisconnected is returned by SendText while the transport is down.
	ErrDisconnected = errors.New("chat is disconnected")
	// ErrNoActiveRoom is returned by operations that need a selected room.
	ErrNoActiveRoom = errors.New("no active room")
	// ErrSuperseded is returned by SelectRoom when a newer selection won.
	ErrSuperseded = errors.New("room selection superseded")
	// ErrRoomClosed is returned by SelectRoom for a room the server reported CLOSED.
	ErrRoomClosed = errors.New("room is closed")
)

// State is the room lifecycle of the controller.
type State int

const (
	NoRoom State = iota
	Loading
	Active
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Active:
		return "active"
	default:
		return "no-room"
	}
}

// Transport is the realtime connection the controller drives.
type Transport interface {
	rooms.Subscriber
	presence.Publisher
	Connect(ctx context.Context, token string, listener transport.Listener) error
	Disconnect() error
}

// ChatAPI is the REST surface the controller calls.
type ChatAPI interface {
	ListRooms(ctx context.Context) ([]models.ChatRoom, error)
	History(ctx context.Context, roomID models.ID) ([]models.Message, error)
	SendMessage(ctx context.Context, roomID models.ID, content string) (models.Message, error)
	MarkRead(ctx context.Context, messageID models.ID) error
}

// Controller is safe for concurrent use.
type Controller struct {
	user      models.User
	token     string
	transport Transport
	api       ChatAPI
	prefs     storage.Store
	notifier  notify.Notifier
	logger    *slog.Logger

	debounce      time.Duration
	markReadLimit int
	observer      rooms.Observer
	stateListener transport.Listener
	now           func() time.Time
	newID         func() string

	messages    *store.Store
	typing      *presence.Tracker
	broadcaster *presence.Broadcaster
	tracker     *rooms.Tracker
	dispatcher  *rooms.Dispatcher

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup

	selectMu sync.Mutex

	mu        sync.Mutex
	state     State
	active    models.ID
	requestID uint64
	roomList  []models.ChatRoom
	closedIDs map[models.ID]struct{}
	closed    bool
}

// New builds a controller for user. Nothing is dialled until Start.
func New(user models.User, tr Transport, api ChatAPI, opts ...Option) *Controller {
	c := &Controller{
		user:          user,
		transport:     tr,
		api:           api,
		prefs:         storage.NewMemory(),
		notifier:      notify.Discard{},
		logger:        slog.Default().With("component", "session"),
		debounce:      presence.DefaultDebounce,
		markReadLimit: DefaultMarkReadLimit,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.newID == nil {
		gen, err := nanoid.Standard(10)
		if err != nil {
			panic(fmt.Sprintf("nanoid: %v", err))
		}
		c.newID = gen
	}

	c.bgCtx, c.bgCancel = context.WithCancel(context.Background())
	c.messages = store.New(user.ID)
	c.typing = presence.NewTracker(presence.WithClock(c.now))
	c.broadcaster = presence.NewBroadcaster(tr, models.TypingUser{UserID: user.ID, UserName: user.Name},
		presence.WithDebounce(c.debounce), presence.WithLogger(c.logger))
	c.tracker = rooms.NewTracker(tr, rooms.WithLogger(c.logger))
	c.dispatcher = &rooms.Dispatcher{
		LocalUser: user.ID,
		Log:       c.messages,
		Typing:    c.typing,
		Unread:    c,
		Notifier:  c.notifier,
		Observer:  c.observer,
		Logger:    c.logger,
	}
	return c
}

// Start connects the transport, loads the room list and reopens the room
// that was active when the previous session ended. A transport failure is
// not fatal: the reconnect loop keeps trying and REST calls still work.
func (c *Controller) Start(ctx context.Context) error {
	token := c.token
	if token == "" {
		t, err := storage.GetOr(ctx, c.prefs, storage.KeyToken, "")
		if err != nil {
			c.logger.Warn("read stored token", "error", err)
		}
		token = t
	}

	if err := c.transport.Connect(ctx, token, c.onTransportState); err != nil {
		c.logger.Warn("realtime connection unavailable", "error", err)
		c.notifier.Toast(notify.Warning, "Realtime chat is offline, retrying in the background")
	}

	list, err := c.RefreshRooms(ctx)
	if err != nil {
		return err
	}

	last, err := storage.GetOr(ctx, c.prefs, storage.KeyLastActiveRoomID, "")
	if err != nil {
		c.logger.Warn("read last active room", "error", err)
		return nil
	}
	if last == "" {
		return nil
	}
	for _, r := range list {
		if r.ID == models.ID(last) {
			if err := c.SelectRoom(ctx, r.ID); err != nil && !errors.Is(err, ErrSuperseded) {
				c.logger.Warn("restore last room", "room_id", last, "error", err)
			}
			return nil
		}
	}
	c.logger.Info("last active room no longer listed", "room_id", last)
	if err := c.prefs.Delete(ctx, storage.KeyLastActiveRoomID); err != nil {
		c.logger.Warn("forget last active room", "error", err)
	}
	return nil
}

// RefreshRooms reloads the room list and returns the open rooms. Closed
// rooms are dropped; if the active room was closed the controller leaves it.
func (c *Controller) RefreshRooms(ctx context.Context) ([]models.ChatRoom, error) {
	list, err := c.api.ListRooms(ctx)
	if err != nil {
		c.reportAPIError("Could not load chat rooms", err)
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	open := make([]models.ChatRoom, 0, len(list))
	closedIDs := make(map[models.ID]struct{})
	for _, r := range list {
		if r.Open() {
			open = append(open, r)
		} else {
			closedIDs[r.ID] = struct{}{}
		}
	}

	c.mu.Lock()
	c.roomList = open
	c.closedIDs = closedIDs
	_, activeClosed := closedIDs[c.active]
	c.mu.Unlock()

	if activeClosed {
		c.logger.Info("active room was closed", "room_id", c.ActiveRoom())
		c.notifier.Toast(notify.Info, "This conversation has been closed")
		if err := c.CloseRoom(ctx); err != nil {
			c.logger.Warn("leave closed room", "error", err)
		}
	}
	return append([]models.ChatRoom(nil), open...), nil
}

// SelectRoom makes roomID the active room: the previous subscription is torn
// down, the log is cleared and history is fetched. Unread incoming messages
// are marked read in the background.
func (c *Controller) SelectRoom(ctx context.Context, roomID models.ID) error {
	if roomID.IsZero() {
		return ErrNoActiveRoom
	}

	c.selectMu.Lock()
	c.mu.Lock()
	if _, closed := c.closedIDs[roomID]; closed {
		c.mu.Unlock()
		c.selectMu.Unlock()
		return fmt.Errorf("select room %s: %w", roomID, ErrRoomClosed)
	}
	prev := c.active
	c.active = roomID
	c.state = Loading
	c.requestID++
	reqID := c.requestID
	c.mu.Unlock()

	if !prev.IsZero() && prev != roomID {
		c.leave(prev)
	}
	if err := c.prefs.Set(ctx, storage.KeyLastActiveRoomID, roomID.String()); err != nil {
		c.logger.Warn("persist last active room", "room_id", roomID, "error", err)
	}
	c.messages.Clear(roomID)
	if err := c.tracker.SubscribeRoom(roomID, c.dispatcher.ForRoom(roomID)); err != nil {
		c.logger.Warn("room subscription deferred", "room_id", roomID, "error", err)
	}
	c.selectMu.Unlock()

	return c.loadHistory(ctx, roomID, reqID)
}

// loadHistory fetches the room's messages and applies them unless a newer
// selection or refresh was started meanwhile.
func (c *Controller) loadHistory(ctx context.Context, roomID models.ID, reqID uint64) error {
	msgs, err := c.api.History(ctx, roomID)

	c.mu.Lock()
	if c.requestID != reqID || c.active != roomID {
		c.mu.Unlock()
		c.logger.Debug("discarding stale history", "room_id", roomID, "request", reqID)
		return ErrSuperseded
	}
	if err != nil {
		c.state = Active
		c.mu.Unlock()
		c.reportAPIError("Could not load messages", err)
		return fmt.Errorf("load history for room %s: %w", roomID, err)
	}
	unread := c.messages.LoadHistory(roomID, msgs)
	c.state = Active
	c.mu.Unlock()

	c.ResetUnread(roomID)
	c.markReadInBackground(roomID, unread)
	return nil
}

func (c *Controller) refetch(ctx context.Context, roomID models.ID) error {
	c.mu.Lock()
	if c.active != roomID {
		c.mu.Unlock()
		return nil
	}
	c.requestID++
	reqID := c.requestID
	c.mu.Unlock()
	return c.loadHistory(ctx, roomID, reqID)
}

// CloseRoom leaves the active room and returns to NoRoom.
func (c *Controller) CloseRoom(ctx context.Context) error {
	c.selectMu.Lock()
	defer c.selectMu.Unlock()

	c.mu.Lock()
	prev := c.active
	c.active = ""
	c.state = NoRoom
	c.requestID++
	c.mu.Unlock()

	if prev.IsZero() {
		return nil
	}
	c.leave(prev)
	if err := c.tracker.Unsubscribe(); err != nil {
		c.logger.Warn("unsubscribe room", "room_id", prev, "error", err)
	}
	c.messages.Clear(prev)
	if err := c.prefs.Delete(ctx, storage.KeyLastActiveRoomID); err != nil {
		c.logger.Warn("forget last active room", "error", err)
	}
	return nil
}

func (c *Controller) leave(roomID models.ID) {
	if err := c.broadcaster.Stop(roomID); err != nil {
		c.logger.Debug("stop typing on leave", "room_id", roomID, "error", err)
	}
	c.typing.ClearRoom(roomID)
}

// SendText sends text to the active room. The message shows up immediately
// under a temporary id and is swapped for the server's copy once stored.
func (c *Controller) SendText(ctx context.Context, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, nil
	}
	roomID := c.ActiveRoom()
	if roomID.IsZero() {
		return models.Message{}, ErrNoActiveRoom
	}
	if !c.transport.Connected() {
		c.logger.Warn("send blocked, chat disconnected", "room_id", roomID)
		c.notifier.Toast(notify.Warning, "Chat is disconnected, message not sent")
		return models.Message{}, ErrDisconnected
	}

	now := c.now()
	temp := models.Message{
		ID:        models.ID(fmt.Sprintf("%s%d-%s", models.TempIDPrefix, now.UnixMilli(), c.newID())),
		RoomID:    roomID,
		Content:   text,
		Status:    models.StatusSent,
		Sender:    models.Sender{ID: c.user.ID, Name: c.user.Name},
		CreatedAt: now,
	}
	c.messages.AppendOptimistic(roomID, temp)
	if err := c.broadcaster.Stop(roomID); err != nil {
		c.logger.Debug("stop typing before send", "room_id", roomID, "error", err)
	}

	msg, err := c.api.SendMessage(ctx, roomID, text)
	if err != nil {
		c.reportAPIError("Message could not be sent", err)
		if rerr := c.refetch(ctx, roomID); rerr != nil && !errors.Is(rerr, ErrSuperseded) {
			c.logger.Warn("refetch after failed send", "room_id", roomID, "error", rerr)
		}
		return models.Message{}, fmt.Errorf("send message: %w", err)
	}
	if !c.messages.ConfirmSend(roomID, temp.ID, msg) {
		c.logger.Debug("confirmed message no longer in log", "room_id", roomID, "message_id", msg.ID)
	}
	return msg, nil
}

// Keystroke announces that the local user is typing in the active room.
func (c *Controller) Keystroke() error {
	roomID := c.ActiveRoom()
	if roomID.IsZero() {
		return ErrNoActiveRoom
	}
	if !c.transport.Connected() {
		return nil
	}
	return c.broadcaster.Keystroke(roomID)
}

// MarkRead marks one message of the active room as read.
func (c *Controller) MarkRead(ctx context.Context, messageID models.ID) error {
	roomID := c.ActiveRoom()
	if err := c.api.MarkRead(ctx, messageID); err != nil {
		c.reportAPIError("Could not mark message as read", err)
		return fmt.Errorf("mark read %s: %w", messageID, err)
	}
	if !roomID.IsZero() {
		c.messages.MarkStatus(roomID, messageID, models.StatusRead)
	}
	return nil
}

func (c *Controller) markReadInBackground(roomID models.ID, msgs []models.Message) {
	if len(msgs) == 0 {
		return
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()

		var g errgroup.Group
		g.SetLimit(c.markReadLimit)
		var (
			mu     sync.Mutex
			failed int
		)
		for _, m := range msgs {
			m := m
			g.Go(func() error {
				if err := c.api.MarkRead(c.bgCtx, m.ID); err != nil {
					c.logger.Warn("mark read failed", "room_id", roomID, "message_id", m.ID, "error", err)
					mu.Lock()
					failed++
					mu.Unlock()
					return nil
				}
				c.messages.MarkStatus(roomID, m.ID, models.StatusRead)
				return nil
			})
		}
		_ = g.Wait()
		if failed > 0 && c.bgCtx.Err() == nil {
			c.notifier.Toast(notify.Warning, fmt.Sprintf("%d message(s) could not be marked as read", failed))
		}
	}()
}

// Wait blocks until background mark-read work has finished.
func (c *Controller) Wait() {
	c.bg.Wait()
}

// ResetUnread zeroes the room's unread counter in the cached room list.
func (c *Controller) ResetUnread(roomID models.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.roomList {
		if c.roomList[i].ID == roomID {
			c.roomList[i].UnreadCount = 0
		}
	}
}

// Rooms returns the cached room list.
func (c *Controller) Rooms() []models.ChatRoom {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ChatRoom(nil), c.roomList...)
}

// Messages returns the active room's log.
func (c *Controller) Messages() []models.Message {
	roomID := c.ActiveRoom()
	if roomID.IsZero() {
		return nil
	}
	return c.messages.Messages(roomID)
}

// Typing lists who is typing in the active room.
func (c *Controller) Typing() []models.TypingUser {
	roomID := c.ActiveRoom()
	if roomID.IsZero() {
		return nil
	}
	return c.typing.Typing(roomID)
}

// State returns the room lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ActiveRoom returns the selected room, or the zero ID.
func (c *Controller) ActiveRoom() models.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Connected reports whether the realtime transport is up.
func (c *Controller) Connected() bool {
	return c.transport.Connected()
}

// Close stops typing, waits for background work and disconnects.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	active := c.active
	c.mu.Unlock()

	if !active.IsZero() {
		if err := c.broadcaster.Stop(active); err != nil {
			c.logger.Debug("stop typing on close", "room_id", active, "error", err)
		}
	}
	c.broadcaster.Close()
	c.bgCancel()
	c.bg.Wait()
	return c.transport.Disconnect()
}

func (c *Controller) onTransportState(s transport.State) {
	c.logger.Info("transport state", "state", s.String())

	switch s {
	case transport.StateConnected:
		c.resubscribe()
	case transport.StateDisconnected:
		c.tracker.Reset()
	case transport.StateLost:
		c.tracker.Reset()
		c.notifier.Toast(notify.Error, "Lost connection to chat server")
	}

	if c.stateListener != nil {
		c.stateListener(s)
	}
}

// reportAPIError logs and surfaces a failed REST call. Rejected credentials
// get their own wording; the session is kept either way.
// resubscribe re-issues the active room's subscription after a reconnect.
// It holds selectMu so a concurrent selection cannot be overwritten by the
// room that was active before it.
func (c *Controller) resubscribe() {
	c.selectMu.Lock()
	defer c.selectMu.Unlock()

	roomID := c.ActiveRoom()
	if roomID.IsZero() || c.tracker.ActiveRoom() == roomID {
		return
	}
	if err := c.tracker.SubscribeRoom(roomID, c.dispatcher.ForRoom(roomID)); err != nil {
		c.logger.Warn("resubscribe after reconnect", "room_id", roomID, "error", err)
	}
}

func (c *Controller) reportAPIError(msg string, err error) {
	switch {
	case api.IsUnauthorized(err):
		c.logger.Warn(msg, "error", err, "reason", "unauthorized")
		c.notifier.Toast(notify.Error, msg+": your session has expired, sign in again")
	case api.IsForbidden(err):
		c.logger.Warn(msg, "error", err, "reason", "forbidden")
		c.notifier.Toast(notify.Error, msg+": you do not have access to this chat")
	default:
		c.logger.Warn(msg, "error", err)
		c.notifier.Toast(notify.Error, fmt.Sprintf("%s: %v", msg, err))
	}
}
