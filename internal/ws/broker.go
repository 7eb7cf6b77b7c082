package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-client/internal/events"
	"chat-client/internal/middleware"
	"chat-client/internal/models"
	"chat-client/internal/observability"
	"chat-client/internal/stomp"
)

const (
	// Time allowed for the first frame after the upgrade.
	connectWait = 10 * time.Second

	// Missed heart-beats tolerated before a session is dropped.
	heartBeatGrace = 2

	serverName = "chat-devserver"
)

var (
	errNotMember          = errors.New("not a member of this room")
	errUnknownDestination = errors.New("unknown destination")
)

// MembershipChecker answers whether a user may follow a room.
type MembershipChecker interface {
	IsMember(ctx context.Context, roomID, userID models.ID) (bool, error)
}

// BrokerHandler serves STOMP over WebSocket for the room topics.
type BrokerHandler struct {
	hub       *Hub
	rooms     MembershipChecker
	auth      middleware.Authenticator
	heartBeat time.Duration
	logger    *slog.Logger
}

// NewBrokerHandler constructs a BrokerHandler. heartBeat is offered in both
// directions on CONNECTED; zero disables server heart-beats.
func NewBrokerHandler(hub *Hub, rooms MembershipChecker, auth middleware.Authenticator, heartBeat time.Duration, logger *slog.Logger) *BrokerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrokerHandler{
		hub:       hub,
		rooms:     rooms,
		auth:      auth,
		heartBeat: heartBeat,
		logger:    logger.With("component", "broker"),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin:  func(r *http.Request) bool { return true },
	Subprotocols: stomp.Subprotocols,
}

// Handle authenticates the caller, upgrades the connection and runs the
// STOMP session on its own goroutine.
func (h *BrokerHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-client/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	token, err := middleware.BearerToken(c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	user, err := h.auth.Authenticate(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      user.ID,
		UserName:    user.Name,
		IP:          observability.ClientIP(c.Request),
		RequestID:   observability.RequestID(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	cl := newClient(conn, info)

	observability.IncWSActive()
	publishWSEvent(ctx, info, "ws_connect", "")
	h.logger.Info("stomp session opened", "conn_id", info.ConnID, "user_id", info.UserID)

	go h.serve(context.WithoutCancel(ctx), cl)
}

func (h *BrokerHandler) serve(ctx context.Context, cl *client) {
	var reason string
	defer func() {
		h.hub.RemoveClient(cl)
		cl.close()
		observability.DecWSActive()
		publishWSEvent(ctx, cl.info, "ws_disconnect", reason)
		h.logger.Info("stomp session closed", "conn_id", cl.info.ConnID, "reason", reason)
	}()

	expect, err := h.connect(cl)
	if err != nil {
		reason = err.Error()
		return
	}

	for {
		if expect > 0 {
			cl.ws.SetReadDeadline(time.Now().Add(expect * heartBeatGrace))
		}
		_, data, err := cl.ws.ReadMessage()
		if err != nil {
			reason = err.Error()
			select {
			case <-cl.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					publishWSEvent(ctx, cl.info, "ws_error", reason)
				}
			}
			return
		}
		frames, err := stomp.Decode(data)
		if err != nil {
			reason = err.Error()
			h.reject(cl, err)
			return
		}
		for _, f := range frames {
			done, err := h.handle(ctx, cl, f)
			if err != nil {
				reason = err.Error()
				h.reject(cl, err)
				return
			}
			if done {
				reason = "client disconnect"
				return
			}
		}
	}
}

// connect waits for CONNECT, replies CONNECTED and starts server heart-beats.
// It returns the interval within which client heart-beats are expected.
func (h *BrokerHandler) connect(cl *client) (time.Duration, error) {
	cl.ws.SetReadDeadline(time.Now().Add(connectWait))
	defer cl.ws.SetReadDeadline(time.Time{})

	for {
		_, data, err := cl.ws.ReadMessage()
		if err != nil {
			return 0, fmt.Errorf("await CONNECT: %w", err)
		}
		frames, err := stomp.Decode(data)
		if err != nil {
			h.reject(cl, err)
			return 0, err
		}
		if len(frames) == 0 {
			continue
		}

		f := frames[0]
		if f.Command != frame.CONNECT && f.Command != frame.STOMP {
			err := fmt.Errorf("expected CONNECT, got %s", f.Command)
			h.reject(cl, err)
			return 0, err
		}
		cx, cy, err := stomp.ParseHeartBeat(f.Header.Get(stomp.HeaderHeartBeat))
		if err != nil {
			h.reject(cl, err)
			return 0, err
		}
		send, expect := stomp.Negotiate(h.heartBeat, h.heartBeat, cx, cy)
		if send == 0 && cy > 0 {
			// Clients drop the session if their requested interval passes silently.
			send = cy
		}

		connected := frame.New(frame.CONNECTED,
			stomp.HeaderVersion, negotiateVersion(f.Header.Get(stomp.HeaderAcceptVersion)),
			stomp.HeaderHeartBeat, stomp.FormatHeartBeat(send, expect),
			"server", serverName,
		)
		if err := cl.send(connected); err != nil {
			return 0, fmt.Errorf("send CONNECTED: %w", err)
		}
		if send > 0 {
			go heartBeats(cl, send)
		}
		return expect, nil
	}
}

// handle processes one client frame. It reports true once the client has
// disconnected; a non-nil error ends the session with an ERROR frame.
func (h *BrokerHandler) handle(ctx context.Context, cl *client, f *frame.Frame) (bool, error) {
	switch f.Command {
	case frame.SUBSCRIBE:
		destination := f.Header.Get(stomp.HeaderDestination)
		roomID, ok := roomFromTopic(destination)
		if !ok {
			return false, fmt.Errorf("%w: %s", errUnknownDestination, destination)
		}
		if err := h.checkMember(ctx, roomID, cl.info.UserID); err != nil {
			return false, err
		}
		h.hub.Subscribe(roomID, cl, f.Header.Get(stomp.HeaderID))
		h.logger.Debug("subscribed", "conn_id", cl.info.ConnID, "room_id", roomID)
	case frame.UNSUBSCRIBE:
		if roomID, ok := h.hub.Unsubscribe(cl, f.Header.Get(stomp.HeaderID)); ok {
			h.logger.Debug("unsubscribed", "conn_id", cl.info.ConnID, "room_id", roomID)
		}
	case frame.SEND:
		if err := h.relayTyping(ctx, cl, f); err != nil {
			return false, err
		}
	case frame.DISCONNECT:
		h.receipt(cl, f)
		return true, nil
	case frame.ACK, frame.NACK, frame.BEGIN, frame.COMMIT, frame.ABORT:
		h.logger.Debug("ignoring frame", "command", f.Command)
	default:
		return false, fmt.Errorf("unsupported command %s", f.Command)
	}
	h.receipt(cl, f)
	return false, nil
}

// relayTyping re-broadcasts a typing indicator on the room topic, stamped
// with the sender's authenticated identity.
func (h *BrokerHandler) relayTyping(ctx context.Context, cl *client, f *frame.Frame) error {
	destination := f.Header.Get(stomp.HeaderDestination)
	roomID, ok := roomFromTypingDestination(destination)
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownDestination, destination)
	}
	if !h.hub.Subscribed(roomID, cl) {
		if err := h.checkMember(ctx, roomID, cl.info.UserID); err != nil {
			return err
		}
	}

	evt, err := events.Decode(f.Body)
	if err != nil {
		return err
	}
	switch e := evt.(type) {
	case events.Typing:
		e.RoomID = roomID
		e.UserID = cl.info.UserID
		if e.UserName == "" {
			e.UserName = cl.info.UserName
		}
		evt = e
	case events.StopTyping:
		e.RoomID = roomID
		e.UserID = cl.info.UserID
		evt = e
	default:
		return fmt.Errorf("%s cannot be sent to %s", evt.Kind(), destination)
	}
	return h.hub.Broadcast(roomID, evt)
}

func (h *BrokerHandler) checkMember(ctx context.Context, roomID, userID models.ID) error {
	member, err := h.rooms.IsMember(ctx, roomID, userID)
	if err != nil {
		return fmt.Errorf("check membership of room %s: %w", roomID, err)
	}
	if !member {
		return fmt.Errorf("%w: %s", errNotMember, roomID)
	}
	return nil
}

func (h *BrokerHandler) receipt(cl *client, f *frame.Frame) {
	id := f.Header.Get(stomp.HeaderReceipt)
	if id == "" {
		return
	}
	if err := cl.send(frame.New(frame.RECEIPT, stomp.HeaderReceiptID, id)); err != nil {
		h.logger.Debug("receipt not delivered", "conn_id", cl.info.ConnID, "error", err)
	}
}

func (h *BrokerHandler) reject(cl *client, err error) {
	h.logger.Warn("rejecting stomp frame", "conn_id", cl.info.ConnID, "error", err)
	f := frame.New(frame.ERROR, stomp.HeaderMessage, err.Error())
	_ = cl.send(f)
}

func heartBeats(cl *client, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := cl.write([]byte("\n")); err != nil {
				return
			}
		case <-cl.done:
			return
		}
	}
}

func negotiateVersion(accept string) string {
	if accept == "" {
		return "1.0"
	}
	for _, v := range strings.Split(accept, ",") {
		if strings.TrimSpace(v) == "1.2" {
			return "1.2"
		}
	}
	if strings.Contains(accept, "1.1") {
		return "1.1"
	}
	return "1.0"
}
