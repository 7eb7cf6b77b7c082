package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/logging"
	"chat-client/internal/models"
)

type seen struct {
	mu      sync.Mutex
	auth    []string
	request []string
	bodies  []string
}

func (s *seen) record(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = append(s.auth, c.GetHeader("Authorization"))
	s.request = append(s.request, c.GetHeader("X-Request-Id"))
}

func (s *seen) snapshot() (auth, requestIDs, bodies []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.auth...), append([]string(nil), s.request...), append([]string(nil), s.bodies...)
}

func setupServer(t *testing.T) (*httptest.Server, *seen) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := &seen{}
	r := gin.New()
	r.Use(func(c *gin.Context) {
		s.record(c)
		c.Next()
	})
	r.GET("/api/chat/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": []gin.H{
			{"id": 1, "name": "Villa Rosa", "unreadCount": 2, "status": "OPEN"},
			{"id": "b-2", "name": "Banquet Hall", "unreadCount": 0, "status": "CLOSED"},
		}})
	})
	r.GET("/api/chat/rooms/:id/messages", func(c *gin.Context) {
		if c.Param("id") == "404" {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": []gin.H{
			{"id": 5, "roomId": 1, "content": "hi", "status": "READ", "sender": gin.H{"id": 2}, "createdAt": "2024-05-01T10:00:00Z"},
		}})
	})
	r.POST("/api/chat/rooms/:id/messages", func(c *gin.Context) {
		var body struct {
			Content string `json:"content"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.mu.Lock()
		s.bodies = append(s.bodies, body.Content)
		s.mu.Unlock()
		if body.Content == "forbidden" {
			c.String(http.StatusForbidden, "no access")
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": 77, "roomId": c.Param("id"), "content": body.Content, "status": "SENT", "sender": gin.H{"id": 1}, "createdAt": "2024-05-01T10:01:00Z"})
	})
	r.PATCH("/api/chat/messages/:id/read", func(c *gin.Context) {
		if c.Param("id") == "0" {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "token expired"})
			return
		}
		c.Status(http.StatusNoContent)
	})
	r.PATCH("/api/chat/rooms/:id/close", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/api/admin/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/api/sub-admin/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, s
}

func newTestClient(srv *httptest.Server, tokens Tokens) *Client {
	return NewClient(srv.URL+"/", NewTokenRouter(StaticTokens(tokens)), WithLogger(logging.Discard()))
}

func TestListRooms(t *testing.T) {
	srv, s := setupServer(t)
	c := newTestClient(srv, Tokens{Auth: "auth"})

	rooms, err := c.ListRooms(context.Background())
	require.NoError(t, err)

	require.Len(t, rooms, 2)
	assert.Equal(t, models.ID("1"), rooms[0].ID)
	assert.Equal(t, 2, rooms[0].UnreadCount)
	assert.Equal(t, models.ID("b-2"), rooms[1].ID)
	assert.False(t, rooms[1].Open())
	auth, ids, _ := s.snapshot()
	assert.Equal(t, []string{"Bearer auth"}, auth)
	require.Len(t, ids, 1)
	assert.NotEmpty(t, ids[0])
}

func TestHistory(t *testing.T) {
	srv, _ := setupServer(t)
	c := newTestClient(srv, Tokens{Auth: "auth"})

	msgs, err := c.History(context.Background(), "1")
	require.NoError(t, err)

	require.Len(t, msgs, 1)
	assert.Equal(t, models.ID("5"), msgs[0].ID)
	assert.Equal(t, models.StatusRead, msgs[0].Status)
	assert.Equal(t, models.ID("2"), msgs[0].Sender.ID)
}

func TestHistoryNotFound(t *testing.T) {
	srv, _ := setupServer(t)
	c := newTestClient(srv, Tokens{Auth: "auth"})

	_, err := c.History(context.Background(), "404")

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "room not found", apiErr.Message)
	assert.True(t, IsNotFound(err))
}

func TestSendMessage(t *testing.T) {
	srv, s := setupServer(t)
	c := newTestClient(srv, Tokens{Auth: "auth"})

	msg, err := c.SendMessage(context.Background(), "3", "hello")
	require.NoError(t, err)

	assert.Equal(t, models.ID("77"), msg.ID)
	assert.Equal(t, models.ID("3"), msg.RoomID)
	assert.Equal(t, "hello", msg.Content)
	_, _, bodies := s.snapshot()
	assert.Equal(t, []string{"hello"}, bodies)
}

func TestSendMessageForbidden(t *testing.T) {
	srv, _ := setupServer(t)
	c := newTestClient(srv, Tokens{Auth: "auth"})

	_, err := c.SendMessage(context.Background(), "3", "forbidden")

	assert.True(t, IsForbidden(err))
	assert.Contains(t, err.Error(), "no access")
}

func TestMarkRead(t *testing.T) {
	srv, _ := setupServer(t)
	c := newTestClient(srv, Tokens{Auth: "auth"})

	require.NoError(t, c.MarkRead(context.Background(), "5"))

	err := c.MarkRead(context.Background(), "0")
	assert.True(t, IsUnauthorized(err))
	assert.Contains(t, err.Error(), "token expired")
}

func TestCloseRoom(t *testing.T) {
	srv, _ := setupServer(t)
	c := newTestClient(srv, Tokens{Auth: "auth"})

	assert.NoError(t, c.CloseRoom(context.Background(), "1"))
}

func TestTransportError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", NewTokenRouter(StaticTokens(Tokens{})), WithLogger(logging.Discard()))

	_, err := c.ListRooms(context.Background())

	require.Error(t, err)
	assert.False(t, IsUnauthorized(err))
}

func TestRequestsUseRoutedToken(t *testing.T) {
	srv, s := setupServer(t)
	c := newTestClient(srv, Tokens{Auth: "auth", SubAdmin: "sub"})

	require.NoError(t, c.do(context.Background(), "ping", http.MethodGet, "/api/admin/ping", nil, nil))
	require.NoError(t, c.do(context.Background(), "ping", http.MethodGet, "/api/sub-admin/ping", nil, nil))
	_, err := c.ListRooms(context.Background())
	require.NoError(t, err)

	auth, _, _ := s.snapshot()
	assert.Equal(t, []string{"Bearer auth", "Bearer sub", "Bearer auth"}, auth)
}
