package handlers

import (
	"github.com/gin-gonic/gin"

	"chat-client/internal/middleware"
	"chat-client/internal/models"
	"chat-client/internal/observability"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := observability.RequestID(c.Request)
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) models.ID {
	if user := middleware.CurrentUser(c); !user.ID.IsZero() {
		return user.ID
	}
	return models.ID(c.GetHeader("X-User-ID"))
}
