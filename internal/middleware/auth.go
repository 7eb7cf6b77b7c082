package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-client/internal/models"
)

// ErrInvalidToken is returned for unknown or malformed credentials.
var ErrInvalidToken = errors.New("invalid token")

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.User, error)
}

// TokenTable is a fixed token-to-user mapping.
type TokenTable map[string]models.User

func (t TokenTable) Authenticate(_ context.Context, token string) (models.User, error) {
	u, ok := t[token]
	if !ok || token == "" {
		return models.User{}, ErrInvalidToken
	}
	return u, nil
}

const userContextKey = "user"

// BearerToken extracts the token from an "Authorization: Bearer" header,
// falling back to the token query parameter used by WebSocket clients.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, nil
		}
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errors.New("invalid authorization header")
	}
	return parts[1], nil
}

// AuthMiddleware validates the bearer token and stores the user in the context.
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := BearerToken(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

// CurrentUser returns the user stored by AuthMiddleware.
func CurrentUser(c *gin.Context) models.User {
	if v, ok := c.Get(userContextKey); ok {
		if u, ok := v.(models.User); ok {
			return u
		}
	}
	return models.User{}
}

// SetUser stores u the way AuthMiddleware does. Useful in tests.
func SetUser(c *gin.Context, u models.User) {
	c.Set(userContextKey, u)
}
