package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"chat-client/internal/stomp"
)

// Session is one live broker session. *stomp.Conn satisfies it.
type Session interface {
	Subscribe(destination string, h stomp.Handler) (string, error)
	Unsubscribe(id string) error
	Send(destination string, body []byte, headers map[string]string) error
	Disconnect() error
	Done() <-chan struct{}
	Err() error
}

// Dialer opens sessions authenticated with token.
type Dialer interface {
	Dial(ctx context.Context, token string) (Session, error)
}

// StompDialer dials STOMP over WebSocket. The token travels both as a
// query parameter and as a bearer header.
type StompDialer struct {
	URL       string
	HeartBeat time.Duration
	Logger    *slog.Logger
}

func (d StompDialer) Dial(ctx context.Context, token string) (Session, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("parse ws url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, err := stomp.Dial(ctx, u.String(), stomp.Options{
		Header:         header,
		ConnectHeaders: map[string]string{stomp.HeaderAuthorization: "Bearer " + token},
		HeartBeat:      d.HeartBeat,
		Logger:         d.Logger,
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}
