package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

// Time allowed to write one WebSocket message.
const writeWait = 10 * time.Second

// redact strips the query string so tokens never reach the logs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}

// wsStream presents a WebSocket as the byte stream go-stomp reads and
// writes. Each write becomes one text message. ERROR frames are noticed on
// the way in so the broker's reason outlives the connection.
type wsStream struct {
	ws *websocket.Conn

	buf *bytes.Reader

	writeMu sync.Mutex

	mu  sync.Mutex
	err error

	closeOnce sync.Once
	done      chan struct{}
}

func newWSStream(ws *websocket.Conn) *wsStream {
	return &wsStream{ws: ws, done: make(chan struct{})}
}

func (s *wsStream) Read(p []byte) (int, error) {
	for s.buf == nil || s.buf.Len() == 0 {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			s.fail(err)
			return 0, err
		}
		s.inspect(data)
		s.buf = bytes.NewReader(data)
	}
	return s.buf.Read(p)
}

func (s *wsStream) inspect(data []byte) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\r\n"), []byte(frame.ERROR)) {
		return
	}
	frames, err := Decode(data)
	if err != nil {
		return
	}
	for _, f := range frames {
		if f.Command == frame.ERROR {
			s.fail(BrokerError(f))
			return
		}
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		s.fail(err)
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		s.writeMu.Unlock()
		s.fail(ErrClosed)
		close(s.done)
		s.ws.Close()
	})
	return nil
}

// fail records the first reason the stream ended.
func (s *wsStream) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *wsStream) cause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(s.err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrClosed, s.err)
	}
	return s.err
}

// stompLogger routes go-stomp's logging into slog.
type stompLogger struct {
	logger *slog.Logger
}

func (l stompLogger) Debugf(format string, v ...interface{}) { l.logger.Debug(fmt.Sprintf(format, v...)) }
func (l stompLogger) Infof(format string, v ...interface{})  { l.logger.Debug(fmt.Sprintf(format, v...)) }
func (l stompLogger) Warningf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...))
}
func (l stompLogger) Errorf(format string, v ...interface{}) { l.logger.Error(fmt.Sprintf(format, v...)) }

func (l stompLogger) Debug(message string)   { l.logger.Debug(message) }
func (l stompLogger) Info(message string)    { l.logger.Debug(message) }
func (l stompLogger) Warning(message string) { l.logger.Warn(message) }
func (l stompLogger) Error(message string)   { l.logger.Error(message) }
