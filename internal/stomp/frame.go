// Package stomp speaks STOMP 1.2 over a WebSocket, one frame per WebSocket
// message. Frame encoding is delegated to go-stomp's frame package.
package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
)

// Header names used by this package.
const (
	HeaderAcceptVersion = "accept-version"
	HeaderVersion       = "version"
	HeaderHost          = "host"
	HeaderHeartBeat     = "heart-beat"
	HeaderDestination   = "destination"
	HeaderID            = "id"
	HeaderAck           = "ack"
	HeaderSubscription  = "subscription"
	HeaderMessageID     = "message-id"
	HeaderContentType   = "content-type"
	HeaderContentLength = "content-length"
	HeaderMessage       = "message"
	HeaderReceipt       = "receipt"
	HeaderReceiptID     = "receipt-id"
	HeaderAuthorization = "Authorization"
)

// SupportedVersions is sent as accept-version on CONNECT.
const SupportedVersions = "1.1,1.2"

// Subprotocols offered during the WebSocket handshake.
var Subprotocols = []string{"v12.stomp", "v11.stomp"}

// ErrBrokerError is wrapped by errors built from ERROR frames.
var ErrBrokerError = errors.New("stomp broker error")

// Encode serializes a frame. A nil frame encodes as a heart-beat.
func Encode(f *frame.Frame) ([]byte, error) {
	if f == nil {
		return []byte("\n"), nil
	}
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Command, err)
	}
	return buf.Bytes(), nil
}

// Decode parses every frame in a WebSocket message. Heart-beats are skipped.
func Decode(data []byte) ([]*frame.Frame, error) {
	reader := frame.NewReader(bytes.NewReader(data))
	var frames []*frame.Frame
	for {
		f, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("decode frame: %w", err)
		}
		if f != nil {
			frames = append(frames, f)
		}
	}
}

// FormatHeartBeat renders the heart-beat header value in milliseconds.
func FormatHeartBeat(send, receive time.Duration) string {
	return strconv.FormatInt(send.Milliseconds(), 10) + "," + strconv.FormatInt(receive.Milliseconds(), 10)
}

// ParseHeartBeat reads a heart-beat header. An empty value means no heart-beats.
func ParseHeartBeat(value string) (time.Duration, time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return 0, 0, nil
	}
	return frame.ParseHeartBeat(value)
}

// Negotiate returns the interval at which the local side must send
// heart-beats and the interval at which it should expect them, given the
// local (cx, cy) and remote (sx, sy) heart-beat headers.
func Negotiate(cx, cy, sx, sy time.Duration) (send, expect time.Duration) {
	if cx > 0 && sy > 0 {
		send = max(cx, sy)
	}
	if cy > 0 && sx > 0 {
		expect = max(cy, sx)
	}
	return send, expect
}

// BrokerError converts an ERROR frame into an error.
func BrokerError(f *frame.Frame) error {
	msg := f.Header.Get(HeaderMessage)
	if body := strings.TrimSpace(string(f.Body)); body != "" {
		if msg == "" {
			msg = body
		} else {
			msg += ": " + body
		}
	}
	return fmt.Errorf("%w: %s", ErrBrokerError, msg)
}
