package venue

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the minimal WS connection surface the connector needs,
// narrowed from *websocket.Conn so tests can substitute a fake. Method
// set mirrors the calls the teacher's
// internal/providers/kraken/websocket.go makes on its *websocket.Conn.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer opens a Conn to a venue WS endpoint.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

// GorillaDialer is the production Dialer, backed by
// github.com/gorilla/websocket, matching the teacher's dial style
// (DefaultDialer, 30s handshake timeout, explicit User-Agent header).
type GorillaDialer struct{}

func (GorillaDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 30 * time.Second

	headers := make(map[string][]string)
	headers["User-Agent"] = []string{"compositefeed/1.0 (venue connector)"}

	conn, _, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
