// Package transport wraps the WebSocket connections the session channels
// run over.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/coder/websocket"
)

// DefaultReadLimit bounds a single inbound message; a full-resolution
// JPEG frame fits comfortably.
const DefaultReadLimit = 8 << 20

// Conn is one message-oriented connection.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, data []byte) error
	Close(reason string) error
}

// Dialer opens connections. The session channels dial through it so
// tests can substitute in-memory connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSDialer dials WebSocket endpoints.
type WSDialer struct {
	ReadLimit  int64
	HTTPHeader http.Header
}

// WSConn wraps a WebSocket connection.
type WSConn struct {
	conn *websocket.Conn
}

// Dial connects to url.
func (d WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	return ConnectWebSocket(ctx, url, d.ReadLimit, d.HTTPHeader)
}

// ConnectWebSocket dials a session endpoint.
func ConnectWebSocket(ctx context.Context, url string, readLimit int64, header http.Header) (*WSConn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if readLimit <= 0 {
		readLimit = DefaultReadLimit
	}
	conn.SetReadLimit(readLimit)
	return &WSConn{conn: conn}, nil
}

// Read reads one message.
func (w *WSConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	return w.conn.Read(ctx)
}

// Write writes one message.
func (w *WSConn) Write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	return w.conn.Write(ctx, typ, data)
}

// Close performs the closing handshake.
func (w *WSConn) Close(reason string) error {
	return w.conn.Close(websocket.StatusNormalClosure, reason)
}

// IsClosure reports whether a read error is an orderly end of the
// connection rather than a transport failure.
func IsClosure(err error) bool {
	if err == nil {
		return false
	}
	return websocket.CloseStatus(err) != -1 || errors.Is(err, io.EOF)
}
