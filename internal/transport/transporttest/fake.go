// Package transporttest provides in-memory connections for session tests.
package transporttest

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/brporter/remoteview/internal/transport"
)

// ErrReset simulates a transport failure that is not an orderly close.
var ErrReset = errors.New("connection reset")

// Message is one message written by the client.
type Message struct {
	Type websocket.MessageType
	Data []byte
}

type inbound struct {
	typ  websocket.MessageType
	data []byte
	err  error
}

// Conn is an in-memory transport.Conn. The test plays the server side
// through Deliver, CloseRemote and Written.
type Conn struct {
	URL string

	in      chan inbound
	mu      sync.Mutex
	written []Message
	closed  bool
	wrote   chan struct{}
}

func newConn(url string) *Conn {
	return &Conn{
		URL:   url,
		in:    make(chan inbound, 64),
		wrote: make(chan struct{}, 1),
	}
}

// Read returns the next delivered message.
func (c *Conn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case m := <-c.in:
		return m.typ, m.data, m.err
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// Write records a message.
func (c *Conn) Write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.ErrClosedPipe
	}
	c.written = append(c.written, Message{Type: typ, Data: append([]byte(nil), data...)})
	select {
	case c.wrote <- struct{}{}:
	default:
	}
	return nil
}

// Close marks the connection closed by the client.
func (c *Conn) Close(reason string) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// Closed reports whether the client closed the connection.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Deliver queues a server-to-client message.
func (c *Conn) Deliver(typ websocket.MessageType, data []byte) {
	c.in <- inbound{typ: typ, data: data}
}

// DeliverText queues a server-to-client text message.
func (c *Conn) DeliverText(text string) {
	c.Deliver(websocket.MessageText, []byte(text))
}

// CloseRemote ends the connection from the server side. A nil err is an
// orderly close; anything else is a transport failure.
func (c *Conn) CloseRemote(err error) {
	if err == nil {
		err = websocket.CloseError{Code: websocket.StatusNormalClosure, Reason: "bye"}
	}
	c.in <- inbound{err: err}
}

// Written returns a copy of everything the client wrote.
func (c *Conn) Written() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.written...)
}

// WrittenText returns the text of every message the client wrote.
func (c *Conn) WrittenText() []string {
	msgs := c.Written()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Data)
	}
	return out
}

// Dialer hands out Conns and records every dial.
type Dialer struct {
	mu       sync.Mutex
	urls     []string
	failures []error
	dialed   chan *Conn
}

var _ transport.Dialer = (*Dialer)(nil)

// NewDialer creates a Dialer.
func NewDialer() *Dialer {
	return &Dialer{dialed: make(chan *Conn, 64)}
}

// FailNext makes the next dial return err.
func (d *Dialer) FailNext(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, err)
}

// Dial returns a fresh Conn, or the next queued failure.
func (d *Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	c := newConn(url)
	d.dialed <- c
	return c, nil
}

// URLs returns every URL dialed so far.
func (d *Dialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// Dials returns how many dials were attempted.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

// Next waits for the next successfully dialed Conn.
func (d *Dialer) Next(t testing.TB) *Conn {
	t.Helper()
	select {
	case c := <-d.dialed:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a dial")
		return nil
	}
}
