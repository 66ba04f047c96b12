package transport

import (
	"context"
	"log/slog"

	"github.com/coder/websocket"
)

type outMessage struct {
	typ  websocket.MessageType
	data []byte
}

// Outbox decouples senders from the network: Send never blocks, a single
// writer goroutine drains messages in order. When the buffer is full the
// message is dropped.
type Outbox struct {
	conn   Conn
	queue  chan outMessage
	logger *slog.Logger
}

// NewOutbox creates an outbox holding up to size pending messages.
func NewOutbox(conn Conn, size int, logger *slog.Logger) *Outbox {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{
		conn:   conn,
		queue:  make(chan outMessage, size),
		logger: logger,
	}
}

// Send queues a message. It reports false when the message was dropped.
func (o *Outbox) Send(typ websocket.MessageType, data []byte) bool {
	select {
	case o.queue <- outMessage{typ: typ, data: data}:
		return true
	default:
		o.logger.Debug("outbox full, dropping message", "bytes", len(data))
		return false
	}
}

// SendText queues a text message.
func (o *Outbox) SendText(text []byte) bool {
	return o.Send(websocket.MessageText, text)
}

// Run writes queued messages until ctx is done or a write fails.
func (o *Outbox) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-o.queue:
			if err := o.conn.Write(ctx, m.typ, m.data); err != nil {
				o.logger.Debug("write failed", "err", err)
				return err
			}
		}
	}
}
