package session

import (
	"context"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/brporter/remoteview/internal/loop"
	"github.com/brporter/remoteview/internal/transport"
)

// link is one live connection. Its reader and writer goroutines report
// back onto the loop; onEnd can be reported by both, so handlers must
// tolerate a second call.
type link struct {
	conn   transport.Conn
	outbox *transport.Outbox
	cancel context.CancelFunc
}

type linkHandlers struct {
	onMessage func(typ websocket.MessageType, data []byte)
	onEnd     func(err error)
}

// dial connects in the background and posts the result to the loop.
func dial(ctx context.Context, l *loop.Loop, dialer transport.Dialer, url string, onOpen func(transport.Conn), onFail func(error)) {
	go func() {
		conn, err := dialer.Dial(ctx, url)
		if err != nil {
			l.Post(func() { onFail(err) })
			return
		}
		if !l.Post(func() { onOpen(conn) }) {
			conn.Close("session stopped")
		}
	}()
}

// startLink begins pumping conn. Must be called on the loop.
func startLink(ctx context.Context, l *loop.Loop, conn transport.Conn, outboxSize int, logger *slog.Logger, h linkHandlers) *link {
	ctx, cancel := context.WithCancel(ctx)
	lk := &link{
		conn:   conn,
		outbox: transport.NewOutbox(conn, outboxSize, logger),
		cancel: cancel,
	}

	go func() {
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					l.Post(func() { h.onEnd(err) })
				}
				return
			}
			if !l.Post(func() { h.onMessage(typ, data) }) {
				return
			}
		}
	}()

	go func() {
		if err := lk.outbox.Run(ctx); err != nil && ctx.Err() == nil {
			l.Post(func() { h.onEnd(err) })
		}
	}()

	return lk
}

// close stops both pumps and closes the connection. Safe on nil.
func (lk *link) close(reason string) {
	if lk == nil {
		return
	}
	lk.cancel()
	go lk.conn.Close(reason)
}
