package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/brporter/remoteview/internal/loop"
	"github.com/brporter/remoteview/internal/protocol"
	"github.com/brporter/remoteview/internal/transport"
)

// controlChannel carries input to the device and keeps itself connected.
// Every connection attempt gets a new generation; events from an older
// generation are ignored.
type controlChannel struct {
	loop           *loop.Loop
	dialer         transport.Dialer
	url            string
	outboxSize     int
	reconnectDelay time.Duration
	probeInterval  time.Duration
	reconnectLimit int
	session        *sessionState
	logger         *slog.Logger
	onGiveUp       func(error)

	ctx            context.Context
	gen            int
	ended          bool
	link           *link
	livenessTimer  *loop.Periodic
	reconnectTimer *loop.Timer
	attempts       int
	reconnects     int
	stopped        bool
}

func (c *controlChannel) start(ctx context.Context) {
	c.ctx = ctx
	c.connect()
}

func (c *controlChannel) connect() {
	c.gen++
	c.ended = false
	c.session.set(StateOpening)
	gen := c.gen
	dial(c.ctx, c.loop, c.dialer, c.url,
		func(conn transport.Conn) { c.handleOpen(gen, conn) },
		func(err error) { c.handleEnd(gen, err) })
}

func (c *controlChannel) handleOpen(gen int, conn transport.Conn) {
	if gen != c.gen || c.ended || c.stopped {
		go conn.Close("control superseded")
		return
	}
	c.link = startLink(c.ctx, c.loop, conn, c.outboxSize, c.logger, linkHandlers{
		onMessage: func(typ websocket.MessageType, data []byte) { c.handleMessage(gen, data) },
		onEnd:     func(err error) { c.handleEnd(gen, err) },
	})
	c.session.log("[Control] Socket opened")
	c.livenessTimer = c.loop.Every(c.probeInterval, c.probe)
}

// probe writes a status request straight to the connection. Its reply is
// what moves the session to connected, so it cannot go through the gate.
func (c *controlChannel) probe() {
	if c.link == nil {
		return
	}
	c.write(protocol.StatusAction())
}

func (c *controlChannel) handleMessage(gen int, data []byte) {
	if gen != c.gen || c.ended {
		return
	}
	c.session.set(StateConnected)
	c.attempts = 0
	c.session.log("[Control] Message received: " + string(data))
}

// handleEnd is the single exit path for a connection. A transport failure
// is reported as an error followed by a close, as the transport would.
func (c *controlChannel) handleEnd(gen int, err error) {
	if gen != c.gen || c.ended {
		return
	}
	c.ended = true
	if err != nil && !transport.IsClosure(err) {
		c.handleError(err)
	}
	c.handleClose()
}

func (c *controlChannel) handleError(err error) {
	c.session.set(StateDisconnected)
	c.teardown()
	c.session.log("[Control] Connection error: " + err.Error())
}

func (c *controlChannel) handleClose() {
	c.session.set(StateDisconnected)
	c.teardown()
	c.session.log("[Control] Connection is closed")
	if c.stopped || c.reconnectTimer.Pending() {
		return
	}
	if c.reconnectLimit > 0 && c.attempts >= c.reconnectLimit {
		c.session.log(fmt.Sprintf("[Control] Giving up after %d reconnect attempts", c.attempts))
		c.stopped = true
		if c.onGiveUp != nil {
			c.onGiveUp(ErrReconnectLimit)
		}
		return
	}
	c.attempts++
	c.reconnectTimer = c.loop.AfterFunc(c.reconnectDelay, c.reconnect)
}

func (c *controlChannel) reconnect() {
	if c.stopped {
		return
	}
	c.reconnects++
	c.logger.Debug("reconnecting control channel", "attempt", c.attempts, "url", c.url)
	c.connect()
}

// SendControlMessage delivers an action only while the session is
// connected. Anything sent at another time is dropped.
func (c *controlChannel) SendControlMessage(a protocol.Action) {
	if c.session.current != StateConnected || c.link == nil {
		c.logger.Debug("control not connected, dropping action", "message", a.Message)
		return
	}
	c.write(a)
}

func (c *controlChannel) write(a protocol.Action) {
	data, err := protocol.Encode(a)
	if err != nil {
		c.logger.Error("encode control action", "err", err)
		return
	}
	c.link.outbox.SendText(data)
}

// teardown releases the current connection and its probe. Reconnect
// scheduling is left to the caller.
func (c *controlChannel) teardown() {
	c.livenessTimer.Stop()
	c.livenessTimer = nil
	c.link.close("control closed")
	c.link = nil
}

// stop ends the channel for good.
func (c *controlChannel) stop() {
	c.stopped = true
	c.reconnectTimer.Stop()
	c.teardown()
}
