package session

import (
	"context"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/brporter/remoteview/internal/loop"
	"github.com/brporter/remoteview/internal/pacer"
	"github.com/brporter/remoteview/internal/protocol"
	"github.com/brporter/remoteview/internal/transport"
)

// VideoStats describes the video leg at a point in time.
type VideoStats struct {
	Open    bool
	Ended   bool
	Pacer   pacer.State
	Frames  int
	Dropped int
}

// videoChannel pulls frames one ack at a time. It never reconnects.
type videoChannel struct {
	loop       *loop.Loop
	dialer     transport.Dialer
	url        string
	outboxSize int
	session    *sessionState
	logger     *slog.Logger
	draw       func(Frame)
	onEnd      func(error)

	pacer   *pacer.Pacer
	link    *link
	tick    *loop.Periodic
	ended   bool
	frames  int
	dropped int
}

func (v *videoChannel) start(ctx context.Context) {
	dial(ctx, v.loop, v.dialer, v.url,
		func(conn transport.Conn) { v.handleOpen(ctx, conn) },
		v.handleEnd)
}

func (v *videoChannel) handleOpen(ctx context.Context, conn transport.Conn) {
	if v.ended {
		go conn.Close("video stopped")
		return
	}
	v.link = startLink(ctx, v.loop, conn, v.outboxSize, v.logger, linkHandlers{
		onMessage: v.handleMessage,
		onEnd:     v.handleEnd,
	})
	v.session.log("[Video] Starting streaming")
	v.pull()
	v.pacer.Requested()
	v.tick = v.loop.Every(v.pacer.Interval(), v.handleTick)
	v.logger.Debug("video pacing started", "interval", v.pacer.Interval(), "tier", v.pacer.State().TierIndex)
}

func (v *videoChannel) pull() {
	v.link.outbox.SendText([]byte(protocol.Ack))
}

func (v *videoChannel) handleTick() {
	if v.link == nil {
		return
	}
	d := v.pacer.Tick()
	if d.Retimed {
		v.tick.Reset(v.pacer.Interval())
		v.logger.Debug("video tier changed", "tier", v.pacer.State().TierIndex, "interval", v.pacer.Interval())
	}
	if d.Send {
		v.pull()
	}
}

func (v *videoChannel) handleMessage(_ websocket.MessageType, data []byte) {
	if v.ended {
		return
	}
	// Every answer counts against the backlog, even one that cannot be shown.
	v.pacer.Responded()
	frame, err := decodeFrame(data)
	if err != nil {
		v.dropped++
		v.logger.Debug("dropping video frame", "err", err, "bytes", len(data))
		return
	}
	v.frames++
	if v.draw != nil {
		v.draw(frame)
	}
}

func (v *videoChannel) handleEnd(err error) {
	if v.ended {
		return
	}
	v.teardown()
	if err != nil && !transport.IsClosure(err) {
		v.session.log("[Video] Connection error: " + err.Error())
	}
	v.session.log("[Video] Connection is closed")
	if v.onEnd != nil {
		v.onEnd(ErrVideoClosed)
	}
}

// teardown stops the tick and releases the connection.
func (v *videoChannel) teardown() {
	v.ended = true
	v.tick.Stop()
	v.link.close("video stopped")
	v.link = nil
}

func (v *videoChannel) stats() VideoStats {
	return VideoStats{
		Open:    v.link != nil,
		Ended:   v.ended,
		Pacer:   v.pacer.State(),
		Frames:  v.frames,
		Dropped: v.dropped,
	}
}
