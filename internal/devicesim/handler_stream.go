package devicesim

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/brporter/remoteview/internal/protocol"
)

// statusReply is the text answer to every control message.
type statusReply struct {
	Status   string `json:"status"`
	Received string `json:"received,omitempty"`
	Frames   int    `json:"frames"`
}

// HandleStream serves /stream?path=video|control for the session selected
// by ?token=.
func (s *Server) HandleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path != protocol.PathVideo && path != protocol.PathControl {
		http.Error(w, "unknown path", http.StatusBadRequest)
		return
	}
	sess, ok := s.hub.ByToken(q.Get("token"))
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	if sess.Status() != StatusRunning {
		http.Error(w, "session not running", http.StatusConflict)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Error("accept stream ws", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(64 << 10)

	connID, _ := gonanoid.New(8)
	if !sess.AddConn(connID, path, conn) {
		conn.Close(websocket.StatusTryAgainLater, "session unavailable")
		return
	}
	defer sess.RemoveConn(connID)
	s.logger.Info("stream connected", "session", sess.ARN, "path", path, "conn", connID)

	ctx := r.Context()
	if path == protocol.PathVideo {
		err = s.serveVideo(ctx, conn, sess)
	} else {
		err = s.serveControl(ctx, conn, sess)
	}
	s.logger.Info("stream disconnected", "session", sess.ARN, "path", path, "conn", connID, "err", err)
}

// serveVideo answers each ack with one frame.
func (s *Server) serveVideo(ctx context.Context, conn *websocket.Conn, sess *Session) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if !protocol.IsAck(data) {
			continue
		}

		if s.cfg.FrameLatency > 0 {
			t := time.NewTimer(s.cfg.FrameLatency)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		n, touch := sess.NextFrame()
		frame, err := s.frames.Render(n, touch)
		if err != nil {
			return err
		}
		if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
			return err
		}
	}
}

// serveControl records every action and answers with a status text.
func (s *Server) serveControl(ctx context.Context, conn *websocket.Conn, sess *Session) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		reply := statusReply{Status: "ok", Frames: sess.Frames()}
		env, err := protocol.Decode(data)
		if err != nil {
			reply.Status = "error"
		} else {
			sess.Record(env)
			reply.Received = env.Message
		}

		out, _ := json.Marshal(reply)
		if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
			return err
		}
	}
}
