package devicesim

import (
	"crypto/rand"
	"encoding/base64"
	"image"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/brporter/remoteview/internal/protocol"
)

// Remote access session states, as reported by the farm API.
const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusStopping  = "STOPPING"
	StatusCompleted = "COMPLETED"
)

const maxConnsPerSession = 8

// Session is one simulated remote access session on a device.
type Session struct {
	ARN           string
	ProjectARN    string
	Name          string
	DeviceARN     string
	BillingMethod string
	OwnerProvider string
	OwnerSub      string

	// Token authorizes stream connections; it is carried in the endpoint
	// URL handed out once the session runs.
	Token string

	logger *slog.Logger

	mu      sync.Mutex
	status  string
	polls   int
	conns   map[string]streamConn
	actions []protocol.Envelope
	touch   *image.Point
	frames  int
}

type streamConn struct {
	path string
	conn *websocket.Conn
}

// NewSession creates a PENDING session.
func NewSession(arn string, logger *slog.Logger) *Session {
	return &Session{
		ARN:    arn,
		Token:  generateToken(),
		logger: logger,
		status: StatusPending,
		conns:  make(map[string]streamConn),
	}
}

func generateToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// Status returns the current state.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Poll counts one status query. A PENDING session starts RUNNING once it
// has been polled more than pendingPolls times.
func (s *Session) Poll(pendingPolls int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if s.status == StatusPending && s.polls > pendingPolls {
		s.status = StatusRunning
	}
	return s.status
}

// SetStatus forces a state.
func (s *Session) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// AddConn attaches a stream connection. Returns false when the session is
// not running or the connection limit is reached.
func (s *Session) AddConn(id, path string, conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning || len(s.conns) >= maxConnsPerSession {
		return false
	}
	s.conns[id] = streamConn{path: path, conn: conn}
	return true
}

// RemoveConn detaches a stream connection.
func (s *Session) RemoveConn(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}

// ConnCount returns the number of attached connections on path, or on all
// paths when path is empty.
func (s *Session) ConnCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.conns {
		if path == "" || c.path == path {
			n++
		}
	}
	return n
}

// Record stores a control message and tracks the last touch position.
func (s *Session) Record(env protocol.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, env)

	switch env.Message {
	case protocol.MessageTouchDown, protocol.MessageTouchMove:
		var t protocol.Touch
		if err := protocol.DecodeJSON(env.Parameters, &t); err == nil {
			s.touch = &image.Point{X: int(t.X), Y: int(t.Y)}
		}
	case protocol.MessageTouchUp:
		s.touch = nil
	}
}

// Actions returns the recorded control messages in arrival order.
func (s *Session) Actions() []protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Envelope, len(s.actions))
	copy(out, s.actions)
	return out
}

// NextFrame numbers the next frame to serve and returns the touch to draw.
func (s *Session) NextFrame() (int, *image.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	if s.touch == nil {
		return s.frames, nil
	}
	p := *s.touch
	return s.frames, &p
}

// Frames returns the number of frames served.
func (s *Session) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Drop abruptly closes every connection on path, leaving the session
// running so clients can reconnect.
func (s *Session) Drop(path string) int {
	s.mu.Lock()
	var drop []*websocket.Conn
	for id, c := range s.conns {
		if c.path == path {
			drop = append(drop, c.conn)
			delete(s.conns, id)
		}
	}
	s.mu.Unlock()

	for _, conn := range drop {
		conn.CloseNow()
	}
	if len(drop) > 0 {
		s.logger.Info("dropped connections", "session", s.ARN, "path", path, "count", len(drop))
	}
	return len(drop)
}

// Close ends the session with status and closes every connection.
func (s *Session) Close(status string) {
	s.mu.Lock()
	if s.status == StatusCompleted {
		s.mu.Unlock()
		return
	}
	s.status = status
	conns := s.conns
	s.conns = make(map[string]streamConn)
	s.mu.Unlock()

	for _, c := range conns {
		c.conn.Close(websocket.StatusNormalClosure, "session ended")
	}
}
