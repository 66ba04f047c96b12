package devicesim

import (
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"k8s.io/utils/clock"
)

// LocalARN names the always-running session served to stream connections
// that carry no token.
const LocalARN = "arn:devicesim:session:local"

const arnPrefix = "arn:devicesim:"

// Clock schedules the STOPPING to COMPLETED transition.
type Clock interface {
	AfterFunc(d time.Duration, f func()) clock.Timer
}

// Hub tracks projects and remote access sessions.
type Hub struct {
	mu       sync.RWMutex
	projects map[string]string
	sessions map[string]*Session
	clock    Clock
	logger   *slog.Logger
}

// NewHub creates an empty hub. A nil clock means the real clock.
func NewHub(clk Clock, logger *slog.Logger) *Hub {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		projects: make(map[string]string),
		sessions: make(map[string]*Session),
		clock:    clk,
		logger:   logger,
	}
}

func newARN(kind string) string {
	id, _ := gonanoid.New(12)
	return arnPrefix + kind + ":" + id
}

// CreateProject registers a project and returns its ARN.
func (h *Hub) CreateProject(name string) string {
	arn := newARN("project")
	h.mu.Lock()
	h.projects[arn] = name
	h.mu.Unlock()
	h.logger.Info("project created", "arn", arn, "name", name)
	return arn
}

// HasProject reports whether arn names a known project.
func (h *Hub) HasProject(arn string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.projects[arn]
	return ok
}

// Register adds a session to the hub.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.ARN] = s
	h.logger.Info("session registered", "arn", s.ARN, "device", s.DeviceARN, "owner", s.OwnerSub)
}

// Unregister removes a session and closes its connections.
func (h *Hub) Unregister(arn string) {
	h.mu.Lock()
	s, ok := h.sessions[arn]
	if ok {
		delete(h.sessions, arn)
	}
	h.mu.Unlock()

	if ok {
		s.Close(StatusCompleted)
		h.logger.Info("session unregistered", "arn", arn)
	}
}

// Get returns a session by ARN.
func (h *Hub) Get(arn string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[arn]
	return s, ok
}

// ByToken returns the session a stream token belongs to. The empty token
// selects the local session, created on first use.
func (h *Hub) ByToken(token string) (*Session, bool) {
	if token == "" {
		return h.Local(), true
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		if s.Token == token {
			return s, true
		}
	}
	return nil, false
}

// Local returns the running token-less session.
func (h *Hub) Local() *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[LocalARN]; ok {
		return s
	}
	s := NewSession(LocalARN, h.logger)
	s.Token = ""
	s.status = StatusRunning
	h.sessions[LocalARN] = s
	return s
}

// ListForOwner returns all sessions owned by the given identity.
func (h *Hub) ListForOwner(provider, sub string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var result []*Session
	for _, s := range h.sessions {
		if s.OwnerProvider == provider && s.OwnerSub == sub {
			result = append(result, s)
		}
	}
	return result
}

// Stop moves a session to STOPPING, closes its connections and completes
// it after the grace period.
func (h *Hub) Stop(arn string, grace time.Duration) bool {
	h.mu.RLock()
	s, ok := h.sessions[arn]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	s.Close(StatusStopping)
	h.logger.Info("session stopping", "arn", arn, "grace", grace)

	h.clock.AfterFunc(grace, func() {
		s.SetStatus(StatusCompleted)
		h.logger.Info("session completed", "arn", arn)
	})
	return true
}

// CloseAll ends every session (used during server shutdown).
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.sessions {
		s.Close(StatusCompleted)
	}
	h.sessions = make(map[string]*Session)
}
