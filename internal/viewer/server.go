// Package viewer shows a session in a local browser: an MJPEG stream of
// the latest frame and a WebSocket that carries pointer input back.
package viewer

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"sync"

	"github.com/coder/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/brporter/remoteview/internal/input"
	"github.com/brporter/remoteview/internal/session"
)

//go:embed index.html
var indexHTML string

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

const inputReadLimit = 4 << 10

// StatusFunc reports session state for /health.
type StatusFunc func(ctx context.Context) (session.Snapshot, error)

// Server is the local viewer HTTP server. It implements session.Renderer
// and hands out a single shared surface.
type Server struct {
	logger *slog.Logger
	status StatusFunc

	mu        sync.Mutex
	elementID string
	size      input.Size
	frame     session.Frame
	seq       uint64
	changed   chan struct{}
	onPointer func(input.PointerEvent)
	clients   map[string]struct{}
}

// NewServer creates a viewer. status may be nil.
func NewServer(logger *slog.Logger, status StatusFunc) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:    logger,
		status:    status,
		elementID: "container",
		changed:   make(chan struct{}),
		clients:   make(map[string]struct{}),
	}
}

// CreateSurface implements session.Renderer.
func (s *Server) CreateSurface(elementID string, size input.Size) (session.Surface, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, input.ErrInvalidSize
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if elementID != "" {
		s.elementID = elementID
	}
	s.size = size
	return (*surface)(s), nil
}

type surface Server

// Draw keeps only the newest frame and wakes every stream.
func (sf *surface) Draw(f session.Frame) {
	s := (*Server)(sf)
	s.mu.Lock()
	s.frame = f
	s.seq++
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

func (sf *surface) OnPointer(fn func(input.PointerEvent)) {
	s := (*Server)(sf)
	s.mu.Lock()
	s.onPointer = fn
	s.mu.Unlock()
}

// latest returns the current frame, its sequence number and a channel
// closed when a newer frame arrives.
func (s *Server) latest() (session.Frame, uint64, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.seq, s.changed
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /frame.jpg", s.handleFrame)
	mux.HandleFunc("GET /stream", s.handleStream)
	mux.HandleFunc("GET /ws/input", s.handleInput)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	data := struct {
		ElementID string
		Width     int
		Height    int
	}{s.elementID, s.size.Width, s.size.Height}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.Error("render index", "err", err)
	}
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	frame, seq, _ := s.latest()
	if seq == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", frame.MIME)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame.Data)))
	w.Write(frame.Data)
}

// handleStream serves multipart/x-mixed-replace, one part per new frame.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	rc.Flush()

	var sent uint64
	for {
		frame, seq, changed := s.latest()
		if seq != sent {
			part, err := mw.CreatePart(textproto.MIMEHeader{
				"Content-Type":   {frame.MIME},
				"Content-Length": {strconv.Itoa(len(frame.Data))},
			})
			if err != nil {
				return
			}
			if _, err := part.Write(frame.Data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
			sent = seq
		}
		select {
		case <-r.Context().Done():
			return
		case <-changed:
		}
	}
}

type pointerMessage struct {
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Button int     `json:"button"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// handleInput reads pointer events from the page and forwards them to the
// session.
func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Error("accept input ws", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(inputReadLimit)

	clientID, _ := gonanoid.New(8)
	s.mu.Lock()
	s.clients[clientID] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, clientID)
		s.mu.Unlock()
	}()
	s.logger.Info("input client connected", "client", clientID)

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				s.logger.Debug("input read", "client", clientID, "err", err)
			}
			return
		}
		var msg pointerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("bad input message", "client", clientID, "err", err)
			continue
		}
		kind, ok := input.ParseKind(msg.Type)
		if !ok {
			continue
		}

		s.mu.Lock()
		fn := s.onPointer
		s.mu.Unlock()
		if fn == nil {
			continue
		}
		fn(input.PointerEvent{
			Kind:          kind,
			X:             msg.X,
			Y:             msg.Y,
			Button:        msg.Button,
			SurfaceWidth:  msg.Width,
			SurfaceHeight: msg.Height,
		})
	}
}

// Clients returns the number of connected input sockets.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

type healthSession struct {
	State       string `json:"state"`
	Tier        int    `json:"tier"`
	Outstanding int    `json:"outstanding"`
	Frames      int    `json:"frames"`
	Dropped     int    `json:"dropped"`
	Reconnects  int    `json:"reconnects"`
	VideoEnded  bool   `json:"video_ended"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Status  string         `json:"status"`
		Clients int            `json:"clients"`
		Session *healthSession `json:"session,omitempty"`
	}{Status: "ok", Clients: s.Clients()}

	if s.status != nil {
		snap, err := s.status(r.Context())
		if err != nil {
			resp.Status = "stopped"
		} else if snap.Mounted {
			resp.Session = &healthSession{
				State:       snap.State.String(),
				Tier:        snap.Video.Pacer.TierIndex,
				Outstanding: snap.Video.Pacer.Outstanding,
				Frames:      snap.Video.Frames,
				Dropped:     snap.Video.Dropped,
				Reconnects:  snap.Reconnects,
				VideoEnded:  snap.Video.Ended,
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
