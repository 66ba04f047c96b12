// Package devicesim is a fake device: it serves the video and control
// streams of a remote view session and a small device-farm API that hands
// out sessions.
package devicesim

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brporter/remoteview/internal/auth"
)

// Config tunes the simulated device.
type Config struct {
	// BaseURL is the externally visible http(s) address; stream endpoints
	// are derived from it.
	BaseURL string
	// DevMode accepts anonymous and "provider:sub" bearer tokens.
	DevMode bool

	FrameWidth   int
	FrameHeight  int
	DeviceWidth  int
	DeviceHeight int
	// FrameLatency delays every frame answer.
	FrameLatency time.Duration
	// PendingPolls is how many status queries a new session answers with
	// PENDING before it runs.
	PendingPolls int
	// StopGrace is how long a stopped session reports STOPPING.
	StopGrace time.Duration
}

// DefaultConfig returns a 270x480 frame of a 1080x1920 device.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "http://localhost:8090",
		FrameWidth:   270,
		FrameHeight:  480,
		DeviceWidth:  1080,
		DeviceHeight: 1920,
		PendingPolls: 1,
		StopGrace:    5 * time.Second,
	}
}

// Server is the device simulator HTTP server.
type Server struct {
	hub      *Hub
	cfg      Config
	frames   FrameRenderer
	logger   *slog.Logger
	verifier auth.TokenVerifier
}

// NewServer creates a simulator server.
func NewServer(hub *Hub, cfg Config, verifier auth.TokenVerifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub: hub,
		cfg: cfg,
		frames: FrameRenderer{
			Width:        cfg.FrameWidth,
			Height:       cfg.FrameHeight,
			DeviceWidth:  cfg.DeviceWidth,
			DeviceHeight: cfg.DeviceHeight,
		},
		logger:   logger,
		verifier: verifier,
	}
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Session streams (auth via the endpoint token)
	mux.HandleFunc("GET /stream", s.HandleStream)

	// Farm API (auth via middleware)
	api := http.NewServeMux()
	api.HandleFunc("POST /api/projects", s.HandleCreateProject)
	api.HandleFunc("POST /api/sessions", s.HandleCreateSession)
	api.HandleFunc("GET /api/sessions", s.HandleListSessions)
	api.HandleFunc("GET /api/sessions/{arn}", s.HandleGetSession)
	api.HandleFunc("DELETE /api/sessions/{arn}", s.HandleStopSession)
	api.HandleFunc("POST /api/sessions/{arn}/drop", s.HandleDrop)
	mux.Handle("/api/", auth.Middleware(s.verifier, s.cfg.DevMode)(api))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux
}

// streamURL is the endpoint a running session hands to its client.
func (s *Server) streamURL(token string) string {
	base := strings.TrimSuffix(s.cfg.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/stream?token=" + token
}
