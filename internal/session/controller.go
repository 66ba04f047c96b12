package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brporter/remoteview/internal/input"
	"github.com/brporter/remoteview/internal/ladder"
	"github.com/brporter/remoteview/internal/loop"
	"github.com/brporter/remoteview/internal/pacer"
	"github.com/brporter/remoteview/internal/protocol"
	"github.com/brporter/remoteview/internal/provision"
	"github.com/brporter/remoteview/internal/transport"
)

// Defaults used by DefaultConfig.
const (
	DefaultMinFPS         = 15
	DefaultMaxFPS         = 30
	DefaultTierCount      = 6
	DefaultReconnectDelay = 5 * time.Second
	DefaultProbeInterval  = 2 * time.Second
	DefaultOutboxSize     = 64
)

// Config holds the tunables of a session.
type Config struct {
	DeviceSize     input.Size
	CanvasSize     input.Size
	Tiers          []ladder.Tier
	ReconnectDelay time.Duration
	ProbeInterval  time.Duration
	// ReconnectLimit caps consecutive control reconnects without a reply.
	// Zero retries forever.
	ReconnectLimit int
	KeyInterval    time.Duration
	OutboxSize     int
}

// DefaultConfig returns a 1080x1920 device shown on a 450x768 canvas.
func DefaultConfig() Config {
	tiers, err := ladder.Build(DefaultMinFPS, DefaultMaxFPS, DefaultTierCount)
	if err != nil {
		panic(err)
	}
	return Config{
		DeviceSize:     input.Size{Width: 1080, Height: 1920},
		CanvasSize:     input.Size{Width: 450, Height: 768},
		Tiers:          tiers,
		ReconnectDelay: DefaultReconnectDelay,
		ProbeInterval:  DefaultProbeInterval,
		KeyInterval:    input.DefaultKeyInterval,
		OutboxSize:     DefaultOutboxSize,
	}
}

// Surface shows frames and reports pointer activity. Draw is called on the
// session loop and must not block.
type Surface interface {
	Draw(Frame)
	OnPointer(func(input.PointerEvent))
}

// Renderer creates the surface a session draws on.
type Renderer interface {
	CreateSurface(elementID string, size input.Size) (Surface, error)
}

// MountSettings identifies where to render and where to report.
type MountSettings struct {
	ElementID string
	Log       LogFunc
}

// Options supplies the collaborators of a Controller.
type Options struct {
	Provisioner provision.Provisioner
	Renderer    Renderer
	Dialer      transport.Dialer
	Clock       loop.Clock
	Logger      *slog.Logger
}

// Snapshot is a consistent view of a running session.
type Snapshot struct {
	Mounted    bool
	State      State
	Endpoint   string
	Video      VideoStats
	Reconnects int
	Typing     bool
}

// Controller owns one remote view session.
type Controller struct {
	cfg    Config
	opts   Options
	loop   *loop.Loop
	logger *slog.Logger

	mounted  atomic.Bool
	doneOnce sync.Once
	done     chan struct{}
	err      error

	// Loop-owned.
	session    *sessionState
	endpoint   string
	scale      input.ScaleFactors
	surface    Surface
	video      *videoChannel
	control    *controlChannel
	translator *input.Translator
}

// NewController creates a session. Run must be called for it to make
// progress.
func NewController(cfg Config, opts Options) *Controller {
	if opts.Dialer == nil {
		opts.Dialer = transport.WSDialer{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = DefaultConfig().Tiers
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = DefaultOutboxSize
	}
	return &Controller{
		cfg:     cfg,
		opts:    opts,
		loop:    loop.New(opts.Clock),
		logger:  opts.Logger,
		done:    make(chan struct{}),
		session: &sessionState{current: StateOpening},
	}
}

// Run processes session events until ctx is cancelled, then releases
// every connection and timer.
func (c *Controller) Run(ctx context.Context) error {
	err := c.loop.Run(ctx)
	c.shutdown()
	c.finish(ErrStopped)
	return err
}

// Done is closed when the session can no longer make progress.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Err reports why Done was closed.
func (c *Controller) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Controller) finish(err error) {
	c.doneOnce.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Mount starts the session in the background: provision an endpoint,
// create the surface, open both channels and wire input. Failures are
// reported through settings.Log. ctx bounds provisioning and every dial.
func (c *Controller) Mount(ctx context.Context, settings MountSettings) error {
	if !c.mounted.CompareAndSwap(false, true) {
		return ErrAlreadyMounted
	}
	c.loop.Post(func() { c.session.sink = settings.Log })
	go c.provision(ctx, settings.ElementID)
	return nil
}

func (c *Controller) provision(ctx context.Context, elementID string) {
	if c.opts.Provisioner == nil {
		c.loop.Post(func() { c.session.log("[Session] No provisioner configured") })
		return
	}
	ep, err := c.opts.Provisioner.Provision(ctx)
	if err != nil {
		c.logger.Error("provision device", "err", err)
		c.loop.Post(func() { c.session.log("[Session] Provisioning failed: " + err.Error()) })
		return
	}
	c.loop.Post(func() {
		if err := c.start(ctx, elementID, ep.URL); err != nil {
			c.logger.Error("start session", "err", err)
			c.session.log("[Session] " + err.Error())
		}
	})
}

func (c *Controller) start(ctx context.Context, elementID, endpoint string) error {
	scale, err := input.NewScaleFactors(c.cfg.DeviceSize, c.cfg.CanvasSize)
	if err != nil {
		return fmt.Errorf("compute scale: %w", err)
	}
	var surface Surface
	if c.opts.Renderer != nil {
		surface, err = c.opts.Renderer.CreateSurface(elementID, c.cfg.CanvasSize)
		if err != nil {
			return fmt.Errorf("create surface %q: %w", elementID, err)
		}
	}

	c.endpoint = endpoint
	c.scale = scale
	c.surface = surface
	c.logger.Info("session starting", "endpoint", endpoint, "scale_x", scale.X, "scale_y", scale.Y)

	c.video = &videoChannel{
		loop:       c.loop,
		dialer:     c.opts.Dialer,
		url:        protocol.EndpointURL(endpoint, protocol.PathVideo),
		outboxSize: c.cfg.OutboxSize,
		session:    c.session,
		logger:     c.logger.With("channel", "video"),
		onEnd:      c.finish,
		pacer:      pacer.New(c.cfg.Tiers),
	}
	if surface != nil {
		c.video.draw = surface.Draw
	}

	c.control = &controlChannel{
		loop:           c.loop,
		dialer:         c.opts.Dialer,
		url:            protocol.EndpointURL(endpoint, protocol.PathControl),
		outboxSize:     c.cfg.OutboxSize,
		reconnectDelay: c.cfg.ReconnectDelay,
		probeInterval:  c.cfg.ProbeInterval,
		reconnectLimit: c.cfg.ReconnectLimit,
		session:        c.session,
		logger:         c.logger.With("channel", "control"),
		onGiveUp:       c.finish,
	}

	c.translator = input.NewTranslator(c.loop, scale, c.control, c.cfg.KeyInterval, c.logger)

	c.video.start(ctx)
	c.control.start(ctx)

	if surface != nil {
		surface.OnPointer(func(ev input.PointerEvent) {
			c.loop.Post(func() { c.translator.HandlePointer(ev) })
		})
	}
	return nil
}

// SendText types text on the device, one key at a time. Text sent before
// the session has started is discarded.
func (c *Controller) SendText(text string) {
	c.loop.Post(func() {
		if c.translator == nil {
			c.logger.Debug("session not started, dropping text", "chars", len(text))
			return
		}
		c.translator.SendText(text)
	})
}

// Snapshot reads the session state on the loop.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := c.loop.Do(ctx, func() {
		s.Mounted = c.mounted.Load()
		s.State = c.session.current
		s.Endpoint = c.endpoint
		if c.video != nil {
			s.Video = c.video.stats()
		}
		if c.control != nil {
			s.Reconnects = c.control.reconnects
		}
		if c.translator != nil {
			s.Typing = c.translator.Typing()
		}
	})
	if err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// shutdown runs after the loop has exited.
func (c *Controller) shutdown() {
	if c.video != nil && !c.video.ended {
		c.video.teardown()
	}
	if c.control != nil {
		c.control.stop()
	}
	if c.translator != nil {
		c.translator.Stop()
	}
}
