// Package input turns local pointer and keyboard activity into device
// control actions.
package input

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brporter/remoteview/internal/loop"
	"github.com/brporter/remoteview/internal/protocol"
)

// DefaultKeyInterval is the pause between injected key events.
const DefaultKeyInterval = 5 * time.Second

// ButtonPrimary is the button number of the main pointer button.
const ButtonPrimary = 0

var ErrInvalidSize = errors.New("invalid size")

// Kind is a pointer event type.
type Kind int

const (
	KindDown Kind = iota
	KindMove
	KindUp
	KindLeave
)

func (k Kind) String() string {
	switch k {
	case KindDown:
		return "down"
	case KindMove:
		return "move"
	case KindUp:
		return "up"
	case KindLeave:
		return "leave"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps the names used by the viewer page to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "down":
		return KindDown, true
	case "move":
		return KindMove, true
	case "up":
		return KindUp, true
	case "leave":
		return KindLeave, true
	}
	return 0, false
}

// PointerEvent is a pointer event in render surface coordinates. The
// surface dimensions are those at the time of the event.
type PointerEvent struct {
	Kind          Kind
	X, Y          float64
	Button        int
	SurfaceWidth  float64
	SurfaceHeight float64
}

// Size is a resolution in pixels.
type Size struct {
	Width  int
	Height int
}

// ScaleFactors map surface coordinates to device coordinates.
type ScaleFactors struct {
	X float64
	Y float64
}

// NewScaleFactors computes device/canvas ratios.
func NewScaleFactors(device, canvas Size) (ScaleFactors, error) {
	if device.Width <= 0 || device.Height <= 0 {
		return ScaleFactors{}, fmt.Errorf("device %dx%d: %w", device.Width, device.Height, ErrInvalidSize)
	}
	if canvas.Width <= 0 || canvas.Height <= 0 {
		return ScaleFactors{}, fmt.Errorf("canvas %dx%d: %w", canvas.Width, canvas.Height, ErrInvalidSize)
	}
	return ScaleFactors{
		X: float64(device.Width) / float64(canvas.Width),
		Y: float64(device.Height) / float64(canvas.Height),
	}, nil
}

// Sender delivers control actions. Delivery is best effort.
type Sender interface {
	SendControlMessage(protocol.Action)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(protocol.Action)

func (f SenderFunc) SendControlMessage(a protocol.Action) { f(a) }

// Translator tracks one drag gesture at a time and paces key injection.
// All methods must be called on the session loop.
type Translator struct {
	loop        *loop.Loop
	scale       ScaleFactors
	sender      Sender
	keyInterval time.Duration
	logger      *slog.Logger

	armed    bool
	pending  []rune
	keyTimer *loop.Timer
}

// NewTranslator creates a translator that emits through sender.
func NewTranslator(l *loop.Loop, scale ScaleFactors, sender Sender, keyInterval time.Duration, logger *slog.Logger) *Translator {
	if keyInterval <= 0 {
		keyInterval = DefaultKeyInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{
		loop:        l,
		scale:       scale,
		sender:      sender,
		keyInterval: keyInterval,
		logger:      logger,
	}
}

// Scale returns the factors applied to every coordinate.
func (t *Translator) Scale() ScaleFactors { return t.scale }

// Armed reports whether a gesture is in progress.
func (t *Translator) Armed() bool { return t.armed }

// HandlePointer translates one pointer event. Move, up and leave are only
// observed between a primary-button down and the following up or leave.
func (t *Translator) HandlePointer(ev PointerEvent) {
	switch ev.Kind {
	case KindDown:
		if ev.Button != ButtonPrimary {
			return
		}
		t.armed = true
		x, y := t.toDevice(ev)
		t.sender.SendControlMessage(protocol.TouchDownAction(x, y, frameRatio(ev)))
	case KindMove:
		if !t.armed {
			return
		}
		x, y := t.toDevice(ev)
		t.sender.SendControlMessage(protocol.TouchMoveAction(x, y, frameRatio(ev)))
	case KindUp, KindLeave:
		if !t.armed {
			return
		}
		t.armed = false
		t.sender.SendControlMessage(protocol.TouchUpAction())
	}
}

func (t *Translator) toDevice(ev PointerEvent) (float64, float64) {
	return ev.X * t.scale.X, ev.Y * t.scale.Y
}

func frameRatio(ev PointerEvent) float64 {
	if ev.SurfaceHeight <= 0 {
		return 0
	}
	return ev.SurfaceWidth / ev.SurfaceHeight
}

// SendText queues text for key injection. The first key goes out now
// unless a previous text is still being typed, in which case the new
// characters are appended and keep the same pace.
func (t *Translator) SendText(text string) {
	if text == "" {
		return
	}
	t.pending = append(t.pending, []rune(text)...)
	if t.keyTimer.Pending() {
		return
	}
	t.nextKey()
}

// PendingKeys is the number of characters not yet sent.
func (t *Translator) PendingKeys() int { return len(t.pending) }

// Typing reports whether the key pacing loop is running.
func (t *Translator) Typing() bool { return t.keyTimer.Pending() }

func (t *Translator) nextKey() {
	if len(t.pending) == 0 {
		t.keyTimer = nil
		return
	}
	r := t.pending[0]
	t.pending = t.pending[1:]
	t.logger.Debug("key event", "keycode", int(r), "remaining", len(t.pending))
	t.sender.SendControlMessage(protocol.KeyEventAction(int(r)))
	t.keyTimer = t.loop.AfterFunc(t.keyInterval, t.nextKey)
}

// Stop abandons any queued keys.
func (t *Translator) Stop() {
	t.keyTimer.Stop()
	t.keyTimer = nil
	t.pending = nil
	t.armed = false
}
