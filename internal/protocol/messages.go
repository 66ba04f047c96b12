package protocol

// Query discriminators appended to the shared session endpoint.
const (
	PathVideo   = "video"
	PathControl = "control"
)

// Ack is the video pull request: one frame per ack.
const Ack = "ack"

// Control message names.
const (
	MessageStatus    = "StatusMessage"
	MessageTouchDown = "TouchDownMessage"
	MessageTouchMove = "TouchMoveMessage"
	MessageTouchUp   = "TouchUpMessage"
	MessageKeyEvent  = "KeyEventMessage"
)

// Fixed touch parameters: a single logical pointer with synthetic pressure.
const (
	TouchPointer  = 1
	TouchPressure = 100
)

// Action is a control message as sent on the wire.
type Action struct {
	Message    string `json:"message"`
	Parameters any    `json:"parameters"`
}

// Touch carries TouchDown and TouchMove parameters in device coordinates.
type Touch struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Pointer    int     `json:"pointer"`
	Pressure   int     `json:"pressure"`
	FrameRatio float64 `json:"frame_ratio"`
}

// TouchUp carries TouchUp parameters.
type TouchUp struct {
	Pointer int `json:"pointer"`
}

// KeyEvent carries a single key code.
type KeyEvent struct {
	Keycode int `json:"keycode"`
}

// Status is the empty liveness probe parameter set.
type Status struct{}

// StatusAction builds a liveness probe.
func StatusAction() Action {
	return Action{Message: MessageStatus, Parameters: Status{}}
}

// TouchDownAction builds a press at device coordinates (x, y).
func TouchDownAction(x, y, ratio float64) Action {
	return Action{Message: MessageTouchDown, Parameters: touch(x, y, ratio)}
}

// TouchMoveAction builds a drag to device coordinates (x, y).
func TouchMoveAction(x, y, ratio float64) Action {
	return Action{Message: MessageTouchMove, Parameters: touch(x, y, ratio)}
}

// TouchUpAction builds a release.
func TouchUpAction() Action {
	return Action{Message: MessageTouchUp, Parameters: TouchUp{Pointer: TouchPointer}}
}

// KeyEventAction builds a key press for one key code.
func KeyEventAction(keycode int) Action {
	return Action{Message: MessageKeyEvent, Parameters: KeyEvent{Keycode: keycode}}
}

func touch(x, y, ratio float64) Touch {
	return Touch{X: x, Y: y, Pointer: TouchPointer, Pressure: TouchPressure, FrameRatio: ratio}
}
