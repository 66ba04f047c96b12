package session

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"

	"github.com/gabriel-vasile/mimetype"
)

// FrameMIME is the only payload type the video stream carries.
const FrameMIME = "image/jpeg"

var (
	ErrEmptyFrame = errors.New("empty frame")
	ErrNotJPEG    = errors.New("frame is not a JPEG")
)

// Frame is one video image handed to the render surface. Ownership of
// Data passes to the surface.
type Frame struct {
	MIME   string
	Data   []byte
	Width  int
	Height int
}

// decodeFrame validates a payload and reads its dimensions from the
// header. The image itself is not decoded.
func decodeFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	mt := mimetype.Detect(data)
	if !mt.Is(FrameMIME) {
		return Frame{}, fmt.Errorf("%w: got %s", ErrNotJPEG, mt.String())
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("read frame header: %w", err)
	}
	return Frame{MIME: FrameMIME, Data: data, Width: cfg.Width, Height: cfg.Height}, nil
}
