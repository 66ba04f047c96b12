package devicesim

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
)

const touchMarker = 6

// FrameRenderer draws numbered test frames as JPEG.
type FrameRenderer struct {
	Width   int
	Height  int
	Quality int
	// DeviceWidth and DeviceHeight are the coordinate space of recorded
	// touches, used to place the touch marker.
	DeviceWidth  int
	DeviceHeight int
}

// Render encodes frame n. The background hue walks with n so consecutive
// frames differ; touch, when non-nil, is drawn as a white square.
func (r FrameRenderer) Render(n int, touch *image.Point) ([]byte, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", r.Width, r.Height)
	}
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))

	bg := color.RGBA{R: uint8(n * 7), G: uint8(128 + n*3), B: uint8(255 - n*5), A: 255}
	draw.Draw(img, img.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)

	// A bar that sweeps across the frame once every Width frames.
	x := n % r.Width
	bar := image.Rect(x, 0, min(x+4, r.Width), r.Height)
	draw.Draw(img, bar, &image.Uniform{C: color.Black}, image.Point{}, draw.Src)

	if touch != nil && r.DeviceWidth > 0 && r.DeviceHeight > 0 {
		tx := touch.X * r.Width / r.DeviceWidth
		ty := touch.Y * r.Height / r.DeviceHeight
		mark := image.Rect(tx-touchMarker, ty-touchMarker, tx+touchMarker, ty+touchMarker).Intersect(img.Bounds())
		draw.Draw(img, mark, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	}

	quality := r.Quality
	if quality <= 0 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", n, err)
	}
	return buf.Bytes(), nil
}
