package devicesim

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRenderer_Render(t *testing.T) {
	r := FrameRenderer{Width: 90, Height: 160, DeviceWidth: 1080, DeviceHeight: 1920}

	a, err := r.Render(1, nil)
	require.NoError(t, err)
	b, err := r.Render(2, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "consecutive frames should differ")

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(a))
	require.NoError(t, err)
	assert.Equal(t, 90, cfg.Width)
	assert.Equal(t, 160, cfg.Height)
}

func TestFrameRenderer_TouchMarker(t *testing.T) {
	r := FrameRenderer{Width: 90, Height: 160, Quality: 100, DeviceWidth: 1080, DeviceHeight: 1920}

	data, err := r.Render(0, &image.Point{X: 540, Y: 960})
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	// Device (540,960) lands at frame (45,80).
	cr, cg, cb, _ := img.At(45, 80).RGBA()
	assert.Greater(t, cr>>8, uint32(200))
	assert.Greater(t, cg>>8, uint32(200))
	assert.Greater(t, cb>>8, uint32(200))
}

func TestFrameRenderer_InvalidSize(t *testing.T) {
	_, err := FrameRenderer{Width: 0, Height: 10}.Render(1, nil)
	assert.Error(t, err)
}
