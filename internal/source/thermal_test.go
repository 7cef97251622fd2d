package source

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielNarvadez/fire-detection/internal/engine"
)

func gradientJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / w)
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestRenderThermalPreservesDimensions(t *testing.T) {
	data := gradientJPEG(t, 64, 48)

	thermal, err := renderThermal(data)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(thermal))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())
}

func TestRenderThermalRejectsGarbage(t *testing.T) {
	_, err := renderThermal([]byte("not a jpeg"))
	assert.Error(t, err)
}

func TestHotColormapEndpoints(t *testing.T) {
	assert.Equal(t, color.RGBA{A: 255}, hotColor(0))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, hotColor(255))

	// Mid intensities are red before green ramps in
	mid := hotColor(80)
	assert.Equal(t, uint8(240), mid.R)
	assert.Equal(t, uint8(0), mid.G)
	assert.Equal(t, uint8(0), mid.B)
}

func TestThermalSourceCarriesVisualDelegate(t *testing.T) {
	visual := gradientJPEG(t, 32, 32)
	ts := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	inner := &staticSource{frame: &engine.Frame{CameraID: 1, Data: visual, Timestamp: ts}}

	s := NewThermalSource(2, inner)
	frame, err := s.Read(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, frame.CameraID)
	assert.Equal(t, ts, frame.Timestamp)
	assert.Equal(t, visual, frame.InferData, "inference runs on the visual frame")
	assert.NotEqual(t, visual, frame.Data, "the display frame is the thermal rendering")

	require.NoError(t, s.Close())
	assert.True(t, inner.closed)
}

// staticSource yields one frame then io.EOF
type staticSource struct {
	frame  *engine.Frame
	read   bool
	closed bool
}

func (s *staticSource) Read(ctx context.Context) (*engine.Frame, error) {
	if s.read {
		return nil, io.EOF
	}
	s.read = true
	return s.frame, nil
}

func (s *staticSource) Close() error {
	s.closed = true
	return nil
}
