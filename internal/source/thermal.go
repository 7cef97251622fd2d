package source

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"

	"github.com/GabrielNarvadez/fire-detection/internal/engine"
)

// thermalGridWidth is the width of the simulated thermal pixel grid; the
// coarse blocks are what make the view read as a thermal sensor
const thermalGridWidth = 32

// ThermalSource wraps a visual source and synthesizes a thermal-style
// view: grayscale, contrast-stretched, pixelated to a coarse grid and
// colormapped. The wrapped visual frame rides along as the inference
// delegate, because the detection model is trained on RGB imagery, not
// colormapped views.
type ThermalSource struct {
	cameraID int
	inner    engine.Source
}

// NewThermalSource creates a simulated thermal camera over inner
func NewThermalSource(cameraID int, inner engine.Source) *ThermalSource {
	return &ThermalSource{cameraID: cameraID, inner: inner}
}

// Read returns the thermal rendering of the next visual frame
func (s *ThermalSource) Read(ctx context.Context) (*engine.Frame, error) {
	frame, err := s.inner.Read(ctx)
	if err != nil {
		return nil, err
	}

	thermal, err := renderThermal(frame.Data)
	if err != nil {
		return nil, fmt.Errorf("thermal rendering failed: %w", err)
	}

	return &engine.Frame{
		CameraID:  s.cameraID,
		Data:      thermal,
		InferData: frame.Data,
		Timestamp: frame.Timestamp,
	}, nil
}

// Close closes the wrapped source
func (s *ThermalSource) Close() error {
	return s.inner.Close()
}

// renderThermal converts a JPEG frame into the simulated thermal view
func renderThermal(jpegData []byte) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty frame %dx%d", w, h)
	}

	gray := stretchedGray(img)

	// Downscale to the thermal grid, then back up with nearest-neighbour
	// so the blocks stay sharp
	gridH := h * thermalGridWidth / w
	if gridH < 1 {
		gridH = 1
	}
	small := image.NewGray(image.Rect(0, 0, thermalGridWidth, gridH))
	xdraw.ApproxBiLinear.Scale(small, small.Bounds(), gray, gray.Bounds(), xdraw.Over, nil)

	blocks := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.NearestNeighbor.Scale(blocks, blocks.Bounds(), small, small.Bounds(), xdraw.Over, nil)

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.SetRGBA(x, y, hotColor(blocks.GrayAt(x, y).Y))
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode thermal frame: %w", err)
	}
	return buf.Bytes(), nil
}

// stretchedGray converts to grayscale with a full-range contrast stretch,
// so bright regions (higher simulated intensity) stand out
func stretchedGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)

	minV, maxV := uint8(255), uint8(0)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
			gray.SetGray(x, y, color.Gray{Y: v})
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}
	}

	if maxV > minV {
		scale := 255.0 / float64(maxV-minV)
		for i, v := range gray.Pix {
			gray.Pix[i] = uint8(float64(v-minV) * scale)
		}
	}
	return gray
}

// hotColor maps an intensity to the HOT colormap: black through red and
// yellow to white
func hotColor(v uint8) color.RGBA {
	i := int(v) * 3
	clamp := func(x int) uint8 {
		if x < 0 {
			return 0
		}
		if x > 255 {
			return 255
		}
		return uint8(x)
	}
	return color.RGBA{
		R: clamp(i),
		G: clamp(i - 255),
		B: clamp(i - 510),
		A: 255,
	}
}

var _ engine.Source = (*ThermalSource)(nil)
