package engine

import (
	"context"
	"time"
)

// Class identifies the dominant detection class for an event
type Class string

const (
	ClassFire  Class = "fire"
	ClassSmoke Class = "smoke"
)

// BBox represents a bounding box in pixel coordinates
type BBox struct {
	X1 float64 `json:"x1"` // Left
	Y1 float64 `json:"y1"` // Top
	X2 float64 `json:"x2"` // Right
	Y2 float64 `json:"y2"` // Bottom
}

// Detection is a single raw result from the detection oracle
type Detection struct {
	Label      string  `json:"label"`      // Model class name (e.g. "fire", "small_fire", "smoke")
	Confidence float64 `json:"confidence"` // Confidence [0-1]
	Box        BBox    `json:"box"`        // Bounding box
}

// Frame is a captured video frame. The ring buffer owns a private copy of
// Data, so sources are free to reuse their read buffers between frames.
type Frame struct {
	CameraID  int
	Data      []byte    // JPEG frame data (display frame)
	InferData []byte    // Frame to run inference on; nil means Data (used by simulated cameras)
	Timestamp time.Time // Capture timestamp
}

// inferData returns the frame the oracle should see.
func (f *Frame) inferData() []byte {
	if f.InferData != nil {
		return f.InferData
	}
	return f.Data
}

// ClassifiedResult is the reduction of one oracle call to per-class maxima
type ClassifiedResult struct {
	MaxFireConfidence  float64
	MaxSmokeConfidence float64
}

// Decision is a qualifying detection event candidate produced by the classifier
type Decision struct {
	Class      Class
	Confidence float64
}

// DetectionRecord holds the fields the event sink persists for a detection
type DetectionRecord struct {
	CameraID   int
	Class      Class
	Confidence float64
	Timestamp  time.Time
	ImagePath  string
	Location   string
	Latitude   float64
	Longitude  float64
	CameraName string
}

// DetectionEvent is the immutable event published after the sink assigned an id
type DetectionEvent struct {
	ID         int64     `json:"id"`
	CameraID   int       `json:"camera_id"`
	Class      Class     `json:"class"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
	ImagePath  string    `json:"image_path"`
}

// Oracle is the external object-classification collaborator. Calls may be
// slow; they block only the calling camera loop.
type Oracle interface {
	// Infer runs detection on a JPEG frame
	Infer(ctx context.Context, frame []byte) ([]Detection, error)

	// InferAnnotated runs detection and also returns the frame annotated
	// with bounding boxes, for stills and clip rendering
	InferAnnotated(ctx context.Context, frame []byte) ([]Detection, []byte, error)
}

// Sink is the persistence/alerting collaborator. Detection ids are owned by
// the sink and are monotonically increasing for its lifetime.
type Sink interface {
	// LogDetection records a detection and returns its assigned id
	LogDetection(rec *DetectionRecord) (int64, error)

	// AttachClip attaches a rendered clip path to an existing detection
	AttachClip(detectionID int64, clipPath string) error

	// CreateAlert records an alert for a detection
	CreateAlert(detectionID int64, level, message string) error

	// RecordActivity appends an entry to the activity log
	RecordActivity(message string) error
}

// Source yields timestamped frames for one camera. Read returns io.EOF at
// end of stream; any other error means the camera is unreachable.
type Source interface {
	Read(ctx context.Context) (*Frame, error)
	Close() error
}

// ArtifactWriter persists stills and clips
type ArtifactWriter interface {
	// SaveImage writes a JPEG still
	SaveImage(path string, jpeg []byte) error

	// WriteVideo muxes JPEG frames into a clip at the given frame rate
	WriteVideo(path string, fps float64, frames [][]byte) error
}

// EventPublisher receives logged detection events for live fan-out.
// Implementations must not block the camera loop.
type EventPublisher interface {
	PublishDetection(event *DetectionEvent)
}
