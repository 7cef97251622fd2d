// Package oracle provides clients for the external fire/smoke
// classification service. The engine treats the oracle as an opaque
// collaborator returning labeled bounding boxes with confidences.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/GabrielNarvadez/fire-detection/internal/engine"
)

// inferResponse is the sidecar's detection payload. The annotated image is
// present only when annotation was requested.
type inferResponse struct {
	Detections []struct {
		Label      string    `json:"label"`
		Confidence float64   `json:"confidence"`
		Box        []float64 `json:"box"` // [x1, y1, x2, y2]
	} `json:"detections"`
	AnnotatedImage  []byte  `json:"annotated_image,omitempty"`
	InferenceTimeMs float64 `json:"inference_time_ms"`
}

// healthResponse is the sidecar's /health payload
type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Device      string `json:"device"`
}

// HTTPOracle talks to a YOLO sidecar service over HTTP. Frames are posted
// as multipart uploads; the service replies with JSON detections and,
// optionally, the annotated frame.
type HTTPOracle struct {
	endpoint string
	client   *http.Client

	mu          sync.RWMutex
	lastHealthy time.Time
}

// NewHTTPOracle creates a client for the sidecar at endpoint
func NewHTTPOracle(endpoint string) *HTTPOracle {
	return &HTTPOracle{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 15 * time.Second, // Inference can be slow on CPU
		},
	}
}

// IsHealthy checks the sidecar's health endpoint. Positive results are
// cached for 30 seconds to keep the capture loops off the health route.
func (o *HTTPOracle) IsHealthy() bool {
	o.mu.RLock()
	if time.Since(o.lastHealthy) < 30*time.Second {
		o.mu.RUnlock()
		return true
	}
	o.mu.RUnlock()

	resp, err := o.client.Get(o.endpoint + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil || !health.ModelLoaded {
		return false
	}

	o.mu.Lock()
	o.lastHealthy = time.Now()
	o.mu.Unlock()
	return true
}

// Infer runs detection on a JPEG frame
func (o *HTTPOracle) Infer(ctx context.Context, frame []byte) ([]engine.Detection, error) {
	result, err := o.post(ctx, frame, false)
	if err != nil {
		return nil, err
	}
	return result.detections(), nil
}

// InferAnnotated runs detection and returns the annotated frame alongside
// the detections
func (o *HTTPOracle) InferAnnotated(ctx context.Context, frame []byte) ([]engine.Detection, []byte, error) {
	result, err := o.post(ctx, frame, true)
	if err != nil {
		return nil, nil, err
	}
	return result.detections(), result.AnnotatedImage, nil
}

func (o *HTTPOracle) post(ctx context.Context, frame []byte, annotate bool) (*inferResponse, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(frame); err != nil {
		return nil, err
	}
	if annotate {
		if err := w.WriteField("annotate", "true"); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/detect", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, string(body))
	}

	var result inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode oracle response: %w", err)
	}
	return &result, nil
}

func (r *inferResponse) detections() []engine.Detection {
	detections := make([]engine.Detection, 0, len(r.Detections))
	for _, d := range r.Detections {
		det := engine.Detection{Label: d.Label, Confidence: d.Confidence}
		if len(d.Box) == 4 {
			det.Box = engine.BBox{X1: d.Box[0], Y1: d.Box[1], X2: d.Box[2], Y2: d.Box[3]}
		}
		detections = append(detections, det)
	}
	return detections
}

// Ensure HTTPOracle implements the engine's oracle contract
var _ engine.Oracle = (*HTTPOracle)(nil)
