package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/GabrielNarvadez/fire-detection/internal/engine"
)

// HTTPSnapshotSource polls an HTTP still-image endpoint at a fixed rate.
// Useful for cameras that only expose a current-frame JPEG URL.
type HTTPSnapshotSource struct {
	cameraID int
	url      string
	interval time.Duration
	client   *http.Client
	last     time.Time
}

// NewHTTPSnapshotSource creates a source polling url at the given fps
func NewHTTPSnapshotSource(cameraID int, url string, fps int) *HTTPSnapshotSource {
	interval := time.Second / time.Duration(fps)
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	return &HTTPSnapshotSource{
		cameraID: cameraID,
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Read fetches the next snapshot, pacing requests to the configured rate
func (s *HTTPSnapshotSource) Read(ctx context.Context) (*engine.Frame, error) {
	if wait := s.interval - time.Since(s.last); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	s.last = time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot endpoint returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("snapshot read failed: %w", err)
	}

	return &engine.Frame{
		CameraID:  s.cameraID,
		Data:      data,
		Timestamp: time.Now(),
	}, nil
}

// Close is a no-op; the poller holds no resources between reads
func (s *HTTPSnapshotSource) Close() error {
	return nil
}

var _ engine.Source = (*HTTPSnapshotSource)(nil)
