package engine

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"
)

// Default clip window around a trigger
const (
	DefaultPreRoll      = 1 * time.Second
	DefaultPostRoll     = 4 * time.Second
	DefaultBufferMargin = 2 * time.Second

	// DefaultFallbackFPS is used when a clip has at most one frame and the
	// elapsed-window derivation is meaningless
	DefaultFallbackFPS = 10.0
)

// PendingClip tracks a scheduled clip awaiting its post-roll window.
// At most one exists per camera at any time.
type PendingClip struct {
	CameraID    int
	DetectionID int64
	Trigger     time.Time
	CompleteAt  time.Time // Trigger + postRoll
}

// ClipScheduler is a per-camera state machine that schedules extraction of
// a pre-roll/post-roll clip around a detection trigger and defers
// materialization until the post-roll window has fully elapsed. It is
// polled once per capture loop iteration, on every frame.
type ClipScheduler struct {
	preRoll     time.Duration
	postRoll    time.Duration
	fallbackFPS float64
	clipDir     string

	oracle  Oracle
	writer  ArtifactWriter
	sink    Sink
	buffers *BufferManager

	mu      sync.Mutex
	pending map[int]*PendingClip
}

// NewClipScheduler creates a scheduler rendering clips from the given
// buffer manager into clipDir
func NewClipScheduler(preRoll, postRoll time.Duration, fallbackFPS float64, clipDir string, oracle Oracle, writer ArtifactWriter, sink Sink, buffers *BufferManager) *ClipScheduler {
	return &ClipScheduler{
		preRoll:     preRoll,
		postRoll:    postRoll,
		fallbackFPS: fallbackFPS,
		clipDir:     clipDir,
		oracle:      oracle,
		writer:      writer,
		sink:        sink,
		buffers:     buffers,
		pending:     make(map[int]*PendingClip),
	}
}

// Schedule transitions a camera from Idle to Pending. Returns false if a
// pending clip already exists for the camera; the cooldown governor should
// prevent that, but the scheduler enforces it independently.
func (s *ClipScheduler) Schedule(cameraID int, detectionID int64, trigger time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[cameraID]; exists {
		log.Printf("[Scheduler] Camera %d already has a pending clip, ignoring detection %d", cameraID, detectionID)
		return false
	}

	s.pending[cameraID] = &PendingClip{
		CameraID:    cameraID,
		DetectionID: detectionID,
		Trigger:     trigger,
		CompleteAt:  trigger.Add(s.postRoll),
	}
	return true
}

// HasPending reports whether the camera has an outstanding clip
func (s *ClipScheduler) HasPending(cameraID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[cameraID]
	return ok
}

// Poll checks whether the camera's pending clip is due and, if so, renders
// it. The pending slot is released before rendering so a failing writer
// cannot wedge the state machine.
func (s *ClipScheduler) Poll(ctx context.Context, cameraID int, now time.Time) {
	s.mu.Lock()
	clip, ok := s.pending[cameraID]
	if !ok || now.Before(clip.CompleteAt) {
		s.mu.Unlock()
		return
	}
	delete(s.pending, cameraID)
	s.mu.Unlock()

	s.render(ctx, clip)
}

// render extracts the clip window, re-runs the oracle on each selected
// frame for annotation, writes the clip and attaches its path to the
// detection. A window with no usable frames is silently abandoned.
func (s *ClipScheduler) render(ctx context.Context, clip *PendingClip) {
	start := clip.Trigger.Add(-s.preRoll)
	end := clip.Trigger.Add(s.postRoll)

	frames := s.buffers.ExtractWindow(clip.CameraID, start, end)
	if len(frames) == 0 {
		log.Printf("[Scheduler] No buffered frames for camera %d, abandoning clip for detection %d", clip.CameraID, clip.DetectionID)
		return
	}

	// Derive fps so the clip's playback duration approximates the real
	// elapsed capture window
	fps := s.fallbackFPS
	if len(frames) > 1 {
		fps = float64(len(frames)) / (s.preRoll + s.postRoll).Seconds()
	}

	rendered := make([][]byte, 0, len(frames))
	for _, f := range frames {
		_, annotated, err := s.oracle.InferAnnotated(ctx, f.Data)
		if err != nil || annotated == nil {
			// Oracle failures are non-fatal; fall back to the raw frame
			rendered = append(rendered, f.Data)
			continue
		}
		rendered = append(rendered, annotated)
	}

	name := fmt.Sprintf("camera%d_det_%d.mp4", clip.CameraID, clip.DetectionID)
	path := filepath.Join(s.clipDir, name)

	if err := s.writer.WriteVideo(path, fps, rendered); err != nil {
		log.Printf("[Scheduler] Failed to write clip %s: %v", path, err)
		return
	}

	if err := s.sink.AttachClip(clip.DetectionID, path); err != nil {
		log.Printf("[Scheduler] Failed to attach clip to detection %d: %v", clip.DetectionID, err)
		return
	}

	log.Printf("[Scheduler] Saved detection clip %s (%d frames @ %.1f fps)", path, len(rendered), fps)
}
