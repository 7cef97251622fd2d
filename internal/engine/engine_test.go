package engine

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielNarvadez/fire-detection/internal/camera"
	"github.com/GabrielNarvadez/fire-detection/internal/config"
)

// fakeOracle returns whatever detections are currently set. Safe for
// concurrent use so engine lifecycle tests can mutate it between frames.
type fakeOracle struct {
	mu         sync.Mutex
	detections []Detection
	annotated  []byte
	err        error
	calls      int
}

func (o *fakeOracle) set(detections []Detection, annotated []byte) {
	o.mu.Lock()
	o.detections = detections
	o.annotated = annotated
	o.mu.Unlock()
}

func (o *fakeOracle) Infer(ctx context.Context, frame []byte) ([]Detection, error) {
	d, _, err := o.InferAnnotated(ctx, frame)
	return d, err
}

func (o *fakeOracle) InferAnnotated(ctx context.Context, frame []byte) ([]Detection, []byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return nil, nil, o.err
	}
	return o.detections, o.annotated, nil
}

type fakeAlert struct {
	detectionID int64
	level       string
	message     string
}

// fakeSink records everything the engine persists. It also implements the
// registry's notifier so one fake can back a whole engine.
type fakeSink struct {
	mu       sync.Mutex
	nextID   int64
	records  []*DetectionRecord
	clips    map[int64]string
	alerts   []fakeAlert
	activity []string
	statuses []string
}

func newFakeSink() *fakeSink {
	return &fakeSink{clips: make(map[int64]string)}
}

func (s *fakeSink) LogDetection(rec *DetectionRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.records = append(s.records, rec)
	return s.nextID, nil
}

func (s *fakeSink) AttachClip(detectionID int64, clipPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clips[detectionID] = clipPath
	return nil
}

func (s *fakeSink) CreateAlert(detectionID int64, level, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, fakeAlert{detectionID, level, message})
	return nil
}

func (s *fakeSink) RecordActivity(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, message)
	return nil
}

func (s *fakeSink) SetCameraStatus(cameraID int, status string, temperature *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, fmt.Sprintf("%d:%s", cameraID, status))
	return nil
}

type fakeVideo struct {
	fps    float64
	frames [][]byte
}

type fakeWriter struct {
	mu       sync.Mutex
	images   map[string][]byte
	videos   map[string]fakeVideo
	videoErr error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		images: make(map[string][]byte),
		videos: make(map[string]fakeVideo),
	}
}

func (w *fakeWriter) SaveImage(path string, jpeg []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.images[path] = jpeg
	return nil
}

func (w *fakeWriter) WriteVideo(path string, fps float64, frames [][]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.videoErr != nil {
		return w.videoErr
	}
	w.videos[path] = fakeVideo{fps: fps, frames: frames}
	return nil
}

// scriptedSource yields a fixed frame sequence then io.EOF
type scriptedSource struct {
	frames []*Frame
	next   int
	closed bool
}

func (s *scriptedSource) Read(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func (s *scriptedSource) Close() error {
	s.closed = true
	return nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.DetectStride = 1
	cfg.SnapshotInterval = 1000
	cfg.ImageDir = "images"
	cfg.ClipDir = "clips"
	cfg.FrameDir = "frames"
	return cfg
}

func frameAt(cameraID int, base time.Time, offset time.Duration) *Frame {
	return &Frame{
		CameraID:  cameraID,
		Data:      []byte(fmt.Sprintf("frame-%s", offset)),
		Timestamp: base.Add(offset),
	}
}

type capturedEvents struct {
	mu     sync.Mutex
	events []*DetectionEvent
}

func (c *capturedEvents) PublishDetection(event *DetectionEvent) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

// Drives a full fire event through the pipeline: quiet frames, a trigger,
// suppressed re-detections and finally clip completion once the post-roll
// window has elapsed.
func TestEngineFireEventLifecycle(t *testing.T) {
	cfg := testConfig()
	oracle := &fakeOracle{}
	snk := newFakeSink()
	writer := newFakeWriter()
	registry := camera.NewRegistry(snk)
	events := &capturedEvents{}

	e := New(cfg, oracle, snk, writer, registry, events)
	info := CameraInfo{ID: 1, Name: "Main Camera", Location: camera.Location{Name: "Lobby"}}
	run := &cameraRun{info: info, ctx: context.Background()}

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	// Two quiet seconds
	e.step(run, frameAt(1, base, 0))
	e.step(run, frameAt(1, base, 1*time.Second))
	require.Empty(t, snk.records)

	// Fire appears at t=2s and stays visible
	oracle.set([]Detection{{Label: "fire", Confidence: 0.92}}, []byte("annotated"))
	e.step(run, frameAt(1, base, 2*time.Second))

	require.Len(t, snk.records, 1)
	rec := snk.records[0]
	assert.Equal(t, ClassFire, rec.Class)
	assert.InDelta(t, 0.92, rec.Confidence, 1e-9)
	assert.Equal(t, "Lobby", rec.Location)
	assert.Equal(t, base.Add(2*time.Second), rec.Timestamp)

	// Annotated still saved under the class/timestamp naming scheme
	stillPath := filepath.Join("images", "camera1_fire_20260314_120002.jpg")
	assert.Equal(t, []byte("annotated"), writer.images[stillPath])

	// Above the alert threshold: one critical alert plus an activity entry
	require.Len(t, snk.alerts, 1)
	assert.Equal(t, int64(1), snk.alerts[0].detectionID)
	assert.Equal(t, "critical", snk.alerts[0].level)
	assert.Equal(t, "FIRE detected at Lobby - Confidence: 92.0%", snk.alerts[0].message)

	require.Len(t, events.events, 1)
	assert.Equal(t, int64(1), events.events[0].ID)

	// The fire stays in frame but the cooldown suppresses re-logging
	for offset := 3 * time.Second; offset < 6*time.Second; offset += time.Second {
		e.step(run, frameAt(1, base, offset))
	}
	assert.Len(t, snk.records, 1)
	assert.True(t, e.scheduler.HasPending(1))

	// t=6s completes the post-roll window: the clip renders from the
	// buffered [t=1s, t=6s] frames
	e.step(run, frameAt(1, base, 6*time.Second))
	assert.False(t, e.scheduler.HasPending(1))

	clipPath := filepath.Join("clips", "camera1_det_1.mp4")
	require.Contains(t, writer.videos, clipPath)
	video := writer.videos[clipPath]
	assert.Len(t, video.frames, 6)
	assert.InDelta(t, 6.0/5.0, video.fps, 1e-9)
	assert.Equal(t, clipPath, snk.clips[1])
}

func TestEngineOracleFailureIsQuietCycle(t *testing.T) {
	cfg := testConfig()
	oracle := &fakeOracle{err: fmt.Errorf("connection refused")}
	snk := newFakeSink()
	e := New(cfg, oracle, snk, newFakeWriter(), camera.NewRegistry(snk), nil)
	run := &cameraRun{info: CameraInfo{ID: 1, Name: "Main Camera"}, ctx: context.Background()}

	e.step(run, frameAt(1, time.Now(), 0))

	assert.Empty(t, snk.records)
	assert.True(t, e.cooldowns.Open(1), "a failed cycle must not arm the cooldown")
}

func TestEngineDetectStride(t *testing.T) {
	cfg := testConfig()
	cfg.DetectStride = 5
	oracle := &fakeOracle{}
	snk := newFakeSink()
	e := New(cfg, oracle, snk, newFakeWriter(), camera.NewRegistry(snk), nil)
	run := &cameraRun{info: CameraInfo{ID: 1}, ctx: context.Background()}

	base := time.Now()
	for i := 0; i < 10; i++ {
		e.step(run, frameAt(1, base, time.Duration(i)*100*time.Millisecond))
	}
	assert.Equal(t, 2, oracle.calls)
}

func TestEngineThermalTemperature(t *testing.T) {
	cfg := testConfig()
	oracle := &fakeOracle{}
	oracle.set([]Detection{{Label: "fire", Confidence: 0.5}}, nil)
	snk := newFakeSink()
	registry := camera.NewRegistry(snk)

	e := New(cfg, oracle, snk, newFakeWriter(), registry, nil)
	info := CameraInfo{ID: 2, Name: "Thermal Camera", Thermal: true}
	registry.Add(camera.State{ID: 2, Name: info.Name})
	run := &cameraRun{info: info, ctx: context.Background()}

	e.step(run, frameAt(2, time.Now(), 0))

	state, ok := registry.Get(2)
	require.True(t, ok)
	require.NotNil(t, state.Temperature)
	assert.InDelta(t, 22+0.5*100, *state.Temperature, 1e-9)
}

func TestEngineSnapshotInterval(t *testing.T) {
	cfg := testConfig()
	cfg.SnapshotInterval = 10
	snk := newFakeSink()
	writer := newFakeWriter()
	e := New(cfg, &fakeOracle{}, snk, writer, camera.NewRegistry(snk), nil)
	run := &cameraRun{info: CameraInfo{ID: 1}, ctx: context.Background()}

	base := time.Now()
	for i := 0; i < 25; i++ {
		e.step(run, frameAt(1, base, time.Duration(i)*100*time.Millisecond))
	}

	// Frames 10 and 20 refresh the live snapshot
	path := filepath.Join("frames", "camera1_live.jpg")
	assert.Contains(t, writer.images, path)
	assert.Equal(t, 20, run.lastSnapshot)
}

func TestEngineSnapshotUsesAnnotatedFrameOnClassifyTick(t *testing.T) {
	cfg := testConfig()
	cfg.DetectStride = 2
	cfg.SnapshotInterval = 1
	oracle := &fakeOracle{}
	oracle.set(nil, []byte("annotated"))
	snk := newFakeSink()
	writer := newFakeWriter()
	e := New(cfg, oracle, snk, writer, camera.NewRegistry(snk), nil)
	run := &cameraRun{info: CameraInfo{ID: 1}, ctx: context.Background()}

	base := time.Now()
	path := filepath.Join("frames", "camera1_live.jpg")

	// Frame 1 is not a classification tick: the raw frame is written
	e.step(run, frameAt(1, base, 0))
	assert.Equal(t, []byte("frame-0s"), writer.images[path])

	// Frame 2 classifies: the snapshot carries the bounding boxes
	e.step(run, frameAt(1, base, time.Second))
	assert.Equal(t, []byte("annotated"), writer.images[path])
}

func TestEngineCameraLifecycle(t *testing.T) {
	cfg := testConfig()
	snk := newFakeSink()
	registry := camera.NewRegistry(snk)
	e := New(cfg, &fakeOracle{}, snk, newFakeWriter(), registry, nil)

	src := &scriptedSource{frames: []*Frame{
		frameAt(1, time.Now(), 0),
		frameAt(1, time.Now(), 100*time.Millisecond),
	}}
	info := CameraInfo{ID: 1, Name: "Main Camera"}
	require.NoError(t, e.StartCamera(info, src))

	// Starting twice is rejected
	assert.Error(t, e.StartCamera(info, src))

	// The scripted source hits EOF, so the pipeline winds down on its own
	require.Eventually(t, func() bool {
		state, ok := registry.Get(1)
		return ok && state.Status == camera.StatusOffline
	}, 2*time.Second, 10*time.Millisecond)

	// StopCamera drains the finished pipeline, after which the source is
	// guaranteed closed
	require.NoError(t, e.StopCamera(1))
	assert.True(t, src.closed)

	snk.mu.Lock()
	defer snk.mu.Unlock()
	assert.Contains(t, snk.activity, "Main Camera started")
	assert.Contains(t, snk.activity, "Main Camera stopped")
}
