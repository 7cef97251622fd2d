// Package engine implements the event-triggered recording and
// deduplication core: per-camera rolling frame buffers, the
// detection-to-clip correlation state machine and the cooldown policy
// that prevents alert storms.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/GabrielNarvadez/fire-detection/internal/camera"
	"github.com/GabrielNarvadez/fire-detection/internal/config"
)

// CameraInfo describes a camera the engine runs a pipeline for
type CameraInfo struct {
	ID       int
	Name     string
	Location camera.Location

	// Thermal marks simulated thermal cameras, which report a derived
	// temperature reading on every classification cycle
	Thermal bool
}

// Engine owns all mutable per-camera state: ring buffers, cooldown
// counters and pending clip slots. There is no package-level state; one
// Engine instance is one running system.
type Engine struct {
	cfg        config.Config
	classifier *Classifier
	cooldowns  *CooldownGovernor
	buffers    *BufferManager
	scheduler  *ClipScheduler

	oracle    Oracle
	sink      Sink
	writer    ArtifactWriter
	registry  *camera.Registry
	publisher EventPublisher // optional

	mu      sync.RWMutex
	cameras map[int]*cameraRun
	wg      sync.WaitGroup
}

// cameraRun is the per-camera pipeline state owned by its capture goroutine
type cameraRun struct {
	info   CameraInfo
	source Source
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Owned by the capture goroutine, no locking needed. Each camera has
	// its own snapshot counter.
	frameCount   int
	lastSnapshot int
}

// New creates an engine. The publisher may be nil.
func New(cfg config.Config, oracle Oracle, sink Sink, writer ArtifactWriter, registry *camera.Registry, publisher EventPublisher) *Engine {
	buffers := NewBufferManager(cfg.BufferHorizon())
	return &Engine{
		cfg:        cfg,
		classifier: NewClassifier(cfg.FireThreshold, cfg.SmokeThreshold),
		cooldowns:  NewCooldownGovernor(cfg.CooldownCycles),
		buffers:    buffers,
		scheduler:  NewClipScheduler(cfg.PreRoll, cfg.PostRoll, cfg.FallbackClipFPS, cfg.ClipDir, oracle, writer, sink, buffers),
		oracle:     oracle,
		sink:       sink,
		writer:     writer,
		registry:   registry,
		publisher:  publisher,
		cameras:    make(map[int]*cameraRun),
	}
}

// StartCamera begins the capture/classify pipeline for a camera. The
// engine takes ownership of the source and closes it when the pipeline
// stops.
func (e *Engine) StartCamera(info CameraInfo, source Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.cameras[info.ID]; exists {
		return fmt.Errorf("camera %d already started", info.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &cameraRun{
		info:   info,
		source: source,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	e.cameras[info.ID] = run

	e.registry.Add(camera.State{ID: info.ID, Name: info.Name, Location: info.Location})

	e.wg.Add(1)
	go e.runCamera(run)

	log.Printf("[Engine] Started pipeline for camera %d (%s)", info.ID, info.Name)
	return nil
}

// StopCamera halts a camera's pipeline and waits for it to drain
func (e *Engine) StopCamera(cameraID int) error {
	e.mu.Lock()
	run, exists := e.cameras[cameraID]
	if !exists {
		e.mu.Unlock()
		return fmt.Errorf("camera %d not found", cameraID)
	}
	delete(e.cameras, cameraID)
	e.mu.Unlock()

	run.cancel()
	<-run.done
	log.Printf("[Engine] Stopped pipeline for camera %d", cameraID)
	return nil
}

// Close stops all camera pipelines
func (e *Engine) Close() {
	e.mu.Lock()
	runs := make([]*cameraRun, 0, len(e.cameras))
	for id, run := range e.cameras {
		runs = append(runs, run)
		delete(e.cameras, id)
	}
	e.mu.Unlock()

	for _, run := range runs {
		run.cancel()
	}
	e.wg.Wait()
}

// runCamera is the capture loop for one camera. Pipelines are independent:
// a failure here transitions this camera offline and leaves the others
// untouched.
func (e *Engine) runCamera(run *cameraRun) {
	defer e.wg.Done()
	defer close(run.done)
	defer run.source.Close()

	info := run.info
	e.registry.SetStatus(info.ID, camera.StatusOnline, nil)
	e.recordActivity(fmt.Sprintf("%s started", info.Name))

	for {
		frame, err := run.source.Read(run.ctx)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled):
				// Clean shutdown
			case errors.Is(err, io.EOF):
				log.Printf("[Engine] Camera %d: end of stream", info.ID)
			default:
				log.Printf("[Engine] Camera %d: frame source failed: %v", info.ID, err)
			}
			break
		}
		e.step(run, frame)
	}

	e.registry.SetStatus(info.ID, camera.StatusOffline, nil)
	e.recordActivity(fmt.Sprintf("%s stopped", info.Name))
}

// step processes one captured frame: buffer it, poll the clip scheduler,
// run a classification cycle on every DetectStride-th frame, and refresh
// the live snapshot. The scheduler is polled on every tick so pending
// clips complete promptly even on non-classification frames. When the
// snapshot tick coincides with a classification cycle the annotated frame
// is written, so the dashboard shows bounding boxes live.
func (e *Engine) step(run *cameraRun, frame *Frame) {
	e.buffers.Push(frame)
	e.scheduler.Poll(run.ctx, run.info.ID, frame.Timestamp)

	run.frameCount++

	var annotated []byte
	if run.frameCount%e.cfg.DetectStride == 0 {
		annotated = e.classifyCycle(run.ctx, run.info, frame)
	}

	if run.frameCount-run.lastSnapshot >= e.cfg.SnapshotInterval {
		still := frame.Data
		if annotated != nil {
			still = annotated
		}
		path := filepath.Join(e.cfg.FrameDir, fmt.Sprintf("camera%d_live.jpg", run.info.ID))
		if err := e.writer.SaveImage(path, still); err != nil {
			log.Printf("[Engine] Camera %d: failed to write live snapshot: %v", run.info.ID, err)
		}
		run.lastSnapshot = run.frameCount
	}
}

// classifyCycle runs one classification cycle: oracle inference, the
// cooldown gate, the threshold decision and, for a qualifying open-gate
// event, persistence and clip scheduling. The gate is a save-suppression
// gate only: inference and auxiliary readings still run during cooldown.
// Returns the annotated frame, nil when the oracle call failed.
func (e *Engine) classifyCycle(ctx context.Context, info CameraInfo, frame *Frame) []byte {
	detections, annotated, err := e.oracle.InferAnnotated(ctx, frame.inferData())
	if err != nil {
		// Treated as "no detections this cycle"
		log.Printf("[Engine] Camera %d: oracle call failed: %v", info.ID, err)
		detections, annotated = nil, nil
	}

	result := e.classifier.Classify(detections)

	if e.cooldowns.Open(info.ID) {
		if decision := e.classifier.Decide(result); decision != nil {
			if e.logDetection(info, decision, frame, annotated) {
				e.cooldowns.Arm(info.ID)
			}
		}
	}
	e.cooldowns.Tick(info.ID)

	if info.Thermal {
		temp := 22 + result.MaxFireConfidence*100
		e.registry.SetStatus(info.ID, camera.StatusOnline, &temp)
	}
	return annotated
}

// logDetection persists the annotated still and the detection record,
// raises an alert above the alert threshold, and schedules the event clip.
// Returns true once the sink assigned a detection id; only then does the
// cooldown window arm.
func (e *Engine) logDetection(info CameraInfo, decision *Decision, frame *Frame, annotated []byte) bool {
	still := annotated
	if still == nil {
		still = frame.Data
	}

	name := fmt.Sprintf("camera%d_%s_%s.jpg", info.ID, decision.Class, frame.Timestamp.Format("20060102_150405"))
	imagePath := filepath.Join(e.cfg.ImageDir, name)
	if err := e.writer.SaveImage(imagePath, still); err != nil {
		// Recoverable: the record is still worth logging
		log.Printf("[Engine] Camera %d: failed to save detection image: %v", info.ID, err)
	}

	detectionID, err := e.sink.LogDetection(&DetectionRecord{
		CameraID:   info.ID,
		Class:      decision.Class,
		Confidence: decision.Confidence,
		Timestamp:  frame.Timestamp,
		ImagePath:  imagePath,
		Location:   info.Location.Name,
		Latitude:   info.Location.Latitude,
		Longitude:  info.Location.Longitude,
		CameraName: info.Name,
	})
	if err != nil {
		log.Printf("[Engine] Camera %d: failed to log detection: %v", info.ID, err)
		return false
	}

	log.Printf("[Engine] DETECTED %s on camera %d with confidence %.1f%% (detection %d)",
		strings.ToUpper(string(decision.Class)), info.ID, decision.Confidence*100, detectionID)

	if decision.Confidence >= e.cfg.AlertThreshold {
		level := "warning"
		if decision.Class == ClassFire {
			level = "critical"
		}
		message := fmt.Sprintf("%s detected at %s - Confidence: %.1f%%",
			strings.ToUpper(string(decision.Class)), info.Location.Name, decision.Confidence*100)
		if err := e.sink.CreateAlert(detectionID, level, message); err != nil {
			log.Printf("[Engine] Failed to create alert for detection %d: %v", detectionID, err)
		}
		e.recordActivity("ALERT: " + message)
	}

	e.scheduler.Schedule(info.ID, detectionID, frame.Timestamp)

	if e.publisher != nil {
		e.publisher.PublishDetection(&DetectionEvent{
			ID:         detectionID,
			CameraID:   info.ID,
			Class:      decision.Class,
			Confidence: decision.Confidence,
			Timestamp:  frame.Timestamp,
			ImagePath:  imagePath,
		})
	}
	return true
}

func (e *Engine) recordActivity(message string) {
	if err := e.sink.RecordActivity(message); err != nil {
		log.Printf("[Engine] Failed to record activity: %v", err)
	}
}
