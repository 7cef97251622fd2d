package engine

import (
	"sync"
	"time"
)

// RingBuffer keeps a bounded, time-ordered window of recent frames for one
// camera. Frames are evicted from the front whenever a push would leave an
// entry older than the retention horizon.
type RingBuffer struct {
	horizon time.Duration
	mu      sync.Mutex
	frames  []*Frame
}

// NewRingBuffer creates a buffer retaining frames for the given horizon
func NewRingBuffer(horizon time.Duration) *RingBuffer {
	return &RingBuffer{horizon: horizon}
}

// Push appends a private copy of the frame and evicts entries older than
// the horizon, measured from the pushed frame's capture timestamp.
func (b *RingBuffer) Push(f *Frame) {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)

	buffered := &Frame{
		CameraID:  f.CameraID,
		Data:      data,
		Timestamp: f.Timestamp,
	}

	cutoff := f.Timestamp.Add(-b.horizon)

	b.mu.Lock()
	b.frames = append(b.frames, buffered)
	evict := 0
	for evict < len(b.frames) && b.frames[evict].Timestamp.Before(cutoff) {
		evict++
	}
	if evict > 0 {
		remaining := len(b.frames) - evict
		copy(b.frames, b.frames[evict:])
		for i := remaining; i < len(b.frames); i++ {
			b.frames[i] = nil
		}
		b.frames = b.frames[:remaining]
	}
	b.mu.Unlock()
}

// ExtractWindow returns all frames with start <= timestamp <= end in
// timestamp order. If no frame falls inside the bounds the entire current
// buffer is returned as a degraded fallback; an empty buffer yields nil.
// The returned slice is a snapshot and safe against concurrent pushes.
func (b *RingBuffer) ExtractWindow(start, end time.Time) []*Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) == 0 {
		return nil
	}

	var selected []*Frame
	for _, f := range b.frames {
		if !f.Timestamp.Before(start) && !f.Timestamp.After(end) {
			selected = append(selected, f)
		}
	}
	if selected == nil {
		selected = make([]*Frame, len(b.frames))
		copy(selected, b.frames)
	}
	return selected
}

// Len returns the number of buffered frames
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Oldest returns the capture timestamp of the oldest retained frame
func (b *RingBuffer) Oldest() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) == 0 {
		return time.Time{}, false
	}
	return b.frames[0].Timestamp, true
}

// BufferManager owns one ring buffer per camera. Buffers are created on the
// first push and live for the engine lifetime.
type BufferManager struct {
	horizon time.Duration
	mu      sync.RWMutex
	buffers map[int]*RingBuffer
}

// NewBufferManager creates a manager whose buffers retain the given horizon
func NewBufferManager(horizon time.Duration) *BufferManager {
	return &BufferManager{
		horizon: horizon,
		buffers: make(map[int]*RingBuffer),
	}
}

// Push appends a frame to the camera's buffer, creating it if needed
func (m *BufferManager) Push(f *Frame) {
	m.mu.RLock()
	buf, ok := m.buffers[f.CameraID]
	m.mu.RUnlock()

	if !ok {
		m.mu.Lock()
		buf, ok = m.buffers[f.CameraID]
		if !ok {
			buf = NewRingBuffer(m.horizon)
			m.buffers[f.CameraID] = buf
		}
		m.mu.Unlock()
	}

	buf.Push(f)
}

// ExtractWindow extracts the [start, end] window from a camera's buffer.
// An unknown camera yields nil.
func (m *BufferManager) ExtractWindow(cameraID int, start, end time.Time) []*Frame {
	m.mu.RLock()
	buf, ok := m.buffers[cameraID]
	m.mu.RUnlock()

	if !ok {
		return nil
	}
	return buf.ExtractWindow(start, end)
}

// Buffer returns the ring buffer for a camera, if it exists
func (m *BufferManager) Buffer(cameraID int) (*RingBuffer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	buf, ok := m.buffers[cameraID]
	return buf, ok
}
