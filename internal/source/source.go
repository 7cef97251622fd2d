// Package source implements frame source adapters: an ffmpeg-backed
// capture pipe, an HTTP snapshot poller, a broadcaster that fans one
// physical capture out to multiple cameras, and the simulated thermal
// camera transform.
package source

import (
	"context"
	"io"
	"log"
	"sync"

	"github.com/GabrielNarvadez/fire-detection/internal/engine"
)

// Broadcaster fans frames from one physical source out to multiple
// subscribers, so several logical cameras (e.g. visual + simulated
// thermal) can share a single capture device. Slow subscribers drop
// frames rather than stalling the capture loop.
type Broadcaster struct {
	inner engine.Source

	mu     sync.Mutex
	subs   map[*subscription]bool
	closed bool
}

type subscription struct {
	cameraID int
	frames   chan *engine.Frame
	parent   *Broadcaster
}

// NewBroadcaster wraps a source for fan-out. Call Run to start pumping.
func NewBroadcaster(inner engine.Source) *Broadcaster {
	return &Broadcaster{
		inner: inner,
		subs:  make(map[*subscription]bool),
	}
}

// Subscribe returns a source yielding the broadcaster's frames restamped
// with the given camera id. Must be called before Run.
func (b *Broadcaster) Subscribe(cameraID int, bufferSize int) engine.Source {
	if bufferSize <= 0 {
		bufferSize = 5
	}
	sub := &subscription{
		cameraID: cameraID,
		frames:   make(chan *engine.Frame, bufferSize),
		parent:   b,
	}

	b.mu.Lock()
	b.subs[sub] = true
	b.mu.Unlock()
	return sub
}

// Run pumps the inner source until it ends or ctx is cancelled, then
// closes all subscriber streams. The inner source's error is returned
// except for a clean end of stream.
func (b *Broadcaster) Run(ctx context.Context) error {
	defer b.closeAll()

	for {
		frame, err := b.inner.Read(ctx)
		if err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return err
		}

		b.mu.Lock()
		for sub := range b.subs {
			restamped := &engine.Frame{
				CameraID:  sub.cameraID,
				Data:      frame.Data,
				Timestamp: frame.Timestamp,
			}
			select {
			case sub.frames <- restamped:
			default:
				// Subscriber is slow, drop the frame
			}
		}
		b.mu.Unlock()
	}
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.frames)
		delete(b.subs, sub)
	}
	if err := b.inner.Close(); err != nil {
		log.Printf("[Source] Failed to close broadcast source: %v", err)
	}
}

func (s *subscription) Read(ctx context.Context) (*engine.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame, ok := <-s.frames:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	}
}

func (s *subscription) Close() error {
	s.parent.mu.Lock()
	delete(s.parent.subs, s)
	s.parent.mu.Unlock()
	return nil
}

var _ engine.Source = (*subscription)(nil)
