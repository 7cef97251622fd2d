package source

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielNarvadez/fire-detection/internal/engine"
)

// queueSource yields a fixed sequence then io.EOF
type queueSource struct {
	frames []*engine.Frame
	next   int
	closed bool
}

func (s *queueSource) Read(ctx context.Context) (*engine.Frame, error) {
	if s.next >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func (s *queueSource) Close() error {
	s.closed = true
	return nil
}

func TestBroadcasterFansOutAndRestamps(t *testing.T) {
	ts := time.Now()
	inner := &queueSource{frames: []*engine.Frame{
		{CameraID: 0, Data: []byte("a"), Timestamp: ts},
		{CameraID: 0, Data: []byte("b"), Timestamp: ts.Add(time.Second)},
	}}

	b := NewBroadcaster(inner)
	sub1 := b.Subscribe(1, 4)
	sub2 := b.Subscribe(2, 4)

	require.NoError(t, b.Run(context.Background()))
	assert.True(t, inner.closed)

	for want, sub := range map[int]engine.Source{1: sub1, 2: sub2} {
		f, err := sub.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, f.CameraID)
		assert.Equal(t, []byte("a"), f.Data)
		assert.Equal(t, ts, f.Timestamp)

		f, err = sub.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []byte("b"), f.Data)

		// Streams end once the broadcaster winds down
		_, err = sub.Read(context.Background())
		assert.ErrorIs(t, err, io.EOF)
	}
}

func TestBroadcasterDropsWhenSubscriberFull(t *testing.T) {
	inner := &queueSource{frames: []*engine.Frame{
		{Data: []byte("a"), Timestamp: time.Now()},
		{Data: []byte("b"), Timestamp: time.Now()},
		{Data: []byte("c"), Timestamp: time.Now()},
	}}

	b := NewBroadcaster(inner)
	sub := b.Subscribe(1, 1)

	require.NoError(t, b.Run(context.Background()))

	// Only the first frame fit the buffer
	f, err := sub.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), f.Data)

	_, err = sub.Read(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestSubscriptionReadHonorsContext(t *testing.T) {
	b := NewBroadcaster(&queueSource{})
	sub := b.Subscribe(1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sub.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
