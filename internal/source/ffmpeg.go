package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/GabrielNarvadez/fire-detection/internal/engine"
)

// FFmpegSource captures frames by running ffmpeg against a device or
// stream URL and reading MJPEG off its stdout pipe. Works for v4l2
// devices, RTSP cameras and HTTP streams.
type FFmpegSource struct {
	cameraID int
	device   string
	fps      int
	width    int
	height   int

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	buf     []byte
	chunk   []byte
	started bool
}

// NewFFmpegSource creates a source for the given device. Width and height
// are only used for v4l2 devices.
func NewFFmpegSource(cameraID int, device string, fps, width, height int) *FFmpegSource {
	return &FFmpegSource{
		cameraID: cameraID,
		device:   device,
		fps:      fps,
		width:    width,
		height:   height,
		buf:      make([]byte, 0, 1024*1024),
		chunk:    make([]byte, 8192),
	}
}

func (s *FFmpegSource) start(ctx context.Context) error {
	var args []string
	switch {
	case strings.HasPrefix(s.device, "rtsp://"):
		args = []string{
			"-rtsp_transport", "tcp",
			"-i", s.device,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", s.fps),
			"-q:v", "5",
			"-",
		}
	case strings.HasPrefix(s.device, "http://"), strings.HasPrefix(s.device, "https://"):
		args = []string{
			"-i", s.device,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", s.fps),
			"-q:v", "5",
			"-",
		}
	default:
		// V4L2 device (USB camera)
		args = []string{
			"-f", "v4l2",
			"-video_size", fmt.Sprintf("%dx%d", s.width, s.height),
			"-framerate", fmt.Sprintf("%d", s.fps),
			"-i", s.device,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-q:v", "5",
			"-",
		}
	}

	s.cmd = exec.Command("ffmpeg", args...)

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := s.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	s.stdout = stdout
	s.started = true

	// Drain stderr so ffmpeg never blocks on a full pipe
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
		}
	}()

	// Kill the child when the capture context ends, which unblocks any
	// Read stuck on the pipe
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if s.cmd != nil && s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		s.mu.Unlock()
	}()

	return nil
}

// Read returns the next captured frame, stamped at read time. io.EOF
// signals the stream ended (device unplugged, ffmpeg exited).
func (s *FFmpegSource) Read(ctx context.Context) (*engine.Frame, error) {
	s.mu.Lock()
	if !s.started {
		if err := s.start(ctx); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	stdout := s.stdout
	s.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if frame := nextJPEGFrame(&s.buf); frame != nil {
			return &engine.Frame{
				CameraID:  s.cameraID,
				Data:      frame,
				Timestamp: time.Now(),
			}, nil
		}

		n, err := stdout.Read(s.chunk)
		if n > 0 {
			s.buf = append(s.buf, s.chunk[:n]...)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("ffmpeg pipe read failed: %w", err)
		}
	}
}

// Close terminates the ffmpeg child process
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
		s.cmd.Wait()
	}
	return nil
}

// nextJPEGFrame extracts one complete JPEG (FFD8..FFD9) from the front of
// buf, consuming it, or returns nil if none is complete yet.
func nextJPEGFrame(buf *[]byte) []byte {
	b := *buf
	if len(b) < 4 {
		return nil
	}

	start := -1
	for i := 0; i < len(b)-1; i++ {
		if b[i] == 0xFF && b[i+1] == 0xD8 {
			start = i
			break
		}
	}
	if start == -1 {
		return nil
	}

	end := -1
	for i := start + 2; i < len(b)-1; i++ {
		if b[i] == 0xFF && b[i+1] == 0xD9 {
			end = i + 2
			break
		}
	}
	if end == -1 {
		return nil
	}

	frame := make([]byte, end-start)
	copy(frame, b[start:end])
	*buf = b[end:]
	return frame
}

var _ engine.Source = (*FFmpegSource)(nil)
