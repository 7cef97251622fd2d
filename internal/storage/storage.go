// Package storage persists detection artifacts: annotated stills and
// event clips. Frames are JPEG end to end, so stills are plain writes and
// clips are muxed by an ffmpeg child process fed over a pipe.
package storage

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/GabrielNarvadez/fire-detection/internal/engine"
)

// Store writes stills and clips to the local filesystem
type Store struct {
	ffmpegPath string
}

// NewStore creates a store and prepares the artifact directories
func NewStore(dirs ...string) (*Store, error) {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
		}
	}
	return &Store{ffmpegPath: "ffmpeg"}, nil
}

// SaveImage writes a JPEG still to path
func (s *Store) SaveImage(path string, jpeg []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, jpeg, 0o644); err != nil {
		return fmt.Errorf("failed to write image %s: %w", path, err)
	}
	return nil
}

// WriteVideo muxes JPEG frames into an mp4 clip at the given frame rate.
// The fps is derived by the scheduler so playback duration approximates
// the real capture window.
func (s *Store) WriteVideo(path string, fps float64, frames [][]byte) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames to write to %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	cmd := exec.Command(s.ffmpegPath,
		"-y",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-framerate", fmt.Sprintf("%.3f", fps),
		"-i", "-",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		path,
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create ffmpeg stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var writeErr error
	for _, frame := range frames {
		if _, err := stdin.Write(frame); err != nil {
			writeErr = err
			break
		}
	}
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg mux failed for %s: %w", path, err)
	}
	if writeErr != nil {
		return fmt.Errorf("failed to feed frames to ffmpeg: %w", writeErr)
	}
	return nil
}

// Ensure Store implements the engine's writer contract
var _ engine.ArtifactWriter = (*Store)(nil)
