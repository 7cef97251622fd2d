// Package config holds the engine and daemon configuration.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config contains all tunables for the detection engine and its
// collaborators. Zero values are invalid; start from Default().
type Config struct {
	// Clip window around a trigger
	PreRoll      time.Duration
	PostRoll     time.Duration
	BufferMargin time.Duration // Extra retention beyond the clip window

	// Classification thresholds
	FireThreshold  float64
	SmokeThreshold float64
	AlertThreshold float64 // Minimum confidence for an alert record

	// DetectStride runs classification on every Nth captured frame
	DetectStride int

	// CooldownCycles suppresses event logging for this many classification
	// cycles after a logged detection
	CooldownCycles int

	// SnapshotInterval writes a live dashboard frame every Nth frame
	SnapshotInterval int

	// FallbackClipFPS is used when a clip selects at most one frame
	FallbackClipFPS float64

	// Artifact directories
	ImageDir string
	ClipDir  string
	FrameDir string

	// Collaborator endpoints
	DatabasePath   string
	OracleEndpoint string
	HTTPAddr       string

	// Dashboard session tokens. An empty secret means an ephemeral
	// per-process one.
	JWTSecret string
	JWTExpiry time.Duration
}

// Default returns the stock configuration, matching the deployed policy:
// 1s pre-roll, 4s post-roll, 2s margin, fire 0.70 / smoke 0.65, alerts at
// 0.60, classification every 5th frame, 300-cycle cooldown.
func Default() Config {
	return Config{
		PreRoll:          1 * time.Second,
		PostRoll:         4 * time.Second,
		BufferMargin:     2 * time.Second,
		FireThreshold:    0.70,
		SmokeThreshold:   0.65,
		AlertThreshold:   0.60,
		DetectStride:     5,
		CooldownCycles:   300,
		SnapshotInterval: 10,
		FallbackClipFPS:  10,
		ImageDir:         "detected_images",
		ClipDir:          "detected_clips",
		FrameDir:         "camera_frames",
		DatabasePath:     envOr("FIREDETECT_DB", "fire_detection.db"),
		OracleEndpoint:   envOr("FIREDETECT_ORACLE", "http://localhost:8500"),
		HTTPAddr:         envOr("FIREDETECT_HTTP", ":8000"),
		JWTSecret:        envOr("FIREDETECT_JWT_SECRET", ""),
		JWTExpiry:        durationEnvOr("FIREDETECT_JWT_EXPIRY", 24*time.Hour),
	}
}

// BufferHorizon is the ring buffer retention window
func (c *Config) BufferHorizon() time.Duration {
	return c.PreRoll + c.PostRoll + c.BufferMargin
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	if c.PreRoll < 0 || c.PostRoll <= 0 {
		return fmt.Errorf("invalid clip window: preRoll=%s postRoll=%s", c.PreRoll, c.PostRoll)
	}
	if c.FireThreshold <= 0 || c.FireThreshold > 1 || c.SmokeThreshold <= 0 || c.SmokeThreshold > 1 {
		return fmt.Errorf("thresholds must be in (0,1]: fire=%.2f smoke=%.2f", c.FireThreshold, c.SmokeThreshold)
	}
	if c.DetectStride < 1 {
		return fmt.Errorf("detect stride must be >= 1, got %d", c.DetectStride)
	}
	if c.CooldownCycles < 0 {
		return fmt.Errorf("cooldown cycles must be >= 0, got %d", c.CooldownCycles)
	}
	if c.SnapshotInterval < 1 {
		return fmt.Errorf("snapshot interval must be >= 1, got %d", c.SnapshotInterval)
	}
	if c.FallbackClipFPS <= 0 {
		return fmt.Errorf("fallback clip fps must be > 0, got %.1f", c.FallbackClipFPS)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnvOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
