package sink

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielNarvadez/fire-detection/internal/engine"
)

func testSink(t *testing.T) *SQLiteSink {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())
	return s
}

func sampleRecord(cameraID int, class engine.Class) *engine.DetectionRecord {
	return &engine.DetectionRecord{
		CameraID:   cameraID,
		Class:      class,
		Confidence: 0.88,
		Timestamp:  time.Now(),
		ImagePath:  "detected_images/test.jpg",
		Location:   "Lobby",
		Latitude:   14.5995,
		Longitude:  120.9842,
		CameraName: "Main Camera",
	}
}

func TestLogDetectionAssignsIncreasingIDs(t *testing.T) {
	s := testSink(t)

	id1, err := s.LogDetection(sampleRecord(1, engine.ClassFire))
	require.NoError(t, err)
	id2, err := s.LogDetection(sampleRecord(1, engine.ClassSmoke))
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	detections, err := s.ListDetections(10)
	require.NoError(t, err)
	require.Len(t, detections, 2)

	det, err := s.GetDetection(id1)
	require.NoError(t, err)
	require.NotNil(t, det)
	assert.Equal(t, "fire", det.Type)
	assert.Equal(t, "Lobby", det.Location)
	assert.InDelta(t, 0.88, det.Confidence, 1e-9)
}

func TestAttachClip(t *testing.T) {
	s := testSink(t)

	id, err := s.LogDetection(sampleRecord(1, engine.ClassFire))
	require.NoError(t, err)

	require.NoError(t, s.AttachClip(id, "detected_clips/camera1_det_1.mp4"))

	det, err := s.GetDetection(id)
	require.NoError(t, err)
	assert.Equal(t, "detected_clips/camera1_det_1.mp4", det.ClipPath)

	assert.Error(t, s.AttachClip(9999, "nope.mp4"))
}

func TestAlertLifecycle(t *testing.T) {
	s := testSink(t)

	id, err := s.LogDetection(sampleRecord(1, engine.ClassFire))
	require.NoError(t, err)
	require.NoError(t, s.CreateAlert(id, "critical", "FIRE detected at Lobby - Confidence: 88.0%"))

	alerts, err := s.ListAlerts(10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStatusActive, alerts[0].Status)
	assert.Equal(t, "critical", alerts[0].Level)

	require.NoError(t, s.UpdateAlertStatus(alerts[0].ID, AlertStatusAcknowledged))
	alerts, err = s.ListAlerts(10)
	require.NoError(t, err)
	assert.Equal(t, AlertStatusAcknowledged, alerts[0].Status)

	assert.Error(t, s.UpdateAlertStatus(alerts[0].ID, "bogus"))
	assert.Error(t, s.UpdateAlertStatus("missing-id", AlertStatusResponded))
}

func TestCameraStatusUpsert(t *testing.T) {
	s := testSink(t)

	require.NoError(t, s.SaveCamera(&CameraRow{ID: 1, Name: "Main Camera", Location: "Lobby"}))
	require.NoError(t, s.SetCameraStatus(1, "online", nil))

	temp := 42.0
	require.NoError(t, s.SetCameraStatus(1, "online", &temp))

	// A later update without a reading keeps the stored temperature
	require.NoError(t, s.SetCameraStatus(1, "offline", nil))

	cameras, err := s.ListCameras()
	require.NoError(t, err)
	require.Len(t, cameras, 1)
	assert.Equal(t, "Main Camera", cameras[0].Name)
	assert.Equal(t, "offline", cameras[0].Status)
	require.NotNil(t, cameras[0].Temperature)
	assert.InDelta(t, 42.0, *cameras[0].Temperature, 1e-9)

	// Unknown camera gets a placeholder row
	require.NoError(t, s.SetCameraStatus(9, "online", nil))
	cameras, err = s.ListCameras()
	require.NoError(t, err)
	require.Len(t, cameras, 2)
	assert.Equal(t, "Camera 9", cameras[1].Name)
}

func TestTodayStats(t *testing.T) {
	s := testSink(t)

	_, err := s.LogDetection(sampleRecord(1, engine.ClassFire))
	require.NoError(t, err)
	_, err = s.LogDetection(sampleRecord(1, engine.ClassFire))
	require.NoError(t, err)
	_, err = s.LogDetection(sampleRecord(2, engine.ClassSmoke))
	require.NoError(t, err)

	require.NoError(t, s.SetCameraStatus(1, "online", nil))
	require.NoError(t, s.SetCameraStatus(2, "offline", nil))

	stats, err := s.TodayStats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.DetectionsToday)
	assert.Equal(t, 2, stats.FireToday)
	assert.Equal(t, 1, stats.SmokeToday)
	assert.Equal(t, 1, stats.ActiveCameras)
}

func TestActivityFeed(t *testing.T) {
	s := testSink(t)

	require.NoError(t, s.RecordActivity("Fire detection system started"))
	require.NoError(t, s.RecordActivity("Main Camera started"))
	require.NoError(t, s.RecordActivity("Fire detection system stopped"))

	entries, err := s.ListActivity(10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	messages := make([]string, len(entries))
	for i, e := range entries {
		messages[i] = e.Message
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.Timestamp.IsZero())
	}
	assert.ElementsMatch(t, []string{
		"Fire detection system started",
		"Main Camera started",
		"Fire detection system stopped",
	}, messages)
}

func TestConfigRoundTrip(t *testing.T) {
	s := testSink(t)

	v, err := s.GetConfig("threshold")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SaveConfig("threshold", "0.7"))
	require.NoError(t, s.SaveConfig("threshold", "0.8"))

	v, err = s.GetConfig("threshold")
	require.NoError(t, err)
	assert.Equal(t, "0.8", v)
}

func TestUsers(t *testing.T) {
	s := testSink(t)

	hash, err := s.GetUserHash("alice")
	require.NoError(t, err)
	assert.Empty(t, hash)

	require.NoError(t, s.CreateUser("alice", "bcrypt-hash"))
	hash, err = s.GetUserHash("alice")
	require.NoError(t, err)
	assert.Equal(t, "bcrypt-hash", hash)

	assert.Error(t, s.CreateUser("alice", "other"), "usernames are unique")
}
