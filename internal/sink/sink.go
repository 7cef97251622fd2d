// Package sink persists detections, alerts, activity and camera status to
// SQLite, the durable side of the detection engine. Detection ids are
// assigned here and are monotonically increasing for the database
// lifetime.
package sink

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/GabrielNarvadez/fire-detection/internal/camera"
	"github.com/GabrielNarvadez/fire-detection/internal/engine"
)

// SQLiteSink implements the engine's event sink and the registry's
// notifier over a single SQLite database shared with the dashboard.
type SQLiteSink struct {
	db *sql.DB
}

// DetectionRow is a persisted detection
type DetectionRow struct {
	ID         int64     `json:"id"`
	CameraID   int       `json:"camera_id"`
	Type       string    `json:"detection_type"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
	ImagePath  string    `json:"image_path"`
	ClipPath   string    `json:"clip_path,omitempty"`
	Location   string    `json:"location"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	CameraName string    `json:"camera_name"`
}

// AlertRow is a persisted alert
type AlertRow struct {
	ID          string    `json:"id"`
	DetectionID int64     `json:"detection_id"`
	Level       string    `json:"level"`
	Message     string    `json:"message"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

// ActivityRow is a persisted activity log entry
type ActivityRow struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// CameraRow is a persisted camera
type CameraRow struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	Location    string     `json:"location"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	Status      string     `json:"status"`
	Temperature *float64   `json:"temperature,omitempty"`
	LastUpdate  *time.Time `json:"last_update,omitempty"`
}

// StatsRow holds the daily counters plus the live camera count
type StatsRow struct {
	Date            string `json:"date"`
	DetectionsToday int    `json:"detections_today"`
	FireToday       int    `json:"fire_today"`
	SmokeToday      int    `json:"smoke_today"`
	ActiveCameras   int    `json:"active_cameras"`
}

// Alert lifecycle statuses
const (
	AlertStatusActive       = "active"
	AlertStatusAcknowledged = "acknowledged"
	AlertStatusResponded    = "responded"
)

// New opens (or creates) the database at dbPath
func New(dbPath string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist
func (s *SQLiteSink) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS cameras (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			location TEXT,
			latitude REAL,
			longitude REAL,
			status TEXT DEFAULT 'offline',
			temperature REAL,
			last_update DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS detections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			camera_id INTEGER NOT NULL,
			detection_type TEXT NOT NULL,
			confidence REAL NOT NULL,
			timestamp DATETIME NOT NULL,
			image_path TEXT,
			clip_path TEXT,
			location TEXT,
			latitude REAL,
			longitude REAL,
			camera_name TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			detection_id INTEGER NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			status TEXT DEFAULT 'active',
			timestamp DATETIME NOT NULL,
			FOREIGN KEY (detection_id) REFERENCES detections(id)
		)`,
		`CREATE TABLE IF NOT EXISTS activity (
			id TEXT PRIMARY KEY,
			message TEXT NOT NULL,
			timestamp DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS stats (
			date TEXT PRIMARY KEY,
			detections_today INTEGER DEFAULT 0,
			fire_today INTEGER DEFAULT 0,
			smoke_today INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS app_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_camera_time ON detections(camera_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_time ON detections(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status, timestamp DESC)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// LogDetection records a detection and returns its assigned id
func (s *SQLiteSink) LogDetection(rec *engine.DetectionRecord) (int64, error) {
	query := `INSERT INTO detections
		(camera_id, detection_type, confidence, timestamp, image_path, location, latitude, longitude, camera_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.Exec(query, rec.CameraID, string(rec.Class), rec.Confidence,
		rec.Timestamp, rec.ImagePath, rec.Location, rec.Latitude, rec.Longitude, rec.CameraName)
	if err != nil {
		return 0, fmt.Errorf("failed to log detection: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read detection id: %w", err)
	}

	if err := s.bumpStats(rec.Timestamp, rec.Class); err != nil {
		// Stats are best-effort; the detection itself is already durable
		return id, nil
	}
	return id, nil
}

func (s *SQLiteSink) bumpStats(ts time.Time, class engine.Class) error {
	fire, smoke := 0, 0
	if class == engine.ClassFire {
		fire = 1
	} else {
		smoke = 1
	}
	query := `INSERT INTO stats (date, detections_today, fire_today, smoke_today)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			detections_today = detections_today + 1,
			fire_today = fire_today + excluded.fire_today,
			smoke_today = smoke_today + excluded.smoke_today`
	_, err := s.db.Exec(query, ts.Format("2006-01-02"), fire, smoke)
	return err
}

// AttachClip attaches a rendered clip path to an existing detection
func (s *SQLiteSink) AttachClip(detectionID int64, clipPath string) error {
	result, err := s.db.Exec("UPDATE detections SET clip_path = ? WHERE id = ?", clipPath, detectionID)
	if err != nil {
		return fmt.Errorf("failed to attach clip: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("detection %d not found", detectionID)
	}
	return nil
}

// CreateAlert records an alert for a detection
func (s *SQLiteSink) CreateAlert(detectionID int64, level, message string) error {
	query := `INSERT INTO alerts (id, detection_id, level, message, status, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query, uuid.New().String(), detectionID, level, message, AlertStatusActive, time.Now())
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// UpdateAlertStatus advances an alert's lifecycle status
func (s *SQLiteSink) UpdateAlertStatus(alertID, status string) error {
	switch status {
	case AlertStatusActive, AlertStatusAcknowledged, AlertStatusResponded:
	default:
		return fmt.Errorf("invalid alert status %q", status)
	}

	result, err := s.db.Exec("UPDATE alerts SET status = ? WHERE id = ?", status, alertID)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %s not found", alertID)
	}
	return nil
}

// RecordActivity appends an entry to the activity log
func (s *SQLiteSink) RecordActivity(message string) error {
	query := `INSERT INTO activity (id, message, timestamp) VALUES (?, ?, ?)`
	if _, err := s.db.Exec(query, uuid.New().String(), message, time.Now()); err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// SetCameraStatus updates a camera's status and optional temperature
// reading, creating the row if the camera is unknown
func (s *SQLiteSink) SetCameraStatus(cameraID int, status string, temperature *float64) error {
	query := `INSERT INTO cameras (id, name, status, temperature, last_update)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			temperature = COALESCE(excluded.temperature, cameras.temperature),
			last_update = CURRENT_TIMESTAMP`
	_, err := s.db.Exec(query, cameraID, fmt.Sprintf("Camera %d", cameraID), status, temperature)
	if err != nil {
		return fmt.Errorf("failed to set camera status: %w", err)
	}
	return nil
}

// SaveCamera saves or updates a camera's metadata
func (s *SQLiteSink) SaveCamera(cam *CameraRow) error {
	query := `INSERT INTO cameras (id, name, location, latitude, longitude, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			location = excluded.location,
			latitude = excluded.latitude,
			longitude = excluded.longitude`
	status := cam.Status
	if status == "" {
		status = string(camera.StatusOffline)
	}
	if _, err := s.db.Exec(query, cam.ID, cam.Name, cam.Location, cam.Latitude, cam.Longitude, status); err != nil {
		return fmt.Errorf("failed to save camera: %w", err)
	}
	return nil
}

// ListCameras returns all cameras ordered by id
func (s *SQLiteSink) ListCameras() ([]*CameraRow, error) {
	rows, err := s.db.Query(`SELECT id, name, location, latitude, longitude, status, temperature, last_update
		FROM cameras ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cameras: %w", err)
	}
	defer rows.Close()

	var cameras []*CameraRow
	for rows.Next() {
		var cam CameraRow
		var location sql.NullString
		var lat, lon, temp sql.NullFloat64
		var lastUpdate sql.NullTime
		if err := rows.Scan(&cam.ID, &cam.Name, &location, &lat, &lon, &cam.Status, &temp, &lastUpdate); err != nil {
			return nil, fmt.Errorf("failed to scan camera: %w", err)
		}
		cam.Location = location.String
		cam.Latitude = lat.Float64
		cam.Longitude = lon.Float64
		if temp.Valid {
			cam.Temperature = &temp.Float64
		}
		if lastUpdate.Valid {
			cam.LastUpdate = &lastUpdate.Time
		}
		cameras = append(cameras, &cam)
	}
	return cameras, rows.Err()
}

// ListDetections returns the most recent detections, newest first
func (s *SQLiteSink) ListDetections(limit int) ([]*DetectionRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT id, camera_id, detection_type, confidence, timestamp,
			image_path, clip_path, location, latitude, longitude, camera_name
		FROM detections ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list detections: %w", err)
	}
	defer rows.Close()

	var detections []*DetectionRow
	for rows.Next() {
		var det DetectionRow
		var imagePath, clipPath, location, cameraName sql.NullString
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&det.ID, &det.CameraID, &det.Type, &det.Confidence, &det.Timestamp,
			&imagePath, &clipPath, &location, &lat, &lon, &cameraName); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		det.ImagePath = imagePath.String
		det.ClipPath = clipPath.String
		det.Location = location.String
		det.Latitude = lat.Float64
		det.Longitude = lon.Float64
		det.CameraName = cameraName.String
		detections = append(detections, &det)
	}
	return detections, rows.Err()
}

// GetDetection returns one detection by id, or nil if absent
func (s *SQLiteSink) GetDetection(id int64) (*DetectionRow, error) {
	var det DetectionRow
	var imagePath, clipPath, location, cameraName sql.NullString
	var lat, lon sql.NullFloat64
	err := s.db.QueryRow(`SELECT id, camera_id, detection_type, confidence, timestamp,
			image_path, clip_path, location, latitude, longitude, camera_name
		FROM detections WHERE id = ?`, id).
		Scan(&det.ID, &det.CameraID, &det.Type, &det.Confidence, &det.Timestamp,
			&imagePath, &clipPath, &location, &lat, &lon, &cameraName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get detection: %w", err)
	}
	det.ImagePath = imagePath.String
	det.ClipPath = clipPath.String
	det.Location = location.String
	det.Latitude = lat.Float64
	det.Longitude = lon.Float64
	det.CameraName = cameraName.String
	return &det, nil
}

// ListAlerts returns the most recent alerts, newest first
func (s *SQLiteSink) ListAlerts(limit int) ([]*AlertRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT id, detection_id, level, message, status, timestamp
		FROM alerts ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*AlertRow
	for rows.Next() {
		var alert AlertRow
		if err := rows.Scan(&alert.ID, &alert.DetectionID, &alert.Level, &alert.Message, &alert.Status, &alert.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, &alert)
	}
	return alerts, rows.Err()
}

// ListActivity returns the most recent activity entries, newest first
func (s *SQLiteSink) ListActivity(limit int) ([]*ActivityRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT id, message, timestamp FROM activity
		ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var entries []*ActivityRow
	for rows.Next() {
		var entry ActivityRow
		if err := rows.Scan(&entry.ID, &entry.Message, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// TodayStats returns today's counters and the live camera count
func (s *SQLiteSink) TodayStats() (*StatsRow, error) {
	stats := &StatsRow{Date: time.Now().Format("2006-01-02")}

	err := s.db.QueryRow(`SELECT detections_today, fire_today, smoke_today FROM stats WHERE date = ?`, stats.Date).
		Scan(&stats.DetectionsToday, &stats.FireToday, &stats.SmokeToday)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM cameras WHERE status = 'online'`).Scan(&stats.ActiveCameras); err != nil {
		return nil, fmt.Errorf("failed to count active cameras: %w", err)
	}
	return stats, nil
}

// SaveConfig saves a configuration override
func (s *SQLiteSink) SaveConfig(key, value string) error {
	query := `INSERT INTO app_config (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`
	if _, err := s.db.Exec(query, key, value); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// GetConfig retrieves a configuration override, empty string if unset
func (s *SQLiteSink) GetConfig(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM app_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config: %w", err)
	}
	return value, nil
}

// CreateUser stores a dashboard user with a pre-hashed password
func (s *SQLiteSink) CreateUser(username, passwordHash string) error {
	if _, err := s.db.Exec("INSERT INTO users (username, password_hash) VALUES (?, ?)", username, passwordHash); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserHash returns a user's password hash, empty string if unknown
func (s *SQLiteSink) GetUserHash(username string) (string, error) {
	var hash string
	err := s.db.QueryRow("SELECT password_hash FROM users WHERE username = ?", username).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	return hash, nil
}

// Interface checks against the collaborator contracts
var (
	_ engine.Sink     = (*SQLiteSink)(nil)
	_ camera.Notifier = (*SQLiteSink)(nil)
)
