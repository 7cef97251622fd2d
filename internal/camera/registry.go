// Package camera holds per-camera state and status transitions.
package camera

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Status is a camera's last known reachability
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Location describes where a camera is installed
type Location struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// State is the registry's view of one camera
type State struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Location    Location  `json:"location"`
	Status      Status    `json:"status"`
	Temperature *float64  `json:"temperature,omitempty"` // Auxiliary reading (simulated thermal cameras)
	LastUpdate  time.Time `json:"last_update"`
}

// Notifier receives registry-side persistence calls. Errors are logged at
// this boundary and never propagate to callers.
type Notifier interface {
	SetCameraStatus(cameraID int, status string, temperature *float64) error
	RecordActivity(message string) error
}

// Registry holds CameraState per camera. It is the only component that
// mutates camera state; everything else reads through Get/List.
type Registry struct {
	notifier Notifier
	mu       sync.RWMutex
	cameras  map[int]*State
}

// NewRegistry creates a registry reporting transitions to the notifier
func NewRegistry(notifier Notifier) *Registry {
	return &Registry{
		notifier: notifier,
		cameras:  make(map[int]*State),
	}
}

// Add registers a camera. Status starts offline until the first SetStatus.
func (r *Registry) Add(state State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state.Status == "" {
		state.Status = StatusOffline
	}
	s := state
	r.cameras[state.ID] = &s
}

// SetStatus updates a camera's status and optional auxiliary temperature
// reading. The activity notification fires exactly once per online/offline
// transition: re-setting the same status is a no-op for the activity log,
// though the persisted status row is refreshed on every call.
func (r *Registry) SetStatus(cameraID int, status Status, temperature *float64) {
	r.mu.Lock()
	state, ok := r.cameras[cameraID]
	if !ok {
		state = &State{ID: cameraID, Name: fmt.Sprintf("Camera %d", cameraID), Status: StatusOffline}
		r.cameras[cameraID] = state
	}

	transitioned := state.Status != status
	state.Status = status
	if temperature != nil {
		state.Temperature = temperature
	}
	state.LastUpdate = time.Now()
	name := state.Name
	r.mu.Unlock()

	if err := r.notifier.SetCameraStatus(cameraID, string(status), temperature); err != nil {
		log.Printf("[Registry] Failed to persist status for camera %d: %v", cameraID, err)
	}

	if transitioned {
		verb := "came online"
		if status == StatusOffline {
			verb = "went offline"
		}
		if err := r.notifier.RecordActivity(fmt.Sprintf("%s %s", name, verb)); err != nil {
			log.Printf("[Registry] Failed to record activity for camera %d: %v", cameraID, err)
		}
	}
}

// Get returns a copy of a camera's state
func (r *Registry) Get(cameraID int) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.cameras[cameraID]
	if !ok {
		return State{}, false
	}
	return *state, true
}

// List returns a copy of all camera states ordered by id
func (r *Registry) List() []State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make([]State, 0, len(r.cameras))
	for _, s := range r.cameras {
		states = append(states, *s)
	}
	for i := 1; i < len(states); i++ {
		for j := i; j > 0 && states[j].ID < states[j-1].ID; j-- {
			states[j], states[j-1] = states[j-1], states[j]
		}
	}
	return states
}
