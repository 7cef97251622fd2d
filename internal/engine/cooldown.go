package engine

import "sync"

// DefaultCooldownCycles is the suppression window after a logged event,
// counted in classification cycles rather than wall-clock time so the
// window stays proportional under varying frame rates.
const DefaultCooldownCycles = 300

// CooldownGovernor suppresses re-logging of events per camera for a fixed
// number of classification cycles after a logged detection, so a sustained
// fire produces one alert instead of a storm.
type CooldownGovernor struct {
	cycles   int
	mu       sync.Mutex
	counters map[int]int
}

// NewCooldownGovernor creates a governor with the given suppression window
func NewCooldownGovernor(cycles int) *CooldownGovernor {
	return &CooldownGovernor{
		cycles:   cycles,
		counters: make(map[int]int),
	}
}

// Open reports whether the camera's gate is open, i.e. a new event may be
// logged this cycle. Checked before the classifier's decision step.
func (g *CooldownGovernor) Open(cameraID int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counters[cameraID] <= 0
}

// Arm starts the suppression window for a camera after an event was logged
func (g *CooldownGovernor) Arm(cameraID int) {
	g.mu.Lock()
	g.counters[cameraID] = g.cycles
	g.mu.Unlock()
}

// Tick advances the countdown by one classification cycle. Called once per
// cycle, after the gate check, including the cycle that armed the window.
func (g *CooldownGovernor) Tick(cameraID int) {
	g.mu.Lock()
	if g.counters[cameraID] > 0 {
		g.counters[cameraID]--
	}
	g.mu.Unlock()
}

// Remaining returns the cycles left in the camera's suppression window
func (g *CooldownGovernor) Remaining(cameraID int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counters[cameraID]
}
