package core

import (
	"sync"
	"time"

	"poollight-controller/internal/fixture"
)

// State holds the single source of truth for the device. All relay-affecting
// mutations happen on the agent's loop goroutine; the mutex only guards
// snapshot reads from the web server and status reporter.
type State struct {
	mu          sync.RWMutex
	Power       bool
	Programming bool
	// PendingScene is the scene queued for the next programming cycle.
	PendingScene fixture.Scene
	// CurrentScene is only trusted after a programming cycle fully
	// completes; it is SceneUnknown after boot and stays stale after a
	// cancelled cycle.
	CurrentScene fixture.Scene
	Connected    bool
	RSSI         int
	RunningShow  string
	LastChange   time.Time
}

// NewState creates a new State instance.
func NewState() *State {
	return &State{}
}

// Clone returns a snapshot of the current state for safe reading.
func (s *State) Clone() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Power:        s.Power,
		Programming:  s.Programming,
		PendingScene: s.PendingScene,
		CurrentScene: s.CurrentScene,
		Connected:    s.Connected,
		RSSI:         s.RSSI,
		RunningShow:  s.RunningShow,
		LastChange:   s.LastChange,
	}
}

// SetPower updates the relay power state.
func (s *State) SetPower(on bool, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Power = on
	s.LastChange = now
}

// StartProgramming marks a programming cycle as requested.
func (s *State) StartProgramming(scene fixture.Scene, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Programming = true
	s.PendingScene = scene
	s.LastChange = now
}

// CancelProgramming abandons the pending cycle. CurrentScene is left as-is:
// without a completed pulse train the fixture's decoder state is unknowable.
func (s *State) CancelProgramming(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Programming = false
	s.PendingScene = fixture.SceneUnknown
	s.LastChange = now
}

// CompleteProgramming records a fully delivered pulse train. The train
// leaves the fixture powered on.
func (s *State) CompleteProgramming(scene fixture.Scene, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Programming = false
	s.PendingScene = fixture.SceneUnknown
	s.CurrentScene = scene
	s.Power = true
	s.LastChange = now
}

// SetConnection updates broker link state.
func (s *State) SetConnection(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Connected = connected
}

// SetRSSI updates the last sampled signal strength in dBm.
func (s *State) SetRSSI(dbm int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RSSI = dbm
}

// SetRunningShow updates the name of the running show script.
func (s *State) SetRunningShow(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RunningShow = name
}
