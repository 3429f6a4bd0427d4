package agent

import "github.com/rs/zerolog"

// SwitchReader reads the debounced position of the wall switch.
type SwitchReader interface {
	Pressed() (bool, error)
}

// SwitchMonitor turns a polled switch line into edge events. A toggle
// switch has no "on" position for us: any change of position is a request
// to flip the relay.
type SwitchMonitor struct {
	sw     SwitchReader
	log    zerolog.Logger
	last   bool
	primed bool
}

func NewSwitchMonitor(sw SwitchReader, log zerolog.Logger) *SwitchMonitor {
	return &SwitchMonitor{sw: sw, log: log}
}

// Poll samples the line and reports whether the position changed since the
// previous sample. The very first sample only primes the baseline so a
// switch left in either position doesn't fire a phantom toggle at boot.
func (m *SwitchMonitor) Poll() (changed bool, err error) {
	cur, err := m.sw.Pressed()
	if err != nil {
		return false, err
	}
	if !m.primed {
		m.primed = true
		m.last = cur
		return false, nil
	}
	changed = cur != m.last
	m.last = cur
	return changed, nil
}

// Resync re-primes the baseline from the current line position without
// reporting an edge. Called after a programming cycle: flips made while the
// relay was busy pulsing must not be replayed afterwards.
func (m *SwitchMonitor) Resync() {
	cur, err := m.sw.Pressed()
	if err != nil {
		m.log.Warn().Err(err).Msg("Switch resync read failed")
		return
	}
	m.primed = true
	m.last = cur
}
