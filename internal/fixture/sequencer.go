package fixture

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultSettle is how long the fixture is given to power up before the
	// first pulse. The decoder ignores pulses delivered while it boots.
	DefaultSettle = 500 * time.Millisecond

	// DefaultPulseWidth is the off time and the on time of a single pulse.
	// The off/on symmetry must match the decoder window; wrong timing
	// silently programs the wrong scene.
	DefaultPulseWidth = 250 * time.Millisecond
)

// Relay is the single actuator the sequencer drives. Set(true) powers the
// fixture, Set(false) cuts it.
type Relay interface {
	Set(on bool) error
}

// Clock abstracts real time so the pulse train is testable without waiting
// for it.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// WallClock is the production Clock.
type WallClock struct{}

func (WallClock) Now() time.Time        { return time.Now() }
func (WallClock) Sleep(d time.Duration) { time.Sleep(d) }

// Sequencer delivers the pulse train that programs a scene. Program blocks
// for the whole train; while it runs the sequencer owns the relay and
// nothing else may write it.
type Sequencer struct {
	relay      Relay
	clock      Clock
	settle     time.Duration
	pulseWidth time.Duration
	log        zerolog.Logger
}

// NewSequencer creates a sequencer. Zero durations select the protocol
// defaults.
func NewSequencer(relay Relay, clock Clock, settle, pulseWidth time.Duration, log zerolog.Logger) *Sequencer {
	if settle <= 0 {
		settle = DefaultSettle
	}
	if pulseWidth <= 0 {
		pulseWidth = DefaultPulseWidth
	}
	return &Sequencer{
		relay:      relay,
		clock:      clock,
		settle:     settle,
		pulseWidth: pulseWidth,
		log:        log,
	}
}

// Duration returns how long programming the scene will block.
func (s *Sequencer) Duration(scene Scene) time.Duration {
	return s.settle + time.Duration(scene.Pulses())*2*s.pulseWidth
}

// Program runs the full pulse train for the scene and leaves the fixture
// powered on. It is not preemptible: once started it runs to completion,
// and the relay must not be touched by anyone else until it returns.
func (s *Sequencer) Program(scene Scene) error {
	if !scene.Valid() {
		return fmt.Errorf("%w: code %d", ErrInvalidScene, scene)
	}

	start := s.clock.Now()
	s.log.Info().
		Str("scene", scene.Name()).
		Int("pulses", scene.Pulses()).
		Dur("duration", s.Duration(scene)).
		Msg("Programming pulse train started")

	// The fixture must be live before the first pulse counts.
	if err := s.relay.Set(true); err != nil {
		return fmt.Errorf("settle power-on: %w", err)
	}
	s.clock.Sleep(s.settle)

	for i := 0; i < scene.Pulses(); i++ {
		if err := s.relay.Set(false); err != nil {
			return fmt.Errorf("pulse %d off: %w", i+1, err)
		}
		s.clock.Sleep(s.pulseWidth)
		if err := s.relay.Set(true); err != nil {
			return fmt.Errorf("pulse %d on: %w", i+1, err)
		}
		s.clock.Sleep(s.pulseWidth)
	}

	s.log.Info().
		Str("scene", scene.Name()).
		Dur("took", s.clock.Now().Sub(start)).
		Msg("Programming pulse train finished")
	return nil
}
