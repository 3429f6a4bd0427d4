package fixture_test

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poollight-controller/internal/fixture"
)

// fakeRelay records every write and can be made to fail.
type fakeRelay struct {
	writes []bool
	failAt int // fail the n-th write (1-based), 0 = never
	err    error
}

func (r *fakeRelay) Set(on bool) error {
	r.writes = append(r.writes, on)
	if r.failAt > 0 && len(r.writes) == r.failAt {
		return r.err
	}
	return nil
}

// fakeClock advances instantly and records every sleep.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

func newTestSequencer(relay *fakeRelay, clock *fakeClock) *fixture.Sequencer {
	return fixture.NewSequencer(relay, clock, 0, 0, zerolog.Nop())
}

func Test_Program_PulseTrain(t *testing.T) {
	relay := &fakeRelay{}
	clock := &fakeClock{}
	seq := newTestSequencer(relay, clock)

	scene, err := fixture.SceneForName("Blue")
	require.NoError(t, err)

	require.NoError(t, seq.Program(scene))

	// One settle power-on, then 8 off/on pairs.
	require.Len(t, relay.writes, 1+2*8)
	assert.True(t, relay.writes[0])
	for i := 0; i < 8; i++ {
		assert.False(t, relay.writes[1+2*i], "pulse %d should start with off", i+1)
		assert.True(t, relay.writes[2+2*i], "pulse %d should end with on", i+1)
	}
	// Relay ends powered on.
	assert.True(t, relay.writes[len(relay.writes)-1])

	// One settle delay plus two symmetric delays per pulse.
	require.Len(t, clock.sleeps, 1+2*8)
	assert.Equal(t, fixture.DefaultSettle, clock.sleeps[0])
	for _, d := range clock.sleeps[1:] {
		assert.Equal(t, fixture.DefaultPulseWidth, d)
	}
}

func Test_Program_SinglePulse(t *testing.T) {
	relay := &fakeRelay{}
	seq := newTestSequencer(relay, &fakeClock{})

	require.NoError(t, seq.Program(fixture.ScenePeruvianParadise))
	assert.Equal(t, []bool{true, false, true}, relay.writes)
}

func Test_Program_RejectsUnknownScene(t *testing.T) {
	relay := &fakeRelay{}
	seq := newTestSequencer(relay, &fakeClock{})

	err := seq.Program(fixture.SceneUnknown)
	assert.ErrorIs(t, err, fixture.ErrInvalidScene)
	assert.Empty(t, relay.writes, "no relay write for an invalid scene")
}

func Test_Program_RelayErrorAborts(t *testing.T) {
	bang := errors.New("gpio write failed")
	relay := &fakeRelay{failAt: 4, err: bang}
	seq := newTestSequencer(relay, &fakeClock{})

	err := seq.Program(fixture.SceneReturn)
	require.ErrorIs(t, err, bang)
	assert.Len(t, relay.writes, 4, "train stops at the failing write")
}

func Test_Duration(t *testing.T) {
	seq := newTestSequencer(&fakeRelay{}, &fakeClock{})

	// 14 pulses: settle + 14 * (250ms + 250ms)
	assert.Equal(t, 7500*time.Millisecond, seq.Duration(fixture.SceneReturn))
	assert.Equal(t, 1000*time.Millisecond, seq.Duration(fixture.ScenePeruvianParadise))
}
