package agent

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poollight-controller/internal/core"
	"poollight-controller/internal/fixture"
	"poollight-controller/internal/status"
)

type fakeRelay struct {
	writes []bool
}

func (r *fakeRelay) Set(on bool) error {
	r.writes = append(r.writes, on)
	return nil
}

type fakeSwitch struct {
	pressed bool
}

func (s *fakeSwitch) Pressed() (bool, error) { return s.pressed, nil }

type fakePublisher struct {
	connected bool
	reports   []status.Report
}

func (p *fakePublisher) Connected() bool                 { return p.connected }
func (p *fakePublisher) PublishStatus(rep status.Report) { p.reports = append(p.reports, rep) }

type fakeLink struct {
	dbm int
}

func (l *fakeLink) RSSI() int { return l.dbm }

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time        { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

type testEnv struct {
	relay *fakeRelay
	sw    *fakeSwitch
	pub   *fakePublisher
	link  *fakeLink
	clock *fakeClock
}

// newTestAgent builds a loop core around fakes. The switch timer fires
// every iteration; the status timer only after an hour of fake time, so
// tests see exactly the event-driven reports unless they advance the clock.
func newTestAgent(t *testing.T) (*Agent, *testEnv) {
	t.Helper()

	env := &testEnv{
		relay: &fakeRelay{},
		sw:    &fakeSwitch{},
		pub:   &fakePublisher{connected: true},
		link:  &fakeLink{dbm: -60},
		clock: &fakeClock{now: time.Unix(1000, 0)},
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	a := &Agent{
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		log:      zerolog.Nop(),
		state:    core.NewState(),
		bus:      core.NewEventBus(),
		commands: make(core.CommandChannel, 20),

		relay:     env.relay,
		clock:     env.clock,
		publisher: env.pub,
		link:      env.link,

		switchTimer: newIntervalTimer(0, env.clock.now),
		statusTimer: newIntervalTimer(time.Hour, env.clock.now),
		loopTick:    20 * time.Millisecond,
		retryDelay:  5 * time.Second,
		deviceID:    "poollight-a1b2c3",
		started:     env.clock.now,
	}
	a.sequencer = fixture.NewSequencer(env.relay, env.clock, 500*time.Millisecond, 250*time.Millisecond, zerolog.Nop())
	a.monitor = NewSwitchMonitor(env.sw, zerolog.Nop())

	return a, env
}

func enqueue(t *testing.T, a *Agent, cmd core.Command) {
	t.Helper()
	select {
	case a.commands <- cmd:
	default:
		t.Fatal("command channel full")
	}
}

func Test_ProgrammingCycle_Completes(t *testing.T) {
	a, env := newTestAgent(t)

	enqueue(t, a, core.Command{Type: core.CmdStartProgramming,
		Payload: map[string]interface{}{"scene": fixture.SceneBlue}})
	a.runIteration()

	st := a.state.Clone()
	assert.False(t, st.Programming)
	assert.Equal(t, fixture.SceneBlue, st.CurrentScene)
	assert.True(t, st.Power, "a completed pulse train leaves the light on")

	// Settle write plus an off/on pair per pulse.
	assert.Len(t, env.relay.writes, 1+2*fixture.SceneBlue.Pulses())

	require.NotEmpty(t, env.pub.reports)
	last := env.pub.reports[len(env.pub.reports)-1]
	assert.Equal(t, "Blue", last.Color)
	assert.Equal(t, "off", last.Programming)
	assert.Equal(t, "on", last.Power)
}

func Test_BootThenProgram(t *testing.T) {
	a, env := newTestAgent(t)

	// Before the first completed cycle the scene is not trusted.
	a.publishStatus()
	require.Len(t, env.pub.reports, 1)
	assert.Equal(t, "Unknown", env.pub.reports[0].Color)

	enqueue(t, a, core.Command{Type: core.CmdStartProgramming,
		Payload: map[string]interface{}{"scene": fixture.SceneBlue}})
	a.runIteration()

	last := env.pub.reports[len(env.pub.reports)-1]
	assert.Equal(t, "Blue", last.Color)
}

func Test_PowerCommand_Idempotent(t *testing.T) {
	a, env := newTestAgent(t)
	env.sw.pressed = false
	a.runIteration() // primes the switch monitor
	require.Empty(t, env.pub.reports)

	// Already off: no relay write, no report.
	enqueue(t, a, core.Command{Type: core.CmdSetPower, Payload: map[string]interface{}{"on": false}})
	a.runIteration()
	assert.Empty(t, env.relay.writes)
	assert.Empty(t, env.pub.reports)

	// Off to on: exactly one write and one report.
	enqueue(t, a, core.Command{Type: core.CmdSetPower, Payload: map[string]interface{}{"on": true}})
	a.runIteration()
	assert.Equal(t, []bool{true}, env.relay.writes)
	require.Len(t, env.pub.reports, 1)
	assert.Equal(t, "on", env.pub.reports[0].Power)
}

func Test_PowerCommand_IgnoredDuringProgramming(t *testing.T) {
	a, env := newTestAgent(t)

	// Both commands sit in the queue of the same drain: programming is
	// requested first, so the power command hits the guard.
	enqueue(t, a, core.Command{Type: core.CmdStartProgramming,
		Payload: map[string]interface{}{"scene": fixture.ScenePeruvianParadise}})
	enqueue(t, a, core.Command{Type: core.CmdSetPower, Payload: map[string]interface{}{"on": false}})
	a.runIteration()

	st := a.state.Clone()
	assert.True(t, st.Power, "guarded power command must not undo the cycle")
	assert.Equal(t, fixture.ScenePeruvianParadise, st.CurrentScene)
	assert.Len(t, env.relay.writes, 1+2*fixture.ScenePeruvianParadise.Pulses())
}

func Test_StopProgramming_CancelsPendingCycle(t *testing.T) {
	a, env := newTestAgent(t)

	enqueue(t, a, core.Command{Type: core.CmdStartProgramming,
		Payload: map[string]interface{}{"scene": fixture.SceneRed}})
	enqueue(t, a, core.Command{Type: core.CmdStopProgramming})
	a.runIteration()

	st := a.state.Clone()
	assert.False(t, st.Programming)
	assert.Equal(t, fixture.SceneUnknown, st.CurrentScene, "cancelled cycle never ran")
	assert.Empty(t, env.relay.writes, "no pulses for a cancelled cycle")
}

func Test_StopProgramming_Redundant(t *testing.T) {
	a, env := newTestAgent(t)

	enqueue(t, a, core.Command{Type: core.CmdStopProgramming})
	a.runIteration()

	assert.Empty(t, env.relay.writes)
	assert.Empty(t, env.pub.reports, "redundant stop is silent")
}

func Test_SwitchToggle(t *testing.T) {
	a, env := newTestAgent(t)

	env.sw.pressed = false
	a.runIteration() // primes the baseline, no toggle
	assert.Empty(t, env.relay.writes)

	env.sw.pressed = true
	a.runIteration()
	assert.Equal(t, []bool{true}, env.relay.writes)
	assert.True(t, a.state.Clone().Power)

	// Any change of position toggles, in either direction.
	env.sw.pressed = false
	a.runIteration()
	assert.Equal(t, []bool{true, false}, env.relay.writes)
	assert.False(t, a.state.Clone().Power)
}

func Test_SwitchSuppressedDuringProgramming(t *testing.T) {
	a, env := newTestAgent(t)

	env.sw.pressed = false
	a.runIteration() // prime

	// The switch flips while the pulse train runs. After the cycle the
	// monitor resyncs, so the stale flip must not be replayed.
	enqueue(t, a, core.Command{Type: core.CmdStartProgramming,
		Payload: map[string]interface{}{"scene": fixture.SceneGreen}})
	env.sw.pressed = true
	a.runIteration()

	trainWrites := 1 + 2*fixture.SceneGreen.Pulses()
	assert.Len(t, env.relay.writes, trainWrites)

	a.runIteration()
	assert.Len(t, env.relay.writes, trainWrites, "stale switch edge replayed after programming")
	assert.True(t, a.state.Clone().Power)
}

func Test_StatusReport_Periodic(t *testing.T) {
	a, env := newTestAgent(t)
	a.statusTimer = newIntervalTimer(time.Minute, env.clock.now)

	a.runIteration()
	assert.Empty(t, env.pub.reports)

	env.clock.now = env.clock.now.Add(time.Minute)
	a.runIteration()
	require.Len(t, env.pub.reports, 1)

	rep := env.pub.reports[0]
	assert.Equal(t, "poollight-a1b2c3", rep.Client)
	assert.Equal(t, 80, rep.RSSI, "-60 dBm maps to 80 on the 0..100 scale")
	assert.Equal(t, "off", rep.Power)
	assert.Equal(t, "Unknown", rep.Color)
}

func Test_StatusSkippedWhileOffline(t *testing.T) {
	a, env := newTestAgent(t)
	env.pub.connected = false

	a.publishStatus()
	assert.Empty(t, env.pub.reports)
}

func Test_RunShow_Forwarded(t *testing.T) {
	a, _ := newTestAgent(t)
	shows := &recordingShows{}
	a.shows = shows

	enqueue(t, a, core.Command{Type: core.CmdRunShow, Payload: map[string]interface{}{"name": "sunset"}})
	enqueue(t, a, core.Command{Type: core.CmdStopShow})
	a.runIteration()

	assert.Equal(t, []string{"sunset"}, shows.started)
	assert.Equal(t, 1, shows.stops)
}

type recordingShows struct {
	started []string
	stops   int
}

func (r *recordingShows) RunShow(name string) { r.started = append(r.started, name) }
func (r *recordingShows) StopShow()           { r.stops++ }
