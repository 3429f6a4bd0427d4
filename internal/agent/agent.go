// Package agent runs the control loop that owns the relay. Every input
// source (broker, wall switch, web dashboard, shows, schedules) funnels
// into one command channel drained here, so relay writes never interleave
// with a running pulse train.
package agent

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"poollight-controller/internal/config"
	"poollight-controller/internal/core"
	"poollight-controller/internal/fixture"
	"poollight-controller/internal/gpio"
	"poollight-controller/internal/lua"
	"poollight-controller/internal/mqtt"
	"poollight-controller/internal/scheduler"
	"poollight-controller/internal/server"
	"poollight-controller/internal/status"
	"poollight-controller/internal/wifi"
)

// StatusPublisher is the slice of the broker client the loop depends on.
type StatusPublisher interface {
	Connected() bool
	PublishStatus(rep status.Report)
}

// LinkReader samples wireless signal strength in dBm.
type LinkReader interface {
	RSSI() int
}

// ShowRunner starts and stops Lua show scripts.
type ShowRunner interface {
	RunShow(name string)
	StopShow()
}

// ScheduleStore manages cron entries.
type ScheduleStore interface {
	Add(spec, command string)
	Remove(id int)
}

// Agent ties all components together and runs the main loop.
type Agent struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	cfg    *config.Config
	log    zerolog.Logger

	state    *core.State
	bus      *core.EventBus
	commands core.CommandChannel

	relay     fixture.Relay
	sequencer *fixture.Sequencer
	monitor   *SwitchMonitor
	publisher StatusPublisher
	link      LinkReader
	shows     ShowRunner
	schedules ScheduleStore
	clock     fixture.Clock

	switchTimer *intervalTimer
	statusTimer *intervalTimer
	loopTick    time.Duration
	retryDelay  time.Duration

	deviceID string
	started  time.Time

	// Concrete handles kept for lifecycle management only.
	mqttClient *mqtt.Client
	cronRunner *scheduler.Scheduler
	webServer  *server.Server
	relayLine  *gpio.Relay
	switchLine *gpio.Switch
}

// New wires up all components from the configuration and claims the GPIO
// lines. The loop does not start until Run is called.
func New(cfg *config.Config) (*Agent, error) {
	ctx, cancel := context.WithCancel(context.Background())

	relayLine, err := gpio.OpenRelay(cfg.GPIO.Chip, cfg.GPIO.RelayPin, *cfg.GPIO.RelayActiveLow,
		log.With().Str("component", "gpio").Logger())
	if err != nil {
		cancel()
		return nil, err
	}

	switchLine, err := gpio.OpenSwitch(cfg.GPIO.Chip, cfg.GPIO.SwitchPin, *cfg.GPIO.SwitchActiveLow,
		log.With().Str("component", "gpio").Logger())
	if err != nil {
		relayLine.Close()
		cancel()
		return nil, err
	}

	a := newAgent(cfg, relayLine, switchLine)
	a.ctx = ctx
	a.cancel = cancel
	a.relayLine = relayLine
	a.switchLine = switchLine

	a.deviceID = wifi.DeviceID(cfg.Wifi.Interface)
	a.link = wifi.NewMonitor(cfg.Wifi.Interface, log.With().Str("component", "wifi").Logger())

	a.mqttClient = mqtt.NewClient(cfg, a.deviceID, a.commands, log.With().Str("component", "mqtt").Logger())
	if a.mqttClient != nil {
		a.publisher = a.mqttClient
	}

	engine := lua.NewEngine(a.commands, cfg.ShowsDir, a.bus, log.With().Str("component", "lua").Logger())
	a.shows = engine

	a.cronRunner = scheduler.NewScheduler(a.commands, a.bus, cfg.SchedulesFile,
		log.With().Str("component", "scheduler").Logger())
	a.schedules = a.cronRunner

	if cfg.Server.Enabled {
		a.webServer = server.NewServer(
			a.commands,
			engine,
			a.state.Clone,
			a.cronRunner.GetAll,
			a.bus,
			cfg.Server.Port,
			cfg.Server.WebFilesDir,
			cfg.Server.AllowedOrigins,
			log.With().Str("component", "server").Logger(),
		)
	}

	a.log.Info().Str("device_id", a.deviceID).Msg("Agent assembled")
	return a, nil
}

// newAgent builds the loop core around a relay and switch. Split out of New
// so tests can inject fakes without touching hardware.
func newAgent(cfg *config.Config, relay fixture.Relay, sw SwitchReader) *Agent {
	logger := log.With().Str("component", "agent").Logger()
	clock := fixture.WallClock{}
	now := clock.Now()

	a := &Agent{
		done:     make(chan struct{}),
		cfg:      cfg,
		log:      logger,
		state:    core.NewState(),
		bus:      core.NewEventBus(),
		commands: make(core.CommandChannel, 20),
		relay:    relay,
		clock:    clock,

		switchTimer: newIntervalTimer(config.Duration(cfg.Timing.SwitchPoll), now),
		statusTimer: newIntervalTimer(config.Duration(cfg.Timing.StatusInterval), now),
		loopTick:    config.Duration(cfg.Timing.LoopTick),
		retryDelay:  config.Duration(cfg.Timing.ReconnectDelay),
		started:     now,
	}

	a.sequencer = fixture.NewSequencer(relay, clock,
		config.Duration(cfg.Timing.Settle), config.Duration(cfg.Timing.PulseWidth),
		log.With().Str("component", "fixture").Logger())
	a.monitor = NewSwitchMonitor(sw, logger)

	return a
}

// Commands exposes the agent's command channel for external producers.
func (a *Agent) Commands() core.CommandChannel {
	return a.commands
}

// Run starts background services and then blocks in the control loop until
// Shutdown is called.
func (a *Agent) Run() {
	defer close(a.done)

	if a.mqttClient != nil {
		go func() {
			if err := a.mqttClient.Connect(); err != nil {
				a.log.Error().Err(err).Msg("Broker connection failed permanently")
			}
		}()
	}

	if a.cronRunner != nil {
		a.cronRunner.Start()
	}

	if a.webServer != nil {
		go func() {
			if err := a.webServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error().Err(err).Msg("Web server error")
			}
		}()
	}

	go a.listenEvents()

	a.log.Info().Msg("Control loop running")
	for a.ctx.Err() == nil {
		a.runIteration()
	}
	a.log.Info().Msg("Control loop stopped")
}

// runIteration is one pass of the loop. Fixed priority: broker link first,
// then queued commands, then an exclusive programming cycle, then the
// periodic switch poll and status report.
func (a *Agent) runIteration() {
	a.waitConnected()
	if a.ctx.Err() != nil {
		return
	}

	a.drainCommands()

	if a.state.Clone().Programming {
		a.runProgrammingCycle()
		// The train consumed far more than a tick; skip straight to the
		// next iteration so queued commands drain promptly.
		return
	}

	now := a.clock.Now()
	if a.switchTimer.Due(now) {
		a.pollSwitch()
	}
	if a.statusTimer.Due(now) {
		a.publishStatus()
	}

	a.clock.Sleep(a.loopTick)
}

// waitConnected blocks the loop while the broker link is down. Reconnection
// itself happens in the client's background goroutines; this gate just
// keeps loop work from racing a half-restored session. When MQTT is
// disabled the device runs standalone and the gate is a no-op.
func (a *Agent) waitConnected() {
	if a.publisher == nil {
		return
	}

	if a.publisher.Connected() {
		if !a.state.Clone().Connected {
			a.state.SetConnection(true)
			a.log.Info().Msg("Broker link up")
			a.bus.Publish(core.Event{Type: core.LinkChangedEvent, Payload: map[string]interface{}{"connected": true}})
		}
		return
	}

	if a.state.Clone().Connected {
		a.state.SetConnection(false)
		a.bus.Publish(core.Event{Type: core.LinkChangedEvent, Payload: map[string]interface{}{"connected": false}})
	}

	for !a.publisher.Connected() {
		if a.ctx.Err() != nil {
			return
		}
		a.log.Info().Dur("retry_in", a.retryDelay).Msg("Broker link down, waiting")
		a.clock.Sleep(a.retryDelay)
	}

	a.state.SetConnection(true)
	a.log.Info().Msg("Broker link restored")
	a.bus.Publish(core.Event{Type: core.LinkChangedEvent, Payload: map[string]interface{}{"connected": true}})
}

// drainCommands applies every queued command without blocking.
func (a *Agent) drainCommands() {
	for {
		select {
		case cmd := <-a.commands:
			a.handleCommand(cmd)
		default:
			return
		}
	}
}

// runProgrammingCycle delivers the pending pulse train. Blocks the loop for
// the full train: nothing may touch the relay while the fixture counts
// pulses.
func (a *Agent) runProgrammingCycle() {
	scene := a.state.Clone().PendingScene
	if !scene.Valid() {
		a.state.CancelProgramming(a.clock.Now())
		return
	}

	err := a.sequencer.Program(scene)
	if err != nil {
		// An aborted train leaves the fixture's decoder in an unknowable
		// position, so the scene stays whatever it was before.
		a.log.Error().Err(err).Str("scene", scene.Name()).Msg("Programming cycle failed")
		a.state.CancelProgramming(a.clock.Now())
		a.bus.Publish(core.Event{Type: core.ProgrammingChangedEvent, Payload: map[string]interface{}{"programming": false}})
	} else {
		a.state.CompleteProgramming(scene, a.clock.Now())
		a.log.Info().Str("scene", scene.Name()).Msg("Scene programmed")
		a.bus.Publish(core.Event{Type: core.SceneChangedEvent, Payload: map[string]interface{}{"scene": scene.Name()}})
	}

	// Switch flips made during the train are intentional no-ops; re-prime
	// the edge detector so they aren't replayed now.
	a.monitor.Resync()
	a.publishStatus()
}

// pollSwitch toggles the relay on any change of switch position.
func (a *Agent) pollSwitch() {
	changed, err := a.monitor.Poll()
	if err != nil {
		a.log.Warn().Err(err).Msg("Switch read failed")
		return
	}
	if !changed {
		return
	}

	st := a.state.Clone()
	a.log.Info().Bool("power", !st.Power).Msg("Wall switch toggled")
	a.applyPower(!st.Power)
}

// publishStatus samples the link, builds a report and hands it to the
// broker client. Skipped silently when offline; the retained out topic
// keeps the last delivered report for late subscribers.
func (a *Agent) publishStatus() {
	dbm := a.link.RSSI()
	a.state.SetRSSI(dbm)

	rep := status.Build(a.state.Clone(), a.deviceID, wifi.Quality(dbm), a.clock.Now().Sub(a.started))
	if a.publisher != nil && a.publisher.Connected() {
		a.publisher.PublishStatus(rep)
	}
}

// listenEvents keeps loop-owned state in sync with events produced off-loop
// (the Lua worker reporting show start/stop).
func (a *Agent) listenEvents() {
	sub := a.bus.Subscribe(core.ShowChangedEvent)
	for {
		select {
		case <-a.ctx.Done():
			return
		case event := <-sub:
			if payload, ok := event.Payload.(map[string]interface{}); ok {
				name, _ := payload["running"].(string)
				a.state.SetRunningShow(name)
			}
		}
	}
}

// Shutdown stops the loop and releases all resources. The relay is driven
// off on the way out so the light never stays stuck on after a restart.
func (a *Agent) Shutdown() {
	a.log.Info().Msg("Shutting down")

	if a.shows != nil {
		a.shows.StopShow()
	}
	if a.cronRunner != nil {
		a.cronRunner.Stop()
	}
	if a.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.webServer.Shutdown(ctx); err != nil {
			a.log.Warn().Err(err).Msg("Web server shutdown error")
		}
	}

	a.cancel()
	// A running pulse train finishes before the loop observes the cancel.
	select {
	case <-a.done:
	case <-time.After(15 * time.Second):
		a.log.Warn().Msg("Timed out waiting for control loop to stop")
	}

	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}
	if a.relayLine != nil {
		if err := a.relayLine.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Relay line close error")
		}
	}
	if a.switchLine != nil {
		if err := a.switchLine.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Switch line close error")
		}
	}
}
