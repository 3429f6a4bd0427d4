package agent

import (
	"poollight-controller/internal/core"
	"poollight-controller/internal/fixture"
)

// handleCommand applies one queued command to device state. Runs only on
// the agent loop goroutine, between programming cycles, so no command can
// interleave with a pulse train.
func (a *Agent) handleCommand(cmd core.Command) {
	switch cmd.Type {
	case core.CmdSetPower:
		on, _ := cmd.Payload["on"].(bool)
		a.setPower(on)

	case core.CmdStartProgramming:
		scene, _ := cmd.Payload["scene"].(fixture.Scene)
		a.startProgramming(scene)

	case core.CmdStopProgramming:
		a.stopProgramming()

	case core.CmdRunShow:
		name, _ := cmd.Payload["name"].(string)
		if a.shows != nil && name != "" {
			a.shows.RunShow(name)
		}

	case core.CmdStopShow:
		if a.shows != nil {
			a.shows.StopShow()
		}

	case core.CmdAddSchedule:
		spec, _ := cmd.Payload["spec"].(string)
		command, _ := cmd.Payload["command"].(string)
		if a.schedules != nil && spec != "" && command != "" {
			a.schedules.Add(spec, command)
		}

	case core.CmdRemoveSchedule:
		if a.schedules != nil {
			if id, ok := scheduleID(cmd.Payload["id"]); ok {
				a.schedules.Remove(id)
			}
		}

	default:
		a.log.Warn().Str("type", string(cmd.Type)).Msg("Unknown command type")
	}
}

// scheduleID accepts the id as either a native int or the float64 that
// JSON decoding produces.
func scheduleID(v interface{}) (int, bool) {
	switch id := v.(type) {
	case int:
		return id, true
	case float64:
		return int(id), true
	}
	return 0, false
}

func (a *Agent) setPower(on bool) {
	st := a.state.Clone()
	if st.Programming {
		// The pulse train owns the relay; a stray power write would corrupt
		// the count the fixture is decoding.
		a.log.Info().Bool("on", on).Msg("Power command ignored during programming")
		return
	}
	if st.Power == on {
		a.log.Debug().Bool("on", on).Msg("Power already in requested state")
		return
	}
	a.applyPower(on)
}

// applyPower drives the relay and, only on success, records and reports the
// new state.
func (a *Agent) applyPower(on bool) {
	if err := a.relay.Set(on); err != nil {
		a.log.Error().Err(err).Bool("on", on).Msg("Relay write failed")
		return
	}
	a.state.SetPower(on, a.clock.Now())
	a.log.Info().Bool("on", on).Msg("Power switched")
	a.bus.Publish(core.Event{Type: core.PowerChangedEvent, Payload: map[string]interface{}{"on": on}})
	a.publishStatus()
}

func (a *Agent) startProgramming(scene fixture.Scene) {
	if !scene.Valid() {
		a.log.Warn().Int("scene", int(scene)).Msg("Programming request with invalid scene")
		return
	}
	st := a.state.Clone()
	if st.Programming {
		a.log.Info().Str("scene", scene.Name()).Msg("Already programming, request ignored")
		return
	}
	a.state.StartProgramming(scene, a.clock.Now())
	a.log.Info().Str("scene", scene.Name()).Int("pulses", scene.Pulses()).Msg("Programming requested")
	a.bus.Publish(core.Event{Type: core.ProgrammingChangedEvent, Payload: map[string]interface{}{"programming": true, "scene": scene.Name()}})
	a.publishStatus()
}

func (a *Agent) stopProgramming() {
	st := a.state.Clone()
	if !st.Programming {
		a.log.Debug().Msg("No programming cycle to stop")
		return
	}
	// Only a cycle that hasn't started pulsing yet can be stopped; a running
	// train blocks the loop and drains this command after completion, where
	// Programming is already false and this is a no-op.
	a.state.CancelProgramming(a.clock.Now())
	a.log.Info().Msg("Pending programming cycle cancelled")
	a.bus.Publish(core.Event{Type: core.ProgrammingChangedEvent, Payload: map[string]interface{}{"programming": false}})
	a.publishStatus()
}
