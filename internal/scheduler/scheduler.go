// Package scheduler runs wall-clock schedules ("power on at 19:00",
// "scene Blue on fridays") against the agent's command channel.
package scheduler

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"poollight-controller/internal/core"
	"poollight-controller/internal/fixture"
)

// ScheduleEntry defines the structure for a saved schedule.
type ScheduleEntry struct {
	Spec    string `json:"spec"`
	Command string `json:"command"` // "power on|off" or "scene <Name>"
}

// Scheduler manages all cron-related tasks.
type Scheduler struct {
	cron          *cron.Cron
	store         map[cron.EntryID]ScheduleEntry
	commands      core.CommandChannel
	bus           *core.EventBus
	mu            sync.RWMutex
	schedulesFile string
	log           zerolog.Logger
}

// NewScheduler creates a scheduler and loads persisted entries.
func NewScheduler(commands core.CommandChannel, bus *core.EventBus, schedulesFile string, log zerolog.Logger) *Scheduler {
	s := &Scheduler{
		cron:          cron.New(),
		store:         make(map[cron.EntryID]ScheduleEntry),
		commands:      commands,
		bus:           bus,
		schedulesFile: schedulesFile,
		log:           log,
	}
	s.load()
	return s
}

// Start begins the cron ticker.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Cron scheduler started")
}

// Stop halts the cron ticker.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.log.Info().Msg("Cron scheduler stopped")
}

// Add creates a new cron job and persists the store.
func (s *Scheduler) Add(spec, command string) {
	if err := validateCommand(command); err != nil {
		s.log.Warn().Err(err).Str("command", command).Msg("Rejected schedule command")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { s.execute(command) })
	if err != nil {
		s.log.Warn().Err(err).Str("spec", spec).Str("command", command).Msg("Error adding schedule")
		return
	}
	s.store[id] = ScheduleEntry{Spec: spec, Command: command}
	s.save()
	s.log.Info().Int("id", int(id)).Str("spec", spec).Str("command", command).Msg("Added schedule")
	s.notify()
}

// Remove deletes a cron job and persists the store.
func (s *Scheduler) Remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID := cron.EntryID(id)
	s.cron.Remove(entryID)
	delete(s.store, entryID)
	s.save()
	s.log.Info().Int("id", id).Msg("Removed schedule")
	s.notify()
}

// GetAll returns a copy of the current schedules.
func (s *Scheduler) GetAll() map[cron.EntryID]ScheduleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[cron.EntryID]ScheduleEntry, len(s.store))
	for k, v := range s.store {
		out[k] = v
	}
	return out
}

func (s *Scheduler) notify() {
	if s.bus != nil {
		s.bus.Publish(core.Event{Type: core.ScheduleChangedEvent})
	}
}

func validateCommand(command string) error {
	_, err := commandFor(command)
	return err
}

// commandFor maps a schedule command string onto an agent command.
func commandFor(command string) (core.Command, error) {
	parts := strings.Fields(command)
	if len(parts) < 2 {
		return core.Command{}, core.ErrMalformedMessage
	}
	switch parts[0] {
	case "power":
		switch parts[1] {
		case "on", "off":
			return core.Command{
				Type:    core.CmdSetPower,
				Payload: map[string]interface{}{"on": parts[1] == "on"},
			}, nil
		}
		return core.Command{}, core.ErrMalformedMessage
	case "scene":
		scene, err := fixture.SceneForName(parts[1])
		if err != nil {
			return core.Command{}, err
		}
		return core.Command{
			Type:    core.CmdStartProgramming,
			Payload: map[string]interface{}{"scene": scene},
		}, nil
	}
	return core.Command{}, core.ErrMalformedMessage
}

func (s *Scheduler) execute(command string) {
	s.log.Info().Str("command", command).Msg("Executing scheduled command")

	cmd, err := commandFor(command)
	if err != nil {
		s.log.Warn().Err(err).Str("command", command).Msg("Skipping invalid scheduled command")
		return
	}

	select {
	case s.commands <- cmd:
	default:
		s.log.Warn().Str("command", command).Msg("Command queue full, dropping scheduled command")
	}
}

func (s *Scheduler) save() {
	data, err := json.MarshalIndent(s.store, "", "  ")
	if err != nil {
		s.log.Warn().Err(err).Msg("Error marshalling schedules")
		return
	}
	if err := os.WriteFile(s.schedulesFile, data, 0644); err != nil {
		s.log.Warn().Err(err).Str("file", s.schedulesFile).Msg("Error writing schedule file")
	}
}

func (s *Scheduler) load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.schedulesFile); os.IsNotExist(err) {
		return
	}
	data, err := os.ReadFile(s.schedulesFile)
	if err != nil {
		s.log.Warn().Err(err).Str("file", s.schedulesFile).Msg("Error reading schedule file")
		return
	}

	tempStore := make(map[cron.EntryID]ScheduleEntry)
	if err := json.Unmarshal(data, &tempStore); err != nil {
		s.log.Warn().Err(err).Str("file", s.schedulesFile).Msg("Error unmarshalling schedule file")
		return
	}

	s.log.Info().Int("count", len(tempStore)).Str("file", s.schedulesFile).Msg("Loading schedules from file")
	for _, entry := range tempStore {
		jobEntry := entry
		newID, err := s.cron.AddFunc(jobEntry.Spec, func() { s.execute(jobEntry.Command) })
		if err != nil {
			s.log.Warn().Err(err).Str("spec", jobEntry.Spec).Msg("Error re-adding schedule from file")
			continue
		}
		s.store[newID] = jobEntry
	}
}
