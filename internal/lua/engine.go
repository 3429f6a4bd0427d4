// Package lua provides the show-script engine: Lua scripts that sequence
// scenes and power over time through the agent's command channel.
package lua

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"poollight-controller/internal/core"
)

// cmdType defines the type of engine command.
type cmdType int

const (
	cmdRunFile cmdType = iota
	cmdStop
)

// engineCmd represents a command sent to the Lua engine.
type engineCmd struct {
	kind cmdType
	name string
	path string
}

// Engine manages the Lua scripting environment using a single worker
// goroutine so only one show runs at a time. Scripts never touch the relay:
// they enqueue the same commands every other input source uses, which keeps
// the relay single-writer invariant intact during programming cycles.
type Engine struct {
	commands core.CommandChannel
	showsDir string
	bus      *core.EventBus
	log      zerolog.Logger

	cmdChan chan engineCmd
}

// NewEngine creates a Lua engine and starts its background worker.
func NewEngine(commands core.CommandChannel, showsDir string, bus *core.EventBus, log zerolog.Logger) *Engine {
	e := &Engine{
		commands: commands,
		showsDir: showsDir,
		bus:      bus,
		log:      log,
		cmdChan:  make(chan engineCmd, 10),
	}

	go e.runLoop()

	return e
}

// runLoop is the worker loop that processes engine commands sequentially.
func (e *Engine) runLoop() {
	var currentCancel context.CancelFunc
	var scriptDone chan struct{}

	for cmd := range e.cmdChan {
		if currentCancel != nil {
			currentCancel()
			select {
			case <-scriptDone:
			case <-time.After(2 * time.Second):
				e.log.Warn().Msg("Timeout waiting for show script to stop")
			}
			currentCancel = nil
			scriptDone = nil
		}

		if cmd.kind == cmdStop {
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		currentCancel = cancel
		scriptDone = make(chan struct{})

		go e.executeFile(cmd.name, cmd.path, ctx, scriptDone)
	}
}

// RunShow sends a command to execute a show script from a file.
func (e *Engine) RunShow(name string) {
	path, err := e.showPath(name)
	if err != nil {
		e.log.Warn().Err(err).Str("show", name).Msg("Could not resolve show path")
		return
	}

	e.cmdChan <- engineCmd{kind: cmdRunFile, name: name, path: path}
}

// StopShow stops the currently running show script if any.
func (e *Engine) StopShow() {
	select {
	case e.cmdChan <- engineCmd{kind: cmdStop}:
	default:
		e.log.Warn().Msg("Engine channel full, could not send stop command")
	}
}

func (e *Engine) executeFile(name, path string, ctx context.Context, done chan struct{}) {
	defer close(done)

	e.log.Info().Str("show", name).Msg("Starting show")
	e.notifyRunning(name)
	defer func() {
		e.log.Info().Str("show", name).Msg("Show finished")
		e.notifyRunning("")
	}()

	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)
	e.registerFunctions(L, ctx)

	if err := L.DoFile(path); err != nil {
		if ctx.Err() == context.Canceled {
			e.log.Info().Str("show", name).Msg("Show was stopped")
		} else {
			e.log.Warn().Err(err).Str("show", name).Msg("Error executing show")
		}
	}
}

func (e *Engine) notifyRunning(name string) {
	if e.bus != nil {
		e.bus.Publish(core.Event{
			Type:    core.ShowChangedEvent,
			Payload: map[string]interface{}{"running": name},
		})
	}
}

// sanitizeFilename checks for directory traversal and a valid .lua extension.
func sanitizeFilename(name string) (string, error) {
	if !strings.HasSuffix(name, ".lua") {
		return "", fmt.Errorf("filename must end with .lua")
	}
	cleanName := filepath.Base(name)
	if cleanName == "" || cleanName == ".lua" || strings.Contains(cleanName, "..") {
		return "", fmt.Errorf("invalid filename")
	}
	return cleanName, nil
}

// showPath returns the safe path to a show file within the shows directory.
func (e *Engine) showPath(name string) (string, error) {
	cleanName, err := sanitizeFilename(name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(e.showsDir); os.IsNotExist(err) {
		e.log.Info().Str("dir", e.showsDir).Msg("Creating shows directory")
		if err := os.MkdirAll(e.showsDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create shows directory: %w", err)
		}
	}
	return filepath.Join(e.showsDir, cleanName), nil
}

// GetShowCode reads and returns the source of a show file.
func (e *Engine) GetShowCode(name string) (string, error) {
	path, err := e.showPath(name)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// SaveShowCode writes the provided Lua source to a show file.
func (e *Engine) SaveShowCode(name, code string) error {
	path, err := e.showPath(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(code), 0644)
}

// DeleteShow removes a show file by name.
func (e *Engine) DeleteShow(name string) error {
	path, err := e.showPath(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// GetShowList scans the shows directory and returns the available .lua files.
func (e *Engine) GetShowList() ([]string, error) {
	var shows []string
	files, err := os.ReadDir(e.showsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return shows, nil
		}
		return nil, err
	}
	for _, file := range files {
		if !file.IsDir() && filepath.Ext(file.Name()) == ".lua" {
			shows = append(shows, file.Name())
		}
	}
	return shows, nil
}
