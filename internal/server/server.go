// Package server hosts the local web dashboard: static files plus a
// WebSocket endpoint mirroring live device state and accepting commands.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"poollight-controller/internal/core"
	"poollight-controller/internal/fixture"
	"poollight-controller/internal/scheduler"
)

// ShowManager is the slice of the Lua engine the dashboard needs.
type ShowManager interface {
	GetShowList() ([]string, error)
	GetShowCode(name string) (string, error)
	SaveShowCode(name, code string) error
	DeleteShow(name string) error
}

// Server manages the HTTP and WebSocket services.
type Server struct {
	Hub          *Hub
	commands     core.CommandChannel
	shows        ShowManager
	httpServer   *http.Server
	getState     func() core.State
	getSchedules func() map[cron.EntryID]scheduler.ScheduleEntry
	bus          *core.EventBus
	log          zerolog.Logger

	staticFilesDir string
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewServer creates a new server instance.
func NewServer(
	commands core.CommandChannel,
	shows ShowManager,
	getState func() core.State,
	getSchedules func() map[cron.EntryID]scheduler.ScheduleEntry,
	bus *core.EventBus,
	port string,
	staticFilesDir string,
	allowedOrigins []string,
	log zerolog.Logger,
) *Server {
	hub := NewHub(log)
	go hub.Run()

	s := &Server{
		Hub:            hub,
		commands:       commands,
		shows:          shows,
		getState:       getState,
		getSchedules:   getSchedules,
		bus:            bus,
		log:            log,
		staticFilesDir: staticFilesDir,
		allowedOrigins: allowedOrigins,
	}

	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				s.log.Warn().Msg("WebSocket CheckOrigin is disabled")
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			s.log.Warn().Str("origin", origin).Msg("WebSocket connection blocked")
			return false
		},
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(s.staticFilesDir)))
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.httpServer = &http.Server{Addr: ":" + port, Handler: mux}

	go s.listenEvents()

	return s
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// listenEvents forwards agent events to the WebSocket clients.
func (s *Server) listenEvents() {
	sub := s.bus.Subscribe(
		core.PowerChangedEvent,
		core.ProgrammingChangedEvent,
		core.SceneChangedEvent,
		core.LinkChangedEvent,
		core.ShowChangedEvent,
		core.ScheduleChangedEvent,
	)

	for event := range sub {
		switch event.Type {
		case core.ScheduleChangedEvent:
			s.Hub.Broadcast(NewMessage("schedule_list", s.getSchedules()))
		case core.ShowChangedEvent:
			s.Hub.Broadcast(NewMessage("show_status", event.Payload))
		default:
			s.Hub.Broadcast(NewMessage("device_state", stateMessage(s.getState())))
		}
	}
}

func stateMessage(st core.State) map[string]interface{} {
	return map[string]interface{}{
		"power":       st.Power,
		"programming": st.Programming,
		"scene":       st.CurrentScene.Name(),
		"connected":   st.Connected,
		"rssi":        st.RSSI,
		"runningShow": st.RunningShow,
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	// Initial dump so the UI renders without waiting for a change.
	_ = conn.WriteJSON(NewMessage("device_state", stateMessage(s.getState())))
	_ = conn.WriteJSON(NewMessage("scene_list", fixture.SceneNames()))
	if shows, err := s.shows.GetShowList(); err == nil {
		_ = conn.WriteJSON(NewMessage("show_list", shows))
	}
	_ = conn.WriteJSON(NewMessage("schedule_list", s.getSchedules()))

	s.Hub.register <- conn
	defer func() {
		s.Hub.unregister <- conn
	}()

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.handleClientCommand(msgBytes)
	}
}

// handleClientCommand maps a dashboard command onto the agent's command
// channel. Show file management is handled here directly since it never
// touches device state.
func (s *Server) handleClientCommand(raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		s.log.Warn().Err(err).Msg("Error unmarshalling client command")
		return
	}

	switch cmd.Type {
	case "setPower":
		on, _ := cmd.Payload["on"].(bool)
		s.enqueue(core.Command{Type: core.CmdSetPower, Payload: map[string]interface{}{"on": on}})

	case "startProgramming":
		name, _ := cmd.Payload["scene"].(string)
		scene, err := fixture.SceneForName(name)
		if err != nil {
			s.log.Warn().Err(err).Str("scene", name).Msg("Rejected client programming request")
			return
		}
		s.enqueue(core.Command{Type: core.CmdStartProgramming, Payload: map[string]interface{}{"scene": scene}})

	case "stopProgramming":
		s.enqueue(core.Command{Type: core.CmdStopProgramming})

	case "runShow":
		if name, ok := cmd.Payload["name"].(string); ok {
			s.enqueue(core.Command{Type: core.CmdRunShow, Payload: map[string]interface{}{"name": name}})
		}

	case "stopShow":
		s.enqueue(core.Command{Type: core.CmdStopShow})

	case "addSchedule":
		spec, specOk := cmd.Payload["spec"].(string)
		command, cmdOk := cmd.Payload["command"].(string)
		if specOk && cmdOk {
			s.enqueue(core.Command{Type: core.CmdAddSchedule, Payload: map[string]interface{}{"spec": spec, "command": command}})
		}

	case "removeSchedule":
		if id, ok := cmd.Payload["id"].(float64); ok {
			s.enqueue(core.Command{Type: core.CmdRemoveSchedule, Payload: map[string]interface{}{"id": id}})
		}

	case "getShowCode":
		if name, ok := cmd.Payload["name"].(string); ok {
			content, err := s.shows.GetShowCode(name)
			if err != nil {
				s.log.Warn().Err(err).Str("show", name).Msg("Error reading show code")
				return
			}
			s.Hub.Broadcast(NewMessage("show_code", map[string]string{"name": name, "code": content}))
		}

	case "saveShowCode":
		name, nameOk := cmd.Payload["name"].(string)
		code, codeOk := cmd.Payload["code"].(string)
		if nameOk && codeOk {
			if err := s.shows.SaveShowCode(name, code); err != nil {
				s.log.Warn().Err(err).Str("show", name).Msg("Error saving show")
				return
			}
			s.broadcastShowList()
		}

	case "deleteShow":
		if name, ok := cmd.Payload["name"].(string); ok {
			if err := s.shows.DeleteShow(name); err != nil {
				s.log.Warn().Err(err).Str("show", name).Msg("Error deleting show")
				return
			}
			s.broadcastShowList()
		}

	default:
		s.log.Warn().Str("type", cmd.Type).Msg("Unknown client command type")
	}
}

func (s *Server) broadcastShowList() {
	if shows, err := s.shows.GetShowList(); err == nil {
		s.Hub.Broadcast(NewMessage("show_list", shows))
	}
}

func (s *Server) enqueue(cmd core.Command) {
	select {
	case s.commands <- cmd:
	default:
		s.log.Warn().Str("type", string(cmd.Type)).Msg("Command queue full, dropping client command")
	}
}
