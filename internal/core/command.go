package core

// CommandType defines the type of command being dispatched.
type CommandType string

const (
	CmdSetPower         CommandType = "setPower"
	CmdStartProgramming CommandType = "startProgramming"
	CmdStopProgramming  CommandType = "stopProgramming"
	CmdRunShow          CommandType = "runShow"
	CmdStopShow         CommandType = "stopShow"
	CmdAddSchedule      CommandType = "addSchedule"
	CmdRemoveSchedule   CommandType = "removeSchedule"
)

// Command is the envelope for incoming requests to change state or perform
// actions. Every input source (MQTT, physical switch, schedules, shows, web
// UI) funnels through the same channel so the relay keeps a single writer.
type Command struct {
	Type    CommandType
	Payload map[string]interface{}
}

// CommandChannel is the single channel that the agent loop drains.
type CommandChannel chan Command
