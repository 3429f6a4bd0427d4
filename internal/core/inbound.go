package core

import (
	"encoding/json"
	"errors"
	"fmt"

	"poollight-controller/internal/fixture"
)

// ErrMalformedMessage marks an inbound payload that could not be decoded or
// carried no actionable field.
var ErrMalformedMessage = errors.New("core: malformed command message")

// inboundMessage is the wire shape of one command delivery:
// {"power":"on"|"off","programming":["on"|"off","<scene>"]}. Either field
// may be absent; unknown fields are ignored.
type inboundMessage struct {
	Power       *string  `json:"power"`
	Programming []string `json:"programming"`
}

// ParseInbound decodes one inbound command message into commands for the
// agent loop. Fields are validated independently and atomically: a field
// either yields exactly one command or is rejected with an error, and a bad
// field never blocks a good one.
func ParseInbound(payload []byte) ([]Command, []error) {
	var msg inboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, []error{fmt.Errorf("%w: %v", ErrMalformedMessage, err)}
	}
	if msg.Power == nil && msg.Programming == nil {
		return nil, []error{fmt.Errorf("%w: no actionable fields", ErrMalformedMessage)}
	}

	var cmds []Command
	var errs []error

	if msg.Power != nil {
		switch *msg.Power {
		case "on", "off":
			cmds = append(cmds, Command{
				Type:    CmdSetPower,
				Payload: map[string]interface{}{"on": *msg.Power == "on"},
			})
		default:
			errs = append(errs, fmt.Errorf("%w: power %q", ErrMalformedMessage, *msg.Power))
		}
	}

	if msg.Programming != nil {
		cmd, err := parseProgramming(msg.Programming)
		if err != nil {
			errs = append(errs, err)
		} else {
			cmds = append(cmds, cmd)
		}
	}

	return cmds, errs
}

func parseProgramming(field []string) (Command, error) {
	if len(field) == 0 {
		return Command{}, fmt.Errorf("%w: empty programming field", ErrMalformedMessage)
	}

	switch field[0] {
	case "on":
		if len(field) < 2 {
			return Command{}, fmt.Errorf("%w: programming on without scene", ErrMalformedMessage)
		}
		scene, err := fixture.SceneForName(field[1])
		if err != nil {
			return Command{}, fmt.Errorf("%w: %q", err, field[1])
		}
		return Command{
			Type:    CmdStartProgramming,
			Payload: map[string]interface{}{"scene": scene},
		}, nil
	case "off":
		return Command{Type: CmdStopProgramming}, nil
	default:
		return Command{}, fmt.Errorf("%w: programming %q", ErrMalformedMessage, field[0])
	}
}
