package gpio

import (
	"fmt"

	"github.com/rs/zerolog"
	gpiod "github.com/warthog618/go-gpiocdev"
)

// Switch is the local wall switch input. The reference wiring pulls the pin
// up and closes it to ground, so the pressed level is LOW.
type Switch struct {
	line      *gpiod.Line
	activeLow bool
}

// OpenSwitch requests the switch line with the internal pull-up enabled.
func OpenSwitch(chip string, pin int, activeLow bool, log zerolog.Logger) (*Switch, error) {
	line, err := gpiod.RequestLine(chip, pin, gpiod.AsInput, gpiod.WithPullUp)
	if err != nil {
		return nil, fmt.Errorf("request switch line %s:%d: %w", chip, pin, err)
	}

	log.Info().Str("chip", chip).Int("pin", pin).Bool("active_low", activeLow).
		Msg("Switch line ready")
	return &Switch{line: line, activeLow: activeLow}, nil
}

// Pressed reads the logical switch position.
func (s *Switch) Pressed() (bool, error) {
	v, err := s.line.Value()
	if err != nil {
		return false, fmt.Errorf("switch read: %w", err)
	}
	high := v != 0
	return high != s.activeLow, nil
}

// Close releases the line.
func (s *Switch) Close() error {
	return s.line.Close()
}
