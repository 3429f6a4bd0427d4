// Package gpio drives the controller's two hardware pins through the Linux
// GPIO character device: the relay output and the local switch input.
package gpio

import (
	"fmt"

	"github.com/rs/zerolog"
	gpiod "github.com/warthog618/go-gpiocdev"
)

// Relay is the dry relay output that powers the fixture. In the reference
// wiring the relay board is active-low: logical "on" drives the line LOW.
type Relay struct {
	line      *gpiod.Line
	activeLow bool
	log       zerolog.Logger
}

// OpenRelay requests the relay line and leaves the fixture powered off.
func OpenRelay(chip string, pin int, activeLow bool, log zerolog.Logger) (*Relay, error) {
	r := &Relay{activeLow: activeLow, log: log}

	line, err := gpiod.RequestLine(chip, pin, gpiod.AsOutput(r.level(false)))
	if err != nil {
		return nil, fmt.Errorf("request relay line %s:%d: %w", chip, pin, err)
	}
	r.line = line

	log.Info().Str("chip", chip).Int("pin", pin).Bool("active_low", activeLow).
		Msg("Relay line ready")
	return r, nil
}

// Set writes the logical power state to the relay.
func (r *Relay) Set(on bool) error {
	if err := r.line.SetValue(r.level(on)); err != nil {
		return fmt.Errorf("relay write: %w", err)
	}
	r.log.Debug().Bool("on", on).Msg("Relay set")
	return nil
}

// Close powers the fixture off and releases the line.
func (r *Relay) Close() error {
	_ = r.line.SetValue(r.level(false))
	return r.line.Close()
}

func (r *Relay) level(on bool) int {
	if on != r.activeLow {
		return 1
	}
	return 0
}
