// Package trigger provides the frame-start signals for cameras in trigger
// mode: a software command gated by a confirmation, or an electrical pulse on
// the cameras' Line0 input.
package trigger

import (
	"errors"
	"time"

	"github.com/cjeanneret/spinrec/internal/debug"
	"github.com/cjeanneret/spinrec/internal/hw/gpio"
)

// Pulser emits one frame-start edge.
type Pulser interface {
	Pulse() error
}

// GPIOPulser drives a Raspberry Pi pin wired to the Line0 opto-input of
// every camera (through an open-collector stage):
// - idle: pin HIGH (line released)
// - pulse: pin LOW for the configured width, then back HIGH
//
// The cameras latch the falling edge, so all of them start exposing at the
// same instant.
type GPIOPulser struct {
	gpio  gpio.Driver
	pin   int
	width time.Duration // how long the line is held low
}

// NewGPIOPulser configures pin as an output and releases it.
func NewGPIOPulser(g gpio.Driver, pin int, width time.Duration) *GPIOPulser {
	_ = g.SetupPin(pin, gpio.Output)
	_ = g.WritePin(pin, gpio.High)

	return &GPIOPulser{
		gpio:  g,
		pin:   pin,
		width: width,
	}
}

// Pulse pulls the line low for the pulse width and releases it.
func (p *GPIOPulser) Pulse() error {
	debug.Printf("Trigger: pulsing Line0 (pin %d, %v)", p.pin, p.width)

	if err := p.gpio.WritePin(p.pin, gpio.Low); err != nil {
		return err
	}

	time.Sleep(p.width)

	if err := p.gpio.WritePin(p.pin, gpio.High); err != nil {
		return err
	}

	debug.Verbose("Trigger: line released (pin %d -> HIGH)", p.pin)
	return nil
}

// Chain fires every pulser in order and returns their joined errors. Nil
// entries are skipped.
func Chain(ps ...Pulser) Pulser {
	var out chain
	for _, p := range ps {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

type chain []Pulser

func (c chain) Pulse() error {
	var errs []error
	for _, p := range c {
		if err := p.Pulse(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
