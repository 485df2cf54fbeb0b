//go:build tinygo

package main

import (
	"machine"

	"cloudpico-tag/internal/mode"
)

// leds are wired active high: red for HighRes, green for LowPower.
type leds struct {
	red, green machine.Pin
}

func newLEDs(red, green machine.Pin) leds {
	for _, p := range []machine.Pin{red, green} {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.Low()
	}
	// Red stays lit if init never completes.
	red.High()
	return leds{red: red, green: green}
}

func (l leds) Boot(ok bool) {
	if !ok {
		l.green.Low()
		l.red.High()
		return
	}
	l.red.Low()
}

func (l leds) Sleep() {
	l.red.Low()
	l.green.Low()
}

func (l leds) Wake(m mode.Mode) {
	if m == mode.HighRes {
		l.red.High()
		return
	}
	l.green.High()
}
