//go:build tinygo

// Package machinelines binds the I2C lines of a bit-banged bus to TinyGo
// machine pins.
package machinelines

import "machine"

// Lines drives SCL and SDA as emulated open-drain pins: high switches the
// pin to an input with pull-up, low drives it as a low output.
type Lines struct {
	scl machine.Pin
	sda machine.Pin
}

// New configures scl and sda as released lines.
func New(scl, sda machine.Pin) *Lines {
	l := &Lines{scl: scl, sda: sda}
	release(scl)
	release(sda)
	return l
}

func (l *Lines) SetSCL(high bool) { set(l.scl, high) }

func (l *Lines) SetSDA(high bool) { set(l.sda, high) }

func (l *Lines) SDA() bool { return l.sda.Get() }

func set(p machine.Pin, high bool) {
	if high {
		release(p)
		return
	}
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.Low()
}

func release(p machine.Pin) {
	p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
}
