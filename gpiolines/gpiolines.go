// Package gpiolines binds the I2C lines of a bit-banged bus to periph.io
// GPIO pins.
//
// Both pins emulate open-drain outputs: a high level releases the pin as an
// input with pull-up and lets the bus pull-up raise the line, a low level
// drives the pin low. An external pull-up is still recommended since the
// internal ones are weak.
package gpiolines

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
)

// Lines drives SCL and SDA on two GPIO pins.
type Lines struct {
	scl gpio.PinIO
	sda gpio.PinIO
	err error
}

// New releases both pins, leaving the bus idle.
func New(scl, sda gpio.PinIO) (*Lines, error) {
	if scl == nil || sda == nil {
		return nil, errors.New("gpiolines: nil pin")
	}
	l := &Lines{scl: scl, sda: sda}
	if err := release(scl); err != nil {
		return nil, fmt.Errorf("gpiolines: SCL %s: %w", scl, err)
	}
	if err := release(sda); err != nil {
		return nil, fmt.Errorf("gpiolines: SDA %s: %w", sda, err)
	}
	return l, nil
}

func (l *Lines) String() string {
	return fmt.Sprintf("gpiolines(%s, %s)", l.scl, l.sda)
}

// SetSCL releases (high) or drives low the clock pin.
func (l *Lines) SetSCL(high bool) { l.set(l.scl, high) }

// SetSDA releases (high) or drives low the data pin.
func (l *Lines) SetSDA(high bool) { l.set(l.sda, high) }

// SDA reads the data pin.
func (l *Lines) SDA() bool { return l.sda.Read() == gpio.High }

// Err returns the first pin error since the last call to Err and clears it.
func (l *Lines) Err() error {
	err := l.err
	l.err = nil
	return err
}

// SCLPin returns the clock pin.
func (l *Lines) SCLPin() gpio.PinIO { return l.scl }

// SDAPin returns the data pin.
func (l *Lines) SDAPin() gpio.PinIO { return l.sda }

func (l *Lines) set(p gpio.PinIO, high bool) {
	var err error
	if high {
		err = release(p)
	} else {
		err = p.Out(gpio.Low)
	}
	if err != nil && l.err == nil {
		l.err = fmt.Errorf("gpiolines: %s: %w", p, err)
	}
}

func release(p gpio.PinIO) error {
	return p.In(gpio.PullUp, gpio.NoEdge)
}
