package i2cbb

import "errors"

// PinMuxer hands the pins of a hardware I2C controller over to GPIO control
// and back.
type PinMuxer interface {
	// ToGPIO routes SCL and SDA to the GPIO block so they can be bit-banged.
	ToGPIO() error
	// Restore routes SCL and SDA back to the I2C controller.
	Restore() error
}

// RecoverPins recovers the bus of a hardware I2C controller by temporarily
// bit-banging its pins. The pins are handed back to the controller even if
// recovery fails.
func RecoverPins(mux PinMuxer, lines Lines, clk Clock) error {
	if err := mux.ToGPIO(); err != nil {
		return err
	}
	var e Engine
	e.Init(lines, clk)
	err := e.RecoverBus()
	if rerr := mux.Restore(); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}
