// Package i2cbb implements an I2C controller in software by toggling the
// SCL and SDA lines of a bus through a [Lines] implementation.
//
// The protocol engine, [Engine], has no dependencies besides its lines and a
// free running cycle counter ([Clock]). [Bus] wraps an engine with a lock,
// logging and the usual convenience transfers.
package i2cbb

import "errors"

// Lines is the physical binding of an I2C bus. A high level means the line is
// released and pulled up by the bus; a low level means it is driven low.
// SDA must report the level on the wire, not the last value written.
type Lines interface {
	SetSCL(high bool)
	SetSDA(high bool)
	SDA() bool
}

var (
	// ErrNotSupported is returned for addressing modes or bus speeds the
	// engine cannot produce.
	ErrNotSupported = errors.New("i2cbb: not supported")
	// ErrNoAck is returned when the target did not acknowledge an address or data byte.
	ErrNoAck = errors.New("i2cbb: no ACK received")
	// ErrBusy is returned when bus recovery could not release SDA.
	ErrBusy = errors.New("i2cbb: bus busy")
	// ErrNotConfigured is returned by Config before a successful Configure.
	ErrNotConfigured = errors.New("i2cbb: not configured")
)

// MsgFlags describe a single message of a transfer.
type MsgFlags uint8

const (
	// MsgWrite is the zero value; a message without MsgRead writes.
	MsgWrite MsgFlags = 0
	// MsgRead reads into the message buffer.
	MsgRead MsgFlags = 1 << 0
	// MsgStop sends a STOP condition after the message.
	MsgStop MsgFlags = 1 << 1
	// MsgRestart sends a repeated START condition before the message.
	MsgRestart MsgFlags = 1 << 2
	// MsgAddr10 requests 10-bit addressing. Not supported.
	MsgAddr10 MsgFlags = 1 << 3

	msgRWMask = MsgRead
)

// Msg is a single message of a transfer.
type Msg struct {
	Buf   []byte
	Flags MsgFlags
}

func (m Msg) isRead() bool { return m.Flags&msgRWMask == MsgRead }

// Speed is an I2C bus speed class.
type Speed uint8

const (
	SpeedStandard Speed = iota + 1 // 100 kHz
	SpeedFast                      // 400 kHz
	SpeedFastPlus                  // 1 MHz
	SpeedHigh                      // 3.4 MHz
	SpeedUltra                     // 5 MHz
)

// Frequency returns the nominal bit rate of the speed class in Hertz.
func (s Speed) Frequency() uint32 {
	switch s {
	case SpeedStandard:
		return 100_000
	case SpeedFast:
		return 400_000
	case SpeedFastPlus:
		return 1_000_000
	case SpeedHigh:
		return 3_400_000
	case SpeedUltra:
		return 5_000_000
	}
	return 0
}

func (s Speed) String() string {
	switch s {
	case SpeedStandard:
		return "standard"
	case SpeedFast:
		return "fast"
	case SpeedFastPlus:
		return "fast-plus"
	case SpeedHigh:
		return "high"
	case SpeedUltra:
		return "ultra"
	}
	return "unknown"
}

// SpeedFromFrequency maps an exact nominal bit rate in Hertz to its speed class.
func SpeedFromFrequency(hz uint32) (Speed, error) {
	for s := SpeedStandard; s <= SpeedUltra; s++ {
		if s.Frequency() == hz {
			return s, nil
		}
	}
	return 0, ErrNotSupported
}

// DevConfig is a device configuration bitfield:
//
//	bit 0     10-bit addressing
//	bits 1..3 speed
//	bit 4     controller mode
type DevConfig uint32

const (
	Addr10Bits     DevConfig = 1 << 0
	ModeController DevConfig = 1 << 4

	speedShift           = 1
	speedMask  DevConfig = 0x7 << speedShift
)

// MakeDevConfig returns a controller mode configuration for speed s.
func MakeDevConfig(s Speed) DevConfig {
	return ModeController | DevConfig(s)<<speedShift&speedMask
}

// Speed returns the speed field of the configuration.
func (c DevConfig) Speed() Speed { return Speed((c & speedMask) >> speedShift) }

// WithSpeed returns c with its speed field replaced by s.
func (c DevConfig) WithSpeed(s Speed) DevConfig {
	return c&^speedMask | DevConfig(s)<<speedShift&speedMask
}
