// Package reglines binds the I2C lines of a bit-banged bus to bits of memory
// mapped registers, as exposed by simple FPGA and SoC "I2C" blocks that are
// in fact two software controlled pins.
package reglines

// Register32 is a 32-bit memory mapped register. TinyGo's
// *volatile.Register32 satisfies it.
type Register32 interface {
	Get() uint32
	Set(uint32)
}

// SBCon is an ARM two-wire serial bus interface (SBCon) as found on
// Versatile Express and MPS2 boards. Writing a bit to the set register raises
// the corresponding line, writing it to the clear register drives the line
// low, and the status register reflects the wire.
type SBCon struct {
	ControlSet   Register32
	ControlClear Register32
	Control      Register32
}

const (
	sbconSCL = 1 << 0
	sbconSDA = 1 << 1
)

// SetSCL raises or drives low the clock line.
func (s *SBCon) SetSCL(high bool) { s.set(sbconSCL, high) }

// SetSDA raises or drives low the data line.
func (s *SBCon) SetSDA(high bool) { s.set(sbconSDA, high) }

// SDA reads the data line from the status register.
func (s *SBCon) SDA() bool { return s.Control.Get()&sbconSDA != 0 }

func (s *SBCon) set(bit uint32, high bool) {
	if high {
		s.ControlSet.Set(bit)
	} else {
		s.ControlClear.Set(bit)
	}
}

// LiteX is a LiteX bit-banged I2C master CSR block. The write register holds
// SCL, the SDA output enable and the SDA output value; the read register
// holds the SDA input.
type LiteX struct {
	W Register32
	R Register32
}

const (
	litexSCL   = 1 << 0
	litexSDAOE = 1 << 1
	litexSDAW  = 1 << 2
	litexSDAR  = 1 << 0
)

// SetSCL sets the clock bit of the write register, keeping the SDA bits.
func (l *LiteX) SetSCL(high bool) {
	w := l.W.Get()
	if high {
		w |= litexSCL
	} else {
		w &^= litexSCL
	}
	l.W.Set(w)
}

// SetSDA drives SDA low with the output enabled, or releases it by disabling
// the output.
func (l *LiteX) SetSDA(high bool) {
	w := l.W.Get()
	if high {
		w = w&^litexSDAOE | litexSDAW
	} else {
		w = w&^litexSDAW | litexSDAOE
	}
	l.W.Set(w)
}

// SDA reads the data line from the read register.
func (l *LiteX) SDA() bool { return l.R.Get()&litexSDAR != 0 }
