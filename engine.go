package i2cbb

// Engine is a single controller I2C protocol engine. It supports 7-bit
// addressing at standard and fast speeds and does not support clock
// stretching since SCL is never read back.
//
// Engine holds no lock: callers sharing an Engine between goroutines must
// serialize calls to it, as [Bus] does.
type Engine struct {
	lines  Lines
	clk    Clock
	delays [2]uint32
	config DevConfig
}

// Init binds the engine to its lines and clock and selects standard speed
// timings. A nil clock selects [SystemClock]. Init does not touch the lines.
func (e *Engine) Init(lines Lines, clk Clock) {
	if clk == nil {
		clk = SystemClock()
	}
	e.lines = lines
	e.clk = clk
	e.config = 0
	e.setTiming(SpeedStandard.Frequency())
}

// Configure sets the bus speed from cfg. Only 7-bit addressing and the
// standard and fast speeds are supported.
func (e *Engine) Configure(cfg DevConfig) error {
	if cfg&Addr10Bits != 0 {
		return ErrNotSupported
	}
	switch s := cfg.Speed(); s {
	case SpeedStandard, SpeedFast:
		e.setTiming(s.Frequency())
	default:
		return ErrNotSupported
	}
	e.config = cfg
	return nil
}

// Config returns the configuration last accepted by Configure.
func (e *Engine) Config() (DevConfig, error) {
	if e.config == 0 {
		return 0, ErrNotConfigured
	}
	return e.config, nil
}

// Delays returns the SCL low and high periods in clock cycles.
func (e *Engine) Delays() (low, high uint32) {
	return e.delays[tLow], e.delays[tHigh]
}

// Transfer executes msgs in order against the target at 7-bit address addr.
// The first message is always preceded by a START condition and the address
// byte is sent after every START. A STOP condition is always sent before
// Transfer returns, including when a byte is not acknowledged, in which case
// the remaining bytes and messages are abandoned and ErrNoAck is returned.
// Transfer with no messages does nothing.
func (e *Engine) Transfer(msgs []Msg, addr uint16) error {
	if len(msgs) == 0 {
		return nil
	}
	// Make sure SCL is high so the target sees the first START.
	e.setSCL(true)
	err := e.transfer(msgs, addr)
	e.stop()
	return err
}

func (e *Engine) transfer(msgs []Msg, addr uint16) error {
	// The first message behaves as if the one before it ended with a STOP.
	prev := MsgStop
	for _, msg := range msgs {
		started := true
		switch {
		case prev&MsgStop != 0:
			e.stop()
			e.start()
		case msg.Flags&MsgRestart != 0:
			e.repeatedStart()
		default:
			started = false
		}

		if started {
			byte0 := byte(addr << 1)
			if msg.isRead() {
				byte0 |= 1
			}
			if !e.writeByte(byte0) {
				return ErrNoAck
			}
		}

		if msg.isRead() {
			for i := range msg.Buf {
				msg.Buf[i] = e.readByte()
				// ACK every byte but the last.
				e.writeBit(i == len(msg.Buf)-1)
			}
		} else {
			for _, b := range msg.Buf {
				if !e.writeByte(b) {
					return ErrNoAck
				}
			}
		}
		prev = msg.Flags
	}
	return nil
}

// RecoverBus attempts to free a bus whose SDA line is held low by a target
// left in the middle of a byte. It sends a START, nine clock pulses with SDA
// released, a repeated START and a STOP. ErrBusy is returned if SDA is still
// low afterwards. No target is addressed.
func (e *Engine) RecoverBus() error {
	e.start()
	for i := 0; i < 9; i++ {
		e.writeBit(true)
	}
	e.repeatedStart()
	e.stop()
	if !e.getSDA() {
		return ErrBusy
	}
	return nil
}

func (e *Engine) setSCL(high bool) { e.lines.SetSCL(high) }

func (e *Engine) setSDA(high bool) { e.lines.SetSDA(high) }

func (e *Engine) getSDA() bool { return e.lines.SDA() }

// start expects SCL high and leaves both lines low.
func (e *Engine) start() {
	if !e.getSDA() {
		// SDA already low: pulse the clock to get the target to release it.
		e.setSCL(false)
		e.delay(e.delays[tLow])
		e.setSCL(true)
		e.delay(e.delays[tSuSta])
	}
	e.setSDA(false)
	e.delay(e.delays[tHdSta])

	e.setSCL(false)
	e.delay(e.delays[tLow])
}

func (e *Engine) repeatedStart() {
	e.setSDA(true)
	e.setSCL(true)
	e.delay(e.delays[tHigh])

	e.delay(e.delays[tSuSta])
	e.start()
}

// stop leaves the bus idle with both lines released.
func (e *Engine) stop() {
	e.setSDA(false)
	e.delay(e.delays[tLow])

	e.setSCL(true)
	e.delay(e.delays[tHigh])

	e.delay(e.delays[tSuStp])
	e.setSDA(true)
	e.delay(e.delays[tBuf])
}

// writeBit clocks out a single bit. SDA hold time is zero so SDA is set
// without delay.
func (e *Engine) writeBit(bit bool) {
	e.setSDA(bit)
	e.setSCL(true)
	e.delay(e.delays[tHigh])
	e.setSCL(false)
	e.delay(e.delays[tLow])
}

func (e *Engine) readBit() bool {
	// Release SDA so the target may drive it.
	e.setSDA(true)
	e.setSCL(true)
	e.delay(e.delays[tHigh])
	bit := e.getSDA()
	e.setSCL(false)
	e.delay(e.delays[tLow])
	return bit
}

// writeByte writes b MSB first and reports whether the target acknowledged it.
func (e *Engine) writeByte(b byte) (ack bool) {
	for mask := byte(1 << 7); mask != 0; mask >>= 1 {
		e.writeBit(b&mask != 0)
	}
	// ACK is active low.
	return !e.readBit()
}

func (e *Engine) readByte() (b byte) {
	for i := 0; i < 8; i++ {
		b <<= 1
		if e.readBit() {
			b |= 1
		}
	}
	return b
}
