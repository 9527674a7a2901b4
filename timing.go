package i2cbb

import "time"

// Clock is a free running cycle counter. Cycles wraps around and is only
// ever used in differences.
type Clock interface {
	Cycles() uint32
	CyclesPerSecond() uint32
}

// SystemClock returns a Clock backed by the Go monotonic clock counting
// nanoseconds.
func SystemClock() Clock { return monotonic{} }

var epoch = time.Now()

type monotonic struct{}

func (monotonic) Cycles() uint32          { return uint32(time.Since(epoch)) }
func (monotonic) CyclesPerSecond() uint32 { return uint32(time.Second) }

// Delay table indices. The remaining named timings of the I2C bus standard
// are aliases onto these two.
const (
	tLow  = 0
	tHigh = 1

	tSuSta = tLow  // repeated START setup
	tHdSta = tHigh // START hold
	tSuStp = tHigh // STOP setup
	tBuf   = tLow  // bus free between STOP and START
)

// Bus timings in nanoseconds.
const (
	stdLowNs   = 4700
	stdHighNs  = 4000
	fastLowNs  = 1300
	fastHighNs = 600
)

// nsToCycles converts ns to cycles of a clock running at cps, rounding up.
// The +1 over-rounds exact multiples by one cycle which only lengthens timings.
func nsToCycles(cps, ns uint32) uint32 {
	return uint32(uint64(cps)*uint64(ns)/uint64(time.Second) + 1)
}

// delay spins until cycles have elapsed on the engine clock. It must not sleep
// or yield: scheduler ticks are far coarser than a bus bit period.
func (e *Engine) delay(cycles uint32) {
	start := e.clk.Cycles()
	for e.clk.Cycles()-start < cycles {
	}
}

func (e *Engine) setTiming(bitrate uint32) {
	cps := e.clk.CyclesPerSecond()
	if bitrate <= SpeedStandard.Frequency() {
		e.delays[tLow] = nsToCycles(cps, stdLowNs)
		e.delays[tHigh] = nsToCycles(cps, stdHighNs)
	} else {
		e.delays[tLow] = nsToCycles(cps, fastLowNs)
		e.delays[tHigh] = nsToCycles(cps, fastHighNs)
	}
}
