// Package bustest provides a simulated open-drain I2C bus with reactive
// targets and a fake cycle counter for testing bit-banged controllers.
package bustest

import "strings"

// Op is a line operation performed by the controller.
type Op uint8

const (
	OpSCL    Op = iota // SetSCL
	OpSDA              // SetSDA
	OpGetSDA           // SDA read
)

// Event is a logged line operation. High is the level written, or the level
// read for OpGetSDA.
type Event struct {
	Op   Op
	High bool
}

func (ev Event) String() string {
	var s string
	switch ev.Op {
	case OpSCL:
		s = "SCL"
	case OpSDA:
		s = "SDA"
	case OpGetSDA:
		s = "SDA?"
	default:
		s = "?"
	}
	if ev.High {
		return s + "=1"
	}
	return s + "=0"
}

// Bus is a simulated I2C bus. The controller side is exposed through SetSCL,
// SetSDA and SDA. The wire level of each line is the AND of everything
// driving it, so a released line reads high unless a target pulls it low.
type Bus struct {
	// Events logs every controller operation in order.
	Events []Event
	// ReadSDA, if set, overrides the wire when the controller reads SDA.
	// n counts SDA reads starting at 0.
	ReadSDA func(n int) bool

	targets []*Target
	scl     bool
	sda     bool
	reads   int
}

// NewBus returns an idle bus with targets attached.
func NewBus(targets ...*Target) *Bus {
	for _, t := range targets {
		t.reset()
	}
	return &Bus{targets: targets, scl: true, sda: true}
}

// SetSCL drives SCL from the controller side.
func (b *Bus) SetSCL(high bool) {
	b.Events = append(b.Events, Event{Op: OpSCL, High: high})
	prevSCL, prevSDA := b.Levels()
	b.scl = high
	b.update(prevSCL, prevSDA)
}

// SetSDA drives SDA from the controller side.
func (b *Bus) SetSDA(high bool) {
	b.Events = append(b.Events, Event{Op: OpSDA, High: high})
	prevSCL, prevSDA := b.Levels()
	b.sda = high
	b.update(prevSCL, prevSDA)
}

// SDA samples the SDA wire.
func (b *Bus) SDA() bool {
	_, v := b.Levels()
	if b.ReadSDA != nil {
		v = b.ReadSDA(b.reads)
	}
	b.reads++
	b.Events = append(b.Events, Event{Op: OpGetSDA, High: v})
	return v
}

// Levels returns the wire level of SCL and SDA.
func (b *Bus) Levels() (scl, sda bool) {
	sda = b.sda
	for _, t := range b.targets {
		sda = sda && t.sdaOut
	}
	return b.scl, sda
}

// Reads returns the number of times the controller sampled SDA.
func (b *Bus) Reads() int { return b.reads }

// Reset clears the event log and read count.
func (b *Bus) Reset() {
	b.Events = b.Events[:0]
	b.reads = 0
}

// Count returns the number of logged events matching ev.
func (b *Bus) Count(ev Event) (n int) {
	for _, e := range b.Events {
		if e == ev {
			n++
		}
	}
	return n
}

// Trace formats the event log on one line.
func (b *Bus) Trace() string {
	var sb strings.Builder
	for i, ev := range b.Events {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(ev.String())
	}
	return sb.String()
}

func (b *Bus) update(prevSCL, prevSDA bool) {
	scl, sda := b.Levels()
	switch {
	case prevSCL && scl && prevSDA && !sda:
		for _, t := range b.targets {
			t.onStart()
		}
	case prevSCL && scl && !prevSDA && sda:
		for _, t := range b.targets {
			t.onStop()
		}
	case !prevSCL && scl:
		for _, t := range b.targets {
			t.onRise(sda)
		}
	case prevSCL && !scl:
		for _, t := range b.targets {
			t.onFall()
		}
	}
}

// Clock is a fake cycle counter that advances Step cycles every read.
type Clock struct {
	CPS  uint32
	Step uint32
	now  uint32
	// Reads counts calls to Cycles.
	Reads int
}

// NewClock returns a 1GHz clock advancing 1000 cycles per read, so every
// bus delay completes within a handful of reads.
func NewClock() *Clock { return &Clock{CPS: 1_000_000_000, Step: 1000} }

func (c *Clock) Cycles() uint32 {
	c.Reads++
	c.now += c.Step
	return c.now
}

func (c *Clock) CyclesPerSecond() uint32 { return c.CPS }

// Set moves the counter to now, for exercising wraparound.
func (c *Clock) Set(now uint32) { c.now = now }
