package analyze

import (
	"github.com/soypat/i2cbb"
)

// Leveler is implemented by lines that can report the wire level of both
// lines, as opposed to the level the controller drives.
type Leveler interface {
	Levels() (scl, sda bool)
}

// Recorder is an [i2cbb.Lines] that records the edges of the lines it wraps,
// timestamped with the cycle counter the engine delays on. If the wrapped
// lines implement [Leveler] the wire levels are recorded, which includes
// what targets drive. Otherwise the controller's levels are recorded.
type Recorder struct {
	lines i2cbb.Lines
	wire  Leveler
	clk   i2cbb.Clock
	last  uint32
	now   float64

	scl, sda       Channel
	sclLvl, sdaLvl bool
	drvSCL, drvSDA bool
}

// NewRecorder starts recording lines at time zero. clk must be the clock the
// engine driving the recorder delays on, or a nil clock for [i2cbb.SystemClock].
func NewRecorder(lines i2cbb.Lines, clk i2cbb.Clock) *Recorder {
	if clk == nil {
		clk = i2cbb.SystemClock()
	}
	r := &Recorder{lines: lines, clk: clk}
	r.wire, _ = lines.(Leveler)
	r.Reset()
	return r
}

// Reset discards recorded edges and restarts time at zero.
func (r *Recorder) Reset() {
	r.drvSCL, r.drvSDA = true, true
	r.sclLvl, r.sdaLvl = r.levels()
	r.scl = Channel{Initial: r.sclLvl}
	r.sda = Channel{Initial: r.sdaLvl}
	r.last = r.clk.Cycles()
	r.now = 0
}

func (r *Recorder) SetSCL(high bool) {
	r.lines.SetSCL(high)
	r.drvSCL = high
	r.record()
}

func (r *Recorder) SetSDA(high bool) {
	r.lines.SetSDA(high)
	r.drvSDA = high
	r.record()
}

func (r *Recorder) SDA() bool { return r.lines.SDA() }

// Err forwards the error of the wrapped lines, if they report any.
func (r *Recorder) Err() error {
	if el, ok := r.lines.(interface{ Err() error }); ok {
		return el.Err()
	}
	return nil
}

// Channels returns the recorded timelines. They alias the recorder's
// buffers until the next Reset.
func (r *Recorder) Channels() (scl, sda Channel) {
	return r.scl, r.sda
}

// Decode decodes the frames recorded so far.
func (r *Recorder) Decode() ([]Frame, error) {
	return Decode(r.scl, r.sda)
}

func (r *Recorder) levels() (scl, sda bool) {
	if r.wire != nil {
		return r.wire.Levels()
	}
	return r.drvSCL, r.drvSDA
}

// record timestamps level changes. SCL is appended first so simultaneous
// edges order the same way Decode merges them.
func (r *Recorder) record() {
	now := r.clk.Cycles()
	r.now += float64(now-r.last) / float64(r.clk.CyclesPerSecond())
	r.last = now
	scl, sda := r.levels()
	if scl != r.sclLvl {
		r.scl.Transitions = append(r.scl.Transitions, r.now)
		r.sclLvl = scl
	}
	if sda != r.sdaLvl {
		r.sda.Transitions = append(r.sda.Transitions, r.now)
		r.sdaLvl = sda
	}
}
