// Package analyze decodes I2C transactions from the edge timelines of the
// SCL and SDA lines, as captured by a logic analyzer or by a [Recorder].
package analyze

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/soypat/saleae"
)

// Channel is the timeline of a digital line: its level at the start of the
// capture and the times in seconds at which it toggled.
type Channel struct {
	Initial     bool
	Transitions []float64
}

// LevelAt returns the level of the channel at time t. A transition at
// exactly t has already happened.
func (c Channel) LevelAt(t float64) bool {
	n := sort.Search(len(c.Transitions), func(i int) bool { return c.Transitions[i] > t })
	return c.Initial != (n%2 == 1)
}

// FromDigitalFile converts a Saleae binary digital capture to a Channel.
func FromDigitalFile(df *saleae.DigitalFile) Channel {
	return Channel{
		Initial:     df.Header.InitialState != 0,
		Transitions: df.Data,
	}
}

// ReadDigitalFile reads a Saleae binary digital capture from a file.
func ReadDigitalFile(filename string) (Channel, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return Channel{}, err
	}
	defer fp.Close()
	df, err := saleae.ReadDigitalFile(fp)
	if err != nil {
		return Channel{}, fmt.Errorf("%s: %w", filename, err)
	}
	return FromDigitalFile(df), nil
}

// Frame is a single addressed transaction: everything between a START or
// repeated START and the next START or STOP.
type Frame struct {
	Start float64
	End   float64
	// Restart is set if the frame began with a repeated START.
	Restart bool
	Addr    uint8
	Read    bool
	AddrAck bool
	Data    []byte
	// Acks holds the ACK bit following each Data byte.
	Acks []bool
	// Stopped is set if the frame ended with a STOP condition.
	Stopped bool
	// Partial is the number of bits clocked of an incomplete trailing byte.
	Partial int
}

func (f Frame) String() string {
	var sb strings.Builder
	if f.Restart {
		sb.WriteString("Sr ")
	} else {
		sb.WriteString("S ")
	}
	dir := 'W'
	if f.Read {
		dir = 'R'
	}
	fmt.Fprintf(&sb, "0x%02x %c %s", f.Addr, dir, ackStr(f.AddrAck))
	for i, b := range f.Data {
		fmt.Fprintf(&sb, " 0x%02x %s", b, ackStr(f.Acks[i]))
	}
	if f.Partial > 0 {
		fmt.Fprintf(&sb, " +%dbits", f.Partial)
	}
	if f.Stopped {
		sb.WriteString(" P")
	}
	return sb.String()
}

func ackStr(ack bool) string {
	if ack {
		return "A"
	}
	return "N"
}

var errNoEdges = errors.New("analyze: no edges in capture")

// Decode finds the I2C frames in the capture of a bus. SDA is sampled on
// SCL rising edges and the bit is taken on the following falling edge; SDA
// changes while SCL is high are START and STOP conditions and discard the
// sample. Bits clocked outside of a frame are ignored.
func Decode(scl, sda Channel) ([]Frame, error) {
	edges := merge(scl, sda)
	if len(edges) == 0 {
		return nil, errNoEdges
	}
	var (
		d      decoder
		sclLvl = scl.Initial
		sdaLvl = sda.Initial
	)
	for _, e := range edges {
		switch {
		case e.sda && sclLvl && sdaLvl:
			d.start(e.t)
		case e.sda && sclLvl && !sdaLvl:
			d.stop(e.t)
		case !e.sda && !sclLvl:
			d.sample, d.sampled = sdaLvl, true
		case !e.sda && sclLvl && d.sampled:
			d.sampled = false
			d.bit(d.sample)
		}
		if e.sda {
			sdaLvl = !sdaLvl
		} else {
			sclLvl = !sclLvl
		}
	}
	d.flush(edges[len(edges)-1].t)
	return d.frames, nil
}

type edge struct {
	t   float64
	sda bool
}

// merge orders the edges of both channels in time. Simultaneous edges are
// ordered SCL first.
func merge(scl, sda Channel) []edge {
	edges := make([]edge, 0, len(scl.Transitions)+len(sda.Transitions))
	i, j := 0, 0
	for i < len(scl.Transitions) || j < len(sda.Transitions) {
		if j == len(sda.Transitions) || (i < len(scl.Transitions) && scl.Transitions[i] <= sda.Transitions[j]) {
			edges = append(edges, edge{t: scl.Transitions[i]})
			i++
		} else {
			edges = append(edges, edge{t: sda.Transitions[j], sda: true})
			j++
		}
	}
	return edges
}

type decoder struct {
	frames  []Frame
	cur     *Frame
	bits    int
	shift   byte
	sample  bool
	sampled bool
}

func (d *decoder) start(t float64) {
	d.sampled = false
	restart := d.cur != nil
	if restart {
		d.cur.End = t
		d.finish()
	}
	d.cur = &Frame{Start: t, Restart: restart}
	d.bits = 0
	d.shift = 0
}

func (d *decoder) stop(t float64) {
	d.sampled = false
	if d.cur == nil {
		return
	}
	d.cur.End = t
	d.cur.Stopped = true
	d.finish()
}

func (d *decoder) flush(t float64) {
	if d.cur != nil {
		d.cur.End = t
		d.finish()
	}
}

func (d *decoder) finish() {
	f := d.cur
	d.cur = nil
	f.Partial = d.bits
	if !f.addressed() && f.Partial == 0 {
		// START immediately followed by STOP or START carries nothing.
		return
	}
	d.frames = append(d.frames, *f)
}

func (d *decoder) bit(level bool) {
	if d.cur == nil {
		return
	}
	if d.bits < 8 {
		d.shift <<= 1
		if level {
			d.shift |= 1
		}
		d.bits++
		return
	}
	// Ninth bit: ACK is low.
	ack := !level
	f := d.cur
	if !f.addressed() {
		f.Addr = d.shift >> 1
		f.Read = d.shift&1 != 0
		f.AddrAck = ack
		f.Acks = []bool{}
	} else {
		f.Data = append(f.Data, d.shift)
		f.Acks = append(f.Acks, ack)
	}
	d.bits = 0
	d.shift = 0
}

// addressed reports whether the address byte has been decoded. Acks is
// non-nil from then on.
func (f *Frame) addressed() bool { return f.Acks != nil }
