package i2cbb

import (
	"bytes"
	"errors"
	"testing"

	"github.com/soypat/i2cbb/internal/bustest"
)

var (
	sclHigh = bustest.Event{Op: bustest.OpSCL, High: true}
	sdaLow  = bustest.Event{Op: bustest.OpSDA, High: false}
	sdaHigh = bustest.Event{Op: bustest.OpSDA, High: true}
)

func newEngine(t *testing.T, targets ...*bustest.Target) (*Engine, *bustest.Bus) {
	t.Helper()
	bus := bustest.NewBus(targets...)
	var e Engine
	e.Init(bus, bustest.NewClock())
	return &e, bus
}

// driven returns the controller's SDA level at every SCL rising edge, which
// is what a target samples. Both lines start released.
func driven(events []bustest.Event) (bits []bool) {
	scl, sda := true, true
	for _, ev := range events {
		switch ev.Op {
		case bustest.OpSDA:
			sda = ev.High
		case bustest.OpSCL:
			if !scl && ev.High {
				bits = append(bits, sda)
			}
			scl = ev.High
		}
	}
	return bits
}

func assertEndsWithStop(t *testing.T, bus *bustest.Bus) {
	t.Helper()
	var setters []bustest.Event
	for _, ev := range bus.Events {
		if ev.Op != bustest.OpGetSDA {
			setters = append(setters, ev)
		}
	}
	if len(setters) < 3 {
		t.Fatalf("too few line operations: %s", bus.Trace())
	}
	got := setters[len(setters)-3:]
	want := []bustest.Event{sdaLow, sclHigh, sdaHigh}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transfer did not end with STOP, last ops %v", got)
		}
	}
	scl, sda := bus.Levels()
	if !scl || !sda {
		t.Fatalf("bus not idle after transfer: scl=%v sda=%v", scl, sda)
	}
}

func TestInitDefaults(t *testing.T) {
	var e Engine
	clk := bustest.NewClock()
	bus := bustest.NewBus()
	e.Init(bus, clk)
	if len(bus.Events) != 0 {
		t.Fatal("Init touched the lines:", bus.Trace())
	}
	low, high := e.Delays()
	if low != 4701 || high != 4001 {
		t.Errorf("standard delays at 1GHz: got %d/%d, want 4701/4001", low, high)
	}
	if _, err := e.Config(); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Config before Configure: got %v", err)
	}
}

func TestConfigure(t *testing.T) {
	for _, tc := range []struct {
		cfg       DevConfig
		wantErr   bool
		low, high uint32
	}{
		{cfg: MakeDevConfig(SpeedStandard), low: 4701, high: 4001},
		{cfg: MakeDevConfig(SpeedFast), low: 1301, high: 601},
		{cfg: MakeDevConfig(SpeedFastPlus), wantErr: true},
		{cfg: MakeDevConfig(SpeedHigh), wantErr: true},
		{cfg: MakeDevConfig(SpeedUltra), wantErr: true},
		{cfg: ModeController, wantErr: true},
		{cfg: MakeDevConfig(SpeedStandard) | Addr10Bits, wantErr: true},
	} {
		e, bus := newEngine(t)
		err := e.Configure(tc.cfg)
		if tc.wantErr {
			if !errors.Is(err, ErrNotSupported) {
				t.Errorf("cfg %#x: want ErrNotSupported, got %v", tc.cfg, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("cfg %#x: %v", tc.cfg, err)
			continue
		}
		low, high := e.Delays()
		if low != tc.low || high != tc.high {
			t.Errorf("cfg %#x: delays %d/%d, want %d/%d", tc.cfg, low, high, tc.low, tc.high)
		}
		got, err := e.Config()
		if err != nil || got != tc.cfg {
			t.Errorf("Config: got %#x, %v; want %#x", got, err, tc.cfg)
		}
		if len(bus.Events) != 0 {
			t.Errorf("Configure touched the lines: %s", bus.Trace())
		}
	}
}

func TestConfigureIdempotent(t *testing.T) {
	e, _ := newEngine(t)
	std, fast := MakeDevConfig(SpeedStandard), MakeDevConfig(SpeedFast)
	if err := e.Configure(std); err != nil {
		t.Fatal(err)
	}
	low1, high1 := e.Delays()
	if err := e.Configure(std); err != nil {
		t.Fatal(err)
	}
	low2, high2 := e.Delays()
	if low1 != low2 || high1 != high2 {
		t.Fatalf("repeated configure changed delays: %d/%d -> %d/%d", low1, high1, low2, high2)
	}
	if err := e.Configure(fast); err != nil {
		t.Fatal(err)
	}
	if err := e.Configure(std); err != nil {
		t.Fatal(err)
	}
	low3, high3 := e.Delays()
	if low1 != low3 || high1 != high3 {
		t.Fatalf("standard->fast->standard: %d/%d -> %d/%d", low1, high1, low3, high3)
	}
}

func TestNsToCycles(t *testing.T) {
	for _, tc := range []struct {
		cps  uint32
		ns   uint32
		want uint32
	}{
		{cps: 1_000_000_000, ns: 4700, want: 4701},
		{cps: 12_000_000, ns: 4700, want: 57}, // 56.4 truncated, plus one
		{cps: 32_768, ns: 600, want: 1},       // sub-cycle rounds up to one
		{cps: 4_000_000_000, ns: 4000, want: 16001},
	} {
		if got := nsToCycles(tc.cps, tc.ns); got != tc.want {
			t.Errorf("nsToCycles(%d, %d) = %d, want %d", tc.cps, tc.ns, got, tc.want)
		}
	}
}

func TestDelayWraparound(t *testing.T) {
	clk := bustest.NewClock()
	clk.Step = 1
	clk.Set(^uint32(0) - 5)
	var e Engine
	e.Init(bustest.NewBus(), clk)
	e.delay(20)
	// One read for the start and 20 until the difference reaches 20.
	if clk.Reads != 21 {
		t.Fatalf("delay across wraparound took %d clock reads, want 21", clk.Reads)
	}
}

func TestTransferEmpty(t *testing.T) {
	e, bus := newEngine(t)
	if err := e.Transfer(nil, 0x50); err != nil {
		t.Fatal(err)
	}
	if len(bus.Events) != 0 {
		t.Fatal("empty transfer touched the lines:", bus.Trace())
	}
}

func TestAddressFraming(t *testing.T) {
	for _, tc := range []struct {
		flags MsgFlags
		want  byte
	}{
		{flags: MsgWrite | MsgStop, want: 0xa0},
		{flags: MsgRead | MsgStop, want: 0xa1},
	} {
		target := &bustest.Target{Addr: 0x50}
		e, _ := newEngine(t, target)
		err := e.Transfer([]Msg{{Buf: make([]byte, 1), Flags: tc.flags}}, 0x50)
		if err != nil {
			t.Fatal(err)
		}
		if len(target.AddrBytes) != 1 || target.AddrBytes[0] != tc.want {
			t.Errorf("flags %#x: address bytes %#x, want [%#x]", tc.flags, target.AddrBytes, tc.want)
		}
	}
}

func TestAddressNack(t *testing.T) {
	target := &bustest.Target{Addr: 0x51}
	e, bus := newEngine(t, target)
	err := e.Transfer([]Msg{{Buf: []byte{1, 2}, Flags: MsgWrite | MsgStop}}, 0x50)
	if !errors.Is(err, ErrNoAck) {
		t.Fatalf("want ErrNoAck, got %v", err)
	}
	if len(target.Written) != 0 {
		t.Errorf("data written after address NACK: %#x", target.Written)
	}
	assertEndsWithStop(t, bus)
}

func TestReadAckFraming(t *testing.T) {
	target := &bustest.Target{Addr: 0x50}
	copy(target.Mem[:], "abc")
	e, bus := newEngine(t, target)
	buf := make([]byte, 3)
	if err := e.Transfer([]Msg{{Buf: buf, Flags: MsgRead | MsgStop}}, 0x50); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "abc" {
		t.Errorf("read %q, want %q", buf, "abc")
	}
	// Clocks: 8 address bits + ACK slot, then 3 bytes of 8 data bits + ACK slot.
	bits := driven(bus.Events)
	if len(bits) < 9+3*9 {
		t.Fatalf("only %d clocks: %s", len(bits), bus.Trace())
	}
	var acks []bool
	for i := 0; i < 3; i++ {
		acks = append(acks, !bits[9+i*9+8])
	}
	want := []bool{true, true, false}
	for i := range want {
		if acks[i] != want[i] {
			t.Fatalf("controller ACK pattern %v, want %v", acks, want)
		}
	}
	assertEndsWithStop(t, bus)
}

func TestNackAbort(t *testing.T) {
	target := &bustest.Target{Addr: 0x50, NackAfter: 3}
	e, bus := newEngine(t, target)
	msgs := []Msg{
		{Buf: []byte{1, 2, 3, 4, 5}, Flags: MsgWrite},
		{Buf: []byte{6, 7, 8}, Flags: MsgWrite | MsgStop},
	}
	err := e.Transfer(msgs, 0x50)
	if !errors.Is(err, ErrNoAck) {
		t.Fatalf("want ErrNoAck, got %v", err)
	}
	if !bytes.Equal(target.Written, []byte{1, 2, 3}) {
		t.Errorf("written %v, want [1 2 3]", target.Written)
	}
	if len(target.AddrBytes) != 1 {
		t.Errorf("address sent %d times", len(target.AddrBytes))
	}
	// Address byte plus three data bytes, 9 clocks each, then the STOP clock.
	if got := len(driven(bus.Events)); got != 4*9+1 {
		t.Errorf("%d SCL rising edges, want %d", got, 4*9+1)
	}
	assertEndsWithStop(t, bus)
}

func TestWriteThenRestartRead(t *testing.T) {
	target := &bustest.Target{Addr: 0x50}
	copy(target.Mem[0x10:], "hello")
	e, bus := newEngine(t, target)
	r := make([]byte, 5)
	err := e.Transfer([]Msg{
		{Buf: []byte{0x10}, Flags: MsgWrite},
		{Buf: r, Flags: MsgRead | MsgRestart | MsgStop},
	}, 0x50)
	if err != nil {
		t.Fatal(err)
	}
	if string(r) != "hello" {
		t.Errorf("read %q", r)
	}
	if !bytes.Equal(target.AddrBytes, []byte{0xa0, 0xa1}) {
		t.Errorf("address bytes %#x", target.AddrBytes)
	}
	assertEndsWithStop(t, bus)
}

func TestStopBetweenMessages(t *testing.T) {
	target := &bustest.Target{Addr: 0x50}
	e, _ := newEngine(t, target)
	err := e.Transfer([]Msg{
		{Buf: []byte{0x00, 0xaa}, Flags: MsgWrite | MsgStop},
		{Buf: []byte{0x01, 0xbb}, Flags: MsgWrite | MsgStop},
	}, 0x50)
	if err != nil {
		t.Fatal(err)
	}
	// A STOP ends the first message so the second needs its own START and address.
	if !bytes.Equal(target.AddrBytes, []byte{0xa0, 0xa0}) {
		t.Errorf("address bytes %#x", target.AddrBytes)
	}
	if target.Mem[0] != 0xaa || target.Mem[1] != 0xbb {
		t.Errorf("memory %#x", target.Mem[:2])
	}
}

func TestContinuedWrite(t *testing.T) {
	target := &bustest.Target{Addr: 0x50}
	e, _ := newEngine(t, target)
	err := e.Transfer([]Msg{
		{Buf: []byte{0x20}, Flags: MsgWrite},
		{Buf: []byte{1, 2, 3}, Flags: MsgWrite | MsgStop},
	}, 0x50)
	if err != nil {
		t.Fatal(err)
	}
	if len(target.AddrBytes) != 1 {
		t.Errorf("address sent %d times, want once", len(target.AddrBytes))
	}
	if !bytes.Equal(target.Mem[0x20:0x23], []byte{1, 2, 3}) {
		t.Errorf("memory %v", target.Mem[0x20:0x23])
	}
}

func TestRecoverBusSequence(t *testing.T) {
	run := func(free bool) (*bustest.Bus, error) {
		e, bus := newEngine(t)
		bus.ReadSDA = func(n int) bool {
			// Reads 0 and 1 are the START checks, 2 is the final sample.
			if n < 2 {
				return true
			}
			return free
		}
		return bus, e.RecoverBus()
	}
	freeBus, err := run(true)
	if err != nil {
		t.Fatalf("free bus: %v", err)
	}
	stuckBus, err := run(false)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("stuck bus: want ErrBusy, got %v", err)
	}
	if len(freeBus.Events) != len(stuckBus.Events) {
		t.Fatalf("sequence length differs: %d vs %d", len(freeBus.Events), len(stuckBus.Events))
	}
	for i := range freeBus.Events {
		a, b := freeBus.Events[i], stuckBus.Events[i]
		if a.Op != b.Op || (a.Op != bustest.OpGetSDA && a.High != b.High) {
			t.Fatalf("sequences differ at %d: %v vs %v", i, a, b)
		}
	}
	// START, 9 pulses, repeated START (SCL high) and STOP (SCL high).
	if n := freeBus.Count(sclHigh); n != 9+1+1 {
		t.Errorf("%d SCL rising edges, want 11", n)
	}
	if freeBus.Reads() != 3 {
		t.Errorf("%d SDA samples, want 3", freeBus.Reads())
	}
	assertEndsWithStop(t, freeBus)
}

func TestRecoverStuckTarget(t *testing.T) {
	stuck := &bustest.Target{Addr: 0x50, HoldClocks: 5}
	e, _ := newEngine(t, stuck)
	if err := e.RecoverBus(); err != nil {
		t.Fatalf("target holding SDA for 5 clocks: %v", err)
	}
	// The bus is usable again.
	if err := e.Transfer([]Msg{{Buf: []byte{0, 1}, Flags: MsgWrite | MsgStop}}, 0x50); err != nil {
		t.Fatal(err)
	}

	dead := &bustest.Target{Addr: 0x50, HoldClocks: -1}
	e, _ = newEngine(t, dead)
	if err := e.RecoverBus(); !errors.Is(err, ErrBusy) {
		t.Fatalf("target holding SDA forever: want ErrBusy, got %v", err)
	}
}
