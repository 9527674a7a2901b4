package i2cbb

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"
)

var (
	_ drivers.I2C = (*Bus)(nil)
	_ i2c.Bus     = (*Bus)(nil)
)

// BusConfig configures a [Bus].
type BusConfig struct {
	// Name identifies the bus in logs and String. Defaults to "i2cbb".
	Name string
	// Frequency is the nominal bus frequency in Hertz. Defaults to 100kHz.
	Frequency uint32
	// Clock times the bus. Defaults to SystemClock.
	Clock  Clock
	Logger *slog.Logger
}

// Bus is an I2C controller on a pair of bit-banged lines. It is safe for
// concurrent use.
type Bus struct {
	mu     sync.Mutex
	name   string
	lines  Lines
	engine Engine
	logger *slog.Logger
}

// errLines is implemented by line bindings whose pin operations can fail.
// Err returns and clears the first error since the last call.
type errLines interface {
	Err() error
}

// NewBus initializes an engine on lines and configures it as a controller at
// cfg.Frequency.
func NewBus(lines Lines, cfg BusConfig) (*Bus, error) {
	if lines == nil {
		return nil, errors.New("i2cbb: nil lines")
	}
	b := &Bus{
		name:   cfg.Name,
		lines:  lines,
		logger: cfg.Logger,
	}
	if b.name == "" {
		b.name = "i2cbb"
	}
	freq := cfg.Frequency
	if freq == 0 {
		freq = SpeedStandard.Frequency()
	}
	b.engine.Init(lines, cfg.Clock)
	speed, err := SpeedFromFrequency(freq)
	if err == nil {
		err = b.engine.Configure(MakeDevConfig(speed))
	}
	if err != nil {
		b.logerr("configure", slog.Uint64("freq", uint64(freq)), slog.String("err", err.Error()))
		return nil, err
	}
	b.info("bus ready", slog.String("speed", speed.String()))
	return b, nil
}

// Configure reconfigures the bus speed.
func (b *Bus) Configure(cfg DevConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.engine.Configure(cfg)
	if err != nil {
		b.debug("configure rejected", slog.Uint64("cfg", uint64(cfg)))
	}
	return err
}

// Config returns the current configuration of the bus.
func (b *Bus) Config() (DevConfig, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.engine.Config()
}

// Transfer executes msgs against the target at 7-bit address addr.
// See [Engine.Transfer].
func (b *Bus) Transfer(msgs []Msg, addr uint16) error {
	if addr > 0x7f {
		return ErrNotSupported
	}
	for i := range msgs {
		if msgs[i].Flags&MsgAddr10 != 0 {
			return ErrNotSupported
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.engine.Transfer(msgs, addr)
	if el, ok := b.lines.(errLines); ok {
		if lerr := el.Err(); lerr != nil {
			err = errors.Join(err, lerr)
		}
	}
	if err != nil {
		b.debug("transfer failed", slog.Uint64("addr", uint64(addr)), slog.Int("msgs", len(msgs)), slog.String("err", err.Error()))
	}
	return err
}

// RecoverBus clocks a stuck target out of the middle of a byte.
// See [Engine.RecoverBus].
func (b *Bus) RecoverBus() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.info("bus recovery")
	err := b.engine.RecoverBus()
	if err != nil {
		b.logerr("bus recovery failed", slog.String("err", err.Error()))
	}
	return err
}

// Write writes buf to the target in a single message.
func (b *Bus) Write(addr uint16, buf []byte) error {
	return b.Transfer([]Msg{{Buf: buf, Flags: MsgWrite | MsgStop}}, addr)
}

// Read reads len(buf) bytes from the target.
func (b *Bus) Read(addr uint16, buf []byte) error {
	return b.Transfer([]Msg{{Buf: buf, Flags: MsgRead | MsgStop}}, addr)
}

// WriteRead writes w to the target then reads r after a repeated START.
func (b *Bus) WriteRead(addr uint16, w, r []byte) error {
	return b.Transfer([]Msg{
		{Buf: w, Flags: MsgWrite},
		{Buf: r, Flags: MsgRead | MsgRestart | MsgStop},
	}, addr)
}

// BurstRead reads consecutive registers starting at reg.
func (b *Bus) BurstRead(addr uint16, reg uint8, buf []byte) error {
	return b.WriteRead(addr, []byte{reg}, buf)
}

// BurstWrite writes consecutive registers starting at reg. The register
// address and data are sent as two messages without a repeated START.
func (b *Bus) BurstWrite(addr uint16, reg uint8, buf []byte) error {
	return b.Transfer([]Msg{
		{Buf: []byte{reg}, Flags: MsgWrite},
		{Buf: buf, Flags: MsgWrite | MsgStop},
	}, addr)
}

// RegReadByte reads a single register.
func (b *Bus) RegReadByte(addr uint16, reg uint8) (byte, error) {
	var v [1]byte
	err := b.WriteRead(addr, []byte{reg}, v[:])
	return v[0], err
}

// RegWriteByte writes a single register.
func (b *Bus) RegWriteByte(addr uint16, reg, value uint8) error {
	return b.Write(addr, []byte{reg, value})
}

// RegUpdateByte sets the bits of mask in register reg to value. The register
// is not written when it already holds the new value.
func (b *Bus) RegUpdateByte(addr uint16, reg, mask, value uint8) error {
	old, err := b.RegReadByte(addr, reg)
	if err != nil {
		return err
	}
	v := old&^mask | value&mask
	if v == old {
		return nil
	}
	return b.RegWriteByte(addr, reg, v)
}

// Probe reports whether a target acknowledges addr. It sends the address
// followed by a STOP with no data.
func (b *Bus) Probe(addr uint16) (bool, error) {
	err := b.Write(addr, nil)
	if errors.Is(err, ErrNoAck) {
		return false, nil
	}
	return err == nil, err
}

// Scan probes every non-reserved 7-bit address and returns those that
// acknowledge.
func (b *Bus) Scan() ([]uint16, error) {
	var found []uint16
	for addr := uint16(0x08); addr <= 0x77; addr++ {
		ok, err := b.Probe(addr)
		if err != nil {
			return found, err
		}
		if ok {
			found = append(found, addr)
		}
	}
	b.debug("scan done", slog.Int("found", len(found)))
	return found, nil
}

// Tx writes w and then reads r from the target after a repeated START. If
// both are empty the target is probed with an empty write.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	var msgs [2]Msg
	n := 0
	if len(w) > 0 || len(r) == 0 {
		msgs[n] = Msg{Buf: w, Flags: MsgWrite}
		n++
	}
	if len(r) > 0 {
		msgs[n] = Msg{Buf: r, Flags: MsgRead | MsgRestart}
		n++
	}
	msgs[n-1].Flags |= MsgStop
	return b.Transfer(msgs[:n], addr)
}

// ReadRegister reads len(buf) bytes starting at register r.
func (b *Bus) ReadRegister(addr uint8, r uint8, buf []byte) error {
	return b.BurstRead(uint16(addr), r, buf)
}

// WriteRegister writes buf starting at register r.
func (b *Bus) WriteRegister(addr uint8, r uint8, buf []byte) error {
	return b.BurstWrite(uint16(addr), r, buf)
}

// SetSpeed sets the highest bus frequency the targets tolerate. The bus runs
// at the fastest supported speed not above f: standard from 100kHz and fast
// from 400kHz. Below 100kHz ErrNotSupported is returned.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	var s Speed
	switch {
	case f < 100*physic.KiloHertz:
		return ErrNotSupported
	case f < 400*physic.KiloHertz:
		s = SpeedStandard
	default:
		s = SpeedFast
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	cfg, err := b.engine.Config()
	if err != nil {
		cfg = ModeController
	}
	return b.engine.Configure(cfg.WithSpeed(s))
}

func (b *Bus) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	cfg, _ := b.engine.Config()
	return b.name + "(" + cfg.Speed().String() + " " + strconv.FormatUint(uint64(cfg.Speed().Frequency()/1000), 10) + "kHz)"
}

func (b *Bus) logerr(msg string, attrs ...slog.Attr) {
	b.logattrs(slog.LevelError, msg, attrs...)
}

func (b *Bus) info(msg string, attrs ...slog.Attr) {
	b.logattrs(slog.LevelInfo, msg, attrs...)
}

func (b *Bus) debug(msg string, attrs ...slog.Attr) {
	b.logattrs(slog.LevelDebug, msg, attrs...)
}

func (b *Bus) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if b.logger == nil {
		return
	}
	b.logger.LogAttrs(context.Background(), level, msg, append(attrs, slog.String("bus", b.name))...)
}
