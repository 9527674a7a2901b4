package bustest

type targetState uint8

const (
	stIdle    targetState = iota // waiting for START
	stAddr                       // shifting in the address byte
	stAck                        // driving ACK
	stWrite                      // shifting in a data byte
	stRead                       // shifting out a data byte
	stHostAck                    // waiting for the controller's ACK/NACK
)

// Target is a simulated I2C target with a 256 byte register memory in the
// manner of a 24C02 EEPROM: the first byte written after the address sets the
// register pointer, further writes store at the pointer, reads return memory
// at the pointer. The pointer auto-increments.
type Target struct {
	Addr uint8
	Mem  [256]byte
	// NackAfter NACKs the n'th data byte written to the target, counting
	// from 1 across the target's lifetime. Zero never NACKs data.
	NackAfter int
	// HoldClocks keeps SDA pulled low for that many SCL falling edges, as a
	// target left in the middle of a read would. Negative holds forever.
	HoldClocks int

	// AddrBytes logs every address byte seen after a START, whether or not
	// it matched.
	AddrBytes []byte
	// Written logs every data byte written to the target, including a
	// NACKed one.
	Written []byte
	// Starts and Stops count START (including repeated START) and STOP conditions.
	Starts, Stops int

	state   targetState
	sdaOut  bool
	bitn    int
	shift   byte
	read    bool
	ptr     uint8
	ptrSet  bool
	out     byte
	hostAck bool
}

func (t *Target) reset() {
	t.state = stIdle
	t.sdaOut = t.HoldClocks == 0
}

func (t *Target) holding() bool { return t.HoldClocks != 0 }

func (t *Target) onStart() {
	t.Starts++
	if t.holding() {
		return
	}
	t.state = stAddr
	t.bitn = 0
	t.shift = 0
	t.sdaOut = true
}

func (t *Target) onStop() {
	t.Stops++
	if t.holding() {
		return
	}
	t.state = stIdle
	t.ptrSet = false
	t.sdaOut = true
}

func (t *Target) onRise(sda bool) {
	if t.holding() {
		return
	}
	switch t.state {
	case stAddr, stWrite:
		t.shift <<= 1
		if sda {
			t.shift |= 1
		}
		t.bitn++
	case stRead:
		t.bitn++
	case stHostAck:
		t.hostAck = !sda
	}
}

func (t *Target) onFall() {
	if t.holding() {
		if t.HoldClocks > 0 {
			t.HoldClocks--
			t.sdaOut = t.HoldClocks == 0
		}
		return
	}
	switch t.state {
	case stAddr:
		if t.bitn < 8 {
			return
		}
		t.AddrBytes = append(t.AddrBytes, t.shift)
		if t.shift>>1 != t.Addr {
			t.state = stIdle
			return
		}
		t.read = t.shift&1 != 0
		t.ack()
	case stWrite:
		if t.bitn < 8 {
			return
		}
		t.Written = append(t.Written, t.shift)
		if t.NackAfter > 0 && len(t.Written) == t.NackAfter {
			t.state = stIdle
			return
		}
		if !t.ptrSet {
			t.ptr = t.shift
			t.ptrSet = true
		} else {
			t.Mem[t.ptr] = t.shift
			t.ptr++
		}
		t.ack()
	case stAck:
		// End of the ACK clock.
		t.sdaOut = true
		t.bitn = 0
		t.shift = 0
		if t.read {
			t.load()
		} else {
			t.state = stWrite
		}
	case stRead:
		if t.bitn < 8 {
			t.sdaOut = t.out&(0x80>>t.bitn) != 0
			return
		}
		t.sdaOut = true
		t.state = stHostAck
	case stHostAck:
		if t.hostAck {
			t.load()
		} else {
			t.state = stIdle
		}
	}
}

func (t *Target) ack() {
	t.sdaOut = false
	t.state = stAck
}

// load drives the MSB of the byte at the register pointer.
func (t *Target) load() {
	t.out = t.Mem[t.ptr]
	t.ptr++
	t.bitn = 0
	t.state = stRead
	t.sdaOut = t.out&0x80 != 0
}
