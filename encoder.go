package norflash

import "fmt"

// command is one flash instruction before framing. A zero op means the opcode
// is left out, as in the follow-up bursts of a continuous read.
type command struct {
	op      byte
	addr    uint32
	hasAddr bool
	mode    byte
	hasMode bool
	dummy   uint8 // dummy clocks, counted in address-phase bits
	read    bool
	buf     []byte
}

// issue encodes c into the next pipeline slot and queues it. Received data is
// only valid after the pipeline drained.
func (f *Flash) issue(c command) error {
	f.log.Debug("cmd", "op", hexByte(c.op), "addr", c.addr, "hasAddr", c.hasAddr,
		"mode", hexByte(c.mode), "hasMode", c.hasMode, "dummy", c.dummy, "read", c.read, "size", len(c.buf))

	t, err := f.pipe.acquire()
	if err != nil {
		return err
	}

	var (
		field uint64
		bits  uint8
	)
	if f.lanes.qpi {
		t.Flags = qpiFlags
		if c.op != 0 {
			field, bits = uint64(c.op), 8
		}
	} else {
		t.Flags = f.lanes.tflag
		if c.op != 0 {
			t.Cmd = uint16(c.op)
			t.CommandBits = 8
		}
	}
	if c.hasAddr {
		field = field<<24 | uint64(c.addr&0xffffff)
		bits += 24
	}
	if c.hasMode {
		field = field<<8 | uint64(c.mode)
		bits += 8
	}
	if c.hasAddr || f.lanes.qpi {
		field <<= c.dummy
		bits += c.dummy
	}
	t.Addr = field
	t.AddressBits = bits

	if c.read {
		t.Rx = c.buf
	} else {
		t.Tx = c.buf
	}
	return f.pipe.submit(t)
}

// cmd issues a bare opcode.
func (f *Flash) cmd(op byte) error {
	return f.issue(command{op: op})
}

// cmdAddr issues an opcode with an address and no data.
func (f *Flash) cmdAddr(op byte, addr int) error {
	return f.issue(command{op: op, addr: uint32(addr), hasAddr: true})
}

// cmdRead issues an opcode and reads len(buf) bytes.
func (f *Flash) cmdRead(op byte, buf []byte) error {
	return f.issue(command{op: op, read: true, buf: buf})
}

// cmdWrite issues an opcode followed by buf.
func (f *Flash) cmdWrite(op byte, buf []byte) error {
	return f.issue(command{op: op, buf: buf})
}

// cmdWriteAddr issues an opcode and address followed by buf.
func (f *Flash) cmdWriteAddr(op byte, addr int, buf []byte) error {
	return f.issue(command{op: op, addr: uint32(addr), hasAddr: true, buf: buf})
}

// cmdReadDummy issues an opcode and address, waits dummy clocks and reads.
func (f *Flash) cmdReadDummy(op byte, addr int, dummy uint8, buf []byte) error {
	return f.issue(command{op: op, addr: uint32(addr), hasAddr: true, dummy: dummy, read: true, buf: buf})
}

// cmdReadMode is cmdReadDummy with a mode byte after the address.
func (f *Flash) cmdReadMode(op byte, addr int, mode byte, dummy uint8, buf []byte) error {
	return f.issue(command{op: op, addr: uint32(addr), hasAddr: true, mode: mode, hasMode: true,
		dummy: dummy, read: true, buf: buf})
}

type hexByte byte

func (b hexByte) String() string { return fmt.Sprintf("0x%02X", byte(b)) }
