// Package chipsim is an in-memory W25Q style flash chip behind a
// [spibus.Bus]. It decodes transactions the way the silicon sees them, lane
// flags, QPI and continuous read mode included, and records every one of them.
package chipsim

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/gentam/norflash/sfdp"
	"github.com/gentam/norflash/spibus"
)

const (
	SectorSize = 4096
	PageSize   = 256
)

var (
	ErrProtocol = errors.New("chipsim: protocol violation")
)

// status register bits
const (
	sr1Busy = 1 << 0
	sr1WEL  = 1 << 1
	sr2QE   = 1 << 1
)

// Op is one decoded transaction.
type Op struct {
	Op      byte
	HasOp   bool // false for continuous read bursts
	Addr    uint32
	HasAddr bool
	Mode    byte
	HasMode bool
	Dummy   int // bits left in the address field after address and mode
	Flags   spibus.Flags
	QPI     bool
	Len     int // data phase bytes
}

func (o Op) String() string {
	return fmt.Sprintf("op=%02X(%t) addr=%06X(%t) mode=%02X(%t) dummy=%d qpi=%t len=%d",
		o.Op, o.HasOp, o.Addr, o.HasAddr, o.Mode, o.HasMode, o.Dummy, o.QPI, o.Len)
}

// opcode layout: address and mode byte presence
type layout struct {
	addr, mode bool
}

var layouts = map[byte]layout{
	0x01: {}, 0x05: {}, 0x06: {}, 0x31: {}, 0x35: {}, 0x38: {}, 0x50: {},
	0x66: {}, 0x99: {}, 0x9F: {}, 0xC7: {}, 0xFF: {},
	0x02: {addr: true}, 0x03: {addr: true}, 0x0B: {addr: true}, 0x20: {addr: true},
	0x3B: {addr: true}, 0x5A: {addr: true}, 0x6B: {addr: true},
	0xBB: {addr: true, mode: true}, 0xE3: {addr: true, mode: true},
	0xE7: {addr: true, mode: true}, 0xEB: {addr: true, mode: true},
}

// Chip is a simulated flash chip. Exported fields may be set before Init.
type Chip struct {
	Mem   []byte
	SFDP  sfdp.Buffer // nil answers every SFDP read with 0xFF
	ID    [3]byte
	SR1   byte
	SR2   byte // volatile copy
	SR2NV byte // reloaded into SR2 by a software reset

	// BusyPolls is how many status reads report BUSY after a program or
	// erase.
	BusyPolls int
	// MaxTx overrides the transfer limit requested in BusConfig.
	MaxTx int

	InitErr   error
	AttachErr error
	FreeErr   error
	// QueueHook and ResultHook, when set, can fail a call before the
	// transaction is executed or after it was collected.
	QueueHook  func(t *spibus.Transaction) error
	ResultHook func(t *spibus.Transaction) error

	Log         []Op
	MaxInFlight int
	Inits       int
	Frees       int
	Attaches    int
	Detaches    int

	qpi        bool
	crm        bool
	crmOp      byte
	resetArmed bool
	volatileWE bool
	busy       int
	maxTx      int
}

// New returns an erased chip of capacity bytes with a JEDEC ID and an SFDP
// table describing it. capacity must be a power of two.
func New(capacity int) *Chip {
	c := &Chip{
		Mem: make([]byte, capacity),
		ID:  [3]byte{0xEF, 0x40, byte(bits.TrailingZeros(uint(capacity)))},
		SFDP: sfdp.Image([]uint32{
			0xFFF920E5,             // 4KiB erase
			uint32(capacity*8 - 1), // density in bits, minus one
			0x6B08EB44, 0xBB423B08, 0xFFFFFFFE, 0xFF00FFFF, 0xEB40FFFF,
			0x520F2000 | 12, // sector type 1: 4KiB, opcode 20h
		}),
	}
	for i := range c.Mem {
		c.Mem[i] = 0xFF
	}
	return c
}

func (c *Chip) Init(cfg spibus.BusConfig) error {
	c.Inits++
	if c.InitErr != nil {
		return c.InitErr
	}
	c.maxTx = cfg.MaxTransfer
	if c.MaxTx > 0 {
		c.maxTx = c.MaxTx
	}
	if c.maxTx <= 0 {
		c.maxTx = spibus.MaxDMALen
	}
	return nil
}

func (c *Chip) MaxTransfer() int { return c.maxTx }

func (c *Chip) Attach(cfg spibus.DeviceConfig) (spibus.Conn, error) {
	c.Attaches++
	if c.AttachErr != nil {
		return nil, c.AttachErr
	}
	return &conn{chip: c, done: spibus.NewCompletions(cfg.QueueSize)}, nil
}

func (c *Chip) Free() error {
	c.Frees++
	return c.FreeErr
}

// BusCalls counts every Init, Attach and Free.
func (c *Chip) BusCalls() int { return c.Inits + c.Attaches + c.Frees }

func (c *Chip) QPI() bool { return c.qpi }

// ContinuousRead reports whether the chip is waiting for a burst without
// opcode.
func (c *Chip) ContinuousRead() bool { return c.crm }

// Ops returns the logged transactions with the given opcode.
func (c *Chip) Ops(op byte) []Op {
	var ops []Op
	for _, o := range c.Log {
		if o.Op == op {
			ops = append(ops, o)
		}
	}
	return ops
}

// ResetLog clears the transaction log.
func (c *Chip) ResetLog() { c.Log = nil }

type conn struct {
	chip *Chip
	done *spibus.Completions
}

func (k *conn) Queue(t *spibus.Transaction) error {
	c := k.chip
	if c.QueueHook != nil {
		if err := c.QueueHook(t); err != nil {
			return err
		}
	}
	if k.done.Len() == k.done.Cap() {
		return spibus.ErrQueueFull
	}
	err := c.exec(t)
	if err := k.done.Push(t, err); err != nil {
		return err
	}
	c.MaxInFlight = max(c.MaxInFlight, k.done.Len())
	return nil
}

func (k *conn) Result() (*spibus.Transaction, error) {
	c := k.chip
	t, err := k.done.Pop()
	if err == nil && c.ResultHook != nil {
		err = c.ResultHook(t)
	}
	return t, err
}

func (k *conn) Detach() error {
	k.chip.Detaches++
	return nil
}

func violation(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, a...))
}

// decode recovers the opcode, address, mode byte and dummy bits of t.
func (c *Chip) decode(t *spibus.Transaction) (Op, error) {
	o := Op{Flags: t.Flags, QPI: c.qpi, Len: len(t.Tx) + len(t.Rx)}

	field := t.Addr
	n := 0
	if t.Flags&spibus.FlagVariableAddr != 0 {
		n = int(t.AddressBits)
	}

	switch {
	case c.crm:
		if t.CommandBits != 0 && !c.qpi {
			// the opcode would be clocked in as address bits
			if t.Cmd == 0xFF && n == 0 {
				o.Op, o.HasOp = 0xFF, true
				return o, nil
			}
			return o, violation("opcode %02X sent in continuous read mode", t.Cmd)
		}
		if c.qpi && n == 8 && field == 0xFF {
			o.Op, o.HasOp = 0xFF, true
			return o, nil
		}
		o.Op = c.crmOp
	case c.qpi:
		if t.CommandBits == 8 && t.Cmd == 0xFF && n == 0 {
			// IO1..IO3 idle high, so the chip sees FFh either way
			o.Op, o.HasOp = 0xFF, true
			return o, nil
		}
		if n < 8 {
			return o, violation("QPI transaction without opcode")
		}
		n -= 8
		o.Op, o.HasOp = byte(field>>n), true
	default:
		if t.CommandBits != 8 {
			return o, violation("%d command bits", t.CommandBits)
		}
		o.Op, o.HasOp = byte(t.Cmd), true
	}

	l, ok := layouts[o.Op]
	if !ok {
		return o, violation("unknown opcode %02X", o.Op)
	}
	if l.addr {
		if n < 24 {
			return o, violation("opcode %02X needs an address, got %d bits", o.Op, n)
		}
		n -= 24
		o.Addr, o.HasAddr = uint32(field>>n)&0xffffff, true
	}
	if l.mode {
		if n < 8 {
			return o, violation("opcode %02X needs a mode byte", o.Op)
		}
		n -= 8
		o.Mode, o.HasMode = byte(field>>n), true
	}
	o.Dummy = n
	return o, nil
}

// checkLanes verifies the lane flags the chip expects for o.
func (c *Chip) checkLanes(o Op) error {
	const (
		dio  = spibus.FlagModeDIO
		qio  = spibus.FlagModeQIO
		wide = spibus.FlagModeDIOQIOAddr
	)
	f := o.Flags & (dio | qio | wide)
	qe := c.SR2&sr2QE != 0

	if c.qpi {
		if o.Op == 0xFF && f == 0 {
			return nil
		}
		if f != qio|wide {
			return violation("QPI transaction with flags %v", o.Flags)
		}
		return nil
	}
	switch o.Op {
	case 0x3B:
		if f != dio {
			return violation("3Bh with flags %v", o.Flags)
		}
	case 0xBB:
		if f != dio|wide {
			return violation("BBh with flags %v", o.Flags)
		}
	case 0x6B:
		if f != qio || !qe {
			return violation("6Bh with flags %v, QE=%t", o.Flags, qe)
		}
	case 0xEB, 0xE7, 0xE3:
		if f != qio|wide || !qe {
			return violation("%02Xh with flags %v, QE=%t", o.Op, o.Flags, qe)
		}
	case 0x38:
		if f != 0 || !qe {
			return violation("38h with QE=%t", qe)
		}
	default:
		if f != 0 {
			return violation("%02Xh with flags %v", o.Op, o.Flags)
		}
	}
	return nil
}

func (c *Chip) exec(t *spibus.Transaction) error {
	o, err := c.decode(t)
	c.Log = append(c.Log, o)
	if err != nil {
		return err
	}
	if err := c.checkLanes(o); err != nil {
		return err
	}
	if c.busy > 0 && o.Op != 0x05 && o.Op != 0x35 {
		return violation("opcode %02X while busy", o.Op)
	}
	if o.Op != 0x99 {
		c.resetArmed = false
	}

	switch o.Op {
	case 0x05:
		sr := c.SR1
		if c.busy > 0 {
			sr |= sr1Busy
			c.busy--
		}
		fill(t.Rx, sr)
	case 0x35:
		fill(t.Rx, c.SR2)
	case 0x06:
		c.SR1 |= sr1WEL
	case 0x50:
		c.volatileWE = true
	case 0x01:
		if c.SR1&sr1WEL == 0 {
			return violation("01h without write enable")
		}
		if len(t.Tx) > 0 {
			c.SR1 = t.Tx[0] &^ (sr1Busy | sr1WEL)
		}
		c.program()
	case 0x31:
		if len(t.Tx) == 0 {
			return violation("31h without data")
		}
		switch {
		case c.volatileWE:
			c.SR2 = t.Tx[0]
			c.volatileWE = false
		case c.SR1&sr1WEL != 0:
			c.SR2, c.SR2NV = t.Tx[0], t.Tx[0]
			c.program()
		default:
			return violation("31h without write enable")
		}
	case 0x02:
		if c.SR1&sr1WEL == 0 {
			return violation("02h without write enable")
		}
		page := int(o.Addr) &^ (PageSize - 1)
		off := int(o.Addr) % PageSize
		for i, b := range t.Tx {
			c.Mem[(page+(off+i)%PageSize)%len(c.Mem)] &= b
		}
		c.program()
	case 0x20:
		if c.SR1&sr1WEL == 0 {
			return violation("20h without write enable")
		}
		base := (int(o.Addr) &^ (SectorSize - 1)) % len(c.Mem)
		fill(c.Mem[base:min(base+SectorSize, len(c.Mem))], 0xFF)
		c.program()
	case 0xC7:
		if c.SR1&sr1WEL == 0 {
			return violation("C7h without write enable")
		}
		fill(c.Mem, 0xFF)
		c.program()
	case 0x03, 0x0B, 0x3B, 0x6B, 0xBB, 0xEB, 0xE7, 0xE3:
		for i := range t.Rx {
			t.Rx[i] = c.Mem[(int(o.Addr)+i)%len(c.Mem)]
		}
		if o.HasMode {
			c.crm = o.Mode&0x30 == 0x20
			c.crmOp = o.Op
		}
	case 0x5A:
		for i := range t.Rx {
			p := int(o.Addr) + i
			if p < len(c.SFDP) {
				t.Rx[i] = c.SFDP[p]
			} else {
				t.Rx[i] = 0xFF
			}
		}
	case 0x9F:
		fill(t.Rx, 0)
		copy(t.Rx, c.ID[:])
	case 0x38:
		c.qpi = true
	case 0xFF:
		switch {
		case c.crm:
			c.crm = false
		case c.qpi:
			c.qpi = false
		}
	case 0x66:
		c.resetArmed = true
	case 0x99:
		if c.resetArmed {
			c.resetArmed = false
			c.qpi, c.crm, c.volatileWE = false, false, false
			c.SR1 &^= sr1WEL
			c.SR2 = c.SR2NV
		}
	}
	return nil
}

// program ends a write cycle: WEL clears and BUSY is reported for a while.
func (c *Chip) program() {
	c.SR1 &^= sr1WEL
	c.busy = c.BusyPolls
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
