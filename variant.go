package norflash

import "fmt"

// Variant selects the read protocol and the lane configuration used for it.
// Everything but Standard uses the W25Q command set.
type Variant int

const (
	Standard   Variant = iota // 1-1-1 fast read
	DualOutput                // 1-1-2
	DualIO                    // 1-2-2
	QuadOutput                // 1-1-4, needs QE
	QuadIO                    // 1-4-4 with continuous read, needs QE
	QPI                       // 4-4-4 for every command, needs QE
)

var variantNames = [...]string{"std", "dual", "dio", "quad", "qio", "qpi"}

func (v Variant) String() string {
	if v < 0 || int(v) >= len(variantNames) {
		return fmt.Sprintf("Variant(%d)", int(v))
	}
	return variantNames[v]
}

// Cycles is the lane configuration of the variant's read command.
func (v Variant) Cycles() string {
	switch v {
	case DualOutput:
		return Lanes112.String()
	case DualIO:
		return Lanes122.String()
	case QuadOutput:
		return Lanes114.String()
	case QuadIO:
		return Lanes144.String()
	case QPI:
		return "4-4-4"
	default:
		return Lanes111.String()
	}
}

// Variants lists every supported variant.
func Variants() []Variant {
	return []Variant{Standard, DualOutput, DualIO, QuadOutput, QuadIO, QPI}
}

// ParseVariant accepts the names returned by Variant.String.
func ParseVariant(s string) (Variant, error) {
	for i, name := range variantNames {
		if s == name {
			return Variant(i), nil
		}
	}
	return 0, fmt.Errorf("unknown protocol variant %q", s)
}

// [W25Q128|8.2.11] M5-4 = (1,0) keeps the chip in continuous read mode.
const (
	crmOn  = 0x20
	crmOff = 0x10
)

// strategy is the per-variant behaviour, resolved once by New.
type strategy struct {
	read      func(f *Flash, addr int, buf []byte) error
	modeBegin func(f *Flash) error
	modeEnd   func(f *Flash) error
	// clearCRM issues a continuous read reset before the reset sequence.
	clearCRM bool
}

func strategyFor(v Variant) (strategy, error) {
	switch v {
	case Standard:
		return strategy{read: readStandard, modeBegin: nop, modeEnd: nop}, nil
	case DualOutput:
		return strategy{read: readDualOutput, modeBegin: nop, modeEnd: nop, clearCRM: true}, nil
	case DualIO:
		return strategy{read: readDualIO, modeBegin: nop, modeEnd: nop, clearCRM: true}, nil
	case QuadOutput:
		return strategy{read: readQuadOutput, modeBegin: quadBegin, modeEnd: quadEnd, clearCRM: true}, nil
	case QuadIO:
		return strategy{read: readQuadIO, modeBegin: quadBegin, modeEnd: quadEnd, clearCRM: true}, nil
	case QPI:
		return strategy{read: readQPI, modeBegin: qpiBegin, modeEnd: qpiEnd, clearCRM: true}, nil
	default:
		return strategy{}, fmt.Errorf("unknown protocol variant %d", int(v))
	}
}

func nop(*Flash) error { return nil }

func readStandard(f *Flash, addr int, buf []byte) error {
	return f.readNoCRM(flashCmdFastRead, 8, addr, buf)
}

// withLanes runs fn in lane mode m and returns to 1-1-1.
func (f *Flash) withLanes(m LaneMode, fn func() error) error {
	f.lanes.set(m)
	defer f.lanes.set(Lanes111)
	return fn()
}

func readDualOutput(f *Flash, addr int, buf []byte) error {
	return f.withLanes(Lanes112, func() error {
		return f.readNoCRM(flashCmdFastReadDualOutput, 8, addr, buf)
	})
}

func readDualIO(f *Flash, addr int, buf []byte) error {
	return f.withLanes(Lanes122, func() error {
		return f.readMode(flashCmdFastReadDualIO, crmOff, 0, addr, buf)
	})
}

func readQuadOutput(f *Flash, addr int, buf []byte) error {
	return f.withLanes(Lanes114, func() error {
		return f.readNoCRM(flashCmdFastReadQuadOutput, 8, addr, buf)
	})
}

// readQuadIO picks the quad I/O read with the fewest dummy clocks the
// alignment of the transfer allows. [W25Q128|8.2.13, 8.2.14]
func readQuadIO(f *Flash, addr int, buf []byte) error {
	size := len(buf)
	if size <= 4 {
		return f.readNoCRM(flashCmdFastRead, 8, addr, buf)
	}
	op, dummy := quadIORead(addr, size)
	return f.withLanes(Lanes144, func() error {
		return f.readCRM(op, crmOn, crmOff, dummy, addr, buf)
	})
}

func quadIORead(addr, size int) (op byte, dummy uint8) {
	switch {
	case addr&0x0f == 0 && size&0x0f == 0:
		return flashCmdOctalWordReadQuadIO, 0
	case addr&0x01 == 0 && size&0x01 == 0:
		return flashCmdWordReadQuadIO, 8
	default:
		return flashCmdFastReadQuadIO, 16
	}
}

func readQPI(f *Flash, addr int, buf []byte) error {
	return f.readCRM(flashCmdFastReadQuadIO, crmOn, crmOff, 0, addr, buf)
}

// quadBegin sets QE, remembering whether it was already set.
func quadBegin(f *Flash) error {
	sr2, err := f.readStatusRegister2()
	if err != nil {
		return err
	}
	f.savedQE = sr2.QuadEnable()
	return f.writeStatusRegister2(sr2 | sr2QuadEnable)
}

// quadEnd puts QE back to what quadBegin found.
func quadEnd(f *Flash) error {
	sr2, err := f.readStatusRegister2()
	if err != nil {
		return err
	}
	if f.savedQE {
		sr2 |= sr2QuadEnable
	} else {
		sr2 &^= sr2QuadEnable
	}
	return f.writeStatusRegister2(sr2)
}

// qpiBegin enters QPI. The status register write has to settle before the
// command framing changes.
func qpiBegin(f *Flash) error {
	if err := quadBegin(f); err != nil {
		return err
	}
	if err := f.waitIdle(); err != nil {
		return err
	}
	if err := f.cmd(flashCmdEnterQPI); err != nil {
		return err
	}
	f.lanes.qpiEnable()
	return f.waitIdle()
}

func qpiEnd(f *Flash) error {
	if err := f.cmd(flashCmdExitQPI); err != nil {
		return err
	}
	f.lanes.qpiDisable()
	if err := f.waitIdle(); err != nil {
		return err
	}
	if err := quadEnd(f); err != nil {
		return err
	}
	return f.waitIdle()
}

// readNoCRM queues one read per bus-sized chunk and drains once.
func (f *Flash) readNoCRM(op byte, dummy uint8, addr int, buf []byte) error {
	f.log.Debug("read", "op", hexByte(op), "dummy", dummy, "addr", addr, "size", len(buf))
	for len(buf) > 0 {
		n := min(len(buf), f.maxTx)
		if err := f.cmdReadDummy(op, addr, dummy, buf[:n]); err != nil {
			return f.abort(err)
		}
		addr += n
		buf = buf[n:]
	}
	return f.pipe.drain()
}

// readMode is readNoCRM for commands that take a mode byte after the address.
func (f *Flash) readMode(op, mode byte, dummy uint8, addr int, buf []byte) error {
	f.log.Debug("read", "op", hexByte(op), "mode", hexByte(mode), "dummy", dummy, "addr", addr, "size", len(buf))
	for len(buf) > 0 {
		n := min(len(buf), f.maxTx)
		if err := f.cmdReadMode(op, addr, mode, dummy, buf[:n]); err != nil {
			return f.abort(err)
		}
		addr += n
		buf = buf[n:]
	}
	return f.pipe.drain()
}

// readCRM reads in continuous read mode: the first chunk arms it with the on
// mode byte, later chunks leave the opcode out, and the last chunk disarms it
// with the off mode byte.
func (f *Flash) readCRM(op, on, off byte, dummy uint8, addr int, buf []byte) error {
	f.log.Debug("read crm", "op", hexByte(op), "dummy", dummy, "addr", addr, "size", len(buf))
	for len(buf) > 0 {
		n := min(len(buf), f.maxTx)
		mode := on
		if n == len(buf) {
			mode = off
		}
		if err := f.cmdReadMode(op, addr, mode, dummy, buf[:n]); err != nil {
			err = f.abort(err)
			if op == 0 {
				// an earlier chunk armed the chip
				f.disarmCRM()
			}
			return err
		}
		op = 0
		addr += n
		buf = buf[n:]
	}
	return f.pipe.drain()
}

// disarmCRM sends the continuous read mode reset after a read was cut short.
// Outside QPI it goes out on a single lane.
func (f *Flash) disarmCRM() {
	mode := f.lanes.mode
	f.lanes.set(Lanes111)
	defer f.lanes.set(mode)

	err := f.cmd(flashCmdExitQPI)
	if err == nil {
		err = f.pipe.drain()
	}
	if err != nil {
		f.log.Warn("continuous read reset failed", "err", err)
	}
}
