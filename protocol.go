package norflash

// Flash commands:
//   - [W25Q128|8.1.2 Instruction Set Table 1]
//   - [W25Q128|8.1.4 Instruction Set Table 3 (QPI Instructions)]
const (
	flashCmdWriteStatusRegister1 = 0x01
	flashCmdPageProgram          = 0x02
	flashCmdReadStatusRegister1  = 0x05
	flashCmdWriteEnable          = 0x06
	flashCmdFastRead             = 0x0B
	flashCmdSectorErase          = 0x20 // 4KB
	flashCmdWriteStatusRegister2 = 0x31
	flashCmdReadStatusRegister2  = 0x35
	flashCmdEnterQPI             = 0x38
	flashCmdFastReadDualOutput   = 0x3B
	flashCmdVolatileSRWrite      = 0x50 // Write Enable for Volatile Status Register
	flashCmdReadSFDP             = 0x5A
	flashCmdEnableReset          = 0x66
	flashCmdFastReadQuadOutput   = 0x6B
	flashCmdResetDevice          = 0x99
	flashCmdReadID               = 0x9F
	flashCmdFastReadDualIO       = 0xBB
	flashCmdEraseChip            = 0xC7
	flashCmdOctalWordReadQuadIO  = 0xE3
	flashCmdWordReadQuadIO       = 0xE7
	flashCmdFastReadQuadIO       = 0xEB
	flashCmdExitQPI              = 0xFF // also Continuous Read Mode Reset
)

const (
	pageSize = 256

	// pollYield is how many status polls run between scheduler yields.
	pollYield = 1000
)

func (f *Flash) writeEnable() error {
	return f.cmd(flashCmdWriteEnable)
}

func (f *Flash) readStatusRegister() (StatusRegister, error) {
	buf := make([]byte, 1)
	if err := f.cmdRead(flashCmdReadStatusRegister1, buf); err != nil {
		return 0, err
	}
	if err := f.pipe.drain(); err != nil {
		return 0, err
	}
	return StatusRegister(buf[0]), nil
}

func (f *Flash) writeStatusRegister(sr StatusRegister) error {
	if err := f.writeEnable(); err != nil {
		return err
	}
	if err := f.cmdWrite(flashCmdWriteStatusRegister1, []byte{byte(sr)}); err != nil {
		return err
	}
	return f.waitIdle()
}

func (f *Flash) readStatusRegister2() (StatusRegister2, error) {
	buf := make([]byte, 1)
	if err := f.cmdRead(flashCmdReadStatusRegister2, buf); err != nil {
		return 0, err
	}
	if err := f.pipe.drain(); err != nil {
		return 0, err
	}
	return StatusRegister2(buf[0]), nil
}

// writeStatusRegister2 updates the volatile copy of status register 2, so the
// quad enable bit falls back to its programmed value on power cycle.
func (f *Flash) writeStatusRegister2(sr StatusRegister2) error {
	if err := f.cmd(flashCmdVolatileSRWrite); err != nil {
		return err
	}
	if err := f.cmdWrite(flashCmdWriteStatusRegister2, []byte{byte(sr)}); err != nil {
		return err
	}
	return f.waitIdle()
}

// waitIdle drains the pipeline and polls BUSY until the chip finished its
// program/erase cycle. There is no timeout: chip erase alone can take minutes.
func (f *Flash) waitIdle() error {
	if err := f.pipe.drain(); err != nil {
		return err
	}
	for i := 1; ; i++ {
		sr, err := f.readStatusRegister()
		if err != nil {
			return err
		}
		if !sr.Busy() {
			return nil
		}
		if i%pollYield == 0 {
			f.yield()
		}
	}
}

// reset returns the chip and the lane state to power-on defaults.
func (f *Flash) reset() error {
	f.log.Debug("reset", "lanes", f.lanes.String())

	f.lanes.set(Lanes111)

	if f.strategy.clearCRM {
		// An armed continuous read takes the next opcode as address bits.
		// FFh disarms it, and leaves QPI if the chip is there.
		// TODO: confirm on silicon that FFh is harmless on a chip that never
		// entered continuous read mode.
		if err := f.cmd(flashCmdExitQPI); err != nil {
			return err
		}
		f.lanes.qpiDisable()
		if err := f.waitIdle(); err != nil {
			return err
		}
	}

	if err := f.cmd(flashCmdEnableReset); err != nil {
		return err
	}
	if err := f.cmd(flashCmdResetDevice); err != nil {
		return err
	}
	return f.waitIdle()
}

// readID returns the JEDEC manufacturer and device ID.
func (f *Flash) readID() (id [3]byte, err error) {
	buf := make([]byte, 3)
	if err = f.cmdRead(flashCmdReadID, buf); err != nil {
		return
	}
	if err = f.pipe.drain(); err != nil {
		return
	}
	return [3]byte(buf), nil
}

// abort drains what is still in flight after err interrupted an operation, so
// no transaction keeps writing into the caller's buffer.
func (f *Flash) abort(err error) error {
	if derr := f.pipe.drain(); derr != nil {
		f.log.Warn("drain after failure", "err", derr)
	}
	return err
}
