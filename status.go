package norflash

import (
	"fmt"
	"strings"
)

// StatusRegister represents status register 1 of the flash chip.
//
//	Bits| [W25Q128|7.1 Status Registers]
//	----+-------------------------------
//	7   | SRP: Status Register Protect
//	6   | SEC: Sector protect
//	5   | TB: Top/Bottom protect
//	4:2 | BP2-0: Block Protect bit 2-0
//	1   | WEL: Write Enable Latch
//	0   | BUSY: Erase/Write in progress
type StatusRegister byte

const sr1WIP StatusRegister = 1 << 0

func (sr StatusRegister) StatusRegisterProtect() bool { return sr&(1<<7) != 0 }
func (sr StatusRegister) SectorProtect() bool         { return sr&(1<<6) != 0 }
func (sr StatusRegister) TopBottom() bool             { return sr&(1<<5) != 0 }
func (sr StatusRegister) BlockProtect2() bool         { return sr&(1<<4) != 0 }
func (sr StatusRegister) BlockProtect1() bool         { return sr&(1<<3) != 0 }
func (sr StatusRegister) BlockProtect0() bool         { return sr&(1<<2) != 0 }
func (sr StatusRegister) WriteEnabled() bool          { return sr&(1<<1) != 0 }
func (sr StatusRegister) Busy() bool                  { return sr&sr1WIP != 0 }

func (sr StatusRegister) String() string {
	return flagString(byte(sr), []string{"BUSY", "WEL", "BP0", "BP1", "BP2", "TB", "SEC", "SRP"})
}

// StatusRegister2 represents status register 2.
//
//	Bits| [W25Q128|7.1 Status Registers]
//	----+-------------------------------
//	7   | SUS: Suspend Status
//	6   | CMP: Complement Protect
//	5:3 | LB3-1: Security Register Lock Bits
//	2   | Reserved
//	1   | QE: Quad Enable
//	0   | SRL: Status Register Lock
type StatusRegister2 byte

const sr2QuadEnable StatusRegister2 = 1 << 1

func (sr StatusRegister2) Suspended() bool          { return sr&(1<<7) != 0 }
func (sr StatusRegister2) ComplementProtect() bool  { return sr&(1<<6) != 0 }
func (sr StatusRegister2) QuadEnable() bool         { return sr&sr2QuadEnable != 0 }
func (sr StatusRegister2) StatusRegisterLock() bool { return sr&(1<<0) != 0 }

func (sr StatusRegister2) String() string {
	return flagString(byte(sr), []string{"SRL", "QE", "", "LB1", "LB2", "LB3", "CMP", "SUS"})
}

// flagString formats b in binary followed by the names of its set bits, most
// significant first. names is indexed by bit number.
func flagString(b byte, names []string) string {
	s := []string{}
	for bit := 7; bit >= 0; bit-- {
		if b&(1<<bit) != 0 && names[bit] != "" {
			s = append(s, names[bit])
		}
	}
	if len(s) == 0 {
		return fmt.Sprintf("%08b", b)
	}
	return fmt.Sprintf("%08b %s", b, strings.Join(s, ","))
}
