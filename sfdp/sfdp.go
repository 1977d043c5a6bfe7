// Package sfdp parses the Serial Flash Discoverable Parameters of a SPI NOR
// flash chip far enough to learn its erase sector size and capacity.
//
// References:
//   - [JESD216]: Serial Flash Discoverable Parameters (SFDP), JEDEC
//   - [W25Q128|8.2.28 Read SFDP Register (5Ah)]
package sfdp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	HeaderSize          = 8
	ParameterHeaderSize = 8

	// BasicTableID is the ID MSB of the JEDEC basic flash parameter table.
	BasicTableID = 0xFF
	// MaxTableWords bounds the basic parameter table read.
	MaxTableWords = 32

	signature = 'S' | 'F'<<8 | 'D'<<16 | 'P'<<24
)

// Basic flash parameter table dwords used here. [JESD216|6.4]
const (
	dwordEraseSizes = 0 // bits[1:0]: 01 = 4KiB erase supported
	dwordDensity    = 1 // MSB set: 2^N, else N+1 bits
	dwordSectorType = 7 // low byte: sector type 1 size exponent
)

var (
	ErrNoSignature  = errors.New("sfdp: signature not found")
	ErrNoBasicTable = errors.New("sfdp: basic parameter table not found")
	ErrMalformed    = errors.New("sfdp: malformed parameter table")
)

// ReaderAt reads the SFDP address space.
type ReaderAt interface {
	SFDPReadAt(offset uint32, out []byte) error
}

// Buffer is an in-memory SFDP image.
type Buffer []byte

func (b Buffer) SFDPReadAt(offset uint32, out []byte) error {
	offset &= 0x00ffffff
	if int(offset)+len(out) > len(b) {
		return fmt.Errorf("sfdp: read of %d bytes at 0x%06X past end of %d byte image", len(out), offset, len(b))
	}
	copy(out, b[offset:])
	return nil
}

type Header struct {
	MinorRev uint8
	MajorRev uint8
	// NumParameterHeaders is zero based: 0 means one header follows.
	NumParameterHeaders uint8
}

type ParameterHeader struct {
	IDLSB    uint8
	MinorRev uint8
	MajorRev uint8
	Length   uint8  // in dwords
	Pointer  uint32 // 24-bit byte offset
	IDMSB    uint8
}

// Table is the decoded basic flash parameter table.
type Table struct {
	Header
	Basic ParameterHeader
	Words []uint32
}

// word returns the i-th little-endian dword of b.
func word(b []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(b[i*4:])
}

// ParseHeader decodes the 8 byte SFDP header.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize || word(b, 0) != signature {
		return Header{}, ErrNoSignature
	}
	return Header{
		MinorRev:            b[4],
		MajorRev:            b[5],
		NumParameterHeaders: b[6],
	}, nil
}

// ParseParameterHeader decodes one 8 byte parameter header.
func ParseParameterHeader(b []byte) ParameterHeader {
	w2 := word(b, 1)
	return ParameterHeader{
		IDLSB:    b[0],
		MinorRev: b[1],
		MajorRev: b[2],
		Length:   b[3],
		Pointer:  w2 & 0x00ffffff,
		IDMSB:    byte(w2 >> 24),
	}
}

// Parse reads the header, locates the basic parameter table and reads it.
func Parse(r ReaderAt) (*Table, error) {
	buf := make([]byte, HeaderSize)
	if err := r.SFDPReadAt(0, buf); err != nil {
		return nil, err
	}
	hdr, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}

	var (
		basic ParameterHeader
		found bool
	)
	off := uint32(HeaderSize)
	for i := 0; i <= int(hdr.NumParameterHeaders); i++ {
		if err := r.SFDPReadAt(off, buf); err != nil {
			return nil, err
		}
		off += ParameterHeaderSize

		// The basic table is identified by the MSB of its ID, kept in the top
		// byte of the pointer dword.
		if ph := ParseParameterHeader(buf); ph.IDMSB == BasicTableID {
			basic, found = ph, true
			break
		}
	}
	if !found || basic.Pointer == 0 {
		return nil, ErrNoBasicTable
	}
	if basic.Length == 0 || basic.Length > MaxTableWords {
		return nil, fmt.Errorf("%w: %d dwords", ErrMalformed, basic.Length)
	}

	tbl := make([]byte, int(basic.Length)*4)
	if err := r.SFDPReadAt(basic.Pointer, tbl); err != nil {
		return nil, err
	}
	t := &Table{Header: hdr, Basic: basic, Words: make([]uint32, basic.Length)}
	for i := range t.Words {
		t.Words[i] = word(tbl, i)
	}
	return t, nil
}

// SectorSize returns the smallest erase granularity in bytes, or 0 when the
// table does not describe it.
func (t *Table) SectorSize() int {
	size := 0
	if len(t.Words) > dwordEraseSizes && t.Words[dwordEraseSizes]&0x03 == 1 {
		size = 4096
	}
	if len(t.Words) > dwordSectorType {
		if n := t.Words[dwordSectorType] & 0xff; n > 0 && n < 32 {
			size = 1 << n
		}
	}
	return size
}

// Capacity returns the chip size in bytes, or 0 when unknown.
func (t *Table) Capacity() int {
	if len(t.Words) <= dwordDensity {
		return 0
	}
	d := t.Words[dwordDensity]
	if d&0x80000000 != 0 {
		// exponent is taken as a byte count
		n := d & 0x7fffffff
		if n > 40 {
			return 0
		}
		return 1 << n
	}
	return int((uint64(d) + 1) / 8)
}

// Image builds an SFDP image holding a single basic parameter table, the
// layout a chip answers with for opcode 5Ah.
func Image(basic []uint32) Buffer {
	const tableOffset = 0x30
	b := make(Buffer, tableOffset+len(basic)*4)
	binary.LittleEndian.PutUint32(b[0:], signature)
	b[4], b[5], b[6], b[7] = 0x06, 0x01, 0x00, 0xFF // rev 1.6, one header

	ph := b[HeaderSize:]
	ph[0], ph[1], ph[2], ph[3] = 0x00, 0x06, 0x01, byte(len(basic))
	binary.LittleEndian.PutUint32(ph[4:], tableOffset|BasicTableID<<24)

	for i, w := range basic {
		binary.LittleEndian.PutUint32(b[tableOffset+i*4:], w)
	}
	return b
}
