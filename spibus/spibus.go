// Package spibus defines the queued, half-duplex SPI transport that the
// norflash driver runs on, plus adapters for real hosts.
//
// A transport accepts fully framed transactions through [Conn.Queue] and hands
// them back, in submission order, from [Conn.Result]. The driver never has more
// than DeviceConfig.QueueSize transactions outstanding.
package spibus

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// MaxDMALen is the largest payload a single transaction may carry.
const MaxDMALen = 4092

var (
	ErrQueueFull   = errors.New("spibus: transaction queue full")
	ErrQueueEmpty  = errors.New("spibus: no transaction in flight")
	ErrUnsupported = errors.New("spibus: transaction shape not supported by this bus")
	ErrClosed      = errors.New("spibus: bus closed")
)

// Flags select how the phases of a transaction are put on the wire.
type Flags uint32

const (
	// FlagVariableCmd uses Transaction.CommandBits instead of the device default.
	FlagVariableCmd Flags = 1 << iota
	// FlagVariableAddr uses Transaction.AddressBits instead of the device default.
	FlagVariableAddr
	// FlagModeDIO transfers the data phase on two lines.
	FlagModeDIO
	// FlagModeQIO transfers the data phase on four lines.
	FlagModeQIO
	// FlagModeDIOQIOAddr also transfers the address phase on two/four lines.
	FlagModeDIOQIOAddr
)

// Lines returns the number of lines used by the address and data phases.
func (f Flags) Lines() (addr, data int) {
	data = 1
	switch {
	case f&FlagModeQIO != 0:
		data = 4
	case f&FlagModeDIO != 0:
		data = 2
	}
	addr = 1
	if f&FlagModeDIOQIOAddr != 0 {
		addr = data
	}
	return addr, data
}

func (f Flags) String() string {
	a, d := f.Lines()
	return fmt.Sprintf("addr=%d data=%d vcmd=%t vaddr=%t", a, d, f&FlagVariableCmd != 0, f&FlagVariableAddr != 0)
}

// Transaction is one chip-select framed exchange.
//
// The address field is a left-aligned shifted integer: its AddressBits low bits
// are sent MSB first. Drivers pack address, mode byte and dummy cycles into it.
type Transaction struct {
	Flags       Flags
	Cmd         uint16
	CommandBits uint8
	Addr        uint64
	AddressBits uint8
	Tx          []byte // data phase, host to chip
	Rx          []byte // data phase, chip to host
}

// Host selects one of the two general purpose SPI controllers.
type Host int

const (
	HostVSPI Host = iota
	HostHSPI
)

func (h Host) String() string {
	switch h {
	case HostVSPI:
		return "vspi"
	case HostHSPI:
		return "hspi"
	default:
		return fmt.Sprintf("host(%d)", int(h))
	}
}

// Pin is a GPIO number, or NoPin.
type Pin int

const NoPin Pin = -1

type BusConfig struct {
	Host        Host
	SCK         Pin
	MISO        Pin
	MOSI        Pin
	HD          Pin // quad IO3 / hold
	WP          Pin // quad IO2 / write protect
	MaxTransfer int
	DMAChannel  int
}

type DeviceConfig struct {
	CS          Pin
	Clock       physic.Frequency
	Mode        spi.Mode
	CommandBits int
	QueueSize   int
	HalfDuplex  bool
}

// Bus is a SPI controller.
type Bus interface {
	// Init claims the controller and its pins.
	Init(cfg BusConfig) error
	// Attach adds a device on the bus and returns its transaction queue.
	Attach(cfg DeviceConfig) (Conn, error)
	// Free releases the controller. All devices must be detached first.
	Free() error
	// MaxTransfer is the largest data phase of a single transaction.
	MaxTransfer() int
}

// Conn is the transaction queue of one attached device.
type Conn interface {
	// Queue submits t. The transaction memory must stay untouched until it is
	// returned by Result.
	Queue(t *Transaction) error
	// Result blocks until the oldest queued transaction completes.
	Result() (*Transaction, error)
	Detach() error
}
