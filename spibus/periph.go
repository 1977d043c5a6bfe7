package spibus

import (
	"errors"
	"fmt"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"
)

var hostInitialized atomic.Bool

func initHost() error {
	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			hostInitialized.Store(false)
			return fmt.Errorf("host initialization failed: %w", err)
		}
	}
	return nil
}

// Periph runs transactions on any periph.io SPI port. periph.io ports are
// single-lane, so only 1-1-1 framed transactions are accepted.
type Periph struct {
	port  spi.PortCloser
	cs    gpio.PinOut // manual chip select, nil to let the port drive it
	maxTx int
	open  bool
}

// NewPeriph wraps an already opened port.
func NewPeriph(port spi.PortCloser, cs gpio.PinOut) *Periph {
	return &Periph{port: port, cs: cs}
}

// OpenPort opens a port registered in spireg, e.g. "/dev/spidev0.0" or "".
func OpenPort(name string) (*Periph, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %q: %w", name, err)
	}
	return NewPeriph(port, nil), nil
}

// OpenFTDI finds an FT2232H and returns its MPSSE SPI port with ADBUS4 as
// chip select.
func OpenFTDI() (*Periph, error) {
	if err := initHost(); err != nil {
		return nil, err
	}

	const (
		vendorID  = 0x0403 // FTDI
		productID = 0x6010 // FT2232H
	)

	info := ftdi.Info{}
	for _, dev := range ftdi.All() {
		dev.Info(&info)
		if info.VenID != vendorID || info.DevID != productID {
			continue
		}
		ft, ok := dev.(*ftdi.FT232H)
		if !ok {
			continue
		}
		port, err := ft.SPI()
		if err != nil {
			return nil, fmt.Errorf("failed to get SPI port: %w", err)
		}
		// [EB82|Appendix A. Sheet 2 of 5 (USB to SPI/RS232)]
		// ADBUS0 | SCK
		// ADBUS1 | MOSI
		// ADBUS2 | MISO
		// ADBUS4 | SS_B
		return NewPeriph(port, ft.D4), nil
	}

	return nil, errors.New("FT2232H device not found")
}

func (p *Periph) Init(cfg BusConfig) error {
	if p.port == nil {
		return ErrClosed
	}
	// [FTDI-AN_108] a single MPSSE transfer is limited to 64KiB
	p.maxTx = MaxDMALen
	if cfg.MaxTransfer > 0 {
		p.maxTx = min(cfg.MaxTransfer, 65536-16)
	}
	p.open = true
	return nil
}

func (p *Periph) MaxTransfer() int { return p.maxTx }

func (p *Periph) Attach(cfg DeviceConfig) (Conn, error) {
	if !p.open {
		return nil, ErrClosed
	}
	// [FTDI AN_114|1.2]> FTDI device can only support mode 0 and mode 2 due to the limitation of MPSSE engine
	c, err := p.port.Connect(cfg.Clock, cfg.Mode, 8)
	if err != nil {
		return nil, fmt.Errorf("SPI connect failed: %w", err)
	}
	if p.cs != nil {
		if err := p.cs.Out(gpio.High); err != nil {
			return nil, err
		}
	}
	bits := cfg.CommandBits
	if bits == 0 {
		bits = 8
	}
	return &periphConn{
		conn:    c,
		cs:      p.cs,
		cmdBits: bits,
		done:    NewCompletions(cfg.QueueSize),
	}, nil
}

func (p *Periph) Free() error {
	p.open = false
	return nil
}

// Close frees the bus and closes the underlying port.
func (p *Periph) Close() error {
	p.open = false
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	return err
}

type periphConn struct {
	conn    spi.Conn
	cs      gpio.PinOut
	cmdBits int
	done    *Completions
}

// tx wraps SPI transaction with CS assertion.
func (c *periphConn) tx(w, r []byte) (err error) {
	if c.cs == nil {
		return c.conn.Tx(w, r)
	}
	if err = c.cs.Out(gpio.Low); err != nil {
		return err
	}
	defer func() {
		if csErr := c.cs.Out(gpio.High); csErr != nil && err == nil {
			err = csErr
		}
	}()
	err = c.conn.Tx(w, r)
	return
}

func (c *periphConn) Queue(t *Transaction) error {
	if c.done.Len() == c.done.Cap() {
		return ErrQueueFull
	}
	w, hdr, err := frame(t, c.cmdBits)
	if err != nil {
		return err
	}
	var r []byte
	if len(t.Rx) > 0 {
		r = make([]byte, len(w))
	}
	err = c.tx(w, r)
	if err == nil && r != nil {
		copy(t.Rx, r[hdr:])
	}
	return c.done.Push(t, err)
}

func (c *periphConn) Result() (*Transaction, error) {
	return c.done.Pop()
}

func (c *periphConn) Detach() error {
	if c.cs != nil {
		return c.cs.Out(gpio.High)
	}
	return nil
}
