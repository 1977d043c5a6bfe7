package spibus

import (
	"fmt"

	rpio "github.com/stianeikeland/go-rpio/v4"
	"periph.io/x/conn/v3/physic"
)

// Rpio drives the Raspberry Pi SPI0/SPI1 controller through /dev/gpiomem.
// HostVSPI maps to SPI0 and HostHSPI to SPI1. Like [Periph] it only frames
// single-lane transactions.
type Rpio struct {
	dev   rpio.SpiDev
	maxTx int
	open  bool
}

func NewRpio() *Rpio { return &Rpio{} }

func (b *Rpio) Init(cfg BusConfig) error {
	b.dev = rpio.Spi0
	if cfg.Host == HostHSPI {
		b.dev = rpio.Spi1
	}
	if err := rpio.Open(); err != nil {
		return fmt.Errorf("rpio open failed: %w", err)
	}
	if err := rpio.SpiBegin(b.dev); err != nil {
		rpio.Close()
		return fmt.Errorf("rpio SPI begin failed: %w", err)
	}
	b.maxTx = MaxDMALen
	if cfg.MaxTransfer > 0 {
		b.maxTx = cfg.MaxTransfer
	}
	b.open = true
	return nil
}

func (b *Rpio) MaxTransfer() int { return b.maxTx }

func (b *Rpio) Attach(cfg DeviceConfig) (Conn, error) {
	if !b.open {
		return nil, ErrClosed
	}
	cs := cfg.CS
	if cs == NoPin {
		cs = 0
	}
	if cs < 0 || cs > 2 {
		return nil, fmt.Errorf("rpio: chip select %d out of range", cs)
	}
	rpio.SpiChipSelect(uint8(cs))
	rpio.SpiSpeed(int(cfg.Clock / physic.Hertz))
	rpio.SpiMode(uint8(cfg.Mode>>1)&1, uint8(cfg.Mode)&1)

	bits := cfg.CommandBits
	if bits == 0 {
		bits = 8
	}
	return &rpioConn{cmdBits: bits, done: NewCompletions(cfg.QueueSize)}, nil
}

func (b *Rpio) Free() error {
	if !b.open {
		return nil
	}
	b.open = false
	rpio.SpiEnd(b.dev)
	return rpio.Close()
}

type rpioConn struct {
	cmdBits int
	done    *Completions
}

func (c *rpioConn) Queue(t *Transaction) error {
	if c.done.Len() == c.done.Cap() {
		return ErrQueueFull
	}
	w, hdr, err := frame(t, c.cmdBits)
	if err != nil {
		return err
	}
	rpio.SpiExchange(w) // in place
	copy(t.Rx, w[hdr:])
	return c.done.Push(t, nil)
}

func (c *rpioConn) Result() (*Transaction, error) {
	return c.done.Pop()
}

func (c *rpioConn) Detach() error { return nil }
