package norflash

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/gentam/norflash/spibus"
)

// Flash drives one serial NOR flash chip. It is not safe for concurrent use.
type Flash struct {
	bus      spibus.Bus
	variant  Variant
	strategy strategy

	conn  spibus.Conn
	pipe  *pipeline
	maxTx int
	cfg   Config
	lanes laneState
	geo   Geometry

	id      [3]byte // JEDEC ID, if read
	savedQE bool    // QE before the quad mode was entered

	log   *slog.Logger
	yield func()
}

// Option configures a Flash.
type Option func(*Flash)

// WithLogger sets the logger. It defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(f *Flash) {
		f.log = l
	}
}

// WithYield sets the function called periodically while polling a busy chip.
// It defaults to runtime.Gosched.
func WithYield(fn func()) Option {
	return func(f *Flash) {
		f.yield = fn
	}
}

// New returns a Flash speaking variant v on bus. It panics on an unknown
// variant.
func New(bus spibus.Bus, v Variant, opts ...Option) *Flash {
	s, err := strategyFor(v)
	if err != nil {
		panic(err)
	}
	f := &Flash{
		bus:      bus,
		variant:  v,
		strategy: s,
		yield:    runtime.Gosched,
	}
	f.lanes.set(Lanes111)
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = slog.Default()
	}
	f.log = f.log.With("component", "norflash", "variant", v.String())
	return f
}

// Init attaches to the bus, resets the chip, resolves the geometry and enters
// the variant's mode. Init after Term starts over.
func (f *Flash) Init(cfg Config) error {
	f.log.Debug("init")

	if f.conn != nil {
		return ErrAlreadyInitialized
	}
	if err := cfg.Validate(); err != nil {
		f.log.Error("init", "err", err)
		return err
	}
	if cfg.QueueSize > MaxQueueSize {
		return fmt.Errorf("%w: queue size %d exceeds %d", ErrNoResources, cfg.QueueSize, MaxQueueSize)
	}
	f.cfg = cfg

	if err := f.bus.Init(cfg.busConfig()); err != nil {
		return fmt.Errorf("%w: %w", ErrBusInit, err)
	}
	conn, err := f.bus.Attach(cfg.deviceConfig())
	if err != nil {
		return errors.Join(fmt.Errorf("%w: %w", ErrAttach, err), f.bus.Free())
	}
	f.conn = conn
	f.pipe = newPipeline(conn, cfg.QueueSize)
	f.maxTx = f.bus.MaxTransfer()
	if f.maxTx <= 0 {
		f.maxTx = spibus.MaxDMALen
	}
	f.lanes = laneState{}
	f.lanes.set(Lanes111)
	f.id = [3]byte{}

	if err := f.begin(); err != nil {
		f.release()
		return err
	}
	f.log.Info("initialized", "geometry", f.geo.String(), "clock", cfg.Clock, "queue", cfg.QueueSize)
	return nil
}

func (f *Flash) begin() error {
	if err := f.reset(); err != nil {
		return err
	}

	if f.cfg.SectorSize != 0 && f.cfg.Capacity != 0 {
		f.geo = Geometry{SectorSize: f.cfg.SectorSize, Capacity: f.cfg.Capacity, Source: "config"}
	} else {
		g, err := f.discoverGeometry()
		if err != nil {
			return err
		}
		f.geo = g
	}

	return f.strategy.modeBegin(f)
}

// Term leaves the variant's mode, resets the chip and detaches from the bus.
func (f *Flash) Term() error {
	f.log.Debug("term")

	if f.conn == nil {
		return nil
	}
	var errs []error
	if err := f.strategy.modeEnd(f); err != nil {
		errs = append(errs, err)
	}
	if err := f.reset(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, f.release())
	return errors.Join(errs...)
}

func (f *Flash) release() error {
	if f.pipe != nil {
		if err := f.pipe.drain(); err != nil {
			f.log.Warn("drain on release", "err", err)
		}
	}
	err := errors.Join(f.conn.Detach(), f.bus.Free())
	f.conn = nil
	f.pipe = nil
	f.geo = Geometry{}
	f.lanes = laneState{}
	f.lanes.set(Lanes111)
	return err
}

func (f *Flash) Variant() Variant { return f.variant }

// Geometry is the zero value until Init succeeded.
func (f *Flash) Geometry() Geometry { return f.geo }

func (f *Flash) SectorSize() int { return f.geo.SectorSize }

func (f *Flash) ChipSize() int { return f.geo.Capacity }

// Lanes reports the active lane configuration, e.g. "1-1-1" or "4-4-4".
func (f *Flash) Lanes() string { return f.lanes.String() }

func (f *Flash) ready() error {
	if f.conn == nil {
		return ErrNotInitialized
	}
	return nil
}

func (f *Flash) checkRange(addr, size int) error {
	if addr < 0 || size < 0 || addr+size > f.geo.Capacity {
		return fmt.Errorf("%w: 0x%X+%d, capacity %d", ErrOutOfRange, addr, size, f.geo.Capacity)
	}
	return nil
}

// ReadID returns the JEDEC ID of the flash chip and a non-empty name for
// known IDs. The extended device string is ignored.
func (f *Flash) ReadID() (id [3]byte, name string, err error) {
	if err = f.ready(); err != nil {
		return
	}
	if id, err = f.readID(); err != nil {
		return
	}
	f.id = id
	if params, ok := knownFlash[id]; ok {
		name = params.name
	}
	return id, name, nil
}

func (f *Flash) ReadStatusRegister() (StatusRegister, error) {
	if err := f.ready(); err != nil {
		return 0, err
	}
	return f.readStatusRegister()
}

func (f *Flash) ReadStatusRegister2() (StatusRegister2, error) {
	if err := f.ready(); err != nil {
		return 0, err
	}
	return f.readStatusRegister2()
}

// Read fills buf from addr. Reads are split to the bus transfer limit and
// pipelined.
func (f *Flash) Read(addr int, buf []byte) error {
	f.log.Debug("read", "addr", addr, "size", len(buf))

	if err := f.ready(); err != nil {
		return err
	}
	if err := f.checkRange(addr, len(buf)); err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}
	return f.strategy.read(f, addr, buf)
}

// Write programs data at addr one page at a time. The target range must have
// been erased.
func (f *Flash) Write(addr int, data []byte) error {
	f.log.Debug("write", "addr", addr, "size", len(data))

	if err := f.ready(); err != nil {
		return err
	}
	if err := f.checkRange(addr, len(data)); err != nil {
		return err
	}
	for len(data) > 0 {
		// a page program wraps around at the page boundary
		n := min(len(data), pageSize-addr%pageSize)
		if err := f.pageProgram(addr, data[:n]); err != nil {
			return err
		}
		addr += n
		data = data[n:]
	}
	return nil
}

// addr: 24 bit
// data: max 256 bytes, within one page
func (f *Flash) pageProgram(addr int, data []byte) error {
	if err := f.writeEnable(); err != nil {
		return err
	}
	if err := f.cmdWriteAddr(flashCmdPageProgram, addr, data); err != nil {
		return f.abort(err)
	}
	return f.waitIdle()
}

// EraseSector erases the sector-th sector.
func (f *Flash) EraseSector(sector int) error {
	f.log.Debug("erase sector", "sector", sector)

	if err := f.ready(); err != nil {
		return err
	}
	addr := sector * f.geo.SectorSize
	if err := f.checkRange(addr, f.geo.SectorSize); err != nil {
		return err
	}
	return f.eraseSectorAt(addr)
}

// EraseRange erases the sectors covering size bytes from addr. addr must be
// sector aligned.
func (f *Flash) EraseRange(addr, size int) error {
	f.log.Debug("erase range", "addr", addr, "size", size)

	if err := f.ready(); err != nil {
		return err
	}
	if err := f.checkRange(addr, size); err != nil {
		return err
	}
	if addr%f.geo.SectorSize != 0 {
		f.log.Warn("erase range not sector aligned", "addr", addr, "sectorSize", f.geo.SectorSize)
	}
	for size > 0 {
		if err := f.eraseSectorAt(addr); err != nil {
			return err
		}
		addr += f.geo.SectorSize
		size -= f.geo.SectorSize
	}
	return nil
}

func (f *Flash) eraseSectorAt(addr int) error {
	if err := f.writeEnable(); err != nil {
		return err
	}
	if err := f.cmdAddr(flashCmdSectorErase, addr); err != nil {
		return f.abort(err)
	}
	return f.waitIdle()
}

// EraseChip bulk erases the entire chip. It can take minutes.
func (f *Flash) EraseChip() error {
	f.log.Debug("erase chip")

	if err := f.ready(); err != nil {
		return err
	}
	if err := f.writeEnable(); err != nil {
		return err
	}
	if err := f.cmd(flashCmdEraseChip); err != nil {
		return f.abort(err)
	}
	return f.waitIdle()
}

// ReadAt implements io.ReaderAt.
func (f *Flash) ReadAt(p []byte, off int64) (n int, err error) {
	if err := f.ready(); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrOutOfRange, off)
	}
	if off >= int64(f.geo.Capacity) {
		return 0, io.EOF
	}
	n = min(len(p), f.geo.Capacity-int(off))
	if err := f.Read(int(off), p[:n]); err != nil {
		return 0, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt. The range must have been erased.
func (f *Flash) WriteAt(p []byte, off int64) (n int, err error) {
	if err := f.Write(int(off), p); err != nil {
		return 0, err
	}
	return len(p), nil
}
