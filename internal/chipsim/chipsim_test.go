package chipsim

import (
	"errors"
	"testing"

	"github.com/gentam/norflash/sfdp"
	"github.com/gentam/norflash/spibus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attach(t *testing.T, c *Chip, depth int) spibus.Conn {
	t.Helper()
	require.NoError(t, c.Init(spibus.BusConfig{MaxTransfer: spibus.MaxDMALen}))
	conn, err := c.Attach(spibus.DeviceConfig{QueueSize: depth})
	require.NoError(t, err)
	return conn
}

func single(op byte) *spibus.Transaction {
	return &spibus.Transaction{Flags: spibus.FlagVariableAddr, Cmd: uint16(op), CommandBits: 8}
}

func withAddr(op byte, addr uint32) *spibus.Transaction {
	t := single(op)
	t.Addr = uint64(addr)
	t.AddressBits = 24
	return t
}

func run(t *testing.T, conn spibus.Conn, tr *spibus.Transaction) error {
	t.Helper()
	require.NoError(t, conn.Queue(tr))
	got, err := conn.Result()
	require.Same(t, tr, got)
	return err
}

func TestNewDescribesItself(t *testing.T) {
	c := New(1 << 20)
	assert.Equal(t, [3]byte{0xEF, 0x40, 0x14}, c.ID)

	tbl, err := sfdp.Parse(c.SFDP)
	require.NoError(t, err)
	assert.Equal(t, 1<<20, tbl.Capacity())
	assert.Equal(t, 4096, tbl.SectorSize())
}

func TestProgramNeedsWriteEnable(t *testing.T) {
	c := New(1 << 16)
	conn := attach(t, c, 1)

	prog := withAddr(0x02, 0x100)
	prog.Tx = []byte{0x00}
	assert.ErrorIs(t, run(t, conn, prog), ErrProtocol)
	assert.Equal(t, byte(0xFF), c.Mem[0x100])

	require.NoError(t, run(t, conn, single(0x06)))
	require.NoError(t, run(t, conn, prog))
	assert.Equal(t, byte(0x00), c.Mem[0x100])
}

func TestProgramAndsAndWrapsInPage(t *testing.T) {
	c := New(1 << 16)
	conn := attach(t, c, 1)
	c.Mem[0x1FF] = 0x0F

	require.NoError(t, run(t, conn, single(0x06)))
	prog := withAddr(0x02, 0x1FF)
	prog.Tx = []byte{0xF1, 0xAA}
	require.NoError(t, run(t, conn, prog))

	assert.Equal(t, byte(0x01), c.Mem[0x1FF])
	assert.Equal(t, byte(0xAA), c.Mem[0x100], "page program wraps to the page start")
	assert.Equal(t, byte(0xFF), c.Mem[0x200])
}

func TestBusyPolls(t *testing.T) {
	c := New(1 << 16)
	c.BusyPolls = 2
	conn := attach(t, c, 1)

	require.NoError(t, run(t, conn, single(0x06)))
	require.NoError(t, run(t, conn, withAddr(0x20, 0)))

	assert.ErrorIs(t, run(t, conn, single(0x06)), ErrProtocol, "commands are rejected while busy")

	var busy []bool
	for range 3 {
		rd := single(0x05)
		rd.Rx = make([]byte, 1)
		require.NoError(t, run(t, conn, rd))
		busy = append(busy, rd.Rx[0]&sr1Busy != 0)
	}
	assert.Equal(t, []bool{true, true, false}, busy)
}

func TestContinuousRead(t *testing.T) {
	c := New(1 << 16)
	c.SR2 = sr2QE
	for i := range 16 {
		c.Mem[i] = byte(i)
	}
	conn := attach(t, c, 2)
	flags := spibus.FlagVariableCmd | spibus.FlagVariableAddr | spibus.FlagModeQIO | spibus.FlagModeDIOQIOAddr

	first := &spibus.Transaction{Flags: flags, Cmd: 0xEB, CommandBits: 8,
		Addr: (0x000004<<8 | 0x20) << 16, AddressBits: 48, Rx: make([]byte, 4)}
	require.NoError(t, run(t, conn, first))
	assert.Equal(t, []byte{4, 5, 6, 7}, first.Rx)
	assert.True(t, c.ContinuousRead())

	next := &spibus.Transaction{Flags: flags,
		Addr: (0x000008<<8 | 0x10) << 16, AddressBits: 48, Rx: make([]byte, 4)}
	require.NoError(t, run(t, conn, next))
	assert.Equal(t, []byte{8, 9, 10, 11}, next.Rx)
	assert.False(t, c.ContinuousRead())

	ops := c.Ops(0xEB)
	require.Len(t, ops, 2)
	assert.True(t, ops[0].HasOp)
	assert.False(t, ops[1].HasOp)
	assert.Equal(t, 16, ops[1].Dummy)
}

func TestLaneChecks(t *testing.T) {
	c := New(1 << 16)
	conn := attach(t, c, 1)

	quad := withAddr(0x6B, 0)
	quad.Flags |= spibus.FlagModeQIO
	quad.AddressBits = 32
	quad.Rx = make([]byte, 1)
	assert.ErrorIs(t, run(t, conn, quad), ErrProtocol, "quad output needs QE")

	wrong := withAddr(0x3B, 0)
	wrong.Rx = make([]byte, 1)
	assert.ErrorIs(t, run(t, conn, wrong), ErrProtocol, "dual output needs two data lines")
}

func TestQPIAndReset(t *testing.T) {
	c := New(1 << 16)
	c.SR2 = sr2QE
	conn := attach(t, c, 1)

	require.NoError(t, run(t, conn, single(0x38)))
	assert.True(t, c.QPI())

	assert.ErrorIs(t, run(t, conn, single(0x05)), ErrProtocol, "single lane framing in QPI")

	qpiFlags := spibus.FlagVariableCmd | spibus.FlagVariableAddr | spibus.FlagModeQIO | spibus.FlagModeDIOQIOAddr
	exit := &spibus.Transaction{Flags: qpiFlags, Addr: 0xFF, AddressBits: 8}
	require.NoError(t, run(t, conn, exit))
	assert.False(t, c.QPI())

	require.NoError(t, run(t, conn, single(0x38)))
	require.NoError(t, run(t, conn, single(0xFF)), "single lane FFh also leaves QPI")
	assert.False(t, c.QPI())

	require.NoError(t, run(t, conn, single(0x66)))
	require.NoError(t, run(t, conn, single(0x99)))
	assert.Zero(t, c.SR2, "volatile QE is reloaded from the non-volatile copy")
}

func TestQueueDepth(t *testing.T) {
	c := New(1 << 16)
	conn := attach(t, c, 2)

	require.NoError(t, conn.Queue(single(0x06)))
	require.NoError(t, conn.Queue(single(0x06)))
	assert.ErrorIs(t, conn.Queue(single(0x06)), spibus.ErrQueueFull)
	assert.Equal(t, 2, c.MaxInFlight)
}

func TestHooks(t *testing.T) {
	c := New(1 << 16)
	injected := errors.New("injected")
	calls := 0
	c.QueueHook = func(*spibus.Transaction) error {
		calls++
		if calls == 2 {
			return injected
		}
		return nil
	}
	c.ResultHook = func(tr *spibus.Transaction) error {
		if tr.Cmd == 0x05 {
			return injected
		}
		return nil
	}
	conn := attach(t, c, 2)

	rd := single(0x05)
	rd.Rx = make([]byte, 1)
	require.NoError(t, conn.Queue(rd))
	assert.ErrorIs(t, conn.Queue(single(0x06)), injected)
	assert.Len(t, c.Log, 1, "a refused transaction never reaches the chip")

	_, err := conn.Result()
	assert.ErrorIs(t, err, injected)
	_, err = conn.Result()
	assert.ErrorIs(t, err, spibus.ErrQueueEmpty)
}
