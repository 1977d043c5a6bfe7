package norflash

import (
	"errors"
	"testing"

	"github.com/gentam/norflash/spibus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a Conn that completes transactions in order and keeps a copy of
// each one as it was queued.
type recorder struct {
	sent      []spibus.Transaction
	pending   []*spibus.Transaction
	queueErr  error
	resultErr error // returned once, with the oldest transaction
	swap      bool  // complete the two oldest transactions out of order
}

func (r *recorder) Queue(t *spibus.Transaction) error {
	if r.queueErr != nil {
		return r.queueErr
	}
	r.sent = append(r.sent, *t)
	r.pending = append(r.pending, t)
	return nil
}

func (r *recorder) Result() (*spibus.Transaction, error) {
	if len(r.pending) == 0 {
		return nil, spibus.ErrQueueEmpty
	}
	if r.swap && len(r.pending) > 1 {
		r.swap = false
		r.pending[0], r.pending[1] = r.pending[1], r.pending[0]
	}
	t := r.pending[0]
	r.pending = r.pending[1:]
	if err := r.resultErr; err != nil {
		r.resultErr = nil
		return t, err
	}
	return t, nil
}

func (r *recorder) Detach() error { return nil }

func TestPipelineBackPressure(t *testing.T) {
	r := &recorder{}
	p := newPipeline(r, 3)

	var slots []*spibus.Transaction
	for range 5 {
		tr, err := p.acquire()
		require.NoError(t, err)
		require.NoError(t, p.submit(tr))
		slots = append(slots, tr)
		assert.LessOrEqual(t, p.inFlight(), 3)
	}
	assert.Equal(t, 3, p.inFlight())
	assert.Len(t, r.pending, 3)
	assert.Same(t, slots[0], slots[3], "slots are reused round robin")

	require.NoError(t, p.drain())
	assert.Zero(t, p.inFlight())
}

func TestPipelineAcquireZeroesSlot(t *testing.T) {
	r := &recorder{}
	p := newPipeline(r, 1)

	tr, err := p.acquire()
	require.NoError(t, err)
	tr.Cmd, tr.Rx = 0x9F, make([]byte, 3)
	require.NoError(t, p.submit(tr))

	tr, err = p.acquire()
	require.NoError(t, err)
	assert.Equal(t, spibus.Transaction{}, *tr)
}

func TestPipelineOrderViolation(t *testing.T) {
	r := &recorder{swap: true}
	p := newPipeline(r, 4)
	for range 2 {
		tr, err := p.acquire()
		require.NoError(t, err)
		require.NoError(t, p.submit(tr))
	}

	err := p.drain()
	var ce *CommError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "order", ce.Op)
}

func TestPipelineDrainCollectsBehindFailure(t *testing.T) {
	r := &recorder{resultErr: errors.New("crc mismatch")}
	p := newPipeline(r, 4)
	for range 3 {
		tr, err := p.acquire()
		require.NoError(t, err)
		require.NoError(t, p.submit(tr))
	}

	err := p.drain()
	var ce *CommError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "result", ce.Op)
	assert.Zero(t, p.inFlight())
	assert.Empty(t, r.pending)
	assert.NoError(t, p.drain())
}

func TestPipelineFailedQueueIsNotInFlight(t *testing.T) {
	r := &recorder{}
	p := newPipeline(r, 2)

	first, err := p.acquire()
	require.NoError(t, err)
	require.NoError(t, p.submit(first))

	r.queueErr = errors.New("bus gone")
	tr, err := p.acquire()
	require.NoError(t, err)
	err = p.submit(tr)
	assert.ErrorIs(t, err, ErrComm)
	assert.Equal(t, 1, p.inFlight())

	r.queueErr = nil
	again, err := p.acquire()
	require.NoError(t, err)
	assert.Same(t, tr, again, "the refused slot is handed out again")
	require.NoError(t, p.submit(again))
	assert.NoError(t, p.drain())
}

func TestEncoderFields(t *testing.T) {
	r := &recorder{}
	f := New(nil, QuadIO, quiet())
	f.pipe = newPipeline(r, 8)

	require.NoError(t, f.cmd(flashCmdWriteEnable))
	require.NoError(t, f.cmdReadDummy(flashCmdReadSFDP, 0x000010, 8, make([]byte, 8)))
	f.lanes.set(Lanes144)
	require.NoError(t, f.cmdReadMode(flashCmdFastReadQuadIO, 0x123456, crmOn, 16, make([]byte, 4)))
	require.NoError(t, f.cmdReadMode(0, 0x123460, crmOff, 16, make([]byte, 4)))
	f.lanes.set(Lanes111)
	f.lanes.qpiEnable()
	require.NoError(t, f.cmd(flashCmdReadStatusRegister1))
	require.NoError(t, f.cmdWriteAddr(flashCmdPageProgram, 0xABCDEF, []byte{1, 2}))
	require.NoError(t, f.cmdReadMode(flashCmdFastReadQuadIO, 0x000100, crmOn, 0, make([]byte, 4)))

	tests := []struct {
		name     string
		flags    spibus.Flags
		cmd      uint16
		cmdBits  uint8
		addr     uint64
		addrBits uint8
	}{
		{"write enable", spibus.FlagVariableAddr, 0x06, 8, 0, 0},
		{"sfdp", spibus.FlagVariableAddr, 0x5A, 8, 0x000010 << 8, 32},
		{"quad io", Lanes144.flags(), 0xEB, 8, (0x123456<<8 | 0x20) << 16, 48},
		{"quad io burst", Lanes144.flags(), 0, 0, (0x123460<<8 | 0x10) << 16, 48},
		{"qpi status", qpiFlags, 0, 0, 0x05, 8},
		{"qpi program", qpiFlags, 0, 0, 0x02ABCDEF, 32},
		{"qpi read", qpiFlags, 0, 0, (0xEB000100<<8 | 0x20), 40},
	}
	require.Len(t, r.sent, len(tests))
	for i, tt := range tests {
		got := r.sent[i]
		assert.Equal(t, tt.flags, got.Flags, tt.name)
		assert.Equal(t, tt.cmd, got.Cmd, tt.name)
		assert.Equal(t, tt.cmdBits, got.CommandBits, tt.name)
		assert.Equal(t, tt.addr, got.Addr, tt.name)
		assert.Equal(t, tt.addrBits, got.AddressBits, tt.name)
	}
	assert.Equal(t, []byte{1, 2}, r.sent[5].Tx)
	assert.Nil(t, r.sent[5].Rx)
	assert.Len(t, r.sent[6].Rx, 4)
}
