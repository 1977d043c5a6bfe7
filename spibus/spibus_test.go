package spibus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagsLines(t *testing.T) {
	tests := []struct {
		flags      Flags
		addr, data int
	}{
		{FlagVariableAddr, 1, 1},
		{FlagVariableAddr | FlagModeDIO, 1, 2},
		{FlagVariableAddr | FlagModeQIO, 1, 4},
		{FlagVariableAddr | FlagVariableCmd | FlagModeDIO | FlagModeDIOQIOAddr, 2, 2},
		{FlagVariableAddr | FlagVariableCmd | FlagModeQIO | FlagModeDIOQIOAddr, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.flags.String(), func(t *testing.T) {
			a, d := tt.flags.Lines()
			assert.Equal(t, tt.addr, a)
			assert.Equal(t, tt.data, d)
		})
	}
}

func TestCompletionsFIFO(t *testing.T) {
	c := NewCompletions(2)
	t1, t2, t3 := &Transaction{Cmd: 1}, &Transaction{Cmd: 2}, &Transaction{Cmd: 3}

	require.NoError(t, c.Push(t1, nil))
	require.NoError(t, c.Push(t2, nil))
	assert.ErrorIs(t, c.Push(t3, nil), ErrQueueFull)

	got, err := c.Pop()
	require.NoError(t, err)
	assert.Same(t, t1, got)

	require.NoError(t, c.Push(t3, nil))
	got, _ = c.Pop()
	assert.Same(t, t2, got)
	got, _ = c.Pop()
	assert.Same(t, t3, got)

	_, err = c.Pop()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestFrameSingleLane(t *testing.T) {
	tr := &Transaction{
		Flags:       FlagVariableAddr,
		Cmd:         0x0B,
		CommandBits: 8,
		Addr:        0x123456 << 8, // 8 dummy bits
		AddressBits: 32,
		Rx:          make([]byte, 3),
	}
	w, hdr, err := frame(tr, 8)
	require.NoError(t, err)
	assert.Equal(t, 5, hdr)
	assert.Equal(t, []byte{0x0B, 0x12, 0x34, 0x56, 0x00, 0, 0, 0}, w)
}

func TestFrameDefaultsCommandBits(t *testing.T) {
	tr := &Transaction{Flags: FlagVariableAddr, Cmd: 0x06}
	w, hdr, err := frame(tr, 8)
	require.NoError(t, err)
	assert.Equal(t, 1, hdr)
	assert.Equal(t, []byte{0x06}, w)
}

func TestFrameRejectsMultiLane(t *testing.T) {
	tr := &Transaction{Flags: FlagVariableAddr | FlagModeQIO, Cmd: 0x6B, Rx: make([]byte, 1)}
	_, _, err := frame(tr, 8)
	assert.ErrorIs(t, err, ErrUnsupported)

	tr = &Transaction{Flags: FlagVariableAddr, Cmd: 0xEB, Addr: 1, AddressBits: 12}
	_, _, err = frame(tr, 8)
	assert.ErrorIs(t, err, ErrUnsupported)
}
