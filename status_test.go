package norflash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusRegister(t *testing.T) {
	sr := StatusRegister(0b0000_0011)
	assert.True(t, sr.Busy())
	assert.True(t, sr.WriteEnabled())
	assert.False(t, sr.BlockProtect0())
	assert.Equal(t, "00000011 WEL,BUSY", sr.String())

	assert.Equal(t, "00000000", StatusRegister(0).String())
	assert.Equal(t, "10011100 SRP,BP2,BP1,BP0", StatusRegister(0x9C).String())
}

func TestStatusRegister2(t *testing.T) {
	sr := StatusRegister2(0b0100_0110)
	assert.True(t, sr.QuadEnable())
	assert.True(t, sr.ComplementProtect())
	assert.False(t, sr.Suspended())
	assert.False(t, sr.StatusRegisterLock())
	assert.Equal(t, "01000110 CMP,QE", sr.String(), "reserved bit 2 has no name")
}
