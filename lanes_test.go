package norflash

import (
	"testing"

	"github.com/gentam/norflash/spibus"
	"github.com/stretchr/testify/assert"
)

func TestLaneModeFlags(t *testing.T) {
	tests := []struct {
		mode       LaneMode
		name       string
		addr, data int
		vcmd       bool
	}{
		{Lanes111, "1-1-1", 1, 1, false},
		{Lanes112, "1-1-2", 1, 2, false},
		{Lanes122, "1-2-2", 2, 2, true},
		{Lanes114, "1-1-4", 1, 4, false},
		{Lanes144, "1-4-4", 4, 4, true},
	}
	for _, tt := range tests {
		f := tt.mode.flags()
		addr, data := f.Lines()
		assert.Equal(t, tt.name, tt.mode.String())
		assert.Equal(t, tt.addr, addr, tt.name)
		assert.Equal(t, tt.data, data, tt.name)
		assert.Equal(t, tt.vcmd, f&spibus.FlagVariableCmd != 0, tt.name)
		assert.NotZero(t, f&spibus.FlagVariableAddr, tt.name)
	}
	assert.Equal(t, "LaneMode(9)", LaneMode(9).String())
}

func TestLaneStateQPIOverrides(t *testing.T) {
	var s laneState
	s.set(Lanes114)
	assert.Equal(t, "1-1-4", s.String())

	s.qpiEnable()
	assert.Equal(t, "4-4-4", s.String())
	s.set(Lanes111)
	assert.Equal(t, "4-4-4", s.String(), "lane mode changes do not leave QPI")

	s.qpiDisable()
	assert.Equal(t, "1-1-1", s.String())
	assert.Equal(t, spibus.FlagVariableAddr, s.tflag)
}
