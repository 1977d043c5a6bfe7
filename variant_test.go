package norflash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVariant(t *testing.T) {
	for _, v := range Variants() {
		got, err := ParseVariant(v.String())
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	_, err := ParseVariant("octal")
	assert.Error(t, err)
	assert.Equal(t, "Variant(42)", Variant(42).String())
}

func TestVariantCycles(t *testing.T) {
	want := map[Variant]string{
		Standard:   "1-1-1",
		DualOutput: "1-1-2",
		DualIO:     "1-2-2",
		QuadOutput: "1-1-4",
		QuadIO:     "1-4-4",
		QPI:        "4-4-4",
	}
	for v, cycles := range want {
		assert.Equal(t, cycles, v.Cycles(), v.String())
	}
}

func TestNewPanicsOnUnknownVariant(t *testing.T) {
	assert.Panics(t, func() { New(nil, Variant(-1)) })
}

func TestStrategies(t *testing.T) {
	for _, v := range Variants() {
		s, err := strategyFor(v)
		require.NoError(t, err)
		assert.NotNil(t, s.read)
		assert.NotNil(t, s.modeBegin)
		assert.NotNil(t, s.modeEnd)
		assert.Equal(t, v != Standard, s.clearCRM, v.String())
	}
}
