package norflash

import (
	"testing"

	"github.com/gentam/norflash/spibus"
	"github.com/stretchr/testify/assert"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"default", func(*Config) {}, ""},
		{"explicit geometry", func(c *Config) { c.SectorSize, c.Capacity = 4096, 1<<24 }, ""},
		{"no quad lines", func(c *Config) { c.HD, c.WP = spibus.NoPin, spibus.NoPin }, ""},
		{"dma 2", func(c *Config) { c.DMAChannel = 2 }, ""},
		{"max queue", func(c *Config) { c.QueueSize = MaxQueueSize }, ""},
		{"sector without capacity", func(c *Config) { c.SectorSize = 4096 }, "SectorSize/Capacity"},
		{"negative geometry", func(c *Config) { c.SectorSize, c.Capacity = -1, -1 }, "SectorSize/Capacity"},
		{"sector larger than chip", func(c *Config) { c.SectorSize, c.Capacity = 8192, 4096 }, "SectorSize"},
		{"empty queue", func(c *Config) { c.QueueSize = 0 }, "QueueSize"},
		{"zero clock", func(c *Config) { c.Clock = 0 }, "Clock"},
		{"dma 0", func(c *Config) { c.DMAChannel = 0 }, "DMAChannel"},
		{"wp only", func(c *Config) { c.HD = spibus.NoPin }, "HD/WP"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrConfig)
			var ce *ConfigError
			if assert.ErrorAs(t, err, &ce) {
				assert.Equal(t, tt.field, ce.Field)
			}
		})
	}
}

func TestConfigBusAndDevice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Clock = 20 * physic.MegaHertz
	cfg.QueueSize = 4

	bc := cfg.busConfig()
	assert.Equal(t, spibus.HostVSPI, bc.Host)
	assert.Equal(t, spibus.Pin(21), bc.HD)
	assert.Equal(t, spibus.MaxDMALen, bc.MaxTransfer)

	dc := cfg.deviceConfig()
	assert.Equal(t, spibus.Pin(5), dc.CS)
	assert.Equal(t, 20*physic.MegaHertz, dc.Clock)
	assert.Equal(t, spi.Mode0, dc.Mode)
	assert.Equal(t, 4, dc.QueueSize)
	assert.True(t, dc.HalfDuplex)
}
