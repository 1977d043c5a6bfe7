package norflash

import (
	"github.com/gentam/norflash/spibus"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// MaxQueueSize is the deepest transaction pipeline Init will allocate.
const MaxQueueSize = 127

// Config describes how the flash is wired. It is copied by Init.
type Config struct {
	Host spibus.Host

	SCK  spibus.Pin
	MISO spibus.Pin // IO1
	MOSI spibus.Pin // IO0
	CS   spibus.Pin
	HD   spibus.Pin // IO3 /HOLD, spibus.NoPin if not wired
	WP   spibus.Pin // IO2 /WP, spibus.NoPin if not wired

	Clock      physic.Frequency
	DMAChannel int // 1 or 2
	QueueSize  int // transactions in flight, 1..MaxQueueSize

	// SectorSize and Capacity are both zero to detect the geometry, or both
	// set to skip detection.
	SectorSize int
	Capacity   int
}

// DefaultConfig returns the VSPI wiring of an ESP32 module with quad lines.
func DefaultConfig() Config {
	return Config{
		Host:       spibus.HostVSPI,
		SCK:        18,
		MISO:       19,
		MOSI:       23,
		CS:         5,
		HD:         21,
		WP:         22,
		Clock:      40 * physic.MegaHertz,
		DMAChannel: 1,
		QueueSize:  2,
	}
}

// Validate checks the configuration without touching the hardware.
func (c *Config) Validate() error {
	if (c.SectorSize != 0) != (c.Capacity != 0) {
		return &ConfigError{"SectorSize/Capacity", "must both be set (or neither)"}
	}
	if c.SectorSize < 0 || c.Capacity < 0 {
		return &ConfigError{"SectorSize/Capacity", "must not be negative"}
	}
	if c.SectorSize > c.Capacity {
		return &ConfigError{"SectorSize", "must not exceed Capacity"}
	}
	if c.QueueSize < 1 {
		return &ConfigError{"QueueSize", "must be greater than 0"}
	}
	if c.Clock <= 0 {
		return &ConfigError{"Clock", "must be greater than 0"}
	}
	if c.DMAChannel != 1 && c.DMAChannel != 2 {
		return &ConfigError{"DMAChannel", "must be either 1 or 2"}
	}
	if (c.HD != spibus.NoPin) != (c.WP != spibus.NoPin) {
		return &ConfigError{"HD/WP", "must both be set (or neither)"}
	}
	return nil
}

func (c *Config) busConfig() spibus.BusConfig {
	return spibus.BusConfig{
		Host:        c.Host,
		SCK:         c.SCK,
		MISO:        c.MISO,
		MOSI:        c.MOSI,
		HD:          c.HD,
		WP:          c.WP,
		MaxTransfer: spibus.MaxDMALen,
		DMAChannel:  c.DMAChannel,
	}
}

func (c *Config) deviceConfig() spibus.DeviceConfig {
	return spibus.DeviceConfig{
		CS:          c.CS,
		Clock:       c.Clock,
		Mode:        spi.Mode0,
		CommandBits: 8,
		QueueSize:   c.QueueSize,
		HalfDuplex:  true,
	}
}
