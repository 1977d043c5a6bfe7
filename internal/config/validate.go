// internal/config/validate.go
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gentam/norflash"
	"github.com/gentam/norflash/spibus"
	"periph.io/x/conn/v3/physic"
)

// Validate checks the file level settings and everything norflash.Config
// checks itself. It does not touch hardware.
func Validate(cfg *Config) error {
	switch cfg.Bus.Kind {
	case "sim":
		c := cfg.Bus.Sim.Capacity
		if c <= 0 || c&(c-1) != 0 {
			return fmt.Errorf("bus.sim.capacity must be a power of two, got %d", c)
		}
	case "ftdi", "spidev", "rpio":
	default:
		return fmt.Errorf("bus.kind %q: must be one of sim, ftdi, spidev, rpio", cfg.Bus.Kind)
	}
	if _, err := cfg.host(); err != nil {
		return err
	}
	if cfg.Bus.MaxTransfer < 0 {
		return fmt.Errorf("bus.max_transfer must not be negative")
	}
	if _, err := norflash.ParseVariant(cfg.Variant); err != nil {
		return fmt.Errorf("variant: %w", err)
	}
	if _, err := cfg.level(); err != nil {
		return err
	}

	fc, err := cfg.FlashConfig()
	if err != nil {
		return err
	}
	return fc.Validate()
}

func (cfg *Config) host() (spibus.Host, error) {
	switch strings.ToLower(cfg.Bus.Host) {
	case "", "vspi":
		return spibus.HostVSPI, nil
	case "hspi":
		return spibus.HostHSPI, nil
	}
	return 0, fmt.Errorf("bus.host %q: must be vspi or hspi", cfg.Bus.Host)
}

func (cfg *Config) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Level returns the configured level, or info when it does not parse.
func (cfg *Config) Level() slog.Level {
	l, err := cfg.level()
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

// FlashConfig converts cfg to the driver configuration.
func (cfg *Config) FlashConfig() (norflash.Config, error) {
	var clock physic.Frequency
	if err := clock.Set(cfg.Clock); err != nil {
		return norflash.Config{}, fmt.Errorf("clock %q: %w", cfg.Clock, err)
	}
	host, err := cfg.host()
	if err != nil {
		return norflash.Config{}, err
	}
	return norflash.Config{
		Host:       host,
		SCK:        spibus.Pin(cfg.Pins.SCK),
		MISO:       spibus.Pin(cfg.Pins.MISO),
		MOSI:       spibus.Pin(cfg.Pins.MOSI),
		CS:         spibus.Pin(cfg.Pins.CS),
		HD:         spibus.Pin(cfg.Pins.HD),
		WP:         spibus.Pin(cfg.Pins.WP),
		Clock:      clock,
		DMAChannel: cfg.DMA,
		QueueSize:  cfg.Queue,
		SectorSize: cfg.Geometry.SectorSize,
		Capacity:   cfg.Geometry.Capacity,
	}, nil
}

// FlashVariant returns the parsed variant. Call Validate first.
func (cfg *Config) FlashVariant() norflash.Variant {
	v, _ := norflash.ParseVariant(cfg.Variant)
	return v
}
