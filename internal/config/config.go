// internal/config/config.go
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Bus      BusConfig      `yaml:"bus"`
	Pins     PinConfig      `yaml:"pins"`
	Clock    string         `yaml:"clock"` // e.g. "40MHz"
	DMA      int            `yaml:"dma_channel"`
	Queue    int            `yaml:"queue_size"`
	Variant  string         `yaml:"variant"` // std, dual, dio, quad, qio, qpi
	Geometry GeometryConfig `yaml:"geometry"`
	LogLevel string         `yaml:"log_level"` // debug, info, warn, error
}

// ---- BUS ----

type BusConfig struct {
	Kind        string    `yaml:"kind"`         // sim, ftdi, spidev, rpio
	Port        string    `yaml:"port"`         // spidev port name, "" for the first one
	Host        string    `yaml:"host"`         // vspi or hspi
	MaxTransfer int       `yaml:"max_transfer"` // sim only
	Sim         SimConfig `yaml:"sim"`
}

type SimConfig struct {
	Capacity int    `yaml:"capacity"`
	Image    string `yaml:"image"` // optional file preloaded into the chip
}

// ---- PINS ----

// PinConfig uses -1 for lines that are not wired.
type PinConfig struct {
	SCK  int `yaml:"sck"`
	MISO int `yaml:"miso"`
	MOSI int `yaml:"mosi"`
	CS   int `yaml:"cs"`
	HD   int `yaml:"hd"`
	WP   int `yaml:"wp"`
}

// ---- GEOMETRY ----

// GeometryConfig is all zero to let the driver detect it.
type GeometryConfig struct {
	SectorSize int `yaml:"sector_size"`
	Capacity   int `yaml:"capacity"`
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			Kind: "sim",
			Host: "vspi",
			Sim:  SimConfig{Capacity: 16 << 20},
		},
		Pins:     PinConfig{SCK: 18, MISO: 19, MOSI: 23, CS: 5, HD: 21, WP: 22},
		Clock:    "40MHz",
		DMA:      1,
		Queue:    2,
		Variant:  "std",
		LogLevel: "info",
	}
}

// Load reads a YAML file on top of Default. Unknown keys are an error.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
