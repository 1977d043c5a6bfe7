package main

import (
	"fmt"
	"os"

	"github.com/gentam/norflash/internal/chipsim"
	"github.com/gentam/norflash/internal/config"
	"github.com/gentam/norflash/spibus"
)

// openBus returns the transport selected by cfg.Bus and a function releasing
// the underlying device.
func openBus(cfg *config.Config) (spibus.Bus, func() error, error) {
	nop := func() error { return nil }

	switch cfg.Bus.Kind {
	case "sim":
		chip := chipsim.New(cfg.Bus.Sim.Capacity)
		chip.MaxTx = cfg.Bus.MaxTransfer
		if cfg.Bus.Sim.Image != "" {
			img, err := os.ReadFile(cfg.Bus.Sim.Image)
			if err != nil {
				return nil, nil, err
			}
			if len(img) > len(chip.Mem) {
				return nil, nil, fmt.Errorf("image %s is larger than the %d byte chip", cfg.Bus.Sim.Image, len(chip.Mem))
			}
			copy(chip.Mem, img)
		}
		return chip, nop, nil

	case "ftdi":
		p, err := spibus.OpenFTDI()
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil

	case "spidev":
		p, err := spibus.OpenPort(cfg.Bus.Port)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil

	case "rpio":
		return spibus.NewRpio(), nop, nil
	}
	return nil, nil, fmt.Errorf("unknown bus kind %q", cfg.Bus.Kind)
}
