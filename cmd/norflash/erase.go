package main

import (
	"flag"
	"fmt"
	"os"
)

func eraseCommand(args []string) {
	fs := flag.NewFlagSet("erase", flag.ExitOnError)
	var (
		opts   options
		addr   int
		size   int
		sector int
		chip   bool
	)
	opts.register(fs)
	fs.IntVar(&addr, "a", 0, "start address, sector aligned")
	fs.IntVar(&size, "n", 0, "number of bytes to erase")
	fs.IntVar(&sector, "sector", -1, "erase a single sector by index")
	fs.BoolVar(&chip, "chip", false, "bulk erase entire flash")
	fs.Parse(args)

	if !chip && sector < 0 && size <= 0 {
		fatalUsage("one of -chip, -sector or -n is required")
	}

	f, _, done := opts.open()
	defer done()

	switch {
	case chip:
		fmt.Fprintf(os.Stderr, "erasing chip (up to %s)\n", f.EstimateErase(f.ChipSize()))
		if err := f.EraseChip(); err != nil {
			fatalf("bulk erase flash failed: %v", err)
		}
	case sector >= 0:
		if err := f.EraseSector(sector); err != nil {
			fatalf("erase sector %d failed: %v", sector, err)
		}
	default:
		if addr%f.SectorSize() != 0 {
			fatalUsage("address 0x%X is not aligned to %d byte sectors", addr, f.SectorSize())
		}
		if err := f.EraseRange(addr, size); err != nil {
			fatalf("erase flash failed: %v", err)
		}
	}
}
