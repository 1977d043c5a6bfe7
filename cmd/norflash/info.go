package main

import (
	"flag"
	"fmt"
)

func infoCommand(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	var opts options
	opts.register(fs)
	fs.Parse(args)

	f, _, done := opts.open()
	defer done()

	id, name, err := f.ReadID()
	if err != nil {
		fatalf("read flash ID failed: %v", err)
	}
	if name == "" {
		name = "unknown"
	}
	sr1, err := f.ReadStatusRegister()
	if err != nil {
		fatalf("read flash status register failed: %v", err)
	}
	sr2, err := f.ReadStatusRegister2()
	if err != nil {
		fatalf("read flash status register 2 failed: %v", err)
	}

	g := f.Geometry()
	fmt.Printf("Bus:             %s\n", opts.cfg.Bus.Kind)
	fmt.Printf("Variant:         %s (%s)\n", f.Variant(), f.Variant().Cycles())
	fmt.Printf("Lanes:           %s\n", f.Lanes())
	fmt.Printf("JEDEC ID:        %X\t%s\n", id, name)
	fmt.Printf("Capacity:        %d bytes\n", g.Capacity)
	fmt.Printf("Sector size:     %d bytes\n", g.SectorSize)
	fmt.Printf("Geometry from:   %s\n", g.Source)
	fmt.Printf("Status 1:        %s\n", sr1)
	fmt.Printf("Status 2:        %s\n", sr2)
	fmt.Printf("Chip erase:      up to %s\n", f.EstimateErase(g.Capacity))
}
