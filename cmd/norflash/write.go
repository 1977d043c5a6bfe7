package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
)

func writeCommand(args []string) {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	var (
		opts     options
		filename string
		addr     int
		erase    bool
		verify   bool
	)
	opts.register(fs)
	fs.StringVar(&filename, "f", "", "input file")
	fs.IntVar(&addr, "a", 0, "start address")
	fs.BoolVar(&erase, "e", true, "erase the covered sectors first")
	fs.BoolVar(&verify, "verify", true, "read back and compare")
	fs.Parse(args)

	if filename == "" {
		fatalUsage("input file is required")
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		fatalf("failed to read file: %v", err)
	}

	f, _, done := opts.open()
	defer done()

	if erase {
		ss := f.SectorSize()
		start := addr / ss * ss
		end := (addr + len(data) + ss - 1) / ss * ss
		fmt.Fprintf(os.Stderr, "erasing 0x%06X-0x%06X (up to %s)\n", start, end, f.EstimateErase(end-start))
		if err := f.EraseRange(start, end-start); err != nil {
			fatalf("erase flash failed: %v", err)
		}
	}

	if err := f.Write(addr, data); err != nil {
		fatalf("write flash failed: %v", err)
	}

	if verify {
		got := make([]byte, len(data))
		if err := f.Read(addr, got); err != nil {
			fatalf("read back failed: %v", err)
		}
		if !bytes.Equal(got, data) {
			fatalf("verify failed at 0x%06X", addr+mismatch(got, data))
		}
	}
	fmt.Fprintf(os.Stderr, "wrote %d bytes at 0x%06X\n", len(data), addr)
}

// mismatch returns the index of the first differing byte.
func mismatch(a, b []byte) int {
	for i := range min(len(a), len(b)) {
		if a[i] != b[i] {
			return i
		}
	}
	return min(len(a), len(b))
}
