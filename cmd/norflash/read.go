package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
)

func readCommand(args []string) {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	var (
		opts       options
		addr       int
		nread      int
		statusOnly bool
		outFile    string
	)
	opts.register(fs)
	fs.IntVar(&addr, "a", 0, "start address")
	fs.IntVar(&nread, "n", 256, "number of bytes to read, 0 for the rest of the flash")
	fs.BoolVar(&statusOnly, "s", false, "just print flash status register")
	fs.StringVar(&outFile, "o", "", "output file (default: hexdump)")
	fs.Parse(args)

	f, _, done := opts.open()
	defer done()

	if statusOnly {
		sr, err := f.ReadStatusRegister()
		if err != nil {
			fatalf("read flash status register failed: %v", err)
		}
		fmt.Println(sr)
		return
	}

	if nread == 0 {
		nread = f.ChipSize() - addr
	}
	if nread < 0 {
		fatalUsage("address 0x%X is outside the %d byte flash", addr, f.ChipSize())
	}
	data := make([]byte, nread)
	if err := f.Read(addr, data); err != nil {
		fatalf("read flash failed: %v", err)
	}
	if outFile == "" {
		fmt.Print(hex.Dump(data))
		return
	}
	if err := os.WriteFile(outFile, data, 0644); err != nil {
		fmt.Fprintln(os.Stderr, "write file failed:", err)
	}
}
