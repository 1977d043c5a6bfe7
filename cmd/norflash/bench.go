package main

import (
	"bytes"
	"encoding/hex"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/gentam/norflash"
)

const benchSectors = 16

func benchCommand(args []string) {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	var (
		opts     options
		total    int
		maxQueue int
		skipRead bool
		skipRW   bool
	)
	opts.register(fs)
	fs.IntVar(&total, "n", 1<<20, "bytes read per measurement")
	fs.IntVar(&maxQueue, "maxq", 4, "largest queue size in the read sweep")
	fs.BoolVar(&skipRead, "noread", false, "skip the read throughput sweep")
	fs.BoolVar(&skipRW, "norw", false, "skip the erase/write/verify pass")
	fs.Parse(args)

	f, fc, done := opts.open()
	defer done()

	fmt.Printf("%s (%s), %s\n", f.Variant(), f.Variant().Cycles(), f.Geometry())

	if !skipRead {
		readSweep(f, fc, min(total, f.ChipSize()), maxQueue)
	}
	if !skipRW {
		if !verifySectors(f) {
			os.Exit(1)
		}
	}
}

// readSweep reads total bytes for every block size and queue size and prints
// the throughput. The flash is re-initialized for each queue size.
func readSweep(f *norflash.Flash, fc norflash.Config, total, maxQueue int) {
	var blocks []int
	for b := 256; b <= min(benchSectors*f.SectorSize(), total); b *= 4 {
		blocks = append(blocks, b)
	}

	fmt.Printf("%8s", "block")
	for q := 1; q <= maxQueue; q++ {
		fmt.Printf("%10s", fmt.Sprintf("q=%d", q))
	}
	fmt.Println()

	results := make(map[[2]int]float64)
	for q := 1; q <= maxQueue; q++ {
		if err := f.Term(); err != nil {
			fatalf("flash term failed: %v", err)
		}
		fc.QueueSize = q
		if err := f.Init(fc); err != nil {
			fatalf("flash init with queue size %d failed: %v", q, err)
		}
		for _, b := range blocks {
			buf := make([]byte, b)
			start := time.Now()
			for addr := 0; addr+b <= total; addr += b {
				if err := f.Read(addr, buf); err != nil {
					fatalf("read at 0x%06X failed: %v", addr, err)
				}
			}
			elapsed := time.Since(start)
			results[[2]int{b, q}] = float64(total/b*b) / elapsed.Seconds() / 1e6
		}
	}

	for _, b := range blocks {
		fmt.Printf("%8d", b)
		for q := 1; q <= maxQueue; q++ {
			fmt.Printf("%10s", fmt.Sprintf("%.2fMB/s", results[[2]int{b, q}]))
		}
		fmt.Println()
	}
}

// verifySectors erases, writes and reads back benchSectors sectors spread
// evenly over the chip. The sectors are left holding the test pattern.
func verifySectors(f *norflash.Flash) bool {
	ss := f.SectorSize()
	sectors := f.ChipSize() / ss
	stride := max(sectors/benchSectors, 1)

	ok := true
	buf := make([]byte, ss)
	erased := bytes.Repeat([]byte{0xFF}, ss)
	for i := 0; i < min(benchSectors, sectors); i++ {
		sector := i * stride
		addr := sector * ss

		start := time.Now()
		if err := f.EraseSector(sector); err != nil {
			fatalf("erase sector %d failed: %v", sector, err)
		}
		tErase := time.Since(start)
		if err := f.Read(addr, buf); err != nil {
			fatalf("read sector %d failed: %v", sector, err)
		}
		if !bytes.Equal(buf, erased) {
			fmt.Printf("sector %4d: not erased\n", sector)
			dumpMismatch(buf, erased, addr)
			ok = false
			continue
		}

		want := make([]byte, ss)
		rng := rand.New(rand.NewPCG(uint64(sector), 0x5eed))
		for j := range want {
			want[j] = byte(rng.Uint32())
		}
		start = time.Now()
		if err := f.Write(addr, want); err != nil {
			fatalf("write sector %d failed: %v", sector, err)
		}
		tWrite := time.Since(start)
		if err := f.Read(addr, buf); err != nil {
			fatalf("read sector %d failed: %v", sector, err)
		}
		if !bytes.Equal(buf, want) {
			fmt.Printf("sector %4d: verify failed\n", sector)
			dumpMismatch(buf, want, addr)
			ok = false
			continue
		}
		fmt.Printf("sector %4d: ok (erase %s, write %s)\n", sector, tErase.Round(time.Microsecond), tWrite.Round(time.Microsecond))
	}
	return ok
}

// dumpMismatch hex dumps both buffers from the row holding the first
// difference.
func dumpMismatch(got, want []byte, base int) {
	i := mismatch(got, want) &^ 63
	end := min(i+128, len(got))
	fmt.Printf("first difference at 0x%06X\ngot:\n%swant:\n%s", base+mismatch(got, want),
		hex.Dump(got[i:end]), hex.Dump(want[i:end]))
}
