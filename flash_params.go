package norflash

import "time"

// flashParams describes a chip this driver has been used with. Timings are
// datasheet maxima and only inform progress reporting; completion is always
// detected by polling BUSY.
type flashParams struct {
	name string

	tPP        time.Duration
	tErase4KB  time.Duration
	tEraseChip time.Duration
}

var (
	flashIDMicronN25Q32   = [3]byte{0x20, 0xBA, 0x16}
	flashIDWinbondW25Q32  = [3]byte{0xEF, 0x40, 0x16}
	flashIDWinbondW25Q64  = [3]byte{0xEF, 0x40, 0x17}
	flashIDWinbondW25Q128 = [3]byte{0xEF, 0x40, 0x18}
	flashIDGigaDevice64   = [3]byte{0xC8, 0x40, 0x17}
)

var knownFlash = map[[3]byte]flashParams{
	flashIDMicronN25Q32: {
		name: "Micron N25Q 32Mb",

		// [N25Q32|Table 38: AC Characteristics and Operating Conditions]
		tPP:        5 * time.Millisecond,
		tErase4KB:  800 * time.Millisecond,
		tEraseChip: 60 * time.Second,
	},
	flashIDWinbondW25Q32: {
		name: "Winbond W25Q 32Mb",

		tPP:        3 * time.Millisecond,
		tErase4KB:  400 * time.Millisecond,
		tEraseChip: 50 * time.Second,
	},
	flashIDWinbondW25Q64: {
		name: "Winbond W25Q 64Mb",

		tPP:        3 * time.Millisecond,
		tErase4KB:  400 * time.Millisecond,
		tEraseChip: 100 * time.Second,
	},
	flashIDWinbondW25Q128: {
		name: "Winbond W25Q 128Mb",

		// [W25Q128|9.6 AC Electrical Characteristics]
		tPP:        3 * time.Millisecond,
		tErase4KB:  400 * time.Millisecond,
		tEraseChip: 200 * time.Second,
	},
	flashIDGigaDevice64: {
		name: "GigaDevice GD25Q 64Mb",

		tPP:        2400 * time.Microsecond,
		tErase4KB:  300 * time.Millisecond,
		tEraseChip: 60 * time.Second,
	},
}

// paramOrMax returns get for the chip identified at init, or the maximum over
// every known chip when the chip is unknown.
func (f *Flash) paramOrMax(get func(*flashParams) time.Duration) time.Duration {
	if p, ok := knownFlash[f.id]; ok {
		return get(&p)
	}
	var tmax time.Duration
	for _, param := range knownFlash {
		tmax = max(tmax, get(&param))
	}
	return tmax
}

// EstimateErase returns the worst case time to erase size bytes sector by
// sector, or the whole chip when size is the chip size.
func (f *Flash) EstimateErase(size int) time.Duration {
	if f.geo.SectorSize == 0 {
		return 0
	}
	if size >= f.geo.Capacity {
		return f.paramOrMax(func(p *flashParams) time.Duration { return p.tEraseChip })
	}
	sectors := (size + f.geo.SectorSize - 1) / f.geo.SectorSize
	return time.Duration(sectors) * f.paramOrMax(func(p *flashParams) time.Duration { return p.tErase4KB })
}

// EstimateWrite returns the worst case time to program size bytes.
func (f *Flash) EstimateWrite(size int) time.Duration {
	pages := (size + pageSize - 1) / pageSize
	return time.Duration(pages) * f.paramOrMax(func(p *flashParams) time.Duration { return p.tPP })
}
