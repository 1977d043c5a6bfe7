package norflash

import (
	"errors"
	"fmt"

	"github.com/gentam/norflash/sfdp"
)

// Geometry is the erase granularity and size of the chip, in bytes.
type Geometry struct {
	SectorSize int
	Capacity   int
	Source     string // "config", "sfdp", "jedec" or "sfdp+jedec"
}

func (g Geometry) String() string {
	return fmt.Sprintf("%d bytes in %d byte sectors (%s)", g.Capacity, g.SectorSize, g.Source)
}

// SFDPReadAt implements sfdp.ReaderAt on the chip's SFDP register space.
func (f *Flash) SFDPReadAt(offset uint32, out []byte) error {
	if err := f.ready(); err != nil {
		return err
	}
	// [W25Q128|8.2.28] 24-bit address followed by eight dummy clocks
	if err := f.cmdReadDummy(flashCmdReadSFDP, int(offset), 8, out); err != nil {
		return err
	}
	return f.pipe.drain()
}

// discoverGeometry asks the chip for its geometry: SFDP first, then the
// density byte of the JEDEC ID.
func (f *Flash) discoverGeometry() (Geometry, error) {
	var g Geometry

	tbl, err := sfdp.Parse(f)
	switch {
	case err == nil:
		g.SectorSize = tbl.SectorSize()
		g.Capacity = tbl.Capacity()
		g.Source = "sfdp"
		f.log.Debug("sfdp", "rev", fmt.Sprintf("%d.%d", tbl.MajorRev, tbl.MinorRev),
			"words", len(tbl.Words), "sectorSize", g.SectorSize, "capacity", g.Capacity)
	case errors.Is(err, ErrComm):
		return g, err
	default:
		f.log.Debug("sfdp unusable", "err", err)
	}

	if g.Capacity == 0 {
		id, err := f.readID()
		if err != nil {
			return g, err
		}
		f.id = id
		// [W25Q128|8.2.29] the capacity byte is log2 of the size in bytes
		if id[2] >= 0x10 && id[2] <= 0x17 {
			g.Capacity = 1 << id[2]
			if g.Source == "" {
				g.Source = "jedec"
			} else {
				g.Source += "+jedec"
			}
		}
	}

	if g.SectorSize == 0 || g.Capacity == 0 {
		return g, fmt.Errorf("%w: sector size %d, capacity %d", ErrGeometry, g.SectorSize, g.Capacity)
	}
	return g, nil
}
