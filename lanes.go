package norflash

import (
	"fmt"

	"github.com/gentam/norflash/spibus"
)

// LaneMode is the number of lines used by the command, address and data
// phases, written command-address-data.
type LaneMode int

const (
	Lanes111 LaneMode = iota
	Lanes112
	Lanes122
	Lanes114
	Lanes144
)

func (m LaneMode) String() string {
	switch m {
	case Lanes111:
		return "1-1-1"
	case Lanes112:
		return "1-1-2"
	case Lanes122:
		return "1-2-2"
	case Lanes114:
		return "1-1-4"
	case Lanes144:
		return "1-4-4"
	default:
		return fmt.Sprintf("LaneMode(%d)", int(m))
	}
}

func (m LaneMode) flags() spibus.Flags {
	switch m {
	case Lanes112:
		return spibus.FlagVariableAddr | spibus.FlagModeDIO
	case Lanes114:
		return spibus.FlagVariableAddr | spibus.FlagModeQIO
	case Lanes122:
		return spibus.FlagVariableAddr | spibus.FlagVariableCmd |
			spibus.FlagModeDIO | spibus.FlagModeDIOQIOAddr
	case Lanes144:
		return spibus.FlagVariableAddr | spibus.FlagVariableCmd |
			spibus.FlagModeQIO | spibus.FlagModeDIOQIOAddr
	default:
		return spibus.FlagVariableAddr
	}
}

// qpiFlags frame every phase on four lines with command and address merged
// into one variable width field.
const qpiFlags = spibus.FlagVariableCmd | spibus.FlagVariableAddr |
	spibus.FlagModeQIO | spibus.FlagModeDIOQIOAddr

// laneState is the active transfer configuration. While qpi is set it
// overrides mode.
type laneState struct {
	mode  LaneMode
	tflag spibus.Flags
	qpi   bool
}

func (s *laneState) set(m LaneMode) {
	s.mode = m
	s.tflag = m.flags()
}

func (s *laneState) qpiEnable()  { s.qpi = true }
func (s *laneState) qpiDisable() { s.qpi = false }

func (s *laneState) String() string {
	if s.qpi {
		return "4-4-4"
	}
	return s.mode.String()
}
