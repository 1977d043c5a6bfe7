package spibus

import "fmt"

// frame lays out t as one full-duplex byte exchange for controllers that only
// speak single-lane SPI. hdr is the number of command/address bytes in front
// of the data phase.
func frame(t *Transaction, defaultCmdBits int) (w []byte, hdr int, err error) {
	if a, d := t.Flags.Lines(); a != 1 || d != 1 {
		return nil, 0, fmt.Errorf("%w: %d-%d lanes", ErrUnsupported, a, d)
	}
	cmdBits := defaultCmdBits
	if t.Flags&FlagVariableCmd != 0 {
		cmdBits = int(t.CommandBits)
	}
	addrBits := 0
	if t.Flags&FlagVariableAddr != 0 {
		addrBits = int(t.AddressBits)
	}
	if cmdBits%8 != 0 || addrBits%8 != 0 || cmdBits > 16 || addrBits > 64 {
		return nil, 0, fmt.Errorf("%w: cmd=%d addr=%d bits", ErrUnsupported, cmdBits, addrBits)
	}
	if len(t.Tx) > 0 && len(t.Rx) > 0 {
		return nil, 0, fmt.Errorf("%w: full-duplex data phase", ErrUnsupported)
	}

	hdr = (cmdBits + addrBits) / 8
	w = make([]byte, hdr+len(t.Tx)+len(t.Rx))
	i := 0
	for n := cmdBits - 8; n >= 0; n -= 8 {
		w[i] = byte(t.Cmd >> n)
		i++
	}
	for n := addrBits - 8; n >= 0; n -= 8 {
		w[i] = byte(t.Addr >> n)
		i++
	}
	copy(w[hdr:], t.Tx)
	// w[hdr+len(t.Tx):] clocks out zeros while the chip answers
	return w, hdr, nil
}
