package norflash

import (
	"fmt"

	"github.com/gentam/norflash/spibus"
)

// pipeline is a ring of transaction slots shared with the bus. Slots are
// handed out in order; a slot is only reused after the bus returned it.
type pipeline struct {
	conn   spibus.Conn
	slots  []spibus.Transaction
	next   int // slot of the most recently acquired transaction
	queued int // transactions owned by the bus
}

func newPipeline(conn spibus.Conn, depth int) *pipeline {
	return &pipeline{
		conn:  conn,
		slots: make([]spibus.Transaction, depth),
		next:  depth - 1,
	}
}

// oldest is the slot the bus will complete next.
func (p *pipeline) oldest() *spibus.Transaction {
	i := (p.next - p.queued + 1 + len(p.slots)) % len(p.slots)
	return &p.slots[i]
}

// acquire returns a zeroed slot, first waiting for the oldest transaction
// when all slots are in flight.
func (p *pipeline) acquire() (*spibus.Transaction, error) {
	if p.queued == len(p.slots) {
		if err := p.retire(); err != nil {
			return nil, err
		}
	}
	p.next = (p.next + 1) % len(p.slots)
	t := &p.slots[p.next]
	*t = spibus.Transaction{}
	return t, nil
}

// submit hands t, obtained from acquire, to the bus.
func (p *pipeline) submit(t *spibus.Transaction) error {
	if err := p.conn.Queue(t); err != nil {
		// Never queued: step the cursor back so the slot is handed out again.
		p.next = (p.next - 1 + len(p.slots)) % len(p.slots)
		return &CommError{Op: "queue", Err: err}
	}
	p.queued++
	return nil
}

// retire collects the oldest in-flight transaction. A failed collection still
// releases the slot.
func (p *pipeline) retire() error {
	want := p.oldest()
	got, err := p.conn.Result()
	p.queued--
	if err != nil {
		return &CommError{Op: "result", Err: err}
	}
	if got != want {
		return &CommError{Op: "order", Err: fmt.Errorf("bus completed %p, expected %p", got, want)}
	}
	return nil
}

// drain waits until every queued transaction completed and returns the first
// failure. Transactions behind a failed one are still collected.
func (p *pipeline) drain() error {
	var first error
	for p.queued > 0 {
		if err := p.retire(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (p *pipeline) inFlight() int { return p.queued }
