package spibus

// Completions is a bounded FIFO of finished transactions for transports that
// execute synchronously inside Queue.
type Completions struct {
	ring  []completion
	head  int
	count int
}

type completion struct {
	t   *Transaction
	err error
}

func NewCompletions(depth int) *Completions {
	return &Completions{ring: make([]completion, max(depth, 1))}
}

// Push records the outcome of t. It fails with ErrQueueFull when depth
// transactions are already waiting to be collected.
func (c *Completions) Push(t *Transaction, err error) error {
	if c.count == len(c.ring) {
		return ErrQueueFull
	}
	c.ring[(c.head+c.count)%len(c.ring)] = completion{t, err}
	c.count++
	return nil
}

// Pop returns the oldest outcome.
func (c *Completions) Pop() (*Transaction, error) {
	if c.count == 0 {
		return nil, ErrQueueEmpty
	}
	e := c.ring[c.head]
	c.ring[c.head] = completion{}
	c.head = (c.head + 1) % len(c.ring)
	c.count--
	return e.t, e.err
}

func (c *Completions) Len() int { return c.count }
func (c *Completions) Cap() int { return len(c.ring) }
