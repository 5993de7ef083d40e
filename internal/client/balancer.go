package client

import (
	"sync"

	"google.golang.org/grpc"

	"tinyserve/internal/grpcapi"
)

// channel is the persistent connection to one worker.
type channel struct {
	pid  int
	conn *grpc.ClientConn
	stub *grpcapi.ModelClient
}

// channels maps worker pids to their channel and hands them out round-robin.
type channels struct {
	mu     sync.Mutex
	order  []int
	byPID  map[int]*channel
	cursor int
	closed bool
}

func newChannels() *channels { return &channels{byPID: map[int]*channel{}} }

// add keeps ch unless its pid is already known, in which case ch is closed.
// It reports whether ch was kept.
func (c *channels) add(ch *channel) bool {
	c.mu.Lock()
	if _, dup := c.byPID[ch.pid]; dup || c.closed {
		c.mu.Unlock()
		_ = ch.conn.Close()
		return false
	}
	c.byPID[ch.pid] = ch
	c.order = append(c.order, ch.pid)
	c.mu.Unlock()
	return true
}

// next advances the cursor and returns the channel it lands on.
func (c *channels) next() (*channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(c.order) == 0 {
		return nil, ErrClosed
	}
	c.cursor = (c.cursor + 1) % len(c.order)
	return c.byPID[c.order[c.cursor]], nil
}

func (c *channels) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

func (c *channels) pids() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.order...)
}

func (c *channels) all() []*channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*channel, 0, len(c.order))
	for _, pid := range c.order {
		out = append(out, c.byPID[pid])
	}
	return out
}

func (c *channels) closeAll() error {
	c.mu.Lock()
	all := make([]*channel, 0, len(c.order))
	for _, pid := range c.order {
		all = append(all, c.byPID[pid])
	}
	c.order = nil
	c.byPID = map[int]*channel{}
	c.closed = true
	c.mu.Unlock()
	var first error
	for _, ch := range all {
		if err := ch.conn.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
