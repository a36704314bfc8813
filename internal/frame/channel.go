package frame

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrClosed is returned by Push after Close, and by Pop once a closed
// channel has been drained.
var ErrClosed = errors.New("frame channel closed")

// OverflowPolicy decides what Push does when the channel is full.
type OverflowPolicy int

const (
	// DropOldest discards the oldest queued packet so Push never blocks.
	// A stalled consumer sees a gap in the stream, memory stays bounded and
	// the capture cadence is never throttled by the network.
	DropOldest OverflowPolicy = iota
	// Block makes Push wait for room. Nothing is dropped, but the capture
	// cadence degrades to whatever rate the consumer drains at.
	Block
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop-oldest"
	case Block:
		return "block"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy parses the configuration spelling of a policy
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "drop-oldest", "":
		return DropOldest, nil
	case "block":
		return Block, nil
	default:
		return DropOldest, errors.Errorf("unknown overflow policy %q", s)
	}
}

// Channel is a bounded FIFO of packets with a single producer and a single
// consumer. Packets come out in the order they went in.
type Channel struct {
	mu       sync.Mutex
	queue    []Packet
	capacity int
	policy   OverflowPolicy
	closed   bool

	ready chan struct{} // signalled after push
	space chan struct{} // signalled after pop
	done  chan struct{} // closed by Close

	dropped atomic.Uint64
}

// NewChannel creates a channel holding at most capacity packets
func NewChannel(capacity int, policy OverflowPolicy) *Channel {
	if capacity < 1 {
		capacity = 1
	}
	return &Channel{
		queue:    make([]Packet, 0, capacity),
		capacity: capacity,
		policy:   policy,
		ready:    make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Push appends a packet. With DropOldest it never blocks; with Block it
// waits for room, for Close, or for ctx to be done.
func (c *Channel) Push(ctx context.Context, p Packet) error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}

		if len(c.queue) < c.capacity {
			c.queue = append(c.queue, p)
			c.mu.Unlock()
			notify(c.ready)
			return nil
		}

		if c.policy == DropOldest {
			c.queue[0] = Packet{}
			c.queue = append(c.queue[1:], p)
			c.mu.Unlock()
			c.dropped.Add(1)
			notify(c.ready)
			return nil
		}
		c.mu.Unlock()

		select {
		case <-c.space:
		case <-c.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pop removes the oldest packet, waiting while the channel is empty. After
// Close it keeps returning queued packets and then ErrClosed.
func (c *Channel) Pop(ctx context.Context) (Packet, error) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			p := c.queue[0]
			c.queue[0] = Packet{}
			c.queue = c.queue[1:]
			c.mu.Unlock()
			notify(c.space)
			return p, nil
		}
		if c.closed {
			c.mu.Unlock()
			return Packet{}, ErrClosed
		}
		c.mu.Unlock()

		select {
		case <-c.ready:
		case <-c.done:
		case <-ctx.Done():
			return Packet{}, ctx.Err()
		}
	}
}

// Close stops further pushes and wakes any waiter. Safe to call more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// Len returns the number of queued packets
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Cap returns the channel capacity
func (c *Channel) Cap() int {
	return c.capacity
}

// Policy returns the overflow policy
func (c *Channel) Policy() OverflowPolicy {
	return c.policy
}

// Dropped returns how many packets DropOldest has discarded
func (c *Channel) Dropped() uint64 {
	return c.dropped.Load()
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
