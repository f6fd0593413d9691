package coordinator

import (
	"sync"
	"time"

	"k8s.io/utils/buffer"
)

// Sender is the producer side of the request channel.
type Sender interface {
	Send(req Request) error
}

// Channel is an unbounded FIFO of requests: any number of producers, one
// consumer. Send never blocks.
type Channel struct {
	mu     sync.Mutex
	queue  *buffer.RingGrowing
	closed bool

	// notify holds at most one wakeup for the consumer.
	notify chan struct{}
}

func NewChannel(initialSize int) *Channel {
	if initialSize <= 0 {
		initialSize = 16
	}

	return &Channel{
		queue:  buffer.NewRingGrowing(initialSize),
		notify: make(chan struct{}, 1),
	}
}

func (c *Channel) Send(req Request) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.queue.WriteOne(req)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

// TryReceive returns the next request, waiting at most timeout for one.
// It reports ErrChannelClosed once the channel is closed and drained.
func (c *Channel) TryReceive(timeout time.Duration) (Request, bool, error) {
	if req, ok, err := c.pop(); ok || err != nil {
		return req, ok, err
	}

	if timeout <= 0 {
		return Request{}, false, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-c.notify:
			if req, ok, err := c.pop(); ok || err != nil {
				return req, ok, err
			}
		case <-timer.C:
			return c.pop()
		}
	}
}

func (c *Channel) pop() (Request, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.queue.ReadOne(); ok {
		return v.(Request), true, nil
	}
	if c.closed {
		return Request{}, false, ErrChannelClosed
	}
	return Request{}, false, nil
}

func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// Close rejects further sends. Queued requests can still be received.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}
