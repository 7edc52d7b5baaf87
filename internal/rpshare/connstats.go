package rpshare

import (
	"fmt"
	"sync/atomic"
)

// ConnStats tracks both the currently-open and the lifetime-total
// connection count for an entity (a tunnel listener or the worker
// server).
type ConnStats struct {
	count int32
	open  int32
}

// New records the start of a new connection, incrementing the lifetime
// total.
func (c *ConnStats) New() int32 {
	return atomic.AddInt32(&c.count, 1)
}

// Open increments the currently-open count.
func (c *ConnStats) Open() {
	atomic.AddInt32(&c.open, 1)
}

// Close decrements the currently-open count.
func (c *ConnStats) Close() {
	atomic.AddInt32(&c.open, -1)
}

func (c *ConnStats) String() string {
	return fmt.Sprintf("[%d/%d]", atomic.LoadInt32(&c.open), atomic.LoadInt32(&c.count))
}
