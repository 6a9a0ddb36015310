package hostrt

import "sync/atomic"

// EventCounter is the process-wide count of lifecycle events. Event delivery
// increments it from any goroutine; tasks read it without locking.
type EventCounter struct {
	n atomic.Int64
}

// Inc records one event and returns the new total.
func (c *EventCounter) Inc() int64 {
	return c.n.Add(1)
}

// TotalEvents returns the number of events observed so far.
func (c *EventCounter) TotalEvents() int64 {
	return c.n.Load()
}
