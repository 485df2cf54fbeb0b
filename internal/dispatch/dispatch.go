// Package dispatch hands work from interrupt-like contexts (timers, pin
// callbacks) to the device loop. Producers only Post or Inc; every other
// piece of work runs when the loop calls Drain.
package dispatch

import (
	"sync/atomic"
)

// DefaultCapacity matches the scheduler queue size of the tag firmware.
const DefaultCapacity = 16

// Event is deferred work executed by Drain.
type Event func()

// Queue is a bounded run queue with a single wake signal.
type Queue struct {
	events  chan Event
	wake    chan struct{}
	dropped atomic.Uint64
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		events: make(chan Event, capacity),
		wake:   make(chan struct{}, 1),
	}
}

// Post enqueues e without blocking. It returns false and counts a drop when
// the queue is full.
func (q *Queue) Post(e Event) bool {
	if e == nil {
		return true
	}
	select {
	case q.events <- e:
	default:
		q.dropped.Add(1)
		return false
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Drain runs queued events until the queue is empty, including events posted
// by the events themselves. It returns the number of events run.
func (q *Queue) Drain() int {
	n := 0
	for {
		select {
		case e := <-q.events:
			e()
			n++
		default:
			return n
		}
	}
}

// Wake is signalled after every successful Post. Waiting on it is the
// loop's sleep.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

// Pending is the number of queued events.
func (q *Queue) Pending() int {
	return len(q.events)
}

// Dropped is the number of events rejected because the queue was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Counter is incremented from interrupt context and read-and-cleared once per cycle.
type Counter struct {
	n atomic.Uint32
}

func (c *Counter) Inc() {
	c.n.Add(1)
}

// Take returns the count and resets it in one step.
func (c *Counter) Take() uint32 {
	return c.n.Swap(0)
}

func (c *Counter) Load() uint32 {
	return c.n.Load()
}
