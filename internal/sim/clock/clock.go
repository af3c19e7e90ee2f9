// Package clock provides the simulation's single virtual clock and the named
// countdown timers built on it. Nothing here sleeps: callers advance the clock
// (from a real ticker in the server loop, or directly in tests) and due
// callbacks fire in (time, scheduling order).
package clock

import (
	"container/heap"
	"time"
)

// Resolution is the tick granularity of the server loop.
const Resolution = time.Second

type ID uint64

type scheduled struct {
	id        ID
	at        time.Duration
	seq       uint64
	fn        func()
	cancelled bool
	index     int
}

type schedule []*scheduled

func (s schedule) Len() int { return len(s) }
func (s schedule) Less(i, j int) bool {
	if s[i].at != s[j].at {
		return s[i].at < s[j].at
	}
	return s[i].seq < s[j].seq
}
func (s schedule) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
	s[i].index = i
	s[j].index = j
}
func (s *schedule) Push(x any) {
	it := x.(*scheduled)
	it.index = len(*s)
	*s = append(*s, it)
}
func (s *schedule) Pop() any {
	old := *s
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*s = old[:n-1]
	it.index = -1
	return it
}

type Clock struct {
	now   time.Duration
	seq   uint64
	queue schedule
	byID  map[ID]*scheduled
}

func New() *Clock {
	return &Clock{byID: map[ID]*scheduled{}}
}

func (c *Clock) Now() time.Duration { return c.now }

// AfterFunc schedules fn to run once the clock has advanced by d.
func (c *Clock) AfterFunc(d time.Duration, fn func()) ID {
	if d < 0 {
		d = 0
	}
	c.seq++
	it := &scheduled{id: ID(c.seq), at: c.now + d, seq: c.seq, fn: fn}
	heap.Push(&c.queue, it)
	c.byID[it.id] = it
	return it.id
}

func (c *Clock) Cancel(id ID) bool {
	it, ok := c.byID[id]
	if !ok {
		return false
	}
	delete(c.byID, id)
	it.cancelled = true
	if it.index >= 0 {
		heap.Remove(&c.queue, it.index)
	}
	return true
}

// Pending reports how many callbacks are scheduled.
func (c *Clock) Pending() int { return len(c.byID) }

// Advance moves the clock forward by d, firing every callback that comes due,
// including callbacks scheduled by other callbacks inside the window.
func (c *Clock) Advance(d time.Duration) int {
	if d < 0 {
		d = 0
	}
	target := c.now + d
	fired := 0
	for len(c.queue) > 0 {
		next := c.queue[0]
		if next.at > target {
			break
		}
		heap.Pop(&c.queue)
		delete(c.byID, next.id)
		if next.cancelled {
			continue
		}
		if next.at > c.now {
			c.now = next.at
		}
		next.fn()
		fired++
	}
	c.now = target
	return fired
}

// Set jumps the clock to an absolute time without firing anything. Used when
// restoring a snapshot into a fresh clock.
func (c *Clock) Set(now time.Duration) { c.now = now }
