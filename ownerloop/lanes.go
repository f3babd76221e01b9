package ownerloop

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

// item is a single queued unit of work.
type item struct {
	run      func()
	release  func()
	posted   time.Time
	priority Priority
}

// lanes is the owner loop's ingress: one FIFO per priority, guarded by a
// single mutex.
//
// The closed flag lives under the same mutex as the queues, so "not closed,
// enqueue" (push) and "empty, close" (closeIfEmpty) are mutually atomic. That
// is what guarantees no item can be stranded after the owner's final drain.
type lanes struct {
	mu     sync.Mutex
	q      [numPriorities]*queue.Queue
	n      int
	closed bool
}

func newLanes() *lanes {
	var x lanes
	for i := range x.q {
		x.q[i] = queue.New()
	}
	return &x
}

// push enqueues it, returning false if the lanes are closed.
func (x *lanes) push(it item) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return false
	}
	x.q[it.priority.lane()].Add(it)
	x.n++
	return true
}

// pop removes the oldest item of the highest non-empty lane.
func (x *lanes) pop() (item, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.n == 0 {
		return item{}, false
	}
	for p := numPriorities - 1; p >= 0; p-- {
		if x.q[p].Length() != 0 {
			x.n--
			return x.q[p].Remove().(item), true
		}
	}
	return item{}, false
}

// closeIfEmpty closes the lanes if (and only if) nothing is queued.
func (x *lanes) closeIfEmpty() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.n != 0 {
		return false
	}
	x.closed = true
	return true
}

// close closes the lanes, returning everything still queued, highest
// priority first.
func (x *lanes) close() []item {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	if x.n == 0 {
		return nil
	}
	items := make([]item, 0, x.n)
	for p := numPriorities - 1; p >= 0; p-- {
		for x.q[p].Length() != 0 {
			items = append(items, x.q[p].Remove().(item))
		}
	}
	x.n = 0
	return items
}

func (x *lanes) isClosed() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.closed
}

// depth returns the number of queued items per lane.
func (x *lanes) depth() (d PriorityDepth) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for i, q := range x.q {
		d[i] = q.Length()
	}
	return
}
