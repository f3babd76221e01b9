package ownerloop

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// sampleSize is the maximum number of queue wait samples to retain.
const sampleSize = 1000

// metrics tracks runtime statistics for a Loop, see WithMetrics.
//
// Counters are atomic and may be updated from any goroutine. Queue wait
// samples are only recorded by the owner, but may be read concurrently.
type metrics struct {
	posted    [numPriorities]atomic.Uint64
	executed  [numPriorities]atomic.Uint64
	discarded [numPriorities]atomic.Uint64
	rejected  [numPriorities]atomic.Uint64
	panics    atomic.Uint64
	released  atomic.Uint64
	wait      latencyRing
}

// latencyRing is a rolling buffer of latency samples.
type latencyRing struct {
	mu      sync.Mutex
	samples [sampleSize]time.Duration
	sum     time.Duration
	idx     int
	count   int
}

func (l *latencyRing) record(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// If buffer is full, subtract the old sample that we're replacing
	if l.count >= sampleSize {
		l.sum -= l.samples[l.idx]
	}

	l.samples[l.idx] = d
	l.sum += d
	l.idx++
	if l.idx >= sampleSize {
		l.idx = 0
	}
	if l.count < sampleSize {
		l.count++
	}
}

func (l *latencyRing) snapshot() (s LatencySnapshot) {
	l.mu.Lock()
	sorted := slices.Clone(l.samples[:l.count])
	sum := l.sum
	l.mu.Unlock()

	s.Samples = len(sorted)
	if s.Samples == 0 {
		return
	}
	slices.Sort(sorted)
	s.P50 = sorted[percentileIndex(s.Samples, 50)]
	s.P90 = sorted[percentileIndex(s.Samples, 90)]
	s.P99 = sorted[percentileIndex(s.Samples, 99)]
	s.Max = sorted[s.Samples-1]
	s.Mean = sum / time.Duration(s.Samples)
	return
}

// percentileIndex computes the index for a given percentile (0-100).
func percentileIndex(n, p int) int {
	index := (p * n) / 100
	if index >= n {
		return n - 1
	}
	return index
}

// PriorityCounts holds one counter per lane, see Of.
type PriorityCounts [numPriorities]uint64

// Of returns the counter for p, or 0 if p is not valid.
func (c PriorityCounts) Of(p Priority) uint64 {
	if !p.Valid() {
		return 0
	}
	return c[p.lane()]
}

// Total sums the counters of every lane.
func (c PriorityCounts) Total() (n uint64) {
	for _, v := range c {
		n += v
	}
	return
}

// PriorityDepth holds the number of queued items per lane, see Of.
type PriorityDepth [numPriorities]int

// Of returns the depth for p, or 0 if p is not valid.
func (d PriorityDepth) Of(p Priority) int {
	if !p.Valid() {
		return 0
	}
	return d[p.lane()]
}

// MetricsSnapshot is a point in time copy of a loop's metrics.
type MetricsSnapshot struct {
	// Posted counts items accepted onto each lane.
	Posted PriorityCounts
	// Executed counts item bodies run by the owner.
	Executed PriorityCounts
	// Discarded counts accepted items whose body never ran (Close).
	Discarded PriorityCounts
	// Rejected counts posts refused because the loop had terminated.
	Rejected PriorityCounts
	// Depth is the number of items queued on each lane.
	Depth PriorityDepth
	// Panics counts recovered task panics.
	Panics uint64
	// Released counts finalizers run, across all outcomes.
	Released uint64
	// QueueWait is the time items spent queued before running.
	QueueWait LatencySnapshot
}

// LatencySnapshot summarizes a window of latency samples.
type LatencySnapshot struct {
	P50     time.Duration
	P90     time.Duration
	P99     time.Duration
	Max     time.Duration
	Mean    time.Duration
	Samples int
}

// Metrics returns a snapshot of the loop's metrics. The zero value is
// returned if the loop was not created WithMetrics(true).
func (l *Loop) Metrics() (s MetricsSnapshot) {
	m := l.metrics
	if m == nil {
		return
	}
	for i := range numPriorities {
		s.Posted[i] = m.posted[i].Load()
		s.Executed[i] = m.executed[i].Load()
		s.Discarded[i] = m.discarded[i].Load()
		s.Rejected[i] = m.rejected[i].Load()
	}
	s.Depth = l.lanes.depth()
	s.Panics = m.panics.Load()
	s.Released = m.released.Load()
	s.QueueWait = m.wait.snapshot()
	return
}
