package ownerloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Disabled(t *testing.T) {
	l := startTestLoop(t)
	require.NoError(t, l.Post(func() {}))
	require.NoError(t, l.Shutdown(context.Background()))
	assert.Equal(t, MetricsSnapshot{}, l.Metrics())
}

func TestMetrics_Counts(t *testing.T) {
	l := startTestLoop(t, WithMetrics(true))
	unblock := blockOwner(t, l)

	for range 3 {
		require.NoError(t, l.Invoke(func() {}))
	}
	require.NoError(t, l.PostTask(Task{Priority: PriorityIdle, Release: func() {}}))

	s := l.Metrics()
	assert.Equal(t, 3, s.Depth.Of(PriorityHigh))
	assert.Equal(t, 1, s.Depth.Of(PriorityIdle))
	assert.Equal(t, 0, s.Depth.Of(PriorityDefault))

	unblock()
	require.NoError(t, l.Shutdown(context.Background()))

	s = l.Metrics()
	assert.Equal(t, uint64(3), s.Posted.Of(PriorityHigh))
	// the blocking task
	assert.Equal(t, uint64(1), s.Posted.Of(PriorityDefault))
	assert.Equal(t, uint64(1), s.Posted.Of(PriorityIdle))
	assert.Equal(t, uint64(5), s.Executed.Total())
	assert.Equal(t, uint64(1), s.Released)
	assert.Equal(t, PriorityDepth{}, s.Depth)
	assert.Equal(t, 5, s.QueueWait.Samples)
	assert.GreaterOrEqual(t, s.QueueWait.Max, s.QueueWait.P50)
	assert.Zero(t, s.Depth.Of(Priority(42)))
	assert.Zero(t, s.Posted.Of(Priority(42)))
}

func TestLatencyRing(t *testing.T) {
	var r latencyRing
	assert.Equal(t, LatencySnapshot{}, r.snapshot())

	for i := 1; i <= sampleSize+100; i++ {
		r.record(time.Duration(i))
	}
	s := r.snapshot()
	assert.Equal(t, sampleSize, s.Samples)
	assert.Equal(t, time.Duration(sampleSize+100), s.Max)
	// oldest 100 samples were evicted
	assert.Equal(t, time.Duration(101+sampleSize/2), s.P50)
	assert.Equal(t, time.Duration((101+sampleSize+100)/2), s.Mean)
}

func TestPercentileIndex(t *testing.T) {
	assert.Equal(t, 0, percentileIndex(1, 99))
	assert.Equal(t, 50, percentileIndex(100, 50))
	assert.Equal(t, 99, percentileIndex(100, 100))
}

func TestPriority_String(t *testing.T) {
	assert.Equal(t, `idle`, PriorityIdle.String())
	assert.Equal(t, `default`, PriorityDefault.String())
	assert.Equal(t, `high`, PriorityHigh.String())
	assert.Equal(t, `Priority(5)`, Priority(5).String())
	assert.Equal(t, PriorityDefault, Task{}.Priority)
}

func TestLoopState_String(t *testing.T) {
	assert.Equal(t, `Created`, StateCreated.String())
	assert.Equal(t, `Running`, StateRunning.String())
	assert.Equal(t, `Stopping`, StateStopping.String())
	assert.Equal(t, `Stopped`, StateStopped.String())
	assert.Equal(t, `Unknown`, LoopState(99).String())
}

func TestLanes_Close(t *testing.T) {
	x := newLanes()
	assert.False(t, x.isClosed())
	require.True(t, x.push(item{priority: PriorityIdle}))
	require.True(t, x.push(item{priority: PriorityHigh}))
	assert.False(t, x.closeIfEmpty())

	items := x.close()
	require.Len(t, items, 2)
	assert.Equal(t, PriorityHigh, items[0].priority)
	assert.Equal(t, PriorityIdle, items[1].priority)
	assert.True(t, x.isClosed())
	assert.False(t, x.push(item{}))
	_, ok := x.pop()
	assert.False(t, ok)
}
