package ownerloop

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_FIFOWithinPriority(t *testing.T) {
	l := newTestLoop(t)

	const n = 200
	var order []int
	for i := range n {
		require.NoError(t, l.Post(func() { order = append(order, i) }))
	}
	l.Stop()
	require.NoError(t, l.Run(context.Background()))

	require.Len(t, order, n)
	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d", i, v)
		}
	}
}

func TestLoop_PriorityOrdering(t *testing.T) {
	l := newTestLoop(t)

	var order []string
	post := func(p Priority, name string) {
		require.NoError(t, l.PostTask(Task{Priority: p, Run: func() { order = append(order, name) }}))
	}
	post(PriorityIdle, `idle1`)
	post(PriorityDefault, `default1`)
	post(PriorityHigh, `high1`)
	post(PriorityIdle, `idle2`)
	post(PriorityDefault, `default2`)
	post(PriorityHigh, `high2`)

	l.Stop()
	require.NoError(t, l.Run(context.Background()))

	assert.Equal(t, []string{`high1`, `high2`, `default1`, `default2`, `idle1`, `idle2`}, order)
}

func TestLoop_HighPriorityAheadOfPendingDefault(t *testing.T) {
	l := startTestLoop(t)
	unblock := blockOwner(t, l)

	var order []string
	done := make(chan struct{})
	require.NoError(t, l.Post(func() { order = append(order, `default`) }))
	require.NoError(t, l.Invoke(func() { order = append(order, `high`) }))
	require.NoError(t, l.Post(func() { close(done) }))

	unblock()
	waitClosed(t, done)

	assert.Equal(t, []string{`high`, `default`}, order)
}

func TestLoop_ConcurrentPostersFIFO(t *testing.T) {
	l := startTestLoop(t)

	const (
		posters = 8
		each    = 500
	)
	var (
		mu   sync.Mutex
		seen = make(map[int][]int, posters)
		wg   sync.WaitGroup
	)
	for p := range posters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range each {
				if err := l.Post(func() {
					mu.Lock()
					seen[p] = append(seen[p], i)
					mu.Unlock()
				}); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	require.NoError(t, l.Shutdown(context.Background()))

	require.Len(t, seen, posters)
	for p, got := range seen {
		require.Len(t, got, each, "poster %d", p)
		for i, v := range got {
			if v != i {
				t.Fatalf("poster %d: got[%d] = %d", p, i, v)
			}
		}
	}
}

func TestLoop_ReleaseAfterRun(t *testing.T) {
	l := startTestLoop(t)

	var events []string
	done := make(chan struct{})
	require.NoError(t, l.PostTask(Task{
		Run:     func() { events = append(events, `run`) },
		Release: func() { events = append(events, `release`); close(done) },
	}))
	waitClosed(t, done)

	assert.Equal(t, []string{`run`, `release`}, events)
}

func TestLoop_ReleaseAfterPanic(t *testing.T) {
	var recovered atomic.Value
	l := startTestLoop(t, WithMetrics(true), WithPanicHandler(func(v any) { recovered.Store(v) }))

	var released atomic.Int32
	require.NoError(t, l.PostTask(Task{
		Run:     func() { panic(`boom`) },
		Release: func() { released.Add(1) },
	}))

	// the loop survives
	v, err := CallValue(context.Background(), l, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	assert.Equal(t, int32(1), released.Load())
	assert.Equal(t, `boom`, recovered.Load())
	assert.Equal(t, uint64(1), l.Metrics().Panics)
}

func TestLoop_ReleaseOnDiscard(t *testing.T) {
	l := startTestLoop(t)
	unblock := blockOwner(t, l)

	var ran, released atomic.Int32
	for range 10 {
		require.NoError(t, l.PostTask(Task{
			Run:     func() { ran.Add(1) },
			Release: func() { released.Add(1) },
		}))
	}

	require.NoError(t, l.Close())
	// discarded synchronously, by Close
	assert.Equal(t, int32(10), released.Load())

	unblock()
	waitClosed(t, l.Done())

	assert.Equal(t, int32(0), ran.Load())
	assert.Equal(t, int32(10), released.Load())
	assert.Equal(t, StateStopped, l.State())
}

func TestLoop_ReleaseOnReject(t *testing.T) {
	l := startTestLoop(t, WithMetrics(true))
	require.NoError(t, l.Shutdown(context.Background()))

	var ran bool
	var releasedOn uint64
	err := l.PostTask(Task{
		Run:      func() { ran = true },
		Release:  func() { releasedOn = getGoroutineID() },
		Priority: PriorityIdle,
	})
	require.ErrorIs(t, err, ErrLoopTerminated)

	assert.False(t, ran)
	assert.Equal(t, getGoroutineID(), releasedOn)
	assert.Equal(t, uint64(1), l.Metrics().Rejected.Of(PriorityIdle))
}

func TestLoop_ReleaseExactlyOnceUnderStopRace(t *testing.T) {
	for range 20 {
		l := startTestLoop(t)

		const posters = 4
		var (
			posted, ran, released atomic.Int64
			wg                    sync.WaitGroup
		)
		for range posters {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 200 {
					err := l.PostTask(Task{
						Run:     func() { ran.Add(1) },
						Release: func() { released.Add(1) },
					})
					if err == nil {
						posted.Add(1)
					} else if !errors.Is(err, ErrLoopTerminated) {
						t.Error(err)
					}
				}
			}()
		}
		time.Sleep(time.Millisecond)
		l.Stop()
		wg.Wait()
		waitClosed(t, l.Done())

		// every accepted task ran, every task was released once
		require.Equal(t, posted.Load(), ran.Load())
		require.Equal(t, int64(posters*200), released.Load())
	}
}

func TestLoop_CloseBeforeRun(t *testing.T) {
	l := newTestLoop(t)

	var released bool
	require.NoError(t, l.PostTask(Task{
		Run:     func() { t.Error(`should not run`) },
		Release: func() { released = true },
	}))

	require.NoError(t, l.Close())
	assert.True(t, released)
	assert.Equal(t, StateStopped, l.State())
	waitClosed(t, l.Done())

	require.ErrorIs(t, l.Close(), ErrLoopTerminated)
	require.ErrorIs(t, l.Run(context.Background()), ErrLoopTerminated)
	require.ErrorIs(t, l.Start(context.Background()), ErrLoopTerminated)
	require.ErrorIs(t, l.Post(func() {}), ErrLoopTerminated)
}

func TestLoop_RunErrors(t *testing.T) {
	l := startTestLoop(t)

	require.ErrorIs(t, l.Run(context.Background()), ErrLoopAlreadyRunning)
	require.ErrorIs(t, l.Start(context.Background()), ErrLoopAlreadyRunning)

	errCh := make(chan error, 1)
	require.NoError(t, l.Post(func() { errCh <- l.Run(context.Background()) }))
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrReentrantRun)
	case <-time.After(testTimeout):
		t.Fatal(`timed out`)
	}

	require.NoError(t, l.Shutdown(context.Background()))
	require.ErrorIs(t, l.Run(context.Background()), ErrLoopTerminated)
}

func TestLoop_RunContextCancel(t *testing.T) {
	l := newTestLoop(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	ran := make(chan struct{})
	require.NoError(t, l.Post(func() { close(ran) }))
	waitClosed(t, ran)

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(testTimeout):
		t.Fatal(`timed out`)
	}
	assert.Equal(t, StateStopped, l.State())
}

func TestLoop_StopDrainsQueue(t *testing.T) {
	l := startTestLoop(t)
	unblock := blockOwner(t, l)

	var ran atomic.Int32
	for range 5 {
		require.NoError(t, l.Post(func() { ran.Add(1) }))
	}
	l.Stop()
	assert.Equal(t, StateStopping, l.State())

	// still accepted while draining
	require.NoError(t, l.Post(func() { ran.Add(1) }))

	unblock()
	waitClosed(t, l.Done())
	assert.Equal(t, int32(6), ran.Load())
}

func TestLoop_StopFromOwner(t *testing.T) {
	l := startTestLoop(t)

	var after atomic.Bool
	require.NoError(t, l.Post(func() {
		l.Stop()
		assert.NoError(t, l.Post(func() { after.Store(true) }))
	}))
	waitClosed(t, l.Done())
	assert.True(t, after.Load())
}

func TestLoop_ShutdownContext(t *testing.T) {
	l := startTestLoop(t)
	unblock := blockOwner(t, l)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, l.Shutdown(ctx), context.DeadlineExceeded)

	unblock()
	require.NoError(t, l.Shutdown(context.Background()))
}

func TestLoop_OnOwner(t *testing.T) {
	l := newTestLoop(t)
	assert.False(t, l.OnOwner())

	require.NoError(t, l.Start(context.Background()))
	assert.Equal(t, StateRunning, l.State())
	assert.False(t, l.OnOwner())

	onOwner, err := CallValue(context.Background(), l, func() (bool, error) { return l.OnOwner(), nil })
	require.NoError(t, err)
	assert.True(t, onOwner)

	require.NoError(t, l.Shutdown(context.Background()))
	assert.False(t, l.OnOwner())
}

func TestLoop_LockOSThread(t *testing.T) {
	l := startTestLoop(t, WithLockOSThread(true))

	tid, err := CallValue(context.Background(), l, func() (int, error) { return currentThreadID(), nil })
	require.NoError(t, err)
	assert.Equal(t, tid, l.ThreadID())
	if runtime.GOOS == `linux` || runtime.GOOS == `windows` {
		assert.NotZero(t, l.ThreadID())
	}
}

func TestLoop_ThreadIDUnlocked(t *testing.T) {
	l := startTestLoop(t)
	assert.Zero(t, l.ThreadID())
}

func TestLoop_InvalidPriority(t *testing.T) {
	l := startTestLoop(t)

	var released bool
	err := l.PostTask(Task{Run: func() {}, Release: func() { released = true }, Priority: 9})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid priority`)
	assert.True(t, released)
}

func TestLoop_IDAndName(t *testing.T) {
	a := newTestLoop(t, WithName(`a`))
	b := newTestLoop(t)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, `a`, a.Name())
	assert.Equal(t, `owner`, b.Name())
}

func TestLoop_RejectLogRateLimited(t *testing.T) {
	var buf syncBuffer
	l := startTestLoop(t,
		WithName(`limited`),
		WithLogger(newTestLogger(&buf)),
		WithRejectLogRate(map[time.Duration]int{time.Hour: 2}),
	)
	require.NoError(t, l.Shutdown(context.Background()))

	for range 5 {
		require.ErrorIs(t, l.Post(func() {}), ErrLoopTerminated)
	}

	assert.Equal(t, 2, strings.Count(buf.String(), `task rejected`))
	assert.Contains(t, buf.String(), `"loop":"limited"`)
}

func TestLoop_LogsPanics(t *testing.T) {
	var buf syncBuffer
	l := startTestLoop(t, WithLogger(newTestLogger(&buf)))

	require.NoError(t, l.Post(func() { panic(errors.New(`kaput`)) }))
	require.NoError(t, l.Shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, `task panicked`)
	assert.Contains(t, out, `kaput`)
	assert.Contains(t, out, `owner loop entered`)
	assert.Contains(t, out, `owner loop quitting`)
}

func TestLoop_ReleasePanicRecovered(t *testing.T) {
	l := startTestLoop(t)

	require.NoError(t, l.PostTask(Task{Release: func() { panic(`release`) }}))
	v, err := CallValue(context.Background(), l, func() (string, error) { return `alive`, nil })
	require.NoError(t, err)
	assert.Equal(t, `alive`, v)
}

func TestNew_OptionError(t *testing.T) {
	_, err := New(WithStartupTimeout(-time.Second))
	require.Error(t, err)

	l, err := New(nil, WithName(`x`))
	require.NoError(t, err)
	assert.Equal(t, `x`, l.Name())
	require.NoError(t, l.Close())
}
