package ownerloop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarrier_WaitBlocksUntilOpen(t *testing.T) {
	b := NewBarrier()
	assert.False(t, b.Ready())

	var constructed atomic.Bool
	waited := make(chan error, 1)
	go func() {
		err := b.Wait()
		// the handle exists by the time any waiter returns
		if !constructed.Load() {
			err = errors.New(`returned before construct`)
		}
		waited <- err
	}()

	select {
	case <-waited:
		t.Fatal(`Wait returned before Open`)
	case <-time.After(20 * time.Millisecond):
	}

	require.True(t, b.Open(func() error {
		constructed.Store(true)
		return nil
	}))

	select {
	case err := <-waited:
		require.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal(`timed out`)
	}
	assert.True(t, b.Ready())
}

func TestBarrier_OnlyFirstOpenCounts(t *testing.T) {
	b := NewBarrier()
	require.True(t, b.Open(nil))

	var called bool
	assert.False(t, b.Open(func() error { called = true; return nil }))
	assert.False(t, b.Fail(errors.New(`late`)))
	assert.False(t, called)
	require.NoError(t, b.Wait())
}

func TestBarrier_StartupFault(t *testing.T) {
	fault := errors.New(`no display`)

	b := NewBarrier()
	require.True(t, b.Open(func() error { return fault }))
	require.ErrorIs(t, b.Wait(), fault)
	require.ErrorIs(t, b.WaitContext(context.Background()), fault)
	assert.False(t, b.Ready())

	b = NewBarrier()
	require.True(t, b.Fail(fault))
	require.ErrorIs(t, b.Wait(), fault)
}

func TestBarrier_FailNilPanics(t *testing.T) {
	assert.Panics(t, func() { NewBarrier().Fail(nil) })
}

func TestBarrier_WaitContext(t *testing.T) {
	b := NewBarrier()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.WaitContext(ctx)
	require.ErrorIs(t, err, ErrStartupTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// still usable after a waiter gave up
	go b.Open(nil)
	ctx, cancel = context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, b.WaitContext(ctx))
}
