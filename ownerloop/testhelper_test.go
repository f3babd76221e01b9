package ownerloop

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

// newTestLoop creates a loop that is closed (and waited on) at test cleanup.
func newTestLoop(t *testing.T, opts ...LoopOption) *Loop {
	t.Helper()
	l, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = l.Close()
		select {
		case <-l.Done():
		case <-time.After(testTimeout):
			t.Errorf("loop %q did not stop", l.Name())
		}
	})
	return l
}

// startTestLoop is newTestLoop, started in the background.
func startTestLoop(t *testing.T, opts ...LoopOption) *Loop {
	t.Helper()
	l := newTestLoop(t, opts...)
	require.NoError(t, l.Start(context.Background()))
	return l
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for channel")
	}
}

// blockOwner parks the owner inside a task, until the returned func is
// called.
func blockOwner(t *testing.T, l *Loop) (unblock func()) {
	t.Helper()
	started := make(chan struct{})
	block := make(chan struct{})
	require.NoError(t, l.Post(func() {
		close(started)
		<-block
	}))
	waitClosed(t, started)
	var once sync.Once
	unblock = func() { once.Do(func() { close(block) }) }
	t.Cleanup(unblock)
	return unblock
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(w *syncBuffer) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelTrace),
	).Logger()
}
