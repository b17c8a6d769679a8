package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

type processorFake struct {
	mu      sync.Mutex
	ids     []string
	running atomic.Int32
	peak    atomic.Int32
	release chan struct{}
	err     error
}

func (f *processorFake) ProcessByID(ctx context.Context, id string) error {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.ids = append(f.ids, id)
	f.mu.Unlock()
	return f.err
}

func TestDispatchReturnsBeforeRunCompletes(t *testing.T) {
	proc := &processorFake{release: make(chan struct{})}
	pool := New(proc, 2, nil)

	reqCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Dispatch(reqCtx, "doc-1"))
	cancel()

	require.Eventually(t, func() bool { return proc.running.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(proc.release)
	require.NoError(t, pool.Close(context.Background()))
	require.Equal(t, []string{"doc-1"}, proc.ids)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	proc := &processorFake{release: make(chan struct{})}
	pool := New(proc, 2, nil)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, pool.Dispatch(context.Background(), id))
	}
	require.Eventually(t, func() bool { return proc.running.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(proc.release)
	require.NoError(t, pool.Close(context.Background()))

	require.Len(t, proc.ids, 5)
	require.LessOrEqual(t, proc.peak.Load(), int32(2))
}

func TestPoolSurvivesRunErrors(t *testing.T) {
	proc := &processorFake{err: errors.New("db down")}
	pool := New(proc, 1, nil)
	require.NoError(t, pool.Dispatch(context.Background(), "doc-1"))
	require.NoError(t, pool.Dispatch(context.Background(), "doc-2"))
	require.NoError(t, pool.Close(context.Background()))
	require.Len(t, proc.ids, 2)
}

func TestDispatchAfterCloseIsTemporary(t *testing.T) {
	pool := New(&processorFake{}, 1, nil)
	require.NoError(t, pool.Close(context.Background()))

	err := pool.Dispatch(context.Background(), "doc-1")
	require.True(t, domain.IsKind(err, domain.ErrTemporary))
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestCloseHonoursDeadline(t *testing.T) {
	proc := &processorFake{release: make(chan struct{})}
	pool := New(proc, 1, nil)
	require.NoError(t, pool.Dispatch(context.Background(), "doc-1"))
	require.Eventually(t, func() bool { return proc.running.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, pool.Close(ctx), context.DeadlineExceeded)
	close(proc.release)
}

func TestPoolReportsSlotWait(t *testing.T) {
	var observed atomic.Int32
	pool := New(&processorFake{}, 1, nil, WithWaitObserver(func(wait time.Duration) {
		if wait >= 0 {
			observed.Add(1)
		}
	}))

	require.NoError(t, pool.Dispatch(context.Background(), "doc-1"))
	require.NoError(t, pool.Dispatch(context.Background(), "doc-2"))
	require.NoError(t, pool.Close(context.Background()))
	require.Equal(t, int32(2), observed.Load())
}
