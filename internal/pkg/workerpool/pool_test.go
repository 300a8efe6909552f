package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPool(t *testing.T, workers int) *Pool {
	t.Helper()
	p, err := New(&Config{Workers: workers}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(p.Shutdown)
	return p
}

func TestBatch_RunsEveryIndexWithBoundedConcurrency(t *testing.T) {
	p := newTestPool(t, 32)

	const n, limit = 50, 10
	var inFlight, peak atomic.Int32
	seen := make([]int32, n)

	err := p.Batch(context.Background(), n, limit, func(_ context.Context, i int) {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&seen[i], 1)
		inFlight.Add(-1)
	})
	require.NoError(t, err)

	for i, v := range seen {
		assert.Equal(t, int32(1), v, "index %d", i)
	}
	assert.LessOrEqual(t, peak.Load(), int32(limit))
}

func TestBatch_ZeroItems(t *testing.T) {
	p := newTestPool(t, 4)
	called := false
	require.NoError(t, p.Batch(context.Background(), 0, 10, func(context.Context, int) { called = true }))
	assert.False(t, called)
}

func TestBatch_CancelledContextStopsDispatch(t *testing.T) {
	p := newTestPool(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var count atomic.Int32
	err := p.Batch(ctx, 100, 1, func(context.Context, int) { count.Add(1) })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, count.Load())
}

func TestSubmit_AfterShutdown(t *testing.T) {
	p, err := New(nil, nil)
	require.NoError(t, err)
	p.Shutdown()
	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
}

func TestSubmitWithResult(t *testing.T) {
	p := newTestPool(t, 2)
	res := <-p.SubmitWithResult(func() (interface{}, error) { return 42, nil })
	require.NoError(t, res.Error)
	assert.Equal(t, 42, res.Data)
}

func TestPanicIsCounted(t *testing.T) {
	p := newTestPool(t, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, p.Submit(func() {
		defer wg.Done()
		panic("boom")
	}))
	wg.Wait()
	assert.Eventually(t, func() bool { return p.Stats().Failed == 1 }, time.Second, 5*time.Millisecond)
}
