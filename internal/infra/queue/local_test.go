package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRunsEveryJobWithBoundedWorkers(t *testing.T) {
	var (
		mu      sync.Mutex
		seen    []string
		running atomic.Int32
		peak    atomic.Int32
	)

	q := NewLocal(context.Background(), 2, func(_ context.Context, id string) error {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		seen = append(seen, id)
		mu.Unlock()
		return nil
	})

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, q.Dispatch(context.Background(), id))
	}
	q.Wait()

	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, seen)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestLocalClose(t *testing.T) {
	started := make(chan struct{})
	q := NewLocal(context.Background(), 1, func(ctx context.Context, _ string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	require.NoError(t, q.Dispatch(context.Background(), "a"))
	<-started
	q.Close()

	assert.ErrorIs(t, q.Dispatch(context.Background(), "b"), ErrClosed)
	assert.Error(t, q.Dispatch(context.Background(), ""))
}
