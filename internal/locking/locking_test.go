package locking

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalLockerExcludesConcurrentHolders(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "org/m-1")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "org/m-1")
	require.ErrorIs(t, err, ErrNotAcquired)

	other, err := locker.Acquire(ctx, "org/m-2")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))

	again, err := locker.Acquire(ctx, "org/m-1")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestLocalLockerSingleWinner(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := locker.Acquire(ctx, "shared"); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins)
}

func TestLocalLockerHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocalLocker().Acquire(ctx, "k")
	require.ErrorIs(t, err, context.Canceled)
}
