package bpm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalEngineLock(t *testing.T) {
	lock := NewLocalEngineLock()
	ctx := context.Background()

	t.Run("闭包在锁内执行", func(t *testing.T) {
		executed := false
		err := lock.NonBlockingSynchronized(ctx, "k1", time.Second, func(ctx context.Context) error {
			executed = true
			return nil
		})
		require.NoError(t, err)
		require.True(t, executed)
	})

	t.Run("占用中立刻失败不阻塞", func(t *testing.T) {
		holding := make(chan struct{})
		release := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock.NonBlockingSynchronized(ctx, "k2", 5*time.Second, func(ctx context.Context) error {
				close(holding)
				<-release
				return nil
			})
		}()
		<-holding

		err := lock.NonBlockingSynchronized(ctx, "k2", time.Second, func(ctx context.Context) error {
			t.Error("should not enter while locked")
			return nil
		})
		require.ErrorIs(t, err, LockFailedError)

		close(release)
		wg.Wait()
	})

	t.Run("同一ctx可重入", func(t *testing.T) {
		depth := 0
		err := lock.NonBlockingSynchronized(ctx, "k3", time.Second, func(ctx context.Context) error {
			depth++
			return lock.NonBlockingSynchronized(ctx, "k3", time.Second, func(ctx context.Context) error {
				depth++
				return nil
			})
		})
		require.NoError(t, err)
		require.Equal(t, 2, depth)
	})

	t.Run("释放后可以再次获取", func(t *testing.T) {
		require.NoError(t, lock.NonBlockingSynchronized(ctx, "k4", time.Second, func(ctx context.Context) error {
			return nil
		}))
		require.NoError(t, lock.NonBlockingSynchronized(ctx, "k4", time.Second, func(ctx context.Context) error {
			return nil
		}))
	})
}
