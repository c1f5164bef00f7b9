package bpm

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// NewLocalEngineLock 单进程内的锁实现,测试和单机部署使用
func NewLocalEngineLock() EngineLock {
	return &localEngineLock{
		locks: &sync.Map{},
	}
}

type localEngineLock struct {
	locks *sync.Map // key -> *localLockInfo
}

type localLockInfo struct {
	mu       sync.Mutex
	value    string      // 锁的值，用于验证是否是同一个持有者
	expireAt time.Time   // 过期时间
	timer    *time.Timer // 超时定时器
}

func (l *localEngineLock) NonBlockingSynchronized(ctx context.Context, key string, maxLockTimeDuration time.Duration, f func(context.Context) error) error {
	// 检查是否已经持有锁（可重入）
	valueInterface := ctx.Value(lockKey(key))
	_, ok := valueInterface.(string)
	if ok {
		return f(ctx)
	}

	value := l.getRandomValue()

	lockInfo, _ := l.locks.LoadOrStore(key, &localLockInfo{})
	info := lockInfo.(*localLockInfo)

	locked := info.mu.TryLock()
	if !locked {
		// 锁被占用，立即返回失败
		return errors.WithMessage(LockFailedError, "[localEngineLock.NonBlockingSynchronized] has been locked")
	}

	info.value = value
	info.expireAt = time.Now().Add(maxLockTimeDuration)

	// 超时自动释放
	info.timer = time.AfterFunc(maxLockTimeDuration, func() {
		l.releaseKey(key, value)
	})

	withKeyCtx := context.WithValue(ctx, lockKey(key), value)
	defer l.releaseKey(key, value)
	return f(withKeyCtx)
}

func (l *localEngineLock) getRandomValue() string {
	return fmt.Sprintf("%d_%d", rand.Int(), time.Now().UnixNano())
}

func (l *localEngineLock) releaseKey(key string, value string) {
	lockInfo, ok := l.locks.Load(key)
	if !ok {
		// 锁不存在，可能已经被释放
		return
	}

	info := lockInfo.(*localLockInfo)
	if info.value != value {
		slog.Warn(fmt.Sprintf("[localEngineLock.releaseKey] value mismatch, expected: %s, got: %s", info.value, value))
		return
	}
	if info.timer != nil {
		info.timer.Stop()
	}
	info.mu.Unlock()
	l.locks.Delete(key)
}
