package bpm

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	LockFailedError        = errors.New("lock failed")
	LockFailedTimeOutError = errors.New("wait time out")
)

// EngineLock 流程实例级别的执行互斥
// stateExecuting只是建议性的单owner标记,真正的串行化靠这个锁
type EngineLock interface {
	// NonBlockingSynchronized
	//  @Description:  1.非阻塞同步块,如果没有拿到锁，立刻返回错误
	//                 2.可以重入锁
	//  @param ctx 原来的ctx
	//  @param key 锁的key
	//  @param maxLockTimeDuration 锁最大的时间
	//  @param f 具体执行函数的闭包
	//  @return error
	NonBlockingSynchronized(ctx context.Context, key string, maxLockTimeDuration time.Duration, f func(context.Context) error) error
}

func processInstanceExecuteLockKey(rootProcessInstanceID int64) string {
	return fmt.Sprintf("process_instance_execute_%d", rootProcessInstanceID)
}
