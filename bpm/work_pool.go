package bpm

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultWorkQueueSize = 256
	// 锁竞争后重新排队前的等待,给持锁方留出退出时间
	lockContentionRetryDelay = 100 * time.Millisecond
)

// workPool 有界工作池,容量满时不阻塞直接拒绝
type workPool struct {
	queue   chan BpmWork
	workers int

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewWorkPool 创建并启动工作池
// workers<=0时单协程执行,queueSize<=0时使用默认容量
func NewWorkPool(workers int, queueSize int) WorkService {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = defaultWorkQueueSize
	}
	pool := &workPool{
		queue:   make(chan BpmWork, queueSize),
		workers: workers,
	}
	pool.start()
	return pool
}

func (p *workPool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for work := range p.queue {
				p.runWork(work)
			}
		}()
	}
}

func (p *workPool) runWork(work BpmWork) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			slog.Error("workPool.runWork panic", "work", work.Name(), "panic", panicErr, "stack", string(debug.Stack()))
		}
	}()
	ctx := context.Background()
	if err := work.Execute(ctx); err != nil {
		if errors.Is(errors.Cause(err), LockFailedError) {
			// 锁竞争不是失败: 同一个流程实例有别的worker在推进,稍后重新排队
			slog.InfoContext(ctx, "workPool.runWork lock contention, requeue", "work", work.Name())
			time.AfterFunc(lockContentionRetryDelay, func() {
				if registerErr := p.RegisterWork(context.Background(), work); registerErr != nil {
					slog.WarnContext(ctx, "workPool.runWork requeue failed, restart scan will pick it up",
						"work", work.Name(), "err", registerErr)
				}
			})
			return
		}
		slog.ErrorContext(ctx, "workPool.runWork execute failed", "work", work.Name(), "err", err)
	}
}

// RegisterWork 非阻塞提交,队列满或已停止返回ErrWorkRegisterFailed
func (p *workPool) RegisterWork(ctx context.Context, work BpmWork) error {
	if work == nil {
		return errors.WithMessage(ErrEngineParamInvalid, "[workPool.RegisterWork] work is nil")
	}
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return errors.WithMessagef(ErrWorkRegisterFailed, "[workPool.RegisterWork] pool stopped, work: %s", work.Name())
	}
	select {
	case p.queue <- work:
		p.mu.Unlock()
		return nil
	default:
		p.mu.Unlock()
		return errors.WithMessagef(ErrWorkRegisterFailed, "[workPool.RegisterWork] queue is full, work: %s", work.Name())
	}
}

// Stop 停止接收新工作并等待在途工作完成
func (p *workPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}
