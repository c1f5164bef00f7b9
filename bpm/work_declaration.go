package bpm

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// BpmWork 一个异步工作单元: 一个流程节点或一条迁移的执行
type BpmWork interface {
	Name() string
	Execute(ctx context.Context) error
}

// WorkService 工作队列,fire-and-forget提交
// 提交失败(容量满/已停止)返回ErrWorkRegisterFailed
type WorkService interface {
	RegisterWork(ctx context.Context, work BpmWork) error
	// Stop 停止接收新工作并等待在途工作完成
	Stop()
}

// ExecuteFlowNodeWork 恢复一个流程节点的执行
type ExecuteFlowNodeWork struct {
	executor           ProcessExecutor
	FlowNodeInstanceID int64
	ExecutedBy         string
	ExecutedByDelegate string
}

func NewExecuteFlowNodeWork(executor ProcessExecutor, flowNodeInstanceID int64, executedBy string, executedByDelegate string) *ExecuteFlowNodeWork {
	return &ExecuteFlowNodeWork{
		executor:           executor,
		FlowNodeInstanceID: flowNodeInstanceID,
		ExecutedBy:         executedBy,
		ExecutedByDelegate: executedByDelegate,
	}
}

func (w *ExecuteFlowNodeWork) Name() string {
	return fmt.Sprintf("ExecuteFlowNodeWork_%d", w.FlowNodeInstanceID)
}

func (w *ExecuteFlowNodeWork) Execute(ctx context.Context) error {
	if w.executor == nil {
		return errors.Wrapf(ErrEngineParamInvalid, "ExecuteFlowNodeWork has no executor, flowNodeInstanceID: %d", w.FlowNodeInstanceID)
	}
	return w.executor.ExecuteFlowNode(ctx, w.FlowNodeInstanceID, w.ExecutedBy, w.ExecutedByDelegate)
}

// ExecuteTransitionWork 恢复一条迁移的执行
type ExecuteTransitionWork struct {
	executor             ProcessExecutor
	TransitionInstanceID int64
}

func NewExecuteTransitionWork(executor ProcessExecutor, transitionInstanceID int64) *ExecuteTransitionWork {
	return &ExecuteTransitionWork{
		executor:             executor,
		TransitionInstanceID: transitionInstanceID,
	}
}

func (w *ExecuteTransitionWork) Name() string {
	return fmt.Sprintf("ExecuteTransitionWork_%d", w.TransitionInstanceID)
}

func (w *ExecuteTransitionWork) Execute(ctx context.Context) error {
	if w.executor == nil {
		return errors.Wrapf(ErrEngineParamInvalid, "ExecuteTransitionWork has no executor, transitionInstanceID: %d", w.TransitionInstanceID)
	}
	return w.executor.ExecuteTransition(ctx, w.TransitionInstanceID)
}
