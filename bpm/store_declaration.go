package bpm

import (
	"context"
)

// InstanceRepo 持久化网关,引擎内所有实体的唯一读写入口
// 每个方法都是单条/单批的记录级操作,事务边界由调用方通过Transaction控制
type InstanceRepo interface {
	CreateProcessInstance(ctx context.Context, processInstance *ProcessInstancePo) (*ProcessInstancePo, error)
	QueryProcessInstance(ctx context.Context, param *QueryProcessInstanceParams) ([]*ProcessInstancePo, error)
	UpdateProcessInstance(ctx context.Context, param *UpdateProcessInstanceParams) error

	CreateFlowNodeInstance(ctx context.Context, flowNodeInstance *FlowNodeInstancePo) (*FlowNodeInstancePo, error)
	QueryFlowNodeInstance(ctx context.Context, param *QueryFlowNodeInstanceParams) ([]*FlowNodeInstancePo, error)
	CountFlowNodeInstance(ctx context.Context, param *QueryFlowNodeInstanceParams) (int64, error)
	UpdateFlowNodeInstance(ctx context.Context, param *UpdateFlowNodeInstanceParams) error
	DeleteFlowNodeInstance(ctx context.Context, ids []int64) error

	CreateArchivedFlowNodeInstance(ctx context.Context, archived *ArchivedFlowNodeInstancePo) (*ArchivedFlowNodeInstancePo, error)
	QueryArchivedFlowNodeInstance(ctx context.Context, param *QueryArchivedFlowNodeInstanceParams) ([]*ArchivedFlowNodeInstancePo, error)

	CreateTransitionInstance(ctx context.Context, transitionInstance *TransitionInstancePo) (*TransitionInstancePo, error)
	QueryTransitionInstance(ctx context.Context, param *QueryTransitionInstanceParams) ([]*TransitionInstancePo, error)
	DeleteTransitionInstance(ctx context.Context, ids []int64) error

	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}
