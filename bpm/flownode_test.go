package bpm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// countingRepo 包装真实repo,统计update调用次数
type countingRepo struct {
	InstanceRepo
	updateFlowNodeCalls int
}

func (r *countingRepo) UpdateFlowNodeInstance(ctx context.Context, param *UpdateFlowNodeInstanceParams) error {
	r.updateFlowNodeCalls++
	return r.InstanceRepo.UpdateFlowNodeInstance(ctx, param)
}

func newFlowNodeTestService(t *testing.T) (FlowNodeInstanceService, *countingRepo) {
	t.Helper()
	db := newTestDB(t)
	repo := &countingRepo{InstanceRepo: NewInstanceRepo(db)}
	return NewFlowNodeInstanceService(repo, NewEventService()), repo
}

func mustCreateFlowNode(t *testing.T, repo InstanceRepo, po *FlowNodeInstancePo) *FlowNodeInstancePo {
	t.Helper()
	created, err := repo.CreateFlowNodeInstance(context.Background(), po)
	require.NoError(t, err)
	return created
}

func TestFlowNodeInstanceService_SetState(t *testing.T) {
	service, repo := newFlowNodeTestService(t)
	ctx := context.Background()

	flowNode := mustCreateFlowNode(t, repo, &FlowNodeInstancePo{
		Name:                  "审核",
		Kind:                  FlowNodeKindActivity,
		StateID:               StateReady.ID,
		StateName:             StateReady.Name,
		Stable:                true,
		StateCategory:         StateCategoryNormal,
		RootProcessInstanceID: 1,
		DefinitionKey:         "review",
	})

	t.Run("previousStateId记录单步审计", func(t *testing.T) {
		require.NoError(t, service.SetState(ctx, flowNode, StateExecuting))
		require.Equal(t, StateReady.ID, flowNode.PreviousStateID)
		require.Equal(t, StateExecuting.ID, flowNode.StateID)
		require.Equal(t, "executing", flowNode.StateName)
		require.False(t, flowNode.Stable)
		require.False(t, flowNode.Terminal)

		require.NoError(t, service.SetState(ctx, flowNode, StateCompleting))
		require.Equal(t, StateExecuting.ID, flowNode.PreviousStateID)
		require.Equal(t, StateCompleting.ID, flowNode.StateID)

		// 持久化的行和内存一致
		reloaded, err := service.GetFlowNodeInstance(ctx, flowNode.ID)
		require.NoError(t, err)
		require.Equal(t, StateExecuting.ID, reloaded.PreviousStateID)
		require.Equal(t, StateCompleting.ID, reloaded.StateID)
		require.NotZero(t, reloaded.ReachStateDate)
	})

	t.Run("不允许的跳转被拒绝", func(t *testing.T) {
		// completing不能直接回ready
		err := service.SetState(ctx, flowNode, StateReady)
		require.ErrorIs(t, err, ErrInvalidStateTransition)
		require.Equal(t, StateCompleting.ID, flowNode.StateID)
	})

	t.Run("setState清掉stateExecuting标记", func(t *testing.T) {
		require.NoError(t, service.SetExecuting(ctx, flowNode))
		require.True(t, flowNode.StateExecuting)

		require.NoError(t, service.SetState(ctx, flowNode, StateCompleted))
		require.False(t, flowNode.StateExecuting)
		require.True(t, flowNode.Terminal)

		reloaded, err := service.GetFlowNodeInstance(ctx, flowNode.ID)
		require.NoError(t, err)
		require.False(t, reloaded.StateExecuting)
		require.True(t, reloaded.Terminal)
	})
}

func TestFlowNodeInstanceService_DisplayFieldNoOp(t *testing.T) {
	service, repo := newFlowNodeTestService(t)
	ctx := context.Background()

	flowNode := mustCreateFlowNode(t, repo, &FlowNodeInstancePo{
		Name:                  "审核",
		Kind:                  FlowNodeKindActivity,
		StateID:               StateReady.ID,
		DisplayName:           "订单审核",
		RootProcessInstanceID: 1,
		DefinitionKey:         "review",
	})

	t.Run("新值等于旧值零次写入", func(t *testing.T) {
		before := repo.updateFlowNodeCalls
		require.NoError(t, service.UpdateDisplayName(ctx, flowNode, "订单审核"))
		require.Equal(t, before, repo.updateFlowNodeCalls)
	})

	t.Run("新值不同恰好一次写入", func(t *testing.T) {
		before := repo.updateFlowNodeCalls
		require.NoError(t, service.UpdateDisplayName(ctx, flowNode, "订单复核"))
		require.Equal(t, before+1, repo.updateFlowNodeCalls)
		require.Equal(t, "订单复核", flowNode.DisplayName)
	})

	t.Run("描述字段同样策略", func(t *testing.T) {
		before := repo.updateFlowNodeCalls
		require.NoError(t, service.UpdateDisplayDescription(ctx, flowNode, ""))
		require.Equal(t, before, repo.updateFlowNodeCalls)
	})
}

func TestFlowNodeInstanceService_Archive(t *testing.T) {
	service, repo := newFlowNodeTestService(t)
	ctx := context.Background()

	flowNode := mustCreateFlowNode(t, repo, &FlowNodeInstancePo{
		Name:                  "审核",
		Kind:                  FlowNodeKindActivity,
		StateID:               StateReady.ID,
		StateName:             StateReady.Name,
		RootProcessInstanceID: 7,
		DefinitionKey:         "review",
		HitBys:                "",
		ExpectedEndDate:       1700000000,
		Variables:             []byte(`{"amount":99}`),
	})

	t.Run("非终态节点拒绝归档", func(t *testing.T) {
		err := service.ArchiveFlowNodeInstance(ctx, flowNode)
		require.ErrorIs(t, err, ErrEngineParamInvalid)
	})

	t.Run("终态节点归档后live行删除", func(t *testing.T) {
		require.NoError(t, service.SetState(ctx, flowNode, StateExecuting))
		require.NoError(t, service.SetState(ctx, flowNode, StateCompleting))
		require.NoError(t, service.SetState(ctx, flowNode, StateCompleted))
		require.NoError(t, service.ArchiveFlowNodeInstance(ctx, flowNode))

		// live行没了
		_, err := service.GetFlowNodeInstance(ctx, flowNode.ID)
		require.ErrorIs(t, err, ErrFlowNodeInstanceNotFound)

		// 归档行带source_object_id和终态
		archived, err := service.GetArchivedFlowNodeInstances(ctx, 7, NewQueryOptions(10))
		require.NoError(t, err)
		require.Len(t, archived, 1)
		require.Equal(t, flowNode.ID, archived[0].SourceObjectID)
		require.Equal(t, StateCompleted.ID, archived[0].StateID)
		require.NotZero(t, archived[0].ArchiveDate)

		// 审计字段整行带过来
		require.Equal(t, StateCompleted.Stable, archived[0].Stable)
		require.Equal(t, int64(1700000000), archived[0].ExpectedEndDate)
		require.JSONEq(t, `{"amount":99}`, string(archived[0].Variables))

		// 按原live行id也能查到
		bySource, err := service.GetArchivedFlowNodeInstance(ctx, flowNode.ID)
		require.NoError(t, err)
		require.Equal(t, archived[0].ID, bySource.ID)

		_, err = service.GetArchivedFlowNodeInstance(ctx, 99999)
		require.ErrorIs(t, err, ErrArchivedInstanceNotFound)
	})
}

func TestFlowNodeInstanceService_RestartQuery(t *testing.T) {
	service, repo := newFlowNodeTestService(t)
	ctx := context.Background()

	// 候选: 非终态且不在执行中
	candidate := mustCreateFlowNode(t, repo, &FlowNodeInstancePo{
		Name: "候选", Kind: FlowNodeKindActivity, StateID: StateReady.ID,
		RootProcessInstanceID: 1, DefinitionKey: "a",
	})
	// 正在执行: 默认不在候选里
	executing := mustCreateFlowNode(t, repo, &FlowNodeInstancePo{
		Name: "执行中", Kind: FlowNodeKindActivity, StateID: StateExecuting.ID, StateExecuting: true,
		RootProcessInstanceID: 1, DefinitionKey: "b",
	})
	// 终态: 永远不在候选里
	mustCreateFlowNode(t, repo, &FlowNodeInstancePo{
		Name: "终态", Kind: FlowNodeKindActivity, StateID: StateCompleted.ID, Terminal: true,
		RootProcessInstanceID: 1, DefinitionKey: "c",
	})

	t.Run("默认排除执行中的节点", func(t *testing.T) {
		flowNodes, err := service.GetFlowNodeInstancesToRestart(ctx, RestartQueryOptions{}, NewQueryOptions(10))
		require.NoError(t, err)
		require.Len(t, flowNodes, 1)
		require.Equal(t, candidate.ID, flowNodes[0].ID)
	})

	t.Run("includeExecuting纳入执行中的节点", func(t *testing.T) {
		flowNodes, err := service.GetFlowNodeInstancesToRestart(ctx, RestartQueryOptions{IncludeExecuting: true}, NewQueryOptions(10))
		require.NoError(t, err)
		require.Len(t, flowNodes, 2)
		require.Equal(t, candidate.ID, flowNodes[0].ID)
		require.Equal(t, executing.ID, flowNodes[1].ID)
	})
}
