package bpm

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// recordingWorks 记录注册的工作单元,不真正执行
type recordingWorks struct {
	works   []BpmWork
	failOn  int // 第n次注册返回错误,0表示不失败
	stopped bool
}

func (w *recordingWorks) RegisterWork(ctx context.Context, work BpmWork) error {
	if w.failOn > 0 && len(w.works)+1 == w.failOn {
		return fmt.Errorf("inject register failure")
	}
	w.works = append(w.works, work)
	return nil
}

func (w *recordingWorks) Stop() { w.stopped = true }

func newRestartTestServices(t *testing.T) (*EngineServices, *recordingWorks, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	repo := NewInstanceRepo(db)
	events := NewEventService()
	flowNodes := NewFlowNodeInstanceService(repo, events)
	gateways := NewGatewayInstanceService(repo, flowNodes)
	transitions := NewTransitionService(repo)
	definitions := NewDefinitionRegistry()
	works := &recordingWorks{}
	lock := NewLocalEngineLock()
	executor := NewProcessExecutor(repo, flowNodes, gateways, transitions, definitions, works, lock)
	return &EngineServices{
		Repo:        repo,
		FlowNodes:   flowNodes,
		Gateways:    gateways,
		Transitions: transitions,
		Definitions: definitions,
		Events:      events,
		Works:       works,
		Executor:    executor,
		Lock:        lock,
	}, works, db
}

func seedRestartFlowNodes(t *testing.T, repo InstanceRepo, count int) []int64 {
	t.Helper()
	ids := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		created, err := repo.CreateFlowNodeInstance(context.Background(), &FlowNodeInstancePo{
			Name:                  fmt.Sprintf("node-%d", i),
			Kind:                  FlowNodeKindActivity,
			StateID:               StateReady.ID,
			StateName:             StateReady.Name,
			RootProcessInstanceID: 1,
			DefinitionKey:         fmt.Sprintf("n%d", i),
		})
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}
	return ids
}

func registeredFlowNodeIDs(works []BpmWork) []int64 {
	ids := make([]int64, 0, len(works))
	for _, work := range works {
		if w, ok := work.(*ExecuteFlowNodeWork); ok {
			ids = append(ids, w.FlowNodeInstanceID)
		}
	}
	return ids
}

func TestRestartFlowNodesHandler(t *testing.T) {
	t.Run("每个候选都被重新派发", func(t *testing.T) {
		services, works, _ := newRestartTestServices(t)
		ids := seedRestartFlowNodes(t, services.Repo, 5)
		// 终态节点不是候选
		_, err := services.Repo.CreateFlowNodeInstance(context.Background(), &FlowNodeInstancePo{
			Name: "done", Kind: FlowNodeKindActivity, StateID: StateCompleted.ID, Terminal: true,
			RootProcessInstanceID: 1, DefinitionKey: "done",
		})
		require.NoError(t, err)

		handler := NewRestartFlowNodesHandler()
		handler.PageSize = 2
		require.NoError(t, handler.HandleRestart(context.Background(), services))
		require.Equal(t, ids, registeredFlowNodeIDs(works.works))
	})

	t.Run("候选数恰好等于页大小", func(t *testing.T) {
		services, works, _ := newRestartTestServices(t)
		ids := seedRestartFlowNodes(t, services.Repo, 3)

		handler := NewRestartFlowNodesHandler()
		handler.PageSize = 3
		require.NoError(t, handler.HandleRestart(context.Background(), services))
		require.Equal(t, ids, registeredFlowNodeIDs(works.works))
	})

	t.Run("没有候选时空转", func(t *testing.T) {
		services, works, _ := newRestartTestServices(t)
		require.NoError(t, NewRestartFlowNodesHandler().HandleRestart(context.Background(), services))
		require.Empty(t, works.works)
	})

	t.Run("扫描失败返回致命RestartError", func(t *testing.T) {
		services, _, db := newRestartTestServices(t)
		seedRestartFlowNodes(t, services.Repo, 2)
		// 表没了,扫描必然失败
		require.NoError(t, db.Migrator().DropTable(&FlowNodeInstancePo{}))

		err := NewRestartFlowNodesHandler().HandleRestart(context.Background(), services)
		require.Error(t, err)
		require.True(t, IsFatalRestartError(err))
	})

	t.Run("注册失败中止整个恢复", func(t *testing.T) {
		services, works, _ := newRestartTestServices(t)
		seedRestartFlowNodes(t, services.Repo, 3)
		works.failOn = 2

		err := NewRestartFlowNodesHandler().HandleRestart(context.Background(), services)
		require.Error(t, err)
		require.True(t, IsFatalRestartError(err))
	})

	t.Run("默认把executing残留一并回收", func(t *testing.T) {
		services, works, _ := newRestartTestServices(t)
		created, err := services.Repo.CreateFlowNodeInstance(context.Background(), &FlowNodeInstancePo{
			Name: "stuck", Kind: FlowNodeKindActivity, StateID: StateExecuting.ID, StateExecuting: true,
			RootProcessInstanceID: 1, DefinitionKey: "stuck",
		})
		require.NoError(t, err)

		require.NoError(t, NewRestartFlowNodesHandler().HandleRestart(context.Background(), services))
		require.Equal(t, []int64{created.ID}, registeredFlowNodeIDs(works.works))

		// 过期的owner标记被回收
		reloaded, err := services.FlowNodes.GetFlowNodeInstance(context.Background(), created.ID)
		require.NoError(t, err)
		require.False(t, reloaded.StateExecuting)
	})
}

func TestRestartTransitionsHandler(t *testing.T) {
	t.Run("每条在途迁移都被重新派发", func(t *testing.T) {
		services, works, _ := newRestartTestServices(t)
		require.NoError(t, services.Definitions.Load(validTestConfig()))

		var ids []int64
		for i := 0; i < 5; i++ {
			created, err := services.Transitions.CreateTransitionInstance(context.Background(), &CreateTransitionInstanceReq{
				TransitionIndex:       int64(i + 1),
				SourceKey:             "start",
				TargetKey:             "join",
				ProcessDefinitionID:   1,
				RootProcessInstanceID: 1,
			})
			require.NoError(t, err)
			ids = append(ids, created.ID)
		}

		handler := NewRestartTransitionsHandler()
		handler.PageSize = 2
		require.NoError(t, handler.HandleRestart(context.Background(), services))

		var registered []int64
		for _, work := range works.works {
			if w, ok := work.(*ExecuteTransitionWork); ok {
				registered = append(registered, w.TransitionInstanceID)
			}
		}
		require.Equal(t, ids, registered)
	})

	t.Run("未知流程定义中止恢复", func(t *testing.T) {
		services, _, _ := newRestartTestServices(t)
		_, err := services.Transitions.CreateTransitionInstance(context.Background(), &CreateTransitionInstanceReq{
			TransitionIndex:       1,
			SourceKey:             "a",
			TargetKey:             "b",
			ProcessDefinitionID:   404,
			RootProcessInstanceID: 1,
		})
		require.NoError(t, err)

		err = NewRestartTransitionsHandler().HandleRestart(context.Background(), services)
		require.Error(t, err)
		require.True(t, IsFatalRestartError(err))
	})
}

func TestRunRestartHandlers(t *testing.T) {
	services, works, _ := newRestartTestServices(t)
	seedRestartFlowNodes(t, services.Repo, 2)

	require.NoError(t, RunRestartHandlers(context.Background(), services,
		NewRestartFlowNodesHandler(),
		NewRestartTransitionsHandler(),
	))
	require.Len(t, works.works, 2)
}
