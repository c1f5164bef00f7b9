package bpm

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
)

const defaultRestartPageSize = 100

// TenantRestartHandler 崩溃重启处理器,引擎冷启动时逐个执行
// 返回的错误一律视为致命错误: 恢复不完整的引擎不允许继续服务
type TenantRestartHandler interface {
	HandleRestart(ctx context.Context, services *EngineServices) error
}

// RestartFlowNodesHandler 重新派发崩溃遗留的节点实例
// 整页扫描循环: 返回了整页就继续翻页,半页(或空页)说明扫完了
// 派发语义是至少一次,多派发由执行器的幂等检查收敛
type RestartFlowNodesHandler struct {
	PageSize       int64
	RestartOptions RestartQueryOptions
}

func NewRestartFlowNodesHandler() *RestartFlowNodesHandler {
	return &RestartFlowNodesHandler{
		PageSize: defaultRestartPageSize,
		// 冷启动场景: 上一个进程确认死掉,executing标记全是残留,一并回收
		RestartOptions: RestartQueryOptions{IncludeExecuting: true},
	}
}

func (h *RestartFlowNodesHandler) HandleRestart(ctx context.Context, services *EngineServices) error {
	pageSize := h.PageSize
	if pageSize <= 0 {
		pageSize = defaultRestartPageSize
	}
	// 整个扫描在一个事务里: 任何一页读失败都回滚,避免半恢复状态
	err := services.Repo.Transaction(ctx, func(ctx context.Context) error {
		page := NewQueryOptions(pageSize)
		for {
			flowNodes, err := services.FlowNodes.GetFlowNodeInstancesToRestart(ctx, h.RestartOptions, page)
			if err != nil {
				return errors.WithMessagef(err, "scan flow nodes to restart failed, page: %d", page.Page)
			}
			for _, flowNode := range flowNodes {
				if flowNode.StateExecuting {
					// 上一个进程的owner标记,已经过期,回收掉否则执行器会一直跳过它
					if err := services.FlowNodes.ClearExecuting(ctx, flowNode); err != nil {
						return errors.WithMessagef(err, "clear stale executing mark failed, flowNodeInstanceID: %d", flowNode.ID)
					}
				}
				if err := services.Works.RegisterWork(ctx, NewExecuteFlowNodeWork(services.Executor, flowNode.ID, flowNode.ExecutedBy, flowNode.ExecutedByDelegate)); err != nil {
					return errors.WithMessagef(err, "register restart work failed, flowNodeInstanceID: %d", flowNode.ID)
				}
				slog.InfoContext(ctx, "flow node instance scheduled for restart",
					"flowNodeInstanceID", flowNode.ID, "stateID", flowNode.StateID, "definitionKey", flowNode.DefinitionKey)
			}
			if int64(len(flowNodes)) < page.Size {
				return nil
			}
			page = page.NextPage()
		}
	})
	if err != nil {
		return NewRestartError("restart flow node instances failed", err)
	}
	return nil
}

// RestartTransitionsHandler 重新派发崩溃遗留的迁移实例
// 迁移实例本身就是在途工作记录: 只要还在表里,就说明没执行完
type RestartTransitionsHandler struct {
	PageSize int64
}

func NewRestartTransitionsHandler() *RestartTransitionsHandler {
	return &RestartTransitionsHandler{
		PageSize: defaultRestartPageSize,
	}
}

func (h *RestartTransitionsHandler) HandleRestart(ctx context.Context, services *EngineServices) error {
	pageSize := h.PageSize
	if pageSize <= 0 {
		pageSize = defaultRestartPageSize
	}
	err := services.Repo.Transaction(ctx, func(ctx context.Context) error {
		page := NewQueryOptions(pageSize)
		for {
			transitionInstances, err := services.Transitions.SearchTransitionInstances(ctx, page)
			if err != nil {
				return errors.WithMessagef(err, "scan transition instances to restart failed, page: %d", page.Page)
			}
			for _, transitionInstance := range transitionInstances {
				// 定义已经不在注册表里的迁移无法恢复,属于部署错误,恢复必须中止
				if _, err := services.Definitions.Get(transitionInstance.ProcessDefinitionID); err != nil {
					return errors.WithMessagef(err, "transition instance %d references unknown definition %d",
						transitionInstance.ID, transitionInstance.ProcessDefinitionID)
				}
				if err := services.Works.RegisterWork(ctx, NewExecuteTransitionWork(services.Executor, transitionInstance.ID)); err != nil {
					return errors.WithMessagef(err, "register restart work failed, transitionInstanceID: %d", transitionInstance.ID)
				}
				slog.InfoContext(ctx, "transition instance scheduled for restart",
					"transitionInstanceID", transitionInstance.ID, "transitionIndex", transitionInstance.TransitionIndex)
			}
			if int64(len(transitionInstances)) < page.Size {
				return nil
			}
			page = page.NextPage()
		}
	})
	if err != nil {
		return NewRestartError("restart transition instances failed", err)
	}
	return nil
}

// RunRestartHandlers 冷启动恢复入口,任意处理器失败都立刻中止
func RunRestartHandlers(ctx context.Context, services *EngineServices, handlers ...TenantRestartHandler) error {
	for _, handler := range handlers {
		if err := handler.HandleRestart(ctx, services); err != nil {
			if IsFatalRestartError(err) {
				return err
			}
			return NewRestartError("restart handler failed", err)
		}
	}
	return nil
}
