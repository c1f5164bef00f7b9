package bpm

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// 辅助函数
func String(s string) *string { return &s }
func Bool(b bool) *bool       { return &b }
func Int64(i int64) *int64    { return &i }

// QueryOptions 重启扫描用的分页游标,整页扫描循环用NextPage推进
type QueryOptions struct {
	Page int64
	Size int64
}

func NewQueryOptions(size int64) QueryOptions {
	return QueryOptions{Page: 1, Size: size}
}

func (q QueryOptions) NextPage() QueryOptions {
	return QueryOptions{Page: q.Page + 1, Size: q.Size}
}

// RestartQueryOptions 重启候选集的显式谓词配置
// 默认: 非终态 且 state_executing=false 的节点才是崩溃孤儿
// IncludeExecuting=true 时把 state_executing=true 的行也纳入候选，
// 用于冷启动恢复: 上一个进程已经确认死掉，executing标记全是残留
type RestartQueryOptions struct {
	IncludeExecuting bool
}

type FlowNodeInstanceService interface {
	/**
	 * @description: 状态机唯一的写入口,不在允许跳转表里的跳转返回ErrInvalidStateTransition
	 *               previousStateId <- 当前stateId, stateId/stateName/stable/terminal <- newState,
	 *               stateExecuting <- false, reachStateDate/lastUpdateDate <- now
	 *               持久化失败包装成ErrFlowNodeModification抛出，不重试(由调用方决定)
	 * @param ctx context.Context
	 * @param flowNode *FlowNodeInstancePo 会被原地更新
	 * @param newState *FlowNodeState
	 * @return error
	 */
	SetState(ctx context.Context, flowNode *FlowNodeInstancePo, newState *FlowNodeState) error
	// SetExecuting 标记节点正在被worker处理，防止同一节点被并发重复派发
	SetExecuting(ctx context.Context, flowNode *FlowNodeInstancePo) error
	// ClearExecuting 清掉执行标记,冷启动恢复时过期的owner标记用这个回收
	ClearExecuting(ctx context.Context, flowNode *FlowNodeInstancePo) error
	// SetStateCategory 只改category(normal/aborting/cancelling),不动执行状态,用于记录取消/中止请求
	SetStateCategory(ctx context.Context, flowNode *FlowNodeInstancePo, category StateCategory) error
	// UpdateDisplayName 新值等于旧值时是纯no-op,零次持久化写入
	UpdateDisplayName(ctx context.Context, flowNode *FlowNodeInstancePo, displayName string) error
	UpdateDisplayDescription(ctx context.Context, flowNode *FlowNodeInstancePo, displayDescription string) error
	SetTaskPriority(ctx context.Context, flowNode *FlowNodeInstancePo, priority int64) error
	SetExecutedBy(ctx context.Context, flowNode *FlowNodeInstancePo, executedBy string) error
	SetExecutedByDelegate(ctx context.Context, flowNode *FlowNodeInstancePo, executedByDelegate string) error
	SetExpectedEndDate(ctx context.Context, flowNode *FlowNodeInstancePo, expectedEndDate int64) error

	// GetFlowNodeInstance 不存在返回ErrFlowNodeInstanceNotFound
	GetFlowNodeInstance(ctx context.Context, flowNodeInstanceID int64) (*FlowNodeInstancePo, error)
	GetActiveFlowNodes(ctx context.Context, rootProcessInstanceID int64) ([]*FlowNodeInstancePo, error)
	GetFlowNodeInstances(ctx context.Context, rootProcessInstanceID int64, page QueryOptions) ([]*FlowNodeInstancePo, error)
	GetArchivedFlowNodeInstances(ctx context.Context, rootProcessInstanceID int64, page QueryOptions) ([]*ArchivedFlowNodeInstancePo, error)
	// GetArchivedFlowNodeInstance 按原live行id查归档行,不存在返回ErrArchivedInstanceNotFound
	GetArchivedFlowNodeInstance(ctx context.Context, sourceObjectID int64) (*ArchivedFlowNodeInstancePo, error)
	// GetFlowNodeInstancesToRestart 重启处理器专用的候选查询,谓词见RestartQueryOptions
	GetFlowNodeInstancesToRestart(ctx context.Context, restartOptions RestartQueryOptions, page QueryOptions) ([]*FlowNodeInstancePo, error)

	// ArchiveFlowNodeInstance 终态节点关闭: 同一事务内写归档表并删除live行
	ArchiveFlowNodeInstance(ctx context.Context, flowNode *FlowNodeInstancePo) error
}

type flowNodeInstanceService struct {
	repo   InstanceRepo
	events EventService
}

func NewFlowNodeInstanceService(repo InstanceRepo, events EventService) FlowNodeInstanceService {
	return &flowNodeInstanceService{repo: repo, events: events}
}

func (s *flowNodeInstanceService) SetState(ctx context.Context, flowNode *FlowNodeInstancePo, newState *FlowNodeState) error {
	if flowNode == nil {
		return errors.Wrap(ErrEngineParamInvalid, "SetState failed, flowNode is nil")
	}
	if newState == nil {
		return errors.Wrapf(ErrEngineParamInvalid, "SetState failed, newState is nil, flowNodeInstanceID: %d", flowNode.ID)
	}
	if !CanTransition(flowNode.StateID, newState.ID) {
		return errors.Wrapf(ErrInvalidStateTransition, "flowNodeInstanceID: %d, from: %s, to: %s",
			flowNode.ID, GetFlowNodeStateText(flowNode.StateID), newState.Name)
	}
	previousStateID := flowNode.StateID
	now := time.Now().Unix()
	err := s.repo.UpdateFlowNodeInstance(ctx, &UpdateFlowNodeInstanceParams{
		Where: &UpdateFlowNodeInstanceWhere{
			IDIn: []int64{flowNode.ID},
		},
		Fields: &UpdateFlowNodeInstanceField{
			PreviousStateID: Int64(previousStateID),
			StateID:         Int64(newState.ID),
			StateName:       String(newState.Name),
			Stable:          Bool(newState.Stable),
			Terminal:        Bool(newState.Terminal),
			StateExecuting:  Bool(false),
			ReachStateDate:  Int64(now),
		},
		LimitMax: 1,
	})
	if err != nil {
		return errors.Wrapf(ErrFlowNodeModification, "SetState failed, flowNodeInstanceID: %d, newStateID: %d, err: %v", flowNode.ID, newState.ID, err)
	}
	flowNode.PreviousStateID = previousStateID
	flowNode.StateID = newState.ID
	flowNode.StateName = newState.Name
	flowNode.Stable = newState.Stable
	flowNode.Terminal = newState.Terminal
	flowNode.StateExecuting = false
	flowNode.ReachStateDate = now
	flowNode.LastUpdateDate = now

	// 没有监听者时跳过payload构建
	if s.events != nil && s.events.HasHandlers(EventTopicFlowNodeInstanceState, EventActionUpdated) {
		s.events.Fire(&EngineEvent{
			Topic:    EventTopicFlowNodeInstanceState,
			Action:   EventActionUpdated,
			ObjectID: flowNode.ID,
			Payload: map[string]any{
				"previous_state_id": previousStateID,
				"state_id":          newState.ID,
				"state_name":        newState.Name,
				"terminal":          newState.Terminal,
			},
		})
	}
	return nil
}

// updateSingleField 单字段更新的公共通路,所有set*走这里
func (s *flowNodeInstanceService) updateSingleField(ctx context.Context, flowNode *FlowNodeInstancePo, fields *UpdateFlowNodeInstanceField) error {
	if flowNode == nil {
		return errors.Wrap(ErrEngineParamInvalid, "updateSingleField failed, flowNode is nil")
	}
	err := s.repo.UpdateFlowNodeInstance(ctx, &UpdateFlowNodeInstanceParams{
		Where: &UpdateFlowNodeInstanceWhere{
			IDIn: []int64{flowNode.ID},
		},
		Fields:   fields,
		LimitMax: 1,
	})
	if err != nil {
		return errors.Wrapf(ErrFlowNodeModification, "updateSingleField failed, flowNodeInstanceID: %d, err: %v", flowNode.ID, err)
	}
	flowNode.LastUpdateDate = time.Now().Unix()
	return nil
}

func (s *flowNodeInstanceService) SetExecuting(ctx context.Context, flowNode *FlowNodeInstancePo) error {
	if err := s.updateSingleField(ctx, flowNode, &UpdateFlowNodeInstanceField{
		StateExecuting: Bool(true),
	}); err != nil {
		return err
	}
	flowNode.StateExecuting = true
	return nil
}

func (s *flowNodeInstanceService) ClearExecuting(ctx context.Context, flowNode *FlowNodeInstancePo) error {
	if err := s.updateSingleField(ctx, flowNode, &UpdateFlowNodeInstanceField{
		StateExecuting: Bool(false),
	}); err != nil {
		return err
	}
	flowNode.StateExecuting = false
	return nil
}

func (s *flowNodeInstanceService) SetStateCategory(ctx context.Context, flowNode *FlowNodeInstancePo, category StateCategory) error {
	if err := s.updateSingleField(ctx, flowNode, &UpdateFlowNodeInstanceField{
		StateCategory: String(category),
	}); err != nil {
		return err
	}
	flowNode.StateCategory = category
	return nil
}

func (s *flowNodeInstanceService) UpdateDisplayName(ctx context.Context, flowNode *FlowNodeInstancePo, displayName string) error {
	if flowNode == nil {
		return errors.Wrap(ErrEngineParamInvalid, "UpdateDisplayName failed, flowNode is nil")
	}
	if flowNode.DisplayName == displayName {
		// 值没变，避免无意义的写入和审计噪音
		return nil
	}
	if err := s.updateSingleField(ctx, flowNode, &UpdateFlowNodeInstanceField{
		DisplayName: String(displayName),
	}); err != nil {
		return err
	}
	flowNode.DisplayName = displayName
	return nil
}

func (s *flowNodeInstanceService) UpdateDisplayDescription(ctx context.Context, flowNode *FlowNodeInstancePo, displayDescription string) error {
	if flowNode == nil {
		return errors.Wrap(ErrEngineParamInvalid, "UpdateDisplayDescription failed, flowNode is nil")
	}
	if flowNode.DisplayDescription == displayDescription {
		return nil
	}
	if err := s.updateSingleField(ctx, flowNode, &UpdateFlowNodeInstanceField{
		DisplayDescription: String(displayDescription),
	}); err != nil {
		return err
	}
	flowNode.DisplayDescription = displayDescription
	return nil
}

func (s *flowNodeInstanceService) SetTaskPriority(ctx context.Context, flowNode *FlowNodeInstancePo, priority int64) error {
	if err := s.updateSingleField(ctx, flowNode, &UpdateFlowNodeInstanceField{
		TaskPriority: Int64(priority),
	}); err != nil {
		return err
	}
	flowNode.TaskPriority = priority
	return nil
}

func (s *flowNodeInstanceService) SetExecutedBy(ctx context.Context, flowNode *FlowNodeInstancePo, executedBy string) error {
	if err := s.updateSingleField(ctx, flowNode, &UpdateFlowNodeInstanceField{
		ExecutedBy: String(executedBy),
	}); err != nil {
		return err
	}
	flowNode.ExecutedBy = executedBy
	return nil
}

func (s *flowNodeInstanceService) SetExecutedByDelegate(ctx context.Context, flowNode *FlowNodeInstancePo, executedByDelegate string) error {
	if err := s.updateSingleField(ctx, flowNode, &UpdateFlowNodeInstanceField{
		ExecutedByDelegate: String(executedByDelegate),
	}); err != nil {
		return err
	}
	flowNode.ExecutedByDelegate = executedByDelegate
	return nil
}

func (s *flowNodeInstanceService) SetExpectedEndDate(ctx context.Context, flowNode *FlowNodeInstancePo, expectedEndDate int64) error {
	if err := s.updateSingleField(ctx, flowNode, &UpdateFlowNodeInstanceField{
		ExpectedEndDate: Int64(expectedEndDate),
	}); err != nil {
		return err
	}
	flowNode.ExpectedEndDate = expectedEndDate
	return nil
}

func (s *flowNodeInstanceService) GetFlowNodeInstance(ctx context.Context, flowNodeInstanceID int64) (*FlowNodeInstancePo, error) {
	if flowNodeInstanceID <= 0 {
		return nil, errors.Wrapf(ErrEngineParamInvalid, "GetFlowNodeInstance failed, flowNodeInstanceID: %d", flowNodeInstanceID)
	}
	flowNodes, err := s.repo.QueryFlowNodeInstance(ctx, &QueryFlowNodeInstanceParams{
		FlowNodeInstanceID: &flowNodeInstanceID,
		Page: &Pager{
			Page: 1,
			Size: 1,
		},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryFlowNodeInstance failed, flowNodeInstanceID: %d", flowNodeInstanceID)
	}
	if len(flowNodes) == 0 {
		return nil, errors.WithMessagef(ErrFlowNodeInstanceNotFound, "flowNodeInstanceID: %d", flowNodeInstanceID)
	}
	return flowNodes[0], nil
}

func (s *flowNodeInstanceService) GetActiveFlowNodes(ctx context.Context, rootProcessInstanceID int64) ([]*FlowNodeInstancePo, error) {
	flowNodes, err := s.repo.QueryFlowNodeInstance(ctx, &QueryFlowNodeInstanceParams{
		RootProcessInstanceID: &rootProcessInstanceID,
		Terminal:              Bool(false),
		OrderbyIDAsc:          Bool(true),
		Page: &Pager{
			IsNoLimit: Bool(true),
		},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "GetActiveFlowNodes failed, rootProcessInstanceID: %d", rootProcessInstanceID)
	}
	return flowNodes, nil
}

func (s *flowNodeInstanceService) GetFlowNodeInstances(ctx context.Context, rootProcessInstanceID int64, page QueryOptions) ([]*FlowNodeInstancePo, error) {
	flowNodes, err := s.repo.QueryFlowNodeInstance(ctx, &QueryFlowNodeInstanceParams{
		RootProcessInstanceID: &rootProcessInstanceID,
		OrderbyIDAsc:          Bool(true),
		Page: &Pager{
			Page: page.Page,
			Size: page.Size,
		},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "GetFlowNodeInstances failed, rootProcessInstanceID: %d", rootProcessInstanceID)
	}
	return flowNodes, nil
}

func (s *flowNodeInstanceService) GetArchivedFlowNodeInstances(ctx context.Context, rootProcessInstanceID int64, page QueryOptions) ([]*ArchivedFlowNodeInstancePo, error) {
	archived, err := s.repo.QueryArchivedFlowNodeInstance(ctx, &QueryArchivedFlowNodeInstanceParams{
		RootProcessInstanceID: &rootProcessInstanceID,
		OrderbyIDAsc:          Bool(true),
		Page: &Pager{
			Page: page.Page,
			Size: page.Size,
		},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "GetArchivedFlowNodeInstances failed, rootProcessInstanceID: %d", rootProcessInstanceID)
	}
	return archived, nil
}

func (s *flowNodeInstanceService) GetArchivedFlowNodeInstance(ctx context.Context, sourceObjectID int64) (*ArchivedFlowNodeInstancePo, error) {
	if sourceObjectID <= 0 {
		return nil, errors.Wrapf(ErrEngineParamInvalid, "GetArchivedFlowNodeInstance failed, sourceObjectID: %d", sourceObjectID)
	}
	archived, err := s.repo.QueryArchivedFlowNodeInstance(ctx, &QueryArchivedFlowNodeInstanceParams{
		SourceObjectID: &sourceObjectID,
		Page: &Pager{
			Page: 1,
			Size: 1,
		},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryArchivedFlowNodeInstance failed, sourceObjectID: %d", sourceObjectID)
	}
	if len(archived) == 0 {
		return nil, errors.WithMessagef(ErrArchivedInstanceNotFound, "sourceObjectID: %d", sourceObjectID)
	}
	return archived[0], nil
}

func (s *flowNodeInstanceService) GetFlowNodeInstancesToRestart(ctx context.Context, restartOptions RestartQueryOptions, page QueryOptions) ([]*FlowNodeInstancePo, error) {
	param := &QueryFlowNodeInstanceParams{
		Terminal:     Bool(false),
		OrderbyIDAsc: Bool(true),
		Page: &Pager{
			Page: page.Page,
			Size: page.Size,
		},
	}
	if !restartOptions.IncludeExecuting {
		param.StateExecuting = Bool(false)
	}
	flowNodes, err := s.repo.QueryFlowNodeInstance(ctx, param)
	if err != nil {
		return nil, errors.WithMessagef(err, "GetFlowNodeInstancesToRestart failed, page: %d", page.Page)
	}
	return flowNodes, nil
}

func (s *flowNodeInstanceService) ArchiveFlowNodeInstance(ctx context.Context, flowNode *FlowNodeInstancePo) error {
	if flowNode == nil {
		return errors.Wrap(ErrEngineParamInvalid, "ArchiveFlowNodeInstance failed, flowNode is nil")
	}
	if !flowNode.Terminal {
		return errors.Wrapf(ErrEngineParamInvalid, "ArchiveFlowNodeInstance failed, flowNodeInstanceID: %d is not terminal", flowNode.ID)
	}
	return s.repo.Transaction(ctx, func(ctx context.Context) error {
		_, err := s.repo.CreateArchivedFlowNodeInstance(ctx, &ArchivedFlowNodeInstancePo{
			SourceObjectID:          flowNode.ID,
			Name:                    flowNode.Name,
			Kind:                    flowNode.Kind,
			StateID:                 flowNode.StateID,
			PreviousStateID:         flowNode.PreviousStateID,
			StateName:               flowNode.StateName,
			Stable:                  flowNode.Stable,
			StateCategory:           flowNode.StateCategory,
			ReachStateDate:          flowNode.ReachStateDate,
			LastUpdateDate:          flowNode.LastUpdateDate,
			ExpectedEndDate:         flowNode.ExpectedEndDate,
			ExecutedBy:              flowNode.ExecutedBy,
			ExecutedByDelegate:      flowNode.ExecutedByDelegate,
			DisplayName:             flowNode.DisplayName,
			DisplayDescription:      flowNode.DisplayDescription,
			TaskPriority:            flowNode.TaskPriority,
			ProcessDefinitionID:     flowNode.ProcessDefinitionID,
			RootProcessInstanceID:   flowNode.RootProcessInstanceID,
			ParentProcessInstanceID: flowNode.ParentProcessInstanceID,
			ParentActivityID:        flowNode.ParentActivityID,
			GatewayType:             flowNode.GatewayType,
			HitBys:                  flowNode.HitBys,
			DefinitionKey:           flowNode.DefinitionKey,
			Variables:               flowNode.Variables,
		})
		if err != nil {
			return errors.WithMessagef(err, "CreateArchivedFlowNodeInstance failed, flowNodeInstanceID: %d", flowNode.ID)
		}
		if err := s.repo.DeleteFlowNodeInstance(ctx, []int64{flowNode.ID}); err != nil {
			return errors.WithMessagef(err, "DeleteFlowNodeInstance failed, flowNodeInstanceID: %d", flowNode.ID)
		}
		return nil
	})
}
