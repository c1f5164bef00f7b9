package bpm

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

const defaultMaxLockTime = 30 * time.Second

// StartProcessReq 启动流程参数
type StartProcessReq struct {
	ProcessDefinitionID int64          `json:"process_definition_id" validate:"gt=0"`
	StartedBy           string         `json:"started_by" validate:"required"`
	Variables           map[string]any `json:"variables"`
}

// ProcessExecutor 流程推进引擎
// 一个流程实例同一时刻只有一个执行者: 所有推进都在流程实例级别的锁内进行
type ProcessExecutor interface {
	/**
	 * @description: 启动一个新的流程实例
	 *               事务内: 创建流程实例行 -> 回填root id -> 为每个起点节点创建ready状态的节点实例 -> status置running
	 *               提交后为每个起点节点注册异步执行工作,注册失败只告警(重启扫描会兜底)
	 * @param ctx context.Context
	 * @param req *StartProcessReq
	 * @return *ProcessInstancePo
	 * @return error
	 */
	StartProcess(ctx context.Context, req *StartProcessReq) (*ProcessInstancePo, error)
	// ExecuteFlowNode 推进一个节点实例,幂等: 终态或正在执行的节点直接跳过
	// 派发语义是至少一次,重复派发靠这里的幂等检查收敛
	// 崩溃后停在executing/completing的节点从断点续跑: executing重跑worker,completing补发未兑现的出边
	ExecuteFlowNode(ctx context.Context, flowNodeInstanceID int64, executedBy string, executedByDelegate string) error
	// ExecuteTransition 执行一条在途迁移: 求值条件,落地目标节点(或命中网关),删除迁移实例
	// 迁移实例已经不存在时是no-op
	ExecuteTransition(ctx context.Context, transitionInstanceID int64) error
}

type processExecutor struct {
	repo        InstanceRepo
	flowNodes   FlowNodeInstanceService
	gateways    GatewayInstanceService
	transitions TransitionService
	definitions *DefinitionRegistry
	works       WorkService
	lock        EngineLock
	maxLockTime time.Duration
}

func NewProcessExecutor(
	repo InstanceRepo,
	flowNodes FlowNodeInstanceService,
	gateways GatewayInstanceService,
	transitions TransitionService,
	definitions *DefinitionRegistry,
	works WorkService,
	lock EngineLock,
) ProcessExecutor {
	return &processExecutor{
		repo:        repo,
		flowNodes:   flowNodes,
		gateways:    gateways,
		transitions: transitions,
		definitions: definitions,
		works:       works,
		lock:        lock,
		maxLockTime: defaultMaxLockTime,
	}
}

func (e *processExecutor) StartProcess(ctx context.Context, req *StartProcessReq) (*ProcessInstancePo, error) {
	if err := validatorUtil.Struct(req); err != nil {
		return nil, errors.Wrapf(ErrEngineParamInvalid, "StartProcess failed, req: %v, err: %v", req, err)
	}
	definition, err := e.definitions.Get(req.ProcessDefinitionID)
	if err != nil {
		return nil, errors.WithMessagef(err, "StartProcess failed, processDefinitionID: %d", req.ProcessDefinitionID)
	}
	variables, err := NewJSONContextFromMap(req.Variables).ToBytes()
	if err != nil {
		return nil, errors.Wrapf(ErrEngineParamInvalid, "StartProcess failed, marshal variables err: %v", err)
	}

	var processInstance *ProcessInstancePo
	var startNodes []*FlowNodeInstancePo
	err = e.repo.Transaction(ctx, func(ctx context.Context) error {
		processInstance, err = e.repo.CreateProcessInstance(ctx, &ProcessInstancePo{
			ProcessDefinitionID: req.ProcessDefinitionID,
			Status:              ProcessInstanceStatusInit,
			Variables:           variables,
			StartedBy:           req.StartedBy,
		})
		if err != nil {
			return errors.WithMessage(err, "CreateProcessInstance failed")
		}
		// 根流程的root id就是自己
		if err := e.repo.UpdateProcessInstance(ctx, &UpdateProcessInstanceParams{
			Where: &UpdateProcessInstanceWhere{
				IDIn: []int64{processInstance.ID},
			},
			Fields: &UpdateProcessInstanceField{
				RootProcessInstanceID: Int64(processInstance.ID),
				Status:                String(ProcessInstanceStatusRunning),
			},
			LimitMax: 1,
		}); err != nil {
			return errors.WithMessage(err, "UpdateProcessInstance failed")
		}
		processInstance.RootProcessInstanceID = processInstance.ID
		processInstance.Status = ProcessInstanceStatusRunning

		for _, startKey := range definition.StartKeys {
			nodeDef := definition.Nodes[startKey]
			startNode, err := e.createFlowNodeInstance(ctx, definition, nodeDef, processInstance.ID)
			if err != nil {
				return errors.WithMessagef(err, "create start node failed, key: %s", startKey)
			}
			startNodes = append(startNodes, startNode)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "StartProcess failed, processDefinitionID: %d", req.ProcessDefinitionID)
	}

	for _, startNode := range startNodes {
		if err := e.works.RegisterWork(ctx, NewExecuteFlowNodeWork(e, startNode.ID, req.StartedBy, "")); err != nil {
			// 注册失败不回滚流程,节点还在ready状态,重启扫描会把它捡回来
			slog.WarnContext(ctx, "StartProcess register work failed",
				"processInstanceID", processInstance.ID, "flowNodeInstanceID", startNode.ID, "err", err)
		}
	}
	return processInstance, nil
}

// createFlowNodeInstance 按节点定义落一个ready状态的节点实例,逻辑分组id全部冗余
func (e *processExecutor) createFlowNodeInstance(ctx context.Context, definition *ProcessDefinition, nodeDef *FlowNodeDefinition, rootProcessInstanceID int64) (*FlowNodeInstancePo, error) {
	po := &FlowNodeInstancePo{
		Name:                  nodeDef.Name,
		Kind:                  nodeDef.Kind,
		StateID:               StateReady.ID,
		PreviousStateID:       StateInitializing.ID,
		StateName:             StateReady.Name,
		Stable:                StateReady.Stable,
		Terminal:              StateReady.Terminal,
		StateCategory:         StateCategoryNormal,
		ProcessDefinitionID:   definition.ID,
		RootProcessInstanceID: rootProcessInstanceID,
		DefinitionKey:         nodeDef.Key,
	}
	if nodeDef.Kind == FlowNodeKindGateway {
		po.GatewayType = nodeDef.GatewayType
	}
	created, err := e.repo.CreateFlowNodeInstance(ctx, po)
	if err != nil {
		return nil, errors.WithMessagef(err, "CreateFlowNodeInstance failed, key: %s", nodeDef.Key)
	}
	return created, nil
}

func (e *processExecutor) ExecuteFlowNode(ctx context.Context, flowNodeInstanceID int64, executedBy string, executedByDelegate string) error {
	flowNode, err := e.flowNodes.GetFlowNodeInstance(ctx, flowNodeInstanceID)
	if err != nil {
		if errors.Is(errors.Cause(err), ErrFlowNodeInstanceNotFound) {
			// 已经归档,重复派发的残留,直接跳过
			return nil
		}
		return errors.WithMessagef(err, "ExecuteFlowNode failed, flowNodeInstanceID: %d", flowNodeInstanceID)
	}
	lockKey := processInstanceExecuteLockKey(flowNode.RootProcessInstanceID)
	return e.lock.NonBlockingSynchronized(ctx, lockKey, e.maxLockTime, func(ctx context.Context) error {
		return e.executeFlowNodeLocked(ctx, flowNodeInstanceID, executedBy, executedByDelegate)
	})
}

// executeFlowNodeLocked 锁内推进,所有状态检查都在锁内重查后进行
func (e *processExecutor) executeFlowNodeLocked(ctx context.Context, flowNodeInstanceID int64, executedBy string, executedByDelegate string) error {
	flowNode, err := e.flowNodes.GetFlowNodeInstance(ctx, flowNodeInstanceID)
	if err != nil {
		if errors.Is(errors.Cause(err), ErrFlowNodeInstanceNotFound) {
			return nil
		}
		return errors.WithMessagef(err, "reload flow node failed, flowNodeInstanceID: %d", flowNodeInstanceID)
	}
	if flowNode.Terminal {
		return nil
	}
	if flowNode.StateExecuting {
		// 别的worker正在处理,至少一次派发下的正常情况
		return nil
	}
	if flowNode.StateCategory != StateCategoryNormal {
		return e.sweepInterruptedFlowNode(ctx, flowNode)
	}

	definition, err := e.definitions.Get(flowNode.ProcessDefinitionID)
	if err != nil {
		return e.failFlowNode(ctx, flowNode, errors.WithMessagef(err, "definition not found, processDefinitionID: %d", flowNode.ProcessDefinitionID))
	}
	nodeDef, ok := definition.Nodes[flowNode.DefinitionKey]
	if !ok {
		return e.failFlowNode(ctx, flowNode, errors.Wrapf(ErrEngineParamInvalid, "node definition not found, key: %s", flowNode.DefinitionKey))
	}

	if flowNode.Kind == FlowNodeKindGateway {
		if !IsMergeSatisfied(definition, flowNode.DefinitionKey, flowNode.GatewayType, flowNode.HitBys) {
			// 合并条件未满足,等后续迁移命中后再被派发
			return nil
		}
	}

	// 进来时已经停在executing/completing的,是crash打断的残骸,从断点处续跑
	// completing意味着出边可能只补发了一半,fireOutgoingTransitions要做兑现盘点
	resumedFromCompleting := flowNode.StateID == StateCompleting.ID

	if flowNode.StateID == StateInitializing.ID {
		if err := e.flowNodes.SetState(ctx, flowNode, StateReady); err != nil {
			return err
		}
	}
	if flowNode.StateID == StateReady.ID {
		if executedBy != "" {
			if err := e.flowNodes.SetExecutedBy(ctx, flowNode, executedBy); err != nil {
				return err
			}
		}
		if executedByDelegate != "" {
			if err := e.flowNodes.SetExecutedByDelegate(ctx, flowNode, executedByDelegate); err != nil {
				return err
			}
		}
		if err := e.flowNodes.SetState(ctx, flowNode, StateExecuting); err != nil {
			return err
		}
	}
	if flowNode.StateID == StateExecuting.ID {
		// executing意味着worker没有跑完,至少一次语义下从头重跑worker
		if !flowNode.StateExecuting {
			if err := e.flowNodes.SetExecuting(ctx, flowNode); err != nil {
				return err
			}
		}
		if flowNode.Kind == FlowNodeKindActivity && nodeDef.Worker != nil {
			if err := e.runWorker(ctx, flowNode, nodeDef); err != nil {
				return e.failFlowNode(ctx, flowNode, err)
			}
		}
		if err := e.flowNodes.SetState(ctx, flowNode, StateCompleting); err != nil {
			return err
		}
	}
	if flowNode.StateID != StateCompleting.ID {
		return nil
	}

	if err := e.fireOutgoingTransitions(ctx, definition, flowNode, resumedFromCompleting); err != nil {
		return e.failFlowNode(ctx, flowNode, err)
	}
	if err := e.flowNodes.SetState(ctx, flowNode, StateCompleted); err != nil {
		return err
	}
	if err := e.flowNodes.ArchiveFlowNodeInstance(ctx, flowNode); err != nil {
		return err
	}
	return e.completeProcessIfFinished(ctx, flowNode.RootProcessInstanceID)
}

// runWorker 执行活动节点的业务逻辑,worker改动的变量写回流程实例
func (e *processExecutor) runWorker(ctx context.Context, flowNode *FlowNodeInstancePo, nodeDef *FlowNodeDefinition) error {
	processInstance, err := e.getProcessInstance(ctx, flowNode.RootProcessInstanceID)
	if err != nil {
		return err
	}
	variables := NewJSONContext(processInstance.Variables)
	if err := nodeDef.Worker(ctx, variables); err != nil {
		return errors.WithMessagef(err, "worker failed, key: %s, flowNodeInstanceID: %d", nodeDef.Key, flowNode.ID)
	}
	if err := e.repo.UpdateProcessInstance(ctx, &UpdateProcessInstanceParams{
		Where: &UpdateProcessInstanceWhere{
			IDIn: []int64{processInstance.ID},
		},
		Fields: &UpdateProcessInstanceField{
			Variables: variables,
		},
		LimitMax: 1,
	}); err != nil {
		return errors.WithMessagef(err, "write back variables failed, processInstanceID: %d", processInstance.ID)
	}
	return nil
}

// sweepInterruptedFlowNode 类别被标成aborting/cancelling的节点走打断通路,推到旁路终态并归档
// 打断是协作式的: setStateCategory只做标记,节点下一次被派发到这里才真正停下
func (e *processExecutor) sweepInterruptedFlowNode(ctx context.Context, flowNode *FlowNodeInstancePo) error {
	viaState, endState := StateCancelling, StateCancelled
	if flowNode.StateCategory == StateCategoryAborting {
		viaState, endState = StateAborting, StateAborted
	}
	if flowNode.StateID != viaState.ID {
		if err := e.flowNodes.SetState(ctx, flowNode, viaState); err != nil {
			return err
		}
	}
	if err := e.flowNodes.SetState(ctx, flowNode, endState); err != nil {
		return err
	}
	if err := e.flowNodes.ArchiveFlowNodeInstance(ctx, flowNode); err != nil {
		return err
	}
	return e.closeProcessIfFinished(ctx, flowNode.RootProcessInstanceID, ProcessInstanceStatusCancelled)
}

// fireOutgoingTransitions 为每条出边创建迁移实例并注册异步执行
// 出边为空是流程的自然终点,什么都不做
// resumed=true是从completing续跑的恢复路径,出边可能已经补发过一部分,兑现过的不再重发
func (e *processExecutor) fireOutgoingTransitions(ctx context.Context, definition *ProcessDefinition, flowNode *FlowNodeInstancePo, resumed bool) error {
	var realized map[int64]bool
	if resumed {
		var err error
		realized, err = e.realizedTransitionIndexes(ctx, definition, flowNode)
		if err != nil {
			return err
		}
	}
	for _, transitionDef := range definition.Outgoing[flowNode.DefinitionKey] {
		if realized[transitionDef.Index] {
			continue
		}
		transitionInstance, err := e.transitions.CreateTransitionInstance(ctx, &CreateTransitionInstanceReq{
			Name:                    transitionDef.Name,
			TransitionIndex:         transitionDef.Index,
			SourceKey:               transitionDef.SourceKey,
			TargetKey:               transitionDef.TargetKey,
			ProcessDefinitionID:     flowNode.ProcessDefinitionID,
			RootProcessInstanceID:   flowNode.RootProcessInstanceID,
			ParentProcessInstanceID: flowNode.ParentProcessInstanceID,
		})
		if err != nil {
			return errors.WithMessagef(err, "fire transition failed, index: %d", transitionDef.Index)
		}
		if err := e.works.RegisterWork(ctx, NewExecuteTransitionWork(e, transitionInstance.ID)); err != nil {
			slog.WarnContext(ctx, "register transition work failed, restart scan will pick it up",
				"transitionInstanceID", transitionInstance.ID, "err", err)
		}
	}
	return nil
}

// realizedTransitionIndexes 从completing续跑时盘点哪些出边已经兑现:
// 1. 在途迁移实例还在的(重启扫描会接手,不能再造一条)
// 2. 目标活动节点已经落地的(存活或已归档)
// 3. 目标网关已经记过这条入边hit的(存活或已归档)
func (e *processExecutor) realizedTransitionIndexes(ctx context.Context, definition *ProcessDefinition, flowNode *FlowNodeInstancePo) (map[int64]bool, error) {
	realized := make(map[int64]bool)
	liveTransitions, err := e.transitions.GetTransitionInstancesOfProcess(ctx, flowNode.RootProcessInstanceID)
	if err != nil {
		return nil, err
	}
	for _, transitionInstance := range liveTransitions {
		realized[transitionInstance.TransitionIndex] = true
	}

	liveNodes, err := e.repo.QueryFlowNodeInstance(ctx, &QueryFlowNodeInstanceParams{
		RootProcessInstanceID: &flowNode.RootProcessInstanceID,
		Page:                  &Pager{IsNoLimit: Bool(true)},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "query live nodes failed, rootProcessInstanceID: %d", flowNode.RootProcessInstanceID)
	}
	archivedNodes, err := e.repo.QueryArchivedFlowNodeInstance(ctx, &QueryArchivedFlowNodeInstanceParams{
		RootProcessInstanceID: &flowNode.RootProcessInstanceID,
		Page:                  &Pager{IsNoLimit: Bool(true)},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "query archived nodes failed, rootProcessInstanceID: %d", flowNode.RootProcessInstanceID)
	}
	targetKeyExists := make(map[string]bool)
	gatewayHitBys := make(map[string][]string)
	for _, node := range liveNodes {
		if node.ID == flowNode.ID {
			continue
		}
		targetKeyExists[node.DefinitionKey] = true
		if node.Kind == FlowNodeKindGateway {
			gatewayHitBys[node.DefinitionKey] = append(gatewayHitBys[node.DefinitionKey], node.HitBys)
		}
	}
	for _, node := range archivedNodes {
		if node.SourceObjectID == flowNode.ID {
			continue
		}
		targetKeyExists[node.DefinitionKey] = true
		if node.Kind == FlowNodeKindGateway {
			gatewayHitBys[node.DefinitionKey] = append(gatewayHitBys[node.DefinitionKey], node.HitBys)
		}
	}

	for _, transitionDef := range definition.Outgoing[flowNode.DefinitionKey] {
		if realized[transitionDef.Index] {
			continue
		}
		targetDef, ok := definition.Nodes[transitionDef.TargetKey]
		if !ok {
			// 定义损坏留给正常兑现路径报错
			continue
		}
		if targetDef.Kind == FlowNodeKindGateway {
			for _, hitBys := range gatewayHitBys[transitionDef.TargetKey] {
				if ContainsHitBy(hitBys, transitionDef.Index) {
					realized[transitionDef.Index] = true
					break
				}
			}
		} else if targetKeyExists[transitionDef.TargetKey] {
			realized[transitionDef.Index] = true
		}
	}
	return realized, nil
}

func (e *processExecutor) ExecuteTransition(ctx context.Context, transitionInstanceID int64) error {
	transitionInstance, err := e.transitions.GetTransitionInstance(ctx, transitionInstanceID)
	if err != nil {
		if errors.Is(errors.Cause(err), ErrTransitionInstanceNotFound) {
			// 已经被执行并删除,重复派发的残留
			return nil
		}
		return errors.WithMessagef(err, "ExecuteTransition failed, transitionInstanceID: %d", transitionInstanceID)
	}
	lockKey := processInstanceExecuteLockKey(transitionInstance.RootProcessInstanceID)
	return e.lock.NonBlockingSynchronized(ctx, lockKey, e.maxLockTime, func(ctx context.Context) error {
		return e.executeTransitionLocked(ctx, transitionInstanceID)
	})
}

func (e *processExecutor) executeTransitionLocked(ctx context.Context, transitionInstanceID int64) error {
	transitionInstance, err := e.transitions.GetTransitionInstance(ctx, transitionInstanceID)
	if err != nil {
		if errors.Is(errors.Cause(err), ErrTransitionInstanceNotFound) {
			return nil
		}
		return errors.WithMessagef(err, "reload transition failed, transitionInstanceID: %d", transitionInstanceID)
	}
	definition, err := e.definitions.Get(transitionInstance.ProcessDefinitionID)
	if err != nil {
		return errors.WithMessagef(err, "definition not found, processDefinitionID: %d", transitionInstance.ProcessDefinitionID)
	}
	transitionDef, ok := definition.Transitions[transitionInstance.TransitionIndex]
	if !ok {
		return errors.Wrapf(ErrEngineParamInvalid, "transition definition not found, index: %d", transitionInstance.TransitionIndex)
	}

	if transitionDef.Condition != nil {
		processInstance, err := e.getProcessInstance(ctx, transitionInstance.RootProcessInstanceID)
		if err != nil {
			return err
		}
		variables := NewJSONContext(processInstance.Variables)
		pass, err := transitionDef.Condition(variables)
		if err != nil {
			return errors.WithMessagef(err, "condition failed, transitionIndex: %d", transitionDef.Index)
		}
		if !pass {
			// 死路径: 迁移不走,销毁在途记录
			if err := e.transitions.DeleteTransitionInstance(ctx, transitionInstance.ID); err != nil {
				return err
			}
			return e.completeProcessIfFinished(ctx, transitionInstance.RootProcessInstanceID)
		}
	}

	targetDef, ok := definition.Nodes[transitionInstance.TargetKey]
	if !ok {
		return errors.Wrapf(ErrEngineParamInvalid, "target node definition not found, key: %s", transitionInstance.TargetKey)
	}

	var targetNodeID int64
	if targetDef.Kind == FlowNodeKindGateway {
		gateway, err := e.findOrCreateGatewayInstance(ctx, definition, targetDef, transitionInstance.RootProcessInstanceID)
		if err != nil {
			return err
		}
		if err := e.gateways.HitTransition(ctx, gateway, transitionInstance.TransitionIndex); err != nil {
			return err
		}
		targetNodeID = gateway.ID
		if !IsMergeSatisfied(definition, gateway.DefinitionKey, gateway.GatewayType, gateway.HitBys) {
			// 还在等其他入边,网关实例留着,迁移记录已经兑现成hit
			targetNodeID = 0
		}
	} else {
		targetNode, err := e.createFlowNodeInstance(ctx, definition, targetDef, transitionInstance.RootProcessInstanceID)
		if err != nil {
			return err
		}
		targetNodeID = targetNode.ID
	}

	if err := e.transitions.DeleteTransitionInstance(ctx, transitionInstance.ID); err != nil {
		return err
	}
	if targetNodeID > 0 {
		if err := e.works.RegisterWork(ctx, NewExecuteFlowNodeWork(e, targetNodeID, "", "")); err != nil {
			slog.WarnContext(ctx, "register flow node work failed, restart scan will pick it up",
				"flowNodeInstanceID", targetNodeID, "err", err)
		}
	}
	return nil
}

// findOrCreateGatewayInstance 同一个网关key在一个流程实例里只有一个存活实例,所有入边命中同一行
func (e *processExecutor) findOrCreateGatewayInstance(ctx context.Context, definition *ProcessDefinition, nodeDef *FlowNodeDefinition, rootProcessInstanceID int64) (*FlowNodeInstancePo, error) {
	gateways, err := e.repo.QueryFlowNodeInstance(ctx, &QueryFlowNodeInstanceParams{
		RootProcessInstanceID: &rootProcessInstanceID,
		DefinitionKey:         &nodeDef.Key,
		Kind:                  String(FlowNodeKindGateway),
		Terminal:              Bool(false),
		Page: &Pager{
			Page: 1,
			Size: 1,
		},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "query gateway instance failed, key: %s", nodeDef.Key)
	}
	if len(gateways) > 0 {
		return gateways[0], nil
	}
	return e.createFlowNodeInstance(ctx, definition, nodeDef, rootProcessInstanceID)
}

func (e *processExecutor) getProcessInstance(ctx context.Context, processInstanceID int64) (*ProcessInstancePo, error) {
	processInstances, err := e.repo.QueryProcessInstance(ctx, &QueryProcessInstanceParams{
		ProcessInstanceID: &processInstanceID,
		Page: &Pager{
			Page: 1,
			Size: 1,
		},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryProcessInstance failed, processInstanceID: %d", processInstanceID)
	}
	if len(processInstances) == 0 {
		return nil, errors.WithMessagef(ErrProcessInstanceNotFound, "processInstanceID: %d", processInstanceID)
	}
	return processInstances[0], nil
}

// failFlowNode 节点执行失败: 节点置failed(终态)并归档,流程实例置failed
// 失败原因通过返回值往上抛,由工作池记录日志
func (e *processExecutor) failFlowNode(ctx context.Context, flowNode *FlowNodeInstancePo, cause error) error {
	if err := e.flowNodes.SetState(ctx, flowNode, StateFailed); err != nil {
		slog.ErrorContext(ctx, "failFlowNode set state failed", "flowNodeInstanceID", flowNode.ID, "err", err)
		return cause
	}
	if err := e.flowNodes.ArchiveFlowNodeInstance(ctx, flowNode); err != nil {
		slog.ErrorContext(ctx, "failFlowNode archive failed", "flowNodeInstanceID", flowNode.ID, "err", err)
	}
	if err := e.repo.UpdateProcessInstance(ctx, &UpdateProcessInstanceParams{
		Where: &UpdateProcessInstanceWhere{
			IDIn:     []int64{flowNode.RootProcessInstanceID},
			StatusIn: []string{ProcessInstanceStatusInit, ProcessInstanceStatusRunning},
		},
		Fields: &UpdateProcessInstanceField{
			Status: String(ProcessInstanceStatusFailed),
		},
		LimitMax: 1,
	}); err != nil && !errors.Is(err, ErrNoFieldsToUpdate) {
		slog.ErrorContext(ctx, "failFlowNode update process status failed", "processInstanceID", flowNode.RootProcessInstanceID, "err", err)
	}
	return cause
}

// completeProcessIfFinished 没有存活节点也没有在途迁移时,流程实例完结
func (e *processExecutor) completeProcessIfFinished(ctx context.Context, rootProcessInstanceID int64) error {
	return e.closeProcessIfFinished(ctx, rootProcessInstanceID, ProcessInstanceStatusCompleted)
}

// closeProcessIfFinished 没有存活节点也没有在途迁移时,把还在running的流程实例收口到finalStatus
// 正常完结收口到completed,打断清扫收口到canceled
func (e *processExecutor) closeProcessIfFinished(ctx context.Context, rootProcessInstanceID int64, finalStatus ProcessInstanceStatus) error {
	liveNodes, err := e.flowNodes.GetActiveFlowNodes(ctx, rootProcessInstanceID)
	if err != nil {
		return err
	}
	if len(liveNodes) > 0 {
		return nil
	}
	liveTransitions, err := e.transitions.GetTransitionInstancesOfProcess(ctx, rootProcessInstanceID)
	if err != nil {
		return err
	}
	if len(liveTransitions) > 0 {
		return nil
	}
	if err := e.repo.UpdateProcessInstance(ctx, &UpdateProcessInstanceParams{
		Where: &UpdateProcessInstanceWhere{
			IDIn:     []int64{rootProcessInstanceID},
			StatusIn: []string{ProcessInstanceStatusRunning},
		},
		Fields: &UpdateProcessInstanceField{
			Status: String(finalStatus),
		},
		LimitMax: 1,
	}); err != nil {
		return errors.WithMessagef(err, "close process failed, processInstanceID: %d, finalStatus: %s", rootProcessInstanceID, finalStatus)
	}
	return nil
}
