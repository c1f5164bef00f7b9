package bpm

import "github.com/pkg/errors"

var (
	ErrProcessDefinitionNotFound          = errors.New("process definition not found")
	ErrProcessDefinitionAlreadyRegistered = errors.New("process definition already registered")
	ErrProcessInstanceNotFound            = errors.New("process instance not found")
	ErrFlowNodeInstanceNotFound           = errors.New("flow node instance not found")
	ErrGatewayInstanceNotFound            = errors.New("gateway instance not found")
	ErrTransitionInstanceNotFound         = errors.New("transition instance not found")
	ErrArchivedInstanceNotFound           = errors.New("archived flow node instance not found")
	// ErrFlowNodeModification: 状态变更的底层持久化写入失败
	// 场景&应用: setState/setExecuting等单条update失败，包装根因后往上抛，由调用方(执行器)决定是否重试整个工作单元
	ErrFlowNodeModification = errors.New("flow node instance modification failed")
	// ErrReadFailure: 查询级别的持久化错误，重启扫描遇到这种错误会整体失败
	ErrReadFailure = errors.New("persistence read failed")
	// ErrWorkRegisterFailed: 工作队列拒绝提交(容量满/已停止)
	// 场景&应用: 重启扫描期间遇到这种错误是致命的，宁可租户启动失败也不能悄悄丢掉孤儿工作
	ErrWorkRegisterFailed = errors.New("work register failed")
	// ErrEngineParamInvalid: 参数校验失败
	ErrEngineParamInvalid = errors.New("engine param invalid")
	// ErrInvalidStateTransition: 状态机不允许的状态跳转
	ErrInvalidStateTransition = errors.New("invalid flow node state transition")
	ErrNoFieldsToUpdate       = errors.New("no fields to update")
)

// RestartError 租户重启处理器对外的唯一错误类型,必须带上可读信息和根因
type RestartError struct {
	Message string
	Cause   error
}

func (e *RestartError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *RestartError) Unwrap() error {
	return e.Cause
}

func NewRestartError(message string, cause error) *RestartError {
	return &RestartError{Message: message, Cause: cause}
}

// IsFatalRestartError 重启扫描中哪些错误是致命的(全部)，提供给启动序列做日志分级
// 1. 读失败/搜索失败: 扫描中断，事务回滚
// 2. 工作注册失败: 孤儿工作无法重新调度
// 3. 流程定义缺失: 说明数据已经损坏，不是瞬时问题
func IsFatalRestartError(err error) bool {
	if err == nil {
		return false
	}
	causeErr := errors.Cause(err)
	if errors.Is(causeErr, ErrReadFailure) ||
		errors.Is(causeErr, ErrWorkRegisterFailed) ||
		errors.Is(causeErr, ErrProcessDefinitionNotFound) {
		return true
	}
	var restartErr *RestartError
	return errors.As(err, &restartErr)
}

type FlowNodeKind = string

const (
	FlowNodeKindActivity FlowNodeKind = "activity"
	FlowNodeKindGateway  FlowNodeKind = "gateway"
	FlowNodeKindEvent    FlowNodeKind = "event"
)

type GatewayType = string

const (
	GatewayTypeExclusive GatewayType = "exclusive"
	GatewayTypeParallel  GatewayType = "parallel"
	GatewayTypeInclusive GatewayType = "inclusive"
)

type StateCategory = string

const (
	StateCategoryNormal     StateCategory = "normal"
	StateCategoryAborting   StateCategory = "aborting"
	StateCategoryCancelling StateCategory = "cancelling"
)

type ProcessInstanceStatus = string

const (
	ProcessInstanceStatusInit    ProcessInstanceStatus = "init"
	ProcessInstanceStatusRunning ProcessInstanceStatus = "running"
	// 完成, 流程终止状态 普遍含义: 所有流程节点都已经关闭归档
	ProcessInstanceStatusCompleted ProcessInstanceStatus = "completed"
	// 失败, 流程终止状态 普遍含义: 某个节点失败导致流程终止
	ProcessInstanceStatusFailed ProcessInstanceStatus = "failed"
	// 取消, 流程终止状态 普遍含义: 手动取消
	ProcessInstanceStatusCancelled ProcessInstanceStatus = "canceled"
)

func IsOverProcessInstanceStatus(status ProcessInstanceStatus) bool {
	return status == ProcessInstanceStatusCompleted || status == ProcessInstanceStatusFailed || status == ProcessInstanceStatusCancelled
}

// FlowNodeState 流程节点状态描述符,状态机的唯一事实来源
// Stable: 引擎可以安全地停在这个状态(重启后能恢复)
// Terminal: 节点生命周期终点，终态节点不允许再被重新调度
type FlowNodeState struct {
	ID       int64
	Name     string
	Stable   bool
	Terminal bool
}

var (
	StateInitializing = &FlowNodeState{ID: 0, Name: "initializing", Stable: true, Terminal: false}
	StateReady        = &FlowNodeState{ID: 1, Name: "ready", Stable: true, Terminal: false}
	StateExecuting    = &FlowNodeState{ID: 2, Name: "executing", Stable: false, Terminal: false}
	StateCompleting   = &FlowNodeState{ID: 3, Name: "completing", Stable: false, Terminal: false}
	StateCompleted    = &FlowNodeState{ID: 4, Name: "completed", Stable: true, Terminal: true}
	StateCancelling   = &FlowNodeState{ID: 8, Name: "cancelling", Stable: false, Terminal: false}
	StateCancelled    = &FlowNodeState{ID: 9, Name: "cancelled", Stable: true, Terminal: true}
	StateAborting     = &FlowNodeState{ID: 11, Name: "aborting", Stable: false, Terminal: false}
	StateAborted      = &FlowNodeState{ID: 12, Name: "aborted", Stable: true, Terminal: true}
	StateFailed       = &FlowNodeState{ID: 13, Name: "failed", Stable: true, Terminal: true}
)

var flowNodeStates = map[int64]*FlowNodeState{
	StateInitializing.ID: StateInitializing,
	StateReady.ID:        StateReady,
	StateExecuting.ID:    StateExecuting,
	StateCompleting.ID:   StateCompleting,
	StateCompleted.ID:    StateCompleted,
	StateCancelling.ID:   StateCancelling,
	StateCancelled.ID:    StateCancelled,
	StateAborting.ID:     StateAborting,
	StateAborted.ID:      StateAborted,
	StateFailed.ID:       StateFailed,
}

// 状态机允许的跳转，正常通路 + 两条打断通路(cancelling/aborting 可以从任何非终态进入)
var allowedStateTransitions = map[int64][]int64{
	StateInitializing.ID: {StateReady.ID, StateCancelling.ID, StateAborting.ID, StateFailed.ID},
	StateReady.ID:        {StateExecuting.ID, StateCancelling.ID, StateAborting.ID, StateFailed.ID},
	StateExecuting.ID:    {StateCompleting.ID, StateCancelling.ID, StateAborting.ID, StateFailed.ID},
	StateCompleting.ID:   {StateCompleted.ID, StateCancelling.ID, StateAborting.ID, StateFailed.ID},
	StateCancelling.ID:   {StateCancelled.ID, StateFailed.ID},
	StateAborting.ID:     {StateAborted.ID, StateFailed.ID},
}

func GetFlowNodeState(stateID int64) (*FlowNodeState, bool) {
	state, ok := flowNodeStates[stateID]
	return state, ok
}

func IsTerminalStateID(stateID int64) bool {
	state, ok := flowNodeStates[stateID]
	if !ok {
		return false
	}
	return state.Terminal
}

func IsStableStateID(stateID int64) bool {
	state, ok := flowNodeStates[stateID]
	if !ok {
		return false
	}
	return state.Stable
}

// CanTransition 检查状态跳转是否被状态机允许
func CanTransition(fromStateID int64, toStateID int64) bool {
	targets, ok := allowedStateTransitions[fromStateID]
	if !ok {
		// 终态没有出口
		return false
	}
	for _, target := range targets {
		if target == toStateID {
			return true
		}
	}
	return false
}

func GetFlowNodeStateText(stateID int64) string {
	state, ok := flowNodeStates[stateID]
	if !ok {
		return "unknown"
	}
	return state.Name
}
