package bpm

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ConditionFunc 迁移条件,基于流程变量求值
// 返回false表示这条边不走(死路径),迁移实例直接销毁
type ConditionFunc func(variables *JSONContext) (bool, error)

// ActivityWorker 活动节点的业务逻辑,需要外部实现并注册
// worker更改了variables会同步写回节点实例
type ActivityWorker func(ctx context.Context, variables *JSONContext) error

// TransitionDefinition 迁移定义,index在一个流程定义内唯一
type TransitionDefinition struct {
	Index     int64
	Name      string
	SourceKey string
	TargetKey string
	Condition ConditionFunc // nil表示无条件(恒真)
}

// FlowNodeDefinition 节点定义
type FlowNodeDefinition struct {
	Key         string
	Name        string
	Kind        FlowNodeKind
	GatewayType GatewayType // 只有kind=gateway时有效
	Worker      ActivityWorker
}

// ProcessDefinition 流程定义,图的运行时形态
type ProcessDefinition struct {
	ID          int64
	Name        string
	Nodes       map[string]*FlowNodeDefinition
	Transitions map[int64]*TransitionDefinition
	Outgoing    map[string][]*TransitionDefinition // sourceKey -> 出边
	Incoming    map[string][]*TransitionDefinition // targetKey -> 入边
	StartKeys   []string                           // 没有入边的节点,流程起点
}

// ProcessDefinitionConfig 流程定义配置,JSON可加载
// 只描述状态机要消费的图结构,不涉及BPMN XML
type ProcessDefinitionConfig struct {
	ID          int64                         `json:"id" validate:"gt=0"`
	Name        string                        `json:"name" validate:"required"`
	Nodes       []*FlowNodeDefinitionConfig   `json:"nodes" validate:"required,dive"`
	Transitions []*TransitionDefinitionConfig `json:"transitions" validate:"dive"`
}

type FlowNodeDefinitionConfig struct {
	Key         string `json:"key" validate:"required"`
	Name        string `json:"name"`
	Kind        string `json:"kind" validate:"required,oneof=activity gateway event"`
	GatewayType string `json:"gateway_type" validate:"omitempty,oneof=exclusive parallel inclusive"`
}

type TransitionDefinitionConfig struct {
	Index     int64  `json:"index" validate:"gt=0"`
	Name      string `json:"name"`
	SourceKey string `json:"source_key" validate:"required"`
	TargetKey string `json:"target_key" validate:"required"`
}

// DefinitionRegistry 流程定义注册表,实例持有,显式注入
// 不用包级单例: 上层通过EngineServices把它传给需要的组件
type DefinitionRegistry struct {
	mu          sync.RWMutex
	definitions map[int64]*ProcessDefinition
}

func NewDefinitionRegistry() *DefinitionRegistry {
	return &DefinitionRegistry{
		definitions: make(map[int64]*ProcessDefinition),
	}
}

/**
 * @description: 加载流程定义配置,构建运行时图结构
 *               校验: 节点key唯一,迁移index唯一,迁移两端的节点都存在,至少有一个起点
 * @param config *ProcessDefinitionConfig
 * @return error
 */
func (r *DefinitionRegistry) Load(config *ProcessDefinitionConfig) error {
	if config == nil {
		return errors.Wrap(ErrEngineParamInvalid, "Load failed, config is nil")
	}
	if err := validatorUtil.Struct(config); err != nil {
		return errors.Wrapf(ErrEngineParamInvalid, "Load failed, config: %v, err: %v", config, err)
	}

	definition := &ProcessDefinition{
		ID:          config.ID,
		Name:        config.Name,
		Nodes:       make(map[string]*FlowNodeDefinition),
		Transitions: make(map[int64]*TransitionDefinition),
		Outgoing:    make(map[string][]*TransitionDefinition),
		Incoming:    make(map[string][]*TransitionDefinition),
	}
	for _, node := range config.Nodes {
		if _, ok := definition.Nodes[node.Key]; ok {
			return errors.Wrapf(ErrEngineParamInvalid, "duplicate node key: %s, processDefinitionID: %d", node.Key, config.ID)
		}
		if node.Kind == FlowNodeKindGateway && node.GatewayType == "" {
			return errors.Wrapf(ErrEngineParamInvalid, "gateway node %s needs gateway_type, processDefinitionID: %d", node.Key, config.ID)
		}
		definition.Nodes[node.Key] = &FlowNodeDefinition{
			Key:         node.Key,
			Name:        node.Name,
			Kind:        node.Kind,
			GatewayType: node.GatewayType,
		}
	}
	for _, transition := range config.Transitions {
		if _, ok := definition.Transitions[transition.Index]; ok {
			return errors.Wrapf(ErrEngineParamInvalid, "duplicate transition index: %d, processDefinitionID: %d", transition.Index, config.ID)
		}
		if _, ok := definition.Nodes[transition.SourceKey]; !ok {
			return errors.Wrapf(ErrEngineParamInvalid, "transition %d source node not found: %s, processDefinitionID: %d", transition.Index, transition.SourceKey, config.ID)
		}
		if _, ok := definition.Nodes[transition.TargetKey]; !ok {
			return errors.Wrapf(ErrEngineParamInvalid, "transition %d target node not found: %s, processDefinitionID: %d", transition.Index, transition.TargetKey, config.ID)
		}
		td := &TransitionDefinition{
			Index:     transition.Index,
			Name:      transition.Name,
			SourceKey: transition.SourceKey,
			TargetKey: transition.TargetKey,
		}
		definition.Transitions[transition.Index] = td
		definition.Outgoing[transition.SourceKey] = append(definition.Outgoing[transition.SourceKey], td)
		definition.Incoming[transition.TargetKey] = append(definition.Incoming[transition.TargetKey], td)
	}
	// 起点: 没有入边的节点
	for _, node := range config.Nodes {
		if len(definition.Incoming[node.Key]) == 0 {
			definition.StartKeys = append(definition.StartKeys, node.Key)
		}
	}
	if len(definition.StartKeys) == 0 {
		return errors.Wrapf(ErrEngineParamInvalid, "process definition %d has no start node, please check transitions for cycles", config.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.definitions[config.ID]; ok {
		return errors.WithMessagef(ErrProcessDefinitionAlreadyRegistered, "processDefinitionID: %d", config.ID)
	}
	r.definitions[config.ID] = definition
	return nil
}

// Get 按id取流程定义,不存在返回ErrProcessDefinitionNotFound
func (r *DefinitionRegistry) Get(processDefinitionID int64) (*ProcessDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	definition, ok := r.definitions[processDefinitionID]
	if !ok {
		return nil, errors.WithMessagef(ErrProcessDefinitionNotFound, "processDefinitionID: %d", processDefinitionID)
	}
	return definition, nil
}

// RegisterWorker 给活动节点挂业务逻辑,重复注册是错误
func (r *DefinitionRegistry) RegisterWorker(processDefinitionID int64, nodeKey string, worker ActivityWorker) error {
	if worker == nil {
		return errors.Wrap(ErrEngineParamInvalid, "RegisterWorker failed, worker is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	definition, ok := r.definitions[processDefinitionID]
	if !ok {
		return errors.WithMessagef(ErrProcessDefinitionNotFound, "processDefinitionID: %d", processDefinitionID)
	}
	node, ok := definition.Nodes[nodeKey]
	if !ok {
		return errors.Wrapf(ErrEngineParamInvalid, "node not found: %s, processDefinitionID: %d", nodeKey, processDefinitionID)
	}
	if node.Worker != nil {
		return errors.Wrapf(ErrEngineParamInvalid, "worker already registered, nodeKey: %s, processDefinitionID: %d", nodeKey, processDefinitionID)
	}
	node.Worker = worker
	return nil
}

// RegisterCondition 给迁移挂条件函数,不注册的迁移恒真
func (r *DefinitionRegistry) RegisterCondition(processDefinitionID int64, transitionIndex int64, condition ConditionFunc) error {
	if condition == nil {
		return errors.Wrap(ErrEngineParamInvalid, "RegisterCondition failed, condition is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	definition, ok := r.definitions[processDefinitionID]
	if !ok {
		return errors.WithMessagef(ErrProcessDefinitionNotFound, "processDefinitionID: %d", processDefinitionID)
	}
	transition, ok := definition.Transitions[transitionIndex]
	if !ok {
		return errors.Wrapf(ErrEngineParamInvalid, "transition not found: %d, processDefinitionID: %d", transitionIndex, processDefinitionID)
	}
	transition.Condition = condition
	return nil
}

// IsMergeSatisfied 网关合并策略: parallel要求所有入边都命中(AND),
// exclusive/inclusive命中任意一条即满足(OR)
func IsMergeSatisfied(definition *ProcessDefinition, gatewayKey string, gatewayType GatewayType, hitBys string) bool {
	incoming := definition.Incoming[gatewayKey]
	hits := ParseHitBys(hitBys)
	hitSet := make(map[int64]struct{}, len(hits))
	for _, hit := range hits {
		hitSet[hit] = struct{}{}
	}
	if gatewayType == GatewayTypeParallel {
		for _, transition := range incoming {
			if _, ok := hitSet[transition.Index]; !ok {
				return false
			}
		}
		return len(incoming) > 0
	}
	return len(hitSet) > 0
}
