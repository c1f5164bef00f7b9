package bpm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func validTestConfig() *ProcessDefinitionConfig {
	configJson := `{
		"id": 1,
		"name": "测试流程",
		"nodes": [
			{"key": "start", "name": "开始", "kind": "activity"},
			{"key": "join", "name": "汇聚", "kind": "gateway", "gateway_type": "parallel"},
			{"key": "end", "name": "结束", "kind": "activity"}
		],
		"transitions": [
			{"index": 1, "source_key": "start", "target_key": "join"},
			{"index": 2, "source_key": "join", "target_key": "end"}
		]
	}`
	config := &ProcessDefinitionConfig{}
	if err := json.Unmarshal([]byte(configJson), config); err != nil {
		panic(err)
	}
	return config
}

func TestDefinitionRegistry_Load(t *testing.T) {
	t.Run("合法配置加载成功", func(t *testing.T) {
		registry := NewDefinitionRegistry()
		require.NoError(t, registry.Load(validTestConfig()))

		definition, err := registry.Get(1)
		require.NoError(t, err)
		require.Len(t, definition.Nodes, 3)
		require.Len(t, definition.Transitions, 2)
		// start没有入边,是流程起点
		require.Equal(t, []string{"start"}, definition.StartKeys)
		// 出边/入边索引
		require.Len(t, definition.Outgoing["start"], 1)
		require.Len(t, definition.Incoming["join"], 1)
	})

	t.Run("重复加载返回已注册错误", func(t *testing.T) {
		registry := NewDefinitionRegistry()
		require.NoError(t, registry.Load(validTestConfig()))
		err := registry.Load(validTestConfig())
		require.ErrorIs(t, err, ErrProcessDefinitionAlreadyRegistered)
	})

	t.Run("节点key重复加载失败", func(t *testing.T) {
		registry := NewDefinitionRegistry()
		config := validTestConfig()
		config.Nodes = append(config.Nodes, &FlowNodeDefinitionConfig{Key: "start", Kind: "activity"})
		require.Error(t, registry.Load(config))
	})

	t.Run("迁移端点不存在加载失败", func(t *testing.T) {
		registry := NewDefinitionRegistry()
		config := validTestConfig()
		config.Transitions = append(config.Transitions, &TransitionDefinitionConfig{
			Index: 3, SourceKey: "end", TargetKey: "ghost",
		})
		require.Error(t, registry.Load(config))
	})

	t.Run("网关缺少gateway_type加载失败", func(t *testing.T) {
		registry := NewDefinitionRegistry()
		config := validTestConfig()
		config.Nodes[1].GatewayType = ""
		require.Error(t, registry.Load(config))
	})

	t.Run("未注册的定义返回未找到", func(t *testing.T) {
		registry := NewDefinitionRegistry()
		_, err := registry.Get(999)
		require.ErrorIs(t, err, ErrProcessDefinitionNotFound)
	})
}

func TestDefinitionRegistry_RegisterWorker(t *testing.T) {
	registry := NewDefinitionRegistry()
	require.NoError(t, registry.Load(validTestConfig()))

	t.Run("注册到活动节点成功", func(t *testing.T) {
		err := registry.RegisterWorker(1, "start", func(ctx context.Context, variables *JSONContext) error {
			return nil
		})
		require.NoError(t, err)

		definition, err := registry.Get(1)
		require.NoError(t, err)
		require.NotNil(t, definition.Nodes["start"].Worker)
	})

	t.Run("注册到不存在的节点失败", func(t *testing.T) {
		err := registry.RegisterWorker(1, "ghost", func(ctx context.Context, variables *JSONContext) error {
			return nil
		})
		require.Error(t, err)
	})
}

func TestDefinitionRegistry_RegisterCondition(t *testing.T) {
	registry := NewDefinitionRegistry()
	require.NoError(t, registry.Load(validTestConfig()))

	require.NoError(t, registry.RegisterCondition(1, 1, func(variables *JSONContext) (bool, error) {
		return true, nil
	}))
	require.Error(t, registry.RegisterCondition(1, 999, func(variables *JSONContext) (bool, error) {
		return true, nil
	}))
}

func TestIsMergeSatisfied(t *testing.T) {
	registry := NewDefinitionRegistry()
	configJson := `{
		"id": 2,
		"name": "并行汇聚",
		"nodes": [
			{"key": "a", "kind": "activity"},
			{"key": "b", "kind": "activity"},
			{"key": "join", "kind": "gateway", "gateway_type": "parallel"},
			{"key": "pick", "kind": "gateway", "gateway_type": "exclusive"},
			{"key": "end", "kind": "activity"}
		],
		"transitions": [
			{"index": 1, "source_key": "a", "target_key": "join"},
			{"index": 2, "source_key": "b", "target_key": "join"},
			{"index": 3, "source_key": "a", "target_key": "pick"},
			{"index": 4, "source_key": "b", "target_key": "pick"},
			{"index": 5, "source_key": "join", "target_key": "end"}
		]
	}`
	config := &ProcessDefinitionConfig{}
	require.NoError(t, json.Unmarshal([]byte(configJson), config))
	require.NoError(t, registry.Load(config))
	definition, err := registry.Get(2)
	require.NoError(t, err)

	t.Run("parallel要求所有入边命中", func(t *testing.T) {
		require.False(t, IsMergeSatisfied(definition, "join", GatewayTypeParallel, ""))
		require.False(t, IsMergeSatisfied(definition, "join", GatewayTypeParallel, "1"))
		require.True(t, IsMergeSatisfied(definition, "join", GatewayTypeParallel, "1,2"))
		// 顺序无关
		require.True(t, IsMergeSatisfied(definition, "join", GatewayTypeParallel, "2,1"))
	})

	t.Run("exclusive任一命中即满足", func(t *testing.T) {
		require.False(t, IsMergeSatisfied(definition, "pick", GatewayTypeExclusive, ""))
		require.True(t, IsMergeSatisfied(definition, "pick", GatewayTypeExclusive, "3"))
		require.True(t, IsMergeSatisfied(definition, "pick", GatewayTypeExclusive, "4"))
	})
}
