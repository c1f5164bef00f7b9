package commonregister

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blingmoon/simple-bpm/bpm"
	"github.com/pkg/errors"
)

// OrderProcessDefinitionID 订单流程的定义id,示例和测试共用
const OrderProcessDefinitionID int64 = 1001

// RegisterOrderProcess 注册订单流程定义
// 流程结构：下单 -> (扣库存 || 扣余额) -> 并行汇聚 -> 发货
func RegisterOrderProcess(services *bpm.EngineServices) error {
	// 1. 定义流程配置
	processConfigJson := `{
		"id": 1001,
		"name": "订单流程",
		"nodes": [
			{
				"key": "place_order",
				"name": "下单",
				"kind": "activity"
			},
			{
				"key": "deduct_stock",
				"name": "扣库存",
				"kind": "activity"
			},
			{
				"key": "deduct_balance",
				"name": "扣余额",
				"kind": "activity"
			},
			{
				"key": "join",
				"name": "并行汇聚",
				"kind": "gateway",
				"gateway_type": "parallel"
			},
			{
				"key": "ship",
				"name": "发货",
				"kind": "activity"
			}
		],
		"transitions": [
			{"index": 1, "name": "去扣库存", "source_key": "place_order", "target_key": "deduct_stock"},
			{"index": 2, "name": "去扣余额", "source_key": "place_order", "target_key": "deduct_balance"},
			{"index": 3, "name": "库存就绪", "source_key": "deduct_stock", "target_key": "join"},
			{"index": 4, "name": "余额就绪", "source_key": "deduct_balance", "target_key": "join"},
			{"index": 5, "name": "去发货", "source_key": "join", "target_key": "ship"}
		]
	}`

	processConfig := &bpm.ProcessDefinitionConfig{}
	if err := json.Unmarshal([]byte(processConfigJson), processConfig); err != nil {
		return errors.Wrap(err, "unmarshal process config failed")
	}

	// 2. 加载流程定义
	if err := services.Definitions.Load(processConfig); err != nil {
		return errors.Wrap(err, "load process config failed")
	}

	// 3. 注册活动节点的业务逻辑
	err := services.Definitions.RegisterWorker(OrderProcessDefinitionID, "place_order",
		func(ctx context.Context, variables *bpm.JSONContext) error {
			fmt.Println("  [下单] 执行中...")
			variables.Set([]string{"order_time"}, time.Now().Format(time.RFC3339))
			variables.Set([]string{"status"}, "placed")
			fmt.Println("  [下单] 完成 ✓")
			return nil
		},
	)
	if err != nil {
		return errors.Wrap(err, "register place_order worker failed")
	}

	err = services.Definitions.RegisterWorker(OrderProcessDefinitionID, "deduct_stock",
		func(ctx context.Context, variables *bpm.JSONContext) error {
			fmt.Println("  [扣库存] 执行中...")
			variables.Set([]string{"stock_deducted"}, true)
			fmt.Println("  [扣库存] 完成 ✓")
			return nil
		},
	)
	if err != nil {
		return errors.Wrap(err, "register deduct_stock worker failed")
	}

	err = services.Definitions.RegisterWorker(OrderProcessDefinitionID, "deduct_balance",
		func(ctx context.Context, variables *bpm.JSONContext) error {
			fmt.Println("  [扣余额] 执行中...")
			variables.Set([]string{"balance_deducted"}, true)
			fmt.Println("  [扣余额] 完成 ✓")
			return nil
		},
	)
	if err != nil {
		return errors.Wrap(err, "register deduct_balance worker failed")
	}

	err = services.Definitions.RegisterWorker(OrderProcessDefinitionID, "ship",
		func(ctx context.Context, variables *bpm.JSONContext) error {
			fmt.Println("  [发货] 执行中...")
			variables.Set([]string{"shipped"}, true)
			fmt.Println("  [发货] 完成 ✓")
			return nil
		},
	)
	if err != nil {
		return errors.Wrap(err, "register ship worker failed")
	}

	return nil
}
