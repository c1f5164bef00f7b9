// Package bpm 提供流程引擎内核功能。
//
// 这是一个轻量级的 Go 流程引擎内核，管理流程节点实例的状态机、
// 网关合并、迁移派发以及崩溃重启恢复，支持持久化和多实例部署。
//
// 主要特性：
//   - 节点状态机：stateId/previousStateId 单步审计，stable/terminal 标记，终态节点自动归档
//   - 网关合并：hit_bys 按到达顺序追加迁移 index，parallel 全量合并，exclusive/inclusive 任一命中
//   - 迁移实例：在途工作记录，执行完成即删除，崩溃后靠扫描恢复
//   - 崩溃恢复：整页扫描循环 + 至少一次重派发，执行器幂等检查收敛重复派发
//   - 数据持久化：支持 GORM，可使用 MySQL、PostgreSQL、SQLite 等数据库
//   - 并发安全：流程实例级别的执行锁，支持本地锁和分布式锁（Redis）
//
// 基础使用示例:
//
//	package main
//
//	import (
//	    "context"
//	    "encoding/json"
//
//	    "github.com/blingmoon/simple-bpm/bpm"
//	    "gorm.io/driver/sqlite"
//	    "gorm.io/gorm"
//	)
//
//	func main() {
//	    // 1. 初始化数据库
//	    db, _ := gorm.Open(sqlite.Open("bpm.db"), &gorm.Config{})
//	    bpm.AutoMigrateTables(db)
//
//	    // 2. 装配引擎服务
//	    services, _ := bpm.NewEngineServices(&bpm.EngineConfig{DB: db})
//
//	    // 3. 加载流程定义
//	    configJSON := `{
//	        "id": 1,
//	        "name": "订单流程",
//	        "nodes": [
//	            {"key": "submit", "name": "提交订单", "kind": "activity"},
//	            {"key": "join", "name": "汇聚", "kind": "gateway", "gateway_type": "parallel"},
//	            {"key": "finish", "name": "完成", "kind": "activity"}
//	        ],
//	        "transitions": [
//	            {"index": 1, "source_key": "submit", "target_key": "join"},
//	            {"index": 2, "source_key": "join", "target_key": "finish"}
//	        ]
//	    }`
//	    config := &bpm.ProcessDefinitionConfig{}
//	    json.Unmarshal([]byte(configJSON), config)
//	    services.Definitions.Load(config)
//
//	    // 4. 注册活动节点的业务逻辑
//	    services.Definitions.RegisterWorker(1, "submit",
//	        func(ctx context.Context, variables *bpm.JSONContext) error {
//	            variables.Set([]string{"submitted"}, true)
//	            return nil
//	        },
//	    )
//
//	    // 5. 崩溃恢复(冷启动时执行一次)
//	    bpm.RunRestartHandlers(context.Background(), services,
//	        bpm.NewRestartFlowNodesHandler(),
//	        bpm.NewRestartTransitionsHandler(),
//	    )
//
//	    // 6. 启动流程实例
//	    services.Executor.StartProcess(context.Background(), &bpm.StartProcessReq{
//	        ProcessDefinitionID: 1,
//	        StartedBy:           "user-1",
//	        Variables:           map[string]any{"order_id": "ORDER-001"},
//	    })
//	}
//
// 状态机说明：
//
// 每个节点实例只通过 SetState 改变状态。SetState 会把当前 stateId 写进
// previousStateId，形成单步审计链；stable 表示状态可以安全停留，terminal
// 表示节点生命周期结束。terminal 状态的节点会被整行搬进归档表并从 live
// 表删除，保证 live 表只有在途工作。
//
// 崩溃恢复语义：
//
// 重启处理器在一个事务里整页扫描 live 表：非终态的节点实例和所有迁移实例
// 都会被重新注册为异步工作。派发语义是至少一次，执行器对终态/正在执行的
// 节点和已删除的迁移做幂等跳过。停在非稳定状态的节点从断点续跑：
// executing 的节点重跑 worker（至少一次），completing 的节点盘点出边后只补发
// 未兑现的部分。任何一页扫描失败都会回滚并返回
// RestartError，恢复不完整的引擎不允许继续服务。
//
// 更多示例和文档请访问: https://github.com/blingmoon/simple-bpm
package bpm
