package bpm

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// EngineServices 引擎服务集合,显式注入,不用包级单例
// 多租户部署时每个租户持有一套独立的EngineServices
type EngineServices struct {
	Repo        InstanceRepo
	FlowNodes   FlowNodeInstanceService
	Gateways    GatewayInstanceService
	Transitions TransitionService
	Definitions *DefinitionRegistry
	Events      EventService
	Works       WorkService
	Executor    ProcessExecutor
	Lock        EngineLock
}

// EngineConfig 引擎装配参数
type EngineConfig struct {
	DB *gorm.DB `validate:"required"`
	// Lock 为nil时使用进程内锁,单实例部署够用,多实例需要redis锁
	Lock EngineLock
	// Workers/QueueSize <=0 时使用默认值
	Workers   int
	QueueSize int
}

/**
 * @description: 装配一套完整的引擎服务
 *               依赖关系: repo -> (flowNodes,transitions) -> gateways -> executor
 *               executor和工作池互相引用,通过works在装配期先建好解开
 * @param config *EngineConfig
 * @return *EngineServices
 * @return error
 */
func NewEngineServices(config *EngineConfig) (*EngineServices, error) {
	if config == nil || config.DB == nil {
		return nil, errors.Wrap(ErrEngineParamInvalid, "NewEngineServices failed, db is required")
	}
	lock := config.Lock
	if lock == nil {
		lock = NewLocalEngineLock()
	}
	repo := NewInstanceRepo(config.DB)
	events := NewEventService()
	flowNodes := NewFlowNodeInstanceService(repo, events)
	gateways := NewGatewayInstanceService(repo, flowNodes)
	transitions := NewTransitionService(repo)
	definitions := NewDefinitionRegistry()
	works := NewWorkPool(config.Workers, config.QueueSize)
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
	}, nil
}

// AutoMigrateTables 初始化引擎需要的表结构
func AutoMigrateTables(db *gorm.DB) error {
	if db == nil {
		return errors.Wrap(ErrEngineParamInvalid, "AutoMigrateTables failed, db is nil")
	}
	if err := db.AutoMigrate(
		&ProcessInstancePo{},
		&FlowNodeInstancePo{},
		&ArchivedFlowNodeInstancePo{},
		&TransitionInstancePo{},
	); err != nil {
		return errors.WithMessage(err, "AutoMigrateTables failed")
	}
	return nil
}
