package bpm

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ProcessInstancePo 流程实例,逻辑分组(logical group)祖先id的持有者
type ProcessInstancePo struct {
	ID                      int64                 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ProcessDefinitionID     int64                 `gorm:"column:process_definition_id" json:"process_definition_id"`
	RootProcessInstanceID   int64                 `gorm:"column:root_process_instance_id" json:"root_process_instance_id"`
	ParentProcessInstanceID int64                 `gorm:"column:parent_process_instance_id" json:"parent_process_instance_id"`
	Status                  ProcessInstanceStatus `gorm:"column:status" json:"status"`
	Variables               []byte                `gorm:"column:variables" json:"variables"` // 流程变量,迁移条件求值的输入
	StartedBy               string                `gorm:"column:started_by" json:"started_by"`
	CreatedAt               int64                 `gorm:"column:created_at" json:"created_at"`
	UpdatedAt               int64                 `gorm:"column:updated_at" json:"updated_at"`
}

func (ProcessInstancePo) TableName() string {
	return "process_instance"
}

// FlowNodeInstancePo 流程节点实例,活动/网关/事件共用一张表,kind做区分
// gateway_type和hit_bys只有网关节点使用
type FlowNodeInstancePo struct {
	ID                 int64         `gorm:"column:id;primaryKey;autoIncrement"`
	Name               string        `gorm:"column:name"`
	Kind               FlowNodeKind  `gorm:"column:kind"`
	StateID            int64         `gorm:"column:state_id"`
	PreviousStateID    int64         `gorm:"column:previous_state_id"`
	StateName          string        `gorm:"column:state_name"`
	Stable             bool          `gorm:"column:stable"`
	Terminal           bool          `gorm:"column:terminal"`
	StateCategory      StateCategory `gorm:"column:state_category"`
	StateExecuting     bool          `gorm:"column:state_executing"` // 正在被worker处理,防止重复派发
	ReachStateDate     int64         `gorm:"column:reach_state_date"`
	LastUpdateDate     int64         `gorm:"column:last_update_date"`
	ExpectedEndDate    int64         `gorm:"column:expected_end_date"`
	ExecutedBy         string        `gorm:"column:executed_by"`
	ExecutedByDelegate string        `gorm:"column:executed_by_delegate"`
	DisplayName        string        `gorm:"column:display_name"`
	DisplayDescription string        `gorm:"column:display_description"`
	TaskPriority       int64         `gorm:"column:task_priority"`
	// 逻辑分组: 冗余在每一行上的祖先id，免join快速过滤
	ProcessDefinitionID     int64 `gorm:"column:process_definition_id"`
	RootProcessInstanceID   int64 `gorm:"column:root_process_instance_id"`
	ParentProcessInstanceID int64 `gorm:"column:parent_process_instance_id"`
	ParentActivityID        int64 `gorm:"column:parent_activity_instance_id"`
	// 网关专用字段
	GatewayType GatewayType `gorm:"column:gateway_type"`
	HitBys      string      `gorm:"column:hit_bys"` // 逗号拼接的迁移index,按到达顺序追加
	// 节点定义key和变量
	DefinitionKey string `gorm:"column:definition_key"`
	Variables     []byte `gorm:"column:variables"`
	CreatedAt     int64  `gorm:"column:created_at"`
}

func (FlowNodeInstancePo) TableName() string {
	return "flow_node_instance"
}

// ArchivedFlowNodeInstancePo 归档表,终态节点关闭后整行搬过来,只读
type ArchivedFlowNodeInstancePo struct {
	ID                      int64         `gorm:"column:id;primaryKey;autoIncrement"`
	SourceObjectID          int64         `gorm:"column:source_object_id"` // 原live行的id
	Name                    string        `gorm:"column:name"`
	Kind                    FlowNodeKind  `gorm:"column:kind"`
	StateID                 int64         `gorm:"column:state_id"`
	PreviousStateID         int64         `gorm:"column:previous_state_id"`
	StateName               string        `gorm:"column:state_name"`
	Stable                  bool          `gorm:"column:stable"`
	StateCategory           StateCategory `gorm:"column:state_category"`
	ReachStateDate          int64         `gorm:"column:reach_state_date"`
	LastUpdateDate          int64         `gorm:"column:last_update_date"`
	ExpectedEndDate         int64         `gorm:"column:expected_end_date"`
	ExecutedBy              string        `gorm:"column:executed_by"`
	ExecutedByDelegate      string        `gorm:"column:executed_by_delegate"`
	DisplayName             string        `gorm:"column:display_name"`
	DisplayDescription      string        `gorm:"column:display_description"`
	TaskPriority            int64         `gorm:"column:task_priority"`
	ProcessDefinitionID     int64         `gorm:"column:process_definition_id"`
	RootProcessInstanceID   int64         `gorm:"column:root_process_instance_id"`
	ParentProcessInstanceID int64         `gorm:"column:parent_process_instance_id"`
	ParentActivityID        int64         `gorm:"column:parent_activity_instance_id"`
	GatewayType             GatewayType   `gorm:"column:gateway_type"`
	HitBys                  string        `gorm:"column:hit_bys"`
	DefinitionKey           string        `gorm:"column:definition_key"`
	Variables               []byte        `gorm:"column:variables"`
	ArchiveDate             int64         `gorm:"column:archive_date"`
}

func (ArchivedFlowNodeInstancePo) TableName() string {
	return "arch_flow_node_instance"
}

// TransitionInstancePo 迁移实例,一次token走边的在途工作记录,执行完成后删除
type TransitionInstancePo struct {
	ID                      int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name                    string `gorm:"column:name"`
	TransitionIndex         int64  `gorm:"column:transition_index"`
	SourceKey               string `gorm:"column:source_key"`
	TargetKey               string `gorm:"column:target_key"`
	ProcessDefinitionID     int64  `gorm:"column:process_definition_id"`
	RootProcessInstanceID   int64  `gorm:"column:root_process_instance_id"`
	ParentProcessInstanceID int64  `gorm:"column:parent_process_instance_id"`
	CreatedAt               int64  `gorm:"column:created_at"`
}

func (TransitionInstancePo) TableName() string {
	return "transition_instance"
}

type Pager struct {
	IsNoLimit *bool `json:"is_no_limit"`
	Page      int64 `json:"page"`
	Size      int64 `json:"size"`
}

type QueryProcessInstanceParams struct {
	ProcessInstanceID *int64   `json:"process_instance_id"`
	StatusIn          []string `json:"status_in"`
	OrderbyIDAsc      *bool    `json:"orderby_id_asc"`
	Page              *Pager   `json:"page"`
}

type QueryFlowNodeInstanceParams struct {
	FlowNodeInstanceID    *int64   `json:"flow_node_instance_id"`
	RootProcessInstanceID *int64   `json:"root_process_instance_id"`
	DefinitionKey         *string  `json:"definition_key"`
	Kind                  *string  `json:"kind"`
	StateIDIn             []int64  `json:"state_id_in"`
	StateCategoryIn       []string `json:"state_category_in"`
	Terminal              *bool    `json:"terminal"`
	Stable                *bool    `json:"stable"`
	StateExecuting        *bool    `json:"state_executing"`
	OrderbyIDAsc          *bool    `json:"orderby_id_asc"`
	Page                  *Pager   `json:"page"`
}

type QueryArchivedFlowNodeInstanceParams struct {
	SourceObjectID        *int64 `json:"source_object_id"`
	RootProcessInstanceID *int64 `json:"root_process_instance_id"`
	OrderbyIDAsc          *bool  `json:"orderby_id_asc"`
	Page                  *Pager `json:"page"`
}

type QueryTransitionInstanceParams struct {
	TransitionInstanceID  *int64 `json:"transition_instance_id"`
	ProcessDefinitionID   *int64 `json:"process_definition_id"`
	RootProcessInstanceID *int64 `json:"root_process_instance_id"`
	OrderbyIDAsc          *bool  `json:"orderby_id_asc"`
	Page                  *Pager `json:"page"`
}

type UpdateProcessInstanceParams struct {
	Where    *UpdateProcessInstanceWhere `json:"where" validate:"required"`
	Fields   *UpdateProcessInstanceField `json:"field" validate:"required"`
	LimitMax int                         `json:"limit_max" validate:"required"`
}

type UpdateProcessInstanceWhere struct {
	IDIn     []int64  `json:"id_in"`
	StatusIn []string `json:"status_in"`
}

type UpdateProcessInstanceField struct {
	Status *string `json:"status"`
	// RootProcessInstanceID 根流程插入后才知道自己的id,需要回填
	RootProcessInstanceID *int64       `json:"root_process_instance_id"`
	Variables             *JSONContext `json:"variables"`
}

type UpdateFlowNodeInstanceParams struct {
	Where    *UpdateFlowNodeInstanceWhere `json:"where" validate:"required"`
	Fields   *UpdateFlowNodeInstanceField `json:"field" validate:"required"`
	LimitMax int                          `json:"limit_max" validate:"required"`
}

type UpdateFlowNodeInstanceWhere struct {
	IDIn []int64 `json:"id_in"`
}

// UpdateFlowNodeInstanceField 字段补丁: 只有非nil的字段会进update语句
// 统一策略: 一个字段都没有set是错误(ErrNoFieldsToUpdate)，不会静默忽略
type UpdateFlowNodeInstanceField struct {
	StateID            *int64       `json:"state_id"`
	PreviousStateID    *int64       `json:"previous_state_id"`
	StateName          *string      `json:"state_name"`
	Stable             *bool        `json:"stable"`
	Terminal           *bool        `json:"terminal"`
	StateCategory      *string      `json:"state_category"`
	StateExecuting     *bool        `json:"state_executing"`
	ReachStateDate     *int64       `json:"reach_state_date"`
	ExpectedEndDate    *int64       `json:"expected_end_date"`
	ExecutedBy         *string      `json:"executed_by"`
	ExecutedByDelegate *string      `json:"executed_by_delegate"`
	DisplayName        *string      `json:"display_name"`
	DisplayDescription *string      `json:"display_description"`
	TaskPriority       *int64       `json:"task_priority"`
	HitBys             *string      `json:"hit_bys"`
	Variables          *JSONContext `json:"variables"`
}

type instanceRepo struct {
	db *gorm.DB
}

func NewInstanceRepo(db *gorm.DB) InstanceRepo {
	return &instanceRepo{
		db: db,
	}
}

func (r *instanceRepo) CreateProcessInstance(ctx context.Context, processInstance *ProcessInstancePo) (*ProcessInstancePo, error) {
	if processInstance == nil {
		return nil, errors.New("nil ProcessInstancePo")
	}
	processInstance.CreatedAt = time.Now().Unix()
	processInstance.UpdatedAt = time.Now().Unix()
	if err := r.GetDBWithContext(ctx).Create(processInstance).Error; err != nil {
		return nil, errors.WithMessage(err, "CreateProcessInstance failed")
	}
	return processInstance, nil
}

func buildQueryProcessInstanceParams(db *gorm.DB, param *QueryProcessInstanceParams) (*gorm.DB, error) {
	if param == nil {
		return nil, errors.New("nil QueryProcessInstanceParams")
	}
	if param.ProcessInstanceID != nil {
		db = db.Where("id = ?", param.ProcessInstanceID)
	}
	if len(param.StatusIn) != 0 {
		db = db.Where("status IN ?", param.StatusIn)
	}
	if param.OrderbyIDAsc != nil {
		if *param.OrderbyIDAsc {
			db = db.Order("id asc")
		} else {
			db = db.Order("id desc")
		}
	}
	db, err := applyPager(db, param.Page)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func applyPager(db *gorm.DB, page *Pager) (*gorm.DB, error) {
	if page == nil {
		return nil, errors.New("page is nil")
	}
	if page.IsNoLimit != nil && *page.IsNoLimit {
		return db, nil
	}
	if page.Page == 0 {
		page.Page = 1
	}
	if page.Size == 0 {
		page.Size = 10
	}
	return db.Offset(int(page.Page-1) * int(page.Size)).Limit(int(page.Size)), nil
}

func (r *instanceRepo) QueryProcessInstance(ctx context.Context, param *QueryProcessInstanceParams) ([]*ProcessInstancePo, error) {
	db := r.GetDBWithContext(ctx).Model(&ProcessInstancePo{})
	db, err := buildQueryProcessInstanceParams(db, param)
	if err != nil {
		return nil, errors.WithMessage(err, "buildQueryProcessInstanceParams failed")
	}
	pos := make([]*ProcessInstancePo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, errors.WithMessagef(ErrReadFailure, "QueryProcessInstance failed, err: %v", err)
	}
	return pos, nil
}

func (r *instanceRepo) UpdateProcessInstance(ctx context.Context, param *UpdateProcessInstanceParams) error {
	if param == nil {
		return errors.New("nil UpdateProcessInstanceParams")
	}
	if param.Where == nil || len(param.Where.IDIn) == 0 && len(param.Where.StatusIn) == 0 {
		return errors.New("update process instance need where condition, please check")
	}
	db := r.GetDBWithContext(ctx).Model(&ProcessInstancePo{})
	if len(param.Where.IDIn) > 0 {
		db = db.Where("id IN ?", param.Where.IDIn)
	}
	if len(param.Where.StatusIn) > 0 {
		db = db.Where("status IN ?", param.Where.StatusIn)
	}
	updateFields := make(map[string]any)
	if param.Fields == nil {
		return errors.New("fields is nil")
	}
	if param.Fields.Status != nil {
		updateFields["status"] = *param.Fields.Status
	}
	if param.Fields.RootProcessInstanceID != nil {
		updateFields["root_process_instance_id"] = *param.Fields.RootProcessInstanceID
	}
	if param.Fields.Variables != nil {
		jsonData, err := param.Fields.Variables.ToBytes()
		if err != nil {
			return errors.WithMessage(err, "Marshal fields.Variables failed")
		}
		updateFields["variables"] = jsonData
	}
	if len(updateFields) == 0 {
		return ErrNoFieldsToUpdate
	}
	updateFields["updated_at"] = time.Now().Unix()
	if err := db.Updates(updateFields).Limit(param.LimitMax).Error; err != nil {
		return errors.WithMessage(err, "UpdateProcessInstance failed")
	}
	return nil
}

func (r *instanceRepo) CreateFlowNodeInstance(ctx context.Context, flowNodeInstance *FlowNodeInstancePo) (*FlowNodeInstancePo, error) {
	if flowNodeInstance == nil {
		return nil, errors.New("nil FlowNodeInstancePo")
	}
	now := time.Now().Unix()
	flowNodeInstance.CreatedAt = now
	flowNodeInstance.ReachStateDate = now
	flowNodeInstance.LastUpdateDate = now
	if err := r.GetDBWithContext(ctx).Create(flowNodeInstance).Error; err != nil {
		return nil, errors.WithMessage(err, "CreateFlowNodeInstance failed")
	}
	return flowNodeInstance, nil
}

func buildQueryFlowNodeInstanceParams(db *gorm.DB, isCount bool, param *QueryFlowNodeInstanceParams) (*gorm.DB, error) {
	if param == nil {
		return nil, errors.New("nil QueryFlowNodeInstanceParams")
	}
	if param.FlowNodeInstanceID != nil {
		db = db.Where("id = ?", param.FlowNodeInstanceID)
	}
	if param.RootProcessInstanceID != nil {
		db = db.Where("root_process_instance_id = ?", param.RootProcessInstanceID)
	}
	if param.DefinitionKey != nil {
		db = db.Where("definition_key = ?", param.DefinitionKey)
	}
	if param.Kind != nil {
		db = db.Where("kind = ?", param.Kind)
	}
	if len(param.StateIDIn) != 0 {
		db = db.Where("state_id IN ?", param.StateIDIn)
	}
	if len(param.StateCategoryIn) != 0 {
		db = db.Where("state_category IN ?", param.StateCategoryIn)
	}
	if param.Terminal != nil {
		db = db.Where("terminal = ?", param.Terminal)
	}
	if param.Stable != nil {
		db = db.Where("stable = ?", param.Stable)
	}
	if param.StateExecuting != nil {
		db = db.Where("state_executing = ?", param.StateExecuting)
	}
	if param.OrderbyIDAsc != nil && !isCount {
		if *param.OrderbyIDAsc {
			db = db.Order("id asc")
		} else {
			db = db.Order("id desc")
		}
	}
	if !isCount {
		return applyPager(db, param.Page)
	}
	return db, nil
}

func (r *instanceRepo) QueryFlowNodeInstance(ctx context.Context, param *QueryFlowNodeInstanceParams) ([]*FlowNodeInstancePo, error) {
	db := r.GetDBWithContext(ctx).Model(&FlowNodeInstancePo{})
	db, err := buildQueryFlowNodeInstanceParams(db, false, param)
	if err != nil {
		return nil, errors.WithMessage(err, "buildQueryFlowNodeInstanceParams failed")
	}
	pos := make([]*FlowNodeInstancePo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, errors.WithMessagef(ErrReadFailure, "QueryFlowNodeInstance failed, err: %v", err)
	}
	return pos, nil
}

func (r *instanceRepo) CountFlowNodeInstance(ctx context.Context, param *QueryFlowNodeInstanceParams) (int64, error) {
	db := r.GetDBWithContext(ctx).Model(&FlowNodeInstancePo{})
	db, err := buildQueryFlowNodeInstanceParams(db, true, param)
	if err != nil {
		return 0, errors.WithMessage(err, "buildQueryFlowNodeInstanceParams failed")
	}
	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, errors.WithMessagef(ErrReadFailure, "CountFlowNodeInstance failed, err: %v", err)
	}
	return count, nil
}

func buildUpdateFlowNodeInstanceFields(fields *UpdateFlowNodeInstanceField) (map[string]any, error) {
	if fields == nil {
		return nil, errors.New("fields is nil")
	}
	updateFields := make(map[string]any)
	if fields.StateID != nil {
		updateFields["state_id"] = *fields.StateID
	}
	if fields.PreviousStateID != nil {
		updateFields["previous_state_id"] = *fields.PreviousStateID
	}
	if fields.StateName != nil {
		updateFields["state_name"] = *fields.StateName
	}
	if fields.Stable != nil {
		updateFields["stable"] = *fields.Stable
	}
	if fields.Terminal != nil {
		updateFields["terminal"] = *fields.Terminal
	}
	if fields.StateCategory != nil {
		updateFields["state_category"] = *fields.StateCategory
	}
	if fields.StateExecuting != nil {
		updateFields["state_executing"] = *fields.StateExecuting
	}
	if fields.ReachStateDate != nil {
		updateFields["reach_state_date"] = *fields.ReachStateDate
	}
	if fields.ExpectedEndDate != nil {
		updateFields["expected_end_date"] = *fields.ExpectedEndDate
	}
	if fields.ExecutedBy != nil {
		updateFields["executed_by"] = *fields.ExecutedBy
	}
	if fields.ExecutedByDelegate != nil {
		updateFields["executed_by_delegate"] = *fields.ExecutedByDelegate
	}
	if fields.DisplayName != nil {
		updateFields["display_name"] = *fields.DisplayName
	}
	if fields.DisplayDescription != nil {
		updateFields["display_description"] = *fields.DisplayDescription
	}
	if fields.TaskPriority != nil {
		updateFields["task_priority"] = *fields.TaskPriority
	}
	if fields.HitBys != nil {
		updateFields["hit_bys"] = *fields.HitBys
	}
	if fields.Variables != nil {
		jsonData, err := fields.Variables.ToBytes()
		if err != nil {
			return nil, errors.WithMessage(err, "Marshal fields.Variables failed")
		}
		updateFields["variables"] = jsonData
	}
	if len(updateFields) == 0 {
		return nil, ErrNoFieldsToUpdate
	}
	updateFields["last_update_date"] = time.Now().Unix()
	return updateFields, nil
}

func (r *instanceRepo) UpdateFlowNodeInstance(ctx context.Context, param *UpdateFlowNodeInstanceParams) error {
	if param == nil {
		return errors.New("nil UpdateFlowNodeInstanceParams")
	}
	if param.Where == nil || len(param.Where.IDIn) == 0 {
		return errors.New("update flow node instance need where condition, please check")
	}
	db := r.GetDBWithContext(ctx).Model(&FlowNodeInstancePo{}).Where("id IN ?", param.Where.IDIn)
	updateFields, err := buildUpdateFlowNodeInstanceFields(param.Fields)
	if err != nil {
		return errors.WithMessage(err, "buildUpdateFlowNodeInstanceFields failed")
	}
	if err := db.Updates(updateFields).Limit(param.LimitMax).Error; err != nil {
		return errors.WithMessage(err, "UpdateFlowNodeInstance failed")
	}
	return nil
}

func (r *instanceRepo) DeleteFlowNodeInstance(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return errors.New("delete flow node instance need ids, please check")
	}
	if err := r.GetDBWithContext(ctx).Where("id IN ?", ids).Delete(&FlowNodeInstancePo{}).Error; err != nil {
		return errors.WithMessage(err, "DeleteFlowNodeInstance failed")
	}
	return nil
}

func (r *instanceRepo) CreateArchivedFlowNodeInstance(ctx context.Context, archived *ArchivedFlowNodeInstancePo) (*ArchivedFlowNodeInstancePo, error) {
	if archived == nil {
		return nil, errors.New("nil ArchivedFlowNodeInstancePo")
	}
	archived.ArchiveDate = time.Now().Unix()
	if err := r.GetDBWithContext(ctx).Create(archived).Error; err != nil {
		return nil, errors.WithMessage(err, "CreateArchivedFlowNodeInstance failed")
	}
	return archived, nil
}

func (r *instanceRepo) QueryArchivedFlowNodeInstance(ctx context.Context, param *QueryArchivedFlowNodeInstanceParams) ([]*ArchivedFlowNodeInstancePo, error) {
	if param == nil {
		return nil, errors.New("nil QueryArchivedFlowNodeInstanceParams")
	}
	db := r.GetDBWithContext(ctx).Model(&ArchivedFlowNodeInstancePo{})
	if param.SourceObjectID != nil {
		db = db.Where("source_object_id = ?", param.SourceObjectID)
	}
	if param.RootProcessInstanceID != nil {
		db = db.Where("root_process_instance_id = ?", param.RootProcessInstanceID)
	}
	if param.OrderbyIDAsc != nil {
		if *param.OrderbyIDAsc {
			db = db.Order("id asc")
		} else {
			db = db.Order("id desc")
		}
	}
	db, err := applyPager(db, param.Page)
	if err != nil {
		return nil, err
	}
	pos := make([]*ArchivedFlowNodeInstancePo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, errors.WithMessagef(ErrReadFailure, "QueryArchivedFlowNodeInstance failed, err: %v", err)
	}
	return pos, nil
}

func (r *instanceRepo) CreateTransitionInstance(ctx context.Context, transitionInstance *TransitionInstancePo) (*TransitionInstancePo, error) {
	if transitionInstance == nil {
		return nil, errors.New("nil TransitionInstancePo")
	}
	transitionInstance.CreatedAt = time.Now().Unix()
	if err := r.GetDBWithContext(ctx).Create(transitionInstance).Error; err != nil {
		return nil, errors.WithMessage(err, "CreateTransitionInstance failed")
	}
	return transitionInstance, nil
}

func (r *instanceRepo) QueryTransitionInstance(ctx context.Context, param *QueryTransitionInstanceParams) ([]*TransitionInstancePo, error) {
	if param == nil {
		return nil, errors.New("nil QueryTransitionInstanceParams")
	}
	db := r.GetDBWithContext(ctx).Model(&TransitionInstancePo{})
	if param.TransitionInstanceID != nil {
		db = db.Where("id = ?", param.TransitionInstanceID)
	}
	if param.ProcessDefinitionID != nil {
		db = db.Where("process_definition_id = ?", param.ProcessDefinitionID)
	}
	if param.RootProcessInstanceID != nil {
		db = db.Where("root_process_instance_id = ?", param.RootProcessInstanceID)
	}
	if param.OrderbyIDAsc != nil {
		if *param.OrderbyIDAsc {
			db = db.Order("id asc")
		} else {
			db = db.Order("id desc")
		}
	}
	db, err := applyPager(db, param.Page)
	if err != nil {
		return nil, err
	}
	pos := make([]*TransitionInstancePo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, errors.WithMessagef(ErrReadFailure, "QueryTransitionInstance failed, err: %v", err)
	}
	return pos, nil
}

func (r *instanceRepo) DeleteTransitionInstance(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return errors.New("delete transition instance need ids, please check")
	}
	if err := r.GetDBWithContext(ctx).Where("id IN ?", ids).Delete(&TransitionInstancePo{}).Error; err != nil {
		return errors.WithMessage(err, "DeleteTransitionInstance failed")
	}
	return nil
}

type contextKey string

const (
	transactionContextKey contextKey = "transaction"
)

func (r *instanceRepo) GetDBWithContext(ctx context.Context) *gorm.DB {
	tx := ctx.Value(transactionContextKey)
	if tx == nil {
		// 没有事务，直接用原始连接
		return r.db.WithContext(ctx)
	}
	return tx.(*gorm.DB)
}

// Transaction 事务内执行fn,fn返回错误则回滚,否则提交
// 事务通过context透传,嵌套调用会复用外层事务
func (r *instanceRepo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	ctxTX := ctx.Value(transactionContextKey)
	var err error
	if ctxTX == nil {
		tx := r.db.Begin()
		defer func() {
			if err != nil {
				tx.Rollback()
			} else {
				tx.Commit()
			}
		}()
		newCtx := context.WithValue(ctx, transactionContextKey, tx)
		err = fn(newCtx)
		return err
	}
	return fn(ctx)
}
