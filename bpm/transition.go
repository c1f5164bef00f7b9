package bpm

import (
	"context"

	"github.com/pkg/errors"
)

// CreateTransitionInstanceReq 创建迁移实例参数,逻辑分组id必填
type CreateTransitionInstanceReq struct {
	Name                    string `json:"name"`
	TransitionIndex         int64  `json:"transition_index" validate:"gt=0"`
	SourceKey               string `json:"source_key" validate:"required"`
	TargetKey               string `json:"target_key" validate:"required"`
	ProcessDefinitionID     int64  `json:"process_definition_id" validate:"gt=0"`
	RootProcessInstanceID   int64  `json:"root_process_instance_id" validate:"gt=0"`
	ParentProcessInstanceID int64  `json:"parent_process_instance_id"`
}

type TransitionService interface {
	CreateTransitionInstance(ctx context.Context, req *CreateTransitionInstanceReq) (*TransitionInstancePo, error)
	// GetTransitionInstance 不存在返回ErrTransitionInstanceNotFound
	GetTransitionInstance(ctx context.Context, transitionInstanceID int64) (*TransitionInstancePo, error)
	// DeleteTransitionInstance 迁移执行完毕后删除,迁移实例是在途工作记录,不是审计记录
	DeleteTransitionInstance(ctx context.Context, transitionInstanceID int64) error
	// SearchTransitionInstances 重启扫描用的分页查询,所有存活的迁移实例都是候选
	SearchTransitionInstances(ctx context.Context, page QueryOptions) ([]*TransitionInstancePo, error)
	GetTransitionInstancesOfProcess(ctx context.Context, rootProcessInstanceID int64) ([]*TransitionInstancePo, error)
}

type transitionService struct {
	repo InstanceRepo
}

func NewTransitionService(repo InstanceRepo) TransitionService {
	return &transitionService{repo: repo}
}

func (s *transitionService) CreateTransitionInstance(ctx context.Context, req *CreateTransitionInstanceReq) (*TransitionInstancePo, error) {
	if err := validatorUtil.Struct(req); err != nil {
		return nil, errors.Wrapf(ErrEngineParamInvalid, "CreateTransitionInstance failed, req: %v, err: %v", req, err)
	}
	po, err := s.repo.CreateTransitionInstance(ctx, &TransitionInstancePo{
		Name:                    req.Name,
		TransitionIndex:         req.TransitionIndex,
		SourceKey:               req.SourceKey,
		TargetKey:               req.TargetKey,
		ProcessDefinitionID:     req.ProcessDefinitionID,
		RootProcessInstanceID:   req.RootProcessInstanceID,
		ParentProcessInstanceID: req.ParentProcessInstanceID,
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "CreateTransitionInstance failed, transitionIndex: %d", req.TransitionIndex)
	}
	return po, nil
}

func (s *transitionService) GetTransitionInstance(ctx context.Context, transitionInstanceID int64) (*TransitionInstancePo, error) {
	if transitionInstanceID <= 0 {
		return nil, errors.Wrapf(ErrEngineParamInvalid, "GetTransitionInstance failed, transitionInstanceID: %d", transitionInstanceID)
	}
	transitions, err := s.repo.QueryTransitionInstance(ctx, &QueryTransitionInstanceParams{
		TransitionInstanceID: &transitionInstanceID,
		Page: &Pager{
			Page: 1,
			Size: 1,
		},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryTransitionInstance failed, transitionInstanceID: %d", transitionInstanceID)
	}
	if len(transitions) == 0 {
		return nil, errors.WithMessagef(ErrTransitionInstanceNotFound, "transitionInstanceID: %d", transitionInstanceID)
	}
	return transitions[0], nil
}

func (s *transitionService) DeleteTransitionInstance(ctx context.Context, transitionInstanceID int64) error {
	if transitionInstanceID <= 0 {
		return errors.Wrapf(ErrEngineParamInvalid, "DeleteTransitionInstance failed, transitionInstanceID: %d", transitionInstanceID)
	}
	if err := s.repo.DeleteTransitionInstance(ctx, []int64{transitionInstanceID}); err != nil {
		return errors.WithMessagef(err, "DeleteTransitionInstance failed, transitionInstanceID: %d", transitionInstanceID)
	}
	return nil
}

func (s *transitionService) SearchTransitionInstances(ctx context.Context, page QueryOptions) ([]*TransitionInstancePo, error) {
	transitions, err := s.repo.QueryTransitionInstance(ctx, &QueryTransitionInstanceParams{
		OrderbyIDAsc: Bool(true),
		Page: &Pager{
			Page: page.Page,
			Size: page.Size,
		},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "SearchTransitionInstances failed, page: %d", page.Page)
	}
	return transitions, nil
}

func (s *transitionService) GetTransitionInstancesOfProcess(ctx context.Context, rootProcessInstanceID int64) ([]*TransitionInstancePo, error) {
	transitions, err := s.repo.QueryTransitionInstance(ctx, &QueryTransitionInstanceParams{
		RootProcessInstanceID: &rootProcessInstanceID,
		OrderbyIDAsc:          Bool(true),
		Page: &Pager{
			IsNoLimit: Bool(true),
		},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "GetTransitionInstancesOfProcess failed, rootProcessInstanceID: %d", rootProcessInstanceID)
	}
	return transitions, nil
}
