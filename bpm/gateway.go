package bpm

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type GatewayInstanceService interface {
	// GetGatewayInstance 不存在或者不是网关返回ErrGatewayInstanceNotFound
	GetGatewayInstance(ctx context.Context, gatewayInstanceID int64) (*FlowNodeInstancePo, error)
	// SetState 网关的生命周期比较简单(created -> merging -> fired)，所以只收stateId
	SetState(ctx context.Context, gateway *FlowNodeInstancePo, stateID int64) error
	/**
	 * @description: 记录一次入边命中,transitionIndex追加到hitBys末尾,保持到达顺序
	 *               重复命中同一个index是幂等no-op("1,2"再hit 2还是"1,2")
	 *               合并策略(AND/OR)不在这里,这里只负责记录
	 * @param ctx context.Context
	 * @param gateway *FlowNodeInstancePo
	 * @param transitionIndex int64
	 * @return error
	 */
	HitTransition(ctx context.Context, gateway *FlowNodeInstancePo, transitionIndex int64) error
}

// ParseHitBys 解析逗号拼接的hitBys,顺序保持
func ParseHitBys(hitBys string) []int64 {
	if hitBys == "" {
		return []int64{}
	}
	parts := strings.Split(hitBys, ",")
	ret := make([]int64, 0, len(parts))
	for _, part := range parts {
		idx, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			// 脏数据跳过,不影响其他index
			continue
		}
		ret = append(ret, idx)
	}
	return ret
}

func JoinHitBys(indexes []int64) string {
	parts := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		parts = append(parts, strconv.FormatInt(idx, 10))
	}
	return strings.Join(parts, ",")
}

func ContainsHitBy(hitBys string, transitionIndex int64) bool {
	for _, idx := range ParseHitBys(hitBys) {
		if idx == transitionIndex {
			return true
		}
	}
	return false
}

type gatewayInstanceService struct {
	repo      InstanceRepo
	flowNodes FlowNodeInstanceService
}

func NewGatewayInstanceService(repo InstanceRepo, flowNodes FlowNodeInstanceService) GatewayInstanceService {
	return &gatewayInstanceService{repo: repo, flowNodes: flowNodes}
}

func (s *gatewayInstanceService) GetGatewayInstance(ctx context.Context, gatewayInstanceID int64) (*FlowNodeInstancePo, error) {
	flowNode, err := s.flowNodes.GetFlowNodeInstance(ctx, gatewayInstanceID)
	if err != nil {
		if errors.Is(errors.Cause(err), ErrFlowNodeInstanceNotFound) {
			return nil, errors.WithMessagef(ErrGatewayInstanceNotFound, "gatewayInstanceID: %d", gatewayInstanceID)
		}
		return nil, errors.WithMessagef(err, "GetGatewayInstance failed, gatewayInstanceID: %d", gatewayInstanceID)
	}
	if flowNode.Kind != FlowNodeKindGateway {
		return nil, errors.WithMessagef(ErrGatewayInstanceNotFound, "flow node %d is not a gateway, kind: %s", gatewayInstanceID, flowNode.Kind)
	}
	return flowNode, nil
}

func (s *gatewayInstanceService) SetState(ctx context.Context, gateway *FlowNodeInstancePo, stateID int64) error {
	if gateway == nil {
		return errors.Wrap(ErrEngineParamInvalid, "SetState failed, gateway is nil")
	}
	state, ok := GetFlowNodeState(stateID)
	if !ok {
		return errors.Wrapf(ErrEngineParamInvalid, "SetState failed, unknown stateID: %d, gatewayInstanceID: %d", stateID, gateway.ID)
	}
	return s.flowNodes.SetState(ctx, gateway, state)
}

func (s *gatewayInstanceService) HitTransition(ctx context.Context, gateway *FlowNodeInstancePo, transitionIndex int64) error {
	if gateway == nil {
		return errors.Wrap(ErrEngineParamInvalid, "HitTransition failed, gateway is nil")
	}
	if ContainsHitBy(gateway.HitBys, transitionIndex) {
		// 重复命中,幂等处理
		return nil
	}
	newHitBys := JoinHitBys(append(ParseHitBys(gateway.HitBys), transitionIndex))
	err := s.repo.UpdateFlowNodeInstance(ctx, &UpdateFlowNodeInstanceParams{
		Where: &UpdateFlowNodeInstanceWhere{
			IDIn: []int64{gateway.ID},
		},
		Fields: &UpdateFlowNodeInstanceField{
			HitBys: String(newHitBys),
		},
		LimitMax: 1,
	})
	if err != nil {
		return errors.Wrapf(ErrFlowNodeModification, "HitTransition failed, gatewayInstanceID: %d, transitionIndex: %d, err: %v", gateway.ID, transitionIndex, err)
	}
	gateway.HitBys = newHitBys
	return nil
}
