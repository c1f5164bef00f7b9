package bpm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionService(t *testing.T) {
	db := newTestDB(t)
	service := NewTransitionService(NewInstanceRepo(db))
	ctx := context.Background()

	t.Run("参数校验", func(t *testing.T) {
		_, err := service.CreateTransitionInstance(ctx, &CreateTransitionInstanceReq{
			TransitionIndex: 0, // 非法
			SourceKey:       "a",
			TargetKey:       "b",
		})
		require.ErrorIs(t, err, ErrEngineParamInvalid)
	})

	t.Run("创建和查询", func(t *testing.T) {
		created, err := service.CreateTransitionInstance(ctx, &CreateTransitionInstanceReq{
			Name:                  "去审核",
			TransitionIndex:       1,
			SourceKey:             "submit",
			TargetKey:             "review",
			ProcessDefinitionID:   1,
			RootProcessInstanceID: 100,
		})
		require.NoError(t, err)
		require.Greater(t, created.ID, int64(0))

		found, err := service.GetTransitionInstance(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, "submit", found.SourceKey)
		require.Equal(t, "review", found.TargetKey)

		ofProcess, err := service.GetTransitionInstancesOfProcess(ctx, 100)
		require.NoError(t, err)
		require.Len(t, ofProcess, 1)
	})

	t.Run("删除后不可见", func(t *testing.T) {
		created, err := service.CreateTransitionInstance(ctx, &CreateTransitionInstanceReq{
			TransitionIndex:       2,
			SourceKey:             "review",
			TargetKey:             "approve",
			ProcessDefinitionID:   1,
			RootProcessInstanceID: 100,
		})
		require.NoError(t, err)

		require.NoError(t, service.DeleteTransitionInstance(ctx, created.ID))
		_, err = service.GetTransitionInstance(ctx, created.ID)
		require.ErrorIs(t, err, ErrTransitionInstanceNotFound)
	})

	t.Run("分页扫描", func(t *testing.T) {
		page1, err := service.SearchTransitionInstances(ctx, NewQueryOptions(10))
		require.NoError(t, err)
		require.Len(t, page1, 1)

		page2, err := service.SearchTransitionInstances(ctx, NewQueryOptions(10).NextPage())
		require.NoError(t, err)
		require.Empty(t, page2)
	})
}
