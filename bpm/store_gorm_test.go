package bpm

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrateTables(db))
	return db
}

func TestInstanceRepo_FlowNodeCrud(t *testing.T) {
	db := newTestDB(t)
	repo := NewInstanceRepo(db)
	ctx := context.Background()

	created, err := repo.CreateFlowNodeInstance(ctx, &FlowNodeInstancePo{
		Name:                  "审核",
		Kind:                  FlowNodeKindActivity,
		StateID:               StateReady.ID,
		StateName:             StateReady.Name,
		Stable:                true,
		StateCategory:         StateCategoryNormal,
		ProcessDefinitionID:   1,
		RootProcessInstanceID: 100,
		DefinitionKey:         "review",
	})
	require.NoError(t, err)
	require.Greater(t, created.ID, int64(0))
	require.NotZero(t, created.CreatedAt)

	t.Run("按id查询", func(t *testing.T) {
		found, err := repo.QueryFlowNodeInstance(ctx, &QueryFlowNodeInstanceParams{
			FlowNodeInstanceID: &created.ID,
			Page:               &Pager{Page: 1, Size: 1},
		})
		require.NoError(t, err)
		require.Len(t, found, 1)
		require.Equal(t, "review", found[0].DefinitionKey)
	})

	t.Run("更新必须带字段", func(t *testing.T) {
		err := repo.UpdateFlowNodeInstance(ctx, &UpdateFlowNodeInstanceParams{
			Where:    &UpdateFlowNodeInstanceWhere{IDIn: []int64{created.ID}},
			Fields:   &UpdateFlowNodeInstanceField{},
			LimitMax: 1,
		})
		require.ErrorIs(t, err, ErrNoFieldsToUpdate)
	})

	t.Run("字段补丁只更新非nil字段", func(t *testing.T) {
		err := repo.UpdateFlowNodeInstance(ctx, &UpdateFlowNodeInstanceParams{
			Where: &UpdateFlowNodeInstanceWhere{IDIn: []int64{created.ID}},
			Fields: &UpdateFlowNodeInstanceField{
				DisplayName: String("订单审核"),
			},
			LimitMax: 1,
		})
		require.NoError(t, err)

		found, err := repo.QueryFlowNodeInstance(ctx, &QueryFlowNodeInstanceParams{
			FlowNodeInstanceID: &created.ID,
			Page:               &Pager{Page: 1, Size: 1},
		})
		require.NoError(t, err)
		require.Equal(t, "订单审核", found[0].DisplayName)
		// 其余字段不受影响
		require.Equal(t, StateReady.ID, found[0].StateID)
		require.Equal(t, "审核", found[0].Name)
	})

	t.Run("删除", func(t *testing.T) {
		require.NoError(t, repo.DeleteFlowNodeInstance(ctx, []int64{created.ID}))
		found, err := repo.QueryFlowNodeInstance(ctx, &QueryFlowNodeInstanceParams{
			FlowNodeInstanceID: &created.ID,
			Page:               &Pager{Page: 1, Size: 1},
		})
		require.NoError(t, err)
		require.Empty(t, found)
	})
}

func TestInstanceRepo_Transaction(t *testing.T) {
	db := newTestDB(t)
	repo := NewInstanceRepo(db)
	ctx := context.Background()

	t.Run("回滚后数据不落库", func(t *testing.T) {
		err := repo.Transaction(ctx, func(ctx context.Context) error {
			_, err := repo.CreateFlowNodeInstance(ctx, &FlowNodeInstancePo{
				Name:                  "A",
				Kind:                  FlowNodeKindActivity,
				StateID:               StateReady.ID,
				RootProcessInstanceID: 200,
				DefinitionKey:         "a",
			})
			require.NoError(t, err)
			return errors.New("force rollback")
		})
		require.Error(t, err)

		count, err := repo.CountFlowNodeInstance(ctx, &QueryFlowNodeInstanceParams{
			RootProcessInstanceID: Int64(200),
		})
		require.NoError(t, err)
		require.Zero(t, count)
	})

	t.Run("提交后数据可见", func(t *testing.T) {
		err := repo.Transaction(ctx, func(ctx context.Context) error {
			_, err := repo.CreateFlowNodeInstance(ctx, &FlowNodeInstancePo{
				Name:                  "B",
				Kind:                  FlowNodeKindActivity,
				StateID:               StateReady.ID,
				RootProcessInstanceID: 201,
				DefinitionKey:         "b",
			})
			return err
		})
		require.NoError(t, err)

		count, err := repo.CountFlowNodeInstance(ctx, &QueryFlowNodeInstanceParams{
			RootProcessInstanceID: Int64(201),
		})
		require.NoError(t, err)
		require.Equal(t, int64(1), count)
	})

	t.Run("嵌套事务复用外层连接", func(t *testing.T) {
		err := repo.Transaction(ctx, func(ctx context.Context) error {
			return repo.Transaction(ctx, func(ctx context.Context) error {
				_, err := repo.CreateFlowNodeInstance(ctx, &FlowNodeInstancePo{
					Name:                  "C",
					Kind:                  FlowNodeKindActivity,
					StateID:               StateReady.ID,
					RootProcessInstanceID: 202,
					DefinitionKey:         "c",
				})
				return err
			})
		})
		require.NoError(t, err)

		count, err := repo.CountFlowNodeInstance(ctx, &QueryFlowNodeInstanceParams{
			RootProcessInstanceID: Int64(202),
		})
		require.NoError(t, err)
		require.Equal(t, int64(1), count)
	})
}
