package tasklist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/maestro/maestro/internal/common/errors"
	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/domain"
	"github.com/maestro/maestro/internal/events/bus"
	"github.com/maestro/maestro/internal/store"
)

func newFixture(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()
	log := logger.Default()
	st := store.NewMemoryStore()
	svc := NewService(st, bus.NewMemoryEventBus(log), log)

	require.NoError(t, st.Projects().Create(ctx, &domain.Project{ID: "p1", Name: "p1"}))
	require.NoError(t, st.Projects().Create(ctx, &domain.Project{ID: "p2", Name: "p2"}))
	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, st.Tasks().Create(ctx, &domain.Task{ID: id, ProjectID: "p1", Title: id, Status: domain.TaskStatusPending}))
	}
	require.NoError(t, st.Tasks().Create(ctx, &domain.Task{ID: "other", ProjectID: "p2", Title: "other", Status: domain.TaskStatusPending}))
	return svc
}

func TestCreateValidatesMembership(t *testing.T) {
	ctx := context.Background()
	svc := newFixture(t)

	_, err := svc.Create(ctx, "p1", CreateInput{Name: "sprint", OrderedTaskIDs: []string{"t1", "t1"}})
	assert.True(t, apperrors.IsValidation(err), "duplicates rejected")

	_, err = svc.Create(ctx, "p1", CreateInput{Name: "sprint", OrderedTaskIDs: []string{"t1", "missing"}})
	assert.True(t, apperrors.IsNotFound(err))

	_, err = svc.Create(ctx, "p1", CreateInput{Name: "sprint", OrderedTaskIDs: []string{"other"}})
	assert.True(t, apperrors.IsValidation(err), "cross-project tasks rejected")

	l, err := svc.Create(ctx, "p1", CreateInput{Name: "sprint", OrderedTaskIDs: []string{"t2", "t1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"t2", "t1"}, l.OrderedTaskIDs)
}

func TestRemovingLastTaskLeavesEmptyList(t *testing.T) {
	ctx := context.Background()
	svc := newFixture(t)

	l, err := svc.Create(ctx, "p1", CreateInput{Name: "sprint", OrderedTaskIDs: []string{"t1"}})
	require.NoError(t, err)

	l, err = svc.RemoveTask(ctx, l.ID, "t1")
	require.NoError(t, err)
	assert.Empty(t, l.OrderedTaskIDs)

	got, err := svc.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got.OrderedTaskIDs)
}

func TestUpdateReorders(t *testing.T) {
	ctx := context.Background()
	svc := newFixture(t)

	l, err := svc.Create(ctx, "p1", CreateInput{Name: "sprint", OrderedTaskIDs: []string{"t1", "t2"}})
	require.NoError(t, err)

	order := []string{"t3", "t2", "t1"}
	l, err = svc.Update(ctx, l.ID, UpdateInput{OrderedTaskIDs: &order})
	require.NoError(t, err)
	assert.Equal(t, order, l.OrderedTaskIDs)
}

func TestDeleteList(t *testing.T) {
	ctx := context.Background()
	svc := newFixture(t)

	l, err := svc.Create(ctx, "p1", CreateInput{Name: "sprint"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, l.ID))

	_, err = svc.Get(ctx, l.ID)
	assert.True(t, apperrors.IsNotFound(err))
}
