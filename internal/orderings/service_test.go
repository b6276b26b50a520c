package orderings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/maestro/maestro/internal/common/errors"
	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/domain"
	"github.com/maestro/maestro/internal/store"
)

func newFixture(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	require.NoError(t, st.Projects().Create(context.Background(), &domain.Project{ID: "p1", Name: "p1"}))
	return NewService(st, logger.Default()), st
}

func TestMissingOrderingIsEmpty(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFixture(t)

	o, err := svc.Get(ctx, "p1", EntityTasks)
	require.NoError(t, err)
	assert.Empty(t, o.IDs)

	_, err = svc.Get(ctx, "missing", EntityTasks)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = svc.Get(ctx, "p1", "widgets")
	assert.True(t, apperrors.IsValidation(err))
}

func TestPutReplacesOrdering(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFixture(t)

	_, err := svc.Put(ctx, "p1", EntityTasks, []string{"t3", "t1", "t2"})
	require.NoError(t, err)

	o, err := svc.Get(ctx, "p1", EntityTasks)
	require.NoError(t, err)
	assert.Equal(t, []string{"t3", "t1", "t2"}, o.IDs)

	_, err = svc.Put(ctx, "p1", EntityTasks, []string{"t2"})
	require.NoError(t, err)
	o, err = svc.Get(ctx, "p1", EntityTasks)
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, o.IDs)
}

func TestOrderingsScopedByEntityType(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFixture(t)

	_, err := svc.Put(ctx, "p1", EntityTasks, []string{"t1"})
	require.NoError(t, err)
	_, err = svc.Put(ctx, "p1", EntitySessions, []string{"s1"})
	require.NoError(t, err)

	tasks, err := svc.Get(ctx, "p1", EntityTasks)
	require.NoError(t, err)
	sessions, err := svc.Get(ctx, "p1", EntitySessions)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, tasks.IDs)
	assert.Equal(t, []string{"s1"}, sessions.IDs)
}
