package project

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

func newFixture(t *testing.T) (*Service, *store.MemoryStore, *bus.MemoryEventBus) {
	t.Helper()
	log := logger.Default()
	st := store.NewMemoryStore()
	eventBus := bus.NewMemoryEventBus(log)
	return NewService(st, eventBus, log), st, eventBus
}

func TestCreateTrimsAndValidatesName(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	p, err := svc.Create(ctx, CreateInput{Name: "  demo  ", WorkingDir: " /repos/demo "})
	require.NoError(t, err)
	assert.Equal(t, "demo", p.Name)
	assert.Equal(t, "/repos/demo", p.WorkingDir)
	assert.NotEmpty(t, p.ID)

	_, err = svc.Create(ctx, CreateInput{Name: "   "})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestUpdateRejectsEmptyName(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	p, err := svc.Create(ctx, CreateInput{Name: "demo"})
	require.NoError(t, err)

	empty := " "
	_, err = svc.Update(ctx, p.ID, UpdateInput{Name: &empty})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	desc := "updated"
	updated, err := svc.Update(ctx, p.ID, UpdateInput{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "demo", updated.Name)
	assert.Equal(t, "updated", updated.Description)
}

func TestSetMasterStatusToggles(t *testing.T) {
	ctx := context.Background()
	svc, _, eventBus := newFixture(t)

	p, err := svc.Create(ctx, CreateInput{Name: "demo"})
	require.NoError(t, err)
	assert.False(t, p.IsMaster)

	var updates int
	_, err = eventBus.Subscribe("project:updated", func(ctx context.Context, e *bus.Event) error {
		updates++
		return nil
	})
	require.NoError(t, err)

	p, err = svc.SetMasterStatus(ctx, p.ID, true)
	require.NoError(t, err)
	assert.True(t, p.IsMaster)

	p, err = svc.SetMasterStatus(ctx, p.ID, false)
	require.NoError(t, err)
	assert.False(t, p.IsMaster)
	assert.Equal(t, 2, updates)
}

func TestDeleteBlockedByTasksAndSessions(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newFixture(t)

	p, err := svc.Create(ctx, CreateInput{Name: "demo"})
	require.NoError(t, err)

	require.NoError(t, st.Tasks().Create(ctx, &domain.Task{ID: "t1", ProjectID: p.ID, Title: "t"}))
	err = svc.Delete(ctx, p.ID, st.Orderings())
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	require.NoError(t, st.Tasks().Delete(ctx, "t1"))
	require.NoError(t, st.Sessions().Create(ctx, &domain.Session{ID: "s1", ProjectID: p.ID, Status: domain.SessionStatusWorking}))
	err = svc.Delete(ctx, p.ID, st.Orderings())
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	require.NoError(t, st.Sessions().Delete(ctx, "s1"))
	require.NoError(t, svc.Delete(ctx, p.ID, st.Orderings()))

	_, err = svc.Get(ctx, p.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDeleteDropsOrderings(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newFixture(t)

	p, err := svc.Create(ctx, CreateInput{Name: "demo"})
	require.NoError(t, err)
	require.NoError(t, st.Orderings().Put(ctx, &domain.Ordering{
		ProjectID: p.ID, EntityType: "tasks", IDs: []string{"t1", "t2"},
	}))

	require.NoError(t, svc.Delete(ctx, p.ID, st.Orderings()))

	ord, err := st.Orderings().Get(ctx, p.ID, "tasks")
	if err == nil {
		assert.Empty(t, ord.IDs)
	} else {
		assert.True(t, apperrors.IsNotFound(err))
	}
}
