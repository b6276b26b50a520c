package template

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/maestro/maestro/internal/common/errors"
	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/store"
)

func TestOverrideAndReset(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemoryStore(), logger.Default())

	def, err := svc.Get(ctx, RoleWorker)
	require.NoError(t, err)
	assert.True(t, def.IsDefault)
	assert.NotEmpty(t, def.Content)

	_, err = svc.Set(ctx, RoleWorker, "Custom worker prompt")
	require.NoError(t, err)

	got, err := svc.Get(ctx, RoleWorker)
	require.NoError(t, err)
	assert.False(t, got.IsDefault)
	assert.Equal(t, "Custom worker prompt", got.Content)

	restored, err := svc.Reset(ctx, RoleWorker)
	require.NoError(t, err)
	assert.True(t, restored.IsDefault)
	assert.Equal(t, def.Content, restored.Content)

	got, err = svc.Get(ctx, RoleWorker)
	require.NoError(t, err)
	assert.True(t, got.IsDefault)
}

func TestUnknownRole(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemoryStore(), logger.Default())

	_, err := svc.Get(ctx, "bard")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = svc.Set(ctx, "bard", "anything")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = svc.Set(ctx, RoleWorker, "  ")
	assert.True(t, apperrors.IsValidation(err))
}

func TestListResolvesEveryRole(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemoryStore(), logger.Default())

	_, err := svc.Set(ctx, RoleOrchestrator, "Custom orchestrator prompt")
	require.NoError(t, err)

	templates, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.False(t, templates[0].IsDefault)
	assert.True(t, templates[1].IsDefault)
}
