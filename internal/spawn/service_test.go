package spawn

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/maestro/maestro/internal/common/errors"
	"github.com/maestro/maestro/internal/common/kmutex"
	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/domain"
	"github.com/maestro/maestro/internal/events"
	"github.com/maestro/maestro/internal/events/bus"
	"github.com/maestro/maestro/internal/session"
	"github.com/maestro/maestro/internal/store"
)

func newFixture(t *testing.T, root string) (*Service, *store.MemoryStore, bus.EventBus) {
	t.Helper()
	ctx := context.Background()
	log := logger.Default()
	st := store.NewMemoryStore()
	eventBus := bus.NewMemoryEventBus(log)
	locks := kmutex.New()
	sessions := session.NewService(st, eventBus, locks, log)
	svc := NewService(st, sessions, eventBus, locks, root, "http://localhost:4317", log)

	require.NoError(t, st.Projects().Create(ctx, &domain.Project{
		ID: "p1", Name: "p1", WorkingDir: "/repos/demo", IsMaster: true,
	}))
	for _, id := range []string{"t1", "t2"} {
		require.NoError(t, st.Tasks().Create(ctx, &domain.Task{
			ID: id, ProjectID: "p1", Title: "task " + id, Status: domain.TaskStatusPending,
		}))
	}
	return svc, st, eventBus
}

func TestSpawnValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t, t.TempDir())

	cases := []Input{
		{TaskIDs: []string{"t1"}, SpawnSource: SourceManual, Role: RoleWorker},
		{ProjectID: "p1", SpawnSource: SourceManual, Role: RoleWorker},
		{ProjectID: "p1", TaskIDs: []string{"t1"}, SpawnSource: "cron", Role: RoleWorker},
		{ProjectID: "p1", TaskIDs: []string{"t1"}, SpawnSource: SourceManual, Role: "manager"},
	}
	for _, input := range cases {
		_, err := svc.Spawn(ctx, input)
		assert.True(t, apperrors.IsValidation(err), "input %+v", input)
	}

	_, err := svc.Spawn(ctx, Input{ProjectID: "p1", TaskIDs: []string{"ghost"}, SpawnSource: SourceManual, Role: RoleWorker})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSpawnWritesManifestAndEnv(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	svc, st, eventBus := newFixture(t, root)

	var created []*bus.Event
	var linked int
	eventBus.Subscribe(events.SessionCreated, func(ctx context.Context, e *bus.Event) error {
		created = append(created, e)
		return nil
	})
	eventBus.Subscribe(events.TaskSessionAdded, func(ctx context.Context, e *bus.Event) error {
		linked++
		return nil
	})

	result, err := svc.Spawn(ctx, Input{
		ProjectID:   "p1",
		TaskIDs:     []string{"t1", "t2"},
		SpawnSource: SourceOrchestrator,
		Role:        RoleWorker,
	})
	require.NoError(t, err)

	sess := result.Session
	assert.Equal(t, domain.SessionStatusSpawning, sess.Status)
	assert.Equal(t, sess.ID, sess.Env[EnvSessionID])
	assert.Equal(t, result.ManifestPath, sess.Env[EnvManifestPath])
	assert.Equal(t, "http://localhost:4317", sess.Env[EnvServerURL])
	assert.Equal(t, "true", sess.Env["MAESTRO_IS_MASTER"])

	// Manifest lands at the deterministic path and round-trips validly.
	assert.Equal(t, filepath.Join(root, "sessions", sess.ID, "manifest.json"), result.ManifestPath)
	raw, err := os.ReadFile(result.ManifestPath)
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, json.Unmarshal(raw, &m))
	require.NoError(t, m.Validate())
	assert.Equal(t, sess.ID, m.Session.ID)
	assert.Len(t, m.Tasks, 2)
	assert.Equal(t, "/repos/demo", m.WorkingDir)

	// One consolidated created event plus one link event per task.
	require.Len(t, created, 1)
	payload := created[0].Data.(map[string]interface{})
	assert.Equal(t, true, payload["_isSpawnCreated"])
	assert.Equal(t, "p1", payload["projectId"])
	assert.Equal(t, "/repos/demo", payload["cwd"])
	assert.Equal(t, 2, linked)

	// Both tasks carry the back-link.
	for _, taskID := range []string{"t1", "t2"} {
		task, err := st.Tasks().Get(ctx, taskID)
		require.NoError(t, err)
		assert.Contains(t, task.SessionIDs, sess.ID)
	}
}

func TestSpawnManifestFailureMarksSessionFailed(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()
	// Root pointing at a regular file makes the manifest directory
	// uncreatable.
	root := filepath.Join(tmp, "blocked")
	require.NoError(t, os.WriteFile(root, []byte("x"), 0o644))

	svc, st, _ := newFixture(t, root)

	_, err := svc.Spawn(ctx, Input{
		ProjectID:   "p1",
		TaskIDs:     []string{"t1"},
		SpawnSource: SourceManual,
		Role:        RoleWorker,
	})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeManifestGeneration, appErr.Code)

	sessions, err := st.Sessions().List(ctx, store.SessionFilter{ProjectID: "p1"})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, domain.SessionStatusFailed, sessions[0].Status)
}
