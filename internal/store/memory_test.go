package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/maestro/maestro/internal/common/errors"
	"github.com/maestro/maestro/internal/domain"
)

func TestMemoryStoreProjectCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p := &domain.Project{ID: "proj_1", Name: "alpha", WorkingDir: "/tmp/alpha"}
	require.NoError(t, s.Projects().Create(ctx, p))
	assert.False(t, p.CreatedAt.IsZero())

	got, err := s.Projects().Get(ctx, "proj_1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name)

	got.Name = "beta"
	require.NoError(t, s.Projects().Update(ctx, got))

	updated, err := s.Projects().Get(ctx, "proj_1")
	require.NoError(t, err)
	assert.Equal(t, "beta", updated.Name)

	require.NoError(t, s.Projects().Delete(ctx, "proj_1"))
	_, err = s.Projects().Get(ctx, "proj_1")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	task := &domain.Task{ID: "task_1", ProjectID: "proj_1", Title: "build", SessionIDs: []string{"sess_1"}}
	require.NoError(t, s.Tasks().Create(ctx, task))

	// Mutating a returned copy must not leak into the stored entity.
	got, err := s.Tasks().Get(ctx, "task_1")
	require.NoError(t, err)
	got.SessionIDs = append(got.SessionIDs, "sess_2")
	got.Title = "mutated"

	fresh, err := s.Tasks().Get(ctx, "task_1")
	require.NoError(t, err)
	assert.Equal(t, "build", fresh.Title)
	assert.Equal(t, []string{"sess_1"}, fresh.SessionIDs)
}

func TestMemoryStoreTaskFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Tasks().Create(ctx, &domain.Task{ID: "t1", ProjectID: "p1", Status: domain.TaskStatusPending}))
	require.NoError(t, s.Tasks().Create(ctx, &domain.Task{ID: "t2", ProjectID: "p1", ParentID: "t1", Status: domain.TaskStatusInProgress}))
	require.NoError(t, s.Tasks().Create(ctx, &domain.Task{ID: "t3", ProjectID: "p2", Status: domain.TaskStatusPending}))

	byProject, err := s.Tasks().List(ctx, TaskFilter{ProjectID: "p1"})
	require.NoError(t, err)
	assert.Len(t, byProject, 2)

	children, err := s.Tasks().ListChildren(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "t2", children[0].ID)

	topLevel := ""
	roots, err := s.Tasks().List(ctx, TaskFilter{ProjectID: "p1", ParentID: &topLevel})
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "t1", roots[0].ID)

	count, err := s.Tasks().CountByProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMemoryStoreSessionActiveFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Sessions().Create(ctx, &domain.Session{ID: "s1", ProjectID: "p1", Status: domain.SessionStatusWorking}))
	require.NoError(t, s.Sessions().Create(ctx, &domain.Session{ID: "s2", ProjectID: "p1", Status: domain.SessionStatusCompleted}))
	require.NoError(t, s.Sessions().Create(ctx, &domain.Session{ID: "s3", ProjectID: "p1", Status: domain.SessionStatusNeedsInput}))

	// The active set is exactly working|idle|spawning; needs_input is
	// neither active nor terminal.
	active := true
	got, err := s.Sessions().List(ctx, SessionFilter{ProjectID: "p1", Active: &active})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].ID)
}

func TestMemoryStoreInboxScoping(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Mail().Create(ctx, &domain.Mail{ID: "m1", ProjectID: "p1", ToSessionID: "s1"}))
	require.NoError(t, s.Mail().Create(ctx, &domain.Mail{ID: "m2", ProjectID: "p1", ToSessionID: "s2"}))
	require.NoError(t, s.Mail().Create(ctx, &domain.Mail{ID: "m3", ProjectID: "p1"})) // broadcast
	require.NoError(t, s.Mail().Create(ctx, &domain.Mail{ID: "m4", ProjectID: "p2", ToSessionID: "s1"}))

	inbox, err := s.Mail().ListInbox(ctx, "p1", "s1")
	require.NoError(t, err)
	ids := make([]string, 0, len(inbox))
	for _, m := range inbox {
		ids = append(ids, m.ID)
	}
	assert.ElementsMatch(t, []string{"m1", "m3"}, ids)
}

func TestMemoryStoreQueuePerSession(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	q := &domain.Queue{SessionID: "s1", CurrentIndex: -1}
	require.NoError(t, s.Queues().Create(ctx, q))

	err := s.Queues().Create(ctx, &domain.Queue{SessionID: "s1"})
	assert.True(t, apperrors.IsConflict(err))

	require.NoError(t, s.Queues().DeleteBySession(ctx, "s1"))
	_, err = s.Queues().GetBySession(ctx, "s1")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMemoryStoreOrderingKeyedByProjectAndType(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Orderings().Put(ctx, &domain.Ordering{ProjectID: "p1", EntityType: "tasks", IDs: []string{"t2", "t1"}}))
	require.NoError(t, s.Orderings().Put(ctx, &domain.Ordering{ProjectID: "p1", EntityType: "sessions", IDs: []string{"s1"}}))

	o, err := s.Orderings().Get(ctx, "p1", "tasks")
	require.NoError(t, err)
	assert.Equal(t, []string{"t2", "t1"}, o.IDs)

	require.NoError(t, s.Orderings().DeleteByProject(ctx, "p1"))
	_, err = s.Orderings().Get(ctx, "p1", "sessions")
	assert.True(t, apperrors.IsNotFound(err))
}
