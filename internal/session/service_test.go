package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/maestro/maestro/internal/common/errors"
	"github.com/maestro/maestro/internal/common/kmutex"
	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/domain"
	"github.com/maestro/maestro/internal/events"
	"github.com/maestro/maestro/internal/events/bus"
	"github.com/maestro/maestro/internal/store"
	"github.com/maestro/maestro/internal/task"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []*bus.Event
}

func (r *eventRecorder) record(_ context.Context, event *bus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) topics(topic string) []*bus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*bus.Event
	for _, e := range r.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

func newFixture(t *testing.T) (*Service, *store.MemoryStore, *eventRecorder) {
	t.Helper()
	log := logger.Default()
	st := store.NewMemoryStore()
	eventBus := bus.NewMemoryEventBus(log)
	rec := &eventRecorder{}
	_, err := eventBus.Subscribe(bus.TopicWildcard, rec.record)
	require.NoError(t, err)
	svc := NewService(st, eventBus, kmutex.New(), log)
	return svc, st, rec
}

func seed(t *testing.T, st *store.MemoryStore, projectID string, taskIDs ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.Projects().Create(ctx, &domain.Project{ID: projectID, Name: projectID}))
	for _, id := range taskIDs {
		require.NoError(t, st.Tasks().Create(ctx, &domain.Task{
			ID: id, ProjectID: projectID, Title: id, Status: domain.TaskStatusPending,
		}))
	}
}

func TestCreateLinksTasksBothWays(t *testing.T) {
	ctx := context.Background()
	svc, st, rec := newFixture(t)
	seed(t, st, "p1", "t1", "t2")

	sess, err := svc.Create(ctx, CreateInput{ProjectID: "p1", TaskIDs: []string{"t1", "t2"}}, CreateOptions{})
	require.NoError(t, err)

	for _, taskID := range []string{"t1", "t2"} {
		task, err := st.Tasks().Get(ctx, taskID)
		require.NoError(t, err)
		assert.True(t, task.HasSession(sess.ID))
	}
	stored, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t2"}, stored.TaskIDs)
	assert.Len(t, stored.Timeline, 2, "one task_started per task")

	assert.Len(t, rec.topics(events.SessionCreated), 1)
	assert.Len(t, rec.topics(events.TaskSessionAdded), 2)
}

func TestCreateSuppressedEventForSpawn(t *testing.T) {
	ctx := context.Background()
	svc, st, rec := newFixture(t)
	seed(t, st, "p1", "t1")

	_, err := svc.Create(ctx, CreateInput{ProjectID: "p1", TaskIDs: []string{"t1"}},
		CreateOptions{SuppressCreatedEvent: true})
	require.NoError(t, err)
	assert.Empty(t, rec.topics(events.SessionCreated))
	assert.Len(t, rec.topics(events.TaskSessionAdded), 1)
}

func TestCreateInheritsMasterFlag(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newFixture(t)
	require.NoError(t, st.Projects().Create(ctx, &domain.Project{ID: "p1", Name: "p1", IsMaster: true}))

	sess, err := svc.Create(ctx, CreateInput{ProjectID: "p1"}, CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "true", sess.Env["MAESTRO_IS_MASTER"])
}

func TestCompletedStatusIsSticky(t *testing.T) {
	ctx := context.Background()
	svc, st, rec := newFixture(t)
	seed(t, st, "p1")

	sess, err := svc.Create(ctx, CreateInput{ProjectID: "p1", Status: domain.SessionStatusWorking}, CreateOptions{})
	require.NoError(t, err)

	completed := domain.SessionStatusCompleted
	updated, err := svc.Update(ctx, sess.ID, UpdateInput{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusCompleted, updated.Status)
	require.Len(t, rec.topics(events.NotifySessionCompleted), 1)

	// Later stopped and failed updates are silently dropped.
	for _, next := range []domain.SessionStatus{domain.SessionStatusStopped, domain.SessionStatusFailed} {
		updated, err = svc.Update(ctx, sess.ID, UpdateInput{Status: &next})
		require.NoError(t, err)
		assert.Equal(t, domain.SessionStatusCompleted, updated.Status)
	}
	assert.Len(t, rec.topics(events.NotifySessionCompleted), 1)
	assert.Empty(t, rec.topics(events.NotifySessionFailed))
}

func TestTerminalStatusPropagatesToTasks(t *testing.T) {
	ctx := context.Background()
	svc, st, rec := newFixture(t)
	seed(t, st, "p1", "t1", "t2")

	sess, err := svc.Create(ctx, CreateInput{
		ProjectID: "p1",
		TaskIDs:   []string{"t1", "t2"},
		Status:    domain.SessionStatusWorking,
	}, CreateOptions{})
	require.NoError(t, err)

	// Pre-set a terminal per-session status on t2; propagation must skip it.
	t2, err := st.Tasks().Get(ctx, "t2")
	require.NoError(t, err)
	t2.TaskSessionStatuses = map[string]domain.TaskSessionStatus{sess.ID: domain.TaskSessionSkipped}
	require.NoError(t, st.Tasks().Update(ctx, t2))

	failed := domain.SessionStatusFailed
	_, err = svc.Update(ctx, sess.ID, UpdateInput{Status: &failed})
	require.NoError(t, err)

	t1, err := st.Tasks().Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskSessionFailed, t1.TaskSessionStatuses[sess.ID])

	t2, err = st.Tasks().Get(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskSessionSkipped, t2.TaskSessionStatuses[sess.ID])

	assert.Len(t, rec.topics(events.NotifySessionFailed), 1)
}

func TestTerminalPropagationSerializesWithTaskUpdates(t *testing.T) {
	ctx := context.Background()
	log := logger.Default()
	st := store.NewMemoryStore()
	eventBus := bus.NewMemoryEventBus(log)
	locks := kmutex.New()
	sessions := NewService(st, eventBus, locks, log)
	tasks := task.NewService(st, eventBus, locks, log)
	seed(t, st, "p1", "t1")

	sess, err := sessions.Create(ctx, CreateInput{ProjectID: "p1", TaskIDs: []string{"t1"}}, CreateOptions{})
	require.NoError(t, err)

	// Both writers read-modify-write the same task document; the shared
	// task lock must keep either side from losing the other's write.
	completed := domain.SessionStatusCompleted
	title := "renamed while completing"
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := sessions.Update(ctx, sess.ID, UpdateInput{Status: &completed})
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := tasks.Update(ctx, "t1", task.UpdateInput{Title: &title}, task.UpdateSourceUser, "")
		assert.NoError(t, err)
	}()
	wg.Wait()

	stored, err := st.Tasks().Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, title, stored.Title)
	assert.Equal(t, domain.TaskSessionCompleted, stored.TaskSessionStatuses[sess.ID])
}

func TestNeedsInputNotifiesOnlyOnActivation(t *testing.T) {
	ctx := context.Background()
	svc, st, rec := newFixture(t)
	seed(t, st, "p1")

	sess, err := svc.Create(ctx, CreateInput{ProjectID: "p1", Status: domain.SessionStatusWorking}, CreateOptions{})
	require.NoError(t, err)

	_, err = svc.AddTimelineEvent(ctx, sess.ID, TimelineInput{Type: domain.TimelineNeedsInput, Message: "which db?"})
	require.NoError(t, err)
	require.Len(t, rec.topics(events.NotifyNeedsInput), 1)

	updated, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, updated.NeedsInput.Active)
	assert.NotNil(t, updated.NeedsInput.Since)

	// Already active: a second needs_input event does not re-notify.
	_, err = svc.AddTimelineEvent(ctx, sess.ID, TimelineInput{Type: domain.TimelineNeedsInput, Message: "still waiting"})
	require.NoError(t, err)
	assert.Len(t, rec.topics(events.NotifyNeedsInput), 1)
}

func TestDeleteUnlinksTasksAndRecordsStop(t *testing.T) {
	ctx := context.Background()
	svc, st, rec := newFixture(t)
	seed(t, st, "p1", "t1", "t2")

	sess, err := svc.Create(ctx, CreateInput{ProjectID: "p1", TaskIDs: []string{"t1", "t2"}}, CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, sess.ID))

	for _, taskID := range []string{"t1", "t2"} {
		task, err := st.Tasks().Get(ctx, taskID)
		require.NoError(t, err)
		assert.Empty(t, task.SessionIDs)
	}
	assert.Len(t, rec.topics(events.TaskSessionRemoved), 2)
	assert.Len(t, rec.topics(events.SessionDeleted), 1)

	_, err = svc.Get(ctx, sess.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSendPromptRecordsTimelineAndEmits(t *testing.T) {
	ctx := context.Background()
	svc, st, rec := newFixture(t)
	seed(t, st, "p1")

	sess, err := svc.Create(ctx, CreateInput{ProjectID: "p1", Status: domain.SessionStatusWorking}, CreateOptions{})
	require.NoError(t, err)

	err = svc.SendPrompt(ctx, sess.ID, PromptInput{Content: "", Mode: "send"})
	assert.True(t, apperrors.IsValidation(err))

	err = svc.SendPrompt(ctx, sess.ID, PromptInput{Content: "run the tests", Mode: "teleport"})
	assert.True(t, apperrors.IsValidation(err))

	err = svc.SendPrompt(ctx, "sess_missing", PromptInput{Content: "hi", Mode: "send"})
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, svc.SendPrompt(ctx, sess.ID, PromptInput{
		Content: "run the tests", Mode: "send", SenderSessionID: "sess_coord",
	}))
	require.Len(t, rec.topics(events.SessionPromptSend), 1)

	updated, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	last := updated.Timeline[len(updated.Timeline)-1]
	assert.Equal(t, domain.TimelinePromptReceived, last.Type)
	assert.Equal(t, "run the tests", last.Message)
}
