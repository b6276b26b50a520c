package mail

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/maestro/maestro/internal/common/errors"
	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/domain"
	"github.com/maestro/maestro/internal/events"
	"github.com/maestro/maestro/internal/events/bus"
	"github.com/maestro/maestro/internal/store"
)

func newFixture(t *testing.T) (*Service, *store.MemoryStore, *bus.MemoryEventBus) {
	t.Helper()
	log := logger.Default()
	st := store.NewMemoryStore()
	eventBus := bus.NewMemoryEventBus(log)
	svc := NewService(st, eventBus, log)
	require.NoError(t, st.Projects().Create(context.Background(), &domain.Project{ID: "p1", Name: "p1"}))
	return svc, st, eventBus
}

func addSession(t *testing.T, st *store.MemoryStore, id, teamMemberID, parentID string, status domain.SessionStatus) {
	t.Helper()
	require.NoError(t, st.Sessions().Create(context.Background(), &domain.Session{
		ID: id, ProjectID: "p1", TeamMemberID: teamMemberID, ParentSessionID: parentID, Status: status,
	}))
}

func TestSendDirectAndThreading(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	root, err := svc.Send(ctx, SendInput{ProjectID: "p1", FromSessionID: "s1", ToSessionID: "s2", Body: "hello"})
	require.NoError(t, err)
	require.Len(t, root, 1)
	assert.Equal(t, root[0].ID, root[0].ThreadID, "root mail threads on its own id")

	reply, err := svc.Send(ctx, SendInput{
		ProjectID: "p1", FromSessionID: "s2", ToSessionID: "s1",
		ReplyToMailID: root[0].ID, Body: "hi back",
	})
	require.NoError(t, err)
	require.Len(t, reply, 1)
	assert.Equal(t, root[0].ThreadID, reply[0].ThreadID)

	nested, err := svc.Send(ctx, SendInput{
		ProjectID: "p1", FromSessionID: "s1", ToSessionID: "s2",
		ReplyToMailID: reply[0].ID, Body: "deeper",
	})
	require.NoError(t, err)
	assert.Equal(t, root[0].ThreadID, nested[0].ThreadID, "thread id inherits from the chain root")

	thread, err := svc.Thread(ctx, root[0].ThreadID)
	require.NoError(t, err)
	assert.Len(t, thread, 3)
}

func TestSendTeamMemberFanOut(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newFixture(t)
	addSession(t, st, "s1", "tm_dev", "", domain.SessionStatusWorking)
	addSession(t, st, "s2", "tm_dev", "", domain.SessionStatusIdle)
	addSession(t, st, "s3", "tm_dev", "", domain.SessionStatusStopped)    // inactive
	addSession(t, st, "s4", "tm_ops", "", domain.SessionStatusWorking)    // other member
	addSession(t, st, "s5", "tm_dev", "", domain.SessionStatusNeedsInput) // out of the fan-out set

	sent, err := svc.Send(ctx, SendInput{ProjectID: "p1", ToTeamMemberID: "tm_dev", Body: "standup"})
	require.NoError(t, err)
	var recipients []string
	for _, m := range sent {
		recipients = append(recipients, m.ToSessionID)
	}
	assert.ElementsMatch(t, []string{"s1", "s2"}, recipients)
}

func TestSendScopes(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newFixture(t)
	addSession(t, st, "coord", "", "", domain.SessionStatusWorking)
	addSession(t, st, "w1", "", "coord", domain.SessionStatusWorking)
	addSession(t, st, "w2", "", "coord", domain.SessionStatusIdle)
	addSession(t, st, "w3", "", "coord", domain.SessionStatusFailed)     // inactive
	addSession(t, st, "w4", "", "coord", domain.SessionStatusNeedsInput) // out of the fan-out set

	sent, err := svc.Send(ctx, SendInput{
		ProjectID: "p1", FromSessionID: "coord", Scope: ScopeMyWorkers, Body: "report in",
	})
	require.NoError(t, err)
	var recipients []string
	for _, m := range sent {
		recipients = append(recipients, m.ToSessionID)
	}
	assert.ElementsMatch(t, []string{"w1", "w2"}, recipients)

	// team scope: siblings of the sender, excluding the sender.
	sent, err = svc.Send(ctx, SendInput{
		ProjectID: "p1", FromSessionID: "w1", Scope: ScopeTeam, Body: "anyone blocked?",
	})
	require.NoError(t, err)
	recipients = recipients[:0]
	for _, m := range sent {
		recipients = append(recipients, m.ToSessionID)
	}
	assert.ElementsMatch(t, []string{"w2"}, recipients)
}

func TestInboxPriorityOrdering(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newFixture(t)

	base := time.Unix(0, 0).UTC()
	seedMail := func(id string, priority domain.MailPriority, at int64) {
		require.NoError(t, st.Mail().Create(ctx, &domain.Mail{
			ID: id, ProjectID: "p1", ToSessionID: "s1", ThreadID: id,
			Priority: priority, Body: id, CreatedAt: base.Add(time.Duration(at) * time.Second),
		}))
	}
	seedMail("A", domain.MailPriorityNormal, 100)
	seedMail("B", domain.MailPriorityCritical, 200)
	seedMail("C", domain.MailPriorityHigh, 150)
	seedMail("D", domain.MailPriorityCritical, 150)

	inbox, err := svc.Inbox(ctx, "p1", "s1")
	require.NoError(t, err)
	var order []string
	for _, m := range inbox {
		order = append(order, m.ID)
	}
	assert.Equal(t, []string{"D", "B", "C", "A"}, order)
}

func TestInboxUnsetPriorityRanksAsNormal(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newFixture(t)

	base := time.Unix(0, 0).UTC()
	require.NoError(t, st.Mail().Create(ctx, &domain.Mail{
		ID: "unset", ProjectID: "p1", ToSessionID: "s1", ThreadID: "unset",
		Body: "x", CreatedAt: base.Add(1 * time.Second),
	}))
	require.NoError(t, st.Mail().Create(ctx, &domain.Mail{
		ID: "normal", ProjectID: "p1", ToSessionID: "s1", ThreadID: "normal",
		Priority: domain.MailPriorityNormal, Body: "y", CreatedAt: base.Add(2 * time.Second),
	}))
	require.NoError(t, st.Mail().Create(ctx, &domain.Mail{
		ID: "low", ProjectID: "p1", ToSessionID: "s1", ThreadID: "low",
		Priority: domain.MailPriorityLow, Body: "z", CreatedAt: base,
	}))

	inbox, err := svc.Inbox(ctx, "p1", "s1")
	require.NoError(t, err)
	var order []string
	for _, m := range inbox {
		order = append(order, m.ID)
	}
	assert.Equal(t, []string{"unset", "normal", "low"}, order)
}

func TestWaitReturnsExistingMailImmediately(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	_, err := svc.Send(ctx, SendInput{ProjectID: "p1", FromSessionID: "s1", ToSessionID: "s2", Body: "early"})
	require.NoError(t, err)

	start := time.Now()
	msgs, err := svc.Wait(ctx, "p1", "s2", time.Time{}, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "early", msgs[0].Body)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestWaitWakesOnMatchingMail(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	type result struct {
		msgs []*domain.Mail
		err  error
	}
	s2done := make(chan result, 1)
	s3done := make(chan result, 1)
	go func() {
		msgs, err := svc.Wait(ctx, "p1", "s2", time.Now(), time.Second)
		s2done <- result{msgs, err}
	}()
	go func() {
		msgs, err := svc.Wait(ctx, "p1", "s3", time.Now(), 300*time.Millisecond)
		s3done <- result{msgs, err}
	}()

	time.Sleep(50 * time.Millisecond)
	_, err := svc.Send(ctx, SendInput{ProjectID: "p1", FromSessionID: "s1", ToSessionID: "s2", Body: "wake up"})
	require.NoError(t, err)

	select {
	case r := <-s2done:
		require.NoError(t, r.err)
		require.Len(t, r.msgs, 1)
		assert.Equal(t, "wake up", r.msgs[0].Body)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("waiter for s2 did not wake")
	}

	// The s3 waiter must not see s2's mail and times out empty.
	select {
	case r := <-s3done:
		require.NoError(t, r.err)
		assert.Empty(t, r.msgs)
	case <-time.After(time.Second):
		t.Fatal("waiter for s3 did not time out")
	}
}

func TestWaitWakesOnOpaqueEventPayload(t *testing.T) {
	ctx := context.Background()
	svc, st, eventBus := newFixture(t)

	done := make(chan []*domain.Mail, 1)
	go func() {
		msgs, _ := svc.Wait(ctx, "p1", "s2", time.Time{}, time.Second)
		done <- msgs
	}()
	time.Sleep(50 * time.Millisecond)

	// Store the message and announce it the way a cross-process bus
	// delivers it: the event payload is a decoded JSON map, not a
	// *domain.Mail. The waiter must re-query the inbox rather than
	// inspect the payload.
	require.NoError(t, st.Mail().Create(ctx, &domain.Mail{
		ID: "m1", ProjectID: "p1", ToSessionID: "s2", ThreadID: "m1",
		Body: "hello", CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, eventBus.Publish(ctx, events.MailReceived,
		bus.NewEvent(events.MailReceived, "mail-service", map[string]interface{}{"id": "m1"})))

	select {
	case msgs := <-done:
		require.Len(t, msgs, 1)
		assert.Equal(t, "hello", msgs[0].Body)
	case <-time.After(time.Second):
		t.Fatal("waiter did not wake")
	}
}

func TestWaitSubscribesBeforeScanning(t *testing.T) {
	ctx := context.Background()
	svc, st, eventBus := newFixture(t)

	// A message stored without its event (the event was missed) is still
	// returned: any later receipt triggers a full inbox re-query.
	done := make(chan []*domain.Mail, 1)
	go func() {
		msgs, _ := svc.Wait(ctx, "p1", "s2", time.Time{}, time.Second)
		done <- msgs
	}()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, st.Mail().Create(ctx, &domain.Mail{
		ID: "missed", ProjectID: "p1", ToSessionID: "s2", ThreadID: "missed",
		Body: "slipped through", CreatedAt: time.Now().UTC(),
	}))
	// An event for unrelated mail wakes the waiter; the re-query finds
	// the stored message.
	require.NoError(t, eventBus.Publish(ctx, events.MailReceived,
		bus.NewEvent(events.MailReceived, "mail-service", map[string]interface{}{"id": "other"})))

	select {
	case msgs := <-done:
		require.Len(t, msgs, 1)
		assert.Equal(t, "slipped through", msgs[0].Body)
	case <-time.After(time.Second):
		t.Fatal("waiter did not wake")
	}
}

func TestWaitTimeoutCaps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc, _, _ := newFixture(t)

	// A cancelled context resolves the wait without waiting for the timer.
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	msgs, err := svc.Wait(ctx, "p1", "s2", time.Now(), MaxWaitTimeout)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDeleteMissingMail(t *testing.T) {
	svc, _, _ := newFixture(t)
	err := svc.Delete(context.Background(), "mail_missing")
	assert.True(t, apperrors.IsNotFound(err))
}
