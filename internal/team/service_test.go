package team

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/maestro/maestro/internal/common/errors"
	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/domain"
	"github.com/maestro/maestro/internal/events"
	"github.com/maestro/maestro/internal/events/bus"
	"github.com/maestro/maestro/internal/store"
)

func newFixture(t *testing.T) (*Service, *MemberService, bus.EventBus) {
	t.Helper()
	ctx := context.Background()
	log := logger.Default()
	st := store.NewMemoryStore()
	eventBus := bus.NewMemoryEventBus(log)

	members := NewMemberService(st, eventBus, log)
	teams := NewService(st, members, eventBus, log)

	require.NoError(t, st.Projects().Create(ctx, &domain.Project{ID: "p1", Name: "p1"}))
	return teams, members, eventBus
}

func TestDefaultMembersListedWithCustoms(t *testing.T) {
	ctx := context.Background()
	_, members, _ := newFixture(t)

	custom, err := members.Create(ctx, "p1", MemberInput{Name: "Scout"})
	require.NoError(t, err)

	all, err := members.List(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, all, 5, "four defaults plus one custom")
	assert.True(t, all[0].IsDefault)
	assert.Equal(t, custom.ID, all[4].ID)
	for _, m := range all {
		assert.Equal(t, "p1", m.ProjectID)
	}
}

func TestDefaultMemberEditsGoToOverlay(t *testing.T) {
	ctx := context.Background()
	_, members, _ := newFixture(t)

	updated, err := members.Update(ctx, "p1", DefaultCoderID, MemberInput{Model: "sonnet"})
	require.NoError(t, err)
	assert.Equal(t, "sonnet", updated.Model)
	assert.True(t, updated.IsDefault)

	got, err := members.Get(ctx, "p1", DefaultCoderID)
	require.NoError(t, err)
	assert.Equal(t, "sonnet", got.Model)

	// Reset restores the code values.
	reset, err := members.ResetDefault(ctx, "p1", DefaultCoderID)
	require.NoError(t, err)
	assert.Empty(t, reset.Model)

	got, err = members.Get(ctx, "p1", DefaultCoderID)
	require.NoError(t, err)
	assert.Empty(t, got.Model)
}

func TestArchiveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	_, members, eventBus := newFixture(t)

	m, err := members.Create(ctx, "p1", MemberInput{Name: "Scout"})
	require.NoError(t, err)

	var archived int
	eventBus.Subscribe(events.TeamMemberArchived, func(ctx context.Context, e *bus.Event) error {
		archived++
		return nil
	})

	first, err := members.Archive(ctx, "p1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TeamMemberArchived, first.Status)

	second, err := members.Archive(ctx, "p1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TeamMemberArchived, second.Status)
	assert.Equal(t, 1, archived, "second archive emits nothing")
}

func TestDeleteRules(t *testing.T) {
	ctx := context.Background()
	_, members, _ := newFixture(t)

	err := members.Delete(ctx, "p1", DefaultCoderID)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeForbidden, appErr.Code)

	m, err := members.Create(ctx, "p1", MemberInput{Name: "Scout"})
	require.NoError(t, err)

	err = members.Delete(ctx, "p1", m.ID)
	assert.True(t, apperrors.IsConflict(err), "active members cannot be deleted")

	_, err = members.Archive(ctx, "p1", m.ID)
	require.NoError(t, err)
	require.NoError(t, members.Delete(ctx, "p1", m.ID))

	_, err = members.Get(ctx, "p1", m.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestTeamLeaderMustBeMember(t *testing.T) {
	ctx := context.Background()
	teams, _, _ := newFixture(t)

	_, err := teams.Create(ctx, "p1", CreateInput{
		Name:      "core",
		MemberIDs: []string{DefaultCoderID},
		LeaderID:  DefaultTesterID,
	})
	assert.True(t, apperrors.IsConflict(err))

	team, err := teams.Create(ctx, "p1", CreateInput{
		Name:      "core",
		MemberIDs: []string{DefaultCoderID, DefaultTesterID},
		LeaderID:  DefaultCoderID,
	})
	require.NoError(t, err)

	// Removing the leader from the member set is rejected.
	memberIDs := []string{DefaultTesterID}
	_, err = teams.Update(ctx, team.ID, UpdateInput{MemberIDs: &memberIDs})
	assert.True(t, apperrors.IsConflict(err))
}

func TestSubTeamCycleRejected(t *testing.T) {
	ctx := context.Background()
	teams, _, _ := newFixture(t)

	mk := func(name string) *domain.Team {
		team, err := teams.Create(ctx, "p1", CreateInput{
			Name:      name,
			MemberIDs: []string{DefaultCoderID},
			LeaderID:  DefaultCoderID,
		})
		require.NoError(t, err)
		return team
	}
	a, b, c := mk("a"), mk("b"), mk("c")

	_, err := teams.AddSubTeam(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = teams.AddSubTeam(ctx, b.ID, c.ID)
	require.NoError(t, err)

	child, err := teams.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, child.ParentTeamID)

	// c -> a would make a reachable from its own descendant.
	_, err = teams.AddSubTeam(ctx, c.ID, a.ID)
	assert.True(t, apperrors.IsConflict(err))

	_, err = teams.AddSubTeam(ctx, a.ID, a.ID)
	assert.True(t, apperrors.IsConflict(err))
}

func TestRemoveSubTeamClearsMirror(t *testing.T) {
	ctx := context.Background()
	teams, _, _ := newFixture(t)

	mk := func(name string) *domain.Team {
		team, err := teams.Create(ctx, "p1", CreateInput{
			Name:      name,
			MemberIDs: []string{DefaultCoderID},
			LeaderID:  DefaultCoderID,
		})
		require.NoError(t, err)
		return team
	}
	parent, child := mk("parent"), mk("child")

	_, err := teams.AddSubTeam(ctx, parent.ID, child.ID)
	require.NoError(t, err)

	updated, err := teams.RemoveSubTeam(ctx, parent.ID, child.ID)
	require.NoError(t, err)
	assert.Empty(t, updated.SubTeamIDs)

	got, err := teams.Get(ctx, child.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ParentTeamID)
}

func TestDeleteTeamUnlinksChildren(t *testing.T) {
	ctx := context.Background()
	teams, _, _ := newFixture(t)

	mk := func(name string) *domain.Team {
		team, err := teams.Create(ctx, "p1", CreateInput{
			Name:      name,
			MemberIDs: []string{DefaultCoderID},
			LeaderID:  DefaultCoderID,
		})
		require.NoError(t, err)
		return team
	}
	parent, child := mk("parent"), mk("child")
	_, err := teams.AddSubTeam(ctx, parent.ID, child.ID)
	require.NoError(t, err)

	require.NoError(t, teams.Delete(ctx, parent.ID))

	got, err := teams.Get(ctx, child.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ParentTeamID)
}
