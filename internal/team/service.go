package team

import (
	"context"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/maestro/maestro/internal/common/errors"
	"github.com/maestro/maestro/internal/common/ident"
	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/domain"
	"github.com/maestro/maestro/internal/events"
	"github.com/maestro/maestro/internal/events/bus"
	"github.com/maestro/maestro/internal/store"
)

// Service owns team groupings. Invariants: leaderId is a member, every
// referenced id exists in the same project, and the sub-team graph stays
// acyclic.
type Service struct {
	teams   store.TeamRepository
	members *MemberService
	bus     bus.EventBus
	logger  *logger.Logger
}

// NewService creates a team service.
func NewService(st store.Store, members *MemberService, eventBus bus.EventBus, log *logger.Logger) *Service {
	return &Service{
		teams:   st.Teams(),
		members: members,
		bus:     eventBus,
		logger:  log.WithFields(zap.String("component", "team-service")),
	}
}

// CreateInput carries the writable team fields.
type CreateInput struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"memberIds"`
	LeaderID  string   `json:"leaderId"`
}

// Create validates membership and stores a new team.
func (s *Service) Create(ctx context.Context, projectID string, input CreateInput) (*domain.Team, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.Validation("team name is required")
	}
	if err := s.validateMembership(ctx, projectID, input.MemberIDs, input.LeaderID); err != nil {
		return nil, err
	}
	t := &domain.Team{
		ID:        ident.Team(),
		ProjectID: projectID,
		Name:      name,
		MemberIDs: input.MemberIDs,
		LeaderID:  input.LeaderID,
	}
	if err := s.teams.Create(ctx, t); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TeamCreated, t)
	s.logger.Info("team created", zap.String("team_id", t.ID), zap.String("name", t.Name))
	return t, nil
}

// Get returns one team.
func (s *Service) Get(ctx context.Context, id string) (*domain.Team, error) {
	return s.teams.Get(ctx, id)
}

// List returns the project's teams.
func (s *Service) List(ctx context.Context, projectID string) ([]*domain.Team, error) {
	return s.teams.List(ctx, projectID)
}

// UpdateInput carries optional team updates; nil fields are unchanged.
type UpdateInput struct {
	Name      *string   `json:"name"`
	MemberIDs *[]string `json:"memberIds"`
	LeaderID  *string   `json:"leaderId"`
}

// Update applies the non-nil fields, re-validating membership.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*domain.Team, error) {
	t, err := s.teams.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.Validation("team name cannot be empty")
		}
		t.Name = name
	}
	memberIDs := t.MemberIDs
	if input.MemberIDs != nil {
		memberIDs = *input.MemberIDs
	}
	leaderID := t.LeaderID
	if input.LeaderID != nil {
		leaderID = *input.LeaderID
	}
	if err := s.validateMembership(ctx, t.ProjectID, memberIDs, leaderID); err != nil {
		return nil, err
	}
	t.MemberIDs = memberIDs
	t.LeaderID = leaderID
	if err := s.teams.Update(ctx, t); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TeamUpdated, t)
	return t, nil
}

// Delete removes a team, unlinking it from its parent and clearing the
// parent pointer of its sub-teams.
func (s *Service) Delete(ctx context.Context, id string) error {
	t, err := s.teams.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.ParentTeamID != "" {
		if parent, err := s.teams.Get(ctx, t.ParentTeamID); err == nil {
			parent.SubTeamIDs = removeID(parent.SubTeamIDs, id)
			if err := s.teams.Update(ctx, parent); err != nil {
				return err
			}
		}
	}
	for _, childID := range t.SubTeamIDs {
		child, err := s.teams.Get(ctx, childID)
		if err != nil {
			continue
		}
		if child.ParentTeamID == id {
			child.ParentTeamID = ""
			if err := s.teams.Update(ctx, child); err != nil {
				return err
			}
		}
	}
	if err := s.teams.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.TeamDeleted, map[string]string{"id": id})
	s.logger.Info("team deleted", zap.String("team_id", id))
	return nil
}

// AddSubTeam nests child under parent and mirrors the link on the child.
// The link is rejected when it would close a cycle.
func (s *Service) AddSubTeam(ctx context.Context, parentID, childID string) (*domain.Team, error) {
	if parentID == childID {
		return nil, apperrors.Conflict("a team cannot be its own sub-team")
	}
	parent, err := s.teams.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}
	child, err := s.teams.Get(ctx, childID)
	if err != nil {
		return nil, err
	}
	if child.ProjectID != parent.ProjectID {
		return nil, apperrors.Validation("sub-team must belong to the same project")
	}
	if parent.HasSubTeam(childID) {
		return parent, nil
	}
	// The parent must not be reachable from the proposed child.
	reachable, err := s.isDescendant(ctx, childID, parentID)
	if err != nil {
		return nil, err
	}
	if reachable {
		return nil, apperrors.Conflict("sub-team link would create a cycle")
	}

	parent.SubTeamIDs = append(parent.SubTeamIDs, childID)
	if err := s.teams.Update(ctx, parent); err != nil {
		return nil, err
	}
	child.ParentTeamID = parentID
	if err := s.teams.Update(ctx, child); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TeamUpdated, parent)
	s.publish(ctx, events.TeamUpdated, child)
	return parent, nil
}

// RemoveSubTeam unlinks child from parent, clearing the child's parent
// pointer iff it still points at the remover.
func (s *Service) RemoveSubTeam(ctx context.Context, parentID, childID string) (*domain.Team, error) {
	parent, err := s.teams.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.HasSubTeam(childID) {
		return parent, nil
	}
	parent.SubTeamIDs = removeID(parent.SubTeamIDs, childID)
	if err := s.teams.Update(ctx, parent); err != nil {
		return nil, err
	}
	if child, err := s.teams.Get(ctx, childID); err == nil && child.ParentTeamID == parentID {
		child.ParentTeamID = ""
		if err := s.teams.Update(ctx, child); err != nil {
			return nil, err
		}
		s.publish(ctx, events.TeamUpdated, child)
	}
	s.publish(ctx, events.TeamUpdated, parent)
	return parent, nil
}

// isDescendant reports whether target is reachable from rootID through
// sub-team links.
func (s *Service) isDescendant(ctx context.Context, rootID, target string) (bool, error) {
	stack := []string{rootID}
	seen := map[string]struct{}{}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		t, err := s.teams.Get(ctx, id)
		if err != nil {
			if apperrors.IsNotFound(err) {
				continue
			}
			return false, err
		}
		for _, sub := range t.SubTeamIDs {
			if sub == target {
				return true, nil
			}
			stack = append(stack, sub)
		}
	}
	return false, nil
}

func (s *Service) validateMembership(ctx context.Context, projectID string, memberIDs []string, leaderID string) error {
	if len(memberIDs) == 0 {
		return apperrors.Validation("team requires at least one member")
	}
	seen := make(map[string]struct{}, len(memberIDs))
	leaderFound := false
	for _, id := range memberIDs {
		if _, dup := seen[id]; dup {
			return apperrors.Validationf("duplicate member id '%s'", id)
		}
		seen[id] = struct{}{}
		m, err := s.members.Get(ctx, projectID, id)
		if err != nil {
			return err
		}
		if !m.IsDefault && m.ProjectID != projectID {
			return apperrors.Validationf("member '%s' belongs to another project", id)
		}
		if id == leaderID {
			leaderFound = true
		}
	}
	if !leaderFound {
		return apperrors.Conflict("team leader must be one of the members")
	}
	return nil
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func (s *Service) publish(ctx context.Context, topic string, data interface{}) {
	if err := s.bus.Publish(ctx, topic, bus.NewEvent(topic, "team-service", data)); err != nil {
		s.logger.Error("failed to publish event", zap.String("topic", topic), zap.Error(err))
	}
}
