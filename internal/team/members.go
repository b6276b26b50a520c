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

// MemberService owns team member profiles. Edits to default members write
// an overlay entry; resetDefault drops it.
type MemberService struct {
	members  store.TeamMemberRepository
	projects store.ProjectRepository
	bus      bus.EventBus
	logger   *logger.Logger
}

// NewMemberService creates a member service.
func NewMemberService(st store.Store, eventBus bus.EventBus, log *logger.Logger) *MemberService {
	return &MemberService{
		members:  st.TeamMembers(),
		projects: st.Projects(),
		bus:      eventBus,
		logger:   log.WithFields(zap.String("component", "team-member-service")),
	}
}

// MemberInput carries the writable profile fields.
type MemberInput struct {
	Name               string   `json:"name"`
	Role               string   `json:"role"`
	Avatar             string   `json:"avatar"`
	Model              string   `json:"model"`
	AgentTool          string   `json:"agentTool"`
	Mode               string   `json:"mode"`
	SkillIDs           []string `json:"skillIds"`
	Capabilities       []string `json:"capabilities"`
	CommandPermissions []string `json:"commandPermissions"`
}

// Create stores a custom member and emits team_member:created.
func (s *MemberService) Create(ctx context.Context, projectID string, input MemberInput) (*domain.TeamMember, error) {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.Validation("team member name is required")
	}
	m := &domain.TeamMember{
		ID:                 ident.TeamMember(),
		ProjectID:          projectID,
		Name:               name,
		Role:               input.Role,
		Avatar:             input.Avatar,
		Model:              input.Model,
		AgentTool:          input.AgentTool,
		Mode:               input.Mode,
		SkillIDs:           input.SkillIDs,
		Capabilities:       input.Capabilities,
		CommandPermissions: input.CommandPermissions,
		Status:             domain.TeamMemberActive,
	}
	if err := s.members.Create(ctx, m); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TeamMemberCreated, m)
	s.logger.Info("team member created", zap.String("member_id", m.ID), zap.String("name", m.Name))
	return m, nil
}

// Get resolves a member id: overlay-shadowed default first, then the store.
func (s *MemberService) Get(ctx context.Context, projectID, id string) (*domain.TeamMember, error) {
	if def := defaultMember(id); def != nil {
		if overlay, err := s.members.GetOverlay(ctx, id); err == nil {
			overlay.ProjectID = projectID
			return overlay, nil
		}
		def.ProjectID = projectID
		return def, nil
	}
	return s.members.Get(ctx, id)
}

// List returns the default profiles (overlays applied) followed by the
// project's custom members.
func (s *MemberService) List(ctx context.Context, projectID string) ([]*domain.TeamMember, error) {
	var out []*domain.TeamMember
	for _, def := range defaultMembers() {
		m := def
		if overlay, err := s.members.GetOverlay(ctx, def.ID); err == nil {
			m = overlay
		}
		m.ProjectID = projectID
		out = append(out, m)
	}
	custom, err := s.members.List(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return append(out, custom...), nil
}

// Update applies profile edits. Default members are never written in place:
// the merged result goes to the overlay.
func (s *MemberService) Update(ctx context.Context, projectID, id string, input MemberInput) (*domain.TeamMember, error) {
	m, err := s.Get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	applyInput(m, input)
	if err := s.save(ctx, m); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TeamMemberUpdated, m)
	return m, nil
}

// Archive moves a member to archived. A second call changes nothing and
// emits no event.
func (s *MemberService) Archive(ctx context.Context, projectID, id string) (*domain.TeamMember, error) {
	m, err := s.Get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if m.Status == domain.TeamMemberArchived {
		return m, nil
	}
	m.Status = domain.TeamMemberArchived
	if err := s.save(ctx, m); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TeamMemberArchived, m)
	return m, nil
}

// ResetDefault drops the overlay of a default member, restoring the code
// values.
func (s *MemberService) ResetDefault(ctx context.Context, projectID, id string) (*domain.TeamMember, error) {
	def := defaultMember(id)
	if def == nil {
		return nil, apperrors.Validation("only default team members can be reset")
	}
	if err := s.members.DeleteOverlay(ctx, id); err != nil && !apperrors.IsNotFound(err) {
		return nil, err
	}
	def.ProjectID = projectID
	s.publish(ctx, events.TeamMemberUpdated, def)
	return def, nil
}

// Delete removes a custom, archived member. Defaults are never deletable.
func (s *MemberService) Delete(ctx context.Context, projectID, id string) error {
	m, err := s.Get(ctx, projectID, id)
	if err != nil {
		return err
	}
	if m.IsDefault {
		return apperrors.Forbidden("default team members cannot be deleted")
	}
	if m.Status != domain.TeamMemberArchived {
		return apperrors.Conflict("team member must be archived before deletion")
	}
	if err := s.members.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.TeamMemberDeleted, map[string]string{"id": id})
	s.logger.Info("team member deleted", zap.String("member_id", id))
	return nil
}

// save routes the write to the overlay table for defaults and to the
// member table otherwise.
func (s *MemberService) save(ctx context.Context, m *domain.TeamMember) error {
	if m.IsDefault {
		return s.members.SaveOverlay(ctx, m)
	}
	return s.members.Update(ctx, m)
}

func applyInput(m *domain.TeamMember, input MemberInput) {
	if name := strings.TrimSpace(input.Name); name != "" {
		m.Name = name
	}
	if input.Role != "" {
		m.Role = input.Role
	}
	if input.Avatar != "" {
		m.Avatar = input.Avatar
	}
	if input.Model != "" {
		m.Model = input.Model
	}
	if input.AgentTool != "" {
		m.AgentTool = input.AgentTool
	}
	if input.Mode != "" {
		m.Mode = input.Mode
	}
	if input.SkillIDs != nil {
		m.SkillIDs = input.SkillIDs
	}
	if input.Capabilities != nil {
		m.Capabilities = input.Capabilities
	}
	if input.CommandPermissions != nil {
		m.CommandPermissions = input.CommandPermissions
	}
}

func (s *MemberService) publish(ctx context.Context, topic string, data interface{}) {
	if err := s.bus.Publish(ctx, topic, bus.NewEvent(topic, "team-member-service", data)); err != nil {
		s.logger.Error("failed to publish event", zap.String("topic", topic), zap.Error(err))
	}
}
