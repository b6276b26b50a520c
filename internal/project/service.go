// Package project implements project CRUD with referential integrity checks
// against tasks and sessions.
package project

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

// Service owns project mutations. Deleting a project requires that no task
// or session still references it.
type Service struct {
	projects store.ProjectRepository
	tasks    store.TaskRepository
	sessions store.SessionRepository
	bus      bus.EventBus
	logger   *logger.Logger
}

// NewService creates a project service.
func NewService(st store.Store, eventBus bus.EventBus, log *logger.Logger) *Service {
	return &Service{
		projects: st.Projects(),
		tasks:    st.Tasks(),
		sessions: st.Sessions(),
		bus:      eventBus,
		logger:   log.WithFields(zap.String("component", "project-service")),
	}
}

// CreateInput carries the user-writable project fields.
type CreateInput struct {
	Name        string `json:"name"`
	WorkingDir  string `json:"workingDir"`
	Description string `json:"description"`
	IsMaster    bool   `json:"isMaster"`
}

// Create stores a new project and emits project:created.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Project, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.Validation("project name is required")
	}
	p := &domain.Project{
		ID:          ident.Project(),
		Name:        name,
		WorkingDir:  strings.TrimSpace(input.WorkingDir),
		Description: input.Description,
		IsMaster:    input.IsMaster,
	}
	if err := s.projects.Create(ctx, p); err != nil {
		return nil, err
	}
	s.publish(ctx, events.ProjectCreated, p)
	s.logger.Info("project created", zap.String("project_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

// Get returns one project.
func (s *Service) Get(ctx context.Context, id string) (*domain.Project, error) {
	return s.projects.Get(ctx, id)
}

// List returns all projects.
func (s *Service) List(ctx context.Context) ([]*domain.Project, error) {
	return s.projects.List(ctx)
}

// UpdateInput carries optional project updates; nil fields are unchanged.
type UpdateInput struct {
	Name        *string `json:"name"`
	WorkingDir  *string `json:"workingDir"`
	Description *string `json:"description"`
}

// Update applies the non-nil fields and emits project:updated.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*domain.Project, error) {
	p, err := s.projects.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.Validation("project name cannot be empty")
		}
		p.Name = name
	}
	if input.WorkingDir != nil {
		p.WorkingDir = strings.TrimSpace(*input.WorkingDir)
	}
	if input.Description != nil {
		p.Description = *input.Description
	}
	if err := s.projects.Update(ctx, p); err != nil {
		return nil, err
	}
	s.publish(ctx, events.ProjectUpdated, p)
	return p, nil
}

// SetMasterStatus toggles the master flag and emits project:updated.
func (s *Service) SetMasterStatus(ctx context.Context, id string, isMaster bool) (*domain.Project, error) {
	p, err := s.projects.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.IsMaster = isMaster
	if err := s.projects.Update(ctx, p); err != nil {
		return nil, err
	}
	s.publish(ctx, events.ProjectUpdated, p)
	return p, nil
}

// Delete removes a project that owns no tasks or sessions, drops its
// orderings, and emits project:deleted.
func (s *Service) Delete(ctx context.Context, id string, orderings store.OrderingRepository) error {
	if _, err := s.projects.Get(ctx, id); err != nil {
		return err
	}
	taskCount, err := s.tasks.CountByProject(ctx, id)
	if err != nil {
		return err
	}
	if taskCount > 0 {
		return apperrors.Conflict("project has tasks; delete them first")
	}
	sessionCount, err := s.sessions.CountByProject(ctx, id)
	if err != nil {
		return err
	}
	if sessionCount > 0 {
		return apperrors.Conflict("project has sessions; delete them first")
	}
	if err := s.projects.Delete(ctx, id); err != nil {
		return err
	}
	if orderings != nil {
		if err := orderings.DeleteByProject(ctx, id); err != nil {
			s.logger.Warn("failed to drop project orderings", zap.String("project_id", id), zap.Error(err))
		}
	}
	s.publish(ctx, events.ProjectDeleted, map[string]string{"id": id})
	s.logger.Info("project deleted", zap.String("project_id", id))
	return nil
}

func (s *Service) publish(ctx context.Context, topic string, data interface{}) {
	if err := s.bus.Publish(ctx, topic, bus.NewEvent(topic, "project-service", data)); err != nil {
		s.logger.Error("failed to publish event", zap.String("topic", topic), zap.Error(err))
	}
}
