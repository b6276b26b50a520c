// Package tasklist implements named ordered task id sequences scoped to one
// project.
package tasklist

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

// Service owns task lists. Lists stay duplicate-free and only reference
// tasks of their own project. Removing the last task leaves an empty list.
type Service struct {
	lists  store.TaskListRepository
	tasks  store.TaskRepository
	bus    bus.EventBus
	logger *logger.Logger
}

// NewService creates a task list service.
func NewService(st store.Store, eventBus bus.EventBus, log *logger.Logger) *Service {
	return &Service{
		lists:  st.TaskLists(),
		tasks:  st.Tasks(),
		bus:    eventBus,
		logger: log.WithFields(zap.String("component", "tasklist-service")),
	}
}

// CreateInput carries the writable task list fields.
type CreateInput struct {
	Name           string   `json:"name"`
	OrderedTaskIDs []string `json:"orderedTaskIds"`
}

// Create validates membership and stores a new list.
func (s *Service) Create(ctx context.Context, projectID string, input CreateInput) (*domain.TaskList, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.Validation("task list name is required")
	}
	if err := s.validateTaskIDs(ctx, projectID, input.OrderedTaskIDs); err != nil {
		return nil, err
	}
	l := &domain.TaskList{
		ID:             ident.TaskList(),
		ProjectID:      projectID,
		Name:           name,
		OrderedTaskIDs: input.OrderedTaskIDs,
	}
	if l.OrderedTaskIDs == nil {
		l.OrderedTaskIDs = []string{}
	}
	if err := s.lists.Create(ctx, l); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TaskListCreated, l)
	s.logger.Info("task list created", zap.String("list_id", l.ID), zap.String("name", l.Name))
	return l, nil
}

// Get returns one list.
func (s *Service) Get(ctx context.Context, id string) (*domain.TaskList, error) {
	return s.lists.Get(ctx, id)
}

// List returns the project's lists.
func (s *Service) List(ctx context.Context, projectID string) ([]*domain.TaskList, error) {
	return s.lists.List(ctx, projectID)
}

// UpdateInput carries optional list updates; nil fields are unchanged.
type UpdateInput struct {
	Name           *string   `json:"name"`
	OrderedTaskIDs *[]string `json:"orderedTaskIds"`
}

// Update applies the non-nil fields, re-validating task membership.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*domain.TaskList, error) {
	l, err := s.lists.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.Validation("task list name cannot be empty")
		}
		l.Name = name
	}
	if input.OrderedTaskIDs != nil {
		if err := s.validateTaskIDs(ctx, l.ProjectID, *input.OrderedTaskIDs); err != nil {
			return nil, err
		}
		l.OrderedTaskIDs = *input.OrderedTaskIDs
		if l.OrderedTaskIDs == nil {
			l.OrderedTaskIDs = []string{}
		}
	}
	if err := s.lists.Update(ctx, l); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TaskListUpdated, l)
	return l, nil
}

// RemoveTask drops one task id from the list. An empty list stays in place.
func (s *Service) RemoveTask(ctx context.Context, id, taskID string) (*domain.TaskList, error) {
	l, err := s.lists.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := l.OrderedTaskIDs[:0]
	for _, v := range l.OrderedTaskIDs {
		if v != taskID {
			out = append(out, v)
		}
	}
	l.OrderedTaskIDs = out
	if l.OrderedTaskIDs == nil {
		l.OrderedTaskIDs = []string{}
	}
	if err := s.lists.Update(ctx, l); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TaskListUpdated, l)
	return l, nil
}

// Delete removes a list.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.lists.Get(ctx, id); err != nil {
		return err
	}
	if err := s.lists.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.TaskListDeleted, map[string]string{"id": id})
	return nil
}

func (s *Service) validateTaskIDs(ctx context.Context, projectID string, taskIDs []string) error {
	seen := make(map[string]struct{}, len(taskIDs))
	for _, id := range taskIDs {
		if _, dup := seen[id]; dup {
			return apperrors.Validationf("duplicate task id '%s'", id)
		}
		seen[id] = struct{}{}
		task, err := s.tasks.Get(ctx, id)
		if err != nil {
			return err
		}
		if task.ProjectID != projectID {
			return apperrors.Validationf("task '%s' belongs to another project", id)
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, topic string, data interface{}) {
	if err := s.bus.Publish(ctx, topic, bus.NewEvent(topic, "tasklist-service", data)); err != nil {
		s.logger.Error("failed to publish event", zap.String("topic", topic), zap.Error(err))
	}
}
