// Package task implements task CRUD, hierarchical cascade delete, the
// privileged-vs-agent update split, and task-side session linking.
package task

import (
	"context"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/maestro/maestro/internal/common/errors"
	"github.com/maestro/maestro/internal/common/ident"
	"github.com/maestro/maestro/internal/common/kmutex"
	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/domain"
	"github.com/maestro/maestro/internal/events"
	"github.com/maestro/maestro/internal/events/bus"
	"github.com/maestro/maestro/internal/store"
)

// UpdateSource identifies who is asking for a task update. Agents may only
// touch their own per-session status; everything else is user-writable.
type UpdateSource string

const (
	UpdateSourceUser    UpdateSource = "user"
	UpdateSourceSession UpdateSource = "session"
)

// Service owns task mutations.
type Service struct {
	tasks    store.TaskRepository
	sessions store.SessionRepository
	projects store.ProjectRepository
	bus      bus.EventBus
	locks    *kmutex.KeyedMutex
	logger   *logger.Logger
}

// NewService creates a task service. The locks argument is shared with the
// session service so cross-entity linking serializes on the same keys.
func NewService(st store.Store, eventBus bus.EventBus, locks *kmutex.KeyedMutex, log *logger.Logger) *Service {
	return &Service{
		tasks:    st.Tasks(),
		sessions: st.Sessions(),
		projects: st.Projects(),
		bus:      eventBus,
		locks:    locks,
		logger:   log.WithFields(zap.String("component", "task-service")),
	}
}

// CreateInput carries the user-writable task fields.
type CreateInput struct {
	ProjectID     string            `json:"projectId"`
	ParentID      string            `json:"parentId"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	Status        domain.TaskStatus `json:"status"`
	Priority      int               `json:"priority"`
	InitialPrompt string            `json:"initialPrompt"`
	SkillIDs      []string          `json:"skillIds"`
	AgentIDs      []string          `json:"agentIds"`
	Dependencies  []string          `json:"dependencies"`
}

// Create validates project and optional parent, stores the task and emits
// task:created.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.Validation("task title is required")
	}
	if input.ProjectID == "" {
		return nil, apperrors.Validation("projectId is required")
	}
	if _, err := s.projects.Get(ctx, input.ProjectID); err != nil {
		return nil, err
	}
	if input.ParentID != "" {
		parent, err := s.tasks.Get(ctx, input.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.ProjectID != input.ProjectID {
			return nil, apperrors.Validation("parent task belongs to a different project")
		}
	}
	status := input.Status
	if status == "" {
		status = domain.TaskStatusPending
	}
	if !domain.ValidTaskStatus(status) {
		return nil, apperrors.Validationf("invalid task status %q", status)
	}
	t := &domain.Task{
		ID:            ident.Task(),
		ProjectID:     input.ProjectID,
		ParentID:      input.ParentID,
		Title:         title,
		Description:   input.Description,
		Status:        status,
		Priority:      input.Priority,
		SessionIDs:    []string{},
		InitialPrompt: input.InitialPrompt,
		SkillIDs:      input.SkillIDs,
		AgentIDs:      input.AgentIDs,
		Dependencies:  input.Dependencies,
	}
	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TaskCreated, t)
	s.logger.Info("task created", zap.String("task_id", t.ID), zap.String("project_id", t.ProjectID))
	return t, nil
}

// Get returns one task.
func (s *Service) Get(ctx context.Context, id string) (*domain.Task, error) {
	return s.tasks.Get(ctx, id)
}

// List returns tasks matching the filter.
func (s *Service) List(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	return s.tasks.List(ctx, filter)
}

// ListChildren returns the direct children of a task.
func (s *Service) ListChildren(ctx context.Context, parentID string) ([]*domain.Task, error) {
	if _, err := s.tasks.Get(ctx, parentID); err != nil {
		return nil, err
	}
	return s.tasks.ListChildren(ctx, parentID)
}

// UpdateInput carries optional task updates; nil fields are unchanged.
// TaskSessionStatuses entries are merged, not replaced.
type UpdateInput struct {
	Title               *string                             `json:"title"`
	Description         *string                             `json:"description"`
	Status              *domain.TaskStatus                  `json:"status"`
	Priority            *int                                `json:"priority"`
	InitialPrompt       *string                             `json:"initialPrompt"`
	SkillIDs            []string                            `json:"skillIds"`
	AgentIDs            []string                            `json:"agentIds"`
	Dependencies        []string                            `json:"dependencies"`
	TaskSessionStatuses map[string]domain.TaskSessionStatus `json:"taskSessionStatuses"`
}

// Update applies an update honoring the privilege split: a session source
// may only change its own per-session status, everything else in the
// payload is silently ignored. Notifications are decided against a snapshot
// taken before mutation.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput, source UpdateSource, sessionID string) (*domain.Task, error) {
	s.locks.Lock("task:" + id)
	defer s.locks.Unlock("task:" + id)

	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	oldStatus := t.Status
	oldSessionStatuses := make(map[string]domain.TaskSessionStatus, len(t.TaskSessionStatuses))
	for k, v := range t.TaskSessionStatuses {
		oldSessionStatuses[k] = v
	}

	if source == UpdateSourceSession {
		if sessionID == "" {
			return nil, apperrors.Validation("sessionId is required for session-sourced updates")
		}
		status, ok := input.TaskSessionStatuses[sessionID]
		if !ok {
			return nil, apperrors.Validation("session-sourced update carries no status for the session")
		}
		if !domain.ValidTaskSessionStatus(status) {
			return nil, apperrors.Validationf("invalid task session status %q", status)
		}
		if t.TaskSessionStatuses == nil {
			t.TaskSessionStatuses = make(map[string]domain.TaskSessionStatus)
		}
		t.TaskSessionStatuses[sessionID] = status
	} else {
		if input.Title != nil {
			title := strings.TrimSpace(*input.Title)
			if title == "" {
				return nil, apperrors.Validation("task title cannot be empty")
			}
			t.Title = title
		}
		if input.Description != nil {
			t.Description = *input.Description
		}
		if input.Status != nil {
			if !domain.ValidTaskStatus(*input.Status) {
				return nil, apperrors.Validationf("invalid task status %q", *input.Status)
			}
			t.Status = *input.Status
		}
		if input.Priority != nil {
			t.Priority = *input.Priority
		}
		if input.InitialPrompt != nil {
			t.InitialPrompt = *input.InitialPrompt
		}
		if input.SkillIDs != nil {
			t.SkillIDs = input.SkillIDs
		}
		if input.AgentIDs != nil {
			t.AgentIDs = input.AgentIDs
		}
		if input.Dependencies != nil {
			t.Dependencies = input.Dependencies
		}
		for sid, status := range input.TaskSessionStatuses {
			if !domain.ValidTaskSessionStatus(status) {
				return nil, apperrors.Validationf("invalid task session status %q", status)
			}
			if t.TaskSessionStatuses == nil {
				t.TaskSessionStatuses = make(map[string]domain.TaskSessionStatus)
			}
			t.TaskSessionStatuses[sid] = status
		}
	}

	if err := s.tasks.Update(ctx, t); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TaskUpdated, t)
	s.notifyTransitions(ctx, t, oldStatus, oldSessionStatuses)
	return t, nil
}

// SetSessionStatus records one per-session status, used by the queue
// service and by terminal-state propagation.
func (s *Service) SetSessionStatus(ctx context.Context, taskID, sessionID string, status domain.TaskSessionStatus) (*domain.Task, error) {
	return s.Update(ctx, taskID, UpdateInput{
		TaskSessionStatuses: map[string]domain.TaskSessionStatus{sessionID: status},
	}, UpdateSourceSession, sessionID)
}

// notifyTransitions emits notify:* events by comparing the pre-mutation
// snapshot against the stored task.
func (s *Service) notifyTransitions(ctx context.Context, t *domain.Task, oldStatus domain.TaskStatus, oldSessionStatuses map[string]domain.TaskSessionStatus) {
	if t.Status != oldStatus {
		record := map[string]interface{}{"taskId": t.ID, "title": t.Title, "status": t.Status}
		switch t.Status {
		case domain.TaskStatusCompleted:
			s.publish(ctx, events.NotifyTaskCompleted, record)
		case domain.TaskStatusCancelled:
			s.publish(ctx, events.NotifyTaskFailed, record)
		case domain.TaskStatusBlocked:
			s.publish(ctx, events.NotifyTaskBlocked, record)
		}
	}
	for sid, status := range t.TaskSessionStatuses {
		if oldSessionStatuses[sid] == status {
			continue
		}
		record := map[string]interface{}{"taskId": t.ID, "sessionId": sid, "status": status}
		switch status {
		case domain.TaskSessionCompleted:
			s.publish(ctx, events.NotifyTaskSessionCompleted, record)
		case domain.TaskSessionFailed:
			s.publish(ctx, events.NotifyTaskSessionFailed, record)
		}
	}
}

// Delete removes the task and all descendants, children before parents,
// emitting task:deleted per node in that order. Linked sessions are
// unlinked first.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.tasks.Get(ctx, id); err != nil {
		return err
	}
	order, err := s.collectSubtree(ctx, id)
	if err != nil {
		return err
	}
	// order is parents-first; delete in reverse.
	for i := len(order) - 1; i >= 0; i-- {
		t := order[i]
		for _, sessionID := range t.SessionIDs {
			if err := s.unlinkSession(ctx, t.ID, sessionID); err != nil && !apperrors.IsNotFound(err) {
				s.logger.Warn("failed to unlink session during cascade delete",
					zap.String("task_id", t.ID), zap.String("session_id", sessionID), zap.Error(err))
			}
		}
		if err := s.tasks.Delete(ctx, t.ID); err != nil {
			return err
		}
		s.publish(ctx, events.TaskDeleted, map[string]string{"id": t.ID})
	}
	s.logger.Info("task deleted", zap.String("task_id", id), zap.Int("cascade_count", len(order)))
	return nil
}

// collectSubtree returns the task and its descendants in parents-first
// order via breadth-first traversal.
func (s *Service) collectSubtree(ctx context.Context, rootID string) ([]*domain.Task, error) {
	root, err := s.tasks.Get(ctx, rootID)
	if err != nil {
		return nil, err
	}
	order := []*domain.Task{root}
	queue := []string{rootID}
	for len(queue) > 0 {
		parentID := queue[0]
		queue = queue[1:]
		children, err := s.tasks.ListChildren(ctx, parentID)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			order = append(order, child)
			queue = append(queue, child.ID)
		}
	}
	return order, nil
}

// AddSession links a session to a task on both sides and emits
// task:session_added. Locks are taken session first, then task.
func (s *Service) AddSession(ctx context.Context, taskID, sessionID string) (*domain.Task, error) {
	s.locks.Lock("session:" + sessionID)
	defer s.locks.Unlock("session:" + sessionID)
	s.locks.Lock("task:" + taskID)
	defer s.locks.Unlock("task:" + taskID)

	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	t.AddSession(sessionID)
	sess.AddTask(taskID)
	if err := s.tasks.Update(ctx, t); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TaskSessionAdded, map[string]string{"taskId": taskID, "sessionId": sessionID})
	return t, nil
}

// RemoveSession unlinks a session from a task on both sides and emits
// task:session_removed.
func (s *Service) RemoveSession(ctx context.Context, taskID, sessionID string) (*domain.Task, error) {
	s.locks.Lock("session:" + sessionID)
	defer s.locks.Unlock("session:" + sessionID)
	s.locks.Lock("task:" + taskID)
	defer s.locks.Unlock("task:" + taskID)

	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.unlinkSession(ctx, taskID, sessionID); err != nil {
		return nil, err
	}
	t.RemoveSession(sessionID)
	return t, nil
}

// unlinkSession removes the link on both entities and emits
// task:session_removed. Callers hold the relevant locks.
func (s *Service) unlinkSession(ctx context.Context, taskID, sessionID string) error {
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	t.RemoveSession(sessionID)
	if err := s.tasks.Update(ctx, t); err != nil {
		return err
	}
	if sess, err := s.sessions.Get(ctx, sessionID); err == nil {
		sess.RemoveTask(taskID)
		if err := s.sessions.Update(ctx, sess); err != nil {
			return err
		}
	}
	s.publish(ctx, events.TaskSessionRemoved, map[string]string{"taskId": taskID, "sessionId": sessionID})
	return nil
}

func (s *Service) publish(ctx context.Context, topic string, data interface{}) {
	if err := s.bus.Publish(ctx, topic, bus.NewEvent(topic, "task-service", data)); err != nil {
		s.logger.Error("failed to publish event", zap.String("topic", topic), zap.Error(err))
	}
}
