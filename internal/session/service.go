// Package session implements the session lifecycle: creation with task
// linking, status transitions with sticky terminal states, needs-input
// tracking, timeline events, docs and cross-session prompt delivery.
package session

import (
	"context"
	"strings"
	"time"

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

// promptPreviewLength caps the preview recorded in prompt_received timeline
// events.
const promptPreviewLength = 120

// Service owns session mutations.
type Service struct {
	sessions store.SessionRepository
	tasks    store.TaskRepository
	projects store.ProjectRepository
	queues   store.QueueRepository
	bus      bus.EventBus
	locks    *kmutex.KeyedMutex
	logger   *logger.Logger
}

// NewService creates a session service. The locks argument is shared with
// the task service.
func NewService(st store.Store, eventBus bus.EventBus, locks *kmutex.KeyedMutex, log *logger.Logger) *Service {
	return &Service{
		sessions: st.Sessions(),
		tasks:    st.Tasks(),
		projects: st.Projects(),
		queues:   st.Queues(),
		bus:      eventBus,
		locks:    locks,
		logger:   log.WithFields(zap.String("component", "session-service")),
	}
}

// CreateInput carries the session creation fields.
type CreateInput struct {
	ProjectID          string                 `json:"projectId"`
	TaskIDs            []string               `json:"taskIds"`
	Status             domain.SessionStatus   `json:"status"`
	Role               string                 `json:"role"`
	TeamMemberID       string                 `json:"teamMemberId"`
	TeamMemberSnapshot map[string]interface{} `json:"teamMemberSnapshot"`
	ParentSessionID    string                 `json:"parentSessionId"`
	Env                map[string]string      `json:"env"`
}

// CreateOptions alter creation side effects for internal callers.
type CreateOptions struct {
	// SuppressCreatedEvent skips the session:created emission so the spawn
	// orchestrator can emit one consolidated event instead.
	SuppressCreatedEvent bool
}

// Create validates the project and every task, links the session to each
// task on both sides and emits session:created plus one task:session_added
// per task (unless suppressed).
func (s *Service) Create(ctx context.Context, input CreateInput, opts CreateOptions) (*domain.Session, error) {
	if input.ProjectID == "" {
		return nil, apperrors.Validation("projectId is required")
	}
	project, err := s.projects.Get(ctx, input.ProjectID)
	if err != nil {
		return nil, err
	}
	for _, taskID := range input.TaskIDs {
		task, err := s.tasks.Get(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task.ProjectID != input.ProjectID {
			return nil, apperrors.Validationf("task %s belongs to a different project", taskID)
		}
	}
	status := input.Status
	if status == "" {
		status = domain.SessionStatusIdle
	}
	if !domain.ValidSessionStatus(status) {
		return nil, apperrors.Validationf("invalid session status %q", status)
	}
	env := make(map[string]string, len(input.Env)+1)
	for k, v := range input.Env {
		env[k] = v
	}
	if project.IsMaster {
		env["MAESTRO_IS_MASTER"] = "true"
	}

	sess := &domain.Session{
		ID:                 ident.Session(),
		ProjectID:          input.ProjectID,
		TaskIDs:            []string{},
		Status:             status,
		Env:                env,
		TeamMemberID:       input.TeamMemberID,
		TeamMemberSnapshot: input.TeamMemberSnapshot,
		ParentSessionID:    input.ParentSessionID,
		Role:               input.Role,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	for _, taskID := range input.TaskIDs {
		if err := s.linkTask(ctx, sess.ID, taskID); err != nil {
			return nil, err
		}
		sess.AddTask(taskID)
		s.appendTimeline(sess, domain.TimelineTaskStarted, "", taskID, nil)
	}
	if len(input.TaskIDs) > 0 {
		if err := s.sessions.Update(ctx, sess); err != nil {
			return nil, err
		}
	}

	if !opts.SuppressCreatedEvent {
		s.publish(ctx, events.SessionCreated, sess)
	}
	for _, taskID := range input.TaskIDs {
		s.publish(ctx, events.TaskSessionAdded, map[string]string{"taskId": taskID, "sessionId": sess.ID})
	}
	s.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("project_id", sess.ProjectID),
		zap.Int("task_count", len(input.TaskIDs)))
	return sess, nil
}

// linkTask adds the session to one task under the task lock. Task
// documents are only read-modify-written while holding "task:"+id so a
// concurrent task update cannot interleave.
func (s *Service) linkTask(ctx context.Context, sessionID, taskID string) error {
	s.locks.Lock("task:" + taskID)
	defer s.locks.Unlock("task:" + taskID)

	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	task.AddSession(sessionID)
	return s.tasks.Update(ctx, task)
}

// Get returns one session.
func (s *Service) Get(ctx context.Context, id string) (*domain.Session, error) {
	return s.sessions.Get(ctx, id)
}

// List returns sessions matching the filter.
func (s *Service) List(ctx context.Context, filter store.SessionFilter) ([]*domain.Session, error) {
	return s.sessions.List(ctx, filter)
}

// UpdateInput carries optional session updates; nil fields are unchanged.
type UpdateInput struct {
	Status     *domain.SessionStatus `json:"status"`
	NeedsInput *domain.NeedsInput    `json:"needsInput"`
	Env        map[string]string     `json:"env"`
	Role       *string               `json:"role"`
}

// Update applies an update honoring terminal-state stickiness: once a
// session is in a terminal state its status never changes again, and a
// status field in the payload is silently dropped. Notifications compare
// against a pre-mutation snapshot.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*domain.Session, error) {
	s.locks.Lock("session:" + id)
	defer s.locks.Unlock("session:" + id)

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	oldStatus := sess.Status
	oldNeedsInput := sess.NeedsInput.Active

	if input.Status != nil {
		next := *input.Status
		if !domain.ValidSessionStatus(next) {
			return nil, apperrors.Validationf("invalid session status %q", next)
		}
		if !oldStatus.IsTerminal() {
			sess.Status = next
		}
		// Terminal statuses are sticky: a later stopped/failed update on a
		// completed session (or any change off failed/stopped) is dropped.
	}
	if input.NeedsInput != nil {
		ni := *input.NeedsInput
		if ni.Active && ni.Since == nil {
			now := time.Now().UTC()
			ni.Since = &now
		}
		sess.NeedsInput = ni
	}
	for k, v := range input.Env {
		if sess.Env == nil {
			sess.Env = make(map[string]string)
		}
		sess.Env[k] = v
	}
	if input.Role != nil {
		sess.Role = *input.Role
	}

	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}
	s.publish(ctx, events.SessionUpdated, sess)

	if sess.Status != oldStatus && sess.Status.IsTerminal() {
		s.propagateTerminal(ctx, sess)
		record := map[string]interface{}{"sessionId": sess.ID, "status": sess.Status}
		if sess.Status == domain.SessionStatusCompleted {
			s.publish(ctx, events.NotifySessionCompleted, record)
		} else {
			s.publish(ctx, events.NotifySessionFailed, record)
		}
	}
	if !oldNeedsInput && sess.NeedsInput.Active {
		s.publish(ctx, events.NotifyNeedsInput, map[string]interface{}{
			"sessionId": sess.ID,
			"message":   sess.NeedsInput.Message,
		})
	}
	return sess, nil
}

// propagateTerminal writes the session's terminal outcome into each linked
// task's per-session status, skipping entries already terminal, and emits
// task:updated for every mutated task.
func (s *Service) propagateTerminal(ctx context.Context, sess *domain.Session) {
	outcome := domain.TaskSessionFailed
	if sess.Status == domain.SessionStatusCompleted {
		outcome = domain.TaskSessionCompleted
	}
	for _, taskID := range sess.TaskIDs {
		task, err := s.propagateTerminalToTask(ctx, sess.ID, taskID, outcome)
		if err != nil {
			s.logger.Warn("failed to propagate terminal status",
				zap.String("task_id", taskID), zap.Error(err))
			continue
		}
		if task != nil {
			s.publish(ctx, events.TaskUpdated, task)
		}
	}
}

// propagateTerminalToTask writes one outcome under the task lock. A nil
// task result means the entry was already terminal.
func (s *Service) propagateTerminalToTask(ctx context.Context, sessionID, taskID string, outcome domain.TaskSessionStatus) (*domain.Task, error) {
	s.locks.Lock("task:" + taskID)
	defer s.locks.Unlock("task:" + taskID)

	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.TaskSessionStatuses[sessionID].IsTerminal() {
		return nil, nil
	}
	if task.TaskSessionStatuses == nil {
		task.TaskSessionStatuses = make(map[string]domain.TaskSessionStatus)
	}
	task.TaskSessionStatuses[sessionID] = outcome
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Delete appends a session_stopped timeline event, unlinks the session from
// every task, drops its queue and emits session:deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.locks.Lock("session:" + id)
	defer s.locks.Unlock("session:" + id)

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	s.appendTimeline(sess, domain.TimelineSessionStopped, "", "", nil)
	if err := s.sessions.Update(ctx, sess); err != nil {
		return err
	}

	for _, taskID := range sess.TaskIDs {
		if err := s.unlinkTask(ctx, id, taskID); err != nil {
			if !apperrors.IsNotFound(err) {
				s.logger.Warn("failed to unlink task during session delete",
					zap.String("task_id", taskID), zap.Error(err))
			}
			continue
		}
		s.publish(ctx, events.TaskSessionRemoved, map[string]string{"taskId": taskID, "sessionId": id})
	}
	if err := s.queues.DeleteBySession(ctx, id); err != nil && !apperrors.IsNotFound(err) {
		s.logger.Warn("failed to drop session queue", zap.String("session_id", id), zap.Error(err))
	}
	if err := s.sessions.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.SessionDeleted, map[string]string{"id": id})
	s.logger.Info("session deleted", zap.String("session_id", id))
	return nil
}

// unlinkTask removes the session from one task under the task lock.
func (s *Service) unlinkTask(ctx context.Context, sessionID, taskID string) error {
	s.locks.Lock("task:" + taskID)
	defer s.locks.Unlock("task:" + taskID)

	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	task.RemoveSession(sessionID)
	return s.tasks.Update(ctx, task)
}

// AddTask links a task to a session on both sides and emits
// session:task_added. Locks are taken session first, then task.
func (s *Service) AddTask(ctx context.Context, sessionID, taskID string) (*domain.Session, error) {
	s.locks.Lock("session:" + sessionID)
	defer s.locks.Unlock("session:" + sessionID)
	s.locks.Lock("task:" + taskID)
	defer s.locks.Unlock("task:" + taskID)

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	sess.AddTask(taskID)
	task.AddSession(sessionID)
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	s.publish(ctx, events.SessionTaskAdded, map[string]string{"sessionId": sessionID, "taskId": taskID})
	return sess, nil
}

// RemoveTask unlinks a task from a session on both sides and emits
// session:task_removed.
func (s *Service) RemoveTask(ctx context.Context, sessionID, taskID string) (*domain.Session, error) {
	s.locks.Lock("session:" + sessionID)
	defer s.locks.Unlock("session:" + sessionID)
	s.locks.Lock("task:" + taskID)
	defer s.locks.Unlock("task:" + taskID)

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	sess.RemoveTask(taskID)
	task.RemoveSession(sessionID)
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	s.publish(ctx, events.SessionTaskRemoved, map[string]string{"sessionId": sessionID, "taskId": taskID})
	return sess, nil
}

// TimelineInput describes a timeline event to append.
type TimelineInput struct {
	Type     string                 `json:"type"`
	Message  string                 `json:"message"`
	TaskID   string                 `json:"taskId"`
	Metadata map[string]interface{} `json:"metadata"`
}

// AddTimelineEvent appends an event, auto-activates needs-input for
// needs_input events, re-reads the session and emits session:updated plus
// the matching notify topic.
func (s *Service) AddTimelineEvent(ctx context.Context, sessionID string, input TimelineInput) (*domain.Session, error) {
	if strings.TrimSpace(input.Type) == "" {
		return nil, apperrors.Validation("timeline event type is required")
	}
	s.locks.Lock("session:" + sessionID)
	defer s.locks.Unlock("session:" + sessionID)

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	wasActive := sess.NeedsInput.Active
	s.appendTimeline(sess, input.Type, input.Message, input.TaskID, input.Metadata)
	if input.Type == domain.TimelineNeedsInput {
		now := time.Now().UTC()
		sess.NeedsInput = domain.NeedsInput{Active: true, Message: input.Message, Since: &now}
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}

	// Re-read so subscribers see the stored state.
	sess, err = s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.SessionUpdated, sess)
	switch input.Type {
	case domain.TimelineProgress:
		s.publish(ctx, events.NotifyProgress, map[string]interface{}{
			"sessionId": sessionID, "message": input.Message, "taskId": input.TaskID,
		})
	case domain.TimelineNeedsInput:
		if !wasActive {
			s.publish(ctx, events.NotifyNeedsInput, map[string]interface{}{
				"sessionId": sessionID, "message": input.Message,
			})
		}
	}
	return sess, nil
}

// AddDoc registers a document on the session, appends a doc_added timeline
// event and emits session:updated.
func (s *Service) AddDoc(ctx context.Context, sessionID, title, path string) (*domain.Session, error) {
	if strings.TrimSpace(title) == "" {
		return nil, apperrors.Validation("doc title is required")
	}
	s.locks.Lock("session:" + sessionID)
	defer s.locks.Unlock("session:" + sessionID)

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	doc := domain.DocEntry{
		ID:      ident.Doc(),
		Title:   title,
		Path:    path,
		AddedAt: time.Now().UTC(),
	}
	sess.Docs = append(sess.Docs, doc)
	s.appendTimeline(sess, domain.TimelineDocAdded, title, "", map[string]interface{}{"docId": doc.ID})
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}
	s.publish(ctx, events.SessionUpdated, sess)
	return sess, nil
}

// PromptInput is a cross-session directive.
type PromptInput struct {
	Content         string `json:"content"`
	Mode            string `json:"mode"`
	SenderSessionID string `json:"senderSessionId"`
}

// SendPrompt records a prompt_received timeline event with a truncated
// preview and emits session:prompt_send for the bridge to relay.
func (s *Service) SendPrompt(ctx context.Context, sessionID string, input PromptInput) error {
	if strings.TrimSpace(input.Content) == "" {
		return apperrors.Validation("prompt content is required")
	}
	if input.Mode != "send" && input.Mode != "paste" {
		return apperrors.Validationf("invalid prompt mode %q", input.Mode)
	}
	preview := input.Content
	if len(preview) > promptPreviewLength {
		preview = preview[:promptPreviewLength]
	}
	if _, err := s.AddTimelineEvent(ctx, sessionID, TimelineInput{
		Type:    domain.TimelinePromptReceived,
		Message: preview,
		Metadata: map[string]interface{}{
			"senderSessionId": input.SenderSessionID,
			"mode":            input.Mode,
		},
	}); err != nil {
		return err
	}
	s.publish(ctx, events.SessionPromptSend, map[string]string{
		"sessionId":       sessionID,
		"content":         input.Content,
		"mode":            input.Mode,
		"senderSessionId": input.SenderSessionID,
	})
	return nil
}

func (s *Service) appendTimeline(sess *domain.Session, evType, message, taskID string, metadata map[string]interface{}) {
	sess.Timeline = append(sess.Timeline, domain.TimelineEvent{
		ID:        ident.Event(),
		Type:      evType,
		Timestamp: time.Now().UTC(),
		Message:   message,
		TaskID:    taskID,
		Metadata:  metadata,
	})
}

func (s *Service) publish(ctx context.Context, topic string, data interface{}) {
	if err := s.bus.Publish(ctx, topic, bus.NewEvent(topic, "session-service", data)); err != nil {
		s.logger.Error("failed to publish event", zap.String("topic", topic), zap.Error(err))
	}
}
