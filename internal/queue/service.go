// Package queue implements the per-session FIFO work queue. At most one
// item is processing at a time and item statuses never revert.
package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/maestro/maestro/internal/common/errors"
	"github.com/maestro/maestro/internal/common/ident"
	"github.com/maestro/maestro/internal/common/kmutex"
	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/domain"
	"github.com/maestro/maestro/internal/store"
	"github.com/maestro/maestro/internal/task"
)

// Service owns queue mutations and propagates item outcomes to the task
// service as per-session statuses.
type Service struct {
	queues   store.QueueRepository
	sessions store.SessionRepository
	tasks    *task.Service
	locks    *kmutex.KeyedMutex
	logger   *logger.Logger
}

// NewService creates a queue service.
func NewService(st store.Store, tasks *task.Service, locks *kmutex.KeyedMutex, log *logger.Logger) *Service {
	return &Service{
		queues:   st.Queues(),
		sessions: st.Sessions(),
		tasks:    tasks,
		locks:    locks,
		logger:   log.WithFields(zap.String("component", "queue-service")),
	}
}

// Create initializes the queue for a session with an ordered task list.
// A session has at most one queue; re-initialization is a conflict.
func (s *Service) Create(ctx context.Context, sessionID string, taskIDs []string) (*domain.Queue, error) {
	if sessionID == "" {
		return nil, apperrors.Validation("sessionId is required")
	}
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(taskIDs))
	items := make([]domain.QueueItem, 0, len(taskIDs))
	for _, taskID := range taskIDs {
		if _, dup := seen[taskID]; dup {
			return nil, apperrors.Validationf("duplicate task %s in queue", taskID)
		}
		seen[taskID] = struct{}{}
		if _, err := s.tasks.Get(ctx, taskID); err != nil {
			return nil, err
		}
		items = append(items, domain.QueueItem{TaskID: taskID, Status: domain.QueueItemQueued})
	}
	q := &domain.Queue{
		ID:           ident.Queue(),
		SessionID:    sessionID,
		Items:        items,
		CurrentIndex: -1,
	}
	if err := s.queues.Create(ctx, q); err != nil {
		return nil, err
	}
	s.logger.Info("queue created", zap.String("session_id", sessionID), zap.Int("items", len(items)))
	return q, nil
}

// Get returns the session's queue.
func (s *Service) Get(ctx context.Context, sessionID string) (*domain.Queue, error) {
	return s.queues.GetBySession(ctx, sessionID)
}

// StartItem marks the first queued item processing and sets the task's
// per-session status to working. Fails if an item is already processing.
func (s *Service) StartItem(ctx context.Context, sessionID string) (*domain.Queue, error) {
	s.locks.Lock("queue:" + sessionID)
	defer s.locks.Unlock("queue:" + sessionID)

	q, err := s.queues.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if q.ProcessingIndex() != -1 {
		return nil, apperrors.Conflict("an item is already processing")
	}
	next := -1
	for i, item := range q.Items {
		if item.Status == domain.QueueItemQueued {
			next = i
			break
		}
	}
	if next == -1 {
		return nil, apperrors.Validation("no queued items remain")
	}
	now := time.Now().UTC()
	q.Items[next].Status = domain.QueueItemProcessing
	q.Items[next].StartedAt = &now
	q.CurrentIndex = next
	if err := s.queues.Update(ctx, q); err != nil {
		return nil, err
	}
	if _, err := s.tasks.SetSessionStatus(ctx, q.Items[next].TaskID, sessionID, domain.TaskSessionWorking); err != nil {
		s.logger.Warn("failed to mark task working",
			zap.String("task_id", q.Items[next].TaskID), zap.Error(err))
	}
	return q, nil
}

// CompleteItem marks the processing item completed.
func (s *Service) CompleteItem(ctx context.Context, sessionID string) (*domain.Queue, error) {
	return s.finishItem(ctx, sessionID, domain.QueueItemCompleted, "")
}

// FailItem marks the processing item failed with a reason.
func (s *Service) FailItem(ctx context.Context, sessionID, reason string) (*domain.Queue, error) {
	return s.finishItem(ctx, sessionID, domain.QueueItemFailed, reason)
}

func (s *Service) finishItem(ctx context.Context, sessionID string, outcome domain.QueueItemStatus, reason string) (*domain.Queue, error) {
	s.locks.Lock("queue:" + sessionID)
	defer s.locks.Unlock("queue:" + sessionID)

	q, err := s.queues.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	idx := q.ProcessingIndex()
	if idx == -1 {
		return nil, apperrors.Validation("no item is processing")
	}
	now := time.Now().UTC()
	q.Items[idx].Status = outcome
	q.Items[idx].CompletedAt = &now
	q.Items[idx].FailReason = reason
	q.CurrentIndex = -1
	if err := s.queues.Update(ctx, q); err != nil {
		return nil, err
	}

	taskStatus := domain.TaskSessionCompleted
	if outcome == domain.QueueItemFailed {
		taskStatus = domain.TaskSessionFailed
	}
	if _, err := s.tasks.SetSessionStatus(ctx, q.Items[idx].TaskID, sessionID, taskStatus); err != nil {
		s.logger.Warn("failed to propagate item outcome",
			zap.String("task_id", q.Items[idx].TaskID), zap.Error(err))
	}
	return q, nil
}

// SkipItem marks the processing item, or otherwise the next queued item,
// as skipped.
func (s *Service) SkipItem(ctx context.Context, sessionID string) (*domain.Queue, error) {
	s.locks.Lock("queue:" + sessionID)
	defer s.locks.Unlock("queue:" + sessionID)

	q, err := s.queues.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	idx := q.ProcessingIndex()
	if idx == -1 {
		for i, item := range q.Items {
			if item.Status == domain.QueueItemQueued {
				idx = i
				break
			}
		}
	}
	if idx == -1 {
		return nil, apperrors.Validation("no item to skip")
	}
	now := time.Now().UTC()
	wasProcessing := q.Items[idx].Status == domain.QueueItemProcessing
	q.Items[idx].Status = domain.QueueItemSkipped
	q.Items[idx].CompletedAt = &now
	if wasProcessing {
		q.CurrentIndex = -1
	}
	if err := s.queues.Update(ctx, q); err != nil {
		return nil, err
	}
	if _, err := s.tasks.SetSessionStatus(ctx, q.Items[idx].TaskID, sessionID, domain.TaskSessionSkipped); err != nil {
		s.logger.Warn("failed to propagate skip",
			zap.String("task_id", q.Items[idx].TaskID), zap.Error(err))
	}
	return q, nil
}

// PushItem appends a task to the queue; a task may appear at most once.
func (s *Service) PushItem(ctx context.Context, sessionID, taskID string) (*domain.Queue, error) {
	s.locks.Lock("queue:" + sessionID)
	defer s.locks.Unlock("queue:" + sessionID)

	q, err := s.queues.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, item := range q.Items {
		if item.TaskID == taskID {
			return nil, apperrors.Conflict("task already in queue")
		}
	}
	if _, err := s.tasks.Get(ctx, taskID); err != nil {
		return nil, err
	}
	q.Items = append(q.Items, domain.QueueItem{TaskID: taskID, Status: domain.QueueItemQueued})
	if err := s.queues.Update(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// Stats returns item counts by status.
func (s *Service) Stats(ctx context.Context, sessionID string) (map[domain.QueueItemStatus]int, error) {
	q, err := s.queues.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return q.Stats(), nil
}
