// Package mail implements session-to-session messaging: send with addressee
// resolution, threading, a priority-ordered inbox and a long-poll wait.
package mail

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/maestro/maestro/internal/common/errors"
	"github.com/maestro/maestro/internal/common/ident"
	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/domain"
	"github.com/maestro/maestro/internal/events"
	"github.com/maestro/maestro/internal/events/bus"
	"github.com/maestro/maestro/internal/store"
)

const (
	// DefaultWaitTimeout applies when the long-poll caller passes none.
	DefaultWaitTimeout = 30 * time.Second
	// MaxWaitTimeout caps the long-poll regardless of the caller's value.
	MaxWaitTimeout = 120 * time.Second
)

// Scopes for addressee resolution when no explicit session is given.
const (
	ScopeMyWorkers = "my-workers"
	ScopeTeam      = "team"
)

// Service owns mail storage and delivery.
type Service struct {
	mail     store.MailRepository
	sessions store.SessionRepository
	projects store.ProjectRepository
	bus      bus.EventBus
	logger   *logger.Logger
}

// NewService creates a mail service.
func NewService(st store.Store, eventBus bus.EventBus, log *logger.Logger) *Service {
	return &Service{
		mail:     st.Mail(),
		sessions: st.Sessions(),
		projects: st.Projects(),
		bus:      eventBus,
		logger:   log.WithFields(zap.String("component", "mail-service")),
	}
}

// SendInput carries one outgoing message. Addressing resolves in order:
// toTeamMemberId fan-out, scope fan-out, then direct/broadcast.
type SendInput struct {
	ProjectID      string              `json:"projectId"`
	FromSessionID  string              `json:"fromSessionId"`
	ToSessionID    string              `json:"toSessionId"`
	ToTeamMemberID string              `json:"toTeamMemberId"`
	Scope          string              `json:"scope"`
	ReplyToMailID  string              `json:"replyToMailId"`
	Type           string              `json:"type"`
	Subject        string              `json:"subject"`
	Body           string              `json:"body"`
	Priority       domain.MailPriority `json:"priority"`
}

// Send stores one message per resolved addressee and emits mail:received
// for each.
func (s *Service) Send(ctx context.Context, input SendInput) ([]*domain.Mail, error) {
	if input.ProjectID == "" {
		return nil, apperrors.Validation("projectId is required")
	}
	if strings.TrimSpace(input.Body) == "" {
		return nil, apperrors.Validation("mail body is required")
	}
	if _, err := s.projects.Get(ctx, input.ProjectID); err != nil {
		return nil, err
	}

	recipients, fannedOut, err := s.resolveRecipients(ctx, input)
	if err != nil {
		return nil, err
	}

	threadID, err := s.resolveThread(ctx, input.ReplyToMailID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var sent []*domain.Mail
	for _, toSessionID := range recipients {
		m := &domain.Mail{
			ID:            ident.Mail(),
			ProjectID:     input.ProjectID,
			FromSessionID: input.FromSessionID,
			ToSessionID:   toSessionID,
			ReplyToMailID: input.ReplyToMailID,
			Type:          input.Type,
			Subject:       input.Subject,
			Body:          input.Body,
			Priority:      input.Priority,
			CreatedAt:     now,
		}
		m.ThreadID = threadID
		if m.ThreadID == "" {
			m.ThreadID = m.ID
		}
		if err := s.mail.Create(ctx, m); err != nil {
			return nil, err
		}
		sent = append(sent, m)
		s.publish(ctx, events.MailReceived, m)
	}
	s.logger.Info("mail sent",
		zap.String("project_id", input.ProjectID),
		zap.String("from", input.FromSessionID),
		zap.Int("recipients", len(sent)),
		zap.Bool("fanout", fannedOut))
	return sent, nil
}

// resolveRecipients returns the target session ids; a single empty string
// means project-wide broadcast. The bool result reports whether fan-out
// applied.
func (s *Service) resolveRecipients(ctx context.Context, input SendInput) ([]string, bool, error) {
	active := true

	if input.ToTeamMemberID != "" && input.ToSessionID == "" {
		sessions, err := s.sessions.List(ctx, store.SessionFilter{ProjectID: input.ProjectID, Active: &active})
		if err != nil {
			return nil, false, err
		}
		var recipients []string
		for _, sess := range sessions {
			if sess.TeamMemberID == input.ToTeamMemberID {
				recipients = append(recipients, sess.ID)
			}
		}
		return recipients, true, nil
	}

	if input.ToSessionID == "" && (input.Scope == ScopeMyWorkers || input.Scope == ScopeTeam) {
		if input.FromSessionID == "" {
			return nil, false, apperrors.Validation("scoped mail requires fromSessionId")
		}
		var recipients []string
		switch input.Scope {
		case ScopeMyWorkers:
			sessions, err := s.sessions.List(ctx, store.SessionFilter{
				ProjectID: input.ProjectID, Active: &active, ParentSessionID: input.FromSessionID,
			})
			if err != nil {
				return nil, false, err
			}
			for _, sess := range sessions {
				recipients = append(recipients, sess.ID)
			}
		case ScopeTeam:
			sender, err := s.sessions.Get(ctx, input.FromSessionID)
			if err != nil {
				return nil, false, err
			}
			if sender.ParentSessionID == "" {
				return nil, true, nil
			}
			sessions, err := s.sessions.List(ctx, store.SessionFilter{
				ProjectID: input.ProjectID, Active: &active, ParentSessionID: sender.ParentSessionID,
			})
			if err != nil {
				return nil, false, err
			}
			for _, sess := range sessions {
				if sess.ID != input.FromSessionID {
					recipients = append(recipients, sess.ID)
				}
			}
		}
		return recipients, true, nil
	}

	// Single message; empty ToSessionID is a broadcast.
	return []string{input.ToSessionID}, false, nil
}

// resolveThread returns the thread id a reply inherits, or "" for roots.
func (s *Service) resolveThread(ctx context.Context, replyToMailID string) (string, error) {
	if replyToMailID == "" {
		return "", nil
	}
	parent, err := s.mail.Get(ctx, replyToMailID)
	if err != nil {
		return "", err
	}
	if parent.ThreadID != "" {
		return parent.ThreadID, nil
	}
	return parent.ID, nil
}

// Inbox returns the mail visible to (projectId, sessionId) sorted by
// priority rank, then ascending creation time.
func (s *Service) Inbox(ctx context.Context, projectID, sessionID string) ([]*domain.Mail, error) {
	if projectID == "" || sessionID == "" {
		return nil, apperrors.Validation("projectId and sessionId are required")
	}
	msgs, err := s.mail.ListInbox(ctx, projectID, sessionID)
	if err != nil {
		return nil, err
	}
	sortInbox(msgs)
	return msgs, nil
}

func sortInbox(msgs []*domain.Mail) {
	sort.SliceStable(msgs, func(i, j int) bool {
		ri, rj := msgs[i].Priority.Rank(), msgs[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

// Thread returns all messages sharing a thread id, oldest first.
func (s *Service) Thread(ctx context.Context, threadID string) ([]*domain.Mail, error) {
	return s.mail.ListThread(ctx, threadID)
}

// Get returns one message.
func (s *Service) Get(ctx context.Context, id string) (*domain.Mail, error) {
	return s.mail.Get(ctx, id)
}

// Delete removes a message and emits mail:deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.mail.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.MailDeleted, map[string]string{"id": id})
	return nil
}

// Wait long-polls for mail addressed to the session. It subscribes to
// mail:received before scanning the stored inbox so a message delivered
// during the scan cannot slip through, then resolves with the first match
// newer than since, or an empty list on timeout. The subscription and
// timer are torn down together so a waiter wakes at most once.
func (s *Service) Wait(ctx context.Context, projectID, sessionID string, since time.Time, timeout time.Duration) ([]*domain.Mail, error) {
	if projectID == "" || sessionID == "" {
		return nil, apperrors.Validation("projectId and sessionId are required")
	}
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	if timeout > MaxWaitTimeout {
		timeout = MaxWaitTimeout
	}

	// Every receipt triggers an inbox re-query rather than inspecting the
	// event payload: the NATS backend JSON round-trips Event.Data into a
	// map, so the payload shape is backend-dependent.
	wake := make(chan struct{}, 1)
	sub, err := s.bus.Subscribe(events.MailReceived, func(_ context.Context, _ *bus.Event) error {
		select {
		case wake <- struct{}{}:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	check := func() ([]*domain.Mail, error) {
		inbox, err := s.mail.ListInbox(ctx, projectID, sessionID)
		if err != nil {
			return nil, err
		}
		var fresh []*domain.Mail
		for _, m := range inbox {
			if m.CreatedAt.After(since) {
				fresh = append(fresh, m)
			}
		}
		sortInbox(fresh)
		return fresh, nil
	}

	if fresh, err := check(); err != nil || len(fresh) > 0 {
		return fresh, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-wake:
			fresh, err := check()
			if err != nil {
				return nil, err
			}
			if len(fresh) > 0 {
				return fresh, nil
			}
		case <-timer.C:
			return []*domain.Mail{}, nil
		case <-ctx.Done():
			return []*domain.Mail{}, nil
		}
	}
}

func (s *Service) publish(ctx context.Context, topic string, data interface{}) {
	if err := s.bus.Publish(ctx, topic, bus.NewEvent(topic, "mail-service", data)); err != nil {
		s.logger.Error("failed to publish event", zap.String("topic", topic), zap.Error(err))
	}
}
