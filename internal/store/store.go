// Package store defines the repository interfaces for Maestro aggregates and
// provides the in-memory implementation. Repositories never expose internal
// mutable state: every read returns a deep copy, every write stores one.
// Referential integrity across aggregates is enforced in services, not here.
package store

import (
	"context"

	"github.com/maestro/maestro/internal/domain"
)

// TaskFilter narrows task listings. Nil/empty fields match everything.
type TaskFilter struct {
	ProjectID string
	ParentID  *string // non-nil empty string matches top-level tasks
	Status    domain.TaskStatus
}

// SessionFilter narrows session listings.
type SessionFilter struct {
	ProjectID       string
	TaskID          string
	Active          *bool
	ParentSessionID string
}

// ProjectRepository stores projects.
type ProjectRepository interface {
	Create(ctx context.Context, p *domain.Project) error
	Get(ctx context.Context, id string) (*domain.Project, error)
	Update(ctx context.Context, p *domain.Project) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*domain.Project, error)
	Count(ctx context.Context) (int, error)
}

// TaskRepository stores tasks.
type TaskRepository interface {
	Create(ctx context.Context, t *domain.Task) error
	Get(ctx context.Context, id string) (*domain.Task, error)
	Update(ctx context.Context, t *domain.Task) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter TaskFilter) ([]*domain.Task, error)
	ListChildren(ctx context.Context, parentID string) ([]*domain.Task, error)
	CountByProject(ctx context.Context, projectID string) (int, error)
}

// SessionRepository stores sessions.
type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	Update(ctx context.Context, s *domain.Session) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter SessionFilter) ([]*domain.Session, error)
	CountByProject(ctx context.Context, projectID string) (int, error)
}

// MailRepository stores mail. Mail is immutable once created.
type MailRepository interface {
	Create(ctx context.Context, m *domain.Mail) error
	Get(ctx context.Context, id string) (*domain.Mail, error)
	Delete(ctx context.Context, id string) error
	// ListInbox returns mail addressed to the session or broadcast within
	// the project, unsorted; the mail service applies priority ordering.
	ListInbox(ctx context.Context, projectID, sessionID string) ([]*domain.Mail, error)
	ListThread(ctx context.Context, threadID string) ([]*domain.Mail, error)
	Count(ctx context.Context) (int, error)
}

// QueueRepository stores one queue per session.
type QueueRepository interface {
	Create(ctx context.Context, q *domain.Queue) error
	GetBySession(ctx context.Context, sessionID string) (*domain.Queue, error)
	Update(ctx context.Context, q *domain.Queue) error
	DeleteBySession(ctx context.Context, sessionID string) error
}

// TeamMemberRepository stores custom members plus the overlay entries that
// shadow code-provided defaults.
type TeamMemberRepository interface {
	Create(ctx context.Context, m *domain.TeamMember) error
	Get(ctx context.Context, id string) (*domain.TeamMember, error)
	Update(ctx context.Context, m *domain.TeamMember) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, projectID string) ([]*domain.TeamMember, error)
	SaveOverlay(ctx context.Context, m *domain.TeamMember) error
	GetOverlay(ctx context.Context, id string) (*domain.TeamMember, error)
	DeleteOverlay(ctx context.Context, id string) error
}

// TeamRepository stores teams.
type TeamRepository interface {
	Create(ctx context.Context, t *domain.Team) error
	Get(ctx context.Context, id string) (*domain.Team, error)
	Update(ctx context.Context, t *domain.Team) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, projectID string) ([]*domain.Team, error)
}

// TaskListRepository stores task lists.
type TaskListRepository interface {
	Create(ctx context.Context, l *domain.TaskList) error
	Get(ctx context.Context, id string) (*domain.TaskList, error)
	Update(ctx context.Context, l *domain.TaskList) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, projectID string) ([]*domain.TaskList, error)
}

// OrderingRepository stores per-(project, entity-type) orderings.
type OrderingRepository interface {
	Get(ctx context.Context, projectID, entityType string) (*domain.Ordering, error)
	Put(ctx context.Context, o *domain.Ordering) error
	DeleteByProject(ctx context.Context, projectID string) error
}

// TemplateRepository stores role-keyed template overrides.
type TemplateRepository interface {
	Get(ctx context.Context, role string) (*domain.Template, error)
	Put(ctx context.Context, t *domain.Template) error
	Delete(ctx context.Context, role string) error
}

// Store bundles the repositories behind one backend.
type Store interface {
	Projects() ProjectRepository
	Tasks() TaskRepository
	Sessions() SessionRepository
	Mail() MailRepository
	Queues() QueueRepository
	TeamMembers() TeamMemberRepository
	Teams() TeamRepository
	TaskLists() TaskListRepository
	Orderings() OrderingRepository
	Templates() TemplateRepository
	Close() error
}
