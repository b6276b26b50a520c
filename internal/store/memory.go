package store

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/maestro/maestro/internal/common/errors"
	"github.com/maestro/maestro/internal/domain"
)

// MemoryStore provides in-memory storage for all aggregates. One lock guards
// all maps; repository calls are short and never invoke callbacks.
type MemoryStore struct {
	mu          sync.RWMutex
	projects    map[string]*domain.Project
	tasks       map[string]*domain.Task
	sessions    map[string]*domain.Session
	mail        map[string]*domain.Mail
	queues      map[string]*domain.Queue // keyed by session id
	teamMembers map[string]*domain.TeamMember
	overlays    map[string]*domain.TeamMember
	teams       map[string]*domain.Team
	taskLists   map[string]*domain.TaskList
	orderings   map[string]*domain.Ordering // keyed by projectID+"/"+entityType
	templates   map[string]*domain.Template // keyed by role
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:    make(map[string]*domain.Project),
		tasks:       make(map[string]*domain.Task),
		sessions:    make(map[string]*domain.Session),
		mail:        make(map[string]*domain.Mail),
		queues:      make(map[string]*domain.Queue),
		teamMembers: make(map[string]*domain.TeamMember),
		overlays:    make(map[string]*domain.TeamMember),
		teams:       make(map[string]*domain.Team),
		taskLists:   make(map[string]*domain.TaskList),
		orderings:   make(map[string]*domain.Ordering),
		templates:   make(map[string]*domain.Template),
	}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Projects() ProjectRepository       { return (*memProjects)(s) }
func (s *MemoryStore) Tasks() TaskRepository             { return (*memTasks)(s) }
func (s *MemoryStore) Sessions() SessionRepository       { return (*memSessions)(s) }
func (s *MemoryStore) Mail() MailRepository              { return (*memMail)(s) }
func (s *MemoryStore) Queues() QueueRepository           { return (*memQueues)(s) }
func (s *MemoryStore) TeamMembers() TeamMemberRepository { return (*memTeamMembers)(s) }
func (s *MemoryStore) Teams() TeamRepository             { return (*memTeams)(s) }
func (s *MemoryStore) TaskLists() TaskListRepository     { return (*memTaskLists)(s) }
func (s *MemoryStore) Orderings() OrderingRepository     { return (*memOrderings)(s) }
func (s *MemoryStore) Templates() TemplateRepository     { return (*memTemplates)(s) }

// Project repository

type memProjects MemoryStore

func (r *memProjects) Create(ctx context.Context, p *domain.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	r.projects[p.ID] = p.Clone()
	return nil
}

func (r *memProjects) Get(ctx context.Context, id string) (*domain.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, apperrors.NotFound("project", id)
	}
	return p.Clone(), nil
}

func (r *memProjects) Update(ctx context.Context, p *domain.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[p.ID]; !ok {
		return apperrors.NotFound("project", p.ID)
	}
	p.UpdatedAt = time.Now().UTC()
	r.projects[p.ID] = p.Clone()
	return nil
}

func (r *memProjects) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[id]; !ok {
		return apperrors.NotFound("project", id)
	}
	delete(r.projects, id)
	return nil
}

func (r *memProjects) List(ctx context.Context) ([]*domain.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*domain.Project, 0, len(r.projects))
	for _, p := range r.projects {
		result = append(result, p.Clone())
	}
	sortByCreatedAt(result, func(p *domain.Project) time.Time { return p.CreatedAt })
	return result, nil
}

func (r *memProjects) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.projects), nil
}

// Task repository

type memTasks MemoryStore

func (r *memTasks) Create(ctx context.Context, t *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	r.tasks[t.ID] = t.Clone()
	return nil
}

func (r *memTasks) Get(ctx context.Context, id string) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, apperrors.NotFound("task", id)
	}
	return t.Clone(), nil
}

func (r *memTasks) Update(ctx context.Context, t *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID]; !ok {
		return apperrors.NotFound("task", t.ID)
	}
	t.UpdatedAt = time.Now().UTC()
	r.tasks[t.ID] = t.Clone()
	return nil
}

func (r *memTasks) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return apperrors.NotFound("task", id)
	}
	delete(r.tasks, id)
	return nil
}

func (r *memTasks) List(ctx context.Context, filter TaskFilter) ([]*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*domain.Task
	for _, t := range r.tasks {
		if filter.ProjectID != "" && t.ProjectID != filter.ProjectID {
			continue
		}
		if filter.ParentID != nil && t.ParentID != *filter.ParentID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		result = append(result, t.Clone())
	}
	sortByCreatedAt(result, func(t *domain.Task) time.Time { return t.CreatedAt })
	return result, nil
}

func (r *memTasks) ListChildren(ctx context.Context, parentID string) ([]*domain.Task, error) {
	return r.List(ctx, TaskFilter{ParentID: &parentID})
}

func (r *memTasks) CountByProject(ctx context.Context, projectID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, t := range r.tasks {
		if t.ProjectID == projectID {
			count++
		}
	}
	return count, nil
}

// Session repository

type memSessions MemoryStore

func (r *memSessions) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *memSessions) Get(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("session", id)
	}
	return s.Clone(), nil
}

func (r *memSessions) Update(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		return apperrors.NotFound("session", s.ID)
	}
	s.UpdatedAt = time.Now().UTC()
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *memSessions) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return apperrors.NotFound("session", id)
	}
	delete(r.sessions, id)
	return nil
}

func (r *memSessions) List(ctx context.Context, filter SessionFilter) ([]*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*domain.Session
	for _, s := range r.sessions {
		if filter.ProjectID != "" && s.ProjectID != filter.ProjectID {
			continue
		}
		if filter.TaskID != "" && !s.HasTask(filter.TaskID) {
			continue
		}
		if filter.Active != nil && s.Status.IsActive() != *filter.Active {
			continue
		}
		if filter.ParentSessionID != "" && s.ParentSessionID != filter.ParentSessionID {
			continue
		}
		result = append(result, s.Clone())
	}
	sortByCreatedAt(result, func(s *domain.Session) time.Time { return s.CreatedAt })
	return result, nil
}

func (r *memSessions) CountByProject(ctx context.Context, projectID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, s := range r.sessions {
		if s.ProjectID == projectID {
			count++
		}
	}
	return count, nil
}

// Mail repository

type memMail MemoryStore

func (r *memMail) Create(ctx context.Context, m *domain.Mail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	r.mail[m.ID] = m.Clone()
	return nil
}

func (r *memMail) Get(ctx context.Context, id string) (*domain.Mail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mail[id]
	if !ok {
		return nil, apperrors.NotFound("mail", id)
	}
	return m.Clone(), nil
}

func (r *memMail) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mail[id]; !ok {
		return apperrors.NotFound("mail", id)
	}
	delete(r.mail, id)
	return nil
}

func (r *memMail) ListInbox(ctx context.Context, projectID, sessionID string) ([]*domain.Mail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*domain.Mail
	for _, m := range r.mail {
		if m.ProjectID != projectID {
			continue
		}
		if m.ToSessionID != "" && m.ToSessionID != sessionID {
			continue
		}
		result = append(result, m.Clone())
	}
	sortByCreatedAt(result, func(m *domain.Mail) time.Time { return m.CreatedAt })
	return result, nil
}

func (r *memMail) ListThread(ctx context.Context, threadID string) ([]*domain.Mail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*domain.Mail
	for _, m := range r.mail {
		if m.ThreadID == threadID {
			result = append(result, m.Clone())
		}
	}
	sortByCreatedAt(result, func(m *domain.Mail) time.Time { return m.CreatedAt })
	return result, nil
}

func (r *memMail) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mail), nil
}

// Queue repository

type memQueues MemoryStore

func (r *memQueues) Create(ctx context.Context, q *domain.Queue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[q.SessionID]; ok {
		return apperrors.Conflict("queue already exists for session " + q.SessionID)
	}
	now := time.Now().UTC()
	q.CreatedAt = now
	q.UpdatedAt = now
	r.queues[q.SessionID] = q.Clone()
	return nil
}

func (r *memQueues) GetBySession(ctx context.Context, sessionID string) (*domain.Queue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[sessionID]
	if !ok {
		return nil, apperrors.NotFound("queue", sessionID)
	}
	return q.Clone(), nil
}

func (r *memQueues) Update(ctx context.Context, q *domain.Queue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[q.SessionID]; !ok {
		return apperrors.NotFound("queue", q.SessionID)
	}
	q.UpdatedAt = time.Now().UTC()
	r.queues[q.SessionID] = q.Clone()
	return nil
}

func (r *memQueues) DeleteBySession(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[sessionID]; !ok {
		return apperrors.NotFound("queue", sessionID)
	}
	delete(r.queues, sessionID)
	return nil
}

// Team member repository

type memTeamMembers MemoryStore

func (r *memTeamMembers) Create(ctx context.Context, m *domain.TeamMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	r.teamMembers[m.ID] = m.Clone()
	return nil
}

func (r *memTeamMembers) Get(ctx context.Context, id string) (*domain.TeamMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.teamMembers[id]
	if !ok {
		return nil, apperrors.NotFound("team member", id)
	}
	return m.Clone(), nil
}

func (r *memTeamMembers) Update(ctx context.Context, m *domain.TeamMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.teamMembers[m.ID]; !ok {
		return apperrors.NotFound("team member", m.ID)
	}
	m.UpdatedAt = time.Now().UTC()
	r.teamMembers[m.ID] = m.Clone()
	return nil
}

func (r *memTeamMembers) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.teamMembers[id]; !ok {
		return apperrors.NotFound("team member", id)
	}
	delete(r.teamMembers, id)
	return nil
}

func (r *memTeamMembers) List(ctx context.Context, projectID string) ([]*domain.TeamMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*domain.TeamMember
	for _, m := range r.teamMembers {
		if projectID != "" && m.ProjectID != projectID {
			continue
		}
		result = append(result, m.Clone())
	}
	sortByCreatedAt(result, func(m *domain.TeamMember) time.Time { return m.CreatedAt })
	return result, nil
}

func (r *memTeamMembers) SaveOverlay(ctx context.Context, m *domain.TeamMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.UpdatedAt = time.Now().UTC()
	r.overlays[m.ID] = m.Clone()
	return nil
}

func (r *memTeamMembers) GetOverlay(ctx context.Context, id string) (*domain.TeamMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.overlays[id]
	if !ok {
		return nil, apperrors.NotFound("team member overlay", id)
	}
	return m.Clone(), nil
}

func (r *memTeamMembers) DeleteOverlay(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overlays, id)
	return nil
}

// Team repository

type memTeams MemoryStore

func (r *memTeams) Create(ctx context.Context, t *domain.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	r.teams[t.ID] = t.Clone()
	return nil
}

func (r *memTeams) Get(ctx context.Context, id string) (*domain.Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.teams[id]
	if !ok {
		return nil, apperrors.NotFound("team", id)
	}
	return t.Clone(), nil
}

func (r *memTeams) Update(ctx context.Context, t *domain.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.teams[t.ID]; !ok {
		return apperrors.NotFound("team", t.ID)
	}
	t.UpdatedAt = time.Now().UTC()
	r.teams[t.ID] = t.Clone()
	return nil
}

func (r *memTeams) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.teams[id]; !ok {
		return apperrors.NotFound("team", id)
	}
	delete(r.teams, id)
	return nil
}

func (r *memTeams) List(ctx context.Context, projectID string) ([]*domain.Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*domain.Team
	for _, t := range r.teams {
		if projectID != "" && t.ProjectID != projectID {
			continue
		}
		result = append(result, t.Clone())
	}
	sortByCreatedAt(result, func(t *domain.Team) time.Time { return t.CreatedAt })
	return result, nil
}

// Task list repository

type memTaskLists MemoryStore

func (r *memTaskLists) Create(ctx context.Context, l *domain.TaskList) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	r.taskLists[l.ID] = l.Clone()
	return nil
}

func (r *memTaskLists) Get(ctx context.Context, id string) (*domain.TaskList, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.taskLists[id]
	if !ok {
		return nil, apperrors.NotFound("task list", id)
	}
	return l.Clone(), nil
}

func (r *memTaskLists) Update(ctx context.Context, l *domain.TaskList) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.taskLists[l.ID]; !ok {
		return apperrors.NotFound("task list", l.ID)
	}
	l.UpdatedAt = time.Now().UTC()
	r.taskLists[l.ID] = l.Clone()
	return nil
}

func (r *memTaskLists) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.taskLists[id]; !ok {
		return apperrors.NotFound("task list", id)
	}
	delete(r.taskLists, id)
	return nil
}

func (r *memTaskLists) List(ctx context.Context, projectID string) ([]*domain.TaskList, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*domain.TaskList
	for _, l := range r.taskLists {
		if projectID != "" && l.ProjectID != projectID {
			continue
		}
		result = append(result, l.Clone())
	}
	sortByCreatedAt(result, func(l *domain.TaskList) time.Time { return l.CreatedAt })
	return result, nil
}

// Ordering repository

type memOrderings MemoryStore

func orderingKey(projectID, entityType string) string {
	return projectID + "/" + entityType
}

func (r *memOrderings) Get(ctx context.Context, projectID, entityType string) (*domain.Ordering, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orderings[orderingKey(projectID, entityType)]
	if !ok {
		return nil, apperrors.NotFound("ordering", orderingKey(projectID, entityType))
	}
	return o.Clone(), nil
}

func (r *memOrderings) Put(ctx context.Context, o *domain.Ordering) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o.UpdatedAt = time.Now().UTC()
	r.orderings[orderingKey(o.ProjectID, o.EntityType)] = o.Clone()
	return nil
}

func (r *memOrderings) DeleteByProject(ctx context.Context, projectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, o := range r.orderings {
		if o.ProjectID == projectID {
			delete(r.orderings, key)
		}
	}
	return nil
}

// Template repository

type memTemplates MemoryStore

func (r *memTemplates) Get(ctx context.Context, role string) (*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[role]
	if !ok {
		return nil, apperrors.NotFound("template", role)
	}
	return t.Clone(), nil
}

func (r *memTemplates) Put(ctx context.Context, t *domain.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.UpdatedAt = time.Now().UTC()
	r.templates[t.Role] = t.Clone()
	return nil
}

func (r *memTemplates) Delete(ctx context.Context, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.templates, role)
	return nil
}
