package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/maestro/maestro/internal/common/errors"
	"github.com/maestro/maestro/internal/domain"
	"github.com/maestro/maestro/internal/store"
)

func marshalDoc(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal document: %w", err)
	}
	return string(data), nil
}

func getDoc[T any](ctx context.Context, db interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, query, resource, key string) (*T, error) {
	var raw string
	err := db.QueryRowContext(ctx, query, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound(resource, key)
	}
	if err != nil {
		return nil, err
	}
	var entity T
	if err := json.Unmarshal([]byte(raw), &entity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s %s: %w", resource, key, err)
	}
	return &entity, nil
}

func listDocs[T any](ctx context.Context, db interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}, query string, args ...any) ([]*T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*T
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var entity T
		if err := json.Unmarshal([]byte(raw), &entity); err != nil {
			return nil, fmt.Errorf("failed to unmarshal row: %w", err)
		}
		result = append(result, &entity)
	}
	return result, rows.Err()
}

// Project repository

type projectRepo struct{ s *Store }

func (r *projectRepo) Create(ctx context.Context, p *domain.Project) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	data, err := marshalDoc(p)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx,
		`INSERT INTO projects (id, created_at, data) VALUES (?, ?, ?)`,
		p.ID, p.CreatedAt, data)
	return err
}

func (r *projectRepo) Get(ctx context.Context, id string) (*domain.Project, error) {
	return getDoc[domain.Project](ctx, r.s.ro,
		`SELECT data FROM projects WHERE id = ?`, "project", id)
}

func (r *projectRepo) Update(ctx context.Context, p *domain.Project) error {
	p.UpdatedAt = time.Now().UTC()
	data, err := marshalDoc(p)
	if err != nil {
		return err
	}
	res, err := r.s.db.ExecContext(ctx,
		`UPDATE projects SET data = ? WHERE id = ?`, data, p.ID)
	if err != nil {
		return err
	}
	return requireAffected(res, "project", p.ID)
}

func (r *projectRepo) Delete(ctx context.Context, id string) error {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "project", id)
}

func (r *projectRepo) List(ctx context.Context) ([]*domain.Project, error) {
	return listDocs[domain.Project](ctx, r.s.ro,
		`SELECT data FROM projects ORDER BY created_at ASC, id ASC`)
}

func (r *projectRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.s.ro.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&count)
	return count, err
}

// Task repository

type taskRepo struct{ s *Store }

func (r *taskRepo) Create(ctx context.Context, t *domain.Task) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	data, err := marshalDoc(t)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, project_id, created_at, data) VALUES (?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.CreatedAt, data)
	return err
}

func (r *taskRepo) Get(ctx context.Context, id string) (*domain.Task, error) {
	return getDoc[domain.Task](ctx, r.s.ro,
		`SELECT data FROM tasks WHERE id = ?`, "task", id)
}

func (r *taskRepo) Update(ctx context.Context, t *domain.Task) error {
	t.UpdatedAt = time.Now().UTC()
	data, err := marshalDoc(t)
	if err != nil {
		return err
	}
	res, err := r.s.db.ExecContext(ctx,
		`UPDATE tasks SET data = ?, project_id = ? WHERE id = ?`, data, t.ProjectID, t.ID)
	if err != nil {
		return err
	}
	return requireAffected(res, "task", t.ID)
}

func (r *taskRepo) Delete(ctx context.Context, id string) error {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "task", id)
}

func (r *taskRepo) List(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	query := `SELECT data FROM tasks`
	var args []any
	if filter.ProjectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, filter.ProjectID)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	tasks, err := listDocs[domain.Task](ctx, r.s.ro, query, args...)
	if err != nil {
		return nil, err
	}
	var result []*domain.Task
	for _, t := range tasks {
		if filter.ParentID != nil && t.ParentID != *filter.ParentID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		result = append(result, t)
	}
	return result, nil
}

func (r *taskRepo) ListChildren(ctx context.Context, parentID string) ([]*domain.Task, error) {
	return r.List(ctx, store.TaskFilter{ParentID: &parentID})
}

func (r *taskRepo) CountByProject(ctx context.Context, projectID string) (int, error) {
	var count int
	err := r.s.ro.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE project_id = ?`, projectID).Scan(&count)
	return count, err
}

// Session repository

type sessionRepo struct{ s *Store }

func (r *sessionRepo) Create(ctx context.Context, sess *domain.Session) error {
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	data, err := marshalDoc(sess)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, project_id, created_at, data) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.ProjectID, sess.CreatedAt, data)
	return err
}

func (r *sessionRepo) Get(ctx context.Context, id string) (*domain.Session, error) {
	return getDoc[domain.Session](ctx, r.s.ro,
		`SELECT data FROM sessions WHERE id = ?`, "session", id)
}

func (r *sessionRepo) Update(ctx context.Context, sess *domain.Session) error {
	sess.UpdatedAt = time.Now().UTC()
	data, err := marshalDoc(sess)
	if err != nil {
		return err
	}
	res, err := r.s.db.ExecContext(ctx,
		`UPDATE sessions SET data = ? WHERE id = ?`, data, sess.ID)
	if err != nil {
		return err
	}
	return requireAffected(res, "session", sess.ID)
}

func (r *sessionRepo) Delete(ctx context.Context, id string) error {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "session", id)
}

func (r *sessionRepo) List(ctx context.Context, filter store.SessionFilter) ([]*domain.Session, error) {
	query := `SELECT data FROM sessions`
	var args []any
	if filter.ProjectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, filter.ProjectID)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	sessions, err := listDocs[domain.Session](ctx, r.s.ro, query, args...)
	if err != nil {
		return nil, err
	}
	var result []*domain.Session
	for _, sess := range sessions {
		if filter.TaskID != "" && !sess.HasTask(filter.TaskID) {
			continue
		}
		if filter.Active != nil && sess.Status.IsActive() != *filter.Active {
			continue
		}
		if filter.ParentSessionID != "" && sess.ParentSessionID != filter.ParentSessionID {
			continue
		}
		result = append(result, sess)
	}
	return result, nil
}

func (r *sessionRepo) CountByProject(ctx context.Context, projectID string) (int, error) {
	var count int
	err := r.s.ro.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE project_id = ?`, projectID).Scan(&count)
	return count, err
}

// Mail repository

type mailRepo struct{ s *Store }

func (r *mailRepo) Create(ctx context.Context, m *domain.Mail) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	data, err := marshalDoc(m)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx,
		`INSERT INTO mail (id, project_id, thread_id, created_at, data) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ProjectID, m.ThreadID, m.CreatedAt, data)
	return err
}

func (r *mailRepo) Get(ctx context.Context, id string) (*domain.Mail, error) {
	return getDoc[domain.Mail](ctx, r.s.ro,
		`SELECT data FROM mail WHERE id = ?`, "mail", id)
}

func (r *mailRepo) Delete(ctx context.Context, id string) error {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM mail WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "mail", id)
}

func (r *mailRepo) ListInbox(ctx context.Context, projectID, sessionID string) ([]*domain.Mail, error) {
	msgs, err := listDocs[domain.Mail](ctx, r.s.ro,
		`SELECT data FROM mail WHERE project_id = ? ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	var result []*domain.Mail
	for _, m := range msgs {
		if m.ToSessionID != "" && m.ToSessionID != sessionID {
			continue
		}
		result = append(result, m)
	}
	return result, nil
}

func (r *mailRepo) ListThread(ctx context.Context, threadID string) ([]*domain.Mail, error) {
	return listDocs[domain.Mail](ctx, r.s.ro,
		`SELECT data FROM mail WHERE thread_id = ? ORDER BY created_at ASC, id ASC`, threadID)
}

func (r *mailRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.s.ro.QueryRowContext(ctx, `SELECT COUNT(*) FROM mail`).Scan(&count)
	return count, err
}

// Queue repository

type queueRepo struct{ s *Store }

func (r *queueRepo) Create(ctx context.Context, q *domain.Queue) error {
	exists, err := r.s.rowExists("queues", "session_id", q.SessionID)
	if err != nil {
		return err
	}
	if exists {
		return apperrors.Conflict("queue already exists for session " + q.SessionID)
	}
	now := time.Now().UTC()
	q.CreatedAt = now
	q.UpdatedAt = now
	data, err := marshalDoc(q)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx,
		`INSERT INTO queues (session_id, data) VALUES (?, ?)`, q.SessionID, data)
	return err
}

func (r *queueRepo) GetBySession(ctx context.Context, sessionID string) (*domain.Queue, error) {
	return getDoc[domain.Queue](ctx, r.s.ro,
		`SELECT data FROM queues WHERE session_id = ?`, "queue", sessionID)
}

func (r *queueRepo) Update(ctx context.Context, q *domain.Queue) error {
	q.UpdatedAt = time.Now().UTC()
	data, err := marshalDoc(q)
	if err != nil {
		return err
	}
	res, err := r.s.db.ExecContext(ctx,
		`UPDATE queues SET data = ? WHERE session_id = ?`, data, q.SessionID)
	if err != nil {
		return err
	}
	return requireAffected(res, "queue", q.SessionID)
}

func (r *queueRepo) DeleteBySession(ctx context.Context, sessionID string) error {
	res, err := r.s.db.ExecContext(ctx,
		`DELETE FROM queues WHERE session_id = ?`, sessionID)
	if err != nil {
		return err
	}
	return requireAffected(res, "queue", sessionID)
}

// Team member repository

type teamMemberRepo struct{ s *Store }

func (r *teamMemberRepo) Create(ctx context.Context, m *domain.TeamMember) error {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	data, err := marshalDoc(m)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx,
		`INSERT INTO team_members (id, project_id, created_at, data) VALUES (?, ?, ?, ?)`,
		m.ID, m.ProjectID, m.CreatedAt, data)
	return err
}

func (r *teamMemberRepo) Get(ctx context.Context, id string) (*domain.TeamMember, error) {
	return getDoc[domain.TeamMember](ctx, r.s.ro,
		`SELECT data FROM team_members WHERE id = ?`, "team member", id)
}

func (r *teamMemberRepo) Update(ctx context.Context, m *domain.TeamMember) error {
	m.UpdatedAt = time.Now().UTC()
	data, err := marshalDoc(m)
	if err != nil {
		return err
	}
	res, err := r.s.db.ExecContext(ctx,
		`UPDATE team_members SET data = ? WHERE id = ?`, data, m.ID)
	if err != nil {
		return err
	}
	return requireAffected(res, "team member", m.ID)
}

func (r *teamMemberRepo) Delete(ctx context.Context, id string) error {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM team_members WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "team member", id)
}

func (r *teamMemberRepo) List(ctx context.Context, projectID string) ([]*domain.TeamMember, error) {
	query := `SELECT data FROM team_members`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	return listDocs[domain.TeamMember](ctx, r.s.ro, query, args...)
}

func (r *teamMemberRepo) SaveOverlay(ctx context.Context, m *domain.TeamMember) error {
	m.UpdatedAt = time.Now().UTC()
	data, err := marshalDoc(m)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO team_member_overlays (id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data
	`, m.ID, data)
	return err
}

func (r *teamMemberRepo) GetOverlay(ctx context.Context, id string) (*domain.TeamMember, error) {
	return getDoc[domain.TeamMember](ctx, r.s.ro,
		`SELECT data FROM team_member_overlays WHERE id = ?`, "team member overlay", id)
}

func (r *teamMemberRepo) DeleteOverlay(ctx context.Context, id string) error {
	_, err := r.s.db.ExecContext(ctx,
		`DELETE FROM team_member_overlays WHERE id = ?`, id)
	return err
}

// Team repository

type teamRepo struct{ s *Store }

func (r *teamRepo) Create(ctx context.Context, t *domain.Team) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	data, err := marshalDoc(t)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx,
		`INSERT INTO teams (id, project_id, created_at, data) VALUES (?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.CreatedAt, data)
	return err
}

func (r *teamRepo) Get(ctx context.Context, id string) (*domain.Team, error) {
	return getDoc[domain.Team](ctx, r.s.ro,
		`SELECT data FROM teams WHERE id = ?`, "team", id)
}

func (r *teamRepo) Update(ctx context.Context, t *domain.Team) error {
	t.UpdatedAt = time.Now().UTC()
	data, err := marshalDoc(t)
	if err != nil {
		return err
	}
	res, err := r.s.db.ExecContext(ctx,
		`UPDATE teams SET data = ? WHERE id = ?`, data, t.ID)
	if err != nil {
		return err
	}
	return requireAffected(res, "team", t.ID)
}

func (r *teamRepo) Delete(ctx context.Context, id string) error {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM teams WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "team", id)
}

func (r *teamRepo) List(ctx context.Context, projectID string) ([]*domain.Team, error) {
	query := `SELECT data FROM teams`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	return listDocs[domain.Team](ctx, r.s.ro, query, args...)
}

// Task list repository

type taskListRepo struct{ s *Store }

func (r *taskListRepo) Create(ctx context.Context, l *domain.TaskList) error {
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	data, err := marshalDoc(l)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx,
		`INSERT INTO task_lists (id, project_id, created_at, data) VALUES (?, ?, ?, ?)`,
		l.ID, l.ProjectID, l.CreatedAt, data)
	return err
}

func (r *taskListRepo) Get(ctx context.Context, id string) (*domain.TaskList, error) {
	return getDoc[domain.TaskList](ctx, r.s.ro,
		`SELECT data FROM task_lists WHERE id = ?`, "task list", id)
}

func (r *taskListRepo) Update(ctx context.Context, l *domain.TaskList) error {
	l.UpdatedAt = time.Now().UTC()
	data, err := marshalDoc(l)
	if err != nil {
		return err
	}
	res, err := r.s.db.ExecContext(ctx,
		`UPDATE task_lists SET data = ? WHERE id = ?`, data, l.ID)
	if err != nil {
		return err
	}
	return requireAffected(res, "task list", l.ID)
}

func (r *taskListRepo) Delete(ctx context.Context, id string) error {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM task_lists WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "task list", id)
}

func (r *taskListRepo) List(ctx context.Context, projectID string) ([]*domain.TaskList, error) {
	query := `SELECT data FROM task_lists`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	return listDocs[domain.TaskList](ctx, r.s.ro, query, args...)
}

// Ordering repository

type orderingRepo struct{ s *Store }

func (r *orderingRepo) Get(ctx context.Context, projectID, entityType string) (*domain.Ordering, error) {
	var raw string
	err := r.s.ro.QueryRowContext(ctx,
		`SELECT data FROM orderings WHERE project_id = ? AND entity_type = ?`,
		projectID, entityType).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("ordering", projectID+"/"+entityType)
	}
	if err != nil {
		return nil, err
	}
	var o domain.Ordering
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ordering: %w", err)
	}
	return &o, nil
}

func (r *orderingRepo) Put(ctx context.Context, o *domain.Ordering) error {
	o.UpdatedAt = time.Now().UTC()
	data, err := marshalDoc(o)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO orderings (project_id, entity_type, data) VALUES (?, ?, ?)
		ON CONFLICT(project_id, entity_type) DO UPDATE SET data = excluded.data
	`, o.ProjectID, o.EntityType, data)
	return err
}

func (r *orderingRepo) DeleteByProject(ctx context.Context, projectID string) error {
	_, err := r.s.db.ExecContext(ctx,
		`DELETE FROM orderings WHERE project_id = ?`, projectID)
	return err
}

// Template repository

type templateRepo struct{ s *Store }

func (r *templateRepo) Get(ctx context.Context, role string) (*domain.Template, error) {
	return getDoc[domain.Template](ctx, r.s.ro,
		`SELECT data FROM templates WHERE role = ?`, "template", role)
}

func (r *templateRepo) Put(ctx context.Context, t *domain.Template) error {
	t.UpdatedAt = time.Now().UTC()
	data, err := marshalDoc(t)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO templates (role, data) VALUES (?, ?)
		ON CONFLICT(role) DO UPDATE SET data = excluded.data
	`, t.Role, data)
	return err
}

func (r *templateRepo) Delete(ctx context.Context, role string) error {
	_, err := r.s.db.ExecContext(ctx, `DELETE FROM templates WHERE role = ?`, role)
	return err
}

func requireAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NotFound(resource, id)
	}
	return nil
}
