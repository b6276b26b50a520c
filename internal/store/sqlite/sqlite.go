// Package sqlite persists Maestro aggregates as JSON documents in SQLite.
// Entities are stored whole in a data column; listing filters that need
// fields beyond the indexed columns are applied after unmarshalling.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/maestro/maestro/internal/store"
)

const (
	busyTimeout = 5 * time.Second

	// WAL mode allows concurrent readers alongside the single writer.
	readerConns = 4
)

// Store implements store.Store on a SQLite database file.
type Store struct {
	db *sqlx.DB // writer, single connection
	ro *sqlx.DB // reader pool
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and initializes the
// schema.
func Open(path string) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to prepare database path: %w", err)
		}
	}

	writerDSN := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_mode=rwc&_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL&_cache=shared",
		path, int(busyTimeout/time.Millisecond),
	)
	writer, err := sqlx.Open("sqlite3", writerDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer connection serializes writes and avoids SQLITE_BUSY.
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	readerDSN := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_mode=rwc&_busy_timeout=%d&_cache=shared",
		path, int(busyTimeout/time.Millisecond),
	)
	reader, err := sqlx.Open("sqlite3", readerDSN)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to open read connection: %w", err)
	}
	reader.SetMaxOpenConns(readerConns)
	reader.SetMaxIdleConns(readerConns)

	s := &Store{db: writer, ro: reader}
	if err := s.initSchema(); err != nil {
		_ = writer.Close()
		_ = reader.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes both connection pools.
func (s *Store) Close() error {
	roErr := s.ro.Close()
	if err := s.db.Close(); err != nil {
		return err
	}
	return roErr
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		data TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		data TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		data TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id);
	CREATE TABLE IF NOT EXISTS mail (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		thread_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		data TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_mail_project ON mail(project_id);
	CREATE INDEX IF NOT EXISTS idx_mail_thread ON mail(thread_id);
	CREATE TABLE IF NOT EXISTS queues (
		session_id TEXT PRIMARY KEY,
		data TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS team_members (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		data TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS team_member_overlays (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS teams (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		data TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS task_lists (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		data TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS orderings (
		project_id TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (project_id, entity_type)
	);
	CREATE TABLE IF NOT EXISTS templates (
		role TEXT PRIMARY KEY,
		data TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Projects() store.ProjectRepository       { return &projectRepo{s} }
func (s *Store) Tasks() store.TaskRepository             { return &taskRepo{s} }
func (s *Store) Sessions() store.SessionRepository       { return &sessionRepo{s} }
func (s *Store) Mail() store.MailRepository              { return &mailRepo{s} }
func (s *Store) Queues() store.QueueRepository           { return &queueRepo{s} }
func (s *Store) TeamMembers() store.TeamMemberRepository { return &teamMemberRepo{s} }
func (s *Store) Teams() store.TeamRepository             { return &teamRepo{s} }
func (s *Store) TaskLists() store.TaskListRepository     { return &taskListRepo{s} }
func (s *Store) Orderings() store.OrderingRepository     { return &orderingRepo{s} }
func (s *Store) Templates() store.TemplateRepository     { return &templateRepo{s} }

// rowExists reports whether a keyed row exists, via the writer connection so
// update checks see uncommitted state from the same caller.
func (s *Store) rowExists(table, keyCol, key string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ?", table, keyCol), key,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
