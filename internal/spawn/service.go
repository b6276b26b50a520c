package spawn

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	apperrors "github.com/maestro/maestro/internal/common/errors"
	"github.com/maestro/maestro/internal/common/kmutex"
	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/domain"
	"github.com/maestro/maestro/internal/events"
	"github.com/maestro/maestro/internal/events/bus"
	"github.com/maestro/maestro/internal/session"
	"github.com/maestro/maestro/internal/store"
)

// Spawn sources and roles.
const (
	SourceManual       = "manual"
	SourceOrchestrator = "orchestrator"

	RoleWorker       = "worker"
	RoleOrchestrator = "orchestrator"
)

// Reserved env keys populated during spawn. They are present but empty on
// the session until the manifest is written.
const (
	EnvSessionID    = "MAESTRO_SESSION_ID"
	EnvManifestPath = "MAESTRO_MANIFEST_PATH"
	EnvServerURL    = "MAESTRO_SERVER_URL"
)

const (
	defaultModel          = "sonnet"
	defaultPermissionMode = "default"
	defaultCommand        = "claude"
)

// Service is the spawn orchestrator.
type Service struct {
	sessions  *session.Service
	store     store.Store
	bus       bus.EventBus
	locks     *kmutex.KeyedMutex
	root      string
	serverURL string
	logger    *logger.Logger
}

// NewService creates a spawn service. root is the manifest root directory,
// serverURL is advertised to spawned agents.
func NewService(st store.Store, sessions *session.Service, eventBus bus.EventBus, locks *kmutex.KeyedMutex, root, serverURL string, log *logger.Logger) *Service {
	return &Service{
		sessions:  sessions,
		store:     st,
		bus:       eventBus,
		locks:     locks,
		root:      root,
		serverURL: serverURL,
		logger:    log.WithFields(zap.String("component", "spawn-service")),
	}
}

// Input is the consolidated spawn request.
type Input struct {
	ProjectID       string   `json:"projectId"`
	TaskIDs         []string `json:"taskIds"`
	SpawnSource     string   `json:"spawnSource"`
	Role            string   `json:"role"`
	TeamMemberID    string   `json:"teamMemberId"`
	ParentSessionID string   `json:"parentSessionId"`
	Model           string   `json:"model"`
	PermissionMode  string   `json:"permissionMode"`
	Skills          []string `json:"skills"`
}

// Result carries the spawned session and the event payload extras.
type Result struct {
	Session      *domain.Session `json:"session"`
	ManifestPath string          `json:"manifestPath"`
	Manifest     *Manifest       `json:"manifest"`
}

// Spawn runs the full sequence: validate, create the session in status
// spawning with reserved env keys, write the manifest, populate the env
// contract and emit one consolidated session:created event. A manifest
// failure marks the session failed and surfaces as a 500.
func (s *Service) Spawn(ctx context.Context, input Input) (*Result, error) {
	if input.ProjectID == "" {
		return nil, apperrors.Validation("projectId is required")
	}
	if len(input.TaskIDs) == 0 {
		return nil, apperrors.Validation("taskIds must not be empty")
	}
	if input.SpawnSource != SourceManual && input.SpawnSource != SourceOrchestrator {
		return nil, apperrors.Validationf("invalid spawnSource %q", input.SpawnSource)
	}
	if input.Role != RoleWorker && input.Role != RoleOrchestrator {
		return nil, apperrors.Validationf("invalid role %q", input.Role)
	}
	project, err := s.store.Projects().Get(ctx, input.ProjectID)
	if err != nil {
		return nil, err
	}
	tasks := make([]*domain.Task, 0, len(input.TaskIDs))
	for _, taskID := range input.TaskIDs {
		task, err := s.store.Tasks().Get(ctx, taskID)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	// Reserved keys are present but empty until the manifest exists.
	env := map[string]string{
		EnvSessionID:    "",
		EnvManifestPath: "",
		EnvServerURL:    "",
	}
	sess, err := s.sessions.Create(ctx, session.CreateInput{
		ProjectID:       input.ProjectID,
		TaskIDs:         input.TaskIDs,
		Status:          domain.SessionStatusSpawning,
		Role:            input.Role,
		TeamMemberID:    input.TeamMemberID,
		ParentSessionID: input.ParentSessionID,
		Env:             env,
	}, session.CreateOptions{SuppressCreatedEvent: true})
	if err != nil {
		return nil, err
	}

	manifest := s.buildManifest(sess, project, tasks, input)
	manifestPath, err := WriteManifest(s.root, manifest)
	if err != nil {
		s.markFailed(ctx, sess.ID)
		s.logger.Error("manifest generation failed",
			zap.String("session_id", sess.ID), zap.Error(err))
		return nil, apperrors.ManifestGeneration("failed to write session manifest", err)
	}

	sess, err = s.populateEnv(ctx, sess.ID, manifestPath)
	if err != nil {
		return nil, err
	}

	payload := s.eventPayload(sess, project, manifest, manifestPath, input.TaskIDs)
	s.publish(ctx, events.SessionCreated, payload)
	s.logger.Info("session spawned",
		zap.String("session_id", sess.ID),
		zap.String("project_id", project.ID),
		zap.String("role", input.Role),
		zap.Int("task_count", len(input.TaskIDs)))
	return &Result{Session: sess, ManifestPath: manifestPath, Manifest: manifest}, nil
}

func (s *Service) buildManifest(sess *domain.Session, project *domain.Project, tasks []*domain.Task, input Input) *Manifest {
	model := input.Model
	if model == "" {
		model = defaultModel
	}
	permissionMode := input.PermissionMode
	if permissionMode == "" {
		permissionMode = defaultPermissionMode
	}
	m := &Manifest{
		ManifestVersion: ManifestVersion,
		Role:            input.Role,
		Session: ManifestSession{
			ID:             sess.ID,
			Model:          model,
			PermissionMode: permissionMode,
		},
		Skills:     input.Skills,
		WorkingDir: project.WorkingDir,
		ProjectID:  project.ID,
	}
	for _, task := range tasks {
		m.Tasks = append(m.Tasks, ManifestTask{
			ID:          task.ID,
			Title:       task.Title,
			Description: task.Description,
		})
	}
	return m
}

// populateEnv writes the env contract values onto the stored session.
func (s *Service) populateEnv(ctx context.Context, sessionID, manifestPath string) (*domain.Session, error) {
	s.locks.Lock("session:" + sessionID)
	defer s.locks.Unlock("session:" + sessionID)

	sess, err := s.store.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Env == nil {
		sess.Env = make(map[string]string)
	}
	sess.Env[EnvSessionID] = sessionID
	sess.Env[EnvManifestPath] = manifestPath
	sess.Env[EnvServerURL] = s.serverURL
	if err := s.store.Sessions().Update(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// markFailed records a failed spawn on the session.
func (s *Service) markFailed(ctx context.Context, sessionID string) {
	failed := domain.SessionStatusFailed
	if _, err := s.sessions.Update(ctx, sessionID, session.UpdateInput{Status: &failed}); err != nil {
		s.logger.Warn("failed to mark spawned session failed",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}

// eventPayload is the session rendered as a map with the spawn extras
// merged in.
func (s *Service) eventPayload(sess *domain.Session, project *domain.Project, manifest *Manifest, manifestPath string, taskIDs []string) map[string]interface{} {
	payload := map[string]interface{}{}
	if raw, err := json.Marshal(sess); err == nil {
		_ = json.Unmarshal(raw, &payload)
	}
	payload["command"] = defaultCommand
	payload["cwd"] = project.WorkingDir
	payload["envVars"] = sess.Env
	payload["manifest"] = manifest
	payload["manifestPath"] = manifestPath
	payload["projectId"] = project.ID
	payload["taskIds"] = taskIDs
	payload["_isSpawnCreated"] = true
	return payload
}

func (s *Service) publish(ctx context.Context, topic string, data interface{}) {
	if err := s.bus.Publish(ctx, topic, bus.NewEvent(topic, "spawn-service", data)); err != nil {
		s.logger.Error("failed to publish event", zap.String("topic", topic), zap.Error(err))
	}
}
