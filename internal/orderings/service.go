// Package orderings implements the per-(project, entity-type) ordered id
// lists that clients use to persist manual sort orders.
package orderings

import (
	"context"

	"go.uber.org/zap"

	apperrors "github.com/maestro/maestro/internal/common/errors"
	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/domain"
	"github.com/maestro/maestro/internal/store"
)

// Entity types with stored orderings.
const (
	EntityTasks     = "tasks"
	EntitySessions  = "sessions"
	EntityTaskLists = "task-lists"
	EntityTeams     = "teams"
)

// Service owns ordering reads and writes. Orderings are opaque to the
// server: ids are not checked against the entities they order, so a stale
// ordering never blocks an entity deletion.
type Service struct {
	orderings store.OrderingRepository
	projects  store.ProjectRepository
	logger    *logger.Logger
}

// NewService creates an orderings service.
func NewService(st store.Store, log *logger.Logger) *Service {
	return &Service{
		orderings: st.Orderings(),
		projects:  st.Projects(),
		logger:    log.WithFields(zap.String("component", "orderings-service")),
	}
}

// Get returns the ordering for a project and entity type. A missing entry
// resolves to an empty ordering rather than an error.
func (s *Service) Get(ctx context.Context, projectID, entityType string) (*domain.Ordering, error) {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	if !validEntityType(entityType) {
		return nil, apperrors.Validationf("unknown entity type '%s'", entityType)
	}
	o, err := s.orderings.Get(ctx, projectID, entityType)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return &domain.Ordering{ProjectID: projectID, EntityType: entityType, IDs: []string{}}, nil
		}
		return nil, err
	}
	return o, nil
}

// Put replaces the ordering for a project and entity type.
func (s *Service) Put(ctx context.Context, projectID, entityType string, ids []string) (*domain.Ordering, error) {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	if !validEntityType(entityType) {
		return nil, apperrors.Validationf("unknown entity type '%s'", entityType)
	}
	if ids == nil {
		ids = []string{}
	}
	o := &domain.Ordering{ProjectID: projectID, EntityType: entityType, IDs: ids}
	if err := s.orderings.Put(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func validEntityType(entityType string) bool {
	switch entityType {
	case EntityTasks, EntitySessions, EntityTaskLists, EntityTeams:
		return true
	}
	return false
}
