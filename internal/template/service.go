// Package template implements role-keyed prompt templates. Each known role
// ships with a code default that a stored override can replace and a reset
// restores.
package template

import (
	"context"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/maestro/maestro/internal/common/errors"
	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/domain"
	"github.com/maestro/maestro/internal/store"
)

// Built-in template roles.
const (
	RoleOrchestrator = "orchestrator"
	RoleWorker       = "worker"
)

var defaultContent = map[string]string{
	RoleOrchestrator: "You are the orchestrator for this project. Break incoming work " +
		"into tasks, spawn workers for them, watch their progress through digests " +
		"and mail, and report the overall state back.",
	RoleWorker: "You are a worker session. Pull your queued tasks in order, mark each " +
		"one started before working on it and completed or failed afterwards, and " +
		"send mail when you are blocked.",
}

// Service owns template resolution and overrides.
type Service struct {
	templates store.TemplateRepository
	logger    *logger.Logger
}

// NewService creates a template service.
func NewService(st store.Store, log *logger.Logger) *Service {
	return &Service{
		templates: st.Templates(),
		logger:    log.WithFields(zap.String("component", "template-service")),
	}
}

// Get returns the stored override for a role, or the code default.
func (s *Service) Get(ctx context.Context, role string) (*domain.Template, error) {
	if t, err := s.templates.Get(ctx, role); err == nil {
		return t, nil
	} else if !apperrors.IsNotFound(err) {
		return nil, err
	}
	content, ok := defaultContent[role]
	if !ok {
		return nil, apperrors.NotFound("template", role)
	}
	return &domain.Template{Role: role, Content: content, IsDefault: true}, nil
}

// List returns every known role resolved through Get.
func (s *Service) List(ctx context.Context) ([]*domain.Template, error) {
	roles := []string{RoleOrchestrator, RoleWorker}
	out := make([]*domain.Template, 0, len(roles))
	for _, role := range roles {
		t, err := s.Get(ctx, role)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Set stores an override for a role.
func (s *Service) Set(ctx context.Context, role, content string) (*domain.Template, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.Validation("template content is required")
	}
	if _, known := defaultContent[role]; !known {
		return nil, apperrors.NotFound("template", role)
	}
	t := &domain.Template{Role: role, Content: content}
	if err := s.templates.Put(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("template overridden", zap.String("role", role))
	return t, nil
}

// Reset drops the override, restoring the code default.
func (s *Service) Reset(ctx context.Context, role string) (*domain.Template, error) {
	content, known := defaultContent[role]
	if !known {
		return nil, apperrors.NotFound("template", role)
	}
	if err := s.templates.Delete(ctx, role); err != nil && !apperrors.IsNotFound(err) {
		return nil, err
	}
	s.logger.Info("template reset", zap.String("role", role))
	return &domain.Template{Role: role, Content: content, IsDefault: true}, nil
}
