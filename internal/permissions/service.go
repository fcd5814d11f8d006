package permissions

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/gatekit/gatekit/internal/authz"
	"github.com/gatekit/gatekit/internal/shared"
)

// CatalogPort defines data access for the permission catalog.
type CatalogPort interface {
	GetPermission(ctx context.Context, id string) (authz.Permission, error)
	ListPermissions(ctx context.Context) ([]authz.Permission, error)
	CreatePermission(ctx context.Context, p authz.Permission) (authz.Permission, error)
}

// Deleter removes a permission with its full cascade. Satisfied by
// authz.Service.
type Deleter interface {
	DeletePermission(ctx context.Context, id string) error
}

// Service handles catalog business logic.
type Service struct {
	repo    CatalogPort
	deleter Deleter
	audit   *shared.AuditLogger
	logger  *slog.Logger
}

// NewService builds a Service instance. Audit and logger may be nil.
func NewService(repo CatalogPort, deleter Deleter, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, deleter: deleter, audit: audit, logger: logger}
}

// CreateInput carries the fields of a new permission.
type CreateInput struct {
	Name        string
	Description string
	Resources   []string
	Actions     []string
	Category    string
}

// Create validates and inserts a new permission.
func (s *Service) Create(ctx context.Context, input CreateInput) (authz.Permission, error) {
	name := strings.TrimSpace(input.Name)
	if !shared.ValidName(name) {
		return authz.Permission{}, shared.Validationf("permission name %q must be a lowercase token with dashes", input.Name)
	}
	resources := cleanSet(input.Resources)
	if len(resources) == 0 {
		return authz.Permission{}, shared.Validationf("permission %q needs at least one resource", name)
	}
	actions := cleanSet(input.Actions)
	if len(actions) == 0 {
		return authz.Permission{}, shared.Validationf("permission %q needs at least one action", name)
	}

	created, err := s.repo.CreatePermission(ctx, authz.Permission{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Resources:   resources,
		Actions:     actions,
		Category:    strings.TrimSpace(input.Category),
	})
	if err != nil {
		return authz.Permission{}, err
	}
	s.recordAudit(ctx, "permission.create", created.ID, created.Name)
	return created, nil
}

// Get fetches a permission by id.
func (s *Service) Get(ctx context.Context, id string) (authz.Permission, error) {
	return s.repo.GetPermission(ctx, id)
}

// List returns the full catalog.
func (s *Service) List(ctx context.Context) ([]authz.Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// Delete removes a permission through the authorization core so the cascade
// runs.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.deleter.DeletePermission(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, action, id, name string) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "permission",
		EntityID: id,
		Meta:     map[string]any{"name": name},
	}
	if err := s.audit.Record(ctx, log); err != nil && s.logger != nil {
		s.logger.Warn("record audit log", slog.Any("error", err))
	}
}

func cleanSet(values []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(strings.ToLower(v))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
