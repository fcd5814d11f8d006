package roles

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/gatekit/gatekit/internal/authz"
	"github.com/gatekit/gatekit/internal/shared"
)

// RepositoryPort defines data access for roles beyond the authz core's needs.
type RepositoryPort interface {
	GetRole(ctx context.Context, id string) (authz.Role, error)
	ListRoles(ctx context.Context) ([]authz.Role, error)
	ListRolesByGroup(ctx context.Context, groupID string) ([]authz.Role, error)
	CreateRole(ctx context.Context, role authz.Role) (authz.Role, error)
	UpdateRole(ctx context.Context, role authz.Role) error
}

// GroupPort looks up role groups for referential checks.
type GroupPort interface {
	GetRoleGroup(ctx context.Context, id string) (authz.RoleGroup, error)
}

// CorePort is the slice of the authorization core this service mutates
// through.
type CorePort interface {
	SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) (authz.Diff, error)
	MoveRole(ctx context.Context, id, groupID string) error
	DeleteRole(ctx context.Context, id string) error
}

// Service handles role business logic.
type Service struct {
	repo   RepositoryPort
	groups GroupPort
	core   CorePort
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService builds a Service instance. Audit and logger may be nil.
func NewService(repo RepositoryPort, groups GroupPort, core CorePort, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, groups: groups, core: core, audit: audit, logger: logger}
}

// CreateInput carries the fields of a new role.
type CreateInput struct {
	Name        string
	DisplayName string
	Description string
	GroupID     string
}

// Create validates and inserts a new role into an existing group.
func (s *Service) Create(ctx context.Context, input CreateInput) (authz.Role, error) {
	name := strings.TrimSpace(input.Name)
	if !shared.ValidName(name) {
		return authz.Role{}, shared.Validationf("role name %q must be a lowercase token with dashes", input.Name)
	}
	if input.GroupID == "" {
		return authz.Role{}, shared.Validationf("role %q needs a group", name)
	}
	if _, err := s.groups.GetRoleGroup(ctx, input.GroupID); err != nil {
		return authz.Role{}, err
	}

	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = shared.DisplayName(name)
	}
	created, err := s.repo.CreateRole(ctx, authz.Role{
		ID:          uuid.NewString(),
		Name:        name,
		DisplayName: displayName,
		Description: strings.TrimSpace(input.Description),
		GroupID:     input.GroupID,
	})
	if err != nil {
		return authz.Role{}, err
	}
	s.recordAudit(ctx, "role.create", created.ID, created.Name)
	return created, nil
}

// UpdateInput carries the mutable fields of a role. Name is immutable; other
// records reference roles by id but administrators know them by name.
type UpdateInput struct {
	DisplayName string
	Description string
	GroupID     string
}

// Update edits a role. Group moves run through the core so the enforcer's
// guards and membership repair apply; roles in system groups and roles that
// are a requires-one group's default cannot move.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (authz.Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return authz.Role{}, err
	}

	groupID := input.GroupID
	if groupID == "" {
		groupID = role.GroupID
	}
	if groupID != role.GroupID {
		if err := s.core.MoveRole(ctx, id, groupID); err != nil {
			return authz.Role{}, err
		}
	}

	role.DisplayName = strings.TrimSpace(input.DisplayName)
	if role.DisplayName == "" {
		role.DisplayName = shared.DisplayName(role.Name)
	}
	role.Description = strings.TrimSpace(input.Description)
	role.GroupID = groupID
	if err := s.repo.UpdateRole(ctx, role); err != nil {
		return authz.Role{}, err
	}
	s.recordAudit(ctx, "role.update", role.ID, role.Name)
	return role, nil
}

// Get fetches a role by id.
func (s *Service) Get(ctx context.Context, id string) (authz.Role, error) {
	return s.repo.GetRole(ctx, id)
}

// List returns all roles.
func (s *Service) List(ctx context.Context) ([]authz.Role, error) {
	return s.repo.ListRoles(ctx)
}

// ListByGroup returns the member roles of a group.
func (s *Service) ListByGroup(ctx context.Context, groupID string) ([]authz.Role, error) {
	return s.repo.ListRolesByGroup(ctx, groupID)
}

// SetPermissions replaces the role's permission set through the core
// reconciler.
func (s *Service) SetPermissions(ctx context.Context, roleID string, permissionIDs []string) (authz.Diff, error) {
	return s.core.SetRolePermissions(ctx, roleID, permissionIDs)
}

// Delete removes a role through the core so guards and cascades run.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.core.DeleteRole(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, action, id, name string) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "role",
		EntityID: id,
		Meta:     map[string]any{"name": name},
	}
	if err := s.audit.Record(ctx, log); err != nil && s.logger != nil {
		s.logger.Warn("record audit log", slog.Any("error", err))
	}
}
