package groups

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/gatekit/gatekit/internal/authz"
	"github.com/gatekit/gatekit/internal/shared"
)

// RepositoryPort defines data access for role groups.
type RepositoryPort interface {
	GetRoleGroup(ctx context.Context, id string) (authz.RoleGroup, error)
	ListRoleGroups(ctx context.Context) ([]authz.RoleGroup, error)
	CreateRoleGroup(ctx context.Context, g authz.RoleGroup) (authz.RoleGroup, error)
	UpdateRoleGroup(ctx context.Context, g authz.RoleGroup) error
}

// EnforcerPort validates the requires-one invariant. Satisfied by
// authz.Enforcer.
type EnforcerPort interface {
	ValidateGroup(ctx context.Context, group authz.RoleGroup) error
}

// CorePort is the slice of the authorization core used for deletes and for
// membership repair. Repair runs through the core rather than the bare
// enforcer so the effective-permission cache of repaired users is
// invalidated along with the role writes.
type CorePort interface {
	RepairGroupMembership(ctx context.Context, group authz.RoleGroup) error
	DeleteRoleGroup(ctx context.Context, id string) error
}

// Service handles role-group business logic.
type Service struct {
	repo     RepositoryPort
	enforcer EnforcerPort
	core     CorePort
	audit    *shared.AuditLogger
	logger   *slog.Logger
}

// NewService builds a Service instance. Audit and logger may be nil.
func NewService(repo RepositoryPort, enforcer EnforcerPort, core CorePort, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, enforcer: enforcer, core: core, audit: audit, logger: logger}
}

// CreateInput carries the fields of a new group.
type CreateInput struct {
	Name          string
	DisplayName   string
	Description   string
	RequiresOne   bool
	DefaultRoleID string
}

// Create validates and inserts a new group. A requires-one group can only be
// created once its default role exists and already belongs to it, which in
// practice means groups start permissive and tighten via Update.
func (s *Service) Create(ctx context.Context, input CreateInput) (authz.RoleGroup, error) {
	name := strings.TrimSpace(input.Name)
	if !shared.ValidName(name) {
		return authz.RoleGroup{}, shared.Validationf("group name %q must be a lowercase token with dashes", input.Name)
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = shared.DisplayName(name)
	}
	group := authz.RoleGroup{
		ID:            uuid.NewString(),
		Name:          name,
		DisplayName:   displayName,
		Description:   strings.TrimSpace(input.Description),
		RequiresOne:   input.RequiresOne,
		DefaultRoleID: input.DefaultRoleID,
	}
	if err := s.enforcer.ValidateGroup(ctx, group); err != nil {
		return authz.RoleGroup{}, err
	}

	created, err := s.repo.CreateRoleGroup(ctx, group)
	if err != nil {
		return authz.RoleGroup{}, err
	}
	s.recordAudit(ctx, "group.create", created.ID, created.Name)
	return created, nil
}

// UpdateInput carries the mutable fields of a group.
type UpdateInput struct {
	DisplayName   string
	Description   string
	RequiresOne   bool
	DefaultRoleID string
}

// Update edits a group. System groups are immutable. When the group
// transitions to requires-one, membership repair runs for every known user
// before the call returns.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (authz.RoleGroup, error) {
	group, err := s.repo.GetRoleGroup(ctx, id)
	if err != nil {
		return authz.RoleGroup{}, err
	}
	if group.System {
		return authz.RoleGroup{}, shared.Conflictf("group %q is a system group and cannot be edited", group.Name)
	}

	becameRequired := input.RequiresOne && !group.RequiresOne

	group.DisplayName = strings.TrimSpace(input.DisplayName)
	if group.DisplayName == "" {
		group.DisplayName = shared.DisplayName(group.Name)
	}
	group.Description = strings.TrimSpace(input.Description)
	group.RequiresOne = input.RequiresOne
	group.DefaultRoleID = input.DefaultRoleID
	if err := s.enforcer.ValidateGroup(ctx, group); err != nil {
		return authz.RoleGroup{}, err
	}

	if err := s.repo.UpdateRoleGroup(ctx, group); err != nil {
		return authz.RoleGroup{}, err
	}
	if becameRequired {
		if err := s.core.RepairGroupMembership(ctx, group); err != nil {
			return authz.RoleGroup{}, err
		}
	}
	s.recordAudit(ctx, "group.update", group.ID, group.Name)
	return group, nil
}

// Get fetches a group by id.
func (s *Service) Get(ctx context.Context, id string) (authz.RoleGroup, error) {
	return s.repo.GetRoleGroup(ctx, id)
}

// List returns all groups.
func (s *Service) List(ctx context.Context) ([]authz.RoleGroup, error) {
	return s.repo.ListRoleGroups(ctx)
}

// Delete removes a group through the core so its guards run.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.core.DeleteRoleGroup(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, action, id, name string) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "group",
		EntityID: id,
		Meta:     map[string]any{"name": name},
	}
	if err := s.audit.Record(ctx, log); err != nil && s.logger != nil {
		s.logger.Warn("record audit log", slog.Any("error", err))
	}
}
