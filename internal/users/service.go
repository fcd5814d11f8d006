package users

import (
	"context"

	"github.com/gatekit/gatekit/internal/authz"
)

// CorePort is the slice of the authorization core used for user-facing
// resolution and assignment writes.
type CorePort interface {
	ResolveEffectivePermissions(ctx context.Context, userID string) ([]authz.EffectivePermission, error)
	HasPermission(ctx context.Context, userID, resource, action string) (bool, error)
	SetUserRoles(ctx context.Context, userID string, roleIDs []string) (authz.Diff, error)
	SetUserDirectPermissions(ctx context.Context, userID string, permissionIDs []string) (authz.Diff, error)
}

// AssignmentPort reads the raw assignment sets.
type AssignmentPort interface {
	GetUserRoles(ctx context.Context, userID string) ([]string, error)
	GetUserDirectPermissions(ctx context.Context, userID string) ([]string, error)
}

// Service exposes per-user assignment operations on top of the core.
type Service struct {
	core        CorePort
	assignments AssignmentPort
}

// NewService builds a Service instance.
func NewService(core CorePort, assignments AssignmentPort) *Service {
	return &Service{core: core, assignments: assignments}
}

// Assignments holds a user's raw role and direct permission ids.
type Assignments struct {
	RoleIDs       []string `json:"roleIds"`
	PermissionIDs []string `json:"permissionIds"`
}

// GetAssignments returns the user's raw assignment sets. Unknown users yield
// empty sets.
func (s *Service) GetAssignments(ctx context.Context, userID string) (Assignments, error) {
	roleIDs, err := s.assignments.GetUserRoles(ctx, userID)
	if err != nil {
		return Assignments{}, err
	}
	permIDs, err := s.assignments.GetUserDirectPermissions(ctx, userID)
	if err != nil {
		return Assignments{}, err
	}
	if roleIDs == nil {
		roleIDs = []string{}
	}
	if permIDs == nil {
		permIDs = []string{}
	}
	return Assignments{RoleIDs: roleIDs, PermissionIDs: permIDs}, nil
}

// ResolveEffectivePermissions returns the user's effective permission set
// with provenance.
func (s *Service) ResolveEffectivePermissions(ctx context.Context, userID string) ([]authz.EffectivePermission, error) {
	return s.core.ResolveEffectivePermissions(ctx, userID)
}

// HasPermission reports whether the user may perform action on resource.
func (s *Service) HasPermission(ctx context.Context, userID, resource, action string) (bool, error) {
	return s.core.HasPermission(ctx, userID, resource, action)
}

// SetRoles replaces the user's role set and returns the applied diff.
func (s *Service) SetRoles(ctx context.Context, userID string, roleIDs []string) (authz.Diff, error) {
	return s.core.SetUserRoles(ctx, userID, roleIDs)
}

// SetDirectPermissions replaces the user's direct permission set and returns
// the applied diff.
func (s *Service) SetDirectPermissions(ctx context.Context, userID string, permissionIDs []string) (authz.Diff, error) {
	return s.core.SetUserDirectPermissions(ctx, userID, permissionIDs)
}
