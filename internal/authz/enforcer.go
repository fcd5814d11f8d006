package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gatekit/gatekit/internal/shared"
)

// Enforcer validates and repairs role-group membership constraints. It is
// consulted before any deletion or group-affecting mutation commits.
type Enforcer struct {
	roles  RoleStore
	groups GroupStore
	users  AssignmentStore
	logger *slog.Logger
}

// NewEnforcer constructs an Enforcer. Logger may be nil.
func NewEnforcer(roles RoleStore, groups GroupStore, users AssignmentStore, logger *slog.Logger) *Enforcer {
	return &Enforcer{roles: roles, groups: groups, users: users, logger: logger}
}

// ValidateGroup checks the requires-one invariant: a group that requires one
// member role per user must name a default role, and that role must already
// belong to the group.
func (e *Enforcer) ValidateGroup(ctx context.Context, group RoleGroup) error {
	if !group.RequiresOne {
		return nil
	}
	if group.DefaultRoleID == "" {
		return shared.Validationf("group %q requires one role but has no default role", group.Name)
	}
	role, err := e.roles.GetRole(ctx, group.DefaultRoleID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Validationf("group %q default role %s does not exist", group.Name, group.DefaultRoleID)
		}
		return fmt.Errorf("authz: load default role: %w", err)
	}
	if role.GroupID != group.ID {
		return shared.Validationf("group %q default role %q belongs to another group", group.Name, role.Name)
	}
	return nil
}

// ValidateRoleDelete rejects deleting a system role or a role that is the
// current default of a requires-one group. The group's default has to be
// reassigned before such a role can go.
func (e *Enforcer) ValidateRoleDelete(ctx context.Context, role Role) error {
	group, err := e.groups.GetRoleGroup(ctx, role.GroupID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("authz: load role group: %w", err)
	}
	if err == nil && group.System {
		return shared.Conflictf("role %q belongs to system group %q and cannot be deleted", role.Name, group.Name)
	}

	groups, err := e.groups.ListRoleGroups(ctx)
	if err != nil {
		return fmt.Errorf("authz: list role groups: %w", err)
	}
	for _, g := range groups {
		if g.RequiresOne && g.DefaultRoleID == role.ID {
			return shared.Conflictf("role %q is the default of group %q; reassign the default first", role.Name, g.Name)
		}
	}
	return nil
}

// ValidateRoleMove rejects moving a role out of a system group or a role
// that is the current default of a requires-one group. Moving the default
// out of its group would leave DefaultRoleID pointing at a foreign role.
func (e *Enforcer) ValidateRoleMove(ctx context.Context, role Role) error {
	group, err := e.groups.GetRoleGroup(ctx, role.GroupID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("authz: load role group: %w", err)
	}
	if err == nil && group.System {
		return shared.Conflictf("role %q belongs to system group %q and cannot be moved", role.Name, group.Name)
	}

	groups, err := e.groups.ListRoleGroups(ctx)
	if err != nil {
		return fmt.Errorf("authz: list role groups: %w", err)
	}
	for _, g := range groups {
		if g.RequiresOne && g.DefaultRoleID == role.ID {
			return shared.Conflictf("role %q is the default of group %q; reassign the default first", role.Name, g.Name)
		}
	}
	return nil
}

// RepairUserMembership assigns the group's default role when a requires-one
// group is left with no member role for the user. The repair is idempotent:
// a user already holding any role from the group, default or not, is left
// untouched. Returns true when a role was assigned.
func (e *Enforcer) RepairUserMembership(ctx context.Context, userID string, group RoleGroup) (bool, error) {
	if !group.RequiresOne {
		return false, nil
	}
	if group.DefaultRoleID == "" {
		return false, shared.Validationf("group %q requires one role but has no default role", group.Name)
	}

	held, err := e.users.GetUserRoles(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("authz: load user roles: %w", err)
	}
	members, err := e.roles.ListRolesByGroup(ctx, group.ID)
	if err != nil {
		return false, fmt.Errorf("authz: list group roles: %w", err)
	}
	memberIDs := make(map[string]struct{}, len(members))
	for _, role := range members {
		memberIDs[role.ID] = struct{}{}
	}
	for _, roleID := range held {
		if _, ok := memberIDs[roleID]; ok {
			return false, nil
		}
	}

	if err := e.users.ApplyUserRoles(ctx, userID, []string{group.DefaultRoleID}, nil); err != nil {
		return false, fmt.Errorf("authz: assign default role: %w", err)
	}
	if e.logger != nil {
		e.logger.Info("repaired group membership",
			slog.String("user_id", userID),
			slog.String("group", group.Name),
			slog.String("default_role_id", group.DefaultRoleID))
	}
	return true, nil
}

// RepairAllMemberships runs RepairUserMembership for every requires-one group
// the user could be missing a role from. Reports whether any repair fired.
func (e *Enforcer) RepairAllMemberships(ctx context.Context, userID string) (bool, error) {
	groups, err := e.groups.ListRoleGroups(ctx)
	if err != nil {
		return false, fmt.Errorf("authz: list role groups: %w", err)
	}
	repaired := false
	for _, group := range groups {
		if !group.RequiresOne {
			continue
		}
		did, err := e.RepairUserMembership(ctx, userID, group)
		if err != nil {
			return repaired, err
		}
		repaired = repaired || did
	}
	return repaired, nil
}
