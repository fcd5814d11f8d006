package authz

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gatekit/gatekit/internal/observability"
	"github.com/gatekit/gatekit/internal/shared"
)

// CacheWarmer schedules a background recomputation of the effective
// permission cache. Fire and forget; correctness never depends on it.
type CacheWarmer interface {
	ScheduleWarmup(ctx context.Context) error
}

// ServiceConfig collects the dependencies of the authorization service.
// Cache, Audit, Warmer, Logger and Metrics are optional.
type ServiceConfig struct {
	Permissions PermissionStore
	Roles       RoleStore
	Groups      GroupStore
	Users       AssignmentStore
	Cache       *EffectiveCache
	Audit       *shared.AuditLogger
	Warmer      CacheWarmer
	Logger      *slog.Logger
	Metrics     *observability.Metrics
}

// Service exposes the authorization operations to the admin API layer. All
// assignment writes against the same entity are serialized through a keyed
// mutex; concurrent full-replace calls against one target would otherwise
// silently discard one caller's intent.
type Service struct {
	perms    PermissionStore
	roles    RoleStore
	groups   GroupStore
	users    AssignmentStore
	resolver *Resolver
	enforcer *Enforcer
	locks    *shared.KeyedMutex
	cache    *EffectiveCache
	audit    *shared.AuditLogger
	warmer   CacheWarmer
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewService constructs the Service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		perms:    cfg.Permissions,
		roles:    cfg.Roles,
		groups:   cfg.Groups,
		users:    cfg.Users,
		resolver: NewResolver(cfg.Permissions, cfg.Roles, cfg.Users, cfg.Logger, cfg.Metrics),
		enforcer: NewEnforcer(cfg.Roles, cfg.Groups, cfg.Users, cfg.Logger),
		locks:    shared.NewKeyedMutex(),
		cache:    cfg.Cache,
		audit:    cfg.Audit,
		warmer:   cfg.Warmer,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// Enforcer exposes the group invariant enforcer for store-level guards.
func (s *Service) Enforcer() *Enforcer {
	return s.enforcer
}

// ResolveEffectivePermissions returns the user's attributed permission list,
// served from cache when possible.
func (s *Service) ResolveEffectivePermissions(ctx context.Context, userID string) ([]EffectivePermission, error) {
	if cached, ok := s.cache.Get(ctx, userID); ok {
		return cached, nil
	}
	effective, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, userID, effective); err != nil && s.logger != nil {
		s.logger.Warn("cache effective permissions", slog.Any("error", err))
	}
	return effective, nil
}

// HasPermission reports whether the user may perform action on resource.
func (s *Service) HasPermission(ctx context.Context, userID, resource, action string) (bool, error) {
	effective, err := s.ResolveEffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, ep := range effective {
		if ep.Permission.Allows(resource, action) {
			return true, nil
		}
	}
	return false, nil
}

// SetUserDirectPermissions replaces the user's direct permission set with the
// desired one and returns the applied diff.
func (s *Service) SetUserDirectPermissions(ctx context.Context, userID string, permissionIDs []string) (Diff, error) {
	if userID == "" {
		return Diff{}, shared.Validationf("user id required")
	}
	if err := s.requirePermissions(ctx, permissionIDs); err != nil {
		return Diff{}, err
	}

	key := shared.EntityLockKey("user", userID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	diff, err := reconcile(ctx,
		func(ctx context.Context) ([]string, error) { return s.users.GetUserDirectPermissions(ctx, userID) },
		permissionIDs,
		func(ctx context.Context, d Diff) error {
			return s.users.ApplyUserDirectPermissions(ctx, userID, d.Added, d.Removed)
		})
	if err != nil {
		return Diff{}, err
	}
	s.metrics.ObserveReconcile("user_permissions", !diff.Empty())
	if diff.Empty() {
		return diff, nil
	}

	s.invalidate(ctx, userID)
	s.recordAudit(ctx, "user.permissions.replace", "user", userID, map[string]any{
		"added": diff.Added, "removed": diff.Removed,
	})
	return diff, nil
}

// SetUserRoles replaces the user's role set with the desired one. Group
// membership repair runs afterward regardless of the diff, so a requires-one
// group left without a member role always falls back to its default.
func (s *Service) SetUserRoles(ctx context.Context, userID string, roleIDs []string) (Diff, error) {
	if userID == "" {
		return Diff{}, shared.Validationf("user id required")
	}
	if err := s.requireRoles(ctx, roleIDs); err != nil {
		return Diff{}, err
	}

	key := shared.EntityLockKey("user", userID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	diff, err := reconcile(ctx,
		func(ctx context.Context) ([]string, error) { return s.users.GetUserRoles(ctx, userID) },
		roleIDs,
		func(ctx context.Context, d Diff) error {
			return s.users.ApplyUserRoles(ctx, userID, d.Added, d.Removed)
		})
	if err != nil {
		return Diff{}, err
	}
	s.metrics.ObserveReconcile("user_roles", !diff.Empty())

	repaired, err := s.enforcer.RepairAllMemberships(ctx, userID)
	if err != nil {
		return Diff{}, err
	}
	if diff.Empty() && !repaired {
		return diff, nil
	}

	s.invalidate(ctx, userID)
	if diff.Empty() {
		return diff, nil
	}
	s.recordAudit(ctx, "user.roles.replace", "user", userID, map[string]any{
		"added": diff.Added, "removed": diff.Removed,
	})
	return diff, nil
}

// SetRolePermissions replaces the role's permission set with the desired one.
// Every user holding the role sees the change on their next resolve.
func (s *Service) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) (Diff, error) {
	role, err := s.roles.GetRole(ctx, roleID)
	if err != nil {
		return Diff{}, err
	}
	if err := s.requirePermissions(ctx, permissionIDs); err != nil {
		return Diff{}, err
	}

	key := shared.EntityLockKey("role", roleID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	diff, err := reconcile(ctx,
		func(ctx context.Context) ([]string, error) {
			current, err := s.roles.GetRole(ctx, roleID)
			if err != nil {
				return nil, err
			}
			return current.PermissionIDs, nil
		},
		permissionIDs,
		func(ctx context.Context, d Diff) error {
			return s.roles.ApplyRolePermissions(ctx, roleID, d.Added, d.Removed)
		})
	if err != nil {
		return Diff{}, err
	}
	s.metrics.ObserveReconcile("role_permissions", !diff.Empty())
	if diff.Empty() {
		return diff, nil
	}

	holders, err := s.users.ListUsersWithRole(ctx, roleID)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("list role holders", slog.Any("error", err))
		}
	} else {
		s.invalidate(ctx, holders...)
	}
	s.recordAudit(ctx, "role.permissions.replace", "role", roleID, map[string]any{
		"role": role.Name, "added": diff.Added, "removed": diff.Removed,
	})
	s.scheduleWarmup(ctx)
	return diff, nil
}

// MoveRole reassigns a role to another group after the enforcer's guards
// pass. Users whose only membership in a requires-one origin group was the
// moved role are repaired against that group's default.
func (s *Service) MoveRole(ctx context.Context, id, groupID string) error {
	role, err := s.roles.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.GroupID == groupID {
		return nil
	}
	if err := s.enforcer.ValidateRoleMove(ctx, role); err != nil {
		return err
	}
	if _, err := s.groups.GetRoleGroup(ctx, groupID); err != nil {
		return err
	}

	key := shared.EntityLockKey("role", id)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	holders, err := s.users.ListUsersWithRole(ctx, id)
	if err != nil {
		return fmt.Errorf("authz: list role holders: %w", err)
	}
	if err := s.roles.MoveRoleGroup(ctx, id, groupID); err != nil {
		return fmt.Errorf("authz: move role group: %w", err)
	}

	origin, err := s.groups.GetRoleGroup(ctx, role.GroupID)
	if err == nil && origin.RequiresOne {
		for _, userID := range holders {
			if _, err := s.repairMembershipLocked(ctx, userID, origin); err != nil {
				return err
			}
		}
	}

	s.invalidate(ctx, holders...)
	s.recordAudit(ctx, "role.move", "role", id, map[string]any{
		"name": role.Name, "from": role.GroupID, "to": groupID,
	})
	return nil
}

// RepairGroupMembership repairs requires-one membership for every user known
// to the assignment store and invalidates the effective cache for the users
// a repair actually touched. Runs synchronously when a group transitions to
// requires-one; users with no assignment rows yet are picked up by the next
// mutation touching their role set.
func (s *Service) RepairGroupMembership(ctx context.Context, group RoleGroup) error {
	if !group.RequiresOne {
		return nil
	}
	userIDs, err := s.users.ListAssignedUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("authz: list assigned users: %w", err)
	}
	var repaired []string
	for _, userID := range userIDs {
		did, err := s.repairMembershipLocked(ctx, userID, group)
		if err != nil {
			return err
		}
		if did {
			repaired = append(repaired, userID)
		}
	}
	s.invalidate(ctx, repaired...)
	return nil
}

// repairMembershipLocked serializes a repair's read-check-write against
// concurrent reconciles on the same user. Callers must not already hold the
// user's lock.
func (s *Service) repairMembershipLocked(ctx context.Context, userID string, group RoleGroup) (bool, error) {
	key := shared.EntityLockKey("user", userID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)
	return s.enforcer.RepairUserMembership(ctx, userID, group)
}

// DeletePermission removes a permission and cascades the removal through
// every role and every user's direct set as one atomic operation.
func (s *Service) DeletePermission(ctx context.Context, id string) error {
	perm, err := s.perms.GetPermission(ctx, id)
	if err != nil {
		return err
	}

	key := shared.EntityLockKey("permission", id)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	if err := s.perms.DeletePermissionCascade(ctx, id); err != nil {
		return fmt.Errorf("authz: delete permission cascade: %w", err)
	}

	if err := s.cache.InvalidateAll(ctx); err != nil && s.logger != nil {
		s.logger.Warn("invalidate effective cache", slog.Any("error", err))
	}
	s.recordAudit(ctx, "permission.delete", "permission", id, map[string]any{"name": perm.Name})
	s.scheduleWarmup(ctx)
	return nil
}

// DeleteRole removes a role after the enforcer's guards pass, cascades it out
// of every user's role set, and repairs requires-one membership for the users
// that held it.
func (s *Service) DeleteRole(ctx context.Context, id string) error {
	role, err := s.roles.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if err := s.enforcer.ValidateRoleDelete(ctx, role); err != nil {
		return err
	}

	key := shared.EntityLockKey("role", id)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	holders, err := s.users.ListUsersWithRole(ctx, id)
	if err != nil {
		return fmt.Errorf("authz: list role holders: %w", err)
	}
	if err := s.roles.DeleteRoleCascade(ctx, id); err != nil {
		return fmt.Errorf("authz: delete role cascade: %w", err)
	}

	group, err := s.groups.GetRoleGroup(ctx, role.GroupID)
	if err == nil && group.RequiresOne {
		for _, userID := range holders {
			if _, err := s.repairMembershipLocked(ctx, userID, group); err != nil {
				return err
			}
		}
	}

	s.invalidate(ctx, holders...)
	s.recordAudit(ctx, "role.delete", "role", id, map[string]any{"name": role.Name})
	return nil
}

// DeleteRoleGroup removes a role group. System groups and groups that still
// own roles are protected.
func (s *Service) DeleteRoleGroup(ctx context.Context, id string) error {
	group, err := s.groups.GetRoleGroup(ctx, id)
	if err != nil {
		return err
	}
	if group.System {
		return shared.Conflictf("group %q is a system group and cannot be deleted", group.Name)
	}
	members, err := s.roles.ListRolesByGroup(ctx, id)
	if err != nil {
		return fmt.Errorf("authz: list group roles: %w", err)
	}
	if len(members) > 0 {
		return shared.Conflictf("group %q still owns %d role(s); delete or move them first", group.Name, len(members))
	}

	if err := s.groups.DeleteRoleGroup(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, "group.delete", "group", id, map[string]any{"name": group.Name})
	return nil
}

// requirePermissions fails fast when any desired permission id is unknown,
// before any mutation is attempted.
func (s *Service) requirePermissions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	perms, err := s.perms.GetPermissionsByID(ctx, ids)
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		known[p.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return shared.NotFoundf("permission %s", id)
		}
	}
	return nil
}

// requireRoles fails fast when any desired role id is unknown.
func (s *Service) requireRoles(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	roles, err := s.roles.GetRolesByID(ctx, ids)
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		known[r.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return shared.NotFoundf("role %s", id)
		}
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, userIDs ...string) {
	if err := s.cache.Invalidate(ctx, userIDs...); err != nil && s.logger != nil {
		s.logger.Warn("invalidate effective cache", slog.Any("error", err))
	}
}

func (s *Service) scheduleWarmup(ctx context.Context) {
	if s.warmer == nil {
		return
	}
	if err := s.warmer.ScheduleWarmup(ctx); err != nil && s.logger != nil {
		s.logger.Warn("schedule cache warmup", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	}
	if err := s.audit.Record(ctx, log); err != nil && s.logger != nil {
		s.logger.Warn("record audit log", slog.Any("error", err))
	}
}
