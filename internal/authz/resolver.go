package authz

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gatekit/gatekit/internal/observability"
)

// Resolver computes effective permissions as a pure function of store state.
type Resolver struct {
	perms   PermissionStore
	roles   RoleStore
	users   AssignmentStore
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewResolver constructs a Resolver. Logger and metrics may be nil.
func NewResolver(perms PermissionStore, roles RoleStore, users AssignmentStore, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{perms: perms, roles: roles, users: users, logger: logger, metrics: metrics}
}

// Resolve unions the user's role-derived and direct permission grants into an
// attributed list. A permission reachable through both paths appears exactly
// once carrying both provenance facts. Ordering is insertion-stable: role
// grants in role order first, then direct grants. Dangling permission ids are
// filtered out and recorded, never surfaced.
func (r *Resolver) Resolve(ctx context.Context, userID string) ([]EffectivePermission, error) {
	if userID == "" {
		return nil, fmt.Errorf("authz: user id required")
	}

	roleIDs, err := r.users.GetUserRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("authz: load user roles: %w", err)
	}
	roles, err := r.roles.GetRolesByID(ctx, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("authz: load roles: %w", err)
	}
	if len(roles) < len(roleIDs) {
		r.reportDefect(userID, "user references missing role", missingIDs(roleIDs, roleKeys(roles)))
	}

	directIDs, err := r.users.GetUserDirectPermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("authz: load direct permissions: %w", err)
	}

	type provenance struct {
		direct   bool
		viaRoles []string
	}
	order := make([]string, 0, len(directIDs))
	sources := make(map[string]*provenance)

	record := func(permID string) *provenance {
		p, ok := sources[permID]
		if !ok {
			p = &provenance{}
			sources[permID] = p
			order = append(order, permID)
		}
		return p
	}

	for _, role := range roles {
		for _, permID := range role.PermissionIDs {
			p := record(permID)
			if !containsString(p.viaRoles, role.Name) {
				p.viaRoles = append(p.viaRoles, role.Name)
			}
		}
	}
	for _, permID := range directIDs {
		record(permID).direct = true
	}

	perms, err := r.perms.GetPermissionsByID(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("authz: load permissions: %w", err)
	}
	byID := make(map[string]Permission, len(perms))
	for _, perm := range perms {
		byID[perm.ID] = perm
	}

	effective := make([]EffectivePermission, 0, len(order))
	for _, permID := range order {
		perm, ok := byID[permID]
		if !ok {
			r.reportDefect(userID, "dangling permission reference", []string{permID})
			continue
		}
		src := sources[permID]
		effective = append(effective, EffectivePermission{
			Permission: perm,
			Direct:     src.direct,
			ViaRoles:   src.viaRoles,
		})
	}
	return effective, nil
}

// HasPermission reports whether any of the user's effective permissions
// covers the resource/action pair.
func (r *Resolver) HasPermission(ctx context.Context, userID, resource, action string) (bool, error) {
	effective, err := r.Resolve(ctx, userID)
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

func (r *Resolver) reportDefect(userID, reason string, ids []string) {
	if r.metrics != nil {
		for range ids {
			r.metrics.ObserveConsistencyDefect()
		}
	}
	if r.logger != nil {
		r.logger.Warn("authz consistency defect",
			slog.String("user_id", userID),
			slog.String("reason", reason),
			slog.Any("ids", ids))
	}
}

func roleKeys(roles []Role) map[string]struct{} {
	keys := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		keys[role.ID] = struct{}{}
	}
	return keys
}

func missingIDs(ids []string, present map[string]struct{}) []string {
	var missing []string
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
