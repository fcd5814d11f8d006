package authz

import "context"

// PermissionStore is the catalog of permissions consumed by the core.
type PermissionStore interface {
	GetPermission(ctx context.Context, id string) (Permission, error)
	// GetPermissionsByID returns the permissions found for ids. Missing ids
	// are omitted, not errors; the resolver treats them as defects.
	GetPermissionsByID(ctx context.Context, ids []string) ([]Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	// DeletePermissionCascade removes the permission and every reference to
	// it from roles and user direct sets in a single atomic operation.
	DeletePermissionCascade(ctx context.Context, id string) error
}

// RoleStore provides role records and role-permission assignment writes.
type RoleStore interface {
	GetRole(ctx context.Context, id string) (Role, error)
	GetRolesByID(ctx context.Context, ids []string) ([]Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	ListRolesByGroup(ctx context.Context, groupID string) ([]Role, error)
	// ApplyRolePermissions applies a computed add/remove diff to the role's
	// permission set.
	ApplyRolePermissions(ctx context.Context, roleID string, add, remove []string) error
	// MoveRoleGroup reassigns the role to another group.
	MoveRoleGroup(ctx context.Context, roleID, groupID string) error
	// DeleteRoleCascade removes the role and its references from every
	// user's role set atomically.
	DeleteRoleCascade(ctx context.Context, id string) error
}

// GroupStore provides role-group records.
type GroupStore interface {
	GetRoleGroup(ctx context.Context, id string) (RoleGroup, error)
	ListRoleGroups(ctx context.Context) ([]RoleGroup, error)
	DeleteRoleGroup(ctx context.Context, id string) error
}

// AssignmentStore holds per-user role and direct-permission sets. User role
// and permission sets mutate only through diffs computed by the reconciler.
type AssignmentStore interface {
	GetUserRoles(ctx context.Context, userID string) ([]string, error)
	GetUserDirectPermissions(ctx context.Context, userID string) ([]string, error)
	ApplyUserRoles(ctx context.Context, userID string, add, remove []string) error
	ApplyUserDirectPermissions(ctx context.Context, userID string, add, remove []string) error
	ListUsersWithRole(ctx context.Context, roleID string) ([]string, error)
	ListAssignedUserIDs(ctx context.Context) ([]string, error)
}
