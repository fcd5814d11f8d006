// Package authz implements the authorization core: resolving a user's
// effective permissions from direct grants and role-derived grants, enforcing
// role-group membership invariants, and reconciling bulk assignment changes.
package authz

import "time"

// Permission is an atomic capability grant over a set of resources and actions.
type Permission struct {
	ID          string
	Name        string
	Description string
	Resources   []string
	Actions     []string
	Category    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Allows reports whether the permission covers the resource/action pair.
func (p Permission) Allows(resource, action string) bool {
	if !containsString(p.Resources, resource) {
		return false
	}
	return containsString(p.Actions, action)
}

// Role is a named, reusable bundle of permissions belonging to exactly one
// role group.
type Role struct {
	ID            string
	Name          string
	DisplayName   string
	Description   string
	GroupID       string
	PermissionIDs []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RoleGroup categorises roles. A group with RequiresOne set demands that
// every user hold exactly one member role, falling back to DefaultRoleID.
type RoleGroup struct {
	ID            string
	Name          string
	DisplayName   string
	Description   string
	RequiresOne   bool
	DefaultRoleID string
	System        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EffectivePermission is a permission with provenance. It is derived on
// demand and never persisted.
type EffectivePermission struct {
	Permission Permission
	Direct     bool
	ViaRoles   []string
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
