package authz

import (
	"context"
	"sync"

	"github.com/gatekit/gatekit/internal/shared"
)

// memoryStore implements every store port backed by maps. A single mutex
// makes multi-table cascades atomic, matching the store contract.
type memoryStore struct {
	mu        sync.Mutex
	perms     map[string]Permission
	roles     map[string]Role
	groups    map[string]RoleGroup
	userRoles map[string][]string
	userPerms map[string][]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		perms:     make(map[string]Permission),
		roles:     make(map[string]Role),
		groups:    make(map[string]RoleGroup),
		userRoles: make(map[string][]string),
		userPerms: make(map[string][]string),
	}
}

func (m *memoryStore) addPermission(p Permission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perms[p.ID] = p
}

func (m *memoryStore) addRole(r Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[r.ID] = r
}

func (m *memoryStore) addGroup(g RoleGroup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.ID] = g
}

func (m *memoryStore) GetPermission(ctx context.Context, id string) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.perms[id]
	if !ok {
		return Permission{}, shared.NotFoundf("permission %s", id)
	}
	return p, nil
}

func (m *memoryStore) GetPermissionsByID(ctx context.Context, ids []string) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []Permission
	for _, id := range ids {
		if p, ok := m.perms[id]; ok {
			found = append(found, p)
		}
	}
	return found, nil
}

func (m *memoryStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	perms := make([]Permission, 0, len(m.perms))
	for _, p := range m.perms {
		perms = append(perms, p)
	}
	return perms, nil
}

func (m *memoryStore) DeletePermissionCascade(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.perms[id]; !ok {
		return shared.NotFoundf("permission %s", id)
	}
	delete(m.perms, id)
	for roleID, role := range m.roles {
		role.PermissionIDs = removeID(role.PermissionIDs, id)
		m.roles[roleID] = role
	}
	for userID, ids := range m.userPerms {
		m.userPerms[userID] = removeID(ids, id)
	}
	return nil
}

func (m *memoryStore) GetRole(ctx context.Context, id string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return Role{}, shared.NotFoundf("role %s", id)
	}
	return r, nil
}

func (m *memoryStore) GetRolesByID(ctx context.Context, ids []string) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []Role
	for _, id := range ids {
		if r, ok := m.roles[id]; ok {
			found = append(found, r)
		}
	}
	return found, nil
}

func (m *memoryStore) ListRoles(ctx context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roles := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		roles = append(roles, r)
	}
	return roles, nil
}

func (m *memoryStore) ListRolesByGroup(ctx context.Context, groupID string) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var roles []Role
	for _, r := range m.roles {
		if r.GroupID == groupID {
			roles = append(roles, r)
		}
	}
	return roles, nil
}

func (m *memoryStore) ApplyRolePermissions(ctx context.Context, roleID string, add, remove []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[roleID]
	if !ok {
		return shared.NotFoundf("role %s", roleID)
	}
	for _, id := range remove {
		role.PermissionIDs = removeID(role.PermissionIDs, id)
	}
	for _, id := range add {
		role.PermissionIDs = appendUnique(role.PermissionIDs, id)
	}
	m.roles[roleID] = role
	return nil
}

func (m *memoryStore) MoveRoleGroup(ctx context.Context, roleID, groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[roleID]
	if !ok {
		return shared.NotFoundf("role %s", roleID)
	}
	role.GroupID = groupID
	m.roles[roleID] = role
	return nil
}

func (m *memoryStore) DeleteRoleCascade(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return shared.NotFoundf("role %s", id)
	}
	delete(m.roles, id)
	for userID, ids := range m.userRoles {
		m.userRoles[userID] = removeID(ids, id)
	}
	return nil
}

func (m *memoryStore) GetRoleGroup(ctx context.Context, id string) (RoleGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return RoleGroup{}, shared.NotFoundf("group %s", id)
	}
	return g, nil
}

func (m *memoryStore) ListRoleGroups(ctx context.Context) ([]RoleGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	groups := make([]RoleGroup, 0, len(m.groups))
	for _, g := range m.groups {
		groups = append(groups, g)
	}
	return groups, nil
}

func (m *memoryStore) DeleteRoleGroup(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[id]; !ok {
		return shared.NotFoundf("group %s", id)
	}
	delete(m.groups, id)
	return nil
}

func (m *memoryStore) GetUserRoles(ctx context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyIDs(m.userRoles[userID]), nil
}

func (m *memoryStore) GetUserDirectPermissions(ctx context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyIDs(m.userPerms[userID]), nil
}

func (m *memoryStore) ApplyUserRoles(ctx context.Context, userID string, add, remove []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.userRoles[userID]
	for _, id := range remove {
		ids = removeID(ids, id)
	}
	for _, id := range add {
		ids = appendUnique(ids, id)
	}
	m.userRoles[userID] = ids
	return nil
}

func (m *memoryStore) ApplyUserDirectPermissions(ctx context.Context, userID string, add, remove []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.userPerms[userID]
	for _, id := range remove {
		ids = removeID(ids, id)
	}
	for _, id := range add {
		ids = appendUnique(ids, id)
	}
	m.userPerms[userID] = ids
	return nil
}

func (m *memoryStore) ListUsersWithRole(ctx context.Context, roleID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []string
	for userID, ids := range m.userRoles {
		for _, id := range ids {
			if id == roleID {
				users = append(users, userID)
				break
			}
		}
	}
	return users, nil
}

func (m *memoryStore) ListAssignedUserIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	var users []string
	for userID := range m.userRoles {
		if _, ok := seen[userID]; !ok {
			seen[userID] = struct{}{}
			users = append(users, userID)
		}
	}
	for userID := range m.userPerms {
		if _, ok := seen[userID]; !ok {
			seen[userID] = struct{}{}
			users = append(users, userID)
		}
	}
	return users, nil
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func appendUnique(ids []string, target string) []string {
	for _, id := range ids {
		if id == target {
			return ids
		}
	}
	return append(ids, target)
}

func copyIDs(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
