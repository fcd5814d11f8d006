package users

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/gatekit/gatekit/internal/authz"
	"github.com/gatekit/gatekit/internal/shared"
	_ "github.com/gatekit/gatekit/internal/testing/guard"
)

// stubStore implements every authz store port with maps, enough to drive the
// handler through a real core.
type stubStore struct {
	mu        sync.Mutex
	perms     map[string]authz.Permission
	roles     map[string]authz.Role
	groups    map[string]authz.RoleGroup
	userRoles map[string][]string
	userPerms map[string][]string
}

func newStubStore() *stubStore {
	return &stubStore{
		perms:     make(map[string]authz.Permission),
		roles:     make(map[string]authz.Role),
		groups:    make(map[string]authz.RoleGroup),
		userRoles: make(map[string][]string),
		userPerms: make(map[string][]string),
	}
}

func (s *stubStore) GetPermission(ctx context.Context, id string) (authz.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.perms[id]
	if !ok {
		return authz.Permission{}, shared.NotFoundf("permission %s", id)
	}
	return p, nil
}

func (s *stubStore) GetPermissionsByID(ctx context.Context, ids []string) ([]authz.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found []authz.Permission
	for _, id := range ids {
		if p, ok := s.perms[id]; ok {
			found = append(found, p)
		}
	}
	return found, nil
}

func (s *stubStore) ListPermissions(ctx context.Context) ([]authz.Permission, error) {
	return nil, nil
}

func (s *stubStore) DeletePermissionCascade(ctx context.Context, id string) error {
	return nil
}

func (s *stubStore) GetRole(ctx context.Context, id string) (authz.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return authz.Role{}, shared.NotFoundf("role %s", id)
	}
	return r, nil
}

func (s *stubStore) GetRolesByID(ctx context.Context, ids []string) ([]authz.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found []authz.Role
	for _, id := range ids {
		if r, ok := s.roles[id]; ok {
			found = append(found, r)
		}
	}
	return found, nil
}

func (s *stubStore) ListRoles(ctx context.Context) ([]authz.Role, error) { return nil, nil }

func (s *stubStore) ListRolesByGroup(ctx context.Context, groupID string) ([]authz.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var roles []authz.Role
	for _, r := range s.roles {
		if r.GroupID == groupID {
			roles = append(roles, r)
		}
	}
	return roles, nil
}

func (s *stubStore) ApplyRolePermissions(ctx context.Context, roleID string, add, remove []string) error {
	return nil
}

func (s *stubStore) MoveRoleGroup(ctx context.Context, roleID, groupID string) error { return nil }

func (s *stubStore) DeleteRoleCascade(ctx context.Context, id string) error { return nil }

func (s *stubStore) GetRoleGroup(ctx context.Context, id string) (authz.RoleGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return authz.RoleGroup{}, shared.NotFoundf("group %s", id)
	}
	return g, nil
}

func (s *stubStore) ListRoleGroups(ctx context.Context) ([]authz.RoleGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := make([]authz.RoleGroup, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	return groups, nil
}

func (s *stubStore) DeleteRoleGroup(ctx context.Context, id string) error { return nil }

func (s *stubStore) GetUserRoles(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.userRoles[userID]...), nil
}

func (s *stubStore) GetUserDirectPermissions(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.userPerms[userID]...), nil
}

func (s *stubStore) ApplyUserRoles(ctx context.Context, userID string, add, remove []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userRoles[userID] = applyDiff(s.userRoles[userID], add, remove)
	return nil
}

func (s *stubStore) ApplyUserDirectPermissions(ctx context.Context, userID string, add, remove []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userPerms[userID] = applyDiff(s.userPerms[userID], add, remove)
	return nil
}

func (s *stubStore) ListUsersWithRole(ctx context.Context, roleID string) ([]string, error) {
	return nil, nil
}

func (s *stubStore) ListAssignedUserIDs(ctx context.Context) ([]string, error) { return nil, nil }

func applyDiff(ids []string, add, remove []string) []string {
	out := ids[:0]
outer:
	for _, id := range ids {
		for _, r := range remove {
			if id == r {
				continue outer
			}
		}
		out = append(out, id)
	}
	for _, id := range add {
		out = append(out, id)
	}
	return out
}

func newHandlerFixture(t *testing.T) (*chi.Mux, *stubStore) {
	t.Helper()
	store := newStubStore()
	store.perms["p-users-view"] = authz.Permission{
		ID: "p-users-view", Name: shared.PermUsersView,
		Resources: []string{"users"}, Actions: []string{"view"},
	}
	store.perms["p-users-edit"] = authz.Permission{
		ID: "p-users-edit", Name: shared.PermUsersEdit,
		Resources: []string{"users"}, Actions: []string{"edit"},
	}
	store.perms["p-report-view"] = authz.Permission{
		ID: "p-report-view", Name: "report-view",
		Resources: []string{"reports"}, Actions: []string{"view"},
	}
	store.groups["g-core"] = authz.RoleGroup{ID: "g-core", Name: "core"}
	store.roles["r-reporter"] = authz.Role{
		ID: "r-reporter", Name: "reporter", GroupID: "g-core",
		PermissionIDs: []string{"p-report-view"},
	}
	store.userPerms["admin"] = []string{"p-users-view", "p-users-edit"}
	store.userPerms["viewer"] = []string{"p-users-view"}

	core := authz.NewService(authz.ServiceConfig{
		Permissions: store,
		Roles:       store,
		Groups:      store,
		Users:       store,
	})
	handler := NewHandler(nil, NewService(core, store), authz.Middleware{Service: core})

	router := chi.NewRouter()
	router.Route("/users", handler.MountRoutes)
	return router, store
}

func do(t *testing.T, router http.Handler, method, target, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if actor != "" {
		req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func TestEffectivePermissionsEndpoint(t *testing.T) {
	router, store := newHandlerFixture(t)
	store.userRoles["u1"] = []string{"r-reporter"}
	store.userPerms["u1"] = []string{"p-users-view"}

	res := do(t, router, http.MethodGet, "/users/u1/effective-permissions", "admin", nil)
	require.Equal(t, http.StatusOK, res.Code)

	var out []effectivePermissionResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	require.Len(t, out, 2)
	require.Equal(t, "report-view", out[0].Name)
	require.False(t, out[0].Direct)
	require.Equal(t, []string{"reporter"}, out[0].ViaRoles)
	require.Equal(t, shared.PermUsersView, out[1].Name)
	require.True(t, out[1].Direct)
}

func TestCheckEndpoint(t *testing.T) {
	router, store := newHandlerFixture(t)
	store.userRoles["u1"] = []string{"r-reporter"}

	res := do(t, router, http.MethodGet, "/users/u1/check?resource=reports&action=view", "admin", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.JSONEq(t, `{"allowed":true}`, res.Body.String())

	res = do(t, router, http.MethodGet, "/users/u1/check?resource=reports&action=edit", "admin", nil)
	require.JSONEq(t, `{"allowed":false}`, res.Body.String())

	res = do(t, router, http.MethodGet, "/users/u1/check?resource=reports", "admin", nil)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestSetRolesEndpoint(t *testing.T) {
	router, store := newHandlerFixture(t)

	res := do(t, router, http.MethodPut, "/users/u1/roles", "admin", map[string]any{
		"roleIds": []string{"r-reporter"},
	})
	require.Equal(t, http.StatusOK, res.Code)

	var diff authz.Diff
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &diff))
	require.Equal(t, []string{"r-reporter"}, diff.Added)
	require.Empty(t, diff.Removed)
	require.Equal(t, []string{"r-reporter"}, store.userRoles["u1"])
}

func TestSetRolesRejectsUnknownRole(t *testing.T) {
	router, _ := newHandlerFixture(t)

	res := do(t, router, http.MethodPut, "/users/u1/roles", "admin", map[string]any{
		"roleIds": []string{"r-ghost"},
	})
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestWriteRequiresEditPermission(t *testing.T) {
	router, _ := newHandlerFixture(t)

	res := do(t, router, http.MethodPut, "/users/u1/roles", "viewer", map[string]any{
		"roleIds": []string{"r-reporter"},
	})
	require.Equal(t, http.StatusForbidden, res.Code)

	res = do(t, router, http.MethodGet, "/users/u1/assignments", "viewer", nil)
	require.Equal(t, http.StatusOK, res.Code)
}

func TestAnonymousRejected(t *testing.T) {
	router, _ := newHandlerFixture(t)

	res := do(t, router, http.MethodGet, "/users/u1/assignments", "", nil)
	require.Equal(t, http.StatusForbidden, res.Code)
}
