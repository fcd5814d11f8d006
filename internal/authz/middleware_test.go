package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatekit/gatekit/internal/shared"
)

func newMiddlewareFixture(t *testing.T) (Middleware, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	store.addGroup(RoleGroup{ID: "g-core", Name: "core"})
	store.addPermission(Permission{
		ID: "p-roles-view", Name: "roles-view",
		Resources: []string{"roles"}, Actions: []string{"read"},
	})
	store.addRole(Role{ID: "r-viewer", Name: "viewer", GroupID: "g-core", PermissionIDs: []string{"p-roles-view"}})
	return Middleware{Service: newTestService(store)}, store
}

func doRequest(mw func(http.Handler) http.Handler, actor string) *httptest.ResponseRecorder {
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	if actor != "" {
		req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestRequireAnyAllowsGranted(t *testing.T) {
	mw, store := newMiddlewareFixture(t)
	store.userRoles["u1"] = []string{"r-viewer"}

	res := doRequest(mw.RequireAny("roles-view"), "u1")
	require.Equal(t, http.StatusNoContent, res.Code)
}

func TestRequireAnyRejectsUngranted(t *testing.T) {
	mw, _ := newMiddlewareFixture(t)

	res := doRequest(mw.RequireAny("roles-view"), "u1")
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestRequireAnyRejectsAnonymous(t *testing.T) {
	mw, _ := newMiddlewareFixture(t)

	res := doRequest(mw.RequireAny("roles-view"), "")
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestRequireAllNeedsEveryPermission(t *testing.T) {
	mw, store := newMiddlewareFixture(t)
	store.userRoles["u1"] = []string{"r-viewer"}

	res := doRequest(mw.RequireAll("roles-view", "roles-edit"), "u1")
	require.Equal(t, http.StatusForbidden, res.Code)

	res = doRequest(mw.RequireAll("roles-view"), "u1")
	require.Equal(t, http.StatusNoContent, res.Code)
}
