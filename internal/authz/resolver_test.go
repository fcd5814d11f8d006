package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func seedCatalog(store *memoryStore) {
	store.addGroup(RoleGroup{ID: "g-core", Name: "core", DisplayName: "Core"})
	store.addPermission(Permission{
		ID: "p-account-write", Name: "account-write",
		Resources: []string{"account"}, Actions: []string{"write"},
	})
	store.addPermission(Permission{
		ID: "p-account-read", Name: "account-read",
		Resources: []string{"account"}, Actions: []string{"read"},
	})
	store.addPermission(Permission{
		ID: "p-report-view", Name: "report-view",
		Resources: []string{"report"}, Actions: []string{"read", "export"},
	})
	store.addRole(Role{
		ID: "r-editor", Name: "editor", DisplayName: "Editor", GroupID: "g-core",
		PermissionIDs: []string{"p-account-write", "p-account-read"},
	})
	store.addRole(Role{
		ID: "r-viewer", Name: "viewer", DisplayName: "Viewer", GroupID: "g-core",
		PermissionIDs: []string{"p-account-read", "p-report-view"},
	})
}

func TestResolveProvenance(t *testing.T) {
	store := newMemoryStore()
	seedCatalog(store)
	store.userRoles["u1"] = []string{"r-editor", "r-viewer"}
	store.userPerms["u1"] = []string{"p-account-read", "p-report-view"}

	resolver := NewResolver(store, store, store, nil, nil)
	effective, err := resolver.Resolve(context.Background(), "u1")
	require.NoError(t, err)

	byName := make(map[string]EffectivePermission, len(effective))
	for _, ep := range effective {
		_, dup := byName[ep.Permission.Name]
		require.False(t, dup, "permission %s appears more than once", ep.Permission.Name)
		byName[ep.Permission.Name] = ep
	}
	require.Len(t, byName, 3)

	write := byName["account-write"]
	require.False(t, write.Direct)
	require.Equal(t, []string{"editor"}, write.ViaRoles)

	read := byName["account-read"]
	require.True(t, read.Direct)
	require.ElementsMatch(t, []string{"editor", "viewer"}, read.ViaRoles)

	report := byName["report-view"]
	require.True(t, report.Direct)
	require.Equal(t, []string{"viewer"}, report.ViaRoles)
}

func TestResolveInsertionStableOrder(t *testing.T) {
	store := newMemoryStore()
	seedCatalog(store)
	store.userRoles["u1"] = []string{"r-editor"}
	store.userPerms["u1"] = []string{"p-report-view"}

	resolver := NewResolver(store, store, store, nil, nil)
	effective, err := resolver.Resolve(context.Background(), "u1")
	require.NoError(t, err)

	names := make([]string, len(effective))
	for i, ep := range effective {
		names[i] = ep.Permission.Name
	}
	require.Equal(t, []string{"account-write", "account-read", "report-view"}, names)
}

func TestResolveFiltersDanglingReferences(t *testing.T) {
	store := newMemoryStore()
	seedCatalog(store)
	store.addRole(Role{
		ID: "r-broken", Name: "broken", GroupID: "g-core",
		PermissionIDs: []string{"p-vanished", "p-account-read"},
	})
	store.userRoles["u1"] = []string{"r-broken", "r-gone"}
	store.userPerms["u1"] = []string{"p-also-vanished"}

	resolver := NewResolver(store, store, store, nil, nil)
	effective, err := resolver.Resolve(context.Background(), "u1")
	require.NoError(t, err)

	require.Len(t, effective, 1)
	require.Equal(t, "account-read", effective[0].Permission.Name)
}

func TestResolveEmptyUser(t *testing.T) {
	store := newMemoryStore()
	seedCatalog(store)

	resolver := NewResolver(store, store, store, nil, nil)
	effective, err := resolver.Resolve(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, effective)

	_, err = resolver.Resolve(context.Background(), "")
	require.Error(t, err)
}

func TestHasPermission(t *testing.T) {
	store := newMemoryStore()
	seedCatalog(store)
	store.userRoles["u1"] = []string{"r-viewer"}

	resolver := NewResolver(store, store, store, nil, nil)

	ok, err := resolver.HasPermission(context.Background(), "u1", "report", "export")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = resolver.HasPermission(context.Background(), "u1", "account", "write")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = resolver.HasPermission(context.Background(), "u1", "report", "delete")
	require.NoError(t, err)
	require.False(t, ok)
}
