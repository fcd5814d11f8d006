package authz

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*EffectiveCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewEffectiveCache(client, time.Minute), mr
}

func TestEffectiveCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	effective := []EffectivePermission{
		{
			Permission: Permission{ID: "p-1", Name: "account-write", Resources: []string{"account"}, Actions: []string{"write"}},
			Direct:     true,
			ViaRoles:   []string{"editor"},
		},
	}
	require.NoError(t, cache.Set(ctx, "u1", effective))

	got, ok := cache.Get(ctx, "u1")
	require.True(t, ok)
	require.Equal(t, effective, got)

	_, ok = cache.Get(ctx, "u2")
	require.False(t, ok)
}

func TestEffectiveCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "u1", nil))
	require.NoError(t, cache.Set(ctx, "u2", nil))

	require.NoError(t, cache.Invalidate(ctx, "u1"))
	_, ok := cache.Get(ctx, "u1")
	require.False(t, ok)
	_, ok = cache.Get(ctx, "u2")
	require.True(t, ok)

	require.NoError(t, cache.InvalidateAll(ctx))
	_, ok = cache.Get(ctx, "u2")
	require.False(t, ok)
}

func TestGroupRepairRefreshesEffectiveSets(t *testing.T) {
	store := newMemoryStore()
	seedCatalog(store)
	group := RoleGroup{ID: "g-access", Name: "access", RequiresOne: true, DefaultRoleID: "r-reporter"}
	store.addGroup(group)
	store.addRole(Role{
		ID: "r-reporter", Name: "reporter", GroupID: "g-access",
		PermissionIDs: []string{"p-report-view"},
	})
	cache, _ := newTestCache(t)
	svc := NewService(ServiceConfig{
		Permissions: store,
		Roles:       store,
		Groups:      store,
		Users:       store,
		Cache:       cache,
	})
	ctx := context.Background()

	_, err := svc.SetUserDirectPermissions(ctx, "u1", []string{"p-account-write"})
	require.NoError(t, err)

	before, err := svc.ResolveEffectivePermissions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, before, 1)

	// The repair grants the default role; the repaired user must not keep
	// serving the pre-repair cached set.
	require.NoError(t, svc.RepairGroupMembership(ctx, group))

	after, err := svc.ResolveEffectivePermissions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, after, 2)
}

func TestServiceServesFromCacheUntilInvalidated(t *testing.T) {
	store := newMemoryStore()
	seedCatalog(store)
	cache, _ := newTestCache(t)
	svc := NewService(ServiceConfig{
		Permissions: store,
		Roles:       store,
		Groups:      store,
		Users:       store,
		Cache:       cache,
	})
	ctx := context.Background()

	_, err := svc.SetUserRoles(ctx, "u1", []string{"r-viewer"})
	require.NoError(t, err)

	first, err := svc.ResolveEffectivePermissions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, first, 2)

	// A write through the service invalidates the cached set.
	_, err = svc.SetUserRoles(ctx, "u1", nil)
	require.NoError(t, err)

	second, err := svc.ResolveEffectivePermissions(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, second)
}
