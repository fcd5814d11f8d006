package roles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatekit/gatekit/internal/authz"
	"github.com/gatekit/gatekit/internal/shared"
)

type fakeRepo struct {
	roles map[string]authz.Role
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{roles: make(map[string]authz.Role)}
}

func (f *fakeRepo) GetRole(ctx context.Context, id string) (authz.Role, error) {
	r, ok := f.roles[id]
	if !ok {
		return authz.Role{}, shared.NotFoundf("role %s", id)
	}
	return r, nil
}

func (f *fakeRepo) ListRoles(ctx context.Context) ([]authz.Role, error) { return nil, nil }

func (f *fakeRepo) ListRolesByGroup(ctx context.Context, groupID string) ([]authz.Role, error) {
	return nil, nil
}

func (f *fakeRepo) CreateRole(ctx context.Context, role authz.Role) (authz.Role, error) {
	f.roles[role.ID] = role
	return role, nil
}

func (f *fakeRepo) UpdateRole(ctx context.Context, role authz.Role) error {
	if _, ok := f.roles[role.ID]; !ok {
		return shared.NotFoundf("role %s", role.ID)
	}
	f.roles[role.ID] = role
	return nil
}

type fakeGroups struct {
	groups map[string]authz.RoleGroup
}

func (f *fakeGroups) GetRoleGroup(ctx context.Context, id string) (authz.RoleGroup, error) {
	g, ok := f.groups[id]
	if !ok {
		return authz.RoleGroup{}, shared.NotFoundf("group %s", id)
	}
	return g, nil
}

type fakeCore struct {
	diff    authz.Diff
	setArgs []string
	moved   []string
	moveErr error
	deleted []string
}

func (f *fakeCore) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) (authz.Diff, error) {
	f.setArgs = append(f.setArgs, roleID)
	return f.diff, nil
}

func (f *fakeCore) MoveRole(ctx context.Context, id, groupID string) error {
	if f.moveErr != nil {
		return f.moveErr
	}
	f.moved = append(f.moved, id+"->"+groupID)
	return nil
}

func (f *fakeCore) DeleteRole(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func newFixture() (*Service, *fakeRepo, *fakeGroups, *fakeCore) {
	repo := newFakeRepo()
	groups := &fakeGroups{groups: map[string]authz.RoleGroup{
		"g-open":   {ID: "g-open", Name: "open"},
		"g-system": {ID: "g-system", Name: "console-access", System: true},
	}}
	core := &fakeCore{}
	return NewService(repo, groups, core, nil, nil), repo, groups, core
}

func TestCreateDefaultsDisplayName(t *testing.T) {
	svc, _, _, _ := newFixture()

	created, err := svc.Create(context.Background(), CreateInput{Name: "billing-admin", GroupID: "g-open"})
	require.NoError(t, err)
	require.Equal(t, "Billing Admin", created.DisplayName)
	require.NotEmpty(t, created.ID)
}

func TestCreateRejectsUnknownGroup(t *testing.T) {
	svc, _, _, _ := newFixture()

	_, err := svc.Create(context.Background(), CreateInput{Name: "billing-admin", GroupID: "g-ghost"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateRejectsBadName(t *testing.T) {
	svc, _, _, _ := newFixture()

	_, err := svc.Create(context.Background(), CreateInput{Name: "Billing Admin", GroupID: "g-open"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateKeepsNameAndMovesGroupThroughCore(t *testing.T) {
	svc, repo, groups, core := newFixture()
	groups.groups["g-other"] = authz.RoleGroup{ID: "g-other", Name: "other"}
	repo.roles["r1"] = authz.Role{ID: "r1", Name: "billing-admin", GroupID: "g-open"}

	updated, err := svc.Update(context.Background(), "r1", UpdateInput{GroupID: "g-other"})
	require.NoError(t, err)
	require.Equal(t, "billing-admin", updated.Name)
	require.Equal(t, "g-other", updated.GroupID)
	require.Equal(t, []string{"r1->g-other"}, core.moved)
}

func TestUpdateStopsWhenCoreRejectsMove(t *testing.T) {
	svc, repo, _, core := newFixture()
	repo.roles["r1"] = authz.Role{ID: "r1", Name: "console-admin", GroupID: "g-system"}
	core.moveErr = shared.Conflictf("role belongs to a system group")

	_, err := svc.Update(context.Background(), "r1", UpdateInput{GroupID: "g-open"})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, "g-system", repo.roles["r1"].GroupID)
}

func TestUpdateWithoutGroupChangeSkipsCore(t *testing.T) {
	svc, repo, _, core := newFixture()
	repo.roles["r1"] = authz.Role{ID: "r1", Name: "billing-admin", GroupID: "g-open"}

	_, err := svc.Update(context.Background(), "r1", UpdateInput{Description: "edited"})
	require.NoError(t, err)
	require.Empty(t, core.moved)
}

func TestSetPermissionsAndDeleteDelegateToCore(t *testing.T) {
	svc, _, _, core := newFixture()
	core.diff = authz.Diff{Added: []string{"p1"}}

	diff, err := svc.SetPermissions(context.Background(), "r1", []string{"p1"})
	require.NoError(t, err)
	require.Equal(t, []string{"p1"}, diff.Added)
	require.Equal(t, []string{"r1"}, core.setArgs)

	require.NoError(t, svc.Delete(context.Background(), "r1"))
	require.Equal(t, []string{"r1"}, core.deleted)
}
