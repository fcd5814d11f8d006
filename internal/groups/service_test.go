package groups

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatekit/gatekit/internal/authz"
	"github.com/gatekit/gatekit/internal/shared"
)

type fakeRepo struct {
	groups map[string]authz.RoleGroup
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{groups: make(map[string]authz.RoleGroup)}
}

func (f *fakeRepo) GetRoleGroup(ctx context.Context, id string) (authz.RoleGroup, error) {
	g, ok := f.groups[id]
	if !ok {
		return authz.RoleGroup{}, shared.NotFoundf("group %s", id)
	}
	return g, nil
}

func (f *fakeRepo) ListRoleGroups(ctx context.Context) ([]authz.RoleGroup, error) {
	out := make([]authz.RoleGroup, 0, len(f.groups))
	for _, g := range f.groups {
		out = append(out, g)
	}
	return out, nil
}

func (f *fakeRepo) CreateRoleGroup(ctx context.Context, g authz.RoleGroup) (authz.RoleGroup, error) {
	f.groups[g.ID] = g
	return g, nil
}

func (f *fakeRepo) UpdateRoleGroup(ctx context.Context, g authz.RoleGroup) error {
	if _, ok := f.groups[g.ID]; !ok {
		return shared.NotFoundf("group %s", g.ID)
	}
	f.groups[g.ID] = g
	return nil
}

type fakeEnforcer struct {
	validateErr error
}

func (f *fakeEnforcer) ValidateGroup(ctx context.Context, group authz.RoleGroup) error {
	return f.validateErr
}

type fakeCore struct {
	repaired []string
	deleted  []string
}

func (f *fakeCore) RepairGroupMembership(ctx context.Context, group authz.RoleGroup) error {
	f.repaired = append(f.repaired, group.ID)
	return nil
}

func (f *fakeCore) DeleteRoleGroup(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func newFixture() (*Service, *fakeRepo, *fakeEnforcer, *fakeCore) {
	repo := newFakeRepo()
	enforcer := &fakeEnforcer{}
	core := &fakeCore{}
	return NewService(repo, enforcer, core, nil, nil), repo, enforcer, core
}

func TestCreateDefaultsDisplayName(t *testing.T) {
	svc, _, _, _ := newFixture()

	created, err := svc.Create(context.Background(), CreateInput{Name: "billing-access"})
	require.NoError(t, err)
	require.Equal(t, "Billing Access", created.DisplayName)
	require.False(t, created.System)
}

func TestCreateRejectsBadName(t *testing.T) {
	svc, _, _, _ := newFixture()

	_, err := svc.Create(context.Background(), CreateInput{Name: "Billing Access"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRunsInvariantValidation(t *testing.T) {
	svc, _, enforcer, _ := newFixture()
	enforcer.validateErr = shared.Validationf("group requires a default role")

	_, err := svc.Create(context.Background(), CreateInput{Name: "billing-access", RequiresOne: true})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateRejectsSystemGroup(t *testing.T) {
	svc, repo, _, _ := newFixture()
	repo.groups["g1"] = authz.RoleGroup{ID: "g1", Name: "console-access", System: true}

	_, err := svc.Update(context.Background(), "g1", UpdateInput{Description: "edited"})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestUpdateRepairsOnTransitionToRequired(t *testing.T) {
	svc, repo, _, core := newFixture()
	repo.groups["g1"] = authz.RoleGroup{ID: "g1", Name: "billing-access"}

	updated, err := svc.Update(context.Background(), "g1", UpdateInput{
		RequiresOne:   true,
		DefaultRoleID: "r-member",
	})
	require.NoError(t, err)
	require.True(t, updated.RequiresOne)
	require.Equal(t, []string{"g1"}, core.repaired)
}

func TestUpdateSkipsRepairWhenAlreadyRequired(t *testing.T) {
	svc, repo, _, core := newFixture()
	repo.groups["g1"] = authz.RoleGroup{ID: "g1", Name: "billing-access", RequiresOne: true, DefaultRoleID: "r-member"}

	_, err := svc.Update(context.Background(), "g1", UpdateInput{
		RequiresOne:   true,
		DefaultRoleID: "r-member",
		Description:   "edited",
	})
	require.NoError(t, err)
	require.Empty(t, core.repaired)
}

func TestDeleteRunsThroughCore(t *testing.T) {
	svc, _, _, core := newFixture()

	require.NoError(t, svc.Delete(context.Background(), "g1"))
	require.Equal(t, []string{"g1"}, core.deleted)
}
