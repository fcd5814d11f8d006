// Package groups manages role groups and their membership requirements.
package groups

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatekit/gatekit/internal/authz"
	"github.com/gatekit/gatekit/internal/shared"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence. It implements
// authz.GroupStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const groupColumns = `id, name, display_name, description, requires_one, COALESCE(default_role_id, ''), is_system, created_at, updated_at`

func scanGroup(row pgx.Row) (authz.RoleGroup, error) {
	var g authz.RoleGroup
	err := row.Scan(&g.ID, &g.Name, &g.DisplayName, &g.Description, &g.RequiresOne, &g.DefaultRoleID, &g.System, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

// GetRoleGroup fetches a group by id.
func (r *Repository) GetRoleGroup(ctx context.Context, id string) (authz.RoleGroup, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM role_groups WHERE id = $1`, id)
	g, err := scanGroup(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.RoleGroup{}, shared.NotFoundf("group %s", id)
		}
		return authz.RoleGroup{}, err
	}
	return g, nil
}

// ListRoleGroups returns all groups ordered by name.
func (r *Repository) ListRoleGroups(ctx context.Context) ([]authz.RoleGroup, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+groupColumns+` FROM role_groups ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []authz.RoleGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

// CreateRoleGroup inserts a new group.
func (r *Repository) CreateRoleGroup(ctx context.Context, g authz.RoleGroup) (authz.RoleGroup, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO role_groups (id, name, display_name, description, requires_one, default_role_id, is_system)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		RETURNING `+groupColumns,
		g.ID, g.Name, g.DisplayName, g.Description, g.RequiresOne, g.DefaultRoleID, g.System)
	created, err := scanGroup(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return authz.RoleGroup{}, shared.Conflictf("group name %q already exists", g.Name)
		}
		return authz.RoleGroup{}, err
	}
	return created, nil
}

// UpdateRoleGroup updates the mutable fields of a group.
func (r *Repository) UpdateRoleGroup(ctx context.Context, g authz.RoleGroup) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE role_groups
		SET display_name = $2, description = $3, requires_one = $4, default_role_id = NULLIF($5, ''), updated_at = NOW()
		WHERE id = $1`,
		g.ID, g.DisplayName, g.Description, g.RequiresOne, g.DefaultRoleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("group %s", g.ID)
	}
	return nil
}

// DeleteRoleGroup removes a group.
func (r *Repository) DeleteRoleGroup(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM role_groups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("group %s", id)
	}
	return nil
}
