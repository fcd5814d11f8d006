// Package roles manages role records and their permission assignments.
package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatekit/gatekit/internal/authz"
	"github.com/gatekit/gatekit/internal/platform/db"
	"github.com/gatekit/gatekit/internal/shared"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence. It implements
// authz.RoleStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleQuery = `
	SELECT r.id, r.name, r.display_name, r.description, r.group_id,
	       COALESCE(array_agg(rp.permission_id ORDER BY rp.created_at) FILTER (WHERE rp.permission_id IS NOT NULL), '{}'),
	       r.created_at, r.updated_at
	FROM roles r
	LEFT JOIN role_permissions rp ON rp.role_id = r.id`

func scanRole(row pgx.Row) (authz.Role, error) {
	var r authz.Role
	err := row.Scan(&r.ID, &r.Name, &r.DisplayName, &r.Description, &r.GroupID, &r.PermissionIDs, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// GetRole fetches a role with its permission set.
func (r *Repository) GetRole(ctx context.Context, id string) (authz.Role, error) {
	row := r.pool.QueryRow(ctx, roleQuery+` WHERE r.id = $1 GROUP BY r.id`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Role{}, shared.NotFoundf("role %s", id)
		}
		return authz.Role{}, err
	}
	return role, nil
}

// GetRolesByID returns the roles found for ids; missing ids are omitted.
func (r *Repository) GetRolesByID(ctx context.Context, ids []string) ([]authz.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, roleQuery+` WHERE r.id = ANY($1) GROUP BY r.id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]authz.Role, error) {
	rows, err := r.pool.Query(ctx, roleQuery+` GROUP BY r.id ORDER BY r.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

// ListRolesByGroup returns the member roles of a group.
func (r *Repository) ListRolesByGroup(ctx context.Context, groupID string) ([]authz.Role, error) {
	rows, err := r.pool.Query(ctx, roleQuery+` WHERE r.group_id = $1 GROUP BY r.id ORDER BY r.name`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, role authz.Role) (authz.Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (id, name, display_name, description, group_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, display_name, description, group_id, created_at, updated_at`,
		role.ID, role.Name, role.DisplayName, role.Description, role.GroupID)
	var created authz.Role
	err := row.Scan(&created.ID, &created.Name, &created.DisplayName, &created.Description, &created.GroupID, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return authz.Role{}, shared.Conflictf("role name %q already exists", role.Name)
		}
		return authz.Role{}, err
	}
	created.PermissionIDs = []string{}
	return created, nil
}

// UpdateRole updates display name, description and group.
func (r *Repository) UpdateRole(ctx context.Context, role authz.Role) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE roles SET display_name = $2, description = $3, group_id = $4, updated_at = NOW()
		WHERE id = $1`,
		role.ID, role.DisplayName, role.Description, role.GroupID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("role %s", role.ID)
	}
	return nil
}

// MoveRoleGroup reassigns the role to another group.
func (r *Repository) MoveRoleGroup(ctx context.Context, roleID, groupID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE roles SET group_id = $2, updated_at = NOW()
		WHERE id = $1`,
		roleID, groupID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("role %s", roleID)
	}
	return nil
}

// ApplyRolePermissions applies an add/remove diff to the role's permission
// set in one transaction.
func (r *Repository) ApplyRolePermissions(ctx context.Context, roleID string, add, remove []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if len(remove) > 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = ANY($2)`, roleID, remove); err != nil {
				return fmt.Errorf("roles: detach permissions: %w", err)
			}
		}
		for _, permID := range add {
			if _, err := tx.Exec(ctx, `
				INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, roleID, permID); err != nil {
				return fmt.Errorf("roles: attach permission: %w", err)
			}
		}
		return nil
	})
}

// DeleteRoleCascade removes the role and its references from every user's
// role set in one transaction.
func (r *Repository) DeleteRoleCascade(ctx context.Context, id string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return fmt.Errorf("roles: detach permissions: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1`, id); err != nil {
			return fmt.Errorf("roles: detach users: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.NotFoundf("role %s", id)
		}
		return nil
	})
}

func collectRoles(rows pgx.Rows) ([]authz.Role, error) {
	var roles []authz.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}
