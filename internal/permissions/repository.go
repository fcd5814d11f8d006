// Package permissions manages the permission catalog.
package permissions

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

// Repository provides PostgreSQL backed persistence for the catalog. It
// implements authz.PermissionStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const permissionColumns = `id, name, description, resources, actions, category, created_at, updated_at`

func scanPermission(row pgx.Row) (authz.Permission, error) {
	var p authz.Permission
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Resources, &p.Actions, &p.Category, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// GetPermission fetches a permission by id.
func (r *Repository) GetPermission(ctx context.Context, id string) (authz.Permission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id)
	p, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Permission{}, shared.NotFoundf("permission %s", id)
		}
		return authz.Permission{}, err
	}
	return p, nil
}

// GetPermissionsByID returns the permissions found for ids; missing ids are
// omitted.
func (r *Repository) GetPermissionsByID(ctx context.Context, ids []string) ([]authz.Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

// ListPermissions returns the catalog ordered by name.
func (r *Repository) ListPermissions(ctx context.Context) ([]authz.Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

// CreatePermission inserts a new catalog entry.
func (r *Repository) CreatePermission(ctx context.Context, p authz.Permission) (authz.Permission, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (id, name, description, resources, actions, category)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+permissionColumns,
		p.ID, p.Name, p.Description, p.Resources, p.Actions, p.Category)
	created, err := scanPermission(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return authz.Permission{}, shared.Conflictf("permission name %q already exists", p.Name)
		}
		return authz.Permission{}, err
	}
	return created, nil
}

// DeletePermissionCascade removes the permission and every reference to it
// from role and user sets in one transaction.
func (r *Repository) DeletePermissionCascade(ctx context.Context, id string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE permission_id = $1`, id); err != nil {
			return fmt.Errorf("permissions: detach from roles: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_permissions WHERE permission_id = $1`, id); err != nil {
			return fmt.Errorf("permissions: detach from users: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.NotFoundf("permission %s", id)
		}
		return nil
	})
}

func collectPermissions(rows pgx.Rows) ([]authz.Permission, error) {
	var perms []authz.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}
