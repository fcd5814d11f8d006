// Package users manages per-user role and direct permission assignments.
package users

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatekit/gatekit/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for assignments. It
// implements authz.AssignmentStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetUserRoles returns the user's role ids in assignment order. Users with
// no assignments get an empty set, never an error.
func (r *Repository) GetUserRoles(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT role_id FROM user_roles WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// GetUserDirectPermissions returns the user's direct permission ids in
// assignment order.
func (r *Repository) GetUserDirectPermissions(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT permission_id FROM user_permissions WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// ApplyUserRoles applies an add/remove diff to the user's role set in one
// transaction.
func (r *Repository) ApplyUserRoles(ctx context.Context, userID string, add, remove []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if len(remove) > 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = ANY($2)`, userID, remove); err != nil {
				return fmt.Errorf("users: detach roles: %w", err)
			}
		}
		for _, roleID := range add {
			if _, err := tx.Exec(ctx, `
				INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, userID, roleID); err != nil {
				return fmt.Errorf("users: attach role: %w", err)
			}
		}
		return nil
	})
}

// ApplyUserDirectPermissions applies an add/remove diff to the user's direct
// permission set in one transaction.
func (r *Repository) ApplyUserDirectPermissions(ctx context.Context, userID string, add, remove []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if len(remove) > 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1 AND permission_id = ANY($2)`, userID, remove); err != nil {
				return fmt.Errorf("users: detach permissions: %w", err)
			}
		}
		for _, permID := range add {
			if _, err := tx.Exec(ctx, `
				INSERT INTO user_permissions (user_id, permission_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, userID, permID); err != nil {
				return fmt.Errorf("users: attach permission: %w", err)
			}
		}
		return nil
	})
}

// ListUsersWithRole returns the ids of users currently holding the role.
func (r *Repository) ListUsersWithRole(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM user_roles WHERE role_id = $1 ORDER BY user_id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// ListAssignedUserIDs returns every user id that holds at least one role or
// direct permission.
func (r *Repository) ListAssignedUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM user_roles
		UNION
		SELECT user_id FROM user_permissions
		ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

func collectIDs(rows pgx.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
