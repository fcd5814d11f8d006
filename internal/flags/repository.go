// Package flags manages feature flags for the admin console.
package flags

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatekit/gatekit/internal/shared"
)

const uniqueViolation = "23505"

// Flag is a named on/off switch.
type Flag struct {
	Name        string
	Description string
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Repository provides PostgreSQL backed persistence for flags.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const flagColumns = `name, description, enabled, created_at, updated_at`

func scanFlag(row pgx.Row) (Flag, error) {
	var f Flag
	err := row.Scan(&f.Name, &f.Description, &f.Enabled, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

// GetFlag fetches a flag by name.
func (r *Repository) GetFlag(ctx context.Context, name string) (Flag, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+flagColumns+` FROM feature_flags WHERE name = $1`, name)
	flag, err := scanFlag(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Flag{}, shared.NotFoundf("flag %s", name)
		}
		return Flag{}, err
	}
	return flag, nil
}

// ListFlags returns all flags ordered by name.
func (r *Repository) ListFlags(ctx context.Context) ([]Flag, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+flagColumns+` FROM feature_flags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []Flag
	for rows.Next() {
		flag, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		flags = append(flags, flag)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return flags, nil
}

// CreateFlag inserts a new flag.
func (r *Repository) CreateFlag(ctx context.Context, flag Flag) (Flag, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO feature_flags (name, description, enabled)
		VALUES ($1, $2, $3)
		RETURNING `+flagColumns,
		flag.Name, flag.Description, flag.Enabled)
	created, err := scanFlag(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Flag{}, shared.Conflictf("flag %q already exists", flag.Name)
		}
		return Flag{}, err
	}
	return created, nil
}

// SetFlag updates enabled state and description.
func (r *Repository) SetFlag(ctx context.Context, flag Flag) (Flag, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE feature_flags SET description = $2, enabled = $3, updated_at = NOW()
		WHERE name = $1
		RETURNING `+flagColumns,
		flag.Name, flag.Description, flag.Enabled)
	updated, err := scanFlag(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Flag{}, shared.NotFoundf("flag %s", flag.Name)
		}
		return Flag{}, err
	}
	return updated, nil
}

// DeleteFlag removes a flag.
func (r *Repository) DeleteFlag(ctx context.Context, name string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM feature_flags WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("flag %s", name)
	}
	return nil
}
