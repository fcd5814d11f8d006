// Package audit exposes the audit trail written by the mutation paths.
package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one audit trail record.
type Entry struct {
	ID       int64
	ActorID  string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Filters narrows a timeline query. Zero values mean no constraint.
type Filters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	EntityID string
	Action   string
	Offset   int
	Limit    int
}

// Repository reads audit_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Timeline returns entries newest first, honoring the filters. The caller
// controls paging through Offset and Limit.
func (r *Repository) Timeline(ctx context.Context, f Filters) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, actor_id, action, entity, entity_id, meta, occurred_at
		FROM audit_logs
		WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		  AND ($2::timestamptz IS NULL OR occurred_at < $2)
		  AND ($3 = '' OR actor_id = $3)
		  AND ($4 = '' OR entity = $4)
		  AND ($5 = '' OR entity_id = $5)
		  AND ($6 = '' OR action = $6)
		ORDER BY occurred_at DESC, id DESC
		OFFSET $7 LIMIT $8`,
		nullableTime(f.From), nullableTime(f.To), f.Actor, f.Entity, f.EntityID, f.Action, f.Offset, f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &e.Meta, &e.At); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
