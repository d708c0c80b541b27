package audit

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repo struct {
	pool *pgxpool.Pool
}

// NewRepository returns the Postgres-backed audit reader.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repo{pool: pool}
}

const timelineWindow = `SELECT a.occurred_at, COALESCE(a.actor_id, '00000000-0000-0000-0000-000000000000'::uuid),
       COALESCE(p.full_name, ''), a.action, a.entity, COALESCE(a.entity_id, ''), a.meta
FROM audit_logs a
LEFT JOIN profiles p ON p.id = a.actor_id
WHERE ($1::timestamptz IS NULL OR a.occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR a.occurred_at < $2)
  AND ($3::uuid IS NULL OR a.actor_id = $3)
  AND ($4::text IS NULL OR a.entity = $4)
  AND ($5::text IS NULL OR a.action = $5)
ORDER BY a.occurred_at DESC, a.id DESC
OFFSET $6 LIMIT $7`

func (r *repo) TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, timelineWindow, arg.FromAt, arg.ToAt, arg.ActorID, arg.Entity, arg.Action, arg.Offset, arg.Limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var out TimelineRow
		var meta []byte
		err := row.Scan(&out.At, &out.ActorID, &out.ActorName, &out.Action, &out.Entity, &out.EntityID, &meta)
		if len(meta) > 0 {
			out.Meta = meta
		}
		return out, err
	})
}
