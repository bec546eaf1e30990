package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkorchagin/docqa/internal/core/domain"
)

type QueryLogRepository struct {
	db *sql.DB
}

func NewQueryLogRepository(db *sql.DB) *QueryLogRepository {
	return &QueryLogRepository{db: db}
}

func (r *QueryLogRepository) InsertQueryEvent(ctx context.Context, event domain.QueryEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	// A retried publish can deliver the same event twice; the id keeps the
	// insert idempotent.
	_, err := r.db.ExecContext(ctx, `
INSERT INTO query_log (id, kind, query, session_id, result_count, latency_ms, degraded, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING
`, event.ID, string(event.Kind), event.Query, nullableString(event.SessionID),
		event.ResultCount, event.LatencyMS, event.Degraded, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert query event: %w", err)
	}
	return nil
}

// CountEventsSince reports how many events landed after the cutoff, split by
// kind. The worker logs it periodically as a consumption heartbeat.
func (r *QueryLogRepository) CountEventsSince(ctx context.Context, cutoff time.Time) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT kind, COUNT(*)
FROM query_log
WHERE created_at >= $1
GROUP BY kind
`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("count query events: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64, 2)
	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		out[kind] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event counts: %w", err)
	}
	return out, nil
}
