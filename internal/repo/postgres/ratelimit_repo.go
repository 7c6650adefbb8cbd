package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RequestRateRepository backs the per-IP request limiter. One row per
// key; the window restarts in place when it lapses, so the table never
// grows with traffic.
type RequestRateRepository interface {
	Hit(ctx context.Context, key string, window time.Duration) (int, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

type requestRateRepository struct {
	pool *pgxpool.Pool
}

func NewRequestRateRepository(pool *pgxpool.Pool) RequestRateRepository {
	return &requestRateRepository{pool: pool}
}

// Hit registers one request against key and returns the count inside
// the current window, this request included.
func (r *requestRateRepository) Hit(ctx context.Context, key string, window time.Duration) (int, error) {
	const q = `
		INSERT INTO request_rate_limits (rate_key, window_started_at, request_count)
		VALUES ($1, now(), 1)
		ON CONFLICT (rate_key) DO UPDATE SET
			request_count = CASE
				WHEN request_rate_limits.window_started_at < now() - make_interval(secs => $2)
				THEN 1
				ELSE request_rate_limits.request_count + 1
			END,
			window_started_at = CASE
				WHEN request_rate_limits.window_started_at < now() - make_interval(secs => $2)
				THEN now()
				ELSE request_rate_limits.window_started_at
			END
		RETURNING request_count`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var count int
	err := r.pool.QueryRow(ctx, q, key, window.Seconds()).Scan(&count)
	return count, err
}

func (r *requestRateRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	const q = `DELETE FROM request_rate_limits WHERE window_started_at < now() - make_interval(secs => $1)`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, olderThan.Seconds())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
