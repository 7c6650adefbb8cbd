package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/safecircle/safecircle-backend/internal/domain"
)

type OTPRepository interface {
	FindLatestPending(ctx context.Context, phone string) (*domain.OTP, error)
	UpsertPending(ctx context.Context, userID, phone, purpose, codeHash string, expiresAt time.Time, maxAttempts int) (*domain.OTP, error)
	MarkFailed(ctx context.Context, id string) error
	IncrementAttempts(ctx context.Context, id string) (int, error)
	Consume(ctx context.Context, id string) error
	ExpireStale(ctx context.Context) (int64, error)
}

type otpRepository struct {
	pool *pgxpool.Pool
}

func NewOTPRepository(pool *pgxpool.Pool) OTPRepository {
	return &otpRepository{pool: pool}
}

const otpCols = `id, user_id, phone_number, type, otp_code, status, attempts, max_attempts,
	expires_at, verified_at, last_attempt_at, created_at`

func scanOTP(row pgx.Row) (*domain.OTP, error) {
	var o domain.OTP
	err := row.Scan(
		&o.ID, &o.UserID, &o.PhoneNumber, &o.Purpose, &o.CodeHash, &o.Status, &o.Attempts,
		&o.MaxAttempts, &o.ExpiresAt, &o.VerifiedAt, &o.LastAttemptAt, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *otpRepository) FindLatestPending(ctx context.Context, phone string) (*domain.OTP, error) {
	const q = `
		SELECT ` + otpCols + `
		FROM otps
		WHERE phone_number = $1 AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	o, err := scanOTP(r.pool.QueryRow(ctx, q, phone))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return o, err
}

// UpsertPending enforces the one-pending-row-per-(phone,purpose)
// invariant: a fresh request overwrites the existing pending row in
// place (attempts back to zero) instead of inserting a duplicate.
// Relies on the partial unique index on (phone_number, type) WHERE
// status = 'pending'.
func (r *otpRepository) UpsertPending(ctx context.Context, userID, phone, purpose, codeHash string, expiresAt time.Time, maxAttempts int) (*domain.OTP, error) {
	const q = `
		INSERT INTO otps (user_id, phone_number, type, otp_code, status, attempts, max_attempts, expires_at)
		VALUES ($1, $2, $3, $4, 'pending', 0, $5, $6)
		ON CONFLICT (phone_number, type) WHERE status = 'pending'
		DO UPDATE SET
			otp_code = EXCLUDED.otp_code,
			attempts = 0,
			max_attempts = EXCLUDED.max_attempts,
			expires_at = EXCLUDED.expires_at,
			created_at = now()
		RETURNING ` + otpCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanOTP(r.pool.QueryRow(ctx, q, userID, phone, purpose, codeHash, maxAttempts, expiresAt))
}

// MarkFailed voids a code whose SMS never went out. The hash and
// expiry are cleared so the row can never be redeemed.
func (r *otpRepository) MarkFailed(ctx context.Context, id string) error {
	const q = `
		UPDATE otps
		SET status = 'failed', otp_code = NULL, expires_at = NULL
		WHERE id = $1 AND status = 'pending'`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id)
	return err
}

func (r *otpRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	const q = `
		UPDATE otps
		SET attempts = attempts + 1, last_attempt_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING attempts`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var attempts int
	err := r.pool.QueryRow(ctx, q, id).Scan(&attempts)
	return attempts, err
}

// Consume removes a successfully redeemed code row.
func (r *otpRepository) Consume(ctx context.Context, id string) error {
	const q = `DELETE FROM otps WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *otpRepository) ExpireStale(ctx context.Context) (int64, error) {
	const q = `
		UPDATE otps
		SET status = 'expired', otp_code = NULL
		WHERE status = 'pending' AND expires_at < now()`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
