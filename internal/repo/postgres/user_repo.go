package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/safecircle/safecircle-backend/internal/domain"
)

// OTPIssueCommit is the counter state written after a confirmed SMS
// dispatch. PrevLastRequestedAt is the value read at the start of the
// issuance; the update only applies if the row still matches it.
type OTPIssueCommit struct {
	RequestedAt         time.Time
	HourCount           int
	DayCount            int
	HourWindowStartedAt time.Time
	DayWindowStartedAt  time.Time
	PrevLastRequestedAt *time.Time
}

type UserRepository interface {
	Create(ctx context.Context, phone, deviceID string) (*domain.User, error)
	FindByPhone(ctx context.Context, phone string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	CommitOTPIssue(ctx context.Context, userID string, commit OTPIssueCommit) (bool, error)
	SetLockout(ctx context.Context, userID string, until time.Time) error
	IncrementFailedAttempts(ctx context.Context, userID string) (int, error)
	MarkVerified(ctx context.Context, userID string) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userCols = `id, phone_number, phone_verified, first_name, email, user_type, subscription_tier,
	subscription_expires_at, device_id, status, otp_locked_until, failed_attempt_count,
	last_otp_requested_at, otp_hour_window_started_at, otp_day_window_started_at,
	otp_requests_last_hour, otp_requests_today, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var firstName, email *string
	err := row.Scan(
		&u.ID, &u.PhoneNumber, &u.PhoneVerified, &firstName, &email, &u.UserType, &u.SubscriptionTier,
		&u.SubscriptionExpiresAt, &u.DeviceID, &u.Status, &u.OTPLockedUntil, &u.FailedAttemptCount,
		&u.LastOTPRequestedAt, &u.OTPHourWindowStartedAt, &u.OTPDayWindowStartedAt,
		&u.OTPRequestsLastHour, &u.OTPRequestsToday, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if firstName != nil {
		u.FirstName = *firstName
	}
	if email != nil {
		u.Email = *email
	}
	return &u, nil
}

func (r *userRepository) Create(ctx context.Context, phone, deviceID string) (*domain.User, error) {
	const q = `
		INSERT INTO users (phone_number, phone_verified, user_type, subscription_tier,
			subscription_expires_at, device_id, status)
		VALUES ($1, false, 'individual', 'free', now() + interval '90 days', $2, 'pending_verification')
		RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanUser(r.pool.QueryRow(ctx, q, phone, deviceID))
}

func (r *userRepository) FindByPhone(ctx context.Context, phone string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE phone_number = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, phone))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// CommitOTPIssue advances the rate counters after a confirmed send.
// The last_otp_requested_at guard makes it a no-op when a concurrent
// issuance already committed; the caller decides whether that matters.
// Lockout columns are deliberately untouched here.
func (r *userRepository) CommitOTPIssue(ctx context.Context, userID string, commit OTPIssueCommit) (bool, error) {
	const q = `
		UPDATE users
		SET last_otp_requested_at = $2,
			otp_requests_last_hour = $3,
			otp_requests_today = $4,
			otp_hour_window_started_at = $5,
			otp_day_window_started_at = $6,
			updated_at = now()
		WHERE id = $1
		  AND last_otp_requested_at IS NOT DISTINCT FROM $7`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, userID,
		commit.RequestedAt, commit.HourCount, commit.DayCount,
		commit.HourWindowStartedAt, commit.DayWindowStartedAt,
		commit.PrevLastRequestedAt,
	)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *userRepository) SetLockout(ctx context.Context, userID string, until time.Time) error {
	const q = `UPDATE users SET otp_locked_until = $2, updated_at = now() WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, userID, until)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) IncrementFailedAttempts(ctx context.Context, userID string) (int, error) {
	const q = `
		UPDATE users
		SET failed_attempt_count = failed_attempt_count + 1, updated_at = now()
		WHERE id = $1
		RETURNING failed_attempt_count`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var count int
	err := r.pool.QueryRow(ctx, q, userID).Scan(&count)
	return count, err
}

// MarkVerified is the success path of a challenge: it verifies the
// phone, activates the account, and explicitly clears the lockout and
// failure counter in the same statement.
func (r *userRepository) MarkVerified(ctx context.Context, userID string) error {
	const q = `
		UPDATE users
		SET phone_verified = true,
			status = 'active',
			failed_attempt_count = 0,
			otp_locked_until = NULL,
			updated_at = now()
		WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
