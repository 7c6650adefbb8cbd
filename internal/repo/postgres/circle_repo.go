package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/safecircle/safecircle-backend/internal/domain"
)

type CircleRepository interface {
	Create(ctx context.Context, userID string, req *domain.CreateCircleMemberRequest) (*domain.CircleMember, error)
	ListByUser(ctx context.Context, userID string) ([]domain.CircleMember, error)
	ListEligible(ctx context.Context, userID string) ([]domain.CircleMember, error)
	IncrementAlertsReceived(ctx context.Context, memberIDs []string) error
}

type circleRepository struct {
	pool *pgxpool.Pool
}

func NewCircleRepository(pool *pgxpool.Pool) CircleRepository {
	return &circleRepository{pool: pool}
}

const circleCols = `id, user_id, contact_name, contact_phone, contact_email, relationship,
	is_verified, is_active, is_primary, receive_sms, receive_email,
	verification_sent_at, last_alert_at, total_alerts_received, created_at, updated_at`

func scanCircleMember(row pgx.Row) (*domain.CircleMember, error) {
	var m domain.CircleMember
	var email, relationship *string
	err := row.Scan(
		&m.ID, &m.UserID, &m.ContactName, &m.ContactPhone, &email, &relationship,
		&m.IsVerified, &m.IsActive, &m.IsPrimary, &m.ReceiveSMS, &m.ReceiveEmail,
		&m.VerificationSentAt, &m.LastAlertAt, &m.TotalAlertsReceived, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if email != nil {
		m.ContactEmail = *email
	}
	if relationship != nil {
		m.Relationship = *relationship
	}
	return &m, nil
}

func (r *circleRepository) Create(ctx context.Context, userID string, req *domain.CreateCircleMemberRequest) (*domain.CircleMember, error) {
	const q = `
		INSERT INTO safety_circles (user_id, contact_name, contact_phone, contact_email, relationship)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING ` + circleCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanCircleMember(r.pool.QueryRow(ctx, q, userID, req.ContactName, req.ContactPhone, req.ContactEmail, req.Relationship))
}

func (r *circleRepository) ListByUser(ctx context.Context, userID string) ([]domain.CircleMember, error) {
	const q = `SELECT ` + circleCols + ` FROM safety_circles WHERE user_id = $1 ORDER BY created_at`
	return r.list(ctx, q, userID)
}

// ListEligible resolves the fan-out recipient set: verified, active
// members who opted into at least one delivery channel.
func (r *circleRepository) ListEligible(ctx context.Context, userID string) ([]domain.CircleMember, error) {
	const q = `
		SELECT ` + circleCols + `
		FROM safety_circles
		WHERE user_id = $1
		  AND is_verified = true
		  AND is_active = true
		  AND (receive_sms = true OR (receive_email = true AND contact_email IS NOT NULL))
		ORDER BY created_at`
	return r.list(ctx, q, userID)
}

func (r *circleRepository) list(ctx context.Context, q, userID string) ([]domain.CircleMember, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.CircleMember
	for rows.Next() {
		m, err := scanCircleMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// IncrementAlertsReceived applies the per-recipient counters in one
// batched statement keyed by id list, never one write per goroutine.
func (r *circleRepository) IncrementAlertsReceived(ctx context.Context, memberIDs []string) error {
	if len(memberIDs) == 0 {
		return nil
	}

	const q = `
		UPDATE safety_circles
		SET total_alerts_received = total_alerts_received + 1,
			last_alert_at = now(),
			updated_at = now()
		WHERE id = ANY($1)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, memberIDs)
	return err
}
