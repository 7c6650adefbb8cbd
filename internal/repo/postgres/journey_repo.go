package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/safecircle/safecircle-backend/internal/domain"
)

type JourneyRepository interface {
	Create(ctx context.Context, userID string, req *domain.CreateJourneyRequest) (*domain.Journey, error)
	FindForUser(ctx context.Context, journeyID, userID string) (*domain.Journey, error)
	FindByID(ctx context.Context, journeyID string) (*domain.Journey, error)
	End(ctx context.Context, journeyID, userID string) (*domain.Journey, error)
	CreateEmergency(ctx context.Context, userID, journeyID, reason string) (*domain.Emergency, error)
	FindEmergency(ctx context.Context, emergencyID, journeyID, userID string) (*domain.Emergency, error)
}

type journeyRepository struct {
	pool *pgxpool.Pool
}

func NewJourneyRepository(pool *pgxpool.Pool) JourneyRepository {
	return &journeyRepository{pool: pool}
}

const journeyCols = `journey_id, user_id, start_location_name, destination_name, status,
	started_at, ended_at, created_at, updated_at`

func scanJourney(row pgx.Row) (*domain.Journey, error) {
	var j domain.Journey
	err := row.Scan(
		&j.ID, &j.UserID, &j.StartLocationName, &j.DestinationName, &j.Status,
		&j.StartedAt, &j.EndedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *journeyRepository) Create(ctx context.Context, userID string, req *domain.CreateJourneyRequest) (*domain.Journey, error) {
	const q = `
		INSERT INTO journeys (user_id, start_location_name, destination_name, status, started_at)
		VALUES ($1, $2, $3, 'active', now())
		RETURNING ` + journeyCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanJourney(r.pool.QueryRow(ctx, q, userID, req.StartLocationName, req.DestinationName))
}

func (r *journeyRepository) FindForUser(ctx context.Context, journeyID, userID string) (*domain.Journey, error) {
	const q = `SELECT ` + journeyCols + ` FROM journeys WHERE journey_id = $1 AND user_id = $2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	j, err := scanJourney(r.pool.QueryRow(ctx, q, journeyID, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func (r *journeyRepository) FindByID(ctx context.Context, journeyID string) (*domain.Journey, error) {
	const q = `SELECT ` + journeyCols + ` FROM journeys WHERE journey_id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	j, err := scanJourney(r.pool.QueryRow(ctx, q, journeyID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func (r *journeyRepository) End(ctx context.Context, journeyID, userID string) (*domain.Journey, error) {
	const q = `
		UPDATE journeys
		SET status = 'completed', ended_at = now(), updated_at = now()
		WHERE journey_id = $1 AND user_id = $2 AND status = 'active'
		RETURNING ` + journeyCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	j, err := scanJourney(r.pool.QueryRow(ctx, q, journeyID, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func (r *journeyRepository) CreateEmergency(ctx context.Context, userID, journeyID, reason string) (*domain.Emergency, error) {
	const q = `
		INSERT INTO emergencies (user_id, journey_id, reason)
		VALUES ($1, $2, NULLIF($3, ''))
		RETURNING id, journey_id, user_id, COALESCE(reason, ''), resolved_at, created_at`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var e domain.Emergency
	err := r.pool.QueryRow(ctx, q, userID, journeyID, reason).Scan(
		&e.ID, &e.JourneyID, &e.UserID, &e.Reason, &e.ResolvedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *journeyRepository) FindEmergency(ctx context.Context, emergencyID, journeyID, userID string) (*domain.Emergency, error) {
	const q = `
		SELECT id, journey_id, user_id, COALESCE(reason, ''), resolved_at, created_at
		FROM emergencies
		WHERE id = $1 AND journey_id = $2 AND user_id = $3`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var e domain.Emergency
	err := r.pool.QueryRow(ctx, q, emergencyID, journeyID, userID).Scan(
		&e.ID, &e.JourneyID, &e.UserID, &e.Reason, &e.ResolvedAt, &e.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
