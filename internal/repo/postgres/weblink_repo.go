package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/safecircle/safecircle-backend/internal/domain"
)

type WebLinkRepository interface {
	CreateBatch(ctx context.Context, journeyID string, emergencyID *string, linkType string, tokens []string) ([]domain.WebLinkAccess, error)
	FindByToken(ctx context.Context, token string) (*domain.WebLinkAccess, error)
	MarkAccessed(ctx context.Context, id, ip, userAgent string) (bool, error)
}

type webLinkRepository struct {
	pool *pgxpool.Pool
}

func NewWebLinkRepository(pool *pgxpool.Pool) WebLinkRepository {
	return &webLinkRepository{pool: pool}
}

const webLinkCols = `id, journey_id, emergency_id, web_link_token, web_link_type,
	accessed_at, ip_address, user_agent, created_at`

func scanWebLink(row pgx.Row) (*domain.WebLinkAccess, error) {
	var l domain.WebLinkAccess
	err := row.Scan(
		&l.ID, &l.JourneyID, &l.EmergencyID, &l.Token, &l.LinkType,
		&l.AccessedAt, &l.IPAddress, &l.UserAgent, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateBatch persists one credential row per token inside a single
// transaction, so the caller sees either all N rows or none of them.
func (r *webLinkRepository) CreateBatch(ctx context.Context, journeyID string, emergencyID *string, linkType string, tokens []string) ([]domain.WebLinkAccess, error) {
	const q = `
		INSERT INTO web_link_access (journey_id, emergency_id, web_link_token, web_link_type)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + webLinkCols

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	links := make([]domain.WebLinkAccess, 0, len(tokens))
	for _, token := range tokens {
		l, err := scanWebLink(tx.QueryRow(ctx, q, journeyID, emergencyID, token, linkType))
		if err != nil {
			return nil, err
		}
		links = append(links, *l)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return links, nil
}

func (r *webLinkRepository) FindByToken(ctx context.Context, token string) (*domain.WebLinkAccess, error) {
	const q = `SELECT ` + webLinkCols + ` FROM web_link_access WHERE web_link_token = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	l, err := scanWebLink(r.pool.QueryRow(ctx, q, token))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return l, err
}

// MarkAccessed stamps first use. The accessed_at IS NULL guard keeps
// the token single-use even under concurrent opens; only one caller
// gets true back.
func (r *webLinkRepository) MarkAccessed(ctx context.Context, id, ip, userAgent string) (bool, error) {
	const q = `
		UPDATE web_link_access
		SET accessed_at = now(), ip_address = $2, user_agent = $3
		WHERE id = $1 AND accessed_at IS NULL`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, ip, userAgent)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}
