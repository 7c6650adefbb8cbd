package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/safecircle/safecircle-backend/internal/domain"
)

type MessageLogRepository interface {
	InsertBatch(ctx context.Context, userID string, logs []domain.MessageLogInsert) error
	ListByJourney(ctx context.Context, userID, journeyID string) ([]domain.MessageLog, error)
}

type messageLogRepository struct {
	pool *pgxpool.Pool
}

func NewMessageLogRepository(pool *pgxpool.Pool) MessageLogRepository {
	return &messageLogRepository{pool: pool}
}

// InsertBatch appends one audit row per delivery attempt using a pgx
// batch, one round trip for the whole fan-out.
func (r *messageLogRepository) InsertBatch(ctx context.Context, userID string, logs []domain.MessageLogInsert) error {
	if len(logs) == 0 {
		return nil
	}

	const q = `
		INSERT INTO message_logs (user_id, journey_id, emergency_id, to_number, to_name,
			channel_type, message_type, message_text, web_link, web_link_token,
			delivery_status, provider_status, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			CASE WHEN $11 = 'sent' THEN now() END)`

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	for _, l := range logs {
		batch.Queue(q, userID, l.JourneyID, l.EmergencyID, l.ToNumber, l.ToName,
			l.ChannelType, l.MessageType, l.MessageText, l.WebLink, l.WebLinkToken,
			l.DeliveryStatus, l.ProviderStatus)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range logs {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (r *messageLogRepository) ListByJourney(ctx context.Context, userID, journeyID string) ([]domain.MessageLog, error) {
	const q = `
		SELECT id, user_id, journey_id, emergency_id, to_number, COALESCE(to_name, ''),
			channel_type, message_type, message_text, COALESCE(web_link, ''),
			COALESCE(web_link_token::text, ''), delivery_status, provider_message_id,
			provider_status, sent_at, created_at
		FROM message_logs
		WHERE user_id = $1 AND journey_id = $2
		ORDER BY created_at DESC`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, userID, journeyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.MessageLog
	for rows.Next() {
		var l domain.MessageLog
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.JourneyID, &l.EmergencyID, &l.ToNumber, &l.ToName,
			&l.ChannelType, &l.MessageType, &l.MessageText, &l.WebLink,
			&l.WebLinkToken, &l.DeliveryStatus, &l.ProviderMessageID,
			&l.ProviderStatus, &l.SentAt, &l.CreatedAt,
		); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
