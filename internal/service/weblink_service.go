package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/safecircle/safecircle-backend/internal/domain"
	"github.com/safecircle/safecircle-backend/internal/repo/postgres"
)

// WebLinkMinter issues the single-use access credentials that go out
// inside alert messages. Minting is all-or-nothing per fan-out: either
// every recipient gets a distinct token or the dispatch aborts.
type WebLinkMinter interface {
	MintBatch(ctx context.Context, journeyID string, emergencyID *string, linkType string, count int) ([]domain.WebLinkAccess, error)
}

type webLinkMinter struct {
	webLinkRepo postgres.WebLinkRepository
}

func NewWebLinkMinter(webLinkRepo postgres.WebLinkRepository) WebLinkMinter {
	return &webLinkMinter{webLinkRepo: webLinkRepo}
}

func (s *webLinkMinter) MintBatch(ctx context.Context, journeyID string, emergencyID *string, linkType string, count int) ([]domain.WebLinkAccess, error) {
	if count <= 0 {
		return nil, fmt.Errorf("mint count must be positive, got %d", count)
	}

	tokens := make([]string, count)
	for i := range tokens {
		tokens[i] = uuid.NewString()
	}

	links, err := s.webLinkRepo.CreateBatch(ctx, journeyID, emergencyID, linkType, tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to create web link batch: %w", err)
	}
	if len(links) != count {
		return nil, fmt.Errorf("web link batch incomplete: wanted %d, got %d", count, len(links))
	}
	return links, nil
}
