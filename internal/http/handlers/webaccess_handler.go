package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/safecircle/safecircle-backend/internal/domain"
	"github.com/safecircle/safecircle-backend/internal/http/middleware"
	"github.com/safecircle/safecircle-backend/internal/http/response"
	"github.com/safecircle/safecircle-backend/internal/repo/postgres"
	"github.com/safecircle/safecircle-backend/pkg/auth"
	"github.com/safecircle/safecircle-backend/pkg/config"
	"github.com/safecircle/safecircle-backend/pkg/logger"
)

// WebAccessHandler redeems the single-use tokens minted during alert
// fan-out. Redemption burns the token and hands back a short-lived
// read-only viewer session for the journey.
type WebAccessHandler struct {
	webLinkRepo postgres.WebLinkRepository
	journeyRepo postgres.JourneyRepository
	cfg         *config.Config
}

func NewWebAccessHandler(webLinkRepo postgres.WebLinkRepository, journeyRepo postgres.JourneyRepository, cfg *config.Config) *WebAccessHandler {
	return &WebAccessHandler{
		webLinkRepo: webLinkRepo,
		journeyRepo: journeyRepo,
		cfg:         cfg,
	}
}

func (h *WebAccessHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		response.Error(w, r, domain.CodeValidationError, "Missing access token")
		return
	}

	link, err := h.webLinkRepo.FindByToken(r.Context(), token)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to look up web link", "error", err)
		response.WriteResult(w, r, domain.Internal("failed to look up link", domain.Metadata{}), http.StatusOK)
		return
	}
	if link == nil {
		response.Error(w, r, domain.CodeNotFound, "Link not found")
		return
	}

	burned, err := h.webLinkRepo.MarkAccessed(r.Context(), link.ID, middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to burn web link", "error", err, "link_id", link.ID)
		response.WriteResult(w, r, domain.Internal("failed to redeem link", domain.Metadata{}), http.StatusOK)
		return
	}
	if !burned {
		response.Error(w, r, domain.CodeInvalidToken, "This link has already been used")
		return
	}

	journey, err := h.journeyRepo.FindByID(r.Context(), link.JourneyID)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to load journey for web link", "error", err, "journey_id", link.JourneyID)
		response.WriteResult(w, r, domain.Internal("failed to load journey", domain.Metadata{}), http.StatusOK)
		return
	}
	if journey == nil {
		response.Error(w, r, domain.CodeJourneyNotFound, "Journey no longer exists")
		return
	}

	viewerToken, err := auth.NewViewerToken(journey.ID, h.cfg.Auth.JWTSecret, h.cfg.Auth.ViewerTTL)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to sign viewer token", "error", err)
		response.WriteResult(w, r, domain.Internal("failed to open viewer session", domain.Metadata{}), http.StatusOK)
		return
	}

	logger.InfoContext(r.Context(), "Web access link redeemed",
		"link_id", link.ID, "journey_id", journey.ID, "link_type", link.LinkType)

	response.OK(w, r, domain.OK("Access granted", map[string]any{
		"journey":      journey,
		"link_type":    link.LinkType,
		"viewer_token": viewerToken,
	}, domain.Metadata{JourneyID: journey.ID}))
}
