package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/safecircle/safecircle-backend/internal/domain"
	"github.com/safecircle/safecircle-backend/internal/http/middleware"
	"github.com/safecircle/safecircle-backend/internal/http/response"
	"github.com/safecircle/safecircle-backend/internal/repo/postgres"
	"github.com/safecircle/safecircle-backend/internal/service"
	"github.com/safecircle/safecircle-backend/pkg/logger"
)

type CircleHandler struct {
	circleRepo postgres.CircleRepository
	alerts     service.AlertService
}

func NewCircleHandler(circleRepo postgres.CircleRepository, alerts service.AlertService) *CircleHandler {
	return &CircleHandler{circleRepo: circleRepo, alerts: alerts}
}

func (h *CircleHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	claims := middleware.SessionClaims(r.Context())

	var req domain.CreateCircleMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, domain.CodeValidationError, "Invalid JSON body")
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		response.Error(w, r, domain.CodeValidationError, err.Error())
		return
	}

	member, err := h.circleRepo.Create(r.Context(), claims.Sub, &req)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to add circle member", "error", err)
		response.WriteResult(w, r, domain.Internal("failed to add circle member", domain.Metadata{UserID: claims.Sub}), http.StatusOK)
		return
	}

	response.Created(w, r, domain.OK("Circle member added", member, domain.Metadata{UserID: claims.Sub}))
}

func (h *CircleHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	claims := middleware.SessionClaims(r.Context())

	members, err := h.circleRepo.ListByUser(r.Context(), claims.Sub)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to list circle members", "error", err)
		response.WriteResult(w, r, domain.Internal("failed to list circle members", domain.Metadata{UserID: claims.Sub}), http.StatusOK)
		return
	}

	response.OK(w, r, domain.OK("Circle members", members, domain.Metadata{UserID: claims.Sub}))
}

type alertRequest struct {
	JourneyID   string  `json:"journey_id"`
	EmergencyID *string `json:"emergency_id,omitempty"`
	MessageType string  `json:"message_type"`
}

// Alert fans a notification out to the caller's circle. The journey
// must belong to the caller; the session decides the user, never the
// body.
func (h *CircleHandler) Alert(w http.ResponseWriter, r *http.Request) {
	claims := middleware.SessionClaims(r.Context())

	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, domain.CodeValidationError, "Invalid JSON body")
		return
	}

	res := h.alerts.AlertCircle(r.Context(), service.AlertInput{
		UserID:      claims.Sub,
		JourneyID:   req.JourneyID,
		EmergencyID: req.EmergencyID,
		MessageType: req.MessageType,
	})
	response.OK(w, r, res)
}
