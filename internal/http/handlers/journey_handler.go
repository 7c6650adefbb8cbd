package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/safecircle/safecircle-backend/internal/domain"
	"github.com/safecircle/safecircle-backend/internal/http/middleware"
	"github.com/safecircle/safecircle-backend/internal/http/response"
	"github.com/safecircle/safecircle-backend/internal/repo/postgres"
	"github.com/safecircle/safecircle-backend/internal/service"
	"github.com/safecircle/safecircle-backend/pkg/events"
	"github.com/safecircle/safecircle-backend/pkg/logger"
)

type JourneyHandler struct {
	journeyRepo    postgres.JourneyRepository
	messageLogRepo postgres.MessageLogRepository
	alerts         service.AlertService
	bus            events.Publisher
}

func NewJourneyHandler(journeyRepo postgres.JourneyRepository, messageLogRepo postgres.MessageLogRepository, alerts service.AlertService, bus events.Publisher) *JourneyHandler {
	return &JourneyHandler{
		journeyRepo:    journeyRepo,
		messageLogRepo: messageLogRepo,
		alerts:         alerts,
		bus:            bus,
	}
}

func (h *JourneyHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.SessionClaims(r.Context())

	var req domain.CreateJourneyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, domain.CodeValidationError, "Invalid JSON body")
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		response.Error(w, r, domain.CodeValidationError, err.Error())
		return
	}

	journey, err := h.journeyRepo.Create(r.Context(), claims.Sub, &req)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to create journey", "error", err)
		response.WriteResult(w, r, domain.Internal("failed to create journey", domain.Metadata{UserID: claims.Sub}), http.StatusOK)
		return
	}

	h.publish(r, events.JourneyStarted, events.JourneyStartedEvent{
		JourneyID:   journey.ID,
		UserID:      journey.UserID,
		Destination: journey.DestinationName,
		StartedAt:   journey.StartedAt,
	})

	response.Created(w, r, domain.OK("Journey started", journey, domain.Metadata{
		UserID:    claims.Sub,
		JourneyID: journey.ID,
	}))
}

func (h *JourneyHandler) End(w http.ResponseWriter, r *http.Request) {
	claims := middleware.SessionClaims(r.Context())
	journeyID := chi.URLParam(r, "journeyID")

	journey, err := h.journeyRepo.End(r.Context(), journeyID, claims.Sub)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to end journey", "error", err, "journey_id", journeyID)
		response.WriteResult(w, r, domain.Internal("failed to end journey", domain.Metadata{UserID: claims.Sub}), http.StatusOK)
		return
	}
	if journey == nil {
		response.Error(w, r, domain.CodeJourneyNotFound, "No active journey to end")
		return
	}

	endedAt := time.Now()
	if journey.EndedAt != nil {
		endedAt = *journey.EndedAt
	}
	h.publish(r, events.JourneyEnded, events.JourneyEndedEvent{
		JourneyID: journey.ID,
		UserID:    journey.UserID,
		EndedAt:   endedAt,
	})

	response.OK(w, r, domain.OK("Journey ended", journey, domain.Metadata{
		UserID:    claims.Sub,
		JourneyID: journey.ID,
	}))
}

// Emergency records an emergency on an active journey and immediately
// fans the alert out to the circle. The alert envelope is returned so
// the client sees who was reached.
func (h *JourneyHandler) Emergency(w http.ResponseWriter, r *http.Request) {
	claims := middleware.SessionClaims(r.Context())
	journeyID := chi.URLParam(r, "journeyID")

	var body struct {
		Reason string `json:"reason,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			response.Error(w, r, domain.CodeValidationError, "Invalid JSON body")
			return
		}
	}

	journey, err := h.journeyRepo.FindForUser(r.Context(), journeyID, claims.Sub)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to load journey", "error", err, "journey_id", journeyID)
		response.WriteResult(w, r, domain.Internal("failed to load journey", domain.Metadata{UserID: claims.Sub}), http.StatusOK)
		return
	}
	if journey == nil {
		response.Error(w, r, domain.CodeJourneyNotFound, "Journey not found")
		return
	}

	emergency, err := h.journeyRepo.CreateEmergency(r.Context(), claims.Sub, journeyID, body.Reason)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to create emergency", "error", err, "journey_id", journeyID)
		response.WriteResult(w, r, domain.Internal("failed to create emergency", domain.Metadata{UserID: claims.Sub}), http.StatusOK)
		return
	}

	h.publish(r, events.EmergencyCreated, events.EmergencyCreatedEvent{
		EmergencyID: emergency.ID,
		JourneyID:   journeyID,
		UserID:      claims.Sub,
		CreatedAt:   emergency.CreatedAt,
	})

	res := h.alerts.AlertCircle(r.Context(), service.AlertInput{
		UserID:      claims.Sub,
		JourneyID:   journeyID,
		EmergencyID: &emergency.ID,
		MessageType: domain.MessageEmergency,
	})
	res.Data = map[string]any{
		"emergency":  emergency,
		"recipients": res.Data,
	}
	response.WriteResult(w, r, res, http.StatusCreated)
}

func (h *JourneyHandler) Messages(w http.ResponseWriter, r *http.Request) {
	claims := middleware.SessionClaims(r.Context())
	journeyID := chi.URLParam(r, "journeyID")

	logs, err := h.messageLogRepo.ListByJourney(r.Context(), claims.Sub, journeyID)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to list message logs", "error", err, "journey_id", journeyID)
		response.WriteResult(w, r, domain.Internal("failed to list messages", domain.Metadata{UserID: claims.Sub}), http.StatusOK)
		return
	}

	response.OK(w, r, domain.OK("Message logs", logs, domain.Metadata{
		UserID:    claims.Sub,
		JourneyID: journeyID,
	}))
}

func (h *JourneyHandler) publish(r *http.Request, subject string, payload any) {
	if h.bus == nil {
		return
	}
	if err := h.bus.Publish(r.Context(), subject, payload); err != nil {
		logger.WarnContext(r.Context(), "Failed to publish event", "subject", subject, "error", err)
	}
}
