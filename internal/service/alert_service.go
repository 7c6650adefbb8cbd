package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/safecircle/safecircle-backend/internal/domain"
	"github.com/safecircle/safecircle-backend/internal/platform/mailer"
	"github.com/safecircle/safecircle-backend/internal/platform/sms"
	"github.com/safecircle/safecircle-backend/internal/repo/postgres"
	"github.com/safecircle/safecircle-backend/pkg/config"
	"github.com/safecircle/safecircle-backend/pkg/events"
	"github.com/safecircle/safecircle-backend/pkg/logger"
)

// AlertService fans a journey or emergency notification out to every
// eligible circle member. Each recipient gets a fresh single-use web
// access token; every attempt, sent or failed, lands in the message
// log.
type AlertService interface {
	AlertCircle(ctx context.Context, input AlertInput) *domain.Result
}

type AlertInput struct {
	UserID      string
	JourneyID   string
	EmergencyID *string
	MessageType string
}

type alertService struct {
	userRepo       postgres.UserRepository
	journeyRepo    postgres.JourneyRepository
	circleRepo     postgres.CircleRepository
	messageLogRepo postgres.MessageLogRepository
	minter         WebLinkMinter
	sender         sms.Sender
	mailer         mailer.Service
	bus            events.Publisher
	cfg            *config.Config
}

func NewAlertService(
	userRepo postgres.UserRepository,
	journeyRepo postgres.JourneyRepository,
	circleRepo postgres.CircleRepository,
	messageLogRepo postgres.MessageLogRepository,
	minter WebLinkMinter,
	sender sms.Sender,
	mailSvc mailer.Service,
	bus events.Publisher,
	cfg *config.Config,
) AlertService {
	return &alertService{
		userRepo:       userRepo,
		journeyRepo:    journeyRepo,
		circleRepo:     circleRepo,
		messageLogRepo: messageLogRepo,
		minter:         minter,
		sender:         sender,
		mailer:         mailSvc,
		bus:            bus,
		cfg:            cfg,
	}
}

// sendOutcome is one slot of the fan-out result. Slots are
// index-aligned with the member list so workers never share state.
type sendOutcome struct {
	channel        string
	messageText    string
	webLink        string
	webLinkToken   string
	sent           bool
	providerStatus *string
}

func (s *alertService) AlertCircle(ctx context.Context, input AlertInput) *domain.Result {
	meta := domain.Metadata{
		UserID:    input.UserID,
		JourneyID: input.JourneyID,
	}
	if input.EmergencyID != nil {
		meta.EmergencyID = *input.EmergencyID
	}

	if input.UserID == "" || input.JourneyID == "" {
		return domain.Fail(domain.CodeValidationError, "Invalid request", "user_id and journey_id are required", meta)
	}
	if !domain.AlertMessageType(input.MessageType) {
		return domain.Fail(domain.CodeValidationError, "Invalid request",
			fmt.Sprintf("unsupported message_type %q", input.MessageType), meta)
	}

	user, err := s.userRepo.FindByID(ctx, input.UserID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load user", "error", err, "user_id", input.UserID)
		return domain.Internal("failed to load user", meta)
	}
	if user == nil {
		return domain.Fail(domain.CodeUserNotFound, "User not found", "", meta)
	}

	journey, err := s.journeyRepo.FindForUser(ctx, input.JourneyID, input.UserID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load journey", "error", err, "journey_id", input.JourneyID)
		return domain.Internal("failed to load journey", meta)
	}
	if journey == nil {
		return domain.Fail(domain.CodeJourneyNotFound, "Journey not found", "", meta)
	}

	linkType := domain.WebLinkTypeJourney
	if input.EmergencyID != nil {
		emergency, err := s.journeyRepo.FindEmergency(ctx, *input.EmergencyID, input.JourneyID, input.UserID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to load emergency", "error", err, "emergency_id", *input.EmergencyID)
			return domain.Internal("failed to load emergency", meta)
		}
		if emergency == nil {
			return domain.Fail(domain.CodeEmergencyNotFound, "Emergency not found", "", meta)
		}
		if emergency.ResolvedAt != nil {
			return domain.Fail(domain.CodeEmergencyResolved, "Emergency already resolved", "", meta)
		}
		linkType = domain.WebLinkTypeEmergency
	}

	members, err := s.circleRepo.ListEligible(ctx, input.UserID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to list circle members", "error", err, "user_id", input.UserID)
		return domain.Internal("failed to load circle", meta)
	}
	if len(members) == 0 {
		return domain.Fail(domain.CodeCircleMembersNotFound,
			"No verified circle members to notify", "", meta)
	}

	links, err := s.minter.MintBatch(ctx, input.JourneyID, input.EmergencyID, linkType, len(members))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to mint web access links", "error", err, "journey_id", input.JourneyID)
		return domain.Fail(domain.CodeWebLinkGenerationFailed,
			"Failed to generate web access links", "", meta)
	}

	outcomes := s.fanOut(ctx, user, journey, members, links, input.MessageType)

	// The post-send bookkeeping must survive a caller hangup; the
	// attempts already happened.
	auditCtx := context.WithoutCancel(ctx)

	sentCount := 0
	var successIDs []string
	var failed []domain.RecipientRef
	logs := make([]domain.MessageLogInsert, 0, len(members))
	for i, m := range members {
		out := outcomes[i]
		status := domain.DeliveryFailed
		if out.sent {
			status = domain.DeliverySent
			sentCount++
			successIDs = append(successIDs, m.ID)
		} else {
			failed = append(failed, domain.RecipientRef{
				ContactName:    m.ContactName,
				ContactPhone:   domain.MaskPhone(m.ContactPhone),
				CircleMemberID: m.ID,
			})
		}
		logs = append(logs, domain.MessageLogInsert{
			JourneyID:      input.JourneyID,
			EmergencyID:    input.EmergencyID,
			ToNumber:       m.ContactPhone,
			ToName:         m.ContactName,
			ChannelType:    out.channel,
			MessageType:    input.MessageType,
			MessageText:    out.messageText,
			WebLink:        out.webLink,
			WebLinkToken:   out.webLinkToken,
			DeliveryStatus: status,
			ProviderStatus: out.providerStatus,
		})
	}

	if len(successIDs) > 0 {
		if err := s.circleRepo.IncrementAlertsReceived(auditCtx, successIDs); err != nil {
			logger.ErrorContext(ctx, "Failed to increment alert counters", "error", err, "member_count", len(successIDs))
		}
	}
	if err := s.messageLogRepo.InsertBatch(auditCtx, input.UserID, logs); err != nil {
		logger.ErrorContext(ctx, "Failed to write message logs", "error", err, "log_count", len(logs))
	}

	s.publish(auditCtx, events.AlertDispatched, events.AlertDispatchedEvent{
		JourneyID:   input.JourneyID,
		EmergencyID: input.EmergencyID,
		UserID:      input.UserID,
		MessageType: input.MessageType,
		SentCount:   sentCount,
		TotalCount:  len(members),
		At:          time.Now(),
	})

	total := len(members)
	meta.SentCount = &sentCount
	meta.TotalCount = &total
	meta.Failed = failed

	logger.InfoContext(ctx, "Alert fan-out finished",
		"journey_id", input.JourneyID, "message_type", input.MessageType,
		"sent", sentCount, "total", total)

	data := recipientStatuses(members, outcomes)
	switch {
	case sentCount == total:
		return domain.OK("SMS sent successfully", data, meta)
	case sentCount == 0:
		return domain.Fail(domain.CodeSMSFailed, "All SMS notifications failed", "", meta)
	default:
		return domain.Partial("Some SMS notifications failed", data, meta)
	}
}

// fanOut delivers to every member concurrently under the configured
// worker cap. Sends run on a detached context so an impatient caller
// cannot strand a half-dispatched alert.
func (s *alertService) fanOut(ctx context.Context, user *domain.User, journey *domain.Journey, members []domain.CircleMember, links []domain.WebLinkAccess, messageType string) []sendOutcome {
	outcomes := make([]sendOutcome, len(members))
	sendCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(s.cfg.SMS.MaxConcurrentSends)
	for i := range members {
		g.Go(func() error {
			outcomes[i] = s.sendOne(sendCtx, user, journey, members[i], links[i], messageType)
			return nil
		})
	}
	g.Wait()
	return outcomes
}

func (s *alertService) sendOne(ctx context.Context, user *domain.User, journey *domain.Journey, member domain.CircleMember, link domain.WebLinkAccess, messageType string) sendOutcome {
	webLink := fmt.Sprintf("%s/webaccess/%s", s.cfg.Public.BaseURL, link.Token)
	text := domain.RenderAlertMessage(messageType, member.ContactName, journey.DestinationName, webLink, user.FirstName)

	out := sendOutcome{
		messageText:  text,
		webLink:      webLink,
		webLinkToken: link.Token,
	}

	if member.ReceiveSMS {
		out.channel = domain.ChannelSMS
		res, err := s.sender.Send(ctx, member.ContactPhone, text)
		if err != nil {
			logger.ErrorContext(ctx, "Alert SMS dispatch failed", "error", err,
				"member_id", member.ID, "phone", domain.MaskPhone(member.ContactPhone))
			return out
		}
		out.sent = res.Success
		if res.ProviderStatus != "" {
			status := res.ProviderStatus
			out.providerStatus = &status
		}
		return out
	}

	out.channel = domain.ChannelEmail
	if err := s.mailer.SendAlertEmail(ctx, member.ContactEmail, member.ContactName, alertSubject(messageType), text); err != nil {
		logger.ErrorContext(ctx, "Alert email dispatch failed", "error", err, "member_id", member.ID)
		return out
	}
	out.sent = true
	return out
}

func alertSubject(messageType string) string {
	switch messageType {
	case domain.MessageEmergency:
		return "SafeCircle emergency alert"
	case domain.MessageMissedCheckin:
		return "SafeCircle missed check-in"
	case domain.MessageJourneyEnd:
		return "SafeCircle journey ended"
	default:
		return "SafeCircle journey update"
	}
}

// recipientStatuses is the per-recipient view returned in the envelope
// body, tokens excluded.
func recipientStatuses(members []domain.CircleMember, outcomes []sendOutcome) []map[string]any {
	statuses := make([]map[string]any, len(members))
	for i, m := range members {
		status := domain.DeliveryFailed
		if outcomes[i].sent {
			status = domain.DeliverySent
		}
		statuses[i] = map[string]any{
			"to_name":         m.ContactName,
			"to_number":       domain.MaskPhone(m.ContactPhone),
			"channel_type":    outcomes[i].channel,
			"delivery_status": status,
		}
	}
	return statuses
}

func (s *alertService) publish(ctx context.Context, subject string, payload any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, subject, payload); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}
