package service

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/safecircle/safecircle-backend/internal/domain"
)

func circleMember(id, phone string) domain.CircleMember {
	return domain.CircleMember{
		ID:           id,
		UserID:       "user-1",
		ContactName:  "Member " + id,
		ContactPhone: phone,
		IsVerified:   true,
		IsActive:     true,
		ReceiveSMS:   true,
	}
}

func activeJourney() *domain.Journey {
	return &domain.Journey{
		ID:              "journey-1",
		UserID:          "user-1",
		DestinationName: "Lekki Phase 1",
		Status:          domain.JourneyActive,
		StartedAt:       time.Now().Add(-10 * time.Minute),
	}
}

type alertFixture struct {
	userRepo    *mockUserRepo
	journeyRepo *mockJourneyRepo
	circleRepo  *mockCircleRepo
	logRepo     *mockMessageLogRepo
	linkRepo    *mockWebLinkRepo
	sender      *mockSender
	mail        *mockMailer
}

func newAlertFixture(members []domain.CircleMember) *alertFixture {
	return &alertFixture{
		userRepo: &mockUserRepo{
			findByIDFn: func(ctx context.Context, id string) (*domain.User, error) {
				u := activeUser()
				u.FirstName = "Ada"
				return u, nil
			},
		},
		journeyRepo: &mockJourneyRepo{
			findForUserFn: func(ctx context.Context, journeyID, userID string) (*domain.Journey, error) {
				return activeJourney(), nil
			},
		},
		circleRepo: &mockCircleRepo{
			listEligibleFn: func(ctx context.Context, userID string) ([]domain.CircleMember, error) {
				return members, nil
			},
		},
		logRepo: &mockMessageLogRepo{},
		linkRepo: &mockWebLinkRepo{
			createBatchFn: func(ctx context.Context, journeyID string, emergencyID *string, linkType string, tokens []string) ([]domain.WebLinkAccess, error) {
				links := make([]domain.WebLinkAccess, len(tokens))
				for i, tok := range tokens {
					links[i] = domain.WebLinkAccess{
						ID:        "link-" + tok[:8],
						JourneyID: journeyID,
						Token:     tok,
						LinkType:  linkType,
					}
				}
				return links, nil
			},
		},
		sender: &mockSender{},
		mail:   &mockMailer{},
	}
}

func (f *alertFixture) service() AlertService {
	return NewAlertService(
		f.userRepo, f.journeyRepo, f.circleRepo, f.logRepo,
		NewWebLinkMinter(f.linkRepo), f.sender, f.mail, nil, testConfig(),
	)
}

func TestAlertCircle_AllSent(t *testing.T) {
	members := []domain.CircleMember{
		circleMember("m1", "2348011111111"),
		circleMember("m2", "2348022222222"),
		circleMember("m3", "2348033333333"),
	}
	f := newAlertFixture(members)

	var incremented []string
	f.circleRepo.incrementAlertsReceivedFn = func(ctx context.Context, memberIDs []string) error {
		incremented = memberIDs
		return nil
	}

	res := f.service().AlertCircle(context.Background(), AlertInput{
		UserID:      "user-1",
		JourneyID:   "journey-1",
		MessageType: domain.MessageJourneyStart,
	})

	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	if res.Message != "SMS sent successfully" {
		t.Errorf("message = %q", res.Message)
	}
	if *res.Metadata.SentCount != 3 || *res.Metadata.TotalCount != 3 {
		t.Errorf("counts = %d/%d, want 3/3", *res.Metadata.SentCount, *res.Metadata.TotalCount)
	}
	if len(f.sender.sentNumbers()) != 3 {
		t.Errorf("sent %d messages, want 3", len(f.sender.sentNumbers()))
	}
	if len(incremented) != 3 {
		t.Errorf("incremented %d members, want 3", len(incremented))
	}
	if len(f.logRepo.inserted) != 3 {
		t.Fatalf("wrote %d log rows, want 3", len(f.logRepo.inserted))
	}
	for _, row := range f.logRepo.inserted {
		if row.DeliveryStatus != domain.DeliverySent {
			t.Errorf("log for %s has status %s, want sent", row.ToNumber, row.DeliveryStatus)
		}
		if row.WebLinkToken == "" || !strings.Contains(row.WebLink, row.WebLinkToken) {
			t.Errorf("log for %s has inconsistent web link", row.ToNumber)
		}
		if !strings.Contains(row.MessageText, "Lekki Phase 1") {
			t.Errorf("message text lacks destination: %q", row.MessageText)
		}
	}
}

func TestAlertCircle_PartialFailure(t *testing.T) {
	members := []domain.CircleMember{
		circleMember("m1", "2348011111111"),
		circleMember("m2", "2348022222222"),
		circleMember("m3", "2348033333333"),
	}
	f := newAlertFixture(members)
	f.sender.failFor = map[string]bool{"2348022222222": true}

	var incremented []string
	f.circleRepo.incrementAlertsReceivedFn = func(ctx context.Context, memberIDs []string) error {
		incremented = memberIDs
		return nil
	}

	res := f.service().AlertCircle(context.Background(), AlertInput{
		UserID:      "user-1",
		JourneyID:   "journey-1",
		MessageType: domain.MessageEmergency,
	})

	if res.Success {
		t.Fatal("partial failure must not report success")
	}
	if res.Message != "Some SMS notifications failed" {
		t.Fatalf("message = %q", res.Message)
	}
	if res.Error != nil {
		t.Fatalf("partial outcome must not carry an error object, got %+v", res.Error)
	}
	if *res.Metadata.SentCount != 2 || *res.Metadata.TotalCount != 3 {
		t.Errorf("counts = %d/%d, want 2/3", *res.Metadata.SentCount, *res.Metadata.TotalCount)
	}
	if len(res.Metadata.Failed) != 1 || res.Metadata.Failed[0].CircleMemberID != "m2" {
		t.Errorf("failed list = %+v, want only m2", res.Metadata.Failed)
	}

	sort.Strings(incremented)
	if len(incremented) != 2 || incremented[0] != "m1" || incremented[1] != "m3" {
		t.Errorf("incremented = %v, want [m1 m3]", incremented)
	}

	if len(f.logRepo.inserted) != 3 {
		t.Fatalf("wrote %d log rows, want 3 (failures are logged too)", len(f.logRepo.inserted))
	}
	statusByNumber := map[string]string{}
	for _, row := range f.logRepo.inserted {
		statusByNumber[row.ToNumber] = row.DeliveryStatus
	}
	if statusByNumber["2348022222222"] != domain.DeliveryFailed {
		t.Error("failed recipient must be logged as failed")
	}
	if statusByNumber["2348011111111"] != domain.DeliverySent {
		t.Error("successful recipient must be logged as sent")
	}
}

func TestAlertCircle_AllFailed(t *testing.T) {
	members := []domain.CircleMember{
		circleMember("m1", "2348011111111"),
		circleMember("m2", "2348022222222"),
	}
	f := newAlertFixture(members)
	f.sender.failFor = map[string]bool{"2348011111111": true, "2348022222222": true}

	increments := 0
	f.circleRepo.incrementAlertsReceivedFn = func(ctx context.Context, memberIDs []string) error {
		increments++
		return nil
	}

	res := f.service().AlertCircle(context.Background(), AlertInput{
		UserID:      "user-1",
		JourneyID:   "journey-1",
		MessageType: domain.MessageJourneyStart,
	})

	if res.Success || res.Message != "All SMS notifications failed" {
		t.Fatalf("got %+v", res)
	}
	if increments != 0 {
		t.Error("no counters should move when nothing was delivered")
	}
	if len(f.logRepo.inserted) != 2 {
		t.Errorf("wrote %d log rows, want 2", len(f.logRepo.inserted))
	}
}

func TestAlertCircle_EmailFallback(t *testing.T) {
	emailOnly := circleMember("m1", "2348011111111")
	emailOnly.ReceiveSMS = false
	emailOnly.ReceiveEmail = true
	emailOnly.ContactEmail = "friend@example.com"

	f := newAlertFixture([]domain.CircleMember{emailOnly})

	res := f.service().AlertCircle(context.Background(), AlertInput{
		UserID:      "user-1",
		JourneyID:   "journey-1",
		MessageType: domain.MessageJourneyStart,
	})

	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	if len(f.sender.sentNumbers()) != 0 {
		t.Error("email-only member must not get an SMS")
	}
	if len(f.mail.sent) != 1 || f.mail.sent[0] != "friend@example.com" {
		t.Errorf("mail sent to %v", f.mail.sent)
	}
	if f.logRepo.inserted[0].ChannelType != domain.ChannelEmail {
		t.Errorf("channel = %s, want email", f.logRepo.inserted[0].ChannelType)
	}
}

func TestAlertCircle_CancelledCallerStillDelivered(t *testing.T) {
	// A caller hanging up must not strand the fan-out: sends run to
	// completion and every attempt still gets its audit row.
	members := []domain.CircleMember{
		circleMember("m1", "2348011111111"),
		circleMember("m2", "2348022222222"),
		circleMember("m3", "2348033333333"),
	}
	f := newAlertFixture(members)
	f.sender.failOnCancel = true

	var incremented []string
	f.circleRepo.incrementAlertsReceivedFn = func(ctx context.Context, memberIDs []string) error {
		if err := ctx.Err(); err != nil {
			t.Errorf("increment ran on a dead context: %v", err)
		}
		incremented = memberIDs
		return nil
	}
	f.logRepo.insertBatchFn = func(ctx context.Context, userID string, logs []domain.MessageLogInsert) error {
		if err := ctx.Err(); err != nil {
			t.Errorf("log insert ran on a dead context: %v", err)
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.service().AlertCircle(ctx, AlertInput{
		UserID:      "user-1",
		JourneyID:   "journey-1",
		MessageType: domain.MessageJourneyStart,
	})

	if !res.Success {
		t.Fatalf("expected success despite cancelled caller, got %+v", res.Error)
	}
	if got := len(f.sender.sentNumbers()); got != 3 {
		t.Errorf("sent %d messages, want 3", got)
	}
	if len(incremented) != 3 {
		t.Errorf("incremented %d members, want 3", len(incremented))
	}
	if len(f.logRepo.inserted) != 3 {
		t.Errorf("wrote %d log rows, want 3", len(f.logRepo.inserted))
	}
}

func TestAlertCircle_NoEligibleMembers(t *testing.T) {
	f := newAlertFixture(nil)

	res := f.service().AlertCircle(context.Background(), AlertInput{
		UserID:      "user-1",
		JourneyID:   "journey-1",
		MessageType: domain.MessageJourneyStart,
	})

	if res.Success || res.Error.Code != domain.CodeCircleMembersNotFound {
		t.Fatalf("expected CIRCLE_MEMBERS_NOT_FOUND, got %+v", res)
	}
	if len(f.sender.sentNumbers()) != 0 {
		t.Error("must not send with an empty circle")
	}
}

func TestAlertCircle_ShortMintAbortsDispatch(t *testing.T) {
	members := []domain.CircleMember{
		circleMember("m1", "2348011111111"),
		circleMember("m2", "2348022222222"),
	}
	f := newAlertFixture(members)
	f.linkRepo.createBatchFn = func(ctx context.Context, journeyID string, emergencyID *string, linkType string, tokens []string) ([]domain.WebLinkAccess, error) {
		return []domain.WebLinkAccess{{ID: "link-1", Token: tokens[0]}}, nil
	}

	res := f.service().AlertCircle(context.Background(), AlertInput{
		UserID:      "user-1",
		JourneyID:   "journey-1",
		MessageType: domain.MessageJourneyStart,
	})

	if res.Success || res.Error.Code != domain.CodeWebLinkGenerationFailed {
		t.Fatalf("expected WEB_LINK_GENERATION_FAILED, got %+v", res)
	}
	if len(f.sender.sentNumbers()) != 0 {
		t.Error("a short mint must abort before any send")
	}
	if len(f.logRepo.inserted) != 0 {
		t.Error("no log rows should exist for an aborted dispatch")
	}
}

func TestAlertCircle_ResolvedEmergency(t *testing.T) {
	f := newAlertFixture([]domain.CircleMember{circleMember("m1", "2348011111111")})
	f.journeyRepo.findEmergencyFn = func(ctx context.Context, emergencyID, journeyID, userID string) (*domain.Emergency, error) {
		return &domain.Emergency{
			ID:         emergencyID,
			JourneyID:  journeyID,
			UserID:     userID,
			ResolvedAt: timePtr(time.Now().Add(-time.Minute)),
		}, nil
	}

	emergencyID := "emergency-1"
	res := f.service().AlertCircle(context.Background(), AlertInput{
		UserID:      "user-1",
		JourneyID:   "journey-1",
		EmergencyID: &emergencyID,
		MessageType: domain.MessageEmergency,
	})

	if res.Success || res.Error.Code != domain.CodeEmergencyResolved {
		t.Fatalf("expected EMERGENCY_ALREADY_RESOLVED, got %+v", res)
	}
}

func TestAlertCircle_VerificationTypeRejected(t *testing.T) {
	f := newAlertFixture([]domain.CircleMember{circleMember("m1", "2348011111111")})

	res := f.service().AlertCircle(context.Background(), AlertInput{
		UserID:      "user-1",
		JourneyID:   "journey-1",
		MessageType: domain.MessageVerification,
	})

	if res.Success || res.Error.Code != domain.CodeValidationError {
		t.Fatalf("verification must never fan out, got %+v", res)
	}
}

func TestAlertCircle_JourneyNotFound(t *testing.T) {
	f := newAlertFixture([]domain.CircleMember{circleMember("m1", "2348011111111")})
	f.journeyRepo.findForUserFn = func(ctx context.Context, journeyID, userID string) (*domain.Journey, error) {
		return nil, nil
	}

	res := f.service().AlertCircle(context.Background(), AlertInput{
		UserID:      "user-1",
		JourneyID:   "journey-9",
		MessageType: domain.MessageJourneyStart,
	})

	if res.Success || res.Error.Code != domain.CodeJourneyNotFound {
		t.Fatalf("expected JOURNEY_NOT_FOUND, got %+v", res)
	}
}
