package service

import (
	"context"
	"sync"
	"time"

	"github.com/safecircle/safecircle-backend/internal/domain"
	"github.com/safecircle/safecircle-backend/internal/platform/sms"
	"github.com/safecircle/safecircle-backend/internal/repo/postgres"
	"github.com/safecircle/safecircle-backend/pkg/config"
)

type mockUserRepo struct {
	createFn                  func(ctx context.Context, phone, deviceID string) (*domain.User, error)
	findByPhoneFn             func(ctx context.Context, phone string) (*domain.User, error)
	findByIDFn                func(ctx context.Context, id string) (*domain.User, error)
	commitOTPIssueFn          func(ctx context.Context, userID string, commit postgres.OTPIssueCommit) (bool, error)
	setLockoutFn              func(ctx context.Context, userID string, until time.Time) error
	incrementFailedAttemptsFn func(ctx context.Context, userID string) (int, error)
	markVerifiedFn            func(ctx context.Context, userID string) error
}

func (m *mockUserRepo) Create(ctx context.Context, phone, deviceID string) (*domain.User, error) {
	return m.createFn(ctx, phone, deviceID)
}

func (m *mockUserRepo) FindByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return m.findByPhoneFn(ctx, phone)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return m.findByIDFn(ctx, id)
}

func (m *mockUserRepo) CommitOTPIssue(ctx context.Context, userID string, commit postgres.OTPIssueCommit) (bool, error) {
	if m.commitOTPIssueFn == nil {
		return true, nil
	}
	return m.commitOTPIssueFn(ctx, userID, commit)
}

func (m *mockUserRepo) SetLockout(ctx context.Context, userID string, until time.Time) error {
	if m.setLockoutFn == nil {
		return nil
	}
	return m.setLockoutFn(ctx, userID, until)
}

func (m *mockUserRepo) IncrementFailedAttempts(ctx context.Context, userID string) (int, error) {
	if m.incrementFailedAttemptsFn == nil {
		return 1, nil
	}
	return m.incrementFailedAttemptsFn(ctx, userID)
}

func (m *mockUserRepo) MarkVerified(ctx context.Context, userID string) error {
	if m.markVerifiedFn == nil {
		return nil
	}
	return m.markVerifiedFn(ctx, userID)
}

type mockOTPRepo struct {
	findLatestPendingFn func(ctx context.Context, phone string) (*domain.OTP, error)
	upsertPendingFn     func(ctx context.Context, userID, phone, purpose, codeHash string, expiresAt time.Time, maxAttempts int) (*domain.OTP, error)
	markFailedFn        func(ctx context.Context, id string) error
	incrementAttemptsFn func(ctx context.Context, id string) (int, error)
	consumeFn           func(ctx context.Context, id string) error
	expireStaleFn       func(ctx context.Context) (int64, error)
}

func (m *mockOTPRepo) FindLatestPending(ctx context.Context, phone string) (*domain.OTP, error) {
	return m.findLatestPendingFn(ctx, phone)
}

func (m *mockOTPRepo) UpsertPending(ctx context.Context, userID, phone, purpose, codeHash string, expiresAt time.Time, maxAttempts int) (*domain.OTP, error) {
	return m.upsertPendingFn(ctx, userID, phone, purpose, codeHash, expiresAt, maxAttempts)
}

func (m *mockOTPRepo) MarkFailed(ctx context.Context, id string) error {
	if m.markFailedFn == nil {
		return nil
	}
	return m.markFailedFn(ctx, id)
}

func (m *mockOTPRepo) IncrementAttempts(ctx context.Context, id string) (int, error) {
	return m.incrementAttemptsFn(ctx, id)
}

func (m *mockOTPRepo) Consume(ctx context.Context, id string) error {
	if m.consumeFn == nil {
		return nil
	}
	return m.consumeFn(ctx, id)
}

func (m *mockOTPRepo) ExpireStale(ctx context.Context) (int64, error) {
	if m.expireStaleFn == nil {
		return 0, nil
	}
	return m.expireStaleFn(ctx)
}

type mockCircleRepo struct {
	createFn                  func(ctx context.Context, userID string, req *domain.CreateCircleMemberRequest) (*domain.CircleMember, error)
	listByUserFn              func(ctx context.Context, userID string) ([]domain.CircleMember, error)
	listEligibleFn            func(ctx context.Context, userID string) ([]domain.CircleMember, error)
	incrementAlertsReceivedFn func(ctx context.Context, memberIDs []string) error
}

func (m *mockCircleRepo) Create(ctx context.Context, userID string, req *domain.CreateCircleMemberRequest) (*domain.CircleMember, error) {
	return m.createFn(ctx, userID, req)
}

func (m *mockCircleRepo) ListByUser(ctx context.Context, userID string) ([]domain.CircleMember, error) {
	return m.listByUserFn(ctx, userID)
}

func (m *mockCircleRepo) ListEligible(ctx context.Context, userID string) ([]domain.CircleMember, error) {
	return m.listEligibleFn(ctx, userID)
}

func (m *mockCircleRepo) IncrementAlertsReceived(ctx context.Context, memberIDs []string) error {
	if m.incrementAlertsReceivedFn == nil {
		return nil
	}
	return m.incrementAlertsReceivedFn(ctx, memberIDs)
}

type mockJourneyRepo struct {
	createFn          func(ctx context.Context, userID string, req *domain.CreateJourneyRequest) (*domain.Journey, error)
	findForUserFn     func(ctx context.Context, journeyID, userID string) (*domain.Journey, error)
	findByIDFn        func(ctx context.Context, journeyID string) (*domain.Journey, error)
	endFn             func(ctx context.Context, journeyID, userID string) (*domain.Journey, error)
	createEmergencyFn func(ctx context.Context, userID, journeyID, reason string) (*domain.Emergency, error)
	findEmergencyFn   func(ctx context.Context, emergencyID, journeyID, userID string) (*domain.Emergency, error)
}

func (m *mockJourneyRepo) Create(ctx context.Context, userID string, req *domain.CreateJourneyRequest) (*domain.Journey, error) {
	return m.createFn(ctx, userID, req)
}

func (m *mockJourneyRepo) FindForUser(ctx context.Context, journeyID, userID string) (*domain.Journey, error) {
	return m.findForUserFn(ctx, journeyID, userID)
}

func (m *mockJourneyRepo) FindByID(ctx context.Context, journeyID string) (*domain.Journey, error) {
	return m.findByIDFn(ctx, journeyID)
}

func (m *mockJourneyRepo) End(ctx context.Context, journeyID, userID string) (*domain.Journey, error) {
	return m.endFn(ctx, journeyID, userID)
}

func (m *mockJourneyRepo) CreateEmergency(ctx context.Context, userID, journeyID, reason string) (*domain.Emergency, error) {
	return m.createEmergencyFn(ctx, userID, journeyID, reason)
}

func (m *mockJourneyRepo) FindEmergency(ctx context.Context, emergencyID, journeyID, userID string) (*domain.Emergency, error) {
	return m.findEmergencyFn(ctx, emergencyID, journeyID, userID)
}

type mockWebLinkRepo struct {
	createBatchFn  func(ctx context.Context, journeyID string, emergencyID *string, linkType string, tokens []string) ([]domain.WebLinkAccess, error)
	findByTokenFn  func(ctx context.Context, token string) (*domain.WebLinkAccess, error)
	markAccessedFn func(ctx context.Context, id, ip, userAgent string) (bool, error)
}

func (m *mockWebLinkRepo) CreateBatch(ctx context.Context, journeyID string, emergencyID *string, linkType string, tokens []string) ([]domain.WebLinkAccess, error) {
	return m.createBatchFn(ctx, journeyID, emergencyID, linkType, tokens)
}

func (m *mockWebLinkRepo) FindByToken(ctx context.Context, token string) (*domain.WebLinkAccess, error) {
	return m.findByTokenFn(ctx, token)
}

func (m *mockWebLinkRepo) MarkAccessed(ctx context.Context, id, ip, userAgent string) (bool, error) {
	return m.markAccessedFn(ctx, id, ip, userAgent)
}

type mockMessageLogRepo struct {
	mu              sync.Mutex
	inserted        []domain.MessageLogInsert
	insertBatchFn   func(ctx context.Context, userID string, logs []domain.MessageLogInsert) error
	listByJourneyFn func(ctx context.Context, userID, journeyID string) ([]domain.MessageLog, error)
}

func (m *mockMessageLogRepo) InsertBatch(ctx context.Context, userID string, logs []domain.MessageLogInsert) error {
	m.mu.Lock()
	m.inserted = append(m.inserted, logs...)
	m.mu.Unlock()
	if m.insertBatchFn == nil {
		return nil
	}
	return m.insertBatchFn(ctx, userID, logs)
}

func (m *mockMessageLogRepo) ListByJourney(ctx context.Context, userID, journeyID string) ([]domain.MessageLog, error) {
	return m.listByJourneyFn(ctx, userID, journeyID)
}

// mockSender records every send and answers from a per-number verdict
// map; numbers not listed succeed. With failOnCancel set it behaves
// like a real transport and errors on a dead context.
type mockSender struct {
	mu           sync.Mutex
	sent         []string
	failFor      map[string]bool
	err          error
	failOnCancel bool
}

func (m *mockSender) Send(ctx context.Context, phoneNumber, text string) (sms.SendResult, error) {
	if m.failOnCancel {
		if err := ctx.Err(); err != nil {
			return sms.SendResult{}, err
		}
	}
	m.mu.Lock()
	m.sent = append(m.sent, phoneNumber)
	m.mu.Unlock()
	if m.err != nil {
		return sms.SendResult{}, m.err
	}
	if m.failFor[phoneNumber] {
		return sms.SendResult{Success: false, ProviderStatus: "http_502"}, nil
	}
	return sms.SendResult{Success: true, ProviderMessageID: "msg-1", ProviderStatus: "ok"}, nil
}

func (m *mockSender) sentNumbers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

type mockMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *mockMailer) SendAlertEmail(ctx context.Context, toEmail, toName, subject, text string) error {
	m.mu.Lock()
	m.sent = append(m.sent, toEmail)
	m.mu.Unlock()
	return m.err
}

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:  "test-secret",
			SessionTTL: 24 * time.Hour,
			ViewerTTL:  30 * time.Minute,
		},
		OTP: config.OTPConfig{
			Cooldown:          60 * time.Second,
			TTL:               15 * time.Minute,
			CodeLength:        6,
			MaxAttempts:       3,
			LockDuration:      15 * time.Minute,
			LoginHourlyLimit:  5,
			LoginDailyLimit:   15,
			SignupHourlyLimit: 3,
			SignupDailyLimit:  10,
		},
		SMS: config.SMSConfig{
			MaxConcurrentSends: 4,
		},
		Public: config.PublicConfig{
			BaseURL: "http://localhost:5173",
		},
	}
}
