package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/safecircle/safecircle-backend/internal/domain"
	"github.com/safecircle/safecircle-backend/internal/platform/sms"
	"github.com/safecircle/safecircle-backend/internal/ratelimit"
	"github.com/safecircle/safecircle-backend/internal/repo/postgres"
	"github.com/safecircle/safecircle-backend/pkg/config"
	"github.com/safecircle/safecircle-backend/pkg/events"
	"github.com/safecircle/safecircle-backend/pkg/logger"
)

// OTPIssuer handles verification code requests for both signup and
// login. Policy checks run against the counter state read at entry;
// counters only advance after the provider confirms the send.
type OTPIssuer interface {
	RequestSignupOTP(ctx context.Context, req *domain.SignupRequest) *domain.Result
	RequestLoginOTP(ctx context.Context, req *domain.LoginRequest) *domain.Result
}

type otpIssuer struct {
	userRepo postgres.UserRepository
	otpRepo  postgres.OTPRepository
	sender   sms.Sender
	bus      events.Publisher
	cfg      *config.Config
}

func NewOTPIssuer(userRepo postgres.UserRepository, otpRepo postgres.OTPRepository, sender sms.Sender, bus events.Publisher, cfg *config.Config) OTPIssuer {
	return &otpIssuer{
		userRepo: userRepo,
		otpRepo:  otpRepo,
		sender:   sender,
		bus:      bus,
		cfg:      cfg,
	}
}

func (s *otpIssuer) RequestSignupOTP(ctx context.Context, req *domain.SignupRequest) *domain.Result {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return domain.Fail(domain.CodeValidationError, "Invalid request", err.Error(), domain.Metadata{})
	}

	meta := domain.Metadata{PhoneNumber: domain.MaskPhone(req.PhoneNumber)}

	user, err := s.userRepo.FindByPhone(ctx, req.PhoneNumber)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to look up user by phone", "error", err)
		return domain.Internal("failed to look up account", meta)
	}

	if user != nil && user.PhoneVerified {
		return domain.Fail(domain.CodeUserExists, "User already exists. Please log in", "", meta)
	}
	if user != nil && user.Status == domain.StatusSuspended {
		return domain.Fail(domain.CodeUserSuspended, "Account suspended. Contact support", "", meta)
	}

	if user == nil {
		user, err = s.userRepo.Create(ctx, req.PhoneNumber, req.DeviceID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to create user", "error", err)
			return domain.Internal("failed to create account", meta)
		}
		logger.InfoContext(ctx, "Created pending user", "user_id", user.ID, "phone", domain.MaskPhone(user.PhoneNumber))
	}

	return s.issue(ctx, user, domain.OTPPurposeSignup, s.cfg.OTP.SignupHourlyLimit, s.cfg.OTP.SignupDailyLimit)
}

func (s *otpIssuer) RequestLoginOTP(ctx context.Context, req *domain.LoginRequest) *domain.Result {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return domain.Fail(domain.CodeValidationError, "Invalid request", err.Error(), domain.Metadata{})
	}

	meta := domain.Metadata{PhoneNumber: domain.MaskPhone(req.PhoneNumber)}

	user, err := s.userRepo.FindByPhone(ctx, req.PhoneNumber)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to look up user by phone", "error", err)
		return domain.Internal("failed to look up account", meta)
	}
	if user == nil {
		return domain.Fail(domain.CodeUserNotFound, "No account found for this number. Please sign up", "", meta)
	}

	switch {
	case user.Status == domain.StatusSuspended:
		return domain.Fail(domain.CodeUserSuspended, "Account suspended. Contact support", "", meta)
	case !user.PhoneVerified:
		return domain.Fail(domain.CodePhoneUnverified, "Phone number not verified. Complete signup first", "", meta)
	case user.Status == domain.StatusInactive:
		return domain.Fail(domain.CodeAccountInactive, "Account inactive. Contact support", "", meta)
	}

	return s.issue(ctx, user, domain.OTPPurposeLogin, s.cfg.OTP.LoginHourlyLimit, s.cfg.OTP.LoginDailyLimit)
}

// issue runs the shared policy gauntlet and dispatch path. All rate
// decisions use the counter state loaded with the user row; the commit
// at the end is conditional on that state being unchanged.
func (s *otpIssuer) issue(ctx context.Context, user *domain.User, purpose string, hourLimit, dayLimit int) *domain.Result {
	now := time.Now()
	meta := domain.Metadata{
		PhoneNumber: domain.MaskPhone(user.PhoneNumber),
		UserID:      user.ID,
	}

	if user.OTPLockedUntil != nil && user.OTPLockedUntil.After(now) {
		minutes := int(math.Ceil(user.OTPLockedUntil.Sub(now).Minutes()))
		return domain.Fail(domain.CodeAccountLocked,
			fmt.Sprintf("Account temporarily locked. Try again in %d minute(s)", minutes), "", meta)
	}

	if user.LastOTPRequestedAt != nil {
		elapsed := now.Sub(*user.LastOTPRequestedAt)
		if elapsed < s.cfg.OTP.Cooldown {
			seconds := int(math.Ceil((s.cfg.OTP.Cooldown - elapsed).Seconds()))
			return domain.Fail(domain.CodeOTPCooldown,
				fmt.Sprintf("Please wait %d second(s) before requesting another code", seconds), "", meta)
		}
	}

	hourExpired := ratelimit.IsHourWindowExpired(user.OTPHourWindowStartedAt, now)
	dayExpired := ratelimit.IsDayWindowExpired(user.OTPDayWindowStartedAt, now)

	hourCount := ratelimit.EffectiveCount(user.OTPRequestsLastHour, user.OTPHourWindowStartedAt, now, ratelimit.HourWindow)
	dayCount := ratelimit.EffectiveCount(user.OTPRequestsToday, user.OTPDayWindowStartedAt, now, ratelimit.DayWindow)

	if hourCount >= hourLimit {
		return domain.Fail(domain.CodeLimitExceeded, "Too many OTP requests. Try again later", "", meta)
	}
	if dayCount >= dayLimit {
		return domain.Fail(domain.CodeLimitExceeded, "Daily OTP limit reached. Try again tomorrow", "", meta)
	}

	code, err := generateCode(s.cfg.OTP.CodeLength)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to generate OTP code", "error", err)
		return domain.Internal("failed to generate code", meta)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to hash OTP code", "error", err)
		return domain.Internal("failed to prepare code", meta)
	}

	otp, err := s.otpRepo.UpsertPending(ctx, user.ID, user.PhoneNumber, purpose,
		string(hash), now.Add(s.cfg.OTP.TTL), s.cfg.OTP.MaxAttempts)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to store OTP", "error", err, "user_id", user.ID)
		return domain.Internal("failed to store code", meta)
	}

	text := domain.RenderVerificationMessage(code, s.cfg.OTP.TTL)
	sendRes, err := s.sender.Send(ctx, user.PhoneNumber, text)
	if err != nil || !sendRes.Success {
		if err != nil {
			logger.ErrorContext(ctx, "OTP SMS dispatch failed", "error", err, "user_id", user.ID)
		} else {
			logger.WarnContext(ctx, "OTP SMS rejected by provider", "status", sendRes.ProviderStatus, "user_id", user.ID)
		}
		if mfErr := s.otpRepo.MarkFailed(ctx, otp.ID); mfErr != nil {
			logger.ErrorContext(ctx, "Failed to void undelivered OTP", "error", mfErr, "otp_id", otp.ID)
		}
		return domain.Fail(domain.CodeSMSFailed, "Failed to send OTP. Please try again", "", meta)
	}

	commit := postgres.OTPIssueCommit{
		RequestedAt:         now,
		HourCount:           hourCount + 1,
		DayCount:            dayCount + 1,
		HourWindowStartedAt: windowStart(user.OTPHourWindowStartedAt, hourExpired, now),
		DayWindowStartedAt:  windowStart(user.OTPDayWindowStartedAt, dayExpired, now),
		PrevLastRequestedAt: user.LastOTPRequestedAt,
	}
	applied, err := s.userRepo.CommitOTPIssue(ctx, user.ID, commit)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to commit OTP counters", "error", err, "user_id", user.ID)
	} else if !applied {
		logger.WarnContext(ctx, "OTP counter commit skipped, concurrent issuance won", "user_id", user.ID)
	}

	s.publish(ctx, events.OTPIssued, events.OTPIssuedEvent{
		UserID:  user.ID,
		Purpose: purpose,
		Phone:   domain.MaskPhone(user.PhoneNumber),
		At:      now,
	})

	logger.InfoContext(ctx, "Verification OTP sent",
		"user_id", user.ID, "purpose", purpose, "phone", domain.MaskPhone(user.PhoneNumber))
	return domain.OK("Verification OTP sent via SMS", nil, meta)
}

func (s *otpIssuer) publish(ctx context.Context, subject string, payload any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, subject, payload); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}

// windowStart keeps the stored window anchor when the window is still
// live and opens a fresh one at now otherwise.
func windowStart(stored *time.Time, expired bool, now time.Time) time.Time {
	if expired || stored == nil {
		return now
	}
	return *stored
}

// generateCode draws a fixed-length numeric code from crypto/rand.
func generateCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
