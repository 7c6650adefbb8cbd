package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/safecircle/safecircle-backend/internal/domain"
	"github.com/safecircle/safecircle-backend/internal/repo/postgres"
	"github.com/safecircle/safecircle-backend/pkg/auth"
	"github.com/safecircle/safecircle-backend/pkg/config"
	"github.com/safecircle/safecircle-backend/pkg/events"
	"github.com/safecircle/safecircle-backend/pkg/logger"
)

// OTPVerifier redeems pending verification codes. A correct code
// upgrades the account and opens a session; repeated wrong codes lock
// the account for a fixed window.
type OTPVerifier interface {
	Verify(ctx context.Context, req *domain.VerifyOTPRequest) *domain.Result
}

type otpVerifier struct {
	userRepo postgres.UserRepository
	otpRepo  postgres.OTPRepository
	bus      events.Publisher
	cfg      *config.Config
}

func NewOTPVerifier(userRepo postgres.UserRepository, otpRepo postgres.OTPRepository, bus events.Publisher, cfg *config.Config) OTPVerifier {
	return &otpVerifier{
		userRepo: userRepo,
		otpRepo:  otpRepo,
		bus:      bus,
		cfg:      cfg,
	}
}

func (s *otpVerifier) Verify(ctx context.Context, req *domain.VerifyOTPRequest) *domain.Result {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return domain.Fail(domain.CodeValidationError, "Invalid request", err.Error(), domain.Metadata{})
	}

	now := time.Now()
	meta := domain.Metadata{PhoneNumber: domain.MaskPhone(req.PhoneNumber)}

	user, err := s.userRepo.FindByPhone(ctx, req.PhoneNumber)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to look up user by phone", "error", err)
		return domain.Internal("failed to look up account", meta)
	}
	if user == nil {
		// Same shape as a stale code so probing cannot distinguish
		// unknown numbers from expired challenges.
		return domain.Fail(domain.CodeExpiredOrInvalidOTP, "Invalid or expired OTP. Request a new code", "", meta)
	}
	meta.UserID = user.ID

	if user.Status == domain.StatusSuspended {
		return domain.Fail(domain.CodeUserSuspended, "Account suspended. Contact support", "", meta)
	}

	if user.OTPLockedUntil != nil && user.OTPLockedUntil.After(now) {
		minutes := int(math.Ceil(user.OTPLockedUntil.Sub(now).Minutes()))
		return domain.Fail(domain.CodeAccountLocked,
			fmt.Sprintf("Account temporarily locked. Try again in %d minute(s)", minutes), "", meta)
	}

	otp, err := s.otpRepo.FindLatestPending(ctx, req.PhoneNumber)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load pending OTP", "error", err, "user_id", user.ID)
		return domain.Internal("failed to load code", meta)
	}
	if otp == nil || otp.CodeHash == nil {
		return domain.Fail(domain.CodeExpiredOrInvalidOTP, "Invalid or expired OTP. Request a new code", "", meta)
	}

	// A code whose attempt budget is spent is dead even if the row was
	// never retired, such as when the lockout outlived interest in it.
	if otp.Attempts >= otp.MaxAttempts {
		return domain.Fail(domain.CodeExpiredOrInvalidOTP, "Invalid or expired OTP. Request a new code", "", meta)
	}

	if otp.ExpiresAt == nil || !otp.ExpiresAt.After(now) {
		return domain.Fail(domain.CodeOTPExpired, "OTP expired. Request a new code", "", meta)
	}

	if bcrypt.CompareHashAndPassword([]byte(*otp.CodeHash), []byte(req.Code)) != nil {
		return s.handleMismatch(ctx, user, otp, now, meta)
	}

	if err := s.userRepo.MarkVerified(ctx, user.ID); err != nil {
		logger.ErrorContext(ctx, "Failed to mark user verified", "error", err, "user_id", user.ID)
		return domain.Internal("failed to activate account", meta)
	}
	if err := s.otpRepo.Consume(ctx, otp.ID); err != nil {
		logger.ErrorContext(ctx, "Failed to consume OTP", "error", err, "otp_id", otp.ID)
		return domain.Internal("failed to consume code", meta)
	}

	token, err := auth.NewSessionToken(user.ID, user.PhoneNumber, s.cfg.Auth.JWTSecret, s.cfg.Auth.SessionTTL)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to sign session token", "error", err, "user_id", user.ID)
		return domain.Internal("failed to open session", meta)
	}

	s.publish(ctx, events.OTPVerified, events.OTPVerifiedEvent{
		UserID: user.ID,
		Phone:  domain.MaskPhone(user.PhoneNumber),
		At:     now,
	})

	logger.InfoContext(ctx, "User verified", "user_id", user.ID, "purpose", otp.Purpose)
	return domain.OK("User successfully verified", &domain.SessionData{
		AccessToken:    token,
		UserID:         user.ID,
		SessionExpires: now.Add(s.cfg.Auth.SessionTTL),
	}, meta)
}

// handleMismatch burns one attempt and escalates to a lockout once the
// code's attempt budget is spent. The response code stays INVALID_OTP
// either way; only the message changes.
func (s *otpVerifier) handleMismatch(ctx context.Context, user *domain.User, otp *domain.OTP, now time.Time, meta domain.Metadata) *domain.Result {
	attempts, err := s.otpRepo.IncrementAttempts(ctx, otp.ID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to record OTP attempt", "error", err, "otp_id", otp.ID)
		return domain.Internal("failed to record attempt", meta)
	}
	if _, err := s.userRepo.IncrementFailedAttempts(ctx, user.ID); err != nil {
		logger.ErrorContext(ctx, "Failed to bump failed attempt count", "error", err, "user_id", user.ID)
	}

	if attempts >= otp.MaxAttempts {
		// Retire the row so the code stays dead after the lockout
		// lifts; the next issuance starts from a fresh code.
		if err := s.otpRepo.MarkFailed(ctx, otp.ID); err != nil {
			logger.ErrorContext(ctx, "Failed to retire exhausted OTP", "error", err, "otp_id", otp.ID)
		}

		lockedUntil := now.Add(s.cfg.OTP.LockDuration)
		if err := s.userRepo.SetLockout(ctx, user.ID, lockedUntil); err != nil {
			logger.ErrorContext(ctx, "Failed to set lockout", "error", err, "user_id", user.ID)
			return domain.Internal("failed to apply lockout", meta)
		}
		s.publish(ctx, events.OTPLocked, events.OTPLockedEvent{
			UserID:      user.ID,
			LockedUntil: lockedUntil,
		})
		logger.WarnContext(ctx, "Account locked after repeated OTP failures",
			"user_id", user.ID, "attempts", attempts)
		minutes := int(math.Ceil(s.cfg.OTP.LockDuration.Minutes()))
		return domain.Fail(domain.CodeInvalidOTP,
			fmt.Sprintf("Too many incorrect attempts. Try again in %d minute(s)", minutes), "", meta)
	}

	remaining := otp.MaxAttempts - attempts
	return domain.Fail(domain.CodeInvalidOTP,
		fmt.Sprintf("Incorrect OTP. %d attempt(s) remaining", remaining), "", meta)
}

func (s *otpVerifier) publish(ctx context.Context, subject string, payload any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, subject, payload); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}
