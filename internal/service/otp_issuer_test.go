package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/safecircle/safecircle-backend/internal/domain"
	"github.com/safecircle/safecircle-backend/internal/repo/postgres"
)

const testPhone = "2348012345678"

func activeUser() *domain.User {
	return &domain.User{
		ID:            "user-1",
		PhoneNumber:   testPhone,
		PhoneVerified: true,
		Status:        domain.StatusActive,
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestRequestLoginOTP_Success(t *testing.T) {
	var committed *postgres.OTPIssueCommit
	var storedHash string

	userRepo := &mockUserRepo{
		findByPhoneFn: func(ctx context.Context, phone string) (*domain.User, error) {
			return activeUser(), nil
		},
		commitOTPIssueFn: func(ctx context.Context, userID string, commit postgres.OTPIssueCommit) (bool, error) {
			committed = &commit
			return true, nil
		},
	}
	otpRepo := &mockOTPRepo{
		upsertPendingFn: func(ctx context.Context, userID, phone, purpose, codeHash string, expiresAt time.Time, maxAttempts int) (*domain.OTP, error) {
			storedHash = codeHash
			if purpose != domain.OTPPurposeLogin {
				t.Errorf("purpose = %q, want login", purpose)
			}
			if maxAttempts != 3 {
				t.Errorf("maxAttempts = %d, want 3", maxAttempts)
			}
			return &domain.OTP{ID: "otp-1", UserID: userID, PhoneNumber: phone}, nil
		},
	}
	sender := &mockSender{}

	issuer := NewOTPIssuer(userRepo, otpRepo, sender, nil, testConfig())
	res := issuer.RequestLoginOTP(context.Background(), &domain.LoginRequest{PhoneNumber: testPhone})

	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	if got := sender.sentNumbers(); len(got) != 1 || got[0] != testPhone {
		t.Errorf("sent to %v, want [%s]", got, testPhone)
	}
	if committed == nil {
		t.Fatal("counters were not committed")
	}
	if committed.HourCount != 1 || committed.DayCount != 1 {
		t.Errorf("commit counts = %d/%d, want 1/1", committed.HourCount, committed.DayCount)
	}
	if !strings.HasPrefix(storedHash, "$2") {
		t.Errorf("stored code is not a bcrypt hash: %q", storedHash)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte("000000")); err == nil {
		t.Error("stored hash matched an arbitrary code")
	}
}

func TestRequestLoginOTP_Cooldown(t *testing.T) {
	user := activeUser()
	user.LastOTPRequestedAt = timePtr(time.Now().Add(-10 * time.Second))

	upserts := 0
	userRepo := &mockUserRepo{
		findByPhoneFn: func(ctx context.Context, phone string) (*domain.User, error) { return user, nil },
	}
	otpRepo := &mockOTPRepo{
		upsertPendingFn: func(ctx context.Context, userID, phone, purpose, codeHash string, expiresAt time.Time, maxAttempts int) (*domain.OTP, error) {
			upserts++
			return &domain.OTP{ID: "otp-1"}, nil
		},
	}
	sender := &mockSender{}

	issuer := NewOTPIssuer(userRepo, otpRepo, sender, nil, testConfig())
	res := issuer.RequestLoginOTP(context.Background(), &domain.LoginRequest{PhoneNumber: testPhone})

	if res.Success {
		t.Fatal("expected cooldown rejection")
	}
	if res.Error.Code != domain.CodeOTPCooldown {
		t.Errorf("code = %s, want OTP_COOLDOWN", res.Error.Code)
	}
	if upserts != 0 || len(sender.sentNumbers()) != 0 {
		t.Error("cooldown rejection must not mint or send a code")
	}
}

func TestRequestLoginOTP_HourlyLimit(t *testing.T) {
	user := activeUser()
	user.LastOTPRequestedAt = timePtr(time.Now().Add(-5 * time.Minute))
	user.OTPHourWindowStartedAt = timePtr(time.Now().Add(-30 * time.Minute))
	user.OTPDayWindowStartedAt = timePtr(time.Now().Add(-2 * time.Hour))
	user.OTPRequestsLastHour = 5
	user.OTPRequestsToday = 5

	userRepo := &mockUserRepo{
		findByPhoneFn: func(ctx context.Context, phone string) (*domain.User, error) { return user, nil },
	}
	sender := &mockSender{}

	issuer := NewOTPIssuer(userRepo, &mockOTPRepo{}, sender, nil, testConfig())
	res := issuer.RequestLoginOTP(context.Background(), &domain.LoginRequest{PhoneNumber: testPhone})

	if res.Success || res.Error.Code != domain.CodeLimitExceeded {
		t.Fatalf("expected LIMIT_EXCEEDED, got %+v", res)
	}
	if len(sender.sentNumbers()) != 0 {
		t.Error("limit rejection must not send")
	}
}

func TestRequestLoginOTP_ExpiredWindowResets(t *testing.T) {
	user := activeUser()
	user.LastOTPRequestedAt = timePtr(time.Now().Add(-2 * time.Hour))
	user.OTPHourWindowStartedAt = timePtr(time.Now().Add(-2 * time.Hour))
	user.OTPDayWindowStartedAt = timePtr(time.Now().Add(-3 * time.Hour))
	user.OTPRequestsLastHour = 5
	user.OTPRequestsToday = 9

	var committed *postgres.OTPIssueCommit
	userRepo := &mockUserRepo{
		findByPhoneFn: func(ctx context.Context, phone string) (*domain.User, error) { return user, nil },
		commitOTPIssueFn: func(ctx context.Context, userID string, commit postgres.OTPIssueCommit) (bool, error) {
			committed = &commit
			return true, nil
		},
	}
	otpRepo := &mockOTPRepo{
		upsertPendingFn: func(ctx context.Context, userID, phone, purpose, codeHash string, expiresAt time.Time, maxAttempts int) (*domain.OTP, error) {
			return &domain.OTP{ID: "otp-1"}, nil
		},
	}

	issuer := NewOTPIssuer(userRepo, otpRepo, &mockSender{}, nil, testConfig())
	res := issuer.RequestLoginOTP(context.Background(), &domain.LoginRequest{PhoneNumber: testPhone})

	if !res.Success {
		t.Fatalf("expected success after hour window expiry, got %+v", res.Error)
	}
	if committed == nil {
		t.Fatal("counters were not committed")
	}
	// Hour window lapsed so its count restarts; the day window is
	// still live and keeps accumulating.
	if committed.HourCount != 1 {
		t.Errorf("HourCount = %d, want 1", committed.HourCount)
	}
	if committed.DayCount != 10 {
		t.Errorf("DayCount = %d, want 10", committed.DayCount)
	}
	if !committed.DayWindowStartedAt.Equal(*user.OTPDayWindowStartedAt) {
		t.Error("live day window anchor must be preserved")
	}
}

func TestRequestLoginOTP_SMSFailureDoesNotAdvanceCounters(t *testing.T) {
	user := activeUser()

	commits := 0
	var voided string
	userRepo := &mockUserRepo{
		findByPhoneFn: func(ctx context.Context, phone string) (*domain.User, error) { return user, nil },
		commitOTPIssueFn: func(ctx context.Context, userID string, commit postgres.OTPIssueCommit) (bool, error) {
			commits++
			return true, nil
		},
	}
	otpRepo := &mockOTPRepo{
		upsertPendingFn: func(ctx context.Context, userID, phone, purpose, codeHash string, expiresAt time.Time, maxAttempts int) (*domain.OTP, error) {
			return &domain.OTP{ID: "otp-1"}, nil
		},
		markFailedFn: func(ctx context.Context, id string) error {
			voided = id
			return nil
		},
	}
	sender := &mockSender{failFor: map[string]bool{testPhone: true}}

	issuer := NewOTPIssuer(userRepo, otpRepo, sender, nil, testConfig())
	res := issuer.RequestLoginOTP(context.Background(), &domain.LoginRequest{PhoneNumber: testPhone})

	if res.Success || res.Error.Code != domain.CodeSMSFailed {
		t.Fatalf("expected SMS_FAILED, got %+v", res)
	}
	if commits != 0 {
		t.Error("failed dispatch must not advance rate counters")
	}
	if voided != "otp-1" {
		t.Errorf("undelivered code %q was not voided", voided)
	}
}

func TestRequestLoginOTP_Locked(t *testing.T) {
	user := activeUser()
	user.OTPLockedUntil = timePtr(time.Now().Add(10 * time.Minute))

	userRepo := &mockUserRepo{
		findByPhoneFn: func(ctx context.Context, phone string) (*domain.User, error) { return user, nil },
	}

	issuer := NewOTPIssuer(userRepo, &mockOTPRepo{}, &mockSender{}, nil, testConfig())
	res := issuer.RequestLoginOTP(context.Background(), &domain.LoginRequest{PhoneNumber: testPhone})

	if res.Success || res.Error.Code != domain.CodeAccountLocked {
		t.Fatalf("expected ACCOUNT_LOCKED, got %+v", res)
	}
}

func TestRequestLoginOTP_UnknownUser(t *testing.T) {
	userRepo := &mockUserRepo{
		findByPhoneFn: func(ctx context.Context, phone string) (*domain.User, error) { return nil, nil },
	}

	issuer := NewOTPIssuer(userRepo, &mockOTPRepo{}, &mockSender{}, nil, testConfig())
	res := issuer.RequestLoginOTP(context.Background(), &domain.LoginRequest{PhoneNumber: testPhone})

	if res.Success || res.Error.Code != domain.CodeUserNotFound {
		t.Fatalf("expected USER_NOT_FOUND, got %+v", res)
	}
}

func TestRequestSignupOTP_ExistingVerifiedUser(t *testing.T) {
	userRepo := &mockUserRepo{
		findByPhoneFn: func(ctx context.Context, phone string) (*domain.User, error) {
			return activeUser(), nil
		},
	}

	issuer := NewOTPIssuer(userRepo, &mockOTPRepo{}, &mockSender{}, nil, testConfig())
	res := issuer.RequestSignupOTP(context.Background(), &domain.SignupRequest{
		PhoneNumber: testPhone,
		DeviceID:    "device-1",
	})

	if res.Success || res.Error.Code != domain.CodeUserExists {
		t.Fatalf("expected USER_EXISTS, got %+v", res)
	}
}

func TestRequestSignupOTP_CreatesPendingUser(t *testing.T) {
	var createdPhone string
	userRepo := &mockUserRepo{
		findByPhoneFn: func(ctx context.Context, phone string) (*domain.User, error) { return nil, nil },
		createFn: func(ctx context.Context, phone, deviceID string) (*domain.User, error) {
			createdPhone = phone
			return &domain.User{
				ID:          "user-new",
				PhoneNumber: phone,
				DeviceID:    deviceID,
				Status:      domain.StatusPendingVerification,
			}, nil
		},
	}
	otpRepo := &mockOTPRepo{
		upsertPendingFn: func(ctx context.Context, userID, phone, purpose, codeHash string, expiresAt time.Time, maxAttempts int) (*domain.OTP, error) {
			if purpose != domain.OTPPurposeSignup {
				t.Errorf("purpose = %q, want signup", purpose)
			}
			return &domain.OTP{ID: "otp-1"}, nil
		},
	}

	issuer := NewOTPIssuer(userRepo, otpRepo, &mockSender{}, nil, testConfig())
	res := issuer.RequestSignupOTP(context.Background(), &domain.SignupRequest{
		PhoneNumber: "+234 801 234 5678",
		DeviceID:    "device-1",
	})

	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	if createdPhone != testPhone {
		t.Errorf("created phone = %q, want normalized %q", createdPhone, testPhone)
	}
}

func TestRequestSignupOTP_InvalidPhone(t *testing.T) {
	issuer := NewOTPIssuer(&mockUserRepo{}, &mockOTPRepo{}, &mockSender{}, nil, testConfig())
	res := issuer.RequestSignupOTP(context.Background(), &domain.SignupRequest{
		PhoneNumber: "12345",
		DeviceID:    "device-1",
	})

	if res.Success || res.Error.Code != domain.CodeValidationError {
		t.Fatalf("expected VALIDATION_ERROR, got %+v", res)
	}
}

func TestGenerateCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		code, err := generateCode(6)
		if err != nil {
			t.Fatal(err)
		}
		if len(code) != 6 {
			t.Fatalf("code %q has wrong length", code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("code %q contains non-digit", code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Error("codes do not vary")
	}
}
