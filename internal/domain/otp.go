package domain

import "time"

// OTP purposes
const (
	OTPPurposeSignup = "signup"
	OTPPurposeLogin  = "login"
)

// OTP statuses. A row is pending until it is consumed, fails dispatch,
// or runs out of attempts; there is at most one pending row per
// (phone, purpose).
const (
	OTPStatusPending  = "pending"
	OTPStatusVerified = "verified"
	OTPStatusExpired  = "expired"
	OTPStatusFailed   = "failed"
)

type OTP struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	PhoneNumber   string     `json:"phone_number"`
	Purpose       string     `json:"type"`
	CodeHash      *string    `json:"-"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"max_attempts"`
	ExpiresAt     *time.Time `json:"expires_at"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
