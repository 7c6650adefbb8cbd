package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type User struct {
	ID                     string     `json:"id"`
	PhoneNumber            string     `json:"phone_number"`
	PhoneVerified          bool       `json:"phone_verified"`
	FirstName              string     `json:"first_name,omitempty"`
	Email                  string     `json:"email,omitempty"`
	UserType               string     `json:"user_type"`
	SubscriptionTier       string     `json:"subscription_tier"`
	SubscriptionExpiresAt  *time.Time `json:"subscription_expires_at,omitempty"`
	DeviceID               string     `json:"-"`
	Status                 string     `json:"status"`
	OTPLockedUntil         *time.Time `json:"-"`
	FailedAttemptCount     int        `json:"-"`
	LastOTPRequestedAt     *time.Time `json:"-"`
	OTPHourWindowStartedAt *time.Time `json:"-"`
	OTPDayWindowStartedAt  *time.Time `json:"-"`
	OTPRequestsLastHour    int        `json:"-"`
	OTPRequestsToday       int        `json:"-"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// Account statuses
const (
	StatusPendingVerification = "pending_verification"
	StatusActive              = "active"
	StatusInactive            = "inactive"
	StatusSuspended           = "suspended"
)

// User types
const (
	UserTypeIndividual = "individual"
	UserTypeEmployee   = "employee"
	UserTypeAdmin      = "admin"
)

// Subscription tiers
const (
	TierFree      = "free"
	TierFamily    = "family"
	TierCorporate = "corporate"
)

type SignupRequest struct {
	PhoneNumber string `json:"phone_number"`
	DeviceID    string `json:"device_id"`
}

type LoginRequest struct {
	PhoneNumber string `json:"phone_number"`
	DeviceID    string `json:"device_id,omitempty"`
}

type VerifyOTPRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"otp"`
}

// SessionData is the success payload of a completed verification.
type SessionData struct {
	AccessToken    string    `json:"access_token"`
	UserID         string    `json:"user_id"`
	SessionExpires time.Time `json:"session_expires"`
}

// Phone numbers are stored in the 234XXXXXXXXXX form.
var phoneRegex = regexp.MustCompile(`^234\d{10}$`)

func IsValidPhone(phone string) bool {
	return phoneRegex.MatchString(phone)
}

var codeRegex = regexp.MustCompile(`^\d{6}$`)

func IsValidOTPCode(code string) bool {
	return codeRegex.MatchString(code)
}

func (r *SignupRequest) Normalize() {
	r.PhoneNumber = NormalizePhone(r.PhoneNumber)
	r.DeviceID = strings.TrimSpace(r.DeviceID)
}

func (r *SignupRequest) Validate() error {
	if r.PhoneNumber == "" {
		return fmt.Errorf("phone_number is required")
	}
	if !IsValidPhone(r.PhoneNumber) {
		return fmt.Errorf("invalid phone format")
	}
	if r.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	return nil
}

func (r *LoginRequest) Normalize() {
	r.PhoneNumber = NormalizePhone(r.PhoneNumber)
	r.DeviceID = strings.TrimSpace(r.DeviceID)
}

func (r *LoginRequest) Validate() error {
	if r.PhoneNumber == "" {
		return fmt.Errorf("phone_number is required")
	}
	if !IsValidPhone(r.PhoneNumber) {
		return fmt.Errorf("invalid phone format")
	}
	return nil
}

func (r *VerifyOTPRequest) Normalize() {
	r.PhoneNumber = NormalizePhone(r.PhoneNumber)
	r.Code = strings.TrimSpace(r.Code)
}

func (r *VerifyOTPRequest) Validate() error {
	if !IsValidPhone(r.PhoneNumber) {
		return fmt.Errorf("invalid phone format")
	}
	if !IsValidOTPCode(r.Code) {
		return fmt.Errorf("invalid otp format")
	}
	return nil
}

// NormalizePhone strips everything but digits (and a leading +, which
// is then dropped) so "+234 801 234 5678" becomes "2348012345678".
func NormalizePhone(phone string) string {
	cleaned := strings.TrimSpace(phone)
	var b strings.Builder
	for _, r := range cleaned {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MaskPhone hides the middle digits for log output.
func MaskPhone(phone string) string {
	if len(phone) < 7 {
		return "***"
	}
	return phone[:5] + "****" + phone[len(phone)-3:]
}
