package domain

import "time"

// ErrorCode is the fixed set of stable failure codes returned to
// callers. Handlers switch on these; nothing matches on message text.
type ErrorCode string

const (
	CodeValidationError          ErrorCode = "VALIDATION_ERROR"
	CodeUserNotFound             ErrorCode = "USER_NOT_FOUND"
	CodeUserExists               ErrorCode = "USER_EXISTS"
	CodeUserSuspended            ErrorCode = "USER_SUSPENDED"
	CodeAccountInactive          ErrorCode = "ACCOUNT_INACTIVE"
	CodePhoneUnverified          ErrorCode = "PHONE_UNVERIFIED"
	CodeAccountLocked            ErrorCode = "ACCOUNT_LOCKED"
	CodeOTPCooldown              ErrorCode = "OTP_COOLDOWN"
	CodeLimitExceeded            ErrorCode = "LIMIT_EXCEEDED"
	CodeSMSFailed                ErrorCode = "SMS_FAILED"
	CodeOTPExpired               ErrorCode = "OTP_EXPIRED"
	CodeInvalidOTP               ErrorCode = "INVALID_OTP"
	CodeExpiredOrInvalidOTP      ErrorCode = "EXPIRED_OR_INVALID_OTP"
	CodeJourneyNotFound          ErrorCode = "JOURNEY_NOT_FOUND"
	CodeEmergencyNotFound        ErrorCode = "EMERGENCY_NOT_FOUND"
	CodeEmergencyResolved        ErrorCode = "EMERGENCY_ALREADY_RESOLVED"
	CodeCircleMembersNotFound    ErrorCode = "CIRCLE_MEMBERS_NOT_FOUND"
	CodeWebLinkGenerationFailed  ErrorCode = "WEB_LINK_GENERATION_FAILED"
	CodeInvalidToken             ErrorCode = "INVALID_TOKEN"
	CodeNotFound                 ErrorCode = "NOT_FOUND"
	CodeRateLimitExceeded        ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeInternalError            ErrorCode = "INTERNAL_ERROR"
)

type ErrorInfo struct {
	Code    ErrorCode `json:"code"`
	Details string    `json:"details"`
}

// Metadata is attached to every envelope. Counts and the failed list
// are only populated by the alert dispatcher.
type Metadata struct {
	Timestamp   time.Time      `json:"timestamp"`
	PhoneNumber string         `json:"phone_number,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
	JourneyID   string         `json:"journey_id,omitempty"`
	EmergencyID string         `json:"emergency_id,omitempty"`
	SentCount   *int           `json:"sent_count,omitempty"`
	TotalCount  *int           `json:"total_count,omitempty"`
	Failed      []RecipientRef `json:"failed,omitempty"`
}

// RecipientRef identifies a circle member in dispatch metadata without
// exposing the member's credential token.
type RecipientRef struct {
	ContactName    string `json:"contact_name"`
	ContactPhone   string `json:"contact_phone"`
	CircleMemberID string `json:"circle_member_id"`
}

// Result is the tagged envelope every orchestration returns. Policy
// and not-found failures come back as Success=false with a stable
// code; they are never raw errors.
type Result struct {
	Success  bool       `json:"success"`
	Message  string     `json:"message"`
	Data     any        `json:"data,omitempty"`
	Error    *ErrorInfo `json:"error,omitempty"`
	Metadata Metadata   `json:"metadata"`
}

func OK(message string, data any, meta Metadata) *Result {
	meta.Timestamp = time.Now()
	return &Result{Success: true, Message: message, Data: data, Metadata: meta}
}

func Fail(code ErrorCode, message, details string, meta Metadata) *Result {
	meta.Timestamp = time.Now()
	if details == "" {
		details = message
	}
	return &Result{
		Success:  false,
		Message:  message,
		Error:    &ErrorInfo{Code: code, Details: details},
		Metadata: meta,
	}
}

// Partial marks a fan-out that reached some recipients but not all.
// No error object is attached; the metadata counts and failed list
// carry the detail, and the response stays a 200.
func Partial(message string, data any, meta Metadata) *Result {
	meta.Timestamp = time.Now()
	return &Result{Success: false, Message: message, Data: data, Metadata: meta}
}

func Internal(details string, meta Metadata) *Result {
	return Fail(CodeInternalError, "Internal server error", details, meta)
}
