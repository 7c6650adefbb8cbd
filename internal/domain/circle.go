package domain

import (
	"fmt"
	"strings"
	"time"
)

type CircleMember struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	ContactName         string     `json:"contact_name"`
	ContactPhone        string     `json:"contact_phone"`
	ContactEmail        string     `json:"contact_email,omitempty"`
	Relationship        string     `json:"relationship,omitempty"`
	IsVerified          bool       `json:"is_verified"`
	IsActive            bool       `json:"is_active"`
	IsPrimary           bool       `json:"is_primary"`
	ReceiveSMS          bool       `json:"receive_sms"`
	ReceiveEmail        bool       `json:"receive_email"`
	VerificationSentAt  *time.Time `json:"verification_sent_at,omitempty"`
	LastAlertAt         *time.Time `json:"last_alert_at,omitempty"`
	TotalAlertsReceived int        `json:"total_alerts_received"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type CreateCircleMemberRequest struct {
	ContactName  string `json:"contact_name"`
	ContactPhone string `json:"contact_phone"`
	ContactEmail string `json:"contact_email,omitempty"`
	Relationship string `json:"relationship"`
}

func (r *CreateCircleMemberRequest) Normalize() {
	r.ContactName = strings.TrimSpace(r.ContactName)
	r.ContactPhone = NormalizePhone(r.ContactPhone)
	r.ContactEmail = strings.ToLower(strings.TrimSpace(r.ContactEmail))
	r.Relationship = strings.TrimSpace(r.Relationship)
}

func (r *CreateCircleMemberRequest) Validate() error {
	if len(r.ContactName) < 2 || len(r.ContactName) > 200 {
		return fmt.Errorf("contact_name must be 2-200 characters")
	}
	if !IsValidPhone(r.ContactPhone) {
		return fmt.Errorf("invalid contact_phone format")
	}
	if len(r.Relationship) < 2 || len(r.Relationship) > 20 {
		return fmt.Errorf("relationship must be 2-20 characters")
	}
	return nil
}
