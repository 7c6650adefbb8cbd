package domain

import (
	"fmt"
	"time"
)

// Channels
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// Message types
const (
	MessageJourneyStart     = "journey_start"
	MessageJourneyEnd       = "journey_end"
	MessageEmergency        = "emergency"
	MessageMissedCheckin    = "missed_checkin"
	MessageVerification     = "verification"
	MessageCircleInvite     = "circle_invite"
	MessageExtensionGranted = "extension_granted"
)

// Delivery statuses. The dispatcher only writes sent/failed; the
// remaining states are reserved for provider callbacks.
const (
	DeliveryPending   = "pending"
	DeliverySent      = "sent"
	DeliveryFailed    = "failed"
	DeliveryDelivered = "delivered"
	DeliveryRead      = "read"
	DeliveryRejected  = "rejected"
)

var validMessageTypes = map[string]bool{
	MessageJourneyStart:     true,
	MessageJourneyEnd:       true,
	MessageEmergency:        true,
	MessageMissedCheckin:    true,
	MessageVerification:     true,
	MessageCircleInvite:     true,
	MessageExtensionGranted: true,
}

// AlertMessageType reports whether t may trigger a circle fan-out.
// Verification codes go to the principal, never to the circle.
func AlertMessageType(t string) bool {
	return validMessageTypes[t] && t != MessageVerification
}

// MessageLog is the append-only audit record of one delivery attempt.
// Rows are never mutated after insert.
type MessageLog struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	JourneyID         string     `json:"journey_id"`
	EmergencyID       *string    `json:"emergency_id,omitempty"`
	ToNumber          string     `json:"to_number"`
	ToName            string     `json:"to_name"`
	ChannelType       string     `json:"channel_type"`
	MessageType       string     `json:"message_type"`
	MessageText       string     `json:"message_text"`
	WebLink           string     `json:"web_link,omitempty"`
	WebLinkToken      string     `json:"-"`
	DeliveryStatus    string     `json:"delivery_status"`
	ProviderMessageID *string    `json:"provider_message_id,omitempty"`
	ProviderStatus    *string    `json:"provider_status,omitempty"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// MessageLogInsert is one row of the dispatcher's batched audit write.
type MessageLogInsert struct {
	JourneyID      string
	EmergencyID    *string
	ToNumber       string
	ToName         string
	ChannelType    string
	MessageType    string
	MessageText    string
	WebLink        string
	WebLinkToken   string
	DeliveryStatus string
	ProviderStatus *string
}

// RenderAlertMessage builds the per-recipient notification text.
func RenderAlertMessage(messageType, memberName, destinationName, webLink, userName string) string {
	if userName == "" {
		userName = "A SafeCircle user"
	}
	switch messageType {
	case MessageJourneyStart:
		return fmt.Sprintf("Hi %s, %s has started their journey to %s. You can track their safe progress here: %s", memberName, userName, destinationName, webLink)
	case MessageJourneyEnd:
		return fmt.Sprintf("Hi %s, %s has ended their journey at %s. View details: %s", memberName, userName, destinationName, webLink)
	case MessageCircleInvite:
		return fmt.Sprintf("Hi %s, %s has invited you to join their safety circle on SafeCircle. Accept invitation: %s", memberName, userName, webLink)
	case MessageEmergency:
		return fmt.Sprintf("Hi %s, %s has triggered an EMERGENCY alert. Please check their status immediately. Web access: %s", memberName, userName, webLink)
	case MessageMissedCheckin:
		return fmt.Sprintf("Hi %s, %s has missed a scheduled check-in. Please try to make contact. Web access: %s", memberName, userName, webLink)
	case MessageExtensionGranted:
		return fmt.Sprintf("Hi %s, your journey timer has been extended by 30 minutes as requested by your Circle. Update status: %s", userName, webLink)
	default:
		return "Hi, a SafeCircle user attempts to notify you of an event"
	}
}

// RenderVerificationMessage builds the OTP text sent to the principal.
func RenderVerificationMessage(code string, ttl time.Duration) string {
	return fmt.Sprintf("Your SafeCircle verification code is %s. Expires in %d minutes.", code, int(ttl.Minutes()))
}
