package domain

import "time"

// Web link types
const (
	WebLinkTypeJourney   = "journey"
	WebLinkTypeEmergency = "emergency"
)

// WebLinkAccess is a single-use access credential scoped to one
// journey (and optionally one emergency). The token is the sole
// authorization artifact for the public status page.
type WebLinkAccess struct {
	ID          string     `json:"id"`
	JourneyID   string     `json:"journey_id"`
	EmergencyID *string    `json:"emergency_id,omitempty"`
	Token       string     `json:"web_link_token"`
	LinkType    string     `json:"web_link_type"`
	AccessedAt  *time.Time `json:"accessed_at,omitempty"`
	IPAddress   *string    `json:"ip_address,omitempty"`
	UserAgent   *string    `json:"user_agent,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
