package domain

import (
	"fmt"
	"strings"
	"time"
)

// Journey statuses
const (
	JourneyActive        = "active"
	JourneyCompleted     = "completed"
	JourneyEmergency     = "emergency"
	JourneyCancelled     = "cancelled"
	JourneyMissedCheckin = "missed_checkin"
)

type Journey struct {
	ID                string     `json:"journey_id"`
	UserID            string     `json:"user_id"`
	StartLocationName string     `json:"start_location_name"`
	DestinationName   string     `json:"destination_name"`
	Status            string     `json:"status"`
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type Emergency struct {
	ID         string     `json:"id"`
	JourneyID  string     `json:"journey_id"`
	UserID     string     `json:"user_id"`
	Reason     string     `json:"reason,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type CreateJourneyRequest struct {
	StartLocationName string `json:"start_location_name"`
	DestinationName   string `json:"destination_name"`
}

func (r *CreateJourneyRequest) Normalize() {
	r.StartLocationName = strings.TrimSpace(r.StartLocationName)
	r.DestinationName = strings.TrimSpace(r.DestinationName)
}

func (r *CreateJourneyRequest) Validate() error {
	if r.StartLocationName == "" {
		return fmt.Errorf("start_location_name is required")
	}
	if r.DestinationName == "" {
		return fmt.Errorf("destination_name is required")
	}
	return nil
}

type CreateEmergencyRequest struct {
	JourneyID string `json:"journey_id"`
	Reason    string `json:"reason,omitempty"`
}

func (r *CreateEmergencyRequest) Validate() error {
	if r.JourneyID == "" {
		return fmt.Errorf("journey_id is required")
	}
	return nil
}
