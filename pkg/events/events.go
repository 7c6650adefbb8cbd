package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/safecircle/safecircle-backend/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	// Verification events
	OTPIssued   = "otp.issued"
	OTPVerified = "otp.verified"
	OTPLocked   = "otp.locked"

	// Journey events
	JourneyStarted = "journey.started"
	JourneyEnded   = "journey.ended"

	// Emergency events
	EmergencyCreated = "emergency.created"

	// Alert events
	AlertDispatched = "alert.dispatched"
)

// Event payloads
type OTPIssuedEvent struct {
	UserID  string    `json:"user_id"`
	Purpose string    `json:"purpose"`
	Phone   string    `json:"phone"` // masked
	At      time.Time `json:"at"`
}

type OTPVerifiedEvent struct {
	UserID string    `json:"user_id"`
	Phone  string    `json:"phone"` // masked
	At     time.Time `json:"at"`
}

type OTPLockedEvent struct {
	UserID      string    `json:"user_id"`
	LockedUntil time.Time `json:"locked_until"`
}

type JourneyStartedEvent struct {
	JourneyID   string    `json:"journey_id"`
	UserID      string    `json:"user_id"`
	Destination string    `json:"destination"`
	StartedAt   time.Time `json:"started_at"`
}

type JourneyEndedEvent struct {
	JourneyID string    `json:"journey_id"`
	UserID    string    `json:"user_id"`
	EndedAt   time.Time `json:"ended_at"`
}

type EmergencyCreatedEvent struct {
	EmergencyID string    `json:"emergency_id"`
	JourneyID   string    `json:"journey_id"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type AlertDispatchedEvent struct {
	JourneyID   string    `json:"journey_id"`
	EmergencyID *string   `json:"emergency_id,omitempty"`
	UserID      string    `json:"user_id"`
	MessageType string    `json:"message_type"`
	SentCount   int       `json:"sent_count"`
	TotalCount  int       `json:"total_count"`
	At          time.Time `json:"at"`
}
