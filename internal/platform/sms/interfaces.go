package sms

import "context"

// SendResult is what the provider acknowledged. Success means the
// message was accepted by the provider, not that the handset got it.
type SendResult struct {
	Success           bool
	ProviderMessageID string
	ProviderStatus    string
}

type Sender interface {
	Send(ctx context.Context, phoneNumber, text string) (SendResult, error)
}
