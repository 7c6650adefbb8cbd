package sms

import (
	"context"
	"fmt"

	"github.com/safecircle/safecircle-backend/pkg/logger"
)

// DevSender logs messages instead of sending them.
type DevSender struct{}

func NewDevSender() *DevSender {
	return &DevSender{}
}

func (d *DevSender) Send(ctx context.Context, phoneNumber, text string) (SendResult, error) {
	logger.InfoContext(ctx, "[DEV SMS]",
		"to", phoneNumber,
		"text", text,
	)

	fmt.Printf("\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"SMS (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s\n"+
		"%s\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		phoneNumber, text)

	return SendResult{Success: true, ProviderMessageID: "dev", ProviderStatus: "ok"}, nil
}
