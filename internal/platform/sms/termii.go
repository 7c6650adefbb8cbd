package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TermiiClient talks to the Termii SMS API.
type TermiiClient struct {
	baseURL  string
	apiKey   string
	senderID string
	client   *http.Client
}

func NewTermiiClient(baseURL, apiKey, senderID string) *TermiiClient {
	return &TermiiClient{
		baseURL:  baseURL,
		apiKey:   apiKey,
		senderID: senderID,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type termiiRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	SMS     string `json:"sms"`
	Type    string `json:"type"`
	Channel string `json:"channel"`
	APIKey  string `json:"api_key"`
}

type termiiResponse struct {
	MessageID string `json:"message_id"`
	Message   string `json:"message"`
	Code      string `json:"code"`
}

func (c *TermiiClient) Send(ctx context.Context, phoneNumber, text string) (SendResult, error) {
	payload := termiiRequest{
		To:      phoneNumber,
		From:    c.senderID,
		SMS:     text,
		Type:    "plain",
		Channel: "dnd",
		APIKey:  c.apiKey,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/sms/send", bytes.NewReader(body))
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("sms request failed: %w", err)
	}
	defer resp.Body.Close()

	var tr termiiResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		// Provider replied with something unparseable; treat by status.
		tr = termiiResponse{}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return SendResult{
			Success:        false,
			ProviderStatus: fmt.Sprintf("http_%d", resp.StatusCode),
		}, nil
	}

	return SendResult{
		Success:           true,
		ProviderMessageID: tr.MessageID,
		ProviderStatus:    tr.Code,
	}, nil
}
