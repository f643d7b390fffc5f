package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const smsTimeout = 15 * time.Second

// SMSSender posts messages to an HTTP SMS gateway. It never logs the message text.
type SMSSender struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

func NewSMSSender(apiKey, baseURL, sender string) *SMSSender {
	return &SMSSender{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: smsTimeout},
	}
}

type smsPayload struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Text string `json:"text"`
}

func (s *SMSSender) Send(ctx context.Context, n Notification) error {
	if s.APIKey == "" || s.BaseURL == "" {
		return fmt.Errorf("%w: sms gateway not configured", ErrDeliveryFailure)
	}
	raw, err := json.Marshal(smsPayload{From: s.Sender, To: n.To, Text: n.Text()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	if n.ID != "" {
		req.Header.Set("Idempotency-Key", n.ID)
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: sms: %v", ErrDeliveryFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// The gateway may echo the message text, so the body is discarded.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: sms: status=%d", ErrDeliveryFailure, resp.StatusCode)
	}
	return nil
}
