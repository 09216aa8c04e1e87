package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// DeliveryError represents a non-successful gateway response.
type DeliveryError struct {
	Channel string
	Status  int
}

func (e *DeliveryError) Error() string {
	return e.Channel + " gateway responded with status " + http.StatusText(e.Status)
}

type webhookPayload struct {
	To             string `json:"to"`
	OrganizationID string `json:"organization_id"`
	MemberID       string `json:"member_id"`
	Kind           Kind   `json:"kind"`
	DaysUntil      int    `json:"days_until_expiry"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
}

// WebhookChannel posts notifications to an HTTP gateway (SMS, push or messaging providers).
type WebhookChannel struct {
	name    string
	client  *http.Client
	url     string
	token   string
	address func(Recipient) string
}

// NewSMSChannel targets the member phone number.
func NewSMSChannel(endpoint, token string, timeout time.Duration) *WebhookChannel {
	return newWebhookChannel("sms", endpoint, token, timeout, func(r Recipient) string { return r.Phone })
}

// NewPushChannel targets the member device token.
func NewPushChannel(endpoint, token string, timeout time.Duration) *WebhookChannel {
	return newWebhookChannel("push", endpoint, token, timeout, func(r Recipient) string { return r.PushToken })
}

func newWebhookChannel(name, endpoint, token string, timeout time.Duration, address func(Recipient) string) *WebhookChannel {
	return &WebhookChannel{
		name:    name,
		client:  &http.Client{Timeout: timeout},
		url:     strings.TrimRight(endpoint, "/"),
		token:   token,
		address: address,
	}
}

// Name implements Channel.
func (w *WebhookChannel) Name() string { return w.name }

// Reaches implements Channel.
func (w *WebhookChannel) Reaches(r Recipient) bool {
	return w.url != "" && strings.TrimSpace(w.address(r)) != ""
}

// SendExpiryReminder implements Channel.
func (w *WebhookChannel) SendExpiryReminder(ctx context.Context, r Recipient, m Message) error {
	body, err := json.Marshal(webhookPayload{
		To:             w.address(r),
		OrganizationID: r.OrganizationID,
		MemberID:       r.MemberID,
		Kind:           m.Kind,
		DaysUntil:      m.DaysUntilExpiry,
		Subject:        m.Subject,
		Body:           m.Body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &DeliveryError{Channel: w.name, Status: resp.StatusCode}
	}
	return nil
}
