package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Mailer hands a rendered notification to the outbound email system.
// Rendering templates into final HTML and the SMTP leg both live on
// the other side of this interface.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// HTTPMailer posts the email as JSON to a mail-relay endpoint.
type HTTPMailer struct {
	relayURL string
	from     string
	client   *http.Client
}

func NewHTTPMailer(relayURL, from string) *HTTPMailer {
	return &HTTPMailer{
		relayURL: relayURL,
		from:     from,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type mailPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (m *HTTPMailer) Send(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(mailPayload{From: m.from, To: to, Subject: subject, Body: body})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.relayURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("mail relay returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// NoopMailer is used when no relay is configured; sends are logged and
// dropped.
type NoopMailer struct{}

func (NoopMailer) Send(ctx context.Context, to, subject, body string) error {
	_ = ctx
	_ = body
	log.Printf("[Mail] no relay configured, dropping mail to %s (%q)", to, subject)
	return nil
}
