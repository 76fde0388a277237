package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// HTTPSender posts messages to a JSON email API (Resend-compatible).
type HTTPSender struct {
	apiKey     string
	from       string
	endpoint   string
	httpClient *http.Client
}

func NewHTTPSender(apiKey, from, endpoint string) *HTTPSender {
	if endpoint == "" {
		endpoint = "https://api.resend.com/emails"
	}
	return &HTTPSender{
		apiKey:     apiKey,
		from:       from,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether the sender has credentials.
func (s *HTTPSender) Configured() bool {
	return s.apiKey != "" && s.from != ""
}

func (s *HTTPSender) Send(ctx context.Context, to, subject, html string) error {
	payload, err := json.Marshal(map[string]any{
		"from":    s.from,
		"to":      []string{to},
		"subject": subject,
		"html":    html,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Printf("[MAILER] Email API request failed: %v", err)
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		log.Printf("[MAILER] Email API returned status %d", resp.StatusCode)
		return fmt.Errorf("email API returned status %d", resp.StatusCode)
	}

	log.Printf("[MAILER] Email sent to %s", to)
	return nil
}
