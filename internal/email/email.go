package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/bitcoinsovereign/academy/internal/config"
)

// Service sends transactional email through the Resend HTTP API.
type Service struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	from       string
	baseURL    string
}

// NewService creates the email service from configuration. With no API key
// configured the service logs the link instead of sending, which is what
// local development wants.
func NewService(cfg *config.Config) *Service {
	return &Service{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiURL:     "https://api.resend.com/emails",
		apiKey:     cfg.Email.APIKey,
		from:       cfg.Email.From,
		baseURL:    cfg.BaseURL,
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// SendMagicLinkEmail delivers the sign-in link for the given token.
func (s *Service) SendMagicLinkEmail(email, token string, expiresIn time.Duration) error {
	link := fmt.Sprintf("%s/auth/verify?token=%s", s.baseURL, url.QueryEscape(token))
	minutes := int(expiresIn.Minutes())

	if s.apiKey == "" {
		log.Printf("[EMAIL] No API key configured, magic link for %s: %s", email, link)
		return nil
	}

	payload := sendRequest{
		From:    s.from,
		To:      []string{email},
		Subject: "Your sign-in link for Bitcoin Sovereign Academy",
		HTML: fmt.Sprintf(
			`<p>Click the link below to sign in. It expires in %d minutes and can only be used once.</p>`+
				`<p><a href="%s">Sign in to Bitcoin Sovereign Academy</a></p>`+
				`<p>If you did not request this, you can safely ignore this email.</p>`,
			minutes, link,
		),
		Text: fmt.Sprintf(
			"Sign in to Bitcoin Sovereign Academy:\n\n%s\n\nThis link expires in %d minutes and can only be used once.\nIf you did not request it, ignore this email.",
			link, minutes,
		),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode email: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email API returned status %d", resp.StatusCode)
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}

	log.Printf("[EMAIL] Magic link sent to %s (id=%s)", email, out.ID)
	return nil
}
