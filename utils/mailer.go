package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"ledgemail/config"
)

// Email is one outbound message, already resolved to concrete recipients.
type Email struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Tags    map[string]string
}

// Mailer dispatches email through a provider and returns the provider's
// message id. Implementations are selected once at startup and injected;
// handlers never check which one they hold.
type Mailer interface {
	Send(ctx context.Context, email Email) (string, error)
	Name() string
}

// NewMailer picks the provider from configuration: resend, smtp, or the
// demo sender when email is disabled or no credentials are present.
func NewMailer(logger *log.Logger) Mailer {
	cfg := config.AppConfig

	if !cfg.EmailEnabled {
		logger.Println("email sending disabled, using demo mailer")
		return &DemoMailer{Logger: logger}
	}

	switch cfg.EmailProvider {
	case "smtp":
		if cfg.SMTPHost == "" {
			logger.Println("EMAIL_PROVIDER=smtp but SMTP_HOST missing, falling back to demo mailer")
			return &DemoMailer{Logger: logger}
		}
		port, err := strconv.Atoi(cfg.SMTPPort)
		if err != nil {
			port = 587
		}
		return &SMTPMailer{
			Dialer: gomail.NewDialer(cfg.SMTPHost, port, cfg.SMTPUsername, cfg.SMTPPassword),
			Logger: logger,
		}
	default:
		if cfg.ResendAPIKey == "" {
			logger.Println("EMAIL_ENABLED is true but RESEND_API_KEY is missing, falling back to demo mailer")
			return &DemoMailer{Logger: logger}
		}
		return &ResendMailer{
			APIKey: cfg.ResendAPIKey,
			Client: &http.Client{Timeout: 15 * time.Second},
			Logger: logger,
		}
	}
}

// ResendMailer sends through the Resend HTTP API.
type ResendMailer struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
	Logger  *log.Logger
}

type resendTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type resendRequest struct {
	From    string      `json:"from"`
	To      []string    `json:"to"`
	Subject string      `json:"subject"`
	HTML    string      `json:"html"`
	Tags    []resendTag `json:"tags,omitempty"`
}

type resendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (m *ResendMailer) Name() string { return "resend" }

func (m *ResendMailer) Send(ctx context.Context, email Email) (string, error) {
	payload := resendRequest{
		From:    email.From,
		To:      email.To,
		Subject: email.Subject,
		HTML:    email.HTML,
	}
	for name, value := range email.Tags {
		payload.Tags = append(payload.Tags, resendTag{Name: name, Value: value})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode resend payload: %w", err)
	}

	base := m.BaseURL
	if base == "" {
		base = "https://api.resend.com"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("resend request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var parsed resendResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("resend returned status %d with unreadable body", resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("resend returned status %d: %s", resp.StatusCode, parsed.Message)
	}

	return parsed.ID, nil
}

// SMTPMailer delivers through a plain SMTP relay. SMTP has no provider
// message id, so one is minted locally.
type SMTPMailer struct {
	Dialer *gomail.Dialer
	Logger *log.Logger
}

func (m *SMTPMailer) Name() string { return "smtp" }

func (m *SMTPMailer) Send(ctx context.Context, email Email) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", email.From)
	msg.SetHeader("To", email.To...)
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/html", email.HTML)

	if err := m.Dialer.DialAndSend(msg); err != nil {
		return "", fmt.Errorf("smtp send failed: %w", err)
	}

	return "smtp_" + uuid.New().String(), nil
}

// DemoMailer records the send in the log and returns a synthetic id.
// Used for local development and when no provider is configured.
type DemoMailer struct {
	Logger *log.Logger
}

func (m *DemoMailer) Name() string { return "demo" }

func (m *DemoMailer) Send(_ context.Context, email Email) (string, error) {
	if m.Logger != nil {
		m.Logger.Printf("[DEMO] would send %q to %d recipient(s)", email.Subject, len(email.To))
	}
	return "demo_" + uuid.New().String(), nil
}
