package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yeremiapane/restaurant-feedback/config"
	"gopkg.in/gomail.v2"
)

const RelayTokenHeader = "X-Relay-Token"

type EmailMessage struct {
	To      string `json:"to" binding:"required,email"`
	Subject string `json:"subject" binding:"required"`
	Text    string `json:"text" binding:"required"`
}

// Mailer delivers one plain-text email.
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// CredentialsEmail is sent to a new restaurant owner.
func CredentialsEmail(email, password string) EmailMessage {
	return EmailMessage{
		To:      email,
		Subject: "Your Restaurant Login Credentials",
		Text: fmt.Sprintf("Welcome to our platform!\n\nYour login credentials:\nEmail: %s\nPassword: %s\n\n"+
			"Please change your password after logging in.", email, password),
	}
}

// RelayMailer posts {to, subject, text} to the email relay endpoint.
type RelayMailer struct {
	url        string
	token      string
	httpClient *http.Client
}

func NewRelayMailer(url, token string) *RelayMailer {
	return &RelayMailer{
		url:   url,
		token: token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (m *RelayMailer) Send(ctx context.Context, msg EmailMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set(RelayTokenHeader, m.token)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: email relay unreachable: %v", ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: email relay returned %d: %s", ErrExternalService, resp.StatusCode, string(respBody))
	}
	return nil
}

// SMTPMailer is what the relay endpoint itself sends with.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   from,
	}
}

func (m *SMTPMailer) Send(_ context.Context, msg EmailMessage) error {
	message := gomail.NewMessage()
	message.SetHeader("From", m.from)
	message.SetHeader("To", msg.To)
	message.SetHeader("Subject", msg.Subject)
	message.SetBody("text/plain", msg.Text)

	if err := m.dialer.DialAndSend(message); err != nil {
		return fmt.Errorf("%w: smtp: %v", ErrExternalService, err)
	}
	return nil
}
