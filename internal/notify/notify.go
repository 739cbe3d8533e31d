// Package notify delivers operational alerts to administrators.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Alerter sends an out-of-band alert about a failure that exhausted its
// retries. Delivery is best-effort; callers log and move on when it errors.
type Alerter interface {
	SendAdminAlert(ctx context.Context, subject, message string) error
}

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// EmailAlerter delivers alerts over SMTP.
type EmailAlerter struct {
	cfg EmailConfig
}

func NewEmailAlerter(cfg EmailConfig) *EmailAlerter {
	return &EmailAlerter{cfg: cfg}
}

func (a *EmailAlerter) SendAdminAlert(ctx context.Context, subject, message string) error {
	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", a.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", a.cfg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(message)
	b.WriteString("\r\n")

	var auth smtp.Auth
	if a.cfg.Username != "" {
		auth = smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, a.cfg.From, []string{a.cfg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("send admin alert: %w", err)
	}
	return nil
}

// LogAlerter writes alerts to the log. It stands in when SMTP is not
// configured, typically in development.
type LogAlerter struct {
	log *slog.Logger
}

func NewLogAlerter(log *slog.Logger) *LogAlerter {
	return &LogAlerter{log: log}
}

func (a *LogAlerter) SendAdminAlert(ctx context.Context, subject, message string) error {
	a.log.Warn("admin alert", "subject", subject, "message", message)
	return nil
}
