// Package mailer sends transactional email: magic links and invites.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
)

// Mailer sends a single plain-text email.
type Mailer interface {
	Send(ctx context.Context, to, subject, bodyText string) error
}

// LogMailer writes the email to the structured logger instead of sending
// it, used whenever no SMTP host is configured — the dev-mode posture of
// logging a generated secret and continuing rather than failing startup.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the email at info level and never fails.
func (m *LogMailer) Send(_ context.Context, to, subject, bodyText string) error {
	m.logger.Info("mail not sent: no SMTP configured, logging instead",
		"to", to, "subject", subject, "body", bodyText)
	return nil
}

// Healthy always reports true: there is no external dependency to fail.
func (m *LogMailer) Healthy() bool { return true }

// SMTPConfig holds the connection details for SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends mail over SMTP using net/smtp. The standard library is
// used deliberately here: no corpus package ships an SMTP client, and
// net/smtp's PlainAuth + SendMail cover this service's one-shot
// transactional-email need without pulling in a new dependency for a single
// leaf concern.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer creates an SMTPMailer from cfg.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send dials the configured SMTP server and sends a plain-text message.
func (m *SMTPMailer) Send(_ context.Context, to, subject, bodyText string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.cfg.From, to, subject, bodyText)

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("sending mail via smtp: %w", err)
	}
	return nil
}

// Healthy reports whether an SMTP host is configured. It does not dial the
// server on every health check; confirming the host is set is enough to
// distinguish a misconfiguration from a transient send failure, and avoids
// hammering the mail server from a liveness probe.
func (m *SMTPMailer) Healthy() bool { return m.cfg.Host != "" }
