// Package mail sends customer-facing notification email over SMTP.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/resolvai/resolvai/pkg/protocol"
)

// Config holds SMTP settings. An empty Host disables sending.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends mail through a plain SMTP relay.
type SMTPMailer struct {
	cfg  Config
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New creates a mailer from config.
func New(cfg Config) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

// TicketResolved emails the customer that their ticket was resolved.
func (m *SMTPMailer) TicketResolved(_ context.Context, customer *protocol.User, t *protocol.Ticket) error {
	subject := fmt.Sprintf("Ticket %s Resolved", t.ID)
	body := fmt.Sprintf(
		"Hello %s,\n\nYour ticket %q has been marked as resolved.\n\nThanks for using ResolvAI!",
		customer.Name, t.Subject)
	return m.deliver(customer.Email, subject, body)
}

func (m *SMTPMailer) deliver(to, subject, body string) error {
	if m.cfg.Host == "" {
		return nil
	}

	msg := buildMessage(m.cfg.From, to, subject, body)
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var a smtp.Auth
	if m.cfg.Username != "" {
		a = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if err := m.send(addr, a, m.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("mail: send to %s: %w", to, err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
