package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/warp/commerce-engine/logging"
)

// Message is one outgoing email.
type Message struct {
	To      []string
	Cc      []string
	Subject string
	Body    string
}

// Mailer delivers messages. Send may be retried, so a delivery that failed
// half way can be repeated.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// =============================================================================
// LOG MAILER
// =============================================================================

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, msg Message) error {
	logging.Info(ctx).
		Strs("to", msg.To).
		Strs("cc", msg.Cc).
		Str("subject", msg.Subject).
		Str("body", msg.Body).
		Msg("mail")
	return nil
}

// =============================================================================
// SMTP MAILER
// =============================================================================

type SMTPMailer struct {
	Addr string // host:port
	From string
	Auth smtp.Auth // nil for unauthenticated relays
}

func NewSMTPMailer(addr, from, username, password string) *SMTPMailer {
	m := &SMTPMailer{Addr: addr, From: from}
	if username != "" {
		host := addr
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			host = addr[:i]
		}
		m.Auth = smtp.PlainAuth("", username, password, host)
	}
	return m
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("mail %q has no recipients", msg.Subject)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	if len(msg.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", strings.Join(msg.Cc, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))

	recipients := append(append([]string{}, msg.To...), msg.Cc...)
	if err := smtp.SendMail(m.Addr, m.Auth, m.From, recipients, []byte(b.String())); err != nil {
		return fmt.Errorf("failed to send mail %q: %w", msg.Subject, err)
	}
	return nil
}

// NewMailer sends over SMTP when addr is set and logs messages otherwise.
func NewMailer(addr, from, username, password string) Mailer {
	if addr == "" {
		return LogMailer{}
	}
	return NewSMTPMailer(addr, from, username, password)
}
