package notify

import (
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPSender delivers email through a plain SMTP relay.
type SMTPSender struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// Send implements EmailSender.
func (s *SMTPSender) Send(recipients []string, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}

	if err := smtp.SendMail(addr, auth, s.From, recipients, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send via %s: %w", addr, err)
	}
	return nil
}
