package mail

import (
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"dauth-service/internal/config"
	"dauth-service/internal/util"
)

// Mailer delivers transactional mail. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

// SMTPMailer sends over plain SMTP with AUTH when credentials are
// configured. STARTTLS negotiation is handled by the smtp package when the
// server offers it.
type SMTPMailer struct {
	host string
	port int
	auth smtp.Auth
	from string
}

func NewSMTPMailer(cfg *config.Config) *SMTPMailer {
	var auth smtp.Auth
	if cfg.SMTP.Username != "" {
		auth = smtp.PlainAuth("", cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Host)
	}
	return &SMTPMailer{
		host: cfg.SMTP.Host,
		port: cfg.SMTP.Port,
		auth: auth,
		from: cfg.SMTP.From,
	}
}

func (m *SMTPMailer) Send(to, subject, htmlBody string) error {
	msg := buildMessage(m.from, to, subject, htmlBody)

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	if err := smtp.SendMail(addr, m.auth, m.from, []string{to}, msg); err != nil {
		util.Error("Failed to send mail",
			zap.String("subject", subject),
			zap.Error(err))
		return fmt.Errorf("failed to send mail: %w", err)
	}

	util.Info("Mail sent", zap.String("subject", subject))
	return nil
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}
