package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg Config
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{cfg: cfg}
}

func (p *SMTPProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}

	// Servers without authentication (local relays, mailhog) reject AUTH.
	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}
	addr := net.JoinHostPort(p.cfg.Host, p.cfg.Port)

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n%s\r\n%s", p.cfg.From, to[0], subject, mime, htmlBody))

	return smtp.SendMail(addr, auth, p.cfg.From, to, msg)
}

func (p *SMTPProvider) SendReceipt(ctx context.Context, to string, data ReceiptEmail) error {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, "receipt_issued.html", data); err != nil {
		return fmt.Errorf("failed to render receipt email: %w", err)
	}

	subject := fmt.Sprintf("Official Receipt %s", data.ReceiptNumber)
	if data.OrganizationName != "" {
		subject = fmt.Sprintf("%s from %s", subject, data.OrganizationName)
	}

	return p.Send(ctx, []string{to}, subject, body.String())
}
