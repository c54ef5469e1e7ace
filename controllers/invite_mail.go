package controllers

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"toolhub/config"
	"toolhub/logging"
)

type InviteMailer interface {
	SendInvite(ctx context.Context, to, link string, expiresAt time.Time) error
}

// SMTPMailer sends invite links over SMTP with PLAIN auth. When SMTP is not
// configured it logs the link instead, which is what local setups rely on.
type SMTPMailer struct {
	cfg  config.SMTPConfig
	log  logging.Logger
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg config.SMTPConfig, log logging.Logger) *SMTPMailer {
	if log == nil {
		log = logging.Discard()
	}
	return &SMTPMailer{cfg: cfg, log: log, send: smtp.SendMail}
}

func (m *SMTPMailer) SendInvite(ctx context.Context, to, link string, expiresAt time.Time) error {
	if !m.cfg.Enabled() {
		m.log.Info(ctx, "smtp not configured, invite link logged only", "email", to, "link", link, "expires_at", expiresAt)
		return nil
	}

	subject := m.cfg.AppName + " invitation"
	msg := inviteMessage(m.cfg.AppName, m.cfg.Sender(), to, subject, link, expiresAt)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := m.send(m.cfg.Host+":"+m.cfg.Port, auth, m.cfg.Sender(), []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send invite to %s: %w", to, err)
	}
	return nil
}

func inviteMessage(appName, from, to, subject, link string, expiresAt time.Time) string {
	body := fmt.Sprintf(`<div style="font-family:Arial,sans-serif;font-size:14px;color:#222">
  <p>Hello,</p>
  <p>You have been invited to join <b>%s</b>, the community tool library. Open the link below to create your passkey and sign in:</p>
  <p><a href="%s">%s</a></p>
  <p>The invitation expires on %s.</p>
  <hr/>
  <p style="color:#666">If you did not expect this email you can ignore it.</p>
</div>
`, appName, link, link, expiresAt.UTC().Format("2006-01-02 15:04 MST"))

	headers := []string{
		fmt.Sprintf("From: %s <%s>", appName, from),
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}
	return strings.Join(headers, "\r\n") + "\r\n\r\n" + body
}
