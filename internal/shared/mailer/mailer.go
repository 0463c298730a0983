// Package mailer sends multipart (plain + HTML) mail over SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfantasy/backoffice/internal/config"
	"gopkg.in/gomail.v2"
)

var ErrNoRecipients = errors.New("no recipients")

// Message outgoing mail
type Message struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Mailer Gmail SMTP sender
type Mailer struct {
	from   string
	dialer *gomail.Dialer
}

// New nil when Gmail credentials are absent
func New(cfg config.MailConfig) *Mailer {
	if !cfg.Enabled() {
		return nil
	}
	host, port := cfg.Host, cfg.Port
	if host == "" {
		host = "smtp.gmail.com"
	}
	if port == 0 {
		port = 587
	}
	return &Mailer{
		from:   cfg.GmailUser,
		dialer: gomail.NewDialer(host, port, cfg.GmailUser, cfg.GmailAppPassword),
	}
}

// Send dials once per message and returns when ctx is done even if the SMTP
// server stalls; the abandoned exchange finishes or fails in the background.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To...)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		gm.AddAlternative("text/html", msg.HTML)
	}

	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(gm)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}
