package mailer

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/bitfantasy/backoffice/internal/config"
)

func TestNewRequiresCredentials(t *testing.T) {
	if m := New(config.MailConfig{GmailUser: "ops@factory.pk"}); m != nil {
		t.Fatalf("mailer without app password should be nil")
	}
	m := New(config.MailConfig{GmailUser: "ops@factory.pk", GmailAppPassword: "secret"})
	if m == nil {
		t.Fatalf("expected mailer")
	}
	if m.dialer.Host != "smtp.gmail.com" || m.dialer.Port != 587 {
		t.Fatalf("unexpected dialer %s:%d", m.dialer.Host, m.dialer.Port)
	}
}

func TestSendValidation(t *testing.T) {
	m := New(config.MailConfig{GmailUser: "ops@factory.pk", GmailAppPassword: "secret"})
	if err := m.Send(context.Background(), Message{Subject: "x"}); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Send(ctx, Message{To: []string{"a@factory.pk"}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSendHonoursDeadlineOnStalledServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("no loopback listener: %v", err)
	}
	conns := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			conns <- c
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		select {
		case c := <-conns:
			c.Close()
		default:
		}
	})

	m := New(config.MailConfig{
		GmailUser:        "ops@factory.pk",
		GmailAppPassword: "secret",
		Host:             "127.0.0.1",
		Port:             ln.Addr().(*net.TCPAddr).Port,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = m.Send(ctx, Message{To: []string{"a@factory.pk"}, Subject: "x", Text: "y"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Send blocked for %s past its deadline", elapsed)
	}
}
