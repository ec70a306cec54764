// Package mail sends transactional email. Delivery is best-effort: callers
// log failures and carry on.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"phonestore/internal/config"
)

type Sender interface {
	// Enabled reports whether Send can reach a transport at all.
	Enabled() bool
	Send(ctx context.Context, to, subject, body string) error
}

// New returns an SMTP sender, or a disabled one when SMTP is not configured.
func New(cfg config.SMTPConfig) Sender {
	if !cfg.Configured() {
		return Disabled{}
	}
	return &SMTP{cfg: cfg, dial: dialTLS}
}

type Disabled struct{}

func (Disabled) Enabled() bool { return false }
func (Disabled) Send(context.Context, string, string, string) error {
	return fmt.Errorf("mail: transport not configured")
}

// SMTP delivers over implicit TLS (port 465 style).
type SMTP struct {
	cfg  config.SMTPConfig
	dial func(ctx context.Context, addr, host string) (net.Conn, error)
}

func (s *SMTP) Enabled() bool { return true }

func dialTLS(ctx context.Context, addr, host string) (net.Conn, error) {
	d := &tls.Dialer{Config: &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}}
	return d.DialContext(ctx, "tcp", addr)
}

func (s *SMTP) Send(ctx context.Context, to, subject, body string) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := s.dial(ctx, addr, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("mail: dial %s: %w", addr, err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("mail: handshake: %w", err)
	}
	defer c.Close()

	if s.cfg.Password != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("mail: auth: %w", err)
		}
	}
	if err := c.Mail(s.cfg.User); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(message(s.cfg.User, to, subject, body)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func message(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
