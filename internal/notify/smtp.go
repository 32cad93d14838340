package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/dccollins/pet-chip-reader/internal/model"
)

// SMTPConfig holds mail transport settings.
type SMTPConfig struct {
	Host    string
	From    string
	User    string
	Pass    string
	Port    int
	Timeout time.Duration
}

// SMTPNotifier sends notification items over SMTP with STARTTLS. It
// implements the delivery pipeline's Transport interface.
type SMTPNotifier struct {
	cfg SMTPConfig
}

// NewSMTPNotifier creates the transport.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPNotifier{cfg: cfg}, nil
}

// Send delivers the item's payload to its destination address. The whole
// exchange is bounded by the configured timeout and the context deadline.
func (n *SMTPNotifier) Send(ctx context.Context, item *model.DeliveryItem) error {
	deadline := time.Now().Add(n.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	addr := net.JoinHostPort(n.cfg.Host, fmt.Sprintf("%d", n.cfg.Port))
	conn, err := net.DialTimeout("tcp", addr, time.Until(deadline))
	if err != nil {
		return fmt.Errorf("failed to connect to smtp server: %w", err)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to set smtp deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to start smtp session: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("starttls failed: %w", err)
		}
	}

	if n.cfg.User != "" {
		auth := smtp.PlainAuth("", n.cfg.User, n.cfg.Pass, n.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}

	if err := client.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from failed: %w", err)
	}
	if err := client.Rcpt(item.Destination); err != nil {
		return fmt.Errorf("smtp rcpt failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data failed: %w", err)
	}
	if _, err := w.Write(BuildMessage(n.cfg.From, item.Destination, item.Payload)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	return client.Quit()
}

// BuildMessage renders the RFC 5322 message. The subject stays empty so
// SMS email gateways forward only the body.
func BuildMessage(from, to, body string) []byte {
	return []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: \r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from, to, body))
}
