// Package mail sends notification emails over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/inmobiliaria/backend/internal/application/notification"
	"github.com/inmobiliaria/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer delivers HTML messages through an SMTP relay
type SMTPMailer struct {
	addr   string
	auth   smtp.Auth
	from   netmail.Address
	send   sendFunc
	logger *zap.Logger
}

// NewSMTPMailer creates a mailer from the mail config section
func NewSMTPMailer(cfg config.MailConfig, logger *zap.Logger) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("mail: host is required")
	}
	from, err := netmail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("mail: invalid from address: %w", err)
	}
	if cfg.FromName != "" {
		from.Name = cfg.FromName
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &SMTPMailer{
		addr:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from:   *from,
		send:   smtp.SendMail,
		logger: logger,
	}
	if cfg.Username != "" && cfg.Password != "" {
		m.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return m, nil
}

// Send writes the message to the relay. net/smtp has no context support, so ctx is
// only checked before dialing.
func (m *SMTPMailer) Send(ctx context.Context, msg notification.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(msg.To) == 0 {
		return errors.New("mail: no recipients")
	}
	for _, to := range msg.To {
		if _, err := netmail.ParseAddress(to); err != nil {
			return fmt.Errorf("mail: invalid recipient %q: %w", to, err)
		}
	}

	if err := m.send(m.addr, m.auth, m.from.Address, msg.To, m.build(msg)); err != nil {
		m.logger.Error("SMTP send error", zap.String("addr", m.addr), zap.Error(err))
		return fmt.Errorf("mail: send: %w", err)
	}
	m.logger.Debug("Email sent", zap.Strings("to", msg.To), zap.String("addr", m.addr))
	return nil
}

func (m *SMTPMailer) build(msg notification.Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from.String())
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.HTMLBody)
	return []byte(b.String())
}

var _ notification.Mailer = (*SMTPMailer)(nil)
