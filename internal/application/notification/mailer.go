// Package notification turns payment domain events into emails.
package notification

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Message is a single HTML email
type Message struct {
	To       []string
	Subject  string
	HTMLBody string
}

// Mailer delivers messages. Implementations live in infrastructure/mail.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LoggingMailer writes messages to the log instead of sending them. Used when mail is disabled.
type LoggingMailer struct {
	logger *zap.Logger
}

// NewLoggingMailer creates a new LoggingMailer
func NewLoggingMailer(logger *zap.Logger) *LoggingMailer {
	return &LoggingMailer{logger: logger}
}

// Send logs the message envelope
func (m *LoggingMailer) Send(ctx context.Context, msg Message) error {
	m.logger.Info("email suppressed (mail disabled)",
		zap.String("to", strings.Join(msg.To, ",")),
		zap.String("subject", msg.Subject),
	)
	return nil
}

var _ Mailer = (*LoggingMailer)(nil)
