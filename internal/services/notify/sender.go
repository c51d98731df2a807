// Package notify renders and delivers buyer emails. Delivery is best effort:
// callers log failures and never roll back the ticket that triggered them.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"

	"github.com/google/uuid"
)

// Provider names an email backend.
type Provider string

const (
	ProviderSMTP   Provider = "smtp"
	ProviderResend Provider = "resend"
	ProviderLog    Provider = "log"
)

// Attachment is a file sent alongside the HTML body.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	From        mail.Address
	To          mail.Address
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Sender delivers one message and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) (string, error) {
	id := uuid.NewString()
	s.logger.Info("email not delivered, log provider",
		"message_id", id,
		"to", msg.To.Address,
		"subject", msg.Subject,
		"attachments", len(msg.Attachments),
	)
	return id, nil
}

type Options struct {
	Provider     Provider
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPass     string
	SMTPTLS      bool
	ResendAPIKey string
}

// NewSender builds the configured backend. An SMTP provider without a host
// degrades to the log sender so local runs still issue tickets.
func NewSender(opts Options, logger *slog.Logger) (Sender, error) {
	switch opts.Provider {
	case ProviderSMTP, "":
		if opts.SMTPHost == "" {
			logger.Warn("SMTP_HOST not set, emails will only be logged")
			return NewLogSender(logger), nil
		}
		return NewSMTPSender(opts.SMTPHost, opts.SMTPPort, opts.SMTPUser, opts.SMTPPass, opts.SMTPTLS), nil

	case ProviderResend:
		if opts.ResendAPIKey == "" {
			return nil, fmt.Errorf("RESEND_API_KEY is required for the resend provider")
		}
		return NewResendSender(opts.ResendAPIKey), nil

	case ProviderLog:
		return NewLogSender(logger), nil

	default:
		return nil, fmt.Errorf("unsupported email provider: %s", opts.Provider)
	}
}
