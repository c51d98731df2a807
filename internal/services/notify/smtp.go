package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/mail"

	"github.com/google/uuid"
	"github.com/pocketbase/pocketbase/tools/mailer"
)

// SMTPSender delivers through the PocketBase SMTP mailer.
type SMTPSender struct {
	client mailer.Mailer
}

func NewSMTPSender(host string, port int, username, password string, tls bool) *SMTPSender {
	return &SMTPSender{
		client: &mailer.SMTPClient{
			Host:     host,
			Port:     port,
			Username: username,
			Password: password,
			TLS:      tls,
		},
	}
}

// Send blocks until the SMTP exchange finishes or ctx is done. The mailer has
// no context support, so an abandoned exchange finishes in the background.
func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	id := uuid.NewString()

	m := &mailer.Message{
		From:    msg.From,
		To:      []mail.Address{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Headers: map[string]string{"X-Ticket-Message-Id": id},
	}
	if len(msg.Attachments) > 0 {
		m.Attachments = make(map[string]io.Reader, len(msg.Attachments))
		for _, a := range msg.Attachments {
			m.Attachments[a.Filename] = bytes.NewReader(a.Data)
		}
	}

	done := make(chan error, 1)
	go func() { done <- s.client.Send(m) }()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("smtp send: %w", err)
		}
		return id, nil
	case <-ctx.Done():
		return "", fmt.Errorf("smtp send: %w", ctx.Err())
	}
}
