package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"sync"
	"time"

	"ticket-issuer/models"
	"ticket-issuer/monitoring"
)

const noValue = "—"

type NotifierConfig struct {
	Event    models.Event
	Currency string
	IBAN     string
	BIC      string
	Timeout  time.Duration
}

// Notifier composes buyer emails and dispatches them without blocking the
// request that issued the ticket.
type Notifier struct {
	sender   Sender
	renderer *Renderer
	cfg      NotifierConfig
	logger   *slog.Logger

	wg sync.WaitGroup
}

func NewNotifier(sender Sender, cfg NotifierConfig, logger *slog.Logger) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Notifier{
		sender:   sender,
		renderer: NewRenderer(),
		cfg:      cfg,
		logger:   logger,
	}
}

func (n *Notifier) from() mail.Address {
	return mail.Address{Name: n.cfg.Event.Name, Address: n.cfg.Event.OrganizerEmail}
}

// TicketSubject is the subject line of a ticket email.
func (n *Notifier) TicketSubject(ticketID string) string {
	return fmt.Sprintf("[%s] Votre billet – %s", n.cfg.Event.Name, ticketID)
}

// ReservationSubject is the subject line of a transfer reservation email.
func (n *Notifier) ReservationSubject(reference string) string {
	return fmt.Sprintf("[%s] Réservation en attente de virement (%s)", n.cfg.Event.Name, reference)
}

// TicketMessage builds the email carrying a ticket's QR code, both inline
// and as a PNG attachment.
func (n *Notifier) TicketMessage(ticket models.IssuedTicket) (Message, error) {
	png, err := EncodeQR(ticket.Token)
	if err != nil {
		return Message{}, err
	}

	html, err := n.renderer.Ticket(TicketView{
		EventName: n.cfg.Event.Name,
		EventDate: n.cfg.Event.Date,
		Name:      ticket.Payload.Name,
		TicketID:  ticket.Payload.ID,
		TypeLabel: ticket.Payload.Type.Label(),
		QRDataURL: PNGDataURL(png),
	})
	if err != nil {
		return Message{}, err
	}

	return Message{
		From:    n.from(),
		To:      mail.Address{Name: ticket.Payload.Name, Address: ticket.Payload.Email},
		Subject: n.TicketSubject(ticket.Payload.ID),
		HTML:    html,
		Attachments: []Attachment{{
			Filename:    "billet-" + ticket.Payload.ID + ".png",
			ContentType: "image/png",
			Data:        png,
		}},
	}, nil
}

// ReservationMessage builds the bank transfer instructions email.
func (n *Notifier) ReservationMessage(r models.Reservation) (Message, error) {
	html, err := n.renderer.Reservation(ReservationView{
		EventName: n.cfg.Event.Name,
		EventDate: n.cfg.Event.Date,
		Name:      r.Buyer.Name,
		Amount:    r.Amount.StringFixed(2),
		Currency:  n.cfg.Currency,
		Reference: r.ReferenceCode,
		IBAN:      orDash(n.cfg.IBAN),
		BIC:       orDash(n.cfg.BIC),
	})
	if err != nil {
		return Message{}, err
	}

	return Message{
		From:    n.from(),
		To:      mail.Address{Name: r.Buyer.Name, Address: r.Buyer.Email},
		Subject: n.ReservationSubject(r.ReferenceCode),
		HTML:    html,
	}, nil
}

// SendTicket delivers one ticket email and waits for the result.
func (n *Notifier) SendTicket(ctx context.Context, ticket models.IssuedTicket) (string, error) {
	msg, err := n.TicketMessage(ticket)
	if err != nil {
		return "", err
	}
	return n.deliver(ctx, "ticket", msg)
}

// SendReservation delivers the transfer instructions and waits for the result.
func (n *Notifier) SendReservation(ctx context.Context, r models.Reservation) (string, error) {
	msg, err := n.ReservationMessage(r)
	if err != nil {
		return "", err
	}
	return n.deliver(ctx, "reservation", msg)
}

// DispatchTicket sends in the background. Failures are logged and dropped.
func (n *Notifier) DispatchTicket(ticket models.IssuedTicket) {
	n.dispatch("ticket", ticket.Payload.ID, func(ctx context.Context) (string, error) {
		return n.SendTicket(ctx, ticket)
	})
}

// DispatchReservation sends in the background. Failures are logged and dropped.
func (n *Notifier) DispatchReservation(r models.Reservation) {
	n.dispatch("reservation", r.ReferenceCode, func(ctx context.Context) (string, error) {
		return n.SendReservation(ctx, r)
	})
}

// Wait blocks until every background dispatch has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) dispatch(kind, ref string, send func(context.Context) (string, error)) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Timeout)
		defer cancel()

		id, err := send(ctx)
		if err != nil {
			n.logger.Error("email dispatch failed", "kind", kind, "ref", ref, "error", err)
			return
		}
		n.logger.Info("email sent", "kind", kind, "ref", ref, "message_id", id)
	}()
}

func (n *Notifier) deliver(ctx context.Context, kind string, msg Message) (string, error) {
	id, err := n.sender.Send(ctx, msg)
	if err != nil {
		monitoring.TrackEmail(kind, "failed")
		return "", err
	}
	monitoring.TrackEmail(kind, "sent")
	return id, nil
}

func orDash(s string) string {
	if s == "" {
		return noValue
	}
	return s
}
