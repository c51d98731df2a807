package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	MethodCard     PaymentMethod = "card"
	MethodTransfer PaymentMethod = "transfer"
)

// LineItems holds per-type quantities of a card order.
type LineItems struct {
	Standard int `json:"standard"`
	VIP      int `json:"vip"`
}

func (l LineItems) Total() int {
	return l.Standard + l.VIP
}

// Expand returns one entry per ticket to issue, standard tickets first.
func (l LineItems) Expand() []TicketType {
	types := make([]TicketType, 0, l.Total())
	for i := 0; i < l.Standard; i++ {
		types = append(types, TicketStandard)
	}
	for i := 0; i < l.VIP; i++ {
		types = append(types, TicketVIP)
	}
	return types
}

// Prices maps each ticket type to its unit price.
type Prices map[TicketType]decimal.Decimal

// Total computes the order amount for the given quantities.
func (p Prices) Total(items LineItems) decimal.Decimal {
	standard := p[TicketStandard].Mul(decimal.NewFromInt(int64(items.Standard)))
	vip := p[TicketVIP].Mul(decimal.NewFromInt(int64(items.VIP)))
	return standard.Add(vip)
}

// PendingOrder is a card order awaiting capture.
type PendingOrder struct {
	OrderID   string          `json:"order_id"`
	Buyer     Buyer           `json:"buyer"`
	Amount    decimal.Decimal `json:"amount"`
	Items     LineItems       `json:"items"`
	CreatedAt time.Time       `json:"created_at"`

	// CaptureID is set once the provider confirmed the capture, so a retry
	// after a partial issuance does not capture twice.
	CaptureID string   `json:"capture_id,omitempty"`
	IssuedIDs []string `json:"issued_ids,omitempty"`
}

// CompletedOrder is the cached result of a successful capture.
type CompletedOrder struct {
	OrderID      string    `json:"order_id"`
	CaptureID    string    `json:"capture_id"`
	TicketIDs    []string  `json:"ticket_ids"`
	EmailsQueued int       `json:"emails_queued"`
	CompletedAt  time.Time `json:"completed_at"`
}

type ReservationStatus string

const (
	ReservationPending ReservationStatus = "pending_transfer"
	ReservationPaid    ReservationStatus = "paid"
)

// Reservation is a bank transfer intent awaiting manual confirmation.
type Reservation struct {
	ReferenceCode string            `json:"reference_code"`
	Buyer         Buyer             `json:"buyer"`
	TicketType    TicketType        `json:"ticket_type"`
	Amount        decimal.Decimal   `json:"amount"`
	CreatedAt     time.Time         `json:"created_at"`
	Status        ReservationStatus `json:"status"`
	TicketID      string            `json:"ticket_id,omitempty"`
}

// TransferOverrides lets the confirming operator correct a reservation.
// Zero values keep what was reserved.
type TransferOverrides struct {
	TicketType TicketType
	Amount     decimal.Decimal
}
