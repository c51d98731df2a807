package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type TicketType string

const (
	TicketStandard TicketType = "standard"
	TicketVIP      TicketType = "vip"
)

// TicketTypes lists every type a ticket may carry, in display order.
var TicketTypes = []TicketType{TicketStandard, TicketVIP}

// ParseTicketType normalises a client supplied type.
func ParseTicketType(s string) (TicketType, error) {
	t := TicketType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown ticket type %q", s)
	}
	return t, nil
}

func (t TicketType) Valid() bool {
	return t == TicketStandard || t == TicketVIP
}

// Label is the human readable entry name printed on the ticket email.
func (t TicketType) Label() string {
	if t == TicketVIP {
		return "Entrée VIP (menu compris)"
	}
	return "Entrée Standard"
}

type TicketStatus string

const (
	StatusValid TicketStatus = "valid"
	StatusUsed  TicketStatus = "used"
)

// Source tells which payment path produced a ticket.
type Source string

const (
	SourceCard     Source = "paypal"
	SourceTransfer Source = "transfer"
	SourceTest     Source = "test"
)

type Buyer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Provenance links a ticket back to the payment that paid for it.
type Provenance struct {
	Source    Source `json:"source"`
	OrderID   string `json:"orderId,omitempty"`
	CaptureID string `json:"captureId,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// TicketPayload is the set of claims signed into a ticket token.
type TicketPayload struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Type      TicketType      `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	IssuedAt  time.Time       `json:"issuedAt"`
	Source    Source          `json:"source,omitempty"`
	OrderID   string          `json:"orderId,omitempty"`
	CaptureID string          `json:"captureId,omitempty"`
	Reference string          `json:"reference,omitempty"`
}

// TicketRecord is the durable server-side state of an issued ticket. The
// signed token itself is never stored.
type TicketRecord struct {
	ID       string       `json:"id"`
	Email    string       `json:"email"`
	Type     TicketType   `json:"type"`
	Hash     string       `json:"hash"`
	IssuedAt time.Time    `json:"issued_at"`
	Status   TicketStatus `json:"status"`
	UsedAt   *time.Time   `json:"used_at,omitempty"`
}

func (r *TicketRecord) Used() bool {
	return r.Status == StatusUsed
}

// IssuedTicket is what issuance hands back: the stored record plus the
// credential that was delivered to the buyer.
type IssuedTicket struct {
	Record  TicketRecord  `json:"record"`
	Payload TicketPayload `json:"payload"`
	Token   string        `json:"token"`
}

// Redemption is returned to the door operator after a successful scan.
type Redemption struct {
	TicketID string     `json:"ticketId"`
	Name     string     `json:"name"`
	Type     TicketType `json:"type"`
	UsedAt   time.Time  `json:"usedAt"`
}

// IntegrityHash binds a ticket id to the person and entry type it was issued
// for: sha256(lower(email)|id|type), hex encoded.
func IntegrityHash(email, ticketID string, ticketType TicketType) string {
	sum := sha256.Sum256([]byte(strings.ToLower(email) + "|" + ticketID + "|" + string(ticketType)))
	return hex.EncodeToString(sum[:])
}
