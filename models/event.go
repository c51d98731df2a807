package models

import "github.com/shopspring/decimal"

// Event describes the single event tickets are issued for.
type Event struct {
	Name           string `json:"name"`
	Date           string `json:"date"`
	OrganizerEmail string `json:"organizer_email"`
}

// PublicConfig is what the purchase page needs to render itself.
type PublicConfig struct {
	Event           Event                          `json:"event"`
	Currency        string                         `json:"currency"`
	Prices          map[TicketType]decimal.Decimal `json:"prices"`
	PayPalClientID  string                         `json:"paypalClientId,omitempty"`
	PayPalEnv       string                         `json:"paypalEnv"`
	TransferEnabled bool                           `json:"transferEnabled"`
	TestIssuance    bool                           `json:"testIssuance"`
}
