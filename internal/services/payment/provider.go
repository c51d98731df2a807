// Package payment wraps the card payment providers behind one contract.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// ProviderName identifies a card payment backend.
type ProviderName string

const (
	ProviderPayPal  ProviderName = "paypal"
	ProviderOffline ProviderName = "offline"
)

// CaptureCompleted is the only capture status that pays for tickets.
const CaptureCompleted = "COMPLETED"

// CaptureResult is what the provider reported for a capture attempt.
type CaptureResult struct {
	Status    string `json:"status"`
	CaptureID string `json:"capture_id"`
}

func (r *CaptureResult) Completed() bool {
	return r != nil && r.Status == CaptureCompleted
}

// Provider creates and captures card orders.
type Provider interface {
	Name() ProviderName

	// CreateOrder registers a payable order and returns its provider id.
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency string) (string, error)

	// Capture finalizes the charge for orderID.
	Capture(ctx context.Context, orderID string) (*CaptureResult, error)
}
