package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"ticket-issuer/internal/services/payment/paypal"
)

// PayPalAdapter wraps the PayPal Orders client to conform to Provider.
type PayPalAdapter struct {
	client *paypal.Client
}

func NewPayPalAdapter(cfg paypal.Config) *PayPalAdapter {
	return &PayPalAdapter{client: paypal.NewClient(cfg)}
}

func (p *PayPalAdapter) Name() ProviderName {
	return ProviderPayPal
}

func (p *PayPalAdapter) CreateOrder(ctx context.Context, amount decimal.Decimal, currency string) (string, error) {
	order, err := p.client.CreateOrder(ctx, amount, currency)
	if err != nil {
		return "", err
	}
	return order.ID, nil
}

// Capture reports a PayPal business refusal (unapproved order, declined
// instrument) as a non-completed result so it never counts as an outage.
func (p *PayPalAdapter) Capture(ctx context.Context, orderID string) (*CaptureResult, error) {
	order, err := p.client.CaptureOrder(ctx, orderID)
	var apiErr *paypal.APIError
	if errors.As(err, &apiErr) && apiErr.Rejected() {
		return &CaptureResult{Status: apiErr.Issue()}, nil
	}
	if err != nil {
		return nil, err
	}
	return &CaptureResult{
		Status:    order.Status,
		CaptureID: order.CaptureID(),
	}, nil
}
