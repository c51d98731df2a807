package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"ticket-issuer/internal/status"
	"ticket-issuer/utils"
)

// Breaker guards a Provider with a circuit breaker and maps every provider
// failure onto status.ErrPaymentProvider. A payment the buyer did not
// complete is passed through untouched and does not count as a failure.
type Breaker struct {
	next Provider
	cb   *utils.CircuitBreaker
}

func NewBreaker(next Provider, opts ...utils.BreakerOption) *Breaker {
	opts = append([]utils.BreakerOption{utils.WithIsSuccessful(buyerSide)}, opts...)
	return &Breaker{
		next: next,
		cb:   utils.NewCircuitBreaker(string(next.Name()), opts...),
	}
}

func buyerSide(err error) bool {
	return err == nil || errors.Is(err, status.ErrPaymentNotCompleted)
}

func (b *Breaker) Name() ProviderName {
	return b.next.Name()
}

func (b *Breaker) CreateOrder(ctx context.Context, amount decimal.Decimal, currency string) (string, error) {
	id, err := utils.Call(ctx, b.cb, func(ctx context.Context) (string, error) {
		return b.next.CreateOrder(ctx, amount, currency)
	})
	if err != nil {
		slog.Error("create card order failed", "provider", b.next.Name(), "breaker", b.cb.State().String(), "error", err)
		return "", fmt.Errorf("%w: %v", status.ErrPaymentProvider, err)
	}
	return id, nil
}

func (b *Breaker) Capture(ctx context.Context, orderID string) (*CaptureResult, error) {
	res, err := utils.Call(ctx, b.cb, func(ctx context.Context) (*CaptureResult, error) {
		return b.next.Capture(ctx, orderID)
	})
	if errors.Is(err, status.ErrPaymentNotCompleted) {
		return nil, err
	}
	if err != nil {
		slog.Error("capture card order failed", "provider", b.next.Name(), "order_id", orderID, "breaker", b.cb.State().String(), "error", err)
		return nil, fmt.Errorf("%w: %v", status.ErrPaymentProvider, err)
	}
	return res, nil
}
