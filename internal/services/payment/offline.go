package payment

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OfflineProvider accepts every order without talking to a processor. It is
// only wired in development when no PayPal credentials are configured.
type OfflineProvider struct {
	mu       sync.Mutex
	captures map[string]string
}

func NewOfflineProvider() *OfflineProvider {
	return &OfflineProvider{captures: make(map[string]string)}
}

func (p *OfflineProvider) Name() ProviderName {
	return ProviderOffline
}

func (p *OfflineProvider) CreateOrder(_ context.Context, _ decimal.Decimal, _ string) (string, error) {
	return "OFFLINE-" + uuid.NewString(), nil
}

// Capture always completes and returns the same capture id for repeated
// calls with one order id.
func (p *OfflineProvider) Capture(_ context.Context, orderID string) (*CaptureResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.captures[orderID]
	if !ok {
		id = uuid.NewString()
		p.captures[orderID] = id
	}
	return &CaptureResult{Status: CaptureCompleted, CaptureID: id}, nil
}
