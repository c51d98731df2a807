package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"ticket-issuer/internal/services/credential"
	"ticket-issuer/internal/services/payment"
	"ticket-issuer/internal/services/realtime"
	"ticket-issuer/internal/services/store"
	"ticket-issuer/models"
)

var testNow = time.Date(2025, 12, 1, 18, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeNotifier struct {
	mu           sync.Mutex
	tickets      []models.IssuedTicket
	reservations []models.Reservation
}

func (f *fakeNotifier) DispatchTicket(t models.IssuedTicket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickets = append(f.tickets, t)
}

func (f *fakeNotifier) DispatchReservation(r models.Reservation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reservations = append(f.reservations, r)
}

func (f *fakeNotifier) ticketCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickets)
}

func (f *fakeNotifier) reservationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reservations)
}

type fakeFeed struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (f *fakeFeed) Publish(ev realtime.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeFeed) last() realtime.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[len(f.events)-1]
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() payment.ProviderName {
	return "mock"
}

func (m *MockProvider) CreateOrder(ctx context.Context, amount decimal.Decimal, currency string) (string, error) {
	args := m.Called(ctx, amount, currency)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) Capture(ctx context.Context, orderID string) (*payment.CaptureResult, error) {
	args := m.Called(ctx, orderID)
	res, _ := args.Get(0).(*payment.CaptureResult)
	return res, args.Error(1)
}

// harness wires the services over an in-memory store and fakes.
type harness struct {
	clock      *clock
	repo       *store.MemoryStore
	codec      *credential.Codec
	notifier   *fakeNotifier
	feed       *fakeFeed
	issuance   *IssuanceService
	validation *ValidationService
	orders     *OrderService
}

func testPrices() models.Prices {
	return models.Prices{
		models.TicketStandard: decimal.NewFromInt(25),
		models.TicketVIP:      decimal.NewFromInt(45),
	}
}

func newHarness(t *testing.T, provider payment.Provider) *harness {
	t.Helper()

	h := &harness{
		clock:    &clock{now: testNow},
		repo:     store.NewMemoryStore(),
		notifier: &fakeNotifier{},
		feed:     &fakeFeed{},
	}
	h.codec = credential.NewCodec("test-secret", credential.WithClock(h.clock.Now))

	h.issuance = NewIssuanceService(h.repo, h.codec, h.notifier, h.feed,
		IssuanceConfig{TicketPrefix: "AFR", StoreTimeout: time.Second}, discardLogger())
	h.issuance.now = h.clock.Now

	h.validation = NewValidationService(h.repo, h.codec, h.feed, time.Second, discardLogger())
	h.validation.now = h.clock.Now

	if provider == nil {
		provider = payment.NewOfflineProvider()
	}
	h.orders = NewOrderService(provider, h.issuance, h.notifier, OrderConfig{
		Prices:          testPrices(),
		Currency:        "EUR",
		ReferencePrefix: "AFR",
		PaymentTimeout:  time.Second,
	}, discardLogger())
	h.orders.now = h.clock.Now

	return h
}
