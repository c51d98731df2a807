package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ticket-issuer/internal/services/payment"
	"ticket-issuer/internal/status"
	"ticket-issuer/models"
	"ticket-issuer/monitoring"
	"ticket-issuer/utils"
)

const maxReferenceAttempts = 20

// ReservationNotifier emails transfer instructions in the background.
type ReservationNotifier interface {
	DispatchReservation(r models.Reservation)
}

type OrderConfig struct {
	Prices          models.Prices
	Currency        string
	ReferencePrefix string
	PaymentTimeout  time.Duration
}

// CaptureOutcome is returned for first and repeated captures alike.
// EmailsQueued counts ticket emails handed to the background sender;
// delivery is best effort and not confirmed here.
type CaptureOutcome struct {
	OrderID      string
	CaptureID    string
	TicketIDs    []string
	EmailsQueued int
	Cached       bool
}

// ConfirmOutcome is returned for first and repeated confirmations alike.
type ConfirmOutcome struct {
	Reservation models.Reservation
	Ticket      models.IssuedTicket
	Cached      bool
}

// OrderService tracks orders between "buyer wants to pay" and "payment
// confirmed". All bookkeeping is in memory and lost on restart.
type OrderService struct {
	provider payment.Provider
	issuer   TicketIssuer
	notifier ReservationNotifier
	cfg      OrderConfig
	logger   *slog.Logger

	now          func() time.Time
	newReference func(prefix string, year int) (string, error)

	// mu guards the maps. Per-order and per-reservation work is serialized
	// by locks so provider calls do not hold mu.
	mu           sync.Mutex
	pending      map[string]*models.PendingOrder
	completed    map[string]*models.CompletedOrder
	reservations map[string]*models.Reservation
	confirmed    map[string]*models.IssuedTicket
	locks        *keyedMutex
}

func NewOrderService(
	provider payment.Provider,
	issuer TicketIssuer,
	notifier ReservationNotifier,
	cfg OrderConfig,
	logger *slog.Logger,
) *OrderService {
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 15 * time.Second
	}
	return &OrderService{
		provider:     provider,
		issuer:       issuer,
		notifier:     notifier,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
		newReference: utils.ReferenceCode,
		pending:      make(map[string]*models.PendingOrder),
		completed:    make(map[string]*models.CompletedOrder),
		reservations: make(map[string]*models.Reservation),
		confirmed:    make(map[string]*models.IssuedTicket),
		locks:        newKeyedMutex(),
	}
}

func validBuyer(b models.Buyer) error {
	if strings.TrimSpace(b.Name) == "" || strings.TrimSpace(b.Email) == "" {
		return fmt.Errorf("%w: name and email are required", status.ErrMissingFields)
	}
	return nil
}

// CreateCardOrder prices items from the configured unit prices and opens an
// order with the card provider.
func (s *OrderService) CreateCardOrder(ctx context.Context, buyer models.Buyer, items models.LineItems) (*models.PendingOrder, error) {
	if err := validBuyer(buyer); err != nil {
		return nil, err
	}
	if items.Standard < 0 || items.VIP < 0 {
		return nil, fmt.Errorf("%w: negative quantity", status.ErrInvalidAmount)
	}
	if items.Total() == 0 {
		return nil, fmt.Errorf("%w: no tickets requested", status.ErrMissingFields)
	}

	amount := s.cfg.Prices.Total(items)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: order total %s", status.ErrInvalidAmount, amount)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
	defer cancel()

	orderID, err := s.provider.CreateOrder(ctx, amount, s.cfg.Currency)
	if err != nil {
		return nil, err
	}

	order := &models.PendingOrder{
		OrderID:   orderID,
		Buyer:     buyer,
		Amount:    amount,
		Items:     items,
		CreatedAt: s.now().UTC(),
	}

	s.mu.Lock()
	s.pending[orderID] = order
	s.mu.Unlock()

	s.logger.Info("card order created",
		"order_id", orderID,
		"provider", s.provider.Name(),
		"standard", items.Standard,
		"vip", items.VIP,
		"amount", amount.String(),
	)

	out := *order
	return &out, nil
}

// CaptureCardOrder captures the payment and issues one ticket per purchased
// unit. Repeated calls for one order id return the first result. A call that
// failed part way resumes without capturing again.
func (s *OrderService) CaptureCardOrder(ctx context.Context, orderID string) (*CaptureOutcome, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("%w: orderId", status.ErrMissingFields)
	}

	unlock := s.locks.Lock("order:" + orderID)
	defer unlock()

	s.mu.Lock()
	done, isDone := s.completed[orderID]
	order, isPending := s.pending[orderID]
	s.mu.Unlock()

	if isDone {
		monitoring.TrackCapture("cached")
		s.logger.Info("repeat capture served from cache", "order_id", orderID)
		return outcomeFrom(done, true), nil
	}
	if !isPending {
		monitoring.TrackCapture("unknown_order")
		return nil, fmt.Errorf("%w: %s", status.ErrUnknownOrder, orderID)
	}

	if order.CaptureID == "" {
		captureID, err := s.capture(ctx, orderID)
		if err != nil {
			return nil, err
		}
		order.CaptureID = captureID
	}

	types := order.Items.Expand()
	for i := len(order.IssuedIDs); i < len(types); i++ {
		ticket, err := s.issuer.Issue(ctx, IssueRequest{
			Buyer:  order.Buyer,
			Type:   types[i],
			Amount: s.cfg.Prices[types[i]],
			Provenance: models.Provenance{
				Source:    models.SourceCard,
				OrderID:   orderID,
				CaptureID: order.CaptureID,
			},
		})
		if err != nil {
			monitoring.TrackCapture("issue_failed")
			s.logger.Error("ticket issuance failed after capture",
				"order_id", orderID,
				"issued", len(order.IssuedIDs),
				"wanted", len(types),
				"error", err,
			)
			return nil, err
		}
		order.IssuedIDs = append(order.IssuedIDs, ticket.Payload.ID)
	}

	result := &models.CompletedOrder{
		OrderID:      orderID,
		CaptureID:    order.CaptureID,
		TicketIDs:    append([]string(nil), order.IssuedIDs...),
		EmailsQueued: len(order.IssuedIDs),
		CompletedAt:  s.now().UTC(),
	}

	s.mu.Lock()
	s.completed[orderID] = result
	delete(s.pending, orderID)
	s.mu.Unlock()

	monitoring.TrackCapture("completed")
	return outcomeFrom(result, false), nil
}

func (s *OrderService) capture(ctx context.Context, orderID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
	defer cancel()

	res, err := s.provider.Capture(ctx, orderID)
	if errors.Is(err, status.ErrPaymentNotCompleted) {
		monitoring.TrackCapture("not_completed")
		return "", err
	}
	if err != nil {
		monitoring.TrackCapture("provider_error")
		return "", err
	}
	if !res.Completed() {
		monitoring.TrackCapture("not_completed")
		s.logger.Warn("capture not completed", "order_id", orderID, "status", res.Status)
		return "", fmt.Errorf("%w: provider status %q", status.ErrPaymentNotCompleted, res.Status)
	}
	return res.CaptureID, nil
}

func outcomeFrom(c *models.CompletedOrder, cached bool) *CaptureOutcome {
	return &CaptureOutcome{
		OrderID:      c.OrderID,
		CaptureID:    c.CaptureID,
		TicketIDs:    append([]string(nil), c.TicketIDs...),
		EmailsQueued: c.EmailsQueued,
		Cached:       cached,
	}
}

// CreateTransferReservation records a bank transfer intent under a fresh
// reference code and emails the transfer instructions.
func (s *OrderService) CreateTransferReservation(_ context.Context, buyer models.Buyer, ticketType models.TicketType, amount decimal.Decimal) (*models.Reservation, error) {
	if err := validBuyer(buyer); err != nil {
		return nil, err
	}
	if !ticketType.Valid() {
		return nil, fmt.Errorf("%w: %q", status.ErrInvalidTicketType, ticketType)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", status.ErrInvalidAmount, amount)
	}

	now := s.now().UTC()

	s.mu.Lock()
	code, err := s.allocateReference(now.Year())
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	r := &models.Reservation{
		ReferenceCode: code,
		Buyer:         buyer,
		TicketType:    ticketType,
		Amount:        amount,
		CreatedAt:     now,
		Status:        models.ReservationPending,
	}
	s.reservations[code] = r
	out := *r
	s.mu.Unlock()

	s.logger.Info("transfer reservation created", "reference", code, "type", ticketType, "amount", amount.String())
	s.notifier.DispatchReservation(out)
	return &out, nil
}

// allocateReference draws codes until one is not in use. Callers hold s.mu.
func (s *OrderService) allocateReference(year int) (string, error) {
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		code, err := s.newReference(s.cfg.ReferencePrefix, year)
		if err != nil {
			return "", fmt.Errorf("generate reference: %w", err)
		}
		if _, taken := s.reservations[code]; !taken {
			return code, nil
		}
	}
	return "", status.ErrReferenceExhausted
}

// ConfirmTransfer marks a reservation paid and issues its ticket. Overrides
// replace the reserved type or amount when set. Confirming twice returns the
// ticket issued the first time.
func (s *OrderService) ConfirmTransfer(ctx context.Context, reference string, overrides models.TransferOverrides) (*ConfirmOutcome, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("%w: referenceCode", status.ErrMissingFields)
	}
	if overrides.TicketType != "" && !overrides.TicketType.Valid() {
		return nil, fmt.Errorf("%w: %q", status.ErrInvalidTicketType, overrides.TicketType)
	}
	if overrides.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: %s", status.ErrInvalidAmount, overrides.Amount)
	}

	unlock := s.locks.Lock("reservation:" + reference)
	defer unlock()

	s.mu.Lock()
	r, ok := s.reservations[reference]
	var issued *models.IssuedTicket
	var snapshot models.Reservation
	if ok {
		issued = s.confirmed[reference]
		snapshot = *r
	}
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", status.ErrUnknownReservation, reference)
	}
	if issued != nil {
		return &ConfirmOutcome{Reservation: snapshot, Ticket: *issued, Cached: true}, nil
	}

	ticketType := snapshot.TicketType
	if overrides.TicketType != "" {
		ticketType = overrides.TicketType
	}
	amount := snapshot.Amount
	if overrides.Amount.IsPositive() {
		amount = overrides.Amount
	}

	ticket, err := s.issuer.Issue(ctx, IssueRequest{
		Buyer:  snapshot.Buyer,
		Type:   ticketType,
		Amount: amount,
		Provenance: models.Provenance{
			Source:    models.SourceTransfer,
			Reference: reference,
		},
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	r.Status = models.ReservationPaid
	r.TicketID = ticket.Payload.ID
	r.TicketType = ticketType
	r.Amount = amount
	s.confirmed[reference] = ticket
	snapshot = *r
	s.mu.Unlock()

	s.logger.Info("transfer confirmed", "reference", reference, "ticket_id", ticket.Payload.ID)
	return &ConfirmOutcome{Reservation: snapshot, Ticket: *ticket}, nil
}

// Reservation returns a copy of the reservation stored under reference.
func (s *OrderService) Reservation(reference string) (models.Reservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[reference]
	if !ok {
		return models.Reservation{}, false
	}
	return *r, true
}

// PendingCardOrders reports card orders still awaiting capture.
func (s *OrderService) PendingCardOrders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// PendingReservations reports reservations still awaiting a transfer.
func (s *OrderService) PendingReservations() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.reservations {
		if r.Status == models.ReservationPending {
			n++
		}
	}
	return n
}
