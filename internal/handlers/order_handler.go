package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"ticket-issuer/config"
	"ticket-issuer/internal/services"
	"ticket-issuer/internal/status"
	"ticket-issuer/models"
)

type OrderHandler struct {
	orders   *services.OrderService
	cfg      *config.Config
	validate *validator.Validate
	logger   *slog.Logger
}

func NewOrderHandler(orders *services.OrderService, cfg *config.Config, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		cfg:      cfg,
		validate: newValidator(),
		logger:   logger,
	}
}

type createOrderRequest struct {
	Name       string          `json:"name" validate:"required"`
	Email      string          `json:"email" validate:"required,email"`
	TicketType string          `json:"ticketType" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method" validate:"required"`
}

func (r *createOrderRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.TicketType = strings.TrimSpace(r.TicketType)
	r.Method = strings.TrimSpace(r.Method)
}

// CreateOrder - POST /api/create-order
//
// Opens either a bank transfer reservation or a single-ticket card order.
func (h *OrderHandler) CreateOrder(e *core.RequestEvent) error {
	var req createOrderRequest
	if err := e.BindBody(&req); err != nil {
		return e.JSON(http.StatusBadRequest, map[string]any{"error": "Invalid request"})
	}

	req.normalize()
	if req.Amount.IsZero() {
		return writeOrderError(e, h.logger, fmt.Errorf("%w: amount", status.ErrMissingFields))
	}
	if err := checkRequest(h.validate, &req); err != nil {
		return writeOrderError(e, h.logger, err)
	}

	ticketType, err := models.ParseTicketType(req.TicketType)
	if err != nil {
		return writeOrderError(e, h.logger, fmt.Errorf("%w: %v", status.ErrInvalidTicketType, err))
	}
	buyer := models.Buyer{Name: req.Name, Email: req.Email}
	ctx := e.Request.Context()

	switch models.PaymentMethod(req.Method) {
	case models.MethodTransfer:
		r, err := h.orders.CreateTransferReservation(ctx, buyer, ticketType, req.Amount)
		if err != nil {
			return writeOrderError(e, h.logger, err)
		}
		return e.JSON(http.StatusOK, map[string]any{
			"ok":            true,
			"method":        models.MethodTransfer,
			"referenceCode": r.ReferenceCode,
			"iban":          h.cfg.IBAN,
			"bic":           h.cfg.BIC,
		})

	case models.MethodCard:
		items := models.LineItems{}
		if ticketType == models.TicketVIP {
			items.VIP = 1
		} else {
			items.Standard = 1
		}
		order, err := h.orders.CreateCardOrder(ctx, buyer, items)
		if err != nil {
			return writeOrderError(e, h.logger, err)
		}
		return e.JSON(http.StatusOK, map[string]any{
			"ok":      true,
			"method":  models.MethodCard,
			"orderId": order.OrderID,
		})

	default:
		return writeOrderError(e, h.logger, fmt.Errorf("%w: %q", status.ErrInvalidMethod, req.Method))
	}
}

type createCardOrderRequest struct {
	Name    string           `json:"name" validate:"required"`
	Email   string           `json:"email" validate:"required,email"`
	Tickets models.LineItems `json:"tickets"`
}

// CreateCardOrder - POST /api/paypal/create-order
func (h *OrderHandler) CreateCardOrder(e *core.RequestEvent) error {
	var req createCardOrderRequest
	if err := e.BindBody(&req); err != nil {
		return e.JSON(http.StatusBadRequest, map[string]any{"error": "Invalid request"})
	}

	req.Name, req.Email = strings.TrimSpace(req.Name), strings.TrimSpace(req.Email)
	if err := checkRequest(h.validate, &req); err != nil {
		return writeOrderError(e, h.logger, err)
	}

	buyer := models.Buyer{Name: req.Name, Email: req.Email}
	order, err := h.orders.CreateCardOrder(e.Request.Context(), buyer, req.Tickets)
	if err != nil {
		return writeOrderError(e, h.logger, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"id":     order.OrderID,
		"amount": order.Amount.StringFixed(2),
	})
}

// captureRequest also accepts the legacy buyer fields; only orderId is used.
type captureRequest struct {
	OrderID    string          `json:"orderId"`
	Name       string          `json:"name,omitempty"`
	Email      string          `json:"email,omitempty"`
	Amount     decimal.Decimal `json:"amount,omitempty"`
	TicketType string          `json:"ticketType,omitempty"`
}

// CaptureOrder - POST /api/paypal/capture and /api/paypal/capture-order
//
// Safe to call repeatedly for one order: later calls return the tickets
// issued by the first.
func (h *OrderHandler) CaptureOrder(e *core.RequestEvent) error {
	var req captureRequest
	if err := e.BindBody(&req); err != nil {
		return e.JSON(http.StatusBadRequest, map[string]any{"error": "Invalid request"})
	}

	out, err := h.orders.CaptureCardOrder(e.Request.Context(), strings.TrimSpace(req.OrderID))
	if err != nil {
		return writeOrderError(e, h.logger, err)
	}

	// emailsSent is the legacy name of emailsQueued: both count emails
	// dispatched in the background, not confirmed deliveries.
	resp := map[string]any{
		"ok":           true,
		"orderId":      out.OrderID,
		"ticketIds":    out.TicketIDs,
		"emailsQueued": out.EmailsQueued,
		"emailsSent":   out.EmailsQueued,
		"cached":       out.Cached,
	}
	if len(out.TicketIDs) > 0 {
		resp["ticketId"] = out.TicketIDs[0]
	}
	return e.JSON(http.StatusOK, resp)
}

type confirmTransferRequest struct {
	ReferenceCode string          `json:"referenceCode" validate:"required"`
	TicketType    string          `json:"ticketType,omitempty"`
	Amount        decimal.Decimal `json:"amount,omitempty"`
}

// ConfirmTransfer - POST /api/confirm-transfer (staff)
func (h *OrderHandler) ConfirmTransfer(e *core.RequestEvent) error {
	var req confirmTransferRequest
	if err := e.BindBody(&req); err != nil {
		return e.JSON(http.StatusBadRequest, map[string]any{"error": "Invalid request"})
	}

	req.ReferenceCode = strings.TrimSpace(req.ReferenceCode)
	if err := checkRequest(h.validate, &req); err != nil {
		return writeOrderError(e, h.logger, err)
	}

	overrides := models.TransferOverrides{Amount: req.Amount}
	if strings.TrimSpace(req.TicketType) != "" {
		ticketType, err := models.ParseTicketType(req.TicketType)
		if err != nil {
			return writeOrderError(e, h.logger, fmt.Errorf("%w: %v", status.ErrInvalidTicketType, err))
		}
		overrides.TicketType = ticketType
	}

	out, err := h.orders.ConfirmTransfer(e.Request.Context(), req.ReferenceCode, overrides)
	if err != nil {
		return writeOrderError(e, h.logger, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ok":            true,
		"ticketId":      out.Ticket.Payload.ID,
		"referenceCode": out.Reservation.ReferenceCode,
		"cached":        out.Cached,
	})
}
