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

type TicketHandler struct {
	issuance   *services.IssuanceService
	validation *services.ValidationService
	cfg        *config.Config
	validate   *validator.Validate
	logger     *slog.Logger
}

func NewTicketHandler(
	issuance *services.IssuanceService,
	validation *services.ValidationService,
	cfg *config.Config,
	logger *slog.Logger,
) *TicketHandler {
	return &TicketHandler{
		issuance:   issuance,
		validation: validation,
		cfg:        cfg,
		validate:   newValidator(),
		logger:     logger,
	}
}

// Validate - POST /api/validate (staff)
func (h *TicketHandler) Validate(e *core.RequestEvent) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := e.BindBody(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		return e.JSON(http.StatusBadRequest, map[string]any{"ok": false, "reason": ReasonInvalidOrExpired})
	}

	redemption, err := h.validation.Validate(e.Request.Context(), req.Token)
	if err != nil {
		code, reason := validationErrorStatus(err)
		if code >= http.StatusInternalServerError {
			h.logger.Error("validation failed", "error", err)
		}
		return e.JSON(code, map[string]any{"ok": false, "reason": reason})
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ok":       true,
		"ticketId": redemption.TicketID,
		"name":     redemption.Name,
		"type":     redemption.Type,
	})
}

// IssueTestTicket - POST /api/test/issue-ticket
//
// Only registered when ENABLE_TEST_ISSUANCE is set. Returns the token so QA
// can scan without going through a payment.
func (h *TicketHandler) IssueTestTicket(e *core.RequestEvent) error {
	var req struct {
		Name       string          `json:"name" validate:"required"`
		Email      string          `json:"email" validate:"required,email"`
		TicketType string          `json:"ticketType"`
		Amount     decimal.Decimal `json:"amount"`
	}
	if err := e.BindBody(&req); err != nil {
		return e.JSON(http.StatusBadRequest, map[string]any{"error": "Invalid request"})
	}
	req.Name, req.Email = strings.TrimSpace(req.Name), strings.TrimSpace(req.Email)
	if err := checkRequest(h.validate, &req); err != nil {
		return writeOrderError(e, h.logger, err)
	}

	ticketType := models.TicketStandard
	if strings.TrimSpace(req.TicketType) != "" {
		parsed, err := models.ParseTicketType(req.TicketType)
		if err != nil {
			return writeOrderError(e, h.logger, fmt.Errorf("%w: %v", status.ErrInvalidTicketType, err))
		}
		ticketType = parsed
	}
	amount := req.Amount
	if amount.IsZero() {
		amount = h.cfg.Prices()[ticketType]
	}

	ticket, err := h.issuance.Issue(e.Request.Context(), services.IssueRequest{
		Buyer:      models.Buyer{Name: req.Name, Email: req.Email},
		Type:       ticketType,
		Amount:     amount,
		Provenance: models.Provenance{Source: models.SourceTest},
	})
	if err != nil {
		return writeOrderError(e, h.logger, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ok":       true,
		"ticketId": ticket.Payload.ID,
		"token":    ticket.Token,
	})
}
