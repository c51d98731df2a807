package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/core"

	"ticket-issuer/internal/status"
)

// Public reasons returned by /api/validate.
const (
	ReasonInvalidOrExpired = "Invalid or expired QR"
	ReasonNotFound         = "Ticket not found"
	ReasonAlreadyUsed      = "Already used"
	ReasonServerError      = "Server error"
)

type apiError struct {
	target  error
	code    int
	message string
}

// orderErrors maps service errors to status code and public message. Order
// matters: the first match wins.
var orderErrors = []apiError{
	{status.ErrMissingFields, http.StatusBadRequest, "Missing fields"},
	{status.ErrInvalidMethod, http.StatusBadRequest, "Invalid method"},
	{status.ErrInvalidTicketType, http.StatusBadRequest, "Invalid ticket type"},
	{status.ErrInvalidAmount, http.StatusBadRequest, "Invalid amount"},
	{status.ErrInvalidEmail, http.StatusBadRequest, "Invalid email"},
	{status.ErrUnknownOrder, http.StatusNotFound, "Order not found"},
	{status.ErrUnknownReservation, http.StatusNotFound, "Reservation not found"},
	{status.ErrPaymentNotCompleted, http.StatusBadRequest, "Payment not completed"},
	{status.ErrPaymentProvider, http.StatusBadGateway, "Payment provider error"},
	{status.ErrReferenceExhausted, http.StatusServiceUnavailable, "Could not allocate a reference code"},
}

func orderErrorStatus(err error) (int, string) {
	for _, m := range orderErrors {
		if errors.Is(err, m.target) {
			return m.code, m.message
		}
	}
	return http.StatusInternalServerError, ReasonServerError
}

// validationErrorStatus collapses credential and integrity failures into one
// public reason. The detailed cause stays in the server logs.
func validationErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, status.ErrInvalidOrExpired), errors.Is(err, status.ErrIntegrityMismatch):
		return http.StatusBadRequest, ReasonInvalidOrExpired
	case errors.Is(err, status.ErrTicketNotFound):
		return http.StatusNotFound, ReasonNotFound
	case errors.Is(err, status.ErrAlreadyUsed):
		return http.StatusBadRequest, ReasonAlreadyUsed
	default:
		return http.StatusInternalServerError, ReasonServerError
	}
}

func writeOrderError(e *core.RequestEvent, logger *slog.Logger, err error) error {
	code, msg := orderErrorStatus(err)
	if code >= http.StatusInternalServerError {
		logger.Error("order request failed", "path", e.Request.URL.Path, "error", err)
	}
	return e.JSON(code, map[string]any{"error": msg})
}
