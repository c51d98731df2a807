package status

import "errors"

// Request input.
var (
	ErrMissingFields     = errors.New("request: missing fields")
	ErrInvalidMethod     = errors.New("request: invalid payment method")
	ErrInvalidTicketType = errors.New("request: invalid ticket type")
	ErrInvalidAmount     = errors.New("request: invalid amount")
	ErrInvalidEmail      = errors.New("request: invalid email")
)

// Lookups.
var (
	ErrUnknownOrder       = errors.New("order: order not found")
	ErrUnknownReservation = errors.New("reservation: reservation not found")
	ErrTicketNotFound     = errors.New("ticket: ticket not found")
)

// Payment.
var (
	ErrPaymentNotCompleted = errors.New("payment: payment not completed")
	ErrPaymentProvider     = errors.New("payment: provider error")
	ErrReferenceExhausted  = errors.New("reservation: could not allocate a unique reference code")
)

// Redemption.
var (
	ErrInvalidOrExpired  = errors.New("ticket: invalid or expired token")
	ErrIntegrityMismatch = errors.New("ticket: integrity hash mismatch")
	ErrAlreadyUsed       = errors.New("ticket: already used")
)

// Collaborators.
var (
	ErrStorage = errors.New("storage: ticket store failure")
	ErrEmail   = errors.New("email: delivery failed")
)
