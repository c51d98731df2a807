package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticket-issuer/internal/services/credential"
	"ticket-issuer/internal/services/realtime"
	"ticket-issuer/internal/services/store"
	"ticket-issuer/internal/status"
	"ticket-issuer/models"
	"ticket-issuer/monitoring"
)

// Validation outcomes, used as metric labels and feed reasons.
const (
	OutcomeRedeemed          = "redeemed"
	OutcomeInvalidOrExpired  = "invalid_or_expired"
	OutcomeUnknownTicket     = "unknown_ticket"
	OutcomeIntegrityMismatch = "integrity_mismatch"
	OutcomeAlreadyUsed       = "already_used"
	OutcomeStorageError      = "storage_error"
)

type ValidationService struct {
	repo         store.TicketRepository
	codec        *credential.Codec
	feed         realtime.Publisher
	storeTimeout time.Duration
	logger       *slog.Logger

	now func() time.Time
}

func NewValidationService(
	repo store.TicketRepository,
	codec *credential.Codec,
	feed realtime.Publisher,
	storeTimeout time.Duration,
	logger *slog.Logger,
) *ValidationService {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &ValidationService{
		repo:         repo,
		codec:        codec,
		feed:         feed,
		storeTimeout: storeTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

// Validate redeems the ticket carried by rawToken exactly once.
//
// Errors wrap one of status.ErrInvalidOrExpired (itself wrapping the
// credential cause), status.ErrTicketNotFound, status.ErrIntegrityMismatch,
// status.ErrAlreadyUsed or status.ErrStorage.
func (s *ValidationService) Validate(ctx context.Context, rawToken string) (*models.Redemption, error) {
	redemption, err := s.validate(ctx, rawToken)

	outcome := outcomeOf(err)
	monitoring.TrackValidation(outcome)
	if err != nil {
		ev := realtime.Event{Kind: realtime.EventRejected, Reason: outcome, At: s.now().UTC()}
		var tid ticketIDError
		if errors.As(err, &tid) {
			ev.TicketID = tid.id
		}
		s.feed.Publish(ev)
		return nil, err
	}

	s.feed.Publish(realtime.Event{
		Kind:     realtime.EventRedeemed,
		TicketID: redemption.TicketID,
		Type:     string(redemption.Type),
		Name:     redemption.Name,
		At:       redemption.UsedAt,
	})
	return redemption, nil
}

func (s *ValidationService) validate(ctx context.Context, rawToken string) (*models.Redemption, error) {
	payload, err := s.codec.Verify(rawToken)
	if err != nil {
		s.logger.Warn("ticket token rejected", "reason", credentialReason(err), "error", err)
		return nil, fmt.Errorf("%w: %w", status.ErrInvalidOrExpired, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	record, err := s.repo.Get(ctx, payload.ID)
	if err != nil {
		if errors.Is(err, status.ErrTicketNotFound) {
			s.logger.Warn("validly signed ticket is unknown", "ticket_id", payload.ID)
		}
		return nil, ticketIDError{id: payload.ID, err: err}
	}

	expected := models.IntegrityHash(payload.Email, payload.ID, payload.Type)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(record.Hash)) != 1 {
		s.logger.Warn("ticket integrity mismatch",
			"ticket_id", payload.ID,
			"token_type", payload.Type,
			"stored_type", record.Type,
		)
		return nil, ticketIDError{id: payload.ID, err: status.ErrIntegrityMismatch}
	}

	if record.Used() {
		return nil, ticketIDError{id: payload.ID, err: status.ErrAlreadyUsed}
	}

	usedAt := s.now().UTC()
	if err := s.repo.MarkUsed(ctx, payload.ID, usedAt); err != nil {
		return nil, ticketIDError{id: payload.ID, err: err}
	}

	s.logger.Info("ticket redeemed", "ticket_id", payload.ID, "type", payload.Type)
	return &models.Redemption{
		TicketID: payload.ID,
		Name:     payload.Name,
		Type:     payload.Type,
		UsedAt:   usedAt,
	}, nil
}

// ticketIDError carries the decoded ticket id next to a lookup failure so
// the feed can name the ticket without exposing it to the caller.
type ticketIDError struct {
	id  string
	err error
}

func (e ticketIDError) Error() string {
	return fmt.Sprintf("ticket %s: %v", e.id, e.err)
}

func (e ticketIDError) Unwrap() error {
	return e.err
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeRedeemed
	case errors.Is(err, status.ErrInvalidOrExpired):
		return OutcomeInvalidOrExpired
	case errors.Is(err, status.ErrTicketNotFound):
		return OutcomeUnknownTicket
	case errors.Is(err, status.ErrIntegrityMismatch):
		return OutcomeIntegrityMismatch
	case errors.Is(err, status.ErrAlreadyUsed):
		return OutcomeAlreadyUsed
	default:
		return OutcomeStorageError
	}
}

func credentialReason(err error) string {
	switch {
	case errors.Is(err, credential.ErrExpired):
		return "expired"
	case errors.Is(err, credential.ErrSignatureInvalid):
		return "signature_invalid"
	default:
		return "malformed"
	}
}
