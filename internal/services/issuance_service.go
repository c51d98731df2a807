package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ticket-issuer/internal/services/credential"
	"ticket-issuer/internal/services/realtime"
	"ticket-issuer/internal/services/store"
	"ticket-issuer/internal/status"
	"ticket-issuer/models"
	"ticket-issuer/monitoring"
	"ticket-issuer/utils"
)

const maxTicketIDAttempts = 5

// TicketNotifier delivers a freshly issued ticket to its buyer in the
// background.
type TicketNotifier interface {
	DispatchTicket(ticket models.IssuedTicket)
}

type IssueRequest struct {
	Buyer      models.Buyer
	Type       models.TicketType
	Amount     decimal.Decimal
	Provenance models.Provenance
}

// TicketIssuer turns a confirmed payment into a delivered ticket.
type TicketIssuer interface {
	Issue(ctx context.Context, req IssueRequest) (*models.IssuedTicket, error)
}

type IssuanceConfig struct {
	TicketPrefix string
	StoreTimeout time.Duration
}

type IssuanceService struct {
	repo     store.TicketRepository
	codec    *credential.Codec
	notifier TicketNotifier
	feed     realtime.Publisher
	cfg      IssuanceConfig
	logger   *slog.Logger

	now   func() time.Time
	newID func(prefix string, year int) (string, error)
}

func NewIssuanceService(
	repo store.TicketRepository,
	codec *credential.Codec,
	notifier TicketNotifier,
	feed realtime.Publisher,
	cfg IssuanceConfig,
	logger *slog.Logger,
) *IssuanceService {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &IssuanceService{
		repo:     repo,
		codec:    codec,
		notifier: notifier,
		feed:     feed,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		newID:    utils.TicketID,
	}
}

// Issue mints, signs and persists one ticket, then hands it to the notifier.
// Only minting and persistence can fail the call.
func (s *IssuanceService) Issue(ctx context.Context, req IssueRequest) (*models.IssuedTicket, error) {
	ticket, err := s.Mint(ctx, req)
	if err != nil {
		return nil, err
	}
	s.Deliver(*ticket)
	return ticket, nil
}

// Mint creates and stores the ticket without notifying anybody.
func (s *IssuanceService) Mint(ctx context.Context, req IssueRequest) (*models.IssuedTicket, error) {
	started := s.now()

	if strings.TrimSpace(req.Buyer.Name) == "" || strings.TrimSpace(req.Buyer.Email) == "" {
		return nil, fmt.Errorf("%w: buyer name and email", status.ErrMissingFields)
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", status.ErrInvalidTicketType, req.Type)
	}
	if req.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: %s", status.ErrInvalidAmount, req.Amount)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	issuedAt := started.UTC()
	id, err := s.uniqueID(ctx, issuedAt.Year())
	if err != nil {
		return nil, err
	}

	payload := models.TicketPayload{
		ID:        id,
		Name:      req.Buyer.Name,
		Email:     req.Buyer.Email,
		Type:      req.Type,
		Amount:    req.Amount,
		IssuedAt:  issuedAt,
		Source:    req.Provenance.Source,
		OrderID:   req.Provenance.OrderID,
		CaptureID: req.Provenance.CaptureID,
		Reference: req.Provenance.Reference,
	}

	token, err := s.codec.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("issue ticket: %w", err)
	}

	record := models.TicketRecord{
		ID:       id,
		Email:    req.Buyer.Email,
		Type:     req.Type,
		Hash:     models.IntegrityHash(req.Buyer.Email, id, req.Type),
		IssuedAt: issuedAt,
		Status:   models.StatusValid,
	}
	if err := s.repo.Save(ctx, record); err != nil {
		s.logger.Error("persist ticket failed", "ticket_id", id, "error", err)
		return nil, err
	}

	monitoring.TrackIssued(string(req.Type), string(req.Provenance.Source), s.now().Sub(started))
	s.logger.Info("ticket issued",
		"ticket_id", id,
		"type", req.Type,
		"source", req.Provenance.Source,
		"order_id", req.Provenance.OrderID,
		"reference", req.Provenance.Reference,
	)

	return &models.IssuedTicket{Record: record, Payload: payload, Token: token}, nil
}

// Deliver emails the ticket and announces it on the live feed. It never
// blocks on either.
func (s *IssuanceService) Deliver(ticket models.IssuedTicket) {
	s.notifier.DispatchTicket(ticket)
	s.feed.Publish(realtime.Event{
		Kind:     realtime.EventIssued,
		TicketID: ticket.Payload.ID,
		Type:     string(ticket.Payload.Type),
		At:       ticket.Payload.IssuedAt,
	})
}

// uniqueID draws ids until one is unknown to the repository.
func (s *IssuanceService) uniqueID(ctx context.Context, year int) (string, error) {
	for attempt := 0; attempt < maxTicketIDAttempts; attempt++ {
		id, err := s.newID(s.cfg.TicketPrefix, year)
		if err != nil {
			return "", fmt.Errorf("generate ticket id: %w", err)
		}

		_, err = s.repo.Get(ctx, id)
		if errors.Is(err, status.ErrTicketNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
		s.logger.Warn("ticket id collision, drawing again", "ticket_id", id)
	}
	return "", fmt.Errorf("%w: no unique ticket id after %d attempts", status.ErrStorage, maxTicketIDAttempts)
}
