package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-issuer/internal/services/credential"
	"ticket-issuer/internal/services/realtime"
	"ticket-issuer/internal/status"
	"ticket-issuer/models"
)

func issueOne(t *testing.T, h *harness) *models.IssuedTicket {
	t.Helper()
	ticket, err := h.issuance.Issue(context.Background(), dupontRequest())
	require.NoError(t, err)
	return ticket
}

func TestValidate_RedeemsOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ticket := issueOne(t, h)

	h.clock.Advance(2 * time.Hour)
	redemption, err := h.validation.Validate(ctx, ticket.Token)
	require.NoError(t, err)
	assert.True(t, testNow.Add(2*time.Hour).Equal(redemption.UsedAt))

	stored, err := h.repo.Get(ctx, ticket.Payload.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUsed, stored.Status)
	require.NotNil(t, stored.UsedAt)

	ev := h.feed.last()
	assert.Equal(t, realtime.EventRedeemed, ev.Kind)
	assert.Equal(t, "A. Dupont", ev.Name)

	_, err = h.validation.Validate(ctx, ticket.Token)
	assert.ErrorIs(t, err, status.ErrAlreadyUsed)

	ev = h.feed.last()
	assert.Equal(t, realtime.EventRejected, ev.Kind)
	assert.Equal(t, OutcomeAlreadyUsed, ev.Reason)
	assert.Equal(t, ticket.Payload.ID, ev.TicketID)
}

func TestValidate_TamperedToken(t *testing.T) {
	h := newHarness(t, nil)
	ticket := issueOne(t, h)

	tampered := ticket.Token[:len(ticket.Token)-2] + "xx"
	if tampered == ticket.Token {
		tampered = ticket.Token[:len(ticket.Token)-2] + "yy"
	}

	_, err := h.validation.Validate(context.Background(), tampered)
	assert.ErrorIs(t, err, status.ErrInvalidOrExpired)

	stored, err := h.repo.Get(context.Background(), ticket.Payload.ID)
	require.NoError(t, err)
	assert.False(t, stored.Used())
}

func TestValidate_ForeignSecret(t *testing.T) {
	h := newHarness(t, nil)
	ticket := issueOne(t, h)

	foreign := credential.NewCodec("other-secret", credential.WithClock(h.clock.Now))
	forged, err := foreign.Sign(ticket.Payload)
	require.NoError(t, err)

	_, err = h.validation.Validate(context.Background(), forged)
	assert.ErrorIs(t, err, status.ErrInvalidOrExpired)
	assert.ErrorIs(t, err, credential.ErrSignatureInvalid)
}

func TestValidate_ExpiredToken(t *testing.T) {
	h := newHarness(t, nil)
	ticket := issueOne(t, h)

	h.clock.Advance(credential.DefaultTTL + time.Hour)

	_, err := h.validation.Validate(context.Background(), ticket.Token)
	assert.ErrorIs(t, err, status.ErrInvalidOrExpired)
	assert.ErrorIs(t, err, credential.ErrExpired)
}

func TestValidate_Garbage(t *testing.T) {
	h := newHarness(t, nil)

	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		_, err := h.validation.Validate(context.Background(), raw)
		assert.ErrorIs(t, err, status.ErrInvalidOrExpired, raw)
	}
}

func TestValidate_UnknownTicket(t *testing.T) {
	h := newHarness(t, nil)

	token, err := h.codec.Sign(models.TicketPayload{
		ID:       "AFR-2025-000000000000",
		Name:     "Ghost",
		Email:    "ghost@example.com",
		Type:     models.TicketStandard,
		Amount:   decimal.NewFromInt(25),
		IssuedAt: testNow,
		Source:   models.SourceTest,
	})
	require.NoError(t, err)

	_, err = h.validation.Validate(context.Background(), token)
	assert.ErrorIs(t, err, status.ErrTicketNotFound)
	assert.Equal(t, OutcomeUnknownTicket, h.feed.last().Reason)
}

func TestValidate_IntegrityMismatch(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ticket := issueOne(t, h)

	// The stored record says standard while the token claims vip.
	record := ticket.Record
	record.Type = models.TicketStandard
	record.Hash = models.IntegrityHash(record.Email, record.ID, models.TicketStandard)
	require.NoError(t, h.repo.Save(ctx, record))

	_, err := h.validation.Validate(ctx, ticket.Token)
	assert.ErrorIs(t, err, status.ErrIntegrityMismatch)

	stored, err := h.repo.Get(ctx, ticket.Payload.ID)
	require.NoError(t, err)
	assert.False(t, stored.Used())
}

func TestValidate_StorageFailure(t *testing.T) {
	h := newHarness(t, nil)
	ticket := issueOne(t, h)

	svc := NewValidationService(failingRepo{}, h.codec, h.feed, time.Second, discardLogger())
	_, err := svc.Validate(context.Background(), ticket.Token)
	assert.ErrorIs(t, err, status.ErrStorage)
	assert.Equal(t, OutcomeStorageError, h.feed.last().Reason)
}

func TestValidate_ConcurrentScansRedeemOnce(t *testing.T) {
	h := newHarness(t, nil)
	ticket := issueOne(t, h)

	const scanners = 20
	var (
		wg          sync.WaitGroup
		redeemed    atomic.Int32
		alreadyUsed atomic.Int32
	)
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.validation.Validate(context.Background(), ticket.Token)
			switch {
			case err == nil:
				redeemed.Add(1)
			case assert.ErrorIs(t, err, status.ErrAlreadyUsed):
				alreadyUsed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), redeemed.Load())
	assert.Equal(t, int32(scanners-1), alreadyUsed.Load())
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeRedeemed, outcomeOf(nil))
	assert.Equal(t, OutcomeInvalidOrExpired, outcomeOf(status.ErrInvalidOrExpired))
	assert.Equal(t, OutcomeUnknownTicket, outcomeOf(ticketIDError{id: "x", err: status.ErrTicketNotFound}))
	assert.Equal(t, OutcomeIntegrityMismatch, outcomeOf(status.ErrIntegrityMismatch))
	assert.Equal(t, OutcomeAlreadyUsed, outcomeOf(status.ErrAlreadyUsed))
	assert.Equal(t, OutcomeStorageError, outcomeOf(status.ErrStorage))
}
