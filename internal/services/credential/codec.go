// Package credential mints and verifies the signed tokens encoded in ticket
// QR codes.
package credential

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"ticket-issuer/models"
)

// DefaultTTL is how long a ticket token stays valid after issuance.
const DefaultTTL = 30 * 24 * time.Hour

var (
	ErrExpired          = errors.New("credential: token expired")
	ErrMalformed        = errors.New("credential: token malformed")
	ErrSignatureInvalid = errors.New("credential: signature invalid")
)

// Codec signs ticket payloads with a process-wide HMAC secret.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Codec)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) { c.ttl = ttl }
}

func NewCodec(secret string, opts ...Option) *Codec {
	c := &Codec{
		secret: []byte(secret),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ticketClaims is the wire form of models.TicketPayload. Field names differ
// from jwt.RegisteredClaims so the embedded jti/iat do not shadow id/issuedAt.
type ticketClaims struct {
	jwt.RegisteredClaims
	TicketID  string          `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	IssuedMs  int64           `json:"issuedAt"`
	Source    string          `json:"source,omitempty"`
	OrderID   string          `json:"orderId,omitempty"`
	CaptureID string          `json:"captureId,omitempty"`
	Reference string          `json:"reference,omitempty"`
}

// Sign returns a compact HS256 JWT carrying the payload, expiring TTL after
// the current time.
func (c *Codec) Sign(p models.TicketPayload) (string, error) {
	if strings.TrimSpace(p.ID) == "" {
		return "", fmt.Errorf("%w: ticket id is required", ErrMalformed)
	}
	if !p.Type.Valid() {
		return "", fmt.Errorf("%w: ticket type %q", ErrMalformed, p.Type)
	}

	now := c.now()
	claims := ticketClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		TicketID:  p.ID,
		Name:      p.Name,
		Email:     p.Email,
		Type:      string(p.Type),
		Amount:    p.Amount,
		IssuedMs:  p.IssuedAt.UnixMilli(),
		Source:    string(p.Source),
		OrderID:   p.OrderID,
		CaptureID: p.CaptureID,
		Reference: p.Reference,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign ticket %s: %w", p.ID, err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the embedded payload. The
// returned error always wraps exactly one of ErrExpired, ErrMalformed or
// ErrSignatureInvalid.
func (c *Codec) Verify(raw string) (models.TicketPayload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.TicketPayload{}, fmt.Errorf("%w: empty token", ErrMalformed)
	}

	var claims ticketClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return models.TicketPayload{}, mapJWTError(err)
	}

	if strings.TrimSpace(claims.TicketID) == "" {
		return models.TicketPayload{}, fmt.Errorf("%w: missing ticket id", ErrMalformed)
	}
	ticketType := models.TicketType(claims.Type)
	if !ticketType.Valid() {
		return models.TicketPayload{}, fmt.Errorf("%w: ticket type %q", ErrMalformed, claims.Type)
	}

	return models.TicketPayload{
		ID:        claims.TicketID,
		Name:      claims.Name,
		Email:     claims.Email,
		Type:      ticketType,
		Amount:    claims.Amount,
		IssuedAt:  time.UnixMilli(claims.IssuedMs).UTC(),
		Source:    models.Source(claims.Source),
		OrderID:   claims.OrderID,
		CaptureID: claims.CaptureID,
		Reference: claims.Reference,
	}, nil
}

// mapJWTError folds jwt library errors into the three credential kinds.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
