package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-issuer/config"
	"ticket-issuer/internal/services"
	"ticket-issuer/internal/services/credential"
	"ticket-issuer/internal/services/payment"
	"ticket-issuer/internal/services/realtime"
	"ticket-issuer/internal/services/store"
	"ticket-issuer/internal/status"
	"ticket-issuer/models"
)

type nopNotifier struct {
	mu      sync.Mutex
	tickets int
}

func (n *nopNotifier) DispatchTicket(models.IssuedTicket) {
	n.mu.Lock()
	n.tickets++
	n.mu.Unlock()
}

func (n *nopNotifier) DispatchReservation(models.Reservation) {}

type testServer struct {
	cfg     *config.Config
	repo    *store.MemoryStore
	orders  *OrderHandler
	tickets *TicketHandler
	system  *SystemHandler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		EventName:     "Soirée AFARIS",
		EventDate:     "2025-12-27",
		Currency:      "EUR",
		PriceStandard: decimal.NewFromInt(25),
		PriceVIP:      decimal.NewFromInt(45),
		PayPalEnv:     "sandbox",
		IBAN:          "FR7630006000011234567890189",
		BIC:           "AGRIFRPP",
		TicketPrefix:  "AFR",
	}

	repo := store.NewMemoryStore()
	codec := credential.NewCodec("handler-secret")
	notifier := &nopNotifier{}

	issuance := services.NewIssuanceService(repo, codec, notifier, realtime.Nop{},
		services.IssuanceConfig{TicketPrefix: cfg.TicketPrefix}, logger)
	validation := services.NewValidationService(repo, codec, realtime.Nop{}, time.Second, logger)
	orders := services.NewOrderService(payment.NewOfflineProvider(), issuance, notifier, services.OrderConfig{
		Prices:          cfg.Prices(),
		Currency:        cfg.Currency,
		ReferencePrefix: cfg.TicketPrefix,
	}, logger)

	return &testServer{
		cfg:     cfg,
		repo:    repo,
		orders:  NewOrderHandler(orders, cfg, logger),
		tickets: NewTicketHandler(issuance, validation, cfg, logger),
		system:  NewSystemHandler(cfg, nil),
	}
}

// call runs handler against a JSON request and decodes the JSON response.
func call(t *testing.T, handler func(*core.RequestEvent) error, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	e := &core.RequestEvent{}
	e.Request = req
	e.Response = rec

	require.NoError(t, handler(e))

	out := map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func TestCreateOrder_Transfer(t *testing.T) {
	s := newTestServer(t)

	code, body := call(t, s.orders.CreateOrder, http.MethodPost, "/api/create-order", map[string]any{
		"name": "A. Dupont", "email": "a@example.com", "ticketType": "standard", "amount": 25, "method": "transfer",
	})

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "transfer", body["method"])
	assert.Regexp(t, `^AFR-\d{4}-\d{5}$`, body["referenceCode"])
	assert.Equal(t, s.cfg.IBAN, body["iban"])
	assert.Equal(t, s.cfg.BIC, body["bic"])
	assert.Equal(t, 0, s.repo.Len())
}

func TestCreateOrder_Rejections(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		body     map[string]any
		wantCode int
		wantErr  string
	}{
		{
			name:     "missing email",
			body:     map[string]any{"name": "A", "ticketType": "vip", "amount": 45, "method": "card"},
			wantCode: http.StatusBadRequest,
			wantErr:  "Missing fields",
		},
		{
			name:     "missing amount",
			body:     map[string]any{"name": "A", "email": "a@example.com", "ticketType": "vip", "method": "card"},
			wantCode: http.StatusBadRequest,
			wantErr:  "Missing fields",
		},
		{
			name:     "invalid method",
			body:     map[string]any{"name": "A", "email": "a@example.com", "ticketType": "vip", "amount": 45, "method": "cash"},
			wantCode: http.StatusBadRequest,
			wantErr:  "Invalid method",
		},
		{
			name:     "invalid email",
			body:     map[string]any{"name": "A", "email": "not-an-email", "ticketType": "vip", "amount": 45, "method": "card"},
			wantCode: http.StatusBadRequest,
			wantErr:  "Invalid email",
		},
		{
			name:     "invalid type",
			body:     map[string]any{"name": "A", "email": "a@example.com", "ticketType": "gold", "amount": 45, "method": "card"},
			wantCode: http.StatusBadRequest,
			wantErr:  "Invalid ticket type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := call(t, s.orders.CreateOrder, http.MethodPost, "/api/create-order", tt.body)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantErr, body["error"])
		})
	}
}

func TestCardFlow_CaptureIsIdempotent(t *testing.T) {
	s := newTestServer(t)

	code, body := call(t, s.orders.CreateOrder, http.MethodPost, "/api/create-order", map[string]any{
		"name": "A. Dupont", "email": "a@example.com", "ticketType": "vip", "amount": 45, "method": "card",
	})
	require.Equal(t, http.StatusOK, code)
	orderID, _ := body["orderId"].(string)
	require.NotEmpty(t, orderID)

	code, first := call(t, s.orders.CaptureOrder, http.MethodPost, "/api/paypal/capture", map[string]any{
		"orderId": orderID, "name": "ignored", "email": "ignored@example.com", "amount": 1, "ticketType": "standard",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, first["ok"])
	assert.Equal(t, false, first["cached"])
	assert.NotEmpty(t, first["ticketId"])

	code, second := call(t, s.orders.CaptureOrder, http.MethodPost, "/api/paypal/capture-order", map[string]any{"orderId": orderID})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, second["cached"])
	assert.Equal(t, first["ticketId"], second["ticketId"])
	assert.Equal(t, 1, s.repo.Len())

	stored, err := s.repo.Get(context.Background(), first["ticketId"].(string))
	require.NoError(t, err)
	assert.Equal(t, models.TicketVIP, stored.Type)
}

func TestCreateCardOrder_MultipleTickets(t *testing.T) {
	s := newTestServer(t)

	code, body := call(t, s.orders.CreateCardOrder, http.MethodPost, "/api/paypal/create-order", map[string]any{
		"name": "A. Dupont", "email": "a@example.com", "tickets": map[string]int{"standard": 2, "vip": 1},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "95.00", body["amount"])

	code, out := call(t, s.orders.CaptureOrder, http.MethodPost, "/api/paypal/capture-order", map[string]any{"orderId": body["id"]})
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["ticketIds"], 3)
	assert.Equal(t, float64(3), out["emailsQueued"])
	assert.Equal(t, out["emailsQueued"], out["emailsSent"])
	assert.Equal(t, 3, s.repo.Len())
}

func TestCreateCardOrder_NoTickets(t *testing.T) {
	s := newTestServer(t)

	code, body := call(t, s.orders.CreateCardOrder, http.MethodPost, "/api/paypal/create-order", map[string]any{
		"name": "A. Dupont", "email": "a@example.com", "tickets": map[string]int{},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Missing fields", body["error"])
}

func TestConfirmTransfer_MissingReference(t *testing.T) {
	s := newTestServer(t)

	code, body := call(t, s.orders.ConfirmTransfer, http.MethodPost, "/api/confirm-transfer", map[string]any{"referenceCode": "  "})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Missing fields", body["error"])
}

func TestCheckRequest(t *testing.T) {
	v := newValidator()

	type req struct {
		Name  string `validate:"required"`
		Email string `validate:"required,email"`
	}

	assert.NoError(t, checkRequest(v, &req{Name: "A", Email: "a@example.com"}))
	assert.ErrorIs(t, checkRequest(v, &req{Email: "bad"}), status.ErrMissingFields)
	assert.ErrorIs(t, checkRequest(v, &req{Name: "A", Email: "bad"}), status.ErrInvalidEmail)
}

func TestCaptureOrder_Unknown(t *testing.T) {
	s := newTestServer(t)

	code, body := call(t, s.orders.CaptureOrder, http.MethodPost, "/api/paypal/capture", map[string]any{"orderId": "nope"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Order not found", body["error"])
}

func TestConfirmTransfer(t *testing.T) {
	s := newTestServer(t)

	code, body := call(t, s.orders.ConfirmTransfer, http.MethodPost, "/api/confirm-transfer", map[string]any{"referenceCode": "AFR-2025-00000"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Reservation not found", body["error"])
	assert.Equal(t, 0, s.repo.Len())

	_, created := call(t, s.orders.CreateOrder, http.MethodPost, "/api/create-order", map[string]any{
		"name": "A. Dupont", "email": "a@example.com", "ticketType": "standard", "amount": 25, "method": "transfer",
	})

	code, body = call(t, s.orders.ConfirmTransfer, http.MethodPost, "/api/confirm-transfer", map[string]any{
		"referenceCode": created["referenceCode"], "ticketType": "vip",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	assert.NotEmpty(t, body["ticketId"])

	stored, err := s.repo.Get(context.Background(), body["ticketId"].(string))
	require.NoError(t, err)
	assert.Equal(t, models.TicketVIP, stored.Type)
}

func TestConfirmTransfer_TicketTypeOverrideIsNormalised(t *testing.T) {
	s := newTestServer(t)

	_, created := call(t, s.orders.CreateOrder, http.MethodPost, "/api/create-order", map[string]any{
		"name": "A. Dupont", "email": "a@example.com", "ticketType": "standard", "amount": 25, "method": "transfer",
	})

	code, body := call(t, s.orders.ConfirmTransfer, http.MethodPost, "/api/confirm-transfer", map[string]any{
		"referenceCode": created["referenceCode"], "ticketType": "gold",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid ticket type", body["error"])

	code, body = call(t, s.orders.ConfirmTransfer, http.MethodPost, "/api/confirm-transfer", map[string]any{
		"referenceCode": created["referenceCode"], "ticketType": " VIP ",
	})
	require.Equal(t, http.StatusOK, code)

	stored, err := s.repo.Get(context.Background(), body["ticketId"].(string))
	require.NoError(t, err)
	assert.Equal(t, models.TicketVIP, stored.Type)
}

func TestValidateEndpoint(t *testing.T) {
	s := newTestServer(t)

	code, issued := call(t, s.tickets.IssueTestTicket, http.MethodPost, "/api/test/issue-ticket", map[string]any{
		"name": "A. Dupont", "email": "a@example.com", "ticketType": "vip",
	})
	require.Equal(t, http.StatusOK, code)
	token, _ := issued["token"].(string)
	require.NotEmpty(t, token)

	code, body := call(t, s.tickets.Validate, http.MethodPost, "/api/validate", map[string]any{"token": token})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, issued["ticketId"], body["ticketId"])
	assert.Equal(t, "A. Dupont", body["name"])
	assert.Equal(t, "vip", body["type"])

	code, body = call(t, s.tickets.Validate, http.MethodPost, "/api/validate", map[string]any{"token": token})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, ReasonAlreadyUsed, body["reason"])

	code, body = call(t, s.tickets.Validate, http.MethodPost, "/api/validate", map[string]any{"token": "garbage"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, ReasonInvalidOrExpired, body["reason"])

	code, body = call(t, s.tickets.Validate, http.MethodPost, "/api/validate", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, ReasonInvalidOrExpired, body["reason"])
}

func TestIssueTestTicket_Invalid(t *testing.T) {
	s := newTestServer(t)

	code, body := call(t, s.tickets.IssueTestTicket, http.MethodPost, "/api/test/issue-ticket", map[string]any{
		"name": "A. Dupont", "email": "a@example.com", "ticketType": "backstage",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid ticket type", body["error"])
}

func TestValidationErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		code   int
		reason string
	}{
		{status.ErrInvalidOrExpired, http.StatusBadRequest, ReasonInvalidOrExpired},
		{status.ErrIntegrityMismatch, http.StatusBadRequest, ReasonInvalidOrExpired},
		{status.ErrTicketNotFound, http.StatusNotFound, ReasonNotFound},
		{status.ErrAlreadyUsed, http.StatusBadRequest, ReasonAlreadyUsed},
		{status.ErrStorage, http.StatusInternalServerError, ReasonServerError},
	}
	for _, tt := range tests {
		code, reason := validationErrorStatus(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
		assert.Equal(t, tt.reason, reason, tt.err.Error())
	}
}

func TestOrderErrorStatus(t *testing.T) {
	code, msg := orderErrorStatus(errors.Join(status.ErrPaymentProvider, errors.New("503")))
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "Payment provider error", msg)

	code, _ = orderErrorStatus(status.ErrPaymentNotCompleted)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = orderErrorStatus(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	s.system.now = func() time.Time { return time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC) }

	code, body := call(t, s.system.Health, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "2025-12-01T10:00:00.000Z", body["time"])
}

func TestHealth_RedisDown(t *testing.T) {
	s := newTestServer(t)
	client, mock := redismock.NewClientMock()
	mock.ExpectPing().SetErr(errors.New("connection refused"))
	s.system.redis = client

	code, body := call(t, s.system.Health, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, false, body["ok"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigEndpoint(t *testing.T) {
	s := newTestServer(t)

	code, body := call(t, s.system.Config, http.MethodGet, "/api/config", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "EUR", body["currency"])
	assert.Equal(t, true, body["transferEnabled"])

	event, _ := body["event"].(map[string]any)
	assert.Equal(t, "Soirée AFARIS", event["name"])
}
