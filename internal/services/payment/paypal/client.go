// Package paypal is a minimal client for the PayPal Orders v2 API.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SandboxURL = "https://api-m.sandbox.paypal.com"
	LiveURL    = "https://api-m.paypal.com"
)

// ErrUnauthorized is returned when PayPal rejects the client credentials.
var ErrUnauthorized = errors.New("paypal: unauthorized")

// IssueOrderAlreadyCaptured is reported when a capture is repeated after
// PayPal already took the money.
const IssueOrderAlreadyCaptured = "ORDER_ALREADY_CAPTURED"

// APIError is a non-2xx PayPal reply.
type APIError struct {
	StatusCode int    `json:"-"`
	Name       string `json:"name"`
	Message    string `json:"message"`
	Details    []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`

	raw string
}

func (e *APIError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.raw)
	}
	return fmt.Sprintf("status %d: %s %s", e.StatusCode, e.Name, e.Issue())
}

// Issue returns the first detail issue, falling back to the error name.
func (e *APIError) Issue() string {
	for _, d := range e.Details {
		if d.Issue != "" {
			return d.Issue
		}
	}
	return e.Name
}

func (e *APIError) HasIssue(issue string) bool {
	for _, d := range e.Details {
		if d.Issue == issue {
			return true
		}
	}
	return false
}

// Rejected reports a business refusal of the request (declined card,
// unapproved order) as opposed to a PayPal outage.
func (e *APIError) Rejected() bool {
	return e.StatusCode == http.StatusUnprocessableEntity
}

type Config struct {
	// Env is sandbox or live. BaseURL wins when set.
	Env      string
	BaseURL  string
	ClientID string
	Secret   string
	Timeout  time.Duration
}

type Client struct {
	// baseURL is the PayPal REST root.
	baseURL string

	clientID string
	secret   string

	// mu guards the cached OAuth token.
	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time

	now func() time.Time

	hc *http.Client
}

// Order is the subset of the PayPal order resource the issuer reads.
type Order struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CaptureID returns the first capture id of the order, if any.
func (o *Order) CaptureID() string {
	for _, unit := range o.PurchaseUnits {
		for _, capture := range unit.Payments.Captures {
			if capture.ID != "" {
				return capture.ID
			}
		}
	}
	return ""
}

func NewClient(c Config) *Client {
	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = SandboxURL
		if c.Env == "live" {
			baseURL = LiveURL
		}
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: c.ClientID,
		secret:   c.Secret,
		now:      time.Now,
		hc: &http.Client{
			Timeout: timeout,
		},
	}
}

// token returns a cached access token, fetching a new one when the cached
// token is missing or about to expire.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.expiresAt) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("paypal token: new request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paypal token: status %d: %s", resp.StatusCode, readSnippet(resp.Body))
	}

	var reply struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("paypal token: decode: %w", err)
	}
	if reply.AccessToken == "" {
		return "", errors.New("paypal token: empty access token")
	}

	// Renew a minute early so in-flight calls never carry a stale token.
	ttl := time.Duration(reply.ExpiresIn)*time.Second - time.Minute
	if ttl < 0 {
		ttl = 0
	}
	c.accessToken = reply.AccessToken
	c.expiresAt = c.now().Add(ttl)
	return c.accessToken, nil
}

func (c *Client) dropToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	c.expiresAt = time.Time{}
}

// CreateOrder registers a CAPTURE intent order for amount.
func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal, currency string) (*Order, error) {
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"amount": map[string]string{
				"currency_code": currency,
				"value":         amount.StringFixed(2),
			},
		}},
	}

	var order Order
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", nil, body, &order); err != nil {
		return nil, fmt.Errorf("paypal create order: %w", err)
	}
	if order.ID == "" {
		return nil, errors.New("paypal create order: empty order id")
	}
	return &order, nil
}

// CaptureOrder captures a previously approved order.
//
// Every attempt for one order carries the same PayPal-Request-Id, so a retry
// after a lost response replays the original capture. An order PayPal
// reports as already captured is read back instead.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	header := http.Header{"PayPal-Request-Id": {CaptureRequestID(orderID)}}

	err := c.do(ctx, http.MethodPost, path, header, map[string]any{}, &order)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.HasIssue(IssueOrderAlreadyCaptured) {
		return c.GetOrder(ctx, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("paypal capture %s: %w", orderID, err)
	}
	return &order, nil
}

// CaptureRequestID is the idempotency key sent with captures of orderID.
func CaptureRequestID(orderID string) string {
	return "capture-" + orderID
}

// GetOrder reads the current state of an order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), nil, nil, &order); err != nil {
		return nil, fmt.Errorf("paypal get order %s: %w", orderID, err)
	}
	return &order, nil
}

// do sends an authenticated JSON request, retrying once with a fresh token
// when PayPal answers 401. A nil in sends no body.
func (c *Client) do(ctx context.Context, method, path string, header http.Header, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
	}

	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.token(ctx)
		if err != nil {
			return err
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			c.dropToken()
			continue
		}

		err = decodeReply(resp, out)
		resp.Body.Close()
		return err
	}
	return ErrUnauthorized
}

func decodeReply(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, raw: readSnippet(resp.Body)}
		if apiErr.raw != "" {
			_ = json.Unmarshal([]byte(apiErr.raw), apiErr)
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	return strings.TrimSpace(string(b))
}
