package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"ticket-issuer/models"
)

type Config struct {
	// Server configuration
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	PublicDir   string `env:"PUBLIC_DIR"`

	// Event
	EventName      string `env:"EVENT_NAME" envDefault:"Soirée AFARIS – Décembre 2025"`
	EventDate      string `env:"EVENT_DATE" envDefault:"2025-12-27"`
	OrganizerEmail string `env:"ORGANIZER_EMAIL" envDefault:"billets@afaris.com"`

	// Tickets
	JWTSecret     string          `env:"JWT_SECRET" envDefault:"dev_secret"`
	TicketPrefix  string          `env:"TICKET_PREFIX" envDefault:"AFR"`
	TicketTTL     time.Duration   `env:"TICKET_TTL" envDefault:"720h"`
	Currency      string          `env:"CURRENCY" envDefault:"EUR"`
	PriceStandard decimal.Decimal `env:"PRICE_STANDARD" envDefault:"25"`
	PriceVIP      decimal.Decimal `env:"PRICE_VIP" envDefault:"45"`

	// Ticket store
	TicketStore     string        `env:"TICKET_STORE" envDefault:"pocketbase"`
	TicketStoreFile string        `env:"TICKET_STORE_FILE" envDefault:"data/tickets.fallback.json"`
	StoreTimeout    time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	// Redis configuration
	RedisURL string `env:"REDIS_URL"`

	// PayPal
	PayPalEnv      string        `env:"PAYPAL_ENV" envDefault:"sandbox"`
	PayPalClientID string        `env:"PAYPAL_CLIENT_ID"`
	PayPalSecret   string        `env:"PAYPAL_SECRET"`
	PaymentTimeout time.Duration `env:"PAYMENT_TIMEOUT" envDefault:"15s"`

	// Bank transfer
	IBAN string `env:"IBAN"`
	BIC  string `env:"BIC"`

	// Email
	EmailProvider string        `env:"EMAIL_PROVIDER" envDefault:"smtp"`
	SMTPHost      string        `env:"SMTP_HOST"`
	SMTPPort      int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser      string        `env:"SMTP_USER"`
	SMTPPass      string        `env:"SMTP_PASS"`
	SMTPTLS       bool          `env:"SMTP_TLS" envDefault:"false"`
	ResendAPIKey  string        `env:"RESEND_API_KEY"`
	EmailTimeout  time.Duration `env:"EMAIL_TIMEOUT" envDefault:"20s"`

	// PubNub scan feed
	PubNubPublishKey   string `env:"PUBNUB_PUBLISH_KEY"`
	PubNubSubscribeKey string `env:"PUBNUB_SUBSCRIBE_KEY"`
	PubNubUserID       string `env:"PUBNUB_USER_ID" envDefault:"ticket-issuer"`
	PubNubScanChannel  string `env:"PUBNUB_SCAN_CHANNEL" envDefault:"door-scans"`

	// Security
	StaffKeyHash       string `env:"STAFF_KEY_HASH"`
	RateLimitPerMinute int64  `env:"RATE_LIMIT_PER_MINUTE" envDefault:"30"`

	// Feature flags
	EnableTestIssuance bool `env:"ENABLE_TEST_ISSUANCE" envDefault:"false"`

	// Monitoring
	EnableMetrics bool `env:"ENABLE_METRICS" envDefault:"true"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that would make the issuer unsafe to run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.IsProduction() && c.JWTSecret == "dev_secret" {
		return errors.New("JWT_SECRET must be changed in production")
	}
	if c.IsProduction() && strings.TrimSpace(c.StaffKeyHash) == "" {
		return errors.New("STAFF_KEY_HASH is required in production")
	}
	if c.TicketTTL <= 0 {
		return errors.New("TICKET_TTL must be positive")
	}
	if c.PriceStandard.IsNegative() || c.PriceVIP.IsNegative() {
		return errors.New("ticket prices must not be negative")
	}
	if c.PayPalEnv != "sandbox" && c.PayPalEnv != "live" {
		return fmt.Errorf("PAYPAL_ENV must be sandbox or live, got %q", c.PayPalEnv)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) Prices() models.Prices {
	return models.Prices{
		models.TicketStandard: c.PriceStandard,
		models.TicketVIP:      c.PriceVIP,
	}
}

func (c *Config) Event() models.Event {
	return models.Event{
		Name:           c.EventName,
		Date:           c.EventDate,
		OrganizerEmail: c.OrganizerEmail,
	}
}

// Public returns the subset of settings safe to expose to buyers.
func (c *Config) Public() models.PublicConfig {
	return models.PublicConfig{
		Event:           c.Event(),
		Currency:        c.Currency,
		Prices:          c.Prices(),
		PayPalClientID:  c.PayPalClientID,
		PayPalEnv:       c.PayPalEnv,
		TransferEnabled: c.IBAN != "",
		TestIssuance:    c.EnableTestIssuance,
	}
}
