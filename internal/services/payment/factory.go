package payment

import (
	"fmt"
	"time"

	"ticket-issuer/internal/services/payment/paypal"
)

type Options struct {
	Env         string
	ClientID    string
	Secret      string
	Timeout     time.Duration
	Development bool
}

// New picks the card provider. PayPal is used whenever credentials exist;
// without them the offline provider is allowed in development only.
func New(opts Options) (Provider, error) {
	if opts.ClientID != "" && opts.Secret != "" {
		return NewBreaker(NewPayPalAdapter(paypal.Config{
			Env:      opts.Env,
			ClientID: opts.ClientID,
			Secret:   opts.Secret,
			Timeout:  opts.Timeout,
		})), nil
	}

	if opts.Development {
		return NewOfflineProvider(), nil
	}
	return nil, fmt.Errorf("PAYPAL_CLIENT_ID and PAYPAL_SECRET are required outside development")
}
