package billing

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"
)

// StripeConfig holds configuration for the Stripe gateway
type StripeConfig struct {
	// SecretKey is the Stripe secret API key (sk_test_xxx, sk_live_xxx or a restricted rk_ key)
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`

	// WebhookSecret is the signing secret of the webhook endpoint (whsec_xxx).
	// Empty means signatures cannot be verified.
	WebhookSecret string `json:"webhook_secret" mapstructure:"webhook_secret"`

	// Currency is the ISO code of every amount exchanged with Stripe (e.g., "mxn")
	Currency string `json:"currency" mapstructure:"currency"`

	HTTPTimeout       time.Duration `json:"http_timeout" mapstructure:"http_timeout"`
	MaxNetworkRetries int           `json:"max_network_retries" mapstructure:"max_network_retries"`
}

// DefaultStripeConfig returns a default configuration for development/testing
func DefaultStripeConfig() *StripeConfig {
	return &StripeConfig{
		Currency:          "mxn",
		HTTPTimeout:       30 * time.Second,
		MaxNetworkRetries: 2,
	}
}

// Validate validates the Stripe configuration
func (c *StripeConfig) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("stripe: secret key is required")
	}
	if !strings.HasPrefix(c.SecretKey, "sk_") && !strings.HasPrefix(c.SecretKey, "rk_") {
		return fmt.Errorf("stripe: secret key must start with sk_ or rk_")
	}
	if c.WebhookSecret != "" && !strings.HasPrefix(c.WebhookSecret, "whsec_") {
		return fmt.Errorf("stripe: webhook secret must start with whsec_")
	}
	if c.Currency == "" {
		return fmt.Errorf("stripe: currency is required")
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("stripe: http timeout cannot be negative")
	}
	if c.MaxNetworkRetries < 0 {
		return fmt.Errorf("stripe: max network retries cannot be negative")
	}
	return nil
}

// IsTestMode reports whether the key belongs to Stripe test mode
func (c *StripeConfig) IsTestMode() bool {
	return strings.HasPrefix(c.SecretKey, "sk_test_") || strings.HasPrefix(c.SecretKey, "rk_test_")
}

// newBackend builds the API backend with the configured timeout and retry policy
func (c *StripeConfig) newBackend() stripe.Backend {
	timeout := c.HTTPTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(int64(c.MaxNetworkRetries)),
	})
}
