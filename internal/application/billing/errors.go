package billing

import (
	"errors"

	"github.com/inmobiliaria/backend/internal/domain/shared"
)

var (
	// ErrInvalidSignature is returned when the webhook signature header is missing or does not verify
	ErrInvalidSignature = errors.New("webhook: signature verification failed")
	// ErrWebhookSecretMissing is returned when no secret is configured and insecure mode is off
	ErrWebhookSecretMissing = errors.New("webhook: secret not configured")
	// ErrMalformedEvent is returned when an event body cannot be decoded
	ErrMalformedEvent = errors.New("webhook: malformed event payload")
	// ErrGatewayRefundFailed wraps errors returned by the gateway refund command
	ErrGatewayRefundFailed = errors.New("refund: gateway refund failed")
)

// Refund business-rule errors
var (
	ErrRefundNotFound          = shared.NewDomainError("REFUND_NOT_FOUND", "Refund not found")
	ErrRefundExceedsPaid       = shared.NewDomainError("REFUND_EXCEEDS_PAID", "Refund amount exceeds paid")
	ErrMissingPaymentReference = shared.NewDomainError("MISSING_PAYMENT_REFERENCE", "Payment has no gateway reference to refund against")
)

// Subscription command errors
var (
	ErrSubscriptionNotFound = shared.NewDomainError("SUBSCRIPTION_NOT_FOUND", "Subscription not found")
	ErrCustomerNotFound     = shared.NewDomainError("CUSTOMER_NOT_FOUND", "Customer not found")
	ErrMissingPriceID       = shared.NewDomainError("MISSING_PRICE_ID", "A gateway price id is required")
	ErrSubscriptionCanceled = shared.NewDomainError("SUBSCRIPTION_CANCELED", "Subscription is already canceled")
)

// IsRejectedWebhook reports whether err means the notification itself was unacceptable
// (bad signature, no secret, undecodable body). Such errors map to 400 and are never retried.
func IsRejectedWebhook(err error) bool {
	return errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrWebhookSecretMissing) ||
		errors.Is(err, ErrMalformedEvent)
}

// isTransient reports whether a processing failure may succeed on a later attempt
func isTransient(err error) bool {
	if err == nil || IsRejectedWebhook(err) {
		return false
	}
	return !shared.IsDomainError(err)
}
