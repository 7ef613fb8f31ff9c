package billing

import (
	"strings"
	"time"

	appbilling "github.com/inmobiliaria/backend/internal/application/billing"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
)

// Metadata key carrying the free-text refund reason; Stripe only accepts a closed set of reasons
const metadataRefundReason = "motivo"

// toMinorUnits converts a currency amount to the integer cents Stripe expects
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// isChargeID reports whether a payment reference is a charge rather than a payment intent
func isChargeID(reference string) bool {
	return strings.HasPrefix(reference, "ch_") || strings.HasPrefix(reference, "py_")
}

// refundReason maps a free-text reason onto Stripe's enumerated refund reasons
func refundReason(reason string) stripe.RefundReason {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "duplica"):
		return stripe.RefundReasonDuplicate
	case strings.Contains(lower, "fraud"):
		return stripe.RefundReasonFraudulent
	default:
		return stripe.RefundReasonRequestedByCustomer
	}
}

func toGatewaySubscription(sub *stripe.Subscription) *appbilling.GatewaySubscription {
	out := &appbilling.GatewaySubscription{
		ExternalID: sub.ID,
		Status:     string(sub.Status),
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		out.PriceID = sub.Items.Data[0].Price.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		out.CurrentPeriodEnd = &t
	}
	return out
}
