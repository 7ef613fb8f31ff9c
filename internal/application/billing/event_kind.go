package billing

// EventKind is the closed set of gateway notifications the pipeline reacts to.
// Every other event type parses to EventUnhandled.
type EventKind int

const (
	EventUnhandled EventKind = iota
	EventPaymentSucceeded
	EventPaymentFailed
	EventChargeSucceeded
	EventSubscriptionCreated
	EventSubscriptionUpdated
	EventSubscriptionDeleted
	EventInvoicePaymentSucceeded
	EventInvoicePaymentFailed
	EventRefundUpdated
	EventChargeRefunded
)

var eventKindNames = map[EventKind]string{
	EventUnhandled:               "unhandled",
	EventPaymentSucceeded:        "payment_succeeded",
	EventPaymentFailed:           "payment_failed",
	EventChargeSucceeded:         "charge_succeeded",
	EventSubscriptionCreated:     "subscription_created",
	EventSubscriptionUpdated:     "subscription_updated",
	EventSubscriptionDeleted:     "subscription_deleted",
	EventInvoicePaymentSucceeded: "invoice_payment_succeeded",
	EventInvoicePaymentFailed:    "invoice_payment_failed",
	EventRefundUpdated:           "refund_updated",
	EventChargeRefunded:          "charge_refunded",
}

// gatewayEventTypes maps gateway event type strings to kinds
var gatewayEventTypes = map[string]EventKind{
	"payment_intent.succeeded":      EventPaymentSucceeded,
	"payment_intent.payment_failed": EventPaymentFailed,
	"charge.succeeded":              EventChargeSucceeded,
	"customer.subscription.created": EventSubscriptionCreated,
	"customer.subscription.updated": EventSubscriptionUpdated,
	"customer.subscription.deleted": EventSubscriptionDeleted,
	"invoice.payment_succeeded":     EventInvoicePaymentSucceeded,
	"invoice.payment_failed":        EventInvoicePaymentFailed,
	"refund.created":                EventRefundUpdated,
	"refund.updated":                EventRefundUpdated,
	"refund.failed":                 EventRefundUpdated,
	"charge.refund.updated":         EventRefundUpdated,
	"charge.refunded":               EventChargeRefunded,
}

// ParseEventKind maps a gateway event type string to its kind
func ParseEventKind(eventType string) EventKind {
	if kind, ok := gatewayEventTypes[eventType]; ok {
		return kind
	}
	return EventUnhandled
}

// String returns the kind name used in logs
func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}
