package notification

import (
	"context"
	"fmt"

	billingdomain "github.com/inmobiliaria/backend/internal/domain/billing"
	"github.com/inmobiliaria/backend/internal/domain/sales"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// PaymentNotifier emails the people affected by refund, subscription and sale events.
// Delivery is best-effort: failures are logged and never returned to the bus.
type PaymentNotifier struct {
	mailer Mailer
	// ownerAddress receives internal notices (refund requests, liquidations)
	ownerAddress string
	logger       *zap.Logger
}

// NewPaymentNotifier creates a new PaymentNotifier
func NewPaymentNotifier(mailer Mailer, ownerAddress string, logger *zap.Logger) *PaymentNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentNotifier{mailer: mailer, ownerAddress: ownerAddress, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (n *PaymentNotifier) EventTypes() []string {
	return []string{
		billingdomain.EventTypeRefundRequested,
		billingdomain.EventTypeRefundApproved,
		billingdomain.EventTypeRefundRejected,
		billingdomain.EventTypeRefundProcessed,
		billingdomain.EventTypeRefundFailed,
		billingdomain.EventTypeInvoicePaymentFailed,
		sales.EventTypeSaleLiquidated,
	}
}

// Handle builds and sends the email for one event
func (n *PaymentNotifier) Handle(ctx context.Context, event shared.DomainEvent) error {
	msg, ok, err := n.compose(event)
	if err != nil {
		n.logger.Error("failed to compose notification",
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
		return nil
	}
	if !ok {
		n.logger.Debug("no recipient for notification", zap.String("event_type", event.EventType()))
		return nil
	}

	if err := n.mailer.Send(ctx, msg); err != nil {
		n.logger.Warn("failed to send notification",
			zap.String("event_type", event.EventType()),
			zap.String("event_id", event.EventID().String()),
			zap.Error(err),
		)
		return nil
	}
	n.logger.Info("notification sent",
		zap.String("event_type", event.EventType()),
		zap.Strings("to", msg.To),
	)
	return nil
}

type refundView struct {
	InstallmentID    string
	Amount           string
	Reason           string
	RequesterEmail   string
	RejectionReason  string
	ExternalRefundID string
}

var refundTemplates = map[string]struct{ template, subject string }{
	billingdomain.EventTypeRefundRequested: {"refund_requested", "Nueva solicitud de reembolso"},
	billingdomain.EventTypeRefundApproved:  {"refund_approved", "Reembolso aprobado"},
	billingdomain.EventTypeRefundRejected:  {"refund_rejected", "Reembolso rechazado"},
	billingdomain.EventTypeRefundProcessed: {"refund_processed", "Reembolso procesado"},
	billingdomain.EventTypeRefundFailed:    {"refund_failed", "No pudimos procesar tu reembolso"},
}

// compose returns ok=false when the event has nobody to tell
func (n *PaymentNotifier) compose(event shared.DomainEvent) (Message, bool, error) {
	switch e := event.(type) {
	case *billingdomain.RefundEvent:
		tmpl, known := refundTemplates[e.EventType()]
		if !known {
			return Message{}, false, fmt.Errorf("unexpected refund event type %s", e.EventType())
		}
		to := e.RequesterEmail
		if e.EventType() == billingdomain.EventTypeRefundRequested {
			to = n.ownerAddress
		}
		if to == "" {
			return Message{}, false, nil
		}
		body, err := render(tmpl.template, refundView{
			InstallmentID:    e.InstallmentID.String(),
			Amount:           e.Amount.StringFixed(2),
			Reason:           e.Reason,
			RequesterEmail:   e.RequesterEmail,
			RejectionReason:  e.RejectionReason,
			ExternalRefundID: e.ExternalRefundID,
		})
		if err != nil {
			return Message{}, false, err
		}
		return Message{To: []string{to}, Subject: tmpl.subject, HTMLBody: body}, true, nil

	case *billingdomain.InvoicePaymentFailedEvent:
		to := recipients(e.CustomerEmail, n.ownerAddress)
		if len(to) == 0 {
			return Message{}, false, nil
		}
		body, err := render("invoice_payment_failed", struct {
			CustomerName      string
			ExternalInvoiceID string
			AmountDue         string
			AttemptCount      int64
		}{e.CustomerName, e.ExternalInvoiceID, e.AmountDue.StringFixed(2), e.AttemptCount})
		if err != nil {
			return Message{}, false, err
		}
		return Message{To: to, Subject: "Falló el cobro de tu suscripción", HTMLBody: body}, true, nil

	case *sales.SaleLiquidatedEvent:
		if n.ownerAddress == "" {
			return Message{}, false, nil
		}
		body, err := render("sale_liquidated", struct {
			ID          string
			TotalAmount string
		}{e.AggregateID().String(), e.TotalAmount.StringFixed(2)})
		if err != nil {
			return Message{}, false, err
		}
		return Message{To: []string{n.ownerAddress}, Subject: "Venta liquidada", HTMLBody: body}, true, nil

	default:
		return Message{}, false, fmt.Errorf("unexpected event %T", event)
	}
}

func recipients(addrs ...string) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

var _ shared.EventHandler = (*PaymentNotifier)(nil)
