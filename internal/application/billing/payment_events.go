package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/application/ledger"
	billingdomain "github.com/inmobiliaria/backend/internal/domain/billing"
	"github.com/inmobiliaria/backend/internal/domain/sales"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"
)

// Metadata keys set on gateway objects created for this system
const (
	MetadataInstallmentID = "pago_id"
	MetadataSaleID        = "venta_id"
	MetadataRefundID      = "reembolso_id"
	MetadataCustomerID    = "cliente_id"
)

// cardPaymentMethod is recorded on installments paid through the gateway
const cardPaymentMethod = "tarjeta"

// handlePaymentSucceeded applies a captured payment intent to the ledger
func (s *WebhookService) handlePaymentSucceeded(ctx context.Context, event stripe.Event) (*uuid.UUID, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("%w: payment intent: %v", ErrMalformedEvent, err)
	}

	installmentID, saleID, err := ledgerTarget(intent.Metadata)
	if err != nil {
		return nil, err
	}
	if installmentID == nil && saleID == nil {
		s.logger.Warn("Payment intent carries no ledger metadata, skipping",
			zap.String("payment_intent", intent.ID))
		return nil, nil
	}

	if existing, err := s.ledger.FindInstallmentByReference(ctx, intent.ID); err == nil && existing.IsPaid() {
		s.logger.Info("Payment already recorded for installment",
			zap.String("payment_intent", intent.ID),
			zap.String("installment_id", existing.ID.String()))
		return &existing.ID, nil
	}

	minor := intent.AmountReceived
	if minor == 0 {
		minor = intent.Amount
	}

	result, err := s.ledger.ApplyPayment(ctx, ledger.ApplyPaymentInput{
		SaleID:        saleID,
		InstallmentID: installmentID,
		Amount:        fromMinorUnits(minor),
		PaymentDate:   s.eventTime(event),
		Method:        cardPaymentMethod,
		Reference:     intent.ID,
		CardLast4:     intentCardLast4(&intent),
		Source:        sales.PaymentSourceWebhook,
	})
	if err != nil {
		if errors.Is(err, sales.ErrDuplicatePaymentRef) {
			s.logger.Info("Payment reference already recorded, skipping",
				zap.String("payment_intent", intent.ID))
			return nil, nil
		}
		return nil, err
	}

	s.logger.Info("Payment intent applied",
		zap.String("payment_intent", intent.ID),
		zap.String("installment_id", result.Installment.ID.String()),
		zap.String("status", string(result.Installment.Status)))
	return &result.Installment.ID, nil
}

// handlePaymentFailed records the decline reason on the installment's notes
func (s *WebhookService) handlePaymentFailed(ctx context.Context, event stripe.Event) (*uuid.UUID, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("%w: payment intent: %v", ErrMalformedEvent, err)
	}

	message := "unknown error"
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		message = intent.LastPaymentError.Msg
	}
	note := "Payment failed: " + message

	inst, err := s.ledger.AppendInstallmentNote(ctx, intent.ID, note)
	if errors.Is(err, sales.ErrInstallmentNotFound) {
		installmentID, _, terr := ledgerTarget(intent.Metadata)
		if terr != nil {
			return nil, terr
		}
		if installmentID == nil {
			s.logger.Warn("No installment found for failed payment",
				zap.String("payment_intent", intent.ID))
			return nil, nil
		}
		inst, err = s.ledger.AppendNoteToInstallment(ctx, *installmentID, note)
	}
	if err != nil {
		if errors.Is(err, sales.ErrInstallmentNotFound) {
			s.logger.Warn("No installment found for failed payment",
				zap.String("payment_intent", intent.ID))
			return nil, nil
		}
		return nil, err
	}

	s.logger.Info("Payment failure noted",
		zap.String("payment_intent", intent.ID),
		zap.String("installment_id", inst.ID.String()),
		zap.String("reason", message))
	return &inst.ID, nil
}

// handleChargeSucceeded stores card digits on the installment paid by the charge's intent
func (s *WebhookService) handleChargeSucceeded(ctx context.Context, event stripe.Event) (*uuid.UUID, error) {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return nil, fmt.Errorf("%w: charge: %v", ErrMalformedEvent, err)
	}
	last4 := chargeCardLast4(&charge)
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" || last4 == "" {
		return nil, nil
	}

	if err := s.ledger.RecordCardLast4(ctx, charge.PaymentIntent.ID, last4); err != nil {
		if errors.Is(err, sales.ErrInstallmentNotFound) {
			s.logger.Debug("Charge precedes its payment intent, card digits not stored",
				zap.String("charge", charge.ID))
			return nil, nil
		}
		return nil, err
	}
	return nil, nil
}

// handleRefundUpdated applies a refund notification
func (s *WebhookService) handleRefundUpdated(ctx context.Context, event stripe.Event) (*uuid.UUID, error) {
	var refund stripe.Refund
	if err := json.Unmarshal(event.Data.Raw, &refund); err != nil {
		return nil, fmt.Errorf("%w: refund: %v", ErrMalformedEvent, err)
	}
	return s.applyRefund(ctx, &refund, event)
}

// handleChargeRefunded applies every refund listed on a refunded charge
func (s *WebhookService) handleChargeRefunded(ctx context.Context, event stripe.Event) (*uuid.UUID, error) {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return nil, fmt.Errorf("%w: charge: %v", ErrMalformedEvent, err)
	}
	if charge.Refunds == nil || len(charge.Refunds.Data) == 0 {
		s.logger.Info("Refunded charge lists no refunds", zap.String("charge", charge.ID))
		return nil, nil
	}

	var linked *uuid.UUID
	for _, refund := range charge.Refunds.Data {
		id, err := s.applyRefund(ctx, refund, event)
		if err != nil {
			return linked, err
		}
		if id != nil {
			linked = id
		}
	}
	return linked, nil
}

func (s *WebhookService) applyRefund(ctx context.Context, refund *stripe.Refund, event stripe.Event) (*uuid.UUID, error) {
	update := GatewayRefundUpdate{
		ExternalRefundID: refund.ID,
		Status:           MapGatewayRefundStatus(refund.Status),
		At:               s.eventTime(event),
	}
	if raw := refund.Metadata[MetadataRefundID]; raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			update.LocalRefundID = &id
		}
	}

	local, err := s.refunds.ApplyGatewayRefundStatus(ctx, update)
	if err != nil {
		if errors.Is(err, ErrRefundNotFound) {
			s.logger.Warn("Refund notification for unknown refund",
				zap.String("refund", refund.ID))
			return nil, nil
		}
		return nil, err
	}
	return &local.ID, nil
}

// MapGatewayRefundStatus maps a gateway refund status to the local state.
// A missing status means the refund went through.
func MapGatewayRefundStatus(status stripe.RefundStatus) billingdomain.RefundStatus {
	switch status {
	case "", stripe.RefundStatusSucceeded:
		return billingdomain.RefundProcessed
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		return billingdomain.RefundFailed
	default:
		return billingdomain.RefundApproved
	}
}

// ledgerTarget reads the installment and sale ids from gateway metadata
func ledgerTarget(metadata map[string]string) (*uuid.UUID, *uuid.UUID, error) {
	var installmentID, saleID *uuid.UUID
	if raw := metadata[MetadataInstallmentID]; raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: invalid %s %q", ErrMalformedEvent, MetadataInstallmentID, raw)
		}
		installmentID = &id
	}
	if raw := metadata[MetadataSaleID]; raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: invalid %s %q", ErrMalformedEvent, MetadataSaleID, raw)
		}
		saleID = &id
	}
	return installmentID, saleID, nil
}

func intentCardLast4(intent *stripe.PaymentIntent) string {
	if intent.LatestCharge == nil {
		return ""
	}
	return chargeCardLast4(intent.LatestCharge)
}

func chargeCardLast4(charge *stripe.Charge) string {
	if charge.PaymentMethodDetails == nil || charge.PaymentMethodDetails.Card == nil {
		return ""
	}
	return charge.PaymentMethodDetails.Card.Last4
}

// fromMinorUnits converts gateway cents to a decimal amount
func fromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-2)
}
