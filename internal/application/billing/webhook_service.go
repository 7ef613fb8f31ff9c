package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/application/ledger"
	billingdomain "github.com/inmobiliaria/backend/internal/domain/billing"
	"github.com/inmobiliaria/backend/internal/domain/sales"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/inmobiliaria/backend/internal/infrastructure/telemetry"
	"github.com/stripe/stripe-go/v81"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Retry defaults: the first try plus three retries after 1s, 2s and 4s
const (
	DefaultRetryAttempts  = 4
	DefaultRetryBaseDelay = time.Second
)

// PaymentLedger is the part of the ledger the webhook handlers drive
type PaymentLedger interface {
	ApplyPayment(ctx context.Context, input ledger.ApplyPaymentInput) (*ledger.PaymentResult, error)
	AppendInstallmentNote(ctx context.Context, reference, note string) (*sales.Installment, error)
	AppendNoteToInstallment(ctx context.Context, installmentID uuid.UUID, note string) (*sales.Installment, error)
	RecordCardLast4(ctx context.Context, reference, last4 string) error
	FindInstallmentByReference(ctx context.Context, reference string) (*sales.Installment, error)
}

// RefundStatusApplier applies gateway refund notifications to local refunds
type RefundStatusApplier interface {
	ApplyGatewayRefundStatus(ctx context.Context, update GatewayRefundUpdate) (*billingdomain.Refund, error)
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// eventHandler processes one decoded event and returns the id of the local record it touched
type eventHandler func(ctx context.Context, event stripe.Event) (*uuid.UUID, error)

// WebhookResult contains the result of processing a webhook
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Processed bool   `json:"processed"`
	Duplicate bool   `json:"duplicate"`
	Message   string `json:"message,omitempty"`
}

// WebhookService ingests gateway notifications: verification, deduplication against the
// event log, dispatch by event kind, and outcome recording.
type WebhookService struct {
	verifier       EventVerifier
	events         billingdomain.WebhookEventRepository
	idempotency    shared.IdempotencyStore
	idempotencyTTL time.Duration
	ledger         PaymentLedger
	refunds        RefundStatusApplier
	handlers       map[EventKind]eventHandler
	allowInsecure  bool
	retryAttempts  int
	retryBaseDelay time.Duration
	sleep          Sleeper
	now            func() time.Time
	logger         *zap.Logger
}

// WebhookServiceConfig contains configuration for WebhookService
type WebhookServiceConfig struct {
	Verifier       EventVerifier
	Events         billingdomain.WebhookEventRepository
	Idempotency    shared.IdempotencyStore
	IdempotencyTTL time.Duration
	Ledger         PaymentLedger
	Subscriptions  *SubscriptionHandler
	Refunds        RefundStatusApplier
	AllowInsecure  bool
	RetryAttempts  int
	RetryBaseDelay time.Duration
	Sleep          Sleeper
	Clock          func() time.Time
	Logger         *zap.Logger
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(cfg WebhookServiceConfig) *WebhookService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &WebhookService{
		verifier:       cfg.Verifier,
		events:         cfg.Events,
		idempotency:    cfg.Idempotency,
		idempotencyTTL: cfg.IdempotencyTTL,
		ledger:         cfg.Ledger,
		refunds:        cfg.Refunds,
		allowInsecure:  cfg.AllowInsecure,
		retryAttempts:  cfg.RetryAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		sleep:          cfg.Sleep,
		now:            cfg.Clock,
		logger:         logger,
	}
	if s.idempotencyTTL <= 0 {
		s.idempotencyTTL = shared.DefaultIdempotencyTTL
	}
	if s.retryAttempts <= 0 {
		s.retryAttempts = DefaultRetryAttempts
	}
	if s.retryBaseDelay <= 0 {
		s.retryBaseDelay = DefaultRetryBaseDelay
	}
	if s.sleep == nil {
		s.sleep = sleepContext
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.handlers = make(map[EventKind]eventHandler)
	if s.ledger != nil {
		s.handlers[EventPaymentSucceeded] = s.handlePaymentSucceeded
		s.handlers[EventPaymentFailed] = s.handlePaymentFailed
		s.handlers[EventChargeSucceeded] = s.handleChargeSucceeded
	}
	if s.refunds != nil {
		s.handlers[EventRefundUpdated] = s.handleRefundUpdated
		s.handlers[EventChargeRefunded] = s.handleChargeRefunded
	}
	if subs := cfg.Subscriptions; subs != nil {
		s.handlers[EventSubscriptionCreated] = subs.HandleSubscriptionCreated
		s.handlers[EventSubscriptionUpdated] = subs.HandleSubscriptionUpdated
		s.handlers[EventSubscriptionDeleted] = subs.HandleSubscriptionDeleted
		s.handlers[EventInvoicePaymentSucceeded] = subs.HandleInvoicePaymentSucceeded
		s.handlers[EventInvoicePaymentFailed] = subs.HandleInvoicePaymentFailed
	}
	return s
}

// ProcessWebhookWithRetry runs ProcessWebhook and retries transient failures with doubling
// delays. Rejected notifications and business-rule errors are returned immediately.
func (s *WebhookService) ProcessWebhookWithRetry(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	var (
		result  *WebhookResult
		lastErr error
	)
	delay := s.retryBaseDelay
	for attempt := 1; attempt <= s.retryAttempts; attempt++ {
		result, lastErr = s.ProcessWebhook(ctx, payload, signature)
		if lastErr == nil || !isTransient(lastErr) {
			return result, lastErr
		}
		if attempt == s.retryAttempts {
			break
		}

		s.logger.Warn("Webhook processing failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr))
		if err := s.sleep(ctx, delay); err != nil {
			return result, fmt.Errorf("webhook: retry interrupted: %w", lastErr)
		}
		delay *= 2
	}
	return result, fmt.Errorf("webhook: giving up after %d attempts: %w", s.retryAttempts, lastErr)
}

// ProcessWebhook verifies, deduplicates and dispatches one notification
func (s *WebhookService) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "webhook", "process")
	result, err := s.processWebhook(ctx, payload, signature)
	if result != nil {
		span.SetAttributes(
			attribute.String(telemetry.AttrEventID, result.EventID),
			attribute.String(telemetry.AttrEventType, result.EventType),
			attribute.Bool("webhook.duplicate", result.Duplicate),
		)
	}
	telemetry.End(span, err)
	return result, err
}

func (s *WebhookService) processWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, verified, err := s.verify(payload, signature)
	if err != nil {
		return nil, err
	}

	result := &WebhookResult{
		EventID:   event.ID,
		EventType: string(event.Type),
	}
	logger := s.logger.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))

	if s.seenRecently(ctx, event.ID) {
		logger.Info("Webhook event already processed (cache)")
		result.Processed = true
		result.Duplicate = true
		result.Message = "Event already processed"
		return result, nil
	}

	logRow, duplicate, err := s.beginLog(ctx, event, payload, verified, logger)
	if err != nil {
		return result, err
	}
	if duplicate {
		logger.Info("Webhook event already processed")
		s.rememberProcessed(ctx, event.ID)
		result.Processed = true
		result.Duplicate = true
		result.Message = "Event already processed"
		return result, nil
	}

	kind := ParseEventKind(string(event.Type))
	logger.Info("Processing webhook event", zap.Stringer("kind", kind))

	var linkedID *uuid.UUID
	handler, ok := s.handlers[kind]
	if !ok {
		logger.Info("Unhandled webhook event type")
		result.Message = "Event type not handled"
	} else {
		linkedID, err = handler(ctx, event)
	}

	if err != nil {
		logger.Error("Failed to process webhook event", zap.Error(err))
		if logRow != nil {
			logRow.MarkFailed(err.Error())
			if uerr := s.events.Update(ctx, logRow); uerr != nil {
				logger.Warn("Failed to record webhook failure", zap.Error(uerr))
			}
		}
		result.Message = err.Error()
		return result, err
	}

	if logRow != nil {
		logRow.MarkProcessed(linkedID)
		if uerr := s.events.Update(ctx, logRow); uerr != nil {
			logger.Warn("Failed to record webhook success", zap.Error(uerr))
		}
	}
	s.rememberProcessed(ctx, event.ID)
	result.Processed = true
	return result, nil
}

// verify authenticates the payload. Without a secret, insecure mode parses it unverified.
func (s *WebhookService) verify(payload []byte, signature string) (stripe.Event, bool, error) {
	if s.verifier.CanVerify() {
		if signature == "" {
			s.logger.Warn("Webhook rejected: missing signature header")
			return stripe.Event{}, false, fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
		}
		event, err := s.verifier.VerifyAndParse(payload, signature)
		if err != nil {
			s.logger.Warn("Webhook rejected: signature verification failed", zap.Error(err))
			return stripe.Event{}, false, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return event, true, nil
	}

	if !s.allowInsecure {
		s.logger.Error("Webhook rejected: no webhook secret configured")
		return stripe.Event{}, false, ErrWebhookSecretMissing
	}
	s.logger.Warn("Processing webhook without signature verification (insecure mode)")
	event, err := s.verifier.ParseUnverified(payload)
	if err != nil {
		return stripe.Event{}, false, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return event, false, nil
}

// beginLog finds or creates the event log row. It reports duplicate when the row is already
// procesado. A nil row with nil error means the log is unavailable and processing continues.
func (s *WebhookService) beginLog(ctx context.Context, event stripe.Event, payload []byte, verified bool, logger *zap.Logger) (*billingdomain.WebhookEvent, bool, error) {
	row, err := s.events.FindByExternalID(ctx, event.ID)
	switch {
	case err == nil:
		if row.IsProcessed() {
			return row, true, nil
		}
		row.BeginAttempt()
		if uerr := s.events.Update(ctx, row); uerr != nil {
			logger.Warn("Failed to update webhook log row", zap.Error(uerr))
			return nil, false, nil
		}
		return row, false, nil
	case errors.Is(err, shared.ErrNotFound):
		row = billingdomain.NewWebhookEvent(event.ID, string(event.Type), payload, verified)
		if cerr := s.events.Create(ctx, row); cerr != nil {
			logger.Warn("Failed to insert webhook log row, processing without it", zap.Error(cerr))
			return nil, false, nil
		}
		return row, false, nil
	default:
		return nil, false, fmt.Errorf("webhook: look up event log: %w", err)
	}
}

func (s *WebhookService) seenRecently(ctx context.Context, eventID string) bool {
	if s.idempotency == nil {
		return false
	}
	seen, err := s.idempotency.IsProcessed(ctx, eventID)
	if err != nil {
		s.logger.Warn("Idempotency store lookup failed", zap.Error(err))
		return false
	}
	return seen
}

func (s *WebhookService) rememberProcessed(ctx context.Context, eventID string) {
	if s.idempotency == nil {
		return
	}
	if _, err := s.idempotency.MarkProcessed(ctx, eventID, s.idempotencyTTL); err != nil {
		s.logger.Warn("Idempotency store update failed", zap.Error(err))
	}
}

// eventTime returns when the gateway created the event
func (s *WebhookService) eventTime(event stripe.Event) time.Time {
	if event.Created > 0 {
		return time.Unix(event.Created, 0).UTC()
	}
	return s.now()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
