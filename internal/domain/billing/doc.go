// Package billing models the gateway-facing side of the installment back office:
// the webhook event log used for idempotent ingestion, mirrored gateway subscriptions,
// refunds and the customers they belong to.
//
// Aggregates:
//   - WebhookEvent: one row per external event id, created before dispatch and closed once
//   - Subscription: local mirror of a gateway subscription lifecycle
//   - Refund: request -> approval/rejection -> gateway outcome
package billing
