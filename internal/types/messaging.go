package types

// ReconciliationMessage is the SQS payload queued when webhook-driven
// provisioning could not fully settle a payment row. The reconcile worker
// re-fetches the checkout session and repairs state idempotently.
type ReconciliationMessage struct {
	// Core Identity
	CheckoutSessionID string `json:"checkout_session_id"`
	EventType         string `json:"event_type"`

	// Why the message was queued (e.g., "payment_row_update_failed").
	Reason string `json:"reason"`

	// Retry State: carries retry count across the SQS publish cycle.
	// Incremented by the worker on transient failures before re-publishing.
	RetryCount int `json:"retry_count"`

	// Observability
	RequestID string `json:"request_id,omitempty"`
}
