package external

import (
	"context"

	"cprtrainer/internal/types"
)

// PaymentGateway abstracts interactions with the payment provider (Stripe).
// Implementations translate between domain types and vendor-specific APIs.
type PaymentGateway interface {
	// CreateCheckoutSession opens a hosted checkout page for the given
	// parameters and returns the provider's session, including the redirect
	// URL for the client.
	CreateCheckoutSession(ctx context.Context, params types.CheckoutSessionParams) (*types.CheckoutSession, error)

	// RetrieveCheckoutSession fetches the current state of a checkout session
	// by its provider ID.
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*types.CheckoutSession, error)
}

// WebhookVerifier abstracts Stripe webhook signature checking.
type WebhookVerifier interface {
	// Verify validates a webhook payload against the provided signature header
	// and signing secret. Returns nil on success, an error on failure.
	Verify(payload []byte, header string, secret string) error
}

// Stripe event type constants prevent magic strings in webhook handlers.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutExpired        = "checkout.session.expired"
	EventAsyncPaymentFailed     = "checkout.session.async_payment_failed"
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
)
