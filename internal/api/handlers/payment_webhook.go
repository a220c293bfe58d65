// Package handlers contains the HTTP handler implementations for the CPR
// Trainer payment API.
//
// This file implements the payment webhook endpoint. The route is NOT behind
// auth middleware; it is called directly by the payment provider. Security is
// provided by verifying the Stripe-Signature header using HMAC-SHA256 before
// the payload is parsed.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cprtrainer/internal/core"
	"cprtrainer/internal/external"
	"cprtrainer/internal/types"
)

// maxWebhookBodySize is the maximum allowed size of a webhook payload (64 KB).
// Checkout session events are small; the cap protects against abuse.
const maxWebhookBodySize = 64 * 1024

// ProvisioningService is the subset of the reconciler the webhook handler
// drives. Injected as an interface so tests can script outcomes.
type ProvisioningService interface {
	// HandleCheckoutCompleted provisions the account and settles the payment
	// row for a completed checkout session.
	HandleCheckoutCompleted(ctx context.Context, session *types.CheckoutSession) error

	// HandleCheckoutFailed marks the payment row failed for an expired or
	// payment-failed session.
	HandleCheckoutFailed(ctx context.Context, sessionID, eventType string) error
}

// WebhookMetrics records per-event outcome counters.
type WebhookMetrics interface {
	RecordWebhookEvent(ctx context.Context, eventType, result string)
}

// webhookAck is the body returned once a webhook has been verified. The
// provider only needs acknowledgment of receipt; processing outcomes are
// reported through logs and metrics.
type webhookAck struct {
	Received bool `json:"received"`
}

// PaymentWebhookHandler handles asynchronous checkout events from the payment
// provider.
type PaymentWebhookHandler struct {
	verifier    external.WebhookVerifier
	provisioner ProvisioningService
	metrics     WebhookMetrics
	secret      string
	logger      *slog.Logger
}

// NewPaymentWebhookHandler creates a new PaymentWebhookHandler with the
// provided dependencies.
func NewPaymentWebhookHandler(
	verifier external.WebhookVerifier,
	provisioner ProvisioningService,
	metrics WebhookMetrics,
	secret string,
	logger *slog.Logger,
) *PaymentWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentWebhookHandler{
		verifier:    verifier,
		provisioner: provisioner,
		metrics:     metrics,
		secret:      secret,
		logger:      logger,
	}
}

// RegisterRoutes mounts the payment webhook endpoint. This is separate from
// the checkout routes because the webhook is public (no auth middleware).
func (h *PaymentWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/payment", h.Handle)
}

// Handle processes incoming payment webhook events.
//
//  1. Reads the raw body (64 KB cap) and the Stripe-Signature header.
//  2. Verifies the signature before any parsing. Verification failures return
//     400 with a plain "Webhook Error: <reason>" body so the provider retries.
//  3. Parses the event JSON and dispatches by event type.
//  4. Once verified, always returns 200 {"received":true}. Processing
//     failures are logged and repaired via the reconciliation queue rather
//     than surfaced, so the provider does not retry events we have accepted.
func (h *PaymentWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeConfigMissing,
			"webhook signing secret is not configured",
			nil,
		))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		h.webhookError(w, "failed to read request body")
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(r.Context(), "missing Stripe-Signature header")
		h.webhookError(w, "missing Stripe-Signature header")
		return
	}

	if err := h.verifier.Verify(payload, sigHeader, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		h.webhookError(w, "signature verification failed")
		return
	}

	var event paymentWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.WarnContext(r.Context(), "failed to parse webhook event JSON", "error", err)
		h.webhookError(w, "invalid event payload")
		return
	}

	h.logger.InfoContext(r.Context(), "processing payment webhook event",
		"event_id", event.ID,
		"event_type", event.Type,
	)

	result := "ok"
	if err := h.routeEvent(r.Context(), &event); err != nil {
		h.logger.ErrorContext(r.Context(), "webhook event processing failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
		result = "error"
		// Fall through to 200: the event is verified and accepted, and the
		// failure is repaired through the reconciliation queue. A non-2xx
		// here would make the provider redeliver an event we cannot process
		// any better the second time.
	}
	if h.metrics != nil {
		h.metrics.RecordWebhookEvent(r.Context(), event.Type, result)
	}

	core.JSON(w, r, http.StatusOK, webhookAck{Received: true})
}

// webhookError writes the plain-text 400 response the provider expects for
// rejected deliveries.
func (h *PaymentWebhookHandler) webhookError(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, "Webhook Error: %s", reason)
}

// routeEvent dispatches the webhook event by type.
func (h *PaymentWebhookHandler) routeEvent(ctx context.Context, event *paymentWebhookEvent) error {
	switch event.Type {
	case external.EventCheckoutCompleted:
		return h.handleCheckoutCompleted(ctx, event)

	case external.EventCheckoutExpired, external.EventAsyncPaymentFailed:
		return h.handleCheckoutFailed(ctx, event)

	case external.EventPaymentIntentSucceeded:
		// Informational only. The payment row settles on the checkout
		// session event, which carries the provisioning metadata.
		h.logger.InfoContext(ctx, "payment intent succeeded",
			"event_id", event.ID,
		)
		return nil

	default:
		h.logger.InfoContext(ctx, "ignoring unhandled webhook event type",
			"event_type", event.Type,
		)
		return nil
	}
}

// handleCheckoutCompleted processes checkout.session.completed events.
func (h *PaymentWebhookHandler) handleCheckoutCompleted(ctx context.Context, event *paymentWebhookEvent) error {
	session, err := event.checkoutSession()
	if err != nil {
		return fmt.Errorf("%s: %w", event.Type, err)
	}
	return h.provisioner.HandleCheckoutCompleted(ctx, session)
}

// handleCheckoutFailed processes checkout.session.expired and
// checkout.session.async_payment_failed events.
func (h *PaymentWebhookHandler) handleCheckoutFailed(ctx context.Context, event *paymentWebhookEvent) error {
	session, err := event.checkoutSession()
	if err != nil {
		return fmt.Errorf("%s: %w", event.Type, err)
	}
	return h.provisioner.HandleCheckoutFailed(ctx, session.ID, event.Type)
}

// ---------------------------------------------------------------------------
// Event parsing
// ---------------------------------------------------------------------------

// paymentWebhookEvent is a minimal representation of a provider webhook event
// tailored to the fields needed for routing. We avoid importing the full
// stripe.Event type to keep the handler decoupled from the stripe-go library
// and to make testing straightforward.
type paymentWebhookEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    json.RawMessage `json:"data"`
}

// paymentEventData wraps the event data object.
type paymentEventData struct {
	Object json.RawMessage `json:"object"`
}

// checkoutSessionObj carries the minimal fields from a checkout.session.*
// event's data object.
type checkoutSessionObj struct {
	ID              string            `json:"id"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	PaymentIntent   string            `json:"payment_intent"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails *customerDetails  `json:"customer_details"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata"`
}

type customerDetails struct {
	Email string `json:"email"`
}

// checkoutSession extracts the checkout session object from the event payload.
func (e *paymentWebhookEvent) checkoutSession() (*types.CheckoutSession, error) {
	var data paymentEventData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("decode event data: %w", err)
	}

	var obj checkoutSessionObj
	if err := json.Unmarshal(data.Object, &obj); err != nil {
		return nil, fmt.Errorf("decode checkout session object: %w", err)
	}
	if obj.ID == "" {
		return nil, fmt.Errorf("event %s has no checkout session id", e.ID)
	}

	email := obj.CustomerEmail
	if email == "" && obj.CustomerDetails != nil {
		email = obj.CustomerDetails.Email
	}

	return &types.CheckoutSession{
		ID:              obj.ID,
		Status:          obj.Status,
		PaymentStatus:   obj.PaymentStatus,
		PaymentIntentID: obj.PaymentIntent,
		CustomerEmail:   email,
		AmountTotal:     obj.AmountTotal,
		Currency:        obj.Currency,
		Metadata:        obj.Metadata,
	}, nil
}
