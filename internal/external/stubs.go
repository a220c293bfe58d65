package external

import (
	"context"
	"fmt"
	"log/slog"

	"cprtrainer/internal/types"
)

// ---------------------------------------------------------------------------
// Stub Implementations
//
// Stub implementations allow the application to boot in local mode without
// requiring real payment provider credentials. They log all actions and
// return predictable, safe default values.
// ---------------------------------------------------------------------------

// StubPaymentGateway implements PaymentGateway by logging calls and returning
// test-safe defaults. Used when APP_ENV=local.
type StubPaymentGateway struct {
	logger *slog.Logger
}

// NewStubPaymentGateway creates a new StubPaymentGateway.
func NewStubPaymentGateway(logger *slog.Logger) *StubPaymentGateway {
	return &StubPaymentGateway{logger: logger}
}

func (s *StubPaymentGateway) CreateCheckoutSession(ctx context.Context, params types.CheckoutSessionParams) (*types.CheckoutSession, error) {
	s.logger.InfoContext(ctx, "stub: CreateCheckoutSession called",
		"payment_type", params.PaymentType,
		"customer_email", params.CustomerEmail,
		"amount_cents", params.AmountCents,
	)
	return &types.CheckoutSession{
		ID:            fmt.Sprintf("cs_stub_%s", params.PaymentType),
		URL:           "https://checkout.stub.local/session",
		Status:        "open",
		PaymentStatus: "unpaid",
		CustomerEmail: params.CustomerEmail,
		AmountTotal:   params.AmountCents,
		Currency:      params.Currency,
		Metadata:      params.Metadata,
	}, nil
}

func (s *StubPaymentGateway) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*types.CheckoutSession, error) {
	s.logger.InfoContext(ctx, "stub: RetrieveCheckoutSession called",
		"session_id", sessionID,
	)
	return &types.CheckoutSession{
		ID:              sessionID,
		Status:          "complete",
		PaymentStatus:   "paid",
		PaymentIntentID: "pi_stub_" + sessionID,
	}, nil
}

// StubWebhookVerifier implements WebhookVerifier by always succeeding.
// Used when APP_ENV=local.
type StubWebhookVerifier struct {
	logger *slog.Logger
}

// NewStubWebhookVerifier creates a new StubWebhookVerifier.
func NewStubWebhookVerifier(logger *slog.Logger) *StubWebhookVerifier {
	return &StubWebhookVerifier{logger: logger}
}

func (s *StubWebhookVerifier) Verify(payload []byte, header string, secret string) error {
	s.logger.Info("stub: Stripe webhook Verify called",
		"payload_len", len(payload),
	)
	return nil
}

// ---------------------------------------------------------------------------
// Interface Compliance
// ---------------------------------------------------------------------------

var _ PaymentGateway = (*StubPaymentGateway)(nil)
var _ WebhookVerifier = (*StubWebhookVerifier)(nil)
