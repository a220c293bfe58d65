package external

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cprtrainer/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
)

// ---------------------------------------------------------------------------
// Helper: Create test stripe client pointed at httptest server
// ---------------------------------------------------------------------------

func newTestStripeClient(t *testing.T, serverURL string) *StripeClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-stripe",
		RetryPolicy{
			MaxRetries: 0, // No retries in tests for deterministic behavior
			MinWait:    1 * time.Millisecond,
			MaxWait:    10 * time.Millisecond,
		},
		"CPRTrainer-Test/1.0",
		WithSleepFunc(noopSleep),
	)

	return NewStripeClientWithBase(base, StripeClientConfig{
		SecretKey: "sk_test_secret",
		BaseURL:   serverURL,
	})
}

func checkoutParams() types.CheckoutSessionParams {
	return types.CheckoutSessionParams{
		PaymentType:   types.PaymentTypeSignup,
		ProductName:   "CPR Training Program - Individual Signup",
		AmountCents:   9900,
		Currency:      "usd",
		CustomerEmail: "trainee@example.com",
		SuccessURL:    "https://app.cprtrainer.io/payment/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     "https://app.cprtrainer.io/payment/cancel",
		Metadata: map[string]string{
			"payment_type": "signup",
			"plan_kind":    "create_solo_team",
			"user_email":   "trainee@example.com",
		},
	}
}

// ---------------------------------------------------------------------------
// CreateCheckoutSession Tests
// ---------------------------------------------------------------------------

func TestCreateCheckoutSession_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("expected path /v1/checkout/sessions, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}

		auth := r.Header.Get("Authorization")
		if auth != "Bearer sk_test_secret" {
			t.Errorf("expected Bearer sk_test_secret, got %s", auth)
		}
		if v := r.Header.Get("Stripe-Version"); v != stripe.APIVersion {
			t.Errorf("expected Stripe-Version %s, got %s", stripe.APIVersion, v)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("expected form content type, got %s", ct)
		}

		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if got := r.PostForm.Get("mode"); got != "payment" {
			t.Errorf("expected mode=payment, got %s", got)
		}
		if got := r.PostForm.Get("customer_email"); got != "trainee@example.com" {
			t.Errorf("expected customer_email, got %s", got)
		}
		if got := r.PostForm.Get("line_items[0][price_data][unit_amount]"); got != "9900" {
			t.Errorf("expected unit_amount 9900, got %s", got)
		}
		if got := r.PostForm.Get("line_items[0][price_data][currency]"); got != "usd" {
			t.Errorf("expected currency usd, got %s", got)
		}
		if got := r.PostForm.Get("line_items[0][quantity]"); got != "1" {
			t.Errorf("expected quantity 1, got %s", got)
		}
		if got := r.PostForm.Get("metadata[plan_kind]"); got != "create_solo_team" {
			t.Errorf("expected plan_kind metadata, got %s", got)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":             "cs_test_123",
			"url":            "https://checkout.stripe.com/c/pay/cs_test_123",
			"status":         "open",
			"payment_status": "unpaid",
			"customer_email": "trainee@example.com",
			"amount_total":   9900,
			"currency":       "usd",
			"metadata": map[string]string{
				"payment_type": "signup",
				"plan_kind":    "create_solo_team",
			},
		})
	}))
	defer server.Close()

	client := newTestStripeClient(t, server.URL)

	session, err := client.CreateCheckoutSession(context.Background(), checkoutParams())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if session.ID != "cs_test_123" {
		t.Errorf("expected session ID cs_test_123, got %s", session.ID)
	}
	if session.URL != "https://checkout.stripe.com/c/pay/cs_test_123" {
		t.Errorf("unexpected checkout URL: %s", session.URL)
	}
	if session.AmountTotal != 9900 {
		t.Errorf("expected amount 9900, got %d", session.AmountTotal)
	}
	if session.Metadata["plan_kind"] != "create_solo_team" {
		t.Errorf("expected metadata round-trip, got %v", session.Metadata)
	}
}

func TestCreateCheckoutSession_CardDeclined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"type":         "card_error",
				"code":         "card_declined",
				"decline_code": "insufficient_funds",
				"message":      "Your card has insufficient funds.",
			},
		})
	}))
	defer server.Close()

	client := newTestStripeClient(t, server.URL)

	_, err := client.CreateCheckoutSession(context.Background(), checkoutParams())
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodePaymentDeclined {
		t.Errorf("expected error code %s, got %s", types.ErrCodePaymentDeclined, appErr.Code)
	}
	if appErr.Details["decline_code"] != "insufficient_funds" {
		t.Errorf("expected decline_code detail, got %v", appErr.Details)
	}
}

func TestCreateCheckoutSession_InvalidRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"type":    "invalid_request_error",
				"message": "Invalid param: success_url",
				"param":   "success_url",
			},
		})
	}))
	defer server.Close()

	client := newTestStripeClient(t, server.URL)

	_, err := client.CreateCheckoutSession(context.Background(), checkoutParams())
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamStripe {
		t.Errorf("expected error code %s, got %s", types.ErrCodeUpstreamStripe, appErr.Code)
	}
}

func TestCreateCheckoutSession_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"type":    "api_error",
				"message": "Something went wrong.",
			},
		})
	}))
	defer server.Close()

	client := newTestStripeClient(t, server.URL)

	_, err := client.CreateCheckoutSession(context.Background(), checkoutParams())
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("expected error code %s, got %s", types.ErrCodeUpstreamUnavailable, appErr.Code)
	}
}

func TestCreateCheckoutSession_NetworkError(t *testing.T) {
	// Point at a server that is immediately closed to force a transport error.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newTestStripeClient(t, server.URL)

	_, err := client.CreateCheckoutSession(context.Background(), checkoutParams())
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
}

// ---------------------------------------------------------------------------
// RetrieveCheckoutSession Tests
// ---------------------------------------------------------------------------

func TestRetrieveCheckoutSession_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions/cs_test_456" {
			t.Errorf("expected session path, got %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":             "cs_test_456",
			"status":         "complete",
			"payment_status": "paid",
			"customer_email": "trainee@example.com",
			"amount_total":   9900,
			"currency":       "usd",
		})
	}))
	defer server.Close()

	client := newTestStripeClient(t, server.URL)

	session, err := client.RetrieveCheckoutSession(context.Background(), "cs_test_456")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if session.ID != "cs_test_456" {
		t.Errorf("expected session ID cs_test_456, got %s", session.ID)
	}
	if session.PaymentStatus != "paid" {
		t.Errorf("expected payment_status paid, got %s", session.PaymentStatus)
	}
	if session.Status != "complete" {
		t.Errorf("expected status complete, got %s", session.Status)
	}
}

func TestRetrieveCheckoutSession_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"type":    "invalid_request_error",
				"message": "No such checkout session: cs_missing",
			},
		})
	}))
	defer server.Close()

	client := newTestStripeClient(t, server.URL)

	_, err := client.RetrieveCheckoutSession(context.Background(), "cs_missing")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeNotFoundSession {
		t.Errorf("expected error code %s, got %s", types.ErrCodeNotFoundSession, appErr.Code)
	}
}

func TestRetrieveCheckoutSession_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"type":    "rate_limit_error",
				"message": "Too many requests.",
			},
		})
	}))
	defer server.Close()

	client := newTestStripeClient(t, server.URL)

	_, err := client.RetrieveCheckoutSession(context.Background(), "cs_test_456")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamRateLimited {
		t.Errorf("expected error code %s, got %s", types.ErrCodeUpstreamRateLimited, appErr.Code)
	}
}

func TestRetrieveCheckoutSession_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "<html>bad gateway</html>")
	}))
	defer server.Close()

	client := newTestStripeClient(t, server.URL)

	_, err := client.RetrieveCheckoutSession(context.Background(), "cs_test_456")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamStripe {
		t.Errorf("expected error code %s, got %s", types.ErrCodeUpstreamStripe, appErr.Code)
	}
}

// ---------------------------------------------------------------------------
// StripeVerifier Tests
// ---------------------------------------------------------------------------

func TestStripeVerifier_ValidSignature(t *testing.T) {
	verifier := &StripeVerifier{}
	secret := "whsec_test_secret"
	payload := []byte(`{"id":"evt_test","type":"checkout.session.completed"}`)

	// Generate a valid signature using stripe-go's helper.
	sp := stripe.GenerateTestSignedPayload(&stripe.UnsignedPayload{
		Payload: payload,
		Secret:  secret,
	})

	err := verifier.Verify(payload, sp.Header, secret)
	if err != nil {
		t.Errorf("expected valid signature, got error: %v", err)
	}
}

func TestStripeVerifier_InvalidSignature(t *testing.T) {
	verifier := &StripeVerifier{}
	payload := []byte(`{"id":"evt_test"}`)
	header := "t=1234567890,v1=badbadbadbadbadbadbadbadbadbadbadbadbadbadbadbadbadbadbadbadbadbad"

	err := verifier.Verify(payload, header, "whsec_test_secret")
	if err == nil {
		t.Error("expected error for invalid signature, got nil")
	}
}

func TestStripeVerifier_MissingHeader(t *testing.T) {
	verifier := &StripeVerifier{}
	payload := []byte(`{"id":"evt_test"}`)

	err := verifier.Verify(payload, "", "whsec_test_secret")
	if err == nil {
		t.Error("expected error for missing signature header, got nil")
	}
}

func TestStripeVerifier_ExpiredTimestamp(t *testing.T) {
	verifier := &StripeVerifier{}
	secret := "whsec_test_secret"
	payload := []byte(`{"id":"evt_test"}`)

	// Generate a signature with a very old timestamp.
	oldTime := time.Now().Add(-10 * time.Minute)
	sig := stripe.ComputeSignature(oldTime, payload, secret)
	header := fmt.Sprintf("t=%d,v1=%s", oldTime.Unix(), hex.EncodeToString(sig))

	err := verifier.Verify(payload, header, secret)
	if err == nil {
		t.Error("expected error for expired timestamp, got nil")
	}
}

// Compile-time assertions that StripeClient and StripeVerifier satisfy the
// package interfaces.
var (
	_ PaymentGateway  = (*StripeClient)(nil)
	_ WebhookVerifier = (*StripeVerifier)(nil)
)
