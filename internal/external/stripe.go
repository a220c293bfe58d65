package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"cprtrainer/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
)

// stripeAPIBase is the production Stripe endpoint; tests point BaseURL at an
// httptest server instead.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig configures a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	BaseURL   string
	Logger    *slog.Logger
}

// StripeClient implements PaymentGateway against the Stripe REST API,
// calling through BaseClient so checkout traffic shares the breaker, retry,
// and error-mapping behavior of every other vendor call.
type StripeClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	logger    *slog.Logger
}

// NewStripeClient builds a StripeClient with the retry policy tuned for
// checkout: two quick retries within the request deadline.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(
		httpClient,
		"stripe",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"CPRTrainer/1.0",
		WithSleepFunc(time.Sleep),
	)
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase accepts a pre-built BaseClient, for tests that
// need control over the breaker or retry policy.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// CreateCheckoutSession opens a hosted Stripe Checkout session in payment
// mode. The price is inlined via price_data so the amount is always the one
// the server decided; the provisioning details ride along in metadata and
// come back on the webhook.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, p types.CheckoutSessionParams) (*types.CheckoutSession, error) {
	params := url.Values{}
	params.Set("mode", "payment")
	params.Set("customer_email", p.CustomerEmail)
	params.Set("success_url", p.SuccessURL)
	params.Set("cancel_url", p.CancelURL)
	params.Set("line_items[0][price_data][currency]", p.Currency)
	params.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(p.AmountCents, 10))
	params.Set("line_items[0][price_data][product_data][name]", p.ProductName)
	params.Set("line_items[0][quantity]", "1")

	// Sorted for deterministic form encoding.
	keys := make([]string, 0, len(p.Metadata))
	for k := range p.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		params.Set(fmt.Sprintf("metadata[%s]", k), p.Metadata[k])
	}

	return s.sessionCall(ctx, "CreateCheckoutSession", http.MethodPost, "/v1/checkout/sessions", params)
}

// RetrieveCheckoutSession fetches the current state of a checkout session.
func (s *StripeClient) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*types.CheckoutSession, error) {
	path := "/v1/checkout/sessions/" + url.PathEscape(sessionID)
	return s.sessionCall(ctx, "RetrieveCheckoutSession", http.MethodGet, path, nil)
}

// sessionCall issues one authenticated API call and decodes the checkout
// session from the response.
func (s *StripeClient) sessionCall(ctx context.Context, operation, method, path string, params url.Values) (*types.CheckoutSession, error) {
	resp, err := s.doRequest(ctx, method, path, params)
	if err != nil {
		return nil, s.wrapStripeError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, operation)
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe checkout session response",
			err,
		)
	}
	return mapStripeCheckoutSession(&session), nil
}

// doRequest builds an authenticated request; POST bodies are form-encoded
// per the Stripe API, GET params go on the query string.
func (s *StripeClient) doRequest(ctx context.Context, method, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			reqURL += "?" + params.Encode()
		}
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)

	return s.base.Do(req)
}

// stripeErrorResponse is the JSON error body Stripe returns.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
	Param       string `json:"param"`
	DocURL      string `json:"doc_url"`
}

// handleErrorResponse reads a non-200 response and maps it to an AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	return s.mapStripeError(operation, resp.StatusCode, &stripeErr.Error)
}

// mapStripeError translates a decoded Stripe error into a domain AppError.
// Card declines map to payment_declined so the handler can answer 402.
func (s *StripeClient) mapStripeError(operation string, statusCode int, stripeErr *stripeErrorBody) error {
	if stripeErr.Code == "card_declined" || stripeErr.DeclineCode != "" {
		return types.NewAppErrorWithDetails(
			types.ErrCodePaymentDeclined,
			fmt.Sprintf("%s: payment declined: %s", operation, stripeErr.Message),
			nil,
			map[string]any{
				"decline_code": stripeErr.DeclineCode,
				"stripe_code":  stripeErr.Code,
			},
		)
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Stripe rate limit exceeded", operation),
			nil,
		)
	case statusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: Stripe server error: %s", operation, stripeErr.Message),
			nil,
		)
	case statusCode == http.StatusNotFound:
		return types.NewAppError(
			types.ErrCodeNotFoundSession,
			fmt.Sprintf("%s: Stripe resource not found: %s", operation, stripeErr.Message),
			nil,
		)
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe error (%d): %s", operation, statusCode, stripeErr.Message),
		nil,
	)
}

// wrapStripeError keeps AppErrors from BaseClient (open breaker, exhausted
// retries) intact; anything else becomes an upstream_stripe error.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}

// stripeCheckoutSession is the wire shape of a checkout session.
type stripeCheckoutSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	PaymentIntent string            `json:"payment_intent"`
	CustomerEmail string            `json:"customer_email"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

func mapStripeCheckoutSession(cs *stripeCheckoutSession) *types.CheckoutSession {
	return &types.CheckoutSession{
		ID:              cs.ID,
		URL:             cs.URL,
		Status:          cs.Status,
		PaymentStatus:   cs.PaymentStatus,
		PaymentIntentID: cs.PaymentIntent,
		CustomerEmail:   cs.CustomerEmail,
		AmountTotal:     cs.AmountTotal,
		Currency:        cs.Currency,
		Metadata:        cs.Metadata,
	}
}

// StripeVerifier implements WebhookVerifier with stripe-go's signature
// validation: HMAC-SHA256 plus timestamp tolerance.
type StripeVerifier struct{}

func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return stripe.ValidatePayload(payload, header, secret)
}
