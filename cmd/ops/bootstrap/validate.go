package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ValidationResult is what a check reports back to the prompt loop: pass or
// fail, plus a message the operator can act on.
type ValidationResult struct {
	Valid   bool
	Message string
}

func pass(format string, args ...any) ValidationResult {
	return ValidationResult{Valid: true, Message: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...any) ValidationResult {
	return ValidationResult{Valid: false, Message: fmt.Sprintf(format, args...)}
}

// HTTPClient lets tests stub the outbound Stripe call.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DatabaseConnector abstracts the connection attempt so tests can simulate
// success and failure. Implementations must close the connection before
// returning.
type DatabaseConnector interface {
	Connect(ctx context.Context, dsn string) error
}

// PgxConnector is the production DatabaseConnector. It connects and closes
// immediately; the point is confirming the DSN and credentials work, not
// holding a connection.
type PgxConnector struct{}

func (c *PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// Validator runs the live checks behind each bootstrap step.
type Validator struct {
	httpClient HTTPClient
	dbConn     DatabaseConnector
}

// NewValidator wires the real HTTP client and pgx connector.
func NewValidator() *Validator {
	return &Validator{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		dbConn:     &PgxConnector{},
	}
}

// NewValidatorWithDeps injects the dependencies, for tests.
func NewValidatorWithDeps(httpClient HTTPClient, dbConn DatabaseConnector) *Validator {
	return &Validator{httpClient: httpClient, dbConn: dbConn}
}

// Outer bound on each live check, covering DNS and TLS on top of the HTTP
// client's own timeout.
const validateTimeout = 15 * time.Second

// Key formats per the Stripe docs: prefix, mode, then 24+ alphanumerics.
// The webhook signing secret has no mode component.
var (
	stripeSecretKeyRegex = regexp.MustCompile(`^sk_(test|live)_[0-9a-zA-Z]{24,}$`)
	webhookSecretRegex   = regexp.MustCompile(`^whsec_[0-9a-zA-Z]{24,}$`)
	publishableKeyRegex  = regexp.MustCompile(`^pk_(test|live)_[0-9a-zA-Z]{24,}$`)
)

// ValidateDatabaseURL checks the postgres:// scheme, then opens and closes a
// real connection to confirm the credentials and network path.
func (v *Validator) ValidateDatabaseURL(ctx context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return fail("database URL must not be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fail("invalid URL format: %v", err)
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return fail("expected postgres:// or postgresql:// scheme, got %q", parsed.Scheme)
	}

	connCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	if err := v.dbConn.Connect(connCtx, rawURL); err != nil {
		return fail("connection failed: %v", err)
	}
	return pass("database connection verified (host=%s)", parsed.Hostname())
}

// ValidateStripeKey checks the sk_ key format, then calls GET /v1/account,
// the lightest Stripe endpoint that proves the key works without side
// effects.
func (v *Validator) ValidateStripeKey(ctx context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if key == "" {
		return fail("Stripe secret key must not be empty")
	}
	if !stripeSecretKeyRegex.MatchString(key) {
		return fail("Stripe secret key must match format sk_(test|live)_[alphanumeric 24+ chars]")
	}

	callCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, "https://api.stripe.com/v1/account", nil)
	if err != nil {
		return fail("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", "CPRTrainer-Bootstrap/1.0")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fail("Stripe API call failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fail("Stripe API returned 401 Unauthorized: key is invalid or revoked")
	case resp.StatusCode != http.StatusOK:
		return fail("Stripe API returned HTTP %d: %s", resp.StatusCode, truncateBody(body, 200))
	}

	mode := "test"
	if strings.HasPrefix(key, "sk_live_") {
		mode = "live"
	}
	return pass("Stripe key verified [%s mode]%s", mode, accountSummary(body))
}

// accountSummary pulls the account ID and business name out of the
// /v1/account response for operator feedback. Best effort; an unparseable
// body yields an empty summary.
func accountSummary(body []byte) string {
	var account struct {
		ID              string `json:"id"`
		BusinessProfile struct {
			Name string `json:"name"`
		} `json:"business_profile"`
	}
	if err := json.Unmarshal(body, &account); err != nil || account.ID == "" {
		return ""
	}
	if account.BusinessProfile.Name != "" {
		return fmt.Sprintf(" (account: %s, name: %s)", account.ID, account.BusinessProfile.Name)
	}
	return fmt.Sprintf(" (account: %s)", account.ID)
}

// ValidateWebhookSecret is format-only; a signing secret cannot be checked
// against the API, it only verifies inbound webhook signatures.
func (v *Validator) ValidateWebhookSecret(_ context.Context, secret string) ValidationResult {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return fail("webhook signing secret must not be empty")
	}
	if !webhookSecretRegex.MatchString(secret) {
		return fail("webhook signing secret must match format whsec_[alphanumeric 24+ chars]")
	}
	return pass("webhook signing secret accepted (length: %d chars)", len(secret))
}

// ValidatePublishableKey is format-only; publishable keys are not
// authenticated against the API.
func (v *Validator) ValidatePublishableKey(_ context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if key == "" {
		return fail("Stripe publishable key must not be empty")
	}
	if !publishableKeyRegex.MatchString(key) {
		return fail("Stripe publishable key must match format pk_(test|live)_[alphanumeric 24+ chars]")
	}
	return pass("Stripe publishable key format validated")
}

// truncateBody caps an API response body for inclusion in an error message.
func truncateBody(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
