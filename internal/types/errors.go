package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField     ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidEmail     ErrorCode = "validation_invalid_email"
	ErrCodeValidationInvalidValue     ErrorCode = "validation_invalid_value"
	ErrCodeValidationInvalidPlan      ErrorCode = "validation_invalid_provisioning_plan"
	ErrCodeValidationMissingSessionID ErrorCode = "validation_missing_session_id"
	ErrCodeValidationUnknownPayment   ErrorCode = "validation_unknown_payment_type"

	// Webhook (400)
	ErrCodeWebhookSignatureMissing ErrorCode = "webhook_signature_missing"
	ErrCodeWebhookSignatureInvalid ErrorCode = "webhook_signature_invalid"
	ErrCodeWebhookPayloadInvalid   ErrorCode = "webhook_payload_invalid"

	// Not Found (404)
	ErrCodeNotFoundTeam    ErrorCode = "not_found_team"
	ErrCodeNotFoundUser    ErrorCode = "not_found_user"
	ErrCodeNotFoundPayment ErrorCode = "not_found_payment"
	ErrCodeNotFoundSession ErrorCode = "not_found_checkout_session"

	// Conflict (409)
	ErrCodeConflictInviteCode ErrorCode = "conflict_invite_code_exists"
	ErrCodeConflictEmail      ErrorCode = "conflict_email_exists"
	ErrCodeConflictSession    ErrorCode = "conflict_session_exists"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeConfigMissing       ErrorCode = "config_missing"
	ErrCodeUpstreamStripe      ErrorCode = "upstream_stripe_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeReconcileQueue      ErrorCode = "reconcile_queue_unavailable"

	// Payment-specific
	ErrCodePaymentDeclined ErrorCode = "payment_declined"
)

// HTTPStatus derives the response status from the code's prefix, so new
// codes in an existing family map correctly without touching this table.
// Unrecognized codes fall back to 500.
func (c ErrorCode) HTTPStatus() int {
	if c == ErrCodePaymentDeclined {
		return http.StatusPaymentRequired
	}

	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"), strings.HasPrefix(s, "webhook_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError carries a code, a client-safe message, and an optional wrapped
// cause. Domain and handler errors are all expressed as AppError so the API
// layer can map them to HTTP uniformly.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy with the given details merged in, leaving the
// original untouched.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{Code: e.Code, Message: e.Message, Err: e.Err, Details: merged}
}

// NewAppError is the standard constructor for domain errors; err may be nil.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewAppErrorWithDetails additionally attaches structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{Code: code, Message: message, Err: err, Details: details}
}
