package core

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"cprtrainer/internal/types"
)

// Request bodies larger than 1 MB are rejected outright; no payment
// operation needs more.
const maxRequestBodySize = 1 << 20

// APIResponse is the envelope for successful responses. Meta carries
// non-blocking warnings such as deprecation notices.
type APIResponse struct {
	Data interface{}         `json:"data,omitempty"`
	Meta *types.ResponseMeta `json:"meta,omitempty"`
}

// APIErrorResponse is the envelope for error responses.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the structured error clients see.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// errorEnvelope builds the standard error body.
func errorEnvelope(code types.ErrorCode, message, requestID string, details map[string]any) APIErrorResponse {
	return APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			Details:   details,
			RequestID: requestID,
		},
	}
}

// JSON marshals data and writes it with the given status. A marshal failure
// degrades to a 500 error envelope.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")

	body, err := json.Marshal(data)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fallback := errorEnvelope(
			types.ErrCodeInternalUnexpected,
			"failed to marshal response",
			types.GetRequestID(r.Context()),
			nil,
		)
		// Best effort; nothing more can be done if this write fails too.
		_ = json.NewEncoder(w).Encode(fallback)
		return
	}

	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error resolves err to an HTTP error response. An error that is or wraps a
// *types.AppError keeps its code and message; anything else becomes a 500
// with a generic message so internal detail never reaches the client.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	requestID := types.GetRequestID(r.Context())

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		resp := errorEnvelope(appErr.Code, appErr.Message, requestID, appErr.Details)
		JSON(w, r, appErr.HTTPStatus(), resp)
		return
	}

	resp := errorEnvelope(types.ErrCodeInternalUnexpected, "an unexpected error occurred", requestID, nil)
	JSON(w, r, http.StatusInternalServerError, resp)
}

// errCodeValidationInvalidJSON covers every way a body can fail to decode:
// syntax errors, unknown fields, oversize, empty, or trailing values.
const errCodeValidationInvalidJSON types.ErrorCode = "validation_invalid_json"

// DecodeJSON reads the request body into dst with the 1 MB cap and
// DisallowUnknownFields, and rejects bodies holding more than one JSON
// value. Failures come back as *types.AppError (400).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	// MaxBytesReader needs w so writes after the limit trip the right error.
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return mapDecodeError(err)
	}

	if dec.More() {
		return types.NewAppError(
			errCodeValidationInvalidJSON,
			"request body must contain a single JSON object",
			nil,
		)
	}
	return nil
}

// mapDecodeError translates a json.Decoder failure into an AppError.
func mapDecodeError(err error) *types.AppError {
	var (
		maxBytesErr      *http.MaxBytesError
		syntaxErr        *json.SyntaxError
		unmarshalTypeErr *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &maxBytesErr):
		return types.NewAppError(errCodeValidationInvalidJSON, "request body must not exceed 1MB", err)

	case errors.As(err, &syntaxErr):
		return types.NewAppError(errCodeValidationInvalidJSON, "malformed JSON in request body", err)

	case errors.As(err, &unmarshalTypeErr):
		return types.NewAppErrorWithDetails(
			errCodeValidationInvalidJSON,
			"invalid value for field",
			err,
			map[string]any{
				"field":    unmarshalTypeErr.Field,
				"expected": unmarshalTypeErr.Type.String(),
			},
		)

	case strings.HasPrefix(err.Error(), "json: unknown field"):
		field := strings.TrimPrefix(err.Error(), "json: unknown field ")
		return types.NewAppError(errCodeValidationInvalidJSON, "unknown field in request body: "+field, err)

	case errors.Is(err, io.EOF):
		return types.NewAppError(errCodeValidationInvalidJSON, "request body must not be empty", err)
	}

	return types.NewAppError(errCodeValidationInvalidJSON, "invalid JSON in request body", err)
}
