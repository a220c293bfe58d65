package core

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/go-playground/validator/v10"

	"cprtrainer/internal/types"
)

// inviteCodePattern matches the 8-character team invite codes issued by the
// provisioning layer. The alphabet excludes the ambiguous characters 0, O, 1,
// and I so codes can be read aloud or retyped without confusion.
var inviteCodePattern = regexp.MustCompile(`^[A-HJ-NP-Z2-9]{8}$`)

// ValidationError describes a single field-level validation failure in a
// client-consumable form.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult aggregates the outcome of struct validation. Errors block
// the request; Warnings are surfaced to the client via response metadata but
// do not fail validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []string
}

// IsValid reports whether the result contains no blocking errors.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator wraps go-playground/validator with the custom rules used by the
// payment API: payment_type for catalog membership and invite_code for team
// invite code shape.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator and registers custom validation tags.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New()

	// RegisterValidation only errors on an empty tag name.
	_ = v.RegisterValidation("payment_type", validatePaymentType)
	_ = v.RegisterValidation("invite_code", validateInviteCode)

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates a struct and returns a *types.AppError on failure.
// The error code is taken from the first validation failure; the full list of
// failures is attached under the "validation_errors" details key.
func (v *Validator) ValidateStruct(s interface{}) error {
	result := v.ValidateStructWithWarnings(s)
	if result.IsValid() {
		return nil
	}

	first := result.Errors[0]
	return types.NewAppErrorWithDetails(
		types.ErrorCode(first.Code),
		first.Message,
		nil,
		map[string]any{"validation_errors": result.Errors},
	)
}

// ValidateStructWithWarnings validates a struct and returns the full
// ValidationResult instead of collapsing it into an error. Handlers use this
// when they want to return all failures at once.
func (v *Validator) ValidateStructWithWarnings(s interface{}) ValidationResult {
	err := v.validate.Struct(s)
	if err == nil {
		return ValidationResult{}
	}

	// InvalidValidationError means the caller passed a non-struct value;
	// this is a programming error, not a client error.
	var invalidErr *validator.InvalidValidationError
	if errors.As(err, &invalidErr) {
		v.logger.Error("validator received a non-struct value", "error", err)
		return ValidationResult{
			Errors: []ValidationError{{
				Field:   "",
				Code:    string(types.ErrCodeValidationInvalidValue),
				Message: "value is not validatable",
			}},
		}
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		v.logger.Error("validator returned an unexpected error type", "error", err)
		return ValidationResult{
			Errors: []ValidationError{{
				Field:   "",
				Code:    string(types.ErrCodeValidationInvalidValue),
				Message: err.Error(),
			}},
		}
	}

	result := ValidationResult{
		Errors: make([]ValidationError, 0, len(fieldErrs)),
	}
	for _, fe := range fieldErrs {
		result.Errors = append(result.Errors, ValidationError{
			Field:   fe.Field(),
			Code:    tagToErrorCode(fe.Tag()),
			Message: validationMessage(fe),
		})
	}
	return result
}

// validatePaymentType checks that a string field names a purchasable payment
// type. Empty values pass so the tag composes with required.
func validatePaymentType(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	return types.PaymentType(s).IsValid()
}

// validateInviteCode checks that a string field has the shape of an issued
// invite code. Empty values pass so the tag composes with required.
func validateInviteCode(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	return inviteCodePattern.MatchString(s)
}

// tagToErrorCode maps a validator tag to the API error code reported for
// failures of that tag.
func tagToErrorCode(tag string) string {
	switch tag {
	case "required":
		return string(types.ErrCodeValidationMissingField)
	case "email":
		return string(types.ErrCodeValidationInvalidEmail)
	case "payment_type":
		return string(types.ErrCodeValidationUnknownPayment)
	default:
		return string(types.ErrCodeValidationInvalidValue)
	}
}

// validationMessage builds a human-readable message for a field error.
func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "payment_type":
		return fmt.Sprintf("%s must be one of: %s, %s", fe.Field(), types.PaymentTypeSignup, types.PaymentTypeTeamMemberSeat)
	case "invite_code":
		return fmt.Sprintf("%s must be an 8-character invite code", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
