package types

import (
	"time"
)

// PaymentType identifies which product a checkout session is purchasing.
type PaymentType string

const (
	PaymentTypeSignup         PaymentType = "signup"
	PaymentTypeTeamMemberSeat PaymentType = "team_member_seat"
)

// IsValid reports whether the payment type is one of the known products.
func (t PaymentType) IsValid() bool {
	return t == PaymentTypeSignup || t == PaymentTypeTeamMemberSeat
}

// PaymentStatus is the lifecycle state of a payment row.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// UserPaymentStatus is the account-level paid flag on a user.
type UserPaymentStatus string

const (
	UserPaymentUnpaid UserPaymentStatus = "unpaid"
	UserPaymentPaid   UserPaymentStatus = "paid"
)

// PlanKind identifies the provisioning branch to take once a payment succeeds.
type PlanKind string

const (
	PlanKindJoinTeam        PlanKind = "join_team"
	PlanKindCreateOwnedTeam PlanKind = "create_owned_team"
	PlanKindCreateSoloTeam  PlanKind = "create_solo_team"
)

// ProvisioningPlan is the tagged variant describing what account structure to
// create when the checkout session completes. Exactly one branch is active:
// JoinTeam carries an invite code or a team ID, CreateOwnedTeam carries a
// team name, and CreateSoloTeam carries nothing beyond the kind.
type ProvisioningPlan struct {
	Kind       PlanKind `json:"kind"`
	InviteCode string   `json:"invite_code,omitempty"`
	TeamID     string   `json:"team_id,omitempty"`
	TeamName   string   `json:"team_name,omitempty"`
}

// Validate checks that the active branch carries its required field.
func (p ProvisioningPlan) Validate() error {
	switch p.Kind {
	case PlanKindJoinTeam:
		if p.InviteCode == "" && p.TeamID == "" {
			return NewAppError(ErrCodeValidationInvalidPlan, "join_team plan requires an invite code or team id", nil)
		}
	case PlanKindCreateOwnedTeam:
		if p.TeamName == "" {
			return NewAppError(ErrCodeValidationInvalidPlan, "create_owned_team plan requires a team name", nil)
		}
	case PlanKindCreateSoloTeam:
		// No extra fields.
	default:
		return NewAppError(ErrCodeValidationInvalidPlan, "unknown provisioning plan kind", nil)
	}
	return nil
}

// Team represents a training group that users belong to.
type Team struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	InviteCode string    `json:"invite_code" db:"invite_code"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// User represents a trainee account. Email is unique across the system.
type User struct {
	ID              string            `json:"id" db:"id"`
	Email           string            `json:"email" db:"email"`
	Name            string            `json:"name,omitempty" db:"name"`
	PaymentStatus   UserPaymentStatus `json:"payment_status" db:"payment_status"`
	TeamID          *string           `json:"team_id,omitempty" db:"team_id"`
	IsTeamOwner     bool              `json:"is_team_owner" db:"is_team_owner"`
	VoicePreference string            `json:"voice_preference,omitempty" db:"voice_preference"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

// Payment tracks one checkout session from creation through settlement.
// A pending row is inserted when the session is created; webhook processing
// moves it to succeeded or failed.
type Payment struct {
	ID                      string        `json:"id" db:"id"`
	StripeCheckoutSessionID string        `json:"stripe_checkout_session_id" db:"stripe_checkout_session_id"`
	StripePaymentIntentID   string        `json:"stripe_payment_intent_id,omitempty" db:"stripe_payment_intent_id"`
	PaymentType             PaymentType   `json:"payment_type" db:"payment_type"`
	AmountCents             int64         `json:"amount_cents" db:"amount_cents"`
	Currency                string        `json:"currency" db:"currency"`
	Status                  PaymentStatus `json:"status" db:"status"`
	UserEmail               string        `json:"user_email" db:"user_email"`
	CreatedAt               time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time     `json:"updated_at" db:"updated_at"`
}

// CheckoutSessionParams carries everything needed to open a hosted checkout
// page. The amount and product name come from the server-side price catalog,
// never from the client.
type CheckoutSessionParams struct {
	PaymentType   PaymentType
	ProductName   string
	AmountCents   int64
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// CheckoutSession is the provider-side view of a checkout session. Metadata
// round-trips the provisioning details attached at creation time.
type CheckoutSession struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	PaymentIntentID string            `json:"payment_intent"`
	CustomerEmail   string            `json:"customer_email"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata"`
}

// ResponseMeta contains non-blocking metadata returned with API responses.
type ResponseMeta struct {
	Warnings []string `json:"warnings,omitempty"`
}
