// Package handlers contains the HTTP handler implementations for the CPR
// Trainer payment API.
//
// This file implements checkout session creation. Pricing is resolved
// server-side from the billing catalog; the client-supplied amount is only
// cross-checked against it, never charged as-is.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"cprtrainer/internal/billing"
	"cprtrainer/internal/config"
	"cprtrainer/internal/core"
	"cprtrainer/internal/external"
	"cprtrainer/internal/provisioning"
	"cprtrainer/internal/types"
)

// CreateCheckoutSessionRequest is the request body for POST /checkout-sessions.
//
// The amount is required but never trusted: the server-side catalog keyed by
// paymentType is authoritative, and a mismatch is rejected so a tampered
// client cannot change what is charged.
type CreateCheckoutSessionRequest struct {
	PaymentType     string `json:"paymentType" validate:"required,payment_type"`
	Amount          int64  `json:"amount" validate:"required,gt=0"`
	UserEmail       string `json:"userEmail" validate:"required,email"`
	UserName        string `json:"userName,omitempty" validate:"omitempty,max=200"`
	VoicePreference string `json:"voicePreference,omitempty" validate:"omitempty,max=50"`

	// Provisioning plan selection, executed after payment confirms. When
	// planKind is omitted it is derived from which of the other fields is
	// present; a body with none of them provisions a solo account.
	PlanKind   string `json:"planKind,omitempty"`
	InviteCode string `json:"inviteCode,omitempty" validate:"omitempty,invite_code"`
	TeamID     string `json:"teamId,omitempty" validate:"omitempty,uuid4"`
	TeamName   string `json:"teamName,omitempty" validate:"omitempty,max=200"`

	// Optional redirect overrides; defaults derive from APP_BASE_URL.
	SuccessURL string `json:"successUrl,omitempty" validate:"omitempty,url"`
	CancelURL  string `json:"cancelUrl,omitempty" validate:"omitempty,url"`
}

// plan assembles the provisioning plan, deriving the kind from the populated
// fields when the client did not name one.
func (req *CreateCheckoutSessionRequest) plan() types.ProvisioningPlan {
	kind := types.PlanKind(req.PlanKind)
	if kind == "" {
		switch {
		case req.InviteCode != "" || req.TeamID != "":
			kind = types.PlanKindJoinTeam
		case req.TeamName != "":
			kind = types.PlanKindCreateOwnedTeam
		default:
			kind = types.PlanKindCreateSoloTeam
		}
	}
	return types.ProvisioningPlan{
		Kind:       kind,
		InviteCode: req.InviteCode,
		TeamID:     req.TeamID,
		TeamName:   req.TeamName,
	}
}

// CreateCheckoutSessionResponse is the response for POST /checkout-sessions.
type CreateCheckoutSessionResponse struct {
	SessionID   string `json:"sessionId"`
	CheckoutURL string `json:"url"`
}

// CheckoutHandler creates hosted checkout sessions with the payment gateway
// and records a pending payment row for each one.
type CheckoutHandler struct {
	gateway    external.PaymentGateway
	payments   types.PaymentRepository
	enqueuer   types.ReconcileEnqueuer
	validator  *core.Validator
	appBaseURL string
	logger     *slog.Logger
}

// NewCheckoutHandler creates a new CheckoutHandler with the provided dependencies.
func NewCheckoutHandler(
	gateway external.PaymentGateway,
	payments types.PaymentRepository,
	enqueuer types.ReconcileEnqueuer,
	cfg *config.Config,
	v *core.Validator,
	l *slog.Logger,
) *CheckoutHandler {
	if l == nil {
		l = slog.Default()
	}

	appBaseURL := ""
	if cfg != nil {
		appBaseURL = cfg.Server.AppBaseURL
	}

	return &CheckoutHandler{
		gateway:    gateway,
		payments:   payments,
		enqueuer:   enqueuer,
		validator:  v,
		appBaseURL: appBaseURL,
		logger:     l,
	}
}

// RegisterRoutes mounts the checkout endpoint. OPTIONS preflight is answered
// by the CORS middleware on the parent router.
func (h *CheckoutHandler) RegisterRoutes(r chi.Router) {
	r.Post("/checkout-sessions", h.Create)
}

// Create handles POST /checkout-sessions.
//
//  1. Decode and validate the request body.
//  2. Validate the provisioning plan (join needs an invite code or team ID,
//     owned team needs a name).
//  3. Resolve the price from the server-side catalog and reject the request
//     when the submitted amount disagrees with it.
//  4. Create the hosted checkout session.
//  5. Record a pending payment row keyed by the session ID.
//  6. Return the session ID and checkout URL.
func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil || h.appBaseURL == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeConfigMissing,
			"payment gateway is not configured",
			nil,
		))
		return
	}

	var req CreateCheckoutSessionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	plan := req.plan()
	if err := plan.Validate(); err != nil {
		core.Error(w, r, err)
		return
	}

	paymentType := types.PaymentType(req.PaymentType)
	price, err := billing.PriceFor(paymentType)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if req.Amount != price.AmountCents {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidValue,
			"amount does not match the catalog price for this payment type",
			nil,
		))
		return
	}

	metadata := provisioning.EncodeMetadata(provisioning.Details{
		PaymentType:     paymentType,
		UserName:        req.UserName,
		UserEmail:       req.UserEmail,
		VoicePreference: req.VoicePreference,
		Plan:            plan,
	})

	successURL := req.SuccessURL
	if successURL == "" {
		successURL = h.appBaseURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}"
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = h.appBaseURL + "/payment/cancel"
	}

	session, err := h.gateway.CreateCheckoutSession(r.Context(), types.CheckoutSessionParams{
		PaymentType:   paymentType,
		ProductName:   price.ProductName,
		AmountCents:   price.AmountCents,
		Currency:      price.Currency,
		CustomerEmail: req.UserEmail,
		SuccessURL:    successURL,
		CancelURL:     cancelURL,
		Metadata:      metadata,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create checkout session",
			"payment_type", paymentType,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	// Record the pending payment row. A failure here must not lose the sale:
	// the session already exists at the gateway, so the row is repaired via
	// the reconciliation queue instead of failing the request.
	payment := &types.Payment{
		ID:                      uuid.NewString(),
		StripeCheckoutSessionID: session.ID,
		PaymentType:             paymentType,
		AmountCents:             price.AmountCents,
		Currency:                price.Currency,
		Status:                  types.PaymentStatusPending,
		UserEmail:               req.UserEmail,
	}
	if err := h.payments.CreatePending(r.Context(), payment); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to record pending payment",
			"session_id", session.ID,
			"error", err,
		)
		if h.enqueuer != nil {
			msg := &types.ReconciliationMessage{
				CheckoutSessionID: session.ID,
				EventType:         "checkout.session.created",
				Reason:            "payment_row_create_failed",
				RequestID:         types.GetRequestID(r.Context()),
			}
			if qErr := h.enqueuer.Enqueue(r.Context(), msg); qErr != nil {
				h.logger.ErrorContext(r.Context(), "failed to queue payment row repair",
					"session_id", session.ID,
					"error", qErr,
				)
			}
		}
	}

	core.JSON(w, r, http.StatusOK, CreateCheckoutSessionResponse{
		SessionID:   session.ID,
		CheckoutURL: session.URL,
	})
}
