// Package handlers contains the HTTP handler implementations for the CPR
// Trainer payment API.
//
// This file implements the read-only payment verification endpoint the app
// polls after the checkout redirect. It never mutates state: settlement is
// owned by webhook processing and the reconcile worker.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cprtrainer/internal/core"
	"cprtrainer/internal/external"
	"cprtrainer/internal/types"
)

// VerifyPaymentResponse is the response for GET /payments/verify.
type VerifyPaymentResponse struct {
	Success       bool   `json:"success"`
	PaymentStatus string `json:"paymentStatus"`
	Message       string `json:"message,omitempty"`
}

// PaymentVerifyHandler answers post-redirect payment status checks.
type PaymentVerifyHandler struct {
	gateway  external.PaymentGateway
	payments types.PaymentRepository
	logger   *slog.Logger
}

// NewPaymentVerifyHandler creates a new PaymentVerifyHandler with the provided
// dependencies.
func NewPaymentVerifyHandler(
	gateway external.PaymentGateway,
	payments types.PaymentRepository,
	logger *slog.Logger,
) *PaymentVerifyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentVerifyHandler{
		gateway:  gateway,
		payments: payments,
		logger:   logger,
	}
}

// RegisterRoutes mounts the verification endpoint.
func (h *PaymentVerifyHandler) RegisterRoutes(r chi.Router) {
	r.Get("/payments/verify", h.Verify)
}

// Verify handles GET /payments/verify?session_id=...
//
// The local payment row is consulted first: a settled row answers without a
// gateway round trip. A pending or missing row falls through to the gateway
// for the live session state, since the webhook may simply not have arrived
// yet. No writes happen on this path.
func (h *PaymentVerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeConfigMissing,
			"payment gateway is not configured",
			nil,
		))
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingSessionID,
			"session_id query parameter is required",
			nil,
		))
		return
	}

	if payment, err := h.payments.GetBySessionID(r.Context(), sessionID); err == nil {
		switch payment.Status {
		case types.PaymentStatusSucceeded:
			core.JSON(w, r, http.StatusOK, VerifyPaymentResponse{
				Success:       true,
				PaymentStatus: "paid",
			})
			return
		case types.PaymentStatusFailed:
			core.JSON(w, r, http.StatusOK, VerifyPaymentResponse{
				Success:       false,
				PaymentStatus: "unpaid",
				Message:       "Payment was not completed",
			})
			return
		}
	}

	session, err := h.gateway.RetrieveCheckoutSession(r.Context(), sessionID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to retrieve checkout session",
			"session_id", sessionID,
			"error", err,
		)
		// Any lookup failure here, unknown session included, is a server-side
		// verification failure from the client's point of view.
		core.Error(w, r, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to verify payment",
			err,
		))
		return
	}

	resp := VerifyPaymentResponse{
		Success:       session.PaymentStatus == "paid",
		PaymentStatus: session.PaymentStatus,
	}
	if !resp.Success {
		resp.Message = "Payment not completed"
	}
	core.JSON(w, r, http.StatusOK, resp)
}
