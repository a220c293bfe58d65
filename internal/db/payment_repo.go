package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"cprtrainer/internal/types"
)

const paymentColumns = `id, stripe_checkout_session_id, COALESCE(stripe_payment_intent_id, ''), payment_type, amount_cents, currency, status, user_email, created_at, updated_at`

// PaymentRepository implements types.PaymentRepository backed by PostgreSQL.
type PaymentRepository struct {
	db DBTX
}

// NewPaymentRepository creates a repository that queries through the given
// DBTX.
func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// ListStalePending returns up to limit payments still pending that were
// created before the cutoff, oldest first. The sweep job uses this to find
// sessions whose webhook never arrived.
func (r *PaymentRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*types.Payment, error) {
	query := `
		SELECT ` + paymentColumns + ` FROM payments
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, types.PaymentStatusPending, cutoff, limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list stale pending payments", err)
	}
	defer rows.Close()

	var payments []*types.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan payment row", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate payment rows", err)
	}
	return payments, nil
}

// scanPayment scans a single payment row.
func scanPayment(row pgx.Row) (*types.Payment, error) {
	var p types.Payment
	err := row.Scan(
		&p.ID,
		&p.StripeCheckoutSessionID,
		&p.StripePaymentIntentID,
		&p.PaymentType,
		&p.AmountCents,
		&p.Currency,
		&p.Status,
		&p.UserEmail,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePending inserts a payment row in the pending state. Returns
// ErrCodeConflictSession if a row for the checkout session already exists.
func (r *PaymentRepository) CreatePending(ctx context.Context, payment *types.Payment) error {
	query := `
		INSERT INTO payments (id, stripe_checkout_session_id, payment_type, amount_cents, currency, status, user_email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()), NOW())
		RETURNING created_at, updated_at`

	payment.Status = types.PaymentStatusPending
	err := r.db.QueryRow(ctx, query,
		payment.ID,
		payment.StripeCheckoutSessionID,
		payment.PaymentType,
		payment.AmountCents,
		payment.Currency,
		payment.Status,
		payment.UserEmail,
		nilIfZeroTime(payment.CreatedAt),
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictSession, "payment for checkout session already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create payment", err)
	}
	return nil
}

// GetBySessionID retrieves a payment by its Stripe checkout session ID.
func (r *PaymentRepository) GetBySessionID(ctx context.Context, sessionID string) (*types.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE stripe_checkout_session_id = $1`

	payment, err := scanPayment(r.db.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPayment, "payment not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get payment", err)
	}
	return payment, nil
}

// MarkStatusBySessionID transitions a pending payment to the given terminal
// status and records the payment intent ID when one is provided. A redelivered
// webhook that asks for the status the row already has is a no-op; asking for
// a different terminal status than the one recorded returns
// ErrCodeConflictSession.
func (r *PaymentRepository) MarkStatusBySessionID(ctx context.Context, sessionID string, status types.PaymentStatus, paymentIntentID string) error {
	query := `
		UPDATE payments
		SET status = $2,
		    stripe_payment_intent_id = COALESCE(NULLIF($4, ''), stripe_payment_intent_id),
		    updated_at = NOW()
		WHERE stripe_checkout_session_id = $1 AND status = $3`

	tag, err := r.db.Exec(ctx, query, sessionID, status, types.PaymentStatusPending, paymentIntentID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update payment status", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// No pending row was updated. Either the payment does not exist or it
	// already settled; distinguish the two for the caller.
	var current types.PaymentStatus
	err = r.db.QueryRow(ctx,
		`SELECT status FROM payments WHERE stripe_checkout_session_id = $1`,
		sessionID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewAppError(types.ErrCodeNotFoundPayment, "payment not found", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to check payment status", err)
	}
	if current == status {
		return nil
	}
	return types.NewAppError(types.ErrCodeConflictSession, "payment already settled with a different status", nil)
}
