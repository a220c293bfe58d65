package types

import (
	"context"
	"time"
)

// Validator is implemented by entities to self-validate.
type Validator interface {
	Validate() error
}

// RepositoryRegistry provides access to all repository instances.
type RepositoryRegistry interface {
	Teams() TeamRepository
	Users() UserRepository
	Payments() PaymentRepository
}

// TeamRepository defines the data access interface for Teams.
type TeamRepository interface {
	// Create inserts a new team. Returns ErrCodeConflictInviteCode if the
	// invite code is already taken.
	Create(ctx context.Context, team *Team) error

	// GetByID retrieves a team by its primary key.
	GetByID(ctx context.Context, id string) (*Team, error)

	// GetByInviteCode retrieves a team by its unique invite code.
	GetByInviteCode(ctx context.Context, code string) (*Team, error)
}

// UserRepository defines the data access interface for Users.
type UserRepository interface {
	// UpsertByEmail inserts a user or updates the existing row keyed on
	// email. The returned user reflects the persisted state.
	UpsertByEmail(ctx context.Context, user *User) (*User, error)

	// GetByEmail retrieves a user by email address.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// UpdatePaymentStatus sets the payment status for the user with the
	// given email.
	UpdatePaymentStatus(ctx context.Context, email string, status UserPaymentStatus) error
}

// PaymentRepository defines the data access interface for Payments.
type PaymentRepository interface {
	// CreatePending inserts a payment row in the pending state, keyed on
	// the Stripe checkout session ID.
	CreatePending(ctx context.Context, payment *Payment) error

	// GetBySessionID retrieves the payment for a checkout session.
	GetBySessionID(ctx context.Context, sessionID string) (*Payment, error)

	// MarkStatusBySessionID transitions a payment from pending to the given
	// terminal status, recording the payment intent ID when one is known
	// (pass "" to leave it unchanged). Repeated calls with the same status
	// are no-ops, which keeps webhook redelivery idempotent.
	MarkStatusBySessionID(ctx context.Context, sessionID string, status PaymentStatus, paymentIntentID string) error

	// ListStalePending returns up to limit payments still pending that were
	// created before the cutoff, oldest first.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*Payment, error)
}

// TransactionManager provides transactional execution across repositories.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, repos RepositoryRegistry) error) error
}

// ReconcileEnqueuer publishes reconciliation messages for payment rows that
// could not be finalized inline.
type ReconcileEnqueuer interface {
	Enqueue(ctx context.Context, msg *ReconciliationMessage) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger defines the structured logging interface used throughout the service.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}
