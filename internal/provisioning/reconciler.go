package provisioning

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"cprtrainer/internal/external"
	"cprtrainer/internal/types"
)

// Store combines repository access with transactional execution. Satisfied
// by the database registry.
type Store interface {
	types.RepositoryRegistry
	types.TransactionManager
}

// Reconciler provisions accounts when checkout sessions settle and repairs
// payment rows the webhook path could not finalize. All provisioning runs
// inside a single database transaction so a half-built team never survives
// a failure.
type Reconciler struct {
	store    Store
	gateway  external.PaymentGateway
	enqueuer types.ReconcileEnqueuer
	clock    types.Clock
	logger   *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the clock. Intended for tests.
func WithClock(c types.Clock) Option {
	return func(r *Reconciler) {
		r.clock = c
	}
}

// NewReconciler creates a Reconciler.
func NewReconciler(store Store, gateway external.PaymentGateway, enqueuer types.ReconcileEnqueuer, logger *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    store,
		gateway:  gateway,
		enqueuer: enqueuer,
		clock:    types.RealClock{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleCheckoutCompleted settles the payment row and provisions the account
// described in the session metadata inside one transaction. Settling first
// makes the conditional pending-to-succeeded update the claim on the event:
// concurrent deliveries of the same session serialize on the payment row, and
// the loser finds the account already provisioned when it re-reads. Failures
// roll the whole transaction back, queue a repair message, and surface the
// error; the webhook response contract is decided by the caller.
func (r *Reconciler) HandleCheckoutCompleted(ctx context.Context, session *types.CheckoutSession) error {
	details, err := DecodeMetadata(session.Metadata)
	if err != nil {
		return err
	}

	reason := "provisioning_failed"
	err = r.store.RunInTx(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		if err := r.settlePayment(ctx, repos, session, details); err != nil {
			reason = "payment_row_update_failed"
			return err
		}
		return r.provision(ctx, repos, details)
	})
	if err != nil {
		r.enqueueRepair(ctx, session.ID, external.EventCheckoutCompleted, reason)
		return err
	}
	return nil
}

// settlePayment transitions the payment row for a paid session to succeeded.
// A row the checkout handler failed to record is rebuilt from the session
// before settling, so the audit trail survives a lost insert.
func (r *Reconciler) settlePayment(ctx context.Context, repos types.RepositoryRegistry, session *types.CheckoutSession, d Details) error {
	err := repos.Payments().MarkStatusBySessionID(ctx, session.ID, types.PaymentStatusSucceeded, session.PaymentIntentID)
	if err == nil || !isAppErrorCode(err, types.ErrCodeNotFoundPayment) {
		return err
	}

	r.logger.WarnContext(ctx, "rebuilding missing payment row from session",
		"session_id", session.ID,
	)
	payment := &types.Payment{
		ID:                      uuid.NewString(),
		StripeCheckoutSessionID: session.ID,
		PaymentType:             d.PaymentType,
		AmountCents:             session.AmountTotal,
		Currency:                session.Currency,
		UserEmail:               d.UserEmail,
	}
	if err := repos.Payments().CreatePending(ctx, payment); err != nil && !isAppErrorCode(err, types.ErrCodeConflictSession) {
		return err
	}
	return repos.Payments().MarkStatusBySessionID(ctx, session.ID, types.PaymentStatusSucceeded, session.PaymentIntentID)
}

// HandleCheckoutFailed marks the payment row failed for an expired or
// payment-failed session. A row that already settled as succeeded is left
// alone; a missing row is logged and ignored.
func (r *Reconciler) HandleCheckoutFailed(ctx context.Context, sessionID string, eventType string) error {
	err := r.store.Payments().MarkStatusBySessionID(ctx, sessionID, types.PaymentStatusFailed, "")
	if err == nil {
		return nil
	}

	switch {
	case isAppErrorCode(err, types.ErrCodeNotFoundPayment):
		r.logger.WarnContext(ctx, "failure event for unknown checkout session",
			"session_id", sessionID,
			"event_type", eventType,
		)
		return nil
	case isAppErrorCode(err, types.ErrCodeConflictSession):
		r.logger.WarnContext(ctx, "failure event for already settled payment",
			"session_id", sessionID,
			"event_type", eventType,
		)
		return nil
	default:
		r.enqueueRepair(ctx, sessionID, eventType, "payment_row_update_failed")
		return err
	}
}

// Reconcile re-fetches a checkout session from the gateway and repairs local
// state. Called by the reconcile worker for queued messages and by the stale
// pending sweep. Safe to run repeatedly.
func (r *Reconciler) Reconcile(ctx context.Context, msg *types.ReconciliationMessage) error {
	session, err := r.gateway.RetrieveCheckoutSession(ctx, msg.CheckoutSessionID)
	if err != nil {
		return err
	}

	switch {
	case session.PaymentStatus == "paid":
		details, err := DecodeMetadata(session.Metadata)
		if err != nil {
			return err
		}
		return r.store.RunInTx(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
			if err := r.settlePayment(ctx, repos, session, details); err != nil {
				return err
			}
			return r.provision(ctx, repos, details)
		})
	case session.Status == "expired":
		return r.HandleCheckoutFailed(ctx, session.ID, external.EventCheckoutExpired)
	default:
		// Still open; leave the row pending.
		r.logger.InfoContext(ctx, "checkout session still open, leaving payment pending",
			"session_id", session.ID,
			"status", session.Status,
		)
		return nil
	}
}

// provision builds the account structure for one settled session. It is
// idempotent: a user that is already paid and attached to a team is left
// untouched, which makes webhook redelivery and queued repairs harmless.
func (r *Reconciler) provision(ctx context.Context, repos types.RepositoryRegistry, d Details) error {
	existing, err := repos.Users().GetByEmail(ctx, d.UserEmail)
	if err == nil && existing.PaymentStatus == types.UserPaymentPaid && existing.TeamID != nil {
		return nil
	}
	if err != nil && !isAppErrorCode(err, types.ErrCodeNotFoundUser) {
		return err
	}

	var teamID string
	var isOwner bool

	switch d.Plan.Kind {
	case types.PlanKindJoinTeam:
		team, err := r.resolveJoinTeam(ctx, repos, d.Plan)
		if err != nil {
			return err
		}
		teamID = team.ID

	case types.PlanKindCreateOwnedTeam:
		team, err := r.createTeamWithFreshCode(ctx, repos, d.Plan.TeamName)
		if err != nil {
			return err
		}
		teamID = team.ID
		isOwner = true

	case types.PlanKindCreateSoloTeam:
		team, err := r.createTeamWithFreshCode(ctx, repos, soloTeamName(d))
		if err != nil {
			return err
		}
		teamID = team.ID
		isOwner = true

	default:
		return types.NewAppError(types.ErrCodeValidationInvalidPlan, "unknown provisioning plan kind", nil)
	}

	_, err = repos.Users().UpsertByEmail(ctx, &types.User{
		ID:              uuid.NewString(),
		Email:           d.UserEmail,
		Name:            d.UserName,
		PaymentStatus:   types.UserPaymentPaid,
		TeamID:          &teamID,
		IsTeamOwner:     isOwner,
		VoicePreference: d.VoicePreference,
	})
	return err
}

// createTeamWithFreshCode inserts a team under a newly generated invite
// code, regenerating on collision. The availability check runs inside the
// provisioning transaction; the unique constraint on invite_code still backs
// it against races, in which case the queued repair retries the whole
// provision.
func (r *Reconciler) createTeamWithFreshCode(ctx context.Context, repos types.RepositoryRegistry, name string) (*types.Team, error) {
	for attempt := 0; attempt < maxInviteCodeAttempts; attempt++ {
		code, err := GenerateInviteCode()
		if err != nil {
			return nil, err
		}

		_, err = repos.Teams().GetByInviteCode(ctx, code)
		if err == nil {
			continue
		}
		if !isAppErrorCode(err, types.ErrCodeNotFoundTeam) {
			return nil, err
		}

		team := &types.Team{
			ID:         uuid.NewString(),
			Name:       name,
			InviteCode: code,
		}
		if err := repos.Teams().Create(ctx, team); err != nil {
			return nil, err
		}
		return team, nil
	}
	return nil, types.NewAppError(
		types.ErrCodeConflictInviteCode,
		"exhausted invite code generation attempts",
		nil,
	)
}

// resolveJoinTeam finds the team a joining member paid to enter. Checkout
// collects an invite code; sessions created with a known team id join
// directly.
func (r *Reconciler) resolveJoinTeam(ctx context.Context, repos types.RepositoryRegistry, plan types.ProvisioningPlan) (*types.Team, error) {
	if plan.InviteCode != "" {
		return repos.Teams().GetByInviteCode(ctx, plan.InviteCode)
	}
	return repos.Teams().GetByID(ctx, plan.TeamID)
}

// soloTeamName derives a team name for single-trainee accounts.
func soloTeamName(d Details) string {
	name := d.UserName
	if name == "" {
		name = d.UserEmail
	}
	return name + "'s Team"
}

// enqueueRepair publishes a reconciliation message, logging if even that
// fails. Queue failures here must not escalate: the webhook response has
// already been decided.
func (r *Reconciler) enqueueRepair(ctx context.Context, sessionID, eventType, reason string) {
	msg := &types.ReconciliationMessage{
		CheckoutSessionID: sessionID,
		EventType:         eventType,
		Reason:            reason,
		RequestID:         types.GetRequestID(ctx),
	}
	if err := r.enqueuer.Enqueue(ctx, msg); err != nil {
		r.logger.ErrorContext(ctx, "failed to enqueue reconciliation message",
			"session_id", sessionID,
			"event_type", eventType,
			"reason", reason,
			"error", err,
		)
	}
}

func isAppErrorCode(err error, code types.ErrorCode) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
