package provisioning

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"cprtrainer/internal/types"
)

// sweepConcurrency bounds parallel gateway lookups during a sweep.
const sweepConcurrency = 4

// SweepStalePending finds payments still pending after olderThan and
// reconciles each against the gateway. Sessions whose webhook was lost get
// settled; expired sessions get marked failed; still open sessions are left
// alone. Returns the number of payments examined.
func (r *Reconciler) SweepStalePending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := r.clock.Now().Add(-olderThan)

	payments, err := r.store.Payments().ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	if len(payments) == 0 {
		return 0, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)

	for _, p := range payments {
		p := p
		g.Go(func() error {
			err := r.Reconcile(ctx, &types.ReconciliationMessage{
				CheckoutSessionID: p.StripeCheckoutSessionID,
				EventType:         "sweep",
				Reason:            "stale_pending",
			})
			if err != nil {
				r.logger.ErrorContext(ctx, "sweep reconcile failed",
					"session_id", p.StripeCheckoutSessionID,
					"error", err,
				)
			}
			// One bad session should not stop the sweep.
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return len(payments), err
	}
	return len(payments), nil
}
